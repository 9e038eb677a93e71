package access

import "strings"

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RolePatient      Role = "patient"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{RoleAdmin, RoleDoctor, RoleReceptionist, RolePatient}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleReceptionist, RolePatient:
		return true
	}
	return false
}

// Staff reports whether the role belongs to clinic personnel.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleDoctor || r == RoleReceptionist
}

func (r Role) String() string {
	return string(r)
}
