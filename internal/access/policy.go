// Package access holds the role policy table and the per-entity scope rules
// consulted by every protected operation.
package access

import (
	"github.com/wolfman30/clinicdesk/internal/apperr"
)

// Operation names a protected action.
type Operation string

const (
	OpCreateAppointment       Operation = "create-appointment"
	OpListAppointments        Operation = "list-appointments"
	OpGetAppointment          Operation = "get-appointment"
	OpUpdateAppointmentStatus Operation = "update-appointment-status"
	OpDeleteAppointment       Operation = "delete-appointment"
	OpListDoctorAppointments  Operation = "list-doctor-appointments"
	OpListDoctorPatients      Operation = "list-doctor-patients"

	OpCreatePrescription Operation = "create-prescription"
	OpViewPrescription   Operation = "view-prescription"
	OpListPrescriptions  Operation = "list-prescriptions"

	OpCreatePatient    Operation = "create-patient"
	OpUpdatePatient    Operation = "update-patient"
	OpListPatients     Operation = "list-patients"
	OpViewPatient      Operation = "view-patient"
	OpViewOwnProfile   Operation = "view-own-profile"
	OpUpdateOwnProfile Operation = "update-own-profile"

	OpManageUsers   Operation = "manage-users"
	OpListDoctors   Operation = "list-doctors"
	OpViewDashboard Operation = "view-dashboard"
	OpViewSelf      Operation = "view-self"
)

type roleSet map[Role]struct{}

func rolesOf(roles ...Role) roleSet {
	set := make(roleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

var everyone = rolesOf(AllRoles...)

// policy is the single source of truth for role gates. Ownership checks
// happen in the services after this gate passes.
var policy = map[Operation]roleSet{
	OpCreateAppointment:       rolesOf(RoleReceptionist, RoleAdmin, RolePatient),
	OpListAppointments:        everyone,
	OpGetAppointment:          everyone,
	OpUpdateAppointmentStatus: rolesOf(RoleDoctor, RoleAdmin),
	OpDeleteAppointment:       rolesOf(RoleReceptionist, RoleAdmin),
	OpListDoctorAppointments:  rolesOf(RoleDoctor),
	OpListDoctorPatients:      rolesOf(RoleDoctor),

	OpCreatePrescription: rolesOf(RoleDoctor),
	OpViewPrescription:   rolesOf(RoleAdmin, RoleDoctor, RolePatient),
	OpListPrescriptions:  rolesOf(RoleAdmin, RoleDoctor, RolePatient),

	OpCreatePatient:    rolesOf(RoleReceptionist, RoleAdmin),
	OpUpdatePatient:    rolesOf(RoleReceptionist, RoleAdmin),
	OpListPatients:     rolesOf(RoleAdmin, RoleDoctor, RoleReceptionist),
	OpViewPatient:      rolesOf(RoleAdmin, RoleDoctor, RoleReceptionist),
	OpViewOwnProfile:   rolesOf(RolePatient),
	OpUpdateOwnProfile: rolesOf(RolePatient),

	OpManageUsers:   rolesOf(RoleAdmin),
	OpListDoctors:   everyone,
	OpViewDashboard: everyone,
	OpViewSelf:      everyone,
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(role Role, op Operation) bool {
	set, ok := policy[op]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// Authorize returns a Forbidden error when role may not perform op.
func Authorize(role Role, op Operation) error {
	if Allowed(role, op) {
		return nil
	}
	return apperr.Forbidden("User role '%s' is not authorized to access this resource", role)
}
