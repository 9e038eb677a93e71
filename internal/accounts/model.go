package accounts

import (
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/validation"
)

// Account is a login identity. Accounts are never deleted; IsActive is the
// only way to disable one.
type Account struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         access.Role `json:"role"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Actor projects the account onto the request identity.
func (a *Account) Actor() access.Actor {
	return access.Actor{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     access.Role `json:"-"`
}

// Validate checks field-level rules for registration.
func (in *RegisterInput) Validate() error {
	var v validation.Errors
	v.Required(in.Name, "Name")
	v.MaxLen(strings.TrimSpace(in.Name), 100, "Name")
	v.Required(in.Email, "Email")
	v.Email(in.Email)
	v.Add(len(in.Password) < 6, "Password must be at least 6 characters")
	return v.Err()
}

// LoginInput is the payload for authenticating.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *LoginInput) Validate() error {
	var v validation.Errors
	v.Required(in.Email, "Email")
	v.Email(in.Email)
	v.Required(in.Password, "Password")
	return v.Err()
}

// UpdateUserInput carries the admin-editable account fields. Nil fields are
// left unchanged.
type UpdateUserInput struct {
	IsActive *bool        `json:"is_active"`
	Role     *access.Role `json:"role"`
}

func (in *UpdateUserInput) Validate() error {
	var v validation.Errors
	v.Add(in.IsActive == nil && in.Role == nil, "Provide is_active or role to update")
	if in.Role != nil {
		v.Add(!in.Role.Valid(), "Invalid role")
	}
	return v.Err()
}

// ListFilter narrows an account listing.
type ListFilter struct {
	Role     access.Role
	IsActive *bool
	Search   string
	Page     paging.Request
}

// Match applies the filter to a single account.
func (f ListFilter) Match(a *Account) bool {
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	if f.IsActive != nil && a.IsActive != *f.IsActive {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		return strings.Contains(strings.ToLower(a.Name), s)
	}
	return true
}

// DoctorSummary is the public view of a doctor, used by booking forms and
// joined into appointment and prescription responses.
type DoctorSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SummarizeDoctor returns nil for a missing account.
func SummarizeDoctor(a *Account) *DoctorSummary {
	if a == nil {
		return nil
	}
	return &DoctorSummary{ID: a.ID, Name: a.Name, Email: a.Email}
}
