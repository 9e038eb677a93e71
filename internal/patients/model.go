package patients

import (
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/validation"
)

// Gender is the closed set of recorded genders.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Record is a clinical profile. AccountID links it to at most one login
// account; records created at the front desk may have none.
type Record struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Age                   *int      `json:"age"`
	Gender                *Gender   `json:"gender"`
	Contact               string    `json:"contact"`
	Email                 string    `json:"email,omitempty"`
	AccountID             *string   `json:"account_id"`
	RegisteredByAccountID string    `json:"registered_by_account_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// LinkedTo reports whether the record belongs to accountID.
func (r *Record) LinkedTo(accountID string) bool {
	return r.AccountID != nil && *r.AccountID == accountID
}

// CreateInput is the staff walk-in registration payload. Email and password
// together also create a patient login account.
type CreateInput struct {
	Name     string  `json:"name"`
	Age      *int    `json:"age"`
	Gender   *Gender `json:"gender"`
	Contact  string  `json:"contact"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
}

func (in *CreateInput) Validate() error {
	var v validation.Errors
	v.Add(strings.TrimSpace(in.Name) == "", "Patient name is required")
	v.MaxLen(strings.TrimSpace(in.Name), 100, "Name")
	v.Add(in.Age == nil, "Age is required")
	validateAge(&v, in.Age)
	v.Add(in.Gender == nil, "Gender is required")
	validateGender(&v, in.Gender)
	v.Add(strings.TrimSpace(in.Contact) == "", "Contact number is required")
	v.Phone(in.Contact)
	v.Email(in.Email)
	hasEmail := strings.TrimSpace(in.Email) != ""
	v.Add(in.Password != "" && !hasEmail, "Patient email is required")
	v.Add(hasEmail && in.Password != "" && len(in.Password) < 6, "Password must be at least 6 characters")
	return v.Err()
}

// WantsAccount reports whether a login account should be created.
func (in *CreateInput) WantsAccount() bool {
	return strings.TrimSpace(in.Email) != "" && in.Password != ""
}

// UpdateInput carries optional profile fields; nil leaves a field unchanged.
type UpdateInput struct {
	Name    *string `json:"name"`
	Age     *int    `json:"age"`
	Gender  *Gender `json:"gender"`
	Contact *string `json:"contact"`
}

func (in *UpdateInput) Validate() error {
	var v validation.Errors
	v.Add(in.Name == nil && in.Age == nil && in.Gender == nil && in.Contact == nil,
		"Provide at least one of name, age, gender or contact")
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		v.Add(name == "", "Name cannot be empty")
		v.MaxLen(name, 100, "Name")
	}
	validateAge(&v, in.Age)
	validateGender(&v, in.Gender)
	if in.Contact != nil {
		v.Phone(*in.Contact)
	}
	return v.Err()
}

// Apply copies the set fields onto rec.
func (in *UpdateInput) Apply(rec *Record) {
	if in.Name != nil {
		rec.Name = strings.TrimSpace(*in.Name)
	}
	if in.Age != nil {
		age := *in.Age
		rec.Age = &age
	}
	if in.Gender != nil {
		g := *in.Gender
		rec.Gender = &g
	}
	if in.Contact != nil {
		rec.Contact = strings.TrimSpace(*in.Contact)
	}
}

func validateAge(v *validation.Errors, age *int) {
	if age != nil {
		v.Add(*age < 0 || *age > 150, "Age must be between 0 and 150")
	}
}

func validateGender(v *validation.Errors, g *Gender) {
	if g != nil {
		v.Add(!g.Valid(), "Gender must be male, female, or other")
	}
}

// ListFilter narrows a patient listing.
type ListFilter struct {
	Search string
	Gender Gender
	Page   paging.Request
}

// Match applies the filter to a single record.
func (f ListFilter) Match(rec *Record) bool {
	if f.Gender != "" && (rec.Gender == nil || *rec.Gender != f.Gender) {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		return strings.Contains(strings.ToLower(rec.Name), s)
	}
	return true
}

// Summary is the patient detail joined into appointment and prescription views.
type Summary struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Age     *int    `json:"age"`
	Gender  *Gender `json:"gender"`
	Contact string  `json:"contact"`
}

// Summarize returns the join projection of rec, or nil for a missing record.
func Summarize(rec *Record) *Summary {
	if rec == nil {
		return nil
	}
	return &Summary{ID: rec.ID, Name: rec.Name, Age: rec.Age, Gender: rec.Gender, Contact: rec.Contact}
}
