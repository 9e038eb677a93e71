package appointments

import (
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/validation"
)

// Appointment is a booked visit between a patient record and a doctor.
type Appointment struct {
	ID                 string      `json:"id"`
	PatientRecordID    string      `json:"patient_id"`
	DoctorAccountID    string      `json:"doctor_id"`
	ScheduledAt        time.Time   `json:"scheduled_at"`
	Reason             string      `json:"reason"`
	Status             Status      `json:"status"`
	BookedByRole       access.Role `json:"booked_by_role"`
	CreatedByAccountID string      `json:"created_by_account_id"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// View is an appointment with its patient and doctor joined in. Either side
// is nil when the referenced row no longer exists.
type View struct {
	Appointment
	Patient *patients.Summary       `json:"patient"`
	Doctor  *accounts.DoctorSummary `json:"doctor"`
}

// CreateInput is the booking payload. PatientID is ignored for patients.
type CreateInput struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Reason    string `json:"reason"`
}

func (in *CreateInput) Validate() error {
	var v validation.Errors
	v.Required(in.DoctorID, "Doctor")
	if strings.TrimSpace(in.Date) == "" {
		v.Add(true, "Appointment date is required")
	} else {
		_, err := ParseTime(in.Date, time.UTC)
		v.Add(err != nil, "Invalid date format")
	}
	v.MaxLen(strings.TrimSpace(in.Reason), 500, "Reason")
	return v.Err()
}

// StatusInput is the status update payload.
type StatusInput struct {
	Status Status `json:"status"`
}

func (in *StatusInput) Validate() error {
	var v validation.Errors
	v.Required(string(in.Status), "Status")
	v.Add(in.Status != "" && !in.Status.Valid(), "Status must be pending, confirmed, completed, or cancelled")
	return v.Err()
}

// Query is the caller-facing list filter before scoping.
type Query struct {
	Status string
	Date   string
	Page   paging.Request
}

// ListFilter is a scoped repository query. From is inclusive and Until is
// exclusive; zero values are unbounded.
type ListFilter struct {
	DoctorID        string
	PatientRecordID string
	Statuses        []Status
	From            time.Time
	Until           time.Time
	Page            paging.Request
}

// Match applies the filter to a single appointment.
func (f ListFilter) Match(a *Appointment) bool {
	if f.DoctorID != "" && a.DoctorAccountID != f.DoctorID {
		return false
	}
	if f.PatientRecordID != "" && a.PatientRecordID != f.PatientRecordID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	if !f.From.IsZero() && a.ScheduledAt.Before(f.From) {
		return false
	}
	if !f.Until.IsZero() && !a.ScheduledAt.Before(f.Until) {
		return false
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps and ISO dates. Values without a zone
// are read in loc.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.Local
	}
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// DayBounds returns [local midnight, next local midnight) for the day that
// contains t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
