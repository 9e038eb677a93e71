package prescriptions

import (
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/validation"
)

// Medicine is one line of a prescription.
type Medicine struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Duration string `json:"duration"`
}

// Prescription is immutable once written. The patient and doctor are copied
// from the appointment it belongs to.
type Prescription struct {
	ID              string     `json:"id"`
	PatientRecordID string     `json:"patient_id"`
	DoctorAccountID string     `json:"doctor_id"`
	AppointmentID   string     `json:"appointment_id"`
	Medicines       []Medicine `json:"medicines"`
	Instructions    string     `json:"instructions"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AppointmentSummary is the appointment detail joined into a prescription.
type AppointmentSummary struct {
	ID          string              `json:"id"`
	ScheduledAt time.Time           `json:"scheduled_at"`
	Status      appointments.Status `json:"status"`
}

func summarizeAppointment(a *appointments.Appointment) *AppointmentSummary {
	if a == nil {
		return nil
	}
	return &AppointmentSummary{ID: a.ID, ScheduledAt: a.ScheduledAt, Status: a.Status}
}

// View is a prescription with its references joined in; missing ones are nil.
type View struct {
	Prescription
	Patient     *patients.Summary       `json:"patient"`
	Doctor      *accounts.DoctorSummary `json:"doctor"`
	Appointment *AppointmentSummary     `json:"appointment"`
}

// CreateInput is the doctor's prescription payload.
type CreateInput struct {
	AppointmentID string     `json:"appointment_id"`
	Medicines     []Medicine `json:"medicines"`
	Instructions  string     `json:"instructions"`
}

func (in *CreateInput) Validate() error {
	var v validation.Errors
	v.Add(strings.TrimSpace(in.AppointmentID) == "", "Appointment is required")
	v.Add(len(in.Medicines) == 0, "At least one medicine is required")
	blank := false
	for _, m := range in.Medicines {
		if strings.TrimSpace(m.Name) == "" {
			blank = true
		}
	}
	v.Add(blank, "Medicine name is required")
	v.MaxLen(strings.TrimSpace(in.Instructions), 1000, "Instructions")
	return v.Err()
}

// normalized returns trimmed copies of the medicine lines.
func (in *CreateInput) normalized() []Medicine {
	out := make([]Medicine, 0, len(in.Medicines))
	for _, m := range in.Medicines {
		out = append(out, Medicine{
			Name:     strings.TrimSpace(m.Name),
			Dosage:   strings.TrimSpace(m.Dosage),
			Duration: strings.TrimSpace(m.Duration),
		})
	}
	return out
}

// ListFilter is a scoped repository query.
type ListFilter struct {
	DoctorID        string
	PatientRecordID string
	Page            paging.Request
}

func (f ListFilter) Match(p *Prescription) bool {
	if f.DoctorID != "" && p.DoctorAccountID != f.DoctorID {
		return false
	}
	if f.PatientRecordID != "" && p.PatientRecordID != f.PatientRecordID {
		return false
	}
	return true
}
