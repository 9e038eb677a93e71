package prescriptions

import "errors"

var (
	// ErrPrescriptionNotFound is returned when no prescription matches the lookup.
	ErrPrescriptionNotFound = errors.New("prescription not found")

	// ErrAppointmentPrescribed is returned when the appointment already has a
	// prescription.
	ErrAppointmentPrescribed = errors.New("appointment already has a prescription")
)
