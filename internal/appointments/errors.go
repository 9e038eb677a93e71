package appointments

import "errors"

var (
	// ErrAppointmentNotFound is returned when no appointment matches the id.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrStatusChanged is returned by UpdateStatus when the stored status no
	// longer equals the expected prior status.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)
