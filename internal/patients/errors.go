package patients

import "errors"

var (
	// ErrRecordNotFound is returned when a patient record is not found
	ErrRecordNotFound = errors.New("patient record not found")

	// ErrAccountAlreadyLinked is returned when another record already holds the account id
	ErrAccountAlreadyLinked = errors.New("account already linked to a patient record")
)
