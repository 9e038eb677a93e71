package accounts

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken is returned when the normalized email already exists.
	ErrEmailTaken = errors.New("email already registered")
)
