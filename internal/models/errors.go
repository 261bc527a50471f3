package models

import "errors"

var (
	// ErrNotFound is returned when an entity is not found in a store.
	ErrNotFound = errors.New("entity not found")

	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidSeverity = errors.New("invalid severity")

	// Uniqueness violations on users.
	ErrDuplicateUsername = errors.New("Username already taken.")
	ErrDuplicateEmail    = errors.New("Email already registered.")
)

// ValidationError describes user input that cannot be accepted. Message is
// safe to show to the submitter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
