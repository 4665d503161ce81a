package beds

import "errors"

var (
	// ErrMissingPatientID is returned when an admission request has no patient id
	ErrMissingPatientID = errors.New("patient id is required")

	// ErrInvalidSeverity is returned for a severity outside stable/serious/critical
	ErrInvalidSeverity = errors.New("severity must be stable, serious or critical")

	// ErrInvalidAge is returned for a negative age
	ErrInvalidAge = errors.New("age must not be negative")

	// ErrBedNotFound is returned when a bed is not in the inventory
	ErrBedNotFound = errors.New("bed not found")

	// ErrPatientNotFound is returned when a patient record does not exist
	ErrPatientNotFound = errors.New("patient not found")

	// ErrInvalidTransition is returned when a status change is not in the transition table
	ErrInvalidTransition = errors.New("invalid bed status transition")

	// ErrMissingHolder is returned when a holder-tagged swap has no holder
	ErrMissingHolder = errors.New("holder is required")
)
