package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/usage"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tally: not found")
	ErrAlreadyExists = errors.New("tally: already exists")

	// File errors
	ErrFileNotFound     = errors.New("tally: file not found")
	ErrInvalidFilename  = errors.New("tally: file name carries no invoice date")
	ErrNoCollaborator   = errors.New("tally: no accounting collaborator configured")
	ErrReportUnreadable = errors.New("tally: usage report unreadable")

	// Ledger errors
	ErrRecordNotFound  = errors.New("tally: ledger record not found")
	ErrClaimHeld       = errors.New("tally: customer is claimed by another run")
	ErrLedgerIntegrity = errors.New("tally: ledger integrity violation")

	// Emission errors
	ErrEmission = errors.New("tally: invoice emission failed")

	// Store errors
	ErrMigrationFailed = errors.New("tally: migration failed")
)

// ParseError is a usage row the normalizer could not read.
type ParseError = usage.ParseError

// MissingMappingError is a usage name with no accounting contact.
type MissingMappingError = identity.UnresolvedError

// EmissionError wraps a collaborator failure while submitting one
// customer's invoice. The customer's record is marked failed and the batch
// continues.
type EmissionError struct {
	Customer string
	Err      error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("tally: emit invoice for %s: %v", e.Customer, e.Err)
}

func (e *EmissionError) Unwrap() []error { return []error{ErrEmission, e.Err} }

// LedgerIntegrityError reports a record that was not in the state the run
// expected, e.g. an invoice was created but the pending claim had been
// taken over.
type LedgerIntegrityError struct {
	Customer string
	Detail   string
}

func (e *LedgerIntegrityError) Error() string {
	return fmt.Sprintf("tally: ledger integrity for %s: %s", e.Customer, e.Detail)
}

func (e *LedgerIntegrityError) Unwrap() error { return ErrLedgerIntegrity }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsRetryable returns true if a later run may succeed where this one
// failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrClaimHeld) || errors.Is(err, ErrEmission)
}
