package capacity

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
var (
	// Input errors, reported before anything is read or written.
	ErrInvalidInput      = errors.New("capacity: invalid input")
	ErrInvalidAmount     = errors.New("capacity: transfer amount must be positive")
	ErrSameProduct       = errors.New("capacity: source and destination product are the same")
	ErrUnknownProduct    = errors.New("capacity: unknown product")
	ErrUnknownResource   = errors.New("capacity: unknown resource")
	ErrInvalidLimit      = errors.New("capacity: limit must be positive")
	ErrDuplicateResource = errors.New("capacity: resource listed more than once")
	ErrInvalidRange      = errors.New("capacity: start is after end")
	ErrInvalidToken      = errors.New("capacity: invalid snapshot token")
	ErrLimitOverflow     = errors.New("capacity: transfer would overflow the destination limit")

	// Transfer outcomes.
	ErrConflict          = errors.New("capacity: quota changed since simulation")
	ErrInsufficientLimit = errors.New("capacity: source limit is less than the transfer amount")

	// Store errors
	ErrQuotaNotFound    = errors.New("capacity: quota not found")
	ErrResourceNotFound = errors.New("capacity: resource not found")
	ErrRevisionMismatch = errors.New("capacity: revision mismatch")

	// Sampling errors
	ErrSampleBufferFull = errors.New("capacity: sample buffer full")
)

// StoreError wraps a failure of the storage layer so that it is never
// mistaken for a validation failure or a transfer outcome.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("capacity: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("capacity: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// ItemError reports why one entry of an upload batch was rejected.
type ItemError struct {
	Index      int
	ResourceID string
	Err        error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.ResourceID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "capacity: no errors"
	case 1:
		return e.Errors[0].Error()
	}

	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("capacity: %d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is and errors.As see every collected error.
func (e *MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns e if it holds errors, nil otherwise.
func (e *MultiError) ErrorOrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

// IsInputError returns true if the request itself was invalid.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSameProduct) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrUnknownResource) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrDuplicateResource) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrLimitOverflow)
}

// IsOutcome returns true for the actionable results of a commit: the
// caller should re-simulate or pick a smaller amount.
func IsOutcome(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInsufficientLimit)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuotaNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrUnknownResource)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) ||
		errors.Is(err, ErrSampleBufferFull)
}
