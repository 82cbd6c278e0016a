// Package apperror defines the error taxonomy shared by the inspection
// components: validation failures that never reach the network, network
// failures from the ERP API or blob store, and correlation failures when a
// batch-create response cannot be matched to its request.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a transition or save is already in flight.
	ErrBusy = errors.New("operation already in progress")

	// ErrBoundary is returned for a transition past the first or last step.
	ErrBoundary = errors.New("no step in that direction")

	// ErrNotFound is returned for unknown sessions, points or items.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed field. It is raised before
// any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NetworkError reports a rejected request or a non-success status.
type NetworkError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// CorrelationError reports a batch-create response whose entries cannot be
// matched to the request by position.
type CorrelationError struct {
	Requested int
	Returned  int
	Index     int
	Reason    string
}

func (e *CorrelationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("create response entry %d does not match request: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("create response has %d entries, expected %d", e.Returned, e.Requested)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNetwork reports whether err is or wraps a NetworkError.
func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// IsCorrelation reports whether err is or wraps a CorrelationError.
func IsCorrelation(err error) bool {
	var c *CorrelationError
	return errors.As(err, &c)
}
