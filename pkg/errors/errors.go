package livex_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrWidgetNotFound     = fmt.Errorf("widget %w", ErrNotFound)
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrTotalOverflow      = errors.New("total would overflow")
)

// ValidationError reports malformed or missing input. It is always returned
// before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// PersistenceError wraps a failure of the event log or the aggregate store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError is a failed push to a single subscriber connection.
type DeliveryError struct {
	ConnectionID string
	WidgetID     string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.WidgetID, e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
