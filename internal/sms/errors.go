package sms

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a phone number or message fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownProvider is returned when a phone number maps to no carrier, or
	// the carrier has no registered capabilities.
	ErrUnknownProvider = errors.New("unknown provider")
)

// InsufficientBalanceError is returned by the preflight gate when the
// prepaid balance does not cover the estimated message cost.
type InsufficientBalanceError struct {
	Balance float64
	Cost    float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %g, message cost: %g", e.Balance, e.Cost)
}

// ServiceUnavailableError reports a transport or upstream gateway failure.
// It is the only error kind eligible for automatic retry.
type ServiceUnavailableError struct {
	Message    string
	Service    string // optional, e.g. "MTS API"
	StatusCode int    // upstream HTTP status; 0 when there was no response
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	msg := e.Message
	if e.Service != "" {
		msg = e.Service + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// invalidArgument wraps ErrInvalidArgument with a human-readable reason.
func invalidArgument(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, reason)
}

// IsRetryable reports whether err is a ServiceUnavailableError.
func IsRetryable(err error) bool {
	var su *ServiceUnavailableError
	return errors.As(err, &su)
}

// Error kinds reported in structured logs, metrics labels and API responses.
const (
	KindInvalidArgument     = "invalid_argument"
	KindUnknownProvider     = "unknown_provider"
	KindInsufficientBalance = "insufficient_balance"
	KindServiceUnavailable  = "service_unavailable"
	KindCanceled            = "canceled"
	KindInternal            = "internal"
)

// ErrorKind classifies err into one of the Kind* constants. A nil error
// yields "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var ib *InsufficientBalanceError
	var su *ServiceUnavailableError
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrUnknownProvider):
		return KindUnknownProvider
	case errors.As(err, &ib):
		return KindInsufficientBalance
	case callerCanceled(err):
		return KindCanceled
	case errors.As(err, &su):
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}

// callerCanceled reports whether err carries a context error outside any
// ServiceUnavailableError. A gateway transport timeout wraps
// context.DeadlineExceeded too, but that is the gateway failing.
func callerCanceled(err error) bool {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return true
	}
	switch e := err.(type) {
	case *ServiceUnavailableError:
		return false
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if callerCanceled(inner) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			return callerCanceled(inner)
		}
	}
	return false
}
