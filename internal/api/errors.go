package api

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from the gateway.
	KindUnknown Kind = iota
	// KindUnavailable means the backend could not be reached at all.
	KindUnavailable
	// KindCanceled means the request was canceled or timed out before a
	// response arrived.
	KindCanceled
	// KindStatus means the backend answered with a non-2xx status.
	KindStatus
	// KindMalformed means a 2xx body was not the expected JSON.
	KindMalformed
	// KindApplication means a well-formed response reported success=false.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindCanceled:
		return "canceled"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is the uniform failure returned by every Client call. Error()
// yields a message suitable for showing to the user.
type Error struct {
	Kind       Kind
	Op         string // endpoint, e.g. "query"
	StatusCode int    // set for KindStatus
	Message    string
	Err        error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, looking through wrapping.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable
}

func statusError(op string, code int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("API error: %d", code)
	}
	return &Error{Kind: KindStatus, Op: op, StatusCode: code, Message: message}
}
