package common

import (
	"errors"
	"fmt"
)

// ErrType classifies the failures surfaced by the protocol layer.
type ErrType uint32

const (
	// InvalidRecord means a record has the wrong kind, a malformed payload, or
	// a bad signature. It always causes exclusion, never an abort.
	InvalidRecord ErrType = iota
	// TransportFailure means every endpoint failed a publish, or a query could
	// not be attempted at all.
	TransportFailure
	// CorrelationTimeout means no valid matching response arrived before the
	// deadline.
	CorrelationTimeout
	// InvalidIdentity means a public key is not 64 lowercase hex characters.
	InvalidIdentity
	// NotFound means no record exists for the requested author and kind.
	NotFound
)

// String ...
func (t ErrType) String() string {
	switch t {
	case InvalidRecord:
		return "Invalid Record"
	case TransportFailure:
		return "Transport Failure"
	case CorrelationTimeout:
		return "Correlation Timeout"
	case InvalidIdentity:
		return "Invalid Identity"
	case NotFound:
		return "Not Found"
	}
	return "Unknown"
}

// Error is the error type returned by every package of this module. Component
// names the package or operation that produced it and Key the record id,
// identity or request id concerned.
type Error struct {
	component string
	errType   ErrType
	key       string
	cause     error
}

// NewError ...
func NewError(component string, errType ErrType, key string, cause error) Error {
	return Error{
		component: component,
		errType:   errType,
		key:       key,
		cause:     cause,
	}
}

// Errorf builds an Error whose cause is a formatted message.
func Errorf(component string, errType ErrType, key string, format string, args ...interface{}) Error {
	return NewError(component, errType, key, fmt.Errorf(format, args...))
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s, %s, %s", e.component, e.key, e.errType)
	}
	return fmt.Sprintf("%s, %s, %s: %v", e.component, e.key, e.errType, e.cause)
}

// Unwrap returns the underlying cause.
func (e Error) Unwrap() error {
	return e.cause
}

// Type returns the class of the error.
func (e Error) Type() ErrType {
	return e.errType
}

// Is checks that err, or any error it wraps, is an Error of the given type.
func Is(err error, t ErrType) bool {
	var e Error
	if !errors.As(err, &e) {
		return false
	}
	return e.errType == t
}
