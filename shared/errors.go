package shared

import (
	"fmt"
)

// ErrorKind classifies failures surfaced by the pipeline.
type ErrorKind string

const (
	// ConfigurationError indicates missing or malformed credentials or settings.
	ConfigurationError ErrorKind = "ConfigurationError"
	// UpstreamFetchError indicates a market data or oracle call failed or
	// returned an unexpected shape.
	UpstreamFetchError ErrorKind = "UpstreamFetchError"
	// OracleParseError indicates the oracle's output could not be parsed into
	// a valid judgment.
	OracleParseError ErrorKind = "OracleParseError"
	// ExchangeError indicates an order was rejected or the venue response was
	// malformed.
	ExchangeError ErrorKind = "ExchangeError"
)

// Error implements the error interface, allowing kinds to be used as
// errors.Is targets.
func (k ErrorKind) Error() string {
	return string(k)
}

// Error represents a classified pipeline error.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind
	// Payload is the raw upstream payload associated with the error, if any.
	Payload string
	// Err is the underlying error.
	Err error
}

// NewError initializes a classified error.
func NewError(kind ErrorKind, payload string, err error) *Error {
	return &Error{
		Kind:    kind,
		Payload: payload,
		Err:     err,
	}
}

// Errorf initializes a classified error without a payload from the provided format.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}

// Error returns the error message.
func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return string(e.Kind)
	case e.Payload == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v (payload: %s)", e.Kind, e.Err, e.Payload)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error is of the provided kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}
