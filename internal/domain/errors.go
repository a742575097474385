package domain

import (
	"errors"
	"fmt"
)

// Schema violations: the remote service broke its response contract.
var (
	ErrUnknownDatasetKind  = errors.New("unknown dataset kind")
	ErrMissingListProperty = errors.New("missing required list property")
	ErrUnexpectedNonList   = errors.New("property is not a list")
	ErrNonObjectItem       = errors.New("list item is not an object")
	ErrMissingField        = errors.New("missing required field")
)

// Value and lookup failures.
var (
	ErrMalformedTimestamp     = errors.New("malformed timestamp")
	ErrInvalidTimestampFormat = errors.New("invalid timestamp format")
	ErrStationNotFound        = errors.New("station not found")
)

// TransportError reports a failed exchange with the remote service: a
// non-success status, an undecodable body, or a request that never completed
// (StatusCode 0).
type TransportError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("%s failed. Status code: %d, message: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedTimestampError names the field and raw value that could not be
// decoded. It matches both ErrMalformedTimestamp and the underlying decode
// error under errors.Is.
type MalformedTimestampError struct {
	Field string
	Raw   string
	Err   error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed timestamp in field %q (raw value %s): %v", e.Field, e.Raw, e.Err)
}

func (e *MalformedTimestampError) Unwrap() []error {
	return []error{ErrMalformedTimestamp, e.Err}
}
