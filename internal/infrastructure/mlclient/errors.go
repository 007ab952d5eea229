package mlclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches every transport failure, including non-2xx statuses.
	ErrNetwork = errors.New("prediction service unreachable")
	// ErrMalformedResponse matches bodies that are not JSON or lack required fields.
	ErrMalformedResponse = errors.New("malformed response from prediction service")
	// ErrInvalidInput matches payloads rejected before any request was sent.
	ErrInvalidInput = errors.New("invalid input")
)

// NetworkError is returned when the request could not complete.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// StatusError is returned for a non-2xx response that carried no usable
// outcome envelope. Message holds the service's "error" text if it sent one.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: service returned status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: service returned status %d", e.Op, e.StatusCode)
}

func (e *StatusError) Is(target error) bool { return target == ErrNetwork }

// MalformedResponseError is returned when the response body cannot be
// turned into a result.
type MalformedResponseError struct {
	Op     string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// InvalidInputError is returned when the outbound payload is rejected locally.
type InvalidInputError struct {
	Op  string
	Err error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: invalid input: %v", e.Op, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }
