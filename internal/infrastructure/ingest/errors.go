package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when no key pair is configured.
	ErrMissingCredentials = errors.New("ingest credentials are missing")

	// ErrCredentialEncoding is returned when the key pair cannot be encoded for transport.
	ErrCredentialEncoding = errors.New("ingest credentials cannot be encoded")

	// ErrInvalidResponse is returned when a response body cannot be understood.
	ErrInvalidResponse = errors.New("invalid response from ingest service")
)

// TransportError wraps a failure to reach the ingest service at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError is returned when the service answers with a status other than the expected one.
type UnexpectedStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// UnderlyingError wraps any other failure while preparing or handling a call.
type UnderlyingError struct {
	Op  string
	Err error
}

func (e *UnderlyingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnderlyingError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from an UnexpectedStatusError anywhere in the chain.
func StatusCode(err error) (int, bool) {
	var statusErr *UnexpectedStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}
