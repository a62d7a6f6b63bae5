// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrParse means the oracle reply could not be read as JSON or any of
	// the tolerated near-JSON forms.
	ErrParse = errors.New("unparseable oracle response")

	// ErrSchema means the reply parsed but a present key had an impossible
	// type, or the top level was not an object.
	ErrSchema = errors.New("oracle response does not match zone schema")

	// ErrTransport means the oracle could not be reached or did not answer.
	ErrTransport = errors.New("oracle transport failure")
)

// ParseError carries the raw reply that failed to decode.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v (response: %s)", ErrParse, e.Err, truncate(e.Raw, 200))
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// StatusError is a non-2xx HTTP reply from an oracle backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned %d: %s", e.StatusCode, truncate(e.Body, 200))
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
