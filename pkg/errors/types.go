package errors

import (
	"fmt"
)

// ErrNoFreePorts is returned by the port pool when the configured lease
// range is fully claimed.
var ErrNoFreePorts = New("no free ports in the lease range")

// ErrBadHandoff is returned when the server's handoff line does not carry a
// usable port number. Clients treat it as a connection failure.
var ErrBadHandoff = New("invalid port handoff from server")

// ErrAuthFailed is returned when the server refuses the session's
// credentials.
var ErrAuthFailed = New("authentication refused by server")

// ErrAccessDenied is returned when an operation is refused by the server's
// authorization rules.
var ErrAccessDenied = New("access denied")

// FramingError represents an unparseable or out-of-sequence protocol token.
// It is fatal to the connection that produced it.
type FramingError struct {
	Token string
}

func (err FramingError) Error() string {
	return fmt.Sprintf("unrecognized protocol token %q", err.Token)
}

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}
