package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

// ContextError annotates an error with the operation that produced it.
// The original error is recoverable via RootCause.
type ContextError struct {
	Context string
	Err     error
}

func (ce ContextError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Context, ce.Err)
}

// Unwrap makes ContextError compatible with the standard errors package.
func (ce ContextError) Unwrap() error {
	return ce.Err
}

// WithContext wraps err with a message describing the operation that failed.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// RootCause unwinds any context annotations and returns the underlying error.
func RootCause(err error) error {
	for {
		ce, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ce.Err
	}
}

// FriendlyError is an error whose message is meant to be shown to the
// operator directly, without any context chain prepended.
type FriendlyError struct {
	Message string
}

func (fe FriendlyError) Error() string {
	return fe.Message
}

// NewFriendlyError creates a FriendlyError with a formatted message.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

// GetPrintableMessage returns the message that should be shown for err.
// FriendlyErrors are returned verbatim even when they've been wrapped.
func GetPrintableMessage(err error) string {
	if fe, ok := RootCause(err).(FriendlyError); ok {
		return fe.Message
	}
	return err.Error()
}
