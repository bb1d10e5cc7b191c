package compiler

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected compilation.
type ErrorKind string

const (
	// KindValidation: the request was refused before any process ran.
	KindValidation ErrorKind = "validation"
	// KindSpawn: the compiler could not be started.
	KindSpawn ErrorKind = "spawn"
	// KindInternal: the service itself failed (workspace, filesystem).
	KindInternal ErrorKind = "internal"
)

// Error is a rejection. Timeouts, oversized output and non-zero exits are
// not errors; they come back as a Result.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError rejects a request with a message meant for the user.
func ValidationError(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// SpawnError wraps an OS-level failure to start a process.
func SpawnError(err error) error {
	return &Error{Kind: KindSpawn, Err: err}
}

// InternalError wraps a service-side failure.
func InternalError(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsSpawn reports whether err is a spawn failure.
func IsSpawn(err error) bool {
	return kindOf(err) == KindSpawn
}

func kindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
