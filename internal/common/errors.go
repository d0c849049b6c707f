// Package common defines the error taxonomy shared by the platform adapters,
// repositories, the session manager and the view controllers.
//
// Callers match the concrete types with errors.As, or the sentinels with
// errors.Is:
//
//	AuthenticationError  → ErrUnauthenticated
//	NotFoundError        → ErrNotFound
//	ValidationError      → ErrValidation
//	RemoteError          → (no sentinel; inspect Code/Status)
package common

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// AuthenticationError is returned when the platform rejects credentials.
// Message is the platform's message, unmodified.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

func (e *AuthenticationError) Is(target error) bool { return target == ErrUnauthenticated }

// NotFoundError covers both "no such record" and "record not visible to the
// caller"; the two cases carry the same message.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteError is any other failure reported by the platform or the network.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("remote error (status %d)", e.Status)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Required returns a ValidationError when value is empty.
func Required(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}
