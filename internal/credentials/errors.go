package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is matched by MissingFieldError.
	ErrMissingField = errors.New("missing credential field")
	// ErrEmptyField is matched by EmptyFieldError.
	ErrEmptyField = errors.New("empty credential field")
	// ErrIO is matched by IOError.
	ErrIO = errors.New("credential store I/O failure")
)

// MissingFieldError is returned when no credential store exists and a required field was not supplied.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("%s must be supplied when no credential store exists", e.Field)
}

// Is makes MissingFieldError match ErrMissingField.
func (e MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// EmptyFieldError is returned when a required field of the credential store is empty.
type EmptyFieldError struct {
	Field string
}

func (e EmptyFieldError) Error() string {
	return fmt.Sprintf("%s must not be empty", e.Field)
}

// Is makes EmptyFieldError match ErrEmptyField.
func (e EmptyFieldError) Is(target error) bool {
	return target == ErrEmptyField
}

// IOError wraps a filesystem failure on the credential store.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("could not %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes IOError match ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
