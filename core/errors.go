package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field carrying err's message.
func NewFieldError(field string, err error) error {
	return NewValidationError(err, FieldError{Field: field, Error: err.Error()})
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// IsValidationError reports whether err (or its cause chain) holds a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
