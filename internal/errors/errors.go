// Package errors defines structured error types for the field codec.
package errors

import (
	"errors"
	"fmt"
)

// Code defines specific error kinds.
type Code string

const (
	// ErrSerialization is returned when a field value cannot be encoded.
	ErrSerialization Code = "SERIALIZATION_FAILURE"
	// ErrFileCreateConflict is returned when a field file appeared between
	// the existence check and the exclusive create.
	ErrFileCreateConflict Code = "FILE_CREATE_CONFLICT"
	// ErrIO is returned for any other filesystem failure.
	ErrIO Code = "IO_FAILURE"
	// ErrMissingRequiredField is returned when a required field has no file.
	ErrMissingRequiredField Code = "MISSING_REQUIRED_FIELD"
	// ErrMalformedField is returned when a field file does not decode into
	// the declared type.
	ErrMalformedField Code = "MALFORMED_FIELD"
	// ErrInvalidSchema is returned when a record type cannot be mapped to
	// field files.
	ErrInvalidSchema Code = "INVALID_SCHEMA"
)

// FieldError is an error tied to a single field of a record.
type FieldError struct {
	code       Code
	field      string
	path       string
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new FieldError.
func New(code Code, field, message string) *FieldError {
	return &FieldError{
		code:    code,
		field:   field,
		message: message,
	}
}

// WithPath records the file path the error relates to.
func (e *FieldError) WithPath(path string) *FieldError {
	e.path = path
	return e
}

// WithDetail adds a single detail to the error.
func (e *FieldError) WithDetail(key string, value any) *FieldError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *FieldError) Wrap(err error) *FieldError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	msg := e.message
	if e.field != "" {
		msg = fmt.Sprintf("field %q: %s", e.field, msg)
	}
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", msg, e.wrappedErr)
	}
	return msg
}

// Code returns the error code.
func (e *FieldError) Code() Code {
	return e.code
}

// Field returns the field name, if any.
func (e *FieldError) Field() string {
	return e.field
}

// Path returns the field file path, if any.
func (e *FieldError) Path() string {
	return e.path
}

// Details returns additional error details.
func (e *FieldError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *FieldError) Unwrap() error {
	return e.wrappedErr
}

// HasCode reports whether err, or any error it wraps, is a FieldError with
// the given code.
func HasCode(err error, code Code) bool {
	var fe *FieldError
	return errors.As(err, &fe) && fe.code == code
}

// Predefined error constructors for common cases

// Serialization creates an ErrSerialization error.
func Serialization(field string, err error) *FieldError {
	return New(ErrSerialization, field, "failed to encode value").Wrap(err)
}

// Conflict creates an ErrFileCreateConflict error.
func Conflict(field, path string) *FieldError {
	return New(ErrFileCreateConflict, field, "file created concurrently").WithPath(path)
}

// IO creates an ErrIO error preserving the underlying cause.
func IO(field, path, op string, err error) *FieldError {
	return New(ErrIO, field, op).WithPath(path).Wrap(err)
}

// MissingRequired creates an ErrMissingRequiredField error.
func MissingRequired(field, path string) *FieldError {
	return New(ErrMissingRequiredField, field, "missing required field").WithPath(path)
}

// Malformed creates an ErrMalformedField error.
func Malformed(field, path string, err error) *FieldError {
	return New(ErrMalformedField, field, "malformed content").WithPath(path).Wrap(err)
}

// InvalidSchema creates an ErrInvalidSchema error.
func InvalidSchema(field, message string) *FieldError {
	return New(ErrInvalidSchema, field, message)
}
