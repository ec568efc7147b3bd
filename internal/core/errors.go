package core

// errors.go defines the error taxonomy shared by handlers, the engine, the
// exporter and the job orchestrator.
//
// Callers distinguish categories with errors.As or the Is* helpers:
//
//   - ValidationError: bad caller input (empty entity map, unsupported export
//     target, malformed document id)
//   - ParseError: input bytes do not match the claimed format or are corrupt
//   - SerializationError: re-emission failed after a successful mutation; this
//     is a programming-contract violation and is logged as a defect
//   - UnsupportedFormatError: no handler is registered; surfaced as a result
//     status by the engine, never returned from Redact
//   - NotFoundError: a registry or job lookup found nothing

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyEntityMap is returned when a redaction is requested without entities.
	ErrEmptyEntityMap = errors.New("entity map is empty")

	// ErrInvalidDocumentID is returned for empty or malformed document ids.
	ErrInvalidDocumentID = errors.New("invalid document id")

	// ErrUnsupportedTarget is returned when an export target is not offered.
	ErrUnsupportedTarget = errors.New("unsupported export target")
)

// ValidationError reports bad caller input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Err.Error()
	}
	return fmt.Sprintf("validation error: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err as a ValidationError on field.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ParseError reports input that could not be read as its claimed format.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError wraps err as a ParseError for format.
func NewParseError(format string, err error) error {
	return &ParseError{Format: format, Err: err}
}

// SerializationError reports a failure to re-emit a mutated document.
type SerializationError struct {
	Format string
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error (%s): %v", e.Format, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// NewSerializationError wraps err as a SerializationError for format.
func NewSerializationError(format string, err error) error {
	return &SerializationError{Format: format, Err: err}
}

// UnsupportedFormatError reports a file no registered handler accepts.
type UnsupportedFormatError struct {
	Filename     string
	DeclaredType string
}

func (e *UnsupportedFormatError) Error() string {
	if e.DeclaredType == "" {
		return fmt.Sprintf("unsupported format: %s", e.Filename)
	}
	return fmt.Sprintf("unsupported format: %s (%s)", e.Filename, e.DeclaredType)
}

// NotFoundError reports a failed lookup.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsParse reports whether err is or wraps a ParseError.
func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsSerialization reports whether err is or wraps a SerializationError.
func IsSerialization(err error) bool {
	var target *SerializationError
	return errors.As(err, &target)
}

// IsUnsupportedFormat reports whether err is or wraps an UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	var target *UnsupportedFormatError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
