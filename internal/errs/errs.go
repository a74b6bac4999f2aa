package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for outcome reporting and HTTP status mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConversion
	KindResource
)

// String returns the lowercase kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConversion:
		return "conversion"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ValidationError reports malformed or unsupported configuration or request
// fields. It is raised before any processing starts and is never retried.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %v", e.Err)
	}
	return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConversionError reports a failure inside segmentation, padding or the
// engine call for one (file, speaker) unit.
type ConversionError struct {
	Op  string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion %s: %v", e.Op, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ResourceError reports a filesystem or I/O failure on Path.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Validation wraps err as a ValidationError for field.
func Validation(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Validationf builds a ValidationError from a format string.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Conversion wraps err as a ConversionError unless it is already classified.
func Conversion(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &ConversionError{Op: op, Err: err}
}

// Resource wraps err as a ResourceError unless it is already classified.
func Resource(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &ResourceError{Op: op, Path: path, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ve *ValidationError
	var ce *ConversionError
	var re *ResourceError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &re):
		return KindResource
	case errors.As(err, &ce):
		return KindConversion
	default:
		return KindUnknown
	}
}
