package core

import (
	"errors"
	"fmt"
	"strings"
)

// Fatal setup errors. They abort a parse call instead of being reported per line.
var (
	ErrUnsupportedType       = errors.New("unsupported field type")
	ErrUnknownConverter      = errors.New("no converter registered")
	ErrDuplicateConverter    = errors.New("converter already registered")
	ErrIncompatibleConverter = errors.New("converter output not assignable")
	ErrRegistryFrozen        = errors.New("converter registry is frozen")
	ErrInvalidPattern        = errors.New("invalid timestamp pattern")
	ErrInvalidDefault        = errors.New("invalid default value")
	ErrEmptySource           = errors.New("empty file: no header line")
)

// ErrMissingValue is wrapped by conversion errors for required fields whose
// column is blank and that have no default.
var ErrMissingValue = errors.New("missing value for required field")

// ShapeError reports a line whose field count does not match the header.
type ShapeError struct {
	Line     string
	Expected int
	Actual   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("line doesn't contain as many fields as expected: expected %d, actual %d", e.Expected, e.Actual)
}

// ConversionError reports a token that could not be converted to its field's
// declared type. It is a per-line condition.
type ConversionError struct {
	Field string
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("field %q: cannot convert %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// ConfigError reports a mistake in a shape or registry setup. It is fatal.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration for field %q: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MissingColumnsError lists every queried column absent from a header.
type MissingColumnsError struct {
	Columns []string
	Header  string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: [%s] in %s", strings.Join(e.Columns, ", "), e.Header)
}

// IsFatal reports whether err must abort a parse call rather than be counted
// against a single line.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var conv *ConversionError
	var shape *ShapeError
	return !errors.As(err, &conv) && !errors.As(err, &shape)
}

func configErr(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}
