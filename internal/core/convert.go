package core

// convert.go turns raw CSV tokens into typed field values.
//
// Conversion is driven entirely by a FieldDescriptor:
//   - Plain and NamedValue fields convert by declared type (string, int,
//     int64, float64, bool)
//   - Timestamp fields parse with a pipe-separated pattern list into a
//     pgtype.Date or a time.Time
//   - NamedConverter fields delegate to a converter from a Registry
//
// A blank token always converts to nil. Malformed tokens produce a
// *ConversionError; descriptor mistakes produce a *ConfigError.

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// truthy holds the lower-cased tokens that convert to true.
// Every other non-blank token converts to false.
var truthy = map[string]bool{
	"true": true,
	"yes":  true,
	"y":    true,
	"1":    true,
}

// ToBool reports whether s is one of "true", "yes", "y" or "1",
// ignoring case and surrounding whitespace.
func ToBool(s string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(s))]
}

// Convert converts token according to d. reg is consulted for
// NamedConverter fields; nil means DefaultRegistry.
func Convert(token string, d FieldDescriptor, reg *Registry) (any, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	if reg == nil {
		reg = DefaultRegistry
	}

	switch src := d.Source.(type) {
	case nil, Plain, NamedValue:
		return convertBasic(token, d)
	case Timestamp:
		return convertTimestamp(token, src.Formats, d)
	case NamedConverter:
		c, err := converterFor(src.Converter, d, reg)
		if err != nil {
			return nil, err
		}
		v, err := c.Fn(token)
		if err != nil {
			return nil, &ConversionError{Field: d.Name, Value: token, Err: err}
		}
		return v, nil
	default:
		return nil, configErr(d.Name, fmt.Errorf("%w: source %T", ErrUnsupportedType, d.Source))
	}
}

func convertBasic(token string, d FieldDescriptor) (any, error) {
	switch d.Type {
	case typeString:
		return token, nil
	case typeInt:
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, &ConversionError{Field: d.Name, Value: token, Err: numErr(err)}
		}
		return n, nil
	case typeInt64:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, &ConversionError{Field: d.Name, Value: token, Err: numErr(err)}
		}
		return n, nil
	case typeFloat64:
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, &ConversionError{Field: d.Name, Value: token, Err: numErr(err)}
		}
		return f, nil
	case typeBool:
		return ToBool(token), nil
	default:
		return nil, configErr(d.Name, fmt.Errorf("%w: %v", ErrUnsupportedType, d.Type))
	}
}

// numErr strips strconv's function prefix so messages read "invalid syntax".
func numErr(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}

func convertTimestamp(token, formats string, d FieldDescriptor) (any, error) {
	switch d.Type {
	case typeDate:
		v, err := ParseDate(token, formats)
		if err != nil {
			return nil, timestampErr(d, token, err)
		}
		if !v.Valid {
			return nil, nil
		}
		return v, nil
	case typeDateTime:
		t, ok, err := ParseDateTime(token, formats)
		if err != nil {
			return nil, timestampErr(d, token, err)
		}
		if !ok {
			return nil, nil
		}
		return t, nil
	default:
		return nil, configErr(d.Name, fmt.Errorf("%w: timestamp field of type %v", ErrUnsupportedType, d.Type))
	}
}

func timestampErr(d FieldDescriptor, token string, err error) error {
	if errors.Is(err, ErrInvalidPattern) {
		return configErr(d.Name, err)
	}
	return &ConversionError{Field: d.Name, Value: token, Err: err}
}

// converterFor looks up name and checks that its output fits d.Type.
func converterFor(name string, d FieldDescriptor, reg *Registry) (Converter, error) {
	c, err := reg.Get(name)
	if err != nil {
		return Converter{}, configErr(d.Name, err)
	}
	if !c.AssignableTo(d.Type) {
		return Converter{}, configErr(d.Name, fmt.Errorf("%w: converter %q returns %v, field is %v",
			ErrIncompatibleConverter, name, c.Out, d.Type))
	}
	return c, nil
}

// ValidateDescriptor checks d against reg without converting anything.
// It reports the same configuration errors Convert would report on the
// first non-blank token, plus a default value that does not fit d.Type.
func ValidateDescriptor(d FieldDescriptor, reg *Registry) error {
	if reg == nil {
		reg = DefaultRegistry
	}
	if d.Type == nil {
		return configErr(d.Name, fmt.Errorf("%w: no declared type", ErrUnsupportedType))
	}

	switch src := d.Source.(type) {
	case nil, Plain, NamedValue:
		switch d.Type {
		case typeString, typeInt, typeInt64, typeFloat64, typeBool:
		default:
			return configErr(d.Name, fmt.Errorf("%w: %v", ErrUnsupportedType, d.Type))
		}
	case Timestamp:
		switch d.Type {
		case typeDate:
			if err := validateFormats(src.Formats, false); err != nil {
				return configErr(d.Name, err)
			}
		case typeDateTime:
			if err := validateFormats(src.Formats, true); err != nil {
				return configErr(d.Name, err)
			}
		default:
			return configErr(d.Name, fmt.Errorf("%w: timestamp field of type %v", ErrUnsupportedType, d.Type))
		}
	case NamedConverter:
		if _, err := converterFor(src.Converter, d, reg); err != nil {
			return err
		}
	default:
		return configErr(d.Name, fmt.Errorf("%w: source %T", ErrUnsupportedType, d.Source))
	}

	if d.HasDefault && d.Default != nil && !reflect.TypeOf(d.Default).AssignableTo(d.Type) {
		return configErr(d.Name, fmt.Errorf("%w: %T is not assignable to %v", ErrInvalidDefault, d.Default, d.Type))
	}
	return nil
}
