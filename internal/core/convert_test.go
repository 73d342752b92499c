package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typed(name string, src Source, typ reflect.Type) FieldDescriptor {
	d := Describe(name, src)
	d.Type = typ
	return d
}

// ----------------------------------------------------------------------------
// Basic types
// ----------------------------------------------------------------------------

func TestConvert_Basic(t *testing.T) {
	tests := []struct {
		name  string
		typ   reflect.Type
		token string
		want  any
	}{
		{"string verbatim", typeString, "  Copenhagen ", "Copenhagen"},
		{"string keeps inner spaces", typeString, "Rue Gauge, Maison 1", "Rue Gauge, Maison 1"},
		{"int", typeInt, " 64", 64},
		{"negative int", typeInt, "-3", -3},
		{"int64", typeInt64, "9007199254740993", int64(9007199254740993)},
		{"float", typeFloat64, "3.25", 3.25},
		{"float exponent", typeFloat64, "1e3", 1000.0},
		{"bool", typeBool, "yes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.token, typed("f", Plain{}, tt.typ), NewRegistry())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert_Truthiness(t *testing.T) {
	d := typed("flag", NamedValue{Column: "flag"}, typeBool)

	for _, tok := range []string{"true", "yes", "y", "TRUE", "YES", "Y", " 1 "} {
		got, err := Convert(tok, d, nil)
		require.NoError(t, err)
		assert.Equal(t, true, got, tok)
	}
	for _, tok := range []string{"false", "no", "n", "0", "maybe", "MAYBE", "not yes"} {
		got, err := Convert(tok, d, nil)
		require.NoError(t, err)
		assert.Equal(t, false, got, tok)
	}
}

func TestConvert_MalformedNumbers(t *testing.T) {
	tests := []struct {
		typ   reflect.Type
		token string
	}{
		{typeInt, "abc"},
		{typeInt, "1.5"},
		{typeInt64, "12x"},
		{typeFloat64, "1,5"},
		{typeFloat64, "one"},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.token, func(t *testing.T) {
			_, err := Convert(tt.token, typed("n", Plain{}, tt.typ), nil)

			var convErr *ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Equal(t, "n", convErr.Field)
			assert.Equal(t, tt.token, convErr.Value)
			assert.False(t, IsFatal(err))
		})
	}
}

func TestConvert_BlankIsAbsentForEveryType(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "upper", func(s string) (string, error) { return strings.ToUpper(s), nil })

	descriptors := []FieldDescriptor{
		typed("s", Plain{}, typeString),
		typed("i", Plain{}, typeInt),
		typed("i64", NamedValue{Column: "x"}, typeInt64),
		typed("f", Plain{}, typeFloat64),
		typed("b", Plain{}, typeBool),
		typed("d", Timestamp{Formats: "dd/MM/yyyy"}, typeDate),
		typed("dt", Timestamp{Formats: "dd/MM/yyyy HH:mm"}, typeDateTime),
		typed("c", NamedConverter{Converter: "upper"}, typeString),
	}

	for _, d := range descriptors {
		for _, tok := range []string{"", " ", "\t  "} {
			got, err := Convert(tok, d, reg)
			assert.NoError(t, err, d.Name)
			assert.Nil(t, got, d.Name)
		}
	}
}

func TestConvert_UnsupportedTypeIsConfigError(t *testing.T) {
	_, err := Convert("1", typed("u", Plain{}, reflect.TypeFor[uint8]()), nil)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.True(t, IsFatal(err))

	_, err = Convert("01/02/2020", typed("ts", Timestamp{Formats: "dd/MM/yyyy"}, typeString), nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

// ----------------------------------------------------------------------------
// Named converters
// ----------------------------------------------------------------------------

func TestConvert_NamedConverter(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "beverageBoolean", func(s string) (bool, error) {
		return strings.ToLower(s) == "indeed", nil
	})
	MustRegisterConverter(reg, "strict", func(s string) (int, error) {
		return 0, errors.New("never valid")
	})

	d := typed("refreshments", NamedConverter{Column: "offers", Converter: "beverageBoolean"}, typeBool)
	got, err := Convert(" Indeed ", d, reg)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Convert("nope", d, reg)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	_, err = Convert("x", typed("n", NamedConverter{Converter: "strict"}, typeInt), reg)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "x", convErr.Value)
}

func TestConvert_UnknownConverter(t *testing.T) {
	_, err := Convert("x", typed("c", NamedConverter{Converter: "missing"}, typeString), NewRegistry())

	assert.ErrorIs(t, err, ErrUnknownConverter)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "missing")
}

func TestConvert_IncompatibleConverter(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "len", func(s string) (int, error) { return len(s), nil })

	_, err := Convert("abc", typed("c", NamedConverter{Converter: "len"}, typeString), reg)

	assert.ErrorIs(t, err, ErrIncompatibleConverter)
	assert.True(t, IsFatal(err))
}

func TestConvert_ConverterToInterfaceField(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "len", func(s string) (int, error) { return len(s), nil })

	got, err := Convert("abcd", typed("c", NamedConverter{Converter: "len"}, reflect.TypeFor[any]()), reg)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

// ----------------------------------------------------------------------------
// Timestamps through Convert
// ----------------------------------------------------------------------------

func TestConvert_Timestamp(t *testing.T) {
	d := typed("checked", Timestamp{Formats: "yyyy/MM/dd|dd/MM/yyyy"}, typeDate)

	got, err := Convert("28/08/2012", d, nil)
	require.NoError(t, err)
	assert.Equal(t, pgtype.Date{Time: time.Date(2012, 8, 28, 0, 0, 0, 0, time.UTC), Valid: true}, got)

	got, err = Convert("n/a", d, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Convert("2012-08-28", d, nil)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)

	dt := typed("at", Timestamp{Formats: "yyyy-MM-dd HH:mm:ss"}, typeDateTime)
	got, err = Convert("2019-01-02 03:04:05", dt, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC), got)
}

func TestConvert_InvalidPatternIsConfigError(t *testing.T) {
	_, err := Convert("12/2020", typed("d", Timestamp{Formats: "qq/yyyy"}, typeDate), nil)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

// ----------------------------------------------------------------------------
// Descriptor validation
// ----------------------------------------------------------------------------

func TestValidateDescriptor(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "len", func(s string) (int, error) { return len(s), nil })

	withDefault := func(d FieldDescriptor, v any) FieldDescriptor {
		d.HasDefault = true
		d.Default = v
		return d
	}

	tests := []struct {
		name    string
		d       FieldDescriptor
		wantErr error
	}{
		{"plain string", typed("a", Plain{}, typeString), nil},
		{"no type", Describe("a", nil), ErrUnsupportedType},
		{"unsupported plain type", typed("a", Plain{}, reflect.TypeFor[[]byte]()), ErrUnsupportedType},
		{"date pattern", typed("a", Timestamp{Formats: "dd/MM/yyyy"}, typeDate), nil},
		{"date pattern with time", typed("a", Timestamp{Formats: "dd/MM/yyyy - HH:mm"}, typeDate), nil},
		{"datetime without time fields", typed("a", Timestamp{Formats: "dd/MM/yyyy"}, typeDateTime), ErrInvalidPattern},
		{"datetime with one timed pattern", typed("a", Timestamp{Formats: "dd/MM/yyyy|dd/MM/yyyy HH:mm"}, typeDateTime), nil},
		{"empty formats", typed("a", Timestamp{}, typeDate), ErrInvalidPattern},
		{"known converter", typed("a", NamedConverter{Converter: "len"}, typeInt), nil},
		{"unknown converter", typed("a", NamedConverter{Converter: "nope"}, typeInt), ErrUnknownConverter},
		{"incompatible converter", typed("a", NamedConverter{Converter: "len"}, typeBool), ErrIncompatibleConverter},
		{"matching default", withDefault(typed("a", Plain{}, typeString), "London"), nil},
		{"mismatched default", withDefault(typed("a", Plain{}, typeInt), "x"), ErrInvalidDefault},
		{"nil default", withDefault(typed("a", Plain{}, typeInt), nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescriptor(tt.d, reg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
