// Package schema declares record shapes in YAML files so CSV layouts can be
// added without recompiling. A loaded Schema produces a core.Shape[Row].
package schema

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/csvrecord/internal/core"
)

// Row is one parsed record of a dynamic shape, keyed by field name. Blank
// optional fields are present with a nil value.
type Row = map[string]any

// Field kinds, matching the core source kinds.
const (
	KindPlain     = "plain"
	KindValue     = "value"
	KindTimestamp = "timestamp"
	KindConverter = "converter"
)

var fieldTypes = map[string]reflect.Type{
	"string":   reflect.TypeFor[string](),
	"int":      reflect.TypeFor[int](),
	"int64":    reflect.TypeFor[int64](),
	"float":    reflect.TypeFor[float64](),
	"bool":     reflect.TypeFor[bool](),
	"date":     reflect.TypeFor[pgtype.Date](),
	"datetime": reflect.TypeFor[time.Time](),
	"uuid":     reflect.TypeFor[uuid.UUID](),
}

// Field is one field of a shape file.
type Field struct {
	Name      string  `yaml:"name" json:"name"`
	Column    string  `yaml:"column,omitempty" json:"column,omitempty"`
	Kind      string  `yaml:"kind,omitempty" json:"kind,omitempty"`
	Type      string  `yaml:"type,omitempty" json:"type,omitempty"`
	Formats   string  `yaml:"formats,omitempty" json:"formats,omitempty"`
	Converter string  `yaml:"converter,omitempty" json:"converter,omitempty"`
	Optional  bool    `yaml:"optional,omitempty" json:"optional,omitempty"`
	Default   *string `yaml:"default,omitempty" json:"default,omitempty"`
}

// resolved fills in the kind and type a shape file may leave out.
func (f Field) resolved() Field {
	if f.Kind == "" {
		switch {
		case f.Converter != "":
			f.Kind = KindConverter
		case f.Type == "uuid":
			f.Kind = KindConverter
			f.Converter = ConverterUUID
		case f.Formats != "":
			f.Kind = KindTimestamp
		case f.Column != "":
			f.Kind = KindValue
		default:
			f.Kind = KindPlain
		}
	}
	if f.Type == "" && f.Kind == KindTimestamp {
		f.Type = "date"
	}
	return f
}

func (f Field) valueType(reg *core.Registry) (reflect.Type, error) {
	if f.Type == "" {
		if f.Kind == KindConverter {
			if c, err := reg.Get(f.Converter); err == nil {
				return c.Out, nil
			}
		}
		return fieldTypes["string"], nil
	}
	t, ok := fieldTypes[f.Type]
	if !ok {
		return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
	return t, nil
}

// descriptor builds and validates the core descriptor for f.
func (f Field) descriptor(reg *core.Registry) (core.FieldDescriptor, error) {
	if f.Name == "" {
		return core.FieldDescriptor{}, errors.New("field without a name")
	}
	f = f.resolved()

	var src core.Source
	switch f.Kind {
	case KindPlain:
		if f.Column != "" {
			return core.FieldDescriptor{}, fmt.Errorf("field %q: plain fields read their own name, drop column %q", f.Name, f.Column)
		}
		src = core.Plain{}
	case KindValue:
		src = core.NamedValue{Column: f.Column}
	case KindTimestamp:
		if f.Formats == "" {
			return core.FieldDescriptor{}, fmt.Errorf("field %q: timestamp fields need formats", f.Name)
		}
		src = core.Timestamp{Column: f.Column, Formats: f.Formats}
	case KindConverter:
		if f.Converter == "" {
			return core.FieldDescriptor{}, fmt.Errorf("field %q: converter fields need a converter name", f.Name)
		}
		src = core.NamedConverter{Column: f.Column, Converter: f.Converter}
	default:
		return core.FieldDescriptor{}, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
	}

	typ, err := f.valueType(reg)
	if err != nil {
		return core.FieldDescriptor{}, err
	}

	d := core.Describe(f.Name, src)
	d.Type = typ
	d.Optional = f.Optional
	if err := core.ValidateDescriptor(d, reg); err != nil {
		return core.FieldDescriptor{}, err
	}

	if f.Default != nil {
		v, err := core.Convert(*f.Default, d, reg)
		if err != nil {
			return core.FieldDescriptor{}, fmt.Errorf("field %q: default %q: %w", f.Name, *f.Default, err)
		}
		if v == nil {
			if typ != fieldTypes["string"] {
				return core.FieldDescriptor{}, fmt.Errorf("field %q: %w: blank default", f.Name, core.ErrInvalidDefault)
			}
			v = ""
		}
		d.HasDefault = true
		d.Default = v
	}
	return d, nil
}

// KeepRule keeps only records whose column equals, or does not equal, a value.
// Values are compared after trimming surrounding space; a missing column
// reads as blank.
type KeepRule struct {
	Column    string  `yaml:"column" json:"column"`
	Equals    *string `yaml:"equals,omitempty" json:"equals,omitempty"`
	NotEquals *string `yaml:"not_equals,omitempty" json:"not_equals,omitempty"`
}

func (k KeepRule) validate() error {
	if k.Column == "" {
		return errors.New("keep rule without a column")
	}
	if (k.Equals == nil) == (k.NotEquals == nil) {
		return fmt.Errorf("keep rule on %q: set exactly one of equals or not_equals", k.Column)
	}
	return nil
}

func (k KeepRule) match(v string) bool {
	if k.Equals != nil {
		return v == *k.Equals
	}
	return v != *k.NotEquals
}

// Schema is one shape file.
type Schema struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Separator   string     `yaml:"separator,omitempty" json:"separator,omitempty"`
	Quote       string     `yaml:"quote,omitempty" json:"quote,omitempty"`
	Charset     string     `yaml:"charset,omitempty" json:"charset,omitempty"`
	Table       string     `yaml:"table,omitempty" json:"table,omitempty"`
	Fields      []Field    `yaml:"fields" json:"fields"`
	KeepRules   []KeepRule `yaml:"keep,omitempty" json:"keep,omitempty"`

	sep, quote  rune
	descriptors []core.FieldDescriptor
	reg         *core.Registry
}

// Compile validates s against reg and prepares it for parsing. Every problem
// is reported in one error wrapping ErrInvalidShape.
func (s *Schema) Compile(reg *core.Registry) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidShape)
	}
	if reg == nil {
		reg = core.DefaultRegistry
	}

	var errs []error
	if len(s.Fields) == 0 {
		errs = append(errs, errors.New("no fields"))
	}

	var err error
	if s.sep, err = ParseRune(s.Separator); err != nil {
		errs = append(errs, fmt.Errorf("separator: %w", err))
	}
	if s.quote, err = ParseRune(s.Quote); err != nil {
		errs = append(errs, fmt.Errorf("quote: %w", err))
	}
	if s.sep != 0 && s.sep == s.quote {
		errs = append(errs, errors.New("separator and quote must differ"))
	}

	seen := make(map[string]bool, len(s.Fields))
	descriptors := make([]core.FieldDescriptor, 0, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("field %q declared twice", f.Name))
			continue
		}
		seen[f.Name] = true

		d, err := f.descriptor(reg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descriptors = append(descriptors, d)
	}

	for _, k := range s.KeepRules {
		if err := k.validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidShape, s.Name, errors.Join(errs...))
	}
	s.descriptors = descriptors
	s.reg = reg
	return nil
}

// ParseRune reads a one-character separator or quote setting. "\t" and
// "tab" name the tab character; blank selects the default.
func ParseRune(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("want a single character, got %q", s)
	}
	return r, nil
}

// Shape returns the core shape of a compiled schema.
func (s *Schema) Shape() core.Shape[Row] {
	bindings := make([]core.Binding[Row], len(s.descriptors))
	for i, d := range s.descriptors {
		name := d.Name
		bindings[i] = core.BindAny(d, func(r *Row, v any) {
			(*r)[name] = v
		})
	}
	n := len(s.descriptors)
	return core.NewShape(bindings...).WithNew(func() Row {
		return make(Row, n)
	})
}

// Columns returns the field names in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.descriptors))
	for i, d := range s.descriptors {
		cols[i] = d.Name
	}
	return cols
}

// Descriptors returns the compiled field descriptors.
func (s *Schema) Descriptors() []core.FieldDescriptor {
	out := make([]core.FieldDescriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Keep returns the keep predicate for the schema's keep rules. All rules
// must match.
func (s *Schema) Keep() core.KeepFunc {
	if len(s.KeepRules) == 0 {
		return core.KeepAll
	}
	rules := s.KeepRules
	return func(h *core.Header, r core.Record) bool {
		for _, rule := range rules {
			var v string
			if i, ok := h.Index(rule.Column); ok {
				v, _ = r.Get(i)
				v = strings.TrimSpace(v)
			}
			if !rule.match(v) {
				return false
			}
		}
		return true
	}
}

// SourceConfig returns a config reading r with the schema's settings.
// Fields the schema leaves blank keep the core defaults.
func (s *Schema) SourceConfig(r io.Reader, logger *slog.Logger) core.SourceConfig {
	if logger != nil {
		logger = logger.With("shape", s.Name)
	}
	return core.SourceConfig{
		Reader:    r,
		Charset:   s.Charset,
		Separator: s.sep,
		Quote:     s.quote,
		Keep:      s.Keep(),
		Registry:  s.reg,
		Logger:    logger,
	}
}
