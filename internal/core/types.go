package core

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Declared types the converter understands without a named converter.
var (
	typeString   = reflect.TypeFor[string]()
	typeInt      = reflect.TypeFor[int]()
	typeInt64    = reflect.TypeFor[int64]()
	typeFloat64  = reflect.TypeFor[float64]()
	typeBool     = reflect.TypeFor[bool]()
	typeDate     = reflect.TypeFor[pgtype.Date]()
	typeDateTime = reflect.TypeFor[time.Time]()
)

// Source describes where a field's value comes from and how it is converted.
// It is a closed set: Plain, NamedValue, Timestamp and NamedConverter.
type Source interface {
	column() string
	isSource()
}

// Plain reads the column named like the field and converts it by declared type.
type Plain struct{}

// NamedValue reads an explicitly named column and converts it by declared type.
type NamedValue struct {
	Column string
}

// Timestamp parses the column with the first matching pattern in Formats,
// a pipe-separated list such as "dd/MM/yyyy|yyyy-MM-dd".
type Timestamp struct {
	Column  string
	Formats string
}

// NamedConverter converts the column with a converter from the registry.
type NamedConverter struct {
	Column    string
	Converter string
}

func (Plain) column() string            { return "" }
func (s NamedValue) column() string     { return s.Column }
func (s Timestamp) column() string      { return s.Column }
func (s NamedConverter) column() string { return s.Column }

func (Plain) isSource()          {}
func (NamedValue) isSource()     {}
func (Timestamp) isSource()      {}
func (NamedConverter) isSource() {}

// FieldDescriptor is the static description of one target field.
type FieldDescriptor struct {
	Name       string       // Field name, also the column name unless the source names one
	Source     Source       // Value source kind
	Type       reflect.Type // Declared value type
	Optional   bool         // Blank values become nil instead of a conversion error
	HasDefault bool         // Default is used for blank values
	Default    any
}

// Describe returns a descriptor for name with the given source. The declared
// type is filled in by Bind, BindOptional, or set by the caller for BindAny.
func Describe(name string, src Source) FieldDescriptor {
	if src == nil {
		src = Plain{}
	}
	return FieldDescriptor{Name: name, Source: src}
}

// Column returns the header column this field reads.
func (d FieldDescriptor) Column() string {
	if d.Source != nil {
		if c := d.Source.column(); c != "" {
			return c
		}
	}
	return d.Name
}

// Required reports whether a blank value must fail the line.
func (d FieldDescriptor) Required() bool {
	return !d.Optional && !d.HasDefault
}

func (d FieldDescriptor) String() string {
	return fmt.Sprintf("%s(%s %v)", d.Name, d.Column(), d.Type)
}

// Binding pairs a descriptor with the setter that stores a converted value
// into a T.
type Binding[T any] struct {
	Descriptor FieldDescriptor
	set        func(*T, any)
}

// Bind declares a required field of type V.
func Bind[T, V any](d FieldDescriptor, set func(*T, V)) Binding[T] {
	d.Type = reflect.TypeFor[V]()
	d.Optional = false
	return Binding[T]{
		Descriptor: d,
		set: func(t *T, v any) {
			if v == nil {
				return
			}
			set(t, valueAs[V](v))
		},
	}
}

// BindOptional declares a field of type V that receives nil when its column
// is blank and no default is set.
func BindOptional[T, V any](d FieldDescriptor, set func(*T, *V)) Binding[T] {
	d.Type = reflect.TypeFor[V]()
	d.Optional = true
	return Binding[T]{
		Descriptor: d,
		set: func(t *T, v any) {
			if v == nil {
				set(t, nil)
				return
			}
			val := valueAs[V](v)
			set(t, &val)
		},
	}
}

// valueAs returns v as a V. Validation only guarantees that v's type is
// assignable to V, so an unnamed slice or map reaching a named V is stored
// through reflection.
func valueAs[V any](v any) V {
	if x, ok := v.(V); ok {
		return x
	}
	var out V
	reflect.ValueOf(&out).Elem().Set(reflect.ValueOf(v))
	return out
}

// BindAny declares a field whose type is taken from d.Type. The setter
// receives the converted value, or nil for a blank optional field.
func BindAny[T any](d FieldDescriptor, set func(*T, any)) Binding[T] {
	return Binding[T]{Descriptor: d, set: set}
}

// WithDefault sets the value used when the field's column is blank.
func (b Binding[T]) WithDefault(v any) Binding[T] {
	b.Descriptor.HasDefault = true
	b.Descriptor.Default = v
	return b
}

// Shape is the ordered list of fields that make up a target record type.
type Shape[T any] struct {
	New      func() T // Optional constructor; the zero value of T is used if nil
	Bindings []Binding[T]
}

// NewShape returns a shape with the given bindings.
func NewShape[T any](bindings ...Binding[T]) Shape[T] {
	return Shape[T]{Bindings: bindings}
}

// WithNew sets the constructor used for every record.
func (s Shape[T]) WithNew(fn func() T) Shape[T] {
	s.New = fn
	return s
}

// Descriptors returns the field descriptors in declaration order.
func (s Shape[T]) Descriptors() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.Bindings))
	for i, b := range s.Bindings {
		out[i] = b.Descriptor
	}
	return out
}

func (s Shape[T]) newItem() T {
	if s.New != nil {
		return s.New()
	}
	var zero T
	return zero
}
