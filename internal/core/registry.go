package core

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ConvertFunc turns a trimmed, non-blank token into a value.
type ConvertFunc func(token string) (any, error)

// Converter is a named conversion function with its declared output type.
type Converter struct {
	Name string
	Out  reflect.Type
	Fn   ConvertFunc
}

// AssignableTo reports whether the converter's output can be stored in t.
func (c Converter) AssignableTo(t reflect.Type) bool {
	return c.Out != nil && t != nil && c.Out.AssignableTo(t)
}

// Registry maps converter names to converters. It is meant to be filled during
// setup and then frozen; reads are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Converter
	frozen bool
}

// DefaultRegistry is the process-wide registry used when a SourceConfig does
// not carry its own.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Converter)}
}

// Register adds c. It fails if the name is taken or the registry is frozen.
func (r *Registry) Register(c Converter) error {
	if c.Name == "" || c.Fn == nil || c.Out == nil {
		return fmt.Errorf("register converter %q: name, output type and function are required", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register converter %q: %w", c.Name, ErrRegistryFrozen)
	}
	if _, exists := r.byName[c.Name]; exists {
		return fmt.Errorf("register converter %q: %w", c.Name, ErrDuplicateConverter)
	}

	r.byName[c.Name] = c
	return nil
}

// Get returns the converter registered under name.
func (r *Registry) Get(name string) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byName[name]
	if !ok {
		return Converter{}, fmt.Errorf("%w for name: %s", ErrUnknownConverter, name)
	}
	return c, nil
}

// Freeze rejects every later Register call.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Names returns the registered converter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterConverter registers fn under name with output type V.
func RegisterConverter[V any](r *Registry, name string, fn func(string) (V, error)) error {
	return r.Register(Converter{
		Name: name,
		Out:  reflect.TypeFor[V](),
		Fn: func(token string) (any, error) {
			return fn(token)
		},
	})
}

// MustRegisterConverter is like RegisterConverter but panics on error.
// Use it from init functions and test setup.
func MustRegisterConverter[V any](r *Registry, name string, fn func(string) (V, error)) {
	if err := RegisterConverter(r, name, fn); err != nil {
		panic(err)
	}
}
