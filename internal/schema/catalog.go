package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvrecord/internal/core"
)

var (
	ErrUnknownShape = errors.New("unknown shape")
	ErrInvalidShape = errors.New("invalid shape")
)

// Catalog holds the compiled schemas by name. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	reg     *core.Registry
	schemas map[string]*Schema
}

// NewCatalog returns an empty catalog compiling against reg. A nil reg gets
// the built-in converters.
func NewCatalog(reg *core.Registry) *Catalog {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Catalog{
		reg:     reg,
		schemas: make(map[string]*Schema),
	}
}

// Load reads every *.yaml and *.yml file in dir into a new catalog and
// freezes reg.
func Load(dir string, reg *core.Registry) (*Catalog, error) {
	c := NewCatalog(reg)
	if err := c.LoadDir(dir); err != nil {
		return nil, err
	}
	c.reg.Freeze()
	return c, nil
}

// LoadDir adds the shape files in dir, in file name order.
func (c *Catalog) LoadDir(dir string) error {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("load shapes: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load shapes: %w", err)
		}
		schemas, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		for _, s := range schemas {
			if err := c.Add(s); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

// Decode reads every YAML document in data as a schema. Unknown keys are
// errors.
func Decode(data []byte) ([]*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []*Schema
	for {
		s := new(Schema)
		err := dec.Decode(s)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidShape, err)
		}
		out = append(out, s)
	}
}

// Add compiles s and stores it under its name.
func (c *Catalog) Add(s *Schema) error {
	if err := s.Compile(c.reg); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.schemas[s.Name]; exists {
		return fmt.Errorf("%w %q: defined twice", ErrInvalidShape, s.Name)
	}
	c.schemas[s.Name] = s
	return nil
}

// Get returns the schema registered under name.
func (c *Catalog) Get(name string) (*Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownShape, name)
	}
	return s, nil
}

// Names returns all schema names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every schema, sorted by name.
func (c *Catalog) All() []*Schema {
	names := c.Names()
	out := make([]*Schema, 0, len(names))

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range names {
		if s, ok := c.schemas[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Registry returns the converter registry the catalog compiles against.
func (c *Catalog) Registry() *core.Registry {
	return c.reg
}
