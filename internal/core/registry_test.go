package core

import (
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, RegisterConverter(reg, "upper", func(s string) (string, error) {
		return strings.ToUpper(s), nil
	}))

	c, err := reg.Get("upper")
	require.NoError(t, err)
	assert.Equal(t, "upper", c.Name)
	assert.Equal(t, reflect.TypeFor[string](), c.Out)

	v, err := c.Fn("abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", v)
}

func TestRegistry_DuplicateFails(t *testing.T) {
	reg := NewRegistry()
	fn := func(s string) (int, error) { return len(s), nil }

	require.NoError(t, RegisterConverter(reg, "len", fn))
	err := RegisterConverter(reg, "len", fn)

	assert.ErrorIs(t, err, ErrDuplicateConverter)
	assert.Panics(t, func() { MustRegisterConverter(reg, "len", fn) })
}

func TestRegistry_UnknownName(t *testing.T) {
	_, err := NewRegistry().Get("nope")

	assert.ErrorIs(t, err, ErrUnknownConverter)
	assert.Contains(t, err.Error(), "nope")
}

func TestRegistry_Freeze(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "a", func(s string) (string, error) { return s, nil })
	reg.Freeze()

	assert.True(t, reg.Frozen())
	err := RegisterConverter(reg, "b", func(s string) (string, error) { return s, nil })
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	_, err = reg.Get("a")
	assert.NoError(t, err)
}

func TestRegistry_RejectsIncompleteConverter(t *testing.T) {
	reg := NewRegistry()

	assert.Error(t, reg.Register(Converter{Name: "x"}))
	assert.Error(t, reg.Register(Converter{Out: typeString, Fn: func(string) (any, error) { return nil, nil }}))
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		MustRegisterConverter(reg, name, func(s string) (string, error) { return s, nil })
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	reg := NewRegistry()
	MustRegisterConverter(reg, "id", func(s string) (string, error) { return s, nil })
	reg.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := reg.Get("id"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
