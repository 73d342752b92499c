package core

import (
	"fmt"
	"strings"
	"unicode"
)

// NotFound is the index Lookup reports for a column missing from the header.
const NotFound = -1

// NormalizeFunc transforms a column name before it is stored or compared.
type NormalizeFunc func(string) string

// NormalizeColumnName is the default column-name normalizer: it lower-cases
// the name and removes every whitespace character. Applying it twice is a no-op.
func NormalizeColumnName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// withQuoteTrim wraps normalize so a surrounding quote pair is stripped first.
func withQuoteTrim(quote rune, normalize NormalizeFunc) NormalizeFunc {
	return func(s string) string {
		return normalize(trimQuotes(s, quote))
	}
}

// Header holds the normalized column names of a CSV source, in file order.
// Duplicate names are kept; lookups resolve to the first occurrence.
type Header struct {
	line      string
	names     []string
	normalize NormalizeFunc
}

// NewHeader splits line and normalizes every column name.
func NewHeader(line string, normalize NormalizeFunc, split LineSplitter) *Header {
	raw := split(line)
	names := make([]string, len(raw))
	for i, name := range raw {
		names[i] = normalize(name)
	}
	return &Header{
		line:      line,
		names:     names,
		normalize: normalize,
	}
}

// Names returns a copy of the normalized column names.
func (h *Header) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns the number of columns.
func (h *Header) Len() int {
	return len(h.names)
}

// Index returns the position of name, normalized the same way as the header.
func (h *Header) Index(name string) (int, bool) {
	key := h.normalize(name)
	for i, n := range h.names {
		if n == key {
			return i, true
		}
	}
	return NotFound, false
}

// Lookup returns the index of every name, or NotFound where a name is absent.
func (h *Header) Lookup(names ...string) []int {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i], _ = h.Index(name)
	}
	return idx
}

// LookupRequired returns the index of every name. If any name is absent it
// returns a *MissingColumnsError listing all of them, in query order.
func (h *Header) LookupRequired(names ...string) ([]int, error) {
	idx := make([]int, 0, len(names))
	var missing []string

	for _, name := range names {
		i, ok := h.Index(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		idx = append(idx, i)
	}

	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing, Header: h.String()}
	}
	return idx, nil
}

func (h *Header) String() string {
	return fmt.Sprintf("Header(%s)", h.line)
}
