package core

// tokenizer.go splits one logical CSV line into field values.
//
// The splitter is deliberately forgiving: it never fails. A separator only
// counts as a field boundary while the number of quote characters seen so far
// is even, so unbalanced quoting simply changes which separators are honoured.

import "strings"

// Default separator and quote characters.
const (
	DefaultSeparator = ','
	DefaultQuote     = '"'
)

// LineSplitter turns one line into its ordered, trimmed, unquoted fields.
type LineSplitter func(line string) []string

// NewLineSplitter returns a LineSplitter bound to the given separator and quote.
func NewLineSplitter(sep, quote rune) LineSplitter {
	return func(line string) []string {
		return SplitLine(line, sep, quote)
	}
}

// SplitLine splits line on sep, ignoring separators inside quoted spans.
// Every field is trimmed and stripped of one enclosing quote pair.
// An empty line yields a single empty field.
func SplitLine(line string, sep, quote rune) []string {
	fields := make([]string, 0, 8)
	quotes := 0
	start := 0

	for i, r := range line {
		switch r {
		case quote:
			quotes++
		case sep:
			if quotes%2 == 0 {
				fields = append(fields, trimQuotes(line[start:i], quote))
				start = i + len(string(sep))
			}
		}
	}

	return append(fields, trimQuotes(line[start:], quote))
}

// trimQuotes trims whitespace, removes one surrounding quote pair if present,
// then trims again.
func trimQuotes(s string, quote rune) string {
	s = strings.TrimSpace(s)
	q := string(quote)
	if len(s) > len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
		s = strings.TrimSpace(s[len(q) : len(s)-len(q)])
	}
	return s
}
