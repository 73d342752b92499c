package core

// timestamp.go parses dates and date-times with DateTimeFormatter-style
// patterns such as "dd/MM/yyyy" or "yyyy-[M][MM]-[d][dd] [H][HH]:mm:ss".
//
// Each pattern is compiled once into one or more Go reference layouts.
// Optional sections ("[...]") expand into alternatives, so "[d][dd]" becomes
// layouts for one- and two-digit days. Several patterns can be given
// separated by '|'; they are tried in order and the first match wins. When
// none matches, the error of the LAST pattern is returned.

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
)

// maxLayoutAlternatives bounds the expansion of optional sections.
const maxLayoutAlternatives = 256

// goLayout is one concrete Go layout produced from a pattern.
type goLayout struct {
	value        string
	hasTime      bool
	twoDigitYear bool
}

// compiledPattern is a pattern with all optional sections expanded.
type compiledPattern struct {
	source  string
	layouts []goLayout
}

// hasTime reports whether any alternative carries a time of day.
func (p *compiledPattern) hasTime() bool {
	for _, l := range p.layouts {
		if l.hasTime {
			return true
		}
	}
	return false
}

var patternCache sync.Map // string -> *compiledPattern

// PatternError reports a token no layout of a pattern could parse.
type PatternError struct {
	Pattern string
	Token   string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("text %q could not be parsed with pattern %q: %v", e.Token, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

var errNoTimeFields = errors.New("pattern has no time-of-day fields")

// splitFormats splits a pipe-separated pattern list.
func splitFormats(formats string) []string {
	return strings.Split(formats, "|")
}

// compileFormats compiles every pattern of a pipe-separated list.
func compileFormats(formats string) ([]*compiledPattern, error) {
	if strings.TrimSpace(formats) == "" {
		return nil, fmt.Errorf("%w: no date format provided", ErrInvalidPattern)
	}
	parts := splitFormats(formats)
	out := make([]*compiledPattern, 0, len(parts))
	for _, p := range parts {
		cp, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// compilePattern translates one pattern, caching the result.
func compilePattern(pattern string) (*compiledPattern, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*compiledPattern), nil
	}

	nodes, rest, err := parsePatternNodes(pattern, 0, false)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	if rest != len(pattern) {
		return nil, fmt.Errorf("%w %q: unbalanced ']'", ErrInvalidPattern, pattern)
	}

	alts, err := expandNodes(nodes)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}

	cp := &compiledPattern{source: pattern}
	seen := make(map[string]bool, len(alts))
	for _, l := range alts {
		if l.value == "" || seen[l.value] {
			continue
		}
		seen[l.value] = true
		cp.layouts = append(cp.layouts, l)
	}
	if len(cp.layouts) == 0 {
		return nil, fmt.Errorf("%w %q: pattern is empty", ErrInvalidPattern, pattern)
	}

	patternCache.Store(pattern, cp)
	return cp, nil
}

// patternNode is either a translated chunk or an optional section.
type patternNode struct {
	chunk    goLayout
	optional []patternNode
	isOpt    bool
}

// parsePatternNodes reads nodes starting at i until the end of the pattern or,
// inside an optional section, the closing ']'. It returns the index after the
// consumed text.
func parsePatternNodes(p string, i int, inOptional bool) ([]patternNode, int, error) {
	var nodes []patternNode

	for i < len(p) {
		c := p[i]
		switch {
		case c == '[':
			children, next, err := parsePatternNodes(p, i+1, true)
			if err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, patternNode{isOpt: true, optional: children})
			i = next
		case c == ']':
			if !inOptional {
				return nodes, i, nil
			}
			return nodes, i + 1, nil
		case c == '\'':
			lit, next, err := readQuoted(p, i)
			if err != nil {
				return nil, 0, err
			}
			if err := checkLiteral(lit); err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, patternNode{chunk: goLayout{value: lit}})
			i = next
		case isPatternLetter(c):
			j := i
			for j < len(p) && p[j] == c {
				j++
			}
			chunk, err := translateLetter(c, j-i, nodes)
			if err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, patternNode{chunk: chunk})
			i = j
		default:
			_, size := utf8.DecodeRuneInString(p[i:])
			lit := p[i : i+size]
			if err := checkLiteral(lit); err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, patternNode{chunk: goLayout{value: lit}})
			i += size
		}
	}

	if inOptional {
		return nil, 0, fmt.Errorf("unterminated optional section")
	}
	return nodes, i, nil
}

func isPatternLetter(c byte) bool {
	return c < unicode.MaxASCII && unicode.IsLetter(rune(c))
}

// readQuoted reads a quoted literal starting at the opening quote. Two
// consecutive quotes stand for one literal quote.
func readQuoted(p string, i int) (string, int, error) {
	if i+1 < len(p) && p[i+1] == '\'' {
		return "'", i + 2, nil
	}
	var b strings.Builder
	j := i + 1
	for j < len(p) {
		if p[j] == '\'' {
			if j+1 < len(p) && p[j+1] == '\'' {
				b.WriteByte('\'')
				j += 2
				continue
			}
			return b.String(), j + 1, nil
		}
		b.WriteByte(p[j])
		j++
	}
	return "", 0, fmt.Errorf("unterminated quoted literal")
}

// goReservedLiterals are sequences Go would read as layout elements.
var goReservedLiterals = []string{"Jan", "Mon", "MST", "PM", "pm", "_2", "Z07", "-07"}

// checkLiteral rejects literal text a Go layout cannot carry verbatim.
func checkLiteral(lit string) error {
	for _, r := range lit {
		if unicode.IsDigit(r) {
			return fmt.Errorf("literal %q contains digits", lit)
		}
	}
	for _, reserved := range goReservedLiterals {
		if strings.Contains(lit, reserved) {
			return fmt.Errorf("literal %q cannot be expressed", lit)
		}
	}
	return nil
}

// translateLetter maps one run of a pattern letter to a Go layout chunk.
// prev is consulted for fraction-of-second runs, which Go expresses as
// ".000" and therefore need a preceding '.' or ','.
func translateLetter(c byte, n int, prev []patternNode) (goLayout, error) {
	switch c {
	case 'y', 'u':
		if n == 2 {
			return goLayout{value: "06", twoDigitYear: true}, nil
		}
		return goLayout{value: "2006"}, nil
	case 'M', 'L':
		switch n {
		case 1:
			return goLayout{value: "1"}, nil
		case 2:
			return goLayout{value: "01"}, nil
		case 3:
			return goLayout{value: "Jan"}, nil
		default:
			return goLayout{value: "January"}, nil
		}
	case 'd':
		switch n {
		case 1:
			return goLayout{value: "2"}, nil
		case 2:
			return goLayout{value: "02"}, nil
		}
	case 'D':
		if n == 3 {
			return goLayout{value: "002"}, nil
		}
	case 'E':
		if n == 4 {
			return goLayout{value: "Monday"}, nil
		}
		return goLayout{value: "Mon"}, nil
	case 'H':
		if n <= 2 {
			return goLayout{value: "15", hasTime: true}, nil
		}
	case 'h':
		switch n {
		case 1:
			return goLayout{value: "3", hasTime: true}, nil
		case 2:
			return goLayout{value: "03", hasTime: true}, nil
		}
	case 'm':
		switch n {
		case 1:
			return goLayout{value: "4", hasTime: true}, nil
		case 2:
			return goLayout{value: "04", hasTime: true}, nil
		}
	case 's':
		switch n {
		case 1:
			return goLayout{value: "5", hasTime: true}, nil
		case 2:
			return goLayout{value: "05", hasTime: true}, nil
		}
	case 'S':
		if len(prev) > 0 && !prev[len(prev)-1].isOpt {
			last := prev[len(prev)-1].chunk.value
			if strings.HasSuffix(last, ".") || strings.HasSuffix(last, ",") {
				return goLayout{value: strings.Repeat("0", n), hasTime: true}, nil
			}
		}
		return goLayout{}, fmt.Errorf("fraction of second must follow '.' or ','")
	case 'a':
		return goLayout{value: "PM", hasTime: true}, nil
	case 'z':
		return goLayout{value: "MST"}, nil
	case 'Z':
		if n == 5 {
			return goLayout{value: "-07:00"}, nil
		}
		return goLayout{value: "-0700"}, nil
	case 'X':
		switch n {
		case 1:
			return goLayout{value: "Z07"}, nil
		case 2:
			return goLayout{value: "Z0700"}, nil
		default:
			return goLayout{value: "Z07:00"}, nil
		}
	case 'x':
		switch n {
		case 1:
			return goLayout{value: "-07"}, nil
		case 2:
			return goLayout{value: "-0700"}, nil
		default:
			return goLayout{value: "-07:00"}, nil
		}
	}
	return goLayout{}, fmt.Errorf("unsupported pattern letters %q", strings.Repeat(string(c), n))
}

// expandNodes returns every concrete layout a node sequence can produce.
// Alternatives that include optional sections come before those that omit them.
func expandNodes(nodes []patternNode) ([]goLayout, error) {
	alts := []goLayout{{}}
	for _, n := range nodes {
		var options []goLayout
		if n.isOpt {
			inner, err := expandNodes(n.optional)
			if err != nil {
				return nil, err
			}
			options = append(inner, goLayout{})
		} else {
			options = []goLayout{n.chunk}
		}

		next := make([]goLayout, 0, len(alts)*len(options))
		for _, a := range alts {
			for _, o := range options {
				next = append(next, goLayout{
					value:        a.value + o.value,
					hasTime:      a.hasTime || o.hasTime,
					twoDigitYear: a.twoDigitYear || o.twoDigitYear,
				})
			}
		}
		if len(next) > maxLayoutAlternatives {
			return nil, fmt.Errorf("too many optional combinations")
		}
		alts = next
	}
	return alts, nil
}

// parse parses token with the first layout of p that accepts it.
// requireTime skips layouts that carry no time of day.
func (p *compiledPattern) parse(token string, requireTime bool) (time.Time, error) {
	var firstErr error
	for _, l := range p.layouts {
		if requireTime && !l.hasTime {
			continue
		}
		t, err := time.Parse(l.value, token)
		if err == nil {
			if l.twoDigitYear && t.Year() < 2000 {
				t = t.AddDate(100, 0, 0)
			}
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = errNoTimeFields
	}
	return time.Time{}, &PatternError{Pattern: p.source, Token: token, Err: firstErr}
}

// hasDigit reports whether s contains at least one decimal digit.
func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// parseTimestamp tries every pattern of formats in order.
// A token of length <= 1 or without any digit is treated as "no date" and
// yields ok == false without error.
func parseTimestamp(token, formats string, requireTime bool) (t time.Time, ok bool, err error) {
	if len(token) <= 1 || !hasDigit(token) {
		return time.Time{}, false, nil
	}

	patterns, err := compileFormats(formats)
	if err != nil {
		return time.Time{}, false, err
	}

	var lastErr error
	for _, p := range patterns {
		t, err := p.parse(token, requireTime)
		if err == nil {
			return t, true, nil
		}
		lastErr = err
	}
	return time.Time{}, false, lastErr
}

// ParseDate parses token as a calendar date using a pipe-separated pattern
// list. Patterns may carry a time of day; it is discarded.
// A blank or digit-free token returns an invalid pgtype.Date and no error.
func ParseDate(token, formats string) (pgtype.Date, error) {
	t, ok, err := parseTimestamp(strings.TrimSpace(token), formats, false)
	if err != nil || !ok {
		return pgtype.Date{Valid: false}, err
	}
	return pgtype.Date{
		Time:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Valid: true,
	}, nil
}

// ParseDateTime parses token as a date with time of day. Only patterns with
// time-of-day fields can match.
// A blank or digit-free token returns the zero time, false and no error.
func ParseDateTime(token, formats string) (time.Time, bool, error) {
	return parseTimestamp(strings.TrimSpace(token), formats, true)
}

// validateFormats checks formats at setup time. Date-time targets need at
// least one pattern with time-of-day fields.
func validateFormats(formats string, requireTime bool) error {
	patterns, err := compileFormats(formats)
	if err != nil {
		return err
	}
	if !requireTime {
		return nil
	}
	for _, p := range patterns {
		if p.hasTime() {
			return nil
		}
	}
	return fmt.Errorf("%w %q: %v", ErrInvalidPattern, formats, errNoTimeFields)
}
