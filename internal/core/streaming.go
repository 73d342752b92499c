package core

// streaming.go turns a caller supplied byte source into logical lines.
//
// The reader stack, innermost first:
//
//	countingReader  counts raw bytes for the run summary
//	charset decoder golang.org/x/text, skipped for UTF-8
//	utf8Sanitizer   replaces invalid UTF-8 bytes with '?'
//	lineReader      bufio based, strips "\n" and "\r\n"
//
// Nothing here buffers more than one line plus the bufio window.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultCharset is used when a SourceConfig names none.
const DefaultCharset = "utf-8"

// ErrUnknownCharset is returned for a charset name htmlindex cannot resolve.
var ErrUnknownCharset = errors.New("unknown charset")

// lookupEncoding resolves a charset name such as "utf-8", "latin1" or
// "windows-1252". A nil encoding means the input is already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, name)
	}
	if enc == unicode.UTF8 || enc == encoding.Nop {
		return nil, nil
	}
	return enc, nil
}

// DecodeReader wraps r so that it yields valid UTF-8 text decoded from the
// named charset.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		r = enc.NewDecoder().Reader(r)
	}
	return newUTF8Sanitizer(r), nil
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams
// through. A multi-byte sequence split across reads is held back until the
// next read completes it.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if asciiOnly(data) {
		return n, err
	}
	return s.sanitize(data, err != nil), err
}

func asciiOnly(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns its new length. Unless final
// is set, a truncated rune at the end moves to s.pending.
func (s *utf8Sanitizer) sanitize(data []byte, final bool) int {
	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			if !final && !utf8.FullRune(data[i:]) {
				s.pending = append(s.pending, data[i:]...)
				return w
			}
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w
}

// countingReader counts the bytes read from the raw source.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// lineReader yields physical lines without their terminators.
type lineReader struct {
	br   *bufio.Reader
	line int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next line. It returns io.EOF once input is exhausted; a
// final line without a terminator is still returned first.
func (l *lineReader) next() (string, error) {
	s, err := l.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			l.line++
			return strings.TrimSuffix(s, "\r"), nil
		}
		return "", err
	}
	l.line++
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
