// Package sheet lets spreadsheet uploads run through the CSV pipeline. The
// first sheet of an .xlsx workbook is rendered as delimited text.
package sheet

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/csvrecord/internal/core"
)

// zipMagic starts every .xlsx file.
var zipMagic = []byte("PK\x03\x04")

// ErrUnbalancedQuotes is returned for a cell whose quote characters no
// rendering can carry through the tokenizer unchanged.
var ErrUnbalancedQuotes = errors.New("unbalanced quotes in cell")

// Reader returns r unchanged unless it holds an .xlsx workbook, in which case
// the first sheet comes back as text split by sep and quoted with quote. A
// zero sep or quote means ',' and '"'. converted reports which case applied.
func Reader(r io.Reader, sep, quote rune) (out io.Reader, converted bool, err error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zipMagic))
	if !bytes.Equal(head, zipMagic) {
		return br, false, nil
	}

	text, err := Render(br, sep, quote)
	if err != nil {
		return nil, false, err
	}
	return strings.NewReader(text), true, nil
}

// Render reads a workbook and renders its first sheet. Rows shorter than the
// header are padded; line breaks inside cells become spaces.
func Render(r io.Reader, sep, quote rune) (string, error) {
	if sep == 0 {
		sep = ','
	}
	if quote == 0 {
		quote = '"'
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return "", fmt.Errorf("open workbook: no sheets")
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return "", fmt.Errorf("read sheet %q: %w", name, err)
	}

	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}

	var b strings.Builder
	for r, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		for i, cell := range row {
			if i > 0 {
				b.WriteRune(sep)
			}
			text, ok := cellText(cell, sep, quote, i == len(row)-1)
			if !ok {
				ref, _ := excelize.CoordinatesToCellName(i+1, r+1)
				return "", fmt.Errorf("%w %s: %q", ErrUnbalancedQuotes, ref, cell)
			}
			b.WriteString(text)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// cellText renders one cell so the tokenizer reads it back as the cell's
// trimmed text. The tokenizer never unescapes quotes, so a cell is written
// bare or wrapped in one quote pair, whichever survives. Only the last cell
// of a row may leave the quote count odd. ok is false when neither form
// survives.
func cellText(cell string, sep, quote rune, last bool) (string, bool) {
	cell = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(cell)
	want := strings.TrimSpace(cell)
	q := string(quote)

	for _, text := range []string{cell, q + cell + q} {
		if !last && strings.Count(text, q)%2 != 0 {
			continue
		}
		if fields := core.SplitLine(text, sep, quote); len(fields) == 1 && fields[0] == want {
			return text, true
		}
	}
	return "", false
}
