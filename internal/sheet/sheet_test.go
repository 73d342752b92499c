package sheet

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/csvrecord/internal/core"
)

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReader_Workbook(t *testing.T) {
	data := workbook(t, [][]any{
		{"Name", "City", "Note"},
		{"Ada", "London, UK", "say \"hi\""},
		{"Bob", "Paris"},
	})

	r, converted, err := Reader(bytes.NewReader(data), 0, 0)
	require.NoError(t, err)
	assert.True(t, converted)

	text, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Name,City,Note\n"+
		"Ada,\"London, UK\",say \"hi\"\n"+
		"Bob,Paris,\n", string(text))
}

func TestReader_Separator(t *testing.T) {
	data := workbook(t, [][]any{
		{"a", "b"},
		{"1;2", "line\nbreak"},
	})

	text, err := Render(bytes.NewReader(data), ';', '\'')
	require.NoError(t, err)
	assert.Equal(t, "a;b\n'1;2';line break\n", text)
}

func TestReader_PassesCSVThrough(t *testing.T) {
	r, converted, err := Reader(strings.NewReader("Name\nAda\n"), 0, 0)
	require.NoError(t, err)
	assert.False(t, converted)

	text, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Name\nAda\n", string(text))
}

func TestReader_Empty(t *testing.T) {
	r, converted, err := Reader(strings.NewReader(""), 0, 0)
	require.NoError(t, err)
	assert.False(t, converted)

	text, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestReader_BrokenWorkbook(t *testing.T) {
	_, _, err := Reader(strings.NewReader("PK\x03\x04garbage"), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open workbook")
}

func TestRender_QuotedCellsSurviveTokenizer(t *testing.T) {
	row := []any{`say "hi"`, `"boxed"`, `a "b, c" d`, `x",y"`, `5" pipe`}
	data := workbook(t, [][]any{
		{"a", "b", "c", "d", "e"},
		row,
	})

	text, err := Render(bytes.NewReader(data), 0, 0)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	require.Len(t, lines, 2)
	got := core.SplitLine(lines[1], ',', '"')
	assert.Equal(t, []string{`say "hi"`, `"boxed"`, `a "b, c" d`, `x",y"`, `5" pipe`}, got)
}

func TestRender_OtherSeparatorAndQuote(t *testing.T) {
	data := workbook(t, [][]any{
		{"a", "b"},
		{"it's; fine'", "'x'"},
	})

	text, err := Render(bytes.NewReader(data), ';', '\'')
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"it's; fine'", "'x'"}, core.SplitLine(lines[1], ';', '\''))
}

func TestRender_UnbalancedQuotes(t *testing.T) {
	data := workbook(t, [][]any{
		{"size", "name"},
		{`5" pipe`, "hose"},
	})

	_, err := Render(bytes.NewReader(data), 0, 0)
	require.ErrorIs(t, err, ErrUnbalancedQuotes)
	assert.Contains(t, err.Error(), "A2")
}
