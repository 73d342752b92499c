package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvrecord/internal/config"
)

const peopleYAML = `
name: people
fields:
  - name: name
  - name: age
    type: int
`

func setup(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	shapes := filepath.Join(dir, "shapes")
	require.NoError(t, os.MkdirAll(shapes, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shapes, "people.yaml"), []byte(peopleYAML), 0o644))

	cfg := &config.Config{
		Parse: config.ParseConfig{
			SchemaDir:     shapes,
			MaxConcurrent: 2,
		},
	}
	return cfg, dir
}

func decodeResults(t *testing.T, out []byte) []fileResult {
	t.Helper()
	var results []fileResult
	require.NoError(t, json.Unmarshal(out, &results), string(out))
	return results
}

func TestRunParse_Files(t *testing.T) {
	cfg, dir := setup(t)
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("Name,Age\nAda,36\nBob,x\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("Name;Age\nCy;51\n"), 0o644))

	var out bytes.Buffer
	err := runParse(context.Background(), cfg, []string{"-shape", "people", a}, nil, &out)
	require.NoError(t, err)

	results := decodeResults(t, out.Bytes())
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Report)
	assert.Equal(t, "a.csv", results[0].Report.Source)
	assert.Equal(t, 1, results[0].Report.Summary.Created)
	assert.Equal(t, 1, results[0].Report.Summary.ConversionErrors)

	out.Reset()
	err = runParse(context.Background(), cfg, []string{"-shape", "people", "-sep", ";", b}, nil, &out)
	require.NoError(t, err)
	results = decodeResults(t, out.Bytes())
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Report.Summary.Created)
}

func TestRunParse_KeepsFileOrder(t *testing.T) {
	cfg, dir := setup(t)
	var files []string
	for _, name := range []string{"one.csv", "two.csv", "three.csv"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("Name,Age\nAda,36\n"), 0o644))
		files = append(files, path)
	}

	var out bytes.Buffer
	require.NoError(t, runParse(context.Background(), cfg, append([]string{"-shape", "people"}, files...), nil, &out))

	results := decodeResults(t, out.Bytes())
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, files[i], r.File)
	}
}

func TestRunParse_Stdin(t *testing.T) {
	cfg, _ := setup(t)

	var out bytes.Buffer
	err := runParse(context.Background(), cfg, []string{"-shape", "people"}, strings.NewReader("Name,Age\nAda,36\n"), &out)
	require.NoError(t, err)

	results := decodeResults(t, out.Bytes())
	require.Len(t, results, 1)
	assert.Equal(t, "-", results[0].File)
	assert.Equal(t, "stdin", results[0].Report.Source)
}

func TestRunParse_FailedFile(t *testing.T) {
	cfg, dir := setup(t)
	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("Title\nDune\n"), 0o644))

	var out bytes.Buffer
	err := runParse(context.Background(), cfg, []string{"-shape", "people", bad}, nil, &out)
	require.ErrorIs(t, err, errFilesFailed)

	results := decodeResults(t, out.Bytes())
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "CSV002", results[0].Error.Code)
	assert.Contains(t, results[0].Detail, "missing required columns")
	assert.Nil(t, results[0].Report)
}

func TestRunParse_Usage(t *testing.T) {
	cfg, _ := setup(t)

	err := runParse(context.Background(), cfg, nil, nil, &bytes.Buffer{})
	assert.EqualError(t, err, "-shape is required")

	err = runParse(context.Background(), cfg, []string{"-shape", "nope"}, nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown shape")

	err = runParse(context.Background(), cfg, []string{"-shape", "people", "-sep", "ab"}, nil, &bytes.Buffer{})
	require.Error(t, err)

	err = runParse(context.Background(), cfg, []string{"-shape", "people", "-store"}, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, config.ErrNoDatabase)
}

func TestRunShapes(t *testing.T) {
	cfg, _ := setup(t)

	var out bytes.Buffer
	require.NoError(t, runShapes(cfg, &out))
	assert.Contains(t, out.String(), `"name": "people"`)
}
