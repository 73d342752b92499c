package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvrecord/internal/config"
	"github.com/JonMunkholm/csvrecord/internal/schema"
)

const peopleYAML = `
name: people
fields:
  - name: name
  - name: age
    type: int
`

func testShape(t *testing.T) *schema.Schema {
	t.Helper()
	schemas, err := schema.Decode([]byte(peopleYAML))
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	require.NoError(t, schemas[0].Compile(schema.NewRegistry()))
	return schemas[0]
}

func testConfig(t *testing.T) config.WatchConfig {
	t.Helper()
	root := t.TempDir()
	cfg := config.WatchConfig{
		Dir:          filepath.Join(root, "inbox"),
		ProcessedDir: filepath.Join(root, "processed"),
		FailedDir:    filepath.Join(root, "failed"),
		Debounce:     20 * time.Millisecond,
	}
	for _, dir := range []string{cfg.Dir, cfg.ProcessedDir, cfg.FailedDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// recorder is a Handler that keeps every report.
type recorder struct {
	mu      sync.Mutex
	reports []*schema.Report
	err     error
}

func (r *recorder) handle(_ context.Context, rep *schema.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reports = append(r.reports, rep)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func TestProcessFile_Clean(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{}
	w := New(cfg, testShape(t), rec.handle, Options{})
	path := writeFile(t, cfg.Dir, "members.csv", "Name,Age\nAda,36\nBob,41\n")

	rep, err := w.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, "members.csv", rep.Source)
	assert.Equal(t, 2, rep.Summary.Created)
	assert.Equal(t, 1, rec.count())
	assert.False(t, exists(path))
	assert.True(t, exists(filepath.Join(cfg.ProcessedDir, "members.csv")))
	assert.False(t, exists(filepath.Join(cfg.FailedDir, "members - failed.csv")))
}

func TestProcessFile_WritesFailures(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, testShape(t), nil, Options{})
	path := writeFile(t, cfg.Dir, "members.csv", "Name,Age\nAda,36\nBob,forty\nCy\n")

	rep, err := w.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Summary.Created)

	data, err := os.ReadFile(filepath.Join(cfg.FailedDir, "members - failed.csv"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Status,Kind,Line\n")
	assert.Contains(t, content, "conversion_error")
	assert.Contains(t, content, "invalid_line")
	assert.Contains(t, content, "forty")
	assert.True(t, exists(filepath.Join(cfg.ProcessedDir, "members.csv")))
}

func TestProcessFile_FatalMovesToFailed(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, testShape(t), nil, Options{})
	path := writeFile(t, cfg.Dir, "other.csv", "Title,Year\nDune,1965\n")

	rep, err := w.ProcessFile(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Contains(t, err.Error(), "missing required columns")
	assert.False(t, exists(path))
	assert.True(t, exists(filepath.Join(cfg.FailedDir, "other.csv")))
}

func TestProcessFile_HandlerErrorKeepsFile(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{err: errors.New("connection refused")}
	w := New(cfg, testShape(t), rec.handle, Options{})
	path := writeFile(t, cfg.Dir, "members.csv", "Name,Age\nAda,36\n")

	_, err := w.ProcessFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, exists(path))
	assert.False(t, exists(filepath.Join(cfg.ProcessedDir, "members.csv")))
}

func TestProcessFile_Missing(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, testShape(t), nil, Options{})

	rep, err := w.ProcessFile(context.Background(), filepath.Join(cfg.Dir, "gone.csv"))
	assert.NoError(t, err)
	assert.Nil(t, rep)
}

func TestSweep(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{}
	w := New(cfg, testShape(t), rec.handle, Options{})
	writeFile(t, cfg.Dir, "a.csv", "Name,Age\nAda,36\n")
	writeFile(t, cfg.Dir, "b.CSV", "Name,Age\nBob,41\n")
	writeFile(t, cfg.Dir, "notes.txt", "not a csv")

	n, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, rec.count())
	assert.True(t, exists(filepath.Join(cfg.Dir, "notes.txt")))
}

func TestSweep_JoinsErrors(t *testing.T) {
	cfg := testConfig(t)
	w := New(cfg, testShape(t), nil, Options{})
	writeFile(t, cfg.Dir, "good.csv", "Name,Age\nAda,36\n")
	writeFile(t, cfg.Dir, "bad.csv", "")

	n, err := w.Sweep(context.Background())
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.csv")
}

func TestRun_PicksUpNewFiles(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{}
	w := New(cfg, testShape(t), rec.handle, Options{})
	writeFile(t, cfg.Dir, "early.csv", "Name,Age\nAda,36\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return exists(filepath.Join(cfg.ProcessedDir, "early.csv"))
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, cfg.Dir, "late.csv", "Name,Age\nBob,41\n")
	require.Eventually(t, func() bool {
		return exists(filepath.Join(cfg.ProcessedDir, "late.csv"))
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 2, rec.count())
}

func TestRun_BadSweepSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sweep = "every now and then"
	w := New(cfg, testShape(t), nil, Options{})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep schedule")
}

func TestFailedName(t *testing.T) {
	assert.Equal(t, "members - failed.csv", FailedName("members.csv"))
	assert.Equal(t, "export - failed.csv", FailedName("export.CSV"))
}

func TestIsInput(t *testing.T) {
	assert.True(t, isInput("/in/a.csv"))
	assert.True(t, isInput("b.CSV"))
	assert.True(t, isInput("book.xlsx"))
	assert.False(t, isInput("c.txt"))
	assert.False(t, isInput("a - failed.csv"))
}
