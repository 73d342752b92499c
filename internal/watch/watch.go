// Package watch parses CSV files dropped into an inbox directory.
//
// Every *.csv or *.xlsx file is parsed with one shape and handed to a Handler. Lines
// that failed are written next to the run as "<name> - failed.csv" in the
// failed directory, and the source moves to the processed directory. Files
// that cannot be parsed at all move to the failed directory unchanged; files
// whose handler fails stay in the inbox for the next sweep.
package watch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/csvrecord/internal/config"
	"github.com/JonMunkholm/csvrecord/internal/core"
	"github.com/JonMunkholm/csvrecord/internal/schema"
	"github.com/JonMunkholm/csvrecord/internal/sink"
)

// DefaultDebounce is the quiet period used when the config leaves it zero.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the report of every parsed file.
type Handler func(ctx context.Context, rep *schema.Report) error

// SinkHandler copies the records of every report into table.
func SinkHandler(snk sink.Sink, table string, columns []string) Handler {
	return func(ctx context.Context, rep *schema.Report) error {
		n, err := snk.Write(ctx, table, columns, rep.Records)
		if err != nil {
			return fmt.Errorf("store %s into %s: %w", rep.Source, table, err)
		}
		rep.Stored = n
		return nil
	}
}

// Options tune how files are parsed.
type Options struct {
	Overrides       schema.Overrides
	DiagnosticLimit int
	Logger          *slog.Logger
}

// Watcher processes the inbox of one shape.
type Watcher struct {
	cfg    config.WatchConfig
	shape  *schema.Schema
	handle Handler
	opts   Options
	log    *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// New returns a watcher over cfg.Dir. A nil handle only parses and moves
// files.
func New(cfg config.WatchConfig, sch *schema.Schema, handle Handler, opts Options) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		shape:    sch,
		handle:   handle,
		opts:     opts,
		log:      logger.With("watch_dir", cfg.Dir, "shape", sch.Name),
		inflight: make(map[string]bool),
	}
}

// Run sweeps the inbox once, then processes new files until ctx ends. A
// non-empty cfg.Sweep also re-scans the inbox on that cron schedule.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.Dir, w.cfg.ProcessedDir, w.cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	if w.cfg.Sweep != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.cfg.Sweep, func() { w.sweepAndLog(ctx) }); err != nil {
			return fmt.Errorf("sweep schedule %q: %w", w.cfg.Sweep, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	w.sweepAndLog(ctx)
	w.log.Info("watching inbox", "debounce", w.cfg.Debounce, "sweep", w.cfg.Sweep)

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			if t.Stop() {
				w.wg.Done()
			}
		}
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isInput(event.Name) {
				continue
			}

			path := event.Name
			if t, exists := timers[path]; exists && t.Stop() {
				w.wg.Done()
			}
			w.wg.Add(1)
			timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
				defer w.wg.Done()
				if _, err := w.ProcessFile(ctx, path); err != nil {
					w.log.Error("process file failed", "file", filepath.Base(path), "error", err)
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) sweepAndLog(ctx context.Context) {
	n, err := w.Sweep(ctx)
	if err != nil {
		w.log.Error("sweep failed", "processed", n, "error", err)
		return
	}
	if n > 0 {
		w.log.Info("sweep finished", "processed", n)
	}
}

// Sweep processes every input file currently in the inbox and returns how
// many were processed. Per-file errors are joined.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("read inbox: %w", err)
	}

	var errs []error
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !isInput(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rep, err := w.ProcessFile(ctx, filepath.Join(w.cfg.Dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rep != nil {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// ProcessFile parses one file. It returns a nil report without error when
// the file is gone or another call is already processing it.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (*schema.Report, error) {
	if !w.claim(path) {
		return nil, nil
	}
	defer w.release(path)

	name := filepath.Base(path)
	logger := w.log.With("file", name)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	rep, err := w.shape.Run(ctx, f, schema.RunOptions{
		Overrides:       w.opts.Overrides,
		Source:          name,
		DiagnosticLimit: w.opts.DiagnosticLimit,
		Logger:          logger,
	})
	f.Close()
	if err != nil {
		if ctx.Err() == nil {
			if mvErr := move(path, w.cfg.FailedDir); mvErr != nil {
				logger.Error("move unparsable file failed", "error", mvErr)
			}
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	if w.handle != nil {
		if err := w.handle(ctx, rep); err != nil {
			return nil, err
		}
	}

	if failures := rep.Failures(); len(failures) > 0 {
		failedPath := filepath.Join(w.cfg.FailedDir, FailedName(name))
		if err := writeFailures(failedPath, failures); err != nil {
			return nil, fmt.Errorf("write failure file: %w", err)
		}
		logger.Warn("lines failed", "failed", len(failures), "dropped", rep.DiagnosticsDropped, "report", failedPath)
	}

	if err := move(path, w.cfg.ProcessedDir); err != nil {
		return nil, err
	}

	logger.Info("file processed",
		"run_id", rep.RunID.String(),
		"created", rep.Summary.Created,
		"stored", rep.Stored,
	)
	return rep, nil
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[path] {
		return false
	}
	w.inflight[path] = true
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, path)
}

// FailedName returns the failure report name for a source file.
func FailedName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + " - failed.csv"
}

func isInput(name string) bool {
	base := filepath.Base(name)
	if strings.HasSuffix(base, " - failed.csv") {
		return false
	}
	ext := filepath.Ext(base)
	return strings.EqualFold(ext, ".csv") || strings.EqualFold(ext, ".xlsx")
}

// writeFailures writes one row per diagnostic: the reason, the kind and the
// raw line.
func writeFailures(path string, diags []core.Diagnostic) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	cw.Write([]string{"Status", "Kind", "Line"})
	for _, d := range diags {
		status := d.Reason
		if status == "" {
			status = string(d.Kind)
		}
		cw.Write([]string{status, string(d.Kind), d.Text})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func move(path, dir string) error {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("move %s: %w", filepath.Base(path), err)
	}
	return nil
}
