// Command csvrecord parses CSV files into typed records using the shapes in
// the schema directory.
//
//	csvrecord parse -shape NAME [-store] [-table T] [files...]
//	csvrecord shapes
//	csvrecord serve
//	csvrecord watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvrecord/internal/config"
	"github.com/JonMunkholm/csvrecord/internal/core"
	"github.com/JonMunkholm/csvrecord/internal/logging"
	"github.com/JonMunkholm/csvrecord/internal/schema"
	"github.com/JonMunkholm/csvrecord/internal/sink"
	"github.com/JonMunkholm/csvrecord/internal/watch"
	"github.com/JonMunkholm/csvrecord/internal/web"
)

const usage = `usage: csvrecord <command> [flags]

commands:
  parse    parse CSV files (or stdin) and print the reports as JSON
  shapes   list the loaded shapes
  serve    run the HTTP API
  watch    parse files dropped into the inbox directory
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays clean JSON
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if envErr == nil {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}
	slog.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "parse":
		err = runParse(ctx, cfg, args, os.Stdin, os.Stdout)
	case "shapes":
		err = runShapes(cfg, os.Stdout)
	case "serve":
		err = runServe(ctx, cfg)
	case "watch":
		err = runWatch(ctx, cfg)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error(cmd+" failed", "error", err, "code", core.MapError(err).Code)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		os.Exit(1)
	}
}

func loadCatalog(dir string) (*schema.Catalog, error) {
	cat, err := schema.Load(dir, schema.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("load shapes from %s: %w", dir, err)
	}
	slog.Info("shapes loaded", "dir", dir, "count", len(cat.Names()))
	return cat, nil
}

// fileResult is one entry of the parse output.
type fileResult struct {
	File   string            `json:"file"`
	Report *schema.Report    `json:"report,omitempty"`
	Error  *core.UserMessage `json:"error,omitempty"`
	Detail string            `json:"detail,omitempty"`
}

var errFilesFailed = errors.New("some files failed")

func runParse(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	schemaDir := fs.String("schema-dir", cfg.Parse.SchemaDir, "directory of shape files")
	shapeName := fs.String("shape", "", "shape to parse with (required)")
	store := fs.Bool("store", false, "write the records to the configured database")
	table := fs.String("table", "", "target table; defaults to the shape's table")
	sep := fs.String("sep", "", "field separator override")
	quote := fs.String("quote", "", "quote character override")
	charset := fs.String("charset", cfg.Parse.Charset, "input charset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *shapeName == "" {
		return errors.New("-shape is required")
	}

	overrides := schema.Overrides{Separator: cfg.Parse.Separator, Quote: cfg.Parse.Quote, Charset: *charset}
	var flagOverrides schema.Overrides
	var err error
	if flagOverrides.Separator, err = schema.ParseRune(*sep); err != nil {
		return fmt.Errorf("-sep: %w", err)
	}
	if flagOverrides.Quote, err = schema.ParseRune(*quote); err != nil {
		return fmt.Errorf("-quote: %w", err)
	}
	overrides = overrides.Merge(flagOverrides)

	cat, err := loadCatalog(*schemaDir)
	if err != nil {
		return err
	}
	sch, err := cat.Get(*shapeName)
	if err != nil {
		return err
	}

	var handle watch.Handler
	if *store {
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		target := *table
		if target == "" {
			target = sch.Table
		}
		if target == "" {
			return fmt.Errorf("shape %q has no table, pass -table", sch.Name)
		}
		snk, err := sink.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer snk.Close()
		handle = watch.SinkHandler(snk, target, sch.Columns())
	}

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Parse.MaxConcurrent > 0 {
		g.SetLimit(cfg.Parse.MaxConcurrent)
	}
	for i, file := range files {
		g.Go(func() error {
			results[i] = parseFile(gctx, sch, file, stdin, overrides, cfg.Parse.DiagnosticLimit, handle)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return errFilesFailed
		}
	}
	return nil
}

func parseFile(ctx context.Context, sch *schema.Schema, file string, stdin io.Reader, overrides schema.Overrides, limit int, handle watch.Handler) fileResult {
	res := fileResult{File: file}
	fail := func(err error) fileResult {
		ue := core.NewUserError(err)
		res.Error = &ue.User
		res.Detail = ue.Technical.Error()
		logging.WithFields(ctx, "file", file).Error("parse failed", "error", err, "code", ue.User.Code)
		return res
	}

	var r io.Reader = stdin
	name := "stdin"
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		r = f
		name = filepath.Base(file)
	}

	rep, err := sch.Run(ctx, r, schema.RunOptions{
		Overrides:       overrides,
		Source:          name,
		DiagnosticLimit: limit,
		Logger:          logging.WithFields(ctx, "file", file, "shape", sch.Name),
	})
	if err != nil {
		return fail(err)
	}
	if handle != nil {
		if err := handle(ctx, rep); err != nil {
			return fail(err)
		}
	}
	res.Report = rep
	return res
}

func runShapes(cfg *config.Config, stdout io.Writer) error {
	cat, err := loadCatalog(cfg.Parse.SchemaDir)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cat.All())
}

func runServe(ctx context.Context, cfg *config.Config) error {
	cat, err := loadCatalog(cfg.Parse.SchemaDir)
	if err != nil {
		return err
	}

	var snk sink.Sink
	if cfg.Database.URL != "" {
		store, err := sink.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		snk = store
		slog.Info("connected to database")
	} else {
		slog.Info("no database configured, store=true is disabled")
	}

	server := web.NewServer(cat, cfg, snk)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Watching(); err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.Parse.SchemaDir)
	if err != nil {
		return err
	}
	sch, err := cat.Get(cfg.Watch.Shape)
	if err != nil {
		return err
	}

	var handle watch.Handler
	if cfg.Database.URL != "" {
		table := cfg.Watch.Table
		if table == "" {
			table = sch.Table
		}
		if table == "" {
			return fmt.Errorf("shape %q has no table, set WATCH_TABLE", sch.Name)
		}
		snk, err := sink.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer snk.Close()
		handle = watch.SinkHandler(snk, table, sch.Columns())
	}

	w := watch.New(cfg.Watch, sch, handle, watch.Options{
		Overrides: schema.Overrides{
			Separator: cfg.Parse.Separator,
			Quote:     cfg.Parse.Quote,
			Charset:   cfg.Parse.Charset,
		},
		DiagnosticLimit: cfg.Parse.DiagnosticLimit,
		Logger:          slog.Default(),
	})
	return w.Run(ctx)
}
