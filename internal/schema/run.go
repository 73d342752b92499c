package schema

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvrecord/internal/core"
	"github.com/JonMunkholm/csvrecord/internal/sheet"
)

// Overrides replace a schema's source settings for one call. Zero values
// keep the schema's own settings.
type Overrides struct {
	Separator rune
	Quote     rune
	Charset   string
}

// Merge returns o with the non-zero settings of other applied on top.
func (o Overrides) Merge(other Overrides) Overrides {
	if other.Separator != 0 {
		o.Separator = other.Separator
	}
	if other.Quote != 0 {
		o.Quote = other.Quote
	}
	if other.Charset != "" {
		o.Charset = other.Charset
	}
	return o
}

// RunOptions configure Schema.Run.
type RunOptions struct {
	Overrides
	Source          string // Name shown in the report, usually a file name
	DiagnosticLimit int    // 0 keeps every diagnostic
	Logger          *slog.Logger
}

// Report is the outcome of one parse call, ready to be encoded as JSON.
type Report struct {
	RunID              uuid.UUID         `json:"run_id"`
	Shape              string            `json:"shape"`
	Source             string            `json:"source,omitempty"`
	Records            []Row             `json:"records"`
	Summary            core.Summary      `json:"summary"`
	Diagnostics        []core.Diagnostic `json:"diagnostics"`
	DiagnosticsDropped int               `json:"diagnostics_dropped,omitempty"`
	BytesRead          int64             `json:"bytes_read"`
	DurationMS         int64             `json:"duration_ms"`
	Stored             int64             `json:"stored,omitempty"`
}

// Failures returns the invalid-line and conversion diagnostics.
func (r *Report) Failures() []core.Diagnostic {
	var out []core.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Kind != core.KindRejected {
			out = append(out, d)
		}
	}
	return out
}

// Run parses r with the schema and collects every diagnostic. A run id
// already on ctx is reused. An .xlsx workbook in r is read from its first
// sheet, already decoded, so the charset setting does not apply to it.
func (s *Schema) Run(ctx context.Context, r io.Reader, opts RunOptions) (*Report, error) {
	cfg := s.SourceConfig(r, opts.Logger)
	if opts.Separator != 0 {
		cfg.Separator = opts.Separator
	}
	if opts.Quote != 0 {
		cfg.Quote = opts.Quote
	}
	if opts.Charset != "" {
		cfg.Charset = opts.Charset
	}

	in, converted, err := sheet.Reader(r, cfg.Separator, cfg.Quote)
	if err != nil {
		return nil, err
	}
	cfg.Reader = in
	if converted {
		cfg.Charset = ""
	}

	if _, ok := core.RunIDFromContext(ctx); !ok {
		ctx = core.ContextWithRunID(ctx, uuid.New())
	}

	col := core.NewCollector(opts.DiagnosticLimit)
	res, err := core.Run(ctx, cfg, s.Shape(), col.Callbacks())
	if err != nil {
		return nil, err
	}

	diags := col.Diagnostics()
	if diags == nil {
		diags = []core.Diagnostic{}
	}
	return &Report{
		RunID:              res.RunID,
		Shape:              s.Name,
		Source:             opts.Source,
		Records:            res.Items,
		Summary:            res.Summary,
		Diagnostics:        diags,
		DiagnosticsDropped: col.Dropped(),
		BytesRead:          res.BytesRead,
		DurationMS:         res.Duration.Milliseconds(),
	}, nil
}
