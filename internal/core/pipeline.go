package core

// pipeline.go drives one parse call: read the header, classify every
// non-blank line, collect the successes and report the rest.
//
// Classification per line:
//
//	tokenize -> field count check -> keep predicate -> convert all fields
//
// and ends in exactly one Outcome. Setup problems (bad descriptors, missing
// required columns, unreadable source) abort the call instead.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContextCheckInterval is how many lines are classified between checks of
// the caller's context.
const ContextCheckInterval = 1000

// KeepFunc decides whether a well-formed record is converted or rejected.
type KeepFunc func(h *Header, r Record) bool

// KeepAll keeps every record.
func KeepAll(*Header, Record) bool { return true }

// FixLine strips a leading byte-order mark or zero-width space.
func FixLine(line string) string {
	return strings.TrimLeft(line, "\uFEFF\u200B")
}

// SourceConfig describes a byte source and how to read it.
// Zero values select the defaults.
type SourceConfig struct {
	Reader              io.Reader
	Charset             string              // Default "utf-8"
	Separator           rune                // Default ','
	Quote               rune                // Default '"'
	FixLine             func(string) string // Default FixLine
	Keep                KeepFunc            // Default KeepAll
	NormalizeColumnName NormalizeFunc       // Default NormalizeColumnName
	Registry            *Registry           // Default DefaultRegistry
	Logger              *slog.Logger        // Default slog.Default()
}

func (c SourceConfig) withDefaults() SourceConfig {
	if c.Charset == "" {
		c.Charset = DefaultCharset
	}
	if c.Separator == 0 {
		c.Separator = DefaultSeparator
	}
	if c.Quote == 0 {
		c.Quote = DefaultQuote
	}
	if c.FixLine == nil {
		c.FixLine = FixLine
	}
	if c.Keep == nil {
		c.Keep = KeepAll
	}
	if c.NormalizeColumnName == nil {
		c.NormalizeColumnName = NormalizeColumnName
	}
	if c.Registry == nil {
		c.Registry = DefaultRegistry
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Result is everything a parse call produced.
type Result[T any] struct {
	RunID     uuid.UUID
	Items     []T
	Summary   Summary
	BytesRead int64
	Duration  time.Duration
}

// Parse reads cfg.Reader and converts every data line into a T described by
// shape. Lines that cannot become a T are reported through cb and skipped.
// The returned slice is never nil on success.
func Parse[T any](ctx context.Context, cfg SourceConfig, shape Shape[T], cb Callbacks) ([]T, error) {
	res, err := Run(ctx, cfg, shape, cb)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Run is Parse with the run id, counters and timing included.
func Run[T any](ctx context.Context, cfg SourceConfig, shape Shape[T], cb Callbacks) (Result[T], error) {
	start := time.Now()
	cfg = cfg.withDefaults()
	id := runID(ctx)
	log := cfg.Logger.With("run_id", id.String())

	if cfg.Reader == nil {
		return Result[T]{}, errors.New("parse: no reader supplied")
	}
	if err := ValidateShape(shape, cfg.Registry); err != nil {
		return Result[T]{}, err
	}

	src, err := openSource(cfg)
	if err != nil {
		return Result[T]{}, err
	}

	header, err := src.header()
	if err != nil {
		return Result[T]{}, err
	}

	cl, err := NewClassifier(header, shape, cfg)
	if err != nil {
		return Result[T]{}, err
	}

	col := &collector[T]{cb: cb}
	n := 0
	for {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result[T]{}, err
			}
		}

		line, ok, err := src.nextLine()
		if err != nil {
			return Result[T]{}, err
		}
		if !ok {
			break
		}
		n++

		out, err := cl.Classify(line)
		if err != nil {
			return Result[T]{}, err
		}
		logOutcome(log, src.lines.line, out)
		col.add(out)
	}

	items, summary := col.finish()
	if items == nil {
		items = []T{}
	}

	res := Result[T]{
		RunID:     id,
		Items:     items,
		Summary:   summary,
		BytesRead: src.counter.n,
		Duration:  time.Since(start),
	}

	log.Info("csv parsed",
		"invalid", summary.Invalid,
		"rejected", summary.Rejected,
		"conversion_errors", summary.ConversionErrors,
		"created", summary.Created,
		"bytes_read", res.BytesRead,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func logOutcome(log *slog.Logger, lineNo int, o Outcome) {
	switch v := o.(type) {
	case InvalidLine:
		log.Debug("invalid line", "line", lineNo, "reason", v.Reason)
	case RejectedRecord:
		log.Debug("record rejected", "line", lineNo)
	case ConversionFailure:
		log.Debug("conversion failed", "line", lineNo, "reason", v.Reason)
	}
}

// ValidateShape checks every descriptor of shape against reg.
// All problems are reported together.
func ValidateShape[T any](shape Shape[T], reg *Registry) error {
	var errs []error
	for _, b := range shape.Bindings {
		if err := ValidateDescriptor(b.Descriptor, reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// source is a decoded byte stream positioned after the header.
type source struct {
	cfg     SourceConfig
	counter *countingReader
	lines   *lineReader
	split   LineSplitter
}

func openSource(cfg SourceConfig) (*source, error) {
	counter := &countingReader{r: cfg.Reader}
	r, err := DecodeReader(counter, cfg.Charset)
	if err != nil {
		return nil, err
	}
	return &source{
		cfg:     cfg,
		counter: counter,
		lines:   newLineReader(r),
		split:   NewLineSplitter(cfg.Separator, cfg.Quote),
	}, nil
}

// header reads the first line. An empty source is ErrEmptySource.
func (s *source) header() (*Header, error) {
	line, err := s.lines.next()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	normalize := withQuoteTrim(s.cfg.Quote, s.cfg.NormalizeColumnName)
	return NewHeader(s.cfg.FixLine(line), normalize, s.split), nil
}

// nextLine returns the next non-blank line after fix-up, or ok == false at
// the end of input.
func (s *source) nextLine() (string, bool, error) {
	for {
		line, err := s.lines.next()
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("read line %d: %w", s.lines.line+1, err)
		}
		line = s.cfg.FixLine(line)
		if strings.TrimSpace(line) != "" {
			return line, true, nil
		}
	}
}

// boundField is a binding with its resolved column index.
type boundField[T any] struct {
	binding Binding[T]
	index   int
}

// Classifier turns single lines into Outcomes for one header and shape.
type Classifier[T any] struct {
	header *Header
	shape  Shape[T]
	fields []boundField[T]
	split  LineSplitter
	keep   KeepFunc
	reg    *Registry
}

// NewClassifier resolves the columns of shape against header. Required
// fields whose column is missing fail together with a *MissingColumnsError;
// optional and defaulted fields without a column always read as blank.
func NewClassifier[T any](header *Header, shape Shape[T], cfg SourceConfig) (*Classifier[T], error) {
	cfg = cfg.withDefaults()

	var required []string
	for _, b := range shape.Bindings {
		if b.Descriptor.Required() {
			required = append(required, b.Descriptor.Column())
		}
	}
	if _, err := header.LookupRequired(required...); err != nil {
		return nil, err
	}

	fields := make([]boundField[T], len(shape.Bindings))
	for i, b := range shape.Bindings {
		idx, _ := header.Index(b.Descriptor.Column())
		fields[i] = boundField[T]{binding: b, index: idx}
	}

	return &Classifier[T]{
		header: header,
		shape:  shape,
		fields: fields,
		split:  NewLineSplitter(cfg.Separator, cfg.Quote),
		keep:   cfg.Keep,
		reg:    cfg.Registry,
	}, nil
}

// Header returns the header the classifier was built for.
func (c *Classifier[T]) Header() *Header {
	return c.header
}

// Classify maps one non-blank line to its Outcome. The error is non-nil only
// for conditions that must abort the whole call.
func (c *Classifier[T]) Classify(line string) (Outcome, error) {
	rec, err := BuildRecord(line, c.header.Len(), c.split)
	if err != nil {
		return InvalidLine{Line: line, Reason: err.Error()}, nil
	}

	if !c.keep(c.header, rec) {
		return RejectedRecord{Record: rec.String()}, nil
	}

	item, err := c.convert(rec)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		return ConversionFailure{Record: rec.String(), Reason: err.Error()}, nil
	}
	return Success[T]{Item: item}, nil
}

func (c *Classifier[T]) convert(rec Record) (T, error) {
	item := c.shape.newItem()
	for _, f := range c.fields {
		d := f.binding.Descriptor

		var v any
		if token, ok := rec.NonBlank(f.index); ok {
			var err error
			v, err = Convert(token, d, c.reg)
			if err != nil {
				var zero T
				return zero, err
			}
		}

		if v == nil {
			switch {
			case d.HasDefault:
				v = d.Default
			case d.Optional:
			default:
				var zero T
				return zero, &ConversionError{Field: d.Name, Err: ErrMissingValue}
			}
		}

		if f.binding.set != nil {
			f.binding.set(&item, v)
		}
	}
	return item, nil
}

// Table is a tokenized source without conversion.
type Table struct {
	Header *Header
	ctx    context.Context
	src    *source
	err    error
}

// ReadTable opens cfg.Reader, reads its header and hands the table to fn.
// The table is only valid during fn.
func ReadTable(ctx context.Context, cfg SourceConfig, fn func(*Table) error) error {
	cfg = cfg.withDefaults()
	if cfg.Reader == nil {
		return errors.New("read table: no reader supplied")
	}
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	header, err := src.header()
	if err != nil {
		return err
	}
	t := &Table{Header: header, ctx: ctx, src: src}
	if err := fn(t); err != nil {
		return err
	}
	return t.err
}

// Records yields every non-blank data line. Lines with the wrong number of
// fields yield a *ShapeError and iteration continues; read failures and
// context cancellation yield their error and stop.
func (t *Table) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		n := 0
		for {
			if n%ContextCheckInterval == 0 {
				if err := t.ctx.Err(); err != nil {
					t.err = err
					yield(Record{}, err)
					return
				}
			}

			line, ok, err := t.src.nextLine()
			if err != nil {
				t.err = err
				yield(Record{}, err)
				return
			}
			if !ok {
				return
			}
			n++

			rec, err := BuildRecord(line, t.Header.Len(), t.src.split)
			if !yield(rec, err) {
				return
			}
		}
	}
}
