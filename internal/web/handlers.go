package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/csvrecord/internal/core"
	"github.com/JonMunkholm/csvrecord/internal/logging"
	"github.com/JonMunkholm/csvrecord/internal/schema"
	"github.com/JonMunkholm/csvrecord/internal/web/templates"
)

// ShapeSummary is one entry of GET /api/shapes.
type ShapeSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Table       string   `json:"table,omitempty"`
	Columns     []string `json:"columns"`
}

func summarize(sch *schema.Schema) ShapeSummary {
	descs := sch.Descriptors()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Column()
	}
	return ShapeSummary{
		Name:        sch.Name,
		Description: sch.Description,
		Table:       sch.Table,
		Columns:     cols,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(s.catalog.All()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"shapes": len(s.catalog.Names()),
		"parses": s.limiter.Status(),
	})
}

func (s *Server) handleListShapes(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.All()
	out := make([]ShapeSummary, len(all))
	for i, sch := range all {
		out[i] = summarize(sch)
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetShape(w http.ResponseWriter, r *http.Request) {
	sch, err := s.catalog.Get(chi.URLParam(r, "shape"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sch)
}

// handleParse parses the request body, or the multipart field "file", with
// the named shape and returns the report as JSON.
//
// Query parameters:
//   - sep, quote: single characters overriding the shape's settings
//   - charset: input encoding
//   - store: "true" copies the records into the shape's table
//   - table: overrides the target table when storing
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	store, err := boolParam(r, "store")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rep, err := s.runParse(w, r, store)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

// handleReport is the HTML form target. It never stores records.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.runParse(w, r, false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sch, err := s.catalog.Get(rep.Shape)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Report(rep, sch.Columns()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render report failed", "error", err)
	}
}

// runParse holds a limiter slot for the whole call, including the upload.
func (s *Server) runParse(w http.ResponseWriter, r *http.Request, store bool) (*schema.Report, error) {
	sch, err := s.catalog.Get(chi.URLParam(r, "shape"))
	if err != nil {
		return nil, err
	}

	overrides, err := s.overrides(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Parse.Timeout)
	defer cancel()

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	body, name, err := s.openUpload(w, r)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	ctx = core.ContextWithRunID(ctx, uuid.New())
	logger := logging.WithFields(ctx, "shape", sch.Name)

	rep, err := sch.Run(ctx, body, schema.RunOptions{
		Overrides:       overrides,
		Source:          name,
		DiagnosticLimit: s.cfg.Parse.DiagnosticLimit,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	if store {
		table := r.URL.Query().Get("table")
		if table == "" {
			table = sch.Table
		}
		if table == "" {
			return nil, fmt.Errorf("%w: shape %q names none, pass ?table=", errNoTable, sch.Name)
		}
		if s.sink == nil {
			return nil, errNoSink
		}
		n, err := s.sink.Write(ctx, table, sch.Columns(), rep.Records)
		if err != nil {
			return nil, fmt.Errorf("store into %s: %w", table, err)
		}
		rep.Stored = n
	}
	return rep, nil
}

// overrides merges the query's sep, quote and charset over the configured
// defaults.
func (s *Server) overrides(r *http.Request) (schema.Overrides, error) {
	base := schema.Overrides{
		Separator: s.cfg.Parse.Separator,
		Quote:     s.cfg.Parse.Quote,
		Charset:   s.cfg.Parse.Charset,
	}

	q := r.URL.Query()
	var req schema.Overrides
	var err error
	if req.Separator, err = schema.ParseRune(q.Get("sep")); err != nil {
		return schema.Overrides{}, fmt.Errorf("%w sep: %w", errInvalidQuery, err)
	}
	if req.Quote, err = schema.ParseRune(q.Get("quote")); err != nil {
		return schema.Overrides{}, fmt.Errorf("%w quote: %w", errInvalidQuery, err)
	}
	req.Charset = strings.TrimSpace(q.Get("charset"))

	return base.Merge(req), nil
}

// openUpload returns the CSV data of r. Multipart requests carry it in the
// field "file"; anything else is the raw body.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, error) {
	maxSize := s.cfg.Parse.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, "", fmt.Errorf("read form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errNoFile
		}
		return file, header.Filename, nil
	}

	if r.ContentLength == 0 {
		return nil, "", errNoFile
	}
	return r.Body, r.URL.Query().Get("name"), nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w %s: %q is not a boolean", errInvalidQuery, name, v)
	}
	return b, nil
}
