package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status comes from statusFor, the user message from core.MapError
//  4. Technical error + code is logged with the request and run ids
//  5. User message is rendered as JSON or as an HTML page

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvrecord/internal/core"
	"github.com/JonMunkholm/csvrecord/internal/logging"
	"github.com/JonMunkholm/csvrecord/internal/schema"
	"github.com/JonMunkholm/csvrecord/internal/sheet"
	"github.com/JonMunkholm/csvrecord/internal/web/templates"
)

var (
	errNoFile       = errors.New("no file provided")
	errInvalidQuery = errors.New("invalid query parameter")
	errNoSink       = errors.New("storing rows needs a database")
	errNoTable      = errors.New("storing rows needs a table")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := logger.Warn
	if status >= http.StatusInternalServerError {
		level = logger.Error
	}
	level("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		writeJSON(w, r, status, ErrorResponse{
			Error:   userMsg.Message,
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorPage(userMsg).Render(r.Context(), w); err != nil {
		logger.Error("render error page failed", "error", err)
	}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	var missing *core.MissingColumnsError

	switch {
	case errors.Is(err, schema.ErrUnknownShape):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManyParses):
		return http.StatusTooManyRequests
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errNoFile),
		errors.Is(err, errInvalidQuery),
		errors.Is(err, errNoTable),
		errors.Is(err, core.ErrEmptySource),
		errors.Is(err, core.ErrUnknownCharset),
		errors.Is(err, sheet.ErrUnbalancedQuotes),
		errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, errNoSink):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}

	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
