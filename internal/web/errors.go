package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request id, then
// mapped through core.MapError and written as an HTMX fragment, JSON, or
// plain text depending on the request.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/logging"
	"github.com/JonMunkholm/crmimport/internal/web/templates"
)

var (
	errRateLimited  = errors.New("rate limit exceeded")
	errFileTooLarge = errors.New("file too large")
	errNoFile       = errors.New("no file provided")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
// Result carries the partial import result when an execute call stopped early.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Action  string             `json:"action,omitempty"`
	Code    string             `json:"code"`
	Result  *core.ImportResult `json:"result,omitempty"`
}

// respondError handles error responses with user-friendly messages.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	respondErrorWithResult(w, r, err, statusCode, nil)
}

// respondErrorWithResult is respondError for execute calls that produced a
// result before failing.
func respondErrorWithResult(w http.ResponseWriter, r *http.Request, err error, statusCode int, result *core.ImportResult) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, userMsg, statusCode, result)
	case wantsJSON(r):
		writeJSON(w, statusCode, ErrorResponse{
			Error:   userMsg.Message,
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
			Result:  result,
		})
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int, result *core.ImportResult) {
	c := templates.ErrorAlert(msg.Message, msg.Action, msg.Code)
	if result != nil {
		alert, summary := c, templates.ImportSummary(result)
		c = templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			if err := alert.Render(ctx, w); err != nil {
				return err
			}
			return summary.Render(ctx, w)
		})
	}
	templ.Handler(c, templ.WithStatus(statusCode)).ServeHTTP(w, r)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
