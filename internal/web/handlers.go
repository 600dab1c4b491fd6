package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/web/templates"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	healthTimeout       = 2 * time.Second
)

// handleDashboard renders the main page listing all import targets.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	templ.Handler(templates.Dashboard(s.service.Targets(), htmxSrc)).ServeHTTP(w, r)
}

// handleHealth reports liveness plus store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	status := s.service.LimiterStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"activeImports": status.Active,
		"maxImports":    status.MaxConcurrent,
	})
}

// handleListTargets returns every import target with its columns.
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Targets())
}

// handleTemplate serves a blank import file for the target.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	format := core.FormatCSV
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := core.ParseFormat(v)
		if err != nil {
			respondError(w, r, err, statusFor(err))
			return
		}
		format = f
	}

	data, err := s.service.Template(target, format)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template%s"`, target, format.Extension()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// handleValidate runs a validation session on the uploaded file.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if _, err := s.service.Target(target); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer up.Close()

	res, err := s.service.Validate(WithRequestMetadata(r.Context(), r), target, up.File)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		templ.Handler(templates.ValidationSummary(res)).ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExecute imports the uploaded file.
//
// A cancelled or truncated import still returns its partial result next to
// the error so the client knows which rows were committed.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if _, err := s.service.Target(target); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer up.Close()

	opts, err := s.parseOptions(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	res, err := s.service.Execute(WithRequestMetadata(r.Context(), r), target, up.File, opts)
	if err != nil {
		respondErrorWithResult(w, r, err, statusFor(err), res)
		return
	}

	if isHTMX(r) {
		templ.Handler(templates.ImportSummary(res)).ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleHistory lists recent import runs for the target.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			err = fmt.Errorf("%w: limit %q must be a positive number", core.ErrInvalidOptions, v)
			respondError(w, r, err, statusFor(err))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.service.History(r.Context(), target, limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		templ.Handler(templates.History(runs)).ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
