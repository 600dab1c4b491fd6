// Package templates holds the templ components rendered for HTMX requests
// and the dashboard page.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/crmimport/internal/core"
)

// maxListedIssues caps the issues listed in a validation summary.
const maxListedIssues = 20

// writer collects the first write error so components can emit markup
// without checking every call.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) rawf(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

// text writes s HTML-escaped.
func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func component(fn func(w *writer)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		fn(w)
		return w.err
	})
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return component(func(w *writer) {
		w.raw(`<div class="alert alert-error" role="alert"><p class="alert-message">`)
		w.text(message)
		w.raw(`</p>`)
		if action != "" {
			w.raw(`<p class="alert-action">`)
			w.text(action)
			w.raw(`</p>`)
		}
		w.raw(`<p class="alert-code">Code: `)
		w.text(code)
		w.raw(`</p></div>`)
	})
}

// ValidationSummary renders the outcome of a validate call.
func ValidationSummary(res *core.ValidationResult) templ.Component {
	return component(func(w *writer) {
		status := "valid"
		if !res.IsValid {
			status = "invalid"
		}
		w.rawf(`<section class="validation validation-%s" data-target="%s">`, status, templ.EscapeString(string(res.Target)))
		w.rawf(`<p class="counts">%d of %d rows valid, %d errors, %d warnings</p>`,
			res.ValidRows, res.TotalRows, len(res.Errors), len(res.Warnings))

		issueList(w, "errors", res.Errors)
		issueList(w, "warnings", res.Warnings)
		previewTable(w, res.Columns, res.Preview)
		w.raw(`</section>`)
	})
}

func issueList(w *writer, class string, issues []core.FieldIssue) {
	if len(issues) == 0 {
		return
	}
	w.rawf(`<ul class="%s">`, class)
	for i, is := range issues {
		if i == maxListedIssues {
			w.rawf(`<li class="more">and %d more</li>`, len(issues)-maxListedIssues)
			break
		}
		w.raw(`<li>`)
		if is.Row > 0 {
			w.rawf(`Row %d: `, is.Row)
		}
		w.text(is.String())
		w.raw(`</li>`)
	}
	w.raw(`</ul>`)
}

func previewTable(w *writer, columns []string, rows []core.CandidateRecord) {
	if len(rows) == 0 {
		return
	}
	w.raw(`<table class="preview"><thead><tr><th>Row</th>`)
	for _, c := range columns {
		w.raw(`<th>`)
		w.text(c)
		w.raw(`</th>`)
	}
	w.raw(`</tr></thead><tbody>`)
	for _, r := range rows {
		class := "ok"
		if !r.Valid() {
			class = "error"
		}
		w.rawf(`<tr class="%s"><td>%d</td>`, class, r.Row)
		for _, c := range columns {
			w.raw(`<td>`)
			w.text(r.Values[c])
			w.raw(`</td>`)
		}
		w.raw(`</tr>`)
	}
	w.raw(`</tbody></table>`)
}

// ImportSummary renders the outcome of an execute call.
func ImportSummary(res *core.ImportResult) templ.Component {
	return component(func(w *writer) {
		status := "success"
		switch {
		case res.Cancelled:
			status = "cancelled"
		case !res.Success:
			status = "partial"
		}
		w.rawf(`<section class="import import-%s">`, status)
		w.raw(`<dl class="counts">`)
		w.rawf(`<dt>Processed</dt><dd>%d</dd>`, res.TotalProcessed)
		w.rawf(`<dt>Inserted</dt><dd>%d</dd>`, res.SuccessfulInserts)
		w.rawf(`<dt>Skipped duplicates</dt><dd>%d</dd>`, res.DuplicatesSkipped)
		w.rawf(`<dt>Failed</dt><dd>%d</dd>`, res.FailedInserts)
		w.rawf(`<dt>Batches</dt><dd>%d</dd>`, res.Batches)
		w.raw(`</dl>`)

		if len(res.Errors) > 0 {
			w.raw(`<ul class="errors">`)
			for i, e := range res.Errors {
				if i == maxListedIssues {
					w.rawf(`<li class="more">and %d more</li>`, len(res.Errors)-maxListedIssues)
					break
				}
				w.rawf(`<li>Row %d: `, e.Row)
				w.text(e.Reason)
				w.raw(`</li>`)
			}
			w.raw(`</ul>`)
		}
		w.raw(`</section>`)
	})
}

// History renders recent import runs.
func History(runs []core.ImportRun) templ.Component {
	return component(func(w *writer) {
		if len(runs) == 0 {
			w.raw(`<p class="empty">No imports yet.</p>`)
			return
		}
		w.raw(`<table class="history"><thead><tr>` +
			`<th>Started</th><th>File</th><th>Inserted</th><th>Skipped</th><th>Failed</th><th>Duration</th><th>Status</th>` +
			`</tr></thead><tbody>`)
		for _, run := range runs {
			w.raw(`<tr><td>`)
			w.text(run.StartedAt.Format(time.DateTime))
			w.raw(`</td><td>`)
			w.text(run.FileName)
			w.rawf(`</td><td>%d</td><td>%d</td><td>%d</td><td>`, run.SuccessfulInserts, run.DuplicatesSkipped, run.FailedInserts)
			w.text(run.Duration.Round(time.Millisecond).String())
			w.raw(`</td><td>`)
			w.text(runStatus(run))
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table>`)
	})
}

func runStatus(run core.ImportRun) string {
	switch {
	case run.Cancelled:
		return "cancelled"
	case run.Error != "":
		return "error"
	case run.FailedInserts > 0:
		return "partial"
	}
	return "ok"
}

// Dashboard renders the page listing every import target with its forms.
func Dashboard(targets []core.TargetInfo, htmxSrc string) templ.Component {
	return component(func(w *writer) {
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>CRM Import</title>`)
		w.rawf(`<script src="%s"></script>`, templ.EscapeString(htmxSrc))
		w.raw(`</head><body><h1>CRM Import</h1>`)
		for _, t := range targets {
			key := templ.EscapeString(string(t.Key))
			w.rawf(`<section class="target" id="target-%s"><h2>`, key)
			w.text(t.Label)
			w.raw(`</h2><p>`)
			w.text(t.Description)
			w.raw(`</p><p class="columns">Columns: `)
			w.text(strings.Join(t.Columns, ", "))
			w.raw(`</p>`)
			for _, f := range core.Formats() {
				w.rawf(`<a href="/api/import/%s/template?format=%s">%s template</a> `, key, f, strings.ToUpper(string(f)))
			}
			w.rawf(`<form hx-encoding="multipart/form-data" hx-target="#result-%s">`, key)
			w.raw(`<input type="file" name="file" required>`)
			// The hidden field is only read when the checkbox is cleared.
			w.raw(`<label><input type="checkbox" name="skipDuplicates" value="true" checked> Skip duplicates</label>`)
			w.raw(`<input type="hidden" name="skipDuplicates" value="false">`)
			w.rawf(`<button hx-post="/api/import/%s/validate">Validate</button>`, key)
			w.rawf(`<button hx-post="/api/import/%s/execute">Import</button>`, key)
			w.raw(`</form>`)
			w.rawf(`<div id="result-%s"></div>`, key)
			w.rawf(`<div hx-get="/api/import/%s/history" hx-trigger="load"></div>`, key)
			w.raw(`</section>`)
		}
		w.raw(`</body></html>`)
	})
}
