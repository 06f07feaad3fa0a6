package preview

import (
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/build"
)

// Status is the outcome of the most recent preview build.
type Status struct {
	mu sync.RWMutex
	// lastErr is set when the build could not produce a report at all.
	lastErr      error
	report       *build.Report
	hasGoodBuild bool
}

// Update records a finished build.
func (s *Status) Update(r *build.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
	s.lastErr = nil
	if r == nil {
		s.lastErr = err
		return
	}
	if r.Outcome == build.OutcomeSuccess || r.Outcome == build.OutcomeWarning {
		s.hasGoodBuild = true
	}
}

// Failed reports whether the last build failed.
func (s *Status) Failed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr != nil || (s.report != nil && s.report.Outcome == build.OutcomeFailed)
}

type statusView struct {
	State        string        `json:"state"`
	Failed       bool          `json:"failed"`
	HasGoodBuild bool          `json:"has_good_build"`
	BuildID      string        `json:"build_id,omitempty"`
	Outcome      string        `json:"outcome,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Error        string        `json:"error,omitempty"`
	FinishedAt   time.Time     `json:"finished_at,omitzero"`
	Issues       []build.Issue `json:"issues,omitempty"`
}

func (s *Status) view(state build.State) statusView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := statusView{State: string(state), HasGoodBuild: s.hasGoodBuild}
	if s.lastErr != nil {
		v.Failed = true
		v.Error = s.lastErr.Error()
	}
	if r := s.report; r != nil {
		v.BuildID = r.BuildID
		v.Outcome = string(r.Outcome)
		v.Summary = r.Summary()
		v.FinishedAt = r.End
		v.Issues = r.Issues
		v.Failed = v.Failed || r.Outcome == build.OutcomeFailed
	}
	return v
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>sitegen status</title>
<style>body{font:14px/1.5 monospace;margin:2em;background:#111;color:#eee}.fail{color:#f66}.warn{color:#fc6}.ok{color:#6f6}li{margin:.3em 0}</style>
</head><body>
<h1 class="{{ if .Failed }}fail{{ else if eq .Outcome "warning" }}warn{{ else }}ok{{ end }}">{{ if .Failed }}Build failed{{ else }}Build {{ .Outcome }}{{ end }}</h1>
<p>State: {{ .State }}</p>
{{ with .Summary }}<p>{{ . }}</p>{{ end }}
{{ with .Error }}<pre class="fail">{{ . }}</pre>{{ end }}
{{ if .Issues }}<ul>{{ range .Issues }}<li class="{{ if eq (print .Severity) "warning" }}warn{{ else }}fail{{ end }}">{{ .String }}</li>{{ end }}</ul>{{ end }}
</body></html>
`))

// statusHandler serves the status page, or JSON with ?format=json.
func statusHandler(status *Status, state func() build.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := status.view(state())
		if r.URL.Query().Get("format") == "json" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if v.Failed {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = statusPage.Execute(w, v)
	}
}
