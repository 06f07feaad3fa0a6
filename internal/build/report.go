package build

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/eventstore"
	"git.home.luguber.info/inful/sitegen/internal/execute"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Kind distinguishes full and incremental builds.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// Outcome is the typed enumeration of final build result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Stage names used for StageDurations and metrics.
const (
	StageScan     = "scan"
	StageParse    = "parse"
	StageGraph    = "graph"
	StageRender   = "render"
	StageWrite    = "write"
	StageAssets   = "assets"
	StageValidate = "validate"
)

// Issue is one problem found during a build.
type Issue struct {
	// Entity is the source path or entity id the issue belongs to.
	Entity   string                `json:"entity,omitempty"`
	Code     ferrors.ErrorCode     `json:"code,omitempty"`
	Category ferrors.ErrorCategory `json:"category"`
	Severity ferrors.ErrorSeverity `json:"severity"`
	Message  string                `json:"message"`
	Context  map[string]any        `json:"context,omitempty"`
	err      error
}

// Err returns the error the issue was created from.
func (i Issue) Err() error { return i.err }

func (i Issue) String() string {
	label := string(i.Category)
	if i.Code != "" {
		label = string(i.Code)
	}
	if i.Entity != "" {
		return fmt.Sprintf("%s [%s] %s: %s", i.Severity, label, i.Entity, i.Message)
	}
	return fmt.Sprintf("%s [%s] %s", i.Severity, label, i.Message)
}

// Report captures the result of one build.
type Report struct {
	BuildID string    `json:"build_id"`
	Kind    Kind      `json:"kind"`
	Outcome Outcome   `json:"outcome"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// Rendered counts entities (pages, sections, terms) rendered this build.
	Rendered int `json:"rendered"`
	// Written counts output files whose bytes changed.
	Written int `json:"written"`
	// Skipped counts outputs whose hash matched the last write.
	Skipped     int `json:"skipped"`
	Deleted     int `json:"deleted"`
	FailedPages int `json:"failed_pages"`
	Warnings    int `json:"warnings"`
	Errors      int `json:"errors"`

	Issues         []Issue                  `json:"issues,omitempty"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	// ChangedOutputs lists written and deleted output paths, sorted.
	ChangedOutputs []string `json:"changed_outputs,omitempty"`
	// Affected lists the entity ids that were re-rendered, sorted.
	Affected  []string      `json:"affected,omitempty"`
	ExecStats execute.Stats `json:"exec_stats"`

	fatal error
}

func newReport(id string, kind Kind) *Report {
	return &Report{
		BuildID:        id,
		Kind:           kind,
		Start:          time.Now(),
		StageDurations: make(map[string]time.Duration),
	}
}

// Duration is the wall time of the build.
func (r *Report) Duration() time.Duration {
	if r.End.IsZero() {
		return time.Since(r.Start)
	}
	return r.End.Sub(r.Start)
}

// AddIssue records err against entity. Classified errors keep their
// category, code and severity; anything else counts as a build error.
func (r *Report) AddIssue(entity string, err error) {
	if err == nil {
		return
	}
	issue := Issue{Entity: entity, Category: ferrors.CategoryBuild, Severity: ferrors.SeverityError, Message: err.Error(), err: err}
	if ce, ok := ferrors.AsClassified(err); ok {
		issue.Category = ce.Category()
		issue.Severity = ce.Severity()
		issue.Code = ce.Code()
		issue.Message = ce.Message()
		if cause := ce.Cause(); cause != nil {
			issue.Message += ": " + cause.Error()
		}
		ctx := map[string]any{}
		for k, v := range ce.Context() {
			if k != ferrors.ContextKeyCode {
				ctx[k] = v
			}
		}
		if len(ctx) > 0 {
			issue.Context = ctx
		}
		if entity == "" {
			if p, ok := ce.Context().GetString("page"); ok {
				issue.Entity = p
			}
		}
	}
	switch issue.Severity {
	case ferrors.SeverityWarning, ferrors.SeverityInfo:
		r.Warnings++
	default:
		r.Errors++
	}
	r.Issues = append(r.Issues, issue)
}

// Fatal returns the error that aborted the build, if any.
func (r *Report) Fatal() error { return r.fatal }

func (r *Report) abort(err error) {
	if r.fatal == nil {
		r.fatal = err
	}
	r.AddIssue("", err)
}

func (r *Report) deriveOutcome(canceled bool) {
	switch {
	case canceled:
		r.Outcome = OutcomeCanceled
	case r.fatal != nil || r.Errors > 0:
		r.Outcome = OutcomeFailed
	case r.Warnings > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

func (r *Report) sortIssues() {
	sort.SliceStable(r.Issues, func(i, j int) bool {
		if r.Issues[i].Entity != r.Issues[j].Entity {
			return r.Issues[i].Entity < r.Issues[j].Entity
		}
		return r.Issues[i].Message < r.Issues[j].Message
	})
}

// Err converts a failed or canceled report into an error.
func (r *Report) Err() error {
	switch r.Outcome {
	case OutcomeFailed:
		if r.fatal != nil {
			return r.fatal
		}
		for _, is := range r.Issues {
			if is.Severity == ferrors.SeverityError || is.Severity == ferrors.SeverityFatal {
				return ferrors.BuildError("build failed").
					WithCause(errors.New(is.String())).
					WithContext("build_id", r.BuildID).
					WithContext("errors", r.Errors).
					Build()
			}
		}
		return ferrors.BuildError("build failed").WithContext("build_id", r.BuildID).Build()
	case OutcomeCanceled:
		if r.fatal != nil {
			return r.fatal
		}
		return ferrors.RuntimeError("build canceled").WithContext("build_id", r.BuildID).Build()
	}
	return nil
}

// Summary returns a human-readable single-line summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s build %s: %s in %s (rendered=%d written=%d unchanged=%d deleted=%d failed=%d warnings=%d exec hits=%d misses=%d runs=%d)",
		r.Kind, shortID(r.BuildID), r.Outcome, r.Duration().Truncate(time.Millisecond),
		r.Rendered, r.Written, r.Skipped, r.Deleted, r.FailedPages, r.Warnings,
		r.ExecStats.Hits, r.ExecStats.Misses, r.ExecStats.Executions)
}

// Record converts the report into a build history entry.
func (r *Report) Record() eventstore.Record {
	rec := eventstore.Record{
		BuildID:    r.BuildID,
		Kind:       string(r.Kind),
		Outcome:    string(r.Outcome),
		StartedAt:  r.Start,
		Duration:   r.Duration(),
		Rendered:   r.Rendered,
		Written:    r.Written,
		Skipped:    r.Skipped,
		Deleted:    r.Deleted,
		Failed:     r.FailedPages,
		Warnings:   r.Warnings,
		CacheHits:  int(r.ExecStats.Hits),
		Executions: int(r.ExecStats.Executions),
	}
	for i, is := range r.Issues {
		if i == maxRecordedIssues {
			rec.Issues = append(rec.Issues, fmt.Sprintf("... and %d more", len(r.Issues)-i))
			break
		}
		rec.Issues = append(rec.Issues, is.String())
	}
	return rec
}

const maxRecordedIssues = 20

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
