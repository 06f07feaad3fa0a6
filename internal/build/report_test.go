package build

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func TestReport_AddIssueAndOutcome(t *testing.T) {
	r := newReport("0f8fad5b-d9cb-469f-a165-70867728950e", KindFull)
	r.AddIssue("", ferrors.TemplateError(ferrors.CodeUndefinedVariable, "undefined variable").
		WithContext("page", "blog/a.md").
		Warning().
		Build())
	r.deriveOutcome(false)
	assert.Equal(t, OutcomeWarning, r.Outcome)
	require.NoError(t, r.Err())
	assert.Equal(t, "blog/a.md", r.Issues[0].Entity)
	assert.Equal(t, ferrors.CodeUndefinedVariable, r.Issues[0].Code)

	r.AddIssue("b.md", errors.New("boom"))
	r.deriveOutcome(false)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, 1, r.Warnings)
	assert.Equal(t, 1, r.Errors)
	err := r.Err()
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryBuild, ferrors.GetCategory(err))

	r.sortIssues()
	assert.Equal(t, "b.md", r.Issues[1].Entity)
	assert.Equal(t, "error [build] b.md: boom", r.Issues[1].String())
}

func TestReport_AbortAndCancel(t *testing.T) {
	r := newReport("id", KindIncremental)
	fatal := ferrors.FileSystemError("content directory is not readable").Fatal().Build()
	r.abort(fatal)
	r.abort(errors.New("second"))
	assert.Equal(t, fatal, r.Fatal())
	r.deriveOutcome(false)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, fatal, r.Err())

	c := newReport("id", KindIncremental)
	c.deriveOutcome(true)
	assert.Equal(t, OutcomeCanceled, c.Outcome)
	assert.Equal(t, ferrors.CategoryRuntime, ferrors.GetCategory(c.Err()))
}

func TestReport_SummaryAndRecord(t *testing.T) {
	r := newReport("0f8fad5b-d9cb-469f-a165-70867728950e", KindFull)
	r.Rendered, r.Written, r.Skipped = 4, 3, 1
	r.ExecStats.Hits = 2
	for i := 0; i < maxRecordedIssues+5; i++ {
		r.AddIssue(fmt.Sprintf("p%02d.md", i), ferrors.BuildError("bad").Warning().Build())
	}
	r.End = r.Start
	r.deriveOutcome(false)

	s := r.Summary()
	assert.Contains(t, s, "full build 0f8fad5b: warning")
	assert.Contains(t, s, "rendered=4 written=3 unchanged=1")
	assert.Contains(t, s, "hits=2")

	rec := r.Record()
	assert.Equal(t, r.BuildID, rec.BuildID)
	assert.Equal(t, "full", rec.Kind)
	assert.Equal(t, "warning", rec.Outcome)
	assert.Equal(t, 2, rec.CacheHits)
	require.Len(t, rec.Issues, maxRecordedIssues+1)
	assert.Equal(t, "... and 5 more", rec.Issues[maxRecordedIssues])
}
