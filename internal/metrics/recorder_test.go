package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testRecorder struct {
	NoopRecorder
	stageDurations map[string]int
	buildOutcomes  map[string]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{stageDurations: map[string]int{}, buildOutcomes: map[string]int{}}
}

func (t *testRecorder) ObserveStageDuration(stage string, _ time.Duration) {
	t.stageDurations[stage]++
}
func (t *testRecorder) IncBuildOutcome(outcome string) { t.buildOutcomes[outcome]++ }

func TestRecorderInterfaceSatisfied(t *testing.T) {
	var _ Recorder = NoopRecorder{}
	var _ Recorder = (*PrometheusRecorder)(nil)

	r := newTestRecorder()
	var rec Recorder = r
	rec.ObserveStageDuration("scan", time.Millisecond)
	rec.IncBuildOutcome("success")
	rec.AddPagesRendered(5)
	assert.Equal(t, 1, r.stageDurations["scan"])
	assert.Equal(t, 1, r.buildOutcomes["success"])
}
