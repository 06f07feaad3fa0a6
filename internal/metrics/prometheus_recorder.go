package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitegen"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	buildDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	pages         prom.Counter
	cacheLookups  *prom.CounterVec
	executions    *prom.CounterVec
	reloadClients prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration by build kind",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.pages = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rendered_total",
			Help:      "Pages rendered across all builds",
		})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "exec_cache_lookups_total",
			Help:      "Execution cache lookups by result",
		}, []string{"result"})
		pr.executions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Interpreter runs by result",
		}, []string{"result"})
		pr.reloadClients = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live reload clients",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
			pr.pages, pr.cacheLookups, pr.executions, pr.reloadClients)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(kind string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddPagesRendered(n int) {
	if p == nil || p.pages == nil {
		return
	}
	p.pages.Add(float64(n))
}

func (p *PrometheusRecorder) AddCacheLookups(hits, misses int) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues("hit").Add(float64(hits))
	p.cacheLookups.WithLabelValues("miss").Add(float64(misses))
}

func (p *PrometheusRecorder) AddExecutions(n, failures int) {
	if p == nil || p.executions == nil {
		return
	}
	p.executions.WithLabelValues("success").Add(float64(n - failures))
	p.executions.WithLabelValues("failed").Add(float64(failures))
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil || p.reloadClients == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}
