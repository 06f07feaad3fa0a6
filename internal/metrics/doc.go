// Package metrics records build, render and execution cache metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so call sites never check for nil:
//
//	engine, err := build.NewEngine(cfg, build.WithRecorder(metrics.NoopRecorder{}))
//
// The preview server swaps in a PrometheusRecorder and exposes its registry
// at /__sitegen/metrics:
//
//	reg := prometheus.NewRegistry()
//	engine, err := build.NewEngine(cfg, build.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//	mux.Handle("/__sitegen/metrics", metrics.HTTPHandler(reg))
//
// One-shot CLI builds keep the NoopRecorder.
package metrics
