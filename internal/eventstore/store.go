package eventstore

import (
	"context"
	"time"
)

// Record is one completed build as persisted in the history.
type Record struct {
	ID         int64         `json:"id"`
	BuildID    string        `json:"build_id"`
	Kind       string        `json:"kind"`
	Outcome    string        `json:"outcome"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Rendered   int           `json:"rendered"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Deleted    int           `json:"deleted"`
	Failed     int           `json:"failed"`
	Warnings   int           `json:"warnings"`
	CacheHits  int           `json:"cache_hits"`
	Executions int           `json:"executions"`
	// Issues holds the first few issue lines of the build, for display.
	Issues []string `json:"issues,omitempty"`
}

// Store persists build records.
type Store interface {
	// Append adds a record to the history.
	Append(ctx context.Context, rec Record) error

	// List returns up to limit records, newest first. A limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]Record, error)

	// Get returns the record of one build.
	Get(ctx context.Context, buildID string) (Record, error)

	// Close closes the store and releases resources.
	Close() error
}
