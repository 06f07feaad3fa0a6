package events

import (
	"strings"
	"time"
)

// ChangeDetected is published by the file watcher for every relevant
// filesystem event. Paths are absolute.
type ChangeDetected struct {
	Paths      []string
	DetectedAt time.Time
}

// BuildNow is emitted by the BuildDebouncer once it decides to start a build.
// Paths is the union of every change seen since the previous build.
type BuildNow struct {
	Paths         []string
	RequestCount  int
	FirstRequest  time.Time
	LastRequest   time.Time
	TriggeredAt   time.Time
	DebounceCause string // "quiet", "max_delay" or "after_running"
}

// OutputsChanged is published after every build that completed, even when
// no file changed, so the preview can clear or show an error overlay.
type OutputsChanged struct {
	BuildID string
	// Paths are output paths relative to the output dir whose bytes changed
	// or that were deleted.
	Paths   []string
	Full    bool
	Failed  bool
	Summary string
}

// CSSOnly reports whether every changed path is a stylesheet, which lets the
// browser swap styles without a full reload.
func (e OutputsChanged) CSSOnly() bool {
	if len(e.Paths) == 0 {
		return false
	}
	for _, p := range e.Paths {
		if !strings.HasSuffix(p, ".css") {
			return false
		}
	}
	return true
}
