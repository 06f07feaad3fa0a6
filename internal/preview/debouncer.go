package preview

import (
	"context"
	"sort"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/preview/events"
)

type BuildDebouncerConfig struct {
	QuietWindow time.Duration
	MaxDelay    time.Duration

	// CheckBuildRunning reports whether a build is currently running.
	// While it is, the debouncer holds back BuildNow and emits exactly one
	// follow-up after the running build finishes.
	CheckBuildRunning func() bool

	// PollInterval controls how often completion of a running build is
	// polled.
	PollInterval time.Duration
}

// BuildDebouncer coalesces bursts of ChangeDetected events into a single
// BuildNow carrying the union of the changed paths. A build starts after a
// quiet window, or after the max delay when changes keep arriving.
//
// It is safe to run as a single goroutine.
type BuildDebouncer struct {
	bus *events.Bus
	cfg BuildDebouncerConfig

	mu        sync.Mutex
	readyOnce sync.Once
	ready     chan struct{}

	pending         bool
	pendingAfterRun bool
	firstRequestAt  time.Time
	lastRequestAt   time.Time
	paths           map[string]struct{}
	requestCount    int
	pollingAfterRun bool
}

func NewBuildDebouncer(bus *events.Bus, cfg BuildDebouncerConfig) (*BuildDebouncer, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if cfg.QuietWindow <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if cfg.MaxDelay <= 0 {
		return nil, ferrors.ValidationError("max delay must be > 0").Build()
	}
	if cfg.CheckBuildRunning == nil {
		cfg.CheckBuildRunning = func() bool { return false }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}

	return &BuildDebouncer{bus: bus, cfg: cfg, ready: make(chan struct{}), paths: map[string]struct{}{}}, nil
}

// Ready is closed once Run has subscribed to events.
func (d *BuildDebouncer) Ready() <-chan struct{} {
	return d.ready
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(after)
}

func (d *BuildDebouncer) Run(ctx context.Context) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	reqCh, unsubscribe := events.Subscribe[events.ChangeDetected](d.bus, 64)
	defer unsubscribe()

	d.readyOnce.Do(func() { close(d.ready) })

	quietTimer, maxTimer, pollTimer := stoppedTimer(), stoppedTimer(), stoppedTimer()
	var quietC, maxC, pollC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-reqCh:
			if !ok {
				return nil
			}
			d.onChange(req)

			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C

			if d.shouldStartMaxTimer() {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}

		case <-quietC:
			if d.tryEmit(ctx, "quiet") {
				quietC = nil
				maxC = nil
			}

		case <-maxC:
			if d.tryEmit(ctx, "max_delay") {
				quietC = nil
				maxC = nil
			}

		case <-pollC:
			if d.tryEmitAfterRunning(ctx) {
				pollC = nil
				quietC = nil
				maxC = nil
				continue
			}
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}

		if d.shouldPollAfterRun() && pollC == nil {
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}
	}
}

func (d *BuildDebouncer) onChange(req events.ChangeDetected) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := req.DetectedAt
	if now.IsZero() {
		now = time.Now()
	}

	if !d.pending {
		d.pending = true
		d.firstRequestAt = now
		d.requestCount = 0
	}

	d.lastRequestAt = now
	for _, p := range req.Paths {
		d.paths[p] = struct{}{}
	}
	d.requestCount++
}

func (d *BuildDebouncer) shouldStartMaxTimer() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending && d.requestCount == 1
}

func (d *BuildDebouncer) shouldPollAfterRun() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingAfterRun && !d.pollingAfterRun
}

func (d *BuildDebouncer) tryEmit(ctx context.Context, cause string) bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return true
	}

	if d.cfg.CheckBuildRunning() {
		d.pendingAfterRun = true
		d.mu.Unlock()
		return false
	}

	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	evt := events.BuildNow{
		Paths:         paths,
		TriggeredAt:   time.Now(),
		RequestCount:  d.requestCount,
		FirstRequest:  d.firstRequestAt,
		LastRequest:   d.lastRequestAt,
		DebounceCause: cause,
	}
	d.pending = false
	d.pendingAfterRun = false
	d.pollingAfterRun = false
	d.paths = map[string]struct{}{}
	d.mu.Unlock()

	_ = d.bus.Publish(ctx, evt)
	return true
}

func (d *BuildDebouncer) tryEmitAfterRunning(ctx context.Context) bool {
	d.mu.Lock()
	if !d.pendingAfterRun {
		d.mu.Unlock()
		return true
	}
	d.pollingAfterRun = true
	d.mu.Unlock()

	if d.cfg.CheckBuildRunning() {
		return false
	}

	return d.tryEmit(ctx, "after_running")
}
