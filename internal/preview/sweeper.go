package preview

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

// CacheSweeper periodically evicts execution cache entries that were not
// read within the retention window.
type CacheSweeper struct {
	scheduler gocron.Scheduler
	retention time.Duration
	store     func() storage.ObjectStore
}

// NewCacheSweeper schedules a sweep every interval. store is resolved on
// each run so a reloaded engine's cache is swept. Stores that cannot sweep
// (such as NATS, which expires entries itself) are skipped.
func NewCacheSweeper(retention, interval time.Duration, store func() storage.ObjectStore) (*CacheSweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	cs := &CacheSweeper{scheduler: s, retention: retention, store: store}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(cs.Sweep, context.Background()),
		gocron.WithName("exec-cache-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create cache sweep job: %w", err)
	}
	return cs, nil
}

// Start begins the schedule.
func (c *CacheSweeper) Start() {
	c.scheduler.Start()
}

// Stop waits for a running sweep and stops the schedule.
func (c *CacheSweeper) Stop() error {
	return c.scheduler.Shutdown()
}

// Sweep runs one eviction pass and returns the number of removed entries.
func (c *CacheSweeper) Sweep(ctx context.Context) int {
	sw, ok := c.store().(storage.Sweeper)
	if !ok {
		return 0
	}
	start := time.Now()
	removed, err := sw.Sweep(ctx, start.Add(-c.retention))
	if err != nil {
		slog.Warn("Execution cache sweep failed", logfields.Error(err))
		return removed
	}
	slog.Info("Execution cache swept",
		logfields.Count(removed),
		logfields.Duration(time.Since(start)))
	return removed
}
