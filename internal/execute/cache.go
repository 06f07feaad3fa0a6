package execute

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/storage"
)

// Cache persists block results in an object store keyed by Hasher keys.
type Cache struct {
	store storage.ObjectStore
}

// NewCache wraps store.
func NewCache(store storage.ObjectStore) *Cache {
	return &Cache{store: store}
}

// Get returns the cached result for key. ok is false on a miss. A corrupt
// entry counts as a miss so that it is overwritten by the next run.
func (c *Cache) Get(ctx context.Context, key string) (Result, bool, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return Result{}, false, nil
		}
		return Result{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Result{}, false, nil
	}
	return Result{
		Key:       key,
		Stdout:    e.Stdout,
		Stderr:    e.Stderr,
		Artifacts: e.Artifacts,
		ExitCode:  e.ExitCode,
		Duration:  time.Duration(e.DurationMS) * time.Millisecond,
		Cached:    true,
	}, true, nil
}

// Put stores r under its key.
func (c *Cache) Put(ctx context.Context, r Result) error {
	data, err := json.Marshal(entryFor(r))
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.store.Put(ctx, r.Key, data)
}

// Store exposes the underlying object store.
func (c *Cache) Store() storage.ObjectStore {
	return c.store
}
