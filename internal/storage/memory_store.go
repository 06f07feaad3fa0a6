package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory ObjectStore used by tests and by builds that
// disable the persistent cache.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	access  map[string]time.Time
	now     func() time.Time

	// Call counters for verification in tests.
	PutCalls int
	GetCalls int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		access:  make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	m.objects[key] = append([]byte(nil), data...)
	m.access[key] = m.now()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound{Key: key}
	}
	m.access[key] = m.now()
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound{Key: key}
	}
	delete(m.objects, key)
	delete(m.access, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Sweep removes entries last touched before cutoff.
func (m *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, at := range m.access {
		if at.Before(cutoff) {
			delete(m.objects, k)
			delete(m.access, k)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var (
	_ ObjectStore = (*MemoryStore)(nil)
	_ Sweeper     = (*MemoryStore)(nil)
	_ ObjectStore = (*FSStore)(nil)
	_ Sweeper     = (*FSStore)(nil)
	_ ObjectStore = (*NATSStore)(nil)
)
