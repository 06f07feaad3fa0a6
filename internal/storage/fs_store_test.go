package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyA = "aa11223344556677"
	keyB = "bb11223344556677"
)

func TestFSStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, keyA)
	assert.True(t, IsNotFound(err))

	require.NoError(t, store.Put(ctx, keyA, []byte("one")))
	require.NoError(t, store.Put(ctx, keyB, []byte("two")))

	data, err := store.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	ok, err := store.Exists(ctx, keyB)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{keyA, keyB}, keys)

	require.NoError(t, store.Delete(ctx, keyA))
	assert.True(t, IsNotFound(store.Delete(ctx, keyA)))
}

func TestFSStore_LayoutAndAtomicReplace(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFSStore(base)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, keyA, []byte("first")))
	require.NoError(t, store.Put(ctx, keyA, []byte("second")))

	data, err := os.ReadFile(filepath.Join(base, "objects", "aa", keyA[2:]))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	tmp, err := os.ReadDir(filepath.Join(base, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp, "no staging files are left behind")
}

func TestFSStore_RejectsInvalidKeys(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../../etc/passwd", "ABCDEF0123", "short"} {
		assert.ErrorIs(t, store.Put(context.Background(), key, nil), ErrInvalidKey, key)
	}
}

func TestFSStore_ConcurrentReadersNeverSeeTornWrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	big := func(c string) []byte { return []byte(strings.Repeat(c, 1<<16)) }
	require.NoError(t, store.Put(ctx, keyA, big("x")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := "x"
			if i%2 == 0 {
				c = "y"
			}
			assert.NoError(t, store.Put(ctx, keyA, big(c)))
		}(i)
		go func() {
			defer wg.Done()
			data, err := store.Get(ctx, keyA)
			if assert.NoError(t, err) {
				assert.True(t, string(data) == string(big("x")) || string(data) == string(big("y")))
			}
		}()
	}
	wg.Wait()
}

func TestFSStore_SweepRemovesUnreadEntries(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFSStore(base)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, keyA, []byte("old")))
	require.NoError(t, store.Put(ctx, keyB, []byte("fresh")))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(base, "objects", "aa", keyA[2:]), past, past))

	removed, err := store.Sweep(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{keyB}, keys)
}

func TestMemoryStore_SweepUsesLastAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	require.NoError(t, store.Put(ctx, keyA, []byte("a")))
	require.NoError(t, store.Put(ctx, keyB, []byte("b")))

	clock = clock.Add(time.Hour)
	_, err := store.Get(ctx, keyB)
	require.NoError(t, err)

	removed, err := store.Sweep(ctx, clock.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 2, store.PutCalls)
}
