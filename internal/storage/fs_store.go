package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FSStore is a filesystem-based implementation of ObjectStore.
// It stores objects in a content-addressable layout:
//
//	<base>/
//	  objects/
//	    ab/
//	      cd1234... (first 2 chars = subdir, rest = filename)
//	  tmp/        (staging area for atomic writes)
//
// Writes go to tmp/ and are renamed into place. The modification time of an
// object records its last read, which Sweep uses for retention.
type FSStore struct {
	basePath string
}

// NewFSStore creates the directory layout under basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	for _, dir := range []string{
		filepath.Join(basePath, "objects"),
		filepath.Join(basePath, "tmp"),
	} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &FSStore{basePath: basePath}, nil
}

// Put writes data to a temp file and renames it over the object path.
func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	objectPath := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.basePath, "tmp"), key[:8]+"-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp object: %w", err)
	}
	if err := os.Rename(tmpName, objectPath); err != nil {
		cleanup()
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// Get reads an object and refreshes its access time.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	objectPath := s.objectPath(key)
	// #nosec G304 - objectPath is built from a validated hex key
	data, err := os.ReadFile(objectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	now := time.Now()
	_ = os.Chtimes(objectPath, now, now)
	return data, nil
}

// Exists checks if an object with the given key exists.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// Delete removes an object.
func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	objectPath := s.objectPath(key)
	if err := os.Remove(objectPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete object: %w", err)
	}
	_ = os.Remove(filepath.Dir(objectPath)) // only succeeds when empty
	return nil
}

// List returns all stored keys, sorted.
func (s *FSStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.walk(ctx, func(key string, _ fs.FileInfo) error {
		keys = append(keys, key)
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// Sweep removes objects not read since cutoff.
func (s *FSStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.walk(ctx, func(key string, info fs.FileInfo) error {
		if info.ModTime().Before(cutoff) {
			if err := s.Delete(ctx, key); err != nil && !IsNotFound(err) {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close releases resources.
func (s *FSStore) Close() error {
	return nil
}

func (s *FSStore) walk(ctx context.Context, fn func(key string, info fs.FileInfo) error) error {
	objectsDir := filepath.Join(s.basePath, "objects")
	err := filepath.WalkDir(objectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(objectsDir, path)
		if err != nil {
			return nil
		}
		key := strings.ReplaceAll(rel, string(filepath.Separator), "")
		if validateKey(key) != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // removed concurrently
		}
		return fn(key, info)
	})
	if err != nil {
		return fmt.Errorf("walk objects: %w", err)
	}
	return nil
}

// objectPath uses the first 2 chars as directory, rest as filename.
func (s *FSStore) objectPath(key string) string {
	return filepath.Join(s.basePath, "objects", key[:2], key[2:])
}
