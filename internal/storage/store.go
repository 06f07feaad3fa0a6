// Package storage provides key-addressed blob storage for the execution cache.
//
// Keys are lowercase hex content hashes computed by the caller. A Put either
// lands completely or not at all, so a concurrent Get never observes a torn
// value.
package storage

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ObjectStore stores immutable blobs by key.
type ObjectStore interface {
	// Put stores data under key, atomically replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the value for key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks if key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// List returns all keys, sorted.
	List(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Sweeper is implemented by stores that can evict entries not read since
// a cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (removed int, err error)
}

// ErrNotFound is returned when a key doesn't exist.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Key
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// ErrInvalidKey is returned for keys that are not lowercase hex.
var ErrInvalidKey = errors.New("invalid object key")

var keyPattern = regexp.MustCompile(`^[0-9a-f]{8,128}$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}
