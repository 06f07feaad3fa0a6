package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps objects in a JetStream key-value bucket so that several
// machines can share one execution cache. A KV put is atomic per key.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

// NATSOptions configures the bucket.
type NATSOptions struct {
	URL    string
	Bucket string
	// TTL expires entries by age when non-zero.
	TTL time.Duration
}

// NewNATSStore connects to NATS and opens or creates the bucket.
func NewNATSStore(ctx context.Context, opts NATSOptions) (*NATSStore, error) {
	conn, err := nats.Connect(opts.URL, nats.Name("sitegen"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, opts.Bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      opts.Bucket,
			Description: "sitegen code execution cache",
			History:     1,
			TTL:         opts.TTL,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create KV bucket: %w", err)
		}
		slog.Info("Created KV bucket for execution cache", "bucket", opts.Bucket)
	}
	return &NATSStore{conn: conn, kv: kv, bucket: opts.Bucket}, nil
}

func (s *NATSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return entry.Value(), nil
}

func (s *NATSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.kv.Get(ctx, key); errors.Is(err, jetstream.ErrKeyNotFound) {
		return ErrNotFound{Key: key}
	}
	return s.kv.Purge(ctx, key)
}

func (s *NATSStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the NATS connection.
func (s *NATSStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
