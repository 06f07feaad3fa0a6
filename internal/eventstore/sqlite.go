package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"

	_ "modernc.org/sqlite"
)

// HistoryFile is the database file name inside the cache directory.
const HistoryFile = "history.db"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the build history inside cacheDir.
func Open(cacheDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create cache directory").
			WithContext("path", cacheDir).
			Build()
	}
	return NewSQLiteStore(filepath.Join(cacheDir, HistoryFile))
}

// NewSQLiteStore creates a new SQLite-based history store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryEventStore, ErrDatabaseOpenFailed.Message()).
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryEventStore, ErrInitializeSchemaFailed.Message()).
			WithContext("path", dbPath).
			Build()
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	CREATE INDEX IF NOT EXISTS idx_builds_outcome ON builds(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a build record to the store.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO builds (build_id, kind, outcome, started_at, duration_ms, payload) VALUES (?, ?, ?, ?, ?, ?)",
		rec.BuildID, rec.Kind, rec.Outcome, rec.StartedAt.UnixMilli(), rec.Duration.Milliseconds(), payload,
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryEventStore, "failed to append build record").
			WithContext("build_id", rec.BuildID).
			Build()
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, payload FROM builds ORDER BY started_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Get returns the record for buildID.
func (s *SQLiteStore) Get(ctx context.Context, buildID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id      int64
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, payload FROM builds WHERE build_id = ?", buildID).Scan(&id, &payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound.WithContext("build_id", buildID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("query build: %w", err)
	}
	return decodeRecord(id, payload)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		rec, err := decodeRecord(id, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func decodeRecord(id int64, payload []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal build record: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
