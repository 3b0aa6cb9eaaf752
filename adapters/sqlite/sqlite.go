// Package sqlite provides an embedded SQLite implementation of the event log
// adapter, built on the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Version constants for optimistic concurrency control.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

var (
	_ adapters.EventStoreAdapter = (*SQLiteAdapter)(nil)
	_ adapters.StreamReader      = (*SQLiteAdapter)(nil)
	_ adapters.Tombstoner        = (*SQLiteAdapter)(nil)
	_ adapters.HealthChecker     = (*SQLiteAdapter)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS streams (
	stream_id   TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_streams_category ON streams(category);
CREATE TABLE IF NOT EXISTS events (
	global_position INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id        TEXT NOT NULL UNIQUE,
	stream_id       TEXT NOT NULL REFERENCES streams(stream_id),
	version         INTEGER NOT NULL,
	event_type      TEXT NOT NULL,
	data            BLOB,
	metadata        TEXT,
	tombstoned      INTEGER NOT NULL DEFAULT 0,
	timestamp       INTEGER NOT NULL,
	UNIQUE(stream_id, version)
);
`

// SQLiteAdapter stores the event log in a single SQLite database file.
type SQLiteAdapter struct {
	db       *sql.DB
	now      func() time.Time
	pageSize int
	closed   atomic.Bool
}

// Option configures a SQLiteAdapter.
type Option func(*SQLiteAdapter)

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *SQLiteAdapter) {
		a.now = now
	}
}

// WithPageSize sets how many records ReadStream fetches per query.
func WithPageSize(n int) Option {
	return func(a *SQLiteAdapter) {
		a.pageSize = n
	}
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-memory log.
func Open(path string, opts ...Option) (*SQLiteAdapter, error) {
	if path == "" {
		return nil, fmt.Errorf("fold/sqlite: storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("fold/sqlite: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fold/sqlite: ping database: %w", err)
	}

	return NewAdapterWithDB(db, opts...), nil
}

// NewAdapterWithDB wraps an open database. SQLite allows one writer at a
// time, so the pool is limited to a single connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *SQLiteAdapter {
	db.SetMaxOpenConns(1)

	adapter := &SQLiteAdapter{
		db:       db,
		now:      time.Now,
		pageSize: adapters.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Initialize creates the tables. It is idempotent.
func (a *SQLiteAdapter) Initialize(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("fold/sqlite: create schema: %w", err)
	}
	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *SQLiteAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if err := adapters.ValidateAppend(streamID, events); err != nil {
		return nil, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fold/sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	streamExists := true
	err = tx.QueryRowContext(ctx, `SELECT version FROM streams WHERE stream_id = ?`, streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		streamExists = false
	} else if err != nil {
		return nil, fmt.Errorf("fold/sqlite: get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	now := a.now().UTC()
	if !streamExists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO streams (stream_id, category, version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
			streamID, adapters.ExtractCategory(streamID), now.UnixNano(), now.UnixNano())
		if err != nil {
			if isConstraintError(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, 0)
			}
			return nil, fmt.Errorf("fold/sqlite: create stream: %w", err)
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("fold/sqlite: marshal metadata: %w", err)
		}

		eventID := uuid.NewString()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			eventID, streamID, currentVersion, event.Type, event.Data, string(metadataJSON), now.UnixNano())
		if err != nil {
			if isConstraintError(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion-1)
			}
			return nil, fmt.Errorf("fold/sqlite: insert event: %w", err)
		}
		position, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("fold/sqlite: insert event: %w", err)
		}

		stored[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(position),
			Timestamp:      now,
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE streams SET version = ?, updated_at = ? WHERE stream_id = ?`,
		currentVersion, now.UnixNano(), streamID)
	if err != nil {
		return nil, fmt.Errorf("fold/sqlite: update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isBusyError(err) {
			return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion)
		}
		return nil, fmt.Errorf("fold/sqlite: commit: %w", err)
	}
	return stored, nil
}

// Load retrieves all events from a stream starting from the specified version.
func (a *SQLiteAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	return a.loadPage(ctx, streamID, fromVersion, -1)
}

// ReadStream opens a cursor that fetches the stream one page at a time.
func (a *SQLiteAdapter) ReadStream(ctx context.Context, streamID string, fromVersion int64) (adapters.RecordIterator, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	fetch := func(ctx context.Context, after int64, limit int) ([]adapters.StoredEvent, error) {
		if a.closed.Load() {
			return nil, adapters.ErrAdapterClosed
		}
		return a.loadPage(ctx, streamID, after, limit)
	}
	return adapters.NewPagedIterator(fetch, fromVersion, a.pageSize), nil
}

// loadPage reads records after the given version. A negative limit reads them all.
func (a *SQLiteAdapter) loadPage(ctx context.Context, streamID string, after int64, limit int) ([]adapters.StoredEvent, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, tombstoned, timestamp
		FROM events
		WHERE stream_id = ? AND version > ?
		ORDER BY version
		LIMIT ?`, streamID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("fold/sqlite: load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var (
			event     adapters.StoredEvent
			position  int64
			metadata  sql.NullString
			timestamp int64
		)
		err := rows.Scan(
			&position,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadata,
			&event.Tombstoned,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("fold/sqlite: scan event: %w", err)
		}
		event.GlobalPosition = uint64(position)
		event.Timestamp = time.Unix(0, timestamp).UTC()

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("fold/sqlite: unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fold/sqlite: iterate events: %w", err)
	}
	return events, nil
}

// Tombstone scrubs the payload and metadata of one record, keeping its position.
func (a *SQLiteAdapter) Tombstone(ctx context.Context, streamID string, version int64) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	result, err := a.db.ExecContext(ctx,
		`UPDATE events SET data = NULL, metadata = NULL, tombstoned = 1 WHERE stream_id = ? AND version = ?`,
		streamID, version)
	if err != nil {
		return fmt.Errorf("fold/sqlite: tombstone event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fold/sqlite: tombstone event: %w", err)
	}
	if n == 0 {
		return adapters.ErrEventNotFound
	}
	return nil
}

// GetStreamInfo returns metadata about a stream.
func (a *SQLiteAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	var (
		info             adapters.StreamInfo
		created, updated int64
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT s.stream_id, s.category, s.version, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM events e WHERE e.stream_id = s.stream_id)
		FROM streams s
		WHERE s.stream_id = ?`, streamID).Scan(
		&info.StreamID, &info.Category, &info.Version, &created, &updated, &info.EventCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("fold/sqlite: get stream info: %w", err)
	}

	info.CreatedAt = time.Unix(0, created).UTC()
	info.UpdatedAt = time.Unix(0, updated).UTC()
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *SQLiteAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	var pos sql.NullInt64
	if err := a.db.QueryRowContext(ctx, `SELECT MAX(global_position) FROM events`).Scan(&pos); err != nil {
		return 0, fmt.Errorf("fold/sqlite: get last position: %w", err)
	}
	if pos.Valid {
		return uint64(pos.Int64), nil
	}
	return 0, nil
}

// Ping checks that the database answers.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close releases the database.
func (a *SQLiteAdapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}

// DB returns the underlying database connection.
func (a *SQLiteAdapter) DB() *sql.DB {
	return a.db
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
