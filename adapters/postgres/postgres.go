// Package postgres provides a PostgreSQL implementation of the event log adapter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Version constants for optimistic concurrency control.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// DefaultSchema is the schema used when none is configured.
const DefaultSchema = "fold"

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// Ensure PostgresAdapter implements required interfaces.
var (
	_ adapters.EventStoreAdapter = (*PostgresAdapter)(nil)
	_ adapters.StreamReader      = (*PostgresAdapter)(nil)
	_ adapters.Tombstoner        = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker     = (*PostgresAdapter)(nil)
)

// PostgresAdapter is a PostgreSQL implementation of EventStoreAdapter.
type PostgresAdapter struct {
	db       *sql.DB
	schema   string
	pageSize int
	closed   atomic.Bool
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// WithPageSize sets how many records ReadStream fetches per query.
func WithPageSize(n int) Option {
	return func(a *PostgresAdapter) {
		a.pageSize = n
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxIdleConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) {
		a.db.SetConnMaxLifetime(d)
	}
}

// NewAdapter opens a PostgreSQL event log at connStr.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to open database: %w", err)
	}
	return NewAdapterWithDB(db, opts...), nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *PostgresAdapter {
	adapter := &PostgresAdapter{
		db:       db,
		schema:   DefaultSchema,
		pageSize: adapters.DefaultPageSize,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

func (a *PostgresAdapter) table(name string) string {
	return pgx.Identifier{a.schema, name}.Sanitize()
}

// Initialize creates the schema, tables and indexes. It is idempotent.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}

	statements := []struct {
		what string
		sql  string
	}{
		{"schema", fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{a.schema}.Sanitize())},
		{"streams table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				stream_id   VARCHAR(500) PRIMARY KEY,
				category    VARCHAR(250) NOT NULL,
				version     BIGINT NOT NULL DEFAULT 0,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, a.table("streams"))},
		{"events table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				global_position BIGSERIAL PRIMARY KEY,
				stream_id       VARCHAR(500) NOT NULL,
				version         BIGINT NOT NULL,
				event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
				event_type      VARCHAR(500) NOT NULL,
				data            BYTEA,
				metadata        JSONB,
				tombstoned      BOOLEAN NOT NULL DEFAULT FALSE,
				timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(stream_id, version)
			)`, a.table("events"))},
		{"category index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_category ON %s(category)`, a.table("streams"))},
		{"type index", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_type ON %s(event_type)`, a.table("events"))},
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("fold/postgres: failed to create %s: %w", stmt.what, err)
		}
	}
	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if err := adapters.ValidateAppend(streamID, events); err != nil {
		return nil, err
	}
	if expectedVersion < adapters.StreamExists {
		return nil, adapters.ErrInvalidVersion
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The row lock serializes writers of an existing stream.
	var currentVersion int64
	streamExists := true
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT version FROM %s
		WHERE stream_id = $1
		FOR UPDATE`, a.table("streams")), streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		streamExists = false
	} else if err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	if !streamExists {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (stream_id, category, version)
			VALUES ($1, $2, 0)`, a.table("streams")), streamID, adapters.ExtractCategory(streamID))
		if err != nil {
			// Another writer created the stream first.
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, 0)
			}
			return nil, fmt.Errorf("fold/postgres: failed to create stream: %w", err)
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("fold/postgres: failed to marshal metadata: %w", err)
		}

		var globalPosition int64
		var eventID string
		var timestamp time.Time
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (stream_id, version, event_type, data, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING global_position, event_id, timestamp`, a.table("events")),
			streamID, currentVersion, event.Type, event.Data, metadataJSON,
		).Scan(&globalPosition, &eventID, &timestamp)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, currentVersion-1)
			}
			return nil, fmt.Errorf("fold/postgres: failed to insert event: %w", err)
		}

		stored[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(globalPosition),
			Timestamp:      timestamp,
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET version = $1, updated_at = NOW()
		WHERE stream_id = $2`, a.table("streams")), currentVersion, streamID)
	if err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to commit transaction: %w", err)
	}

	return stored, nil
}

// Load retrieves all events from a stream starting from the specified version.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	return a.loadPage(ctx, streamID, fromVersion, 0)
}

// ReadStream opens a cursor that fetches the stream one page at a time.
func (a *PostgresAdapter) ReadStream(ctx context.Context, streamID string, fromVersion int64) (adapters.RecordIterator, error) {
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

// loadPage reads records after the given version. A limit of 0 reads them all.
func (a *PostgresAdapter) loadPage(ctx context.Context, streamID string, after int64, limit int) ([]adapters.StoredEvent, error) {
	query := fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, tombstoned, timestamp
		FROM %s
		WHERE stream_id = $1 AND version > $2
		ORDER BY version`, a.table("events"))
	args := []interface{}{streamID, after}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var event adapters.StoredEvent
		var globalPosition int64
		var metadataJSON []byte

		err := rows.Scan(
			&globalPosition,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&event.Tombstoned,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("fold/postgres: failed to scan event: %w", err)
		}
		event.GlobalPosition = uint64(globalPosition)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("fold/postgres: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fold/postgres: error iterating events: %w", err)
	}

	return events, nil
}

// Tombstone scrubs the payload and metadata of one record, keeping its position.
func (a *PostgresAdapter) Tombstone(ctx context.Context, streamID string, version int64) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	result, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET data = NULL, metadata = NULL, tombstoned = TRUE
		WHERE stream_id = $1 AND version = $2`, a.table("events")), streamID, version)
	if err != nil {
		return fmt.Errorf("fold/postgres: failed to tombstone event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fold/postgres: failed to tombstone event: %w", err)
	}
	if n == 0 {
		return adapters.ErrEventNotFound
	}
	return nil
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT s.stream_id, s.category, s.version, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM %s e WHERE e.stream_id = s.stream_id)
		FROM %s s
		WHERE s.stream_id = $1`, a.table("events"), a.table("streams")), streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&info.CreatedAt,
		&info.UpdatedAt,
		&info.EventCount,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("fold/postgres: failed to get stream info: %w", err)
	}

	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	var pos sql.NullInt64
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MAX(global_position) FROM %s`, a.table("events"))).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("fold/postgres: failed to get last position: %w", err)
	}

	if pos.Valid {
		return uint64(pos.Int64), nil
	}
	return 0, nil
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close releases the database connection.
func (a *PostgresAdapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}

// DB returns the underlying database connection.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
