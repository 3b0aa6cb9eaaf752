package fold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AshkanYarmoradi/go-fold/adapters"
)

// EventStore is the main entry point for log operations.
// It serializes events on the way in and decodes them on the way out.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
}

// Logger defines the logging interface for the event store.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger that writes to l.
// Arguments are interpreted as alternating keys and values.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

// Option configures an EventStore.
type Option func(*EventStore)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// New creates a new EventStore with the given adapter and options.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		logger:     &noopLogger{},
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Serializer returns the event store's serializer.
func (s *EventStore) Serializer() Serializer {
	return s.serializer
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// Logger returns the event store's logger.
func (s *EventStore) Logger() Logger {
	return s.logger
}

// RegisterEvents registers event types with the serializer.
// It is a no-op for serializers that do not expose an EventRegistry.
func (s *EventStore) RegisterEvents(events ...interface{}) {
	if rp, ok := s.serializer.(RegistryProvider); ok {
		rp.Registry().RegisterAll(events...)
	}
}

// AppendOption configures an append operation.
type AppendOption func(*appendConfig)

type appendConfig struct {
	metadata        Metadata
	expectedVersion int64
}

// ExpectVersion sets the expected stream version for optimistic concurrency.
func ExpectVersion(v int64) AppendOption {
	return func(c *appendConfig) {
		c.expectedVersion = v
	}
}

// WithAppendMetadata sets metadata for all events in the append operation.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(c *appendConfig) {
		c.metadata = m
	}
}

// Append serializes events and stores them atomically in the specified stream.
func (s *EventStore) Append(ctx context.Context, streamID string, events []interface{}, opts ...AppendOption) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}

	if len(events) == 0 {
		return ErrNoEvents
	}

	config := &appendConfig{
		expectedVersion: AnyVersion,
	}

	for _, opt := range opts {
		opt(config)
	}

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		eventData, err := SerializeEvent(s.serializer, event, config.metadata)
		if err != nil {
			return fmt.Errorf("fold: failed to serialize event %d: %w", i, err)
		}

		records[i] = adapters.EventRecord{
			Type:     eventData.Type,
			Data:     eventData.Data,
			Metadata: metadataToAdapter(eventData.Metadata),
		}
	}

	stored, err := s.adapter.Append(ctx, streamID, records, config.expectedVersion)
	if err != nil {
		s.logger.Error("append failed", "stream", streamID, "expected", config.expectedVersion, "error", err)
		return err
	}

	s.logger.Debug("appended events", "stream", streamID, "count", len(stored),
		"version", stored[len(stored)-1].Version)
	return nil
}

// Load retrieves and decodes all events from a stream.
func (s *EventStore) Load(ctx context.Context, streamID string) ([]Event, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom retrieves events from a stream with a version greater than fromVersion.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error) {
	stored, err := s.LoadRaw(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(stored))
	for i, record := range stored {
		event, err := DeserializeEvent(s.serializer, record)
		if err != nil {
			return nil, fmt.Errorf("fold: failed to deserialize event %d: %w", i, err)
		}
		events[i] = event
	}

	return events, nil
}

// LoadRaw retrieves raw (non-deserialized) events from a stream.
func (s *EventStore) LoadRaw(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	storedEvents, err := s.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	result := make([]StoredEvent, len(storedEvents))
	for i, stored := range storedEvents {
		result[i] = storedFromAdapter(stored)
	}
	return result, nil
}

// Tombstone scrubs the payload of one record while keeping its position.
// Folds read the record as a missing entry afterwards.
func (s *EventStore) Tombstone(ctx context.Context, streamID string, version int64) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}

	tombstoner, ok := s.adapter.(adapters.Tombstoner)
	if !ok {
		return ErrTombstoneNotSupported
	}

	if err := tombstoner.Tombstone(ctx, streamID, version); err != nil {
		s.logger.Error("tombstone failed", "stream", streamID, "version", version, "error", err)
		return err
	}

	s.logger.Info("tombstoned event", "stream", streamID, "version", version)
	return nil
}

// GetStreamInfo returns metadata about a stream.
func (s *EventStore) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	info, err := s.adapter.GetStreamInfo(ctx, streamID)
	if err != nil {
		return nil, err
	}

	return &StreamInfo{
		StreamID:   info.StreamID,
		Category:   info.Category,
		Version:    info.Version,
		EventCount: info.EventCount,
		CreatedAt:  info.CreatedAt,
		UpdatedAt:  info.UpdatedAt,
	}, nil
}

// GetLastPosition returns the global position of the last stored event.
func (s *EventStore) GetLastPosition(ctx context.Context) (uint64, error) {
	return s.adapter.GetLastPosition(ctx)
}

// Ping checks the backend if the adapter supports health checks.
func (s *EventStore) Ping(ctx context.Context) error {
	if hc, ok := s.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Initialize sets up the required storage schema.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}

// Read opens a lazy, typed stream over the records of streamID.
//
// Tombstoned records become missing entries. A record whose payload does not
// decode to E fails with an UnknownEventError.
func Read[E any](ctx context.Context, store *EventStore, streamID string) (Stream[E], error) {
	return ReadFrom[E](ctx, store, streamID, 0)
}

// ReadFrom is like Read but starts after fromVersion.
func ReadFrom[E any](ctx context.Context, store *EventStore, streamID string, fromVersion int64) (Stream[E], error) {
	it, err := adapters.OpenStream(ctx, store.adapter, streamID, fromVersion)
	if err != nil {
		return nil, err
	}
	store.logger.Debug("opened stream", "stream", streamID, "from", fromVersion)
	return &recordStream[E]{it: it, store: store, streamID: streamID}, nil
}

type recordStream[E any] struct {
	it       adapters.RecordIterator
	store    *EventStore
	streamID string
}

func (r *recordStream[E]) Next(ctx context.Context) (Entry[E], error) {
	record, err := r.it.Next(ctx)
	if err != nil {
		return Entry[E]{}, err
	}
	if record.Tombstoned {
		r.store.logger.Debug("skipping tombstoned event", "stream", r.streamID, "version", record.Version)
		return Entry[E]{Version: record.Version, Missing: true}, nil
	}

	data, err := r.store.serializer.Deserialize(record.Data, record.Type)
	if err != nil {
		if errors.Is(err, ErrEventTypeNotRegistered) {
			return Entry[E]{}, &UnknownEventError{EventType: record.Type, StreamID: r.streamID, Version: record.Version}
		}
		return Entry[E]{}, fmt.Errorf("fold: %s@%d: %w", r.streamID, record.Version, err)
	}

	event, ok := data.(E)
	if !ok {
		return Entry[E]{}, &UnknownEventError{EventType: record.Type, StreamID: r.streamID, Version: record.Version}
	}
	return Entry[E]{Event: event, Version: record.Version}, nil
}

func (r *recordStream[E]) Close() error {
	return r.it.Close()
}
