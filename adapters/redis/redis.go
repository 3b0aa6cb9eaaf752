// Package redis provides a Redis implementation of the event log adapter.
//
// Each stream is a Redis stream whose entry IDs are the record versions, with
// payloads kept in a companion hash so they can be scrubbed by Tombstone.
// All keys of one adapter share a prefix; the global position counter spans
// streams, so Redis Cluster is not supported.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Version constants for optimistic concurrency control.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "fold"

var (
	_ adapters.EventStoreAdapter = (*RedisAdapter)(nil)
	_ adapters.StreamReader      = (*RedisAdapter)(nil)
	_ adapters.Tombstoner        = (*RedisAdapter)(nil)
	_ adapters.HealthChecker     = (*RedisAdapter)(nil)
)

// Script result codes.
const (
	appendOK       = 0
	appendConflict = -1
	appendNoStream = -2
)

// appendScript checks the expected version and appends every record in one step.
//
// KEYS: stream, info, data, position
// ARGV: expected, timestamp, category, count, then id, type, data, metadata per record
var appendScript = redis.NewScript(`
local exists = redis.call('EXISTS', KEYS[2]) == 1
local current = tonumber(redis.call('HGET', KEYS[2], 'version') or '0')
local expected = tonumber(ARGV[1])

if expected == 0 and exists then
	return {-1, current}
end
if expected == -2 and not exists then
	return {-2, current}
end
if expected > 0 and current ~= expected then
	return {-1, current}
end

local out = {0, current}
local n = tonumber(ARGV[4])
for i = 0, n - 1 do
	local base = 5 + i * 4
	current = current + 1
	local position = redis.call('INCR', KEYS[4])
	redis.call('XADD', KEYS[1], current .. '-0',
		'id', ARGV[base], 'type', ARGV[base + 1], 'position', position, 'ts', ARGV[2])
	redis.call('HSET', KEYS[3], tostring(current), ARGV[base + 2], current .. ':m', ARGV[base + 3])
	table.insert(out, position)
end

if not exists then
	redis.call('HSET', KEYS[2], 'category', ARGV[3], 'created_at', ARGV[2])
end
redis.call('HSET', KEYS[2], 'version', current, 'updated_at', ARGV[2])
return out
`)

// tombstoneScript drops a record's payload if the version exists.
//
// KEYS: info, data
// ARGV: version
var tombstoneScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
local v = tonumber(ARGV[1])
if v < 1 or v > current then
	return 0
end
redis.call('HDEL', KEYS[2], tostring(v), v .. ':m')
return 1
`)

// RedisAdapter stores the event log in Redis.
type RedisAdapter struct {
	client   *redis.Client
	prefix   string
	pageSize int
	now      func() time.Time
	closed   atomic.Bool
}

// Option configures a RedisAdapter.
type Option func(*RedisAdapter)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(a *RedisAdapter) {
		a.prefix = prefix
	}
}

// WithPageSize sets how many records ReadStream fetches per round trip.
func WithPageSize(n int) Option {
	return func(a *RedisAdapter) {
		a.pageSize = n
	}
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *RedisAdapter) {
		a.now = now
	}
}

// NewAdapter creates an adapter over client. Close closes the client.
func NewAdapter(client *redis.Client, opts ...Option) *RedisAdapter {
	adapter := &RedisAdapter{
		client:   client,
		prefix:   DefaultPrefix,
		pageSize: adapters.DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Dial connects to the Redis server at addr.
func Dial(addr string, opts ...Option) *RedisAdapter {
	return NewAdapter(redis.NewClient(&redis.Options{Addr: addr}), opts...)
}

func (a *RedisAdapter) streamKey(streamID string) string {
	return a.prefix + ":stream:" + streamID
}

func (a *RedisAdapter) infoKey(streamID string) string {
	return a.prefix + ":streaminfo:" + streamID
}

func (a *RedisAdapter) dataKey(streamID string) string {
	return a.prefix + ":data:" + streamID
}

func (a *RedisAdapter) positionKey() string {
	return a.prefix + ":position"
}

// Initialize loads the scripts into the server's cache.
func (a *RedisAdapter) Initialize(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	for _, script := range []*redis.Script{appendScript, tombstoneScript} {
		if err := script.Load(ctx, a.client).Err(); err != nil {
			return fmt.Errorf("fold/redis: load script: %w", err)
		}
	}
	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *RedisAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if err := adapters.ValidateAppend(streamID, events); err != nil {
		return nil, err
	}
	if expectedVersion < adapters.StreamExists {
		return nil, adapters.ErrInvalidVersion
	}

	now := a.now().UTC()
	ids := make([]string, len(events))
	args := []interface{}{expectedVersion, now.UnixNano(), adapters.ExtractCategory(streamID), len(events)}
	for i, event := range events {
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("fold/redis: marshal metadata: %w", err)
		}
		ids[i] = uuid.NewString()
		args = append(args, ids[i], event.Type, event.Data, metadataJSON)
	}

	keys := []string{a.streamKey(streamID), a.infoKey(streamID), a.dataKey(streamID), a.positionKey()}
	result, err := appendScript.Run(ctx, a.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("fold/redis: append: %w", err)
	}

	current := result[1]
	switch result[0] {
	case appendConflict:
		return nil, adapters.NewConcurrencyError(streamID, expectedVersion, current)
	case appendNoStream:
		return nil, adapters.NewStreamNotFoundError(streamID)
	case appendOK:
	default:
		return nil, fmt.Errorf("fold/redis: append: unexpected script result %d", result[0])
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		stored[i] = adapters.StoredEvent{
			ID:             ids[i],
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        current + int64(i) + 1,
			GlobalPosition: uint64(result[2+i]),
			Timestamp:      now,
		}
	}
	return stored, nil
}

// Load retrieves all events from a stream starting from the specified version.
func (a *RedisAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	return a.loadPage(ctx, streamID, fromVersion, 0)
}

// ReadStream opens a cursor that fetches the stream one page at a time.
func (a *RedisAdapter) ReadStream(ctx context.Context, streamID string, fromVersion int64) (adapters.RecordIterator, error) {
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
func (a *RedisAdapter) loadPage(ctx context.Context, streamID string, after int64, limit int) ([]adapters.StoredEvent, error) {
	start := fmt.Sprintf("(%d-0", after)
	var messages []redis.XMessage
	var err error
	if limit > 0 {
		messages, err = a.client.XRangeN(ctx, a.streamKey(streamID), start, "+", int64(limit)).Result()
	} else {
		messages, err = a.client.XRange(ctx, a.streamKey(streamID), start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("fold/redis: load events: %w", err)
	}
	if len(messages) == 0 {
		return []adapters.StoredEvent{}, nil
	}

	fields := make([]string, 0, 2*len(messages))
	events := make([]adapters.StoredEvent, len(messages))
	for i, msg := range messages {
		event, err := decodeMessage(streamID, msg)
		if err != nil {
			return nil, err
		}
		events[i] = event
		v := strconv.FormatInt(event.Version, 10)
		fields = append(fields, v, v+":m")
	}

	payloads, err := a.client.HMGet(ctx, a.dataKey(streamID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("fold/redis: load payloads: %w", err)
	}
	for i := range events {
		data, ok := payloads[2*i].(string)
		if !ok {
			events[i].Tombstoned = true
			continue
		}
		events[i].Data = []byte(data)
		if meta, ok := payloads[2*i+1].(string); ok && meta != "" {
			if err := json.Unmarshal([]byte(meta), &events[i].Metadata); err != nil {
				return nil, fmt.Errorf("fold/redis: unmarshal metadata: %w", err)
			}
		}
	}
	return events, nil
}

func decodeMessage(streamID string, msg redis.XMessage) (adapters.StoredEvent, error) {
	version, err := parseEntryID(msg.ID)
	if err != nil {
		return adapters.StoredEvent{}, err
	}

	str := func(key string) string {
		s, _ := msg.Values[key].(string)
		return s
	}
	position, err := strconv.ParseUint(str("position"), 10, 64)
	if err != nil {
		return adapters.StoredEvent{}, fmt.Errorf("fold/redis: bad position in entry %s: %w", msg.ID, err)
	}
	ts, err := strconv.ParseInt(str("ts"), 10, 64)
	if err != nil {
		return adapters.StoredEvent{}, fmt.Errorf("fold/redis: bad timestamp in entry %s: %w", msg.ID, err)
	}

	return adapters.StoredEvent{
		ID:             str("id"),
		StreamID:       streamID,
		Type:           str("type"),
		Version:        version,
		GlobalPosition: position,
		Timestamp:      time.Unix(0, ts).UTC(),
	}, nil
}

// parseEntryID extracts the version from a "<version>-0" stream entry ID.
func parseEntryID(id string) (int64, error) {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			return strconv.ParseInt(id[:i], 10, 64)
		}
	}
	return 0, fmt.Errorf("fold/redis: malformed entry ID %q", id)
}

// Tombstone scrubs the payload and metadata of one record, keeping its position.
func (a *RedisAdapter) Tombstone(ctx context.Context, streamID string, version int64) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	found, err := tombstoneScript.Run(ctx, a.client, []string{a.infoKey(streamID), a.dataKey(streamID)}, version).Int()
	if err != nil {
		return fmt.Errorf("fold/redis: tombstone: %w", err)
	}
	if found == 0 {
		return adapters.ErrEventNotFound
	}
	return nil
}

// GetStreamInfo returns metadata about a stream.
func (a *RedisAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	fields, err := a.client.HGetAll(ctx, a.infoKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fold/redis: get stream info: %w", err)
	}
	if len(fields) == 0 {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}

	count, err := a.client.XLen(ctx, a.streamKey(streamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fold/redis: get stream info: %w", err)
	}

	version, _ := strconv.ParseInt(fields["version"], 10, 64)
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	return &adapters.StreamInfo{
		StreamID:   streamID,
		Category:   fields["category"],
		Version:    version,
		EventCount: count,
		CreatedAt:  time.Unix(0, created).UTC(),
		UpdatedAt:  time.Unix(0, updated).UTC(),
	}, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *RedisAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	pos, err := a.client.Get(ctx, a.positionKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fold/redis: get last position: %w", err)
	}
	return pos, nil
}

// Ping checks that the server answers.
func (a *RedisAdapter) Ping(ctx context.Context) error {
	if a.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return a.client.Ping(ctx).Err()
}

// Close closes the client.
func (a *RedisAdapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.client.Close()
}

// Client returns the underlying client.
func (a *RedisAdapter) Client() *redis.Client {
	return a.client
}

// Prefix returns the key prefix.
func (a *RedisAdapter) Prefix() string {
	return a.prefix
}
