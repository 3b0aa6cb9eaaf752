// Package adapters provides interfaces and shared utilities for event log backends.
package adapters

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking.
	AnyVersion int64 = -1

	// NoStream requires the stream to not exist. Use for creating new streams.
	NoStream int64 = 0

	// StreamExists requires the stream to exist.
	StreamExists int64 = -2
)

// DefaultPageSize is the number of records fetched per round trip by paging readers.
const DefaultPageSize = 256

// ExtractCategory extracts the category from a stream ID.
// Stream IDs are expected to follow the format "Category-ID" (e.g., "shopping_cart-123").
// The category is the portion before the first hyphen.
//
// Behavior:
//   - "shopping_cart-123" returns "shopping_cart"
//   - "User-abc-def" returns "User" (only splits on first hyphen)
//   - "NoHyphen" returns "NoHyphen" (entire ID if no hyphen)
//   - "" returns ""
func ExtractCategory(streamID string) string {
	if streamID == "" {
		return ""
	}
	parts := strings.SplitN(streamID, "-", 2)
	return parts[0]
}

// ConcurrencyError provides details about a concurrency conflict.
// It is returned when an optimistic concurrency check fails during Append operations.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		StreamID:        streamID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("fold: concurrency conflict on stream %q: expected version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is implements errors.Is compatibility.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// Unwrap returns the underlying sentinel for errors.Unwrap().
func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrencyConflict
}

// StreamNotFoundError provides details about a missing stream.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

// Error implements the error interface.
func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("fold: stream %q not found", e.StreamID)
}

// Is implements errors.Is compatibility.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound
}

// Unwrap returns the underlying sentinel for errors.Unwrap().
func (e *StreamNotFoundError) Unwrap() error {
	return ErrStreamNotFound
}

// CheckVersion validates the expected version against the current version.
// This implements the optimistic concurrency control logic shared by all adapters.
//
// Parameters:
//   - streamID: The stream identifier (used for error messages)
//   - expected: The expected version (AnyVersion, NoStream, StreamExists, or a positive version)
//   - current: The current version of the stream
//   - exists: Whether the stream currently exists
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch expected {
	case AnyVersion:
		return nil
	case NoStream:
		if exists {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	case StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	default:
		if expected < 0 {
			return ErrInvalidVersion
		}
		if current != expected {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	}
}

// ValidateAppend performs the argument checks every adapter runs before appending.
func ValidateAppend(streamID string, events []EventRecord) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	return nil
}

// DefaultLimit returns a default limit value if the provided limit is invalid.
func DefaultLimit(limit, defaultValue int) int {
	if limit <= 0 {
		return defaultValue
	}
	return limit
}

// sliceIterator iterates over an already loaded slice of records.
type sliceIterator struct {
	events []StoredEvent
	pos    int
	closed bool
}

// NewSliceIterator returns a RecordIterator over events.
// The iterator takes ownership of the slice.
func NewSliceIterator(events []StoredEvent) RecordIterator {
	return &sliceIterator{events: events}
}

func (it *sliceIterator) Next(ctx context.Context) (StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return StoredEvent{}, err
	}
	if it.closed || it.pos >= len(it.events) {
		return StoredEvent{}, io.EOF
	}
	event := it.events[it.pos]
	it.pos++
	return event, nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	it.events = nil
	return nil
}

// OpenStream opens a lazy cursor on adapter if it implements StreamReader,
// and otherwise falls back to Load followed by an in-memory iterator.
func OpenStream(ctx context.Context, adapter EventStoreAdapter, streamID string, fromVersion int64) (RecordIterator, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	if reader, ok := adapter.(StreamReader); ok {
		return reader.ReadStream(ctx, streamID, fromVersion)
	}
	events, err := adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}
	return NewSliceIterator(events), nil
}

// PageFunc fetches up to limit records with a version greater than after, in version order.
type PageFunc func(ctx context.Context, after int64, limit int) ([]StoredEvent, error)

// pagedIterator walks a stream one page at a time. No backend resources are
// held between calls to Next.
type pagedIterator struct {
	fetch    PageFunc
	pageSize int
	after    int64
	page     []StoredEvent
	pos      int
	done     bool
	closed   bool
}

// NewPagedIterator returns a RecordIterator that calls fetch for successive
// pages of pageSize records, starting after fromVersion. A short page ends the stream.
func NewPagedIterator(fetch PageFunc, fromVersion int64, pageSize int) RecordIterator {
	return &pagedIterator{
		fetch:    fetch,
		pageSize: DefaultLimit(pageSize, DefaultPageSize),
		after:    fromVersion,
	}
}

func (it *pagedIterator) Next(ctx context.Context) (StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return StoredEvent{}, err
	}
	if it.closed {
		return StoredEvent{}, io.EOF
	}

	if it.pos >= len(it.page) {
		if it.done {
			return StoredEvent{}, io.EOF
		}
		page, err := it.fetch(ctx, it.after, it.pageSize)
		if err != nil {
			return StoredEvent{}, err
		}
		it.page, it.pos = page, 0
		it.done = len(page) < it.pageSize
		if len(page) == 0 {
			return StoredEvent{}, io.EOF
		}
	}

	event := it.page[it.pos]
	it.pos++
	it.after = event.Version
	return event, nil
}

func (it *pagedIterator) Close() error {
	it.closed = true
	it.page = nil
	return nil
}
