package fold

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-fold/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
// Log store errors are aliases to the adapters package errors so that a check
// against either package matches.
var (
	// ErrStreamNotFound indicates that a fold saw no usable events, or that the
	// requested stream does not exist.
	ErrStreamNotFound = adapters.ErrStreamNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrEmptyStreamID indicates an empty stream ID was provided.
	ErrEmptyStreamID = adapters.ErrEmptyStreamID

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = adapters.ErrNoEvents

	// ErrInvalidVersion indicates an invalid version number was provided.
	ErrInvalidVersion = adapters.ErrInvalidVersion

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed

	// ErrEventNotFound indicates the addressed record does not exist.
	ErrEventNotFound = adapters.ErrEventNotFound

	// ErrTombstoneNotSupported indicates the adapter cannot tombstone records.
	ErrTombstoneNotSupported = adapters.ErrTombstoneNotSupported

	// ErrSerializationFailed indicates event serialization/deserialization failed.
	ErrSerializationFailed = errors.New("fold: serialization failed")

	// ErrEventTypeNotRegistered indicates an unknown event type was encountered.
	ErrEventTypeNotRegistered = errors.New("fold: event type not registered")

	// ErrUnknownEvent indicates an event variant that the reducer has no transition for.
	ErrUnknownEvent = errors.New("fold: unknown event type")

	// ErrNilReducer indicates a nil reducer was passed to a fold.
	ErrNilReducer = errors.New("fold: nil reducer")

	// ErrNilStream indicates a nil stream was passed to a fold.
	ErrNilStream = errors.New("fold: nil stream")
)

// ConcurrencyError provides detailed information about a concurrency conflict.
type ConcurrencyError = adapters.ConcurrencyError

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return adapters.NewConcurrencyError(streamID, expected, actual)
}

// StreamNotFoundError provides detailed information about a missing stream.
type StreamNotFoundError = adapters.StreamNotFoundError

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return adapters.NewStreamNotFoundError(streamID)
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("fold: failed to %s event type %q: %v",
		e.Operation, e.EventType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{
		EventType: eventType,
		Operation: operation,
		Cause:     cause,
	}
}

// EventTypeNotRegisteredError provides detailed information about an unregistered event type.
type EventTypeNotRegisteredError struct {
	EventType string
}

// Error returns the error message.
func (e *EventTypeNotRegisteredError) Error() string {
	return fmt.Sprintf("fold: event type %q not registered", e.EventType)
}

// Is reports whether this error matches the target error.
func (e *EventTypeNotRegisteredError) Is(target error) bool {
	return target == ErrEventTypeNotRegistered
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *EventTypeNotRegisteredError) Unwrap() error {
	return ErrEventTypeNotRegistered
}

// NewEventTypeNotRegisteredError creates a new EventTypeNotRegisteredError.
func NewEventTypeNotRegisteredError(eventType string) *EventTypeNotRegisteredError {
	return &EventTypeNotRegisteredError{EventType: eventType}
}

// UnknownEventError reports an event that no transition is defined for.
// StreamID and Version are set when the event was read from a log.
type UnknownEventError struct {
	EventType string
	StreamID  string
	Version   int64
}

// Error returns the error message.
func (e *UnknownEventError) Error() string {
	if e.StreamID == "" {
		return fmt.Sprintf("fold: unknown event type %q", e.EventType)
	}
	return fmt.Sprintf("fold: unknown event type %q at %s@%d", e.EventType, e.StreamID, e.Version)
}

// Is reports whether this error matches the target error.
func (e *UnknownEventError) Is(target error) bool {
	return target == ErrUnknownEvent
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *UnknownEventError) Unwrap() error {
	return ErrUnknownEvent
}

// NewUnknownEventError creates a new UnknownEventError.
func NewUnknownEventError(eventType string) *UnknownEventError {
	return &UnknownEventError{EventType: eventType}
}
