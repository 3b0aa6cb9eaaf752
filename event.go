package fold

import (
	"fmt"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-fold/adapters"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking, allowing append regardless of current version.
	AnyVersion = adapters.AnyVersion

	// NoStream indicates the stream must not exist (for creating new streams).
	NoStream = adapters.NoStream

	// StreamExists indicates the stream must exist (for appending to existing streams).
	StreamExists = adapters.StreamExists
)

// StreamID uniquely identifies an event stream.
// It consists of a category (entity type) and an instance ID.
type StreamID struct {
	// Category represents the entity type (e.g., "shopping_cart").
	Category string

	// ID is the unique identifier within the category.
	ID string
}

// NewStreamID creates a new StreamID from category and ID.
func NewStreamID(category, id string) StreamID {
	return StreamID{Category: category, ID: id}
}

// ParseStreamID parses a stream ID string in the format "Category-ID".
// The ID part may itself contain hyphens.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return StreamID{}, fmt.Errorf("fold: invalid stream ID format %q, expected 'Category-ID'", s)
	}
	return StreamID{Category: parts[0], ID: parts[1]}, nil
}

// String returns the stream ID as "Category-ID".
func (s StreamID) String() string {
	return BuildStreamID(s.Category, s.ID)
}

// Metadata contains contextual information about an event.
type Metadata struct {
	// CorrelationID links related events across services for distributed tracing.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the event or command that caused this event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies the user who triggered this event.
	UserID string `json:"userId,omitempty"`

	// TenantID identifies the tenant for multi-tenant applications.
	TenantID string `json:"tenantId,omitempty"`

	// Custom contains arbitrary key-value pairs for application-specific metadata.
	Custom map[string]string `json:"custom,omitempty"`
}

// WithCorrelationID returns a copy of Metadata with the correlation ID set.
func (m Metadata) WithCorrelationID(id string) Metadata {
	m.CorrelationID = id
	return m
}

// WithUserID returns a copy of Metadata with the user ID set.
func (m Metadata) WithUserID(id string) Metadata {
	m.UserID = id
	return m
}

// WithCustom returns a copy of Metadata with a custom key-value pair added.
// The receiver's map is never modified.
func (m Metadata) WithCustom(key, value string) Metadata {
	custom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		custom[k] = v
	}
	custom[key] = value
	m.Custom = custom
	return m
}

// IsEmpty reports whether the Metadata has no values set.
func (m Metadata) IsEmpty() bool {
	return m.CorrelationID == "" &&
		m.CausationID == "" &&
		m.UserID == "" &&
		m.TenantID == "" &&
		len(m.Custom) == 0
}

// EventData represents a serialized event ready to be stored.
type EventData struct {
	// Type is the event type identifier (e.g., "shopping-cart-opened").
	Type string

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata
}

// StoredEvent represents a persisted log record with all storage metadata.
type StoredEvent struct {
	ID             string
	StreamID       string
	Type           string
	Data           []byte
	Metadata       Metadata
	Version        int64
	GlobalPosition uint64
	Timestamp      time.Time

	// Tombstoned is set when the record's payload has been scrubbed.
	Tombstoned bool
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	StreamID   string
	Category   string
	Version    int64
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Event represents a deserialized event with its data as a Go type.
// Data is nil for tombstoned records.
type Event struct {
	ID             string
	StreamID       string
	Type           string
	Data           interface{}
	Metadata       Metadata
	Version        int64
	GlobalPosition uint64
	Timestamp      time.Time
	Tombstoned     bool
}

// EventFromStored creates an Event from a StoredEvent with deserialized data.
func EventFromStored(stored StoredEvent, data interface{}) Event {
	return Event{
		ID:             stored.ID,
		StreamID:       stored.StreamID,
		Type:           stored.Type,
		Data:           data,
		Metadata:       stored.Metadata,
		Version:        stored.Version,
		GlobalPosition: stored.GlobalPosition,
		Timestamp:      stored.Timestamp,
		Tombstoned:     stored.Tombstoned,
	}
}

func metadataToAdapter(m Metadata) adapters.Metadata {
	return adapters.Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Custom:        m.Custom,
	}
}

func metadataFromAdapter(m adapters.Metadata) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Custom:        m.Custom,
	}
}

func storedFromAdapter(s adapters.StoredEvent) StoredEvent {
	return StoredEvent{
		ID:             s.ID,
		StreamID:       s.StreamID,
		Type:           s.Type,
		Data:           s.Data,
		Metadata:       metadataFromAdapter(s.Metadata),
		Version:        s.Version,
		GlobalPosition: s.GlobalPosition,
		Timestamp:      s.Timestamp,
		Tombstoned:     s.Tombstoned,
	}
}
