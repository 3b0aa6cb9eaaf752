package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-fold/adapters"
)

// MockAdapter is a scripted adapters.EventStoreAdapter. It serves Events for
// every stream and returns the configured error from each operation.
type MockAdapter struct {
	AppendErr          error
	LoadErr            error
	ReadErr            error
	TombstoneErr       error
	GetStreamInfoErr   error
	GetLastPositionErr error
	PingErr            error
	Events             []adapters.StoredEvent

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockAdapter) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how many times op was invoked.
func (m *MockAdapter) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Append implements adapters.EventStoreAdapter.
func (m *MockAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	m.record("Append")
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	stored := make([]adapters.StoredEvent, len(events))
	for i, e := range events {
		stored[i] = adapters.StoredEvent{
			ID:             "event-" + e.Type,
			StreamID:       streamID,
			Type:           e.Type,
			Data:           e.Data,
			Metadata:       e.Metadata,
			Version:        int64(i + 1),
			GlobalPosition: uint64(i + 1),
			Timestamp:      time.Now(),
		}
	}
	return stored, nil
}

// Load implements adapters.EventStoreAdapter.
func (m *MockAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	m.record("Load")
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.after(fromVersion), nil
}

// ReadStream implements adapters.StreamReader.
func (m *MockAdapter) ReadStream(ctx context.Context, streamID string, fromVersion int64) (adapters.RecordIterator, error) {
	m.record("ReadStream")
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return adapters.NewSliceIterator(m.after(fromVersion)), nil
}

func (m *MockAdapter) after(fromVersion int64) []adapters.StoredEvent {
	out := make([]adapters.StoredEvent, 0, len(m.Events))
	for _, e := range m.Events {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out
}

// Tombstone implements adapters.Tombstoner.
func (m *MockAdapter) Tombstone(ctx context.Context, streamID string, version int64) error {
	m.record("Tombstone")
	return m.TombstoneErr
}

// GetStreamInfo implements adapters.EventStoreAdapter.
func (m *MockAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	m.record("GetStreamInfo")
	if m.GetStreamInfoErr != nil {
		return nil, m.GetStreamInfoErr
	}
	return &adapters.StreamInfo{
		StreamID:   streamID,
		Category:   adapters.ExtractCategory(streamID),
		Version:    int64(len(m.Events)),
		EventCount: int64(len(m.Events)),
	}, nil
}

// GetLastPosition implements adapters.EventStoreAdapter.
func (m *MockAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	m.record("GetLastPosition")
	if m.GetLastPositionErr != nil {
		return 0, m.GetLastPositionErr
	}
	if len(m.Events) == 0 {
		return 0, nil
	}
	return m.Events[len(m.Events)-1].GlobalPosition, nil
}

// Ping implements adapters.HealthChecker.
func (m *MockAdapter) Ping(ctx context.Context) error {
	m.record("Ping")
	return m.PingErr
}

// Initialize implements adapters.EventStoreAdapter.
func (m *MockAdapter) Initialize(ctx context.Context) error {
	m.record("Initialize")
	return nil
}

// Close implements adapters.EventStoreAdapter.
func (m *MockAdapter) Close() error {
	m.record("Close")
	return nil
}

var (
	_ adapters.EventStoreAdapter = (*MockAdapter)(nil)
	_ adapters.StreamReader      = (*MockAdapter)(nil)
	_ adapters.Tombstoner        = (*MockAdapter)(nil)
	_ adapters.HealthChecker     = (*MockAdapter)(nil)
)
