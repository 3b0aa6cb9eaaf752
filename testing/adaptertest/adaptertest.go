// Package adaptertest provides a behavioral test suite shared by every event log adapter.
//
// Adapter packages call Run from their own tests with a factory that returns a fresh,
// initialized adapter:
//
//	func TestConformance(t *testing.T) {
//	    adaptertest.Run(t, func(t *testing.T) adapters.EventStoreAdapter {
//	        return memory.NewAdapter()
//	    })
//	}
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh adapter that is ready for use.
// Cleanup should be registered with t.Cleanup.
type Factory func(t *testing.T) adapters.EventStoreAdapter

// Run executes the conformance suite against adapters created by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("Append", func(t *testing.T) { testAppend(t, factory) })
	t.Run("Load", func(t *testing.T) { testLoad(t, factory) })
	t.Run("ReadStream", func(t *testing.T) { testReadStream(t, factory) })
	t.Run("Tombstone", func(t *testing.T) { testTombstone(t, factory) })
	t.Run("StreamInfo", func(t *testing.T) { testStreamInfo(t, factory) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, factory) })
}

// Records builds n records of the given type with small JSON payloads.
func Records(eventType string, n int) []adapters.EventRecord {
	records := make([]adapters.EventRecord, n)
	for i := range records {
		records[i] = adapters.EventRecord{
			Type: eventType,
			Data: []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}
	}
	return records
}

// Drain reads every remaining record from it and closes it.
func Drain(t testing.TB, ctx context.Context, it adapters.RecordIterator) []adapters.StoredEvent {
	t.Helper()
	defer func() { require.NoError(t, it.Close()) }()

	var out []adapters.StoredEvent
	for {
		record, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, record)
	}
}

func testAppend(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("assigns consecutive versions", func(t *testing.T) {
		adapter := factory(t)

		stored, err := adapter.Append(ctx, "shopping_cart-a1", Records("opened", 3), adapters.NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 3)
		for i, record := range stored {
			assert.Equal(t, int64(i+1), record.Version)
			assert.Equal(t, "shopping_cart-a1", record.StreamID)
			assert.Equal(t, "opened", record.Type)
			assert.NotEmpty(t, record.ID)
		}
		assert.Less(t, stored[0].GlobalPosition, stored[1].GlobalPosition)
		assert.Less(t, stored[1].GlobalPosition, stored[2].GlobalPosition)
	})

	t.Run("appends at expected version", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-a2", Records("opened", 1), adapters.NoStream)
		require.NoError(t, err)

		stored, err := adapter.Append(ctx, "shopping_cart-a2", Records("added", 1), 1)

		require.NoError(t, err)
		assert.Equal(t, int64(2), stored[0].Version)
	})

	t.Run("rejects stale expected version", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-a3", Records("opened", 2), adapters.NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "shopping_cart-a3", Records("added", 1), 1)

		require.Error(t, err)
		assert.True(t, errors.Is(err, adapters.ErrConcurrencyConflict))
	})

	t.Run("rejects NoStream on existing stream", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-a4", Records("opened", 1), adapters.NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "shopping_cart-a4", Records("opened", 1), adapters.NoStream)

		assert.True(t, errors.Is(err, adapters.ErrConcurrencyConflict))
	})

	t.Run("StreamExists requires existing stream", func(t *testing.T) {
		adapter := factory(t)

		_, err := adapter.Append(ctx, "shopping_cart-a5", Records("added", 1), adapters.StreamExists)

		assert.True(t, errors.Is(err, adapters.ErrStreamNotFound))
	})

	t.Run("AnyVersion skips the check", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-a6", Records("opened", 1), adapters.AnyVersion)
		require.NoError(t, err)

		stored, err := adapter.Append(ctx, "shopping_cart-a6", Records("added", 1), adapters.AnyVersion)

		require.NoError(t, err)
		assert.Equal(t, int64(2), stored[0].Version)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		adapter := factory(t)

		_, err := adapter.Append(ctx, "", Records("opened", 1), adapters.AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrEmptyStreamID)

		_, err = adapter.Append(ctx, "shopping_cart-a7", nil, adapters.AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrNoEvents)

		_, err = adapter.Append(ctx, "shopping_cart-a7", Records("opened", 1), -7)
		assert.ErrorIs(t, err, adapters.ErrInvalidVersion)
	})

	t.Run("failed append stores nothing", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-a8", Records("opened", 1), adapters.NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "shopping_cart-a8", Records("added", 3), 5)
		require.Error(t, err)

		events, err := adapter.Load(ctx, "shopping_cart-a8", 0)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("preserves metadata", func(t *testing.T) {
		adapter := factory(t)
		records := []adapters.EventRecord{{
			Type: "opened",
			Data: []byte(`{}`),
			Metadata: adapters.Metadata{
				CorrelationID: "corr-1",
				UserID:        "user-1",
				Custom:        map[string]string{"source": "test"},
			},
		}}
		_, err := adapter.Append(ctx, "shopping_cart-a9", records, adapters.NoStream)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "shopping_cart-a9", 0)

		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "corr-1", events[0].Metadata.CorrelationID)
		assert.Equal(t, "user-1", events[0].Metadata.UserID)
		assert.Equal(t, "test", events[0].Metadata.Custom["source"])
	})
}

func testLoad(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("missing stream yields no events", func(t *testing.T) {
		adapter := factory(t)

		events, err := adapter.Load(ctx, "shopping_cart-missing", 0)

		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("loads payloads in version order", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-l1", Records("added", 4), adapters.NoStream)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "shopping_cart-l1", 0)

		require.NoError(t, err)
		require.Len(t, events, 4)
		for i, event := range events {
			assert.Equal(t, int64(i+1), event.Version)
			assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(event.Data))
			assert.False(t, event.Tombstoned)
		}
	})

	t.Run("loads from version", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-l2", Records("added", 5), adapters.NoStream)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "shopping_cart-l2", 3)

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(4), events[0].Version)
		assert.Equal(t, int64(5), events[1].Version)
	})

	t.Run("streams are isolated", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-l3", Records("added", 2), adapters.NoStream)
		require.NoError(t, err)
		_, err = adapter.Append(ctx, "shopping_cart-l4", Records("added", 3), adapters.NoStream)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "shopping_cart-l3", 0)

		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}

func testReadStream(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("yields the same records as Load", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-r1", Records("added", 7), adapters.NoStream)
		require.NoError(t, err)

		loaded, err := adapter.Load(ctx, "shopping_cart-r1", 2)
		require.NoError(t, err)

		it, err := adapters.OpenStream(ctx, adapter, "shopping_cart-r1", 2)
		require.NoError(t, err)
		read := Drain(t, ctx, it)

		require.Len(t, read, len(loaded))
		for i := range loaded {
			assert.Equal(t, loaded[i].Version, read[i].Version)
			assert.Equal(t, loaded[i].Type, read[i].Type)
			assert.JSONEq(t, string(loaded[i].Data), string(read[i].Data))
		}
	})

	t.Run("missing stream is immediately exhausted", func(t *testing.T) {
		adapter := factory(t)

		it, err := adapters.OpenStream(ctx, adapter, "shopping_cart-none", 0)
		require.NoError(t, err)

		assert.Empty(t, Drain(t, ctx, it))
	})

	t.Run("close before exhaustion releases the cursor", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-r2", Records("added", 3), adapters.NoStream)
		require.NoError(t, err)

		it, err := adapters.OpenStream(ctx, adapter, "shopping_cart-r2", 0)
		require.NoError(t, err)
		_, err = it.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, it.Close())

		_, err = adapter.Append(ctx, "shopping_cart-r2", Records("added", 1), 3)
		assert.NoError(t, err)
	})

	t.Run("cancelled context aborts the read", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-r3", Records("added", 2), adapters.NoStream)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		it, err := adapters.OpenStream(cancelled, adapter, "shopping_cart-r3", 0)
		require.NoError(t, err)
		defer it.Close()
		cancel()

		_, err = it.Next(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func testTombstone(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("marks the record and keeps its position", func(t *testing.T) {
		adapter := factory(t)
		tombstoner, ok := adapter.(adapters.Tombstoner)
		if !ok {
			t.Skip("adapter does not support tombstones")
		}
		_, err := adapter.Append(ctx, "shopping_cart-t1", Records("added", 3), adapters.NoStream)
		require.NoError(t, err)

		require.NoError(t, tombstoner.Tombstone(ctx, "shopping_cart-t1", 2))

		events, err := adapter.Load(ctx, "shopping_cart-t1", 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.False(t, events[0].Tombstoned)
		assert.True(t, events[1].Tombstoned)
		assert.Empty(t, events[1].Data)
		assert.Equal(t, int64(2), events[1].Version)
		assert.False(t, events[2].Tombstoned)

		it, err := adapters.OpenStream(ctx, adapter, "shopping_cart-t1", 0)
		require.NoError(t, err)
		read := Drain(t, ctx, it)
		require.Len(t, read, 3)
		assert.True(t, read[1].Tombstoned)
	})

	t.Run("unknown version fails", func(t *testing.T) {
		adapter := factory(t)
		tombstoner, ok := adapter.(adapters.Tombstoner)
		if !ok {
			t.Skip("adapter does not support tombstones")
		}
		_, err := adapter.Append(ctx, "shopping_cart-t2", Records("added", 1), adapters.NoStream)
		require.NoError(t, err)

		err = tombstoner.Tombstone(ctx, "shopping_cart-t2", 9)

		assert.ErrorIs(t, err, adapters.ErrEventNotFound)
	})
}

func testStreamInfo(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("missing stream", func(t *testing.T) {
		adapter := factory(t)

		_, err := adapter.GetStreamInfo(ctx, "shopping_cart-missing")

		assert.True(t, errors.Is(err, adapters.ErrStreamNotFound))
	})

	t.Run("reports version and category", func(t *testing.T) {
		adapter := factory(t)
		_, err := adapter.Append(ctx, "shopping_cart-i1", Records("added", 2), adapters.NoStream)
		require.NoError(t, err)
		_, err = adapter.Append(ctx, "shopping_cart-i1", Records("added", 1), 2)
		require.NoError(t, err)

		info, err := adapter.GetStreamInfo(ctx, "shopping_cart-i1")

		require.NoError(t, err)
		assert.Equal(t, "shopping_cart-i1", info.StreamID)
		assert.Equal(t, "shopping_cart", info.Category)
		assert.Equal(t, int64(3), info.Version)
		assert.Equal(t, int64(3), info.EventCount)
		assert.False(t, info.CreatedAt.IsZero())
		assert.False(t, info.UpdatedAt.Before(info.CreatedAt))
	})

	t.Run("last position grows with appends", func(t *testing.T) {
		adapter := factory(t)
		before, err := adapter.GetLastPosition(ctx)
		require.NoError(t, err)

		stored, err := adapter.Append(ctx, "shopping_cart-i2", Records("added", 2), adapters.NoStream)
		require.NoError(t, err)

		after, err := adapter.GetLastPosition(ctx)
		require.NoError(t, err)
		assert.Greater(t, after, before)
		assert.Equal(t, stored[1].GlobalPosition, after)
	})
}

func testConcurrentAppends(t *testing.T, factory Factory) {
	ctx := context.Background()
	adapter := factory(t)
	_, err := adapter.Append(ctx, "shopping_cart-c1", Records("opened", 1), adapters.NoStream)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.Append(ctx, "shopping_cart-c1", Records("added", 1), 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, adapters.ErrConcurrencyConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded, "exactly one writer may win the expected version")

	events, err := adapter.Load(ctx, "shopping_cart-c1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
