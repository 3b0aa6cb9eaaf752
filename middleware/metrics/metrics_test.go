package metrics

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/AshkanYarmoradi/go-fold/adapters/memory"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
	foldtest "github.com/AshkanYarmoradi/go-fold/testing/testutil"
)

// loadOnly exposes only the EventStoreAdapter methods of the wrapped adapter.
type loadOnly struct {
	adapters.EventStoreAdapter
}

func TestNew(t *testing.T) {
	t.Run("creates metrics with defaults", func(t *testing.T) {
		m := New()

		assert.Equal(t, "fold", m.namespace)
		assert.Equal(t, "unknown", m.serviceName)
	})

	t.Run("with custom options", func(t *testing.T) {
		m := New(
			WithNamespace("custom"),
			WithSubsystem("carts"),
			WithMetricsServiceName("checkout"),
		)

		assert.Equal(t, "custom", m.namespace)
		assert.Equal(t, "carts", m.subsystem)
		assert.Equal(t, "checkout", m.serviceName)
	})
}

func TestMetrics_Register(t *testing.T) {
	t.Run("registers with custom registry", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
		assert.Len(t, m.Collectors(), 9)
	})

	t.Run("returns error on duplicate registration", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()
		require.NoError(t, m.Register(registry))

		assert.Error(t, m.Register(registry))
	})
}

func TestReducer(t *testing.T) {
	m := New(WithMetricsServiceName("test"))
	reducer := Reducer(m, "cart", shoppingcart.Evolve)

	state, err := reducer(nil, shoppingcart.Opened{ShoppingCartID: "c1", ClientID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", state.ID)

	_, err = reducer(&state, shoppingcart.Opened{ShoppingCartID: "c1", ClientID: "U1"})
	require.ErrorIs(t, err, shoppingcart.ErrAlreadyOpened)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.reductionsTotal.WithLabelValues("test", "cart", shoppingcart.OpenedType, StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reductionsTotal.WithLabelValues("test", "cart", shoppingcart.OpenedType, StatusError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errorsTotal.WithLabelValues("test", "unknown")))
}

func TestAggregator(t *testing.T) {
	m := New(WithMetricsServiceName("test"))
	aggregate := Aggregator(m, "cart", fold.StreamAggregator(shoppingcart.Evolve))
	ctx := context.Background()

	t.Run("counts folds and skipped entries", func(t *testing.T) {
		stream := fold.FromEntries(
			fold.Present[shoppingcart.Event](shoppingcart.Opened{ShoppingCartID: "c1"}),
			fold.Absent[shoppingcart.Event](),
			fold.Present[shoppingcart.Event](shoppingcart.ProductItemAdded{
				ShoppingCartID: "c1",
				ProductItem:    shoppingcart.ProductItem{ProductID: "A", Quantity: 2},
			}),
		)

		cart, err := aggregate(ctx, stream)

		require.NoError(t, err)
		assert.Equal(t, 2, cart.ProductItems.Quantity("A"))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.foldsTotal.WithLabelValues("test", "cart", StatusSuccess)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.entriesSkippedTotal.WithLabelValues("test", "cart")))
	})

	t.Run("counts failed folds by error type", func(t *testing.T) {
		_, err := aggregate(ctx, fold.FromEntries(fold.Absent[shoppingcart.Event]()))

		require.ErrorIs(t, err, fold.ErrStreamNotFound)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.foldsTotal.WithLabelValues("test", "cart", StatusError)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.errorsTotal.WithLabelValues("test", "stream_not_found")))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.entriesSkippedTotal.WithLabelValues("test", "cart")))
	})
}

func TestEventStoreMiddleware_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("counts appended events by type", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		wrapped := m.WrapEventStore(&foldtest.MockAdapter{})

		_, err := wrapped.Append(ctx, "shopping_cart-1", []adapters.EventRecord{
			{Type: shoppingcart.OpenedType, Data: []byte(`{}`)},
			{Type: shoppingcart.ProductItemAddedType, Data: []byte(`{}`)},
		}, adapters.NoStream)

		require.NoError(t, err)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationAppend, StatusSuccess)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsAppendedTotal.WithLabelValues("test", shoppingcart.OpenedType)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsAppendedTotal.WithLabelValues("test", shoppingcart.ProductItemAddedType)))
	})

	t.Run("records append errors", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		wrapped := m.WrapEventStore(&foldtest.MockAdapter{AppendErr: fold.ErrConcurrencyConflict})

		_, err := wrapped.Append(ctx, "shopping_cart-1", []adapters.EventRecord{{Type: "x"}}, 3)

		require.ErrorIs(t, err, fold.ErrConcurrencyConflict)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationAppend, StatusError)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.errorsTotal.WithLabelValues("test", "append_error")))
		assert.Equal(t, float64(0), testutil.ToFloat64(m.eventsAppendedTotal.WithLabelValues("test", "x")))
	})
}

func TestEventStoreMiddleware_Reads(t *testing.T) {
	ctx := context.Background()
	mock := &foldtest.MockAdapter{Events: []adapters.StoredEvent{
		{Type: "a", Version: 1}, {Type: "b", Version: 2}, {Type: "c", Version: 3},
	}}

	t.Run("load counts records", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		events, err := m.WrapEventStore(mock).Load(ctx, "s-1", 1)

		require.NoError(t, err)
		assert.Len(t, events, 2)
		assert.Equal(t, float64(2), testutil.ToFloat64(m.eventsLoadedTotal.WithLabelValues("test")))
	})

	t.Run("read stream counts records as they are pulled", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		it, err := m.WrapEventStore(mock).ReadStream(ctx, "s-1", 0)
		require.NoError(t, err)
		defer it.Close()

		_, err = it.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsLoadedTotal.WithLabelValues("test")))

		for {
			if _, err := it.Next(ctx); errors.Is(err, io.EOF) {
				break
			}
		}
		assert.Equal(t, float64(3), testutil.ToFloat64(m.eventsLoadedTotal.WithLabelValues("test")))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationReadStream, StatusSuccess)))
		assert.Equal(t, 1, mock.Calls("ReadStream"))
	})

	t.Run("read stream falls back to load", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		it, err := m.WrapEventStore(loadOnly{mock}).ReadStream(ctx, "s-1", 2)
		require.NoError(t, err)

		record, err := it.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "c", record.Type)
	})

	t.Run("read errors", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		_, err := m.WrapEventStore(&foldtest.MockAdapter{ReadErr: fold.ErrAdapterClosed}).ReadStream(ctx, "s-1", 0)

		require.ErrorIs(t, err, fold.ErrAdapterClosed)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationReadStream, StatusError)))
	})
}

func TestEventStoreMiddleware_Tombstone(t *testing.T) {
	ctx := context.Background()

	t.Run("delegates", func(t *testing.T) {
		m := New(WithMetricsServiceName("test"))
		mock := &foldtest.MockAdapter{}

		require.NoError(t, m.WrapEventStore(mock).Tombstone(ctx, "s-1", 1))
		assert.Equal(t, 1, mock.Calls("Tombstone"))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationTombstone, StatusSuccess)))
	})

	t.Run("unsupported adapter", func(t *testing.T) {
		m := New()
		err := m.WrapEventStore(loadOnly{&foldtest.MockAdapter{}}).Tombstone(ctx, "s-1", 1)
		assert.ErrorIs(t, err, fold.ErrTombstoneNotSupported)
	})
}

func TestEventStoreMiddleware_Passthrough(t *testing.T) {
	ctx := context.Background()
	m := New(WithMetricsServiceName("test"))
	mock := &foldtest.MockAdapter{
		Events:           []adapters.StoredEvent{{Version: 1, GlobalPosition: 9}},
		GetStreamInfoErr: nil,
		PingErr:          errors.New("down"),
	}
	wrapped := m.WrapEventStore(mock)

	info, err := wrapped.GetStreamInfo(ctx, "shopping_cart-1")
	require.NoError(t, err)
	assert.Equal(t, "shopping_cart", info.Category)

	pos, err := wrapped.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), pos)

	assert.EqualError(t, wrapped.Ping(ctx), "down")
	assert.NoError(t, m.WrapEventStore(loadOnly{mock}).Ping(ctx))
	require.NoError(t, wrapped.Initialize(ctx))
	require.NoError(t, wrapped.Close())
	assert.Same(t, mock, wrapped.Unwrap())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationGetStreamInfo, StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationGetLastPosition, StatusSuccess)))
}

func TestErrorTypeName(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "none"},
		{fold.NewConcurrencyError("s", 1, 2), "concurrency_conflict"},
		{fold.NewStreamNotFoundError("s"), "stream_not_found"},
		{fold.NewUnknownEventError("x"), "unknown_event"},
		{fold.NewEventTypeNotRegisteredError("x"), "event_type_not_registered"},
		{fold.NewSerializationError("x", "serialize", errors.New("bad")), "serialization_failed"},
		{fold.ErrEventNotFound, "event_not_found"},
		{fold.ErrTombstoneNotSupported, "tombstone_not_supported"},
		{fold.ErrNilReducer, "invalid_argument"},
		{adapters.ErrEmptyStreamID, "empty_stream_id"},
		{adapters.ErrNoEvents, "no_events"},
		{adapters.ErrInvalidVersion, "invalid_version"},
		{adapters.ErrAdapterClosed, "adapter_closed"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "deadline_exceeded"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, errorTypeName(tt.err))
		})
	}
}

func TestMetrics_ShoppingCartService(t *testing.T) {
	ctx := context.Background()
	m := New(WithMetricsServiceName("test"))
	store := fold.New(m.WrapEventStore(memory.NewAdapter()))
	svc := shoppingcart.NewService(store, shoppingcart.WithReducer(Reducer(m, "cart", shoppingcart.Evolve)))

	cartID, err := svc.Open(ctx, "U1")
	require.NoError(t, err)
	require.NoError(t, svc.AddProductItem(ctx, cartID, shoppingcart.ProductItem{ProductID: "A", Quantity: 1}))
	require.NoError(t, store.Tombstone(ctx, shoppingcart.StreamID(cartID), 2))

	_, err = svc.Get(ctx, cartID)
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationAppend, StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventStoreOperationsTotal.WithLabelValues("test", OperationTombstone, StatusSuccess)))
	// Opened folded once for AddProductItem and once for Get; the tombstoned add never reaches the reducer.
	assert.Equal(t, float64(2), testutil.ToFloat64(m.reductionsTotal.WithLabelValues("test", "cart", shoppingcart.OpenedType, StatusSuccess)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.reductionsTotal.WithLabelValues("test", "cart", shoppingcart.ProductItemAddedType, StatusSuccess)))
}
