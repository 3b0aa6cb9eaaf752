package tracing

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

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

func setupTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracer(WithTracerProvider(tp), WithServiceName("test")), recorder
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracer(t *testing.T) {
	tracer := NewTracer()
	assert.Equal(t, DefaultServiceName, tracer.ServiceName())
	assert.NotNil(t, tracer.Tracer())

	named := NewTracer(WithServiceName("carts"))
	assert.Equal(t, "carts", named.ServiceName())
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	t.Run("records entries and outcome", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		aggregate := Aggregator(tracer, "cart", fold.StreamAggregator(shoppingcart.Evolve))

		cart, err := aggregate(ctx, fold.FromEntries(
			fold.Entry[shoppingcart.Event]{Event: shoppingcart.Opened{ShoppingCartID: "c1"}, Version: 1},
			fold.Entry[shoppingcart.Event]{Version: 2, Missing: true},
		))

		require.NoError(t, err)
		assert.Equal(t, "c1", cart.ID)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "fold.cart", spans[0].Name())
		assert.Equal(t, codes.Ok, spans[0].Status().Code)

		read, ok := attr(spans[0], "fold.entries.read")
		require.True(t, ok)
		assert.Equal(t, int64(2), read.AsInt64())
		skipped, _ := attr(spans[0], "fold.entries.skipped")
		assert.Equal(t, int64(1), skipped.AsInt64())
		last, _ := attr(spans[0], "fold.last_version")
		assert.Equal(t, int64(2), last.AsInt64())
	})

	t.Run("records errors", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		aggregate := Aggregator(tracer, "cart", fold.StreamAggregator(shoppingcart.Evolve))

		_, err := aggregate(ctx, fold.FromEvents[shoppingcart.Event]())

		require.ErrorIs(t, err, fold.ErrStreamNotFound)
		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Len(t, spans[0].Events(), 1)
	})
}

func TestEventStoreMiddleware_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		mw := NewEventStoreMiddleware(&foldtest.MockAdapter{}, tracer)

		_, err := mw.Append(ctx, "shopping_cart-1", []adapters.EventRecord{
			{Type: shoppingcart.OpenedType}, {Type: shoppingcart.ProductItemAddedType},
		}, adapters.NoStream)

		require.NoError(t, err)
		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "eventstore.append", spans[0].Name())
		assert.Equal(t, codes.Ok, spans[0].Status().Code)
		types, ok := attr(spans[0], "fold.events.types")
		require.True(t, ok)
		assert.Equal(t, []string{shoppingcart.OpenedType, shoppingcart.ProductItemAddedType}, types.AsStringSlice())
		version, _ := attr(spans[0], "fold.stored.version")
		assert.Equal(t, int64(2), version.AsInt64())
	})

	t.Run("error", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		mw := NewEventStoreMiddleware(&foldtest.MockAdapter{AppendErr: fold.ErrConcurrencyConflict}, tracer)

		_, err := mw.Append(ctx, "shopping_cart-1", []adapters.EventRecord{{Type: "x"}}, 4)

		require.ErrorIs(t, err, fold.ErrConcurrencyConflict)
		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})
}

func TestEventStoreMiddleware_ReadStream(t *testing.T) {
	ctx := context.Background()
	mock := &foldtest.MockAdapter{Events: []adapters.StoredEvent{
		{Type: "a", Version: 1}, {Type: "b", Version: 2, Tombstoned: true},
	}}

	t.Run("span ends when exhausted", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		it, err := NewEventStoreMiddleware(mock, tracer).ReadStream(ctx, "s-1", 0)
		require.NoError(t, err)

		_, err = it.Next(ctx)
		require.NoError(t, err)
		assert.Empty(t, recorder.Ended())

		_, err = it.Next(ctx)
		require.NoError(t, err)
		_, err = it.Next(ctx)
		require.ErrorIs(t, err, io.EOF)
		require.NoError(t, it.Close())

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "eventstore.read_stream", spans[0].Name())
		loaded, _ := attr(spans[0], "fold.events.loaded")
		assert.Equal(t, int64(2), loaded.AsInt64())
		tombs, _ := attr(spans[0], "fold.events.tombstoned")
		assert.Equal(t, int64(1), tombs.AsInt64())
	})

	t.Run("span ends on early close", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		it, err := NewEventStoreMiddleware(loadOnly{mock}, tracer).ReadStream(ctx, "s-1", 0)
		require.NoError(t, err)

		require.NoError(t, it.Close())
		assert.Len(t, recorder.Ended(), 1)
	})

	t.Run("open failure", func(t *testing.T) {
		tracer, recorder := setupTracer(t)
		_, err := NewEventStoreMiddleware(&foldtest.MockAdapter{ReadErr: fold.ErrAdapterClosed}, tracer).ReadStream(ctx, "s-1", 0)

		require.ErrorIs(t, err, fold.ErrAdapterClosed)
		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})
}

func TestEventStoreMiddleware_Operations(t *testing.T) {
	ctx := context.Background()
	tracer, recorder := setupTracer(t)
	mock := &foldtest.MockAdapter{
		Events:       []adapters.StoredEvent{{Version: 1, GlobalPosition: 5}},
		TombstoneErr: fold.ErrEventNotFound,
	}
	mw := NewEventStoreMiddleware(mock, tracer)

	events, err := mw.Load(ctx, "s-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = mw.GetStreamInfo(ctx, "s-1")
	require.NoError(t, err)

	pos, err := mw.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), pos)

	require.ErrorIs(t, mw.Tombstone(ctx, "s-1", 7), fold.ErrEventNotFound)
	require.NoError(t, mw.Initialize(ctx))
	require.NoError(t, mw.Ping(ctx))
	require.NoError(t, mw.Close())
	assert.Same(t, mock, mw.Unwrap())

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{
		"eventstore.load",
		"eventstore.get_stream_info",
		"eventstore.get_last_position",
		"eventstore.tombstone",
		"eventstore.initialize",
		"eventstore.ping",
	}, names)

	assert.ErrorIs(t, NewEventStoreMiddleware(loadOnly{mock}, tracer).Tombstone(ctx, "s-1", 1), fold.ErrTombstoneNotSupported)
}

func TestSpanHelpers(t *testing.T) {
	tracer, recorder := setupTracer(t)
	ctx, span := tracer.StartSpan(context.Background(), "helpers")

	assert.Equal(t, span, SpanFromContext(ctx))
	AddEvent(ctx, "checkpoint")
	SetAttributes(ctx, attribute.String("cart.id", "c1"))
	SetError(ctx, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	value, ok := attr(spans[0], "cart.id")
	require.True(t, ok)
	assert.Equal(t, "c1", value.AsString())
}

func TestTracing_ShoppingCartService(t *testing.T) {
	ctx := context.Background()
	tracer, recorder := setupTracer(t)
	store := fold.New(NewEventStoreMiddleware(memory.NewAdapter(), tracer))
	svc := shoppingcart.NewService(store)

	cartID, err := svc.Open(ctx, "U1")
	require.NoError(t, err)
	require.NoError(t, svc.AddProductItem(ctx, cartID, shoppingcart.ProductItem{ProductID: "A", Quantity: 1}))

	stream, err := fold.Read[shoppingcart.Event](ctx, store, shoppingcart.StreamID(cartID))
	require.NoError(t, err)
	aggregate := Aggregator(tracer, "cart", fold.StreamAggregator(shoppingcart.Evolve))
	cart, err := aggregate(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.ProductItems.Quantity("A"))

	counts := map[string]int{}
	for _, span := range recorder.Ended() {
		counts[span.Name()]++
	}
	assert.Equal(t, 2, counts["eventstore.append"])
	assert.Equal(t, 2, counts["eventstore.read_stream"])
	assert.Equal(t, 1, counts["fold.cart"])
}
