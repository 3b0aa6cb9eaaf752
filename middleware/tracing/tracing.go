// Package tracing provides OpenTelemetry integration for fold.
//
// It opens spans around log store operations and whole reconstructions.
//
// Basic usage:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer(tracing.WithServiceName("carts"))
//	store := fold.New(tracing.NewEventStoreMiddleware(adapter, tracer))
//	aggregate := tracing.Aggregator(tracer, "shopping_cart", fold.StreamAggregator(shoppingcart.Evolve))
//
// A lazy read is covered by one span that stays open until its iterator is
// exhausted or closed, so the span duration includes the time the fold spent
// pulling records.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/adapters"
)

const (
	// TracerName is the name of the fold tracer.
	TracerName = "github.com/AshkanYarmoradi/go-fold"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "fold"
)

// Tracer wraps an OpenTelemetry tracer for fold operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// Fold Instrumentation
// =============================================================================

// Aggregator wraps an aggregator in a "fold.<name>" span that records how
// many entries were pulled and skipped.
func Aggregator[S, E any](tracer *Tracer, name string, aggregate fold.Aggregator[S, E]) fold.Aggregator[S, E] {
	spanName := fmt.Sprintf("fold.%s", name)
	return func(ctx context.Context, stream fold.Stream[E]) (S, error) {
		ctx, span := tracer.StartSpan(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		counted := &entryCounter[E]{Stream: stream}
		state, err := aggregate(ctx, counted)

		span.SetAttributes(
			attribute.String("fold.service", tracer.serviceName),
			attribute.String("fold.reducer", name),
			attribute.Int("fold.entries.read", counted.read),
			attribute.Int("fold.entries.skipped", counted.skipped),
		)
		if counted.last > 0 {
			span.SetAttributes(attribute.Int64("fold.last_version", counted.last))
		}
		finish(span, err)

		return state, err
	}
}

type entryCounter[E any] struct {
	fold.Stream[E]
	read    int
	skipped int
	last    int64
}

func (c *entryCounter[E]) Next(ctx context.Context) (fold.Entry[E], error) {
	entry, err := c.Stream.Next(ctx)
	if err != nil {
		return entry, err
	}
	c.read++
	if entry.Missing {
		c.skipped++
	}
	if entry.Version > 0 {
		c.last = entry.Version
	}
	return entry, nil
}

// =============================================================================
// Event Store Middleware
// =============================================================================

var (
	_ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)
	_ adapters.StreamReader      = (*EventStoreMiddleware)(nil)
	_ adapters.Tombstoner        = (*EventStoreMiddleware)(nil)
	_ adapters.HealthChecker     = (*EventStoreMiddleware)(nil)
)

// EventStoreMiddleware wraps an EventStoreAdapter with tracing.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	tracer  *Tracer
}

// NewEventStoreMiddleware wraps an adapter with tracing.
func NewEventStoreMiddleware(adapter adapters.EventStoreAdapter, tracer *Tracer) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		tracer:  tracer,
	}
}

func (m *EventStoreMiddleware) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := m.tracer.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("fold.service", m.tracer.serviceName))
	span.SetAttributes(attrs...)
	return ctx, span
}

// Append stores events with tracing.
func (m *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.append",
		attribute.String("fold.stream_id", streamID),
		attribute.Int64("fold.expected_version", expectedVersion),
		attribute.Int("fold.events.count", len(events)),
	)
	defer span.End()

	if len(events) > 0 {
		eventTypes := make([]string, len(events))
		for i, e := range events {
			eventTypes[i] = e.Type
		}
		span.SetAttributes(attribute.StringSlice("fold.events.types", eventTypes))
	}

	stored, err := m.adapter.Append(ctx, streamID, events, expectedVersion)
	if err == nil && len(stored) > 0 {
		last := stored[len(stored)-1]
		span.SetAttributes(
			attribute.Int64("fold.stored.version", last.Version),
			attribute.Int64("fold.stored.global_position", int64(last.GlobalPosition)),
		)
	}
	finish(span, err)

	return stored, err
}

// Load retrieves events with tracing.
func (m *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.load",
		attribute.String("fold.stream_id", streamID),
		attribute.Int64("fold.from_version", fromVersion),
	)
	defer span.End()

	events, err := m.adapter.Load(ctx, streamID, fromVersion)
	if err == nil {
		span.SetAttributes(attribute.Int("fold.events.loaded", len(events)))
	}
	finish(span, err)

	return events, err
}

// ReadStream opens a cursor inside an "eventstore.read_stream" span that ends
// when the cursor is exhausted, fails or is closed.
func (m *EventStoreMiddleware) ReadStream(ctx context.Context, streamID string, fromVersion int64) (adapters.RecordIterator, error) {
	ctx, span := m.start(ctx, "eventstore.read_stream",
		attribute.String("fold.stream_id", streamID),
		attribute.Int64("fold.from_version", fromVersion),
	)

	it, err := adapters.OpenStream(ctx, m.adapter, streamID, fromVersion)
	if err != nil {
		finish(span, err)
		span.End()
		return nil, err
	}
	return &tracedIterator{RecordIterator: it, span: span}, nil
}

type tracedIterator struct {
	adapters.RecordIterator
	span  trace.Span
	read  int
	tombs int
	once  sync.Once
}

func (t *tracedIterator) Next(ctx context.Context) (adapters.StoredEvent, error) {
	record, err := t.RecordIterator.Next(ctx)
	switch {
	case err == nil:
		t.read++
		if record.Tombstoned {
			t.tombs++
		}
	case errors.Is(err, io.EOF):
		t.end(nil)
	default:
		t.end(err)
	}
	return record, err
}

func (t *tracedIterator) Close() error {
	err := t.RecordIterator.Close()
	t.end(err)
	return err
}

func (t *tracedIterator) end(err error) {
	t.once.Do(func() {
		t.span.SetAttributes(
			attribute.Int("fold.events.loaded", t.read),
			attribute.Int("fold.events.tombstoned", t.tombs),
		)
		finish(t.span, err)
		t.span.End()
	})
}

// Tombstone scrubs a record with tracing.
func (m *EventStoreMiddleware) Tombstone(ctx context.Context, streamID string, version int64) error {
	tombstoner, ok := m.adapter.(adapters.Tombstoner)
	if !ok {
		return adapters.ErrTombstoneNotSupported
	}

	ctx, span := m.start(ctx, "eventstore.tombstone",
		attribute.String("fold.stream_id", streamID),
		attribute.Int64("fold.version", version),
	)
	defer span.End()

	err := tombstoner.Tombstone(ctx, streamID, version)
	finish(span, err)
	return err
}

// GetStreamInfo returns stream metadata with tracing.
func (m *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := m.start(ctx, "eventstore.get_stream_info", attribute.String("fold.stream_id", streamID))
	defer span.End()

	info, err := m.adapter.GetStreamInfo(ctx, streamID)
	if err == nil {
		span.SetAttributes(attribute.Int64("fold.stream.version", info.Version))
	}
	finish(span, err)

	return info, err
}

// GetLastPosition returns the last global position with tracing.
func (m *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	ctx, span := m.start(ctx, "eventstore.get_last_position")
	defer span.End()

	pos, err := m.adapter.GetLastPosition(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int64("fold.last_position", int64(pos)))
	}
	finish(span, err)

	return pos, err
}

// Initialize initializes the adapter with tracing.
func (m *EventStoreMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.start(ctx, "eventstore.initialize")
	defer span.End()

	err := m.adapter.Initialize(ctx)
	finish(span, err)
	return err
}

// Ping checks the underlying adapter if it supports health checks.
func (m *EventStoreMiddleware) Ping(ctx context.Context) error {
	hc, ok := m.adapter.(adapters.HealthChecker)
	if !ok {
		return nil
	}

	ctx, span := m.start(ctx, "eventstore.ping")
	defer span.End()

	err := hc.Ping(ctx)
	finish(span, err)
	return err
}

// Close closes the adapter.
func (m *EventStoreMiddleware) Close() error {
	return m.adapter.Close()
}

// Unwrap returns the wrapped adapter.
func (m *EventStoreMiddleware) Unwrap() adapters.EventStoreAdapter {
	return m.adapter
}

// =============================================================================
// Span Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	finish(trace.SpanFromContext(ctx), err)
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
