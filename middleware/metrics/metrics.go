// Package metrics provides Prometheus metrics for fold.
//
// It instruments log store adapters, whole reconstructions and single
// reducer steps.
//
// Basic usage:
//
//	m := metrics.New(metrics.WithMetricsServiceName("carts"))
//	m.MustRegister()
//
//	store := fold.New(m.WrapEventStore(adapter))
//	svc := shoppingcart.NewService(store,
//		shoppingcart.WithReducer(metrics.Reducer(m, "shopping_cart", shoppingcart.Evolve)))
//
// The metrics collected include:
//   - Log store operations (append, load, read_stream, tombstone) and their durations
//   - Records appended by event type and records read
//   - Reconstructions, reducer steps and skipped missing entries
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/adapters"
)

// Default metric labels.
const (
	LabelReducer   = "reducer"
	LabelEventType = "event_type"
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelService   = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation values.
const (
	OperationAppend          = "append"
	OperationLoad            = "load"
	OperationReadStream      = "read_stream"
	OperationTombstone       = "tombstone"
	OperationGetStreamInfo   = "get_stream_info"
	OperationGetLastPosition = "get_last_position"
)

// Metrics holds all Prometheus metrics for fold.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Fold metrics
	foldsTotal          *prometheus.CounterVec
	foldDuration        *prometheus.HistogramVec
	reductionsTotal     *prometheus.CounterVec
	entriesSkippedTotal *prometheus.CounterVec

	// Event store metrics
	eventStoreOperationsTotal   *prometheus.CounterVec
	eventStoreOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal         *prometheus.CounterVec
	eventsLoadedTotal           *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "fold",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) initMetrics() {
	m.foldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "folds_total",
			Help:      "Total number of stream reconstructions.",
		},
		[]string{LabelService, LabelReducer, LabelStatus},
	)

	m.foldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "fold_duration_seconds",
			Help:      "Duration of stream reconstructions in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelReducer},
	)

	m.reductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "reductions_total",
			Help:      "Total number of events applied by reducers.",
		},
		[]string{LabelService, LabelReducer, LabelEventType, LabelStatus},
	)

	m.entriesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "entries_skipped_total",
			Help:      "Total number of missing or tombstoned entries skipped during reconstructions.",
		},
		[]string{LabelService, LabelReducer},
	)

	m.eventStoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eventstore_operations_total",
			Help:      "Total number of event store operations.",
		},
		[]string{LabelService, LabelOperation, LabelStatus},
	)

	m.eventStoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eventstore_operation_duration_seconds",
			Help:      "Duration of event store operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelOperation},
	)

	m.eventsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_appended_total",
			Help:      "Total number of events appended to streams.",
		},
		[]string{LabelService, LabelEventType},
	)

	m.eventsLoadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_loaded_total",
			Help:      "Total number of records read from streams.",
		},
		[]string{LabelService},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by type.",
		},
		[]string{LabelService, LabelErrorType},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.foldsTotal,
		m.foldDuration,
		m.reductionsTotal,
		m.entriesSkippedTotal,
		m.eventStoreOperationsTotal,
		m.eventStoreOperationDuration,
		m.eventsAppendedTotal,
		m.eventsLoadedTotal,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// errorTypeName maps an error to a label based on sentinel errors.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, fold.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, fold.ErrStreamNotFound):
		return "stream_not_found"
	case errors.Is(err, fold.ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, fold.ErrEventTypeNotRegistered):
		return "event_type_not_registered"
	case errors.Is(err, fold.ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, fold.ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, fold.ErrTombstoneNotSupported):
		return "tombstone_not_supported"
	case errors.Is(err, fold.ErrNilReducer), errors.Is(err, fold.ErrNilStream):
		return "invalid_argument"
	case errors.Is(err, adapters.ErrEmptyStreamID):
		return "empty_stream_id"
	case errors.Is(err, adapters.ErrNoEvents):
		return "no_events"
	case errors.Is(err, adapters.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// =============================================================================
// Fold Instrumentation
// =============================================================================

// Reducer wraps reducer so that every applied event is counted by type and outcome.
func Reducer[S, E any](m *Metrics, name string, reducer fold.Reducer[S, E]) fold.Reducer[S, E] {
	return func(current *S, event E) (S, error) {
		next, err := reducer(current, event)

		status := StatusSuccess
		if err != nil {
			status = StatusError
			m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
		}
		m.reductionsTotal.WithLabelValues(m.serviceName, name, fold.GetEventType(event), status).Inc()

		return next, err
	}
}

// Aggregator wraps an aggregator with reconstruction counts, durations and
// the number of missing entries it skipped.
func Aggregator[S, E any](m *Metrics, name string, aggregate fold.Aggregator[S, E]) fold.Aggregator[S, E] {
	return func(ctx context.Context, stream fold.Stream[E]) (S, error) {
		counted := &skipCounter[E]{Stream: stream}

		start := time.Now()
		state, err := aggregate(ctx, counted)
		m.foldDuration.WithLabelValues(m.serviceName, name).Observe(time.Since(start).Seconds())

		status := StatusSuccess
		if err != nil {
			status = StatusError
			m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
		}
		m.foldsTotal.WithLabelValues(m.serviceName, name, status).Inc()
		if counted.skipped > 0 {
			m.entriesSkippedTotal.WithLabelValues(m.serviceName, name).Add(float64(counted.skipped))
		}

		return state, err
	}
}

type skipCounter[E any] struct {
	fold.Stream[E]
	skipped int
}

func (s *skipCounter[E]) Next(ctx context.Context) (fold.Entry[E], error) {
	entry, err := s.Stream.Next(ctx)
	if err == nil && entry.Missing {
		s.skipped++
	}
	return entry, err
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

// EventStoreMiddleware wraps an EventStoreAdapter with metrics.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	metrics *Metrics
}

// WrapEventStore wraps an adapter with metrics collection.
func (m *Metrics) WrapEventStore(adapter adapters.EventStoreAdapter) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		metrics: m,
	}
}

// observe records the duration and outcome of one operation.
func (em *EventStoreMiddleware) observe(operation string, start time.Time, err error) {
	m := em.metrics
	m.eventStoreOperationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, operation+"_error").Inc()
	}
	m.eventStoreOperationsTotal.WithLabelValues(m.serviceName, operation, status).Inc()
}

// Append stores events with metrics.
func (em *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := em.adapter.Append(ctx, streamID, events, expectedVersion)
	em.observe(OperationAppend, start, err)

	if err == nil {
		for _, e := range events {
			em.metrics.eventsAppendedTotal.WithLabelValues(em.metrics.serviceName, e.Type).Inc()
		}
	}
	return stored, err
}

// Load retrieves events with metrics.
func (em *EventStoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := em.adapter.Load(ctx, streamID, fromVersion)
	em.observe(OperationLoad, start, err)

	if err == nil {
		em.metrics.eventsLoadedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(events)))
	}
	return events, err
}

// ReadStream opens a cursor that counts the records it yields. Adapters
// without lazy reads are served through Load.
func (em *EventStoreMiddleware) ReadStream(ctx context.Context, streamID string, fromVersion int64) (adapters.RecordIterator, error) {
	start := time.Now()
	it, err := adapters.OpenStream(ctx, em.adapter, streamID, fromVersion)
	em.observe(OperationReadStream, start, err)
	if err != nil {
		return nil, err
	}
	return &countingIterator{RecordIterator: it, metrics: em.metrics}, nil
}

type countingIterator struct {
	adapters.RecordIterator
	metrics *Metrics
}

func (c *countingIterator) Next(ctx context.Context) (adapters.StoredEvent, error) {
	record, err := c.RecordIterator.Next(ctx)
	switch {
	case err == nil:
		c.metrics.eventsLoadedTotal.WithLabelValues(c.metrics.serviceName).Inc()
	case !errors.Is(err, io.EOF):
		c.metrics.errorsTotal.WithLabelValues(c.metrics.serviceName, OperationReadStream+"_error").Inc()
	}
	return record, err
}

// Tombstone scrubs a record with metrics.
func (em *EventStoreMiddleware) Tombstone(ctx context.Context, streamID string, version int64) error {
	tombstoner, ok := em.adapter.(adapters.Tombstoner)
	if !ok {
		return adapters.ErrTombstoneNotSupported
	}

	start := time.Now()
	err := tombstoner.Tombstone(ctx, streamID, version)
	em.observe(OperationTombstone, start, err)
	return err
}

// GetStreamInfo returns stream metadata with metrics.
func (em *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	start := time.Now()
	info, err := em.adapter.GetStreamInfo(ctx, streamID)
	em.observe(OperationGetStreamInfo, start, err)
	return info, err
}

// GetLastPosition returns the last global position with metrics.
func (em *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	start := time.Now()
	pos, err := em.adapter.GetLastPosition(ctx)
	em.observe(OperationGetLastPosition, start, err)
	return pos, err
}

// Ping checks the underlying adapter if it supports health checks.
func (em *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := em.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Initialize initializes the adapter.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.adapter.Initialize(ctx)
}

// Close closes the adapter.
func (em *EventStoreMiddleware) Close() error {
	return em.adapter.Close()
}

// Unwrap returns the wrapped adapter.
func (em *EventStoreMiddleware) Unwrap() adapters.EventStoreAdapter {
	return em.adapter
}

// =============================================================================
// Manual Metric Recording
// =============================================================================

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// =============================================================================
// Getters for testing
// =============================================================================

// FoldsTotal returns the reconstructions counter.
func (m *Metrics) FoldsTotal() *prometheus.CounterVec {
	return m.foldsTotal
}

// FoldDuration returns the reconstruction duration histogram.
func (m *Metrics) FoldDuration() *prometheus.HistogramVec {
	return m.foldDuration
}

// ReductionsTotal returns the reducer step counter.
func (m *Metrics) ReductionsTotal() *prometheus.CounterVec {
	return m.reductionsTotal
}

// EntriesSkippedTotal returns the skipped entries counter.
func (m *Metrics) EntriesSkippedTotal() *prometheus.CounterVec {
	return m.entriesSkippedTotal
}

// EventStoreOperationsTotal returns the event store operations counter.
func (m *Metrics) EventStoreOperationsTotal() *prometheus.CounterVec {
	return m.eventStoreOperationsTotal
}

// EventStoreOperationDuration returns the event store duration histogram.
func (m *Metrics) EventStoreOperationDuration() *prometheus.HistogramVec {
	return m.eventStoreOperationDuration
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return m.eventsAppendedTotal
}

// EventsLoadedTotal returns the events loaded counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec {
	return m.eventsLoadedTotal
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
