package fold

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of folds GetMany runs at once.
const DefaultConcurrency = 8

// Repository reconstructs entities of one category from an EventStore.
// Every Get performs a fresh fold over the entity's full history.
type Repository[S, E any] struct {
	store       *EventStore
	category    string
	reducer     Reducer[S, E]
	concurrency int
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	concurrency int
}

// WithConcurrency sets how many folds GetMany may run in parallel.
func WithConcurrency(n int) RepositoryOption {
	return func(c *repositoryConfig) {
		c.concurrency = n
	}
}

// NewRepository creates a repository for streams named "<category>-<id>".
func NewRepository[S, E any](store *EventStore, category string, reducer Reducer[S, E], opts ...RepositoryOption) *Repository[S, E] {
	config := repositoryConfig{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&config)
	}
	if config.concurrency <= 0 {
		config.concurrency = DefaultConcurrency
	}

	return &Repository[S, E]{
		store:       store,
		category:    category,
		reducer:     reducer,
		concurrency: config.concurrency,
	}
}

// StreamID returns the stream name for an entity ID.
func (r *Repository[S, E]) StreamID(id string) string {
	return BuildStreamID(r.category, id)
}

// Get reconstructs the entity with the given ID.
// A stream without usable events yields a StreamNotFoundError.
func (r *Repository[S, E]) Get(ctx context.Context, id string) (S, error) {
	state, _, err := r.GetVersioned(ctx, id)
	return state, err
}

// GetVersioned reconstructs the entity and also returns the version of the
// last record read, tombstoned records included. The version is suitable as
// the expected version of a following Append.
func (r *Repository[S, E]) GetVersioned(ctx context.Context, id string) (S, int64, error) {
	var zero S
	streamID := r.StreamID(id)

	stream, err := Read[E](ctx, r.store, streamID)
	if err != nil {
		return zero, 0, err
	}

	tracked := &versionTracker[E]{Stream: stream}
	state, err := Reconstruct(ctx, r.reducer, tracked)
	if err != nil {
		// Only the bare sentinel from an empty fold gets the stream name attached;
		// reducer errors pass through unchanged.
		if err == ErrStreamNotFound {
			err = NewStreamNotFoundError(streamID)
		}
		r.store.logger.Debug("reconstruction failed", "stream", streamID, "error", err)
		return zero, 0, err
	}

	return state, tracked.version, nil
}

// GetMany reconstructs several entities concurrently. Each fold is independent.
// Results are in the order of ids; the first failure cancels the rest.
func (r *Repository[S, E]) GetMany(ctx context.Context, ids []string) ([]S, error) {
	results := make([]S, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			state, err := r.Get(gctx, id)
			if err != nil {
				return err
			}
			results[i] = state
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Append stores events for the entity with the given ID.
func (r *Repository[S, E]) Append(ctx context.Context, id string, events []E, opts ...AppendOption) error {
	if len(events) == 0 {
		return ErrNoEvents
	}

	payload := make([]interface{}, len(events))
	for i, event := range events {
		payload[i] = event
	}
	return r.store.Append(ctx, r.StreamID(id), payload, opts...)
}

// Exists reports whether the entity's stream holds any record.
func (r *Repository[S, E]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.store.GetStreamInfo(ctx, r.StreamID(id))
	if errors.Is(err, ErrStreamNotFound) {
		return false, nil
	}
	return err == nil, err
}

// versionTracker remembers the version of the last entry it passed on.
type versionTracker[E any] struct {
	Stream[E]
	version int64
}

func (v *versionTracker[E]) Next(ctx context.Context) (Entry[E], error) {
	entry, err := v.Stream.Next(ctx)
	if err == nil && entry.Version > v.version {
		v.version = entry.Version
	}
	return entry, err
}
