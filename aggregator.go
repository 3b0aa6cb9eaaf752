package fold

import (
	"context"
	"errors"
	"io"
)

// Reducer computes the next state from the current one and an event.
// current is nil until the first event has been folded.
// Implementations must be pure and must not modify *current.
type Reducer[S, E any] func(current *S, event E) (S, error)

// Aggregator folds a stream into a state.
type Aggregator[S, E any] func(ctx context.Context, stream Stream[E]) (S, error)

// StreamAggregator returns an Aggregator bound to reducer.
func StreamAggregator[S, E any](reducer Reducer[S, E]) Aggregator[S, E] {
	return func(ctx context.Context, stream Stream[E]) (S, error) {
		return Reconstruct(ctx, reducer, stream)
	}
}

// Reconstruct pulls every entry from stream in order and applies reducer to
// each present one. Missing entries are skipped.
//
// It returns ErrStreamNotFound if no entry was folded. The first error from the
// stream, the reducer or ctx aborts the fold; no partial state is returned.
// The stream is closed on every exit path.
func Reconstruct[S, E any](ctx context.Context, reducer Reducer[S, E], stream Stream[E]) (S, error) {
	state, err := fold(ctx, reducer, stream, nil)
	if err != nil {
		var zero S
		return zero, err
	}
	return state, nil
}

// ReconstructWithHistory behaves like Reconstruct and also returns the state
// after every folded entry, oldest first. The last element equals the result.
func ReconstructWithHistory[S, E any](ctx context.Context, reducer Reducer[S, E], stream Stream[E]) (S, []S, error) {
	var history []S
	state, err := fold(ctx, reducer, stream, func(s S) {
		history = append(history, s)
	})
	if err != nil {
		var zero S
		return zero, nil, err
	}
	return state, history, nil
}

func fold[S, E any](ctx context.Context, reducer Reducer[S, E], stream Stream[E], observe func(S)) (result S, err error) {
	if stream == nil {
		return result, ErrNilStream
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if reducer == nil {
		return result, ErrNilReducer
	}

	var current *S
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}
		if entry.Missing {
			continue
		}

		next, err := reducer(current, entry.Event)
		if err != nil {
			return result, err
		}
		current = &next
		if observe != nil {
			observe(next)
		}
	}

	if current == nil {
		return result, ErrStreamNotFound
	}
	return *current, nil
}
