package fold

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeCountingStream records Close calls on the stream it wraps.
type closeCountingStream[E any] struct {
	Stream[E]
	closed   int
	closeErr error
	pulls    int
}

func (c *closeCountingStream[E]) Next(ctx context.Context) (Entry[E], error) {
	c.pulls++
	return c.Stream.Next(ctx)
}

func (c *closeCountingStream[E]) Close() error {
	c.closed++
	_ = c.Stream.Close()
	return c.closeErr
}

// failingStream fails on the pull after the given entries.
type failingStream[E any] struct {
	entries []Entry[E]
	err     error
}

func (f *failingStream[E]) Next(ctx context.Context) (Entry[E], error) {
	if len(f.entries) == 0 {
		return Entry[E]{}, f.err
	}
	e := f.entries[0]
	f.entries = f.entries[1:]
	return e, nil
}

func (f *failingStream[E]) Close() error { return nil }

func TestReconstruct(t *testing.T) {
	ctx := context.Background()

	t.Run("folds events in order", func(t *testing.T) {
		stream := FromEvents[accountEvent](
			accountOpened{AccountID: "a-1", Owner: "ann"},
			deposited{Amount: 10},
			withdrawn{Amount: 4},
			deposited{Amount: 1},
		)

		got, err := Reconstruct(ctx, evolveAccount, stream)

		require.NoError(t, err)
		assert.Equal(t, account{ID: "a-1", Owner: "ann", Balance: 7, Applied: 4}, got)
	})

	t.Run("empty stream is not found", func(t *testing.T) {
		_, err := Reconstruct(ctx, evolveAccount, FromEvents[accountEvent]())

		assert.ErrorIs(t, err, ErrStreamNotFound)
	})

	t.Run("all missing entries is not found", func(t *testing.T) {
		stream := FromEntries(Absent[accountEvent](), Absent[accountEvent]())

		_, err := Reconstruct(ctx, evolveAccount, stream)

		assert.ErrorIs(t, err, ErrStreamNotFound)
	})

	t.Run("missing entries are skipped without calling the reducer", func(t *testing.T) {
		calls := 0
		counting := func(current *account, event accountEvent) (account, error) {
			calls++
			return evolveAccount(current, event)
		}
		stream := FromEntries(
			Present[accountEvent](accountOpened{AccountID: "a-1"}),
			Absent[accountEvent](),
			Present[accountEvent](deposited{Amount: 5}),
		)

		got, err := Reconstruct(ctx, counting, stream)

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 5, got.Balance)
	})

	t.Run("missing entry equals physical removal", func(t *testing.T) {
		with := FromEntries(
			Present[accountEvent](accountOpened{AccountID: "a-1"}),
			Absent[accountEvent](),
			Present[accountEvent](deposited{Amount: 5}),
		)
		without := FromEvents[accountEvent](accountOpened{AccountID: "a-1"}, deposited{Amount: 5})

		a, err := Reconstruct(ctx, evolveAccount, with)
		require.NoError(t, err)
		b, err := Reconstruct(ctx, evolveAccount, without)
		require.NoError(t, err)

		assert.Equal(t, b, a)
	})

	t.Run("reducer errors propagate unchanged", func(t *testing.T) {
		stream := FromEvents[accountEvent](
			accountOpened{AccountID: "a-1"},
			withdrawn{Amount: 1},
			deposited{Amount: 100},
		)

		got, err := Reconstruct(ctx, evolveAccount, stream)

		assert.Same(t, errInsufficientFund, err)
		assert.Equal(t, account{}, got)
	})

	t.Run("error raised at the offending event, not before", func(t *testing.T) {
		inner := FromEvents[accountEvent](
			accountOpened{AccountID: "a-1"},
			deposited{Amount: 1},
			accountOpened{AccountID: "a-1"},
			deposited{Amount: 1},
		)
		stream := &closeCountingStream[accountEvent]{Stream: inner}

		_, err := Reconstruct(ctx, evolveAccount, stream)

		assert.ErrorIs(t, err, errAccountOpen)
		assert.Equal(t, 3, stream.pulls)
	})

	t.Run("first event must open", func(t *testing.T) {
		_, err := Reconstruct(ctx, evolveAccount, FromEvents[accountEvent](deposited{Amount: 1}))

		assert.ErrorIs(t, err, ErrStreamNotFound)
	})

	t.Run("unknown variant", func(t *testing.T) {
		stream := FromEvents[accountEvent](accountOpened{AccountID: "a-1"}, legacyEvent{Note: "x"})

		_, err := Reconstruct(ctx, evolveAccount, stream)

		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("stream errors abort the fold", func(t *testing.T) {
		boom := errors.New("read failed")
		stream := &failingStream[accountEvent]{
			entries: []Entry[accountEvent]{Present[accountEvent](accountOpened{AccountID: "a-1"})},
			err:     boom,
		}

		got, err := Reconstruct(ctx, evolveAccount, stream)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, account{}, got)
	})

	t.Run("cancelled context aborts without partial state", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		stream := &closeCountingStream[accountEvent]{
			Stream: FromEvents[accountEvent](accountOpened{AccountID: "a-1"}),
		}

		got, err := Reconstruct(cancelled, evolveAccount, stream)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, account{}, got)
		assert.Equal(t, 0, stream.pulls)
		assert.Equal(t, 1, stream.closed)
	})

	t.Run("cancellation mid-fold", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		reducer := func(current *account, event accountEvent) (account, error) {
			next, err := evolveAccount(current, event)
			cancel()
			return next, err
		}
		stream := FromEvents[accountEvent](accountOpened{AccountID: "a-1"}, deposited{Amount: 1})

		_, err := Reconstruct(cancelled, reducer, stream)

		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("stream is closed on every exit path", func(t *testing.T) {
		cases := map[string][]accountEvent{
			"success":       {accountOpened{AccountID: "a-1"}},
			"not found":     {},
			"reducer error": {deposited{Amount: 1}},
		}
		for name, events := range cases {
			t.Run(name, func(t *testing.T) {
				stream := &closeCountingStream[accountEvent]{Stream: FromEvents(events...)}

				_, _ = Reconstruct(ctx, evolveAccount, stream)

				assert.Equal(t, 1, stream.closed)
			})
		}
	})

	t.Run("close failure after a clean fold is reported", func(t *testing.T) {
		boom := errors.New("cursor leak")
		stream := &closeCountingStream[accountEvent]{
			Stream:   FromEvents[accountEvent](accountOpened{AccountID: "a-1"}),
			closeErr: boom,
		}

		got, err := Reconstruct(ctx, evolveAccount, stream)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, account{}, got)
	})

	t.Run("nil arguments", func(t *testing.T) {
		_, err := Reconstruct[account, accountEvent](ctx, evolveAccount, nil)
		assert.ErrorIs(t, err, ErrNilStream)

		stream := &closeCountingStream[accountEvent]{Stream: FromEvents[accountEvent]()}
		_, err = Reconstruct[account](ctx, nil, Stream[accountEvent](stream))
		assert.ErrorIs(t, err, ErrNilReducer)
		assert.Equal(t, 1, stream.closed)
	})

	t.Run("deterministic", func(t *testing.T) {
		events := []accountEvent{
			accountOpened{AccountID: "a-1", Owner: "ann"},
			deposited{Amount: 3},
			deposited{Amount: 9},
			withdrawn{Amount: 2},
		}

		first, err := Reconstruct(ctx, evolveAccount, FromEvents(events...))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Reconstruct(ctx, evolveAccount, FromEvents(events...))
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("reducer sees previous state, not a shared one", func(t *testing.T) {
		var seen []*account
		reducer := func(current *account, event accountEvent) (account, error) {
			seen = append(seen, current)
			return evolveAccount(current, event)
		}
		stream := FromEvents[accountEvent](accountOpened{AccountID: "a-1"}, deposited{Amount: 1}, deposited{Amount: 2})

		_, err := Reconstruct(ctx, reducer, stream)

		require.NoError(t, err)
		require.Len(t, seen, 3)
		assert.Nil(t, seen[0])
		assert.Equal(t, 0, seen[1].Balance)
		assert.Equal(t, 1, seen[2].Balance)
	})
}

func TestStreamAggregator(t *testing.T) {
	aggregate := StreamAggregator(evolveAccount)

	got, err := aggregate(context.Background(), FromEvents[accountEvent](
		accountOpened{AccountID: "a-2"},
		deposited{Amount: 2},
	))

	require.NoError(t, err)
	assert.Equal(t, 2, got.Balance)
}

func TestReconstructWithHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("records each intermediate state", func(t *testing.T) {
		stream := FromEntries(
			Present[accountEvent](accountOpened{AccountID: "a-1"}),
			Absent[accountEvent](),
			Present[accountEvent](deposited{Amount: 5}),
			Present[accountEvent](withdrawn{Amount: 2}),
		)

		final, history, err := ReconstructWithHistory(ctx, evolveAccount, stream)

		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, 0, history[0].Balance)
		assert.Equal(t, 5, history[1].Balance)
		assert.Equal(t, 3, history[2].Balance)
		assert.Equal(t, final, history[2])
	})

	t.Run("no history on failure", func(t *testing.T) {
		_, history, err := ReconstructWithHistory(ctx, evolveAccount, FromEvents[accountEvent]())

		assert.ErrorIs(t, err, ErrStreamNotFound)
		assert.Nil(t, history)
	})
}

func TestReconstruct_EOFFromReducerIsNotEndOfStream(t *testing.T) {
	reducer := func(current *account, event accountEvent) (account, error) {
		return account{}, io.ErrUnexpectedEOF
	}

	_, err := Reconstruct(context.Background(), reducer, FromEvents[accountEvent](accountOpened{}))

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
