package fold

import (
	"context"
	"io"
	"iter"
	"sync"
)

// Entry is one record pulled from a stream.
type Entry[E any] struct {
	// Event is the decoded event. It is the zero value when Missing is set.
	Event E

	// Version is the record's position in its stream, or 0 when unknown.
	Version int64

	// Missing marks a tombstoned or unresolved record.
	Missing bool
}

// Present returns an entry carrying event.
func Present[E any](event E) Entry[E] {
	return Entry[E]{Event: event}
}

// Absent returns a missing entry.
func Absent[E any]() Entry[E] {
	return Entry[E]{Missing: true}
}

// Stream is a lazy, forward-only sequence of entries.
//
// Next blocks until the next entry is available and returns io.EOF after the
// last one. Close releases the underlying read handle and may be called more
// than once.
type Stream[E any] interface {
	Next(ctx context.Context) (Entry[E], error)
	Close() error
}

type sliceStream[E any] struct {
	entries []Entry[E]
	pos     int
}

// FromEvents returns a stream over events, all of them present.
func FromEvents[E any](events ...E) Stream[E] {
	entries := make([]Entry[E], len(events))
	for i, event := range events {
		entries[i] = Entry[E]{Event: event, Version: int64(i + 1)}
	}
	return &sliceStream[E]{entries: entries}
}

// FromEntries returns a stream over entries as given.
func FromEntries[E any](entries ...Entry[E]) Stream[E] {
	return &sliceStream[E]{entries: entries}
}

func (s *sliceStream[E]) Next(ctx context.Context) (Entry[E], error) {
	if err := ctx.Err(); err != nil {
		return Entry[E]{}, err
	}
	if s.pos >= len(s.entries) {
		return Entry[E]{}, io.EOF
	}
	entry := s.entries[s.pos]
	s.pos++
	return entry, nil
}

func (s *sliceStream[E]) Close() error {
	s.pos = len(s.entries)
	return nil
}

type seqStream[E any] struct {
	next func() (Entry[E], error, bool)
	stop func()
	done bool
}

// FromSeq adapts a push iterator into a Stream using iter.Pull2.
// An error yielded by seq is returned from Next; Close stops the iterator.
func FromSeq[E any](seq iter.Seq2[Entry[E], error]) Stream[E] {
	next, stop := iter.Pull2(seq)
	return &seqStream[E]{next: next, stop: stop}
}

func (s *seqStream[E]) Next(ctx context.Context) (Entry[E], error) {
	if err := ctx.Err(); err != nil {
		return Entry[E]{}, err
	}
	if s.done {
		return Entry[E]{}, io.EOF
	}
	entry, err, ok := s.next()
	if !ok {
		s.done = true
		return Entry[E]{}, io.EOF
	}
	if err != nil {
		return Entry[E]{}, err
	}
	return entry, nil
}

func (s *seqStream[E]) Close() error {
	s.done = true
	s.stop()
	return nil
}

// ChannelStream is a Stream fed by a producer goroutine.
type ChannelStream[E any] struct {
	entries <-chan Entry[E]
	errs    <-chan error
	once    sync.Once
	done    chan struct{}
}

// FromChannel returns a stream fed by a producer goroutine.
//
// The producer sends entries in order and closes entries when finished. A
// failure is reported by sending it on errs before closing entries; errs may be
// nil and should be buffered. Close signals the producer through Done.
func FromChannel[E any](entries <-chan Entry[E], errs <-chan error) *ChannelStream[E] {
	return &ChannelStream[E]{
		entries: entries,
		errs:    errs,
		done:    make(chan struct{}),
	}
}

// Done is closed once the consumer has closed the stream.
// Producers should stop sending when it is closed.
func (s *ChannelStream[E]) Done() <-chan struct{} {
	return s.done
}

// Next blocks until the producer delivers an entry, reports an error or
// closes the entries channel.
func (s *ChannelStream[E]) Next(ctx context.Context) (Entry[E], error) {
	for {
		select {
		case <-s.done:
			return Entry[E]{}, io.EOF
		default:
		}

		select {
		case <-ctx.Done():
			return Entry[E]{}, ctx.Err()
		case err, ok := <-s.errs:
			if !ok {
				s.errs = nil
				continue
			}
			if err != nil {
				return Entry[E]{}, err
			}
		case entry, ok := <-s.entries:
			if ok {
				return entry, nil
			}
			// A failure sent before entries was closed wins over EOF.
			select {
			case err, ok := <-s.errs:
				if ok && err != nil {
					return Entry[E]{}, err
				}
			default:
			}
			return Entry[E]{}, io.EOF
		}
	}
}

// Close releases the stream and closes Done.
func (s *ChannelStream[E]) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
