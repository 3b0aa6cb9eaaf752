// Package bdd provides Given-When-Then fixtures for reducers and the
// decision functions that produce their events.
package bdd

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-fold"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// Decision inspects the current state and returns the events to record.
type Decision[S, E any] func(state S) ([]E, error)

// TestFixture folds a history with a reducer and checks what follows.
type TestFixture[S, E any] struct {
	t       TB
	reducer fold.Reducer[S, E]
	given   []E

	state    S
	events   []E
	failedAt int
	result   error
	executed bool
	decided  bool
}

// Given sets up the history that is folded before the When step.
func Given[S, E any](t TB, reducer fold.Reducer[S, E], events ...E) *TestFixture[S, E] {
	t.Helper()
	return &TestFixture[S, E]{
		t:        t,
		reducer:  reducer,
		given:    events,
		failedAt: -1,
	}
}

// When folds the given history followed by events. A reducer error on one of
// events is captured for ThenError; one on the history fails the test.
func (f *TestFixture[S, E]) When(events ...E) *TestFixture[S, E] {
	f.t.Helper()

	current := f.replay()
	for i, event := range events {
		next, err := f.reducer(current, event)
		if err != nil {
			f.result = err
			f.failedAt = i
			break
		}
		current = &next
	}
	if current != nil && f.result == nil {
		f.state = *current
	}
	f.executed = true
	return f
}

// WhenDecided runs decide against the folded history and keeps the events it returns.
func (f *TestFixture[S, E]) WhenDecided(decide Decision[S, E]) *TestFixture[S, E] {
	f.t.Helper()

	var state S
	if current := f.replay(); current != nil {
		state = *current
	}
	f.state = state
	f.events, f.result = decide(state)
	f.executed = true
	f.decided = true
	return f
}

func (f *TestFixture[S, E]) replay() *S {
	f.t.Helper()

	var current *S
	for i, event := range f.given {
		next, err := f.reducer(current, event)
		if err != nil {
			f.t.Fatalf("Failed to apply given event %d (%T): %v", i, event, err)
			return nil
		}
		current = &next
	}
	return current
}

// Then asserts the folded state equals expected.
func (f *TestFixture[S, E]) Then(expected S) {
	f.t.Helper()
	f.requireSuccess("Then")

	if !reflect.DeepEqual(f.state, expected) {
		f.t.Errorf("State mismatch:\nExpected: %+v\nActual: %+v", expected, f.state)
	}
}

// ThenState hands the folded state to check.
func (f *TestFixture[S, E]) ThenState(check func(t TB, state S)) {
	f.t.Helper()
	f.requireSuccess("ThenState")
	check(f.t, f.state)
}

// ThenEvents asserts the decision produced expected.
func (f *TestFixture[S, E]) ThenEvents(expected ...E) {
	f.t.Helper()
	f.requireSuccess("ThenEvents")

	if !f.decided {
		f.t.Fatal("bdd: ThenEvents() needs WhenDecided()")
		return
	}
	if len(f.events) != len(expected) {
		f.t.Fatalf("Expected %d events, got %d.\nExpected: %+v\nActual: %+v",
			len(expected), len(f.events), expected, f.events)
		return
	}
	for i := range expected {
		if !reflect.DeepEqual(f.events[i], expected[i]) {
			f.t.Errorf("Event %d mismatch:\nExpected: %+v\nActual: %+v", i, expected[i], f.events[i])
		}
	}
}

// ThenNoEvents asserts the decision succeeded without producing events.
func (f *TestFixture[S, E]) ThenNoEvents() {
	f.t.Helper()
	f.requireSuccess("ThenNoEvents")

	if len(f.events) > 0 {
		f.t.Errorf("Expected no events, got %d: %+v", len(f.events), f.events)
	}
}

// ThenError asserts the When step failed with an error matching expectedErr.
func (f *TestFixture[S, E]) ThenError(expectedErr error) {
	f.t.Helper()
	f.requireFailure("ThenError")

	if !errors.Is(f.result, expectedErr) {
		f.t.Errorf("Expected error %v, got %v", expectedErr, f.result)
	}
}

// ThenErrorAt asserts the reducer rejected the index-th event passed to When.
func (f *TestFixture[S, E]) ThenErrorAt(index int, expectedErr error) {
	f.t.Helper()
	f.ThenError(expectedErr)

	if f.failedAt != index {
		f.t.Errorf("Expected failure at event %d, got %d", index, f.failedAt)
	}
}

// ThenErrorContains asserts the error message contains substring.
func (f *TestFixture[S, E]) ThenErrorContains(substring string) {
	f.t.Helper()
	f.requireFailure("ThenErrorContains")

	if !strings.Contains(f.result.Error(), substring) {
		f.t.Errorf("Expected error containing %q, got %q", substring, f.result.Error())
	}
}

// Err returns the captured error.
func (f *TestFixture[S, E]) Err() error {
	return f.result
}

func (f *TestFixture[S, E]) requireSuccess(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When()", step)
		return
	}
	if f.result != nil {
		f.t.Fatalf("Expected success but got error: %v", f.result)
	}
}

func (f *TestFixture[S, E]) requireFailure(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatalf("bdd: %s() must be called after When()", step)
		return
	}
	if f.result == nil {
		f.t.Fatal("Expected error but got success")
	}
}
