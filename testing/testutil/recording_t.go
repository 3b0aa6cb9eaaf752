package testutil

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
)

// RecordingT is a testing.TB that records failures instead of reporting them,
// for testing helpers that are expected to fail a test.
type RecordingT struct {
	testing.TB

	mu       sync.Mutex
	failed   bool
	stopped  bool
	messages []string
}

// RunRecording runs fn on its own goroutine with a fresh RecordingT and waits
// for it, so that Fatal and FailNow can stop fn with runtime.Goexit.
func RunRecording(fn func(t *RecordingT)) *RecordingT {
	rt := &RecordingT{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(rt)
	}()
	<-done
	return rt
}

func (r *RecordingT) Helper() {}

func (r *RecordingT) record(stop bool, msg string) {
	r.mu.Lock()
	r.failed = true
	r.stopped = r.stopped || stop
	if msg != "" {
		r.messages = append(r.messages, msg)
	}
	r.mu.Unlock()
	if stop {
		runtime.Goexit()
	}
}

func (r *RecordingT) Error(args ...any)                 { r.record(false, fmt.Sprint(args...)) }
func (r *RecordingT) Errorf(format string, args ...any) { r.record(false, fmt.Sprintf(format, args...)) }
func (r *RecordingT) Fail()                             { r.record(false, "") }
func (r *RecordingT) FailNow()                          { r.record(true, "") }
func (r *RecordingT) Fatal(args ...any)                 { r.record(true, fmt.Sprint(args...)) }
func (r *RecordingT) Fatalf(format string, args ...any) { r.record(true, fmt.Sprintf(format, args...)) }

func (r *RecordingT) Log(args ...any)                 {}
func (r *RecordingT) Logf(format string, args ...any) {}

// Failed reports whether any failure was recorded.
func (r *RecordingT) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Stopped reports whether Fatal, Fatalf or FailNow ended the run.
func (r *RecordingT) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Messages returns the recorded failure messages in order.
func (r *RecordingT) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
