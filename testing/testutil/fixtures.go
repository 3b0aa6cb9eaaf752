package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/adapters/memory"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
	"github.com/stretchr/testify/require"
)

// Epoch is the start time of FixedClock fixtures.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// FixedClock returns a clock that starts at start and advances one second per call.
func FixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

// SequentialIDs returns a generator of prefix1, prefix2, ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// NewCartStore returns an in-memory store with the cart events registered.
func NewCartStore(t testing.TB, opts ...fold.Option) *fold.EventStore {
	t.Helper()
	store := fold.New(memory.NewAdapter(memory.WithClock(FixedClock(Epoch))), opts...)
	shoppingcart.RegisterEvents(store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// NewCartService returns a service over store with a fixed clock and cart IDs
// cart1, cart2, ...
func NewCartService(store *fold.EventStore) *shoppingcart.Service {
	return shoppingcart.NewService(store,
		shoppingcart.WithClock(FixedClock(Epoch)),
		shoppingcart.WithIDGenerator(SequentialIDs("cart")),
	)
}

// SeedSampleCart appends the sample cart history for cartID.
func SeedSampleCart(t testing.TB, store *fold.EventStore, cartID, clientID string) {
	t.Helper()
	events := shoppingcart.SampleEvents(cartID, clientID, Epoch)
	payload := make([]interface{}, len(events))
	for i, event := range events {
		payload[i] = event
	}
	err := store.Append(context.Background(), shoppingcart.StreamID(cartID), payload, fold.ExpectVersion(fold.NoStream))
	require.NoError(t, err)
}
