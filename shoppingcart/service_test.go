package shoppingcart

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(time.Second)
	return now
}

func newTestService(t *testing.T) (*Service, *fold.EventStore) {
	t.Helper()
	store := fold.New(memory.NewAdapter())
	clock := &fixedClock{now: openedAt}

	var n int
	var mu sync.Mutex
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("cart%d", n)
	}

	return NewService(store, WithClock(clock.Now), WithIDGenerator(newID)), store
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	cartID, err := svc.Open(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "cart1", cartID)

	require.NoError(t, svc.AddProductItem(ctx, cartID, item("A", 1)))
	require.NoError(t, svc.AddProductItem(ctx, cartID, item("B", 3)))
	require.NoError(t, svc.RemoveProductItem(ctx, cartID, item("B", 1)))
	require.NoError(t, svc.Confirm(ctx, cartID))

	cart, err := svc.Get(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, "U1", cart.ClientID)
	assert.Equal(t, StatusConfirmed, cart.Status)
	assert.Equal(t, []ProductItem{item("A", 1), item("B", 2)}, cart.ProductItems.Slice())
	assert.True(t, cart.OpenedAt.Equal(openedAt))
	require.NotNil(t, cart.ConfirmedAt)
	assert.True(t, cart.ConfirmedAt.Equal(openedAt.Add(time.Second)))

	info, err := store.GetStreamInfo(ctx, StreamID(cartID))
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Version)
	assert.Equal(t, Category, info.Category)

	history, err := svc.History(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, 4, history[2].ProductItems.Total())
}

func TestService_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown cart", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Get(ctx, "nope")
		assert.ErrorIs(t, err, fold.ErrStreamNotFound)

		err = svc.AddProductItem(ctx, "nope", item("A", 1))
		var notFound *fold.StreamNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, StreamID("nope"), notFound.StreamID)

		_, err = svc.History(ctx, "nope")
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("opening twice", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.NoError(t, svc.OpenWithID(ctx, "C1", "U1"))

		err := svc.OpenWithID(ctx, "C1", "U2")
		var already *AlreadyOpenedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, "C1", already.CartID)
	})

	t.Run("missing IDs", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.OpenWithID(ctx, "C1", ""), ErrMissingID)
	})

	t.Run("insufficient quantity", func(t *testing.T) {
		svc, store := newTestService(t)
		require.NoError(t, svc.OpenWithID(ctx, "C1", "U1"))
		require.NoError(t, svc.AddProductItem(ctx, "C1", item("A", 1)))

		err := svc.RemoveProductItem(ctx, "C1", item("A", 2))
		assert.ErrorIs(t, err, ErrInsufficientQuantity)

		info, err := store.GetStreamInfo(ctx, StreamID("C1"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), info.Version)
	})

	t.Run("closed cart", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.NoError(t, svc.OpenWithID(ctx, "C1", "U1"))
		require.NoError(t, svc.Confirm(ctx, "C1"))

		assert.ErrorIs(t, svc.AddProductItem(ctx, "C1", item("A", 1)), ErrCartClosed)
		assert.ErrorIs(t, svc.Confirm(ctx, "C1"), ErrCartClosed)
	})
}

func TestService_Tombstone(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	require.NoError(t, svc.OpenWithID(ctx, "C1", "U1"))
	require.NoError(t, svc.AddProductItem(ctx, "C1", item("A", 1)))
	require.NoError(t, svc.AddProductItem(ctx, "C1", item("B", 2)))

	require.NoError(t, store.Tombstone(ctx, StreamID("C1"), 2))

	cart, err := svc.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, []ProductItem{item("B", 2)}, cart.ProductItems.Slice())

	// Appends still see the tombstoned record's version.
	require.NoError(t, svc.AddProductItem(ctx, "C1", item("C", 1)))
	info, err := store.GetStreamInfo(ctx, StreamID("C1"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Version)
}

// giftWrapped is stored in a cart stream but is not a cart event.
type giftWrapped struct {
	Note string `json:"note"`
}

func TestService_UnknownStoredEvent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	require.NoError(t, svc.OpenWithID(ctx, "C1", "U1"))
	require.NoError(t, store.Append(ctx, StreamID("C1"), []interface{}{
		giftWrapped{Note: "for U2"},
	}))

	_, err := svc.Get(ctx, "C1")
	var unknown *fold.UnknownEventError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, StreamID("C1"), unknown.StreamID)
	assert.Equal(t, int64(2), unknown.Version)
	assert.Equal(t, "giftWrapped", unknown.EventType)
}

func TestService_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	require.NoError(t, svc.OpenWithID(ctx, "C1", "U1"))

	const writers = 10
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.AddProductItem(ctx, "C1", item("A", 1))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, fold.ErrConcurrencyConflict)
	}

	cart, err := svc.Get(ctx, "C1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, succeeded, cart.ProductItems.Quantity("A"))
}

func TestService_WithReducer(t *testing.T) {
	ctx := context.Background()
	var applied int
	counting := func(current *ShoppingCart, event Event) (ShoppingCart, error) {
		applied++
		return Evolve(current, event)
	}
	svc := NewService(fold.New(memory.NewAdapter()), WithReducer(counting), WithIDGenerator(func() string { return "c1" }))

	cartID, err := svc.Open(ctx, "U1")
	require.NoError(t, err)
	require.NoError(t, svc.AddProductItem(ctx, cartID, item("A", 1)))
	assert.Equal(t, 1, applied)

	_, err = svc.History(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
}
