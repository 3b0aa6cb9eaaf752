// Package fold reconstructs the current state of an entity by replaying its
// ordered, append-only log of domain events through a reducer.
//
// # Reducers and Streams
//
// A reducer maps the previous state (nil before the first event) and the next
// event to a new state:
//
//	func Evolve(current *Cart, event CartEvent) (Cart, error)
//
// A Stream is a lazy, forward-only sequence of log entries. Entries may be
// Missing, which marks a tombstoned or unresolved record; the fold skips them
// without calling the reducer.
//
//	cart, err := fold.Reconstruct(ctx, Evolve, fold.FromEvents(opened, added))
//
// Reconstruct returns ErrStreamNotFound when the stream held no usable events.
// Any reducer error aborts the fold and is returned unchanged.
//
// # Reading From a Log
//
// An EventStore wraps a log adapter (memory, PostgreSQL, SQLite, Redis) and a
// payload serializer:
//
//	store := fold.New(memory.NewAdapter())
//	shoppingcart.RegisterEvents(store)
//
//	stream, err := fold.Read[shoppingcart.Event](ctx, store, "shopping_cart-123")
//	cart, err := fold.Reconstruct(ctx, shoppingcart.Evolve, stream)
//
// Repository combines both steps and performs a fresh fold on every call:
//
//	carts := fold.NewRepository(store, "shopping_cart", shoppingcart.Evolve)
//	cart, err := carts.Get(ctx, "123")
//
// # Optimistic Concurrency
//
// Appends accept an expected version:
//
//	err := store.Append(ctx, "shopping_cart-123", events, fold.ExpectVersion(fold.NoStream))
//
// Version constants:
//   - AnyVersion (-1): Skip version check
//   - NoStream (0): Stream must not exist
//   - StreamExists (-2): Stream must exist
package fold

// Version returns the library version string.
func Version() string {
	return "0.1.0"
}

// BuildStreamID creates a stream ID from an entity category and ID.
// This follows the convention: "{Category}-{ID}"
func BuildStreamID(category, id string) string {
	return category + "-" + id
}
