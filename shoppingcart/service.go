package shoppingcart

import (
	"context"
	"errors"
	"time"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/google/uuid"
)

// Repository is the cart repository type.
type Repository = fold.Repository[ShoppingCart, Event]

// NewRepository registers the cart events with store and returns a repository
// over the shopping_cart category.
func NewRepository(store *fold.EventStore, opts ...fold.RepositoryOption) *Repository {
	RegisterEvents(store)
	return fold.NewRepository(store, Category, Evolve, opts...)
}

// Service runs cart commands: each one folds the cart from its log, decides
// the new events and appends them at the version it read.
type Service struct {
	store   *fold.EventStore
	carts   *Repository
	reducer fold.Reducer[ShoppingCart, Event]
	now     func() time.Time
	newID   func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used for event timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator sets the generator for new cart IDs.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithReducer replaces Evolve, typically with an instrumented wrapper of it.
func WithReducer(reducer fold.Reducer[ShoppingCart, Event]) ServiceOption {
	return func(s *Service) {
		s.reducer = reducer
	}
}

// NewService creates a Service over store.
func NewService(store *fold.EventStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		reducer: Evolve,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	RegisterEvents(store)
	s.carts = fold.NewRepository(store, Category, s.reducer)
	return s
}

// Repository returns the underlying cart repository.
func (s *Service) Repository() *Repository {
	return s.carts
}

// Open starts a new cart for clientID and returns its ID.
func (s *Service) Open(ctx context.Context, clientID string) (string, error) {
	cartID := s.newID()
	if err := s.OpenWithID(ctx, cartID, clientID); err != nil {
		return "", err
	}
	return cartID, nil
}

// OpenWithID starts a cart with a caller-chosen ID.
func (s *Service) OpenWithID(ctx context.Context, cartID, clientID string) error {
	events, err := Open(cartID, clientID, s.now())
	if err != nil {
		return err
	}

	err = s.carts.Append(ctx, cartID, events, fold.ExpectVersion(fold.NoStream))
	if errors.Is(err, fold.ErrConcurrencyConflict) {
		return &AlreadyOpenedError{CartID: cartID}
	}
	return err
}

// AddProductItem adds item to the cart.
func (s *Service) AddProductItem(ctx context.Context, cartID string, item ProductItem) error {
	return s.handle(ctx, cartID, func(cart ShoppingCart) ([]Event, error) {
		return AddProductItem(cart, item)
	})
}

// RemoveProductItem removes item from the cart.
func (s *Service) RemoveProductItem(ctx context.Context, cartID string, item ProductItem) error {
	return s.handle(ctx, cartID, func(cart ShoppingCart) ([]Event, error) {
		return RemoveProductItem(cart, item)
	})
}

// Confirm confirms the cart.
func (s *Service) Confirm(ctx context.Context, cartID string) error {
	return s.handle(ctx, cartID, func(cart ShoppingCart) ([]Event, error) {
		return Confirm(cart, s.now())
	})
}

// Get reconstructs the cart.
func (s *Service) Get(ctx context.Context, cartID string) (ShoppingCart, error) {
	return s.carts.Get(ctx, cartID)
}

// History reconstructs the cart and returns its state after every event.
func (s *Service) History(ctx context.Context, cartID string) ([]ShoppingCart, error) {
	stream, err := fold.Read[Event](ctx, s.store, StreamID(cartID))
	if err != nil {
		return nil, err
	}
	_, history, err := fold.ReconstructWithHistory(ctx, s.reducer, stream)
	if err == fold.ErrStreamNotFound {
		err = fold.NewStreamNotFoundError(StreamID(cartID))
	}
	return history, err
}

func (s *Service) handle(ctx context.Context, cartID string, decide func(ShoppingCart) ([]Event, error)) error {
	cart, version, err := s.carts.GetVersioned(ctx, cartID)
	if err != nil {
		return err
	}

	events, err := decide(cart)
	if err != nil {
		return err
	}

	return s.carts.Append(ctx, cartID, events, fold.ExpectVersion(version))
}
