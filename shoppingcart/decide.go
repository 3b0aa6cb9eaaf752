package shoppingcart

import (
	"time"
)

// Open returns the event that starts a new cart.
func Open(cartID, clientID string, now time.Time) ([]Event, error) {
	if cartID == "" || clientID == "" {
		return nil, ErrMissingID
	}
	return []Event{Opened{
		ShoppingCartID: cartID,
		ClientID:       clientID,
		OpenedAt:       now.UTC(),
	}}, nil
}

// AddProductItem returns the event that adds item to cart.
func AddProductItem(cart ShoppingCart, item ProductItem) ([]Event, error) {
	if cart.IsClosed() {
		return nil, ErrCartClosed
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return []Event{ProductItemAdded{ShoppingCartID: cart.ID, ProductItem: item}}, nil
}

// RemoveProductItem returns the event that removes item from cart.
func RemoveProductItem(cart ShoppingCart, item ProductItem) ([]Event, error) {
	if cart.IsClosed() {
		return nil, ErrCartClosed
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if _, err := cart.ProductItems.Remove(item); err != nil {
		return nil, err
	}
	return []Event{ProductItemRemoved{ShoppingCartID: cart.ID, ProductItem: item}}, nil
}

// Confirm returns the event that confirms cart.
func Confirm(cart ShoppingCart, now time.Time) ([]Event, error) {
	if cart.IsClosed() {
		return nil, ErrCartClosed
	}
	return []Event{Confirmed{ShoppingCartID: cart.ID, ConfirmedAt: now.UTC()}}, nil
}

// SampleEvents returns the history of a cart that gets one "A", three "B",
// gives one "B" back and is confirmed. Timestamps start at now, one second apart.
func SampleEvents(cartID, clientID string, now time.Time) []Event {
	at := func(seconds int) time.Time {
		return now.UTC().Add(time.Duration(seconds) * time.Second)
	}
	return []Event{
		Opened{ShoppingCartID: cartID, ClientID: clientID, OpenedAt: at(0)},
		ProductItemAdded{ShoppingCartID: cartID, ProductItem: ProductItem{ProductID: "A", Quantity: 1}},
		ProductItemAdded{ShoppingCartID: cartID, ProductItem: ProductItem{ProductID: "B", Quantity: 3}},
		ProductItemRemoved{ShoppingCartID: cartID, ProductItem: ProductItem{ProductID: "B", Quantity: 1}},
		Confirmed{ShoppingCartID: cartID, ConfirmedAt: at(4)},
	}
}
