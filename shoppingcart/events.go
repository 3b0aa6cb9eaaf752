package shoppingcart

import (
	"time"

	"github.com/AshkanYarmoradi/go-fold"
)

// Category is the stream category of shopping carts.
const Category = "shopping_cart"

// Event type names as stored in the log.
const (
	OpenedType             = "shopping-cart-opened"
	ProductItemAddedType   = "product-item-added-to-shopping-cart"
	ProductItemRemovedType = "product-item-removed-from-shopping-cart"
	ConfirmedType          = "shopping-cart-confirmed"
)

// Event is a shopping cart domain event.
// The variants are Opened, ProductItemAdded, ProductItemRemoved and Confirmed.
type Event interface {
	fold.EventTyper
	CartID() string
	isShoppingCartEvent()
}

// Opened starts a cart's lifecycle.
type Opened struct {
	ShoppingCartID string    `json:"shoppingCartId"`
	ClientID       string    `json:"clientId"`
	OpenedAt       time.Time `json:"openedAt"`
}

// ProductItemAdded puts a quantity of a product into the cart.
type ProductItemAdded struct {
	ShoppingCartID string      `json:"shoppingCartId"`
	ProductItem    ProductItem `json:"productItem"`
}

// ProductItemRemoved takes a quantity of a product out of the cart.
type ProductItemRemoved struct {
	ShoppingCartID string      `json:"shoppingCartId"`
	ProductItem    ProductItem `json:"productItem"`
}

// Confirmed closes the cart for checkout.
type Confirmed struct {
	ShoppingCartID string    `json:"shoppingCartId"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
}

func (Opened) EventType() string             { return OpenedType }
func (ProductItemAdded) EventType() string   { return ProductItemAddedType }
func (ProductItemRemoved) EventType() string { return ProductItemRemovedType }
func (Confirmed) EventType() string          { return ConfirmedType }

func (e Opened) CartID() string             { return e.ShoppingCartID }
func (e ProductItemAdded) CartID() string   { return e.ShoppingCartID }
func (e ProductItemRemoved) CartID() string { return e.ShoppingCartID }
func (e Confirmed) CartID() string          { return e.ShoppingCartID }

func (Opened) isShoppingCartEvent()             {}
func (ProductItemAdded) isShoppingCartEvent()   {}
func (ProductItemRemoved) isShoppingCartEvent() {}
func (Confirmed) isShoppingCartEvent()          {}

// EventExamples returns one zero value per variant, for serializer registries.
func EventExamples() []interface{} {
	return []interface{}{Opened{}, ProductItemAdded{}, ProductItemRemoved{}, Confirmed{}}
}

// RegisterEvents registers every cart event with the store's serializer.
func RegisterEvents(store *fold.EventStore) {
	store.RegisterEvents(EventExamples()...)
}

// StreamID returns the log address of a cart.
func StreamID(cartID string) string {
	return fold.BuildStreamID(Category, cartID)
}
