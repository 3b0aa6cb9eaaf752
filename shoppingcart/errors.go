package shoppingcart

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-fold"
)

// Sentinel errors for cart folds and commands.
var (
	// ErrAlreadyOpened indicates an Opened event for a cart that already exists.
	ErrAlreadyOpened = errors.New("shoppingcart: cart has already been opened")

	// ErrInsufficientQuantity indicates a removal of an unknown product or of
	// more than is held.
	ErrInsufficientQuantity = errors.New("shoppingcart: product not found or insufficient")

	// ErrInvalidProductItem indicates an empty product ID or a non-positive quantity.
	ErrInvalidProductItem = errors.New("shoppingcart: invalid product item")

	// ErrCartClosed indicates a command against a confirmed or cancelled cart.
	ErrCartClosed = errors.New("shoppingcart: cart is closed")

	// ErrMissingID indicates a command without a cart or client ID.
	ErrMissingID = errors.New("shoppingcart: cart and client IDs are required")
)

// AlreadyOpenedError reports a second Opened event for CartID.
type AlreadyOpenedError struct {
	CartID string
}

func (e *AlreadyOpenedError) Error() string {
	return fmt.Sprintf("shoppingcart: cart %q has already been opened", e.CartID)
}

func (e *AlreadyOpenedError) Is(target error) bool {
	return target == ErrAlreadyOpened
}

func (e *AlreadyOpenedError) Unwrap() error {
	return ErrAlreadyOpened
}

// InsufficientQuantityError reports a removal that the cart cannot satisfy.
// Available is 0 when the product is not in the cart.
type InsufficientQuantityError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("shoppingcart: cannot remove %d of product %q, %d available",
		e.Requested, e.ProductID, e.Available)
}

func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

func (e *InsufficientQuantityError) Unwrap() error {
	return ErrInsufficientQuantity
}

// NotOpenedError reports an event folded before the cart was opened.
// It matches fold.ErrStreamNotFound.
type NotOpenedError struct {
	EventType string
}

func (e *NotOpenedError) Error() string {
	return fmt.Sprintf("shoppingcart: shopping cart not found, %q arrived before %q", e.EventType, OpenedType)
}

func (e *NotOpenedError) Is(target error) bool {
	return target == fold.ErrStreamNotFound
}

func (e *NotOpenedError) Unwrap() error {
	return fold.ErrStreamNotFound
}
