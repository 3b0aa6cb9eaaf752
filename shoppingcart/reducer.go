package shoppingcart

import (
	"github.com/AshkanYarmoradi/go-fold"
)

// Evolve is the cart reducer. It never mutates *current.
//
// Events after Confirmed are applied as recorded; Decide functions are what
// keep them from being written.
func Evolve(current *ShoppingCart, event Event) (ShoppingCart, error) {
	if event == nil {
		return ShoppingCart{}, fold.NewUnknownEventError("<nil>")
	}

	if opened, ok := event.(Opened); ok {
		if current != nil {
			return ShoppingCart{}, &AlreadyOpenedError{CartID: current.ID}
		}
		return ShoppingCart{
			ID:       opened.ShoppingCartID,
			ClientID: opened.ClientID,
			Status:   StatusOpened,
			OpenedAt: opened.OpenedAt,
		}, nil
	}

	if current == nil {
		return ShoppingCart{}, &NotOpenedError{EventType: event.EventType()}
	}

	next := *current
	switch e := event.(type) {
	case ProductItemAdded:
		if err := e.ProductItem.Validate(); err != nil {
			return ShoppingCart{}, err
		}
		next.ProductItems = current.ProductItems.Add(e.ProductItem)

	case ProductItemRemoved:
		if err := e.ProductItem.Validate(); err != nil {
			return ShoppingCart{}, err
		}
		items, err := current.ProductItems.Remove(e.ProductItem)
		if err != nil {
			return ShoppingCart{}, err
		}
		next.ProductItems = items

	case Confirmed:
		confirmedAt := e.ConfirmedAt
		next.Status = StatusConfirmed
		next.ConfirmedAt = &confirmedAt

	default:
		return ShoppingCart{}, fold.NewUnknownEventError(event.EventType())
	}

	return next, nil
}

// Aggregate folds a stream of cart events into a cart.
var Aggregate = fold.StreamAggregator(Evolve)
