// Package shoppingcart models a shopping cart whose state is derived from its
// event log: the events, the product item arithmetic, the reducer that folds
// them, and the commands that produce new events.
package shoppingcart

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a cart.
type Status int

const (
	StatusOpened Status = iota + 1
	StatusConfirmed

	// StatusCancelled is part of the domain vocabulary but no event produces it yet.
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusOpened:    "Opened",
	StatusConfirmed: "Confirmed",
	StatusCancelled: "Cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// IsClosed reports whether the cart is confirmed or cancelled.
func (s Status) IsClosed() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("shoppingcart: unknown status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("shoppingcart: unknown status %q", text)
}

// ShoppingCart is the state materialized from a cart's events.
type ShoppingCart struct {
	ID           string       `json:"id"`
	ClientID     string       `json:"clientId"`
	Status       Status       `json:"status"`
	ProductItems ProductItems `json:"productItems"`
	OpenedAt     time.Time    `json:"openedAt"`
	ConfirmedAt  *time.Time   `json:"confirmedAt,omitempty"`
}

// IsClosed reports whether the cart no longer accepts changes.
func (c ShoppingCart) IsClosed() bool {
	return c.Status.IsClosed()
}
