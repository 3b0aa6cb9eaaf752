package shoppingcart

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

// ProductItem is a quantity of one product.
type ProductItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Validate reports whether the item names a product and a positive quantity.
func (p ProductItem) Validate() error {
	if p.ProductID == "" {
		return fmt.Errorf("%w: product ID is required", ErrInvalidProductItem)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidProductItem, p.Quantity)
	}
	return nil
}

// ProductItems is an immutable set of product items keyed by product ID,
// kept in the order products were first added. Every quantity is positive.
// The zero value is an empty set.
type ProductItems struct {
	items []ProductItem
}

// NewProductItems merges items into a new set.
func NewProductItems(items ...ProductItem) ProductItems {
	var set ProductItems
	for _, item := range items {
		set = set.Add(item)
	}
	return set
}

// Add returns a set with item merged in: a new product is appended, a known
// product has its quantity increased. The receiver is not modified.
func (p ProductItems) Add(item ProductItem) ProductItems {
	i := p.index(item.ProductID)
	if i < 0 {
		items := make([]ProductItem, len(p.items), len(p.items)+1)
		copy(items, p.items)
		return ProductItems{items: append(items, item)}
	}

	items := slices.Clone(p.items)
	items[i].Quantity += item.Quantity
	return ProductItems{items: items}
}

// Remove returns a set with item's quantity taken away. A product whose
// quantity reaches zero is dropped. Removing an unknown product or more than
// is held fails with an InsufficientQuantityError. The receiver is not modified.
func (p ProductItems) Remove(item ProductItem) (ProductItems, error) {
	i := p.index(item.ProductID)
	if i < 0 {
		return p, &InsufficientQuantityError{ProductID: item.ProductID, Requested: item.Quantity}
	}

	current := p.items[i]
	if current.Quantity < item.Quantity {
		return p, &InsufficientQuantityError{
			ProductID: item.ProductID,
			Requested: item.Quantity,
			Available: current.Quantity,
		}
	}

	remaining := current.Quantity - item.Quantity
	if remaining == 0 {
		return ProductItems{items: slices.Delete(slices.Clone(p.items), i, i+1)}, nil
	}

	items := slices.Clone(p.items)
	items[i].Quantity = remaining
	return ProductItems{items: items}, nil
}

// Find returns the item for productID.
func (p ProductItems) Find(productID string) (ProductItem, bool) {
	i := p.index(productID)
	if i < 0 {
		return ProductItem{}, false
	}
	return p.items[i], true
}

// Quantity returns the held quantity of productID, or 0.
func (p ProductItems) Quantity(productID string) int {
	item, _ := p.Find(productID)
	return item.Quantity
}

// Len returns the number of distinct products.
func (p ProductItems) Len() int {
	return len(p.items)
}

// Total returns the sum of all quantities.
func (p ProductItems) Total() int {
	total := 0
	for _, item := range p.items {
		total += item.Quantity
	}
	return total
}

// All iterates over the items in insertion order.
func (p ProductItems) All() iter.Seq[ProductItem] {
	return slices.Values(p.items)
}

// Slice returns a copy of the items.
func (p ProductItems) Slice() []ProductItem {
	return slices.Clone(p.items)
}

// MarshalJSON encodes the set as an array of items.
func (p ProductItems) MarshalJSON() ([]byte, error) {
	if p.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.items)
}

// UnmarshalJSON decodes an array of items, merging duplicates.
func (p *ProductItems) UnmarshalJSON(data []byte) error {
	var items []ProductItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	*p = NewProductItems(items...)
	return nil
}

func (p ProductItems) index(productID string) int {
	return slices.IndexFunc(p.items, func(item ProductItem) bool {
		return item.ProductID == productID
	})
}
