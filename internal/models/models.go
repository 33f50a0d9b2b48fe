// Package models defines the core data structures for NEWAIBOT.
//
// It includes the order context and catalog types shared by the reconciliation
// core, plus the message and API envelope types used by the transports.
package models

import (
	"errors"
	"strings"
)

// DeliveryType is how a confirmed order reaches the customer.
type DeliveryType string

const (
	// DeliveryTypeUnset means the customer has not chosen yet.
	DeliveryTypeUnset DeliveryType = ""
	// DeliveryTypeDelivery sends the order to an address.
	DeliveryTypeDelivery DeliveryType = "delivery"
	// DeliveryTypeTakeaway has the customer pick up at a branch.
	DeliveryTypeTakeaway DeliveryType = "takeaway"
)

// ParseDeliveryType maps free-form model output onto a DeliveryType.
// Anything other than delivery/takeaway (and the "pickup" synonym) is unset.
func ParseDeliveryType(s string) DeliveryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delivery":
		return DeliveryTypeDelivery
	case "takeaway", "take-away", "pickup":
		return DeliveryTypeTakeaway
	default:
		return DeliveryTypeUnset
	}
}

// Error variables for better error handling and testability
var (
	ErrNoPendingOrder    = errors.New("no pending order found")
	ErrOrderLocked       = errors.New("order is locked")
	ErrOrderNotFound     = errors.New("order not found")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("order status transition not allowed")
	ErrEmptyRecipient    = errors.New("recipient cannot be empty")
)

// CatalogEntry is one sellable product from the catalog snapshot.
// UnitPrice is in minor currency units (whole LBP).
type CatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UnitPrice   int64  `json:"unit_price"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity"`
	Modifications []string `json:"modifications"`
}

// Clone returns a deep copy of the item.
func (i OrderItem) Clone() OrderItem {
	c := i
	if i.Modifications != nil {
		c.Modifications = make([]string, len(i.Modifications))
		copy(c.Modifications, i.Modifications)
	}
	return c
}

// CloneItems deep-copies an item list. A nil list stays nil.
func CloneItems(items []OrderItem) []OrderItem {
	if items == nil {
		return nil
	}
	out := make([]OrderItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// OrderContext is the live, per-customer order record.
//
// Once Confirmed is true the order fields are frozen; only eviction after
// persistence (or a process restart) clears the context.
type OrderContext struct {
	DeliveryType DeliveryType  `json:"delivery_type"`
	Address      string        `json:"address,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Name         string        `json:"name,omitempty"`
	Branch       string        `json:"branch,omitempty"`
	Items        []OrderItem   `json:"items"`
	Price        *int64        `json:"price,omitempty"`
	Confirmed    bool          `json:"confirmed"`
	History      [][]OrderItem `json:"-"`
}

// HasItems reports whether the context carries at least one item.
func (c *OrderContext) HasItems() bool {
	return c != nil && len(c.Items) > 0
}

// SetPrice stores a resolved total.
func (c *OrderContext) SetPrice(p int64) {
	c.Price = &p
}

// PriceValue returns the total, or 0 when unresolved.
func (c *OrderContext) PriceValue() int64 {
	if c == nil || c.Price == nil {
		return 0
	}
	return *c.Price
}

// Clone returns a deep copy, including the undo history.
func (c OrderContext) Clone() OrderContext {
	out := c
	out.Items = CloneItems(c.Items)
	if c.Price != nil {
		p := *c.Price
		out.Price = &p
	}
	if c.History != nil {
		out.History = make([][]OrderItem, len(c.History))
		for i, snap := range c.History {
			out.History[i] = CloneItems(snap)
		}
	}
	return out
}

// Branch is a restaurant location offered to customers.
type Branch struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Location     string `json:"location" db:"location"`
	DeliveryTime string `json:"delivery_time" db:"delivery_time"`
}
