package models

import (
	"fmt"
	"time"
)

// OrderStatus is the kitchen-side lifecycle of a persisted order.
type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusCompleted OrderStatus = "completed"
)

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCompleted},
	OrderStatusPreparing: {OrderStatusCompleted},
}

// IsValidOrderStatus checks if the given status is known.
func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusPreparing, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition unless from may move to to.
func ValidateTransition(from, to OrderStatus) error {
	if !IsValidOrderStatus(to) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Order is a confirmed order as persisted in the orders table.
type Order struct {
	ID           int64       `json:"id" db:"id"`
	Reference    string      `json:"reference" db:"reference"`
	CustomerID   int64       `json:"customer_id" db:"customer_id"`
	OrderType    string      `json:"order_type" db:"order_type"`
	Items        string      `json:"items" db:"items"`
	TotalPrice   int64       `json:"total_price" db:"total_price"`
	Address      *string     `json:"delivery_address,omitempty" db:"delivery_address"`
	Phone        *string     `json:"contact_phone,omitempty" db:"contact_phone"`
	Branch       *string     `json:"branch,omitempty" db:"branch"`
	CustomerName *string     `json:"customer_name,omitempty" db:"customer_name"`
	Status       OrderStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Status OrderStatus
	Since  time.Time
	Limit  int
	Offset int
}
