package customer

import (
	"context"
	"strings"
	"time"
)

// Customer is the read model the campaign engine sees for a store customer.
type Customer struct {
	ID           string     `json:"id"`
	StoreID      string     `json:"store_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Mobile       string     `json:"mobile"`
	Email        string     `json:"email,omitempty"`
	City         string     `json:"city,omitempty"`
	Province     string     `json:"province,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// FullName returns the customer's display name.
func (c *Customer) FullName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Mobile
	}
	return name
}

// Store is the profile of a tenant shop, used to fill store variables in
// message templates.
type Store struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is the read model for a store order.
type Order struct {
	ID          string      `json:"id"`
	StoreID     string      `json:"store_id"`
	CustomerID  string      `json:"customer_id"`
	Number      string      `json:"number"`
	TotalAmount int64       `json:"total_amount"` // Rials
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Directory exposes the read queries the segment evaluator needs against
// the order/customer store. The platform's own customer database sits
// behind this interface; the engine never writes to it.
type Directory interface {
	// Customers returns all customers of a store, ordered by ID.
	Customers(ctx context.Context, storeID string) ([]*Customer, error)

	// Customer returns a single customer, or nil if not found.
	Customer(ctx context.Context, storeID, id string) (*Customer, error)

	// OrderCounts returns the number of orders per customer ID.
	OrderCounts(ctx context.Context, storeID string) (map[string]int, error)

	// DeliveredTotals returns the lifetime sum of delivered-order totals
	// per customer ID.
	DeliveredTotals(ctx context.Context, storeID string) (map[string]int64, error)

	// ActiveSince returns the set of customer IDs with at least one order
	// created at or after the given time.
	ActiveSince(ctx context.Context, storeID string, since time.Time) (map[string]struct{}, error)

	// LastOrder returns the most recent order for a customer, or nil.
	LastOrder(ctx context.Context, storeID, customerID string) (*Order, error)

	// Store returns the store profile, or nil if not found.
	Store(ctx context.Context, storeID string) (*Store, error)
}
