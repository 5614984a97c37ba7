package customer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory Directory used by tests and by the
// sandbox seeder. Safe for concurrent use.
type MemoryDirectory struct {
	mu        sync.RWMutex
	customers map[string][]*Customer // store ID -> customers
	orders    map[string][]*Order    // store ID -> orders
	stores    map[string]*Store
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		customers: make(map[string][]*Customer),
		orders:    make(map[string][]*Order),
		stores:    make(map[string]*Store),
	}
}

// AddCustomer registers a customer
func (d *MemoryDirectory) AddCustomer(c *Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.StoreID] = append(d.customers[c.StoreID], c)
}

// AddOrder registers an order
func (d *MemoryDirectory) AddOrder(o *Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[o.StoreID] = append(d.orders[o.StoreID], o)
}

// AddStore registers a store profile
func (d *MemoryDirectory) AddStore(st *Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stores[st.ID] = st
}

// Customers returns all customers of a store, ordered by ID
func (d *MemoryDirectory) Customers(ctx context.Context, storeID string) ([]*Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	customers := make([]*Customer, len(d.customers[storeID]))
	copy(customers, d.customers[storeID])
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return customers, nil
}

// Customer returns a single customer, or nil if not found
func (d *MemoryDirectory) Customer(ctx context.Context, storeID, id string) (*Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.customers[storeID] {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

// OrderCounts returns the number of orders per customer ID
func (d *MemoryDirectory) OrderCounts(ctx context.Context, storeID string) (map[string]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int)
	for _, o := range d.orders[storeID] {
		counts[o.CustomerID]++
	}
	return counts, nil
}

// DeliveredTotals returns the lifetime sum of delivered-order totals per customer ID
func (d *MemoryDirectory) DeliveredTotals(ctx context.Context, storeID string) (map[string]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	totals := make(map[string]int64)
	for _, o := range d.orders[storeID] {
		if o.Status == OrderDelivered {
			totals[o.CustomerID] += o.TotalAmount
		}
	}
	return totals, nil
}

// ActiveSince returns the set of customer IDs with at least one order since the given time
func (d *MemoryDirectory) ActiveSince(ctx context.Context, storeID string, since time.Time) (map[string]struct{}, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	active := make(map[string]struct{})
	for _, o := range d.orders[storeID] {
		if !o.CreatedAt.Before(since) {
			active[o.CustomerID] = struct{}{}
		}
	}
	return active, nil
}

// LastOrder returns the most recent order for a customer, or nil
func (d *MemoryDirectory) LastOrder(ctx context.Context, storeID, customerID string) (*Order, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var last *Order
	for _, o := range d.orders[storeID] {
		if o.CustomerID != customerID {
			continue
		}
		if last == nil || o.CreatedAt.After(last.CreatedAt) {
			last = o
		}
	}
	return last, nil
}

// Store returns the store profile, or nil if not found
func (d *MemoryDirectory) Store(ctx context.Context, storeID string) (*Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stores[storeID], nil
}
