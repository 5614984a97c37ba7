package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCustomers = []byte("customers")
	bucketOrders    = []byte("orders")
	bucketStores    = []byte("stores")
)

// Storage is a bbolt-backed Directory implementation. Keys are
// "<store_id>/<entity_id>" so a cursor prefix scan yields one store's
// rows ordered by entity ID.
type Storage struct {
	db *bolt.DB
}

// NewStorage creates customer storage on an existing database
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCustomers, bucketOrders, bucketStores} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create customer buckets: %w", err)
	}
	return &Storage{db: db}, nil
}

func storeKey(storeID, id string) []byte {
	return []byte(storeID + "/" + id)
}

func storePrefix(storeID string) []byte {
	return []byte(storeID + "/")
}

// PutCustomer inserts or updates a customer row.
func (s *Storage) PutCustomer(ctx context.Context, c *Customer) error {
	if c.StoreID == "" {
		return fmt.Errorf("customer store_id is required")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal customer: %w", err)
		}
		return tx.Bucket(bucketCustomers).Put(storeKey(c.StoreID, c.ID), data)
	})
}

// PutOrder inserts or updates an order row.
func (s *Storage) PutOrder(ctx context.Context, o *Order) error {
	if o.StoreID == "" {
		return fmt.Errorf("order store_id is required")
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}
		return tx.Bucket(bucketOrders).Put(storeKey(o.StoreID, o.ID), data)
	})
}

// Customers returns all customers of a store, ordered by ID
func (s *Storage) Customers(ctx context.Context, storeID string) ([]*Customer, error) {
	var customers []*Customer

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCustomers).Cursor()
		prefix := storePrefix(storeID)

		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var cust Customer
			if err := json.Unmarshal(v, &cust); err != nil {
				continue
			}
			customers = append(customers, &cust)
		}
		return nil
	})

	return customers, err
}

// Customer returns a single customer, or nil if not found
func (s *Storage) Customer(ctx context.Context, storeID, id string) (*Customer, error) {
	var cust *Customer

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCustomers).Get(storeKey(storeID, id))
		if data == nil {
			return nil
		}
		cust = &Customer{}
		return json.Unmarshal(data, cust)
	})

	return cust, err
}

// OrderCounts returns the number of orders per customer ID
func (s *Storage) OrderCounts(ctx context.Context, storeID string) (map[string]int, error) {
	counts := make(map[string]int)

	err := s.forEachOrder(storeID, func(o *Order) {
		counts[o.CustomerID]++
	})

	return counts, err
}

// DeliveredTotals returns the lifetime sum of delivered-order totals per customer ID
func (s *Storage) DeliveredTotals(ctx context.Context, storeID string) (map[string]int64, error) {
	totals := make(map[string]int64)

	err := s.forEachOrder(storeID, func(o *Order) {
		if o.Status == OrderDelivered {
			totals[o.CustomerID] += o.TotalAmount
		}
	})

	return totals, err
}

// ActiveSince returns the set of customer IDs with at least one order since the given time
func (s *Storage) ActiveSince(ctx context.Context, storeID string, since time.Time) (map[string]struct{}, error) {
	active := make(map[string]struct{})

	err := s.forEachOrder(storeID, func(o *Order) {
		if !o.CreatedAt.Before(since) {
			active[o.CustomerID] = struct{}{}
		}
	})

	return active, err
}

// LastOrder returns the most recent order for a customer, or nil
func (s *Storage) LastOrder(ctx context.Context, storeID, customerID string) (*Order, error) {
	var last *Order

	err := s.forEachOrder(storeID, func(o *Order) {
		if o.CustomerID != customerID {
			return
		}
		if last == nil || o.CreatedAt.After(last.CreatedAt) {
			last = o
		}
	})

	return last, err
}

// PutStore inserts or updates a store profile.
func (s *Storage) PutStore(ctx context.Context, st *Store) error {
	if st.ID == "" {
		return fmt.Errorf("store id is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal store: %w", err)
		}
		return tx.Bucket(bucketStores).Put([]byte(st.ID), data)
	})
}

// Store returns the store profile, or nil if not found
func (s *Storage) Store(ctx context.Context, storeID string) (*Store, error) {
	var st *Store

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStores).Get([]byte(storeID))
		if data == nil {
			return nil
		}
		st = &Store{}
		return json.Unmarshal(data, st)
	})

	return st, err
}

func (s *Storage) forEachOrder(storeID string, fn func(*Order)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOrders).Cursor()
		prefix := storePrefix(storeID)

		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var o Order
			if err := json.Unmarshal(v, &o); err != nil {
				continue
			}
			fn(&o)
		}
		return nil
	})
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
