package customer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewStorage(db)
	require.NoError(t, err)
	return s
}

func TestStorageCustomers(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.PutCustomer(ctx, &Customer{ID: "c2", StoreID: "store1", FirstName: "Sara", Mobile: "09121111111"}))
	require.NoError(t, s.PutCustomer(ctx, &Customer{ID: "c1", StoreID: "store1", FirstName: "Ali", Mobile: "09122222222"}))
	require.NoError(t, s.PutCustomer(ctx, &Customer{ID: "c3", StoreID: "store2", FirstName: "Reza", Mobile: "09123333333"}))

	customers, err := s.Customers(ctx, "store1")
	require.NoError(t, err)
	require.Len(t, customers, 2)
	require.Equal(t, "c1", customers[0].ID)
	require.Equal(t, "c2", customers[1].ID)

	got, err := s.Customer(ctx, "store1", "c2")
	require.NoError(t, err)
	require.Equal(t, "Sara", got.FirstName)

	missing, err := s.Customer(ctx, "store1", "c3")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStorageOrderAggregates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	orders := []*Order{
		{StoreID: "store1", CustomerID: "c1", TotalAmount: 700_000, Status: OrderDelivered, CreatedAt: now.AddDate(0, 0, -10)},
		{StoreID: "store1", CustomerID: "c1", TotalAmount: 500_000, Status: OrderDelivered, CreatedAt: now.AddDate(0, 0, -5)},
		{StoreID: "store1", CustomerID: "c1", TotalAmount: 300_000, Status: OrderCancelled, CreatedAt: now.AddDate(0, 0, -2)},
		{StoreID: "store1", CustomerID: "c2", TotalAmount: 900_000, Status: OrderDelivered, CreatedAt: now.AddDate(0, 0, -120)},
	}
	for _, o := range orders {
		require.NoError(t, s.PutOrder(ctx, o))
	}

	counts, err := s.OrderCounts(ctx, "store1")
	require.NoError(t, err)
	require.Equal(t, 3, counts["c1"])
	require.Equal(t, 1, counts["c2"])

	totals, err := s.DeliveredTotals(ctx, "store1")
	require.NoError(t, err)
	require.Equal(t, int64(1_200_000), totals["c1"])
	require.Equal(t, int64(900_000), totals["c2"])

	active, err := s.ActiveSince(ctx, "store1", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Contains(t, active, "c1")
	require.NotContains(t, active, "c2")

	last, err := s.LastOrder(ctx, "store1", "c1")
	require.NoError(t, err)
	require.Equal(t, OrderCancelled, last.Status)
}
