package segment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mallsoft/peyk/internal/customer"
)

const storeID = "store1"

func seedDirectory(t *testing.T) (*customer.MemoryDirectory, time.Time) {
	t.Helper()

	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	birthday := time.Date(1995, time.March, 2, 0, 0, 0, 0, time.UTC)

	dir := customer.NewMemoryDirectory()
	dir.AddCustomer(&customer.Customer{
		ID: "c1", StoreID: storeID, FirstName: "Ali", Mobile: "09121111111",
		City: "Tehran", Province: "Tehran", RegisteredAt: now.AddDate(0, 0, -10),
	})
	dir.AddCustomer(&customer.Customer{
		ID: "c2", StoreID: storeID, FirstName: "Sara", Mobile: "09122222222",
		City: "Isfahan", Province: "Isfahan", BirthDate: &birthday, RegisteredAt: now.AddDate(0, -6, 0),
	})
	dir.AddCustomer(&customer.Customer{
		ID: "c3", StoreID: storeID, FirstName: "Reza", Mobile: "09123333333",
		City: "Tehran", Province: "Tehran", RegisteredAt: now.AddDate(-1, 0, 0),
	})

	// c2: two delivered orders summing 1.2M, one recent
	dir.AddOrder(&customer.Order{ID: "o1", StoreID: storeID, CustomerID: "c2", TotalAmount: 700_000, Status: customer.OrderDelivered, CreatedAt: now.AddDate(0, 0, -40)})
	dir.AddOrder(&customer.Order{ID: "o2", StoreID: storeID, CustomerID: "c2", TotalAmount: 500_000, Status: customer.OrderDelivered, CreatedAt: now.AddDate(0, 0, -5)})
	// c3: one delivered order of 900k, long ago
	dir.AddOrder(&customer.Order{ID: "o3", StoreID: storeID, CustomerID: "c3", TotalAmount: 900_000, Status: customer.OrderDelivered, CreatedAt: now.AddDate(0, 0, -120)})
	// c1: a cancelled order, recent
	dir.AddOrder(&customer.Order{ID: "o4", StoreID: storeID, CustomerID: "c1", TotalAmount: 300_000, Status: customer.OrderCancelled, CreatedAt: now.AddDate(0, 0, -3)})

	return dir, now
}

func ids(customers []*customer.Customer) []string {
	out := make([]string, len(customers))
	for i, c := range customers {
		out[i] = c.ID
	}
	return out
}

func TestEvaluateAll(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeAll}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2", "c3"}, ids(got))
}

func TestEvaluateNew(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeNew, Criteria: Criteria{Days: 30}}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids(got))

	// Default window is 30 days
	got, err = ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeNew}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids(got))
}

func TestEvaluateNewDeterministic(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)
	seg := &Segment{StoreID: storeID, Type: TypeNew, Criteria: Criteria{Days: 30}}

	first, err := ev.Evaluate(context.Background(), seg, now)
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), seg, now)
	require.NoError(t, err)
	require.Equal(t, ids(first), ids(second))
}

func TestEvaluateReturning(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeReturning, Criteria: Criteria{MinOrders: 2}}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, ids(got))
}

func TestEvaluateHighValue(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	// c2 has delivered orders summing 1.2M, c3 only 900k
	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeHighValue, Criteria: Criteria{MinAmount: 1_000_000}}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, ids(got))
}

func TestEvaluateInactive(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	// Within 90 days: c1 and c2 ordered, c3 did not
	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeInactive}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c3"}, ids(got))
}

func TestEvaluateBirthday(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeBirthday}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, ids(got))
}

func TestEvaluateLocation(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeLocation, Criteria: Criteria{City: "tehran"}}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c3"}, ids(got))

	got, err = ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeLocation, Criteria: Criteria{Province: "Isfahan"}}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, ids(got))
}

func TestEvaluateCustomYieldsEmpty(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)

	got, err := ev.Evaluate(context.Background(), &Segment{StoreID: storeID, Type: TypeCustom}, now)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCountMatchesEvaluate(t *testing.T) {
	dir, now := seedDirectory(t)
	ev := NewEvaluator(dir)
	seg := &Segment{StoreID: storeID, Type: TypeLocation, Criteria: Criteria{City: "Tehran"}}

	customers, err := ev.Evaluate(context.Background(), seg, now)
	require.NoError(t, err)

	count, err := ev.Count(context.Background(), seg, now)
	require.NoError(t, err)
	require.Equal(t, len(customers), count)
}

func TestSegmentValidate(t *testing.T) {
	require.Error(t, (&Segment{Type: "bogus"}).Validate())
	require.Error(t, (&Segment{Type: TypeLocation}).Validate())
	require.NoError(t, (&Segment{Type: TypeLocation, Criteria: Criteria{City: "Tehran"}}).Validate())
	require.Error(t, (&Segment{Type: TypeNew, Criteria: Criteria{Days: -1}}).Validate())
}
