package recipient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mallsoft/peyk/internal/customer"
	"github.com/mallsoft/peyk/internal/segment"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"09123456789", "+989123456789", true},
		{"+989123456789", "+989123456789", true},
		{"00989123456789", "+989123456789", true},
		{"9123456789", "+989123456789", true},
		{"1234", "1234", false},
		{"not-a-number", "not-a-number", false},
	}

	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		require.Equal(t, tt.valid, ok, "Normalize(%q) validity", tt.in)
		require.Equal(t, tt.want, got, "Normalize(%q)", tt.in)
	}
}

func TestResolveDedup(t *testing.T) {
	now := time.Now()
	dir := customer.NewMemoryDirectory()
	// Shared customer appears in both segments via the same mobile
	dir.AddCustomer(&customer.Customer{ID: "c1", StoreID: "store1", FirstName: "Ali", Mobile: "09121111111", City: "Tehran", RegisteredAt: now.AddDate(0, 0, -5)})
	dir.AddCustomer(&customer.Customer{ID: "c2", StoreID: "store1", FirstName: "Sara", Mobile: "09122222222", City: "Isfahan", RegisteredAt: now.AddDate(-1, 0, 0)})

	resolver := NewResolver(segment.NewEvaluator(dir))

	segments := []*segment.Segment{
		{ID: "s1", StoreID: "store1", Type: segment.TypeAll},
		{ID: "s2", StoreID: "store1", Type: segment.TypeNew, Criteria: segment.Criteria{Days: 30}},
	}

	got, err := resolver.Resolve(context.Background(), segments, nil, now)
	require.NoError(t, err)
	require.Len(t, got, 2)

	seen := make(map[string]int)
	for _, r := range got {
		seen[r.Mobile]++
	}
	require.Equal(t, 1, seen["+989121111111"], "shared customer must appear exactly once")

	// First segment wins the source attribution
	require.Equal(t, "segment:s1", got[0].Source)
}

func TestResolveCustomRecipients(t *testing.T) {
	now := time.Now()
	dir := customer.NewMemoryDirectory()
	dir.AddCustomer(&customer.Customer{ID: "c1", StoreID: "store1", FirstName: "Ali", Mobile: "09121111111", RegisteredAt: now})

	resolver := NewResolver(segment.NewEvaluator(dir))

	custom := []Custom{
		{Name: "Manual", Mobile: "09123333333"},
		{Mobile: "09121111111"}, // duplicate of the segment customer
		{Mobile: "bogus"},
	}

	got, err := resolver.Resolve(context.Background(), []*segment.Segment{{ID: "s1", StoreID: "store1", Type: segment.TypeAll}}, custom, now)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, "+989121111111", got[0].Mobile)
	require.Equal(t, "segment:s1", got[0].Source)
	require.Equal(t, "Ali", got[0].Name, "richer segment metadata kept over bare custom entry")

	require.Equal(t, "+989123333333", got[1].Mobile)
	require.Equal(t, SourceCustom, got[1].Source)

	require.True(t, got[2].Invalid, "unparseable number surfaced, not dropped")
	require.Equal(t, "bogus", got[2].Mobile)
}

func TestResolveNamePreference(t *testing.T) {
	now := time.Now()
	dir := customer.NewMemoryDirectory()
	resolver := NewResolver(segment.NewEvaluator(dir))

	custom := []Custom{
		{Mobile: "09124444444"},                  // no name
		{Name: "Named", Mobile: "09124444444"},   // same number with a name
	}

	got, err := resolver.Resolve(context.Background(), nil, custom, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Named", got[0].Name)
}
