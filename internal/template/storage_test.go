package template

import (
	"context"
	"path/filepath"
	"testing"

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

func TestStorageCreateGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	tmpl := &Template{
		StoreID:   "store1",
		Name:      "welcome",
		Category:  CategoryWelcome,
		Body:      "Hi {{name}}, welcome to {{store_name}}",
		Variables: []string{"name", "store_name"},
		Active:    true,
	}
	require.NoError(t, s.Create(ctx, tmpl))
	require.NotEmpty(t, tmpl.ID)
	require.False(t, tmpl.CreatedAt.IsZero())

	got, err := s.Get(ctx, "store1", tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, "welcome", got.Name)
	require.Equal(t, CategoryWelcome, got.Category)

	// Not visible from another store
	other, err := s.Get(ctx, "store2", tmpl.ID)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestStorageNameUniquePerStore(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first := &Template{StoreID: "store1", Name: "promo", Body: "x", Active: true}
	require.NoError(t, s.Create(ctx, first))

	dup := &Template{StoreID: "store1", Name: "promo", Body: "y", Active: true}
	require.Error(t, s.Create(ctx, dup))

	// Same name is fine in a different store
	sibling := &Template{StoreID: "store2", Name: "promo", Body: "z", Active: true}
	require.NoError(t, s.Create(ctx, sibling))
}

func TestStorageUpdateKeepsUsage(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	tmpl := &Template{StoreID: "store1", Name: "promo", Body: "old", Active: true}
	require.NoError(t, s.Create(ctx, tmpl))
	require.NoError(t, s.IncrementUsage(ctx, "store1", tmpl.ID))
	require.NoError(t, s.IncrementUsage(ctx, "store1", tmpl.ID))

	tmpl.Body = "new"
	require.NoError(t, s.Update(ctx, tmpl))

	got, err := s.Get(ctx, "store1", tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got.Body)
	require.Equal(t, 2, got.UsageCount)
}

func TestStorageDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	tmpl := &Template{StoreID: "store1", Name: "promo", Body: "x", Active: true}
	require.NoError(t, s.Create(ctx, tmpl))
	require.NoError(t, s.Delete(ctx, "store1", tmpl.ID))

	got, err := s.Get(ctx, "store1", tmpl.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	// Name is released
	again := &Template{StoreID: "store1", Name: "promo", Body: "x", Active: true}
	require.NoError(t, s.Create(ctx, again))

	require.ErrorIs(t, s.Delete(ctx, "store1", "missing"), ErrNotFound)
}

func TestStorageList(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	active := true
	require.NoError(t, s.Create(ctx, &Template{StoreID: "store1", Name: "a", Category: CategoryPromotion, Body: "x", Active: true}))
	require.NoError(t, s.Create(ctx, &Template{StoreID: "store1", Name: "b", Category: CategoryBirthday, Body: "y", Active: false}))

	all, err := s.List(ctx, "store1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	promos, err := s.List(ctx, "store1", ListFilter{Category: CategoryPromotion})
	require.NoError(t, err)
	require.Len(t, promos, 1)
	require.Equal(t, "a", promos[0].Name)

	actives, err := s.List(ctx, "store1", ListFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, actives, 1)
}

func TestSeedDefaults(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	created, err := s.SeedDefaults(ctx, "store1")
	require.NoError(t, err)
	require.Len(t, created, len(Defaults()))

	for _, tmpl := range created {
		require.NotEmpty(t, tmpl.ID)
		require.True(t, tmpl.Active)
		require.NoError(t, Validate(tmpl))
	}

	// Re-seeding creates nothing new
	again, err := s.SeedDefaults(ctx, "store1")
	require.NoError(t, err)
	require.Empty(t, again)

	all, err := s.List(ctx, "store1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, len(Defaults()))

	// A customized template with a stock name survives re-seeding
	welcome, err := s.List(ctx, "store1", ListFilter{Category: CategoryWelcome})
	require.NoError(t, err)
	require.Len(t, welcome, 1)
}
