// ABOUTME: Tests for the product store
// ABOUTME: Covers id allocation, pagination, filtering, ordering, and reload across backends

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/showcase-backend/internal/apperr"
)

var fixedNow = time.Unix(1700000000, 0)

func newTestSQLite(t *testing.T) *SQLitePersister {
	t.Helper()
	p, err := NewSQLitePersister(filepath.Join(t.TempDir(), "showcase.db"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func newTestProducts(t *testing.T, p Persister) *ProductStore {
	t.Helper()
	s, err := NewProductStore(context.Background(), p)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func insertProduct(t *testing.T, s *ProductStore, name, category, seller, status string) *Product {
	t.Helper()
	p := &Product{
		Name:     name,
		Price:    1.5,
		Category: category,
		Seller:   seller,
		Status:   status,
		Images:   []string{},
	}
	s.Insert(context.Background(), p)
	return p
}

func TestProductStore_InsertAssignsSequentialIDs(t *testing.T) {
	s := newTestProducts(t, newTestSQLite(t))

	a := insertProduct(t, s, "a", "art", "0x1", StatusActive)
	b := insertProduct(t, s, "b", "art", "0x1", StatusActive)

	assert.Equal(t, "prod_1_1700000000", a.ID)
	assert.Equal(t, "prod_2_1700000000", b.ID)

	got, err := s.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
}

func TestProductStore_GetUnknown(t *testing.T) {
	s := newTestProducts(t, newTestSQLite(t))

	_, err := s.Get(context.Background(), "prod_9_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestProductStore_Pagination(t *testing.T) {
	s := newTestProducts(t, newTestSQLite(t))
	const n = 7
	for i := 0; i < n; i++ {
		insertProduct(t, s, fmt.Sprintf("p%d", i), "art", "0x1", StatusActive)
	}

	for _, limit := range []int{1, 3, 7, 10} {
		for _, offset := range []int{0, 2, 6, 7, 12} {
			page, total := s.List(context.Background(), ProductFilter{}, limit, offset)
			want := min(limit, max(0, n-offset))
			assert.Len(t, page, want, "limit=%d offset=%d", limit, offset)
			assert.Equal(t, n, total, "limit=%d offset=%d", limit, offset)
			if want > 0 {
				assert.Equal(t, fmt.Sprintf("p%d", offset), page[0].Name)
			}
		}
	}
}

func TestProductStore_PaginationDefaults(t *testing.T) {
	s := newTestProducts(t, newTestSQLite(t))
	for i := 0; i < DefaultLimit+5; i++ {
		insertProduct(t, s, fmt.Sprintf("p%d", i), "art", "0x1", StatusActive)
	}

	page, total := s.List(context.Background(), ProductFilter{}, 0, -3)
	assert.Len(t, page, DefaultLimit)
	assert.Equal(t, DefaultLimit+5, total)
	assert.Equal(t, "p0", page[0].Name)
}

func TestProductStore_FiltersAreANDed(t *testing.T) {
	s := newTestProducts(t, newTestSQLite(t))
	insertProduct(t, s, "a", "art", "0x1", StatusActive)
	insertProduct(t, s, "b", "art", "0x2", StatusActive)
	insertProduct(t, s, "c", "music", "0x1", StatusPendingBlockchain)
	insertProduct(t, s, "d", "art", "0x1", StatusPendingBlockchain)

	page, total := s.List(context.Background(), ProductFilter{Category: "art", Seller: "0x1"}, 10, 0)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].Name)
	assert.Equal(t, "d", page[1].Name)

	page, total = s.List(context.Background(), ProductFilter{Category: "art", Status: StatusPendingBlockchain}, 10, 0)
	assert.Equal(t, 1, total)
	assert.Equal(t, "d", page[0].Name)
}

func TestProductStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestProducts(t, newTestSQLite(t))
	p := insertProduct(t, s, "a", "art", "0x1", StatusPendingBlockchain)

	updated, err := s.Update(ctx, p.ID, func(p *Product) {
		p.BlockchainID = "42"
		p.Status = StatusActive
		p.ID = "hijacked"
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, "42", updated.BlockchainID)

	_, err = s.Update(ctx, "prod_99_1", func(*Product) {})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, p.ID))
	assert.ErrorIs(t, s.Delete(ctx, p.ID), ErrNotFound)
	assert.Equal(t, 0, s.Count())
}

func TestProductStore_DeleteWhere(t *testing.T) {
	ctx := context.Background()
	s := newTestProducts(t, newTestSQLite(t))
	keep := insertProduct(t, s, "keep", "art", "0x1", StatusActive)
	drop := insertProduct(t, s, "drop", "art", "", StatusActive)

	removed := s.DeleteWhere(ctx, func(p *Product) bool { return p.Seller == "" })
	assert.Equal(t, []string{drop.ID}, removed)

	all := s.All(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)
}

func TestProductStore_ReloadFromSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "showcase.db")

	p1, err := NewSQLitePersister(path)
	require.NoError(t, err)
	s1 := newTestProducts(t, p1)
	a := insertProduct(t, s1, "a", "art", "0x1", StatusActive)
	b := insertProduct(t, s1, "b", "art", "0x1", StatusActive)
	c := insertProduct(t, s1, "c", "art", "0x1", StatusActive)
	_, err = s1.Update(ctx, a.ID, func(p *Product) { p.Name = "a2" })
	require.NoError(t, err)
	require.NoError(t, s1.Delete(ctx, c.ID))
	require.NoError(t, p1.Close())

	p2, err := NewSQLitePersister(path)
	require.NoError(t, err)
	defer p2.Close()
	s2 := newTestProducts(t, p2)

	all := s2.All(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID, "update keeps insertion position")
	assert.Equal(t, "a2", all[0].Name)
	assert.Equal(t, b.ID, all[1].ID)

	// The counter survives even though the highest id was deleted.
	d := insertProduct(t, s2, "d", "art", "0x1", StatusActive)
	assert.Equal(t, "prod_4_1700000000", d.ID)
}

func TestProductStore_JSONBackendRebuildsCounter(t *testing.T) {
	dir := t.TempDir()
	p, err := NewJSONFilePersister(dir)
	require.NoError(t, err)

	s1 := newTestProducts(t, p)
	insertProduct(t, s1, "a", "art", "0x1", StatusActive)
	insertProduct(t, s1, "b", "art", "0x1", StatusActive)

	s2 := newTestProducts(t, p)
	assert.Equal(t, 2, s2.Count())
	c := insertProduct(t, s2, "c", "art", "0x1", StatusActive)
	assert.Equal(t, "prod_3_1700000000", c.ID)
}

func TestProductStore_MalformedLegacyIDFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	doc := `{"prod_1_100": {"id": "prod_1_100", "name": "ok"}, "weird-id": {"id": "weird-id", "name": "bad"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte(doc), 0644))

	p, err := NewJSONFilePersister(dir)
	require.NoError(t, err)

	_, err = NewProductStore(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weird-id")
}

func TestProductStore_UnreadableFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte("{not json"), 0644))

	p, err := NewJSONFilePersister(dir)
	require.NoError(t, err)

	s := newTestProducts(t, p)
	assert.Equal(t, 0, s.Count())

	a := insertProduct(t, s, "a", "art", "0x1", StatusActive)
	assert.Equal(t, "prod_1_1700000000", a.ID)
}

func TestParseProductID(t *testing.T) {
	n, ts, err := ParseProductID("prod_12_1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, int64(1700000000), ts)

	for _, bad := range []string{"", "prod_x_1", "prod_1", "item_1_1", "prod_1_2_3", "prod_-1_5"} {
		_, _, err := ParseProductID(bad)
		assert.Error(t, err, bad)
	}
}
