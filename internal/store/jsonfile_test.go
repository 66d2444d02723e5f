// ABOUTME: Tests for the JSON-file persister and legacy import
// ABOUTME: Covers the on-disk format, document ordering, and one-shot migration to SQLite

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFilePersister_WritesKeyedObject(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := NewJSONFilePersister(dir)
	require.NoError(t, err)

	s := newTestProducts(t, p)
	a := insertProduct(t, s, "a", "art", "0x1", StatusActive)

	data, err := os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)

	var onDisk map[string]Product
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Contains(t, onDisk, a.ID)
	assert.Equal(t, "a", onDisk[a.ID].Name)
	assert.Equal(t, a.ID, onDisk[a.ID].ID)

	require.NoError(t, s.Delete(ctx, a.ID))
	data, err = os.ReadFile(filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestJSONFilePersister_Ping(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	p, err := NewJSONFilePersister(dir)
	require.NoError(t, err)

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, p.Ping(ctx))
}

func TestJSONFilePersister_PreservesDocumentOrder(t *testing.T) {
	ctx := context.Background()
	p, err := NewJSONFilePersister(t.TempDir())
	require.NoError(t, err)

	in := []Record{
		{Key: "zeta", Doc: json.RawMessage(`{"n":1}`)},
		{Key: "alpha", Doc: json.RawMessage(`{"n":2}`)},
		{Key: "mid", Doc: json.RawMessage(`{"n":3,"nested":{"b":1,"a":2}}`)},
	}
	require.NoError(t, p.Replace(ctx, TablePersonas, in))

	out, err := p.Load(ctx, TablePersonas)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Key, out[i].Key)
		assert.JSONEq(t, string(in[i].Doc), string(out[i].Doc))
	}
}

func TestJSONFilePersister_MissingAndInvalidFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := NewJSONFilePersister(dir)
	require.NoError(t, err)

	records, err := p.Load(ctx, TableProducts)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, os.WriteFile(p.Path(TableProducts), []byte(`[1,2,3]`), 0644))
	_, err = p.Load(ctx, TableProducts)
	assert.Error(t, err)
}

func TestImportLegacy(t *testing.T) {
	ctx := context.Background()
	legacyDir := t.TempDir()
	products := `{
  "prod_3_1700000000": {"id": "prod_3_1700000000", "name": "lamp", "price": 2.5, "category": "home", "images": [], "seller": "0x1", "createdAt": "2024-01-01T00:00:00", "status": "active"},
  "prod_7_1700000100": {"id": "prod_7_1700000100", "name": "vase", "price": 1, "category": "home", "images": [], "seller": "0x2", "createdAt": "2024-01-02T00:00:00", "status": "active"}
}`
	personas := `{"0xABC": {"wallet_address": "0xABC", "interests": ["art"], "browsing_history": {}, "preferences": {}, "created_at": "2024-01-01T00:00:00", "updated_at": "2024-01-01T00:00:00"}}`
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "products.json"), []byte(products), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "personas.json"), []byte(personas), 0644))

	dst := newTestSQLite(t)
	result, err := ImportLegacy(ctx, dst, legacyDir)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Products: 2, Personas: 1}, result)

	s := newTestProducts(t, dst)
	all := s.All(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "lamp", all[0].Name)
	assert.Equal(t, "vase", all[1].Name)

	next := insertProduct(t, s, "new", "home", "0x3", StatusActive)
	assert.Equal(t, "prod_8_1700000000", next.ID)

	// A second import leaves populated tables alone.
	result, err = ImportLegacy(ctx, dst, legacyDir)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{}, result)
	assert.Equal(t, 3, s.Count())
}

func TestImportLegacy_RejectsMalformedIDs(t *testing.T) {
	legacyDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "products.json"),
		[]byte(`{"abc": {"id": "abc"}}`), 0644))

	dst := newTestSQLite(t)
	_, err := ImportLegacy(context.Background(), dst, legacyDir)
	require.Error(t, err)

	records, err := dst.Load(context.Background(), TableProducts)
	require.NoError(t, err)
	assert.Empty(t, records)
}
