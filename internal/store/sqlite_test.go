// ABOUTME: Tests for the SQLite persister
// ABOUTME: Covers schema creation, ordering, counters, and swallowed write failures

package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLitePersister_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "showcase.db")

	p, err := NewSQLitePersister(dbPath)
	if err != nil {
		t.Fatalf("NewSQLitePersister failed: %v", err)
	}
	defer p.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLitePersister_Ping(t *testing.T) {
	ctx := context.Background()
	p, err := NewSQLitePersister(filepath.Join(t.TempDir(), "ping.db"))
	require.NoError(t, err)

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Close())
	assert.Error(t, p.Ping(ctx))
}

func TestSQLitePersister_SaveKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	p := newTestSQLite(t)
	noSnapshot := func() ([]Record, error) {
		t.Fatal("sqlite persister should not need a snapshot")
		return nil, nil
	}

	for _, key := range []string{"b", "a", "c"} {
		doc := json.RawMessage(`{"k":"` + key + `"}`)
		require.NoError(t, p.Save(ctx, TableProducts, Change{Key: key, Doc: doc}, noSnapshot))
	}
	require.NoError(t, p.Save(ctx, TableProducts, Change{Key: "b", Doc: json.RawMessage(`{"k":"b2"}`)}, noSnapshot))
	require.NoError(t, p.Save(ctx, TableProducts, Change{Key: "a"}, noSnapshot))

	records, err := p.Load(ctx, TableProducts)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].Key)
	assert.JSONEq(t, `{"k":"b2"}`, string(records[0].Doc))
	assert.Equal(t, "c", records[1].Key)

	other, err := p.Load(ctx, TablePersonas)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLitePersister_Replace(t *testing.T) {
	ctx := context.Background()
	p := newTestSQLite(t)
	require.NoError(t, p.Save(ctx, TablePersonas, Change{Key: "old", Doc: json.RawMessage(`{}`)}, nil))

	err := p.Replace(ctx, TablePersonas, []Record{
		{Key: "x", Doc: json.RawMessage(`{"n":1}`)},
		{Key: "y", Doc: json.RawMessage(`{"n":2}`)},
	})
	require.NoError(t, err)

	records, err := p.Load(ctx, TablePersonas)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x", records[0].Key)
	assert.Equal(t, "y", records[1].Key)
}

func TestSQLitePersister_Counter(t *testing.T) {
	ctx := context.Background()
	p := newTestSQLite(t)

	_, ok, err := p.Counter(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.SetCounter(ctx, "c", 5))
	require.NoError(t, p.SetCounter(ctx, "c", 6))

	v, ok, err := p.Counter(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(6), v)
}

// Write failures must not surface to callers; memory stays authoritative.
func TestProductStore_PersistFailureIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT key, doc FROM records").
		WithArgs(TableProducts).
		WillReturnRows(sqlmock.NewRows([]string{"key", "doc"}))
	mock.ExpectQuery("SELECT value FROM meta").
		WithArgs(productCounterName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectExec("INSERT INTO meta").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec("INSERT INTO records").WillReturnError(errors.New("disk I/O error"))

	p, err := newSQLitePersister(db)
	require.NoError(t, err)

	s := newTestProducts(t, p)
	product := &Product{Name: "a", Price: 1, Seller: "0x1", Status: StatusActive}
	s.Insert(context.Background(), product)

	got, err := s.Get(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductStore_LoadFailureStartsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT key, doc FROM records").WillReturnError(errors.New("database is locked"))
	mock.ExpectQuery("SELECT value FROM meta").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(9)))

	p, err := newSQLitePersister(db)
	require.NoError(t, err)

	s := newTestProducts(t, p)
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, int64(9), s.counter)
	assert.NoError(t, mock.ExpectationsWereMet())
}
