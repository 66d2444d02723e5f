// ABOUTME: SQLite persister using modernc.org/sqlite
// ABOUTME: Stores one row per record plus named counters, with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLitePersister implements Persister on an embedded SQLite database.
type SQLitePersister struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLitePersister opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers from both tables
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	p, err := newSQLitePersister(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.logger.Info("SQLite persister initialized", "path", path)
	return p, nil
}

// newSQLitePersister wraps an open database and creates the schema.
func newSQLitePersister(db *sql.DB) (*SQLitePersister, error) {
	p := &SQLitePersister{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
	if err := p.createSchema(); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			tbl        TEXT NOT NULL,
			key        TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			doc        TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tbl, key)
		);

		CREATE INDEX IF NOT EXISTS idx_records_tbl_seq ON records(tbl, seq);

		CREATE TABLE IF NOT EXISTS meta (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Load returns the records of table in insertion order.
func (p *SQLitePersister) Load(ctx context.Context, table string) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key, doc FROM records WHERE tbl = ? ORDER BY seq`, table)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		records = append(records, Record{Key: key, Doc: []byte(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", table, err)
	}
	return records, nil
}

// Save applies a single change. An update keeps the record's original
// position; a new key is appended after the last one.
func (p *SQLitePersister) Save(ctx context.Context, table string, change Change, _ func() ([]Record, error)) error {
	if change.Doc == nil {
		_, err := p.db.ExecContext(ctx,
			`DELETE FROM records WHERE tbl = ? AND key = ?`, table, change.Key)
		if err != nil {
			return fmt.Errorf("deleting %s/%s: %w", table, change.Key, err)
		}
		return nil
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO records (tbl, key, seq, doc, updated_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records WHERE tbl = ?), ?, ?)
		ON CONFLICT(tbl, key) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, table, change.Key, table, string(change.Doc), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", table, change.Key, err)
	}
	return nil
}

// Replace rewrites table in a single transaction.
func (p *SQLitePersister) Replace(ctx context.Context, table string, records []Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE tbl = ?`, table); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (tbl, key, seq, doc, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, table, rec.Key, i+1, string(rec.Doc), now); err != nil {
			return fmt.Errorf("inserting %s/%s: %w", table, rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", table, err)
	}
	return nil
}

// Counter reads a named counter.
func (p *SQLitePersister) Counter(ctx context.Context, name string) (int64, bool, error) {
	var value int64
	err := p.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading counter %s: %w", name, err)
	}
	return value, true, nil
}

// SetCounter stores a named counter.
func (p *SQLitePersister) SetCounter(ctx context.Context, name string, value int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO meta (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("writing counter %s: %w", name, err)
	}
	return nil
}

// Ping checks that the database is usable.
func (p *SQLitePersister) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
