// ABOUTME: JSON-file persister writing one object per table (products.json, personas.json)
// ABOUTME: Rewrites the whole file through an atomic rename on every mutation

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"
	"github.com/tidwall/gjson"
)

// JSONFilePersister stores each table as a JSON object mapping key to
// record, in insertion order, under dir/<table>.json.
//
// It has no counter storage; product ids are rebuilt from the keys.
type JSONFilePersister struct {
	dir    string
	logger *slog.Logger
}

// NewJSONFilePersister creates the data directory if needed.
func NewJSONFilePersister(dir string) (*JSONFilePersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &JSONFilePersister{
		dir:    dir,
		logger: slog.Default().With("component", "store"),
	}, nil
}

// Ping checks that the data directory still exists.
func (p *JSONFilePersister) Ping(context.Context) error {
	info, err := os.Stat(p.dir)
	if err != nil {
		return fmt.Errorf("checking data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", p.dir)
	}
	return nil
}

// Path returns the file backing table.
func (p *JSONFilePersister) Path(table string) string {
	return filepath.Join(p.dir, table+".json")
}

// Load reads the table file. A missing file is an empty table.
func (p *JSONFilePersister) Load(_ context.Context, table string) ([]Record, error) {
	data, err := os.ReadFile(p.Path(table))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	return decodeTable(data)
}

// decodeTable parses a JSON object into records, keeping document order.
func decodeTable(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("expected a JSON object, got %s", root.Type)
	}

	var records []Record
	root.ForEach(func(key, value gjson.Result) bool {
		records = append(records, Record{Key: key.String(), Doc: json.RawMessage(value.Raw)})
		return true
	})
	return records, nil
}

// Save rewrites the whole table from snapshot.
func (p *JSONFilePersister) Save(ctx context.Context, table string, _ Change, snapshot func() ([]Record, error)) error {
	records, err := snapshot()
	if err != nil {
		return err
	}
	return p.Replace(ctx, table, records)
}

// Replace writes records to the table file. Readers see either the old or
// the new file, never a partial one.
func (p *JSONFilePersister) Replace(_ context.Context, table string, records []Record) error {
	data, err := encodeTable(records)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", table, err)
	}

	f, err := atomicfile.New(p.Path(table), 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", table, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("writing %s: %w", table, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("committing %s: %w", table, err)
	}
	return nil
}

// encodeTable renders records as an indented JSON object in record order.
func encodeTable(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, rec := range records {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(rec.Key)
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		if err := json.Indent(&buf, rec.Doc, "  ", "  "); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.Key, err)
		}
	}
	if len(records) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Counter always reports no stored counter.
func (p *JSONFilePersister) Counter(context.Context, string) (int64, bool, error) {
	return 0, false, nil
}

// SetCounter is a no-op; the counter is derived from the keys on load.
func (p *JSONFilePersister) SetCounter(context.Context, string, int64) error {
	return nil
}

// Close is a no-op.
func (p *JSONFilePersister) Close() error {
	return nil
}
