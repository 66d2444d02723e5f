// ABOUTME: Generic insertion-ordered table with write-through persistence
// ABOUTME: Shared by the product and persona stores; callers hold mu around mutations

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

type table[T any] struct {
	name      string
	persister Persister
	logger    *slog.Logger

	mu    sync.RWMutex
	order []string
	rows  map[string]T
}

func newTable[T any](name string, p Persister, logger *slog.Logger) *table[T] {
	return &table[T]{
		name:      name,
		persister: p,
		logger:    logger,
		rows:      make(map[string]T),
	}
}

// load replaces the table contents from the persister. Backing data that
// cannot be read leaves the table empty; rows that cannot be decoded are
// skipped. Both are logged, neither is returned.
func (t *table[T]) load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.order = nil
	t.rows = make(map[string]T)

	records, err := t.persister.Load(ctx, t.name)
	if err != nil {
		t.logger.Error("loading table, starting empty", "table", t.name, "error", err)
		return
	}

	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Doc, &v); err != nil {
			t.logger.Error("skipping unreadable record", "table", t.name, "key", rec.Key, "error", err)
			continue
		}
		if _, dup := t.rows[rec.Key]; !dup {
			t.order = append(t.order, rec.Key)
		}
		t.rows[rec.Key] = v
	}
	t.logger.Info("table loaded", "table", t.name, "count", len(t.order))
}

// getLocked returns a copy of the row. Caller holds mu.
func (t *table[T]) getLocked(key string) (*T, bool) {
	v, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	return &v, true
}

// putLocked inserts or replaces a row and persists it. Caller holds mu for writing.
func (t *table[T]) putLocked(ctx context.Context, key string, v T) {
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, key)
	}
	t.rows[key] = v
	t.persistLocked(ctx, key)
}

// deleteLocked removes a row and persists the removal. Caller holds mu for writing.
func (t *table[T]) deleteLocked(ctx context.Context, key string) bool {
	if _, ok := t.rows[key]; !ok {
		return false
	}
	delete(t.rows, key)
	if i := slices.Index(t.order, key); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	t.persistLocked(ctx, key)
	return true
}

// persistLocked writes the current state of key through to the persister.
// Failures are logged; memory stays authoritative.
func (t *table[T]) persistLocked(ctx context.Context, key string) {
	change := Change{Key: key}
	if v, ok := t.rows[key]; ok {
		doc, err := json.Marshal(v)
		if err != nil {
			t.logger.Error("encoding record", "table", t.name, "key", key, "error", err)
			return
		}
		change.Doc = doc
	}

	if err := t.persister.Save(ctx, t.name, change, t.snapshotLocked); err != nil {
		t.logger.Error("persisting record", "table", t.name, "key", key, "error", err)
	}
}

// snapshotLocked encodes every row in insertion order. Caller holds mu.
func (t *table[T]) snapshotLocked() ([]Record, error) {
	records := make([]Record, 0, len(t.order))
	for _, key := range t.order {
		doc, err := json.Marshal(t.rows[key])
		if err != nil {
			return nil, fmt.Errorf("encoding %s/%s: %w", t.name, key, err)
		}
		records = append(records, Record{Key: key, Doc: doc})
	}
	return records, nil
}

// each calls fn for every row in insertion order while holding the read lock.
// fn must not call back into the table.
func (t *table[T]) each(fn func(key string, v *T)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, key := range t.order {
		v := t.rows[key]
		fn(key, &v)
	}
}

func (t *table[T]) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *table[T]) keysLocked() []string {
	return slices.Clone(t.order)
}

// flush rewrites the whole table to the persister.
func (t *table[T]) flush(ctx context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records, err := t.snapshotLocked()
	if err != nil {
		return err
	}
	if err := t.persister.Replace(ctx, t.name, records); err != nil {
		return fmt.Errorf("flushing %s: %w", t.name, err)
	}
	return nil
}
