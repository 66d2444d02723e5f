// ABOUTME: One-shot import of products.json and personas.json into another persister
// ABOUTME: Only runs for tables that are empty in the destination

package store

import (
	"context"
	"fmt"
	"log/slog"
)

// ImportResult reports how many records were copied per table.
type ImportResult struct {
	Products int
	Personas int
}

// ImportLegacy copies the JSON files in dir into dst. A table that already
// has records in dst is left alone. Product ids are checked before anything
// is written, so a malformed id aborts the import.
func ImportLegacy(ctx context.Context, dst Persister, dir string) (ImportResult, error) {
	logger := slog.Default().With("component", "store")
	src, err := NewJSONFilePersister(dir)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	for _, tbl := range []string{TableProducts, TablePersonas} {
		existing, err := dst.Load(ctx, tbl)
		if err != nil {
			return result, fmt.Errorf("checking %s: %w", tbl, err)
		}
		if len(existing) > 0 {
			logger.Debug("skipping legacy import, table not empty", "table", tbl, "count", len(existing))
			continue
		}

		records, err := src.Load(ctx, tbl)
		if err != nil {
			return result, fmt.Errorf("reading legacy %s: %w", tbl, err)
		}
		if len(records) == 0 {
			continue
		}

		if tbl == TableProducts {
			keys := make([]string, len(records))
			for i, rec := range records {
				keys[i] = rec.Key
			}
			if _, err := counterFromIDs(keys); err != nil {
				return result, fmt.Errorf("importing %s: %w", tbl, err)
			}
		}

		if err := dst.Replace(ctx, tbl, records); err != nil {
			return result, fmt.Errorf("importing %s: %w", tbl, err)
		}
		logger.Info("imported legacy table", "table", tbl, "count", len(records), "from", src.Path(tbl))

		switch tbl {
		case TableProducts:
			result.Products = len(records)
		case TablePersonas:
			result.Personas = len(records)
		}
	}
	return result, nil
}
