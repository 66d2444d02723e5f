// ABOUTME: Product table with id allocation, filtering, and pagination
// ABOUTME: Ids are prod_<counter>_<unix-seconds>; the counter is guarded by the table lock

package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	productIDPrefix    = "prod"
	productCounterName = "product_counter"
)

// ProductStore holds products in insertion order.
type ProductStore struct {
	table   *table[Product]
	counter int64
	now     func() time.Time
	logger  *slog.Logger
}

// NewProductStore loads the product table from p.
// It fails only when the id counter has to be rebuilt from the loaded ids
// and one of them does not have the prod_<n>_<ts> shape.
func NewProductStore(ctx context.Context, p Persister) (*ProductStore, error) {
	logger := slog.Default().With("component", "store", "table", TableProducts)

	s := &ProductStore{
		table:  newTable[Product](TableProducts, p, logger),
		now:    time.Now,
		logger: logger,
	}
	s.table.load(ctx)

	counter, ok, err := p.Counter(ctx, productCounterName)
	if err != nil {
		logger.Error("reading product counter, rebuilding from ids", "error", err)
		ok = false
	}
	if !ok {
		counter, err = counterFromIDs(s.table.keysLocked())
		if err != nil {
			return nil, fmt.Errorf("reconstructing product counter: %w", err)
		}
		if counter > 0 {
			if err := p.SetCounter(ctx, productCounterName, counter); err != nil {
				logger.Error("persisting rebuilt product counter", "error", err)
			}
		}
	}
	s.counter = counter

	logger.Debug("product store ready", "count", s.table.count(), "counter", counter)
	return s, nil
}

// ParseProductID splits a product id into its counter and timestamp parts.
func ParseProductID(id string) (counter, unix int64, err error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != productIDPrefix {
		return 0, 0, fmt.Errorf("malformed product id %q", id)
	}
	counter, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || counter < 0 {
		return 0, 0, fmt.Errorf("malformed product id %q: bad counter", id)
	}
	unix, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed product id %q: bad timestamp", id)
	}
	return counter, unix, nil
}

func counterFromIDs(ids []string) (int64, error) {
	var highest int64
	for _, id := range ids {
		n, _, err := ParseProductID(id)
		if err != nil {
			return 0, err
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

// Insert assigns p a fresh id, stores it, and persists the table.
// Any id already set on p is overwritten.
func (s *ProductStore) Insert(ctx context.Context, p *Product) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	s.counter++
	p.ID = fmt.Sprintf("%s_%d_%d", productIDPrefix, s.counter, s.now().Unix())
	if err := s.table.persister.SetCounter(ctx, productCounterName, s.counter); err != nil {
		s.logger.Error("persisting product counter", "counter", s.counter, "error", err)
	}

	s.table.putLocked(ctx, p.ID, *p)
	s.logger.Info("product inserted", "id", p.ID, "status", p.Status)
}

// Get returns a copy of the product with the given id.
func (s *ProductStore) Get(ctx context.Context, id string) (*Product, error) {
	s.table.mu.RLock()
	defer s.table.mu.RUnlock()

	p, ok := s.table.getLocked(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// Update applies fn to the stored product and persists the result.
// The id cannot be changed by fn.
func (s *ProductStore) Update(ctx context.Context, id string, fn func(*Product)) (*Product, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	p, ok := s.table.getLocked(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	fn(p)
	p.ID = id
	s.table.putLocked(ctx, id, *p)

	out := *p
	return &out, nil
}

// Delete removes a product.
func (s *ProductStore) Delete(ctx context.Context, id string) error {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	if !s.table.deleteLocked(ctx, id) {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	s.logger.Info("product deleted", "id", id)
	return nil
}

// DeleteWhere removes every product for which match returns true and
// returns the ids removed, in insertion order.
func (s *ProductStore) DeleteWhere(ctx context.Context, match func(*Product) bool) []string {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	var removed []string
	for _, id := range s.table.keysLocked() {
		p, _ := s.table.getLocked(id)
		if match(p) {
			s.table.deleteLocked(ctx, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// List returns the page [offset, offset+limit) of the products matching
// filter, in insertion order, and the total number of matches.
func (s *ProductStore) List(ctx context.Context, filter ProductFilter, limit, offset int) ([]*Product, int) {
	limit, offset = PageBounds(limit, offset)

	page := []*Product{}
	total := 0
	s.table.each(func(_ string, p *Product) {
		if !filter.Matches(p) {
			return
		}
		if total >= offset && len(page) < limit {
			page = append(page, p)
		}
		total++
	})
	return page, total
}

// All returns every product in insertion order.
func (s *ProductStore) All(ctx context.Context) []*Product {
	var all []*Product
	s.table.each(func(_ string, p *Product) {
		all = append(all, p)
	})
	return all
}

// Count returns the number of stored products.
func (s *ProductStore) Count() int {
	return s.table.count()
}

// Flush rewrites the whole table to the persister.
func (s *ProductStore) Flush(ctx context.Context) error {
	return s.table.flush(ctx)
}
