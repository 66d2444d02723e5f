// ABOUTME: Persona table keyed by wallet address
// ABOUTME: Enforces one persona per wallet and immutable created_at

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/showcase-backend/internal/apperr"
)

// PersonaStore holds personas in insertion order.
type PersonaStore struct {
	table  *table[Persona]
	now    func() time.Time
	logger *slog.Logger
}

// NewPersonaStore loads the persona table from p.
func NewPersonaStore(ctx context.Context, p Persister) *PersonaStore {
	logger := slog.Default().With("component", "store", "table", TablePersonas)

	s := &PersonaStore{
		table:  newTable[Persona](TablePersonas, p, logger),
		now:    time.Now,
		logger: logger,
	}
	s.table.load(ctx)
	return s
}

// Create stores a new persona. Both timestamps are set to the current time;
// values supplied by the caller are ignored.
func (s *PersonaStore) Create(ctx context.Context, p *Persona) error {
	if p.WalletAddress == "" {
		return apperr.Newf(apperr.KindValidation, "create persona", "wallet_address is required")
	}

	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	if _, exists := s.table.getLocked(p.WalletAddress); exists {
		return fmt.Errorf("persona %s: %w", p.WalletAddress, ErrAlreadyExists)
	}

	now := timestamp(s.now())
	p.CreatedAt = now
	p.UpdatedAt = now
	normalizePersona(p)

	s.table.putLocked(ctx, p.WalletAddress, *p)
	s.logger.Info("persona created", "wallet", p.WalletAddress)
	return nil
}

// Update replaces the persona's profile data. created_at is kept and
// updated_at is set to the current time.
func (s *PersonaStore) Update(ctx context.Context, wallet string, p *Persona) (*Persona, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	existing, ok := s.table.getLocked(wallet)
	if !ok {
		return nil, fmt.Errorf("persona %s: %w", wallet, ErrNotFound)
	}

	updated := *p
	updated.WalletAddress = wallet
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = timestamp(s.now())
	normalizePersona(&updated)

	s.table.putLocked(ctx, wallet, updated)
	s.logger.Info("persona updated", "wallet", wallet)
	return &updated, nil
}

// Get returns a copy of the persona for wallet.
func (s *PersonaStore) Get(ctx context.Context, wallet string) (*Persona, error) {
	s.table.mu.RLock()
	defer s.table.mu.RUnlock()

	p, ok := s.table.getLocked(wallet)
	if !ok {
		return nil, fmt.Errorf("persona %s: %w", wallet, ErrNotFound)
	}
	return p, nil
}

// Delete removes the persona for wallet.
func (s *PersonaStore) Delete(ctx context.Context, wallet string) error {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	if !s.table.deleteLocked(ctx, wallet) {
		return fmt.Errorf("persona %s: %w", wallet, ErrNotFound)
	}
	s.logger.Info("persona deleted", "wallet", wallet)
	return nil
}

// List returns the page [offset, offset+limit) of personas in insertion
// order and the total count.
func (s *PersonaStore) List(ctx context.Context, limit, offset int) ([]*Persona, int) {
	limit, offset = PageBounds(limit, offset)

	page := []*Persona{}
	total := 0
	s.table.each(func(_ string, p *Persona) {
		if total >= offset && len(page) < limit {
			page = append(page, p)
		}
		total++
	})
	return page, total
}

// Count returns the number of stored personas.
func (s *PersonaStore) Count() int {
	return s.table.count()
}

// Flush rewrites the whole table to the persister.
func (s *PersonaStore) Flush(ctx context.Context) error {
	return s.table.flush(ctx)
}

var emptyObject = json.RawMessage(`{}`)

// normalizePersona fills the structures every persona carries.
// Demographics stays absent when not given.
func normalizePersona(p *Persona) {
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if len(p.BrowsingHistory) == 0 {
		p.BrowsingHistory = emptyObject
	}
	if len(p.Preferences) == 0 {
		p.Preferences = emptyObject
	}
}
