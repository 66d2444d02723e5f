// ABOUTME: Record types, errors, and the persistence interface for the stores
// ABOUTME: Defines Product, Persona, ProductFilter and the Persister contract

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/2389/showcase-backend/internal/apperr"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = apperr.New(apperr.KindNotFound, "", errors.New("not found"))

// ErrAlreadyExists is returned when creating a persona whose wallet is taken
var ErrAlreadyExists = apperr.New(apperr.KindAlreadyExists, "", errors.New("already exists"))

// Table names used by the persisters.
const (
	TableProducts = "products"
	TablePersonas = "personas"
)

// Product status values set by the server. Callers may store others.
const (
	StatusActive            = "active"
	StatusPendingBlockchain = "pending_blockchain"
)

// DefaultLimit is the page size used when a caller passes limit <= 0.
const DefaultLimit = 50

// Product is a marketplace listing. Optional fields may be absent on
// records written before they existed.
type Product struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Category     string   `json:"category"`
	Images       []string `json:"images"`
	Seller       string   `json:"seller"`
	CreatedAt    string   `json:"createdAt"`
	Status       string   `json:"status"`
	BlockchainID string   `json:"blockchain_id,omitempty"`
	MetadataFID  string   `json:"metadata_fid,omitempty"`
	Deliverer    string   `json:"deliverer,omitempty"`
	Commission   *int     `json:"commission,omitempty"`
}

// Persona is a preference profile keyed by wallet address.
type Persona struct {
	WalletAddress   string          `json:"wallet_address"`
	Interests       []string        `json:"interests"`
	BrowsingHistory json.RawMessage `json:"browsing_history,omitempty"`
	Preferences     json.RawMessage `json:"preferences,omitempty"`
	Demographics    json.RawMessage `json:"demographics,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// ProductFilter selects products by equality. Empty fields match anything.
type ProductFilter struct {
	Category string
	Seller   string
	Status   string
}

// Matches reports whether p passes every non-empty filter field.
func (f ProductFilter) Matches(p *Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Seller != "" && p.Seller != f.Seller {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

// PageBounds normalizes pagination input: limit <= 0 becomes DefaultLimit
// and a negative offset becomes 0.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Record is one persisted row: a table key and its JSON document.
type Record struct {
	Key string
	Doc json.RawMessage
}

// Change describes a single mutation. A nil Doc means the key was deleted.
type Change struct {
	Key string
	Doc json.RawMessage
}

// Persister mirrors tables to durable storage.
//
// Save is called with the table lock held after every mutation. Backends
// that store records individually apply the change; backends that rewrite
// whole files call snapshot, which returns every record in insertion order.
type Persister interface {
	Load(ctx context.Context, table string) ([]Record, error)
	Save(ctx context.Context, table string, change Change, snapshot func() ([]Record, error)) error
	// Replace overwrites a whole table. Used for shutdown flushes and imports.
	Replace(ctx context.Context, table string, records []Record) error
	// Counter returns a persisted counter and whether one was stored.
	Counter(ctx context.Context, name string) (int64, bool, error)
	SetCounter(ctx context.Context, name string, value int64) error
	// Ping reports whether the backing storage is usable.
	Ping(ctx context.Context) error
	Close() error
}

// timestamp formats t the way records store it.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
