// Package store holds the product and persona tables.
//
// # Architecture
//
// Each table is an ordered in-memory map guarded by its own sync.RWMutex.
// Memory is authoritative: every mutation is applied in memory and then
// written through to a Persister while the table lock is still held, so the
// load/mutate/persist cycle is atomic with respect to other callers of the
// same table. Persistence failures are logged and swallowed.
//
// Two persisters are provided:
//
//   - SQLitePersister: one row per record in an embedded modernc.org/sqlite
//     database, with the product id counter kept in a meta table.
//   - JSONFilePersister: one JSON object per table (products.json,
//     personas.json) rewritten atomically on every mutation. This is the
//     legacy on-disk format.
//
// # Loading
//
// Tables are loaded when a store is constructed. Missing or unparseable
// backing data yields an empty table and an error log. Iteration order is
// insertion order.
//
// Product ids have the form prod_<counter>_<unix-seconds>. When the backend
// has no persisted counter it is rebuilt from the numeric component of the
// loaded ids; a malformed id is a hard error and NewProductStore fails.
//
// # Legacy import
//
// ImportLegacy copies products.json and personas.json into an empty
// persister, which is how a JSON data directory is moved onto SQLite.
package store
