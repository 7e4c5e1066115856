// Package store implements the authoritative store for user records.
//
// A Backend is one live connection to a storage engine (PostgreSQL, SQLite or
// memory). The Adapter owns the current Backend behind an atomic pointer and
// exposes GetAll, Get, Create and Upsert to the rest of the service. When no
// Backend is live, or a Backend call fails, the Adapter returns an error
// wrapping ErrStoreUnavailable instead of blocking.
//
// Only the health monitor replaces the Backend (Adapter.Reconnect). Request
// handlers never dial.
//
// Conflicting writes to the same user are serialized by the engine's per-key
// atomic upsert; this package adds no locking of its own.
package store
