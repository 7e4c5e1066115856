// Package database opens connections to the authoritative store.
//
// Two engines are supported:
//   - PostgreSQL via a pgx connection pool (production)
//   - SQLite via modernc.org/sqlite, a single local file (small deployments, tests)
//
// Callers own the returned handle and must close it.
package database
