// Package reservation implements the toggle operation on the shared grid.
//
// Every toggle re-reads the full grid from the store, decides against that
// snapshot, persists the requester's record, and only then publishes an
// update_cell event. Failures (not logged in, out of range, cell taken, quota
// reached, store unavailable) are returned to the caller and never published.
//
// There is no process-wide lock. Two users racing for the same unclaimed cell
// can both succeed; the grid snapshot resolves the owner deterministically
// and reports the overlap through Conflicts.
package reservation
