// Package grid provides the per-operation view of grid ownership.
//
// A Snapshot is loaded from the authoritative store at the start of an
// operation and discarded at the end. It indexes cell ownership and claim
// counts so one operation never needs a second store round-trip. Snapshots are
// never cached across operations.
package grid
