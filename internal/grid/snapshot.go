package grid

import (
	"context"
	"fmt"
	"sort"

	"github.com/rickgao/cellgrid/internal/model"
)

// Source loads all user records. *store.Adapter satisfies it.
type Source interface {
	GetAll(ctx context.Context) (map[string]model.UserRecord, error)
}

// Claim pairs a cell with its owner.
type Claim struct {
	Cell   model.Cell
	UserID string
}

// Snapshot is an immutable view of the grid at load time.
type Snapshot struct {
	records   map[string]model.UserRecord
	owners    map[model.Cell]string
	total     int
	conflicts []model.Cell
}

// Load reads the current state from src.
func Load(ctx context.Context, src Source) (*Snapshot, error) {
	records, err := src.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load grid: %w", err)
	}
	return NewSnapshot(records), nil
}

// NewSnapshot indexes records. The map is not retained.
func NewSnapshot(records map[string]model.UserRecord) *Snapshot {
	s := &Snapshot{
		records: make(map[string]model.UserRecord, len(records)),
		owners:  make(map[model.Cell]string),
	}

	// Sorted so the owner of a doubly-claimed cell is deterministic.
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := records[id].Clone()
		rec.UserID = id
		s.records[id] = rec
		s.total += len(rec.Cells)

		for _, c := range rec.Cells {
			if _, taken := s.owners[c]; taken {
				s.conflicts = append(s.conflicts, c)
				continue
			}
			s.owners[c] = id
		}
	}

	return s
}

// Owner returns the user ID owning c.
func (s *Snapshot) Owner(c model.Cell) (string, bool) {
	id, ok := s.owners[c]
	return id, ok
}

// OwnerName returns the display name of the user owning c.
func (s *Snapshot) OwnerName(c model.Cell) (string, bool) {
	id, ok := s.owners[c]
	if !ok {
		return "", false
	}
	return s.records[id].Username, true
}

// Record returns a copy of a user's record.
func (s *Snapshot) Record(userID string) (model.UserRecord, bool) {
	rec, ok := s.records[userID]
	if !ok {
		return model.UserRecord{}, false
	}
	return rec.Clone(), true
}

// Count returns how many cells userID has claimed.
func (s *Snapshot) Count(userID string) int {
	return len(s.records[userID].Cells)
}

// Total returns the number of claimed cells across all users.
func (s *Snapshot) Total() int {
	return s.total
}

// Users returns the number of known users.
func (s *Snapshot) Users() int {
	return len(s.records)
}

// Conflicts returns cells that appear in more than one user's claims.
// Non-empty only after a lost same-cell race.
func (s *Snapshot) Conflicts() []model.Cell {
	return append([]model.Cell(nil), s.conflicts...)
}

// Claims returns every owned cell, ordered by cell number.
func (s *Snapshot) Claims() []Claim {
	out := make([]Claim, 0, len(s.owners))
	for c, id := range s.owners {
		out = append(out, Claim{Cell: c, UserID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cell.Number() < out[j].Cell.Number()
	})
	return out
}

// WithRecord returns a new snapshot with rec replacing the stored record for rec.UserID.
// The engine uses it to compute post-mutation counts without reloading.
func (s *Snapshot) WithRecord(rec model.UserRecord) *Snapshot {
	records := make(map[string]model.UserRecord, len(s.records)+1)
	for id, r := range s.records {
		records[id] = r
	}
	records[rec.UserID] = rec
	return NewSnapshot(records)
}
