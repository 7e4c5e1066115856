package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/cellgrid/internal/broadcast"
	"github.com/rickgao/cellgrid/internal/grid"
	"github.com/rickgao/cellgrid/internal/model"
)

// Engine enforces ownership uniqueness and the per-user quota.
type Engine struct {
	cfg    Config
	store  Store
	pub    Publisher
	logger *slog.Logger

	// Toggles by one user are serialized from load through publish, since
	// Upsert replaces the user's whole cell list.
	locks userLocks
}

// NewEngine creates an engine. pub may be nil, in which case nothing is published.
func NewEngine(cfg Config, store Store, pub Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSelections <= 0 {
		cfg.MaxSelections = model.MaxSelections
	}

	return &Engine{
		cfg:    cfg,
		store:  store,
		pub:    pub,
		logger: logger,
		locks:  userLocks{held: make(map[string]*userLock)},
	}
}

// MaxSelections returns the per-user quota.
func (e *Engine) MaxSelections() int {
	return e.cfg.MaxSelections
}

// Toggle claims (row, col) for userID, or releases it if userID already owns it.
func (e *Engine) Toggle(ctx context.Context, userID string, row, col int) (Result, error) {
	if userID == "" {
		return Result{}, ErrUnauthenticated
	}
	cell := model.Cell{Row: row, Col: col}
	if err := cell.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	snap, err := grid.Load(ctx, e.store)
	if err != nil {
		return Result{}, err
	}

	rec, ok := snap.Record(userID)
	if !ok {
		return Result{}, ErrUnauthenticated
	}

	var (
		updated  model.UserRecord
		selected bool
	)
	switch {
	case rec.Has(cell):
		updated = rec.WithoutCell(cell)
	case e.takenByOther(snap, cell, userID):
		return Result{}, fmt.Errorf("%w: %s", ErrCellTaken, cell)
	case rec.Count() < e.cfg.MaxSelections:
		updated = rec.WithCell(cell)
		selected = true
	default:
		return Result{}, ErrQuotaExceeded
	}

	if err := e.store.Upsert(ctx, updated); err != nil {
		return Result{}, err
	}

	after := snap.WithRecord(updated)
	res := Result{
		Applied:            true,
		Selected:           selected,
		Cell:               cell,
		UserSelectedCount:  after.Count(userID),
		TotalSelectedCount: after.Total(),
	}

	e.logger.Debug("cell toggled",
		"user_id", userID,
		"cell", cell.String(),
		"selected", selected,
		"user_selected_count", res.UserSelectedCount,
		"total_selected_count", res.TotalSelectedCount,
	)

	if conflicts := after.Conflicts(); len(conflicts) > 0 {
		e.logger.Warn("cells claimed by more than one user", "cells", len(conflicts))
	}

	e.publish(res, userID)
	return res, nil
}

// Register creates an empty record for userID on first sight.
// An existing record, including its username, is left untouched.
func (e *Engine) Register(ctx context.Context, userID, username string) (bool, error) {
	if userID == "" {
		return false, ErrUnauthenticated
	}

	created, err := e.store.Create(ctx, model.NewUserRecord(userID, username))
	if err != nil {
		return false, err
	}
	if created {
		e.logger.Info("user registered", "user_id", userID, "username", username)
	}
	return created, nil
}

// FindOwner returns the display name of whoever owns the 1-based cell number.
func (e *Engine) FindOwner(ctx context.Context, cellNumber int) (string, bool, error) {
	cell, err := model.CellFromNumber(cellNumber)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}

	snap, err := grid.Load(ctx, e.store)
	if err != nil {
		return "", false, err
	}

	name, ok := snap.OwnerName(cell)
	return name, ok, nil
}

// View returns the grid as seen by userID. An empty userID yields an anonymous view.
func (e *Engine) View(ctx context.Context, userID string) (View, error) {
	snap, err := grid.Load(ctx, e.store)
	if err != nil {
		return View{}, err
	}

	v := View{
		UserCells:          []model.Cell{},
		OtherCells:         []model.Cell{},
		TotalSelectedCount: snap.Total(),
		MaxSelections:      e.cfg.MaxSelections,
	}
	for _, claim := range snap.Claims() {
		if userID != "" && claim.UserID == userID {
			v.UserCells = append(v.UserCells, claim.Cell)
		} else {
			v.OtherCells = append(v.OtherCells, claim.Cell)
		}
	}
	if userID != "" {
		v.UserSelectedCount = snap.Count(userID)
	}
	return v, nil
}

func (e *Engine) takenByOther(snap *grid.Snapshot, cell model.Cell, userID string) bool {
	owner, ok := snap.Owner(cell)
	return ok && owner != userID
}

func (e *Engine) publish(res Result, userID string) {
	if e.pub == nil {
		return
	}

	n, err := e.pub.Publish(broadcast.UpdateCell(broadcast.CellUpdate{
		Row:                res.Cell.Row,
		Col:                res.Cell.Col,
		Selected:           res.Selected,
		UserID:             userID,
		UserSelectedCount:  res.UserSelectedCount,
		TotalSelectedCount: res.TotalSelectedCount,
	}))
	if err != nil {
		// Already persisted; observers catch up on their next grid load.
		e.logger.Warn("publish update failed", "user_id", userID, "error", err)
		return
	}
	e.logger.Debug("update published", "observers", n)
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// userLocks is a keyed mutex. Entries are dropped once nobody holds or waits on them.
type userLocks struct {
	mu   sync.Mutex
	held map[string]*userLock
}

func (l *userLocks) lock(key string) func() {
	l.mu.Lock()
	ul, ok := l.held[key]
	if !ok {
		ul = &userLock{}
		l.held[key] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
