package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/cellgrid/internal/model"
)

// Errors
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUserNotFound     = errors.New("user not found")
	ErrClosed           = errors.New("backend closed")
)

// Backend is a single live connection to a storage engine.
// Implementations must be safe for concurrent use.
type Backend interface {
	// GetAll returns every user record keyed by user ID.
	GetAll(ctx context.Context) (map[string]model.UserRecord, error)

	// Get returns one user record, or ErrUserNotFound.
	Get(ctx context.Context, userID string) (model.UserRecord, error)

	// Create inserts rec if no record exists for rec.UserID.
	// It reports whether a record was created; an existing record is left untouched.
	Create(ctx context.Context, rec model.UserRecord) (bool, error)

	// Upsert writes rec's claimed cells atomically for rec.UserID.
	// The display name is written only when the record is new.
	Upsert(ctx context.Context, rec model.UserRecord) error

	// Ping is a lightweight liveness probe.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Dialer opens a new Backend. The health monitor calls it to (re)connect.
type Dialer func(ctx context.Context) (Backend, error)

// encodeCells serializes claimed cells in the persisted [[row, col], ...] shape.
func encodeCells(cells []model.Cell) (string, error) {
	if cells == nil {
		cells = []model.Cell{}
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("encode cells: %w", err)
	}
	return string(data), nil
}

// decodeCells parses the persisted [[row, col], ...] shape.
func decodeCells(data []byte) ([]model.Cell, error) {
	cells := []model.Cell{}
	if len(data) == 0 {
		return cells, nil
	}
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	return cells, nil
}
