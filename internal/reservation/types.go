package reservation

import (
	"context"
	"errors"

	"github.com/rickgao/cellgrid/internal/broadcast"
	"github.com/rickgao/cellgrid/internal/model"
)

var (
	ErrUnauthenticated = errors.New("user not logged in")
	ErrOutOfRange      = errors.New("cell out of range")
	ErrCellTaken       = errors.New("cell already taken")
	ErrQuotaExceeded   = errors.New("selection limit reached")
)

// Store is the subset of the store adapter the engine needs.
type Store interface {
	GetAll(ctx context.Context) (map[string]model.UserRecord, error)
	Create(ctx context.Context, rec model.UserRecord) (bool, error)
	Upsert(ctx context.Context, rec model.UserRecord) error
}

// Publisher fans events out to observers. *broadcast.Hub satisfies it.
type Publisher interface {
	Publish(ev broadcast.Event) (int, error)
}

// Config holds engine settings.
type Config struct {
	MaxSelections int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{MaxSelections: model.MaxSelections}
}

// Result describes an applied toggle.
type Result struct {
	Applied            bool
	Selected           bool // true for a claim, false for a release
	Cell               model.Cell
	UserSelectedCount  int
	TotalSelectedCount int
}

// View is one user's picture of the grid.
type View struct {
	UserCells          []model.Cell `json:"user_cells"`
	OtherCells         []model.Cell `json:"other_cells"`
	UserSelectedCount  int          `json:"user_selected_count"`
	TotalSelectedCount int          `json:"total_selected_count"`
	MaxSelections      int          `json:"max_selections"`
}
