package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Grid dimensions and limits.
const (
	Rows          = 100
	Cols          = 100
	CellCount     = Rows * Cols
	MaxSelections = 10
)

// ErrInvalidCell is returned for coordinates or cell numbers outside the grid.
var ErrInvalidCell = errors.New("cell out of range")

// -----------------------------------------------------------------------------
// Cells
// -----------------------------------------------------------------------------

// Cell is one addressable unit of the grid.
// It serializes as a two-element JSON array: [row, col].
type Cell struct {
	Row int
	Col int
}

// CellFromNumber converts a 1-based cell number into its (row, col) pair.
func CellFromNumber(n int) (Cell, error) {
	if n < 1 || n > CellCount {
		return Cell{}, fmt.Errorf("%w: cell number %d", ErrInvalidCell, n)
	}
	return Cell{Row: (n - 1) / Cols, Col: (n - 1) % Cols}, nil
}

// Number returns the 1-based cell number.
func (c Cell) Number() int {
	return c.Row*Cols + c.Col + 1
}

// InBounds reports whether the cell lies on the grid.
func (c Cell) InBounds() bool {
	return c.Row >= 0 && c.Row < Rows && c.Col >= 0 && c.Col < Cols
}

// Validate returns ErrInvalidCell if the cell is off the grid.
func (c Cell) Validate() error {
	if !c.InBounds() {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidCell, c.Row, c.Col)
	}
	return nil
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d, %d)", c.Row, c.Col)
}

// MarshalJSON encodes the cell as [row, col].
func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.Row, c.Col})
}

// UnmarshalJSON decodes a [row, col] pair.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode cell: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode cell: want [row, col], got %d elements", len(pair))
	}
	c.Row, c.Col = pair[0], pair[1]
	return nil
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// UserRecord is the persisted state of one authenticated user.
type UserRecord struct {
	UserID   string `json:"-"`
	Username string `json:"username"` // Display name, set once at first sight
	Cells    []Cell `json:"cells"`    // Claimed cells, a set of at most MaxSelections
}

// NewUserRecord returns a record with no claimed cells.
func NewUserRecord(userID, username string) UserRecord {
	return UserRecord{
		UserID:   userID,
		Username: username,
		Cells:    []Cell{},
	}
}

// Has reports whether the user owns the cell.
func (u UserRecord) Has(c Cell) bool {
	return slices.Contains(u.Cells, c)
}

// Count returns the number of claimed cells.
func (u UserRecord) Count() int {
	return len(u.Cells)
}

// Clone returns a deep copy, so callers can mutate Cells freely.
func (u UserRecord) Clone() UserRecord {
	out := u
	out.Cells = slices.Clone(u.Cells)
	if out.Cells == nil {
		out.Cells = []Cell{}
	}
	return out
}

// WithCell returns a copy with c appended. The receiver is unchanged.
func (u UserRecord) WithCell(c Cell) UserRecord {
	out := u.Clone()
	if !out.Has(c) {
		out.Cells = append(out.Cells, c)
	}
	return out
}

// WithoutCell returns a copy with c removed. The receiver is unchanged.
func (u UserRecord) WithoutCell(c Cell) UserRecord {
	out := u.Clone()
	out.Cells = slices.DeleteFunc(out.Cells, func(x Cell) bool { return x == c })
	return out
}
