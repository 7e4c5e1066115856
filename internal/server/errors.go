package server

import (
	"errors"

	"github.com/rickgao/cellgrid/internal/connection"
	"github.com/rickgao/cellgrid/internal/reservation"
	"github.com/rickgao/cellgrid/internal/store"
)

// Client-facing error texts.
const (
	MsgNotLoggedIn       = "User not logged in"
	MsgSelectionLimit    = "Selection limit reached"
	MsgCellTaken         = "Cell already taken"
	MsgCellOutOfRange    = "Cell out of range"
	MsgStoreUnavailable  = "Store unavailable"
	MsgInvalidRequest    = "Invalid request"
	MsgInvalidCellNumber = "Invalid cell number"
	MsgLoginFailed       = "Login failed"
	MsgInternal          = "Internal error"
)

// errorMessage maps an operation error to the text sent to the requester.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, reservation.ErrUnauthenticated):
		return MsgNotLoggedIn
	case errors.Is(err, reservation.ErrQuotaExceeded):
		return MsgSelectionLimit
	case errors.Is(err, reservation.ErrCellTaken):
		return MsgCellTaken
	case errors.Is(err, reservation.ErrOutOfRange):
		return MsgCellOutOfRange
	case errors.Is(err, store.ErrStoreUnavailable):
		return MsgStoreUnavailable
	case errors.Is(err, connection.ErrBadMessage):
		return MsgInvalidRequest
	default:
		return MsgInternal
	}
}
