package server

import (
	"context"
	"net/http"

	"github.com/rickgao/cellgrid/internal/connection"
	"github.com/rickgao/cellgrid/internal/reservation"
)

// handleWS upgrades an observer. Any visitor may watch; only a valid
// session may toggle.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if id, err := s.deps.Sessions.FromRequest(r); err == nil {
		userID = id.UserID
	}

	logger := s.logger.With("user_id", userID)
	conn, err := connection.Upgrade(w, r, s.upgrader, s.cfg.Conn, logger)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	observerID, err := s.deps.Hub.Subscribe(conn)
	if err != nil {
		logger.Warn("subscribe observer failed", "error", err)
		conn.Close()
		return
	}
	defer s.deps.Hub.Unsubscribe(observerID)

	logger = logger.With("observer_id", observerID)
	logger.Debug("observer connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.connCtx, cancel)
	defer stop()

	err = conn.ReadLoop(ctx, func(msg connection.Message) {
		switch msg.Event {
		case connection.EventSelectCell:
			s.selectCell(ctx, observerID, userID, msg)
		default:
			logger.Debug("ignoring unknown event", "event", msg.Event)
		}
	})
	if err != nil {
		logger.Debug("observer disconnected", "error", err)
		return
	}
	logger.Debug("observer disconnected")
}

// selectCell runs one toggle and reports failures to the requester only.
func (s *Server) selectCell(ctx context.Context, observerID, userID string, msg connection.Message) {
	if userID == "" {
		s.notify(observerID, reservation.ErrUnauthenticated)
		return
	}

	row, col, err := connection.DecodeSelectCell(msg.Data)
	if err != nil {
		s.notify(observerID, err)
		return
	}

	opCtx, cancel := s.toggleContext(ctx)
	defer cancel()

	if _, err := s.deps.Engine.Toggle(opCtx, userID, row, col); err != nil {
		s.logger.Debug("toggle rejected",
			"observer_id", observerID,
			"user_id", userID,
			"row", row,
			"col", col,
			"error", err,
		)
		s.notify(observerID, err)
	}
}

// toggleContext keeps ctx's values but not its cancellation, so a closing
// connection or server shutdown cannot abort a toggle between its write and
// its broadcast. ToggleTimeout still bounds it.
func (s *Server) toggleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ToggleTimeout)
}

func (s *Server) notify(observerID string, err error) {
	if err := s.deps.Hub.NotifyError(observerID, errorMessage(err)); err != nil {
		s.logger.Debug("notify observer failed", "observer_id", observerID, "error", err)
	}
}
