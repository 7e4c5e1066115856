package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/cellgrid/internal/reservation"
	"github.com/rickgao/cellgrid/internal/session"
	"github.com/rickgao/cellgrid/internal/store"
	"github.com/rickgao/cellgrid/internal/version"
)

type errorResponse struct {
	Error string `json:"error"`
}

type ownerResponse struct {
	Owner *string `json:"owner"`
}

type gridResponse struct {
	User *userInfo `json:"user"`
	reservation.View
}

type userInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := s.deps.Sessions.NewState(w)
	http.Redirect(w, r, s.deps.Identity.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.deps.Sessions.CheckState(w, r, q.Get("state")); err != nil {
		s.logger.Warn("login callback rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgLoginFailed})
		return
	}

	prof, err := s.deps.Identity.Authenticate(r.Context(), q.Get("code"))
	if err != nil {
		s.logger.Warn("identity exchange failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: MsgLoginFailed})
		return
	}

	if _, err := s.deps.Engine.Register(r.Context(), prof.ID, prof.Username); err != nil {
		s.logger.Error("register user failed", "user_id", prof.ID, "error", err)
		writeJSON(w, statusFor(err), errorResponse{Error: errorMessage(err)})
		return
	}

	if err := s.deps.Sessions.SetCookie(w, session.Identity{UserID: prof.ID, Username: prof.Username}); err != nil {
		s.logger.Error("issue session failed", "user_id", prof.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: MsgInternal})
		return
	}

	s.logger.Info("user logged in", "user_id", prof.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	resp := gridResponse{}
	userID := ""
	if id, err := s.deps.Sessions.FromRequest(r); err == nil {
		userID = id.UserID
		resp.User = &userInfo{ID: id.UserID, Username: id.Username}
	}

	view, err := s.deps.Engine.View(r.Context(), userID)
	if err != nil {
		s.logger.Warn("load grid failed", "error", err)
		writeJSON(w, statusFor(err), errorResponse{Error: errorMessage(err)})
		return
	}
	resp.View = view

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchOwner(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("cell_number")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgInvalidCellNumber})
		return
	}

	name, found, err := s.deps.Engine.FindOwner(r.Context(), n)
	if err != nil {
		if errors.Is(err, reservation.ErrOutOfRange) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgInvalidCellNumber})
			return
		}
		s.logger.Warn("owner lookup failed", "cell_number", n, "error", err)
		writeJSON(w, statusFor(err), errorResponse{Error: errorMessage(err)})
		return
	}

	resp := ownerResponse{}
	if found {
		resp.Owner = &name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status     string         `json:"status"`
		Version    version.Info   `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Get(),
		Components: make(map[string]any),
	}

	// Check store
	if s.deps.Health != nil {
		st := s.deps.Health.Status()
		storeStatus := map[string]any{
			"connected":         st.Connected,
			"consecutive_fails": st.ConsecutiveFails,
			"reconnects":        st.Reconnects,
		}
		if !st.LastHealthy.IsZero() {
			storeStatus["last_healthy"] = st.LastHealthy.UTC().Format(time.RFC3339)
		}
		if st.LastError != "" {
			storeStatus["error"] = st.LastError
		}
		if !st.Connected {
			health.Status = "unhealthy"
		}
		health.Components["store"] = storeStatus
	}

	// Check observers
	if s.deps.Hub != nil {
		stats := s.deps.Hub.Stats()
		health.Components["broadcast"] = map[string]any{
			"observers": stats.Observers,
			"published": stats.Published,
			"dropped":   stats.Dropped,
		}
	}

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, reservation.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, reservation.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
