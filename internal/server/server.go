package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/cellgrid/internal/broadcast"
	"github.com/rickgao/cellgrid/internal/connection"
	"github.com/rickgao/cellgrid/internal/health"
	"github.com/rickgao/cellgrid/internal/identity"
	"github.com/rickgao/cellgrid/internal/reservation"
	"github.com/rickgao/cellgrid/internal/session"
)

// IdentityProvider runs the OAuth login. *identity.Provider satisfies it.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Authenticate(ctx context.Context, code string) (identity.Profile, error)
}

// StatusReporter reports store connection health. *health.Monitor satisfies it.
type StatusReporter interface {
	Status() health.Status
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	ToggleTimeout   time.Duration // bounds one select_cell, independent of its connection
	Conn            connection.Config
}

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	Engine   *reservation.Engine
	Hub      *broadcast.Hub
	Sessions *session.Manager
	Identity IdentityProvider
	Health   StatusReporter
}

// Server is the HTTP front of the grid.
type Server struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	upgrader *websocket.Upgrader
	handler  http.Handler

	// Cancelled on shutdown; hijacked websocket connections derive from it.
	connCtx    context.Context
	cancelConn context.CancelFunc
}

// New creates a server.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ToggleTimeout <= 0 {
		cfg.ToggleTimeout = 10 * time.Second
	}

	connCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connCtx:    connCtx,
		cancelConn: cancel,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:     s.handler,
		ReadTimeout: s.cfg.ReadTimeout,
		// WriteTimeout does not apply to hijacked websocket connections.
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cancelConn()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	s.cancelConn()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown incomplete", "error", err)
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /callback", s.handleCallback)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/grid", s.handleGrid)
	mux.HandleFunc("GET /search_owner", s.handleSearchOwner)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}
