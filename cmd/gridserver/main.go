package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/cellgrid/internal/broadcast"
	"github.com/rickgao/cellgrid/internal/config"
	"github.com/rickgao/cellgrid/internal/connection"
	"github.com/rickgao/cellgrid/internal/health"
	"github.com/rickgao/cellgrid/internal/identity"
	"github.com/rickgao/cellgrid/internal/reservation"
	"github.com/rickgao/cellgrid/internal/server"
	"github.com/rickgao/cellgrid/internal/session"
	"github.com/rickgao/cellgrid/internal/store"
	"github.com/rickgao/cellgrid/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gridserver.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration before the logger so log.level applies from the first line.
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting gridserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"store", cfg.Store.Driver,
		"max_selections", cfg.Grid.MaxSelections,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gridserver failed", "error", err)
		os.Exit(1)
	}

	logger.Info("gridserver stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	dial, err := dialerFor(cfg)
	if err != nil {
		return err
	}

	adapter := store.NewAdapter(dial,
		store.WithOpTimeout(cfg.Store.OpTimeout),
		store.WithLogger(logger.With("component", "store")),
	)
	defer adapter.Close()

	monitor := health.NewMonitor(health.Config{
		Interval:         cfg.Health.Interval,
		ProbeTimeout:     cfg.Health.ProbeTimeout,
		ReconnectTimeout: cfg.Health.ProbeTimeout * 2,
	}, adapter, logger.With("component", "health"))

	// Connect once up front so the first requests do not race the monitor's first tick.
	monitor.Check(ctx)
	if !adapter.Connected() {
		logger.Warn("store unreachable at startup, serving until the health monitor reconnects")
	}

	hub := broadcast.NewHub(broadcast.Config{
		QueueSize:  cfg.Broadcast.QueueSize,
		MaxPending: cfg.Broadcast.MaxPending,
	}, logger.With("component", "broadcast"))

	engine := reservation.NewEngine(reservation.Config{
		MaxSelections: cfg.Grid.MaxSelections,
	}, adapter, hub, logger.With("component", "reservation"))

	provider := identity.NewProvider(cfg.OAuth,
		identity.WithLogger(logger.With("component", "identity")),
		identity.WithRetries(3, 500*time.Millisecond),
	)

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ToggleTimeout:   2 * cfg.Store.OpTimeout, // one load and one write
		Conn: connection.Config{
			WriteTimeout: cfg.Broadcast.WriteTimeout,
			PingInterval: cfg.Broadcast.PingInterval,
			PongTimeout:  cfg.Broadcast.PongTimeout,
			MaxMessage:   cfg.Broadcast.MaxMessage,
		},
	}, server.Deps{
		Engine:   engine,
		Hub:      hub,
		Sessions: session.NewManager(cfg.Session),
		Identity: provider,
		Health:   monitor,
	}, logger.With("component", "server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	logger.Info("gridserver running",
		"addr", cfg.Server.Addr,
		"health_url", fmt.Sprintf("http://localhost%s/health", cfg.Server.Addr),
	)

	err = g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if closeErr := hub.Close(shutdownCtx); closeErr != nil {
		logger.Warn("broadcast hub close incomplete", "error", closeErr)
	}

	return err
}

// dialerFor picks the store backend named in the config.
func dialerFor(cfg *config.Config) (store.Dialer, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return store.PostgresDialer(cfg.Database), nil
	case config.DriverSQLite:
		return store.SQLiteDialer(cfg.Store.SQLitePath), nil
	case config.DriverMemory:
		return store.NewMemoryStore().Dial, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
