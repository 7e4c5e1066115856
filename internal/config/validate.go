package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/cellgrid/internal/model"
)

// minSessionSecret is the shortest accepted HMAC key for session tokens.
const minSessionSecret = 32

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be one of postgres, sqlite, memory, got %q", c.Store.Driver)
	}

	if c.Health.Interval <= 0 {
		return errors.New("health.interval must be > 0")
	}
	if c.Health.ProbeTimeout <= 0 {
		return errors.New("health.probe_timeout must be > 0")
	}

	if c.Grid.MaxSelections < 1 || c.Grid.MaxSelections > model.CellCount {
		return fmt.Errorf("grid.max_selections must be between 1 and %d, got %d", model.CellCount, c.Grid.MaxSelections)
	}

	if c.OAuth.ClientID == "" {
		return errors.New("oauth.client_id is required")
	}
	if c.OAuth.ClientSecret == "" {
		return errors.New("oauth.client_secret is required")
	}
	if c.OAuth.RedirectURL == "" {
		return errors.New("oauth.redirect_url is required")
	}

	if len(c.Session.Secret) < minSessionSecret {
		return fmt.Errorf("session.secret must be at least %d bytes", minSessionSecret)
	}

	if c.Broadcast.QueueSize < 1 {
		return errors.New("broadcast.queue_size must be >= 1")
	}
	if c.Broadcast.MaxPending < c.Broadcast.QueueSize {
		return fmt.Errorf("broadcast.max_pending (%d) must be >= queue_size (%d)", c.Broadcast.MaxPending, c.Broadcast.QueueSize)
	}
	if c.Broadcast.PongTimeout <= c.Broadcast.PingInterval {
		return fmt.Errorf("broadcast.pong_timeout (%s) must exceed ping_interval (%s)", c.Broadcast.PongTimeout, c.Broadcast.PingInterval)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
