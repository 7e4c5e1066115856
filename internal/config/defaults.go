package config

import (
	"time"

	"github.com/rickgao/cellgrid/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultServerAddr        = ":8080"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultStoreDriver       = DriverPostgres
	DefaultSQLitePath        = "cellgrid.db"
	DefaultStoreOpTimeout    = 5 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultHealthInterval    = 60 * time.Second
	DefaultProbeTimeout      = 5 * time.Second
	DefaultAuthURL           = "https://discord.com/api/oauth2/authorize"
	DefaultTokenURL          = "https://discord.com/api/oauth2/token"
	DefaultAPIBaseURL        = "https://discord.com/api"
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultSessionCookieName = "cellgrid_session"
	DefaultQueueSize         = 64
	DefaultMaxPending        = 1024
	DefaultWSWriteTimeout    = 5 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPongTimeout       = 60 * time.Second
	DefaultMaxMessage        = 4096
	DefaultLogLevel          = "info"
)

// DefaultScopes are the OAuth scopes requested at login.
var DefaultScopes = []string{"identify"}

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		c.Store.SQLitePath = DefaultSQLitePath
	}
	if c.Store.OpTimeout == 0 {
		c.Store.OpTimeout = DefaultStoreOpTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Health defaults
	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = DefaultProbeTimeout
	}

	// Grid defaults
	if c.Grid.MaxSelections == 0 {
		c.Grid.MaxSelections = model.MaxSelections
	}

	// OAuth defaults
	if c.OAuth.AuthURL == "" {
		c.OAuth.AuthURL = DefaultAuthURL
	}
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = DefaultTokenURL
	}
	if c.OAuth.APIBaseURL == "" {
		c.OAuth.APIBaseURL = DefaultAPIBaseURL
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = append([]string(nil), DefaultScopes...)
	}

	// Session defaults
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultSessionCookieName
	}

	// Broadcast defaults
	if c.Broadcast.QueueSize == 0 {
		c.Broadcast.QueueSize = DefaultQueueSize
	}
	if c.Broadcast.MaxPending == 0 {
		c.Broadcast.MaxPending = DefaultMaxPending
	}
	if c.Broadcast.WriteTimeout == 0 {
		c.Broadcast.WriteTimeout = DefaultWSWriteTimeout
	}
	if c.Broadcast.PingInterval == 0 {
		c.Broadcast.PingInterval = DefaultPingInterval
	}
	if c.Broadcast.PongTimeout == 0 {
		c.Broadcast.PongTimeout = DefaultPongTimeout
	}
	if c.Broadcast.MaxMessage == 0 {
		c.Broadcast.MaxMessage = DefaultMaxMessage
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
