package config

import "time"

// Config is the root configuration for a grid server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DBConfig        `yaml:"database"`
	Health    HealthConfig    `yaml:"health"`
	Grid      GridConfig      `yaml:"grid"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Session   SessionConfig   `yaml:"session"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// StoreConfig selects the authoritative store backend.
type StoreConfig struct {
	Driver     string        `yaml:"driver"`      // "postgres", "sqlite" or "memory"
	SQLitePath string        `yaml:"sqlite_path"` // Database file for the sqlite driver
	OpTimeout  time.Duration `yaml:"op_timeout"`  // Deadline for a single store call
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds connection health monitor settings.
type HealthConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// GridConfig holds reservation limits.
type GridConfig struct {
	MaxSelections int `yaml:"max_selections"`
}

// OAuthConfig holds identity provider settings.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	APIBaseURL   string   `yaml:"api_base_url"`
	Scopes       []string `yaml:"scopes"`
}

// SessionConfig holds session cookie settings.
type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
	Secure     bool          `yaml:"secure"`
}

// BroadcastConfig holds observer connection settings.
type BroadcastConfig struct {
	QueueSize    int           `yaml:"queue_size"`    // Initial per-observer queue capacity
	MaxPending   int           `yaml:"max_pending"`   // Undelivered events before an observer is dropped
	WriteTimeout time.Duration `yaml:"write_timeout"` // Write deadline per websocket frame
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	MaxMessage   int64         `yaml:"max_message"` // Max inbound frame size in bytes
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
