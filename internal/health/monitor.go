package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Target is the connection the monitor keeps alive.
// *store.Adapter satisfies it.
type Target interface {
	Connected() bool
	Probe(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Invalidate()
}

// Config holds monitor settings.
type Config struct {
	Interval         time.Duration // Time between ticks
	ProbeTimeout     time.Duration // Deadline for one liveness probe
	ReconnectTimeout time.Duration // Deadline for one reconnect attempt
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         60 * time.Second,
		ProbeTimeout:     5 * time.Second,
		ReconnectTimeout: 10 * time.Second,
	}
}

// Status is a snapshot of the monitor's view of the connection.
type Status struct {
	Connected        bool
	LastCheck        time.Time
	LastHealthy      time.Time
	ConsecutiveFails int
	Reconnects       int64
	LastError        string
}

// Monitor periodically verifies the store connection and reconnects on failure.
type Monitor struct {
	cfg    Config
	target Target
	logger *slog.Logger

	// Serializes ticks; Check may also be called directly.
	checkMu sync.Mutex

	mu     sync.RWMutex
	status Status
}

// NewMonitor creates a monitor for target.
func NewMonitor(cfg Config, target Target, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = DefaultConfig().ReconnectTimeout
	}

	return &Monitor{
		cfg:    cfg,
		target: target,
		logger: logger,
	}
}

// Run checks immediately, then once per interval, until ctx is canceled.
// It always returns nil so it can run inside an errgroup without tearing it down.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("health monitor started", "interval", m.cfg.Interval)

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one tick.
func (m *Monitor) Check(ctx context.Context) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	now := time.Now()

	if m.target.Connected() {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		err := m.target.Probe(probeCtx)
		cancel()

		if err == nil {
			m.recordHealthy(now, false)
			m.logger.Debug("store probe ok")
			return
		}

		m.logger.Warn("store probe failed, reconnecting", "error", err)
		m.target.Invalidate()
	}

	reconnectCtx, cancel := context.WithTimeout(ctx, m.cfg.ReconnectTimeout)
	err := m.target.Reconnect(reconnectCtx)
	cancel()

	if err != nil {
		fails := m.recordFailure(now, err)
		m.logger.Error("store reconnect failed, retrying next tick",
			"error", err,
			"consecutive_fails", fails,
			"retry_in", m.cfg.Interval,
		)
		return
	}

	m.recordHealthy(now, true)
	m.logger.Info("store connected")
}

// Status returns the latest status snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.status
	s.Connected = m.target.Connected()
	return s
}

func (m *Monitor) recordHealthy(at time.Time, reconnected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.LastCheck = at
	m.status.LastHealthy = at
	m.status.ConsecutiveFails = 0
	m.status.LastError = ""
	if reconnected {
		m.status.Reconnects++
	}
}

func (m *Monitor) recordFailure(at time.Time, err error) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.LastCheck = at
	m.status.ConsecutiveFails++
	m.status.LastError = err.Error()
	return m.status.ConsecutiveFails
}
