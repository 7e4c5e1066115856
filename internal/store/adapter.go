package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/cellgrid/internal/model"
)

// handle boxes a Backend for atomic.Pointer.
type handle struct {
	backend Backend
}

// Adapter is the Store Adapter used by the rest of the service.
type Adapter struct {
	dial      Dialer
	opTimeout time.Duration
	logger    *slog.Logger

	current atomic.Pointer[handle]

	// Serializes Reconnect/Invalidate/Close; never held on the request path.
	lifecycleMu sync.Mutex
	closed      bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithOpTimeout bounds each store call. Zero means no extra deadline.
func WithOpTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.opTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter creates an Adapter with no live connection.
// Call Reconnect (or start the health monitor) to connect.
func NewAdapter(dial Dialer, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		dial:   dial,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetAll returns every user record keyed by user ID.
func (a *Adapter) GetAll(ctx context.Context) (map[string]model.UserRecord, error) {
	b, err := a.backend()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	records, err := b.GetAll(ctx)
	if err != nil {
		return nil, unavailable("get all", err)
	}
	return records, nil
}

// Get returns one user record, or ErrUserNotFound.
func (a *Adapter) Get(ctx context.Context, userID string) (model.UserRecord, error) {
	b, err := a.backend()
	if err != nil {
		return model.UserRecord{}, err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	rec, err := b.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return model.UserRecord{}, err
		}
		return model.UserRecord{}, unavailable("get user", err)
	}
	return rec, nil
}

// Create inserts rec if the user has no record yet.
func (a *Adapter) Create(ctx context.Context, rec model.UserRecord) (bool, error) {
	b, err := a.backend()
	if err != nil {
		return false, err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	created, err := b.Create(ctx, rec)
	if err != nil {
		return false, unavailable("create user", err)
	}
	return created, nil
}

// Upsert persists rec's claimed cells.
func (a *Adapter) Upsert(ctx context.Context, rec model.UserRecord) error {
	b, err := a.backend()
	if err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := b.Upsert(ctx, rec); err != nil {
		return unavailable("upsert user", err)
	}
	return nil
}

// Connected reports whether a Backend handle is currently installed.
func (a *Adapter) Connected() bool {
	return a.current.Load() != nil
}

// Probe pings the current Backend.
func (a *Adapter) Probe(ctx context.Context) error {
	b, err := a.backend()
	if err != nil {
		return err
	}
	if err := b.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Reconnect dials a fresh Backend and swaps it in, closing the old one.
// On failure the Adapter is left without a live handle.
func (a *Adapter) Reconnect(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if a.closed {
		return ErrClosed
	}

	a.dropLocked()

	b, err := a.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial store: %w", err)
	}
	a.current.Store(&handle{backend: b})
	return nil
}

// Invalidate drops the current Backend so that calls fail fast until the next Reconnect.
func (a *Adapter) Invalidate() {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()
	a.dropLocked()
}

// Close drops the current Backend and refuses further reconnects.
func (a *Adapter) Close() error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	a.closed = true
	a.dropLocked()
	return nil
}

func (a *Adapter) dropLocked() {
	old := a.current.Swap(nil)
	if old == nil {
		return
	}
	if err := old.backend.Close(); err != nil {
		a.logger.Debug("close stale store handle", "error", err)
	}
}

func (a *Adapter) backend() (Backend, error) {
	h := a.current.Load()
	if h == nil {
		return nil, fmt.Errorf("%w: no live connection", ErrStoreUnavailable)
	}
	return h.backend, nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.opTimeout)
}

// unavailable wraps a backend failure so callers can match ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
