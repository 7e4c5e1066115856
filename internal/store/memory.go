package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rickgao/cellgrid/internal/model"
)

// ErrMemoryDown is returned by MemoryStore connections while an outage is simulated.
var ErrMemoryDown = errors.New("memory store down")

// MemoryStore is an in-memory storage engine. Records survive reconnects,
// so it can stand in for a real server in tests, including outages.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.UserRecord

	down  atomic.Bool
	dials atomic.Int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]model.UserRecord),
	}
}

// SetDown simulates the engine becoming unreachable (true) or recovering (false).
// Existing connections start failing immediately and Dial is refused.
func (m *MemoryStore) SetDown(down bool) {
	m.down.Store(down)
}

// Dials returns how many connections have been opened.
func (m *MemoryStore) Dials() int64 {
	return m.dials.Load()
}

// Dial opens a connection. It satisfies Dialer.
func (m *MemoryStore) Dial(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.down.Load() {
		return nil, ErrMemoryDown
	}
	m.dials.Add(1)
	return &memoryBackend{store: m}, nil
}

// memoryBackend is one connection to a MemoryStore.
type memoryBackend struct {
	store  *MemoryStore
	closed atomic.Bool
}

func (b *memoryBackend) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}
	if b.store.down.Load() {
		return ErrMemoryDown
	}
	return nil
}

// GetAll returns copies of all records.
func (b *memoryBackend) GetAll(ctx context.Context) (map[string]model.UserRecord, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	out := make(map[string]model.UserRecord, len(b.store.data))
	for id, rec := range b.store.data {
		out[id] = rec.Clone()
	}
	return out, nil
}

// Get returns a copy of one record.
func (b *memoryBackend) Get(ctx context.Context, userID string) (model.UserRecord, error) {
	if err := b.check(ctx); err != nil {
		return model.UserRecord{}, err
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	rec, ok := b.store.data[userID]
	if !ok {
		return model.UserRecord{}, ErrUserNotFound
	}
	return rec.Clone(), nil
}

// Create inserts rec if absent.
func (b *memoryBackend) Create(ctx context.Context, rec model.UserRecord) (bool, error) {
	if err := b.check(ctx); err != nil {
		return false, err
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if _, exists := b.store.data[rec.UserID]; exists {
		return false, nil
	}
	b.store.data[rec.UserID] = rec.Clone()
	return true, nil
}

// Upsert replaces the claimed cells, keeping an existing display name.
func (b *memoryBackend) Upsert(ctx context.Context, rec model.UserRecord) error {
	if err := b.check(ctx); err != nil {
		return err
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	stored := rec.Clone()
	if existing, ok := b.store.data[rec.UserID]; ok {
		stored.Username = existing.Username
	}
	b.store.data[rec.UserID] = stored
	return nil
}

// Ping fails while the store is down.
func (b *memoryBackend) Ping(ctx context.Context) error {
	return b.check(ctx)
}

// Close marks the connection closed.
func (b *memoryBackend) Close() error {
	b.closed.Store(true)
	return nil
}
