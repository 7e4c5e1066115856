package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/cellgrid/internal/model"
)

// testBackendContract exercises the behavior every Backend must share.
func testBackendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		all, err := b.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = b.Get(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("create once", func(t *testing.T) {
		created, err := b.Create(ctx, model.NewUserRecord("u1", "alice"))
		require.NoError(t, err)
		assert.True(t, created)

		created, err = b.Create(ctx, model.NewUserRecord("u1", "renamed"))
		require.NoError(t, err)
		assert.False(t, created)

		rec, err := b.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", rec.Username)
		assert.Empty(t, rec.Cells)
	})

	t.Run("upsert cells keeps display name", func(t *testing.T) {
		rec := model.UserRecord{
			UserID:   "u1",
			Username: "someone-else",
			Cells:    []model.Cell{{Row: 0, Col: 0}, {Row: 4, Col: 2}},
		}
		require.NoError(t, b.Upsert(ctx, rec))

		got, err := b.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, rec.Cells, got.Cells)
	})

	t.Run("upsert creates missing user", func(t *testing.T) {
		require.NoError(t, b.Upsert(ctx, model.UserRecord{
			UserID:   "u2",
			Username: "bob",
			Cells:    []model.Cell{{Row: 9, Col: 9}},
		}))

		all, err := b.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "bob", all["u2"].Username)
		assert.Equal(t, "u2", all["u2"].UserID)
		assert.Equal(t, []model.Cell{{Row: 9, Col: 9}}, all["u2"].Cells)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, b.Ping(ctx))
	})
}

func TestMemoryBackend_Contract(t *testing.T) {
	m := NewMemoryStore()
	b, err := m.Dial(context.Background())
	require.NoError(t, err)
	defer b.Close()

	testBackendContract(t, b)
}

func TestSQLiteBackend_Contract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")
	b, err := SQLiteDialer(path)(context.Background())
	require.NoError(t, err)
	defer b.Close()

	testBackendContract(t, b)
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "grid.db")
	dial := SQLiteDialer(path)

	b, err := dial(ctx)
	require.NoError(t, err)
	_, err = b.Create(ctx, model.NewUserRecord("u1", "alice"))
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, model.UserRecord{UserID: "u1", Cells: []model.Cell{{Row: 1, Col: 1}}}))
	require.NoError(t, b.Close())

	b, err = dial(ctx)
	require.NoError(t, err)
	defer b.Close()

	rec, err := b.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, []model.Cell{{Row: 1, Col: 1}}, rec.Cells)
}

func TestMemoryBackend_Down(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	b, err := m.Dial(ctx)
	require.NoError(t, err)

	m.SetDown(true)
	assert.ErrorIs(t, b.Ping(ctx), ErrMemoryDown)
	_, err = b.GetAll(ctx)
	assert.ErrorIs(t, err, ErrMemoryDown)
	_, err = m.Dial(ctx)
	assert.ErrorIs(t, err, ErrMemoryDown)

	m.SetDown(false)
	assert.NoError(t, b.Ping(ctx))

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Ping(ctx), ErrClosed)
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	b, err := m.Dial(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Upsert(ctx, model.UserRecord{UserID: "u1", Cells: []model.Cell{{Row: 1, Col: 1}}}))

	rec, err := b.Get(ctx, "u1")
	require.NoError(t, err)
	rec.Cells[0] = model.Cell{Row: 50, Col: 50}

	again, err := b.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Cell{Row: 1, Col: 1}, again.Cells[0])
}
