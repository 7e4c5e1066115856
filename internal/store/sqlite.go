package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/cellgrid/internal/database"
	"github.com/rickgao/cellgrid/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS grid_users (
    user_id    TEXT PRIMARY KEY,
    username   TEXT NOT NULL,
    cells      TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL
);
`

// SQLiteBackend stores user records in a local SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend wraps an open database and ensures the schema exists.
func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*SQLiteBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// SQLiteDialer returns a Dialer that opens the database file at path.
func SQLiteDialer(path string) Dialer {
	return func(ctx context.Context) (Backend, error) {
		db, err := database.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		b, err := NewSQLiteBackend(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return b, nil
	}
}

// GetAll returns every user record.
func (s *SQLiteBackend) GetAll(ctx context.Context) (map[string]model.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, username, cells FROM grid_users`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.UserRecord)
	for rows.Next() {
		var (
			rec   model.UserRecord
			cells []byte
		)
		if err := rows.Scan(&rec.UserID, &rec.Username, &cells); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if rec.Cells, err = decodeCells(cells); err != nil {
			return nil, fmt.Errorf("user %s: %w", rec.UserID, err)
		}
		out[rec.UserID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// Get returns one user record.
func (s *SQLiteBackend) Get(ctx context.Context, userID string) (model.UserRecord, error) {
	var (
		rec   = model.UserRecord{UserID: userID}
		cells []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, cells FROM grid_users WHERE user_id = ?`, userID,
	).Scan(&rec.Username, &cells)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return model.UserRecord{}, fmt.Errorf("query user: %w", err)
	}
	if rec.Cells, err = decodeCells(cells); err != nil {
		return model.UserRecord{}, err
	}
	return rec, nil
}

// Create inserts rec if absent.
func (s *SQLiteBackend) Create(ctx context.Context, rec model.UserRecord) (bool, error) {
	cells, err := encodeCells(rec.Cells)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO grid_users (user_id, username, cells, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		rec.UserID, rec.Username, cells, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Upsert writes the claimed cells in a single statement.
func (s *SQLiteBackend) Upsert(ctx context.Context, rec model.UserRecord) error {
	cells, err := encodeCells(rec.Cells)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grid_users (user_id, username, cells, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			cells = excluded.cells,
			updated_at = excluded.updated_at`,
		rec.UserID, rec.Username, cells, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Ping verifies the database file is reachable.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
