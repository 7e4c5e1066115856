package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/cellgrid/internal/config"
	"github.com/rickgao/cellgrid/internal/database"
	"github.com/rickgao/cellgrid/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS grid_users (
    user_id    TEXT PRIMARY KEY,
    username   TEXT NOT NULL,
    cells      JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresBackend stores user records in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend wraps a pool and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// PostgresDialer returns a Dialer that opens a new pool from cfg.
func PostgresDialer(cfg config.DBConfig) Dialer {
	return func(ctx context.Context) (Backend, error) {
		pool, err := database.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b, err := NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return b, nil
	}
}

// GetAll returns every user record.
func (p *PostgresBackend) GetAll(ctx context.Context) (map[string]model.UserRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT user_id, username, cells FROM grid_users`)
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
func (p *PostgresBackend) Get(ctx context.Context, userID string) (model.UserRecord, error) {
	var (
		rec   = model.UserRecord{UserID: userID}
		cells []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT username, cells FROM grid_users WHERE user_id = $1`, userID,
	).Scan(&rec.Username, &cells)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (p *PostgresBackend) Create(ctx context.Context, rec model.UserRecord) (bool, error) {
	cells, err := encodeCells(rec.Cells)
	if err != nil {
		return false, err
	}
	ct, err := p.pool.Exec(ctx, `
		INSERT INTO grid_users (user_id, username, cells)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id) DO NOTHING
	`, rec.UserID, rec.Username, cells)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Upsert writes the claimed cells in a single statement; the row lock makes it atomic per user.
func (p *PostgresBackend) Upsert(ctx context.Context, rec model.UserRecord) error {
	cells, err := encodeCells(rec.Cells)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO grid_users (user_id, username, cells)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id) DO UPDATE SET
			cells = EXCLUDED.cells,
			updated_at = now()
	`, rec.UserID, rec.Username, cells)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Ping verifies the pool can reach the server.
func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
