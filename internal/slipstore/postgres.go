package slipstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps slips in the slips table, one jsonb row per owner.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

func (r *Postgres) Load(ctx context.Context, owner int64) ([]byte, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM slips WHERE owner = $1`, owner).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return raw, err
}

func (r *Postgres) Modify(ctx context.Context, owner int64, fn func(cur []byte) ([]byte, error)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur []byte
	err = tx.QueryRow(ctx, `SELECT payload FROM slips WHERE owner = $1 FOR UPDATE`, owner).Scan(&cur)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM slips WHERE owner = $1`, owner); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO slips (owner, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner) DO UPDATE SET
		  payload = EXCLUDED.payload, updated_at = now()
	`, owner, next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
