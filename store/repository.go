package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
)

// Repository provides read access to the store catalog.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByCode fetches a store by its short code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Store, error) {
	const query = `
		SELECT id, name, code, is_active, created_at
		FROM stores
		WHERE code = $1
	`

	var s Store
	err := r.pool.QueryRow(ctx, query, code).Scan(&s.ID, &s.Name, &s.Code, &s.IsActive, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Store{}, fault.NotFoundf("store %s", code)
		}
		return Store{}, fault.Storagew(err, "store: get by code")
	}
	return s, nil
}

// List fetches up to limit active stores ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]Store, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, name, code, is_active, created_at
		FROM stores
		WHERE is_active
		ORDER BY name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fault.Storagew(err, "store: list")
	}
	defer rows.Close()

	stores := make([]Store, 0, limit)
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, fault.Storagew(err, "store: scan")
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "store: iterate")
	}
	return stores, nil
}
