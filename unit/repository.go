package unit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
)

const unitColumns = `id, unit_id, order_id, frame_model, lab, priority::text, status::text, store_id, received_at, updated_at`

// Repository provides access to the units table. Mutating methods take the
// caller's transaction so per-unit serialization is owned by one tx.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MetadataParams carries optional attribute updates applied when an
// inspection is started. Empty fields are left untouched.
type MetadataParams struct {
	OrderID    *string
	FrameModel string
	Lab        string
	Priority   Priority
}

// GetOrCreateForUpdate resolves the unit for an external reference inside
// tx, creating it when missing, and leaves its row locked for the duration
// of the transaction. The bool result reports whether the unit was created.
func (r *Repository) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, unitRef string, meta MetadataParams) (Unit, bool, error) {
	if unitRef == "" {
		return Unit{}, false, fault.Validationf("unit: unit_id required")
	}

	priority := meta.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !ValidPriority(priority) {
		return Unit{}, false, fault.Validationf("unit: invalid priority %q", priority)
	}

	const insertSQL = `
		INSERT INTO units (unit_id, order_id, frame_model, lab, priority)
		VALUES ($1, $2, $3, $4, $5::unit_priority)
		ON CONFLICT (unit_id) DO NOTHING
		RETURNING ` + unitColumns

	var u Unit
	err := tx.QueryRow(ctx, insertSQL, unitRef, meta.OrderID, meta.FrameModel, meta.Lab, priority).Scan(
		&u.ID, &u.UnitRef, &u.OrderID, &u.FrameModel, &u.Lab, &u.Priority, &u.Status, &u.StoreID, &u.ReceivedAt, &u.UpdatedAt,
	)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, false, fault.Storagew(err, "unit: insert")
	}

	// Row already exists; lock it for the rest of the transaction.
	const lockSQL = `SELECT ` + unitColumns + ` FROM units WHERE unit_id = $1 FOR UPDATE`
	err = tx.QueryRow(ctx, lockSQL, unitRef).Scan(
		&u.ID, &u.UnitRef, &u.OrderID, &u.FrameModel, &u.Lab, &u.Priority, &u.Status, &u.StoreID, &u.ReceivedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, false, fault.NotFoundf("unit %s", unitRef)
		}
		return Unit{}, false, fault.Storagew(err, "unit: lock")
	}
	return u, false, nil
}

// ApplyMetadata updates the provided non-empty attributes on an existing,
// already locked unit row.
func (r *Repository) ApplyMetadata(ctx context.Context, tx pgx.Tx, unitPK string, meta MetadataParams) error {
	const updateSQL = `
		UPDATE units
		SET order_id    = COALESCE($2, order_id),
		    frame_model = CASE WHEN $3 <> '' THEN $3 ELSE frame_model END,
		    lab         = CASE WHEN $4 <> '' THEN $4 ELSE lab END,
		    priority    = CASE WHEN $5 <> '' THEN $5::unit_priority ELSE priority END,
		    updated_at  = now()
		WHERE id = $1
	`
	if meta.Priority != "" && !ValidPriority(meta.Priority) {
		return fault.Validationf("unit: invalid priority %q", meta.Priority)
	}
	if _, err := tx.Exec(ctx, updateSQL, unitPK, meta.OrderID, meta.FrameModel, meta.Lab, string(meta.Priority)); err != nil {
		return fault.Storagew(err, "unit: apply metadata")
	}
	return nil
}

// Transition moves a unit to the next status after validating the move
// against the lifecycle table. The row is locked first so two concurrent
// escalations cannot interleave. Illegal moves leave state unchanged.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, unitPK string, next Status) (Status, error) {
	if !ValidStatus(next) {
		return "", fault.Validationf("unit: invalid status %q", next)
	}

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status::text FROM units WHERE id = $1 FOR UPDATE`, unitPK).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fault.NotFoundf("unit %s", unitPK)
		}
		return "", fault.Storagew(err, "unit: fetch status")
	}

	if current == next {
		return current, nil
	}
	if !CanTransition(current, next) {
		return current, fault.Conflictf("unit: illegal transition %s -> %s", current, next)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE units SET status = $2::unit_status, updated_at = now() WHERE id = $1
	`, unitPK, next); err != nil {
		return current, fault.Storagew(err, "unit: update status")
	}
	return next, nil
}

// GetByRef fetches a unit by its external identifier.
func (r *Repository) GetByRef(ctx context.Context, unitRef string) (Unit, error) {
	const query = `SELECT ` + unitColumns + ` FROM units WHERE unit_id = $1`

	var u Unit
	err := r.pool.QueryRow(ctx, query, unitRef).Scan(
		&u.ID, &u.UnitRef, &u.OrderID, &u.FrameModel, &u.Lab, &u.Priority, &u.Status, &u.StoreID, &u.ReceivedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, fault.NotFoundf("unit %s", unitRef)
		}
		return Unit{}, fault.Storagew(err, "unit: get by ref")
	}
	return u, nil
}

// ListByStatus returns up to limit units in the given status, newest first.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int) ([]Unit, error) {
	if !ValidStatus(status) {
		return nil, fault.Validationf("unit: invalid status %q", status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const query = `
		SELECT ` + unitColumns + `
		FROM units
		WHERE status = $1::unit_status
		ORDER BY received_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fault.Storagew(err, "unit: list by status")
	}
	defer rows.Close()

	units := make([]Unit, 0, 8)
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.UnitRef, &u.OrderID, &u.FrameModel, &u.Lab, &u.Priority, &u.Status, &u.StoreID, &u.ReceivedAt, &u.UpdatedAt); err != nil {
			return nil, fault.Storagew(err, "unit: scan")
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "unit: iterate")
	}
	return units, nil
}
