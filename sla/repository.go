package sla

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
	"qcflow/unit"
)

const unitColumns = `id, unit_id, order_id, frame_model, lab, priority::text, status::text, store_id, received_at, updated_at`

// Repository runs the breach scans against the units table. Both queries
// are plain reads; the monitor never mutates anything.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UrgentBreaches returns urgent-priority units still waiting on inspection
// past the cutoff. Only RECEIVED and QC_IN_PROGRESS count as waiting; a
// unit parked in REWORK or QUARANTINE is tracked by the stuck scan instead.
func (r *Repository) UrgentBreaches(ctx context.Context, cutoff time.Time) ([]unit.Unit, error) {
	const query = `
		SELECT ` + unitColumns + `
		FROM units
		WHERE priority = 'URGENT'
		  AND status IN ('RECEIVED', 'QC_IN_PROGRESS')
		  AND received_at < $1
		ORDER BY received_at ASC
	`
	return r.scanUnits(ctx, query, cutoff, "sla: urgent breaches")
}

// StuckUnits returns units of any priority that have not reached
// STORE_READY by the cutoff.
func (r *Repository) StuckUnits(ctx context.Context, cutoff time.Time) ([]unit.Unit, error) {
	const query = `
		SELECT ` + unitColumns + `
		FROM units
		WHERE status <> 'STORE_READY'
		  AND received_at < $1
		ORDER BY received_at ASC
	`
	return r.scanUnits(ctx, query, cutoff, "sla: stuck units")
}

func (r *Repository) scanUnits(ctx context.Context, query string, cutoff time.Time, op string) ([]unit.Unit, error) {
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fault.Storagew(err, "%s", op)
	}
	defer rows.Close()

	units := make([]unit.Unit, 0, 8)
	for rows.Next() {
		var u unit.Unit
		if err := rows.Scan(&u.ID, &u.UnitRef, &u.OrderID, &u.FrameModel, &u.Lab, &u.Priority, &u.Status, &u.StoreID, &u.ReceivedAt, &u.UpdatedAt); err != nil {
			return nil, fault.Storagew(err, "%s", op)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "%s", op)
	}
	return units, nil
}
