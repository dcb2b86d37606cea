package rework

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
)

const ticketColumns = `t.id, t.unit_id, u.unit_id, t.inspection_id, t.failed_stage, t.reason_summary, t.status::text, t.created_at, t.updated_at`

// Repository provides access to rework tickets. Tickets are opened by the
// inspection transaction; this repository serves the remediation workflow
// that happens afterwards.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns tickets newest first, optionally filtered by the unit's
// external reference or by status.
func (r *Repository) List(ctx context.Context, unitRef string, status Status) ([]Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM rework_tickets t
		JOIN units u ON u.id = t.unit_id
	`
	conds := ""
	args := []any{}
	if unitRef != "" {
		args = append(args, unitRef)
		conds = " WHERE u.unit_id = $1"
	}
	if status != "" {
		if !ValidStatus(status) {
			return nil, fault.Validationf("rework: invalid status %q", status)
		}
		args = append(args, status)
		if conds == "" {
			conds = " WHERE t.status = $1::rework_status"
		} else {
			conds += " AND t.status = $2::rework_status"
		}
	}
	query += conds + " ORDER BY t.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fault.Storagew(err, "rework: list")
	}
	defer rows.Close()

	tickets := make([]Ticket, 0, 8)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.UnitPK, &t.UnitRef, &t.InspectionID, &t.FailedStage, &t.ReasonSummary, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fault.Storagew(err, "rework: scan")
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "rework: iterate")
	}
	return tickets, nil
}

// GetByID fetches one ticket.
func (r *Repository) GetByID(ctx context.Context, ticketID string) (Ticket, error) {
	const query = `
		SELECT ` + ticketColumns + `
		FROM rework_tickets t
		JOIN units u ON u.id = t.unit_id
		WHERE t.id = $1
	`

	var t Ticket
	err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&t.ID, &t.UnitPK, &t.UnitRef, &t.InspectionID, &t.FailedStage, &t.ReasonSummary, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, fault.NotFoundf("rework ticket %s", ticketID)
		}
		return Ticket{}, fault.Storagew(err, "rework: get")
	}
	return t, nil
}

// Advance moves a ticket forward in its lifecycle. The row is locked so two
// concurrent updates cannot both apply; a backwards move is a conflict.
func (r *Repository) Advance(ctx context.Context, ticketID string, next Status) (Ticket, error) {
	if !ValidStatus(next) {
		return Ticket{}, fault.Validationf("rework: invalid status %q", next)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fault.Storagew(err, "rework: begin tx")
	}
	defer tx.Rollback(ctx)

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status::text FROM rework_tickets WHERE id = $1 FOR UPDATE`, ticketID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, fault.NotFoundf("rework ticket %s", ticketID)
		}
		return Ticket{}, fault.Storagew(err, "rework: lock")
	}

	if !CanAdvance(current, next) {
		return Ticket{}, fault.Conflictf("rework: illegal move %s -> %s", current, next)
	}

	const update = `
		UPDATE rework_tickets t
		SET status = $2::rework_status, updated_at = now()
		FROM units u
		WHERE t.id = $1 AND u.id = t.unit_id
		RETURNING ` + ticketColumns

	var t Ticket
	if err := tx.QueryRow(ctx, update, ticketID, next).Scan(
		&t.ID, &t.UnitPK, &t.UnitRef, &t.InspectionID, &t.FailedStage, &t.ReasonSummary, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return Ticket{}, fault.Storagew(err, "rework: advance")
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fault.Storagew(err, "rework: commit")
	}
	return t, nil
}
