package inspection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
	"qcflow/unit"
)

// Repository executes inspection writes inside the caller's transaction.
// The unit row lock acquired by the service serializes everything here.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextAttemptNumber computes 1 + the highest prior attempt for the unit.
// Must be called with the unit row already locked, otherwise two concurrent
// starts could claim the same attempt.
func (r *Repository) NextAttemptNumber(ctx context.Context, tx pgx.Tx, unitPK string) (int, error) {
	var next int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM inspections WHERE unit_id = $1
	`, unitPK).Scan(&next)
	if err != nil {
		return 0, fault.Storagew(err, "inspection: next attempt")
	}
	return next, nil
}

// Insert persists a new inspection attempt.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, ins Inspection) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO inspections (id, unit_id, attempt_number, training_mode, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ins.ID, ins.UnitPK, ins.AttemptNumber, ins.TrainingMode, ins.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fault.Conflictf("inspection: attempt %d already exists for unit", ins.AttemptNumber)
		}
		return fault.Storagew(err, "inspection: insert")
	}
	return nil
}

// GetWithUnitForUpdate loads the inspection and its unit's current status,
// locking both rows for the duration of the transaction.
func (r *Repository) GetWithUnitForUpdate(ctx context.Context, tx pgx.Tx, inspectionID string) (Inspection, unit.Status, error) {
	const query = `
		SELECT i.id, i.unit_id, i.attempt_number, i.training_mode, i.started_at, i.completed_at, i.final_result::text, u.status::text
		FROM inspections i
		JOIN units u ON u.id = i.unit_id
		WHERE i.id = $1
		FOR UPDATE
	`

	var (
		ins         Inspection
		finalResult *string
		unitStatus  unit.Status
	)
	err := tx.QueryRow(ctx, query, inspectionID).Scan(
		&ins.ID, &ins.UnitPK, &ins.AttemptNumber, &ins.TrainingMode, &ins.StartedAt, &ins.CompletedAt, &finalResult, &unitStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Inspection{}, "", fault.NotFoundf("inspection %s", inspectionID)
		}
		return Inspection{}, "", fault.Storagew(err, "inspection: fetch for update")
	}
	if finalResult != nil {
		res := Result(*finalResult)
		ins.FinalResult = &res
	}
	return ins, unitStatus, nil
}

// UpsertStageResult inserts or overwrites the stage result for
// (inspection, stage) and returns its id. started_at of an existing row is
// preserved; completion is stamped on every submission.
func (r *Repository) UpsertStageResult(ctx context.Context, tx pgx.Tx, inspectionID, stage string, status Result, notes string, data map[string]any, completedAt time.Time) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fault.Validationf("inspection: invalid stage data: %v", err)
	}

	const query = `
		INSERT INTO stage_results (inspection_id, stage, status, notes, data, completed_at)
		VALUES ($1, $2, $3::stage_status, $4, $5::jsonb, $6)
		ON CONFLICT (inspection_id, stage) DO UPDATE
		SET status = EXCLUDED.status,
		    notes = EXCLUDED.notes,
		    data = EXCLUDED.data,
		    completed_at = EXCLUDED.completed_at
		RETURNING id
	`

	var id string
	if err := tx.QueryRow(ctx, query, inspectionID, stage, status, notes, payload, completedAt).Scan(&id); err != nil {
		return "", fault.Storagew(err, "inspection: upsert stage result")
	}
	return id, nil
}

// DeleteDefects removes defects attached to a stage result. Used when a
// previously failed stage is re-submitted as PASS, which must leave no
// defects behind.
func (r *Repository) DeleteDefects(ctx context.Context, tx pgx.Tx, stageResultID string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM defects WHERE stage_result_id = $1`, stageResultID); err != nil {
		return fault.Storagew(err, "inspection: delete defects")
	}
	return nil
}

// InsertDefect records a defect against a failed stage result.
func (r *Repository) InsertDefect(ctx context.Context, tx pgx.Tx, stageResultID string, in DefectInput, createdAt time.Time) (Defect, error) {
	const query = `
		INSERT INTO defects (stage_result_id, category, reason_code, severity, notes, created_at)
		VALUES ($1, $2, $3, $4::defect_severity, $5, $6)
		RETURNING id
	`

	d := Defect{
		StageResultID: stageResultID,
		Category:      in.Category,
		ReasonCode:    in.ReasonCode,
		Severity:      in.Severity,
		Notes:         in.Notes,
		CreatedAt:     createdAt,
	}
	if err := tx.QueryRow(ctx, query, stageResultID, in.Category, in.ReasonCode, in.Severity, in.Notes, createdAt).Scan(&d.ID); err != nil {
		return Defect{}, fault.Storagew(err, "inspection: insert defect")
	}
	return d, nil
}

// InsertReworkTicket opens a new ticket for a failed stage. Every failure
// opens its own ticket; repeated failures document distinct remediation
// needs.
func (r *Repository) InsertReworkTicket(ctx context.Context, tx pgx.Tx, unitPK, inspectionID, failedStage, reasonSummary string) (string, error) {
	const query = `
		INSERT INTO rework_tickets (unit_id, inspection_id, failed_stage, reason_summary)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id string
	if err := tx.QueryRow(ctx, query, unitPK, inspectionID, failedStage, reasonSummary).Scan(&id); err != nil {
		return "", fault.Storagew(err, "inspection: insert rework ticket")
	}
	return id, nil
}

// StageStatuses returns the recorded status per stage of an inspection.
func (r *Repository) StageStatuses(ctx context.Context, tx pgx.Tx, inspectionID string) (map[string]Result, error) {
	rows, err := tx.Query(ctx, `
		SELECT stage, status::text FROM stage_results WHERE inspection_id = $1
	`, inspectionID)
	if err != nil {
		return nil, fault.Storagew(err, "inspection: stage statuses")
	}
	defer rows.Close()

	statuses := make(map[string]Result, 8)
	for rows.Next() {
		var (
			stage  string
			status Result
		)
		if err := rows.Scan(&stage, &status); err != nil {
			return nil, fault.Storagew(err, "inspection: scan stage status")
		}
		statuses[stage] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "inspection: iterate stage statuses")
	}
	return statuses, nil
}

// StampCompletion records the final result and completion time.
func (r *Repository) StampCompletion(ctx context.Context, tx pgx.Tx, inspectionID string, result Result, completedAt time.Time) error {
	if _, err := tx.Exec(ctx, `
		UPDATE inspections SET completed_at = $2, final_result = $3::stage_status WHERE id = $1
	`, inspectionID, completedAt, result); err != nil {
		return fault.Storagew(err, "inspection: stamp completion")
	}
	return nil
}

// ListForUnit returns all inspection attempts for an externally identified
// unit, oldest first.
func (r *Repository) ListForUnit(ctx context.Context, unitRef string) ([]Inspection, error) {
	const query = `
		SELECT i.id, i.unit_id, i.attempt_number, i.training_mode, i.started_at, i.completed_at, i.final_result::text
		FROM inspections i
		JOIN units u ON u.id = i.unit_id
		WHERE u.unit_id = $1
		ORDER BY i.attempt_number ASC
	`

	rows, err := r.pool.Query(ctx, query, unitRef)
	if err != nil {
		return nil, fault.Storagew(err, "inspection: list for unit")
	}
	defer rows.Close()

	out := make([]Inspection, 0, 4)
	for rows.Next() {
		var (
			ins         Inspection
			finalResult *string
		)
		if err := rows.Scan(&ins.ID, &ins.UnitPK, &ins.AttemptNumber, &ins.TrainingMode, &ins.StartedAt, &ins.CompletedAt, &finalResult); err != nil {
			return nil, fault.Storagew(err, "inspection: scan")
		}
		if finalResult != nil {
			res := Result(*finalResult)
			ins.FinalResult = &res
		}
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "inspection: iterate")
	}
	return out, nil
}
