package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
)

// CompletionStats counts inspections started in the window. Passed covers
// the subset already finalized with a PASS result.
type CompletionStats struct {
	Started int
	Passed  int
}

// FirstAttemptStats cover attempt-number-1 inspections only. CleanPasses
// counts first attempts that passed without spawning a rework ticket.
type FirstAttemptStats struct {
	Total       int
	CleanPasses int
}

// StageDuration is the mean wall-clock seconds a stage takes, over stage
// results carrying both timestamps.
type StageDuration struct {
	Stage      string
	AvgSeconds float64
}

// KeyStat mirrors the flag engine's evidence rows: completed inspections
// and distinct defective units per frame model or lab.
type KeyStat struct {
	Key         string
	SampleSize  int
	DefectCount int
}

// Repository runs the aggregate reads. All derived math lives in the
// aggregator; this layer only counts.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CompletionStats counts non-training inspections started since the
// cutoff, and how many of those have finalized with a PASS. Open attempts
// stay in the denominator.
func (r *Repository) CompletionStats(ctx context.Context, since time.Time) (CompletionStats, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE final_result = 'PASS')
		FROM inspections
		WHERE started_at >= $1
		  AND NOT training_mode
	`
	var stats CompletionStats
	if err := r.pool.QueryRow(ctx, query, since).Scan(&stats.Started, &stats.Passed); err != nil {
		return CompletionStats{}, fault.Storagew(err, "metrics: completion stats")
	}
	return stats, nil
}

// FirstAttemptStats counts completed first attempts since the cutoff and
// how many of them passed with no rework ticket tied to the attempt.
func (r *Repository) FirstAttemptStats(ctx context.Context, since time.Time) (FirstAttemptStats, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (
		           WHERE i.final_result = 'PASS'
		             AND NOT EXISTS (
		                 SELECT 1 FROM rework_tickets rt WHERE rt.inspection_id = i.id
		             )
		       )
		FROM inspections i
		WHERE i.attempt_number = 1
		  AND i.completed_at >= $1
		  AND NOT i.training_mode
	`
	var stats FirstAttemptStats
	if err := r.pool.QueryRow(ctx, query, since).Scan(&stats.Total, &stats.CleanPasses); err != nil {
		return FirstAttemptStats{}, fault.Storagew(err, "metrics: first attempt stats")
	}
	return stats, nil
}

// AvgCycleMinutes averages started-to-completed duration in minutes over
// inspections completed since the cutoff. The bool reports whether any
// completed inspection existed to average over.
func (r *Repository) AvgCycleMinutes(ctx context.Context, since time.Time) (float64, bool, error) {
	const query = `
		SELECT AVG(EXTRACT(EPOCH FROM completed_at - started_at)) / 60.0
		FROM inspections
		WHERE completed_at >= $1
	`
	var avg *float64
	if err := r.pool.QueryRow(ctx, query, since).Scan(&avg); err != nil {
		return 0, false, fault.Storagew(err, "metrics: avg cycle time")
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

// StageAvgDurations returns the mean started-to-completed seconds per
// stage, slowest first, over stage results started since the cutoff.
// Results still missing a completion timestamp are skipped.
func (r *Repository) StageAvgDurations(ctx context.Context, since time.Time) ([]StageDuration, error) {
	const query = `
		SELECT stage, AVG(EXTRACT(EPOCH FROM completed_at - started_at))::double precision
		FROM stage_results
		WHERE completed_at IS NOT NULL
		  AND started_at >= $1
		GROUP BY stage
		ORDER BY 2 DESC, stage ASC
	`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fault.Storagew(err, "metrics: stage durations")
	}
	defer rows.Close()

	durations := make([]StageDuration, 0, 4)
	for rows.Next() {
		var d StageDuration
		if err := rows.Scan(&d.Stage, &d.AvgSeconds); err != nil {
			return nil, fault.Storagew(err, "metrics: stage durations")
		}
		durations = append(durations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "metrics: stage durations")
	}
	return durations, nil
}

// UnitStatusCounts tallies units per lifecycle status.
func (r *Repository) UnitStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status::text, COUNT(*) FROM units GROUP BY status`)
	if err != nil {
		return nil, fault.Storagew(err, "metrics: unit status counts")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fault.Storagew(err, "metrics: unit status counts")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "metrics: unit status counts")
	}
	return counts, nil
}

// OpenReworkCount counts rework tickets not yet DONE or CLOSED.
func (r *Repository) OpenReworkCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rework_tickets WHERE status IN ('OPEN', 'IN_PROGRESS')
	`).Scan(&n)
	if err != nil {
		return 0, fault.Storagew(err, "metrics: open rework count")
	}
	return n, nil
}

// ActiveFlagCount counts currently active quality flags.
func (r *Repository) ActiveFlagCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quality_flags WHERE is_active`).Scan(&n)
	if err != nil {
		return 0, fault.Storagew(err, "metrics: active flag count")
	}
	return n, nil
}

// KeyStats groups completed inspections since the cutoff by the unit's
// frame model or lab, counting distinct defective units per key. Blank
// keys are excluded.
func (r *Repository) KeyStats(ctx context.Context, dimension string, since time.Time) ([]KeyStat, error) {
	const query = `
		SELECT CASE WHEN $1 = 'MODEL' THEN u.frame_model ELSE u.lab END AS grouping_key,
		       COUNT(i.id) AS sample_size,
		       COUNT(DISTINCT u.id) FILTER (
		           WHERE EXISTS (
		               SELECT 1
		               FROM stage_results sr
		               JOIN defects d ON d.stage_result_id = sr.id
		               WHERE sr.inspection_id = i.id
		                 AND d.created_at >= $2
		           )
		       ) AS defect_count
		FROM inspections i
		JOIN units u ON u.id = i.unit_id
		WHERE i.completed_at >= $2
		  AND CASE WHEN $1 = 'MODEL' THEN u.frame_model ELSE u.lab END <> ''
		GROUP BY 1
	`
	rows, err := r.pool.Query(ctx, query, dimension, since)
	if err != nil {
		return nil, fault.Storagew(err, "metrics: key stats")
	}
	defer rows.Close()

	stats := make([]KeyStat, 0, 8)
	for rows.Next() {
		var s KeyStat
		if err := rows.Scan(&s.Key, &s.SampleSize, &s.DefectCount); err != nil {
			return nil, fault.Storagew(err, "metrics: key stats")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "metrics: key stats")
	}
	return stats, nil
}
