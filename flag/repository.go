package flag

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
)

const flagColumns = `id, flag_type::text, flag_key, window_start, window_end, sample_size, defect_rate, threshold, is_active, created_at, resolved_at`

// Repository persists quality flags and computes windowed group evidence.
// Every mutation is a single statement, so each group's outcome is
// independently atomic and a half-finished run leaves no inconsistency.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GroupStats aggregates the window evidence for one flag type. The sample
// is inspections completed inside the window grouped by the unit's key;
// the defect count is distinct units among that sample with at least one
// defect created inside the window. Keys left blank on the unit are not
// reported; an unnamed model cannot be flagged.
func (r *Repository) GroupStats(ctx context.Context, flagType Type, windowStart, windowEnd time.Time) ([]GroupStat, error) {
	const query = `
		SELECT CASE WHEN $1 = 'MODEL' THEN u.frame_model ELSE u.lab END AS grouping_key,
		       COUNT(i.id) AS sample_size,
		       COUNT(DISTINCT u.id) FILTER (
		           WHERE EXISTS (
		               SELECT 1
		               FROM defects d
		               JOIN stage_results sr ON sr.id = d.stage_result_id
		               WHERE sr.inspection_id = i.id
		                 AND d.created_at >= $2
		                 AND d.created_at <= $3
		           )
		       ) AS defect_count
		FROM inspections i
		JOIN units u ON u.id = i.unit_id
		WHERE i.completed_at IS NOT NULL
		  AND i.completed_at >= $2
		  AND i.completed_at <= $3
		  AND CASE WHEN $1 = 'MODEL' THEN u.frame_model ELSE u.lab END <> ''
		GROUP BY 1
	`

	rows, err := r.pool.Query(ctx, query, string(flagType), windowStart, windowEnd)
	if err != nil {
		return nil, fault.Storagew(err, "flag: group stats")
	}
	defer rows.Close()

	stats := make([]GroupStat, 0, 8)
	for rows.Next() {
		var g GroupStat
		if err := rows.Scan(&g.Key, &g.SampleSize, &g.DefectCount); err != nil {
			return nil, fault.Storagew(err, "flag: scan group")
		}
		stats = append(stats, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "flag: iterate groups")
	}
	return stats, nil
}

// UpsertActive creates or refreshes the flag row for its window key. The
// unique index on (flag_type, flag_key, window_start, window_end) makes
// re-runs with unchanged inputs a no-op on stored identity.
func (r *Repository) UpsertActive(ctx context.Context, f Flag) error {
	const query = `
		INSERT INTO quality_flags (flag_type, flag_key, window_start, window_end, sample_size, defect_rate, threshold, is_active)
		VALUES ($1::quality_flag_type, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (flag_type, flag_key, window_start, window_end) DO UPDATE
		SET sample_size = EXCLUDED.sample_size,
		    defect_rate = EXCLUDED.defect_rate,
		    threshold = EXCLUDED.threshold,
		    is_active = true,
		    resolved_at = NULL
	`

	if _, err := r.pool.Exec(ctx, query, f.Type, f.Key, f.WindowStart, f.WindowEnd, f.SampleSize, f.DefectRate, f.Threshold); err != nil {
		return fault.Storagew(err, "flag: upsert %s:%s", f.Type, f.Key)
	}
	return nil
}

// DeactivateKey resolves every active flag for a key whose rate no longer
// qualifies, current or prior window.
func (r *Repository) DeactivateKey(ctx context.Context, flagType Type, key string, resolvedAt time.Time) error {
	const query = `
		UPDATE quality_flags
		SET is_active = false, resolved_at = $3
		WHERE flag_type = $1::quality_flag_type AND flag_key = $2 AND is_active
	`

	if _, err := r.pool.Exec(ctx, query, flagType, key, resolvedAt); err != nil {
		return fault.Storagew(err, "flag: deactivate %s:%s", flagType, key)
	}
	return nil
}

// DeactivateStale resolves active flags whose window has fallen wholly
// behind the current lookback, so superseded windows cannot linger.
func (r *Repository) DeactivateStale(ctx context.Context, cutoff, resolvedAt time.Time) (int64, error) {
	const query = `
		UPDATE quality_flags
		SET is_active = false, resolved_at = $2
		WHERE is_active AND window_end < $1
	`

	tag, err := r.pool.Exec(ctx, query, cutoff, resolvedAt)
	if err != nil {
		return 0, fault.Storagew(err, "flag: deactivate stale")
	}
	return tag.RowsAffected(), nil
}

// ListActive returns all currently active flags, newest first.
func (r *Repository) ListActive(ctx context.Context) ([]Flag, error) {
	const query = `
		SELECT ` + flagColumns + `
		FROM quality_flags
		WHERE is_active
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fault.Storagew(err, "flag: list active")
	}
	defer rows.Close()

	flags := make([]Flag, 0, 8)
	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.ID, &f.Type, &f.Key, &f.WindowStart, &f.WindowEnd, &f.SampleSize, &f.DefectRate, &f.Threshold, &f.IsActive, &f.CreatedAt, &f.ResolvedAt); err != nil {
			return nil, fault.Storagew(err, "flag: scan")
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storagew(err, "flag: iterate")
	}
	return flags, nil
}
