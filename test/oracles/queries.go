package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run against a live database while the
// actors are writing. Each query selects violating rows; an empty result
// means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_attempts_gapless",
			SQL: `SELECT unit_id, MAX(attempt_number) AS max_attempt, COUNT(*) AS attempts
                  FROM inspections
                  GROUP BY unit_id
                  HAVING MAX(attempt_number) <> COUNT(*) OR MIN(attempt_number) <> 1`,
		},
		{
			Name: "O2_fail_has_defect",
			SQL: `SELECT sr.id FROM stage_results sr
                  WHERE sr.status = 'FAIL'
                    AND NOT EXISTS (SELECT 1 FROM defects d WHERE d.stage_result_id = sr.id)`,
		},
		{
			Name: "O3_pass_has_no_defect",
			SQL: `SELECT sr.id FROM stage_results sr
                  WHERE sr.status = 'PASS'
                    AND EXISTS (SELECT 1 FROM defects d WHERE d.stage_result_id = sr.id)`,
		},
		{
			Name: "O4_completed_has_result",
			SQL: `SELECT id FROM inspections
                  WHERE (completed_at IS NULL) <> (final_result IS NULL)`,
		},
		{
			Name: "O5_store_ready_clean_finish",
			SQL: `SELECT u.id FROM units u
                  WHERE u.status = 'STORE_READY'
                    AND NOT EXISTS (
                        SELECT 1 FROM inspections i
                        WHERE i.unit_id = u.id AND i.final_result = 'PASS'
                    )`,
		},
		{
			Name: "O6_one_stage_result_per_stage",
			SQL: `SELECT inspection_id, stage, COUNT(*) FROM stage_results
                  GROUP BY inspection_id, stage HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_active_flag_not_resolved",
			SQL: `SELECT id FROM quality_flags
                  WHERE (is_active AND resolved_at IS NOT NULL)
                     OR (NOT is_active AND resolved_at IS NULL)`,
		},
		{
			Name: "O8_flag_window_sane",
			SQL: `SELECT id FROM quality_flags WHERE window_end <= window_start`,
		},
		{
			Name: "O9_closed_ticket_final",
			SQL: `SELECT id FROM rework_tickets
                  WHERE status = 'CLOSED' AND updated_at < created_at`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
