package inspection

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/unit"
)

// TestInspectionLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and walks two units end to end through the service path.
func TestInspectionLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "units") || !tableExists(ctx, t, pool, "inspections") || !tableExists(ctx, t, pool, "defects") {
		t.Skip("database schema missing; run: qcd migrate up")
	}

	stages := []string{"INTAKE", "COSMETIC", "FIT", "DECISION"}
	svc := NewService(pool, NewRepository(pool), unit.NewRepository(pool), stages)

	cleanRef := fmt.Sprintf("ITEST-CLEAN-%d", time.Now().UnixNano())
	failRef := fmt.Sprintf("ITEST-FAIL-%d", time.Now().UnixNano())

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM units WHERE unit_id IN ($1, $2)`, cleanRef, failRef)
	})

	// Clean unit: all stages pass, unit lands STORE_READY.
	started, err := svc.StartInspection(ctx, StartParams{UnitRef: cleanRef, FrameModel: "Aviator", Lab: "Lab North"})
	if err != nil {
		t.Fatalf("start inspection: %v", err)
	}
	if started.AttemptNumber != 1 {
		t.Fatalf("expected attempt 1, got %d", started.AttemptNumber)
	}
	if !started.UnitCreated {
		t.Fatalf("expected a fresh unit for %s", cleanRef)
	}
	for _, stage := range stages {
		if _, err := svc.CompleteStage(ctx, CompleteStageParams{
			InspectionID: started.InspectionID,
			Stage:        stage,
			Status:       ResultPass,
		}); err != nil {
			t.Fatalf("complete stage %s: %v", stage, err)
		}
	}
	final, err := svc.FinalizeInspection(ctx, started.InspectionID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.FinalResult != ResultPass {
		t.Fatalf("expected final PASS, got %s", final.FinalResult)
	}
	if final.UnitStatus != unit.StatusStoreReady {
		t.Fatalf("expected STORE_READY, got %s", final.UnitStatus)
	}

	// Failing unit: MED defect opens a rework ticket and escalates.
	failStarted, err := svc.StartInspection(ctx, StartParams{UnitRef: failRef, FrameModel: "Round", Lab: "Lab South"})
	if err != nil {
		t.Fatalf("start failing inspection: %v", err)
	}
	res, err := svc.CompleteStage(ctx, CompleteStageParams{
		InspectionID: failStarted.InspectionID,
		Stage:        "COSMETIC",
		Status:       ResultFail,
		Defect: &DefectInput{
			Category:   "COSMETIC",
			ReasonCode: "SCRATCHED_LENS",
			Severity:   SeverityMed,
		},
	})
	if err != nil {
		t.Fatalf("fail stage: %v", err)
	}
	if res.UnitStatus != unit.StatusRework {
		t.Fatalf("expected REWORK after MED fail, got %s", res.UnitStatus)
	}

	var tickets int
	if err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rework_tickets rt
		JOIN units u ON u.id = rt.unit_id
		WHERE u.unit_id = $1 AND rt.status = 'OPEN'
	`, failRef).Scan(&tickets); err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if tickets != 1 {
		t.Fatalf("expected exactly one open ticket, got %d", tickets)
	}

	// Re-submitting the stage as PASS clears the recorded defects.
	if _, err := svc.CompleteStage(ctx, CompleteStageParams{
		InspectionID: failStarted.InspectionID,
		Stage:        "COSMETIC",
		Status:       ResultPass,
	}); err != nil {
		t.Fatalf("resubmit stage: %v", err)
	}
	var defects int
	if err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM defects d
		JOIN stage_results sr ON sr.id = d.stage_result_id
		WHERE sr.inspection_id = $1 AND sr.stage = 'COSMETIC'
	`, failStarted.InspectionID).Scan(&defects); err != nil {
		t.Fatalf("count defects: %v", err)
	}
	if defects != 0 {
		t.Fatalf("expected PASS resubmission to clear defects, found %d", defects)
	}

	// With the failing stage re-submitted as passing, a full-pass finalize
	// recovers the unit straight from REWORK to STORE_READY.
	for _, stage := range []string{"INTAKE", "FIT", "DECISION"} {
		if _, err := svc.CompleteStage(ctx, CompleteStageParams{
			InspectionID: failStarted.InspectionID,
			Stage:        stage,
			Status:       ResultPass,
		}); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}
	recovered, err := svc.FinalizeInspection(ctx, failStarted.InspectionID)
	if err != nil {
		t.Fatalf("finalize after resubmission: %v", err)
	}
	if recovered.FinalResult != ResultPass {
		t.Fatalf("expected PASS after resubmission, got %s", recovered.FinalResult)
	}
	if recovered.UnitStatus != unit.StatusStoreReady {
		t.Fatalf("expected STORE_READY after full-pass finalize from REWORK, got %s", recovered.UnitStatus)
	}

	// A second start on the same unit opens attempt 2.
	second, err := svc.StartInspection(ctx, StartParams{UnitRef: failRef})
	if err != nil {
		t.Fatalf("restart inspection: %v", err)
	}
	if second.AttemptNumber != 2 {
		t.Fatalf("expected attempt 2, got %d", second.AttemptNumber)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_name = $1
	)`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
