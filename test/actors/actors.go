package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"qcflow/fault"
	"qcflow/flag"
	"qcflow/inspection"
	"qcflow/rework"
	"qcflow/sla"
	"qcflow/unit"
)

var stages = []string{"INTAKE", "COSMETIC", "FIT", "DECISION"}

func newInspectionService(pool *pgxpool.Pool) *inspection.Service {
	return inspection.NewService(pool, inspection.NewRepository(pool), unit.NewRepository(pool), stages)
}

// Inspector repeatedly opens inspection attempts against a shared set of
// unit references and walks each attempt to a clean finish. Conflicts from
// concurrent attempts on the same unit are expected under contention.
func Inspector(ctx context.Context, pool *pgxpool.Pool, unitRefs []string, stop <-chan struct{}) error {
	svc := newInspectionService(pool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		ref := unitRefs[rand.Intn(len(unitRefs))]
		started, err := svc.StartInspection(ctx, inspection.StartParams{
			UnitRef:    ref,
			FrameModel: fmt.Sprintf("Model-%d", rand.Intn(3)),
			Lab:        fmt.Sprintf("Lab-%d", rand.Intn(2)),
		})
		if err != nil {
			if fault.IsConflict(err) {
				time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
				continue
			}
			return fmt.Errorf("inspector start: %w", err)
		}

		for _, stage := range stages {
			_, err := svc.CompleteStage(ctx, inspection.CompleteStageParams{
				InspectionID: started.InspectionID,
				Stage:        stage,
				Status:       inspection.ResultPass,
			})
			if err != nil && !fault.IsConflict(err) && !fault.IsNotFound(err) {
				return fmt.Errorf("inspector stage %s: %w", stage, err)
			}
		}
		if _, err := svc.FinalizeInspection(ctx, started.InspectionID); err != nil {
			if !fault.IsConflict(err) && !fault.IsNotFound(err) {
				return fmt.Errorf("inspector finalize: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Failer injects stage failures of random severity into open inspections,
// racing the Inspector over the same units.
func Failer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	svc := newInspectionService(pool)
	severities := []inspection.Severity{inspection.SeverityLow, inspection.SeverityMed, inspection.SeverityHigh}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var inspectionID string
		err := pool.QueryRow(ctx, `
			SELECT id FROM inspections WHERE completed_at IS NULL
			ORDER BY random() LIMIT 1
		`).Scan(&inspectionID)
		if err == nil {
			_, err = svc.CompleteStage(ctx, inspection.CompleteStageParams{
				InspectionID: inspectionID,
				Stage:        stages[1+rand.Intn(len(stages)-1)],
				Status:       inspection.ResultFail,
				Defect: &inspection.DefectInput{
					Category:   "COSMETIC",
					ReasonCode: "SCRATCHED_LENS",
					Severity:   severities[rand.Intn(len(severities))],
				},
			})
			if err != nil && !fault.IsConflict(err) && !fault.IsNotFound(err) {
				return fmt.Errorf("failer stage: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// ReworkAdvancer walks open tickets forward through their lifecycle.
// Conflicts from concurrent advances are expected.
func ReworkAdvancer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	svc := rework.NewService(rework.NewRepository(pool))
	next := map[rework.Status]rework.Status{
		rework.StatusOpen:       rework.StatusInProgress,
		rework.StatusInProgress: rework.StatusDone,
		rework.StatusDone:       rework.StatusClosed,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var ticketID string
		var status rework.Status
		err := pool.QueryRow(ctx, `
			SELECT id, status::text FROM rework_tickets
			WHERE status <> 'CLOSED' ORDER BY random() LIMIT 1
		`).Scan(&ticketID, &status)
		if err == nil {
			if target, ok := next[status]; ok {
				if _, err := svc.Advance(ctx, ticketID, target); err != nil {
					if !fault.IsConflict(err) && !fault.IsNotFound(err) {
						return fmt.Errorf("advance ticket: %w", err)
					}
				}
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// FlagRunner re-runs the flag engine with aggressive parameters so flags
// churn while inspections are still being written.
func FlagRunner(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	engine := flag.NewEngine(flag.NewRepository(pool), nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if _, err := engine.Refresh(ctx, flag.Params{WindowDays: 1, MinSample: 5, Threshold: 0.10}); err != nil {
			return fmt.Errorf("flag refresh: %w", err)
		}
		time.Sleep(time.Duration(200+rand.Intn(200)) * time.Millisecond)
	}
}

// SLAWatcher polls breach reports; the scans are plain reads and must
// never error regardless of what the writers are doing.
func SLAWatcher(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	monitor := sla.NewMonitor(sla.NewRepository(pool))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if _, err := monitor.Breaches(ctx, 1, 1); err != nil {
			return fmt.Errorf("sla breaches: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}
