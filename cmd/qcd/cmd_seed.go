package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"qcflow/config"
	"qcflow/inspection"
	"qcflow/unit"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo stores and inspected units",
	Long: `Seeds a handful of stores and walks generated units through the
inspection pipeline via the normal service path, so the data respects
every lifecycle rule. Every third unit fails its cosmetic stage and every
tenth gets quarantined. Intended for local development only.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "units", 30, "number of units to generate")
}

var seedStores = []struct{ name, code string }{
	{"Downtown Optical", "DT-01"},
	{"Harbor Eyewear", "HB-02"},
	{"Airport Kiosk", "AP-03"},
}

var seedModels = []string{"Aviator", "Wayfarer", "Round", "Clubmaster"}
var seedLabs = []string{"Lab North", "Lab South"}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := seedStoreRows(ctx, pool); err != nil {
		return err
	}

	svc := inspection.NewService(pool, inspection.NewRepository(pool), unit.NewRepository(pool), cfg.RequiredStages)
	for i := 1; i <= seedCount; i++ {
		if err := seedUnit(ctx, svc, cfg, i); err != nil {
			return fmt.Errorf("seed unit %d: %w", i, err)
		}
	}

	log.WithField("units", seedCount).Info("seed complete")
	return nil
}

func seedStoreRows(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range seedStores {
		_, err := pool.Exec(ctx, `
			INSERT INTO stores (name, code) VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, s.name, s.code)
		if err != nil {
			return fmt.Errorf("seed store %s: %w", s.code, err)
		}
	}
	return nil
}

func seedUnit(ctx context.Context, svc *inspection.Service, cfg config.Config, i int) error {
	priority := unit.PriorityNormal
	if i%5 == 0 {
		priority = unit.PriorityUrgent
	}

	started, err := svc.StartInspection(ctx, inspection.StartParams{
		UnitRef:    fmt.Sprintf("SEED-%04d", i),
		FrameModel: seedModels[i%len(seedModels)],
		Lab:        seedLabs[i%len(seedLabs)],
		Priority:   priority,
	})
	if err != nil {
		return err
	}

	for _, stage := range cfg.RequiredStages {
		params := inspection.CompleteStageParams{
			InspectionID: started.InspectionID,
			Stage:        stage,
			Status:       inspection.ResultPass,
		}
		if stage == "COSMETIC" && i%3 == 0 {
			severity := inspection.SeverityMed
			if i%10 == 0 {
				severity = inspection.SeverityHigh
			}
			params.Status = inspection.ResultFail
			params.Defect = &inspection.DefectInput{
				Category:   "COSMETIC",
				ReasonCode: "SCRATCHED_LENS",
				Severity:   severity,
			}
		}
		if _, err := svc.CompleteStage(ctx, params); err != nil {
			return err
		}
	}

	_, err = svc.FinalizeInspection(ctx, started.InspectionID)
	return err
}
