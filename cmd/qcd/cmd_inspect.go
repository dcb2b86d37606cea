package main

import (
	"strings"

	"github.com/spf13/cobra"

	"qcflow/inspection"
	"qcflow/unit"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Drive a unit through the inspection pipeline",
}

var (
	inspectFrameModel string
	inspectLab        string
	inspectOrderID    string
	inspectPriority   string
	inspectTraining   bool

	stageNotes      string
	defectCategory  string
	defectReason    string
	defectSeverity  string
)

var inspectStartCmd = &cobra.Command{
	Use:   "start [unit-id]",
	Short: "Open the next inspection attempt for a unit",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectStart,
}

var inspectStageCmd = &cobra.Command{
	Use:   "stage [inspection-id] [stage] [PASS|FAIL]",
	Short: "Record a stage result",
	Args:  cobra.ExactArgs(3),
	RunE:  runInspectStage,
}

var inspectFinalizeCmd = &cobra.Command{
	Use:   "finalize [inspection-id]",
	Short: "Close an attempt and promote the unit on a full pass",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectFinalize,
}

func init() {
	inspectStartCmd.Flags().StringVar(&inspectFrameModel, "model", "", "frame model")
	inspectStartCmd.Flags().StringVar(&inspectLab, "lab", "", "lab name")
	inspectStartCmd.Flags().StringVar(&inspectOrderID, "order", "", "order reference")
	inspectStartCmd.Flags().StringVar(&inspectPriority, "priority", "", "NORMAL or URGENT")
	inspectStartCmd.Flags().BoolVar(&inspectTraining, "training", false, "training run, excluded from quality metrics")

	inspectStageCmd.Flags().StringVar(&stageNotes, "notes", "", "inspector notes")
	inspectStageCmd.Flags().StringVar(&defectCategory, "category", "", "defect category (FAIL only)")
	inspectStageCmd.Flags().StringVar(&defectReason, "reason", "", "defect reason code (FAIL only)")
	inspectStageCmd.Flags().StringVar(&defectSeverity, "severity", "LOW", "defect severity LOW|MED|HIGH (FAIL only)")

	inspectCmd.AddCommand(inspectStartCmd, inspectStageCmd, inspectFinalizeCmd)
}

func runInspectStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := inspection.NewService(pool, inspection.NewRepository(pool), unit.NewRepository(pool), cfg.RequiredStages)

	params := inspection.StartParams{
		UnitRef:      args[0],
		FrameModel:   inspectFrameModel,
		Lab:          inspectLab,
		Priority:     unit.Priority(strings.ToUpper(inspectPriority)),
		TrainingMode: inspectTraining,
	}
	if inspectOrderID != "" {
		params.OrderID = &inspectOrderID
	}

	res, err := svc.StartInspection(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runInspectStage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := inspection.NewService(pool, inspection.NewRepository(pool), unit.NewRepository(pool), cfg.RequiredStages)

	params := inspection.CompleteStageParams{
		InspectionID: args[0],
		Stage:        strings.ToUpper(args[1]),
		Status:       inspection.Result(strings.ToUpper(args[2])),
		Notes:        stageNotes,
	}
	if params.Status == inspection.ResultFail {
		params.Defect = &inspection.DefectInput{
			Category:   defectCategory,
			ReasonCode: defectReason,
			Severity:   inspection.Severity(strings.ToUpper(defectSeverity)),
		}
	}

	res, err := svc.CompleteStage(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runInspectFinalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := inspection.NewService(pool, inspection.NewRepository(pool), unit.NewRepository(pool), cfg.RequiredStages)

	res, err := svc.FinalizeInspection(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(res)
}
