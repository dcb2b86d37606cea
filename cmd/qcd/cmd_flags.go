package main

import (
	"github.com/spf13/cobra"

	"qcflow/flag"
)

var flagsCmd = &cobra.Command{
	Use:   "run-flags",
	Short: "Evaluate quality flags over the rolling window",
	Long: `Recomputes per-model and per-lab defect rates over the trailing
window and raises, refreshes or resolves quality flags. Safe to re-run;
an unchanged window rewrites the same flags.`,
	Args: cobra.NoArgs,
	RunE: runFlags,
}

func runFlags(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	engine := flag.NewEngine(flag.NewRepository(pool), log)
	active, err := engine.Refresh(ctx, flag.Params{
		WindowDays: cfg.WindowDays,
		MinSample:  cfg.MinSample,
		Threshold:  cfg.DefectThreshold,
	})
	if err != nil {
		return err
	}

	log.WithField("active", len(active)).Info("flag refresh complete")
	return printJSON(active)
}
