package main

import (
	"github.com/spf13/cobra"

	"qcflow/flag"
	"qcflow/metrics"
)

var metricsByKey string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print dashboard metrics over the rolling window",
	Args:  cobra.NoArgs,
	RunE:  runMetrics,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsByKey, "by", "", "also rank defect rates by MODEL or LAB")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	agg := metrics.NewAggregator(metrics.NewRepository(pool))

	dashboard, err := agg.Dashboard(ctx, cfg.WindowDays)
	if err != nil {
		return err
	}
	overview, err := agg.CountsOverview(ctx)
	if err != nil {
		return err
	}

	out := map[string]any{
		"dashboard": dashboard,
		"overview":  overview,
	}
	if metricsByKey != "" {
		rates, err := agg.DefectRateByKey(ctx, flag.Type(metricsByKey), cfg.WindowDays, cfg.MinSample)
		if err != nil {
			return err
		}
		out["defect_rates"] = rates
	}
	return printJSON(out)
}
