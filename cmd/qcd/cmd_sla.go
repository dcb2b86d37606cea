package main

import (
	"github.com/spf13/cobra"

	"qcflow/sla"
)

var slaCmd = &cobra.Command{
	Use:   "sla",
	Short: "Report units breaching inspection deadlines",
	Args:  cobra.NoArgs,
	RunE:  runSLA,
}

func runSLA(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	monitor := sla.NewMonitor(sla.NewRepository(pool))
	report, err := monitor.Breaches(ctx, cfg.UrgentSLAHours, cfg.StuckSLAHours)
	if err != nil {
		return err
	}

	if report.UrgentCount > 0 {
		log.WithField("count", report.UrgentCount).Warn("urgent SLA breaches")
	}
	return printJSON(report)
}
