package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"qcflow/config"
	"qcflow/db"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "qcd",
	Short: "Eyewear QC inspection tracker",
	Long: `qcd tracks physical units through the inspection pipeline, raises
quality flags over rolling defect-rate windows and reports SLA breaches.

Policy knobs are read from the environment (QC_WINDOW_DAYS, QC_MIN_SAMPLE,
QC_DEFECT_THRESHOLD, QC_URGENT_SLA_HOURS, QC_STUCK_SLA_HOURS,
QC_REQUIRED_STAGES) and the database from DATABASE_URL.`,
	SilenceUsage: true,
}

func main() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stderr)

	rootCmd.AddCommand(migrateCmd, flagsCmd, slaCmd, metricsCmd, seedCmd, inspectCmd, unitCmd, reworkCmd, storesCmd)
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

// openPool resolves config from the environment and connects.
func openPool(ctx context.Context) (config.Config, *pgxpool.Pool, error) {
	cfg := config.FromEnv()
	if cfg.DatabaseURL == "" {
		return cfg, nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, pool, nil
}

// printJSON writes v to stdout for scripting; logs stay on stderr.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
