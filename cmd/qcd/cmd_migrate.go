package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qcflow/config"
	"qcflow/db"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Apply or roll back schema migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "migrations directory")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	action := "up"
	if len(args) == 1 {
		action = args[0]
	}

	switch action {
	case "up":
		if err := db.MigrateUp(cfg.DatabaseURL, migrationsDir); err != nil {
			return err
		}
		log.Info("migrations applied")
	case "down":
		if err := db.MigrateDown(cfg.DatabaseURL, migrationsDir); err != nil {
			return err
		}
		log.Info("rolled back one migration")
	case "version":
		version, dirty, err := db.MigrateVersion(cfg.DatabaseURL, migrationsDir)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"version": version, "dirty": dirty})
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}
