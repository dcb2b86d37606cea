// Package config resolves the tunable numeric policy for the QC engines.
// Every knob has a documented default; values are read once from the
// environment and passed explicitly into each engine invocation, so there
// is no process-wide mutable state.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Defaults for the flag engine and SLA monitor.
const (
	DefaultWindowDays      = 7
	DefaultMinSample       = 20
	DefaultDefectThreshold = 0.10
	DefaultUrgentSLAHours  = 6
	DefaultStuckSLAHours   = 12
)

// DefaultRequiredStages is the ordered stage pipeline a unit must clear
// before it can become store-ready.
var DefaultRequiredStages = []string{"INTAKE", "COSMETIC", "FIT", "DECISION"}

// Config carries the resolved policy values.
type Config struct {
	DatabaseURL     string
	WindowDays      int
	MinSample       int
	DefectThreshold float64
	UrgentSLAHours  int
	StuckSLAHours   int
	RequiredStages  []string
}

// Default returns the documented defaults with no environment applied.
func Default() Config {
	return Config{
		WindowDays:      DefaultWindowDays,
		MinSample:       DefaultMinSample,
		DefectThreshold: DefaultDefectThreshold,
		UrgentSLAHours:  DefaultUrgentSLAHours,
		StuckSLAHours:   DefaultStuckSLAHours,
		RequiredStages:  append([]string(nil), DefaultRequiredStages...),
	}
}

// FromEnv resolves configuration from environment variables, falling back
// to the defaults for anything unset or unparsable.
//
//	DATABASE_URL         postgres connection string
//	QC_WINDOW_DAYS       lookback window in days
//	QC_MIN_SAMPLE        minimum group size before a flag may be raised
//	QC_DEFECT_THRESHOLD  defect-rate threshold as a fraction (0.10 = 10%)
//	QC_URGENT_SLA_HOURS  urgent-priority SLA in hours
//	QC_STUCK_SLA_HOURS   any-priority stuck SLA in hours
//	QC_REQUIRED_STAGES   comma-separated stage names
func FromEnv() Config {
	cfg := Default()
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.WindowDays = envInt("QC_WINDOW_DAYS", cfg.WindowDays)
	cfg.MinSample = envInt("QC_MIN_SAMPLE", cfg.MinSample)
	cfg.DefectThreshold = envFloat("QC_DEFECT_THRESHOLD", cfg.DefectThreshold)
	cfg.UrgentSLAHours = envInt("QC_URGENT_SLA_HOURS", cfg.UrgentSLAHours)
	cfg.StuckSLAHours = envInt("QC_STUCK_SLA_HOURS", cfg.StuckSLAHours)
	if stages := envStages("QC_REQUIRED_STAGES"); len(stages) > 0 {
		cfg.RequiredStages = stages
	}
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envStages(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	stages := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			stages = append(stages, p)
		}
	}
	return stages
}
