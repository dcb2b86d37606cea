package sla

import (
	"context"
	"time"

	"qcflow/fault"
	"qcflow/unit"
)

// BreachStore is the read surface the monitor needs.
type BreachStore interface {
	UrgentBreaches(ctx context.Context, cutoff time.Time) ([]unit.Unit, error)
	StuckUnits(ctx context.Context, cutoff time.Time) ([]unit.Unit, error)
}

// Report is one scan's result. Counts always match the lengths of the
// matching unit slices.
type Report struct {
	UrgentCount int
	StuckCount  int
	Urgent      []unit.Unit
	Stuck       []unit.Unit
}

// Monitor evaluates the two service-level deadlines against the current
// clock. It holds no state between scans.
type Monitor struct {
	repo BreachStore
	now  func() time.Time
}

func NewMonitor(repo BreachStore) *Monitor {
	return &Monitor{repo: repo, now: time.Now}
}

func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Breaches runs both scans with cutoffs derived from the given deadlines.
// An empty database yields a zero-count report, never an error.
func (m *Monitor) Breaches(ctx context.Context, urgentHours, stuckHours int) (Report, error) {
	if urgentHours <= 0 {
		return Report{}, fault.Validationf("sla: urgent_hours must be positive")
	}
	if stuckHours <= 0 {
		return Report{}, fault.Validationf("sla: stuck_hours must be positive")
	}

	now := m.now()

	urgent, err := m.repo.UrgentBreaches(ctx, now.Add(-time.Duration(urgentHours)*time.Hour))
	if err != nil {
		return Report{}, err
	}
	stuck, err := m.repo.StuckUnits(ctx, now.Add(-time.Duration(stuckHours)*time.Hour))
	if err != nil {
		return Report{}, err
	}

	return Report{
		UrgentCount: len(urgent),
		StuckCount:  len(stuck),
		Urgent:      urgent,
		Stuck:       stuck,
	}, nil
}
