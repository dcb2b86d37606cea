package metrics

import (
	"context"
	"sort"
	"time"

	"qcflow/fault"
	"qcflow/flag"
)

// StatStore is the read surface the aggregator needs.
type StatStore interface {
	CompletionStats(ctx context.Context, since time.Time) (CompletionStats, error)
	FirstAttemptStats(ctx context.Context, since time.Time) (FirstAttemptStats, error)
	AvgCycleMinutes(ctx context.Context, since time.Time) (float64, bool, error)
	StageAvgDurations(ctx context.Context, since time.Time) ([]StageDuration, error)
	UnitStatusCounts(ctx context.Context) (map[string]int, error)
	OpenReworkCount(ctx context.Context) (int, error)
	ActiveFlagCount(ctx context.Context) (int, error)
	KeyStats(ctx context.Context, dimension string, since time.Time) ([]KeyStat, error)
}

// Dashboard is the headline view over a rolling window. Rates are
// fractions in [0, 1]; BottleneckStage is the stage with the highest mean
// duration, or "none" when no stage result in the window carries both
// timestamps.
type Dashboard struct {
	WindowDays          int
	PassRate            float64
	FirstPassYield      float64
	AvgCycleTimeMinutes float64
	BottleneckStage     string
}

// Overview is a point-in-time census independent of any window.
type Overview struct {
	UnitsByStatus     map[string]int
	OpenReworkTickets int
	ActiveFlags       int
}

// KeyRate is one grouping key's defect rate over a window.
type KeyRate struct {
	Key         string
	SampleSize  int
	DefectCount int
	DefectRate  float64
}

// Aggregator derives reporting numbers from raw counts. It never writes.
type Aggregator struct {
	repo StatStore
	now  func() time.Time
}

func NewAggregator(repo StatStore) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Dashboard computes the headline metrics over the trailing window. Pass
// rate is taken over inspections started in the window, finalized or not.
// Training-mode inspections never count toward pass rate or first pass
// yield. An empty window yields zeroes, never an error.
func (a *Aggregator) Dashboard(ctx context.Context, windowDays int) (Dashboard, error) {
	if windowDays <= 0 {
		return Dashboard{}, fault.Validationf("metrics: window_days must be positive")
	}
	since := a.now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	completion, err := a.repo.CompletionStats(ctx, since)
	if err != nil {
		return Dashboard{}, err
	}
	firstAttempts, err := a.repo.FirstAttemptStats(ctx, since)
	if err != nil {
		return Dashboard{}, err
	}
	avgMinutes, _, err := a.repo.AvgCycleMinutes(ctx, since)
	if err != nil {
		return Dashboard{}, err
	}
	durations, err := a.repo.StageAvgDurations(ctx, since)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		WindowDays:          windowDays,
		AvgCycleTimeMinutes: avgMinutes,
		BottleneckStage:     "none",
	}
	if completion.Started > 0 {
		d.PassRate = float64(completion.Passed) / float64(completion.Started)
	}
	if firstAttempts.Total > 0 {
		d.FirstPassYield = float64(firstAttempts.CleanPasses) / float64(firstAttempts.Total)
	}
	if len(durations) > 0 {
		d.BottleneckStage = durations[0].Stage
	}
	return d, nil
}

// CountsOverview reports the current census of units, open rework tickets
// and active quality flags.
func (a *Aggregator) CountsOverview(ctx context.Context) (Overview, error) {
	units, err := a.repo.UnitStatusCounts(ctx)
	if err != nil {
		return Overview{}, err
	}
	rework, err := a.repo.OpenReworkCount(ctx)
	if err != nil {
		return Overview{}, err
	}
	flags, err := a.repo.ActiveFlagCount(ctx)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		UnitsByStatus:     units,
		OpenReworkTickets: rework,
		ActiveFlags:       flags,
	}, nil
}

// DefectRateByKey ranks frame models or labs by defect rate over the
// trailing window, worst first. Keys below minSample are dropped rather
// than reported with noisy rates.
func (a *Aggregator) DefectRateByKey(ctx context.Context, flagType flag.Type, windowDays, minSample int) ([]KeyRate, error) {
	if flagType != flag.TypeModel && flagType != flag.TypeLab {
		return nil, fault.Validationf("metrics: unknown flag type %q", flagType)
	}
	if windowDays <= 0 {
		return nil, fault.Validationf("metrics: window_days must be positive")
	}
	if minSample < 1 {
		minSample = 1
	}
	since := a.now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	stats, err := a.repo.KeyStats(ctx, string(flagType), since)
	if err != nil {
		return nil, err
	}

	rates := make([]KeyRate, 0, len(stats))
	for _, s := range stats {
		if s.SampleSize < minSample {
			continue
		}
		rates = append(rates, KeyRate{
			Key:         s.Key,
			SampleSize:  s.SampleSize,
			DefectCount: s.DefectCount,
			DefectRate:  float64(s.DefectCount) / float64(s.SampleSize),
		})
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].DefectRate != rates[j].DefectRate {
			return rates[i].DefectRate > rates[j].DefectRate
		}
		return rates[i].Key < rates[j].Key
	})
	return rates, nil
}
