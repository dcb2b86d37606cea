package flag

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"qcflow/fault"
)

// FlagStore defines the persistence the engine needs.
type FlagStore interface {
	GroupStats(ctx context.Context, flagType Type, windowStart, windowEnd time.Time) ([]GroupStat, error)
	UpsertActive(ctx context.Context, f Flag) error
	DeactivateKey(ctx context.Context, flagType Type, key string, resolvedAt time.Time) error
	DeactivateStale(ctx context.Context, cutoff, resolvedAt time.Time) (int64, error)
	ListActive(ctx context.Context) ([]Flag, error)
}

// Engine raises and resolves quality flags over a rolling window. A run is
// idempotent: re-running with unchanged inputs rewrites the same rows with
// the same values, and a run interrupted midway leaves each group either
// fully applied or untouched.
type Engine struct {
	repo FlagStore
	log  *logrus.Logger
	now  func() time.Time
}

func NewEngine(repo FlagStore, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Refresh evaluates every grouping key for every flag type and returns the
// flags active after the run. Groups below the minimum sample are skipped
// entirely, so no flag is created or modified on thin evidence. Empty input
// yields an empty result, never an error.
func (e *Engine) Refresh(ctx context.Context, params Params) ([]Flag, error) {
	if params.WindowDays <= 0 {
		return nil, fault.Validationf("flag: window_days must be positive")
	}
	if params.MinSample <= 0 {
		return nil, fault.Validationf("flag: min_sample must be positive")
	}
	if params.Threshold <= 0 || params.Threshold > 1 {
		return nil, fault.Validationf("flag: threshold must be a fraction in (0, 1]")
	}

	now := e.now()
	windowStart := now.Add(-time.Duration(params.WindowDays) * 24 * time.Hour)
	windowEnd := now

	stale, err := e.repo.DeactivateStale(ctx, windowStart, now)
	if err != nil {
		return nil, err
	}
	if stale > 0 {
		e.log.WithField("count", stale).Info("resolved stale quality flags")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, flagType := range Types {
		ft := flagType
		g.Go(func() error {
			return e.refreshType(gctx, ft, windowStart, windowEnd, params)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return e.repo.ListActive(ctx)
}

func (e *Engine) refreshType(ctx context.Context, flagType Type, windowStart, windowEnd time.Time, params Params) error {
	stats, err := e.repo.GroupStats(ctx, flagType, windowStart, windowEnd)
	if err != nil {
		return err
	}

	for _, group := range stats {
		if group.SampleSize < params.MinSample {
			continue
		}

		rate := float64(group.DefectCount) / float64(group.SampleSize)
		if rate >= params.Threshold {
			err = e.repo.UpsertActive(ctx, Flag{
				Type:        flagType,
				Key:         group.Key,
				WindowStart: windowStart,
				WindowEnd:   windowEnd,
				SampleSize:  group.SampleSize,
				DefectRate:  rate,
				Threshold:   params.Threshold,
			})
			if err != nil {
				return err
			}
			e.log.WithFields(logrus.Fields{
				"flag_type":   flagType,
				"flag_key":    group.Key,
				"sample_size": group.SampleSize,
				"defect_rate": rate,
			}).Warn("quality flag active")
			continue
		}

		if err := e.repo.DeactivateKey(ctx, flagType, group.Key, windowEnd); err != nil {
			return err
		}
	}
	return nil
}
