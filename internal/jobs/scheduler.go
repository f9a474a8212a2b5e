// Package jobs runs periodic background work against the issue store.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/metrics"
)

const refreshTimeout = 10 * time.Second

// StatsSource reports stored record counts.
type StatsSource interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

type Scheduler struct {
	source StatsSource
	log    *zap.Logger
	cron   *cron.Cron
}

func NewScheduler(source StatsSource, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		source: source,
		log:    log.Named("jobs"),
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start refreshes the store gauges once, then on every tick of spec
// (six-field cron syntax, seconds first).
func (s *Scheduler) Start(spec string) error {
	if err := s.Schedule("stats refresh", spec, func(ctx context.Context) {
		_ = s.RefreshStats(ctx)
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	_ = s.RefreshStats(ctx)

	s.log.Info("cron scheduler started", zap.String("schedule", spec))
	s.cron.Start()
	return nil
}

// Schedule registers fn to run on spec. Jobs added before Start begin with
// the scheduler; later ones begin immediately.
func (s *Scheduler) Schedule(name, spec string, fn func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RefreshStats copies the store counts into the Prometheus gauges.
func (s *Scheduler) RefreshStats(ctx context.Context) error {
	st, err := s.source.Stats(ctx)
	if err != nil {
		metrics.StatsRefreshErrors.Inc()
		s.log.Warn("stats refresh failed", zap.Error(err))
		return err
	}

	metrics.ProjectsStored.Set(float64(st.Projects))
	metrics.IssuesStored.Set(float64(st.Issues))
	metrics.OpenIssuesStored.Set(float64(st.OpenIssues))

	s.log.Debug("stats refreshed",
		zap.Int64("projects", st.Projects),
		zap.Int64("issues", st.Issues),
		zap.Int64("open_issues", st.OpenIssues),
	)
	return nil
}
