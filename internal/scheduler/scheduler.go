package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/clock"
	obsmetrics "github.com/smallbiznis/realvest/internal/observability/metrics"
	portfoliodomain "github.com/smallbiznis/realvest/internal/portfolio/domain"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type propertyRecalculator interface {
	RecalculateStale(ctx context.Context, limit int) (int, error)
}

type portfolioRecalculator interface {
	RecalculateStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

type Params struct {
	fx.In

	Log          *zap.Logger
	PropertySvc  propertydomain.Service
	PortfolioSvc portfoliodomain.Service
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       Config  `optional:"true"`
	RunLock      RunLock `optional:"true"`
}

// Scheduler periodically recomputes derived projections that have gone stale.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	properties propertyRecalculator
	portfolios portfolioRecalculator
	runLock    RunLock
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PropertySvc == nil || p.PortfolioSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		properties: p.PropertySvc,
		portfolios: p.PortfolioSvc,
		runLock:    p.RunLock,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadlines are soft: the next tick picks up what is left
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job a single time. Job failures are joined so
// one failing job does not starve the others.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, ok := s.acquireRun(parent)
	if !ok {
		return nil
	}
	defer release()

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRecomputePropertyMetrics, s.RecomputePropertyMetricsJob},
		{JobRecomputePortfolios, s.RecomputePortfoliosJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RecomputePropertyMetricsJob refreshes investment metrics of properties whose
// listing changed after their metrics were computed, or that have none.
func (s *Scheduler) RecomputePropertyMetricsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecomputePropertyMetrics, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	processed, err := s.properties.RecalculateStale(ctx, s.cfg.BatchSize)
	run.AddProcessed(processed)
	obsmetrics.Scheduler().AddBatchProcessed(JobRecomputePropertyMetrics, obsmetrics.BatchResourceProperties, processed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.recompute_property_metrics.failed", JobRecomputePropertyMetrics, err,
			zap.Int("processed_count", processed),
		)
		return err
	}
	return nil
}

// RecomputePortfoliosJob refreshes portfolio snapshots older than the
// configured staleness window.
func (s *Scheduler) RecomputePortfoliosJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecomputePortfolios, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	processed, err := s.portfolios.RecalculateStale(ctx, s.cfg.PortfolioStaleAfter, s.cfg.BatchSize)
	run.AddProcessed(processed)
	obsmetrics.Scheduler().AddBatchProcessed(JobRecomputePortfolios, obsmetrics.BatchResourcePortfolios, processed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.recompute_portfolios.failed", JobRecomputePortfolios, err,
			zap.Int("processed_count", processed),
			zap.Duration("stale_after", s.cfg.PortfolioStaleAfter),
		)
		return err
	}
	return nil
}
