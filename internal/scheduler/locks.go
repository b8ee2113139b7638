package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	obsmetrics "github.com/smallbiznis/realvest/internal/observability/metrics"
	"github.com/smallbiznis/realvest/internal/ratelimit"
	"go.uber.org/zap"
)

const runLockKey = "realvest:scheduler:run"

// RunLock keeps replicas from running the same tick concurrently.
type RunLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// NewRunLock returns nil when redis is not configured, in which case every
// replica runs its own ticks.
func NewRunLock(client redis.UniversalClient) RunLock {
	if client == nil {
		return nil
	}
	return ratelimit.NewLocker(client)
}

// acquireRun takes the run lock for one interval. A lock backend error does
// not block the run since recomputation is idempotent.
func (s *Scheduler) acquireRun(ctx context.Context) (func(), bool) {
	if s.runLock == nil {
		return func() {}, true
	}

	token, ok, err := s.runLock.TryLock(ctx, runLockKey, s.cfg.RunInterval)
	if err != nil {
		s.log.Warn("scheduler run lock unavailable", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred("run", obsmetrics.SchedulerBatchDeferredReasonLockBusy)
		s.log.Debug("scheduler run skipped, another replica holds the lock")
		return nil, false
	}
	return func() {
		if err := s.runLock.Release(context.Background(), runLockKey, token); err != nil {
			s.log.Warn("scheduler run lock release failed", zap.Error(err))
		}
	}, true
}
