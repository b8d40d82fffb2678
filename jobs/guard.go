package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jobmetrics "github.com/odyssey-erp/projectledger/internal/jobs"
	"github.com/odyssey-erp/projectledger/internal/platform/cache"
	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Guard runs a job body at most once at a time across workers.
type Guard struct {
	locker  *cache.Locker
	ttl     time.Duration
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewGuard builds a Guard. A nil locker runs bodies unguarded.
func NewGuard(locker *cache.Locker, ttl time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{locker: locker, ttl: ttl, metrics: metrics, logger: logger}
}

// Run executes fn under the job lock. A held lock skips the run without error;
// fn returns the number of rows it touched.
func (g *Guard) Run(ctx context.Context, job string, fn func(context.Context) (int, error)) error {
	logger := g.logger.With(slog.String("job", job))
	if g.locker != nil {
		lock, err := g.locker.Acquire(ctx, shared.JobLockKey(job), g.ttl)
		if errors.Is(err, cache.ErrLockHeld) {
			g.metrics.Skip(job)
			logger.Info("job lock held elsewhere, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
				logger.Warn("release job lock", slog.Any("error", relErr))
			}
		}()
	}

	tracker := g.metrics.Track(job)
	n, err := fn(ctx)
	g.metrics.AddItems(job, n)
	if err != nil {
		logger.Error("job failed", slog.Int("items", n), slog.Any("error", err))
	} else {
		logger.Info("job finished", slog.Int("items", n))
	}
	return tracker.End(err)
}
