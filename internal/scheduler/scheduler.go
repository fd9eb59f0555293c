// Package scheduler drives the periodic advisory-cache cleanup jobs on top
// of go-co-op/gocron.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"pixwallet/internal/idempotency"
	"pixwallet/internal/transfer"
)

// Scheduler owns the background gocron instance for the wallet core's
// housekeeping jobs. Both jobs are advisory only; a missed run never
// affects correctness, only memory footprint.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *slog.Logger
}

// New builds and starts a Scheduler wired to atomic and idem.
func New(atomic *transfer.AtomicService, idem *idempotency.Service, logger *slog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			removed := atomic.CleanupExpiredStates()
			logger.Info("transfer state sweep completed", "removed", removed)
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(60*time.Minute),
		gocron.NewTask(func() {
			deleted, err := idem.CleanupExpired(context.Background())
			if err != nil {
				logger.Error("idempotency cleanup failed", "error", err)
				return
			}
			logger.Info("idempotency record sweep completed", "deleted", deleted)
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()

	return &Scheduler{sched: sched, logger: logger}, nil
}

// Stop shuts the scheduler down, waiting for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
