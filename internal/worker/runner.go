package worker

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the internal runner fires when no value
// is configured. The external cron hitting /api/cron/send-emails remains the
// primary trigger; the runner is the backstop for deployments without one.
const DefaultSweepInterval = 5 * time.Minute

// Runner drives the Dispatcher on a fixed interval. Sweeps are pull-based
// and idempotent, so the runner needs no queue, no worker pool, and no
// coordination with the cron endpoint — a sweep from either side resolves
// whatever is due and the other side finds nothing left.
type Runner struct {
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *slog.Logger
}

// NewRunner constructs a Runner. interval <= 0 selects DefaultSweepInterval.
func NewRunner(dispatcher *Dispatcher, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Runner{
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
	}
}

// Start blocks until ctx is cancelled, sweeping once per interval. The first
// sweep runs immediately so entries that came due while the process was down
// are not delayed a full interval after restart.
//
// Call it from an errgroup in main:
//
//	g.Go(func() error { return runner.Start(ctx) })
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("sequence runner starting", "interval", r.interval)

	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sequence runner stopped")
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	// Bound each pass so one stuck provider call cannot block the ticker
	// past its next fire.
	sweepCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	if _, err := r.dispatcher.Sweep(sweepCtx); err != nil {
		r.logger.Error("scheduled sweep failed", "error", err)
	}
}
