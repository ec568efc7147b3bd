package jobs

// sweeper.go runs periodic job maintenance.
//
// Poll already expires overdue jobs lazily; the sweeper makes expiry happen
// for jobs nobody polls and drops terminal jobs once their retention period
// has passed, so the job table does not grow without bound.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when RunSweeper gets a non-positive interval.
const DefaultSweepInterval = time.Minute

// RunSweeper sweeps the orchestrator every interval until ctx is cancelled.
// It runs once immediately on start.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("job sweeper started",
		"interval", interval.String(),
		"max_wait", o.opts.MaxWait.String(),
		"retention", o.opts.Retention.String(),
	)

	o.runSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job sweeper stopped")
			return
		case <-ticker.C:
			o.runSweep()
		}
	}
}

func (o *Orchestrator) runSweep() {
	start := time.Now()
	removed := o.Sweep()
	if removed > 0 {
		slog.Info("swept finished jobs",
			"removed", removed,
			"remaining", o.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
