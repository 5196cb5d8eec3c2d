// internal/orchestrator/scheduler.go
package orchestrator

import (
	"context"
	"time"

	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/observability"
)

// Scheduler runs cycles on a fixed interval. Cycles are strictly
// sequential: a slow cycle delays the next tick rather than overlapping
// it. Cancelling the context finishes the in-flight cycle and returns.
type Scheduler struct {
	cycle    *Cycle
	interval time.Duration
	obs      *observability.Observability
	log      logger.Logger
}

func NewScheduler(cycle *Cycle, interval time.Duration, obs *observability.Observability, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 4 * time.Hour
	}
	return &Scheduler{cycle: cycle, interval: interval, obs: obs, log: log}
}

// Run executes the first cycle immediately, then one per interval until
// the context is cancelled. Cycle failures are logged and the loop
// continues; a broken cycle now does not forfeit the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping", map[string]interface{}{})
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	status := "completed"
	if _, err := s.cycle.Run(ctx); err != nil {
		status = "failed"
		s.log.Error("cycle failed", map[string]interface{}{"error": err.Error()})
	}
	if s.obs != nil {
		s.obs.RecordCycle(ctx, status)
		s.obs.RecordCycleDuration(ctx, time.Since(start), status)
	}
}
