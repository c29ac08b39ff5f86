// Package jobs runs the periodic engine passes: the per-second timer tick
// and the idle-device and check-in sweeps.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rollcall/server/internal/engine"
)

// StartTimerTick advances running presence timers on a fixed cadence until
// the context is cancelled.
func StartTimerTick(ctx context.Context, eng *engine.Engine, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eng.TickTimers(ctx)
			}
		}
	}()
	log.Info("timer tick started", zap.Duration("interval", interval))
}

// StartSweeps evicts idle devices and expired check-ins on a fixed cadence
// until the context is cancelled. Each pass is independent; a failed pass
// is logged inside the engine and the next one runs on schedule.
func StartSweeps(ctx context.Context, eng *engine.Engine, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eng.SweepIdleDevices(ctx)
				eng.SweepCheckins(ctx)
			}
		}
	}()
	log.Info("sweeps started", zap.Duration("interval", interval))
}
