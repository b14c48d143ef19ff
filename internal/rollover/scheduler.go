// Package rollover hosts the background scheduler that retires counters whose
// window has elapsed, so finished daily/hourly windows don't accumulate
// forever and a new window always starts from zero.
package rollover

import (
	"context"
	"log/slog"
	"time"

	"github.com/adserve-lab/chargecounter/internal/core/storage"
	"github.com/adserve-lab/chargecounter/internal/telemetry"
)

// Scheduler runs counter window resets on a periodic interval.
// It is stateless: each tick independently scans for elapsed windows, so a
// failed tick is simply retried on the next one.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	store    storage.CounterStore
	now      func() time.Time
}

// NewScheduler creates a rollover scheduler. grace holds a just-elapsed
// window open a little longer for in-flight requests racing the boundary.
func NewScheduler(interval, grace time.Duration, store storage.CounterStore) *Scheduler {
	return &Scheduler{
		interval: interval,
		grace:    grace,
		store:    store,
		now:      time.Now,
	}
}

// Start begins periodic window resets. Runs until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Rollover] Starting window reset scheduler",
		"interval", s.interval,
		"grace", s.grace,
	)

	// Sweep once at startup so a restart doesn't leave stale windows around
	// until the first tick.
	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("[Rollover] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.sweep(shutdownCtx)
			return nil
		}
	}
}

// sweep resets all counters whose window elapsed before the grace cutoff.
// Resets go through the store's own serialization, so a sweep never races an
// in-flight apply on the same key, and an elapsed window is reset exactly once.
func (s *Scheduler) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.grace)
	n, err := s.store.ResetExpired(ctx, cutoff)
	if err != nil {
		slog.Error("[Rollover] Window reset failed, retrying next tick", "error", err)
		return
	}
	telemetry.RecordRolloverResets(n)
	if n > 0 {
		slog.Info("[Rollover] Reset elapsed windows", "count", n, "cutoff", cutoff)
	}
}
