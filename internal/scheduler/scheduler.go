// Package scheduler runs a callback at a fixed interval and reports the real
// wall-clock gap between consecutive calls.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/metrics"
)

// DefaultBackoff is the pause after a failed callback.
const DefaultBackoff = time.Second

// Callback is invoked once per tick with the time since the previous call.
type Callback func(ctx context.Context, gap time.Duration) error

// Config holds scheduler configuration.
type Config struct {
	Name     string        // loop label for logs and metrics
	Interval time.Duration // nominal tick period
	Backoff  time.Duration // pause after a failed callback
}

// Scheduler is a drift-compensated periodic invoker.
// Deadlines advance by Interval from the previous deadline, not from the end
// of the callback. A tick that starts late resets the deadline to now, so
// missed ticks are never replayed in a burst.
type Scheduler struct {
	config Config
	logger *zap.Logger

	// now reads the wall clock. The monotonic reading is stripped so that
	// time spent in system suspend shows up in the gap.
	now func() time.Time
}

// New creates a scheduler.
func New(config Config, logger *zap.Logger) *Scheduler {
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}
	return &Scheduler{
		config: config,
		logger: logger.With(zap.String("component", "scheduler"), zap.String("loop", config.Name)),
		now:    func() time.Time { return time.Now().Round(0) },
	}
}

// WithClock replaces the clock. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run calls cb every Interval until ctx is cancelled.
// The first call receives a zero gap. A callback that has started always
// finishes; cancellation is only observed before and after sleeping.
func (s *Scheduler) Run(ctx context.Context, cb Callback) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("scheduler %s: interval must be positive, got %s", s.config.Name, s.config.Interval)
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.config.Interval))

	next := s.now()
	last := next

	for {
		if ctx.Err() != nil {
			break
		}

		if wait := next.Sub(s.now()); wait > 0 {
			if !sleep(ctx, wait) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		now := s.now()
		gap := now.Sub(last)
		last = now
		metrics.TickGap.WithLabelValues(s.config.Name).Observe(gap.Seconds())

		if err := s.invoke(ctx, cb, gap); err != nil {
			metrics.CallbackFailures.WithLabelValues(s.config.Name).Inc()
			s.logger.Error("tick failed",
				zap.Error(err),
				zap.Duration("gap", gap),
				zap.Duration("backoff", s.config.Backoff))
			if !sleep(ctx, s.config.Backoff) {
				break
			}
			// the backoff stands in for this tick
			next = s.now()
			continue
		}

		next = next.Add(s.config.Interval)
		if now := s.now(); now.After(next) {
			metrics.SchedulerOverruns.WithLabelValues(s.config.Name).Inc()
			s.logger.Debug("tick overran deadline",
				zap.Duration("late_by", now.Sub(next)))
			next = now
		}
	}

	s.logger.Info("scheduler stopped")
	return nil
}

// invoke runs one callback, turning a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, cb Callback, gap time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(ctx, gap)
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
