// Package usecase contains the two tick loops that classify user activity.
package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
)

// DefaultMaxElapsed caps the time credited for one tracker tick.
const DefaultMaxElapsed = 5 * time.Second

// StateOwner serializes access to the shared activity state.
type StateOwner interface {
	Do(ctx context.Context, fn func(*state.ActivityState)) error
	IsPaused() bool
}

// VideoClassifier decides whether a process is playing media.
type VideoClassifier interface {
	IsVideoPlayback(process domain.ProcessIdentity) bool
}

// TrackerConfig holds ActivityTracker configuration.
type TrackerConfig struct {
	MaxElapsed        time.Duration // cap on credited time per tick
	PausedNotifyEvery time.Duration // 0 notifies on every paused tick
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxElapsed: DefaultMaxElapsed,
	}
}

// ActivityTracker accumulates screen time and per-app usage.
// It opens breaks but never adds to the break total; that belongs to the
// BreakDetector.
type ActivityTracker struct {
	config   TrackerConfig
	owner    StateOwner
	sampler  domain.ActivitySampler
	store    domain.DailyStateStore
	notifier domain.Notifier
	keywords VideoClassifier
	logger   *zap.Logger
	now      func() time.Time

	lastPausedNotice time.Time
}

// NewActivityTracker creates the usage-accounting loop body.
func NewActivityTracker(
	config TrackerConfig,
	owner StateOwner,
	sampler domain.ActivitySampler,
	store domain.DailyStateStore,
	notifier domain.Notifier,
	keywords VideoClassifier,
	logger *zap.Logger,
) *ActivityTracker {
	if config.MaxElapsed <= 0 {
		config.MaxElapsed = DefaultMaxElapsed
	}
	return &ActivityTracker{
		config:   config,
		owner:    owner,
		sampler:  sampler,
		store:    store,
		notifier: notifier,
		keywords: keywords,
		logger:   logger.With(zap.String("component", "tracker")),
		now:      time.Now,
	}
}

// WithClock replaces the clock. Used by tests.
func (t *ActivityTracker) WithClock(now func() time.Time) *ActivityTracker {
	t.now = now
	return t
}

// Tick runs one tracker iteration. The scheduler gap is not used: credited
// time comes from the last check, capped at MaxElapsed.
// Persistence failures are logged and dropped; the next tick carries the
// fresher cumulative totals.
func (t *ActivityTracker) Tick(ctx context.Context, _ time.Duration) error {
	now := t.now()
	today := now.Format(domain.DateLayout)

	if t.owner.IsPaused() {
		err := t.owner.Do(ctx, func(s *state.ActivityState) {
			t.housekeep(s, today, now)
			s.LastCheck = now
		})
		t.notifyPaused(now)
		return err
	}

	// sampling shells out, keep it out of the critical section
	sample := t.sampler.Sample(ctx)

	var (
		snap   state.Snapshot
		paused bool
	)
	err := t.owner.Do(ctx, func(s *state.ActivityState) {
		t.housekeep(s, today, now)
		if s.Paused {
			// paused between the check above and now
			s.LastCheck = now
			paused = true
			return
		}
		t.apply(s, sample, now)
		snap = s.Snapshot()
	})
	if err != nil {
		return err
	}
	if paused {
		t.notifyPaused(now)
		return nil
	}

	metrics.ScreenTimeSeconds.Set(float64(snap.ScreenTimeSeconds))
	metrics.BreakTimeSeconds.Set(float64(snap.BreakTimeSeconds))
	metrics.StretchTimeSeconds.Set(float64(snap.StretchTimeSeconds))

	if err := t.store.UpsertDailyState(ctx, snap.Date, snap.ScreenTimeSeconds, snap.BreakTimeSeconds, snap.AppUsage); err != nil {
		metrics.PersistenceFailures.Inc()
		t.logger.Warn("failed to persist daily state, dropping this tick",
			zap.String("date", snap.Date),
			zap.Error(err))
	}
	return nil
}

// housekeep runs the rollover check and the bounds guard.
// Time before midnight is not credited to the new day.
func (t *ActivityTracker) housekeep(s *state.ActivityState, today string, now time.Time) {
	previous := s.LastDate
	if s.RolloverIfNeeded(today) {
		s.LastCheck = now
		t.logger.Info("day rollover, counters reset",
			zap.String("previous", previous),
			zap.String("today", today))
	}
	s.GuardBounds(t.logger)
}

// apply classifies one sample and updates the counters.
func (t *ActivityTracker) apply(s *state.ActivityState, sample domain.ActivitySample, now time.Time) {
	elapsed := now.Sub(s.LastCheck)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > t.config.MaxElapsed {
		elapsed = t.config.MaxElapsed
	}
	secs := elapsed.Seconds()

	s.IdleSeconds = sample.IdleSeconds
	s.ActiveWindow = sample.Process
	s.IsActiveAudio = sample.AudioActive

	video := t.keywords.IsVideoPlayback(sample.Process)
	threshold := s.Config.IdleThresholdSeconds
	active := sample.IdleSeconds < threshold || (video && sample.AudioActive)

	switch {
	case active:
		s.BreakStartTime = nil
		s.ScreenTimeSeconds += secs
		s.TotalStretchSeconds += secs
		if name, ok := sample.Process.Name(); ok && secs > 0 {
			s.PerAppSeconds[name] += secs
		}
	case !video && sample.IdleSeconds >= threshold:
		if s.BreakStartTime == nil {
			start := now
			s.BreakStartTime = &start
			t.logger.Debug("break opened", zap.Float64("idle_seconds", sample.IdleSeconds))
		}
	}

	s.LastCheck = now
}

func (t *ActivityTracker) notifyPaused(now time.Time) {
	every := t.config.PausedNotifyEvery
	if every > 0 && !t.lastPausedNotice.IsZero() && now.Sub(t.lastPausedNotice) < every {
		return
	}
	t.lastPausedNotice = now
	t.notifier.FirePaused()
}
