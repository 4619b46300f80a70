package usecase

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
)

// DefaultBreakMergeGap joins breaks separated by a short burst of activity.
const DefaultBreakMergeGap = 15 * time.Second

// DetectorConfig holds BreakDetector configuration.
type DetectorConfig struct {
	MergeGap time.Duration
}

// DefaultDetectorConfig returns default break detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{MergeGap: DefaultBreakMergeGap}
}

// BreakDetector is the only writer of the break total. It also fires
// stretch reminders and records break episodes in history.
//
// A tick counts as break time when the scheduler gap exceeds the idle
// threshold (the machine slept) or when the last sample was idle and the
// foreground app is not a media player. Credited break time never exceeds
// the time elapsed since local midnight, less screen time.
type BreakDetector struct {
	config   DetectorConfig
	owner    StateOwner
	notifier domain.Notifier
	keywords VideoClassifier
	history  domain.HistoryStore // optional
	logger   *zap.Logger
	now      func() time.Time

	// episode bookkeeping, only touched from the detector's own goroutine
	open        *domain.BreakEpisode
	openSeconds float64
	last        *domain.BreakEpisode
}

// NewBreakDetector creates the break/reminder loop body.
func NewBreakDetector(
	config DetectorConfig,
	owner StateOwner,
	notifier domain.Notifier,
	keywords VideoClassifier,
	logger *zap.Logger,
) *BreakDetector {
	return &BreakDetector{
		config:   config,
		owner:    owner,
		notifier: notifier,
		keywords: keywords,
		logger:   logger.With(zap.String("component", "breaks")),
		now:      time.Now,
	}
}

// WithHistory records finished break episodes.
func (d *BreakDetector) WithHistory(h domain.HistoryStore) *BreakDetector {
	d.history = h
	return d
}

// WithClock replaces the clock. Used by tests.
func (d *BreakDetector) WithClock(now func() time.Time) *BreakDetector {
	d.now = now
	return d
}

type tickOutcome struct {
	paused         bool
	fire           bool
	suppressed     bool
	onBreak        bool
	sleeping       bool
	app            domain.ProcessIdentity
	breakThreshold float64
	cycle          int
}

// Tick runs one detector iteration for the given scheduler gap.
func (d *BreakDetector) Tick(ctx context.Context, gap time.Duration) error {
	if d.owner.IsPaused() {
		return nil
	}
	now := d.now()
	today := now.Format(domain.DateLayout)

	var out tickOutcome
	err := d.owner.Do(ctx, func(s *state.ActivityState) {
		if s.Paused {
			out.paused = true
			return
		}
		if previous := s.LastDate; s.RolloverIfNeeded(today) {
			s.LastCheck = now
			d.logger.Info("day rollover, counters reset",
				zap.String("previous", previous),
				zap.String("today", today))
		}
		out.app = s.ActiveWindow

		threshold := s.Config.ReminderThresholdSeconds
		if threshold > 0 && s.TotalStretchSeconds >= threshold {
			if s.IsSuppressed(s.ActiveWindow) {
				out.suppressed = true
			} else {
				out.fire = true
				if s.Config.PomodoroEnabled {
					s.Config.PomodoroCycle++
				}
			}
			s.TotalStretchSeconds = 0
		}

		idle := s.Config.IdleThresholdSeconds
		out.sleeping = gap.Seconds() > idle
		userIdle := s.IdleSeconds >= idle && !d.keywords.IsVideoPlayback(s.ActiveWindow)
		if out.sleeping || userIdle {
			// a gap reaching back before midnight only counts from midnight
			s.TotalBreakSeconds += math.Min(gap.Seconds(), s.BreakHeadroom(now))
			out.onBreak = true
		}

		out.breakThreshold = s.Config.BreakThresholdSeconds
		out.cycle = s.Config.PomodoroCycle
	})
	if err != nil {
		return err
	}
	if out.paused {
		return nil
	}

	switch {
	case out.fire:
		metrics.RemindersTotal.WithLabelValues("fired").Inc()
		d.logger.Info("stretch reminder",
			zap.String("app", out.app.String()),
			zap.Int("pomodoro_cycle", out.cycle))
		d.notifier.FireReminder()
	case out.suppressed:
		metrics.RemindersTotal.WithLabelValues("suppressed").Inc()
		d.logger.Debug("stretch reminder suppressed", zap.String("app", out.app.String()))
	}

	if out.onBreak {
		d.extend(now, gap, out.sleeping)
	} else if d.open != nil {
		d.closeEpisode(ctx, now, out.breakThreshold)
	}
	return nil
}

// Flush closes a break still open at shutdown.
func (d *BreakDetector) Flush(ctx context.Context) {
	if d.open == nil {
		return
	}
	var threshold float64
	if err := d.owner.Do(ctx, func(s *state.ActivityState) {
		threshold = s.Config.BreakThresholdSeconds
	}); err != nil {
		threshold = state.DefaultConfig().BreakThresholdSeconds
	}
	d.closeEpisode(ctx, d.now(), threshold)
}

// LastEpisode returns the most recently closed (possibly merged) episode.
func (d *BreakDetector) LastEpisode() (domain.BreakEpisode, bool) {
	if d.last == nil {
		return domain.BreakEpisode{}, false
	}
	return *d.last, true
}

func (d *BreakDetector) extend(now time.Time, gap time.Duration, sleeping bool) {
	if d.open == nil {
		d.open = &domain.BreakEpisode{
			StartedAt: now.Add(-gap),
			Reason:    domain.BreakReasonIdle,
		}
		d.openSeconds = 0
	}
	if sleeping {
		d.open.Reason = domain.BreakReasonSleep
	}
	d.openSeconds += gap.Seconds()
}

// closeEpisode ends the open break. A break that starts within MergeGap of
// the previous one continues it: the durations add up and the earlier
// start time is kept.
func (d *BreakDetector) closeEpisode(ctx context.Context, now time.Time, threshold float64) {
	ep := *d.open
	ep.EndedAt = now
	ep.DurationSeconds = int64(d.openSeconds)
	d.open = nil
	d.openSeconds = 0

	if prev := d.last; prev != nil && ep.StartedAt.Sub(prev.EndedAt) <= d.config.MergeGap {
		ep.StartedAt = prev.StartedAt
		ep.DurationSeconds += prev.DurationSeconds
		ep.Merged = true
		if prev.Reason == domain.BreakReasonSleep {
			ep.Reason = domain.BreakReasonSleep
		}
	}
	d.last = &ep

	if float64(ep.DurationSeconds) < threshold {
		return
	}

	d.logger.Info("break recorded",
		zap.Time("started_at", ep.StartedAt),
		zap.Int64("duration_seconds", ep.DurationSeconds),
		zap.String("reason", string(ep.Reason)),
		zap.Bool("merged", ep.Merged))
	metrics.BreaksRecorded.WithLabelValues(string(ep.Reason)).Inc()

	if d.history == nil {
		return
	}
	if err := d.history.RecordBreak(ctx, ep.StartedAt.Format(domain.DateLayout), ep); err != nil {
		d.logger.Warn("failed to record break", zap.Error(err))
	}
}
