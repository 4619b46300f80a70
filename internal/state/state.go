// Package state holds the single in-memory activity record shared by the
// tracker and break detector loops, and the goroutine that owns it.
package state

import (
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// Config is the tracking configuration read by both loops.
// Thresholds are in seconds.
type Config struct {
	ReminderThresholdSeconds float64
	IdleThresholdSeconds     float64
	BreakThresholdSeconds    float64
	ReminderPreset           string
	BreakPreset              string
	PomodoroEnabled          bool
	PomodoroCycle            int
}

// DefaultConfig mirrors the standard presets.
func DefaultConfig() Config {
	return Config{
		ReminderThresholdSeconds: 45 * 60,
		IdleThresholdSeconds:     60,
		BreakThresholdSeconds:    5 * 60,
		ReminderPreset:           domain.PresetStandard,
		BreakPreset:              domain.PresetStandard,
	}
}

// ActivityState is the cumulative record for the current day.
// It is only ever touched from inside Owner.Do.
type ActivityState struct {
	IdleSeconds   float64
	ActiveWindow  domain.ProcessIdentity
	IsActiveAudio bool

	ScreenTimeSeconds   float64
	BreakStartTime      *time.Time
	TotalBreakSeconds   float64
	TotalStretchSeconds float64
	PerAppSeconds       map[string]float64

	Paused    bool
	LastCheck time.Time
	LastDate  string

	Config         Config
	DontNotifyApps map[string]struct{}
	BlockedApps    map[string]struct{}
	BlockedURLs    map[string]struct{}
}

// New returns a zeroed state for the day containing now.
func New(now time.Time, cfg Config) *ActivityState {
	return &ActivityState{
		PerAppSeconds:  make(map[string]float64),
		LastCheck:      now,
		LastDate:       now.Format(domain.DateLayout),
		Config:         cfg,
		DontNotifyApps: make(map[string]struct{}),
		BlockedApps:    make(map[string]struct{}),
		BlockedURLs:    make(map[string]struct{}),
	}
}

// LoadExisting seeds counters from a persisted snapshot of the same day.
func (s *ActivityState) LoadExisting(totals domain.DailyTotals, appUsage map[string]int64) {
	s.ScreenTimeSeconds = float64(totals.ScreenTimeSeconds)
	s.TotalBreakSeconds = float64(totals.BreakTimeSeconds)
	for app, secs := range appUsage {
		if id := domain.IdentifyProcess(app); id.IsKnown() {
			name, _ := id.Name()
			s.PerAppSeconds[name] += float64(secs)
		}
	}
}

// ResetDailyCounters zeroes everything accumulated for the day.
func (s *ActivityState) ResetDailyCounters() {
	s.ScreenTimeSeconds = 0
	s.TotalBreakSeconds = 0
	s.TotalStretchSeconds = 0
	s.PerAppSeconds = make(map[string]float64)
	s.BreakStartTime = nil
}

// RolloverIfNeeded resets the counters when today differs from the tracked day.
func (s *ActivityState) RolloverIfNeeded(today string) bool {
	if today == s.LastDate {
		return false
	}
	s.ResetDailyCounters()
	s.LastDate = today
	return true
}

// GuardBounds resets a counter that exceeded a full day.
func (s *ActivityState) GuardBounds(logger *zap.Logger) {
	if s.ScreenTimeSeconds > domain.SecondsPerDay {
		logger.Warn("screen time exceeded 24 hours, resetting to zero",
			zap.Float64("screen_seconds", s.ScreenTimeSeconds))
		s.ScreenTimeSeconds = 0
	}
	if s.TotalBreakSeconds > domain.SecondsPerDay {
		logger.Warn("break time exceeded 24 hours, resetting to zero",
			zap.Float64("break_seconds", s.TotalBreakSeconds))
		s.TotalBreakSeconds = 0
	}
}

// ClampBreak keeps break + screen within one day.
func (s *ActivityState) ClampBreak() {
	limit := domain.SecondsPerDay - s.ScreenTimeSeconds
	if limit < 0 {
		limit = 0
	}
	if s.TotalBreakSeconds > limit {
		s.TotalBreakSeconds = limit
	}
	if s.TotalBreakSeconds < 0 {
		s.TotalBreakSeconds = 0
	}
}

// BreakHeadroom is the break time that still fits in the part of the day
// elapsed by now, so break + screen never exceeds the time since local
// midnight.
func (s *ActivityState) BreakHeadroom(now time.Time) float64 {
	y, m, d := now.Date()
	sinceMidnight := now.Sub(time.Date(y, m, d, 0, 0, 0, 0, now.Location())).Seconds()
	room := sinceMidnight - s.ScreenTimeSeconds - s.TotalBreakSeconds
	if room < 0 {
		return 0
	}
	return room
}

// IsSuppressed reports whether reminders are muted for the process.
func (s *ActivityState) IsSuppressed(process domain.ProcessIdentity) bool {
	name, ok := process.Name()
	if !ok {
		return false
	}
	_, muted := s.DontNotifyApps[name]
	return muted
}

// WithSettings overlays persisted presets on c.
func (c Config) WithSettings(settings domain.Settings) Config {
	if settings.ReminderThresholdSeconds > 0 {
		c.ReminderThresholdSeconds = float64(settings.ReminderThresholdSeconds)
	}
	if settings.BreakThresholdSeconds > 0 {
		c.BreakThresholdSeconds = float64(settings.BreakThresholdSeconds)
	}
	if settings.ReminderPreset != "" {
		c.ReminderPreset = settings.ReminderPreset
	}
	if settings.BreakPreset != "" {
		c.BreakPreset = settings.BreakPreset
	}
	c.PomodoroEnabled = settings.PomodoroEnabled
	c.PomodoroCycle = settings.PomodoroCycle
	return c
}

// Reconfigure replaces the live configuration. The running pomodoro cycle
// survives unless the reminder itself changed.
func (s *ActivityState) Reconfigure(next Config) {
	prev := s.Config
	if next.ReminderPreset == prev.ReminderPreset &&
		next.ReminderThresholdSeconds == prev.ReminderThresholdSeconds &&
		next.PomodoroEnabled == prev.PomodoroEnabled &&
		prev.PomodoroCycle > next.PomodoroCycle {
		next.PomodoroCycle = prev.PomodoroCycle
	}
	s.Config = next
}

// SetList replaces one of the app/url lists.
func (s *ActivityState) SetList(kind domain.ListKind, values []string) {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	switch kind {
	case domain.ListDontNotify:
		s.DontNotifyApps = set
	case domain.ListBlockedApps:
		s.BlockedApps = set
	case domain.ListBlockedURLs:
		s.BlockedURLs = set
	}
}

// Snapshot is an immutable copy of the counters, safe to use for I/O.
type Snapshot struct {
	Date               string
	ScreenTimeSeconds  int64
	BreakTimeSeconds   int64
	StretchTimeSeconds int64
	AppUsage           map[string]int64
	Paused             bool
	BreakOpen          bool
	PomodoroCycle      int
}

// Snapshot copies the counters. Seconds are truncated to whole values.
func (s *ActivityState) Snapshot() Snapshot {
	apps := make(map[string]int64, len(s.PerAppSeconds))
	for app, secs := range s.PerAppSeconds {
		apps[app] = int64(secs)
	}
	return Snapshot{
		Date:               s.LastDate,
		ScreenTimeSeconds:  int64(s.ScreenTimeSeconds),
		BreakTimeSeconds:   int64(s.TotalBreakSeconds),
		StretchTimeSeconds: int64(s.TotalStretchSeconds),
		AppUsage:           apps,
		Paused:             s.Paused,
		BreakOpen:          s.BreakStartTime != nil,
		PomodoroCycle:      s.Config.PomodoroCycle,
	}
}

// Settings returns the live presets in their persisted form.
func (s *ActivityState) Settings() domain.Settings {
	return domain.Settings{
		ReminderPreset:           s.Config.ReminderPreset,
		ReminderThresholdSeconds: int64(s.Config.ReminderThresholdSeconds),
		PomodoroEnabled:          s.Config.PomodoroEnabled,
		PomodoroCycle:            s.Config.PomodoroCycle,
		BreakPreset:              s.Config.BreakPreset,
		BreakThresholdSeconds:    int64(s.Config.BreakThresholdSeconds),
		Paused:                   s.Paused,
	}
}
