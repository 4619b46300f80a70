// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strings"
	"time"
)

const (
	// DateLayout is the calendar-day key used for persisted daily state.
	DateLayout = "2006-01-02"

	// SecondsPerDay bounds every daily counter.
	SecondsPerDay = 86400
)

// ProcessIdentity is the foreground process as seen by the sampler.
// The zero value is Unknown.
type ProcessIdentity struct {
	name  string
	known bool
}

// Known returns the identity of a named process. An empty name is Unknown.
func Known(name string) ProcessIdentity {
	if name == "" {
		return Unknown()
	}
	return ProcessIdentity{name: name, known: true}
}

// Unknown returns the identity used when sampling the foreground process failed.
func Unknown() ProcessIdentity {
	return ProcessIdentity{}
}

// Name returns the process name and whether it is known.
func (p ProcessIdentity) Name() (string, bool) {
	return p.name, p.known
}

// IsKnown reports whether the process was identified.
func (p ProcessIdentity) IsKnown() bool {
	return p.known
}

// String returns the name, or "unknown".
func (p ProcessIdentity) String() string {
	if !p.known {
		return "unknown"
	}
	return p.name
}

// executableExts are the suffixes IdentifyProcess strips. Other dotted
// names ("com.apple.Safari") are kept whole.
var executableExts = []string{".exe", ".app", ".bin"}

// IdentifyProcess normalizes a raw executable name into an identity:
// lowercased with the executable extension stripped ("Chrome.exe" -> "chrome").
// Legacy sentinel names written by older releases map to Unknown.
func IdentifyProcess(raw string) ProcessIdentity {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, ext := range executableExts {
		if strings.HasSuffix(name, ext) {
			name = strings.TrimSuffix(name, ext)
			break
		}
	}
	switch name {
	case "", "unknown", "unknow":
		return Unknown()
	}
	return Known(name)
}

// ActivitySample is one point-in-time reading of OS activity signals.
type ActivitySample struct {
	IdleSeconds float64
	Process     ProcessIdentity
	AudioActive bool
}

// DailyTotals is the persisted screen/break summary for one day.
type DailyTotals struct {
	Date              string
	ScreenTimeSeconds int64
	BreakTimeSeconds  int64
}

// BreakReason explains why a break episode was detected.
type BreakReason string

const (
	BreakReasonIdle  BreakReason = "idle"
	BreakReasonSleep BreakReason = "sleep"
)

// BreakEpisode is one contiguous break as attributed by the break detector.
// A merged episode carries the duration of the break it was merged into,
// and keeps that break's start time.
type BreakEpisode struct {
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int64
	Reason          BreakReason
	Merged          bool
}

// ListKind names one of the persisted app/url lists.
type ListKind string

const (
	ListDontNotify  ListKind = "dont_notify"
	ListBlockedApps ListKind = "blocked_apps"
	ListBlockedURLs ListKind = "blocked_urls"
)

// Reminder and break presets selectable by the settings surface.
const (
	PresetStandard = "standard"
	PresetPomodoro = "pomodoro"
	PresetCustom   = "custom"
)

// Settings is the persisted reminder/break configuration.
type Settings struct {
	ReminderPreset           string
	ReminderThresholdSeconds int64
	PomodoroEnabled          bool
	PomodoroCycle            int
	BreakPreset              string
	BreakThresholdSeconds    int64
	Paused                   bool

	// ResetRequestedFor names a day whose counters the running monitor
	// must zero. Empty when no reset is pending.
	ResetRequestedFor string
}
