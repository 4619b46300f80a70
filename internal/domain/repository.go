package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("record not found")

	// ErrStoreLocked is returned when the store stayed locked after all retries.
	ErrStoreLocked = errors.New("store locked")

	// ErrUnsupported is returned by OS signal sources unavailable on this platform.
	ErrUnsupported = errors.New("unsupported on this platform")
)

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// NameByPID returns the executable name of a running process.
	NameByPID(pid int) (string, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// IdleSource reports time since the last user input.
type IdleSource interface {
	IdleDuration() (time.Duration, error)
}

// ForegroundSource reports the PID owning the focused window.
type ForegroundSource interface {
	ForegroundPID() (int, error)
}

// AudioSource reports whether any audio stream is currently playing.
type AudioSource interface {
	AudioActive() (bool, error)
}

// ActivitySampler supplies point-in-time activity signals.
// It never fails: unavailable signals degrade to zero values and an Unknown process.
type ActivitySampler interface {
	Sample(ctx context.Context) ActivitySample
}

// DailyStateStore persists cumulative daily counters.
// Upserts overwrite (merge) the row for a date; repeating a call is harmless.
type DailyStateStore interface {
	UpsertDailyState(ctx context.Context, date string, screenSeconds, breakSeconds int64, perApp map[string]int64) error

	// LoadDailyState returns nil, nil when nothing is stored for date.
	LoadDailyState(ctx context.Context, date string) (*DailyTotals, error)

	LoadAppUsage(ctx context.Context, date string) (map[string]int64, error)
}

// HistoryStore exposes the recorded history beyond the current day.
type HistoryStore interface {
	// RecordBreak upserts a break episode keyed by its start time.
	RecordBreak(ctx context.Context, date string, episode BreakEpisode) error

	ListBreaks(ctx context.Context, date string) ([]BreakEpisode, error)

	// History returns per-day totals, newest first.
	History(ctx context.Context, limit int) ([]DailyTotals, error)

	// WeeklyAverageScreenTime averages screen time over the most recent days rows.
	WeeklyAverageScreenTime(ctx context.Context, days int) (int64, error)

	// ResetDay deletes all rows recorded for date.
	ResetDay(ctx context.Context, date string) error

	// CleanupUnknownApps removes app rows left by unidentified processes.
	CleanupUnknownApps(ctx context.Context) (int64, error)
}

// ListStore persists the suppression and block lists.
type ListStore interface {
	AddToList(ctx context.Context, kind ListKind, value string) error
	RemoveFromList(ctx context.Context, kind ListKind, value string) error
	LoadList(ctx context.Context, kind ListKind) ([]string, error)
}

// SettingsStore persists reminder and break presets.
type SettingsStore interface {
	// LoadSettings returns ErrNotFound when no settings were saved.
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}

// Store is the full persistence surface used by the monitor and CLI.
type Store interface {
	DailyStateStore
	HistoryStore
	ListStore
	SettingsStore

	// Close releases resources (e.g., database connection).
	Close() error
}

// Notifier delivers user-facing alerts.
// Calls are fire-and-forget and must not block the caller.
type Notifier interface {
	FireReminder()
	FirePaused()
}

// KeyProvider abstracts the source of the database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
