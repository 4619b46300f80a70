package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

const (
	// DefaultReminderThreshold is the standard stretch reminder interval.
	DefaultReminderThreshold = 45 * time.Minute

	// PomodoroReminderThreshold is the reminder interval of the pomodoro preset.
	PomodoroReminderThreshold = 25 * time.Minute

	// DefaultBreakThreshold is the minimum break length worth recording.
	DefaultBreakThreshold = 5 * time.Minute
)

// ReminderPreset configures the stretch reminder.
type ReminderPreset struct {
	ID        string
	Threshold time.Duration
	Pomodoro  bool
}

// Registry holds the selectable reminder and break presets.
type Registry struct {
	reminders map[string]ReminderPreset
	breaks    map[string]time.Duration
}

// NewRegistry creates a registry with the built-in presets.
func NewRegistry() *Registry {
	r := &Registry{
		reminders: make(map[string]ReminderPreset),
		breaks:    make(map[string]time.Duration),
	}
	r.RegisterReminder(ReminderPreset{ID: domain.PresetStandard, Threshold: DefaultReminderThreshold})
	r.RegisterReminder(ReminderPreset{ID: domain.PresetPomodoro, Threshold: PomodoroReminderThreshold, Pomodoro: true})
	r.breaks[domain.PresetStandard] = DefaultBreakThreshold
	return r
}

// RegisterReminder adds or replaces a reminder preset.
func (r *Registry) RegisterReminder(p ReminderPreset) {
	r.reminders[p.ID] = p
}

// ReminderIDs lists the reminder presets, including custom.
func (r *Registry) ReminderIDs() []string {
	ids := make([]string, 0, len(r.reminders)+1)
	for id := range r.reminders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return append(ids, domain.PresetCustom)
}

// ApplyReminder updates settings for the named preset.
// custom requires a positive number of minutes; other presets ignore it.
// Switching presets restarts the pomodoro cycle count.
func (r *Registry) ApplyReminder(settings *domain.Settings, id string, minutes int) error {
	if id == domain.PresetCustom {
		if minutes <= 0 {
			return fmt.Errorf("custom reminder needs a positive number of minutes, got %d", minutes)
		}
		settings.ReminderPreset = domain.PresetCustom
		settings.ReminderThresholdSeconds = int64(minutes) * 60
		settings.PomodoroEnabled = false
		settings.PomodoroCycle = 0
		return nil
	}

	p, ok := r.reminders[id]
	if !ok {
		return fmt.Errorf("unknown reminder preset: %s", id)
	}
	settings.ReminderPreset = p.ID
	settings.ReminderThresholdSeconds = int64(p.Threshold / time.Second)
	settings.PomodoroEnabled = p.Pomodoro
	settings.PomodoroCycle = 0
	return nil
}

// ApplyBreak updates the break threshold for the named preset.
func (r *Registry) ApplyBreak(settings *domain.Settings, id string, minutes int) error {
	if id == domain.PresetCustom {
		if minutes <= 0 {
			return fmt.Errorf("custom break needs a positive number of minutes, got %d", minutes)
		}
		settings.BreakPreset = domain.PresetCustom
		settings.BreakThresholdSeconds = int64(minutes) * 60
		return nil
	}

	d, ok := r.breaks[id]
	if !ok {
		return fmt.Errorf("unknown break preset: %s", id)
	}
	settings.BreakPreset = id
	settings.BreakThresholdSeconds = int64(d / time.Second)
	return nil
}

// DefaultSettings returns the standard reminder and break presets.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		ReminderPreset:           domain.PresetStandard,
		ReminderThresholdSeconds: int64(DefaultReminderThreshold / time.Second),
		BreakPreset:              domain.PresetStandard,
		BreakThresholdSeconds:    int64(DefaultBreakThreshold / time.Second),
	}
}
