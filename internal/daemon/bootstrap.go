package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
)

// SettingsSource is the part of the store that holds user preferences.
// ResetDay completes a reset requested from the CLI.
type SettingsSource interface {
	domain.SettingsStore
	domain.ListStore
	ResetDay(ctx context.Context, date string) error
}

var listKinds = []domain.ListKind{domain.ListDontNotify, domain.ListBlockedApps, domain.ListBlockedURLs}

// LoadInitialState builds the live state for now, resuming today's persisted
// totals and applying stored presets and lists on top of base.
func LoadInitialState(
	ctx context.Context,
	store domain.Store,
	settings *SettingsSync,
	now time.Time,
	logger *zap.Logger,
) (*state.ActivityState, error) {
	s := state.New(now, settings.Base())

	totals, err := store.LoadDailyState(ctx, s.LastDate)
	if err != nil {
		// starting from zero would overwrite the stored day on the first upsert
		return nil, fmt.Errorf("failed to load today's totals: %w", err)
	}
	if totals != nil {
		usage, err := store.LoadAppUsage(ctx, s.LastDate)
		if err != nil {
			return nil, fmt.Errorf("failed to load today's app usage: %w", err)
		}
		s.LoadExisting(*totals, usage)
		logger.Info("resumed daily totals",
			zap.String("date", totals.Date),
			zap.Int64("screen_time", totals.ScreenTimeSeconds),
			zap.Int64("break_time", totals.BreakTimeSeconds),
			zap.Int("apps", len(usage)))
	}

	r, err := settings.resolve(ctx)
	if err != nil {
		return nil, err
	}
	r.applyTo(s)
	reset := r.applyReset(s)
	if reset {
		logger.Info("pending reset applied at startup", zap.String("date", s.LastDate))
	}
	if err := settings.finishReset(ctx, r, reset); err != nil {
		return nil, err
	}
	return s, nil
}

// SettingsSync re-applies stored presets, the pause flag, the lists and a
// pending manual reset to the live state. The CLI writes them to the store;
// the monitor picks them up on its next refresh.
//
// Precedence: config file values, then stored settings, with the running
// pomodoro cycle kept unless the reminder changed.
type SettingsSync struct {
	store  SettingsSource
	logger *zap.Logger

	mu    sync.Mutex
	base  state.Config
	extra []string // dont-notify apps from the config file
}

// NewSettingsSync creates a sync over store with the config-file baseline.
func NewSettingsSync(store SettingsSource, base state.Config, extraDontNotify []string, logger *zap.Logger) *SettingsSync {
	return &SettingsSync{
		store:  store,
		base:   base,
		extra:  extraDontNotify,
		logger: logger.With(zap.String("component", "settings_sync")),
	}
}

// SetBase replaces the config-file baseline after a config reload.
func (s *SettingsSync) SetBase(base state.Config, extraDontNotify []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = base
	s.extra = extraDontNotify
}

// Base returns the config-file baseline.
func (s *SettingsSync) Base() state.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

type resolvedSettings struct {
	config    state.Config
	paused    bool
	hasPaused bool
	lists     map[domain.ListKind][]string

	stored   domain.Settings
	resetFor string
}

// resolve reads the store. It does no I/O under the state owner.
func (s *SettingsSync) resolve(ctx context.Context) (resolvedSettings, error) {
	s.mu.Lock()
	base, extra := s.base, append([]string(nil), s.extra...)
	s.mu.Unlock()

	r := resolvedSettings{config: base, lists: make(map[domain.ListKind][]string, len(listKinds))}

	stored, err := s.store.LoadSettings(ctx)
	switch {
	case err == nil:
		r.config = base.WithSettings(stored)
		r.paused = stored.Paused
		r.hasPaused = true
		r.stored = stored
		r.resetFor = stored.ResetRequestedFor
	case errors.Is(err, domain.ErrNotFound):
	default:
		return r, fmt.Errorf("failed to load settings: %w", err)
	}

	for _, kind := range listKinds {
		values, err := s.store.LoadList(ctx, kind)
		if err != nil {
			return r, fmt.Errorf("failed to load %s list: %w", kind, err)
		}
		if kind == domain.ListDontNotify {
			values = append(values, extra...)
		}
		r.lists[kind] = values
	}
	return r, nil
}

func (r resolvedSettings) applyTo(st *state.ActivityState) {
	st.Reconfigure(r.config)
	if r.hasPaused {
		st.Paused = r.paused
	}
	for kind, values := range r.lists {
		st.SetList(kind, values)
	}
}

// applyReset zeroes the counters when a reset is pending for the tracked
// day. A request for an earlier day is stale: rollover already zeroed it.
func (r resolvedSettings) applyReset(st *state.ActivityState) bool {
	if r.resetFor == "" || r.resetFor != st.LastDate {
		return false
	}
	st.ResetDailyCounters()
	return true
}

// finishReset clears the request so it is applied once. When the counters
// were zeroed it first deletes the rows saved since the CLI request.
func (s *SettingsSync) finishReset(ctx context.Context, r resolvedSettings, applied bool) error {
	if r.resetFor == "" {
		return nil
	}
	if applied {
		if err := s.store.ResetDay(ctx, r.resetFor); err != nil {
			return fmt.Errorf("failed to reset %s: %w", r.resetFor, err)
		}
	}
	cleared := r.stored
	cleared.ResetRequestedFor = ""
	if err := s.store.SaveSettings(ctx, cleared); err != nil {
		return fmt.Errorf("failed to clear reset request: %w", err)
	}
	return nil
}

// Sync applies the stored settings to the live state.
func (s *SettingsSync) Sync(ctx context.Context, owner *state.Owner) error {
	r, err := s.resolve(ctx)
	if err != nil {
		return err
	}

	var (
		before, after domain.Settings
		reset         bool
	)
	if err := owner.Do(ctx, func(st *state.ActivityState) {
		before = st.Settings()
		r.applyTo(st)
		reset = r.applyReset(st)
		after = st.Settings()
	}); err != nil {
		return err
	}
	if reset {
		s.logger.Info("daily counters reset on request", zap.String("date", r.resetFor))
	}
	if err := s.finishReset(ctx, r, reset); err != nil {
		return err
	}

	if before != after {
		s.logger.Info("settings applied",
			zap.String("reminder_preset", after.ReminderPreset),
			zap.Int64("reminder_threshold", after.ReminderThresholdSeconds),
			zap.Bool("pomodoro", after.PomodoroEnabled),
			zap.String("break_preset", after.BreakPreset),
			zap.Int64("break_threshold", after.BreakThresholdSeconds),
			zap.Bool("paused", after.Paused))
	}
	return nil
}
