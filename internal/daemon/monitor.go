// Package daemon assembles the tracker and break detector loops into the
// long-running monitor.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/scheduler"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
	"github.com/eliteGoblin/focusd/screen_mon/internal/usecase"
)

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	TickInterval    time.Duration // period of both loops
	CallbackBackoff time.Duration // pause after a failed tick
	SettingsRefresh time.Duration // how often stored settings are re-applied
	FlushTimeout    time.Duration // budget for the final save at shutdown
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TickInterval:    2 * time.Second,
		CallbackBackoff: scheduler.DefaultBackoff,
		SettingsRefresh: 5 * time.Second,
		FlushTimeout:    2 * time.Second,
	}
}

// Worker is an extra goroutine run alongside the loops, such as the
// notification queue. It must return when ctx is cancelled.
type Worker func(ctx context.Context) error

// Monitor runs the tracker and break detector on their own schedulers and
// saves a final snapshot when stopped.
type Monitor struct {
	config   MonitorConfig
	owner    *state.Owner
	tracker  *usecase.ActivityTracker
	detector *usecase.BreakDetector
	settings *SettingsSync
	store    domain.DailyStateStore
	workers  []Worker
	root     *zap.Logger
	logger   *zap.Logger
}

// NewMonitor creates a new monitor.
func NewMonitor(
	config MonitorConfig,
	owner *state.Owner,
	tracker *usecase.ActivityTracker,
	detector *usecase.BreakDetector,
	settings *SettingsSync,
	store domain.DailyStateStore,
	logger *zap.Logger,
) *Monitor {
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultMonitorConfig().FlushTimeout
	}
	return &Monitor{
		config:   config,
		owner:    owner,
		tracker:  tracker,
		detector: detector,
		settings: settings,
		store:    store,
		root:     logger,
		logger:   logger.With(zap.String("component", "monitor")),
	}
}

// WithWorker adds a goroutine to the monitor's group.
func (m *Monitor) WithWorker(w Worker) *Monitor {
	m.workers = append(m.workers, w)
	return m
}

// Run blocks until ctx is cancelled or a loop fails to start. In-flight
// ticks finish before the final save; the state owner is closed on return.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.owner.Close()

	m.logger.Info("monitor started",
		zap.Duration("tick_interval", m.config.TickInterval),
		zap.Duration("settings_refresh", m.config.SettingsRefresh))

	g, gctx := errgroup.WithContext(ctx)

	trackerLoop := scheduler.New(scheduler.Config{
		Name:     "tracker",
		Interval: m.config.TickInterval,
		Backoff:  m.config.CallbackBackoff,
	}, m.root)
	breakLoop := scheduler.New(scheduler.Config{
		Name:     "breaks",
		Interval: m.config.TickInterval,
		Backoff:  m.config.CallbackBackoff,
	}, m.root)

	g.Go(func() error { return trackerLoop.Run(gctx, m.tracker.Tick) })
	g.Go(func() error { return breakLoop.Run(gctx, m.detector.Tick) })
	if m.settings != nil && m.config.SettingsRefresh > 0 {
		g.Go(func() error { return m.refreshSettings(gctx) })
	}
	for _, w := range m.workers {
		w := w
		g.Go(func() error { return w(gctx) })
	}

	err := g.Wait()
	m.shutdown()

	m.logger.Info("monitor stopped")
	return err
}

// refreshSettings re-applies stored settings until ctx is cancelled.
// Errors are logged; a failed refresh keeps the current settings.
func (m *Monitor) refreshSettings(ctx context.Context) error {
	ticker := time.NewTicker(m.config.SettingsRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.settings.Sync(ctx, m.owner); err != nil && ctx.Err() == nil {
				m.logger.Warn("failed to refresh settings", zap.Error(err))
			}
		}
	}
}

// Resync applies stored settings immediately, e.g. after a config reload.
func (m *Monitor) Resync(ctx context.Context) {
	if m.settings == nil {
		return
	}
	if err := m.settings.Sync(ctx, m.owner); err != nil {
		m.logger.Warn("failed to apply settings", zap.Error(err))
	}
}

// shutdown closes an open break and saves the final snapshot.
func (m *Monitor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.FlushTimeout)
	defer cancel()

	m.detector.Flush(ctx)

	snap, err := m.owner.Snapshot(ctx)
	if err != nil {
		m.logger.Error("failed to snapshot state at shutdown", zap.Error(err))
		return
	}
	if err := m.store.UpsertDailyState(ctx, snap.Date, snap.ScreenTimeSeconds, snap.BreakTimeSeconds, snap.AppUsage); err != nil {
		m.logger.Error("failed to save final state", zap.String("date", snap.Date), zap.Error(err))
		return
	}
	m.logger.Info("final state saved",
		zap.String("date", snap.Date),
		zap.Int64("screen_time", snap.ScreenTimeSeconds),
		zap.Int64("break_time", snap.BreakTimeSeconds))
}
