package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/config"
	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/infra"
	"github.com/eliteGoblin/focusd/screen_mon/internal/policy"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
)

// commandTimeout bounds every store round trip made by a CLI command.
const commandTimeout = 10 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's screen time, breaks and top apps",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show daily totals, newest first",
	RunE:  runHistory,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete today's totals",
	Long: `Deletes today's screen time, app usage and break history.
A running monitor zeroes its in-memory counters on its next settings refresh.`,
	RunE: runReset,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove usage rows recorded under an unknown app name",
	RunE:  runCleanup,
}

var historyLimit int

func addQueryCommands(root *cobra.Command) {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 14, "Number of days to show (0 for all)")

	root.AddCommand(statusCmd)
	root.AddCommand(historyCmd)
	root.AddCommand(resetCmd)
	root.AddCommand(cleanupCmd)
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause tracking and reminders",
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetPaused(true) },
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume tracking and reminders",
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetPaused(false) },
}

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Select reminder and break presets",
}

var presetReminderCmd = &cobra.Command{
	Use:   "reminder <standard|pomodoro|custom>",
	Short: "Select the stretch reminder preset",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetReminder,
}

var presetBreakCmd = &cobra.Command{
	Use:   "break <standard|custom>",
	Short: "Select the minimum recorded break length",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresetBreak,
}

var presetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active presets",
	RunE:  runPresetShow,
}

var suppressCmd = &cobra.Command{
	Use:   "suppress <add|remove|list> [app]",
	Short: "Manage apps that silence stretch reminders",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListCommand(domain.ListDontNotify, args)
	},
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage blocked apps and urls",
}

var blockAppCmd = &cobra.Command{
	Use:   "app <add|remove|list> [name]",
	Short: "Manage blocked apps",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListCommand(domain.ListBlockedApps, args)
	},
}

var blockURLCmd = &cobra.Command{
	Use:   "url <add|remove|list> [url]",
	Short: "Manage blocked urls",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListCommand(domain.ListBlockedURLs, args)
	},
}

var presetMinutes int

func addSettingsCommands(root *cobra.Command) {
	presetReminderCmd.Flags().IntVar(&presetMinutes, "minutes", 0, "Interval for the custom preset")
	presetBreakCmd.Flags().IntVar(&presetMinutes, "minutes", 0, "Length for the custom preset")

	presetCmd.AddCommand(presetReminderCmd, presetBreakCmd, presetShowCmd)
	blockCmd.AddCommand(blockAppCmd, blockURLCmd)

	root.AddCommand(pauseCmd)
	root.AddCommand(resumeCmd)
	root.AddCommand(presetCmd)
	root.AddCommand(suppressCmd)
	root.AddCommand(blockCmd)
}

// session is what a one-shot command needs: the config, its data dir and
// an open store.
type session struct {
	cfg     *config.Config
	dataDir string
	store   domain.Store
}

func openSession() (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	dataDir, err := infra.ResolveDataDir(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg, dataDir, zap.NewNop())
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, dataDir: dataDir, store: store}, nil
}

func (s *session) Close() {
	_ = s.store.Close()
}

// monitorPID returns the pid of the running monitor, if any.
func (s *session) monitorPID() (int, bool) {
	lock := infra.NewMonitorLock(infra.PIDFilePath(s.dataDir), infra.NewProcessManager())
	return lock.Holder()
}

// settings returns the stored presets, or the ones the config file implies
// when nothing has been saved yet.
func (s *session) settings(ctx context.Context) (domain.Settings, error) {
	stored, err := s.store.LoadSettings(ctx)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Settings{}, err
	}
	return state.New(time.Now(), s.cfg.Tracking.StateConfig()).Settings(), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	today := time.Now().Format(domain.DateLayout)
	totals, err := s.store.LoadDailyState(ctx, today)
	if err != nil {
		return err
	}
	if totals == nil {
		totals = &domain.DailyTotals{Date: today}
	}
	usage, err := s.store.LoadAppUsage(ctx, today)
	if err != nil {
		return err
	}
	breaks, err := s.store.ListBreaks(ctx, today)
	if err != nil {
		return err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)

	fmt.Print("Monitor:      ")
	if pid, ok := s.monitorPID(); ok {
		green.Printf("running (pid %d)\n", pid)
	} else {
		yellow.Println("stopped")
	}
	if settings.Paused {
		fmt.Print("Tracking:     ")
		yellow.Println("paused")
	}
	fmt.Printf("Date:         %s\n", today)
	fmt.Printf("Screen time:  %s\n", formatDuration(totals.ScreenTimeSeconds))
	fmt.Printf("Break time:   %s (%d breaks)\n", formatDuration(totals.BreakTimeSeconds), len(breaks))
	fmt.Printf("Reminder:     %s, every %s\n", settings.ReminderPreset, formatDuration(settings.ReminderThresholdSeconds))

	top := topApps(usage, 5)
	if len(top) == 0 {
		return nil
	}
	cyan.Println("\nTop apps:")
	for _, app := range top {
		fmt.Printf("  %-24s %s\n", app.name, formatDuration(app.seconds))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	days, err := s.store.History(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		fmt.Println("No history recorded yet.")
		return nil
	}

	color.New(color.FgCyan, color.Bold).Printf("%-12s %12s %12s\n", "DATE", "SCREEN", "BREAKS")
	for _, d := range days {
		fmt.Printf("%-12s %12s %12s\n", d.Date, formatDuration(d.ScreenTimeSeconds), formatDuration(d.BreakTimeSeconds))
	}

	avg, err := s.store.WeeklyAverageScreenTime(ctx, 7)
	if err != nil {
		return err
	}
	fmt.Printf("\n7-day average: %s\n", formatDuration(avg))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	today := time.Now().Format(domain.DateLayout)
	if err := s.store.ResetDay(ctx, today); err != nil {
		return err
	}

	// a running monitor still holds today's counters in memory
	if pid, ok := s.monitorPID(); ok {
		settings, err := s.settings(ctx)
		if err != nil {
			return err
		}
		settings.ResetRequestedFor = today
		if err := s.store.SaveSettings(ctx, settings); err != nil {
			return err
		}
		fmt.Printf("Reset totals for %s (monitor pid %d applies it within %s)\n",
			today, pid, s.cfg.Tracking.SettingsRefresh)
		return nil
	}

	fmt.Printf("Reset totals for %s\n", today)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	removed, err := s.store.CleanupUnknownApps(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d usage rows without an app name\n", removed)
	return nil
}

func runSetPaused(paused bool) error {
	return updateSettings(func(settings *domain.Settings) error {
		settings.Paused = paused
		return nil
	})
}

func runPresetReminder(cmd *cobra.Command, args []string) error {
	return updateSettings(func(settings *domain.Settings) error {
		return policy.NewRegistry().ApplyReminder(settings, args[0], presetMinutes)
	})
}

func runPresetBreak(cmd *cobra.Command, args []string) error {
	return updateSettings(func(settings *domain.Settings) error {
		return policy.NewRegistry().ApplyBreak(settings, args[0], presetMinutes)
	})
}

func runPresetShow(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}
	printSettings(settings)
	fmt.Printf("Available reminder presets: %s\n", strings.Join(policy.NewRegistry().ReminderIDs(), ", "))
	return nil
}

// updateSettings applies fn to the current presets and saves them. The
// running monitor picks the change up on its next settings refresh.
func updateSettings(fn func(*domain.Settings) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}
	if err := fn(&settings); err != nil {
		return err
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	printSettings(settings)
	return nil
}

func printSettings(settings domain.Settings) {
	fmt.Printf("Reminder: %s (%s)\n", settings.ReminderPreset, formatDuration(settings.ReminderThresholdSeconds))
	fmt.Printf("Break:    %s (%s)\n", settings.BreakPreset, formatDuration(settings.BreakThresholdSeconds))
	if settings.Paused {
		color.New(color.FgYellow).Println("Tracking: paused")
	} else {
		color.New(color.FgGreen).Println("Tracking: active")
	}
}

func runListCommand(kind domain.ListKind, args []string) error {
	action := args[0]
	if action != "list" && len(args) != 2 {
		return fmt.Errorf("%s needs a value", action)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch action {
	case "list":
		values, err := s.store.LoadList(ctx, kind)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			fmt.Println("(empty)")
		}
		for _, v := range values {
			fmt.Println(v)
		}
		return nil
	case "add", "remove":
		value, err := normalizeListValue(kind, args[1])
		if err != nil {
			return err
		}
		if action == "add" {
			err = s.store.AddToList(ctx, kind, value)
		} else {
			err = s.store.RemoveFromList(ctx, kind, value)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s: %s\n", action, kind, value)
		return nil
	default:
		return fmt.Errorf("unknown action %q (want add, remove or list)", action)
	}
}

// normalizeListValue stores app names the way the sampler reports them so
// list lookups match.
func normalizeListValue(kind domain.ListKind, raw string) (string, error) {
	if kind == domain.ListBlockedURLs {
		url := strings.ToLower(strings.TrimSpace(raw))
		if url == "" {
			return "", fmt.Errorf("empty url")
		}
		return url, nil
	}
	id := domain.IdentifyProcess(raw)
	if !id.IsKnown() {
		return "", fmt.Errorf("%q is not an app name", raw)
	}
	return id.String(), nil
}

type appUsage struct {
	name    string
	seconds int64
}

// topApps returns the n most used apps, ties broken by name.
func topApps(usage map[string]int64, n int) []appUsage {
	apps := make([]appUsage, 0, len(usage))
	for name, secs := range usage {
		apps = append(apps, appUsage{name: name, seconds: secs})
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].seconds != apps[j].seconds {
			return apps[i].seconds > apps[j].seconds
		}
		return apps[i].name < apps[j].name
	})
	if len(apps) > n {
		apps = apps[:n]
	}
	return apps
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
