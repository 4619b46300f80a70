// Package main is the CLI entry point for screenmon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/screen_mon/internal/config"
	"github.com/eliteGoblin/focusd/screen_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/infra"
	"github.com/eliteGoblin/focusd/screen_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/screen_mon/internal/policy"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
	"github.com/eliteGoblin/focusd/screen_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "screenmon",
	Short: "Screen time and break tracker",
	Long: `screenmon tracks how long you use the screen, which apps you use,
and when you take breaks. It reminds you to stretch after a stretch of
continuous activity and keeps a daily history.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor in the foreground",
	Long: `Runs the activity tracker and break detector until interrupted.
Totals are saved every tick and once more on shutdown (SIGINT/SIGTERM).
Only one monitor may run per data directory.`,
	RunE: runMonitor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.screenmon/config.yaml)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	addQueryCommands(rootCmd)
	addSettingsCommands(rootCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(configPath, zap.NewNop())
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	dataDir, err := infra.ResolveDataDir(cfg.Storage.DataDir)
	if err != nil {
		return err
	}

	pm := infra.NewProcessManager()
	lock := infra.NewMonitorLock(infra.PIDFilePath(dataDir), pm)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release pid file", zap.Error(err))
		}
	}()

	store, err := openStore(cfg, dataDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	keywords, err := loadKeywords(cfg.KeywordsFile)
	if err != nil {
		return err
	}

	service := infra.NewServiceNotifier(logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		service.Stopping()
		cancel()
	}()

	settings := daemon.NewSettingsSync(store, cfg.Tracking.StateConfig(), cfg.Tracking.DontNotifyApps, logger)
	st, err := daemon.LoadInitialState(ctx, store, settings, time.Now(), logger)
	if err != nil {
		return err
	}
	owner := state.NewOwner(st, logger)

	var notifier domain.Notifier = infra.NewLogNotifier(logger)
	var desktop *infra.DesktopNotifier
	if cfg.Notifications.Desktop {
		desktop = infra.NewDesktopNotifier(cfg.Notifications.Timeout, logger)
		notifier = desktop
	}

	sampler := infra.NewOSSampler(
		infra.NewSignalSources(infra.NewCommandRunner(cfg.Tracking.SamplerTimeout)),
		pm,
		cfg.Tracking.SamplerTimeout,
		logger,
	)

	tracker := usecase.NewActivityTracker(usecase.TrackerConfig{
		MaxElapsed:        cfg.Tracking.MaxElapsed,
		PausedNotifyEvery: cfg.Tracking.PausedNotifyEvery,
	}, owner, sampler, store, notifier, keywords, logger)

	detector := usecase.NewBreakDetector(usecase.DetectorConfig{
		MergeGap: cfg.Tracking.BreakMergeGap,
	}, owner, notifier, keywords, logger).WithHistory(store)

	monitor := daemon.NewMonitor(daemon.MonitorConfig{
		TickInterval:    cfg.Tracking.TickInterval,
		CallbackBackoff: cfg.Tracking.CallbackBackoff,
		SettingsRefresh: cfg.Tracking.SettingsRefresh,
		FlushTimeout:    daemon.DefaultMonitorConfig().FlushTimeout,
	}, owner, tracker, detector, settings, store, logger)
	if desktop != nil {
		monitor.WithWorker(desktop.Run)
	}
	monitor.WithWorker(service.Watchdog(func(ctx context.Context) error {
		_, err := owner.Snapshot(ctx)
		return err
	}))

	loader.Watch(func(next *config.Config) {
		settings.SetBase(next.Tracking.StateConfig(), next.Tracking.DontNotifyApps)
		monitor.Resync(ctx)
	})

	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Address, logger)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer stopCancel()
			_ = server.Stop(stopCtx)
		}()
	}

	logger.Info("screenmon starting",
		zap.String("version", Version),
		zap.String("storage", cfg.Storage.Type),
		zap.String("data_dir", dataDir),
		zap.Int("pid", pm.GetCurrentPID()))

	service.Ready()
	return monitor.Run(ctx)
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config, dataDir string, logger *zap.Logger) (domain.Store, error) {
	if cfg.Storage.Type == config.StorageRedis {
		store, err := infra.NewRedisStore(infra.RedisOptions{
			Addr:      cfg.Storage.Redis.Addr,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,

			RetryAttempts: cfg.Storage.RetryAttempts,
			RetryDelay:    cfg.Storage.RetryDelay,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	var key []byte
	if cfg.Storage.Encrypt {
		var provider domain.KeyProvider = infra.NewFileKeyProvider(dataDir)
		if cfg.Storage.KeySource == config.KeySourceKeyring {
			provider = infra.NewKeyringKeyProvider(dataDir)
		}
		var err error
		key, err = infra.EnsureKey(provider)
		if err != nil {
			return nil, fmt.Errorf("failed to get encryption key: %w", err)
		}
	}
	store, err := infra.NewSQLiteStore(infra.SQLiteOptions{
		Path:          infra.DatabasePath(dataDir),
		Key:           key,
		RetryAttempts: cfg.Storage.RetryAttempts,
		RetryDelay:    cfg.Storage.RetryDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func loadKeywords(path string) (*policy.KeywordTable, error) {
	if path == "" {
		return policy.DefaultKeywordTable(), nil
	}
	return policy.LoadKeywordTable(infra.ExpandHome(path))
}

// createLogger builds a JSON logger writing to the configured file, or
// stdout when none is set.
func createLogger(cfg config.LoggingConfig) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zcfg.Level = level
	}
	if cfg.File != "" {
		path := infra.ExpandHome(cfg.File)
		zcfg.OutputPaths = []string{path}
		zcfg.ErrorOutputPaths = []string{path}
	}
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("screenmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
