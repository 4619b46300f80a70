// Package config loads screenmon configuration from a YAML file,
// SCREENMON_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/policy"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
)

// Config holds the complete application configuration
type Config struct {
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	KeywordsFile  string              `mapstructure:"keywords_file"`
}

// TrackingConfig tunes the two tick loops
type TrackingConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	IdleThreshold     time.Duration `mapstructure:"idle_threshold"`
	ReminderThreshold time.Duration `mapstructure:"reminder_threshold"`
	BreakThreshold    time.Duration `mapstructure:"break_threshold"`
	BreakMergeGap     time.Duration `mapstructure:"break_merge_gap"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed"`
	CallbackBackoff   time.Duration `mapstructure:"callback_backoff"`
	PausedNotifyEvery time.Duration `mapstructure:"paused_notify_every"` // 0 = every paused tick
	SettingsRefresh   time.Duration `mapstructure:"settings_refresh"`    // how often stored presets/lists are re-read
	SamplerTimeout    time.Duration `mapstructure:"sampler_timeout"`     // per OS query
	Pomodoro          bool          `mapstructure:"pomodoro"`
	DontNotifyApps    []string      `mapstructure:"dont_notify_apps"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type          string        `mapstructure:"type"` // sqlite or redis
	DataDir       string        `mapstructure:"data_dir"`
	Encrypt       bool          `mapstructure:"encrypt"`
	KeySource     string        `mapstructure:"key_source"` // file or keyring
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig defines the redis backend connection
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"` // empty logs to stdout
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// NotificationsConfig defines desktop notification delivery
type NotificationsConfig struct {
	Desktop bool          `mapstructure:"desktop"` // false uses the log-backed fallback only
	Timeout time.Duration `mapstructure:"timeout"`
}

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Database key sources
const (
	KeySourceFile    = "file"
	KeySourceKeyring = "keyring"
)

// DefaultPath returns ~/.screenmon/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".screenmon", "config.yaml")
	}
	return filepath.Join(home, ".screenmon", "config.yaml")
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath, zap.NewNop()).Load()
}

// Loader reads configuration and can watch the file for changes.
type Loader struct {
	v      *viper.Viper
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLoader creates a loader for configPath. An empty path uses DefaultPath.
func NewLoader(configPath string, logger *zap.Logger) *Loader {
	if configPath == "" {
		configPath = DefaultPath()
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCREENMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:      v,
		path:   configPath,
		logger: logger.With(zap.String("component", "config")),
	}
}

// Path returns the config file location.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the file (if present), then unmarshals and validates.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Watch calls onChange with the new configuration whenever the file is
// rewritten. Invalid edits are logged and ignored.
// A missing file is not watched.
func (l *Loader) Watch(onChange func(*Config)) bool {
	if _, err := os.Stat(l.path); err != nil {
		l.logger.Info("config file absent, not watching", zap.String("path", l.path))
		return false
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			l.logger.Warn("ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		l.logger.Info("config reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Tracking defaults
	v.SetDefault("tracking.tick_interval", "2s")
	v.SetDefault("tracking.idle_threshold", "60s")
	v.SetDefault("tracking.reminder_threshold", "45m")
	v.SetDefault("tracking.break_threshold", "5m")
	v.SetDefault("tracking.break_merge_gap", "15s")
	v.SetDefault("tracking.max_elapsed", "5s")
	v.SetDefault("tracking.callback_backoff", "1s")
	v.SetDefault("tracking.paused_notify_every", "0s")
	v.SetDefault("tracking.settings_refresh", "5s")
	v.SetDefault("tracking.sampler_timeout", "1s")
	v.SetDefault("tracking.pomodoro", false)
	v.SetDefault("tracking.dont_notify_apps", []string{})

	// Storage defaults
	v.SetDefault("storage.type", StorageSQLite)
	v.SetDefault("storage.data_dir", "~/.screenmon")
	v.SetDefault("storage.encrypt", true)
	v.SetDefault("storage.key_source", KeySourceFile)
	v.SetDefault("storage.retry_attempts", 5)
	v.SetDefault("storage.retry_delay", "200ms")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "screenmon")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:9464")

	// Notification defaults
	v.SetDefault("notifications.desktop", true)
	v.SetDefault("notifications.timeout", "5s")

	v.SetDefault("keywords_file", "")
}

// validate validates the configuration
func validate(cfg *Config) error {
	t := cfg.Tracking
	if t.TickInterval <= 0 {
		return fmt.Errorf("tracking.tick_interval must be positive, got %s", t.TickInterval)
	}
	if t.IdleThreshold <= 0 {
		return fmt.Errorf("tracking.idle_threshold must be positive, got %s", t.IdleThreshold)
	}
	if t.ReminderThreshold < 0 || t.BreakThreshold < 0 || t.BreakMergeGap < 0 || t.PausedNotifyEvery < 0 {
		return fmt.Errorf("tracking thresholds must not be negative")
	}
	if t.MaxElapsed <= 0 {
		return fmt.Errorf("tracking.max_elapsed must be positive, got %s", t.MaxElapsed)
	}
	if t.SettingsRefresh <= 0 {
		return fmt.Errorf("tracking.settings_refresh must be positive, got %s", t.SettingsRefresh)
	}

	switch cfg.Storage.Type {
	case StorageSQLite, StorageRedis:
	case "":
		cfg.Storage.Type = StorageSQLite
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
	switch cfg.Storage.KeySource {
	case KeySourceFile, KeySourceKeyring:
	case "":
		cfg.Storage.KeySource = KeySourceFile
	default:
		return fmt.Errorf("unknown storage.key_source: %s", cfg.Storage.KeySource)
	}
	if cfg.Storage.RetryAttempts < 1 {
		return fmt.Errorf("storage.retry_attempts must be at least 1, got %d", cfg.Storage.RetryAttempts)
	}
	if cfg.Storage.Type == StorageRedis && cfg.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}

	if _, err := zap.ParseAtomicLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	for i, app := range cfg.Tracking.DontNotifyApps {
		id := domain.IdentifyProcess(app)
		if !id.IsKnown() {
			return fmt.Errorf("tracking.dont_notify_apps[%d]: %q is not a process name", i, app)
		}
		cfg.Tracking.DontNotifyApps[i] = id.String()
	}

	return nil
}

// StateConfig converts tracking settings into the live state configuration.
func (t TrackingConfig) StateConfig() state.Config {
	cfg := state.Config{
		ReminderThresholdSeconds: t.ReminderThreshold.Seconds(),
		IdleThresholdSeconds:     t.IdleThreshold.Seconds(),
		BreakThresholdSeconds:    t.BreakThreshold.Seconds(),
		ReminderPreset:           domain.PresetStandard,
		BreakPreset:              domain.PresetStandard,
		PomodoroEnabled:          t.Pomodoro,
	}
	switch {
	case t.Pomodoro:
		cfg.ReminderPreset = domain.PresetPomodoro
		if t.ReminderThreshold == policy.DefaultReminderThreshold {
			cfg.ReminderThresholdSeconds = policy.PomodoroReminderThreshold.Seconds()
		}
	case t.ReminderThreshold != policy.DefaultReminderThreshold:
		cfg.ReminderPreset = domain.PresetCustom
	}
	if t.BreakThreshold != policy.DefaultBreakThreshold {
		cfg.BreakPreset = domain.PresetCustom
	}
	return cfg
}
