package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// SQLiteOptions configures SQLiteStore.
type SQLiteOptions struct {
	Path          string
	Key           []byte // nil opens an unencrypted database
	RetryAttempts int
	RetryDelay    time.Duration
}

// SQLiteStore implements domain.Store on a SQLCipher database.
// Writes that hit a busy or locked database are retried a bounded number of
// times before failing with domain.ErrStoreLocked.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewSQLiteStore opens (or creates) the database and its schema.
func NewSQLiteStore(opts SQLiteOptions, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}

	db, err := sql.Open("sqlite3", sqliteDSN(opts.Path, opts.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	// Verify the key by touching the schema
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		path:     opts.Path,
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
		logger:   logger.With(zap.String("component", "sqlite_store")),
	}

	if err := store.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func sqliteDSN(path string, key []byte) string {
	params := []string{"_busy_timeout=1000", "_foreign_keys=1"}
	if len(key) > 0 {
		params = append([]string{
			fmt.Sprintf("_pragma_key=x'%s'", hex.EncodeToString(key)),
			"_pragma_cipher_page_size=4096",
		}, params...)
	}
	return path + "?" + strings.Join(params, "&")
}

// createTables creates the schema if it doesn't exist.
func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS general_usage (
		date TEXT PRIMARY KEY,
		screen_time INTEGER NOT NULL DEFAULT 0,
		break_time INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS app_usage (
		app_name TEXT NOT NULL,
		date TEXT NOT NULL,
		usage_duration INTEGER NOT NULL DEFAULT 0,
		UNIQUE(app_name, date)
	);

	CREATE TABLE IF NOT EXISTS break_episodes (
		started_at INTEGER PRIMARY KEY,
		date TEXT NOT NULL,
		ended_at INTEGER NOT NULL,
		duration INTEGER NOT NULL,
		reason TEXT NOT NULL,
		merged INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS break_episodes_date ON break_episodes(date);

	CREATE TABLE IF NOT EXISTS app_lists (
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (kind, value)
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		reminder_preset TEXT NOT NULL,
		reminder_threshold INTEGER NOT NULL,
		pomodoro_enabled INTEGER NOT NULL,
		pomodoro_cycle INTEGER NOT NULL,
		break_preset TEXT NOT NULL,
		break_threshold INTEGER NOT NULL,
		paused INTEGER NOT NULL DEFAULT 0,
		reset_requested_for TEXT NOT NULL DEFAULT ''
	);
	`
	return s.withRetry(ctx, "create_tables", func() error {
		// WAL lets the CLI read while the monitor writes
		if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return err
		}
		return s.addColumn(ctx, "settings", "reset_requested_for TEXT NOT NULL DEFAULT ''")
	})
}

// addColumn upgrades a table created by an older release.
func (s *SQLiteStore) addColumn(ctx context.Context, table, column string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, column))
	if err != nil && strings.Contains(err.Error(), "duplicate column name") {
		return nil
	}
	return err
}

// isLocked reports whether err is a transient busy/locked condition.
func isLocked(err error) bool {
	var sqlErr sqlcipher.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlcipher.ErrBusy || sqlErr.Code == sqlcipher.ErrLocked
	}
	return strings.Contains(strings.ToLower(err.Error()), "locked")
}

// withRetry runs fn until it succeeds, fails with a non-lock error, or the
// attempts are exhausted.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = fn(); err == nil || !isLocked(err) {
			return err
		}
		s.logger.Debug("database locked, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.attempts))
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreLocked, err)
}

// inTx runs fn in a transaction under withRetry.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// --- domain.DailyStateStore implementation ---

// UpsertDailyState overwrites the day's totals and per-app rows in one transaction.
func (s *SQLiteStore) UpsertDailyState(ctx context.Context, date string, screenSeconds, breakSeconds int64, perApp map[string]int64) error {
	return s.inTx(ctx, "upsert_daily_state", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO general_usage (date, screen_time, break_time)
			VALUES (?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				screen_time = excluded.screen_time,
				break_time = excluded.break_time`,
			date, screenSeconds, breakSeconds,
		); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO app_usage (app_name, date, usage_duration)
			VALUES (?, ?, ?)
			ON CONFLICT(app_name, date) DO UPDATE SET usage_duration = excluded.usage_duration`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for app, secs := range perApp {
			if _, err := stmt.ExecContext(ctx, app, date, secs); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadDailyState returns nil, nil when the date has no row.
func (s *SQLiteStore) LoadDailyState(ctx context.Context, date string) (*domain.DailyTotals, error) {
	totals := domain.DailyTotals{Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT screen_time, break_time FROM general_usage WHERE date = ?`, date,
	).Scan(&totals.ScreenTimeSeconds, &totals.BreakTimeSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// LoadAppUsage returns per-app seconds for date.
func (s *SQLiteStore) LoadAppUsage(ctx context.Context, date string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_name, usage_duration FROM app_usage WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := make(map[string]int64)
	for rows.Next() {
		var app string
		var secs int64
		if err := rows.Scan(&app, &secs); err != nil {
			return nil, err
		}
		usage[app] = secs
	}
	return usage, rows.Err()
}

// --- domain.HistoryStore implementation ---

// RecordBreak upserts an episode keyed by its start second.
func (s *SQLiteStore) RecordBreak(ctx context.Context, date string, ep domain.BreakEpisode) error {
	return s.withRetry(ctx, "record_break", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO break_episodes (started_at, date, ended_at, duration, reason, merged)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(started_at) DO UPDATE SET
				date = excluded.date,
				ended_at = excluded.ended_at,
				duration = excluded.duration,
				reason = excluded.reason,
				merged = excluded.merged`,
			ep.StartedAt.Unix(), date, ep.EndedAt.Unix(), ep.DurationSeconds, string(ep.Reason), ep.Merged,
		)
		return err
	})
}

// ListBreaks returns the day's episodes ordered by start time.
func (s *SQLiteStore) ListBreaks(ctx context.Context, date string) ([]domain.BreakEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT started_at, ended_at, duration, reason, merged
		FROM break_episodes WHERE date = ? ORDER BY started_at`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []domain.BreakEpisode
	for rows.Next() {
		var started, ended int64
		var reason string
		var ep domain.BreakEpisode
		if err := rows.Scan(&started, &ended, &ep.DurationSeconds, &reason, &ep.Merged); err != nil {
			return nil, err
		}
		ep.StartedAt = time.Unix(started, 0)
		ep.EndedAt = time.Unix(ended, 0)
		ep.Reason = domain.BreakReason(reason)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// History returns per-day totals newest first. limit <= 0 returns every day.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]domain.DailyTotals, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, screen_time, break_time
		FROM general_usage ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.DailyTotals
	for rows.Next() {
		var d domain.DailyTotals
		if err := rows.Scan(&d.Date, &d.ScreenTimeSeconds, &d.BreakTimeSeconds); err != nil {
			return nil, err
		}
		history = append(history, d)
	}
	return history, rows.Err()
}

// WeeklyAverageScreenTime averages the most recent days rows, or fewer if
// fewer exist. No rows averages to 0.
func (s *SQLiteStore) WeeklyAverageScreenTime(ctx context.Context, days int) (int64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(screen_time) FROM (
			SELECT screen_time FROM general_usage ORDER BY date DESC LIMIT ?
		)`, days,
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return int64(avg.Float64), nil
}

// ResetDay deletes the date's totals, app rows and break episodes.
func (s *SQLiteStore) ResetDay(ctx context.Context, date string) error {
	return s.inTx(ctx, "reset_day", func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM general_usage WHERE date = ?`,
			`DELETE FROM app_usage WHERE date = ?`,
			`DELETE FROM break_episodes WHERE date = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, date); err != nil {
				return err
			}
		}
		return nil
	})
}

// CleanupUnknownApps deletes app rows recorded under the Unknown sentinels.
func (s *SQLiteStore) CleanupUnknownApps(ctx context.Context) (int64, error) {
	var removed int64
	err := s.withRetry(ctx, "cleanup_unknown_apps", func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM app_usage WHERE app_name IN ('', 'unknown', 'unknow')`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// --- domain.ListStore implementation ---

func (s *SQLiteStore) AddToList(ctx context.Context, kind domain.ListKind, value string) error {
	return s.withRetry(ctx, "add_to_list", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO app_lists (kind, value) VALUES (?, ?)`, string(kind), value)
		return err
	})
}

func (s *SQLiteStore) RemoveFromList(ctx context.Context, kind domain.ListKind, value string) error {
	return s.withRetry(ctx, "remove_from_list", func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM app_lists WHERE kind = ? AND value = ?`, string(kind), value)
		return err
	})
}

func (s *SQLiteStore) LoadList(ctx context.Context, kind domain.ListKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM app_lists WHERE kind = ? ORDER BY value`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// --- domain.SettingsStore implementation ---

// LoadSettings returns domain.ErrNotFound until settings are first saved.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT reminder_preset, reminder_threshold, pomodoro_enabled, pomodoro_cycle,
			break_preset, break_threshold, paused, reset_requested_for
		FROM settings WHERE id = 1`,
	).Scan(&st.ReminderPreset, &st.ReminderThresholdSeconds, &st.PomodoroEnabled, &st.PomodoroCycle,
		&st.BreakPreset, &st.BreakThresholdSeconds, &st.Paused, &st.ResetRequestedFor)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, domain.ErrNotFound
	}
	return st, err
}

// SaveSettings replaces the single settings row.
func (s *SQLiteStore) SaveSettings(ctx context.Context, st domain.Settings) error {
	return s.withRetry(ctx, "save_settings", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO settings
				(id, reminder_preset, reminder_threshold, pomodoro_enabled, pomodoro_cycle,
				 break_preset, break_threshold, paused, reset_requested_for)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ReminderPreset, st.ReminderThresholdSeconds, st.PomodoroEnabled, st.PomodoroCycle,
			st.BreakPreset, st.BreakThresholdSeconds, st.Paused, st.ResetRequestedFor,
		)
		return err
	})
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements domain.Store.
var _ domain.Store = (*SQLiteStore)(nil)
