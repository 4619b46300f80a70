package infra

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// newTestStore creates an encrypted store in a temp directory for testing.
func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewSQLiteStore(SQLiteOptions{
		Path:          DatabasePath(dataDir),
		Key:           key,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir
}

func TestSQLiteStore_UpsertDailyState(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	totals, err := store.LoadDailyState(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Nil(t, totals, "absent day loads as nil")

	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 100, 20, map[string]int64{"code": 60, "firefox": 40}))
	// overwrite, and a new app
	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 130, 25, map[string]int64{"code": 80, "zoom": 10}))

	totals, err = store.LoadDailyState(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, &domain.DailyTotals{Date: "2026-03-14", ScreenTimeSeconds: 130, BreakTimeSeconds: 25}, totals)

	usage, err := store.LoadAppUsage(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"code": 80, "firefox": 40, "zoom": 10}, usage)
}

func TestSQLiteStore_ReopenWithKey(t *testing.T) {
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)
	opts := SQLiteOptions{Path: DatabasePath(dataDir), Key: key, RetryAttempts: 1}

	store, err := NewSQLiteStore(opts, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.UpsertDailyState(context.Background(), "2026-03-14", 5, 1, nil))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(opts, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	totals, err := store.LoadDailyState(context.Background(), "2026-03-14")
	require.NoError(t, err)
	require.NotNil(t, totals)
	assert.Equal(t, int64(5), totals.ScreenTimeSeconds)
}

func TestSQLiteStore_WrongKey(t *testing.T) {
	dataDir := t.TempDir()
	key, _ := GenerateKey()
	other, _ := GenerateKey()

	store, err := NewSQLiteStore(SQLiteOptions{Path: DatabasePath(dataDir), Key: key, RetryAttempts: 1}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewSQLiteStore(SQLiteOptions{Path: DatabasePath(dataDir), Key: other, RetryAttempts: 1}, zap.NewNop())
	assert.Error(t, err)
}

func TestSQLiteStore_Breaks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)

	first := domain.BreakEpisode{StartedAt: base, EndedAt: base.Add(6 * time.Minute), DurationSeconds: 360, Reason: domain.BreakReasonIdle}
	second := domain.BreakEpisode{StartedAt: base.Add(time.Hour), EndedAt: base.Add(2 * time.Hour), DurationSeconds: 3600, Reason: domain.BreakReasonSleep}
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", second))
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", first))

	// a merged episode replaces the row with the same start
	merged := first
	merged.EndedAt = base.Add(8 * time.Minute)
	merged.DurationSeconds = 470
	merged.Merged = true
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", merged))

	episodes, err := store.ListBreaks(ctx, "2026-03-14")
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.True(t, episodes[0].StartedAt.Equal(base))
	assert.Equal(t, int64(470), episodes[0].DurationSeconds)
	assert.True(t, episodes[0].Merged)
	assert.Equal(t, domain.BreakReasonSleep, episodes[1].Reason)

	none, err := store.ListBreaks(ctx, "2026-03-15")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_HistoryAndAverage(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	avg, err := store.WeeklyAverageScreenTime(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, avg, "empty history")

	for i, screen := range []int64{100, 200, 300, 400, 500, 600, 700, 800} {
		date := time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.Local).Format(domain.DateLayout)
		require.NoError(t, store.UpsertDailyState(ctx, date, screen, 0, nil))
	}

	history, err := store.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2026-03-08", history[0].Date)
	assert.Equal(t, "2026-03-06", history[2].Date)

	all, err := store.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	// last seven days: 200..800
	avg, err = store.WeeklyAverageScreenTime(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(500), avg)
}

func TestSQLiteStore_ResetDay(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)

	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 100, 20, map[string]int64{"code": 100}))
	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-13", 50, 5, map[string]int64{"code": 50}))
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", domain.BreakEpisode{StartedAt: base, EndedAt: base, Reason: domain.BreakReasonIdle}))

	require.NoError(t, store.ResetDay(ctx, "2026-03-14"))

	totals, err := store.LoadDailyState(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Nil(t, totals)
	usage, err := store.LoadAppUsage(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Empty(t, usage)
	episodes, err := store.ListBreaks(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Empty(t, episodes)

	kept, err := store.LoadDailyState(ctx, "2026-03-13")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestSQLiteStore_CleanupUnknownApps(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 10, 0, map[string]int64{"unknow": 5, "unknown": 3, "code": 2}))
	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-13", 10, 0, map[string]int64{"unknow": 9}))

	removed, err := store.CleanupUnknownApps(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	usage, err := store.LoadAppUsage(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"code": 2}, usage)
}

func TestSQLiteStore_Lists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddToList(ctx, domain.ListDontNotify, "zoom"))
	require.NoError(t, store.AddToList(ctx, domain.ListDontNotify, "vlc"))
	require.NoError(t, store.AddToList(ctx, domain.ListDontNotify, "zoom"))
	require.NoError(t, store.AddToList(ctx, domain.ListBlockedURLs, "example.com"))

	got, err := store.LoadList(ctx, domain.ListDontNotify)
	require.NoError(t, err)
	assert.Equal(t, []string{"vlc", "zoom"}, got)

	require.NoError(t, store.RemoveFromList(ctx, domain.ListDontNotify, "zoom"))
	got, err = store.LoadList(ctx, domain.ListDontNotify)
	require.NoError(t, err)
	assert.Equal(t, []string{"vlc"}, got)

	empty, err := store.LoadList(ctx, domain.ListBlockedApps)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_Settings(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadSettings(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	want := domain.Settings{
		ReminderPreset:           domain.PresetPomodoro,
		ReminderThresholdSeconds: 1500,
		PomodoroEnabled:          true,
		PomodoroCycle:            2,
		BreakPreset:              domain.PresetCustom,
		BreakThresholdSeconds:    120,
		Paused:                   true,
		ResetRequestedFor:        "2026-03-14",
	}
	require.NoError(t, store.SaveSettings(ctx, want))
	want.PomodoroCycle = 3
	want.ResetRequestedFor = ""
	require.NoError(t, store.SaveSettings(ctx, want))

	got, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteStore_UpgradesSettingsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// settings table as written before reset requests existed
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		reminder_preset TEXT NOT NULL,
		reminder_threshold INTEGER NOT NULL,
		pomodoro_enabled INTEGER NOT NULL,
		pomodoro_cycle INTEGER NOT NULL,
		break_preset TEXT NOT NULL,
		break_threshold INTEGER NOT NULL,
		paused INTEGER NOT NULL DEFAULT 0
	);
	INSERT INTO settings VALUES (1, 'custom', 600, 0, 0, 'standard', 300, 1);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	for i := 0; i < 2; i++ {
		store, err := NewSQLiteStore(SQLiteOptions{Path: path, RetryAttempts: 1}, zap.NewNop())
		require.NoError(t, err, "open %d", i)

		got, err := store.LoadSettings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(600), got.ReminderThresholdSeconds)
		assert.True(t, got.Paused)
		assert.Empty(t, got.ResetRequestedFor)
		require.NoError(t, store.Close())
	}
}

func TestSQLiteStore_WithRetry(t *testing.T) {
	store, _ := newTestStore(t)
	busy := sqlcipher.Error{Code: sqlcipher.ErrBusy}

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", 0, busy, 1, nil},
		{"recovers after busy", 2, busy, 3, nil},
		{"stays locked", 10, busy, 3, domain.ErrStoreLocked},
		{"locked by message", 10, errors.New("database table is locked"), 3, domain.ErrStoreLocked},
		{"other errors are not retried", 10, errors.New("no such table"), 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := store.withRetry(context.Background(), "test", func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.failures >= tt.wantCalls && tt.failures > 0:
				assert.ErrorIs(t, err, tt.err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestSQLiteStore_Unencrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.db")
	store, err := NewSQLiteStore(SQLiteOptions{Path: path}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	require.NoError(t, store.AddToList(context.Background(), domain.ListBlockedApps, "steam"))
}
