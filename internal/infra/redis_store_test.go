package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(RedisOptions{Addr: mr.Addr(), KeyPrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_UpsertDailyState(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	totals, err := store.LoadDailyState(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Nil(t, totals)

	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 100, 20, map[string]int64{"code": 60, "firefox": 40}))
	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 130, 25, map[string]int64{"code": 80}))

	totals, err = store.LoadDailyState(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, &domain.DailyTotals{Date: "2026-03-14", ScreenTimeSeconds: 130, BreakTimeSeconds: 25}, totals)

	usage, err := store.LoadAppUsage(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"code": 80, "firefox": 40}, usage)

	assert.Equal(t, "130", mr.HGet("test:daily:2026-03-14", "screen_time"))
}

func TestRedisStore_HistoryAndAverage(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	for i, screen := range []int64{100, 200, 300, 400, 500, 600, 700, 800} {
		date := time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.Local).Format(domain.DateLayout)
		require.NoError(t, store.UpsertDailyState(ctx, date, screen, 0, nil))
	}

	history, err := store.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-03-08", history[0].Date)
	assert.Equal(t, int64(700), history[1].ScreenTimeSeconds)

	avg, err := store.WeeklyAverageScreenTime(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(500), avg)
}

func TestRedisStore_BreaksAndReset(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)

	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 10, 400, map[string]int64{"code": 10}))
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", domain.BreakEpisode{
		StartedAt: base.Add(time.Hour), EndedAt: base.Add(2 * time.Hour), DurationSeconds: 3600, Reason: domain.BreakReasonSleep,
	}))
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", domain.BreakEpisode{
		StartedAt: base, EndedAt: base.Add(6 * time.Minute), DurationSeconds: 360, Reason: domain.BreakReasonIdle,
	}))
	require.NoError(t, store.RecordBreak(ctx, "2026-03-14", domain.BreakEpisode{
		StartedAt: base, EndedAt: base.Add(7 * time.Minute), DurationSeconds: 420, Reason: domain.BreakReasonIdle, Merged: true,
	}))

	episodes, err := store.ListBreaks(ctx, "2026-03-14")
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, int64(420), episodes[0].DurationSeconds)
	assert.True(t, episodes[0].Merged)
	assert.Equal(t, domain.BreakReasonSleep, episodes[1].Reason)

	require.NoError(t, store.ResetDay(ctx, "2026-03-14"))

	assert.False(t, mr.Exists("test:daily:2026-03-14"))
	assert.False(t, mr.Exists("test:breaks:2026-03-14"))
	history, err := store.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedisStore_CleanupUnknownApps(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-14", 10, 0, map[string]int64{"unknow": 5, "code": 2}))
	require.NoError(t, store.UpsertDailyState(ctx, "2026-03-13", 10, 0, map[string]int64{"unknown": 9}))

	removed, err := store.CleanupUnknownApps(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	usage, err := store.LoadAppUsage(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"code": 2}, usage)
}

func TestRedisStore_ListsAndSettings(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddToList(ctx, domain.ListBlockedApps, "steam"))
	require.NoError(t, store.AddToList(ctx, domain.ListBlockedApps, "discord"))
	require.NoError(t, store.RemoveFromList(ctx, domain.ListBlockedApps, "steam"))

	apps, err := store.LoadList(ctx, domain.ListBlockedApps)
	require.NoError(t, err)
	assert.Equal(t, []string{"discord"}, apps)

	_, err = store.LoadSettings(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	want := domain.Settings{
		ReminderPreset:           domain.PresetCustom,
		ReminderThresholdSeconds: 600,
		BreakPreset:              domain.PresetStandard,
		BreakThresholdSeconds:    300,
		Paused:                   true,
		ResetRequestedFor:        "2026-03-14",
	}
	require.NoError(t, store.SaveSettings(ctx, want))

	got, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisClientOptions_Retries(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		delay       time.Duration
		wantRetries int
	}{
		{"five attempts", 5, 200 * time.Millisecond, 4},
		{"single attempt disables retries", 1, 200 * time.Millisecond, -1},
		{"unset disables retries", 0, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := redisClientOptions(RedisOptions{Addr: "localhost:6379", RetryAttempts: tt.attempts, RetryDelay: tt.delay})

			assert.Equal(t, tt.wantRetries, opts.MaxRetries)
			assert.Equal(t, tt.delay, opts.MinRetryBackoff)
			assert.Equal(t, tt.delay, opts.MaxRetryBackoff)
		})
	}
}

func TestNewRedisStore_AppliesRetryOptions(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(RedisOptions{Addr: mr.Addr(), RetryAttempts: 3, RetryDelay: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := store.client.Options()
	assert.Equal(t, 2, opts.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, opts.MinRetryBackoff)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(RedisOptions{Addr: addr})
	assert.Error(t, err)
}
