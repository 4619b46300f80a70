package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	// RetryAttempts counts the first try; 1 disables retries.
	RetryAttempts int
	RetryDelay    time.Duration
}

// redisClientOptions maps the store options onto go-redis, retrying
// transient network errors at a fixed delay like the sqlite store.
func redisClientOptions(opts RedisOptions) *redis.Options {
	retries := opts.RetryAttempts - 1
	if retries < 1 {
		// go-redis treats 0 as its own default
		retries = -1
	}
	return &redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      retries,
		MinRetryBackoff: opts.RetryDelay,
		MaxRetryBackoff: opts.RetryDelay,
	}
}

// RedisStore implements domain.Store on redis hashes. Writing a hash field
// overwrites it, which gives the same merge semantics as the sqlite upsert.
//
// Keys (prefix "screenmon"):
//
//	screenmon:days             sorted set of dates, scored by unix midnight
//	screenmon:daily:<date>     hash screen_time, break_time
//	screenmon:apps:<date>      hash app -> seconds
//	screenmon:breaks:<date>    hash start unix -> JSON episode
//	screenmon:list:<kind>      set
//	screenmon:settings         hash
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(redisClientOptions(opts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "screenmon"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func dayScore(date string) float64 {
	t, err := time.ParseInLocation(domain.DateLayout, date, time.UTC)
	if err != nil {
		return 0
	}
	return float64(t.Unix())
}

// --- domain.DailyStateStore implementation ---

func (s *RedisStore) UpsertDailyState(ctx context.Context, date string, screenSeconds, breakSeconds int64, perApp map[string]int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.key("days"), redis.Z{Score: dayScore(date), Member: date})
		pipe.HSet(ctx, s.key("daily", date), "screen_time", screenSeconds, "break_time", breakSeconds)
		if len(perApp) > 0 {
			fields := make(map[string]interface{}, len(perApp))
			for app, secs := range perApp {
				fields[app] = secs
			}
			pipe.HSet(ctx, s.key("apps", date), fields)
		}
		return nil
	})
	return err
}

func (s *RedisStore) LoadDailyState(ctx context.Context, date string) (*domain.DailyTotals, error) {
	data, err := s.client.HGetAll(ctx, s.key("daily", date)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return parseDailyTotals(date, data)
}

func parseDailyTotals(date string, data map[string]string) (*domain.DailyTotals, error) {
	screen, err := strconv.ParseInt(data["screen_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid screen_time for %s: %w", date, err)
	}
	brk, err := strconv.ParseInt(data["break_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid break_time for %s: %w", date, err)
	}
	return &domain.DailyTotals{Date: date, ScreenTimeSeconds: screen, BreakTimeSeconds: brk}, nil
}

func (s *RedisStore) LoadAppUsage(ctx context.Context, date string) (map[string]int64, error) {
	data, err := s.client.HGetAll(ctx, s.key("apps", date)).Result()
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int64, len(data))
	for app, raw := range data {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid usage for %s: %w", app, err)
		}
		usage[app] = secs
	}
	return usage, nil
}

// --- domain.HistoryStore implementation ---

type redisEpisode struct {
	StartedAt int64  `json:"started_at"`
	EndedAt   int64  `json:"ended_at"`
	Duration  int64  `json:"duration"`
	Reason    string `json:"reason"`
	Merged    bool   `json:"merged"`
}

func (s *RedisStore) RecordBreak(ctx context.Context, date string, ep domain.BreakEpisode) error {
	data, err := json.Marshal(redisEpisode{
		StartedAt: ep.StartedAt.Unix(),
		EndedAt:   ep.EndedAt.Unix(),
		Duration:  ep.DurationSeconds,
		Reason:    string(ep.Reason),
		Merged:    ep.Merged,
	})
	if err != nil {
		return err
	}
	field := strconv.FormatInt(ep.StartedAt.Unix(), 10)
	return s.client.HSet(ctx, s.key("breaks", date), field, data).Err()
}

func (s *RedisStore) ListBreaks(ctx context.Context, date string) ([]domain.BreakEpisode, error) {
	data, err := s.client.HGetAll(ctx, s.key("breaks", date)).Result()
	if err != nil {
		return nil, err
	}
	episodes := make([]domain.BreakEpisode, 0, len(data))
	for _, raw := range data {
		var e redisEpisode
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("invalid break episode: %w", err)
		}
		episodes = append(episodes, domain.BreakEpisode{
			StartedAt:       time.Unix(e.StartedAt, 0),
			EndedAt:         time.Unix(e.EndedAt, 0),
			DurationSeconds: e.Duration,
			Reason:          domain.BreakReason(e.Reason),
			Merged:          e.Merged,
		})
	}
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].StartedAt.Before(episodes[j].StartedAt) })
	return episodes, nil
}

func (s *RedisStore) History(ctx context.Context, limit int) ([]domain.DailyTotals, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	dates, err := s.client.ZRevRange(ctx, s.key("days"), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []domain.DailyTotals{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(dates))
	for i, date := range dates {
		cmds[i] = pipe.HGetAll(ctx, s.key("daily", date))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	history := make([]domain.DailyTotals, 0, len(dates))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		totals, err := parseDailyTotals(dates[i], data)
		if err != nil {
			return nil, err
		}
		history = append(history, *totals)
	}
	return history, nil
}

func (s *RedisStore) WeeklyAverageScreenTime(ctx context.Context, days int) (int64, error) {
	history, err := s.History(ctx, days)
	if err != nil || len(history) == 0 {
		return 0, err
	}
	var total int64
	for _, d := range history {
		total += d.ScreenTimeSeconds
	}
	return total / int64(len(history)), nil
}

func (s *RedisStore) ResetDay(ctx context.Context, date string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key("daily", date), s.key("apps", date), s.key("breaks", date))
		pipe.ZRem(ctx, s.key("days"), date)
		return nil
	})
	return err
}

func (s *RedisStore) CleanupUnknownApps(ctx context.Context) (int64, error) {
	dates, err := s.client.ZRange(ctx, s.key("days"), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, date := range dates {
		n, err := s.client.HDel(ctx, s.key("apps", date), "", "unknown", "unknow").Result()
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// --- domain.ListStore implementation ---

func (s *RedisStore) AddToList(ctx context.Context, kind domain.ListKind, value string) error {
	return s.client.SAdd(ctx, s.key("list", string(kind)), value).Err()
}

func (s *RedisStore) RemoveFromList(ctx context.Context, kind domain.ListKind, value string) error {
	return s.client.SRem(ctx, s.key("list", string(kind)), value).Err()
}

func (s *RedisStore) LoadList(ctx context.Context, kind domain.ListKind) ([]string, error) {
	values, err := s.client.SMembers(ctx, s.key("list", string(kind))).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}

// --- domain.SettingsStore implementation ---

func (s *RedisStore) LoadSettings(ctx context.Context) (domain.Settings, error) {
	data, err := s.client.HGetAll(ctx, s.key("settings")).Result()
	if err != nil {
		return domain.Settings{}, err
	}
	if len(data) == 0 {
		return domain.Settings{}, domain.ErrNotFound
	}

	st := domain.Settings{
		ReminderPreset:  data["reminder_preset"],
		BreakPreset:     data["break_preset"],
		PomodoroEnabled: data["pomodoro_enabled"] == "1",
		Paused:          data["paused"] == "1",

		ResetRequestedFor: data["reset_requested_for"],
	}
	st.ReminderThresholdSeconds, _ = strconv.ParseInt(data["reminder_threshold"], 10, 64)
	st.BreakThresholdSeconds, _ = strconv.ParseInt(data["break_threshold"], 10, 64)
	st.PomodoroCycle, _ = strconv.Atoi(data["pomodoro_cycle"])
	return st, nil
}

func (s *RedisStore) SaveSettings(ctx context.Context, st domain.Settings) error {
	return s.client.HSet(ctx, s.key("settings"),
		"reminder_preset", st.ReminderPreset,
		"reminder_threshold", st.ReminderThresholdSeconds,
		"pomodoro_enabled", boolFlag(st.PomodoroEnabled),
		"pomodoro_cycle", st.PomodoroCycle,
		"break_preset", st.BreakPreset,
		"break_threshold", st.BreakThresholdSeconds,
		"paused", boolFlag(st.Paused),
		"reset_requested_for", st.ResetRequestedFor,
	).Err()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ domain.Store = (*RedisStore)(nil)
