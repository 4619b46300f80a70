package fixtures

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// MemoryStore is an in-memory domain.Store.
// Set FailUpserts to make UpsertDailyState return an error.
type MemoryStore struct {
	mu       sync.Mutex
	days     map[string]domain.DailyTotals
	apps     map[string]map[string]int64
	breaks   map[string]map[int64]domain.BreakEpisode
	lists    map[domain.ListKind]map[string]struct{}
	settings *domain.Settings
	upserts  int

	FailUpserts bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		days:   make(map[string]domain.DailyTotals),
		apps:   make(map[string]map[string]int64),
		breaks: make(map[string]map[int64]domain.BreakEpisode),
		lists:  make(map[domain.ListKind]map[string]struct{}),
	}
}

// ErrInjected is returned while FailUpserts is set.
var ErrInjected = errors.New("injected store failure")

func (m *MemoryStore) UpsertDailyState(_ context.Context, date string, screen, brk int64, perApp map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpserts {
		return ErrInjected
	}
	m.upserts++
	m.days[date] = domain.DailyTotals{Date: date, ScreenTimeSeconds: screen, BreakTimeSeconds: brk}
	apps, ok := m.apps[date]
	if !ok {
		apps = make(map[string]int64)
		m.apps[date] = apps
	}
	for app, secs := range perApp {
		apps[app] = secs
	}
	return nil
}

// SetFailUpserts toggles injected upsert failures.
func (m *MemoryStore) SetFailUpserts(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailUpserts = fail
}

// Upserts returns the number of successful upserts.
func (m *MemoryStore) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

func (m *MemoryStore) LoadDailyState(_ context.Context, date string) (*domain.DailyTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals, ok := m.days[date]
	if !ok {
		return nil, nil
	}
	return &totals, nil
}

func (m *MemoryStore) LoadAppUsage(_ context.Context, date string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.apps[date]))
	for app, secs := range m.apps[date] {
		out[app] = secs
	}
	return out, nil
}

func (m *MemoryStore) RecordBreak(_ context.Context, date string, ep domain.BreakEpisode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	day, ok := m.breaks[date]
	if !ok {
		day = make(map[int64]domain.BreakEpisode)
		m.breaks[date] = day
	}
	day[ep.StartedAt.Unix()] = ep
	return nil
}

func (m *MemoryStore) ListBreaks(_ context.Context, date string) ([]domain.BreakEpisode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BreakEpisode, 0, len(m.breaks[date]))
	for _, ep := range m.breaks[date] {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) History(_ context.Context, limit int) ([]domain.DailyTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DailyTotals, 0, len(m.days))
	for _, d := range m.days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) WeeklyAverageScreenTime(ctx context.Context, days int) (int64, error) {
	rows, err := m.History(ctx, days)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		total += r.ScreenTimeSeconds
	}
	return total / int64(len(rows)), nil
}

func (m *MemoryStore) ResetDay(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.days, date)
	delete(m.apps, date)
	delete(m.breaks, date)
	return nil
}

func (m *MemoryStore) CleanupUnknownApps(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, apps := range m.apps {
		for app := range apps {
			if !domain.IdentifyProcess(app).IsKnown() {
				delete(apps, app)
				n++
			}
		}
	}
	return n, nil
}

func (m *MemoryStore) AddToList(_ context.Context, kind domain.ListKind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.lists[kind]
	if !ok {
		set = make(map[string]struct{})
		m.lists[kind] = set
	}
	set[value] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveFromList(_ context.Context, kind domain.ListKind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists[kind], value)
	return nil
}

func (m *MemoryStore) LoadList(_ context.Context, kind domain.ListKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.lists[kind]))
	for v := range m.lists[kind] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) LoadSettings(_ context.Context) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return domain.Settings{}, domain.ErrNotFound
	}
	return *m.settings, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, settings domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ domain.Store = (*MemoryStore)(nil)
