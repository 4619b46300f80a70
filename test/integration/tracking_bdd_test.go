//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
	"github.com/eliteGoblin/focusd/screen_mon/internal/infra"
	"github.com/eliteGoblin/focusd/screen_mon/internal/policy"
	"github.com/eliteGoblin/focusd/screen_mon/internal/state"
	"github.com/eliteGoblin/focusd/screen_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/screen_mon/test/fixtures"
)

// start is mid-morning so no scenario crosses midnight.
var start = time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)

func quickConfig() state.Config {
	cfg := state.DefaultConfig()
	cfg.ReminderThresholdSeconds = 5
	cfg.IdleThresholdSeconds = 60
	cfg.BreakThresholdSeconds = 5
	return cfg
}

// rig wires the real tracker and detector to a store with scripted OS signals.
type rig struct {
	store    domain.Store
	owner    *state.Owner
	sampler  *fixtures.ScriptedSampler
	notifier *fixtures.RecordingNotifier
	tracker  *usecase.ActivityTracker
	detector *usecase.BreakDetector
	settings *daemon.SettingsSync
}

func newRig(store domain.Store, base state.Config) *rig {
	ctx := context.Background()
	logger := zap.NewNop()
	r := &rig{
		store:    store,
		sampler:  fixtures.NewScriptedSampler(),
		notifier: &fixtures.RecordingNotifier{},
		settings: daemon.NewSettingsSync(store, base, nil, logger),
	}

	st, err := daemon.LoadInitialState(ctx, store, r.settings, start, logger)
	Expect(err).NotTo(HaveOccurred())
	r.owner = state.NewOwner(st, logger)
	DeferCleanup(r.owner.Close)

	keywords := policy.DefaultKeywordTable()
	// every tracker tick credits one second
	r.tracker = usecase.NewActivityTracker(usecase.DefaultTrackerConfig(), r.owner, r.sampler, store,
		r.notifier, keywords, logger).WithClock(fixtures.NewStepClock(start.Add(time.Second), time.Second).Now)
	r.detector = usecase.NewBreakDetector(usecase.DefaultDetectorConfig(), r.owner, r.notifier,
		keywords, logger).WithHistory(store).WithClock(fixtures.NewStepClock(start, 2*time.Second).Now)
	return r
}

func (r *rig) tick(n int, gap time.Duration) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		Expect(r.tracker.Tick(ctx, gap)).To(Succeed())
		Expect(r.detector.Tick(ctx, gap)).To(Succeed())
	}
}

func (r *rig) snapshot() state.Snapshot {
	snap, err := r.owner.Snapshot(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return snap
}

type backend struct {
	name string
	open func() domain.Store
}

var backends = []backend{
	{
		name: "encrypted sqlite",
		open: func() domain.Store {
			dir, err := os.MkdirTemp("", "screenmon-integration-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)

			key, err := infra.EnsureKey(infra.NewFileKeyProvider(dir))
			Expect(err).NotTo(HaveOccurred())
			store, err := infra.NewSQLiteStore(infra.SQLiteOptions{
				Path:          filepath.Join(dir, "screenmon.db"),
				Key:           key,
				RetryAttempts: 3,
				RetryDelay:    10 * time.Millisecond,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(store.Close)
			return store
		},
	},
	{
		name: "redis",
		open: func() domain.Store {
			mr, err := miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(mr.Close)

			store, err := infra.NewRedisStore(infra.RedisOptions{Addr: mr.Addr(), KeyPrefix: "it"})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(store.Close)
			return store
		},
	},
}

var _ = Describe("Activity tracking", func() {
	for _, b := range backends {
		b := b

		Describe("with "+b.name+" storage", func() {
			var (
				ctx   context.Context
				store domain.Store
				today string
			)

			BeforeEach(func() {
				ctx = context.Background()
				store = b.open()
				today = start.Format(domain.DateLayout)
			})

			Context("when the user works in one app", func() {
				It("persists screen time and per-app usage every tick", func() {
					r := newRig(store, quickConfig())
					r.sampler.Active("Code.exe")
					r.tick(4, 2*time.Second)

					totals, err := store.LoadDailyState(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(totals).NotTo(BeNil())
					Expect(totals.ScreenTimeSeconds).To(Equal(int64(4)))

					usage, err := store.LoadAppUsage(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(usage).To(HaveKeyWithValue("code", int64(4)))
				})

				It("resumes today's totals after a restart", func() {
					first := newRig(store, quickConfig())
					first.sampler.Active("code")
					first.tick(3, 2*time.Second)

					second := newRig(store, quickConfig())
					snap := second.snapshot()
					Expect(snap.ScreenTimeSeconds).To(Equal(int64(3)))
					Expect(snap.AppUsage).To(HaveKeyWithValue("code", int64(3)))
				})
			})

			Context("when continuous activity reaches the reminder threshold", func() {
				It("fires one reminder and restarts the stretch", func() {
					r := newRig(store, quickConfig())
					r.sampler.Active("code")
					r.tick(5, 2*time.Second)

					Expect(r.notifier.Reminders()).To(Equal(1))
					Expect(r.snapshot().StretchTimeSeconds).To(BeZero())
				})

				It("stays quiet while a suppressed app is in the foreground", func() {
					Expect(store.AddToList(ctx, domain.ListDontNotify, "zoom")).To(Succeed())

					r := newRig(store, quickConfig())
					r.sampler.Active("Zoom.exe")
					r.tick(5, 2*time.Second)

					Expect(r.notifier.Reminders()).To(BeZero())
				})
			})

			Context("when the user steps away", func() {
				It("records a break episode once activity resumes", func() {
					r := newRig(store, quickConfig())
					r.sampler.Active("code")
					r.tick(1, 2*time.Second)

					r.sampler.Idle("code", 120)
					r.tick(4, 2*time.Second)

					r.sampler.Active("code")
					r.tick(1, 2*time.Second)

					Expect(r.snapshot().BreakTimeSeconds).To(Equal(int64(8)))

					breaks, err := store.ListBreaks(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(breaks).To(HaveLen(1))
					Expect(breaks[0].DurationSeconds).To(Equal(int64(8)))
					Expect(breaks[0].Reason).To(Equal(domain.BreakReasonIdle))
				})

				It("drops breaks shorter than the break threshold", func() {
					r := newRig(store, quickConfig())
					r.sampler.Idle("code", 120)
					r.tick(1, 2*time.Second)
					r.sampler.Active("code")
					r.tick(1, 2*time.Second)

					breaks, err := store.ListBreaks(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(breaks).To(BeEmpty())
				})
			})

			Context("when tracking is paused from the CLI", func() {
				It("stops crediting time and notifies instead", func() {
					cfg := quickConfig()
					settings := state.New(start, cfg).Settings()
					settings.Paused = true
					Expect(store.SaveSettings(ctx, settings)).To(Succeed())

					r := newRig(store, cfg)
					Expect(r.owner.IsPaused()).To(BeTrue())

					r.sampler.Active("code")
					r.tick(3, 2*time.Second)

					Expect(r.snapshot().ScreenTimeSeconds).To(BeZero())
					Expect(r.notifier.Paused()).To(Equal(3))
					Expect(r.notifier.Reminders()).To(BeZero())
				})
			})

			Context("when a preset is selected while running", func() {
				It("applies it on the next settings sync", func() {
					r := newRig(store, quickConfig())

					settings := state.New(start, quickConfig()).Settings()
					Expect(policy.NewRegistry().ApplyReminder(&settings, domain.PresetPomodoro, 0)).To(Succeed())
					Expect(store.SaveSettings(ctx, settings)).To(Succeed())

					Expect(r.settings.Sync(ctx, r.owner)).To(Succeed())

					var cfg state.Config
					Expect(r.owner.Do(ctx, func(s *state.ActivityState) { cfg = s.Config })).To(Succeed())
					Expect(cfg.ReminderPreset).To(Equal(domain.PresetPomodoro))
					Expect(cfg.ReminderThresholdSeconds).To(Equal(float64(25 * 60)))
					Expect(cfg.PomodoroEnabled).To(BeTrue())
				})
			})

			Context("when today is reset from the CLI while running", func() {
				It("zeroes the live counters and keeps tracking from zero", func() {
					r := newRig(store, quickConfig())
					r.sampler.Active("code")
					r.tick(3, 2*time.Second)

					Expect(store.ResetDay(ctx, today)).To(Succeed())
					settings := state.New(start, quickConfig()).Settings()
					settings.ResetRequestedFor = today
					Expect(store.SaveSettings(ctx, settings)).To(Succeed())

					Expect(r.settings.Sync(ctx, r.owner)).To(Succeed())
					snap := r.snapshot()
					Expect(snap.ScreenTimeSeconds).To(BeZero())
					Expect(snap.AppUsage).To(BeEmpty())

					r.tick(2, 2*time.Second)

					totals, err := store.LoadDailyState(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(totals).NotTo(BeNil())
					Expect(totals.ScreenTimeSeconds).To(Equal(int64(2)))

					usage, err := store.LoadAppUsage(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(usage).To(Equal(map[string]int64{"code": 2}))

					stored, err := store.LoadSettings(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(stored.ResetRequestedFor).To(BeEmpty())
				})
			})

			Context("when old rows carry no app name", func() {
				It("cleans them up", func() {
					Expect(store.UpsertDailyState(ctx, today, 10, 0, map[string]int64{"unknown": 4, "code": 6})).To(Succeed())

					removed, err := store.CleanupUnknownApps(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(removed).To(Equal(int64(1)))

					usage, err := store.LoadAppUsage(ctx, today)
					Expect(err).NotTo(HaveOccurred())
					Expect(usage).To(Equal(map[string]int64{"code": 6}))
				})
			})
		})
	}
})
