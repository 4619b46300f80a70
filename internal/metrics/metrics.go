// Package metrics exposes prometheus instruments for the monitor.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Daily counters, refreshed after every tracker tick
	ScreenTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenmon_screen_time_seconds",
			Help: "Active screen time accumulated today",
		},
	)

	BreakTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenmon_break_time_seconds",
			Help: "Break time accumulated today",
		},
	)

	StretchTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenmon_stretch_time_seconds",
			Help: "Active time since the last stretch reminder",
		},
	)

	// Reminder metrics
	RemindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenmon_reminders_total",
			Help: "Stretch reminders by outcome",
		},
		[]string{"outcome"}, // fired, suppressed
	)

	BreaksRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenmon_breaks_recorded_total",
			Help: "Break episodes recorded in history",
		},
		[]string{"reason"},
	)

	// Loop health
	PersistenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screenmon_persistence_failures_total",
			Help: "Daily state writes dropped after retries",
		},
	)

	SchedulerOverruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenmon_scheduler_overruns_total",
			Help: "Ticks that started after their deadline",
		},
		[]string{"loop"},
	)

	CallbackFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenmon_callback_failures_total",
			Help: "Tick callbacks that returned an error or panicked",
		},
		[]string{"loop"},
	)

	TickGap = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screenmon_tick_gap_seconds",
			Help:    "Wall-clock gap between consecutive ticks",
			Buckets: []float64{1, 2, 3, 5, 10, 30, 60, 300, 3600},
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(
		ScreenTimeSeconds,
		BreakTimeSeconds,
		StretchTimeSeconds,
		RemindersTotal,
		BreaksRecorded,
		PersistenceFailures,
		SchedulerOverruns,
		CallbackFailures,
		TickGap,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new metrics server
func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Handler returns the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("starting metrics server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping metrics server")
	return s.server.Shutdown(ctx)
}
