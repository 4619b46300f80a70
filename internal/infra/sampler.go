package infra

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// SignalSources groups the per-OS activity signal providers.
type SignalSources struct {
	Idle       domain.IdleSource
	Foreground domain.ForegroundSource
	Audio      domain.AudioSource
}

const (
	processCacheSize = 128
	processCacheTTL  = 30 * time.Second
)

// OSSampler implements domain.ActivitySampler on top of the OS signal
// sources. Each signal is queried concurrently and bounded by a timeout;
// a failed or slow signal degrades to its zero value.
//
// Foreground pid to name lookups are cached for processCacheTTL, which
// bounds how long a reused pid can report the previous name.
type OSSampler struct {
	sources SignalSources
	pm      domain.ProcessManager
	names   *expirable.LRU[int, string]
	timeout time.Duration
	logger  *zap.Logger
}

// NewOSSampler creates a sampler. A nil source is treated as unsupported.
func NewOSSampler(sources SignalSources, pm domain.ProcessManager, timeout time.Duration, logger *zap.Logger) *OSSampler {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &OSSampler{
		sources: sources,
		pm:      pm,
		names:   expirable.NewLRU[int, string](processCacheSize, nil, processCacheTTL),
		timeout: timeout,
		logger:  logger.With(zap.String("component", "sampler")),
	}
}

// Sample reads idle time, the foreground process and audio state.
func (s *OSSampler) Sample(ctx context.Context) domain.ActivitySample {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sample domain.ActivitySample
	sample.Process = domain.Unknown()

	var g errgroup.Group
	g.Go(func() error {
		if s.sources.Idle == nil {
			return nil
		}
		idle, err := within(ctx, s.sources.Idle.IdleDuration)
		if err != nil {
			s.logger.Debug("idle signal unavailable", zap.Error(err))
			return nil
		}
		if idle > 0 {
			sample.IdleSeconds = idle.Seconds()
		}
		return nil
	})
	g.Go(func() error {
		sample.Process = s.foreground(ctx)
		return nil
	})
	g.Go(func() error {
		if s.sources.Audio == nil {
			return nil
		}
		active, err := within(ctx, s.sources.Audio.AudioActive)
		if err != nil {
			s.logger.Debug("audio signal unavailable", zap.Error(err))
			return nil
		}
		sample.AudioActive = active
		return nil
	})
	_ = g.Wait()

	return sample
}

func (s *OSSampler) foreground(ctx context.Context) domain.ProcessIdentity {
	if s.sources.Foreground == nil || s.pm == nil {
		return domain.Unknown()
	}
	name, err := within(ctx, func() (string, error) {
		pid, err := s.sources.Foreground.ForegroundPID()
		if err != nil {
			return "", err
		}
		if name, ok := s.names.Get(pid); ok {
			return name, nil
		}
		name, err := s.pm.NameByPID(pid)
		if err != nil {
			return "", err
		}
		s.names.Add(pid, name)
		return name, nil
	})
	if err != nil {
		s.logger.Debug("foreground process unavailable", zap.Error(err))
		return domain.Unknown()
	}
	return domain.IdentifyProcess(name)
}

// within runs fn in its own goroutine and gives up when ctx expires.
// The goroutine is left to finish on its own; command-backed sources are
// already bounded by their runner timeout.
func within[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

var _ domain.ActivitySampler = (*OSSampler)(nil)
