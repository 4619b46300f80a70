package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned for requests sent after the owner stopped.
var ErrClosed = errors.New("state owner closed")

type request struct {
	fn   func(*ActivityState)
	done chan error
}

// Owner is the only goroutine that touches the ActivityState.
// Every read or mutation is sent to it as a request and applied in order,
// so one tick's read-modify-write never interleaves with another's.
type Owner struct {
	state  *ActivityState
	logger *zap.Logger

	reqs    chan request
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// paused mirrors state.Paused for lock-free reads on the hot path.
	paused atomic.Bool
}

// NewOwner takes ownership of s and starts serving requests.
// Callers must not keep using s directly.
func NewOwner(s *ActivityState, logger *zap.Logger) *Owner {
	o := &Owner{
		state:   s,
		logger:  logger,
		reqs:    make(chan request),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	o.paused.Store(s.Paused)
	go o.loop()
	return o
}

func (o *Owner) loop() {
	defer close(o.stopped)
	for {
		select {
		case req := <-o.reqs:
			req.done <- o.apply(req.fn)
		case <-o.quit:
			return
		}
	}
}

func (o *Owner) apply(fn func(*ActivityState)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("state update panicked: %v", r)
			o.logger.Error("recovered panic in state update", zap.Any("panic", r))
		}
		o.state.ClampBreak()
		o.paused.Store(o.state.Paused)
	}()
	fn(o.state)
	return nil
}

// Do runs fn with exclusive access to the state. The break counter is
// clamped after fn returns. fn must not block or perform I/O.
// Once accepted, a request always runs to completion even if ctx is
// cancelled meanwhile.
func (o *Owner) Do(ctx context.Context, fn func(*ActivityState)) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case o.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.stopped:
		return ErrClosed
	}
	return <-req.done
}

// Snapshot returns a copy of the counters.
func (o *Owner) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := o.Do(ctx, func(s *ActivityState) {
		snap = s.Snapshot()
	})
	return snap, err
}

// SetPaused pauses or resumes tracking.
func (o *Owner) SetPaused(ctx context.Context, paused bool) error {
	return o.Do(ctx, func(s *ActivityState) {
		s.Paused = paused
	})
}

// IsPaused reports the last committed pause flag.
func (o *Owner) IsPaused() bool {
	return o.paused.Load()
}

// Close stops the owner after any in-flight request. Safe to call twice.
func (o *Owner) Close() {
	o.once.Do(func() {
		close(o.quit)
	})
	<-o.stopped
}
