// Package fixtures provides test doubles shared by unit and integration tests.
package fixtures

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// ScriptedSampler replays a fixed sample until changed.
type ScriptedSampler struct {
	mu     sync.Mutex
	sample domain.ActivitySample
	calls  int
}

// NewScriptedSampler starts with an active user in an unknown app.
func NewScriptedSampler() *ScriptedSampler {
	return &ScriptedSampler{sample: domain.ActivitySample{Process: domain.Unknown()}}
}

// Set replaces the sample returned from now on.
func (s *ScriptedSampler) Set(sample domain.ActivitySample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
}

// Active makes the user active in the named app.
func (s *ScriptedSampler) Active(app string) {
	s.Set(domain.ActivitySample{IdleSeconds: 0, Process: domain.IdentifyProcess(app)})
}

// Idle makes the user idle for the given number of seconds.
func (s *ScriptedSampler) Idle(app string, seconds float64) {
	s.Set(domain.ActivitySample{IdleSeconds: seconds, Process: domain.IdentifyProcess(app)})
}

// Sample implements domain.ActivitySampler.
func (s *ScriptedSampler) Sample(_ context.Context) domain.ActivitySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.sample
}

// Calls returns how many samples were taken.
func (s *ScriptedSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// RecordingNotifier counts notifications.
type RecordingNotifier struct {
	mu        sync.Mutex
	reminders int
	paused    int
}

// FireReminder implements domain.Notifier.
func (n *RecordingNotifier) FireReminder() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders++
}

// FirePaused implements domain.Notifier.
func (n *RecordingNotifier) FirePaused() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused++
}

// Reminders returns the number of reminders fired.
func (n *RecordingNotifier) Reminders() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reminders
}

// Paused returns the number of paused notices fired.
func (n *RecordingNotifier) Paused() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.paused
}

// StepClock is a fake clock. Every call to Now advances it by Step.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewStepClock starts at start and advances by step on every read.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, Step: step}
}

// Now returns the current fake time and advances it.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the current fake time without advancing.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
