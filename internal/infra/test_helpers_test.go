package infra

import (
	"errors"
	"os"
	"sync"
	"time"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	mu          sync.Mutex
	names       map[int]string
	runningPIDs map[int]bool
	lookups     int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		names:       make(map[int]string),
		runningPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) NameByPID(pid int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	name, ok := m.names[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return name, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

func (m *mockProcessManager) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

// stubIdle, stubForeground and stubAudio are fixed-answer signal sources.
type stubIdle struct {
	d     time.Duration
	err   error
	delay time.Duration
}

func (s stubIdle) IdleDuration() (time.Duration, error) {
	time.Sleep(s.delay)
	return s.d, s.err
}

type stubForeground struct {
	pid int
	err error
}

func (s stubForeground) ForegroundPID() (int, error) { return s.pid, s.err }

type stubAudio struct {
	active bool
	err    error
}

func (s stubAudio) AudioActive() (bool, error) { return s.active, s.err }

// recordingRunner captures commands instead of executing them.
type recordingRunner struct {
	mu     sync.Mutex
	calls  [][]string
	output map[string][]byte
	err    error
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{output: make(map[string][]byte)}
}

func (r *recordingRunner) record(name string, args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
}

func (r *recordingRunner) Run(name string, args ...string) error {
	r.record(name, args)
	return r.err
}

func (r *recordingRunner) Output(name string, args ...string) ([]byte, error) {
	r.record(name, args)
	return r.output[name], r.err
}

func (r *recordingRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}
