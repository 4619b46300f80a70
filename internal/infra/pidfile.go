package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

// ErrMonitorRunning is returned when another live monitor holds the pid file.
var ErrMonitorRunning = errors.New("monitor already running")

// MonitorLock records the PID of the running monitor so that CLI commands
// which rewrite today's rows can refuse while it is live.
type MonitorLock struct {
	path           string
	processManager domain.ProcessManager
}

// LockEntry is the pid file content.
type LockEntry struct {
	PID       int   `json:"pid"`
	StartedAt int64 `json:"started_at"`
}

// NewMonitorLock creates a lock backed by the file at path.
func NewMonitorLock(path string, pm domain.ProcessManager) *MonitorLock {
	return &MonitorLock{path: path, processManager: pm}
}

// Acquire claims the lock for the current process. A file left behind by a
// dead process is replaced.
func (l *MonitorLock) Acquire() error {
	entry := LockEntry{PID: l.processManager.GetCurrentPID(), StartedAt: time.Now().Unix()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil {
				return fmt.Errorf("failed to write pid file: %w", werr)
			}
			return cerr
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create pid file: %w", err)
		}

		holder, alive := l.Holder()
		if alive && holder != entry.PID {
			return fmt.Errorf("%w (pid %d)", ErrMonitorRunning, holder)
		}
		// stale or our own leftover
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale pid file: %w", err)
		}
	}
	return fmt.Errorf("failed to acquire %s", l.path)
}

// Holder returns the recorded PID and whether that process is still running.
func (l *MonitorLock) Holder() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	var entry LockEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.PID <= 0 {
		return 0, false
	}
	return entry.PID, l.processManager.IsRunning(entry.PID)
}

// Release removes the pid file if it belongs to the current process.
func (l *MonitorLock) Release() error {
	holder, _ := l.Holder()
	if holder != l.processManager.GetCurrentPID() {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
