package infra

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NewSignalSources returns the activity signal providers for this platform.
func NewSignalSources(runner CommandRunner) SignalSources {
	return newSignalSources(runner)
}

// parseMillis parses xprintidle output.
func parseMillis(out []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse idle milliseconds: %w", err)
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parsePID parses a single PID printed by a helper command.
func parsePID(out []byte) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse pid: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	return pid, nil
}

// parseHIDIdleTime extracts the idle time from `ioreg -c IOHIDSystem` output.
// The value is reported in nanoseconds.
func parseHIDIdleTime(out []byte) (time.Duration, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, `"HIDIdleTime"`) {
			continue
		}
		_, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		ns, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
		}
		return time.Duration(ns), nil
	}
	return 0, fmt.Errorf("HIDIdleTime not found")
}

// sinkInputsPlaying reports whether `pactl list sink-inputs` shows any
// uncorked stream.
func sinkInputsPlaying(out []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "Corked: no" {
			return true
		}
	}
	return false
}

// audioAssertionHeld reports whether `pmset -g assertions` lists an audio
// assertion taken by coreaudiod.
func audioAssertionHeld(out []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "coreaudiod") && strings.Contains(line, "PreventUserIdleSleep") {
			return true
		}
		if strings.Contains(line, "com.apple.audio") && strings.Contains(line, "active") {
			return true
		}
	}
	return false
}
