package infra

import (
	"fmt"
	"time"
)

const frontmostScript = `tell application "System Events" to unix id of first process whose frontmost is true`

type hidIdle struct{ runner CommandRunner }

type frontmostApp struct{ runner CommandRunner }

type powerAssertions struct{ runner CommandRunner }

func newSignalSources(runner CommandRunner) SignalSources {
	return SignalSources{
		Idle:       hidIdle{runner},
		Foreground: frontmostApp{runner},
		Audio:      powerAssertions{runner},
	}
}

func (s hidIdle) IdleDuration() (time.Duration, error) {
	out, err := s.runner.Output("ioreg", "-c", "IOHIDSystem")
	if err != nil {
		return 0, fmt.Errorf("ioreg: %w", err)
	}
	return parseHIDIdleTime(out)
}

func (s frontmostApp) ForegroundPID() (int, error) {
	out, err := s.runner.Output("osascript", "-e", frontmostScript)
	if err != nil {
		return 0, fmt.Errorf("osascript: %w", err)
	}
	return parsePID(out)
}

func (s powerAssertions) AudioActive() (bool, error) {
	out, err := s.runner.Output("pmset", "-g", "assertions")
	if err != nil {
		return false, fmt.Errorf("pmset: %w", err)
	}
	return audioAssertionHeld(out), nil
}
