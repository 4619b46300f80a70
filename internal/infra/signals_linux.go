package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

type x11Idle struct{ runner CommandRunner }

type x11Foreground struct{ runner CommandRunner }

type pulseAudio struct{ runner CommandRunner }

func newSignalSources(runner CommandRunner) SignalSources {
	return SignalSources{
		Idle:       x11Idle{runner},
		Foreground: x11Foreground{runner},
		Audio:      pulseAudio{runner},
	}
}

func waylandOnly() bool {
	return strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") && os.Getenv("DISPLAY") == ""
}

func (s x11Idle) IdleDuration() (time.Duration, error) {
	if waylandOnly() {
		return 0, domain.ErrUnsupported
	}
	out, err := s.runner.Output("xprintidle")
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}
	return parseMillis(out)
}

func (s x11Foreground) ForegroundPID() (int, error) {
	if waylandOnly() {
		return 0, domain.ErrUnsupported
	}
	out, err := s.runner.Output("xdotool", "getactivewindow", "getwindowpid")
	if err != nil {
		return 0, fmt.Errorf("xdotool: %w", err)
	}
	return parsePID(out)
}

func (s pulseAudio) AudioActive() (bool, error) {
	out, err := s.runner.Output("pactl", "list", "sink-inputs")
	if err != nil {
		return false, fmt.Errorf("pactl: %w", err)
	}
	return sinkInputsPlaying(out), nil
}
