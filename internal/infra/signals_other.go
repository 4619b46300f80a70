//go:build !linux && !darwin && !windows

package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

type unsupportedSignals struct{}

func newSignalSources(CommandRunner) SignalSources {
	return SignalSources{
		Idle:       unsupportedSignals{},
		Foreground: unsupportedSignals{},
		Audio:      unsupportedSignals{},
	}
}

func (unsupportedSignals) IdleDuration() (time.Duration, error) { return 0, domain.ErrUnsupported }

func (unsupportedSignals) ForegroundPID() (int, error) { return 0, domain.ErrUnsupported }

func (unsupportedSignals) AudioActive() (bool, error) { return false, domain.ErrUnsupported }
