package infra

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

var (
	user32                       = syscall.NewLazyDLL("user32.dll")
	kernel32                     = syscall.NewLazyDLL("kernel32.dll")
	procGetLastInputInfo         = user32.NewProc("GetLastInputInfo")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procGetTickCount64           = kernel32.NewProc("GetTickCount64")
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

type win32Idle struct{}

type win32Foreground struct{}

type noAudio struct{}

func newSignalSources(CommandRunner) SignalSources {
	return SignalSources{
		Idle:       win32Idle{},
		Foreground: win32Foreground{},
		Audio:      noAudio{},
	}
}

func (win32Idle) IdleDuration() (time.Duration, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	result, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if result == 0 {
		return 0, fmt.Errorf("get last input info: %w", err)
	}
	tick, _, _ := procGetTickCount64.Call()
	// dwTime wraps every 49.7 days; compare in 32 bits
	idleMillis := uint32(tick) - info.dwTime
	return time.Duration(idleMillis) * time.Millisecond, nil
}

func (win32Foreground) ForegroundPID() (int, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return 0, fmt.Errorf("no foreground window")
	}
	var pid uint32
	procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return 0, fmt.Errorf("foreground window has no process")
	}
	return int(pid), nil
}

// TODO: query IAudioMeterInformation through WASAPI once a COM binding is vendored.
func (noAudio) AudioActive() (bool, error) {
	return false, domain.ErrUnsupported
}
