package infra

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// ServiceNotifier reports readiness and liveness to systemd over
// NOTIFY_SOCKET. Outside a systemd unit every call is a no-op.
type ServiceNotifier struct {
	logger *zap.Logger
}

// NewServiceNotifier creates a notifier.
func NewServiceNotifier(logger *zap.Logger) *ServiceNotifier {
	return &ServiceNotifier{logger: logger.With(zap.String("component", "systemd"))}
}

// Ready sends READY=1 once the monitor has loaded its state.
func (n *ServiceNotifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

// Stopping sends STOPPING=1 when shutdown begins.
func (n *ServiceNotifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

func (n *ServiceNotifier) notify(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
		return false
	}
	return sent
}

// Watchdog returns a worker that sends WATCHDOG=1 at half the unit's
// WatchdogSec for as long as check succeeds, so a wedged monitor gets
// restarted. The worker exits at once when no watchdog is configured.
func (n *ServiceNotifier) Watchdog(check func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		interval, err := daemon.SdWatchdogEnabled(false)
		if err != nil {
			n.logger.Warn("invalid watchdog configuration", zap.Error(err))
			return nil
		}
		if interval <= 0 {
			return nil
		}
		interval /= 2
		n.logger.Info("systemd watchdog enabled", zap.Duration("ping_interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, interval)
				err := check(checkCtx)
				cancel()
				if err != nil {
					n.logger.Warn("liveness check failed, withholding watchdog ping", zap.Error(err))
					continue
				}
				n.notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}
