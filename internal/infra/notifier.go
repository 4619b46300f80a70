package infra

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

const (
	notifyTitle     = "screenmon"
	reminderMessage = "You have been at the screen for a while. Look away and stretch for a few minutes."
	pausedMessage   = "Tracking is paused. Resume with `screenmon resume`."
	notifyQueueSize = 4
)

type notification struct {
	kind string
	body string
}

// LogNotifier delivers notifications to the log. It is the fallback sink
// when desktop notifications are disabled or fail.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(zap.String("component", "notifier"))}
}

func (n *LogNotifier) FireReminder() {
	n.logger.Info("break reminder", zap.String("message", reminderMessage))
}

func (n *LogNotifier) FirePaused() {
	n.logger.Info("tracking paused", zap.String("message", pausedMessage))
}

// DesktopNotifier shows native notifications through a helper command.
// Fire* calls only enqueue; Run delivers them. When the queue is full the
// notification goes to the fallback instead of blocking the tick.
type DesktopNotifier struct {
	runner   CommandRunner
	goos     string
	queue    chan notification
	fallback *LogNotifier
	logger   *zap.Logger
}

// NewDesktopNotifier creates a notifier for the current platform.
func NewDesktopNotifier(timeout time.Duration, logger *zap.Logger) *DesktopNotifier {
	return newDesktopNotifier(NewCommandRunner(timeout), runtime.GOOS, logger)
}

func newDesktopNotifier(runner CommandRunner, goos string, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{
		runner:   runner,
		goos:     goos,
		queue:    make(chan notification, notifyQueueSize),
		fallback: NewLogNotifier(logger),
		logger:   logger.With(zap.String("component", "desktop_notifier")),
	}
}

func (n *DesktopNotifier) FireReminder() {
	n.enqueue(notification{kind: "reminder", body: reminderMessage}, n.fallback.FireReminder)
}

func (n *DesktopNotifier) FirePaused() {
	n.enqueue(notification{kind: "paused", body: pausedMessage}, n.fallback.FirePaused)
}

func (n *DesktopNotifier) enqueue(msg notification, fallback func()) {
	select {
	case n.queue <- msg:
	default:
		n.logger.Debug("notification queue full", zap.String("kind", msg.kind))
		fallback()
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *DesktopNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.queue:
			n.deliver(msg)
		}
	}
}

func (n *DesktopNotifier) deliver(msg notification) {
	name, args, ok := notificationCommand(n.goos, notifyTitle, msg.body)
	if !ok {
		n.logFallback(msg)
		return
	}
	if err := n.runner.Run(name, args...); err != nil {
		n.logger.Warn("desktop notification failed, using fallback",
			zap.String("kind", msg.kind),
			zap.String("command", name),
			zap.Error(err))
		n.logFallback(msg)
	}
}

func (n *DesktopNotifier) logFallback(msg notification) {
	if msg.kind == "paused" {
		n.fallback.FirePaused()
		return
	}
	n.fallback.FireReminder()
}

// notificationCommand returns the helper invocation for goos.
func notificationCommand(goos, title, body string) (string, []string, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name", title, "--expire-time", "30000", title, body}, true
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(body), appleScriptString(title))
		return "osascript", []string{"-e", script}, true
	case "windows":
		return "msg", []string{"*", "/TIME:30", title + ": " + body}, true
	}
	return "", nil, false
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

var (
	_ domain.Notifier = (*LogNotifier)(nil)
	_ domain.Notifier = (*DesktopNotifier)(nil)
)
