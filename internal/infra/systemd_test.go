package infra

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// notifySocket listens where systemd would and collects datagrams.
func notifySocket(t *testing.T) <-chan string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix datagram sockets unavailable")
	}
	dir, err := os.MkdirTemp("", "sd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)

	msgs := make(chan string, 16)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			msgs <- string(buf[:n])
		}
	}()
	return msgs
}

func receive(t *testing.T, msgs <-chan string) string {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no sd_notify message")
		return ""
	}
}

func TestServiceNotifier_ReadyAndStopping(t *testing.T) {
	msgs := notifySocket(t)
	n := NewServiceNotifier(zap.NewNop())

	n.Ready()
	assert.Equal(t, "READY=1", receive(t, msgs))

	n.Stopping()
	assert.Equal(t, "STOPPING=1", receive(t, msgs))
}

func TestServiceNotifier_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	n := NewServiceNotifier(zap.NewNop())

	assert.False(t, n.notify("READY=1"))
}

func TestServiceNotifier_WatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	n := NewServiceNotifier(zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- n.Watchdog(func(context.Context) error { return nil })(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watchdog worker should exit when disabled")
	}
}

func TestServiceNotifier_WatchdogPingsWhileHealthy(t *testing.T) {
	msgs := notifySocket(t)
	t.Setenv("WATCHDOG_USEC", "40000") // 40ms, pings every 20ms
	t.Setenv("WATCHDOG_PID", "")

	var healthy atomic.Bool
	healthy.Store(true)
	check := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("owner stuck")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServiceNotifier(zap.NewNop()).Watchdog(check)(ctx) }()

	assert.True(t, strings.HasPrefix(receive(t, msgs), "WATCHDOG=1"))

	healthy.Store(false)
	time.Sleep(30 * time.Millisecond)
	for len(msgs) > 0 {
		<-msgs
	}
	select {
	case m := <-msgs:
		t.Fatalf("unexpected ping while unhealthy: %q", m)
	case <-time.After(80 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}
