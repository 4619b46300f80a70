package infra

import (
	"context"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds every external command.
const DefaultCommandTimeout = time.Second

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands, killing them after Timeout.
type RealCommandRunner struct {
	Timeout time.Duration
}

// NewCommandRunner creates a runner with the given per-command timeout.
func NewCommandRunner(timeout time.Duration) *RealCommandRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &RealCommandRunner{Timeout: timeout}
}

// Run executes a command and waits for it to complete
func (r *RealCommandRunner) Run(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Run()
}

// Output executes a command and returns its stdout
func (r *RealCommandRunner) Output(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

var _ CommandRunner = (*RealCommandRunner)(nil)
