package rcc

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result is the captured outcome of one external invocation. It is a value,
// never an error: launch failures, timeouts and non-zero exits are all
// represented here.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Err      error
}

func (r Result) Success() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Output returns the stream most useful to a human: stdout on success,
// stderr on failure, falling back to the other when empty.
func (r Result) Output() string {
	if r.Success() {
		if strings.TrimSpace(r.Stdout) != "" {
			return r.Stdout
		}
		return r.Stderr
	}
	if strings.TrimSpace(r.Stderr) != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner executes a command with its own timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) Result
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) Result {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Shell scripts spawn children that may hold the pipes open after the
	// parent is killed.
	cmd.WaitDelay = 2 * time.Second
	configureProcessGroup(cmd)

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}
	res.Err = err

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = "Command timeout"
		}
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}

	res.ExitCode = -1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		res.ExitCode = 127
	}
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res
}

func unavailable(message string) Result {
	return Result{
		Stderr:   message,
		ExitCode: -1,
		Err:      errors.New(message),
	}
}
