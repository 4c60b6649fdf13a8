//go:build unix

package rcc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecRunner_Success(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), 5*time.Second, "sh", "-c", "echo hello")

	assert.True(t, res.Success())
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Zero(t, res.ExitCode)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), 5*time.Second, "sh", "-c", "echo nope >&2; exit 3")

	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "nope\n", res.Output())
}

func TestExecRunner_MissingBinary(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), 5*time.Second, "rccdash-no-such-binary")

	assert.False(t, res.Success())
	assert.Equal(t, 127, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestExecRunner_Timeout(t *testing.T) {
	start := time.Now()
	res := ExecRunner{}.Run(context.Background(), 100*time.Millisecond, "sh", "-c", "sleep 5")

	assert.True(t, res.TimedOut)
	assert.False(t, res.Success())
	assert.Less(t, time.Since(start), 3*time.Second)
}
