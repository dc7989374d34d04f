//go:build integration

package exec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandExecutor_Integration_Run(t *testing.T) {
	executor := NewCommandExecutor()

	result, err := executor.Run("echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")
}

func TestCommandExecutor_Integration_RunIn(t *testing.T) {
	executor := NewCommandExecutor()
	dir := t.TempDir()

	result, err := executor.RunIn(dir, nil, "pwd")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, dir, strings.TrimSpace(result.Stdout))
}

func TestCommandExecutor_Integration_RunInEnv(t *testing.T) {
	executor := NewCommandExecutor()

	result, err := executor.RunIn("", []string{"EXEC_PROBE=probe-value"}, "printenv", "EXEC_PROBE")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "probe-value", strings.TrimSpace(result.Stdout))
}

func TestCommandExecutor_Integration_NonZeroExit(t *testing.T) {
	executor := NewCommandExecutor()

	result, err := executor.Run("false")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}

func TestCommandExecutor_Integration_StderrCapture(t *testing.T) {
	executor := NewCommandExecutor()

	result, err := executor.Run("sh", "-c", "echo oops >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Stderr, "oops")
}

func TestCommandExecutor_Integration_SignalDeath(t *testing.T) {
	executor := NewCommandExecutor()

	result, err := executor.Run("sh", "-c", "kill -TERM $$")
	require.NoError(t, err)
	assert.Negative(t, result.ExitCode)
}

func TestCommandExecutor_Integration_CommandNotFound(t *testing.T) {
	executor := NewCommandExecutor()

	result, err := executor.Run("this_command_definitely_does_not_exist_12345")
	assert.Error(t, err)
	assert.Nil(t, result)
}
