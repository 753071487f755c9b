//go:build unix

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/justinpbarnett/procctl/internal/config"
	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command in an isolated directory with no user
// config and returns what it printed.
func runCLI(t *testing.T, dir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PROCCTL_CONFIG", "")
	t.Chdir(dir)

	var out, errOut bytes.Buffer
	root := newRootCmd(&app{})
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitCodeError
	require.True(t, errors.As(err, &ee), "expected exitCodeError, got %v", err)
	return ee.code
}

func TestRunStreamsOutput(t *testing.T) {
	for _, strategy := range []string{"pipe", "file"} {
		t.Run(strategy, func(t *testing.T) {
			out, errOut, err := runCLI(t, t.TempDir(), "run", "--strategy", strategy, "--shell", "echo hello; echo oops >&2")
			require.NoError(t, err)
			assert.Equal(t, "hello\n", out)
			assert.Equal(t, "oops\n", errOut)
		})
	}
}

func TestRunArgv(t *testing.T) {
	out, _, err := runCLI(t, t.TempDir(), "run", "--", "printf", "%s-%s", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a-b", out)
}

func TestRunQuiet(t *testing.T) {
	out, _, err := runCLI(t, t.TempDir(), "run", "-q", "--shell", "echo hidden")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunExitCode(t *testing.T) {
	_, _, err := runCLI(t, t.TempDir(), "run", "--shell", "exit 3")
	assert.Equal(t, 3, exitCode(t, err))
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	_, errOut, err := runCLI(t, t.TempDir(), "run", "--timeout", "100ms", "--", "sleep", "5")
	assert.Equal(t, exitTimeout, exitCode(t, err))
	assert.Contains(t, errOut, "timeout")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExitErrorUnstoppableChild(t *testing.T) {
	cause := &process.TimeoutError{Limit: time.Second, Elapsed: time.Second}
	term := &process.TerminationError{Pid: 42, Cause: cause, Err: syscall.EPERM}

	var errOut bytes.Buffer
	err := exitError(nil, term, &errOut)
	require.Error(t, err)
	var ee *exitCodeError
	assert.False(t, errors.As(err, &ee), "an unstoppable child must not map to an exit code")
	assert.ErrorAs(t, err, new(*process.TerminationError))
	assert.Empty(t, errOut.String())

	err = exitError(nil, errors.Join(context.Canceled, term), &errOut)
	assert.False(t, errors.As(err, &ee))
}

func TestRunFlagsEnvLeavesJobConfigAlone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Jobs["env"] = config.JobConfig{Shell: "env", Env: map[string]string{"A": "1"}}
	pc, err := cfg.ProcessConfig("env", "", nil)
	require.NoError(t, err)

	var flags runFlags
	cmd := &cobra.Command{}
	flags.register(cmd, false)
	require.NoError(t, cmd.Flags().Parse([]string{"--env", "B=2", "--env", "A=3"}))
	require.NoError(t, flags.apply(cmd, &pc))

	assert.Equal(t, map[string]string{"A": "3", "B": "2"}, pc.Env)
	assert.Equal(t, map[string]string{"A": "1"}, cfg.Jobs["env"].Env)
}

func TestRunEnvAndInputFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(input, []byte("from file"), 0o644))

	out, _, err := runCLI(t, dir, "run", "--env", "GREETING=hi", "--input-file", input,
		"--shell", `printf '%s ' "$GREETING"; cat`)
	require.NoError(t, err)
	assert.Equal(t, "hi from file", out)
}

func TestRunUsageErrors(t *testing.T) {
	_, _, err := runCLI(t, t.TempDir(), "run")
	assert.ErrorContains(t, err, "no command given")

	_, _, err = runCLI(t, t.TempDir(), "run", "--shell", "true", "--", "ls")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, _, err = runCLI(t, t.TempDir(), "run", "--strategy", "socket", "--", "true")
	assert.Error(t, err)

	_, _, err = runCLI(t, t.TempDir(), "run", "--env", "NOEQUALS", "--", "true")
	assert.ErrorContains(t, err, "KEY=VALUE")
}

func TestJob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	cfg := `
jobs:
  where:
    description: print the working directory
    shell: basename "$(pwd)"
    dir: sub
  fail:
    command: ["sh", "-c", "exit 7"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "procctl.yaml"), []byte(cfg), 0o644))

	out, _, err := runCLI(t, dir, "job", "where")
	require.NoError(t, err)
	assert.Equal(t, "sub\n", out)

	_, _, err = runCLI(t, dir, "job", "fail")
	assert.Equal(t, 7, exitCode(t, err))

	out, _, err = runCLI(t, dir, "job", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "where")
	assert.Contains(t, out, "print the working directory")

	_, _, err = runCLI(t, dir, "job", "missing")
	assert.ErrorContains(t, err, "unknown job")
}

func TestInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "procctl.yaml"), []byte("defaults:\n  strategy: socket\n"), 0o644))

	_, _, err := runCLI(t, dir, "run", "--", "true")
	assert.ErrorContains(t, err, "defaults.strategy")

	out, _, err := runCLI(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "procctl version dev")
}

func TestSweepDryRun(t *testing.T) {
	parent := t.TempDir()
	stale := filepath.Join(parent, "procctl-2f1c6d0e-8a4b-4c3e-9a51-0d6f3b7e2a10")
	require.NoError(t, os.MkdirAll(stale, 0o700))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, _, err := runCLI(t, t.TempDir(), "sweep", "--dir", parent, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would remove "+stale)
	assert.DirExists(t, stale)

	out, _, err = runCLI(t, t.TempDir(), "sweep", "--dir", parent)
	require.NoError(t, err)
	assert.Contains(t, out, "1 workspace(s)")
	assert.NoDirExists(t, stale)
}

func TestSchema(t *testing.T) {
	out, _, err := runCLI(t, t.TempDir(), "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "procctl configuration")
}

func TestVersionCheckDev(t *testing.T) {
	out, _, err := runCLI(t, t.TempDir(), "version", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "update check skipped")
}

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"A=1", "B=", "C=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "", "C": "x=y"}, env)

	_, err = parseEnv([]string{"=v"})
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	out, _, err := runCLI(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "procctl.yaml")

	out, _, err = runCLI(t, dir, "job", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "greet")

	_, _, err = runCLI(t, dir, "init")
	assert.ErrorContains(t, err, "already exists")
}
