//go:build unix

package process

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var strategies = []Strategy{StrategyPipe, StrategyFile}

func newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	if cfg.Strategy == StrategyFile && cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func forEachStrategy(t *testing.T, fn func(t *testing.T, s Strategy)) {
	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) { fn(t, s) })
	}
}

func TestRun_EchoHello(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Command: []string{"echo", "hello"}, Strategy: s})

		code, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, code)

		out, err := c.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", out)

		errOut, err := c.Output(Stderr)
		require.NoError(t, err)
		assert.Equal(t, "", errOut)

		text, err := c.OutputText(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
	})
}

func TestRun_ExitCode(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Shell: "exit 3", Strategy: s})

		code, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, code)
		assert.True(t, c.IsTerminated())
		assert.False(t, c.IsRunning())
		assert.Equal(t, StateTerminated, c.State())

		got, err := c.ExitCode()
		require.NoError(t, err)
		assert.Equal(t, code, got)
	})
}

func TestRun_Timeout(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Command: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond, Strategy: s})

		begin := time.Now()
		_, err := c.Run(context.Background())
		elapsed := time.Since(begin)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimedOut))
		var te *TimeoutError
		require.True(t, errors.As(err, &te))
		assert.False(t, te.Idle)
		assert.Equal(t, 50*time.Millisecond, te.Limit)
		// One poll interval past the limit, plus time to reap the child.
		assert.Less(t, elapsed, te.Limit+DefaultPollInterval+250*time.Millisecond)
		assert.Equal(t, StateTerminated, c.State())
	})
}

func TestRun_TimeoutChildCannotBeStopped(t *testing.T) {
	c := newController(t, Config{Command: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond})
	sendSignal = func(int, syscall.Signal) error { return unix.EPERM }
	t.Cleanup(func() { sendSignal = unix.Kill })

	_, err := c.Run(context.Background())

	var term *TerminationError
	require.True(t, errors.As(err, &term))
	var te *TimeoutError
	require.True(t, errors.As(term.Cause, &te))
	assert.Equal(t, 50*time.Millisecond, te.Limit)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.ErrorIs(t, err, unix.EPERM)
	assert.Equal(t, StateRunning, c.State())
}

func TestRun_IdleTimeout(t *testing.T) {
	c := newController(t, Config{Command: []string{"sleep", "5"}, IdleTimeout: 50 * time.Millisecond})

	_, err := c.Run(context.Background())
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Idle)
}

func TestRun_IdleTimeoutResetByOutput(t *testing.T) {
	c := newController(t, Config{
		Shell:       "for i in 1 2 3 4 5; do echo $i; sleep 0.05; done",
		IdleTimeout: time.Second,
	})

	code, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.False(t, c.Stats().LastOutputAt.IsZero())
}

func TestWait_ContextCancelStopsChild(t *testing.T) {
	c := newController(t, Config{Command: []string{"sleep", "5"}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	begin := time.Now()
	_, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 2*time.Second)
	assert.Equal(t, StateTerminated, c.State())
}

func TestStart_WhileRunning(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Command: []string{"sleep", "5"}, Strategy: s})
		require.NoError(t, c.Start())

		err := c.Start()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidState)
		var se *StateError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, StateRunning, se.State)

		require.NoError(t, c.Stop())
		assert.Equal(t, StateTerminated, c.State())
	})
}

func TestStart_SpawnError(t *testing.T) {
	c := newController(t, Config{Command: []string{"/nonexistent/procctl-test-binary"}})

	err := c.Start()
	var se *SpawnError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StateReady, c.State())

	_, err = c.Output(Stdout)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStart_FailedRestartKeepsPreviousRun(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		dir := filepath.Join(t.TempDir(), "work")
		require.NoError(t, os.Mkdir(dir, 0o755))
		c := newController(t, Config{Shell: "echo done; exit 3", Dir: dir, Strategy: s})

		code, err := c.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, code)
		before := c.Stats()

		require.NoError(t, os.Remove(dir))
		err = c.Start()
		var se *SpawnError
		require.True(t, errors.As(err, &se))

		assert.Equal(t, StateTerminated, c.State())
		got, err := c.ExitCode()
		require.NoError(t, err)
		assert.Equal(t, 3, got)
		out, err := c.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "done\n", out)
		assert.Equal(t, before.StartedAt, c.Stats().StartedAt)

		require.NoError(t, os.Mkdir(dir, 0o755))
		code, err = c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, code)
		out, err = c.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "done\n", out)
	})
}

func TestAccessorsBeforeStart(t *testing.T) {
	c := newController(t, Config{Command: []string{"true"}})

	_, err := c.Pid()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.ExitStatus()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.Status()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.IncrementalOutput(Stderr)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, c.Poll(true), ErrInvalidState)
	_, err = c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExitStatus_WhileRunning(t *testing.T) {
	c := newController(t, Config{Command: []string{"sleep", "5"}})
	require.NoError(t, c.Start())

	pid, err := c.Pid()
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	_, err = c.ExitStatus()
	assert.ErrorIs(t, err, ErrInvalidState)

	st, err := c.Status()
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, pid, st.Pid)
}

func TestOutput_InvalidChannel(t *testing.T) {
	c := newController(t, Config{Command: []string{"true"}})
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	_, err = c.Output(Stdin)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestOutput_IncrementalConcatenatesToCumulative(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{
			Shell:    "for i in 1 2 3 4 5; do echo line$i; echo err$i >&2; sleep 0.02; done",
			Strategy: s,
		})
		require.NoError(t, c.Start())

		var out, errOut strings.Builder
		for c.State() == StateRunning {
			require.NoError(t, c.Poll(false))
			chunk, err := c.IncrementalOutput(Stdout)
			require.NoError(t, err)
			out.WriteString(chunk)
			chunk, err = c.IncrementalOutput(Stderr)
			require.NoError(t, err)
			errOut.WriteString(chunk)
		}
		chunk, err := c.IncrementalOutput(Stdout)
		require.NoError(t, err)
		out.WriteString(chunk)
		chunk, err = c.IncrementalOutput(Stderr)
		require.NoError(t, err)
		errOut.WriteString(chunk)

		full, err := c.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, full, out.String())
		assert.Equal(t, "line1\nline2\nline3\nline4\nline5\n", full)

		fullErr, err := c.Output(Stderr)
		require.NoError(t, err)
		assert.Equal(t, fullErr, errOut.String())

		rest, err := c.IncrementalOutput(Stdout)
		require.NoError(t, err)
		assert.Empty(t, rest)
	})
}

func TestClearOutput(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Shell: "echo a; sleep 0.3; echo b", Strategy: s})
		require.NoError(t, c.Start())

		require.Eventually(t, func() bool {
			if err := c.Poll(true); err != nil {
				return false
			}
			out, err := c.Output(Stdout)
			return err == nil && out == "a\n"
		}, 3*time.Second, 10*time.Millisecond)

		require.NoError(t, c.ClearOutput())
		out, err := c.Output(Stdout)
		require.NoError(t, err)
		assert.Empty(t, out)

		_, err = c.Wait(context.Background())
		require.NoError(t, err)

		out, err = c.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "b\n", out)

		inc, err := c.IncrementalOutput(Stdout)
		require.NoError(t, err)
		assert.Empty(t, inc)
	})
}

func TestInput_RewoundOnEachRun(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Command: []string{"cat"}, Input: InputString("x\ny\n"), Strategy: s})

		for i := 0; i < 2; i++ {
			code, err := c.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, code)

			out, err := c.Output(Stdout)
			require.NoError(t, err)
			assert.Equal(t, "x\ny\n", out, "run %d", i)
		}
	})
}

func TestInput_StreamNotRewound(t *testing.T) {
	c := newController(t, Config{Command: []string{"cat"}, Input: InputStream(strings.NewReader("once"))})

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	out, _ := c.Output(Stdout)
	assert.Equal(t, "once", out)

	_, err = c.Run(context.Background())
	require.NoError(t, err)
	out, _ = c.Output(Stdout)
	assert.Empty(t, out)
}

func TestInput_BlockingStreamHonorsTimeout(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		pr, pw := io.Pipe()
		t.Cleanup(func() { pw.Close() })
		c := newController(t, Config{
			Command:  []string{"sleep", "5"},
			Input:    InputStream(pr),
			Timeout:  100 * time.Millisecond,
			Strategy: s,
		})

		begin := time.Now()
		_, err := c.Run(context.Background())
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.Less(t, time.Since(begin), time.Second)
		assert.Equal(t, StateTerminated, c.State())
	})
}

func TestInput_LateStreamReachesChild(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		pr, pw := io.Pipe()
		c := newController(t, Config{Command: []string{"cat"}, Input: InputStream(pr), Strategy: s})
		require.NoError(t, c.Start())

		go func() {
			time.Sleep(50 * time.Millisecond)
			pw.Write([]byte("late\n"))
			pw.Close()
		}()

		code, err := c.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		out, err := c.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "late\n", out)
	})
}

func TestInput_OSPipeHandedToChild(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		t.Cleanup(func() { r.Close(); w.Close() })
		c := newController(t, Config{
			Command:  []string{"sleep", "5"},
			Input:    InputReader(r),
			Timeout:  100 * time.Millisecond,
			Strategy: s,
		})

		begin := time.Now()
		_, err = c.Run(context.Background())
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.Less(t, time.Since(begin), time.Second)

		c2 := newController(t, Config{Command: []string{"cat"}, Input: InputStream(r), Strategy: s})
		_, err = w.Write([]byte("piped\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		_, err = c2.Run(context.Background())
		require.NoError(t, err)
		out, err := c2.Output(Stdout)
		require.NoError(t, err)
		assert.Equal(t, "piped\n", out)
	})
}

func TestInput_LargeThroughPipe(t *testing.T) {
	payload := strings.Repeat("0123456789abcdef", 64*1024)
	c := newController(t, Config{Command: []string{"cat"}, Input: InputString(payload)})

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	out, err := c.Output(Stdout)
	require.NoError(t, err)
	assert.Equal(t, len(payload), len(out))
	assert.Equal(t, int64(len(payload)), c.Stats().BytesStdout)
}

func TestSetInput_WhileRunning(t *testing.T) {
	c := newController(t, Config{Command: []string{"sleep", "5"}})
	require.NoError(t, c.Start())

	assert.ErrorIs(t, c.SetInput(InputString("x")), ErrInvalidState)
	assert.ErrorIs(t, c.SetSink(func(Channel, []byte) {}), ErrInvalidState)
	require.NoError(t, c.Stop())
	assert.NoError(t, c.SetInput(InputString("x")))
}

func TestSink_ReceivesChunks(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		got := map[Channel]*strings.Builder{Stdout: {}, Stderr: {}}
		c := newController(t, Config{
			Shell:    "echo out; echo err >&2",
			Strategy: s,
			Sink: func(ch Channel, chunk []byte) {
				got[ch].Write(chunk)
			},
		})

		_, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "out\n", got[Stdout].String())
		assert.Equal(t, "err\n", got[Stderr].String())
	})
}

func TestDiscardOutput(t *testing.T) {
	var seen strings.Builder
	c := newController(t, Config{
		Command:       []string{"echo", "hi"},
		DiscardOutput: true,
		Sink:          func(_ Channel, chunk []byte) { seen.Write(chunk) },
	})

	_, err := c.Output(Stdout)
	assert.ErrorIs(t, err, ErrOutputDisabled)

	_, err = c.Run(context.Background())
	require.NoError(t, err)

	_, err = c.Output(Stdout)
	assert.ErrorIs(t, err, ErrOutputDisabled)
	_, err = c.IncrementalOutputText(Stderr)
	assert.ErrorIs(t, err, ErrOutputDisabled)
	assert.Equal(t, "hi\n", seen.String())
}

func TestRun_RepeatedRunsResetOutput(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Command: []string{"echo", "hello"}, Strategy: s})
		dir := c.WorkDir()

		for i := 0; i < 3; i++ {
			_, err := c.Run(context.Background())
			require.NoError(t, err)
			out, err := c.Output(Stdout)
			require.NoError(t, err)
			assert.Equal(t, "hello\n", out)
		}
		assert.Equal(t, dir, c.WorkDir())
	})
}

func TestRun_LargeOutput(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		c := newController(t, Config{Shell: "head -c 300000 /dev/zero", Strategy: s})

		_, err := c.Run(context.Background())
		require.NoError(t, err)
		out, err := c.Output(Stdout)
		require.NoError(t, err)
		assert.Len(t, out, 300000)
	})
}

func TestRun_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	c := newController(t, Config{
		Shell:    `echo "$PROCCTL_TEST_VAR"; pwd`,
		Dir:      dir,
		Env:      map[string]string{"PROCCTL_TEST_VAR": "value"},
		ClearEnv: true,
	})

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	out, err := c.OutputText(Stdout)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "value", lines[0])
	assert.Equal(t, filepath.Base(dir), filepath.Base(lines[1]))
}

func TestStop_EscalatesToKill(t *testing.T) {
	c := newController(t, Config{
		Shell:     "trap '' TERM; sleep 30",
		StopGrace: 100 * time.Millisecond,
	})
	require.NoError(t, c.Start())
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, c.Stop())
	st, err := c.ExitStatus()
	require.NoError(t, err)
	assert.True(t, st.Signaled)
	assert.Equal(t, syscall.SIGKILL, st.Signal)
	assert.Equal(t, -1, st.Code)

	assert.NoError(t, c.Stop())
}

func TestSignal(t *testing.T) {
	c := newController(t, Config{Command: []string{"sleep", "5"}})
	assert.ErrorIs(t, c.Signal(syscall.SIGTERM), ErrInvalidState)

	require.NoError(t, c.Start())
	require.NoError(t, c.Signal(syscall.SIGKILL))

	code, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, code)
}

func TestClose_TerminatesRunningChild(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, s Strategy) {
		cfg := Config{Command: []string{"sleep", "30"}, Strategy: s, TempDir: t.TempDir()}
		c, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, c.Start())
		pid, err := c.Pid()
		require.NoError(t, err)
		dir := c.WorkDir()

		require.NoError(t, c.Close())
		assert.Equal(t, unix.ESRCH, unix.Kill(pid, 0))
		if s == StrategyFile {
			_, err := os.Stat(dir)
			assert.True(t, os.IsNotExist(err))
		}

		assert.NoError(t, c.Close())
		assert.ErrorIs(t, c.Start(), ErrClosed)
	})
}

func TestFinalize_TerminatesRunningChild(t *testing.T) {
	c, err := New(Config{Command: []string{"sleep", "30"}, Strategy: StrategyFile, TempDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	pid, _ := c.Pid()
	dir := c.WorkDir()

	c.finalize()
	assert.Equal(t, unix.ESRCH, unix.Kill(pid, 0))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestClose_NeverStarted(t *testing.T) {
	c, err := New(Config{Command: []string{"true"}, Strategy: StrategyFile, TempDir: t.TempDir()})
	require.NoError(t, err)
	dir := c.WorkDir()
	require.DirExists(t, dir)

	require.NoError(t, c.Close())
	assert.NoDirExists(t, dir)
}

func TestStats(t *testing.T) {
	c := newController(t, Config{Command: []string{"echo", "hello"}})
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	st := c.Stats()
	assert.Greater(t, st.SpawnLatency, time.Duration(0))
	assert.False(t, st.StartedAt.IsZero())
	assert.False(t, st.ExitedAt.Before(st.StartedAt))
	assert.Equal(t, int64(6), st.BytesStdout)
	assert.Equal(t, int64(0), st.BytesStderr)
}
