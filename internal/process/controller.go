package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// killGrace is how long Stop waits for a child to be reaped after SIGKILL.
const killGrace = 5 * time.Second

// Controller runs one external command, possibly many times in sequence.
type Controller struct {
	id       string
	cfg      Config
	strategy Strategy
	log      *slog.Logger

	state   State
	closed  bool
	tr      transport
	proc    *osProcess
	lastPid int
	records map[Channel]*outputRecord

	input *Input
	sink  Sink

	exit  ExitStatus
	stats Stats
}

// New validates cfg and allocates the channel transport. In file mode this
// creates the private workspace directory.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &Controller{
		id:       uuid.NewString(),
		cfg:      cfg,
		strategy: resolveStrategy(cfg.Strategy),
		input:    cfg.Input,
		sink:     cfg.Sink,
	}
	c.log = cfg.Logger.With("controller", c.id)

	var err error
	if c.strategy == StrategyFile {
		var ft *fileTransport
		ft, err = newFileTransport(cfg.TempDir)
		if err == nil {
			c.tr = ft
		}
	} else {
		c.tr, err = newPipeTransport()
	}
	if err != nil {
		return nil, err
	}
	c.records = map[Channel]*outputRecord{
		Stdout: newOutputRecord(c.tr.backing(Stdout)),
		Stderr: newOutputRecord(c.tr.backing(Stderr)),
	}
	runtime.SetFinalizer(c, (*Controller).finalize)
	c.log.Debug("controller created", "strategy", c.strategy, "command", c.commandLine())
	return c, nil
}

func (c *Controller) ID() string         { return c.id }
func (c *Controller) State() State       { return c.state }
func (c *Controller) Strategy() Strategy { return c.strategy }

// WorkDir returns the file-mode workspace directory, or "" in pipe mode.
func (c *Controller) WorkDir() string {
	if ft, ok := c.tr.(*fileTransport); ok {
		return ft.dir()
	}
	return ""
}

func (c *Controller) commandLine() string {
	if c.cfg.Shell != "" {
		return c.cfg.Shell
	}
	return strings.Join(c.cfg.Command, " ")
}

// Start spawns the child. It fails with a *StateError while a previous run
// is still in progress. When the spawn fails the state, exit status, and
// output of the previous run are left as they were.
func (c *Controller) Start() error {
	if c.closed {
		return ErrClosed
	}
	if c.state == StateRunning {
		return &StateError{Op: "start", State: c.state}
	}

	var input io.Reader
	if c.input != nil {
		r, err := c.input.prepare()
		if err != nil {
			return &IOError{Op: "rewind input", Err: err}
		}
		input = r
	}

	argv := c.cfg.argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = c.cfg.environ()
	cmd.SysProcAttr = sysProcAttr()
	if err := c.tr.open(cmd, input); err != nil {
		return err
	}

	begin := time.Now()
	err := cmd.Start()
	latency := time.Since(begin)
	if err != nil {
		if rerr := c.tr.release(); rerr != nil {
			c.log.Warn("release after failed spawn", "error", rerr)
		}
		return &SpawnError{Command: c.commandLine(), Err: err}
	}
	if err := c.tr.spawned(); err != nil {
		c.log.Warn("close child descriptors", "error", err)
	}
	for _, rec := range c.records {
		rec.reset()
	}
	c.exit = ExitStatus{}

	c.proc = newOSProcess(cmd.Process)
	c.lastPid = c.proc.pid
	c.stats.recordSpawn(time.Now(), latency)
	c.state = StateRunning
	c.log.Debug("process started", "pid", c.lastPid, "latency", latency)
	return c.refresh()
}

// refresh performs one status query and finishes the run if the child exited.
func (c *Controller) refresh() error {
	exited, err := c.proc.query()
	if err != nil {
		return err
	}
	if exited {
		return c.finish()
	}
	return nil
}

// finish collects the remaining output of an exited child and moves to
// StateTerminated.
func (c *Controller) finish() error {
	chunks, drainErr := c.tr.exchange(0, true)
	c.deliver(chunks)

	var errs []error
	if drainErr != nil {
		errs = append(errs, drainErr)
	}
	if err := c.tr.release(); err != nil {
		errs = append(errs, &IOError{Op: "release channels", Err: err})
	}
	if err := c.proc.release(); err != nil {
		c.log.Debug("release process handle", "error", err)
	}

	c.exit = c.proc.exit
	c.proc = nil
	c.stats.recordExit(time.Now())
	c.state = StateTerminated
	c.log.Debug("process exited",
		"pid", c.lastPid,
		"code", c.exit.Code,
		"signaled", c.exit.Signaled,
		"runtime", c.stats.Runtime,
	)
	return errors.Join(errs...)
}

func (c *Controller) deliver(chunks []chunk) {
	for _, ck := range chunks {
		c.stats.recordOutput(ck.ch, len(ck.data), time.Now())
		if !c.cfg.DiscardOutput {
			c.records[ck.ch].observe(ck.data)
		}
		if c.sink != nil {
			c.sink(ck.ch, ck.data)
		}
	}
}

// Poll performs one bounded status-and-read cycle. Unless force is set, it
// waits up to PollInterval for output before returning. Polling a
// terminated controller is a no-op.
func (c *Controller) Poll(force bool) error {
	switch c.state {
	case StateReady:
		return &StateError{Op: "poll", State: c.state}
	case StateTerminated:
		return nil
	}
	if err := c.checkTimeout(); err != nil {
		return err
	}

	wait := c.cfg.PollInterval
	if force {
		wait = 0
	}
	chunks, err := c.tr.exchange(wait, false)
	c.stats.Polls++
	c.deliver(chunks)
	if err != nil {
		return err
	}
	if err := c.refresh(); err != nil {
		return err
	}
	return c.checkTimeout()
}

// Wait polls until the child exits and returns its exit code. A child killed
// by a signal reports -1. When ctx is cancelled the child is stopped and
// ctx.Err() is returned.
func (c *Controller) Wait(ctx context.Context) (int, error) {
	if c.state == StateReady {
		return -1, &StateError{Op: "wait", State: c.state}
	}
	for c.state == StateRunning {
		if err := ctx.Err(); err != nil {
			if serr := c.Stop(); serr != nil {
				return -1, errors.Join(err, serr)
			}
			return -1, err
		}
		if err := c.Poll(false); err != nil {
			return -1, err
		}
	}
	return c.exit.Code, nil
}

// Run starts the child and waits for it.
func (c *Controller) Run(ctx context.Context) (int, error) {
	if err := c.Start(); err != nil {
		return -1, err
	}
	return c.Wait(ctx)
}

// Stop asks the child's process group to terminate and waits for it to be
// reaped, escalating to SIGKILL after StopGrace. It is a no-op when no child
// is running.
func (c *Controller) Stop() error {
	if c.state != StateRunning {
		return nil
	}
	pid := c.proc.pid
	c.log.Debug("stopping process", "pid", pid)
	if err := c.proc.terminate(); err != nil {
		return &TerminationError{Pid: pid, Err: err}
	}

	deadline := time.Now().Add(c.cfg.StopGrace)
	killed := false
	for {
		chunks, err := c.tr.exchange(c.cfg.PollInterval, false)
		c.deliver(chunks)
		if err != nil {
			c.log.Debug("read while stopping", "pid", pid, "error", err)
		}

		exited, err := c.proc.query()
		if err != nil {
			return &TerminationError{Pid: pid, Err: err}
		}
		if exited {
			return c.finish()
		}
		if time.Now().Before(deadline) {
			continue
		}
		if killed {
			return &TerminationError{Pid: pid, Err: fmt.Errorf("still running %v after SIGKILL", killGrace)}
		}
		c.log.Warn("process ignored SIGTERM, killing", "pid", pid, "grace", c.cfg.StopGrace)
		if err := c.proc.kill(); err != nil {
			return &TerminationError{Pid: pid, Err: err}
		}
		killed = true
		deadline = time.Now().Add(killGrace)
	}
}

// Signal delivers sig to the running child's process group.
func (c *Controller) Signal(sig syscall.Signal) error {
	if c.state != StateRunning {
		return &StateError{Op: "signal", State: c.state}
	}
	if err := c.proc.signal(sig); err != nil {
		return &IOError{Op: "signal " + sig.String(), Err: err}
	}
	return nil
}

// Close stops a running child and releases every resource the controller
// holds, including the file-mode workspace. Close panics if the child
// cannot be terminated. It is safe to call more than once.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	runtime.SetFinalizer(c, nil)
	return c.teardown()
}

func (c *Controller) teardown() error {
	var errs []error
	if c.state == StateRunning {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
		if c.state != StateTerminated {
			panic(fmt.Sprintf("process: controller %s could not terminate pid %d: %v", c.id, c.lastPid, errors.Join(errs...)))
		}
	}
	c.closed = true
	if err := c.tr.destroy(); err != nil {
		errs = append(errs, &IOError{Op: "destroy channels", Err: err})
	}
	return errors.Join(errs...)
}

func (c *Controller) finalize() {
	if c.closed {
		return
	}
	c.log.Warn("controller garbage collected without Close", "state", c.state, "pid", c.lastPid)
	if err := c.teardown(); err != nil {
		c.log.Warn("finalizer teardown", "error", err)
	}
}

// SetInput replaces the stdin source used by later runs.
func (c *Controller) SetInput(in *Input) error {
	if c.state == StateRunning {
		return &StateError{Op: "set input", State: c.state}
	}
	c.input = in
	return nil
}

// SetSink replaces the output callback used by later runs.
func (c *Controller) SetSink(s Sink) error {
	if c.state == StateRunning {
		return &StateError{Op: "set sink", State: c.state}
	}
	c.sink = s
	return nil
}

// Pid returns the pid of the running child.
func (c *Controller) Pid() (int, error) {
	if c.state != StateRunning {
		return 0, &StateError{Op: "get pid", State: c.state}
	}
	return c.proc.pid, nil
}

// ExitStatus returns how the last run ended.
func (c *Controller) ExitStatus() (ExitStatus, error) {
	if c.state != StateTerminated {
		return ExitStatus{}, &StateError{Op: "get exit status", State: c.state}
	}
	return c.exit, nil
}

// ExitCode returns the exit code of the last run, or -1 if it was killed by
// a signal.
func (c *Controller) ExitCode() (int, error) {
	st, err := c.ExitStatus()
	if err != nil {
		return -1, err
	}
	return st.Code, nil
}

// Status queries the OS for the child's state. A child found to have exited
// is finished before the snapshot is taken.
func (c *Controller) Status() (Status, error) {
	if c.state == StateReady {
		return Status{}, &StateError{Op: "query status", State: c.state}
	}
	var err error
	if c.state == StateRunning {
		err = c.refresh()
	}
	st := Status{Pid: c.lastPid, Running: c.state == StateRunning}
	if c.state == StateTerminated {
		st.ExitCode = c.exit.Code
		st.Signaled = c.exit.Signaled
		st.Signal = c.exit.Signal
	}
	return st, err
}

// IsRunning queries the OS and reports whether a child is alive.
func (c *Controller) IsRunning() bool {
	if c.state == StateRunning {
		if err := c.refresh(); err != nil {
			c.log.Debug("status query", "error", err)
		}
	}
	return c.state == StateRunning
}

// IsTerminated queries the OS and reports whether the last run has ended.
func (c *Controller) IsTerminated() bool {
	return !c.IsRunning() && c.state == StateTerminated
}

// Stats returns timing facts about the current or last run.
func (c *Controller) Stats() Stats {
	return c.stats.snapshot(c.state == StateRunning)
}

func (c *Controller) readable(op string, ch Channel) (*outputRecord, error) {
	if c.cfg.DiscardOutput {
		return nil, ErrOutputDisabled
	}
	if c.closed {
		return nil, ErrClosed
	}
	if c.state == StateReady {
		return nil, &StateError{Op: op, State: c.state}
	}
	rec, ok := c.records[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	if err := c.drain(); err != nil {
		return nil, err
	}
	return rec, nil
}

// drain collects output that is already available without waiting.
func (c *Controller) drain() error {
	if c.state != StateRunning {
		return nil
	}
	chunks, err := c.tr.exchange(0, false)
	c.deliver(chunks)
	return err
}

// Output returns everything ch produced since the run started or the last
// ClearOutput, byte for byte.
func (c *Controller) Output(ch Channel) (string, error) {
	rec, err := c.readable("read output", ch)
	if err != nil {
		return "", err
	}
	b, err := rec.cumulative()
	return string(b), err
}

// IncrementalOutput returns what ch produced since the previous read.
func (c *Controller) IncrementalOutput(ch Channel) (string, error) {
	rec, err := c.readable("read output", ch)
	if err != nil {
		return "", err
	}
	b, err := rec.incremental()
	return string(b), err
}

// OutputText is Output with one trailing line terminator removed.
func (c *Controller) OutputText(ch Channel) (string, error) {
	s, err := c.Output(ch)
	return trimLineTerminator(s), err
}

// IncrementalOutputText is IncrementalOutput with one trailing line
// terminator removed.
func (c *Controller) IncrementalOutputText(ch Channel) (string, error) {
	s, err := c.IncrementalOutput(ch)
	return trimLineTerminator(s), err
}

// ClearOutput discards collected output on every channel. Later cumulative
// reads only return bytes produced after the call.
func (c *Controller) ClearOutput() error {
	if c.cfg.DiscardOutput || c.closed {
		return nil
	}
	err := c.drain()
	for _, rec := range c.records {
		rec.clear()
	}
	return err
}
