package process

import (
	"fmt"
	"syscall"
	"time"
)

// State is the lifecycle state of a Controller.
type State int

const (
	// StateReady indicates the controller has never been started.
	StateReady State = iota
	// StateRunning indicates a child process is alive.
	StateRunning
	// StateTerminated indicates the last child exited and was reaped.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Channel identifies one of the child's standard streams.
type Channel int

const (
	Stdin Channel = iota
	Stdout
	Stderr
)

func (c Channel) String() string {
	switch c {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("channel(%d)", c)
	}
}

// ExitStatus describes how a child process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the child was killed by a signal.
	Code int
	// Signaled reports whether the child was terminated by a signal.
	Signaled bool
	// Signal is the terminating signal when Signaled is true.
	Signal syscall.Signal
}

// Status is a point-in-time snapshot of the child, taken by Controller.Status.
type Status struct {
	Pid      int
	Running  bool
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
}

// Stats records coarse timing facts about the current or last run.
type Stats struct {
	// SpawnLatency is how long the OS spawn call took.
	SpawnLatency time.Duration
	StartedAt    time.Time
	ExitedAt     time.Time
	// Runtime is the wall time between spawn and exit, or until now while running.
	Runtime      time.Duration
	Polls        int
	BytesStdout  int64
	BytesStderr  int64
	LastOutputAt time.Time
}
