package process

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	// ErrInvalidState is matched by every *StateError.
	ErrInvalidState = errors.New("invalid process state")

	// ErrTimedOut is matched by every *TimeoutError.
	ErrTimedOut = errors.New("process timed out")

	// ErrOutputDisabled is returned by output queries when output is discarded.
	ErrOutputDisabled = errors.New("output collection is disabled")

	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid process configuration")

	// ErrInvalidChannel is returned when an output query names Stdin.
	ErrInvalidChannel = errors.New("invalid output channel")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("controller is closed")

	// ErrPipeUnsupported is returned when pipe mode is unavailable on this platform.
	ErrPipeUnsupported = errors.New("pipe mode is not supported on this platform")
)

// StateError reports an operation that is invalid in the current lifecycle state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	if e.State == StateReady {
		return fmt.Sprintf("process: cannot %s: process has not been started", e.Op)
	}
	return fmt.Sprintf("process: cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// SpawnError reports that the OS refused to create the child process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("process: spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IOError reports a failed read, write, or multiplexing call.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("process: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a run exceeded its wall-clock or idle budget.
// The child has already been stopped when this error is returned.
type TimeoutError struct {
	Limit   time.Duration
	Elapsed time.Duration
	// Idle is set when the limit was the idle timeout.
	Idle bool
}

func (e *TimeoutError) Error() string {
	if e.Idle {
		return fmt.Sprintf("process: no output for %v (idle timeout %v)", e.Elapsed.Round(time.Millisecond), e.Limit)
	}
	return fmt.Sprintf("process: exceeded timeout of %v after %v", e.Limit, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Timeout() bool {
	return true
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

// TerminationError reports that a child could not be stopped. Cause holds
// the reason the stop was requested, such as a *TimeoutError.
type TerminationError struct {
	Pid   int
	Cause error
	Err   error
}

func (e *TerminationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("process: terminate pid %d after %v: %v", e.Pid, e.Cause, e.Err)
	}
	return fmt.Sprintf("process: terminate pid %d: %v", e.Pid, e.Err)
}

func (e *TerminationError) Unwrap() []error {
	var errs []error
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ConfigError reports an invalid Config passed to New.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("process: invalid config field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("process: invalid config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
