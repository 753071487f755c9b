//go:build !unix

package process

import (
	"errors"
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func shellArgv(line string) []string {
	return []string{"cmd", "/C", line}
}

// osProcess reaps the child from a waiter goroutine because these platforms
// offer no non-blocking wait primitive through the standard library.
type osProcess struct {
	proc   *os.Process
	pid    int
	done   chan struct{}
	state  *os.ProcessState
	err    error
	reaped bool
	exit   ExitStatus
}

func newOSProcess(proc *os.Process) *osProcess {
	p := &osProcess{proc: proc, pid: proc.Pid, done: make(chan struct{})}
	go func() {
		p.state, p.err = proc.Wait()
		close(p.done)
	}()
	return p
}

func (p *osProcess) query() (bool, error) {
	if p.reaped {
		return true, nil
	}
	select {
	case <-p.done:
	default:
		return false, nil
	}
	if p.err != nil {
		return false, &IOError{Op: "wait", Err: p.err}
	}
	p.exit = ExitStatus{Code: p.state.ExitCode()}
	p.reaped = true
	return true, nil
}

func (p *osProcess) signal(sig syscall.Signal) error {
	if p.reaped {
		return nil
	}
	err := p.proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *osProcess) terminate() error { return p.kill() }

func (p *osProcess) kill() error {
	if p.reaped {
		return nil
	}
	err := p.proc.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *osProcess) release() error {
	return p.proc.Release()
}
