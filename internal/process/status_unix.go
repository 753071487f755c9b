//go:build unix

package process

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sendSignal delivers signals for osProcess.
var sendSignal = unix.Kill

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func shellArgv(line string) []string {
	return []string{"/bin/sh", "-c", line}
}

// osProcess is a spawned child that is reaped with wait4(WNOHANG) instead
// of a waiting goroutine.
type osProcess struct {
	proc   *os.Process
	pid    int
	reaped bool
	exit   ExitStatus
}

func newOSProcess(proc *os.Process) *osProcess {
	return &osProcess{proc: proc, pid: proc.Pid}
}

// query reports whether the child has exited, reaping it if so. It never
// blocks and never caches a running result.
func (p *osProcess) query() (exited bool, err error) {
	if p.reaped {
		return true, nil
	}
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, &IOError{Op: "wait4", Err: err}
		}
		if wpid == 0 {
			return false, nil
		}
		break
	}
	switch {
	case ws.Exited():
		p.exit = ExitStatus{Code: ws.ExitStatus()}
	case ws.Signaled():
		p.exit = ExitStatus{Code: -1, Signaled: true, Signal: syscall.Signal(ws.Signal())}
	default:
		// Stopped or continued children are still alive.
		return false, nil
	}
	p.reaped = true
	return true, nil
}

// signal delivers sig to the child's process group, falling back to the
// child alone when the group is already gone.
func (p *osProcess) signal(sig syscall.Signal) error {
	if p.reaped {
		return nil
	}
	err := sendSignal(-p.pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = sendSignal(p.pid, sig)
	}
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *osProcess) terminate() error { return p.signal(unix.SIGTERM) }
func (p *osProcess) kill() error      { return p.signal(unix.SIGKILL) }

func (p *osProcess) release() error {
	return p.proc.Release()
}
