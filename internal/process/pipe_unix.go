//go:build unix

package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const pipeSupported = true

// makePipe returns a close-on-exec pipe. The fork lock keeps the
// descriptors from leaking into a concurrently spawned child.
func makePipe() (r, w int, err error) {
	var p [2]int
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return p[0], p[1], nil
}

// pipeReader is the parent's non-blocking read end of an output pipe.
type pipeReader struct {
	ch Channel
	fd int
}

func (r *pipeReader) open() bool { return r.fd >= 0 }

func (r *pipeReader) close() error {
	if r.fd < 0 {
		return nil
	}
	err := unix.Close(r.fd)
	r.fd = -1
	return err
}

// drain reads until the pipe would block, reports end of file, or limit
// bytes have been read.
func (r *pipeReader) drain(buf []byte, limit int) ([]byte, error) {
	var out []byte
	for r.open() && len(out) < limit {
		n, err := unix.Read(r.fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return out, nil
		case err != nil:
			return out, &IOError{Op: "read " + r.ch.String(), Err: err}
		case n == 0:
			return out, r.close()
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

// inputFeeder writes Input into the child's stdin pipe without blocking.
type inputFeeder struct {
	fd      int
	src     io.Reader
	pending []byte
	eof     bool
	// starved is set while a stream source has nothing buffered, so the
	// pipe's writability is not worth waiting for.
	starved bool
}

// newInputFeeder returns a feeder for src together with the read end to
// hand the child.
func newInputFeeder(src io.Reader) (*inputFeeder, *os.File, error) {
	r, w, err := makePipe()
	if err != nil {
		return nil, nil, &IOError{Op: "pipe stdin", Err: err}
	}
	if err := unix.SetNonblock(w, true); err != nil {
		unix.Close(r)
		unix.Close(w)
		return nil, nil, &IOError{Op: "set nonblocking stdin", Err: err}
	}
	return &inputFeeder{fd: w, src: src}, os.NewFile(uintptr(r), "stdin"), nil
}

func (f *inputFeeder) open() bool { return f.fd >= 0 }

// wantsWrite reports whether the feeder should wait for POLLOUT.
func (f *inputFeeder) wantsWrite() bool { return f.open() && !f.starved }

func (f *inputFeeder) close() error {
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	f.pending = nil
	return err
}

// feed writes as much pending input as the pipe accepts. The pipe is
// closed once the source is exhausted or the child closed its end.
func (f *inputFeeder) feed(buf []byte) error {
	for f.open() {
		if len(f.pending) == 0 {
			if f.eof {
				return f.close()
			}
			n, err := f.src.Read(buf)
			f.pending = append(f.pending[:0], buf[:n]...)
			f.starved = false
			switch {
			case err == errInputPending:
				f.starved = true
				return nil
			case err == io.EOF:
				f.eof = true
			case err != nil:
				f.close()
				return &IOError{Op: "read input", Err: err}
			}
			continue
		}
		n, err := unix.Write(f.fd, f.pending)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return nil
		case err == unix.EPIPE:
			return f.close()
		case err != nil:
			f.close()
			return &IOError{Op: "write stdin", Err: err}
		}
		f.pending = f.pending[n:]
	}
	return nil
}

// pipeTransport multiplexes anonymous pipes with poll(2).
type pipeTransport struct {
	readers  []*pipeReader
	feeder   *inputFeeder
	children []*os.File
	buf      []byte
	store    map[Channel]*memBacking
}

func newPipeTransport() (transport, error) {
	return &pipeTransport{
		buf:   make([]byte, readChunkSize),
		store: map[Channel]*memBacking{Stdout: {}, Stderr: {}},
	}, nil
}

func (t *pipeTransport) backing(ch Channel) backing {
	return t.store[ch]
}

func (t *pipeTransport) open(cmd *exec.Cmd, input io.Reader) error {
	for _, ch := range []Channel{Stdout, Stderr} {
		r, w, err := makePipe()
		if err != nil {
			t.release()
			return &IOError{Op: "pipe " + ch.String(), Err: err}
		}
		t.readers = append(t.readers, &pipeReader{ch: ch, fd: r})
		child := os.NewFile(uintptr(w), ch.String())
		t.children = append(t.children, child)
		if err := unix.SetNonblock(r, true); err != nil {
			t.release()
			return &IOError{Op: "set nonblocking " + ch.String(), Err: err}
		}
		if ch == Stdout {
			cmd.Stdout = child
		} else {
			cmd.Stderr = child
		}
	}
	switch src := input.(type) {
	case nil:
	case *os.File:
		cmd.Stdin = src
	default:
		feeder, child, err := newInputFeeder(src)
		if err != nil {
			t.release()
			return err
		}
		t.feeder = feeder
		t.children = append(t.children, child)
		cmd.Stdin = child
	}
	return nil
}

func (t *pipeTransport) spawned() error {
	var errs []error
	for _, f := range t.children {
		errs = append(errs, f.Close())
	}
	t.children = nil
	return errors.Join(errs...)
}

func (t *pipeTransport) exchange(wait time.Duration, final bool) ([]chunk, error) {
	if final {
		if t.feeder != nil {
			t.feeder.close()
		}
		return t.drainAll(finalDrainLimit)
	}

	fds := make([]unix.PollFd, 0, 3)
	for _, r := range t.readers {
		if r.open() {
			fds = append(fds, unix.PollFd{Fd: int32(r.fd), Events: unix.POLLIN})
		}
	}
	feeding := t.feeder != nil && t.feeder.open()
	if feeding && t.feeder.wantsWrite() {
		fds = append(fds, unix.PollFd{Fd: int32(t.feeder.fd), Events: unix.POLLOUT})
	}
	if len(fds) == 0 {
		time.Sleep(wait)
	} else {
		timeout := int(wait / time.Millisecond)
		if timeout == 0 && wait > 0 {
			timeout = 1
		}
		if _, err := unix.Poll(fds, timeout); err != nil && err != unix.EINTR {
			return nil, &IOError{Op: "poll", Err: err}
		}
	}

	var errs []error
	if feeding {
		errs = append(errs, t.feeder.feed(t.buf))
	}
	chunks, err := t.drainAll(drainLimit)
	errs = append(errs, err)
	return chunks, errors.Join(errs...)
}

func (t *pipeTransport) drainAll(limit int) ([]chunk, error) {
	var chunks []chunk
	var errs []error
	for _, r := range t.readers {
		data, err := r.drain(t.buf, limit)
		if len(data) > 0 {
			chunks = append(chunks, chunk{ch: r.ch, data: data})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return chunks, errors.Join(errs...)
}

func (t *pipeTransport) release() error {
	errs := []error{t.spawned()}
	for _, r := range t.readers {
		errs = append(errs, r.close())
	}
	t.readers = nil
	if t.feeder != nil {
		errs = append(errs, t.feeder.close())
		t.feeder = nil
	}
	return errors.Join(errs...)
}

func (t *pipeTransport) destroy() error {
	return t.release()
}
