package process

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/justinpbarnett/procctl/internal/workspace"
)

// tailFile is the read side of one redirected output file. Each run writes
// to a freshly staged file that replaces the previous one only once the
// child has been spawned, so a failed Start keeps the last run's output.
type tailFile struct {
	ch   Channel
	path string
	f    *os.File
	pos  int64
	fb   *fileBacking
	// next reads the staged file of a run that has not been spawned yet.
	next *os.File
}

func (t *tailFile) stagedPath() string { return t.path + ".next" }

func (t *tailFile) readNew(limit int) ([]byte, error) {
	var out []byte
	buf := make([]byte, readChunkSize)
	for len(out) < limit {
		n, err := t.f.ReadAt(buf, t.pos)
		if n > 0 {
			out = append(out, buf[:n]...)
			t.pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, &IOError{Op: "read " + t.path, Err: err}
		}
	}
	return out, nil
}

// promote makes the staged file the one output is served from.
func (t *tailFile) promote() error {
	if t.next == nil {
		return nil
	}
	err := os.Rename(t.stagedPath(), t.path)
	if cerr := t.f.Close(); err == nil {
		err = cerr
	}
	t.f, t.next, t.pos = t.next, nil, 0
	t.fb.f = t.f
	return err
}

// unstage drops a staged file whose run never started.
func (t *tailFile) unstage() error {
	if t.next == nil {
		return nil
	}
	err := t.next.Close()
	t.next = nil
	if rerr := os.Remove(t.stagedPath()); err == nil && !errors.Is(rerr, fs.ErrNotExist) {
		err = rerr
	}
	return err
}

// fileTransport redirects the child's output into files inside a private
// workspace and tails them with a second handle.
type fileTransport struct {
	ws    *workspace.Workspace
	tails []*tailFile
	// children are the descriptors handed to the current child.
	children []*os.File
	feeder   *inputFeeder
	buf      []byte
	lastRead time.Time
}

func newFileTransport(parent string) (*fileTransport, error) {
	ws, err := workspace.Create(parent)
	if err != nil {
		return nil, &IOError{Op: "create workspace", Err: err}
	}
	t := &fileTransport{ws: ws, buf: make([]byte, readChunkSize)}
	for _, ch := range []Channel{Stdout, Stderr} {
		path := ws.Path(ch.String())
		w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			t.destroy()
			return nil, &IOError{Op: "create " + path, Err: err}
		}
		w.Close()
		f, err := os.Open(path)
		if err != nil {
			t.destroy()
			return nil, &IOError{Op: "open " + path, Err: err}
		}
		t.tails = append(t.tails, &tailFile{ch: ch, path: path, f: f, fb: &fileBacking{f: f}})
	}
	return t, nil
}

func (t *fileTransport) backing(ch Channel) backing {
	for _, tf := range t.tails {
		if tf.ch == ch {
			return tf.fb
		}
	}
	return &memBacking{}
}

func (t *fileTransport) open(cmd *exec.Cmd, input io.Reader) error {
	for _, tf := range t.tails {
		staged := tf.stagedPath()
		w, err := os.OpenFile(staged, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			t.release()
			return &IOError{Op: "create " + staged, Err: err}
		}
		t.children = append(t.children, w)
		if tf.next, err = os.Open(staged); err != nil {
			t.release()
			return &IOError{Op: "open " + staged, Err: err}
		}
		if tf.ch == Stdout {
			cmd.Stdout = w
		} else {
			cmd.Stderr = w
		}
	}
	if err := t.openInput(cmd, input); err != nil {
		t.release()
		return err
	}
	t.lastRead = time.Time{}
	return nil
}

// openInput wires input as the child's stdin. Files go to the child as
// they are, streams are fed through a pipe where the platform allows it,
// and everything else is spooled into the workspace.
func (t *fileTransport) openInput(cmd *exec.Cmd, input io.Reader) error {
	switch src := input.(type) {
	case nil:
		return nil
	case *os.File:
		cmd.Stdin = src
		return nil
	case *streamPump:
		feeder, child, err := newInputFeeder(src)
		if err == nil {
			t.feeder = feeder
			t.children = append(t.children, child)
			cmd.Stdin = child
			return nil
		}
		if !errors.Is(err, ErrPipeUnsupported) {
			return err
		}
		input = src.blocking()
	}
	in, err := t.spool(input)
	if err != nil {
		return err
	}
	t.children = append(t.children, in)
	cmd.Stdin = in
	return nil
}

// spool copies input into the workspace and returns a read handle on it.
func (t *fileTransport) spool(input io.Reader) (*os.File, error) {
	path := t.ws.Path("stdin")
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, &IOError{Op: "create " + path, Err: err}
	}
	_, err = io.Copy(w, input)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &IOError{Op: "spool input", Err: err}
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open " + path, Err: err}
	}
	return r, nil
}

func (t *fileTransport) spawned() error {
	errs := []error{t.closeChildren()}
	for _, tf := range t.tails {
		if err := tf.promote(); err != nil {
			errs = append(errs, &IOError{Op: "promote " + tf.path, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (t *fileTransport) closeChildren() error {
	var errs []error
	for _, f := range t.children {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.children = nil
	return errors.Join(errs...)
}

func (t *fileTransport) exchange(wait time.Duration, final bool) ([]chunk, error) {
	limit := drainLimit
	if final {
		limit = finalDrainLimit
	} else if !t.lastRead.IsZero() {
		if d := time.Until(t.lastRead.Add(wait)); d > 0 {
			time.Sleep(d)
		}
	}
	t.lastRead = time.Now()

	var chunks []chunk
	var errs []error
	if t.feeder != nil {
		if final {
			errs = append(errs, t.feeder.close())
		} else {
			errs = append(errs, t.feeder.feed(t.buf))
		}
	}
	for _, tf := range t.tails {
		data, err := tf.readNew(limit)
		if len(data) > 0 {
			chunks = append(chunks, chunk{ch: tf.ch, data: data})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return chunks, errors.Join(errs...)
}

func (t *fileTransport) release() error {
	errs := []error{t.closeChildren()}
	for _, tf := range t.tails {
		errs = append(errs, tf.unstage())
	}
	if t.feeder != nil {
		errs = append(errs, t.feeder.close())
		t.feeder = nil
	}
	return errors.Join(errs...)
}

func (t *fileTransport) destroy() error {
	errs := []error{t.release()}
	for _, tf := range t.tails {
		errs = append(errs, tf.f.Close())
	}
	t.tails = nil
	if t.ws != nil {
		errs = append(errs, t.ws.Remove())
		t.ws = nil
	}
	return errors.Join(errs...)
}

// dir returns the workspace directory, or "" once destroyed.
func (t *fileTransport) dir() string {
	if t.ws == nil {
		return ""
	}
	return t.ws.Dir()
}
