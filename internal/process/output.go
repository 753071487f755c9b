package process

import (
	"bytes"
	"io"
	"os"
	"runtime"
)

// backing stores the bytes of one channel addressed by logical offset.
// Logical offsets keep growing across runs so cursors never move backwards.
type backing interface {
	append(p []byte)
	slice(from, to int64) ([]byte, error)
	// discard drops bytes below upTo where the store can.
	discard(upTo int64)
	// rebase declares that the next byte appended lives at logical offset at.
	rebase(at int64)
}

// outputRecord tracks one channel. start <= read <= end holds at all times.
type outputRecord struct {
	start int64
	read  int64
	end   int64
	store backing
}

func newOutputRecord(store backing) *outputRecord {
	return &outputRecord{store: store}
}

func (r *outputRecord) observe(p []byte) {
	r.store.append(p)
	r.end += int64(len(p))
}

// cumulative returns everything since start and moves the read cursor to end.
func (r *outputRecord) cumulative() ([]byte, error) {
	b, err := r.store.slice(r.start, r.end)
	if err != nil {
		return nil, err
	}
	r.read = r.end
	return b, nil
}

// incremental returns everything since the last read of either kind.
func (r *outputRecord) incremental() ([]byte, error) {
	b, err := r.store.slice(r.read, r.end)
	if err != nil {
		return nil, err
	}
	r.read = r.end
	return b, nil
}

func (r *outputRecord) clear() {
	r.start = r.end
	r.read = r.end
	r.store.discard(r.end)
}

// reset begins a new run. Output of earlier runs is no longer addressable.
func (r *outputRecord) reset() {
	r.clear()
	r.store.rebase(r.end)
}

// memBacking holds pipe output in memory. buf[0] is at logical offset base.
type memBacking struct {
	base int64
	buf  []byte
}

func (m *memBacking) append(p []byte) {
	m.buf = append(m.buf, p...)
}

func (m *memBacking) slice(from, to int64) ([]byte, error) {
	if from < m.base {
		from = m.base
	}
	if to <= from {
		return []byte{}, nil
	}
	return bytes.Clone(m.buf[from-m.base : to-m.base]), nil
}

func (m *memBacking) discard(upTo int64) {
	if upTo <= m.base {
		return
	}
	n := upTo - m.base
	if n >= int64(len(m.buf)) {
		m.buf = nil
	} else {
		m.buf = append([]byte(nil), m.buf[n:]...)
	}
	m.base = upTo
}

func (m *memBacking) rebase(at int64) {
	m.buf = nil
	m.base = at
}

// fileBacking serves output from the redirected file itself. Byte 0 of the
// file is at logical offset base; the file is truncated at each new run.
type fileBacking struct {
	f    *os.File
	base int64
}

func (fb *fileBacking) append([]byte) {}

func (fb *fileBacking) slice(from, to int64) ([]byte, error) {
	if from < fb.base {
		from = fb.base
	}
	if to <= from {
		return []byte{}, nil
	}
	buf := make([]byte, to-from)
	n, err := fb.f.ReadAt(buf, from-fb.base)
	if err != nil && err != io.EOF {
		return nil, &IOError{Op: "read " + fb.f.Name(), Err: err}
	}
	return buf[:n], nil
}

func (fb *fileBacking) discard(int64) {}

func (fb *fileBacking) rebase(at int64) {
	fb.base = at
}

func lineTerminator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// trimLineTerminator strips exactly one trailing platform line terminator.
func trimLineTerminator(s string) string {
	lt := lineTerminator()
	if len(s) >= len(lt) && s[len(s)-len(lt):] == lt {
		return s[:len(s)-len(lt)]
	}
	return s
}
