package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

// Input is the source of the child's stdin. Seekable inputs are rewound
// before every Start so repeated runs see the same bytes.
//
// An *os.File is handed to the child as its stdin descriptor and is never
// read by the Controller. Any other non-seekable reader is read by a
// background goroutine, so a Read that blocks never stalls Poll or Start.
// That goroutine exits once the reader returns an error or io.EOF; a reader
// that never does keeps it parked for the life of the process.
type Input struct {
	r      io.Reader
	rewind bool
}

// InputBytes feeds b to every run.
func InputBytes(b []byte) *Input {
	return &Input{r: bytes.NewReader(b), rewind: true}
}

// InputString feeds s to every run.
func InputString(s string) *Input {
	return &Input{r: strings.NewReader(s), rewind: true}
}

// InputReader feeds r to the child. r is rewound before each run when it
// implements io.Seeker.
func InputReader(r io.Reader) *Input {
	s, ok := r.(io.Seeker)
	if ok {
		// Pipes and terminals satisfy io.Seeker but fail to seek.
		if _, err := s.Seek(0, io.SeekCurrent); err != nil {
			ok = false
		}
	}
	if ok {
		return &Input{r: r, rewind: true}
	}
	return InputStream(r)
}

// InputStream feeds r to the child without ever rewinding it. Later runs
// continue from wherever the previous run stopped reading.
func InputStream(r io.Reader) *Input {
	if f, ok := r.(*os.File); ok {
		return &Input{r: f}
	}
	return &Input{r: newStreamPump(r)}
}

func (in *Input) prepare() (io.Reader, error) {
	if in.rewind {
		if _, err := in.r.(io.Seeker).Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return in.r, nil
}

// errInputPending is returned by streamPump.Read when the source has not
// produced anything yet.
var errInputPending = errors.New("input not ready")

const pumpBacklog = 4

// streamPump turns a reader that may block into one that never does.
type streamPump struct {
	src   io.Reader
	once  sync.Once
	ch    chan []byte
	err   error
	rest  []byte
	ended bool
}

func newStreamPump(src io.Reader) *streamPump {
	return &streamPump{src: src, ch: make(chan []byte, pumpBacklog)}
}

func (p *streamPump) run() {
	for {
		buf := make([]byte, readChunkSize)
		n, err := p.src.Read(buf)
		if n > 0 {
			p.ch <- buf[:n]
		}
		if err != nil {
			p.err = err
			close(p.ch)
			return
		}
	}
}

// Read returns buffered bytes, errInputPending when none have arrived, or
// the source's final error once it is drained.
func (p *streamPump) Read(b []byte) (int, error) {
	p.once.Do(func() { go p.run() })
	if len(p.rest) == 0 {
		if p.ended {
			return 0, p.err
		}
		select {
		case data, ok := <-p.ch:
			if !ok {
				p.ended = true
				return 0, p.err
			}
			p.rest = data
		default:
			return 0, errInputPending
		}
	}
	n := copy(b, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

// blocking returns a reader over the same stream that waits for data.
func (p *streamPump) blocking() io.Reader {
	return blockingPump{p}
}

type blockingPump struct{ p *streamPump }

func (b blockingPump) Read(buf []byte) (int, error) {
	p := b.p
	p.once.Do(func() { go p.run() })
	if len(p.rest) == 0 && !p.ended {
		data, ok := <-p.ch
		if !ok {
			p.ended = true
		}
		p.rest = data
	}
	return p.Read(buf)
}
