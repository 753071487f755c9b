//go:build !unix

package process

import (
	"io"
	"os"
)

const pipeSupported = false

func newPipeTransport() (transport, error) {
	return nil, ErrPipeUnsupported
}

// inputFeeder is unavailable without non-blocking pipes; file mode spools
// stream input instead.
type inputFeeder struct{}

func newInputFeeder(io.Reader) (*inputFeeder, *os.File, error) {
	return nil, nil, ErrPipeUnsupported
}

func (f *inputFeeder) feed([]byte) error { return nil }
func (f *inputFeeder) close() error      { return nil }
