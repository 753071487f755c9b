package process

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Strategy selects how stdout and stderr travel from the child.
type Strategy int

const (
	// StrategyPipe reads anonymous pipes without blocking.
	StrategyPipe Strategy = iota
	// StrategyFile redirects output into files and tails them.
	StrategyFile
)

func (s Strategy) String() string {
	switch s {
	case StrategyPipe:
		return "pipe"
	case StrategyFile:
		return "file"
	default:
		return fmt.Sprintf("strategy(%d)", s)
	}
}

// ParseStrategy parses "pipe" or "file". The empty string means pipe.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pipe":
		return StrategyPipe, nil
	case "file":
		return StrategyFile, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want \"pipe\" or \"file\")", s)
	}
}

// resolveStrategy forces file mode where non-blocking pipes are unavailable.
func resolveStrategy(requested Strategy) Strategy {
	if !pipeSupported {
		return StrategyFile
	}
	return requested
}

type chunk struct {
	ch   Channel
	data []byte
}

// transport moves bytes between the controller and one run of the child.
type transport interface {
	// open allocates per-run descriptors and wires them into cmd.
	open(cmd *exec.Cmd, input io.Reader) error
	// spawned drops the parent's copies of the child's descriptor ends.
	spawned() error
	// exchange waits at most wait for readiness, feeds pending input, and
	// returns the output that became available. final drains until the
	// channels report no more data.
	exchange(wait time.Duration, final bool) ([]chunk, error)
	// release closes the per-run handles.
	release() error
	// destroy releases everything, including handles kept across runs.
	destroy() error
	// backing returns the store collected output for ch is served from.
	backing(ch Channel) backing
}

const (
	readChunkSize = 32 * 1024

	// drainLimit caps how much one channel yields per cycle so a chatty
	// child cannot starve status checks.
	drainLimit = 4 << 20

	// finalDrainLimit caps the drain after exit, when descendants may still
	// hold the write end open.
	finalDrainLimit = 64 << 20
)
