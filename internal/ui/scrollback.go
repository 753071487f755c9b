package ui

import "strings"

const defaultScrollback = 10000

// scrollback keeps the most recent lines written to a pane. A trailing
// partial line stays pending until its terminator arrives.
type scrollback struct {
	lines    []string
	capacity int
	head     int
	count    int
	pending  string
}

func newScrollback(capacity int) *scrollback {
	if capacity <= 0 {
		capacity = defaultScrollback
	}
	return &scrollback{lines: make([]string, capacity), capacity: capacity}
}

func (sb *scrollback) push(line string) {
	sb.lines[sb.head] = line
	sb.head = (sb.head + 1) % sb.capacity
	if sb.count < sb.capacity {
		sb.count++
	}
}

// write appends s, which may start mid-line and end mid-line.
func (sb *scrollback) write(s string) {
	s = sb.pending + s
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		sb.push(s[:i])
		s = s[i+1:]
	}
	sb.pending = s
}

// snapshot returns the retained lines oldest first, followed by the pending
// partial line if there is one.
func (sb *scrollback) snapshot() []string {
	out := make([]string, 0, sb.count+1)
	if sb.count < sb.capacity {
		out = append(out, sb.lines[:sb.count]...)
	} else {
		// Wrapped: oldest is at head.
		out = append(out, sb.lines[sb.head:]...)
		out = append(out, sb.lines[:sb.head]...)
	}
	if sb.pending != "" {
		out = append(out, sb.pending)
	}
	return out
}

// String renders the retained text. A complete final line keeps its
// terminator.
func (sb *scrollback) String() string {
	lines := sb.snapshot()
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if sb.pending == "" {
		s += "\n"
	}
	return s
}

func (sb *scrollback) len() int {
	return sb.count
}

func (sb *scrollback) reset() {
	clear(sb.lines)
	sb.head = 0
	sb.count = 0
	sb.pending = ""
}
