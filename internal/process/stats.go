package process

import "time"

func (s *Stats) recordSpawn(started time.Time, latency time.Duration) {
	*s = Stats{SpawnLatency: latency, StartedAt: started}
}

func (s *Stats) recordOutput(ch Channel, n int, at time.Time) {
	switch ch {
	case Stdout:
		s.BytesStdout += int64(n)
	case Stderr:
		s.BytesStderr += int64(n)
	}
	s.LastOutputAt = at
}

func (s *Stats) recordExit(at time.Time) {
	s.ExitedAt = at
	s.Runtime = at.Sub(s.StartedAt)
}

// snapshot returns a copy with Runtime filled in for a run still in progress.
func (s Stats) snapshot(running bool) Stats {
	if running && !s.StartedAt.IsZero() {
		s.Runtime = time.Since(s.StartedAt)
	}
	return s
}
