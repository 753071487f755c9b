package process

import (
	"errors"
	"time"
)

// checkTimeout stops a running child whose wall-clock or idle budget is
// spent. It is called at every poll and wait checkpoint.
func (c *Controller) checkTimeout() error {
	if c.state != StateRunning {
		return nil
	}
	now := time.Now()
	if limit := c.cfg.Timeout; limit > 0 {
		if elapsed := now.Sub(c.stats.StartedAt); elapsed >= limit {
			return c.expire(&TimeoutError{Limit: limit, Elapsed: elapsed})
		}
	}
	if limit := c.cfg.IdleTimeout; limit > 0 {
		last := c.stats.StartedAt
		if c.stats.LastOutputAt.After(last) {
			last = c.stats.LastOutputAt
		}
		if idle := now.Sub(last); idle >= limit {
			return c.expire(&TimeoutError{Limit: limit, Elapsed: idle, Idle: true})
		}
	}
	return nil
}

func (c *Controller) expire(te *TimeoutError) error {
	c.log.Warn("process timed out", "pid", c.proc.pid, "limit", te.Limit, "idle", te.Idle)
	err := c.Stop()
	if c.state == StateTerminated {
		if err != nil {
			c.log.Warn("cleanup after timeout", "error", err)
		}
		return te
	}
	var term *TerminationError
	if errors.As(err, &term) {
		term.Cause = te
		return term
	}
	return &TerminationError{Pid: c.lastPid, Cause: te, Err: err}
}
