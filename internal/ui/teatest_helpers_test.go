//go:build unix

package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/stretchr/testify/require"
)

const waitDuration = 3 * time.Second

func newShellController(tb testing.TB, script string) *process.Controller {
	tb.Helper()
	c, err := process.New(process.Config{Shell: script})
	require.NoError(tb, err)
	tb.Cleanup(func() { c.Close() })
	return c
}

// waitForContains waits until the output seen so far contains every given
// substring. Output read by one call is not seen by the next.
func waitForContains(tb testing.TB, tm *teatest.TestModel, substrs ...string) {
	tb.Helper()
	teatest.WaitFor(
		tb,
		tm.Output(),
		func(bts []byte) bool {
			for _, s := range substrs {
				if !bytes.Contains(bts, []byte(s)) {
					return false
				}
			}
			return true
		},
		teatest.WithDuration(waitDuration),
	)
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func sendKey(m Model, k string) Model {
	return update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

// tickUntil delivers ticks until the controller leaves the running state or
// the wait expires.
func tickUntil(tb testing.TB, m Model, done func(Model) bool) Model {
	tb.Helper()
	deadline := time.Now().Add(waitDuration)
	for !done(m) {
		if time.Now().After(deadline) {
			tb.Fatalf("condition not reached within %v", waitDuration)
		}
		time.Sleep(5 * time.Millisecond)
		m = update(m, tickMsg(time.Now()))
	}
	return m
}

func terminated(m Model) bool {
	return m.ctrl.State() == process.StateTerminated
}
