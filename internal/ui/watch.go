// Package ui renders a live view of one controlled process: its stdout and
// stderr panes and a status bar with the run's state and statistics.
package ui

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/justinpbarnett/procctl/internal/ui/border"
	"github.com/justinpbarnett/procctl/internal/ui/clipboard"
	"github.com/justinpbarnett/procctl/internal/ui/styles"
	"github.com/justinpbarnett/procctl/internal/ui/text"
)

const (
	DefaultRefreshInterval = 50 * time.Millisecond

	minWidth  = 20
	minHeight = 8
)

// Options configures the watch view.
type Options struct {
	Title           string
	RefreshInterval time.Duration
	ShowStats       bool
	Wrap            bool
	// ExitOnFinish quits the program once the child has terminated and its
	// output has been shown.
	ExitOnFinish bool
	// StopGrace is how long a stop request waits before sending SIGKILL.
	StopGrace time.Duration
	// Timeout and IdleTimeout stop the child the same way the stop key
	// does. They replace the controller's own timeouts, which would stop
	// the child synchronously inside Update; zero disables them.
	Timeout     time.Duration
	IdleTimeout time.Duration
	// Clipboard receives the focused pane's output on copy. Defaults to
	// clipboard.Write.
	Clipboard func(string) (bool, error)
}

type startMsg struct{}

type tickMsg time.Time

// Model drives a process.Controller from the bubbletea event loop. The
// controller is only touched from Update, so no locking is needed.
type Model struct {
	ctrl      *process.Controller
	opts      Options
	keys      KeyMap
	panes     [2]*outputPane
	focus     int
	statusBar StatusBar
	width     int
	height    int

	stopAt  time.Time
	killed  bool
	lastErr error
}

// New returns a watch model for ctrl. The controller must not have been
// started; the model starts it on its first message.
func New(ctrl *process.Controller, opts Options) Model {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = process.DefaultStopGrace
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.Write
	}
	if opts.Title == "" {
		opts.Title = "procctl"
	}
	return Model{
		ctrl: ctrl,
		opts: opts,
		keys: DefaultKeyMap(),
		panes: [2]*outputPane{
			newOutputPane(process.Stdout, opts.Wrap),
			newOutputPane(process.Stderr, opts.Wrap),
		},
		statusBar: NewStatusBar(opts.Title, opts.ShowStats),
	}
}

// Err returns the last error reported by the controller, if any.
func (m Model) Err() error { return m.lastErr }

func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return startMsg{} }
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case startMsg:
		m.start()
		return m, m.tick()

	case tickMsg:
		m.statusBar.Tick()
		m.poll()
		if m.opts.ExitOnFinish && m.ctrl.State() == process.StateTerminated {
			return m, tea.Quit
		}
		return m, m.tick()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m, m.panes[m.focus].update(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pane := m.panes[m.focus]
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.FocusNext):
		m.focus = (m.focus + 1) % len(m.panes)
	case key.Matches(msg, m.keys.Stop):
		m.requestStop()
	case key.Matches(msg, m.keys.Restart):
		if m.ctrl.State() == process.StateRunning {
			m.statusBar.SetFlashWithLevel("still running, stop it first", FlashWarning)
			break
		}
		m.start()
	case key.Matches(msg, m.keys.Clear):
		if err := m.ctrl.ClearOutput(); err != nil {
			m.report(err)
		}
		for _, p := range m.panes {
			p.reset()
		}
		m.statusBar.SetFlash("output cleared")
	case key.Matches(msg, m.keys.Copy):
		m.copy(pane.ch)
	case key.Matches(msg, m.keys.Wrap):
		wrap := !pane.wrap
		for _, p := range m.panes {
			p.setWrap(wrap)
		}
	case key.Matches(msg, m.keys.Top):
		pane.viewport.GotoTop()
		pane.follow = false
	case key.Matches(msg, m.keys.Bottom):
		pane.viewport.GotoBottom()
		pane.follow = true
	default:
		return m, pane.update(msg)
	}
	return m, nil
}

func (m *Model) start() {
	for _, p := range m.panes {
		p.reset()
	}
	m.stopAt = time.Time{}
	m.killed = false
	m.lastErr = nil
	if err := m.ctrl.Start(); err != nil {
		m.report(err)
	}
	m.pull()
	m.snapshot()
}

// poll runs one forced controller cycle and moves new output into the panes.
func (m *Model) poll() {
	if m.ctrl.State() == process.StateRunning {
		if err := m.ctrl.Poll(true); err != nil {
			m.report(err)
		}
		m.expire()
		m.escalate()
	}
	m.pull()
	m.snapshot()
}

func (m *Model) pull() {
	if m.ctrl.State() == process.StateReady {
		return
	}
	for _, p := range m.panes {
		s, err := m.ctrl.IncrementalOutput(p.ch)
		if err != nil {
			if !errors.Is(err, process.ErrOutputDisabled) {
				m.report(err)
			}
			return
		}
		p.append(s)
	}
}

func (m *Model) snapshot() {
	snap := snapshot{state: m.ctrl.State(), stats: m.ctrl.Stats()}
	snap.started = snap.state != process.StateReady
	if pid, err := m.ctrl.Pid(); err == nil {
		snap.pid = pid
	}
	if exit, err := m.ctrl.ExitStatus(); err == nil {
		snap.exit = exit
	}
	m.statusBar.snap = snap
}

// requestStop sends SIGTERM without blocking the event loop. escalate
// follows up with SIGKILL once the grace period has passed.
func (m *Model) requestStop() {
	if m.ctrl.State() != process.StateRunning {
		return
	}
	if err := m.ctrl.Signal(syscall.SIGTERM); err != nil {
		m.report(err)
		return
	}
	m.stopAt = time.Now()
	m.statusBar.SetFlash("stopping")
}

// expire requests a stop once the run has used up its timeout budget.
func (m *Model) expire() {
	if !m.stopAt.IsZero() || m.ctrl.State() != process.StateRunning {
		return
	}
	stats := m.ctrl.Stats()
	now := time.Now()
	var te *process.TimeoutError
	if limit := m.opts.Timeout; limit > 0 {
		if elapsed := now.Sub(stats.StartedAt); elapsed >= limit {
			te = &process.TimeoutError{Limit: limit, Elapsed: elapsed}
		}
	}
	if limit := m.opts.IdleTimeout; te == nil && limit > 0 {
		last := stats.StartedAt
		if stats.LastOutputAt.After(last) {
			last = stats.LastOutputAt
		}
		if idle := now.Sub(last); idle >= limit {
			te = &process.TimeoutError{Limit: limit, Elapsed: idle, Idle: true}
		}
	}
	if te == nil {
		return
	}
	m.requestStop()
	m.report(te)
}

func (m *Model) escalate() {
	if m.stopAt.IsZero() || m.killed || m.ctrl.State() != process.StateRunning {
		return
	}
	if time.Since(m.stopAt) < m.opts.StopGrace {
		return
	}
	m.killed = true
	if err := m.ctrl.Signal(syscall.SIGKILL); err != nil {
		m.report(err)
		return
	}
	m.statusBar.SetFlashWithLevel("ignored SIGTERM, killed", FlashWarning)
}

func (m *Model) copy(ch process.Channel) {
	out, err := m.ctrl.Output(ch)
	if err != nil {
		m.report(err)
		return
	}
	if out == "" {
		m.statusBar.SetFlashWithLevel("nothing to copy", FlashWarning)
		return
	}
	truncated, err := m.opts.Clipboard(out)
	switch {
	case err != nil:
		m.statusBar.SetFlashWithLevel("copy failed: "+err.Error(), FlashError)
	case truncated:
		m.statusBar.SetFlashWithLevel(fmt.Sprintf("copied %s (truncated)", ch), FlashWarning)
	default:
		m.statusBar.SetFlashWithLevel(fmt.Sprintf("copied %s", ch), FlashSuccess)
	}
}

func (m *Model) report(err error) {
	m.lastErr = err
	var te *process.TimeoutError
	if errors.As(err, &te) {
		m.statusBar.SetFlashWithLevel(te.Error(), FlashWarning)
		return
	}
	m.statusBar.SetFlashWithLevel(err.Error(), FlashError)
}

func (m *Model) layout() (stdoutHeight, stderrHeight int) {
	usable := m.height - 1
	stdoutHeight = usable * 2 / 3
	return stdoutHeight, usable - stdoutHeight
}

func (m *Model) resize() {
	m.statusBar.SetSize(m.width)
	top, bottom := m.layout()
	m.panes[0].setSize(m.width, top)
	m.panes[1].setSize(m.width, bottom)
}

var paneKeybinds = []border.Keybind{
	{Key: "s", Label: " stop"},
	{Key: "r", Label: " restart"},
	{Key: "c", Label: " clear"},
	{Key: "y", Label: " copy"},
	{Key: "w", Label: " wrap"},
	{Key: "Tab", Label: " pane"},
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.width < minWidth || m.height < minHeight {
		return text.Truncate(styles.TextSecondaryStyle.Render("terminal too small"), m.width)
	}
	top, bottom := m.layout()
	return lipgloss.JoinVertical(lipgloss.Left,
		m.panes[0].view(m.width, top, m.focus == 0, paneKeybinds),
		m.panes[1].view(m.width, bottom, m.focus == 1, paneKeybinds),
		m.statusBar.View(),
	)
}
