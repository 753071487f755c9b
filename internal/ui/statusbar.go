package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/justinpbarnett/procctl/internal/ui/styles"
	"github.com/justinpbarnett/procctl/internal/ui/text"
)

const flashDuration = 5 * time.Second

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// FlashLevel controls the icon and color of a status bar flash message.
type FlashLevel int

const (
	FlashInfo    FlashLevel = iota // blue ●
	FlashSuccess                   // green ✓
	FlashWarning                   // yellow ⚠
	FlashError                     // red ✗
)

// snapshot is the controller state the status bar renders. It is taken
// once per tick so View never touches the controller.
type snapshot struct {
	state   process.State
	pid     int
	exit    process.ExitStatus
	stats   process.Stats
	started bool
}

type StatusBar struct {
	width      int
	title      string
	showStats  bool
	snap       snapshot
	flash      string
	flashLevel FlashLevel
	flashUntil time.Time
	tickStep   int
	now        func() time.Time
}

func NewStatusBar(title string, showStats bool) StatusBar {
	return StatusBar{title: title, showStats: showStats, now: time.Now}
}

func (s StatusBar) View() string {
	sep := styles.TextDimStyle.Render(" │ ")
	now := s.now()

	name := s.title
	if s.snap.state == process.StateRunning {
		frame := spinnerFrames[s.tickStep%len(spinnerFrames)]
		name = lipgloss.NewStyle().Foreground(styles.StatusRunning).Render(frame) + " " + name
	}
	left := " " + styles.TextSecondaryStyle.Render(name) + sep + s.stateView()

	if s.showStats && s.snap.started {
		st := s.snap.stats
		left += sep + styles.TextSecondaryStyle.Render(fmt.Sprintf("%s  out %s  err %s  polls %d  last %s",
			text.FormatElapsed(st.Runtime),
			text.FormatBytes(st.BytesStdout),
			text.FormatBytes(st.BytesStderr),
			st.Polls,
			text.FormatAgo(st.LastOutputAt, now),
		))
	}

	if s.flash != "" && now.Before(s.flashUntil) {
		var icon string
		var color lipgloss.TerminalColor
		switch s.flashLevel {
		case FlashSuccess:
			icon, color = "✓", styles.StatusSuccess
		case FlashError:
			icon, color = "✗", styles.StatusError
		case FlashWarning:
			icon, color = "⚠", styles.StatusWarning
		default:
			icon, color = "●", styles.StatusRunning
		}
		left += sep + lipgloss.NewStyle().Foreground(color).Bold(true).Render(icon+" "+s.flash)
	}

	right := styles.TextSecondaryStyle.Render("q:quit") + " "

	left = text.Truncate(left, max(s.width-lipgloss.Width(right)-1, 0))
	gap := s.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (s StatusBar) stateView() string {
	color := styles.StateColor(s.snap.state, s.snap.exit)
	style := lipgloss.NewStyle().Foreground(color)
	switch s.snap.state {
	case process.StateRunning:
		return style.Render(fmt.Sprintf("running pid %d", s.snap.pid))
	case process.StateTerminated:
		if s.snap.exit.Signaled {
			return style.Render("killed by " + s.snap.exit.Signal.String())
		}
		return style.Render(fmt.Sprintf("exited %d", s.snap.exit.Code))
	default:
		return style.Render("ready")
	}
}

func (s *StatusBar) SetFlash(msg string) {
	s.SetFlashWithLevel(msg, FlashInfo)
}

func (s *StatusBar) SetFlashWithLevel(msg string, level FlashLevel) {
	s.flash = msg
	s.flashLevel = level
	s.flashUntil = s.now().Add(flashDuration)
}

func (s *StatusBar) ClearFlash() {
	s.flash = ""
	s.flashLevel = FlashInfo
	s.flashUntil = time.Time{}
}

func (s *StatusBar) SetSize(w int) {
	s.width = w
}

// Tick advances the spinner frame.
func (s *StatusBar) Tick() {
	s.tickStep++
}
