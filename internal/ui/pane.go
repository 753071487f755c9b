package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/justinpbarnett/procctl/internal/process"
	"github.com/justinpbarnett/procctl/internal/ui/border"
	"github.com/justinpbarnett/procctl/internal/ui/text"
)

// outputPane shows the retained scrollback of one output channel. It
// follows new output until the user scrolls away from the bottom.
type outputPane struct {
	ch       process.Channel
	viewport viewport.Model
	content  *scrollback
	follow   bool
	wrap     bool
	bytes    int64
}

func newOutputPane(ch process.Channel, wrap bool) *outputPane {
	return &outputPane{
		ch:       ch,
		viewport: viewport.New(0, 0),
		content:  newScrollback(defaultScrollback),
		follow:   true,
		wrap:     wrap,
	}
}

func (p *outputPane) append(s string) {
	if s == "" {
		return
	}
	p.bytes += int64(len(s))
	p.content.write(text.Sanitize(s))
	p.refresh()
}

func (p *outputPane) reset() {
	p.content.reset()
	p.bytes = 0
	p.follow = true
	p.refresh()
}

func (p *outputPane) refresh() {
	s := strings.TrimSuffix(p.content.String(), "\n")
	if p.wrap {
		s = text.HardWrap(s, p.viewport.Width)
	}
	p.viewport.SetContent(s)
	if p.follow {
		p.viewport.GotoBottom()
	}
}

func (p *outputPane) setSize(width, height int) {
	p.viewport.Width = max(width-2, 0)
	p.viewport.Height = max(height-2, 0)
	p.refresh()
}

func (p *outputPane) setWrap(wrap bool) {
	p.wrap = wrap
	p.refresh()
}

func (p *outputPane) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	p.follow = p.viewport.AtBottom()
	return cmd
}

func (p *outputPane) view(width, height int, focused bool, keybinds []border.Keybind) string {
	badge := text.FormatBytes(p.bytes)
	if !p.follow {
		badge = "paused · " + badge
	}
	panel := border.Panel{
		Title:    p.ch.String(),
		Badge:    badge,
		Keybinds: keybinds,
		Focused:  focused,
	}
	return panel.Render(p.viewport.View(), width, height)
}
