// Package border draws the rounded panels of the watch view.
package border

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/justinpbarnett/procctl/internal/ui/styles"
)

const (
	cornerTL = "╭"
	cornerTR = "╮"
	cornerBL = "╰"
	cornerBR = "╯"
	horizBar = "─"
	vertBar  = "│"
)

// Panel is a bordered box with a title and optional badge on the top edge
// and key hints on the bottom edge.
type Panel struct {
	Title    string
	Badge    string
	Keybinds []Keybind
	Focused  bool
}

func (p Panel) borderStyle() lipgloss.Style {
	if p.Focused {
		return lipgloss.NewStyle().Foreground(styles.BorderFocused)
	}
	return lipgloss.NewStyle().Foreground(styles.BorderUnfocused)
}

// Render draws the panel at exactly width x height cells. Content is
// cropped or padded to fit the interior.
func (p Panel) Render(content string, width, height int) string {
	if width < 2 || height < 2 {
		return ""
	}
	innerHeight := height - 2

	var lines []string
	if content != "" {
		lines = strings.Split(content, "\n")
	}
	if len(lines) > innerHeight {
		lines = lines[:innerHeight]
	}
	for len(lines) < innerHeight {
		lines = append(lines, "")
	}

	return p.top(width) + "\n" + p.sides(lines, width) + "\n" + p.bottom(width)
}

// top renders ╭─ Title ──── badge ─╮, dropping the badge and then the title
// when the panel is too narrow.
func (p Panel) top(width int) string {
	bs := p.borderStyle()
	inner := width - 2

	ts := styles.TextSecondaryStyle.Bold(true)
	if p.Focused {
		ts = styles.TitleStyle
	}
	var title, badge string
	if p.Title != "" {
		title = horizBar + " " + ts.Render(p.Title) + " "
	}
	if p.Badge != "" {
		badge = " " + p.Badge + " " + horizBar
	}
	if lipgloss.Width(title)+lipgloss.Width(badge) > inner {
		badge = ""
	}
	if lipgloss.Width(title) > inner {
		title = ""
	}
	fill := inner - lipgloss.Width(title) - lipgloss.Width(badge)

	return bs.Render(cornerTL) + colorBars(bs, title) +
		bs.Render(strings.Repeat(horizBar, fill)) +
		colorBars(bs, badge) + bs.Render(cornerTR)
}

// colorBars renders the leading and trailing bar characters of a segment
// in the border color while leaving its styled middle intact.
func colorBars(bs lipgloss.Style, seg string) string {
	if seg == "" {
		return ""
	}
	var prefix, suffix string
	if strings.HasPrefix(seg, horizBar) {
		prefix, seg = horizBar, strings.TrimPrefix(seg, horizBar)
	}
	if strings.HasSuffix(seg, horizBar) {
		suffix, seg = horizBar, strings.TrimSuffix(seg, horizBar)
	}
	return bs.Render(prefix) + seg + bs.Render(suffix)
}

func (p Panel) bottom(width int) string {
	bs := p.borderStyle()
	inner := width - 2
	if !p.Focused || len(p.Keybinds) == 0 {
		return bs.Render(cornerBL + strings.Repeat(horizBar, inner) + cornerBR)
	}

	// "─ " prefix and " " suffix around the hints; hints that overflow are dropped.
	maxW := inner - 3
	var parts []string
	used := 0
	for _, kb := range p.Keybinds {
		r := RenderKeybind(kb)
		w := lipgloss.Width(r)
		sep := 0
		if len(parts) > 0 {
			sep = 2
		}
		if used+sep+w > maxW {
			break
		}
		parts = append(parts, r)
		used += sep + w
	}
	fill := maxW - used
	if fill < 0 {
		fill = 0
	}
	return bs.Render(cornerBL+horizBar+" ") + strings.Join(parts, "  ") +
		bs.Render(" "+strings.Repeat(horizBar, fill)+cornerBR)
}

// sides wraps each line in │ borders, cropping or padding to the interior width.
func (p Panel) sides(lines []string, width int) string {
	bs := p.borderStyle()
	inner := width - 2
	crop := lipgloss.NewStyle().MaxWidth(inner)
	out := make([]string, len(lines))
	for i, line := range lines {
		w := lipgloss.Width(line)
		if w > inner {
			line = crop.Render(line)
			w = lipgloss.Width(line)
		}
		if w < inner {
			line += strings.Repeat(" ", inner-w)
		}
		out[i] = bs.Render(vertBar) + line + bs.Render(vertBar)
	}
	return strings.Join(out, "\n")
}
