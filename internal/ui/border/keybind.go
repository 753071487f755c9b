package border

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/justinpbarnett/procctl/internal/ui/styles"
)

// Keybind is a single key hint rendered as [key]label.
type Keybind struct {
	Key   string
	Label string
}

func RenderKeybind(kb Keybind) string {
	keyStyle := lipgloss.NewStyle().Foreground(styles.KeybindKey).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(styles.KeybindLabel)
	return keyStyle.Render("["+kb.Key+"]") + labelStyle.Render(kb.Label)
}
