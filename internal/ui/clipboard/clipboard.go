// Package clipboard copies captured output to the user's clipboard.
package clipboard

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
)

// maxOSC52 is the payload size most terminals accept in one OSC 52 sequence.
const maxOSC52 = 100_000

// Fallback receives the OSC 52 sequence when no native clipboard exists.
var Fallback io.Writer = os.Stderr

// Write copies text to the system clipboard, falling back to OSC 52 for
// SSH and tmux sessions. It reports whether text had to be truncated.
func Write(text string) (truncated bool, err error) {
	if err := clipboard.WriteAll(text); err == nil {
		return false, nil
	}
	if len(text) > maxOSC52 {
		text = text[len(text)-maxOSC52:]
		truncated = true
	}
	return truncated, writeOSC52(Fallback, text)
}

func writeOSC52(w io.Writer, text string) error {
	seq := fmt.Sprintf("\x1b]52;c;%s\x07", base64.StdEncoding.EncodeToString([]byte(text)))
	if os.Getenv("TMUX") != "" {
		seq = "\x1bPtmux;\x1b" + seq + "\x1b\\"
	}
	_, err := io.WriteString(w, seq)
	return err
}
