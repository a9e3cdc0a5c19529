package listener

import (
	"fmt"
	"io"
	"sync"

	"github.com/muesli/termenv"

	"github.com/mensylisir/stc/status"
)

// ResolveProfile maps the stcColor environment variable's value to a
// termenv color profile: "true" forces truecolor, "dark"/"light" force
// ANSI256 (the terminal's own background decides contrast), anything else
// (including unset) disables color.
func ResolveProfile(stcColor string) termenv.Profile {
	switch stcColor {
	case "true":
		return termenv.TrueColor
	case "dark", "light":
		return termenv.ANSI256
	default:
		return termenv.Ascii
	}
}

// TerminalListener prints step lifecycle events to an io.Writer (normally
// os.Stdout), colorizing status text when the resolved profile supports
// it.
type TerminalListener struct {
	mu      sync.Mutex
	out     io.Writer
	profile termenv.Profile
}

// NewTerminalListener returns a TerminalListener writing to out under the
// given color profile.
func NewTerminalListener(out io.Writer, profile termenv.Profile) *TerminalListener {
	return &TerminalListener{out: out, profile: profile}
}

func (t *TerminalListener) colorize(text, ansiCode string) string {
	if t.profile == termenv.Ascii {
		return text
	}
	return termenv.String(text).Foreground(t.profile.Color(ansiCode)).String()
}

// OnStart prints a single "starting" line for the step.
func (t *TerminalListener) OnStart(stepName, command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s %s: %s\n", t.colorize("▶", "4"), stepName, command)
}

// OnOutput prints one output line, prefixed with the step name.
func (t *TerminalListener) OnOutput(stepName, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s | %s\n", t.colorize(stepName, "6"), line)
}

// OnCompletion prints a completion line colored by outcome: green for
// success, red for failure, yellow for skipped.
func (t *TerminalListener) OnCompletion(stepName string, st status.Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var mark, code string
	switch st {
	case status.Succeeded:
		mark, code = "✔", "2"
	case status.Failed:
		mark, code = "✘", "1"
	case status.Skipped:
		mark, code = "⊘", "3"
	default:
		mark, code = "?", "7"
	}

	if err != nil {
		fmt.Fprintf(t.out, "%s %s: %s (%v)\n", t.colorize(mark, code), stepName, st, err)
		return
	}
	fmt.Fprintf(t.out, "%s %s: %s\n", t.colorize(mark, code), stepName, st)
}
