package exercise

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"sprachpfad/pkg/analysis"
)

// UI is the learner-facing interaction surface of an exercise. The
// console implementation is used in production; tests script it.
type UI interface {
	Say(format string, args ...any)
	ShowText(title, content string)
	Prompt(msg string) (string, error)
	ShowWarning(w *analysis.Warning)
}

// ConsoleUI reads and writes the terminal.
type ConsoleUI struct {
	In  *bufio.Reader
	Out io.Writer
}

// NewConsoleUI wires a UI over the given streams.
func NewConsoleUI(in io.Reader, out io.Writer) *ConsoleUI {
	return &ConsoleUI{In: bufio.NewReader(in), Out: out}
}

func (c *ConsoleUI) Say(format string, args ...any) {
	fmt.Fprintf(c.Out, format+"\n", args...)
}

func (c *ConsoleUI) ShowText(title, content string) {
	fmt.Fprintf(c.Out, "\n== %s ==\n\n%s\n\n", title, content)
}

func (c *ConsoleUI) Prompt(msg string) (string, error) {
	fmt.Fprintf(c.Out, "%s ", msg)
	line, err := c.In.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *ConsoleUI) ShowWarning(w *analysis.Warning) {
	if w == nil {
		return
	}
	fmt.Fprintf(c.Out, "WARNUNG: %s\n", w.Summary)
	for _, h := range w.Hints {
		fmt.Fprintf(c.Out, "- %s\n", h)
	}
}
