// Package console renders the interactive terminal output: the session
// banner, status lines and assistant answers. Styling and markdown
// rendering apply only when the output is a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette.
var (
	cyan    = lipgloss.Color("#22D3EE")
	purple  = lipgloss.Color("#A78BFA")
	emerald = lipgloss.Color("#34D399")
	amber   = lipgloss.Color("#FBBF24")
	rose    = lipgloss.Color("#FB7185")
	muted   = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(purple).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(muted)

	valueStyle = lipgloss.NewStyle().
			Foreground(cyan)

	promptStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(emerald)
	warnStyle    = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(rose).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1)
)

// Console writes styled output to a terminal, or plain text elsewhere.
type Console struct {
	out      io.Writer
	errOut   io.Writer
	styled   bool
	renderer *glamour.TermRenderer // nil = plain answers
}

// New creates a console. Styling is enabled when out is a terminal.
func New(out, errOut io.Writer) *Console {
	c := &Console{out: out, errOut: errOut, styled: IsTerminal(out)}
	if c.styled {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(Width(out)-4),
		)
		if err == nil {
			c.renderer = r
		}
	}
	return c
}

// Stdio returns a console on os.Stdout and os.Stderr.
func Stdio() *Console {
	return New(os.Stdout, os.Stderr)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or 80.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 20 {
			return width
		}
	}
	return 80
}

func (c *Console) render(style lipgloss.Style, s string) string {
	if !c.styled {
		return s
	}
	return style.Render(s)
}

// Field is one labelled line of the banner.
type Field struct {
	Label string
	Value string
}

// Banner prints the session header.
func (c *Console) Banner(title string, fields []Field) {
	var b strings.Builder
	b.WriteString(c.render(titleStyle, title))
	b.WriteString("\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s %s\n", c.render(labelStyle, f.Label+":"), c.render(valueStyle, f.Value))
	}
	if c.styled {
		fmt.Fprintln(c.out, panelStyle.Render(strings.TrimRight(b.String(), "\n")))
		return
	}
	fmt.Fprint(c.out, b.String())
}

// Prompt returns the styled REPL prompt.
func (c *Console) Prompt(s string) string {
	return c.render(promptStyle, s)
}

// Println prints an unstyled line.
func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Printf prints unstyled formatted text.
func (c *Console) Printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

// Info prints a muted status line.
func (c *Console) Info(format string, a ...any) {
	fmt.Fprintln(c.out, c.render(labelStyle, fmt.Sprintf(format, a...)))
}

// Success prints a status line marked [OK].
func (c *Console) Success(format string, a ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.render(successStyle, "[OK]"), fmt.Sprintf(format, a...))
}

// Warn prints a status line marked [!].
func (c *Console) Warn(format string, a ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.render(warnStyle, "[!]"), fmt.Sprintf(format, a...))
}

// Error prints an error line to the error stream.
func (c *Console) Error(format string, a ...any) {
	fmt.Fprintf(c.errOut, "%s %s\n", c.render(errorStyle, "Error:"), fmt.Sprintf(format, a...))
}

// Answer prints an assistant answer, rendered as markdown in a panel on a
// terminal and verbatim elsewhere.
func (c *Console) Answer(title, markdown string) {
	if !c.styled {
		fmt.Fprintf(c.out, "%s: %s\n", title, markdown)
		return
	}
	body := markdown
	if c.renderer != nil {
		if rendered, err := c.renderer.Render(markdown); err == nil {
			body = strings.Trim(rendered, "\n")
		}
	}
	header := c.render(titleStyle, title)
	fmt.Fprintln(c.out, panelStyle.Render(header+"\n"+body))
}
