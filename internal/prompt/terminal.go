package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	bodyStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("8")).PaddingLeft(1)
	levelStyles = map[Level]lipgloss.Style{
		LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		LevelWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	levelIcons = map[Level]string{
		LevelInfo:    "ℹ",
		LevelSuccess: "✓",
		LevelWarn:    "!",
		LevelError:   "✗",
	}
)

// Terminal prompts on a line based terminal. EOF dismisses.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) readLine(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", false, nil
			}
			return strings.TrimSpace(line), true, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(line), true, nil
}

func (t *Terminal) Choose(ctx context.Context, q Question) (string, error) {
	fmt.Fprintln(t.out, titleStyle.Render(q.Title))
	if q.Body != "" {
		fmt.Fprintln(t.out, bodyStyle.Render(q.Body))
	}
	for i, o := range q.Options {
		fmt.Fprintf(t.out, "  %s %s\n", keyStyle.Render(fmt.Sprintf("[%d]", i+1)), o.Label)
	}

	for {
		fmt.Fprint(t.out, "> ")
		line, ok, err := t.readLine(ctx)
		if err != nil || !ok {
			fmt.Fprintln(t.out)
			return "", err
		}
		if line == "" || strings.EqualFold(line, "q") {
			return "", nil
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(q.Options) {
			return q.Options[n-1].Key, nil
		}
		if q.Has(line) {
			return line, nil
		}
		fmt.Fprintf(t.out, "Pick 1-%d, or press Enter to cancel.\n", len(q.Options))
	}
}

// Input offers initial as the default; Enter accepts it and "-" clears it.
func (t *Terminal) Input(ctx context.Context, id, title, label, initial string) (string, bool, error) {
	fmt.Fprintln(t.out, titleStyle.Render(title))
	if initial != "" {
		fmt.Fprintf(t.out, "%s [%s]\n> ", label, initial)
	} else {
		fmt.Fprintf(t.out, "%s\n> ", label)
	}

	line, ok, err := t.readLine(ctx)
	if err != nil || !ok {
		fmt.Fprintln(t.out)
		return "", false, err
	}
	switch line {
	case "":
		return initial, true, nil
	case "-":
		return "", true, nil
	}
	return line, true, nil
}

func (t *Terminal) Show(ctx context.Context, title, body string) error {
	fmt.Fprintln(t.out, titleStyle.Render(title))
	fmt.Fprintln(t.out, body)
	fmt.Fprint(t.out, keyStyle.Render("(press Enter to go back)"))
	_, _, err := t.readLine(ctx)
	fmt.Fprintln(t.out)
	return err
}

func (t *Terminal) Notify(level Level, msg string) {
	style, ok := levelStyles[level]
	if !ok {
		style = levelStyles[LevelInfo]
	}
	fmt.Fprintln(t.out, style.Render(levelIcons[level]+" "+msg))
}
