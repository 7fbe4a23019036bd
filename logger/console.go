package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Console is the human facing side of the logger: decorated one-line
// messages plus the table, progress bar and spinner helpers. Everything
// goes to the same writer as the underlying slog handler.
type Console struct {
	Logger    *slog.Logger
	Output    io.Writer
	Colorized bool
	// Animated enables the spinner and the progress bar. It is off for
	// JSON output, where carriage-return redraws would corrupt the stream.
	Animated bool
}

func NewConsole(opts *RichLoggerOptions) *Console {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Console{
		Logger:    NewRichLogger(opts),
		Output:    opts.Output,
		Colorized: opts.EnableColors && !opts.EnableJSON,
		Animated:  !opts.EnableJSON,
	}
}

func (c *Console) decorate(icon, color, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if icon != "" {
		msg = icon + " " + msg
	}
	if c.Colorized && color != "" {
		msg = color + msg + Reset
	}
	return msg
}

func (c *Console) StartTimer(name string) *Timer {
	return &Timer{
		Name:      name,
		StartTime: time.Now(),
		Console:   c,
	}
}

func (c *Console) Success(format string, args ...any) {
	c.Logger.Info(c.decorate("✓", Green+Bold, format, args...))
}

func (c *Console) Info(format string, args ...any) {
	c.Logger.Info(c.decorate("ℹ", Blue+Bold, format, args...))
}

func (c *Console) Debug(format string, args ...any) {
	c.Logger.Debug(c.decorate("", Cyan, format, args...))
}

func (c *Console) Warn(format string, args ...any) {
	c.Logger.Warn(c.decorate("⚠", Yellow+Bold, format, args...))
}

func (c *Console) Error(format string, args ...any) {
	c.Logger.Error(c.decorate("✖", Red+Bold, format, args...))
}

func (c *Console) StartSpinner(message string) *Spinner {
	s := &Spinner{
		Message: message,
		Frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Console: c,
		Done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	s.Start()
	return s
}

func (c *Console) NewProgressBar(total int64, label string) *ProgressBar {
	return NewProgressBar(total, label, c.Output, c.Animated)
}

func (c *Console) NewTable(headers []string) *Table {
	return NewTable(headers, c.Output)
}

// Box prints content framed under title. Widths are counted in runes so
// that the frame stays aligned for non-ASCII paths.
func (c *Console) Box(title string, content string) {
	lines := strings.Split(content, "\n")
	width := runeLen(title)

	for _, line := range lines {
		if n := runeLen(line); n > width {
			width = n
		}
	}

	width += 4

	fmt.Fprintln(c.Output, "┌─"+title+strings.Repeat("─", width-runeLen(title)+1)+"┐")

	for _, line := range lines {
		fmt.Fprintln(c.Output, "│ "+line+strings.Repeat(" ", width-runeLen(line))+" │")
	}

	fmt.Fprintln(c.Output, "└"+strings.Repeat("─", width+2)+"┘")
}

func runeLen(s string) int {
	return len([]rune(s))
}
