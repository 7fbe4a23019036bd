package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
)

type RichLoggerOptions struct {
	Output       io.Writer
	TimeFormat   string
	Level        slog.Leveler
	EnableJSON   bool
	EnableColors bool
}

func DefaultOptions() *RichLoggerOptions {
	return &RichLoggerOptions{
		Output:       os.Stdout,
		TimeFormat:   "15:04:05",
		Level:        slog.LevelInfo,
		EnableColors: true,
	}
}

// ParseLevel maps LOG_LEVEL style names onto slog levels. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type RichHandler struct {
	opts   *RichLoggerOptions
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewRichHandler(opts *RichLoggerOptions) *RichHandler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}

	return &RichHandler{
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *RichHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *RichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, h.qualify(a))
	}
	return h2
}

func (h *RichHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// clone shares the mutex so that derived handlers never interleave lines
// on the same writer.
func (h *RichHandler) clone() *RichHandler {
	h2 := &RichHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  make([]slog.Attr, len(h.attrs)),
		groups: make([]string, len(h.groups)),
	}
	copy(h2.attrs, h.attrs)
	copy(h2.groups, h.groups)
	return h2
}

func (h *RichHandler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	a.Key = strings.Join(h.groups, ".") + "." + a.Key
	return a
}

func (h *RichHandler) collectAttrs(record slog.Record) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	return attrs
}

func (h *RichHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.EnableJSON {
		return h.handleJSON(record)
	}

	return h.handleText(record)
}

func (h *RichHandler) handleJSON(record slog.Record) error {
	entry := map[string]any{
		"time":  record.Time.Format(h.opts.TimeFormat),
		"level": record.Level.String(),
		"msg":   record.Message,
	}

	for _, a := range h.collectAttrs(record) {
		entry[a.Key] = a.Value.Resolve().Any()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(h.opts.Output, string(data))
	return err
}

func (h *RichHandler) paint(b *strings.Builder, color, text string) {
	if h.opts.EnableColors && color != "" {
		b.WriteString(color)
		b.WriteString(text)
		b.WriteString(Reset)
		return
	}
	b.WriteString(text)
}

var levelColors = map[slog.Level]string{
	slog.LevelDebug: Cyan,
	slog.LevelInfo:  Green,
	slog.LevelWarn:  Yellow,
	slog.LevelError: Red,
}

func (h *RichHandler) handleText(record slog.Record) error {
	var b strings.Builder

	if !record.Time.IsZero() && h.opts.TimeFormat != "" {
		h.paint(&b, Blue, record.Time.Format(h.opts.TimeFormat))
		b.WriteString(" ")
	}

	h.paint(&b, levelColors[record.Level]+Bold, fmt.Sprintf("%-5s", strings.ToUpper(record.Level.String())))
	b.WriteString(" ")

	b.WriteString(record.Message)

	for _, a := range h.collectAttrs(record) {
		b.WriteString(" ")
		h.paint(&b, Cyan, a.Key+"=")
		b.WriteString(a.Value.Resolve().String())
	}

	_, err := fmt.Fprintln(h.opts.Output, b.String())
	return err
}

func NewRichLogger(opts *RichLoggerOptions) *slog.Logger {
	return slog.New(NewRichHandler(opts))
}
