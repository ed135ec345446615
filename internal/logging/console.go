// ABOUTME: Console slog handler for the terminal client: one coloured line per record
// ABOUTME: Lifts the component attr into a bracketed prefix and renders groups as dotted keys

package logging

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ConsoleHandler writes records as
//
//	15:04:05 INF [component] message key=value group.key=value
//
// The "component" attr, when added through WithAttrs outside any group,
// becomes the bracketed prefix instead of a key=value pair. Derived handlers
// share one lock, so lines from different components never interleave.
type ConsoleHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Leveler

	component string
	group     string // dotted prefix for keys, "" at top level
	preset    string // attrs from WithAttrs, already rendered
}

// NewConsoleHandler returns a handler writing to out. A nil level means info.
func NewConsoleHandler(out io.Writer, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	if !r.Time.IsZero() {
		buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
		buf.WriteByte(' ')
	}
	buf.WriteString(levelTag(r.Level))
	buf.WriteByte(' ')
	if h.component != "" {
		buf.WriteString(color.BlueString("[%s]", h.component))
		buf.WriteByte(' ')
	}
	buf.WriteString(r.Message)
	buf.WriteString(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	var buf strings.Builder
	buf.WriteString(h.preset)
	for _, a := range attrs {
		if h.group == "" && a.Key == "component" {
			next.component = a.Value.Resolve().String()
			continue
		}
		writeAttr(&buf, h.group, a)
	}
	next.preset = buf.String()
	return &next
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

func levelTag(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return color.MagentaString("DBG")
	case level < slog.LevelWarn:
		return color.CyanString("INF")
	case level < slog.LevelError:
		return color.YellowString("WRN")
	default:
		return color.New(color.FgRed, color.Bold).Sprint("ERR")
	}
}

// writeAttr renders a as " prefix.key=value", flattening groups.
func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(buf, inner, ga)
		}
		return
	}

	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
		buf.WriteString(color.RedString(quote(err.Error())))
		return
	}
	buf.WriteString(quote(a.Value.String()))
}

// quote wraps values that would otherwise be ambiguous on one line.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
