// Package testenv holds helpers shared by workledger tests.
package testenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// TestLogHandler is a slog.Handler that prints message index (starting from 0),
// level, and message content, without the timestamp.
// This allows test log output to be deterministic.
//
// Handlers derived through WithAttrs and WithGroup share the index, the output and
// the recorded lines of their parent, so concurrent loggers stay ordered.
type TestLogHandler struct {
	shared      *sharedOutput
	attrs       []slog.Attr
	groups      []string
	ignoreDebug bool
}

type sharedOutput struct {
	mu    sync.Mutex
	w     io.Writer
	index int
	lines []string
}

// TestLogHandlerOption configures a TestLogHandler
type TestLogHandlerOption func(*TestLogHandler)

// WithOutput writes formatted records to w instead of stdout
func WithOutput(w io.Writer) TestLogHandlerOption {
	return func(h *TestLogHandler) {
		h.shared.w = w
	}
}

// WithIgnoreDebug configures the handler to ignore DEBUG level messages
func WithIgnoreDebug() TestLogHandlerOption {
	return func(h *TestLogHandler) {
		h.ignoreDebug = true
	}
}

func NewTestLogHandler(opts ...TestLogHandlerOption) *TestLogHandler {
	h := &TestLogHandler{shared: &sharedOutput{w: os.Stdout}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Lines returns every record handled so far, formatted as printed.
func (h *TestLogHandler) Lines() []string {
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	return append([]string(nil), h.shared.lines...)
}

// Contains reports whether any handled record's message equals msg.
func (h *TestLogHandler) Contains(level slog.Level, msg string) bool {
	prefix := fmt.Sprintf("%s: %s", level, msg)
	for _, l := range h.Lines() {
		if _, rest, ok := strings.Cut(l, "] "); ok && (rest == prefix || strings.HasPrefix(rest, prefix+" ")) {
			return true
		}
	}
	return false
}

//nolint:gocritic
func (h *TestLogHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelDebug && h.ignoreDebug {
		return nil
	}

	attrs := h.attrsToString(&r)

	s := h.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	var line string
	if attrs != "" {
		line = fmt.Sprintf("[%d] %s: %s %s", s.index, r.Level, r.Message, attrs)
	} else {
		line = fmt.Sprintf("[%d] %s: %s", s.index, r.Level, r.Message)
	}
	s.index++
	s.lines = append(s.lines, line)
	_, err := fmt.Fprintln(s.w, line)
	return err
}

func (h *TestLogHandler) attrsToString(r *slog.Record) string {
	var sb strings.Builder

	for i, attr := range h.attrs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatAttr(attr, ""))
	}

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatAttr(a, prefix))
		return true
	})
	return sb.String()
}

func formatAttr(a slog.Attr, prefix string) string {
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix + a.Key + "."
		parts := make([]string, 0, len(a.Value.Group()))
		for _, ga := range a.Value.Group() {
			parts = append(parts, formatAttr(ga, groupPrefix))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value)
}

func (h *TestLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return !(h.ignoreDebug && level == slog.LevelDebug)
}

func (h *TestLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	newAttrs := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		if prefix != "" {
			attr.Key = prefix + attr.Key
		}
		newAttrs = append(newAttrs, attr)
	}

	c := *h
	c.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], newAttrs...)
	return &c
}

func (h *TestLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &c
}
