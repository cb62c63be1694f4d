package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// BufferHandler records log entries into a RingBuffer.
type BufferHandler struct {
	buf    *RingBuffer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewBufferHandler creates a handler writing to buf.
func NewBufferHandler(buf *RingBuffer, level slog.Leveler) *BufferHandler {
	return &BufferHandler{buf: buf, level: level}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   LevelName(r.Level),
		Module:  "main",
		Message: r.Message,
	}
	add := func(a slog.Attr) {
		if a.Key == "module" && len(h.groups) == 0 {
			e.Module = a.Value.String()
			return
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]any)
		}
		flatten(e.Attributes, h.groups, a)
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	h.buf.Write(e)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

func flatten(dst map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := append(append([]string(nil), groups...), a.Key)
		for _, ga := range a.Value.Group() {
			flatten(dst, sub, ga)
		}
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = a.Value.Any()
		}
	default:
		dst[key] = a.Value.Any()
	}
}

// LevelName returns the lowercase name used in the history buffer.
func LevelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
