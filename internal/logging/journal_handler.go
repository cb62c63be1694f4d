package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry, so `journalctl -t gpionode`
// selects this service.
const SyslogIdentifier = "gpionode"

// JournalHandler sends records to the systemd journal. Attributes become
// upper-cased journal fields, with groups joined by underscores.
type JournalHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier}
	for _, a := range h.attrs {
		journalFields(fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		journalFields(fields, h.groups, a)
		return true
	})
	if err := journal.Send(r.Message, priority(r.Level), fields); err != nil {
		return fmt.Errorf("journal send: %w", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalFields adds a to fields. Journal field names are upper case
// letters, digits and underscores.
func journalFields(fields map[string]string, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := journalKey(append(append([]string(nil), groups...), a.Key))

	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := append(append([]string(nil), groups...), a.Key)
		for _, ga := range a.Value.Group() {
			journalFields(fields, sub, ga)
		}
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(a.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(a.Value.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(a.Value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(a.Value.Bool())
	case slog.KindDuration:
		fields[key] = a.Value.Duration().String()
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = a.Value.String()
	}
}

func journalKey(parts []string) string {
	key := strings.ToUpper(strings.Join(parts, "_"))
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, key)
}

// JournalAvailable reports whether journald is listening.
func JournalAvailable() bool {
	return journal.Enabled()
}
