package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultHistory is how many recent entries the in-memory history keeps.
const DefaultHistory = 500

// Config selects the global level, the stdout format and per-module overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	History int               `toml:"history"`
}

var (
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     = make(map[string]*slog.Logger)
	levels      = make(map[string]*slog.LevelVar)
	rootLevel   = &slog.LevelVar{}
	history     *RingBuffer
)

// Initialize configures logging. Loggers handed out earlier are rebuilt so
// they pick up the format, the history buffer and their module level.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = config
	initialized = true

	size := config.History
	if size <= 0 {
		size = DefaultHistory
	}
	history = NewRingBuffer(size)

	rootLevel.Set(levelOr(config.Level, slog.LevelInfo))

	for module, lv := range levels {
		lv.Set(moduleLevel(module))
		loggers[module] = slog.New(newHandler(config.Format, lv, history)).With("module", module)
	}

	slog.SetDefault(slog.New(newHandler(config.Format, rootLevel, history)))
}

// History returns the buffer of recent entries, or nil before Initialize.
func History() *RingBuffer {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	l, ok := loggers[module]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(module))
	format := "text"
	if initialized {
		format = cfg.Format
	}
	l = slog.New(newHandler(format, lv, history)).With("module", module)
	loggers[module] = l
	levels[module] = lv
	return l
}

// SetModuleLevel changes a module's level at runtime. It reports false when
// level is not a known level name.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)
	mu.Lock()
	levels[module].Set(parsed)
	mu.Unlock()
	return true
}

// moduleLevel resolves a module's level from the config. Callers hold mu.
func moduleLevel(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	global := levelOr(cfg.Level, slog.LevelInfo)
	if s, ok := cfg.Modules[module]; ok {
		return levelOr(s, global)
	}
	return global
}

// newHandler fans out to stdout when it is usable, to the journal when
// journald is listening, and to the history buffer once one exists.
func newHandler(format string, level slog.Leveler, buf *RingBuffer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if stdoutUsable() {
		handlers = append(handlers, stdout)
	}
	if JournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	if buf != nil {
		handlers = append(handlers, NewBufferHandler(buf, level))
	}

	switch len(handlers) {
	case 0:
		return stdout
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// stdoutUsable is false when stdout is closed or points at /dev/null.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	m := fi.Mode()
	return m&os.ModeCharDevice != 0 || m&os.ModeNamedPipe != 0 || m&os.ModeSocket != 0 || m.IsRegular()
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return fallback
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
