package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func reset() {
	mu.Lock()
	loggers = make(map[string]*slog.Logger)
	levels = make(map[string]*slog.LevelVar)
	initialized = false
	history = nil
	cfg = Config{}
	mu.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	reset()
	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"edge": "debug", "api": "warn"},
	})

	tests := []struct {
		module                        string
		wantDebug, wantInfo, wantWarn bool
	}{
		{"edge", true, true, true},
		{"api", false, false, true},
		{"hw", false, true, true},
	}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerBeforeInitializeIsRebuilt(t *testing.T) {
	reset()
	early := GetLogger("gpio")
	if early.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug enabled before Initialize")
	}

	Initialize(Config{Level: "warn", Modules: map[string]string{"gpio": "debug"}})

	late := GetLogger("gpio")
	if !late.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("module override not applied to an existing logger")
	}
	late.Debug("after init")
	if History().Len() == 0 {
		t.Error("rebuilt logger does not write to the history")
	}
}

func TestSetModuleLevel(t *testing.T) {
	reset()
	Initialize(Config{Level: "info"})
	l := GetLogger("broadcast")

	if !SetModuleLevel("broadcast", "error") {
		t.Fatal("SetModuleLevel rejected a valid level")
	}
	if l.Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn still enabled after raising level to error")
	}
	if SetModuleLevel("broadcast", "loud") {
		t.Error("SetModuleLevel accepted an unknown level")
	}
}

func TestHistoryRecordsEntries(t *testing.T) {
	reset()
	Initialize(Config{Level: "debug", History: 3})
	l := GetLogger("hw")

	l.Info("line requested", "pin", 17, "bias", "pull-up")
	l.With(slog.Group("pwm", "channel", 0)).Warn("fallback", "err", errors.New("busy"))

	entries := History().Recent(0, func(e Entry) bool { return e.Module == "hw" })
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0]
	if first.Message != "line requested" || first.Level != "info" {
		t.Errorf("first = %+v", first)
	}
	if first.Attributes["pin"] != int64(17) {
		t.Errorf("pin attribute = %#v", first.Attributes["pin"])
	}
	second := entries[1]
	if second.Attributes["pwm.channel"] != int64(0) {
		t.Errorf("grouped attribute = %#v", second.Attributes)
	}
	if second.Attributes["err"] != "busy" {
		t.Errorf("error attribute = %#v", second.Attributes["err"])
	}
}

func TestRingBufferRecent(t *testing.T) {
	rb := NewRingBuffer(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		rb.Write(Entry{Time: time.Unix(int64(i), 0), Message: msg, Level: "info"})
	}
	if rb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", rb.Len())
	}

	msgs := func(es []Entry) string {
		s := ""
		for _, e := range es {
			s += e.Message
		}
		return s
	}
	if got := msgs(rb.Recent(0, nil)); got != "bcd" {
		t.Errorf("Recent(all) = %q, want bcd", got)
	}
	if got := msgs(rb.Recent(2, nil)); got != "cd" {
		t.Errorf("Recent(2) = %q, want cd", got)
	}
	odd := func(e Entry) bool { return e.Message != "c" }
	if got := msgs(rb.Recent(0, odd)); got != "bd" {
		t.Errorf("Recent(filtered) = %q, want bd", got)
	}
}

func TestMultiHandlerJoinsErrors(t *testing.T) {
	failing := failingHandler{err: errors.New("down")}
	rb := NewRingBuffer(4)
	m := NewMultiHandler(failing, NewBufferHandler(rb, slog.LevelInfo))

	err := m.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	if !errors.Is(err, failing.err) {
		t.Errorf("err = %v, want %v", err, failing.err)
	}
	if rb.Len() != 1 {
		t.Error("second handler skipped after first failed")
	}
}

func TestJournalKey(t *testing.T) {
	tests := map[string][]string{
		"PIN":          {"pin"},
		"PWM_CHANNEL":  {"pwm", "channel"},
		"REMOTE_ADDR_": {"remote.addr-"},
	}
	for want, parts := range tests {
		if got := journalKey(parts); got != want {
			t.Errorf("journalKey(%v) = %q, want %q", parts, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"trace", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

type failingHandler struct{ err error }

func (f failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (f failingHandler) Handle(context.Context, slog.Record) error { return f.err }
func (f failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return f }
func (f failingHandler) WithGroup(string) slog.Handler             { return f }
