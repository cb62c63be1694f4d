package hw

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(data))
}

func TestSysfsPWMConfigure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "npwm"), "2\n")
	writeFile(t, filepath.Join(root, "export"), "")
	ch0 := filepath.Join(root, "pwm0")
	writeFile(t, filepath.Join(ch0, "period"), "0")
	writeFile(t, filepath.Join(ch0, "duty_cycle"), "0")
	writeFile(t, filepath.Join(ch0, "enable"), "0")

	chip, err := OpenSysfsPWM(root)
	if err != nil {
		t.Fatal(err)
	}
	if chip.Channels() != 2 {
		t.Fatalf("Channels() = %d, want 2", chip.Channels())
	}

	c, err := chip.Channel(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Configure(time.Millisecond, 500*time.Microsecond); err != nil {
		t.Fatal(err)
	}
	if err := c.Enable(true); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(ch0, "period")); got != "1000000" {
		t.Errorf("period = %s", got)
	}
	if got := readFile(t, filepath.Join(ch0, "duty_cycle")); got != "500000" {
		t.Errorf("duty_cycle = %s", got)
	}
	if got := readFile(t, filepath.Join(ch0, "enable")); got != "1" {
		t.Errorf("enable = %s", got)
	}

	// Shorter period: duty is written first so it never exceeds period.
	if err := c.Configure(100*time.Microsecond, 10*time.Microsecond); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(ch0, "period")); got != "100000" {
		t.Errorf("period = %s", got)
	}

	if err := c.Configure(time.Millisecond, 2*time.Millisecond); err == nil {
		t.Error("expected error for duty above period")
	}
}

func TestSysfsPWMExport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "npwm"), "2")
	writeFile(t, filepath.Join(root, "export"), "")

	chip, err := OpenSysfsPWM(root)
	if err != nil {
		t.Fatal(err)
	}

	// Nothing creates pwm1 in a plain directory, so the export must fail
	// after writing the channel number.
	if _, err := chip.Channel(1); err == nil {
		t.Error("expected export failure")
	}
	if got := readFile(t, filepath.Join(root, "export")); got != "1" {
		t.Errorf("export = %q, want 1", got)
	}

	if _, err := chip.Channel(2); err == nil {
		t.Error("expected error for channel out of range")
	}
}

func TestOpenSysfsPWMMissing(t *testing.T) {
	if _, err := OpenSysfsPWM(filepath.Join(t.TempDir(), "pwmchip9")); err == nil {
		t.Error("expected error for missing chip")
	}
}
