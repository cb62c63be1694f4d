package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

// Source collects one snapshot.
type Source interface {
	Collect(ctx context.Context) (Snapshot, error)
}

// Runner executes an external command and returns its output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var (
	voltageRails = []string{"core", "sdram_c", "sdram_i", "sdram_p"}
	clockNames   = []string{"arm", "core", "h264", "isp", "v3d", "uart", "pwm", "emmc", "pixel", "hdmi"}
	memSplit     = []string{"arm", "gpu"}
	bootConfigs  = []string{"boot/firmware/config.txt", "boot/config.txt"}
)

// Host reads vitals from procfs, sysfs and vcgencmd.
type Host struct {
	root   string
	run    Runner
	isPi   bool
	model  string
	logger *slog.Logger

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
}

// NewHost creates a source rooted at root ("/" in production). run is used
// for vcgencmd on Raspberry Pi hosts.
func NewHost(root string, run Runner, model string, isPi bool, logger *slog.Logger) *Host {
	return &Host{root: root, run: run, model: model, isPi: isPi, logger: logger}
}

func (h *Host) path(rel string) string {
	return filepath.Join(h.root, rel)
}

// Collect implements Source. Memory and CPU are required; firmware values
// are best effort and left empty when unavailable.
func (h *Host) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Info: Info{IsPi: h.isPi, Model: h.model},
		Power: Power{
			Voltages: make(map[string]float64),
			Clocks:   make(map[string]int64),
			Memory:   make(map[string]int64),
		},
	}

	var errs []error
	mem, err := h.memory()
	if err != nil {
		errs = append(errs, err)
	}
	snap.Info.Memory = mem

	usage, err := h.cpuUsage()
	if err != nil {
		errs = append(errs, err)
	}
	snap.Info.CPUUsage = usage

	if len(errs) > 0 {
		return snap, errors.Join(errs...)
	}

	if temp, err := h.temperature(); err == nil {
		snap.Info.Temperature = temp
	} else {
		h.logger.Debug("Temperature unavailable", "error", err)
	}
	if up, err := h.uptime(); err == nil {
		snap.Info.Uptime = up
	}

	snap.Config = h.bootConfig()

	if h.isPi {
		if err := h.firmware(ctx, &snap); err != nil {
			h.logger.Debug("Firmware telemetry incomplete", "error", err)
		}
		snap.Info.Voltage = snap.Power.Voltages["core"]
	}
	return snap, nil
}

func (h *Host) procFS() (procfs.FS, error) {
	return procfs.NewFS(h.path("proc"))
}

func (h *Host) memory() (Memory, error) {
	fs, err := h.procFS()
	if err != nil {
		return Memory{}, fmt.Errorf("open procfs: %w", err)
	}
	info, err := fs.Meminfo()
	if err != nil {
		return Memory{}, fmt.Errorf("read meminfo: %w", err)
	}
	if info.MemTotalBytes == nil {
		return Memory{}, errors.New("meminfo has no MemTotal")
	}

	total := *info.MemTotalBytes
	var free uint64
	switch {
	case info.MemAvailableBytes != nil:
		free = *info.MemAvailableBytes
	case info.MemFreeBytes != nil:
		free = *info.MemFreeBytes
	}
	return Memory{Total: total, Free: free, Used: total - min(free, total)}, nil
}

// cpuUsage returns busy percent since the previous call, or since boot on
// the first call. Guest time is already part of user and nice and is not
// counted again.
func (h *Host) cpuUsage() (float64, error) {
	fs, err := h.procFS()
	if err != nil {
		return 0, fmt.Errorf("open procfs: %w", err)
	}
	stat, err := fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read stat: %w", err)
	}

	c := stat.CPUTotal
	total := c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	if total == 0 {
		return 0, errors.New("stat has no cpu line")
	}
	busy := total - c.Idle - c.Iowait

	h.mu.Lock()
	dBusy, dTotal := busy-h.prevBusy, total-h.prevTotal
	h.prevBusy, h.prevTotal = busy, total
	h.mu.Unlock()

	if dTotal <= 0 {
		return 0, nil
	}
	return dBusy * 100 / dTotal, nil
}

// temperature reads the first thermal zone, which is the SoC sensor on a Pi.
func (h *Host) temperature() (float64, error) {
	fs, err := sysfs.NewFS(h.path("sys"))
	if err != nil {
		return 0, fmt.Errorf("open sysfs: %w", err)
	}
	zones, err := fs.ClassThermalZoneStats()
	if err != nil {
		return 0, fmt.Errorf("read thermal zones: %w", err)
	}
	if len(zones) == 0 {
		return 0, errors.New("no thermal zones")
	}
	return float64(zones[0].Temp) / 1000, nil
}

func (h *Host) uptime() (float64, error) {
	data, err := os.ReadFile(h.path("proc/uptime"))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, errors.New("empty uptime")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func (h *Host) bootConfig() BootConfig {
	cfg := BootConfig{BootConfig: make(map[string]string), ActiveOverlays: []string{}}

	if data, err := os.ReadFile(h.path("sys/devices/system/cpu/cpu0/cpufreq/scaling_governor")); err == nil {
		cfg.CPUGovernor = strings.TrimSpace(string(data))
	}

	for _, rel := range bootConfigs {
		data, err := os.ReadFile(h.path(rel))
		if err != nil {
			continue
		}
		parseBootConfig(data, &cfg)
		break
	}
	return cfg
}

// parseBootConfig reads key=value lines. Section headers and comments are
// skipped and later keys win.
func parseBootConfig(data []byte, cfg *BootConfig) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "dtoverlay" {
			name, _, _ := strings.Cut(value, ",")
			if name != "" {
				cfg.ActiveOverlays = append(cfg.ActiveOverlays, name)
			}
			continue
		}
		cfg.BootConfig[key] = value
	}
}

func (h *Host) firmware(ctx context.Context, snap *Snapshot) error {
	var errs []error

	for _, rail := range voltageRails {
		out, err := h.vcgencmd(ctx, "measure_volts", rail)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(valueOf(out), "V"), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s voltage %q: %w", rail, out, err))
			continue
		}
		snap.Power.Voltages[rail] = v
	}

	for _, clock := range clockNames {
		out, err := h.vcgencmd(ctx, "measure_clock", clock)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		hz, err := strconv.ParseInt(valueOf(out), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s clock %q: %w", clock, out, err))
			continue
		}
		snap.Power.Clocks[clock] = hz
	}

	for _, part := range memSplit {
		out, err := h.vcgencmd(ctx, "get_mem", part)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		size, err := parseMemSize(valueOf(out))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s memory %q: %w", part, out, err))
			continue
		}
		snap.Power.Memory[part] = size
	}

	out, err := h.vcgencmd(ctx, "get_throttled")
	if err != nil {
		errs = append(errs, err)
	} else {
		raw := valueOf(out)
		v, err := strconv.ParseUint(strings.TrimPrefix(raw, "0x"), 16, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse throttled %q: %w", out, err))
		} else {
			snap.Power.Throttling = DecodeThrottled(raw, v)
		}
	}

	if snap.Info.Temperature == 0 {
		if out, err := h.vcgencmd(ctx, "measure_temp"); err == nil {
			if c, err := strconv.ParseFloat(strings.TrimSuffix(valueOf(out), "'C"), 64); err == nil {
				snap.Info.Temperature = c
			}
		}
	}
	return errors.Join(errs...)
}

func (h *Host) vcgencmd(ctx context.Context, args ...string) (string, error) {
	out, err := h.run(ctx, "vcgencmd", args...)
	if err != nil {
		return "", fmt.Errorf("vcgencmd %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// valueOf returns the part after '=' in vcgencmd output such as
// "frequency(48)=1500345728" or "volt=0.8600V".
func valueOf(out string) string {
	_, v, ok := strings.Cut(out, "=")
	if !ok {
		return out
	}
	return strings.TrimSpace(v)
}

func parseMemSize(s string) (int64, error) {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
	}
	n, err := strconv.ParseInt(strings.TrimRight(s, "GMK"), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}
