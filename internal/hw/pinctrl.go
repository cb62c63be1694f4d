package hw

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const pinctrlTimeout = 2 * time.Second

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// pinctrl muxes pins with the Raspberry Pi pinctrl tool.
type pinctrl struct {
	run Runner
}

// NewPinctrl returns a Muxer backed by `pinctrl set <pin> <alt>`.
func NewPinctrl(run Runner) Muxer {
	return &pinctrl{run: run}
}

func (p *pinctrl) Mux(pin int, alt string) error {
	ctx, cancel := context.WithTimeout(context.Background(), pinctrlTimeout)
	defer cancel()
	out, err := p.run(ctx, "pinctrl", "set", strconv.Itoa(pin), alt)
	if err != nil {
		return fmt.Errorf("pinctrl set %d %s: %w: %s", pin, alt, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// noopMux accepts mux requests on boards without a runtime pinmux tool; the
// functions are expected to come from the device tree.
type noopMux struct {
	logger *slog.Logger
}

func (n noopMux) Mux(pin int, alt string) error {
	n.logger.Debug("No pinmux tool, relying on device tree", "pin", pin, "alt", alt)
	return nil
}

// recordPads keeps pad settings without touching hardware. The GPIO
// character device has no pad controls.
type recordPads struct {
	logger *slog.Logger
}

func (r recordPads) SetPad(pin int, pad Pad) error {
	r.logger.Debug("Pad settings recorded", "pin", pin,
		"drive_strength", pad.DriveStrength, "slew_rate", pad.SlewRate, "hysteresis", pad.Hysteresis)
	return nil
}
