package hw

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/smazurov/gpionode/internal/board"
)

// Backend kinds.
const (
	KindAuto    = "auto"
	KindChardev = "chardev"
	KindSim     = "sim"
)

// BackendConfig selects and locates the hardware backend.
type BackendConfig struct {
	Kind     string
	GPIOChip string
	PWMChip  string
	Model    string
}

// Open picks a backend for the board. In auto mode a Raspberry Pi with an
// accessible GPIO character device gets the real backend and anything else
// runs on the simulator.
func Open(cfg BackendConfig, logger *slog.Logger) (*Backend, error) {
	logger.Info("Detecting GPIO backend", "board_model", cfg.Model, "kind", cfg.Kind)

	switch cfg.Kind {
	case KindSim:
		return simBackend(logger), nil
	case KindChardev:
		return chardevBackend(cfg, logger)
	case KindAuto, "":
		if !board.IsRaspberryPi(cfg.Model) {
			logger.Info("No Raspberry Pi detected, using simulated GPIO", "board_model", cfg.Model)
			return simBackend(logger), nil
		}
		b, err := chardevBackend(cfg, logger)
		if err != nil {
			logger.Warn("GPIO character device unavailable, using simulated GPIO", "error", err)
			return simBackend(logger), nil
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown GPIO backend %q", cfg.Kind)
	}
}

func simBackend(logger *slog.Logger) *Backend {
	chip := NewSimChip()
	logger.Info("Using simulated GPIO backend")
	return &Backend{Name: KindSim, Chip: chip, Mux: chip, Pads: chip, PWM: NewSimPWM(2)}
}

func chardevBackend(cfg BackendConfig, logger *slog.Logger) (*Backend, error) {
	chip, err := OpenChardev(cfg.GPIOChip)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		Name: KindChardev,
		Chip: chip,
		Pads: recordPads{logger: logger},
	}

	if _, err := exec.LookPath("pinctrl"); err == nil {
		b.Mux = NewPinctrl(ExecRunner)
	} else {
		logger.Info("pinctrl not found, alternate functions come from the device tree")
		b.Mux = noopMux{logger: logger}
	}

	if _, err := os.Stat(cfg.PWMChip); err == nil {
		pwm, pwmErr := OpenSysfsPWM(cfg.PWMChip)
		if pwmErr != nil {
			logger.Warn("Hardware PWM unavailable", "path", cfg.PWMChip, "error", pwmErr)
		} else {
			b.PWM = pwm
			logger.Info("Hardware PWM available", "path", cfg.PWMChip, "channels", pwm.Channels())
		}
	} else {
		logger.Info("No hardware PWM controller, all PWM will be software generated", "path", cfg.PWMChip)
	}

	logger.Info("Using GPIO character device", "chip", chip.Name())
	return b, nil
}
