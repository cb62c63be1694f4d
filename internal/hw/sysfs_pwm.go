package hw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPWMChip is the sysfs directory of the first PWM controller.
const DefaultPWMChip = "/sys/class/pwm/pwmchip0"

// sysfsPWM drives hardware PWM through /sys/class/pwm.
type sysfsPWM struct {
	root     string
	channels int
	mu       sync.Mutex
	open     map[int]*sysfsChannel
}

// OpenSysfsPWM opens a pwmchip directory.
func OpenSysfsPWM(root string) (PWMChip, error) {
	data, err := os.ReadFile(filepath.Join(root, "npwm"))
	if err != nil {
		return nil, fmt.Errorf("read npwm: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse npwm: %w", err)
	}
	return &sysfsPWM{root: root, channels: n, open: make(map[int]*sysfsChannel)}, nil
}

func (s *sysfsPWM) Channels() int { return s.channels }

// Channel exports channel n if needed.
func (s *sysfsPWM) Channel(n int) (PWMChannel, error) {
	if n < 0 || n >= s.channels {
		return nil, fmt.Errorf("pwm channel %d does not exist", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.open[n]; ok {
		return c, nil
	}

	dir := filepath.Join(s.root, fmt.Sprintf("pwm%d", n))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(s.root, "export"), []byte(strconv.Itoa(n)), 0o644); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", n, err)
		}
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", n, err)
		}
	}

	c := &sysfsChannel{dir: dir}
	if data, err := os.ReadFile(filepath.Join(dir, "period")); err == nil {
		if ns, parseErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); parseErr == nil {
			c.period = time.Duration(ns)
		}
	}
	s.open[n] = c
	return c, nil
}

type sysfsChannel struct {
	dir    string
	period time.Duration
}

func (c *sysfsChannel) write(name string, v int64) error {
	if err := os.WriteFile(filepath.Join(c.dir, name), []byte(strconv.FormatInt(v, 10)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Configure writes period and duty_cycle in an order that keeps
// duty_cycle <= period at every step, which the kernel enforces.
func (c *sysfsChannel) Configure(period, duty time.Duration) error {
	if duty > period {
		return fmt.Errorf("duty %s exceeds period %s", duty, period)
	}
	if period >= c.period {
		if err := c.write("period", period.Nanoseconds()); err != nil {
			return err
		}
		if err := c.write("duty_cycle", duty.Nanoseconds()); err != nil {
			return err
		}
	} else {
		if err := c.write("duty_cycle", duty.Nanoseconds()); err != nil {
			return err
		}
		if err := c.write("period", period.Nanoseconds()); err != nil {
			return err
		}
	}
	c.period = period
	return nil
}

func (c *sysfsChannel) Enable(on bool) error {
	v := int64(0)
	if on {
		v = 1
	}
	return c.write("enable", v)
}
