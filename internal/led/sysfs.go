package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// SysfsRoot is where the kernel exposes LEDs.
const SysfsRoot = "/sys/class/leds"

// sysfs drives LEDs through their trigger and brightness attributes.
type sysfs struct {
	root string
	leds map[string]string
}

func newSysfs(root string, leds map[string]string) *sysfs {
	return &sysfs{root: root, leds: leds}
}

// Set implements Controller. Solid takes the LED away from any kernel
// trigger; blink hands it to the heartbeat trigger.
func (s *sysfs) Set(name string, on bool, pattern Pattern) error {
	dev, ok := s.leds[name]
	if !ok {
		return fmt.Errorf("LED %q not available on this board", name)
	}
	dir := filepath.Join(s.root, dev)

	trigger := "none"
	if on && pattern == PatternBlink {
		trigger = "heartbeat"
	}
	if err := os.WriteFile(filepath.Join(dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("set %s trigger: %w", dev, err)
	}
	if trigger != "none" {
		return nil
	}

	brightness := "0"
	if on {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("set %s brightness: %w", dev, err)
	}
	return nil
}

// Available implements Controller.
func (s *sysfs) Available() []string {
	names := make([]string, 0, len(s.leds))
	for name := range s.leds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
