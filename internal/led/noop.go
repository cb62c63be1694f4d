package led

import "log/slog"

// noop stands in on boards without a usable LED.
type noop struct {
	logger *slog.Logger
}

func (n noop) Set(name string, on bool, pattern Pattern) error {
	n.logger.Debug("No status LED, ignoring", "led", name, "on", on, "pattern", pattern)
	return nil
}

func (n noop) Available() []string { return []string{} }
