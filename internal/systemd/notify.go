// Package systemd integrates with the service manager: readiness and
// watchdog notifications, and unit control over D-Bus.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages. Outside systemd every call is a no-op.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready reports that startup is complete.
func (n *Notifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

// Status sets the one-line status shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

// Watchdog pings the service manager at half the configured WatchdogSec
// for as long as healthy returns true, until ctx ends. It returns at once
// when the unit has no watchdog.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Cannot read watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	period := interval / 2
	n.logger.Info("systemd watchdog enabled", "interval", interval)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy != nil && !healthy() {
				n.logger.Warn("Skipping watchdog ping, service unhealthy")
				continue
			}
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
