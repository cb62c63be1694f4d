// Package logging provides per-module slog loggers for gpionode.
//
// Initialize once at startup, then ask for a logger per component:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"edge": "debug",
//			"api":  "warn",
//		},
//	})
//
//	logger := logging.GetLogger("hw")
//	logger.Warn("Hardware PWM unavailable, using software", "pin", 18)
//
// Every logger carries a module attribute. Records go to stdout (text or
// JSON) when stdout is a terminal, pipe, socket or file, and to the systemd
// journal when journald is listening. The most recent records are also kept
// in memory and served by GET /api/logs.
//
// On a journald host:
//
//	journalctl -t gpionode -f
//	journalctl -t gpionode MODULE=edge PIN=17
//
// TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	edge = "debug"
package logging
