// Package nats mirrors pin and telemetry events to NATS and accepts pin
// commands from it.
//
// # Subjects
//
//	gpionode.pins.{pin}.state     # pin_state_change events (server → subscribers)
//	gpionode.pins.{pin}.fault     # pin degraded to faulty (server → subscribers)
//	gpionode.pins.{pin}.cmd       # pin commands, request-reply (clients → server)
//	gpionode.system.telemetry     # telemetry refreshes (server → subscribers)
//
// Core NATS only, no JetStream. A subscriber that misses messages can
// detect the gap from the seq field of state messages and re-sync over
// HTTP. The publisher degrades to a no-op while NATS is unreachable.
//
// An embedded server (Server) can be started for hosts without a broker.
//
// # Debugging with nats CLI
//
// Watch every pin:
//
//	nats sub "gpionode.pins.*.state"
//
// Drive pin 17 high and print the reply:
//
//	nats req gpionode.pins.17.cmd '{"kind":"level","level":true}'
//
// Switch pin 18 to PWM at 25% duty:
//
//	nats req gpionode.pins.18.cmd '{"kind":"function","function":"PWM"}'
//	nats req gpionode.pins.18.cmd '{"kind":"pwm","duty_cycle":25}'
//
// # Message Formats
//
// Command (gpionode.pins.{pin}.cmd), kind is one of level, function, mode,
// pull, edge, pwm, label, advanced:
//
//	{"kind": "mode", "mode": "OUT"}
//
// Reply:
//
//	{"ok": false, "code": "ModeConflict", "error": "ModeConflict: pin 17 is an input"}
package nats
