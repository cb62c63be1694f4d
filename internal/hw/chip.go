// Package hw actuates pin configuration on real or simulated hardware.
package hw

import (
	"time"

	"github.com/smazurov/gpionode/internal/pins"
)

// EdgeHandler receives every level transition of a watched line.
type EdgeHandler func(pin int, level bool, ts time.Time)

// Chip drives individual GPIO lines. Implementations are safe for concurrent
// use on distinct pins.
type Chip interface {
	Name() string
	// Input requests the line as an input with the given bias.
	Input(pin int, pull pins.Pull) error
	// Output requests the line as an output driven to level.
	Output(pin int, level bool) error
	SetLevel(pin int, level bool) error
	Level(pin int) (bool, error)
	// Watch requests the line as an input reporting both edges to h.
	Watch(pin int, pull pins.Pull, h EdgeHandler) error
	Unwatch(pin int) error
	// Release gives the line up so the pin can be muxed elsewhere.
	Release(pin int) error
	Close() error
}

// Muxer switches a pin to an alternate function.
type Muxer interface {
	Mux(pin int, alt string) error
}

// Pad holds the electrical pad settings of a pin.
type Pad struct {
	DriveStrength pins.DriveStrength
	SlewRate      pins.SlewRate
	Hysteresis    bool
}

func padOf(s pins.State) Pad {
	return Pad{DriveStrength: s.DriveStrength, SlewRate: s.SlewRate, Hysteresis: s.Hysteresis}
}

// Pads applies pad settings.
type Pads interface {
	SetPad(pin int, pad Pad) error
}

// PWMChannel is one hardware PWM output.
type PWMChannel interface {
	// Configure sets period and high time. The new values take effect at the
	// next period boundary.
	Configure(period, duty time.Duration) error
	Enable(on bool) error
}

// PWMChip exposes hardware PWM channels.
type PWMChip interface {
	Channels() int
	Channel(n int) (PWMChannel, error)
}

// Backend bundles the hardware interfaces the driver needs.
type Backend struct {
	Name string
	Chip Chip
	Mux  Muxer
	Pads Pads
	// PWM is nil when the board has no usable hardware PWM.
	PWM PWMChip
}
