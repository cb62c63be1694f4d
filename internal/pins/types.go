// Package pins holds the pin record model, the rules that govern changes to
// it, and the store that owns every record for the lifetime of the service.
package pins

import (
	"slices"
	"strings"
	"time"

	"github.com/smazurov/gpionode/internal/board"
)

// Mode is the direction of a GPIO line.
type Mode string

// Line directions.
const (
	ModeIn  Mode = "IN"
	ModeOut Mode = "OUT"
)

// Valid reports whether m is a known direction.
func (m Mode) Valid() bool { return m == ModeIn || m == ModeOut }

// Pull is the input bias.
type Pull string

// Bias settings.
const (
	PullNone Pull = "NONE"
	PullUp   Pull = "UP"
	PullDown Pull = "DOWN"
)

// Valid reports whether p is a known bias.
func (p Pull) Valid() bool { return p == PullNone || p == PullUp || p == PullDown }

// Edge selects which input transitions raise events.
type Edge string

// Edge detection modes.
const (
	EdgeNone    Edge = "NONE"
	EdgeRising  Edge = "RISING"
	EdgeFalling Edge = "FALLING"
	EdgeBoth    Edge = "BOTH"
)

// Valid reports whether e is a known edge mode.
func (e Edge) Valid() bool {
	return e == EdgeNone || e == EdgeRising || e == EdgeFalling || e == EdgeBoth
}

// Matches reports whether a transition to level qualifies under e.
func (e Edge) Matches(level bool) bool {
	switch e {
	case EdgeBoth:
		return true
	case EdgeRising:
		return level
	case EdgeFalling:
		return !level
	default:
		return false
	}
}

// DriveStrength is the pad output current limit.
type DriveStrength string

// DriveStrengths lists the supported pad current levels.
var DriveStrengths = []DriveStrength{"2mA", "4mA", "8mA", "12mA", "16mA"}

// Valid reports whether d is a supported current level.
func (d DriveStrength) Valid() bool { return slices.Contains(DriveStrengths, d) }

// SlewRate is the pad output edge rate.
type SlewRate string

// Slew rates.
const (
	SlewFast SlewRate = "FAST"
	SlewSlow SlewRate = "SLOW"
)

// Valid reports whether s is a known slew rate.
func (s SlewRate) Valid() bool { return s == SlewFast || s == SlewSlow }

// PWMBackend reports how an active PWM signal is generated.
type PWMBackend string

// PWM generators.
const (
	PWMBackendNone     PWMBackend = ""
	PWMBackendHardware PWMBackend = "hardware"
	PWMBackendSoftware PWMBackend = "software"
)

// Defaults for a freshly created or reset pin.
const (
	DefaultPWMFrequency  = 1000
	DefaultDriveStrength = DriveStrength("8mA")
	MaxPWMFrequency      = 1_000_000
	MaxNameLength        = 64
	MaxDescriptionLength = 256
)

// Normalize upper-cases and trims an enumerated value received from a client.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// State is the full record of one pin.
type State struct {
	Pin         int
	Name        string
	Description string

	Function board.Function

	// GPIO fields, held at defaults unless Function is GPIO.
	Mode        Mode
	Level       bool
	Pull        Pull
	Edge        Edge
	LastTrigger time.Time

	// PWM fields, held at defaults unless Function is PWM.
	PWMFrequency int
	PWMDutyCycle int
	PWMBackend   PWMBackend
	PWMChannel   int

	DriveStrength DriveStrength
	SlewRate      SlewRate
	Hysteresis    bool
	SoftwarePWM   bool

	Faulty bool
	Fault  string

	// Version increases by one on every committed change.
	Version uint64
}

// Default returns the startup record for pin.
func Default(pin int) State {
	return State{
		Pin:           pin,
		Function:      board.FunctionGPIO,
		Mode:          ModeIn,
		Pull:          PullNone,
		Edge:          EdgeNone,
		PWMFrequency:  DefaultPWMFrequency,
		PWMChannel:    -1,
		DriveStrength: DefaultDriveStrength,
		SlewRate:      SlewFast,
		Hysteresis:    true,
	}
}

// Watched reports whether s qualifies for an edge watch.
func (s State) Watched() bool {
	return s.Function == board.FunctionGPIO && s.Mode == ModeIn && s.Edge != EdgeNone
}

// HasTrigger reports whether an edge has ever been recorded.
func (s State) HasTrigger() bool {
	return !s.LastTrigger.IsZero()
}

func (s *State) resetGPIO() {
	d := Default(s.Pin)
	s.Mode = d.Mode
	s.Level = d.Level
	s.Pull = d.Pull
	s.Edge = d.Edge
	s.LastTrigger = time.Time{}
}

func (s *State) resetPWM() {
	s.PWMFrequency = DefaultPWMFrequency
	s.PWMDutyCycle = 0
	s.PWMBackend = PWMBackendNone
	s.PWMChannel = -1
}
