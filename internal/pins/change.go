package pins

import "github.com/smazurov/gpionode/internal/board"

// Change is one requested mutation of a pin record.
type Change interface {
	// Kind names the change for logs and metrics.
	Kind() string
}

// SetFunction muxes the pin to another function.
type SetFunction struct{ Function board.Function }

// SetMode changes the GPIO direction.
type SetMode struct{ Mode Mode }

// SetLevel drives a GPIO output.
type SetLevel struct{ Level bool }

// SetPull changes the input bias.
type SetPull struct{ Pull Pull }

// SetEdge changes the edge detection mode.
type SetEdge struct{ Edge Edge }

// SetPWM updates frequency, duty cycle or both. Nil fields are unchanged.
type SetPWM struct {
	Frequency *int
	DutyCycle *int
}

// SetAdvanced updates pad settings. Nil fields are unchanged.
type SetAdvanced struct {
	DriveStrength *DriveStrength
	SlewRate      *SlewRate
	Hysteresis    *bool
	SoftwarePWM   *bool
}

// SetLabel updates the descriptive fields. Nil fields are unchanged.
type SetLabel struct {
	Name        *string
	Description *string
}

func (SetFunction) Kind() string { return "function" }
func (SetMode) Kind() string     { return "mode" }
func (SetLevel) Kind() string    { return "level" }
func (SetPull) Kind() string     { return "pull" }
func (SetEdge) Kind() string     { return "edge" }
func (SetPWM) Kind() string      { return "pwm" }
func (SetAdvanced) Kind() string { return "advanced" }
func (SetLabel) Kind() string    { return "label" }
