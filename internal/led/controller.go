// Package led drives the board status LED from pin health.
package led

// Pattern is how a lit LED behaves.
type Pattern string

// Patterns understood by every Controller.
const (
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
)

// StatusLED is the logical name of the board activity LED.
const StatusLED = "status"

// Controller sets board LEDs by logical name.
type Controller interface {
	Set(name string, on bool, pattern Pattern) error
	Available() []string
}
