// Package board describes the pins of a single-board computer header and the
// alternate functions each one can be muxed to.
package board

import (
	"fmt"
	"slices"
	"strings"
)

// Function is the electrical role a pin is configured for.
type Function string

// Pin functions.
const (
	FunctionGPIO Function = "GPIO"
	FunctionPWM  Function = "PWM"
	FunctionI2C  Function = "I2C"
	FunctionSPI  Function = "SPI"
	FunctionUART Function = "UART"
)

// AllFunctions lists every function in display order.
var AllFunctions = []Function{FunctionGPIO, FunctionPWM, FunctionI2C, FunctionSPI, FunctionUART}

// IsBus reports whether f is a fixed-function bus that spans a pin group.
func (f Function) IsBus() bool {
	return f == FunctionI2C || f == FunctionSPI || f == FunctionUART
}

// ParseFunction converts a case-insensitive name to a Function.
func ParseFunction(s string) (Function, bool) {
	f := Function(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(AllFunctions, f) {
		return f, true
	}
	return "", false
}

// PinSpec is the static description of one header pin.
type PinSpec struct {
	Pin int
	// Functions lists alternate functions beyond GPIO, which every pin supports.
	Functions []Function
	// Group and Role are set for bus members.
	Group string
	Role  string
	// PWMChannel is the hardware PWM channel wired to this pin, or -1.
	PWMChannel int
	// Alt maps a function to the pinmux selector (for example "a0").
	Alt map[Function]string
}

// Group is a set of pins that together form one physical bus.
type Group struct {
	ID       string
	Function Function
	// Members are ordered by pin number.
	Members []int
}

// Table is the read-only capability table for a board.
type Table struct {
	model  string
	pins   map[int]PinSpec
	order  []int
	groups map[string]Group
}

// New validates the description and builds a Table.
func New(model string, specs []PinSpec, groups []Group) (*Table, error) {
	t := &Table{
		model:  model,
		pins:   make(map[int]PinSpec, len(specs)),
		groups: make(map[string]Group, len(groups)),
	}

	for _, spec := range specs {
		if _, dup := t.pins[spec.Pin]; dup {
			return nil, fmt.Errorf("pin %d declared twice", spec.Pin)
		}
		for _, f := range spec.Functions {
			if f == FunctionGPIO {
				return nil, fmt.Errorf("pin %d: GPIO is implicit", spec.Pin)
			}
		}
		t.pins[spec.Pin] = spec
		t.order = append(t.order, spec.Pin)
	}
	slices.Sort(t.order)

	for _, g := range groups {
		if !g.Function.IsBus() {
			return nil, fmt.Errorf("group %s: %s is not a bus function", g.ID, g.Function)
		}
		members := slices.Clone(g.Members)
		slices.Sort(members)
		for _, pin := range members {
			spec, ok := t.pins[pin]
			if !ok {
				return nil, fmt.Errorf("group %s: unknown pin %d", g.ID, pin)
			}
			if spec.Group != g.ID {
				return nil, fmt.Errorf("group %s: pin %d declares group %q", g.ID, pin, spec.Group)
			}
			if !slices.Contains(spec.Functions, g.Function) {
				return nil, fmt.Errorf("group %s: pin %d is not eligible for %s", g.ID, pin, g.Function)
			}
		}
		g.Members = members
		t.groups[g.ID] = g
	}

	for _, pin := range t.order {
		if g := t.pins[pin].Group; g != "" {
			if _, ok := t.groups[g]; !ok {
				return nil, fmt.Errorf("pin %d: unknown group %q", pin, g)
			}
		}
	}

	return t, nil
}

// Model returns the board model the table describes.
func (t *Table) Model() string {
	return t.model
}

// Pins returns all pin identifiers in ascending order.
func (t *Table) Pins() []int {
	return slices.Clone(t.order)
}

// Has reports whether pin exists on the board.
func (t *Table) Has(pin int) bool {
	_, ok := t.pins[pin]
	return ok
}

// Spec returns the static description of pin.
func (t *Table) Spec(pin int) (PinSpec, bool) {
	spec, ok := t.pins[pin]
	return spec, ok
}

// EligibleFunctions returns the functions pin may assume, GPIO first.
func (t *Table) EligibleFunctions(pin int) []Function {
	spec, ok := t.pins[pin]
	if !ok {
		return nil
	}
	out := make([]Function, 0, len(spec.Functions)+1)
	out = append(out, FunctionGPIO)
	for _, f := range AllFunctions {
		if slices.Contains(spec.Functions, f) {
			out = append(out, f)
		}
	}
	return out
}

// Eligible reports whether pin may assume f.
func (t *Table) Eligible(pin int, f Function) bool {
	spec, ok := t.pins[pin]
	if !ok {
		return false
	}
	return f == FunctionGPIO || slices.Contains(spec.Functions, f)
}

// BusGroup returns the bus group pin belongs to.
func (t *Table) BusGroup(pin int) (string, bool) {
	spec, ok := t.pins[pin]
	if !ok || spec.Group == "" {
		return "", false
	}
	return spec.Group, true
}

// GroupMembers returns the pins of a group in ascending order.
func (t *Table) GroupMembers(group string) []int {
	g, ok := t.groups[group]
	if !ok {
		return nil
	}
	return slices.Clone(g.Members)
}

// Group returns the description of a bus group.
func (t *Table) Group(id string) (Group, bool) {
	g, ok := t.groups[id]
	return g, ok
}

// Groups returns all bus groups sorted by id.
func (t *Table) Groups() []Group {
	out := make([]Group, 0, len(t.groups))
	for _, g := range t.groups {
		g.Members = slices.Clone(g.Members)
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b Group) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// PWMChannel returns the hardware PWM channel wired to pin.
func (t *Table) PWMChannel(pin int) (int, bool) {
	spec, ok := t.pins[pin]
	if !ok || spec.PWMChannel < 0 || !slices.Contains(spec.Functions, FunctionPWM) {
		return -1, false
	}
	return spec.PWMChannel, true
}

// Alt returns the pinmux selector for f on pin.
func (t *Table) Alt(pin int, f Function) (string, bool) {
	spec, ok := t.pins[pin]
	if !ok {
		return "", false
	}
	alt, ok := spec.Alt[f]
	return alt, ok
}

// Role returns the bus signal name of pin (SDA, MOSI, TXD...), if any.
func (t *Table) Role(pin int) string {
	return t.pins[pin].Role
}
