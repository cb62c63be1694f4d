package board

import (
	"os"
	"strings"
)

const deviceTreeModel = "/proc/device-tree/model"

// Bus group identifiers on the Raspberry Pi header.
const (
	GroupI2C1  = "i2c1"
	GroupSPI0  = "spi0"
	GroupUART0 = "uart0"
)

// RaspberryPi returns the capability table for the 40-pin Raspberry Pi header
// (BCM GPIO 2-27).
func RaspberryPi(model string) *Table {
	if model == "" {
		model = "Raspberry Pi"
	}

	specs := make([]PinSpec, 0, 26)
	for pin := 2; pin <= 27; pin++ {
		specs = append(specs, PinSpec{Pin: pin, PWMChannel: -1})
	}
	set := func(pin int, fn func(*PinSpec)) {
		spec := &specs[pin-2]
		if spec.Alt == nil {
			spec.Alt = make(map[Function]string)
		}
		fn(spec)
	}
	bus := func(pin int, f Function, group, role, alt string) {
		set(pin, func(s *PinSpec) {
			s.Functions = append(s.Functions, f)
			s.Group = group
			s.Role = role
			s.Alt[f] = alt
		})
	}
	pwm := func(pin, channel int, alt string) {
		set(pin, func(s *PinSpec) {
			s.Functions = append(s.Functions, FunctionPWM)
			s.PWMChannel = channel
			s.Alt[FunctionPWM] = alt
		})
	}

	bus(2, FunctionI2C, GroupI2C1, "SDA", "a0")
	bus(3, FunctionI2C, GroupI2C1, "SCL", "a0")

	bus(7, FunctionSPI, GroupSPI0, "CE1", "a0")
	bus(8, FunctionSPI, GroupSPI0, "CE0", "a0")
	bus(9, FunctionSPI, GroupSPI0, "MISO", "a0")
	bus(10, FunctionSPI, GroupSPI0, "MOSI", "a0")
	bus(11, FunctionSPI, GroupSPI0, "SCLK", "a0")

	bus(14, FunctionUART, GroupUART0, "TXD", "a0")
	bus(15, FunctionUART, GroupUART0, "RXD", "a0")

	pwm(12, 0, "a0")
	pwm(13, 1, "a0")
	pwm(18, 0, "a5")
	pwm(19, 1, "a5")

	groups := []Group{
		{ID: GroupI2C1, Function: FunctionI2C, Members: []int{2, 3}},
		{ID: GroupSPI0, Function: FunctionSPI, Members: []int{7, 8, 9, 10, 11}},
		{ID: GroupUART0, Function: FunctionUART, Members: []int{14, 15}},
	}

	t, err := New(model, specs, groups)
	if err != nil {
		panic("board: invalid Raspberry Pi description: " + err.Error())
	}
	return t
}

// DetectModel reads the board model string from the device tree.
// Returns an empty string on non device-tree systems.
func DetectModel() string {
	data, err := os.ReadFile(deviceTreeModel)
	if err != nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(string(data)), "\x00")
}

// IsRaspberryPi reports whether model names a Raspberry Pi.
func IsRaspberryPi(model string) bool {
	return strings.Contains(model, "Raspberry Pi")
}
