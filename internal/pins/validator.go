package pins

import (
	"slices"
	"unicode/utf8"

	"github.com/smazurov/gpionode/internal/board"
)

// Validator checks a change against the capability table and the current
// records, and computes the resulting record. It never touches hardware.
type Validator struct {
	table *board.Table
}

// NewValidator creates a validator for table.
func NewValidator(table *board.Table) *Validator {
	return &Validator{table: table}
}

// LockSet returns the pins that must be held exclusively while change is
// applied to pin, in ascending order.
func (v *Validator) LockSet(pin int, change Change) []int {
	if _, ok := change.(SetFunction); ok {
		if group, inGroup := v.table.BusGroup(pin); inGroup {
			return v.table.GroupMembers(group)
		}
	}
	return []int{pin}
}

// Validate returns the record produced by applying change to cur. partners
// are the current records of the other members of cur's bus group; they are
// only consulted for function changes.
func (v *Validator) Validate(cur State, partners []State, change Change) (State, error) {
	pin := cur.Pin
	if !v.table.Has(pin) {
		return cur, Errorf(CodeUnknownPin, pin, "pin %d does not exist", pin)
	}

	next := cur
	switch c := change.(type) {
	case SetFunction:
		if err := v.checkFunction(cur, partners, c.Function); err != nil {
			return cur, err
		}
		if c.Function != cur.Function {
			if cur.Function == board.FunctionGPIO {
				next.resetGPIO()
			}
			if cur.Function == board.FunctionPWM {
				next.resetPWM()
			}
			next.Function = c.Function
		}

	case SetMode:
		if err := requireFunction(cur, board.FunctionGPIO, "mode"); err != nil {
			return cur, err
		}
		if !c.Mode.Valid() {
			return cur, Errorf(CodeOutOfRange, pin, "mode %q is not one of IN, OUT", c.Mode)
		}
		next.Mode = c.Mode

	case SetLevel:
		if err := requireFunction(cur, board.FunctionGPIO, "level"); err != nil {
			return cur, err
		}
		if cur.Mode != ModeOut {
			return cur, Errorf(CodeModeConflict, pin, "pin %d is an input", pin)
		}
		next.Level = c.Level

	case SetPull:
		if err := requireFunction(cur, board.FunctionGPIO, "pull"); err != nil {
			return cur, err
		}
		if !c.Pull.Valid() {
			return cur, Errorf(CodeOutOfRange, pin, "pull %q is not one of NONE, UP, DOWN", c.Pull)
		}
		next.Pull = c.Pull

	case SetEdge:
		if err := requireFunction(cur, board.FunctionGPIO, "edge"); err != nil {
			return cur, err
		}
		if !c.Edge.Valid() {
			return cur, Errorf(CodeOutOfRange, pin, "edge %q is not one of NONE, RISING, FALLING, BOTH", c.Edge)
		}
		next.Edge = c.Edge

	case SetPWM:
		if err := requireFunction(cur, board.FunctionPWM, "PWM parameters"); err != nil {
			return cur, err
		}
		if c.Frequency == nil && c.DutyCycle == nil {
			return cur, Errorf(CodeOutOfRange, pin, "no PWM parameter given")
		}
		if c.Frequency != nil {
			if *c.Frequency <= 0 || *c.Frequency > MaxPWMFrequency {
				return cur, Errorf(CodeOutOfRange, pin, "frequency %d Hz outside 1..%d", *c.Frequency, MaxPWMFrequency)
			}
			next.PWMFrequency = *c.Frequency
		}
		if c.DutyCycle != nil {
			if *c.DutyCycle < 0 || *c.DutyCycle > 100 {
				return cur, Errorf(CodeOutOfRange, pin, "duty cycle %d outside 0..100", *c.DutyCycle)
			}
			next.PWMDutyCycle = *c.DutyCycle
		}

	case SetAdvanced:
		if c.DriveStrength == nil && c.SlewRate == nil && c.Hysteresis == nil && c.SoftwarePWM == nil {
			return cur, Errorf(CodeOutOfRange, pin, "no advanced setting given")
		}
		if c.DriveStrength != nil {
			if !c.DriveStrength.Valid() {
				return cur, Errorf(CodeOutOfRange, pin, "drive strength %q is not one of %v", *c.DriveStrength, DriveStrengths)
			}
			next.DriveStrength = *c.DriveStrength
		}
		if c.SlewRate != nil {
			if !c.SlewRate.Valid() {
				return cur, Errorf(CodeOutOfRange, pin, "slew rate %q is not one of FAST, SLOW", *c.SlewRate)
			}
			next.SlewRate = *c.SlewRate
		}
		if c.Hysteresis != nil {
			next.Hysteresis = *c.Hysteresis
		}
		if c.SoftwarePWM != nil {
			next.SoftwarePWM = *c.SoftwarePWM
		}

	case SetLabel:
		if c.Name == nil && c.Description == nil {
			return cur, Errorf(CodeOutOfRange, pin, "no label field given")
		}
		if c.Name != nil {
			if utf8.RuneCountInString(*c.Name) > MaxNameLength {
				return cur, Errorf(CodeOutOfRange, pin, "name longer than %d characters", MaxNameLength)
			}
			next.Name = *c.Name
		}
		if c.Description != nil {
			if utf8.RuneCountInString(*c.Description) > MaxDescriptionLength {
				return cur, Errorf(CodeOutOfRange, pin, "description longer than %d characters", MaxDescriptionLength)
			}
			next.Description = *c.Description
		}

	default:
		return cur, Errorf(CodeInternal, pin, "unsupported change %T", change)
	}

	return next, nil
}

// checkFunction enforces bus consistency before eligibility, so a request
// that would break an active bus reports the conflict.
func (v *Validator) checkFunction(cur State, partners []State, f board.Function) error {
	pin := cur.Pin
	if !slices.Contains(board.AllFunctions, f) {
		return Errorf(CodeInvalidFunction, pin, "unknown function %q", f)
	}

	if f != board.FunctionGPIO {
		if group, ok := v.table.BusGroup(pin); ok {
			for _, p := range partners {
				if p.Pin == pin || p.Function == board.FunctionGPIO || p.Function == f {
					continue
				}
				return Errorf(CodeConflictingBusAssignment, pin,
					"pin %d in group %s holds %s", p.Pin, group, p.Function)
			}
		}
	}

	if !v.table.Eligible(pin, f) {
		return Errorf(CodeInvalidFunction, pin, "pin %d cannot be %s", pin, f)
	}
	return nil
}

func requireFunction(cur State, f board.Function, field string) error {
	if cur.Function != f {
		return Errorf(CodeIllegalForFunction, cur.Pin, "%s requires function %s, pin %d is %s", field, f, cur.Pin, cur.Function)
	}
	return nil
}
