package pins

import (
	"errors"
	"testing"

	"github.com/smazurov/gpionode/internal/board"
)

func intPtr(v int) *int { return &v }

func newTestValidator() (*Validator, *board.Table) {
	tbl := board.RaspberryPi("")
	return NewValidator(tbl), tbl
}

func TestValidateIneligibleFunctions(t *testing.T) {
	v, tbl := newTestValidator()

	for _, pin := range tbl.Pins() {
		for _, f := range board.AllFunctions {
			if tbl.Eligible(pin, f) {
				continue
			}
			cur := Default(pin)
			next, err := v.Validate(cur, nil, SetFunction{Function: f})
			if !errors.Is(err, ErrInvalidFunction) {
				t.Errorf("pin %d %s: expected InvalidFunction, got %v", pin, f, err)
			}
			if next != cur {
				t.Errorf("pin %d %s: state changed on rejection", pin, f)
			}
		}
	}
}

func TestValidateBusConflicts(t *testing.T) {
	v, tbl := newTestValidator()

	for _, g := range tbl.Groups() {
		holder := Default(g.Members[0])
		holder.Function = g.Function

		for _, other := range board.AllFunctions {
			if other == board.FunctionGPIO || other == g.Function {
				continue
			}
			cur := Default(g.Members[1])
			_, err := v.Validate(cur, []State{holder}, SetFunction{Function: other})
			if !errors.Is(err, ErrConflictingBusAssignment) {
				t.Errorf("group %s assigning %s: expected ConflictingBusAssignment, got %v", g.ID, other, err)
			}
		}

		cur := Default(g.Members[1])
		if _, err := v.Validate(cur, []State{holder}, SetFunction{Function: g.Function}); err != nil {
			t.Errorf("group %s: matching function rejected: %v", g.ID, err)
		}
		if _, err := v.Validate(cur, []State{holder}, SetFunction{Function: board.FunctionGPIO}); err != nil {
			t.Errorf("group %s: GPIO rejected: %v", g.ID, err)
		}
	}
}

func TestValidateI2CScenario(t *testing.T) {
	v, _ := newTestValidator()

	pin2, pin3 := Default(2), Default(3)
	next2, err := v.Validate(pin2, []State{pin3}, SetFunction{Function: board.FunctionI2C})
	if err != nil {
		t.Fatalf("setFunction(2, I2C) failed: %v", err)
	}

	if _, err := v.Validate(pin3, []State{next2}, SetFunction{Function: board.FunctionSPI}); !errors.Is(err, ErrConflictingBusAssignment) {
		t.Errorf("setFunction(3, SPI): expected ConflictingBusAssignment, got %v", err)
	}

	next3, err := v.Validate(pin3, []State{next2}, SetFunction{Function: board.FunctionI2C})
	if err != nil {
		t.Fatalf("setFunction(3, I2C) failed: %v", err)
	}
	if next3.Function != board.FunctionI2C {
		t.Errorf("expected I2C, got %s", next3.Function)
	}
}

func TestValidatePWMScenario(t *testing.T) {
	v, _ := newTestValidator()

	pin18, err := v.Validate(Default(18), nil, SetFunction{Function: board.FunctionPWM})
	if err != nil {
		t.Fatalf("setFunction(18, PWM) failed: %v", err)
	}

	if _, err := v.Validate(pin18, nil, SetMode{Mode: ModeIn}); !errors.Is(err, ErrIllegalForFunction) {
		t.Errorf("setMode on PWM pin: expected IllegalForFunction, got %v", err)
	}

	if _, err := v.Validate(pin18, nil, SetPWM{Frequency: intPtr(0), DutyCycle: intPtr(50)}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("setPWM(freq=0): expected OutOfRange, got %v", err)
	}

	next, err := v.Validate(pin18, nil, SetPWM{Frequency: intPtr(1000), DutyCycle: intPtr(50)})
	if err != nil {
		t.Fatalf("setPWM(1000, 50) failed: %v", err)
	}
	if next.PWMFrequency != 1000 || next.PWMDutyCycle != 50 {
		t.Errorf("expected 1000 Hz / 50%%, got %d Hz / %d%%", next.PWMFrequency, next.PWMDutyCycle)
	}
}

func TestValidateFieldRules(t *testing.T) {
	v, _ := newTestValidator()

	input := Default(4)
	output := Default(4)
	output.Mode = ModeOut
	pwm := Default(12)
	pwm.Function = board.FunctionPWM
	badDrive := DriveStrength("3mA")
	badSlew := SlewRate("MEDIUM")
	longName := string(make([]rune, MaxNameLength+1))

	tests := []struct {
		name   string
		cur    State
		change Change
		want   error
	}{
		{"level on input", input, SetLevel{Level: true}, ErrModeConflict},
		{"level on output", output, SetLevel{Level: true}, nil},
		{"level on pwm", pwm, SetLevel{Level: true}, ErrIllegalForFunction},
		{"pull on pwm", pwm, SetPull{Pull: PullUp}, ErrIllegalForFunction},
		{"edge on pwm", pwm, SetEdge{Edge: EdgeBoth}, ErrIllegalForFunction},
		{"pwm on gpio", input, SetPWM{DutyCycle: intPtr(10)}, ErrIllegalForFunction},
		{"unknown mode", input, SetMode{Mode: "SIDEWAYS"}, ErrOutOfRange},
		{"unknown pull", input, SetPull{Pull: "STRONG"}, ErrOutOfRange},
		{"unknown edge", input, SetEdge{Edge: "LEVEL"}, ErrOutOfRange},
		{"duty above range", pwm, SetPWM{DutyCycle: intPtr(101)}, ErrOutOfRange},
		{"negative duty", pwm, SetPWM{DutyCycle: intPtr(-1)}, ErrOutOfRange},
		{"frequency above range", pwm, SetPWM{Frequency: intPtr(MaxPWMFrequency + 1)}, ErrOutOfRange},
		{"empty pwm", pwm, SetPWM{}, ErrOutOfRange},
		{"bad drive", input, SetAdvanced{DriveStrength: &badDrive}, ErrOutOfRange},
		{"bad slew", input, SetAdvanced{SlewRate: &badSlew}, ErrOutOfRange},
		{"long name", input, SetLabel{Name: &longName}, ErrOutOfRange},
		{"unknown function", input, SetFunction{Function: "CAN"}, ErrInvalidFunction},
		{"unknown pin", Default(99), SetMode{Mode: ModeOut}, ErrUnknownPin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := v.Validate(tt.cur, nil, tt.change)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if next != tt.cur {
				t.Error("state changed on rejection")
			}
		})
	}
}

func TestValidateFunctionChangeResetsFields(t *testing.T) {
	v, _ := newTestValidator()

	cur := Default(18)
	cur.Mode = ModeOut
	cur.Level = true
	cur.Edge = EdgeBoth
	cur.Pull = PullUp

	next, err := v.Validate(cur, nil, SetFunction{Function: board.FunctionPWM})
	if err != nil {
		t.Fatal(err)
	}
	if next.Mode != ModeIn || next.Level || next.Edge != EdgeNone || next.Pull != PullNone {
		t.Errorf("GPIO fields not reset: %+v", next)
	}

	next.PWMFrequency = 5000
	next.PWMDutyCycle = 75
	next.PWMBackend = PWMBackendHardware
	next.PWMChannel = 0

	back, err := v.Validate(next, nil, SetFunction{Function: board.FunctionGPIO})
	if err != nil {
		t.Fatal(err)
	}
	if back.PWMFrequency != DefaultPWMFrequency || back.PWMDutyCycle != 0 || back.PWMBackend != PWMBackendNone || back.PWMChannel != -1 {
		t.Errorf("PWM fields not reset: %+v", back)
	}
}

func TestValidateDuplicateIsAccepted(t *testing.T) {
	v, _ := newTestValidator()

	cur := Default(4)
	cur.Mode = ModeOut
	first, err := v.Validate(cur, nil, SetLevel{Level: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.Validate(first, nil, SetLevel{Level: true})
	if err != nil {
		t.Fatalf("duplicate rejected: %v", err)
	}
	if first != second {
		t.Error("duplicate change produced a different record")
	}
}

func TestLockSet(t *testing.T) {
	v, _ := newTestValidator()

	if got := v.LockSet(9, SetFunction{Function: board.FunctionSPI}); len(got) != 5 || got[0] != 7 {
		t.Errorf("LockSet(9, function) = %v", got)
	}
	if got := v.LockSet(9, SetMode{Mode: ModeOut}); len(got) != 1 || got[0] != 9 {
		t.Errorf("LockSet(9, mode) = %v", got)
	}
	if got := v.LockSet(18, SetFunction{Function: board.FunctionPWM}); len(got) != 1 {
		t.Errorf("LockSet(18, function) = %v", got)
	}
}
