package pins

import (
	"time"

	"github.com/smazurov/gpionode/internal/board"
)

// View is the wire shape of a pin record. GPIO and PWM fields are omitted
// when they do not apply to the current function.
type View struct {
	Pin           int            `json:"pin" example:"18" doc:"BCM GPIO number"`
	Name          string         `json:"name" example:"fan" doc:"Descriptive name"`
	Description   string         `json:"description,omitempty" doc:"Free-form description"`
	Function      board.Function `json:"function" enum:"GPIO,PWM,I2C,SPI,UART" doc:"Current function"`
	Mode          Mode           `json:"mode,omitempty" enum:"IN,OUT" doc:"Direction, GPIO only"`
	State         *bool          `json:"state,omitempty" doc:"Driven or sampled level, GPIO only"`
	Pull          Pull           `json:"pull,omitempty" enum:"NONE,UP,DOWN" doc:"Input bias, GPIO only"`
	Edge          Edge           `json:"edge,omitempty" enum:"NONE,RISING,FALLING,BOTH" doc:"Edge detection, GPIO only"`
	LastTrigger   *float64       `json:"last_trigger,omitempty" doc:"Unix time of the last edge in seconds"`
	PWMFrequency  *int           `json:"pwm_frequency,omitempty" example:"1000" doc:"PWM frequency in Hz"`
	PWMDutyCycle  *int           `json:"pwm_duty_cycle,omitempty" example:"50" doc:"PWM duty cycle in percent"`
	PWMBackend    PWMBackend     `json:"pwm_backend,omitempty" enum:"hardware,software" doc:"How the PWM signal is generated"`
	PWMChannel    *int           `json:"pwm_channel,omitempty" doc:"Hardware PWM channel"`
	DriveStrength DriveStrength  `json:"drive_strength" example:"8mA" doc:"Pad drive strength"`
	SlewRate      SlewRate       `json:"slew_rate" enum:"FAST,SLOW" doc:"Pad slew rate"`
	Hysteresis    bool           `json:"hysteresis" doc:"Input hysteresis enabled"`
	SoftwarePWM   bool           `json:"software_pwm" doc:"Force software PWM generation"`
	Faulty        bool           `json:"faulty" doc:"Pin has a persistent hardware fault"`
	Fault         string         `json:"fault,omitempty" doc:"Last hardware fault"`
	Version       uint64         `json:"version" doc:"Record version, increases on every change"`
}

// UnixSeconds converts t to fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// View returns the wire shape of s.
func (s State) View() View {
	v := View{
		Pin:           s.Pin,
		Name:          s.Name,
		Description:   s.Description,
		Function:      s.Function,
		DriveStrength: s.DriveStrength,
		SlewRate:      s.SlewRate,
		Hysteresis:    s.Hysteresis,
		SoftwarePWM:   s.SoftwarePWM,
		Faulty:        s.Faulty,
		Fault:         s.Fault,
		Version:       s.Version,
	}
	switch s.Function {
	case board.FunctionGPIO:
		level := s.Level
		v.Mode = s.Mode
		v.State = &level
		v.Pull = s.Pull
		v.Edge = s.Edge
		if s.HasTrigger() {
			ts := UnixSeconds(s.LastTrigger)
			v.LastTrigger = &ts
		}
	case board.FunctionPWM:
		freq, duty := s.PWMFrequency, s.PWMDutyCycle
		v.PWMFrequency = &freq
		v.PWMDutyCycle = &duty
		v.PWMBackend = s.PWMBackend
		if s.PWMChannel >= 0 {
			ch := s.PWMChannel
			v.PWMChannel = &ch
		}
	}
	return v
}
