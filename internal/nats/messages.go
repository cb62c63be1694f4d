package nats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/pins"
	"github.com/smazurov/gpionode/internal/telemetry"
)

// Subject prefixes for NATS topics.
const (
	SubjectPinsPrefix   = "gpionode.pins"
	SubjectSystemPrefix = "gpionode.system"
)

// SubjectPinState returns the subject carrying pin's state changes.
func SubjectPinState(pin int) string {
	return fmt.Sprintf("%s.%d.state", SubjectPinsPrefix, pin)
}

// SubjectPinFault returns the subject carrying pin's hardware faults.
func SubjectPinFault(pin int) string {
	return fmt.Sprintf("%s.%d.fault", SubjectPinsPrefix, pin)
}

// SubjectPinCommand returns the subject on which pin accepts commands.
func SubjectPinCommand(pin int) string {
	return fmt.Sprintf("%s.%d.cmd", SubjectPinsPrefix, pin)
}

// SubjectTelemetry is the subject carrying telemetry refreshes.
const SubjectTelemetry = SubjectSystemPrefix + ".telemetry"

// subjectAllCommands matches the command subject of every pin.
const subjectAllCommands = SubjectPinsPrefix + ".*.cmd"

// pinFromSubject extracts the pin number from a gpionode.pins.<pin>.* subject.
func pinFromSubject(subject string) (int, error) {
	rest, ok := strings.CutPrefix(subject, SubjectPinsPrefix+".")
	if !ok {
		return 0, fmt.Errorf("subject %q is not a pin subject", subject)
	}
	token, _, _ := strings.Cut(rest, ".")
	pin, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("subject %q: bad pin %q", subject, token)
	}
	return pin, nil
}

// StateMessage is a pin_state_change mirrored to NATS.
type StateMessage struct {
	broadcast.Event
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// FaultMessage reports a pin degraded to faulty.
type FaultMessage struct {
	Pin       int    `json:"pin"`
	Fault     string `json:"fault"`
	Timestamp string `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m FaultMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// TelemetryMessage is one telemetry refresh.
type TelemetryMessage struct {
	telemetry.Snapshot
	Error string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m TelemetryMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// CommandMessage is a pin command received on gpionode.pins.<pin>.cmd.
// Kind selects the change; only the fields of that change are read.
type CommandMessage struct {
	Kind          string  `json:"kind"` // level, function, mode, pull, edge, pwm, label, advanced
	Level         *bool   `json:"level,omitempty"`
	Function      string  `json:"function,omitempty"`
	Mode          string  `json:"mode,omitempty"`
	Pull          string  `json:"pull,omitempty"`
	Edge          string  `json:"edge,omitempty"`
	Frequency     *int    `json:"frequency,omitempty"`
	DutyCycle     *int    `json:"duty_cycle,omitempty"`
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	DriveStrength *string `json:"drive_strength,omitempty"`
	SlewRate      *string `json:"slew_rate,omitempty"`
	Hysteresis    *bool   `json:"hysteresis,omitempty"`
	SoftwarePWM   *bool   `json:"software_pwm,omitempty"`
}

// Marshal serializes the message to JSON.
func (m CommandMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Change converts the command for pin into a pin change.
func (m CommandMessage) Change(pin int) (pins.Change, error) {
	switch strings.ToLower(m.Kind) {
	case "level":
		if m.Level == nil {
			return nil, pins.Errorf(pins.CodeOutOfRange, pin, "level command without level")
		}
		return pins.SetLevel{Level: *m.Level}, nil
	case "function":
		return pins.SetFunction{Function: board.Function(pins.Normalize(m.Function))}, nil
	case "mode":
		return pins.SetMode{Mode: pins.Mode(pins.Normalize(m.Mode))}, nil
	case "pull":
		return pins.SetPull{Pull: pins.Pull(pins.Normalize(m.Pull))}, nil
	case "edge":
		return pins.SetEdge{Edge: pins.Edge(pins.Normalize(m.Edge))}, nil
	case "pwm":
		return pins.SetPWM{Frequency: m.Frequency, DutyCycle: m.DutyCycle}, nil
	case "label":
		return pins.SetLabel{Name: m.Name, Description: m.Description}, nil
	case "advanced":
		c := pins.SetAdvanced{Hysteresis: m.Hysteresis, SoftwarePWM: m.SoftwarePWM}
		if m.DriveStrength != nil {
			d := pins.DriveStrength(*m.DriveStrength)
			c.DriveStrength = &d
		}
		if m.SlewRate != nil {
			r := pins.SlewRate(pins.Normalize(*m.SlewRate))
			c.SlewRate = &r
		}
		return c, nil
	}
	return nil, pins.Errorf(pins.CodeOutOfRange, pin, "unknown command kind %q", m.Kind)
}

// ReplyMessage answers a command sent with a reply subject.
type ReplyMessage struct {
	OK     bool       `json:"ok"`
	Code   pins.Code  `json:"code,omitempty"`
	Error  string     `json:"error,omitempty"`
	Record *pins.View `json:"record,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ReplyMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalCommand deserializes a CommandMessage from JSON.
func UnmarshalCommand(data []byte) (CommandMessage, error) {
	var m CommandMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalReply deserializes a ReplyMessage from JSON.
func UnmarshalReply(data []byte) (ReplyMessage, error) {
	var m ReplyMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
