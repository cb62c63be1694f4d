package models

import "github.com/smazurov/gpionode/internal/pins"

// PinPath identifies a pin in the URL.
type PinPath struct {
	Pin int `path:"pin" example:"18" doc:"BCM GPIO number"`
}

// PinResponse returns one pin record.
type PinResponse struct {
	Body pins.View
}

// BusDefinition maps bus roles to pins, e.g. {"SDA": 2, "SCL": 3}.
type BusDefinition map[string]int

// Definitions describes which pins can take which functions.
type Definitions struct {
	GPIO     []int                    `json:"GPIO" doc:"Pins usable as plain GPIO"`
	PWM      []int                    `json:"PWM" doc:"PWM-capable pins"`
	I2C      BusDefinition            `json:"I2C" doc:"I2C roles"`
	SPI      map[string]BusDefinition `json:"SPI" doc:"SPI buses and their roles"`
	UART     BusDefinition            `json:"UART" doc:"UART roles"`
	Eligible map[string][]string      `json:"eligible" doc:"Eligible functions per pin"`
	Groups   []GroupDefinition        `json:"groups" doc:"Bus groups whose members must share one function"`
	Channels map[string][]int         `json:"pwm_channels" doc:"Pins wired to each hardware PWM channel"`
}

// GroupDefinition is one bus group.
type GroupDefinition struct {
	ID       string `json:"id" example:"i2c1" doc:"Group identifier"`
	Function string `json:"function" example:"I2C" doc:"Bus function"`
	Members  []int  `json:"members" doc:"Member pins in lock order"`
}

// PinsData is the full pin listing.
type PinsData struct {
	Pins        map[string]pins.View `json:"pins" doc:"Pin records keyed by BCM number"`
	Definitions Definitions          `json:"definitions" doc:"Capability table"`
	Seq         uint64               `json:"seq" doc:"Broadcast sequence number at the time of the listing"`
}

// PinsResponse wraps PinsData.
type PinsResponse struct {
	Body PinsData
}

// ActionRequest drives an output pin.
type ActionRequest struct {
	PinPath
	Body struct {
		Action string `json:"action" example:"HIGH" doc:"HIGH or LOW"`
	}
}

// FunctionRequest changes a pin's function.
type FunctionRequest struct {
	PinPath
	Body struct {
		Function string `json:"function" example:"PWM" doc:"GPIO, PWM, I2C, SPI or UART"`
	}
}

// ModeRequest changes a GPIO pin's direction.
type ModeRequest struct {
	PinPath
	Body struct {
		Mode string `json:"mode" example:"OUT" doc:"IN or OUT"`
	}
}

// PullRequest changes a GPIO pin's bias.
type PullRequest struct {
	PinPath
	Body struct {
		Pull string `json:"pull" example:"UP" doc:"NONE, UP or DOWN"`
	}
}

// EdgeRequest changes a GPIO pin's edge detection.
type EdgeRequest struct {
	PinPath
	Body struct {
		Edge string `json:"edge" example:"BOTH" doc:"NONE, RISING, FALLING or BOTH"`
	}
}

// PWMRequest changes a PWM pin's frequency and duty cycle.
type PWMRequest struct {
	PinPath
	Body struct {
		Frequency *int `json:"frequency,omitempty" example:"1000" doc:"Frequency in Hz"`
		DutyCycle *int `json:"duty_cycle,omitempty" example:"50" doc:"Duty cycle percent"`
	}
}

// LabelRequest sets a pin's descriptive fields.
type LabelRequest struct {
	PinPath
	Body struct {
		Name        *string `json:"name,omitempty" example:"Fan relay" doc:"Short name"`
		Description *string `json:"description,omitempty" doc:"Free-form description"`
	}
}

// AdvancedRequest sets electrical pad options.
type AdvancedRequest struct {
	PinPath
	Body struct {
		DriveStrength *string `json:"drive_strength,omitempty" example:"8mA" doc:"2mA, 4mA, 8mA, 12mA or 16mA"`
		SlewRate      *string `json:"slew_rate,omitempty" example:"FAST" doc:"FAST or SLOW"`
		Hysteresis    *bool   `json:"hysteresis,omitempty" doc:"Input hysteresis"`
		SoftwarePWM   *bool   `json:"software_pwm,omitempty" doc:"Force software PWM generation"`
	}
}
