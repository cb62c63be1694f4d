package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/gpionode/internal/api/models"
	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/metrics"
	"github.com/smazurov/gpionode/internal/pins"
)

var mutationErrors = []int{400, 404, 409, 429, 503}

func (s *Server) registerPinRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-pins",
		Method:      http.MethodGet,
		Path:        "/api/pins",
		Summary:     "List pins",
		Description: "Get every pin record and the capability table",
		Tags:        []string{"pins"},
	}, func(_ context.Context, _ *struct{}) (*models.PinsResponse, error) {
		return &models.PinsResponse{Body: s.pinsData()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pin",
		Method:      http.MethodGet,
		Path:        "/api/pins/{pin}",
		Summary:     "Get pin",
		Description: "Get one pin record",
		Tags:        []string{"pins"},
		Errors:      []int{404},
	}, func(_ context.Context, input *models.PinPath) (*models.PinResponse, error) {
		st, err := s.service.Snapshot(input.Pin)
		if err != nil {
			return nil, mapPinError(err)
		}
		return &models.PinResponse{Body: st.View()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "read-pin-level",
		Method:      http.MethodGet,
		Path:        "/api/pins/{pin}/level",
		Summary:     "Sample pin level",
		Description: "Read the line level from hardware. A changed level is broadcast.",
		Tags:        []string{"pins"},
		Errors:      []int{400, 404, 503},
	}, func(ctx context.Context, input *models.PinPath) (*models.PinResponse, error) {
		st, err := s.service.ReadLevel(ctx, input.Pin)
		if err != nil {
			return nil, mapPinError(err)
		}
		return &models.PinResponse{Body: st.View()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-level",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}",
		Summary:     "Set pin level",
		Description: "Drive an output pin HIGH or LOW",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.ActionRequest) (*models.PinResponse, error) {
		switch pins.Normalize(input.Body.Action) {
		case "HIGH":
			return s.apply(ctx, input.Pin, pins.SetLevel{Level: true})
		case "LOW":
			return s.apply(ctx, input.Pin, pins.SetLevel{Level: false})
		}
		err := pins.Errorf(pins.CodeOutOfRange, input.Pin, "action %q is not one of HIGH, LOW", input.Body.Action)
		metrics.RecordCommand("level", string(err.Code))
		return nil, mapPinError(err)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-function",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/function",
		Summary:     "Set pin function",
		Description: "Switch a pin between GPIO, PWM and bus functions",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.FunctionRequest) (*models.PinResponse, error) {
		return s.apply(ctx, input.Pin, pins.SetFunction{Function: board.Function(pins.Normalize(input.Body.Function))})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-mode",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/mode",
		Summary:     "Set pin mode",
		Description: "Set a GPIO pin to input or output",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.ModeRequest) (*models.PinResponse, error) {
		return s.apply(ctx, input.Pin, pins.SetMode{Mode: pins.Mode(pins.Normalize(input.Body.Mode))})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-pull",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/pull",
		Summary:     "Set pin pull",
		Description: "Set a GPIO pin's pull-up or pull-down bias",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.PullRequest) (*models.PinResponse, error) {
		return s.apply(ctx, input.Pin, pins.SetPull{Pull: pins.Pull(pins.Normalize(input.Body.Pull))})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-edge",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/edge",
		Summary:     "Set edge detection",
		Description: "Watch a GPIO input for RISING, FALLING or BOTH edges",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.EdgeRequest) (*models.PinResponse, error) {
		return s.apply(ctx, input.Pin, pins.SetEdge{Edge: pins.Edge(pins.Normalize(input.Body.Edge))})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-pwm",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/pwm",
		Summary:     "Set PWM",
		Description: "Change a PWM pin's frequency and/or duty cycle. Changes take effect at the next cycle boundary.",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.PWMRequest) (*models.PinResponse, error) {
		return s.apply(ctx, input.Pin, pins.SetPWM{Frequency: input.Body.Frequency, DutyCycle: input.Body.DutyCycle})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-config",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/config",
		Summary:     "Set pin label",
		Description: "Set a pin's name and description",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.LabelRequest) (*models.PinResponse, error) {
		return s.apply(ctx, input.Pin, pins.SetLabel{Name: input.Body.Name, Description: input.Body.Description})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-pin-advanced",
		Method:      http.MethodPost,
		Path:        "/api/pins/{pin}/advanced",
		Summary:     "Set electrical options",
		Description: "Set drive strength, slew rate, hysteresis and software PWM",
		Tags:        []string{"pins"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *models.AdvancedRequest) (*models.PinResponse, error) {
		change := pins.SetAdvanced{
			Hysteresis:  input.Body.Hysteresis,
			SoftwarePWM: input.Body.SoftwarePWM,
		}
		if input.Body.DriveStrength != nil {
			d := pins.DriveStrength(*input.Body.DriveStrength)
			change.DriveStrength = &d
		}
		if input.Body.SlewRate != nil {
			r := pins.SlewRate(pins.Normalize(*input.Body.SlewRate))
			change.SlewRate = &r
		}
		return s.apply(ctx, input.Pin, change)
	})
}

// pinsData lists every record with the capability table.
func (s *Server) pinsData() models.PinsData {
	// Read seq first: a client replaying events after seq may see a change
	// the listing already holds, but never misses one.
	seq := s.service.Seq()
	states := s.service.SnapshotAll()
	views := make(map[string]pins.View, len(states))
	for _, st := range states {
		views[strconv.Itoa(st.Pin)] = st.View()
	}
	return models.PinsData{
		Pins:        views,
		Definitions: definitions(s.service.Table()),
		Seq:         seq,
	}
}

func (s *Server) apply(ctx context.Context, pin int, change pins.Change) (*models.PinResponse, error) {
	st, err := s.service.Apply(ctx, pin, change)
	metrics.RecordCommand(change.Kind(), string(pins.CodeOf(err)))
	if err != nil {
		return nil, mapPinError(err)
	}
	return &models.PinResponse{Body: st.View()}, nil
}

func definitions(table *board.Table) models.Definitions {
	defs := models.Definitions{
		GPIO:     []int{},
		PWM:      []int{},
		I2C:      models.BusDefinition{},
		SPI:      map[string]models.BusDefinition{},
		UART:     models.BusDefinition{},
		Eligible: map[string][]string{},
		Groups:   []models.GroupDefinition{},
		Channels: map[string][]int{},
	}

	for _, pin := range table.Pins() {
		var eligible []string
		for _, f := range table.EligibleFunctions(pin) {
			eligible = append(eligible, string(f))
		}
		defs.Eligible[strconv.Itoa(pin)] = eligible

		if table.Eligible(pin, board.FunctionGPIO) {
			defs.GPIO = append(defs.GPIO, pin)
		}
		if table.Eligible(pin, board.FunctionPWM) {
			defs.PWM = append(defs.PWM, pin)
			if ch, ok := table.PWMChannel(pin); ok {
				key := strconv.Itoa(ch)
				defs.Channels[key] = append(defs.Channels[key], pin)
			}
		}
	}

	for _, g := range table.Groups() {
		defs.Groups = append(defs.Groups, models.GroupDefinition{
			ID:       g.ID,
			Function: string(g.Function),
			Members:  g.Members,
		})

		roles := models.BusDefinition{}
		for _, pin := range g.Members {
			if role := table.Role(pin); role != "" {
				roles[role] = pin
			}
		}
		switch g.Function {
		case board.FunctionI2C:
			if len(defs.I2C) == 0 {
				defs.I2C = roles
			}
		case board.FunctionSPI:
			defs.SPI[strings.ToUpper(g.ID)] = roles
		case board.FunctionUART:
			if len(defs.UART) == 0 {
				defs.UART = roles
			}
		}
	}
	return defs
}
