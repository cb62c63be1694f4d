package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/smazurov/gpionode/internal/api/models"
	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/gpio"
	"github.com/smazurov/gpionode/internal/hw"
	"github.com/smazurov/gpionode/internal/metrics"
	"github.com/smazurov/gpionode/internal/pins"
	"github.com/smazurov/gpionode/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type staticTelemetry telemetry.Snapshot

func (s staticTelemetry) Snapshot() telemetry.Snapshot { return telemetry.Snapshot(s) }

type testEnv struct {
	server *Server
	svc    *gpio.Service
	chip   *hw.SimChip
	api    humatest.TestAPI
}

func newTestEnv(t *testing.T, mutate func(*Options, *hw.Config)) *testEnv {
	t.Helper()
	chip := hw.NewSimChip()
	cfg := hw.DefaultConfig()
	cfg.RetryBackoff = time.Microsecond
	opts := &Options{PrometheusHandler: metrics.Handler()}
	if mutate != nil {
		mutate(opts, &cfg)
	}

	table := board.RaspberryPi("")
	backend := &hw.Backend{Name: hw.KindSim, Chip: chip, Mux: chip, Pads: chip, PWM: hw.NewSimPWM(2)}
	driver := hw.New(table, backend, cfg, testLogger())
	svc := gpio.New(table, driver, broadcast.NewHub(testLogger()), testLogger())
	if err := svc.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	opts.Service = svc

	server := NewServer(opts)
	t.Cleanup(func() {
		_ = server.Stop()
		_ = svc.Close()
	})
	return &testEnv{server: server, svc: svc, chip: chip, api: humatest.Wrap(t, server.GetAPI())}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", resp.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Status int `json:"status"`
	Errors []struct {
		Location string `json:"location"`
		Value    string `json:"value"`
	} `json:"errors"`
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[errorBody](t, resp)
	for _, e := range body.Errors {
		if e.Location == "code" {
			return e.Value
		}
	}
	t.Fatalf("no error code in %s", resp.Body.String())
	return ""
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.api.Get("/api/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decode[models.HealthData](t, resp)
	if body.Status != "ok" || body.Backend != hw.KindSim || len(body.Faulty) != 0 {
		t.Errorf("health = %+v", body)
	}
}

func TestListPins(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.api.Get("/api/pins")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	body := decode[models.PinsData](t, resp)

	if len(body.Pins) != 26 {
		t.Errorf("got %d pins, want 26", len(body.Pins))
	}
	p17, ok := body.Pins["17"]
	if !ok {
		t.Fatal("pin 17 missing")
	}
	if p17.Function != board.FunctionGPIO || p17.Mode != pins.ModeIn || p17.State == nil || *p17.State {
		t.Errorf("pin 17 = %+v, want GPIO IN low", p17)
	}

	defs := body.Definitions
	if defs.I2C["SDA"] != 2 || defs.I2C["SCL"] != 3 {
		t.Errorf("I2C = %v", defs.I2C)
	}
	if defs.SPI["SPI0"]["MOSI"] != 10 {
		t.Errorf("SPI = %v", defs.SPI)
	}
	if defs.UART["TXD"] != 14 || defs.UART["RXD"] != 15 {
		t.Errorf("UART = %v", defs.UART)
	}
	if got := defs.Channels["0"]; len(got) != 2 || got[0] != 12 || got[1] != 18 {
		t.Errorf("channel 0 = %v, want [12 18]", got)
	}
	if len(defs.PWM) != 4 {
		t.Errorf("PWM = %v", defs.PWM)
	}
}

func TestDriveOutput(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.api.Post("/api/pins/17/mode", map[string]any{"mode": "out"})
	if resp.Code != http.StatusOK {
		t.Fatalf("mode: status = %d: %s", resp.Code, resp.Body.String())
	}
	if got := decode[pins.View](t, resp); got.Mode != pins.ModeOut {
		t.Errorf("mode = %q", got.Mode)
	}

	resp = env.api.Post("/api/pins/17", map[string]any{"action": "HIGH"})
	if resp.Code != http.StatusOK {
		t.Fatalf("action: status = %d: %s", resp.Code, resp.Body.String())
	}
	if got := decode[pins.View](t, resp); got.State == nil || !*got.State {
		t.Errorf("state = %v, want high", got.State)
	}
	if !env.chip.Line(17).Level {
		t.Error("line 17 not driven high")
	}

	resp = env.api.Get("/api/pins/17")
	if got := decode[pins.View](t, resp); got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
}

func TestPWMAndLabel(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.api.Post("/api/pins/18/function", map[string]any{"function": "PWM"})
	if resp.Code != http.StatusOK {
		t.Fatalf("function: status = %d: %s", resp.Code, resp.Body.String())
	}
	got := decode[pins.View](t, resp)
	if got.PWMBackend != pins.PWMBackendHardware || got.PWMChannel == nil || *got.PWMChannel != 0 {
		t.Errorf("pin 18 = %+v, want hardware channel 0", got)
	}
	if got.Mode != "" || got.State != nil {
		t.Errorf("GPIO fields shown on PWM pin: %+v", got)
	}

	resp = env.api.Post("/api/pins/18/pwm", map[string]any{"duty_cycle": 25})
	if resp.Code != http.StatusOK {
		t.Fatalf("pwm: status = %d: %s", resp.Code, resp.Body.String())
	}
	got = decode[pins.View](t, resp)
	if *got.PWMDutyCycle != 25 || *got.PWMFrequency != pins.DefaultPWMFrequency {
		t.Errorf("pwm = %d Hz %d%%", *got.PWMFrequency, *got.PWMDutyCycle)
	}

	resp = env.api.Post("/api/pins/18/config", map[string]any{"name": "Fan", "description": "Case fan"})
	if resp.Code != http.StatusOK {
		t.Fatalf("config: status = %d: %s", resp.Code, resp.Body.String())
	}
	got = decode[pins.View](t, resp)
	if got.Name != "Fan" || got.Description != "Case fan" || got.Function != board.FunctionPWM {
		t.Errorf("label = %+v", got)
	}

	resp = env.api.Post("/api/pins/18/advanced", map[string]any{"drive_strength": "16mA", "slew_rate": "slow"})
	if resp.Code != http.StatusOK {
		t.Fatalf("advanced: status = %d: %s", resp.Code, resp.Body.String())
	}
	got = decode[pins.View](t, resp)
	if got.DriveStrength != "16mA" || got.SlewRate != pins.SlewSlow {
		t.Errorf("advanced = %+v", got)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, func(_ *Options, cfg *hw.Config) {
		cfg.SoftwareFallback = false
		cfg.BreakerThreshold = 100
	})
	if resp := env.api.Post("/api/pins/13/function", map[string]any{"function": "PWM"}); resp.Code != http.StatusOK {
		t.Fatalf("setup: status = %d: %s", resp.Code, resp.Body.String())
	}

	tests := []struct {
		name   string
		path   string
		body   map[string]any
		setup  func()
		status int
		code   pins.Code
	}{
		{"unknown pin", "/api/pins/40/mode", map[string]any{"mode": "OUT"}, nil, http.StatusNotFound, pins.CodeUnknownPin},
		{"unknown function", "/api/pins/17/function", map[string]any{"function": "CAN"}, nil, http.StatusBadRequest, pins.CodeInvalidFunction},
		{"ineligible function", "/api/pins/17/function", map[string]any{"function": "PWM"}, nil, http.StatusBadRequest, pins.CodeInvalidFunction},
		{"pwm on gpio", "/api/pins/17/pwm", map[string]any{"frequency": 100}, nil, http.StatusBadRequest, pins.CodeIllegalForFunction},
		{"bad action", "/api/pins/17", map[string]any{"action": "TOGGLE"}, nil, http.StatusBadRequest, pins.CodeOutOfRange},
		{"duty out of range", "/api/pins/13/pwm", map[string]any{"duty_cycle": 101}, nil, http.StatusBadRequest, pins.CodeOutOfRange},
		{"drive input", "/api/pins/17", map[string]any{"action": "HIGH"}, nil, http.StatusConflict, pins.CodeModeConflict},
		{"shared channel", "/api/pins/19/function", map[string]any{"function": "PWM"}, nil, http.StatusConflict, pins.CodeNoHardwareChannelAvailable},
		{"hardware fault", "/api/pins/22/mode", map[string]any{"mode": "OUT"}, func() { env.chip.FailNext(22, 100) }, http.StatusServiceUnavailable, pins.CodeHardwareFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			resp := env.api.Post(tt.path, tt.body)
			if resp.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.Code, tt.status, resp.Body.String())
			}
			if got := errorCode(t, resp); got != string(tt.code) {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestReadLevel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.chip.Inject(23, true)

	resp := env.api.Get("/api/pins/23/level")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	if got := decode[pins.View](t, resp); got.State == nil || !*got.State {
		t.Errorf("state = %v, want high", got.State)
	}

	env.api.Post("/api/pins/18/function", map[string]any{"function": "PWM"})
	resp = env.api.Get("/api/pins/18/level")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("level of PWM pin: status = %d", resp.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(opts *Options, _ *hw.Config) {
		opts.RateLimit = 0.001
		opts.RateBurst = 2
	})

	for i := range 2 {
		if resp := env.api.Post("/api/pins/17/mode", map[string]any{"mode": "OUT"}); resp.Code != http.StatusOK {
			t.Fatalf("command %d: status = %d", i, resp.Code)
		}
	}
	if resp := env.api.Post("/api/pins/17/mode", map[string]any{"mode": "IN"}); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("third command: status = %d, want 429", resp.Code)
	}
	if resp := env.api.Get("/api/pins/17"); resp.Code != http.StatusOK {
		t.Errorf("reads must not be limited, status = %d", resp.Code)
	}
	st, _ := env.svc.Snapshot(17)
	if st.Mode != pins.ModeOut {
		t.Errorf("limited command was applied: mode = %s", st.Mode)
	}
}

func TestSystemRoutes(t *testing.T) {
	refreshed := time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)
	snap := telemetry.Snapshot{
		Info: telemetry.Info{Temperature: 48.3, Voltage: 0.86, IsPi: true},
		Power: telemetry.Power{
			Voltages:   map[string]float64{"core": 0.86},
			Throttling: telemetry.DecodeThrottled("0x50005", 0x50005),
		},
		Config:      telemetry.BootConfig{ActiveOverlays: []string{"pwm-2chan"}, CPUGovernor: "ondemand"},
		RefreshedAt: refreshed,
	}
	env := newTestEnv(t, func(opts *Options, _ *hw.Config) {
		opts.Telemetry = staticTelemetry(snap)
	})

	info := decode[models.SystemInfoData](t, env.api.Get("/api/system/info"))
	if info.Temperature != 48.3 || !info.IsPi || info.Stale || info.RefreshedAt == nil || !info.RefreshedAt.Equal(refreshed) {
		t.Errorf("info = %+v", info)
	}

	power := decode[models.SystemPowerData](t, env.api.Get("/api/system/power"))
	if !power.Throttling.UnderVoltage || !power.Throttling.Throttled || power.Voltages["core"] != 0.86 {
		t.Errorf("power = %+v", power)
	}

	cfg := decode[models.SystemConfigData](t, env.api.Get("/api/system/config"))
	if cfg.CPUGovernor != "ondemand" || len(cfg.ActiveOverlays) != 1 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestSystemInfoWithoutTelemetry(t *testing.T) {
	env := newTestEnv(t, nil)

	info := decode[models.SystemInfoData](t, env.api.Get("/api/system/info"))
	if !info.Stale || info.RefreshedAt != nil {
		t.Errorf("info = %+v, want stale and never refreshed", info)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.Post("/api/pins/17/mode", map[string]any{"mode": "OUT"})

	ts := httptest.NewServer(env.server.GetMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `gpionode_pins_commands_total{change="mode",result="ok"}`) {
		t.Error("command counter missing from /metrics")
	}
}

func TestDashboardMount(t *testing.T) {
	dashboard := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "dashboard")
	})
	env := newTestEnv(t, func(o *Options, _ *hw.Config) { o.UIHandler = dashboard })

	for _, path := range []string{"/", "/pins/17"} {
		rec := httptest.NewRecorder()
		env.server.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Body.String() != "dashboard" {
			t.Errorf("GET %s = %q, want dashboard", path, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	env.server.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() == "dashboard" {
		t.Errorf("/api/health shadowed by dashboard: %d %q", rec.Code, rec.Body.String())
	}
}
