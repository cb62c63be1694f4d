package main

import (
	"log/slog"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/gpionode/cmd"
	"github.com/smazurov/gpionode/internal/config"
	"github.com/smazurov/gpionode/internal/logging"
	"github.com/smazurov/gpionode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port            string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	ServerRateLimit int    `help:"Pin commands per minute per client, 0 disables" default:"600" toml:"server.rate_limit" env:"SERVER_RATE_LIMIT"`
	ServerRateBurst int    `help:"Pin command burst per client" default:"20" toml:"server.rate_burst" env:"SERVER_RATE_BURST"`
	ServerWsOrigins string `help:"Extra WebSocket origin patterns, comma separated" default:"" toml:"server.ws_origins" env:"SERVER_WS_ORIGINS"`
	ServerUIDir     string `help:"Serve the dashboard from this directory instead of the built-in one" default:"" toml:"server.ui_dir" env:"SERVER_UI_DIR"`

	// Hardware settings
	HardwareBackend          string `help:"GPIO backend (auto, chardev, sim)" default:"auto" toml:"hardware.backend" env:"HARDWARE_BACKEND"`
	HardwareBoardModel       string `help:"Board model, detected from the device tree when empty" default:"" toml:"hardware.board_model" env:"HARDWARE_BOARD_MODEL"`
	HardwareGpiochip         string `help:"GPIO character device" default:"gpiochip0" toml:"hardware.gpiochip" env:"HARDWARE_GPIOCHIP"`
	HardwarePwmchip          string `help:"Hardware PWM sysfs directory" default:"/sys/class/pwm/pwmchip0" toml:"hardware.pwmchip" env:"HARDWARE_PWMCHIP"`
	HardwareRetries          int    `help:"Attempts per hardware operation" default:"3" toml:"hardware.retries" env:"HARDWARE_RETRIES"`
	HardwareRetryBackoff     string `help:"Delay between hardware attempts" default:"2ms" toml:"hardware.retry_backoff" env:"HARDWARE_RETRY_BACKOFF"`
	HardwareBreakerThreshold int    `help:"Consecutive failures before a pin is faulty" default:"3" toml:"hardware.breaker_threshold" env:"HARDWARE_BREAKER_THRESHOLD"`
	HardwareBreakerTimeout   string `help:"How long a faulty pin rejects hardware access" default:"30s" toml:"hardware.breaker_timeout" env:"HARDWARE_BREAKER_TIMEOUT"`

	// PWM settings
	PwmSoftwareFallback bool `help:"Emulate PWM in software when no hardware channel is free" default:"true" toml:"pwm.software_fallback" env:"PWM_SOFTWARE_FALLBACK"`
	PwmSoftwareMaxHz    int  `help:"Highest frequency generated in software" default:"10000" toml:"pwm.software_max_hz" env:"PWM_SOFTWARE_MAX_HZ"`

	// Edge and broadcast settings
	EdgeDebounce    string `help:"Edge coalescing window" default:"5ms" toml:"edge.debounce" env:"EDGE_DEBOUNCE"`
	BroadcastBuffer int    `help:"Queued events per observer before the oldest is dropped" default:"256" toml:"broadcast.buffer" env:"BROADCAST_BUFFER"`

	// Telemetry settings
	TelemetrySchedule string `help:"Telemetry refresh schedule (cron spec or @every)" default:"@every 5s" toml:"telemetry.schedule" env:"TELEMETRY_SCHEDULE"`
	TelemetryTimeout  string `help:"Telemetry collection timeout" default:"3s" toml:"telemetry.timeout" env:"TELEMETRY_TIMEOUT"`

	// Labels settings
	LabelsFile string `help:"Pin labels file, reloaded on change" default:"labels.toml" toml:"labels.file" env:"LABELS_FILE"`

	// NATS settings
	NatsURL          string `help:"NATS server to mirror events to and take commands from" default:"" toml:"nats.url" env:"NATS_URL"`
	NatsEmbedded     bool   `help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NatsEmbeddedPort int    `help:"Embedded NATS server port" default:"4222" toml:"nats.embedded_port" env:"NATS_EMBEDDED_PORT"`

	// Discovery settings
	MdnsEnabled  bool   `help:"Advertise the API over mDNS" default:"true" toml:"mdns.enabled" env:"MDNS_ENABLED"`
	MdnsInstance string `help:"mDNS instance name, hostname when empty" default:"" toml:"mdns.instance" env:"MDNS_INSTANCE"`

	// Status LED settings
	StatusLedEnabled bool   `help:"Blink the board activity LED while any pin is faulty" default:"false" toml:"status_led.enabled" env:"STATUS_LED_ENABLED"`
	StatusLedRoot    string `help:"Sysfs LED class directory" default:"/sys/class/leds" toml:"status_led.root" env:"STATUS_LED_ROOT"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingGpio      string `help:"Pin service logging level" default:"info" toml:"logging.gpio" env:"LOGGING_GPIO"`
	LoggingHw        string `help:"Hardware driver logging level" default:"info" toml:"logging.hw" env:"LOGGING_HW"`
	LoggingBroadcast string `help:"Broadcast bus logging level" default:"info" toml:"logging.broadcast" env:"LOGGING_BROADCAST"`
	LoggingTelemetry string `help:"Telemetry logging level" default:"info" toml:"logging.telemetry" env:"LOGGING_TELEMETRY"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingNats      string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
	LoggingDiscovery string `help:"mDNS logging level" default:"info" toml:"logging.discovery" env:"LOGGING_DISCOVERY"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"gpio":      opts.LoggingGpio,
				"hw":        opts.LoggingHw,
				"broadcast": opts.LoggingBroadcast,
				"telemetry": opts.LoggingTelemetry,
				"api":       opts.LoggingAPI,
				"http":      opts.LoggingAPI,
				"nats":      opts.LoggingNats,
				"discovery": opts.LoggingDiscovery,
			},
		})

		logger := logging.GetLogger("main")
		app := newApp(opts, logger)

		hooks.OnStart(func() {
			if err := app.run(); err != nil {
				logger.Error("GPIONode stopped", "error", err)
				app.stop()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			app.stop()
		})
	})

	cli.Root().Use = "gpionode"
	cli.Root().Short = "GPIO pin state and hardware coordination service"
	cli.Root().Version = version.Get().String()

	cli.Root().AddCommand(
		cmd.CreateCapabilitiesCmd(),
		cmd.CreateTelemetryCmd(),
		cmd.CreateDiscoverCmd(),
		cmd.CreateServiceCmd(),
		cmd.CreateUpdateCmd(),
	)

	cli.Run()
}
