package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/gpionode/internal/api"
	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/config"
	"github.com/smazurov/gpionode/internal/discovery"
	"github.com/smazurov/gpionode/internal/events"
	"github.com/smazurov/gpionode/internal/gpio"
	"github.com/smazurov/gpionode/internal/hw"
	"github.com/smazurov/gpionode/internal/led"
	"github.com/smazurov/gpionode/internal/logging"
	"github.com/smazurov/gpionode/internal/metrics"
	"github.com/smazurov/gpionode/internal/nats"
	"github.com/smazurov/gpionode/internal/pins"
	"github.com/smazurov/gpionode/internal/systemd"
	"github.com/smazurov/gpionode/internal/telemetry"
	"github.com/smazurov/gpionode/internal/version"
	"github.com/smazurov/gpionode/ui"
)

// app owns every long-lived component. run builds and starts them; stop
// tears down whatever run got to, in reverse order.
type app struct {
	opts   *Options
	logger *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	cleanups []func()
	serving  atomic.Bool
	notifier *systemd.Notifier
}

func newApp(opts *Options, logger *slog.Logger) *app {
	ctx, cancel := context.WithCancel(context.Background())
	return &app{
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		notifier: systemd.NewNotifier(logging.GetLogger("systemd")),
	}
}

func (a *app) onStop(fn func()) {
	a.mu.Lock()
	a.cleanups = append(a.cleanups, fn)
	a.mu.Unlock()
}

func (a *app) run() error {
	opts := a.opts
	ctx := a.ctx

	hwCfg, err := driverConfig(opts)
	if err != nil {
		return err
	}
	debounce, err := parseDuration("edge.debounce", opts.EdgeDebounce)
	if err != nil {
		return err
	}
	telemetryTimeout, err := parseDuration("telemetry.timeout", opts.TelemetryTimeout)
	if err != nil {
		return err
	}

	model := opts.HardwareBoardModel
	if model == "" {
		model = board.DetectModel()
	}
	table := board.RaspberryPi(model)

	hwLogger := logging.GetLogger("hw")
	backend, err := hw.Open(hw.BackendConfig{
		Kind:     opts.HardwareBackend,
		GPIOChip: opts.HardwareGpiochip,
		PWMChip:  opts.HardwarePwmchip,
		Model:    model,
	}, hwLogger)
	if err != nil {
		return fmt.Errorf("open GPIO backend: %w", err)
	}

	bus := events.New()
	a.onStop(metrics.Subscribe(bus))

	hub := broadcast.NewHub(logging.GetLogger("broadcast"),
		broadcast.WithCapacity(opts.BroadcastBuffer),
		broadcast.WithMirror(bus.MirrorPin),
		broadcast.WithDropHook(func(observer string) {
			bus.Publish(events.ObserverDroppedEvent{Observer: observer})
		}),
	)

	driver := hw.New(table, backend, hwCfg, hwLogger)
	var svcOpts []gpio.Option
	if debounce > 0 {
		svcOpts = append(svcOpts, gpio.WithDebounce(debounce))
	}
	svc := gpio.New(table, driver, hub, logging.GetLogger("gpio"), svcOpts...)
	if err := svc.Init(ctx); err != nil {
		a.logger.Warn("Some pins failed to initialize", "error", err)
	}
	a.onStop(func() {
		if err := svc.Close(); err != nil {
			a.logger.Error("Error releasing GPIO", "error", err)
		}
	})
	a.logger.Info("Pin service ready", "board_model", table.Model(), "backend", svc.Backend(), "pins", len(table.Pins()))

	a.startLabels(svc, bus)
	a.startStatusLED(model, svc, bus)

	cache := telemetry.NewCache(
		telemetry.NewHost("/", telemetry.ExecRunner, model, board.IsRaspberryPi(model), logging.GetLogger("telemetry")),
		logging.GetLogger("telemetry"),
		telemetry.WithSchedule(opts.TelemetrySchedule),
		telemetry.WithTimeout(telemetryTimeout),
		telemetry.WithRefreshHook(func(snap telemetry.Snapshot, err error, took time.Duration) {
			ev := events.TelemetryRefreshedEvent{Snapshot: snap, Duration: took.Seconds()}
			if err != nil {
				ev.Error = err.Error()
			}
			bus.Publish(ev)
		}),
	)
	if err := cache.Start(ctx); err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	a.onStop(cache.Stop)

	if err := a.startNATS(svc, bus); err != nil {
		return err
	}

	var origins []string
	for _, o := range strings.Split(opts.ServerWsOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	uiHandler, err := a.uiHandler()
	if err != nil {
		a.logger.Warn("Dashboard disabled", "dir", opts.ServerUIDir, "error", err)
	}
	server := api.NewServer(&api.Options{
		Service:           svc,
		Telemetry:         cache,
		EventBus:          bus,
		RateLimit:         float64(opts.ServerRateLimit) / 60,
		RateBurst:         opts.ServerRateBurst,
		WSOriginPatterns:  origins,
		PrometheusHandler: metrics.Handler(),
		UIHandler:         uiHandler,
	})

	ln, err := net.Listen("tcp", opts.Port)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.Port, err)
	}
	a.onStop(func() {
		a.serving.Store(false)
		if err := server.Stop(); err != nil {
			a.logger.Error("Error stopping HTTP server", "error", err)
		}
	})

	a.startDiscovery(ln.Addr(), table.Model(), svc.Backend())

	a.serving.Store(true)
	a.notifier.Status("Serving %d pins on %s (%s)", len(table.Pins()), ln.Addr(), svc.Backend())
	a.notifier.Ready()
	go a.notifier.Watchdog(ctx, a.serving.Load)

	return server.Serve(ln)
}

func (a *app) uiHandler() (http.Handler, error) {
	if a.opts.ServerUIDir != "" {
		return ui.Dir(a.opts.ServerUIDir)
	}
	return ui.Handler()
}

// startLabels applies the labels file and keeps applying it on change.
func (a *app) startLabels(svc *gpio.Service, bus *events.Bus) {
	path := a.opts.LabelsFile
	if path == "" {
		return
	}

	apply := func(labels config.Labels) {
		changes, err := labels.Changes()
		if err != nil {
			a.logger.Warn("Invalid labels file", "path", path, "error", err)
			return
		}
		n, err := svc.ApplyLabels(a.ctx, changes)
		if err != nil {
			a.logger.Warn("Some pin labels were rejected", "path", path, "error", err)
		}
		bus.Publish(events.LabelsReloadedEvent{Labels: n, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	}

	labels, err := config.LoadLabels(path)
	if err != nil {
		a.logger.Warn("Failed to load pin labels", "path", path, "error", err)
	} else {
		apply(labels)
	}

	watcher := config.NewConfigWatcher(path, config.LoadLabels, logging.GetLogger("config"))
	watcher.OnReload(apply)
	if err := watcher.Start(); err != nil {
		a.logger.Warn("Pin labels will not be reloaded", "path", path, "error", err)
		return
	}
	a.onStop(func() { _ = watcher.Stop() })
}

// startStatusLED follows pin faults on the board activity LED.
func (a *app) startStatusLED(model string, svc *gpio.Service, bus *events.Bus) {
	if !a.opts.StatusLedEnabled {
		return
	}
	logger := logging.GetLogger("led")
	var faulty []int
	for _, st := range svc.SnapshotAll() {
		if st.Faulty {
			faulty = append(faulty, st.Pin)
		}
	}
	m := led.NewManager(led.New(model, a.opts.StatusLedRoot, logger), bus, faulty, logger)
	m.Start()
	a.onStop(m.Stop)
}

// startNATS runs the embedded server when asked and connects the event
// mirror and command bridge when a server URL is known.
func (a *app) startNATS(svc *gpio.Service, bus *events.Bus) error {
	logger := logging.GetLogger("nats")
	url := a.opts.NatsURL

	if a.opts.NatsEmbedded {
		srv := nats.NewServer(nats.ServerOptions{Port: a.opts.NatsEmbeddedPort, Logger: logger})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		a.onStop(srv.Stop)
		if url == "" {
			url = srv.ClientURL()
		}
	}
	if url == "" {
		return nil
	}

	pub := nats.NewPublisher(url, logger)
	if err := pub.Connect(); err != nil {
		logger.Warn("NATS unavailable, events will be mirrored once it connects", "url", url, "error", err)
	}
	pub.Attach(bus)
	a.onStop(pub.Close)

	bridge := nats.NewCommandBridge(url, svc, logger)
	bridge.OnResult(func(kind string, code pins.Code) {
		metrics.RecordCommand(kind, string(code))
	})
	if err := bridge.Start(); err != nil {
		logger.Warn("NATS commands disabled", "url", url, "error", err)
		return nil
	}
	a.onStop(bridge.Stop)
	return nil
}

func (a *app) startDiscovery(addr net.Addr, model, backend string) {
	if !a.opts.MdnsEnabled {
		return
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}
	instance := a.opts.MdnsInstance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	if instance == "" {
		instance = "gpionode"
	}

	meta := map[string]string{
		"version": version.Get().Version,
		"model":   model,
		"backend": backend,
		"api":     "/api",
	}
	advertiser := discovery.NewAdvertiser(logging.GetLogger("discovery"))
	go func() {
		if err := advertiser.Advertise(a.ctx, instance, tcp.Port, meta); err != nil {
			a.logger.Warn("mDNS advertisement failed", "error", err)
		}
	}()
}

// stop runs the registered cleanups newest first.
func (a *app) stop() {
	a.notifier.Stopping()
	a.cancel()

	a.mu.Lock()
	cleanups := a.cleanups
	a.cleanups = nil
	a.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func driverConfig(opts *Options) (hw.Config, error) {
	cfg := hw.DefaultConfig()
	cfg.SoftwareFallback = opts.PwmSoftwareFallback
	if opts.PwmSoftwareMaxHz > 0 {
		cfg.SoftwareMaxHz = opts.PwmSoftwareMaxHz
	}
	if opts.HardwareRetries > 0 {
		cfg.Retries = opts.HardwareRetries
	}
	if opts.HardwareBreakerThreshold > 0 {
		cfg.BreakerThreshold = uint32(opts.HardwareBreakerThreshold)
	}

	var errs []error
	if d, err := parseDuration("hardware.retry_backoff", opts.HardwareRetryBackoff); err != nil {
		errs = append(errs, err)
	} else if d > 0 {
		cfg.RetryBackoff = d
	}
	if d, err := parseDuration("hardware.breaker_timeout", opts.HardwareBreakerTimeout); err != nil {
		errs = append(errs, err)
	} else if d > 0 {
		cfg.BreakerTimeout = d
	}
	return cfg, errors.Join(errs...)
}

// parseDuration accepts Go durations and bare milliseconds. Empty is zero.
func parseDuration(key, s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
