package hw

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/pins"
	"github.com/sony/gobreaker/v2"
)

// Config tunes the driver.
type Config struct {
	// SoftwareFallback allows emulated PWM when no hardware channel is free.
	SoftwareFallback bool
	SoftwareMaxHz    int
	Retries          int
	RetryBackoff     time.Duration
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultConfig returns the production driver settings.
func DefaultConfig() Config {
	return Config{
		SoftwareFallback: true,
		SoftwareMaxHz:    10_000,
		Retries:          3,
		RetryBackoff:     2 * time.Millisecond,
		BreakerThreshold: 3,
		BreakerTimeout:   30 * time.Second,
	}
}

// Driver turns accepted pin records into hardware state.
type Driver struct {
	table   *board.Table
	backend *Backend
	cfg     Config
	clock   Clock
	logger  *slog.Logger

	mu       sync.Mutex
	owners   map[int]int // hardware channel -> pin
	soft     map[int]*softPWM
	hardware map[int]PWMChannel
	breakers map[int]*gobreaker.CircuitBreaker[struct{}]
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the software PWM clock.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// New creates a driver over backend.
func New(table *board.Table, backend *Backend, cfg Config, logger *slog.Logger, opts ...Option) *Driver {
	d := &Driver{
		table:    table,
		backend:  backend,
		cfg:      cfg,
		clock:    realClock{},
		logger:   logger,
		owners:   make(map[int]int),
		soft:     make(map[int]*softPWM),
		hardware: make(map[int]PWMChannel),
		breakers: make(map[int]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Backend returns the name of the hardware backend.
func (d *Driver) Backend() string {
	return d.backend.Name
}

// Init pushes the startup record of every pin to hardware.
func (d *Driver) Init(ctx context.Context, states []pins.State) error {
	var errs []error
	for _, st := range states {
		if err := d.retry(ctx, st.Pin, "set pad", func() error {
			return d.backend.Pads.SetPad(st.Pin, padOf(st))
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.retry(ctx, st.Pin, "configure input", func() error {
			return d.backend.Chip.Input(st.Pin, st.Pull)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply actuates the transition from prev to next and returns next with
// the PWM generator fields filled in. On failure the driver makes a best
// effort to restore prev and the caller must not commit next.
func (d *Driver) Apply(ctx context.Context, prev, next pins.State) (pins.State, error) {
	var out pins.State
	err := d.guard(next.Pin, func() error {
		var err error
		out, err = d.apply(ctx, prev, next)
		if err != nil && prev.Function != next.Function {
			d.restore(ctx, next, prev)
		}
		return err
	})
	return out, err
}

func (d *Driver) apply(ctx context.Context, prev, next pins.State) (pins.State, error) {
	pin := next.Pin

	if padOf(prev) != padOf(next) {
		if err := d.retry(ctx, pin, "set pad", func() error {
			return d.backend.Pads.SetPad(pin, padOf(next))
		}); err != nil {
			return next, err
		}
	}

	if prev.Function != next.Function {
		if err := d.teardown(ctx, prev); err != nil {
			return next, err
		}
		return d.setup(ctx, prev, next)
	}

	switch next.Function {
	case board.FunctionGPIO:
		return next, d.configureGPIO(ctx, prev, next)
	case board.FunctionPWM:
		if prev.SoftwarePWM != next.SoftwarePWM {
			if err := d.stopPWM(ctx, pin); err != nil {
				return next, err
			}
			return d.startPWM(ctx, next)
		}
		return d.updatePWM(ctx, prev, next)
	}
	return next, nil
}

func (d *Driver) setup(ctx context.Context, prev, next pins.State) (pins.State, error) {
	pin := next.Pin
	switch next.Function {
	case board.FunctionGPIO:
		forced := prev
		forced.Mode = ""
		return next, d.configureGPIO(ctx, forced, next)
	case board.FunctionPWM:
		return d.startPWM(ctx, next)
	default:
		alt, _ := d.table.Alt(pin, next.Function)
		if err := d.backend.Chip.Release(pin); err != nil {
			return next, pins.HardwareFault(pin, err, "release line")
		}
		return next, d.retry(ctx, pin, "mux "+string(next.Function), func() error {
			return d.backend.Mux.Mux(pin, alt)
		})
	}
}

// teardown stops whatever prev's function was generating. A software PWM
// generator has fully stopped when teardown returns.
func (d *Driver) teardown(ctx context.Context, prev pins.State) error {
	if prev.Function == board.FunctionPWM {
		return d.stopPWM(ctx, prev.Pin)
	}
	return nil
}

// restore reapplies prev after a failed function change.
func (d *Driver) restore(ctx context.Context, failed, prev pins.State) {
	_ = d.teardown(ctx, failed)
	if _, err := d.setup(ctx, failed, prev); err != nil {
		d.logger.Warn("Failed to restore pin after error", "pin", prev.Pin, "error", err)
	}
}

func (d *Driver) configureGPIO(ctx context.Context, prev, next pins.State) error {
	pin := next.Pin
	chip := d.backend.Chip

	switch next.Mode {
	case pins.ModeOut:
		if prev.Mode != pins.ModeOut {
			return d.retry(ctx, pin, "configure output", func() error {
				return chip.Output(pin, next.Level)
			})
		}
		if prev.Level != next.Level {
			return d.retry(ctx, pin, "set level", func() error {
				return chip.SetLevel(pin, next.Level)
			})
		}
	case pins.ModeIn:
		if prev.Mode != pins.ModeIn || prev.Pull != next.Pull {
			return d.retry(ctx, pin, "configure input", func() error {
				return chip.Input(pin, next.Pull)
			})
		}
	}
	return nil
}

// allocate claims the hardware channel wired to pin, if it is free.
func (d *Driver) allocate(pin int) (int, bool) {
	if d.backend.PWM == nil {
		return -1, false
	}
	ch, ok := d.table.PWMChannel(pin)
	if !ok || ch >= d.backend.PWM.Channels() {
		return -1, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, taken := d.owners[ch]; taken && owner != pin {
		return -1, false
	}
	d.owners[ch] = pin
	return ch, true
}

func (d *Driver) free(ch int) {
	d.mu.Lock()
	delete(d.owners, ch)
	d.mu.Unlock()
}

// ChannelOwner returns the pin holding hardware channel ch.
func (d *Driver) ChannelOwner(ch int) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pin, ok := d.owners[ch]
	return pin, ok
}

func period(freq int) time.Duration {
	return time.Second / time.Duration(freq)
}

func (d *Driver) startPWM(ctx context.Context, next pins.State) (pins.State, error) {
	pin := next.Pin

	if !next.SoftwarePWM {
		if ch, ok := d.allocate(pin); ok {
			out, err := d.startHardware(ctx, next, ch)
			if err != nil {
				d.free(ch)
			}
			return out, err
		}
		if !d.cfg.SoftwareFallback {
			return next, pins.Errorf(pins.CodeNoHardwareChannelAvailable, pin, "no free hardware PWM channel for pin %d", pin)
		}
		d.logger.Info("No hardware PWM channel free, using software PWM", "pin", pin)
	}

	if next.PWMFrequency > d.cfg.SoftwareMaxHz {
		return next, pins.Errorf(pins.CodeOutOfRange, pin, "software PWM is limited to %d Hz", d.cfg.SoftwareMaxHz)
	}
	if err := d.retry(ctx, pin, "configure output", func() error {
		return d.backend.Chip.Output(pin, false)
	}); err != nil {
		return next, err
	}

	g := startSoftPWM(pin, next.PWMFrequency, next.PWMDutyCycle, func(level bool) error {
		return d.backend.Chip.SetLevel(pin, level)
	}, d.clock, d.logger)
	d.mu.Lock()
	d.soft[pin] = g
	d.mu.Unlock()

	next.PWMBackend = pins.PWMBackendSoftware
	next.PWMChannel = -1
	return next, nil
}

func (d *Driver) startHardware(ctx context.Context, next pins.State, ch int) (pins.State, error) {
	pin := next.Pin
	channel, err := d.backend.PWM.Channel(ch)
	if err != nil {
		return next, pins.HardwareFault(pin, err, "open PWM channel %d", ch)
	}
	if err := d.backend.Chip.Release(pin); err != nil {
		return next, pins.HardwareFault(pin, err, "release line")
	}
	alt, _ := d.table.Alt(pin, board.FunctionPWM)
	if err := d.retry(ctx, pin, "mux PWM", func() error {
		return d.backend.Mux.Mux(pin, alt)
	}); err != nil {
		return next, err
	}
	p := period(next.PWMFrequency)
	if err := d.retry(ctx, pin, "configure PWM", func() error {
		return channel.Configure(p, p*time.Duration(next.PWMDutyCycle)/100)
	}); err != nil {
		return next, err
	}
	if err := d.retry(ctx, pin, "enable PWM", func() error {
		return channel.Enable(true)
	}); err != nil {
		return next, err
	}

	d.mu.Lock()
	d.hardware[pin] = channel
	d.mu.Unlock()

	next.PWMBackend = pins.PWMBackendHardware
	next.PWMChannel = ch
	return next, nil
}

func (d *Driver) updatePWM(ctx context.Context, prev, next pins.State) (pins.State, error) {
	pin := next.Pin
	next.PWMBackend = prev.PWMBackend
	next.PWMChannel = prev.PWMChannel
	if prev.PWMFrequency == next.PWMFrequency && prev.PWMDutyCycle == next.PWMDutyCycle {
		return next, nil
	}

	d.mu.Lock()
	g := d.soft[pin]
	channel := d.hardware[pin]
	d.mu.Unlock()

	switch {
	case g != nil:
		if next.PWMFrequency > d.cfg.SoftwareMaxHz {
			return prev, pins.Errorf(pins.CodeOutOfRange, pin, "software PWM is limited to %d Hz", d.cfg.SoftwareMaxHz)
		}
		g.Update(next.PWMFrequency, next.PWMDutyCycle)
	case channel != nil:
		p := period(next.PWMFrequency)
		if err := d.retry(ctx, pin, "configure PWM", func() error {
			return channel.Configure(p, p*time.Duration(next.PWMDutyCycle)/100)
		}); err != nil {
			return prev, err
		}
	default:
		return d.startPWM(ctx, next)
	}
	return next, nil
}

// stopPWM halts any generator on pin and frees its hardware channel.
func (d *Driver) stopPWM(ctx context.Context, pin int) error {
	d.mu.Lock()
	g := d.soft[pin]
	delete(d.soft, pin)
	channel := d.hardware[pin]
	delete(d.hardware, pin)
	d.mu.Unlock()

	if g != nil {
		g.Stop()
	}
	if channel != nil {
		if err := d.retry(ctx, pin, "disable PWM", func() error {
			return channel.Enable(false)
		}); err != nil {
			return err
		}
		if ch, ok := d.table.PWMChannel(pin); ok {
			d.free(ch)
		}
	}
	return nil
}

// ReadLevel samples the line.
func (d *Driver) ReadLevel(ctx context.Context, pin int) (bool, error) {
	var level bool
	err := d.guard(pin, func() error {
		return d.retry(ctx, pin, "read level", func() error {
			var err error
			level, err = d.backend.Chip.Level(pin)
			return err
		})
	})
	return level, err
}

// Watch requests both-edge events for an input pin.
func (d *Driver) Watch(pin int, pull pins.Pull, h EdgeHandler) error {
	return d.guard(pin, func() error {
		return d.retry(context.Background(), pin, "watch edges", func() error {
			return d.backend.Chip.Watch(pin, pull, h)
		})
	})
}

// Unwatch stops edge events for pin.
func (d *Driver) Unwatch(pin int) error {
	return d.backend.Chip.Unwatch(pin)
}

// Close stops all generators and releases the hardware.
func (d *Driver) Close() error {
	d.mu.Lock()
	active := make([]int, 0, len(d.soft)+len(d.hardware))
	for pin := range d.soft {
		active = append(active, pin)
	}
	for pin := range d.hardware {
		active = append(active, pin)
	}
	d.mu.Unlock()

	for _, pin := range active {
		_ = d.stopPWM(context.Background(), pin)
	}
	return d.backend.Chip.Close()
}

func (d *Driver) retry(ctx context.Context, pin int, what string, op func() error) error {
	return retry(ctx, pin, d.cfg.Retries, d.cfg.RetryBackoff, what, op)
}
