package hw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/gpionode/internal/pins"
	"github.com/sony/gobreaker/v2"
)

// retry runs op up to attempts times, sleeping backoff between tries, and
// converts the final failure into a HardwareFault.
func retry(ctx context.Context, pin, attempts int, backoff time.Duration, what string, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := range attempts {
		if err = op(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return pins.HardwareFault(pin, ctx.Err(), "%s interrupted", what)
		case <-time.After(backoff):
		}
	}
	return pins.HardwareFault(pin, err, "%s failed after %d attempts", what, attempts)
}

func (d *Driver) breaker(pin int) *gobreaker.CircuitBreaker[struct{}] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[pin]; ok {
		return cb
	}
	threshold := d.cfg.BreakerThreshold
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        fmt.Sprintf("pin-%d", pin),
		MaxRequests: 1,
		Timeout:     d.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only hardware faults count against a pin; caller errors do not.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, pins.ErrHardwareFault)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				d.logger.Error("Pin marked faulty", "breaker", name, "from", from.String())
			} else {
				d.logger.Info("Pin breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	})
	d.breakers[pin] = cb
	return cb
}

// guard runs op through the pin's breaker.
func (d *Driver) guard(pin int, op func() error) error {
	_, err := d.breaker(pin).Execute(func() (struct{}, error) {
		return struct{}{}, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pins.HardwareFault(pin, err, "pin %d is faulty", pin)
	}
	return err
}

// Faulty reports whether the pin's breaker is open.
func (d *Driver) Faulty(pin int) bool {
	d.mu.Lock()
	cb, ok := d.breakers[pin]
	d.mu.Unlock()
	return ok && cb.State() == gobreaker.StateOpen
}
