//go:build linux

package hw

import (
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/gpionode/internal/pins"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "gpionode"

// chardev drives lines through the Linux GPIO character device.
type chardev struct {
	chip  *gpiocdev.Chip
	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
	pulls map[int]pins.Pull
}

// OpenChardev opens a GPIO chip such as "gpiochip0".
func OpenChardev(name string) (Chip, error) {
	c, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &chardev{chip: c, lines: make(map[int]*gpiocdev.Line), pulls: make(map[int]pins.Pull)}, nil
}

func (c *chardev) Name() string { return c.chip.Name }

func bias(p pins.Pull) gpiocdev.LineBias {
	switch p {
	case pins.PullUp:
		return gpiocdev.WithPullUp
	case pins.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func value(level bool) int {
	if level {
		return 1
	}
	return 0
}

// closeLocked drops an existing request for pin. Callers hold mu.
func (c *chardev) closeLocked(pin int) error {
	l, ok := c.lines[pin]
	if !ok {
		return nil
	}
	delete(c.lines, pin)
	delete(c.pulls, pin)
	return l.Close()
}

func (c *chardev) Input(pin int, pull pins.Pull) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lines[pin]; ok {
		if err := l.Reconfigure(gpiocdev.AsInput, bias(pull)); err != nil {
			return err
		}
		c.pulls[pin] = pull
		return nil
	}
	return c.requestInputLocked(pin, pull)
}

// requestInputLocked requests pin as a plain input. Callers hold mu.
func (c *chardev) requestInputLocked(pin int, pull pins.Pull) error {
	l, err := c.chip.RequestLine(pin, gpiocdev.AsInput, bias(pull))
	if err != nil {
		return err
	}
	c.lines[pin] = l
	c.pulls[pin] = pull
	return nil
}

func (c *chardev) Output(pin int, level bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lines[pin]; ok {
		return l.Reconfigure(gpiocdev.AsOutput(value(level)))
	}
	l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(value(level)))
	if err != nil {
		return err
	}
	c.lines[pin] = l
	return nil
}

func (c *chardev) SetLevel(pin int, level bool) error {
	c.mu.Lock()
	l, ok := c.lines[pin]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("line %d not requested", pin)
	}
	return l.SetValue(value(level))
}

func (c *chardev) Level(pin int) (bool, error) {
	c.mu.Lock()
	l, ok := c.lines[pin]
	c.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("line %d not requested", pin)
	}
	v, err := l.Value()
	return v == 1, err
}

// Watch re-requests the line because the event handler can only be set on
// a new request.
func (c *chardev) Watch(pin int, pull pins.Pull, h EdgeHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.closeLocked(pin); err != nil {
		return err
	}
	l, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		bias(pull),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			h(evt.Offset, evt.Type == gpiocdev.LineEventRisingEdge, time.Now())
		}),
	)
	if err != nil {
		return err
	}
	c.lines[pin] = l
	c.pulls[pin] = pull
	return nil
}

// Unwatch drops the event handler by re-requesting the line as a plain
// input with the bias it was watched with.
func (c *chardev) Unwatch(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[pin]; !ok {
		return nil
	}
	pull := c.pulls[pin]
	if err := c.closeLocked(pin); err != nil {
		return err
	}
	return c.requestInputLocked(pin, pull)
}

func (c *chardev) Release(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked(pin)
}

func (c *chardev) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pin := range c.lines {
		_ = c.closeLocked(pin)
	}
	return c.chip.Close()
}
