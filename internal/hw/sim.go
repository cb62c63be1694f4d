package hw

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/gpionode/internal/pins"
)

// ErrInjected is returned by simulated operations that were told to fail.
var ErrInjected = errors.New("injected hardware failure")

type simLine struct {
	requested bool
	output    bool
	level     bool
	pull      pins.Pull
	handler   EdgeHandler
	writes    []bool
}

// SimChip is an in-memory Chip used in development mode and tests. It also
// implements Muxer and Pads.
type SimChip struct {
	mu       sync.Mutex
	lines    map[int]*simLine
	failures map[int]int
	muxed    map[int]string
	pads     map[int]Pad
}

// NewSimChip creates a simulator with every line released and low.
func NewSimChip() *SimChip {
	return &SimChip{
		lines:    make(map[int]*simLine),
		failures: make(map[int]int),
		muxed:    make(map[int]string),
		pads:     make(map[int]Pad),
	}
}

// Name implements Chip.
func (s *SimChip) Name() string { return "sim" }

func (s *SimChip) line(pin int) *simLine {
	l, ok := s.lines[pin]
	if !ok {
		l = &simLine{pull: pins.PullNone}
		s.lines[pin] = l
	}
	return l
}

// fail consumes one injected failure for pin. Callers hold mu.
func (s *SimChip) fail(pin int) error {
	if n := s.failures[pin]; n > 0 {
		s.failures[pin] = n - 1
		return fmt.Errorf("pin %d: %w", pin, ErrInjected)
	}
	return nil
}

// FailNext makes the next n operations on pin fail.
func (s *SimChip) FailNext(pin, n int) {
	s.mu.Lock()
	s.failures[pin] = n
	s.mu.Unlock()
}

// Input implements Chip.
func (s *SimChip) Input(pin int, pull pins.Pull) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return err
	}
	l := s.line(pin)
	l.requested = true
	l.output = false
	l.pull = pull
	delete(s.muxed, pin)
	switch pull {
	case pins.PullUp:
		l.level = true
	case pins.PullDown:
		l.level = false
	}
	return nil
}

// Output implements Chip.
func (s *SimChip) Output(pin int, level bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return err
	}
	l := s.line(pin)
	l.requested = true
	l.output = true
	l.handler = nil
	l.level = level
	l.writes = append(l.writes, level)
	delete(s.muxed, pin)
	return nil
}

// SetLevel implements Chip.
func (s *SimChip) SetLevel(pin int, level bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return err
	}
	l := s.line(pin)
	if !l.requested || !l.output {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	l.level = level
	l.writes = append(l.writes, level)
	return nil
}

// Level implements Chip.
func (s *SimChip) Level(pin int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return false, err
	}
	l := s.line(pin)
	if !l.requested {
		return false, fmt.Errorf("line %d not requested", pin)
	}
	return l.level, nil
}

// Watch implements Chip.
func (s *SimChip) Watch(pin int, pull pins.Pull, h EdgeHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return err
	}
	l := s.line(pin)
	l.requested = true
	l.output = false
	l.pull = pull
	l.handler = h
	switch pull {
	case pins.PullUp:
		l.level = true
	case pins.PullDown:
		l.level = false
	}
	return nil
}

// Unwatch implements Chip. A watched line stays requested as an input.
func (s *SimChip) Unwatch(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.line(pin)
	if l.handler == nil {
		return nil
	}
	l.handler = nil
	l.requested = true
	l.output = false
	return nil
}

// Release implements Chip.
func (s *SimChip) Release(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.line(pin)
	l.requested = false
	l.output = false
	l.handler = nil
	return nil
}

// Close implements Chip.
func (s *SimChip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		l.requested = false
		l.handler = nil
	}
	return nil
}

// Mux implements Muxer.
func (s *SimChip) Mux(pin int, alt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return err
	}
	s.muxed[pin] = alt
	return nil
}

// SetPad implements Pads.
func (s *SimChip) SetPad(pin int, pad Pad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(pin); err != nil {
		return err
	}
	s.pads[pin] = pad
	return nil
}

// Inject sets the external level of an input line, notifying its watcher
// when the level changes. Output lines ignore injected levels.
func (s *SimChip) Inject(pin int, level bool) {
	s.mu.Lock()
	l := s.line(pin)
	if l.output || l.level == level {
		s.mu.Unlock()
		return
	}
	l.level = level
	h := l.handler
	s.mu.Unlock()

	if h != nil {
		h(pin, level, time.Now())
	}
}

// LineState describes a simulated line for assertions.
type LineState struct {
	Requested bool
	Output    bool
	Level     bool
	Pull      pins.Pull
	Watched   bool
	Muxed     string
	Pad       Pad
	Writes    []bool
}

// Line returns the simulated state of pin.
func (s *SimChip) Line(pin int) LineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.line(pin)
	return LineState{
		Requested: l.requested,
		Output:    l.output,
		Level:     l.level,
		Pull:      l.pull,
		Watched:   l.handler != nil,
		Muxed:     s.muxed[pin],
		Pad:       s.pads[pin],
		Writes:    append([]bool(nil), l.writes...),
	}
}

// SimPWM is an in-memory PWMChip.
type SimPWM struct {
	mu       sync.Mutex
	channels []*simPWMChannel
}

type simPWMChannel struct {
	owner   *SimPWM
	period  time.Duration
	duty    time.Duration
	enabled bool
}

// NewSimPWM creates n simulated hardware PWM channels.
func NewSimPWM(n int) *SimPWM {
	p := &SimPWM{}
	for range n {
		p.channels = append(p.channels, &simPWMChannel{owner: p})
	}
	return p
}

// Channels implements PWMChip.
func (p *SimPWM) Channels() int { return len(p.channels) }

// Channel implements PWMChip.
func (p *SimPWM) Channel(n int) (PWMChannel, error) {
	if n < 0 || n >= len(p.channels) {
		return nil, fmt.Errorf("pwm channel %d does not exist", n)
	}
	return p.channels[n], nil
}

// PWMState describes a simulated channel for assertions.
type PWMState struct {
	Period  time.Duration
	Duty    time.Duration
	Enabled bool
}

// State returns the simulated state of channel n.
func (p *SimPWM) State(n int) PWMState {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.channels[n]
	return PWMState{Period: c.period, Duty: c.duty, Enabled: c.enabled}
}

func (c *simPWMChannel) Configure(period, duty time.Duration) error {
	if duty > period {
		return fmt.Errorf("duty %s exceeds period %s", duty, period)
	}
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	c.period = period
	c.duty = duty
	return nil
}

func (c *simPWMChannel) Enable(on bool) error {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	c.enabled = on
	return nil
}
