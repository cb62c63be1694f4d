package hw

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Clock sleeps between waveform edges.
type Clock interface {
	// Sleep waits for d and reports false if ctx ended first.
	Sleep(ctx context.Context, d time.Duration) bool
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type waveform struct {
	high time.Duration
	low  time.Duration
}

func newWaveform(freq, duty int) waveform {
	period := time.Second / time.Duration(freq)
	high := period * time.Duration(duty) / 100
	return waveform{high: high, low: period - high}
}

// softPWM toggles a line from its own goroutine. Parameters are read once per
// cycle, so updates take effect at the next cycle boundary.
type softPWM struct {
	pin     int
	set     func(level bool) error
	wave    atomic.Pointer[waveform]
	clock   Clock
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *slog.Logger
	failing bool
}

func startSoftPWM(pin, freq, duty int, set func(bool) error, clock Clock, logger *slog.Logger) *softPWM {
	ctx, cancel := context.WithCancel(context.Background())
	g := &softPWM{
		pin:    pin,
		set:    set,
		clock:  clock,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
	w := newWaveform(freq, duty)
	g.wave.Store(&w)
	go g.run(ctx)
	return g
}

// Update replaces the waveform for the next cycle.
func (g *softPWM) Update(freq, duty int) {
	w := newWaveform(freq, duty)
	g.wave.Store(&w)
}

// Stop halts the generator and returns once the line has been driven low
// for the last time.
func (g *softPWM) Stop() {
	g.cancel()
	<-g.done
}

func (g *softPWM) run(ctx context.Context) {
	defer close(g.done)

	level, known := false, false
	drive := func(v bool) {
		if known && level == v {
			return
		}
		if err := g.set(v); err != nil {
			if !g.failing {
				g.logger.Warn("Software PWM write failed", "pin", g.pin, "error", err)
				g.failing = true
			}
			known = false
			return
		}
		g.failing = false
		level, known = v, true
	}

	for {
		w := *g.wave.Load()
		if w.high > 0 {
			drive(true)
			if !g.clock.Sleep(ctx, w.high) {
				break
			}
		}
		if w.low > 0 {
			drive(false)
			if !g.clock.Sleep(ctx, w.low) {
				break
			}
		}
	}
	drive(false)
}
