// Package edge watches input lines for transitions and coalesces bursts
// within a debounce window into a single observation.
package edge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/gpionode/internal/hw"
	"github.com/smazurov/gpionode/internal/pins"
)

// DefaultDebounce is the coalescing window for edge bursts.
const DefaultDebounce = 5 * time.Millisecond

// Source delivers raw transitions for a line.
type Source interface {
	Watch(pin int, pull pins.Pull, h hw.EdgeHandler) error
	Unwatch(pin int) error
}

// Observation is one debounced edge report.
type Observation struct {
	Pin   int
	Level bool
	// Time is when the last transition in the window was seen.
	Time time.Time
	// Transitions counts raw edges folded into this observation.
	Transitions int
	// Generation identifies the arm call that produced the observation.
	Generation uint64
	// Qualified is set when some transition in the window matched the
	// watch's edge mode.
	Qualified bool
}

type watch struct {
	gen       uint64
	edge      pins.Edge
	timer     *time.Timer
	level     bool
	ts        time.Time
	count     int
	qualified bool
}

// Watcher maintains one watch per armed pin.
type Watcher struct {
	src    Source
	window time.Duration
	sink   func(Observation)
	logger *slog.Logger

	mu      sync.Mutex
	gen     uint64
	watches map[int]*watch
}

// New creates a watcher that reports debounced observations to sink.
// sink is called from timer goroutines and must not call back into Arm or
// Disarm for the same pin without its own synchronization.
func New(src Source, window time.Duration, sink func(Observation), logger *slog.Logger) *Watcher {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Watcher{
		src:     src,
		window:  window,
		sink:    sink,
		logger:  logger,
		watches: make(map[int]*watch),
	}
}

// Window returns the debounce window.
func (w *Watcher) Window() time.Duration {
	return w.window
}

// Arm starts watching pin and returns the watch generation. Any previous
// watch on the pin is replaced.
func (w *Watcher) Arm(pin int, mode pins.Edge, pull pins.Pull) (uint64, error) {
	w.Disarm(pin)

	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.watches[pin] = &watch{gen: gen, edge: mode}
	w.mu.Unlock()

	err := w.src.Watch(pin, pull, func(p int, level bool, ts time.Time) {
		w.transition(p, gen, level, ts)
	})
	if err != nil {
		w.mu.Lock()
		if cur, ok := w.watches[pin]; ok && cur.gen == gen {
			delete(w.watches, pin)
		}
		w.mu.Unlock()
		return 0, err
	}

	w.logger.Debug("Edge watch armed", "pin", pin, "edge", mode, "generation", gen)
	return gen, nil
}

// Disarm stops watching pin. A pending window is discarded and no
// observation for the old generation is delivered after Disarm returns,
// except one whose sink call had already started.
func (w *Watcher) Disarm(pin int) {
	w.mu.Lock()
	cur, ok := w.watches[pin]
	if ok {
		if cur.timer != nil {
			cur.timer.Stop()
		}
		delete(w.watches, pin)
	}
	w.mu.Unlock()

	if ok {
		if err := w.src.Unwatch(pin); err != nil {
			w.logger.Warn("Failed to release edge watch", "pin", pin, "error", err)
		}
		w.logger.Debug("Edge watch disarmed", "pin", pin, "generation", cur.gen)
	}
}

// Armed reports whether pin has an active watch.
func (w *Watcher) Armed(pin int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[pin]
	return ok
}

// Close disarms every pin.
func (w *Watcher) Close() {
	w.mu.Lock()
	armed := make([]int, 0, len(w.watches))
	for pin := range w.watches {
		armed = append(armed, pin)
	}
	w.mu.Unlock()

	for _, pin := range armed {
		w.Disarm(pin)
	}
}

// transition records a raw edge. The first edge opens the window; later
// edges only update the pending level.
func (w *Watcher) transition(pin int, gen uint64, level bool, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur, ok := w.watches[pin]
	if !ok || cur.gen != gen {
		return
	}
	cur.level = level
	cur.ts = ts
	cur.count++
	if cur.edge.Matches(level) {
		cur.qualified = true
	}
	if cur.timer == nil {
		cur.timer = time.AfterFunc(w.window, func() { w.flush(pin, gen) })
	}
}

// flush closes the window and reports it, qualified or not.
func (w *Watcher) flush(pin int, gen uint64) {
	w.mu.Lock()
	cur, ok := w.watches[pin]
	if !ok || cur.gen != gen {
		w.mu.Unlock()
		return
	}
	obs := Observation{
		Pin:         pin,
		Level:       cur.level,
		Time:        cur.ts,
		Transitions: cur.count,
		Generation:  gen,
		Qualified:   cur.qualified,
	}
	cur.timer = nil
	cur.count = 0
	cur.qualified = false
	w.mu.Unlock()

	if !obs.Qualified {
		w.logger.Debug("Edge window closed without qualifying transition", "pin", pin, "transitions", obs.Transitions)
	} else if obs.Transitions > 1 {
		w.logger.Debug("Coalesced edge burst", "pin", pin, "transitions", obs.Transitions, "level", obs.Level)
	}
	w.sink(obs)
}
