package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/gpionode/internal/events"
)

// Manager keeps the status LED solid while every pin is healthy and
// blinking while any pin is faulty.
type Manager struct {
	controller  Controller
	bus         *events.Bus
	logger      *slog.Logger
	unsubscribe func()

	mu      sync.Mutex
	faulty  map[int]bool
	pattern Pattern
}

// NewManager creates a manager. faulty lists the pins already degraded.
func NewManager(controller Controller, bus *events.Bus, faulty []int, logger *slog.Logger) *Manager {
	m := &Manager{
		controller: controller,
		bus:        bus,
		logger:     logger,
		faulty:     make(map[int]bool),
	}
	for _, pin := range faulty {
		m.faulty[pin] = true
	}
	return m
}

// Start sets the LED and follows pin events until Stop.
func (m *Manager) Start() {
	m.mu.Lock()
	m.update()
	m.mu.Unlock()

	m.unsubscribe = m.bus.Subscribe(func(e events.PinStateChangedEvent) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e.Record.Faulty {
			m.faulty[e.Pin] = true
		} else {
			delete(m.faulty, e.Pin)
		}
		m.update()
	})
	m.logger.Info("Status LED manager started")
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if err := m.controller.Set(StatusLED, false, ""); err != nil {
		m.logger.Warn("Failed to turn status LED off", "error", err)
	}
}

// update applies the pattern for the current fault set. Callers hold mu.
func (m *Manager) update() {
	want := PatternSolid
	if len(m.faulty) > 0 {
		want = PatternBlink
	}
	if want == m.pattern {
		return
	}
	if err := m.controller.Set(StatusLED, true, want); err != nil {
		m.logger.Warn("Failed to set status LED", "pattern", want, "error", err)
		return
	}
	m.pattern = want
	m.logger.Debug("Status LED updated", "pattern", want, "faulty_pins", len(m.faulty))
}
