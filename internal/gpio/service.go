// Package gpio coordinates pin commands, edge observations and hardware
// actuation over the pin store and publishes every committed change.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/gpionode/internal/board"
	"github.com/smazurov/gpionode/internal/broadcast"
	"github.com/smazurov/gpionode/internal/edge"
	"github.com/smazurov/gpionode/internal/hw"
	"github.com/smazurov/gpionode/internal/pins"
)

// Service is the single write path for pin records.
type Service struct {
	table     *board.Table
	store     *pins.Store
	validator *pins.Validator
	driver    *hw.Driver
	watcher   *edge.Watcher
	hub       *broadcast.Hub
	logger    *slog.Logger

	// armed holds the watch generation per pin. Written with the pin lock held.
	armedMu sync.Mutex
	armed   map[int]uint64
}

// Option configures a Service.
type Option func(*options)

type options struct {
	debounce time.Duration
}

// WithDebounce sets the edge coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// New creates a service over driver that publishes to hub.
func New(table *board.Table, driver *hw.Driver, hub *broadcast.Hub, logger *slog.Logger, opts ...Option) *Service {
	o := options{debounce: edge.DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		table:     table,
		store:     pins.NewStore(table),
		validator: pins.NewValidator(table),
		driver:    driver,
		hub:       hub,
		logger:    logger,
		armed:     make(map[int]uint64),
	}
	s.watcher = edge.New(driver, o.debounce, s.observeEdge, logger.With("component", "edge"))
	return s
}

// Init pushes the startup records to hardware. Pins that fail are marked
// faulty and the rest stay usable.
func (s *Service) Init(ctx context.Context) error {
	states := s.store.SnapshotAll()
	var errs []error
	for _, st := range states {
		if err := s.driver.Init(ctx, []pins.State{st}); err != nil {
			unlock := s.store.Lock(st.Pin)
			s.setFaulty(st, err)
			unlock()
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("Some pins failed to initialize", "failed", len(errs), "pins", len(states))
		return errors.Join(errs...)
	}
	s.logger.Info("Pins initialized", "pins", len(states), "backend", s.driver.Backend())
	return nil
}

// Table returns the capability table.
func (s *Service) Table() *board.Table {
	return s.table
}

// Backend returns the hardware backend name.
func (s *Service) Backend() string {
	return s.driver.Backend()
}

// Snapshot returns the current record of pin.
func (s *Service) Snapshot(pin int) (pins.State, error) {
	st, ok := s.store.Snapshot(pin)
	if !ok {
		return pins.State{}, pins.Errorf(pins.CodeUnknownPin, pin, "pin %d does not exist", pin)
	}
	return st, nil
}

// SnapshotAll returns every record, ordered by pin, from one consistent view.
func (s *Service) SnapshotAll() []pins.State {
	return s.store.SnapshotAll()
}

// Subscribe registers an observer for pin_state_change events.
func (s *Service) Subscribe(name string) *broadcast.Observer {
	return s.hub.Subscribe(name)
}

// Observers returns the number of subscribed observers.
func (s *Service) Observers() int {
	return s.hub.Observers()
}

// Seq returns the sequence number of the last published event.
func (s *Service) Seq() uint64 {
	return s.hub.Seq()
}

// Apply validates change against pin's record, actuates it and commits the
// result. A rejected or failed change leaves the record untouched.
func (s *Service) Apply(ctx context.Context, pin int, change pins.Change) (pins.State, error) {
	if !s.table.Has(pin) {
		return pins.State{}, pins.Errorf(pins.CodeUnknownPin, pin, "pin %d does not exist", pin)
	}

	lockSet := s.validator.LockSet(pin, change)
	unlock := s.store.Lock(lockSet...)
	defer unlock()

	cur, _ := s.store.Snapshot(pin)
	partners := make([]pins.State, 0, len(lockSet))
	for _, p := range lockSet {
		if p == pin {
			continue
		}
		if st, ok := s.store.Snapshot(p); ok {
			partners = append(partners, st)
		}
	}

	next, err := s.validator.Validate(cur, partners, change)
	if err != nil {
		s.logger.Debug("Change rejected", "pin", pin, "change", change.Kind(), "code", pins.CodeOf(err))
		return cur, err
	}

	if _, label := change.(pins.SetLabel); !label {
		next, err = s.actuate(ctx, cur, next)
		if err != nil {
			return cur, err
		}
		next.Faulty = false
		next.Fault = ""
	}

	committed := s.store.Commit(next)[0]
	s.hub.Publish(broadcast.NewEvent(committed, broadcast.CauseCommand, change.Kind()))

	s.logger.Debug("Change applied", "pin", pin, "change", change.Kind(), "version", committed.Version)
	return committed, nil
}

// actuate drives hardware from cur to next and arms the edge watch next
// asks for. Any edge watch on the pin is dropped first. On failure the
// hardware and the previous watch are restored.
func (s *Service) actuate(ctx context.Context, cur, next pins.State) (pins.State, error) {
	if cur.Watched() {
		s.disarm(cur.Pin)
	}

	out, err := s.driver.Apply(ctx, cur, next)
	if err == nil && out.Watched() {
		if err = s.arm(out); err != nil {
			if _, rerr := s.driver.Apply(ctx, out, cur); rerr != nil {
				s.logger.Warn("Failed to restore pin after arm failure", "pin", cur.Pin, "error", rerr)
			}
		}
	}
	if err != nil {
		if cur.Watched() {
			if rerr := s.arm(cur); rerr != nil {
				s.logger.Warn("Failed to restore edge watch", "pin", cur.Pin, "error", rerr)
			}
		}
		if pins.CodeOf(err) == pins.CodeHardwareFault {
			s.markFaulty(cur, err)
		}
		return cur, err
	}
	return out, nil
}

// markFaulty records a persistent fault once the driver has given up on
// the pin. The caller holds the pin lock.
func (s *Service) markFaulty(cur pins.State, cause error) {
	if !s.driver.Faulty(cur.Pin) || cur.Faulty {
		return
	}
	s.setFaulty(cur, cause)
}

func (s *Service) setFaulty(cur pins.State, cause error) {
	cur.Faulty = true
	cur.Fault = cause.Error()
	committed := s.store.Commit(cur)[0]
	s.hub.Publish(broadcast.NewEvent(committed, broadcast.CauseFault, ""))
	s.logger.Error("Pin marked faulty", "pin", cur.Pin, "error", cause)
}

func (s *Service) arm(st pins.State) error {
	gen, err := s.watcher.Arm(st.Pin, st.Edge, st.Pull)
	if err != nil {
		s.logger.Warn("Failed to arm edge watch", "pin", st.Pin, "edge", st.Edge, "error", err)
		return err
	}
	s.armedMu.Lock()
	s.armed[st.Pin] = gen
	s.armedMu.Unlock()
	return nil
}

func (s *Service) disarm(pin int) {
	s.armedMu.Lock()
	delete(s.armed, pin)
	s.armedMu.Unlock()
	s.watcher.Disarm(pin)
}

func (s *Service) generation(pin int) uint64 {
	s.armedMu.Lock()
	defer s.armedMu.Unlock()
	return s.armed[pin]
}

// observeEdge commits a debounced edge window. Every window updates the
// level; only windows matching the edge mode set last_trigger and publish.
// Observations from a watch that has since been replaced are dropped.
func (s *Service) observeEdge(obs edge.Observation) {
	unlock := s.store.Lock(obs.Pin)
	defer unlock()

	if s.generation(obs.Pin) != obs.Generation {
		s.logger.Debug("Dropping edge from stale watch", "pin", obs.Pin, "generation", obs.Generation)
		return
	}
	cur, ok := s.store.Snapshot(obs.Pin)
	if !ok || !cur.Watched() {
		return
	}

	if !obs.Qualified {
		if cur.Level != obs.Level {
			cur.Level = obs.Level
			s.store.Commit(cur)
		}
		return
	}

	cur.Level = obs.Level
	cur.LastTrigger = obs.Time
	committed := s.store.Commit(cur)[0]
	s.hub.Publish(broadcast.NewEvent(committed, broadcast.CauseEdge, ""))
}

// ReadLevel samples a GPIO pin. A level that differs from the record is
// committed and published.
func (s *Service) ReadLevel(ctx context.Context, pin int) (pins.State, error) {
	if !s.table.Has(pin) {
		return pins.State{}, pins.Errorf(pins.CodeUnknownPin, pin, "pin %d does not exist", pin)
	}

	unlock := s.store.Lock(pin)
	defer unlock()

	cur, _ := s.store.Snapshot(pin)
	if cur.Function != board.FunctionGPIO {
		return cur, pins.Errorf(pins.CodeIllegalForFunction, pin, "level requires function GPIO, pin %d is %s", pin, cur.Function)
	}

	level, err := s.driver.ReadLevel(ctx, pin)
	if err != nil {
		s.markFaulty(cur, err)
		return cur, err
	}
	if level == cur.Level {
		return cur, nil
	}

	cur.Level = level
	committed := s.store.Commit(cur)[0]
	s.hub.Publish(broadcast.NewEvent(committed, broadcast.CauseSample, ""))
	return committed, nil
}

// Close disarms every watch and releases the hardware.
func (s *Service) Close() error {
	s.watcher.Close()
	err := s.driver.Close()
	s.hub.Close()
	if err != nil {
		return fmt.Errorf("close driver: %w", err)
	}
	return nil
}
