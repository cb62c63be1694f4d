// Package broadcast fans pin change events out to observers without letting
// a slow observer hold up producers or other observers.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smazurov/gpionode/internal/pins"
)

// DefaultCapacity is the per-observer buffer size.
const DefaultCapacity = 256

// ErrClosed is returned by Next after the observer or hub is closed.
var ErrClosed = errors.New("observer closed")

// Cause says what produced an event.
type Cause string

// Event causes.
const (
	CauseCommand Cause = "command"
	CauseEdge    Cause = "edge"
	CauseSample  Cause = "sample"
	CauseFault   Cause = "fault"
)

// Event is a pin_state_change notification.
type Event struct {
	// Seq is assigned by the hub and increases by one per event, so every
	// observer can detect dropped events as a gap.
	Seq         uint64    `json:"seq" doc:"Hub sequence number"`
	Pin         int       `json:"pin" doc:"BCM GPIO number"`
	State       bool      `json:"state" doc:"Pin level"`
	LastTrigger *float64  `json:"last_trigger,omitempty" doc:"Unix time of the last edge in seconds"`
	Cause       Cause     `json:"cause" enum:"command,edge,sample,fault" doc:"What produced the event"`
	Change      string    `json:"change,omitempty" doc:"Kind of accepted command"`
	Record      pins.View `json:"record" doc:"Pin record after the change"`
	Timestamp   time.Time `json:"timestamp" doc:"When the event was published"`
}

// NewEvent builds an event for a committed record.
func NewEvent(st pins.State, cause Cause, change string) Event {
	ev := Event{
		Pin:    st.Pin,
		State:  st.Level,
		Cause:  cause,
		Change: change,
		Record: st.View(),
	}
	if st.HasTrigger() {
		ts := pins.UnixSeconds(st.LastTrigger)
		ev.LastTrigger = &ts
	}
	return ev
}

// Hub assigns sequence numbers and pushes events to every observer.
type Hub struct {
	capacity int
	logger   *slog.Logger
	mirror   func(Event)
	onDrop   func(observer string)

	mu        sync.Mutex
	seq       uint64
	observers map[ulid.ULID]*Observer
	closed    bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithCapacity sets the per-observer buffer size.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithMirror calls fn for every published event, in sequence order.
// fn must not block.
func WithMirror(fn func(Event)) Option {
	return func(h *Hub) { h.mirror = fn }
}

// WithDropHook calls fn whenever an observer loses its oldest event.
func WithDropHook(fn func(observer string)) Option {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		capacity:  DefaultCapacity,
		logger:    logger,
		observers: make(map[ulid.ULID]*Observer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish stamps ev with the next sequence number and queues it for every
// observer. It never blocks on observers.
func (h *Hub) Publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev.Seq = h.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if h.closed {
		return ev
	}
	for _, o := range h.observers {
		if dropped := o.push(ev); dropped > 0 {
			if dropped == 1 || dropped%100 == 0 {
				h.logger.Warn("Observer buffer full, dropping oldest events", "observer", o.Name, "id", o.ID.String(), "dropped", dropped)
			}
			if h.onDrop != nil {
				h.onDrop(o.Name)
			}
		}
	}
	if h.mirror != nil {
		h.mirror(ev)
	}
	return ev
}

// Subscribe registers a new observer that receives every event published
// from now on.
func (h *Hub) Subscribe(name string) *Observer {
	o := &Observer{
		ID:     ulid.Make(),
		Name:   name,
		hub:    h,
		buf:    make([]Event, h.capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		o.close()
		return o
	}
	h.observers[o.ID] = o
	h.logger.Debug("Observer subscribed", "observer", name, "id", o.ID.String(), "observers", len(h.observers))
	return o
}

// Observers returns the number of subscribed observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, o := range h.observers {
		o.close()
		delete(h.observers, id)
	}
}

func (h *Hub) remove(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o.ID]; ok {
		delete(h.observers, o.ID)
		h.logger.Debug("Observer unsubscribed", "observer", o.Name, "id", o.ID.String(), "dropped", o.Dropped())
	}
}

// Observer is one subscriber's bounded queue. When full, the oldest event
// is discarded.
type Observer struct {
	ID   ulid.ULID
	Name string
	hub  *Hub

	mu      sync.Mutex
	buf     []Event
	head    int
	size    int
	dropped uint64
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

// push queues ev. If an older event had to be discarded it returns the
// observer's total drop count, otherwise zero.
func (o *Observer) push(ev Event) uint64 {
	o.mu.Lock()
	var dropped uint64
	if o.size == len(o.buf) {
		o.head = (o.head + 1) % len(o.buf)
		o.size--
		o.dropped++
		dropped = o.dropped
	}
	o.buf[(o.head+o.size)%len(o.buf)] = ev
	o.size++
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (o *Observer) pop() (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.size == 0 {
		return Event{}, false
	}
	ev := o.buf[o.head]
	o.buf[o.head] = Event{}
	o.head = (o.head + 1) % len(o.buf)
	o.size--
	return ev, true
}

// Next returns the oldest queued event, waiting for one if needed.
func (o *Observer) Next(ctx context.Context) (Event, error) {
	for {
		if ev, ok := o.pop(); ok {
			return ev, nil
		}
		select {
		case <-o.notify:
		case <-o.done:
			if ev, ok := o.pop(); ok {
				return ev, nil
			}
			return Event{}, ErrClosed
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Pending returns the number of queued events.
func (o *Observer) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

// Dropped returns how many events this observer has lost.
func (o *Observer) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Close unsubscribes the observer. Queued events can still be read.
func (o *Observer) Close() {
	o.hub.remove(o)
	o.close()
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
}
