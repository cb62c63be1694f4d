package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/gpionode/internal/events"
)

type marshaler interface {
	Marshal() ([]byte, error)
}

// Publisher mirrors bus events to NATS subjects. It degrades to a no-op
// while NATS is unreachable; events from that period are not replayed.
type Publisher struct {
	url       string
	conn      *nats.Conn
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	unsubs    []func()
}

// NewPublisher creates a publisher for the NATS server at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		url:    url,
		logger: logger.With("component", "nats-publisher"),
	}
}

// Connect establishes the connection. On failure the publisher stays usable
// and keeps retrying in the background.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := nats.Connect(p.url,
		nats.Name("gpionode-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.setConnected(false)
			if err != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.setConnected(true)
			p.logger.Info("NATS reconnected")
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			p.setConnected(true)
			p.logger.Info("Connected to NATS", "url", p.url)
		}),
	)
	if err != nil {
		p.logger.Warn("Failed to connect to NATS, running without mirror", "error", err)
		return err
	}
	p.conn = conn
	p.connected = conn.IsConnected()
	return nil
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Attach mirrors pin, fault and telemetry events from bus until Close.
func (p *Publisher) Attach(bus *events.Bus) {
	unsubs := []func(){
		bus.Subscribe(func(e events.PinStateChangedEvent) {
			p.publish(SubjectPinState(e.Pin), StateMessage{Event: e.Event})
		}),
		bus.Subscribe(func(e events.PinFaultEvent) {
			p.publish(SubjectPinFault(e.Pin), FaultMessage(e))
		}),
		bus.Subscribe(func(e events.TelemetryRefreshedEvent) {
			p.publish(SubjectTelemetry, TelemetryMessage{Snapshot: e.Snapshot, Error: e.Error})
		}),
	}
	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsubs...)
	p.mu.Unlock()
}

// publish sends m on subject. No-op if not connected.
func (p *Publisher) publish(subject string, m marshaler) {
	p.mu.RLock()
	conn := p.conn
	connected := p.connected
	p.mu.RUnlock()

	if conn == nil || !connected {
		return
	}

	data, err := m.Marshal()
	if err != nil {
		p.logger.Warn("Failed to marshal message", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.conn != nil
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush() error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return nats.ErrConnectionClosed
	}
	return conn.Flush()
}

// Close detaches from the bus and closes the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connected = false
	p.logger.Debug("NATS publisher closed")
}
