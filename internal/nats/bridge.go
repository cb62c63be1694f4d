package nats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/gpionode/internal/pins"
)

// commandTimeout bounds one NATS command, hardware retries included.
const commandTimeout = 5 * time.Second

// Applier applies pin changes. *gpio.Service implements it.
type Applier interface {
	Apply(ctx context.Context, pin int, change pins.Change) (pins.State, error)
}

// CommandBridge subscribes to pin command subjects and applies them through
// the same path as HTTP commands. Commands sent with a reply subject get a
// ReplyMessage.
type CommandBridge struct {
	url     string
	applier Applier
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *slog.Logger
	mu      sync.Mutex
	// onResult is called after every command, for metrics.
	onResult func(kind string, code pins.Code)
}

// NewCommandBridge creates a bridge applying commands through applier.
func NewCommandBridge(url string, applier Applier, logger *slog.Logger) *CommandBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandBridge{
		url:     url,
		applier: applier,
		logger:  logger.With("component", "nats-bridge"),
	}
}

// OnResult sets the callback invoked with the outcome of every command.
func (b *CommandBridge) OnResult(fn func(kind string, code pins.Code)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResult = fn
}

// Start connects to NATS and subscribes to gpionode.pins.*.cmd.
func (b *CommandBridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("gpionode-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.Subscribe(subjectAllCommands, b.handleCommand)
	if err != nil {
		conn.Close()
		return err
	}
	b.conn = conn
	b.sub = sub
	b.logger.Info("NATS bridge subscribed", "subject", subjectAllCommands)
	return nil
}

func (b *CommandBridge) handleCommand(msg *nats.Msg) {
	pin, err := pinFromSubject(msg.Subject)
	if err != nil {
		b.logger.Warn("Ignoring command", "error", err)
		return
	}

	var (
		kind = "unknown"
		st   pins.State
	)
	cmd, err := UnmarshalCommand(msg.Data)
	if err != nil {
		err = pins.Errorf(pins.CodeOutOfRange, pin, "malformed command: %v", err)
	} else {
		var change pins.Change
		change, err = cmd.Change(pin)
		if err == nil {
			kind = change.Kind()
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			st, err = b.applier.Apply(ctx, pin, change)
			cancel()
		}
	}

	b.mu.Lock()
	onResult := b.onResult
	b.mu.Unlock()
	if onResult != nil {
		onResult(kind, pins.CodeOf(err))
	}

	reply := ReplyMessage{OK: err == nil}
	if err != nil {
		reply.Code = pins.CodeOf(err)
		reply.Error = err.Error()
		b.logger.Debug("NATS command rejected", "pin", pin, "kind", kind, "error", err)
	} else {
		view := st.View()
		reply.Record = &view
		b.logger.Debug("NATS command applied", "pin", pin, "kind", kind)
	}

	if msg.Reply == "" {
		return
	}
	data, mErr := reply.Marshal()
	if mErr != nil {
		b.logger.Warn("Failed to marshal reply", "error", mErr)
		return
	}
	if rErr := msg.Respond(data); rErr != nil {
		b.logger.Warn("Failed to send reply", "error", rErr)
	}
}

// Stop unsubscribes and closes the connection.
func (b *CommandBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		_ = b.sub.Unsubscribe()
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *CommandBridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
