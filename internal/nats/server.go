package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const readyTimeout = 5 * time.Second

// ServerOptions configures the embedded NATS server.
type ServerOptions struct {
	// Port to listen on. Negative picks a free port.
	Port   int
	Host   string
	Name   string
	Logger *slog.Logger
}

// DefaultServerOptions listens on the standard NATS port, loopback only.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Port: 4222,
		Host: "127.0.0.1",
		Name: "gpionode",
	}
}

// Server is an embedded NATS server for hosts without a broker. Pin events
// and commands then stay on the device unless a client connects to it.
type Server struct {
	ns     *server.Server
	opts   ServerOptions
	logger *slog.Logger
}

// NewServer creates an embedded server. Zero fields take their defaults.
func NewServer(opts ServerOptions) *Server {
	def := DefaultServerOptions()
	if opts.Port == 0 {
		opts.Port = def.Port
	}
	if opts.Port < 0 {
		opts.Port = server.RANDOM_PORT
	}
	if opts.Host == "" {
		opts.Host = def.Host
	}
	if opts.Name == "" {
		opts.Name = def.Name
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger.With("component", "nats-server")}
}

// Start runs the server and waits until it accepts connections.
func (s *Server) Start() error {
	ns, err := server.NewServer(&server.Options{
		Host:       s.opts.Host,
		Port:       s.opts.Port,
		ServerName: s.opts.Name,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 64 * 1024,
	})
	if err != nil {
		return fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return errors.New("NATS server not ready within " + readyTimeout.String())
	}

	s.ns = ns
	s.logger.Info("NATS server started", "url", s.ClientURL())
	return nil
}

// Stop shuts the server down and waits for it to finish.
func (s *Server) Stop() {
	if s.ns == nil {
		return
	}
	s.logger.Info("Stopping NATS server")
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
	s.ns = nil
}

// ClientURL returns the URL clients should use to connect.
func (s *Server) ClientURL() string {
	if s.ns == nil {
		return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
	}
	return s.ns.ClientURL()
}

// IsRunning returns true if the server accepts connections.
func (s *Server) IsRunning() bool {
	return s.ns != nil && s.ns.Running()
}
