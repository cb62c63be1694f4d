package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/gpionode/internal/api/models"
	"github.com/smazurov/gpionode/internal/events"
	"github.com/smazurov/gpionode/internal/gpio"
	"github.com/smazurov/gpionode/internal/logging"
	"github.com/smazurov/gpionode/internal/telemetry"
	"github.com/smazurov/gpionode/internal/version"
)

// TelemetryReader serves the cached host telemetry.
type TelemetryReader interface {
	Snapshot() telemetry.Snapshot
}

// Options configures the API server.
type Options struct {
	Service   *gpio.Service
	Telemetry TelemetryReader
	EventBus  *events.Bus
	// RateLimit is the sustained mutation rate per client in requests per
	// second. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// WSOriginPatterns lists extra origins allowed to open /api/ws.
	WSOriginPatterns  []string
	PrometheusHandler http.Handler
	// UIHandler serves the dashboard at / when set.
	UIHandler http.Handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	mu         sync.Mutex
	httpServer *http.Server
	service    *gpio.Service
	telemetry  TelemetryReader
	eventBus   *events.Bus
	options    *Options
	limiter    *clientLimiter
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("GPIONode API", version.Get().Version)
	config.Info.Description = "Pin state and hardware coordination for single-board computer GPIO"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		api:       api,
		mux:       mux,
		service:   opts.Service,
		telemetry: opts.Telemetry,
		eventBus:  opts.EventBus,
		options:   opts,
		logger:    logging.GetLogger("api"),
		ctx:       ctx,
		cancel:    cancel,
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.RateLimit > 0 {
		server.limiter = newClientLimiter(ctx, opts.RateLimit, opts.RateBurst)
		api.UseMiddleware(server.rateLimitMiddleware)
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	if opts.UIHandler != nil {
		mux.Handle("GET /", opts.UIHandler)
	}

	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Stop.
func (s *Server) Serve(ln net.Listener) error {
	addr := ln.Addr().String()
	s.logger.Info("Starting GPIONode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down. Push connections are closed immediately.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.cancel()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status and list faulty pins",
		Tags:        []string{"health"},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		faulty := []int{}
		for _, st := range s.service.SnapshotAll() {
			if st.Faulty {
				faulty = append(faulty, st.Pin)
			}
		}
		status, message := "ok", "API is healthy"
		if len(faulty) > 0 {
			status, message = "degraded", "Some pins have hardware faults"
		}
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  status,
				Message: message,
				Backend: s.service.Backend(),
				Faulty:  faulty,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerLogRoutes()
	s.registerPinRoutes()
	s.registerSystemRoutes()
	s.registerSSERoutes()
	s.registerWebSocketRoute()
}
