package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin to read state and send commands, as
// dashboards are usually served from another host on the LAN.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Accept", "Origin", "Last-Event-ID", "X-Requested-With"},
		MaxAge:       86400,
	}
}

// corsHeaders is a CORSConfig with its header values joined once.
type corsHeaders [][2]string

func (c CORSConfig) headers() corsHeaders {
	return corsHeaders{
		{"Access-Control-Allow-Origin", c.AllowOrigin},
		{"Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", ")},
		{"Access-Control-Max-Age", strconv.Itoa(c.MaxAge)},
	}
}

// NewCORSMiddleware sets CORS headers on every Huma response.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := config.headers()
	return func(ctx huma.Context, next func(huma.Context)) {
		for _, h := range headers {
			ctx.SetHeader(h[0], h[1])
		}
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests on the mux, since Huma only
// sees methods it has operations for.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	headers := config.headers()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		for _, h := range headers {
			w.Header().Set(h[0], h[1])
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
