package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = time.Minute
	limiterIdleTimeout   = 3 * time.Minute
)

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address. Idle buckets are
// swept until ctx ends.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*limitedClient
}

func newClientLimiter(ctx context.Context, perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*limitedClient),
	}
	go l.sweep(ctx)
	return l
}

func (l *clientLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			for addr, c := range l.clients {
				if time.Since(c.lastSeen) > limiterIdleTimeout {
					delete(l.clients, addr)
				}
			}
			l.mu.Unlock()
		}
	}
}

// allow reports whether the client at addr may send another command.
func (l *clientLimiter) allow(addr string) bool {
	l.mu.Lock()
	c, ok := l.clients[addr]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[addr] = c
	}
	c.lastSeen = time.Now()
	l.mu.Unlock()
	return c.limiter.Allow()
}

// clientAddr strips the port from a remote address.
func clientAddr(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

// rateLimitMiddleware limits pin commands per client. Reads and push
// streams are never limited.
func (s *Server) rateLimitMiddleware(ctx huma.Context, next func(huma.Context)) {
	if ctx.Method() != http.MethodPost {
		next(ctx)
		return
	}
	addr := clientAddr(ctx.RemoteAddr())
	if !s.limiter.allow(addr) {
		s.logger.Warn("Command rate limited", "remote_addr", addr, "path", ctx.URL().Path)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "too many commands, slow down")
		return
	}
	next(ctx)
}
