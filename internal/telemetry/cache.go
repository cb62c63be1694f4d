package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults for the refresh schedule.
const (
	DefaultSchedule = "@every 5s"
	DefaultTimeout  = 3 * time.Second
)

// RefreshHook is called after every refresh attempt with the snapshot
// readers now see.
type RefreshHook func(snap Snapshot, err error, took time.Duration)

// Cache serves the last good snapshot and refreshes it on a schedule.
// Readers never block on a refresh.
type Cache struct {
	src      Source
	schedule string
	timeout  time.Duration
	hook     RefreshHook
	logger   *slog.Logger

	current atomic.Pointer[Snapshot]

	refreshMu sync.Mutex
	mu        sync.Mutex
	cron      *cron.Cron
	cancel    context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithSchedule sets the refresh schedule as a cron spec or "@every <duration>".
func WithSchedule(spec string) Option {
	return func(c *Cache) {
		if spec != "" {
			c.schedule = spec
		}
	}
}

// WithTimeout bounds a single collection.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRefreshHook installs a hook called after every refresh.
func WithRefreshHook(fn RefreshHook) Option {
	return func(c *Cache) { c.hook = fn }
}

// NewCache creates a cache over src. Until the first successful refresh
// the snapshot is empty and stale.
func NewCache(src Source, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		src:      src,
		schedule: DefaultSchedule,
		timeout:  DefaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&Snapshot{Stale: true})
	return c
}

// Snapshot returns the current snapshot.
func (c *Cache) Snapshot() Snapshot {
	return *c.current.Load()
}

// Refresh collects a new snapshot. On failure the previous snapshot is kept
// and marked stale. The error is only for the caller's logging.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	snap, err := c.src.Collect(ctx)
	took := time.Since(start)

	if err != nil {
		prev := *c.current.Load()
		prev.Stale = true
		c.current.Store(&prev)
		c.logger.Warn("Telemetry refresh failed, serving stale snapshot", "error", err, "last_refresh", prev.RefreshedAt)
		if c.hook != nil {
			c.hook(prev, err, took)
		}
		return err
	}

	snap.RefreshedAt = time.Now()
	snap.Stale = false
	c.current.Store(&snap)
	c.logger.Debug("Telemetry refreshed", "duration", took)
	if c.hook != nil {
		c.hook(snap, nil, took)
	}
	return nil
}

// Start refreshes once in the background and then on the schedule.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	sched, err := cron.ParseStandard(c.schedule)
	if err != nil {
		return fmt.Errorf("telemetry schedule %q: %w", c.schedule, err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{c.logger})))
	c.cron.Schedule(sched, cron.FuncJob(func() {
		_ = c.Refresh(ctx)
	}))
	c.cron.Start()

	go func() { _ = c.Refresh(ctx) }()

	c.logger.Info("Telemetry refresh started", "schedule", c.schedule, "timeout", c.timeout)
	return nil
}

// Stop halts the schedule and waits for a running refresh.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return
	}
	c.cancel()
	<-c.cron.Stop().Done()
	c.cron = nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
