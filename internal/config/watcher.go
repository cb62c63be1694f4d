package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher reloads a file after it changes and hands the fresh value to
// every registered handler. The parent directory is watched, so editors
// that save by renaming a temp file over the original are seen too.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	handlers map[int]func(T)
	nextID   int
	onError  func(error)
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the file must be quiet before reloading.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for load errors, which are otherwise
// only logged. Handlers are not called when loading fails.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a watcher for path. loader runs on every change.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		handlers: make(map[int]func(T)),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers handler and returns a function that removes it.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching. The file itself need not exist yet.
func (w *Watcher[T]) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher[T]) watch() {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Config watcher stopped", "path", w.path)
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("Config file change detected", "path", w.path, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.loadAndNotify()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher[T]) loadAndNotify() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to reload config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.logger.Info("Config file reloaded", "path", w.path)

	w.mu.RLock()
	handlers := make([]func(T), 0, len(w.handlers))
	for id := 0; id < w.nextID; id++ {
		if h, ok := w.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	w.mu.RUnlock()

	for _, h := range handlers {
		h(value)
	}
}
