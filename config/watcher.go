package config

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls a config file and re-runs the loader when its modification
// time changes. Polling keeps the behavior identical across platforms and
// survives editors that replace the file instead of writing in place.
type Watcher struct {
	loader   *Loader
	path     string
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	lastMod   time.Time
	callbacks []func(*Config)
}

// NewWatcher creates a watcher for path using loader. interval <= 0 means
// 10 seconds.
func NewWatcher(loader *Loader, path string, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		loader:   loader,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// OnReload registers a callback invoked with each successfully reloaded
// config. Register before Run; callbacks run on the watcher goroutine.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Run polls until ctx is cancelled. A load failure keeps the previous
// config and is logged, never fatal.
func (w *Watcher) Run(ctx context.Context) {
	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("reloaded config invalid, keeping previous config",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("config reloaded", zap.String("path", w.path))
	w.mu.Lock()
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}
