package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes.
type Watcher struct {
	path     string
	onReload func(*Config, error)
	logger   *slog.Logger

	mu      sync.RWMutex
	current *Config
	reloads atomic.Uint32

	fsw  *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// NewWatcher loads path and starts watching it. onReload runs after every
// reload attempt, with a nil config on failure; the previous snapshot is kept
// in that case.
func NewWatcher(path string, logger *slog.Logger, onReload func(*Config, error)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// The directory is watched so editors that replace the file are seen.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger,
		current:  cfg,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	count := w.reloads.Add(1)
	w.logger.Info("Reloading config file", "path", w.path, "count", count)

	cfg, err := LoadAndValidate(w.path)
	if err != nil {
		w.logger.Error("Failed to reload config", "error", err)
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info("Config reloaded successfully", "count", count)
	if w.onReload != nil {
		w.onReload(cfg, nil)
	}
}

// Snapshot returns the current config.
func (w *Watcher) Snapshot() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadCount returns the number of reload attempts.
func (w *Watcher) ReloadCount() uint32 {
	return w.reloads.Load()
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fsw.Close()
		<-w.done
	})
	return err
}
