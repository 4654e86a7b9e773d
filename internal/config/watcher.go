package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadHandler receives the freshly loaded configuration after a file
// change. Handler errors are logged; the previous configuration stays
// active for that handler.
type ReloadHandler func(cfg *Config) error

// Watcher reloads the configuration file on change and fans the result out
// to registered handlers. Editors that replace the file (rename plus create)
// are handled by watching the directory rather than the file itself.
type Watcher struct {
	path     string
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	handlers []ReloadHandler
	lastLoad time.Time
}

// NewWatcher starts watching the configuration file's directory.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	w := &Watcher{
		path:   path,
		logger: logger,
		fsw:    fsw,
		stopCh: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// OnReload registers a handler invoked after every successful reload.
func (w *Watcher) OnReload(h ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// reload debounces bursts of write events from editors that flush in chunks.
func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.lastLoad) < 500*time.Millisecond {
		w.mu.Unlock()
		return
	}
	w.lastLoad = time.Now()
	handlers := make([]ReloadHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous configuration",
			zap.String("path", w.path), zap.Error(err))
		return
	}

	for _, h := range handlers {
		if err := h(cfg); err != nil {
			w.logger.Error("Config reload handler failed", zap.Error(err))
		}
	}
	w.logger.Info("Configuration reloaded", zap.String("path", w.path))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	return w.fsw.Close()
}
