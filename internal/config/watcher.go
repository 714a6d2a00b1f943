package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file for changes and validates new configs.
type Watcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	// Path to watch
	configPath string

	// Raw bytes of the last successfully loaded file
	lastData []byte

	// Current valid config
	currentConfig *Config

	// Callbacks
	onReloadCallback func(newConfig *Config)
	onErrorCallback  func(err error)

	watcher *fsnotify.Watcher
	doneCh  chan struct{}

	running bool
}

// NewWatcher creates a new Watcher for the config file at path.
// If path is empty, the default config path is used.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = ConfigPath()
	}

	return &Watcher{
		logger:     logger,
		configPath: path,
	}
}

// SetReloadCallback sets the callback to invoke when config is successfully reloaded.
func (w *Watcher) SetReloadCallback(callback func(newConfig *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReloadCallback = callback
}

// SetErrorCallback sets the callback to invoke when config reload fails validation.
func (w *Watcher) SetErrorCallback(callback func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onErrorCallback = callback
}

// Start begins watching the config file for changes.
func (w *Watcher) Start(ctx context.Context, initialConfig *Config) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}

	// Watch the directory containing the file (more reliable for editors that replace files)
	dir := filepath.Dir(w.configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return err
	}
	if err := fsw.Add(dir); err != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return err
	}

	w.running = true
	w.watcher = fsw
	w.currentConfig = initialConfig
	if data, err := os.ReadFile(w.configPath); err == nil {
		w.lastData = data
	}
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.watch(ctx)

	w.logger.Debug("config watcher started", "path", w.configPath)
	return nil
}

// Stop stops watching the config file.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw := w.watcher
	doneCh := w.doneCh
	w.mu.Unlock()

	_ = fsw.Close()
	<-doneCh
	w.logger.Debug("config watcher stopped")
}

// GetCurrentConfig returns the current valid configuration.
func (w *Watcher) GetCurrentConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentConfig
}

// Path returns the watched config file path.
func (w *Watcher) Path() string {
	return w.configPath
}

// watch is the main watch loop.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	filename := filepath.Base(w.configPath)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only care about our file
			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.checkForChanges()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// checkForChanges reloads the config file if its contents changed.
func (w *Watcher) checkForChanges() {
	w.mu.RLock()
	reloadCallback := w.onReloadCallback
	errorCallback := w.onErrorCallback
	lastData := w.lastData
	w.mu.RUnlock()

	data, err := os.ReadFile(w.configPath)
	if err != nil {
		// File might have been moved away mid-save
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("failed to read config file", "path", w.configPath, "error", err)
		}
		return
	}

	// Truncated mid-save, or nothing new
	if len(data) == 0 || bytes.Equal(data, lastData) {
		return
	}

	w.mu.Lock()
	w.lastData = data
	w.mu.Unlock()

	w.logger.Debug("config file changed", "path", w.configPath)

	newConfig, err := Parse(data)
	if err != nil {
		w.logger.Warn("config file changed but validation failed", "error", err)
		if errorCallback != nil {
			errorCallback(err)
		}
		return
	}

	w.mu.Lock()
	w.currentConfig = newConfig
	w.mu.Unlock()

	w.logger.Info("config reloaded successfully")
	if reloadCallback != nil {
		reloadCallback(newConfig)
	}
}
