package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize config watcher")

// Watcher reloads the config file whenever it is written and publishes the
// result. Invalid edits are logged and skipped.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	updates chan *Config
	stop    chan struct{}
	logger  *zap.Logger
}

// NewWatcher watches the directory holding path. Editors often replace the
// file instead of writing in place, so the file itself is not watched.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		path:    filepath.Clean(path),
		watcher: w,
		updates: make(chan *Config, 1),
		stop:    make(chan struct{}),
		logger:  logger,
	}, nil
}

// Start processes filesystem events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Updates delivers each successfully reloaded config.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Stop releases the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadWithFile(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid config change", zap.String("path", w.path), zap.Error(err))
		return
	}
	// Keep only the newest config when the consumer lags.
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- cfg:
	default:
	}
}
