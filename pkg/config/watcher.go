package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"octrecon/pkg/logging"
	"octrecon/pkg/reconstruction"
)

// DefaultDebounce is the quiet period after the last write before a changed
// file is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// ParamsWatcher reloads the recon section of a configuration file whenever
// the file is written and hands valid parameters to a callback. Invalid
// files are logged and ignored.
type ParamsWatcher struct {
	path     string
	apply    func(reconstruction.Params)
	debounce time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer

	ready chan struct{}
}

// NewParamsWatcher creates a watcher for path calling apply on every valid
// change.
func NewParamsWatcher(path string, apply func(reconstruction.Params)) *ParamsWatcher {
	return &ParamsWatcher{
		path:     filepath.Clean(path),
		apply:    apply,
		debounce: DefaultDebounce,
		log:      logging.Component("params-watcher"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the watcher is registered.
func (w *ParamsWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the directory of the file until ctx is done. Watching the
// directory keeps working when editors replace the file instead of writing
// it in place.
func (w *ParamsWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("params watcher: failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("params watcher: failed to watch %s: %w", dir, err)
	}
	close(w.ready)
	w.log.Info().Str("path", w.path).Msg("watching reconstruction parameters")

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *ParamsWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *ParamsWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *ParamsWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("ignoring unreadable parameters")
		return
	}
	if err := cfg.Recon.Validate(); err != nil {
		w.log.Warn().Err(err).Msg("ignoring invalid parameters")
		return
	}
	w.log.Info().
		Int("imageDepth", cfg.Recon.ImageDepth).
		Int("nSplits", cfg.Recon.NSplits).
		Float64("contrast", cfg.Recon.Contrast).
		Float64("brightness", cfg.Recon.Brightness).
		Msg("reconstruction parameters reloaded")
	w.apply(cfg.Recon)
}
