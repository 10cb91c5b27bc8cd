// Package watcher reloads the configuration file when it changes on disk,
// so threshold and priority tuning takes effect without a restart.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lumehart/cadenza/internal/config"
	"github.com/lumehart/cadenza/internal/event"
)

// ReloadFunc receives the freshly-loaded configuration.
type ReloadFunc func(*config.Config)

// Service watches the config file and invokes reload callbacks after a
// debounce window. Editors typically replace files via rename, so the
// parent directory is watched and events are filtered by name.
type Service struct {
	path     string
	onReload []ReloadFunc
	eventBus *event.Bus
	logger   *slog.Logger
	debounce time.Duration
}

// NewService creates a config file watcher.
func NewService(path string, eventBus *event.Bus, logger *slog.Logger, onReload ...ReloadFunc) *Service {
	return &Service{
		path:     filepath.Clean(path),
		onReload: onReload,
		eventBus: eventBus,
		logger:   logger.With("component", "config-watcher"),
		debounce: 500 * time.Millisecond,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Start blocks until ctx is canceled. A watcher setup failure is logged
// and the service degrades to no hot reload.
func (s *Service) Start(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, config hot reload disabled", "error", err)
		<-ctx.Done()
		return
	}
	defer w.Close() //nolint:errcheck

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		s.logger.Warn("cannot watch config directory, hot reload disabled",
			"dir", dir, "error", err)
		<-ctx.Done()
		return
	}

	s.logger.Info("watching config file", "path", s.path)

	// Debounce timer coalesces the write+rename bursts editors produce.
	// Starts stopped; reset on each relevant event.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	reloadPending := false

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("config watcher stopping")
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !s.relevant(ev) {
				continue
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(s.debounce)
			reloadPending = true

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-debounceTimer.C:
			if reloadPending {
				reloadPending = false
				s.reload()
			}
		}
	}
}

func (s *Service) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != s.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (s *Service) reload() {
	cfg, err := config.Load(s.path)
	if err != nil {
		s.logger.Error("config reload failed, keeping previous configuration",
			"path", s.path, "error", err)
		return
	}

	s.logger.Info("config reloaded", "path", s.path)
	for _, fn := range s.onReload {
		fn(cfg)
	}
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: event.ConfigReloaded,
			Data: map[string]any{"path": s.path},
		})
	}
}
