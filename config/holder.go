package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder hands out the current configuration and swaps it atomically on
// reload. Only the concerns the ledger and logger consult per request take
// effect live: the plan catalog and the logging level. Server address,
// upstream credentials and the database DSN are read once at startup and
// need a restart.
type Holder struct {
	path string
	log  zerolog.Logger
	cfg  atomic.Pointer[Config]

	mu       sync.Mutex
	onChange []func(*Config)
	onError  []func(error)

	watcher  *fsnotify.Watcher
	sigCh    chan os.Signal
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the initial configuration from path.
func NewHolder(path string, log zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		path:   abs,
		log:    log,
		stopCh: make(chan struct{}),
	}
	h.cfg.Store(cfg)
	return h, nil
}

// Get returns the current configuration. The pointer is swapped whole on
// reload; callers must not mutate it.
func (h *Holder) Get() *Config {
	return h.cfg.Load()
}

// Reload re-reads the file. A failed load keeps the running configuration
// and reports through the error hooks.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.log.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping running config")
		h.notifyError(err)
		return fmt.Errorf("reload config: %w", err)
	}

	prev := h.cfg.Swap(next)
	h.logLiveChanges(prev, next)
	h.notifyChange(next)
	return nil
}

// OnChange registers a callback invoked after each successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers a callback invoked when a reload fails.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// Watch reloads on SIGHUP and whenever the config file is rewritten. The
// parent directory is watched because editors and configmap mounts replace
// the file rather than writing it in place.
func (h *Holder) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(h.path), err)
	}
	h.watcher = w

	h.sigCh = make(chan os.Signal, 1)
	signal.Notify(h.sigCh, syscall.SIGHUP)

	go h.loop()

	h.log.Info().Str("path", h.path).Msg("watching configuration for changes")
	return nil
}

// Stop ends watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.sigCh != nil {
			signal.Stop(h.sigCh)
		}
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) loop() {
	base := filepath.Base(h.path)

	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			// Write is an in-place edit, Create an atomic replace.
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.log.Debug().Str("op", ev.Op.String()).Msg("config file changed")
			h.Reload()

		case <-h.sigCh:
			h.log.Info().Msg("SIGHUP received, reloading configuration")
			h.Reload()

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.log.Error().Err(err).Msg("config watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) notifyChange(cfg *Config) {
	h.mu.Lock()
	fns := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
}

func (h *Holder) notifyError(err error) {
	h.mu.Lock()
	fns := append([]func(error){}, h.onError...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// logLiveChanges reports what a reload changed for the concerns that apply
// live: per-plan limits and the logging level.
func (h *Holder) logLiveChanges(prev, next *Config) {
	if prev == nil {
		return
	}

	if prev.Logging.Level != next.Logging.Level {
		h.log.Info().
			Str("from", prev.Logging.Level).
			Str("to", next.Logging.Level).
			Msg("log level changed")
	}

	before, after := prev.Limits(), next.Limits()
	for name, limits := range after {
		old, ok := before[name]
		if !ok {
			h.log.Info().Str("plan", name).Msg("plan added")
			continue
		}
		if old != limits {
			h.log.Info().
				Str("plan", name).
				Int64("monthly_credits", limits.MonthlyCredits).
				Int("requests_per_minute", limits.RequestsPerMinute).
				Int64("tokens_per_minute", limits.TokensPerMinute).
				Msg("plan limits changed")
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			h.log.Info().Str("plan", name).Msg("plan removed")
		}
	}
}
