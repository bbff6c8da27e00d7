package config

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string // file actually read; "" when loaded from ENV + defaults
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onReload []func(error, time.Time)
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, used, err := load(path)
	if err != nil {
		return nil, err
	}

	if used != "" {
		if used, err = filepath.Abs(used); err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
	}

	return &Holder{
		config: cfg,
		path:   used,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}, nil
}

// SetLogger replaces the logger. Call it before watching starts; the
// process logger is built from the config the holder loaded.
func (h *Holder) SetLogger(logger zerolog.Logger) {
	h.logger = logger
}

// Path returns the absolute path of the loaded file, or "".
func (h *Holder) Path() string {
	return h.path
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, _, err := load(h.path)
	h.notifyReload(err)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := append(([]func(*Config))(nil), h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)

	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnReload registers a callback invoked after every reload attempt with
// its outcome.
func (h *Holder) OnReload(fn func(err error, at time.Time)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReload = append(h.onReload, fn)
}

func (h *Holder) notifyReload(err error) {
	h.mu.RLock()
	fns := append(([]func(error, time.Time))(nil), h.onReload...)
	h.mu.RUnlock()

	at := h.now()
	for _, fn := range fns {
		fn(err, at)
	}
}

// WatchFile starts watching the config file for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	if h.path == "" {
		return errors.New("watch config: no config file was loaded")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory (more reliable for editors that do atomic saves)
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop(watcher)

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals. Safe to call twice.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop(watcher *fsnotify.Watcher) {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}

			// atomic save = create
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("config file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Logging.Format != new.Logging.Format {
		h.logger.Info().
			Str("old", old.Logging.Format).
			Str("new", new.Logging.Format).
			Msg("log format changed")
	}

	if old.Errors.LogErrors() != new.Errors.LogErrors() {
		h.logger.Info().
			Bool("old", old.Errors.LogErrors()).
			Bool("new", new.Errors.LogErrors()).
			Msg("error logging changed")
	}

	if changed := ChangedRestartFields(old, new); len(changed) > 0 {
		h.logger.Warn().
			Strs("fields", changed).
			Msg("changes to these fields take effect after restart")
	}
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"logging.level",
		"logging.format",
		"errors.environment",
		"errors.suppress_dev_errors",
	}
}

// restartFields are the settings only read at startup.
var restartFields = []struct {
	name   string
	differ func(old, new *Config) bool
}{
	{"server.host", func(o, n *Config) bool { return o.Server.Host != n.Server.Host }},
	{"server.port", func(o, n *Config) bool { return o.Server.Port != n.Server.Port }},
	{"server.tls", func(o, n *Config) bool { return !o.Server.TLS.equal(n.Server.TLS) }},
	{"database.adapter", func(o, n *Config) bool { return o.Database.Adapter != n.Database.Adapter }},
	{"database.uri", func(o, n *Config) bool { return o.Database.MongoURI() != n.Database.MongoURI() }},
	{"database.dsn", func(o, n *Config) bool { return o.Database.DSN != n.Database.DSN }},
	{"models.dir", func(o, n *Config) bool { return o.Models.Dir != n.Models.Dir }},
	{"metrics.enabled", func(o, n *Config) bool { return o.Metrics.Enabled != n.Metrics.Enabled }},
	{"openapi.enabled", func(o, n *Config) bool { return o.OpenAPI.Enabled != n.OpenAPI.Enabled }},
	{"auth.token_ttl", func(o, n *Config) bool { return o.Auth.TokenTTL != n.Auth.TokenTTL }},
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	names := make([]string, len(restartFields))
	for i, f := range restartFields {
		names[i] = f.name
	}
	return names
}

// ChangedRestartFields lists the non-reloadable fields that differ.
func ChangedRestartFields(old, new *Config) []string {
	var changed []string
	for _, f := range restartFields {
		if f.differ(old, new) {
			changed = append(changed, f.name)
		}
	}
	return changed
}
