// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from the YAML file and APIGEN_ environment variables;
// models come from the built-in definitions and models.dir.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/adapters/hasher"
	apihttp "github.com/artpar/apigen/adapters/http"
	"github.com/artpar/apigen/adapters/idgen"
	"github.com/artpar/apigen/adapters/metrics"
	tlsprovider "github.com/artpar/apigen/adapters/tls"
	"github.com/artpar/apigen/config"
	"github.com/artpar/apigen/core/builtin"
	channel "github.com/artpar/apigen/core/channel/http"
	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/openapi"
	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	Adapter    storage.Adapter
	Registry   *registry.Registry
	Channel    *channel.Channel
	Metrics    *metrics.Collector
	OpenAPI    *openapi.Service
	Handler    http.Handler
	HTTPServer *http.Server

	// PlainServer answers ACME challenges and redirects to HTTPS when
	// TLS is enabled with server.tls.http_addr.
	PlainServer *http.Server

	logOut    *logOutput
	connected bool
	hotReload bool
}

// Config provides optional configuration for application initialization.
type Config struct {
	// ConfigPath is the YAML file. Empty reads apigen.yaml if present.
	ConfigPath string

	// HotReload watches the config file and listens for SIGHUP.
	HotReload bool

	// Drop empties the database after connecting. Development only.
	Drop bool

	// Offline builds the registry against in-memory storage without
	// connecting to the configured database. Routes keep the configured
	// adapter's id pattern. Used by CLI inspection commands.
	Offline bool

	// Initializers add logic to models by name. For User and AccessToken
	// they run after the built-in initializer.
	Initializers map[string]model.Initializer

	// Tokens replaces the AccessToken model as the token lookup.
	Tokens channel.TokenLookup

	// Registry receives metrics. Defaults to the prometheus default
	// registry.
	Registry *prometheus.Registry

	Clock     ports.Clock
	Hasher    ports.Hasher
	LogOutput io.Writer
	Version   string
}

// New creates and initializes the application with default options.
func New() (*App, error) {
	return NewWithConfig(context.Background(), Config{})
}

// NewWithConfig creates and initializes the application.
func NewWithConfig(ctx context.Context, cfg Config) (*App, error) {
	holder, err := config.NewHolder(cfg.ConfigPath, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	c := holder.Get()

	logger, out := newLogger(cfg.LogOutput, c.Logging)
	holder.SetLogger(logger)

	a := &App{
		Logger:    logger,
		Config:    holder,
		logOut:    out,
		hotReload: cfg.HotReload,
	}

	logger.Info().
		Str("adapter", c.Database.Adapter).
		Str("config", holder.Path()).
		Msg("initializing apigen")

	if c.Metrics.Enabled {
		a.Metrics = newCollector(cfg.Registry)
		logger.Info().Msg("prometheus metrics enabled")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	if err := a.initAdapter(ctx, c, clk, cfg); err != nil {
		return nil, err
	}

	if err := a.initModels(ctx, c, clk, cfg); err != nil {
		a.closeAdapter()
		return nil, err
	}

	if err := a.initHTTP(c, cfg); err != nil {
		a.closeAdapter()
		return nil, err
	}
	a.hookReload()

	return a, nil
}

func newCollector(reg *prometheus.Registry) *metrics.Collector {
	if reg == nil {
		return metrics.New()
	}
	return metrics.NewWithRegistry(reg)
}

func (a *App) initAdapter(ctx context.Context, c *config.Config, clk ports.Clock, cfg Config) error {
	adapter, err := NewAdapter(c.Database, clk)
	if err != nil {
		return err
	}
	if cfg.Offline {
		adapter = offline(adapter, clk)
	}
	a.Adapter = adapter

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", adapter.Name(), err)
	}
	a.connected = true
	a.Logger.Info().Str("adapter", adapter.Name()).Msg("storage connected")

	if cfg.Drop {
		if err := adapter.DropDatabase(ctx); err != nil {
			a.closeAdapter()
			return fmt.Errorf("drop database: %w", err)
		}
		a.Logger.Warn().Str("adapter", adapter.Name()).Msg("database dropped")
	}
	return nil
}

func (a *App) initModels(ctx context.Context, c *config.Config, clk ports.Clock, cfg Config) error {
	defs, err := Definitions(c, a.Logger)
	if err != nil {
		return err
	}

	inits := cfg.Initializers
	if !c.Models.DisableDefaults {
		h := cfg.Hasher
		if h == nil {
			h = hasher.NewBcrypt(c.Auth.BcryptCost)
		}
		inits = mergeInitializers(builtin.Initializers(builtin.Deps{
			Hasher:   h,
			Clock:    clk,
			TokenTTL: c.Auth.TokenTTL,
		}), cfg.Initializers)
	}

	opts := RegistryOptions{
		Logger:       a.Logger,
		IDs:          idgen.UUID{},
		Initializers: inits,
	}
	if a.Metrics != nil {
		opts.Recorder = a.Metrics
	}

	reg, err := BuildRegistry(ctx, a.Adapter, defs, opts)
	if err != nil {
		return fmt.Errorf("build models: %w", err)
	}
	a.Registry = reg

	a.Logger.Info().Int("models", reg.Len()).Msg("models built")
	return nil
}

func (a *App) initHTTP(c *config.Config, cfg Config) error {
	opts := channel.Options{
		Tokens: cfg.Tokens,
		Errors: channel.NewErrorResponder(a.Logger, func() bool {
			return a.Config.Get().Errors.LogErrors()
		}),
		Logger: a.Logger,
	}
	if opts.Tokens == nil {
		if tokens, ok := a.Registry.Get(builtin.AccessTokenModel); ok {
			opts.Tokens = builtin.NewTokens(tokens)
		}
	}
	if a.Metrics != nil {
		opts.Auth = a.Metrics
	}
	a.Channel = channel.New(a.Registry, opts)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	a.OpenAPI = openapi.NewService(openapi.ServiceConfig{
		Registry: a.Registry,
		Info:     openapi.Info{Title: "apigen", Version: version},
		Logger:   a.Logger,
	})

	routerCfg := apihttp.RouterConfig{
		API:           a.Channel.Handler(),
		Metrics:       a.Metrics,
		MetricsPath:   c.Metrics.Path,
		OpenAPI:       a.OpenAPI,
		EnableSwagger: c.OpenAPI.Enabled,
		Timeout:       c.Server.RequestTimeout,
		Version:       version,
	}
	if a.Metrics != nil && cfg.Registry != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}
	a.Handler = apihttp.NewRouter(a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         c.Server.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
	}

	if !c.Server.TLS.Enabled {
		return nil
	}
	t := c.Server.TLS
	provider, err := tlsprovider.New(tlsprovider.Config{
		CertFile: t.CertFile,
		KeyFile:  t.KeyFile,
		Domains:  t.Domains,
		Email:    t.Email,
		CacheDir: t.CacheDir,
		Staging:  t.Staging,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.HTTPServer.TLSConfig = provider.TLSConfig()
	if t.HTTPAddr != "" {
		a.PlainServer = &http.Server{
			Addr:              t.HTTPAddr,
			Handler:           provider.HTTPHandler(nil),
			ReadHeaderTimeout: c.Server.ReadTimeout,
		}
	}
	return nil
}

// hookReload applies reloadable settings when the config changes.
func (a *App) hookReload() {
	a.Config.OnChange(func(c *config.Config) {
		applyLogging(a.logOut, c.Logging)
	})
	if a.Metrics != nil {
		a.Config.OnReload(a.Metrics.ObserveReload)
	}
}

// Run starts the server and blocks until SIGINT/SIGTERM or a server
// error, then shuts down.
func (a *App) Run() error {
	if a.hotReload {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.Config.WatchSignals()
	}

	errCh := make(chan error, 2)
	go func() {
		tls := a.HTTPServer.TLSConfig != nil
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Bool("tls", tls).
			Msg("starting http server")
		var err error
		if tls {
			err = a.HTTPServer.ListenAndServeTLS("", "")
		} else {
			err = a.HTTPServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if a.PlainServer != nil {
		go func() {
			a.Logger.Info().Str("addr", a.PlainServer.Addr).Msg("starting plain http listener")
			if err := a.PlainServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := 10 * time.Second
	if a.Config != nil {
		if t := a.Config.Get().Server.ShutdownTimeout; t > 0 {
			timeout = t
		}
		a.Config.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if a.PlainServer != nil {
		if err := a.PlainServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			errs = append(errs, err)
		}
	}

	if err := a.closeAdapterCtx(ctx); err != nil {
		errs = append(errs, err)
	}

	a.Logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAdapter() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.closeAdapterCtx(ctx)
}

func (a *App) closeAdapterCtx(ctx context.Context) error {
	if a.Adapter == nil || !a.connected {
		return nil
	}
	a.connected = false
	if err := a.Adapter.Close(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("storage close error")
		return fmt.Errorf("close %s: %w", a.Adapter.Name(), err)
	}
	return nil
}
