// Command viewcache serves storefront filter listings through a
// time-bounded response cache.
//
// Usage:
//
//	viewcache -config /etc/viewcache/viewcache.conf
//	viewcache -backend sqlite -listen :9000
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jonwraymond/viewcache/config"
	"github.com/jonwraymond/viewcache/observe"
)

var (
	configFlag  string
	listenFlag  string
	backendFlag string

	// set at build time
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "INI config file (defaults apply when empty)")
	flag.StringVar(&listenFlag, "listen", "", "Address to listen on (overrides [server] listen)")
	flag.StringVar(&backendFlag, "backend", "", "Cache backend: memory, memcache or sqlite (overrides [cache] backend)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("viewcache stopped")
		stop()
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFlag != "" {
		loaded, err := config.Load(configFlag)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if listenFlag != "" {
		cfg.Server.Listen = listenFlag
	}
	if backendFlag != "" {
		cfg.Cache.Backend = backendFlag
	}
	if cfg.Observe.Version == "" {
		cfg.Observe.Version = version
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return err
	}
	logger := obs.Logger()

	a, err := newApp(ctx, cfg, obs)
	if err != nil {
		_ = obs.Shutdown(context.Background())
		return err
	}

	srv := &http.Server{Addr: cfg.Server.Listen, Handler: a.handler}
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening",
			observe.Field{Key: "addr", Value: cfg.Server.Listen},
			observe.Field{Key: "backend", Value: cfg.Cache.Backend},
		)
		errc <- srv.ListenAndServe()
	}()

	a.start()

	select {
	case err = <-errc:
	case <-ctx.Done():
		logger.Info(ctx, "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if oerr := obs.Shutdown(shutdownCtx); oerr != nil && err == nil {
		err = oerr
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}
