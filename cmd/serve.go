package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/spotstats/internal/metrics"
	"github.com/desertthunder/spotstats/internal/repositories"
	"github.com/desertthunder/spotstats/internal/server"
	"github.com/desertthunder/spotstats/internal/services"
	"github.com/desertthunder/spotstats/internal/shared"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// serveConfig loads the config and applies the serve flags on top.
func (r *Runner) serveConfig(cmd *cli.Command) (*shared.Config, error) {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		config.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		config.Server.Port = cmd.Int("port")
	}
	if cmd.IsSet("log-level") {
		config.Server.LogLevel = cmd.String("log-level")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Serve starts the HTTP server and blocks until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.serveConfig(cmd)
	if err != nil {
		return err
	}
	shared.SetLogLevel(r.logger, config.Server.LogLevel)

	store, closeStore, err := repositories.NewTokenStore(config)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			r.logger.Warn("failed to close session store", "error", err)
		}
	}()

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, services.WithTimeout(config.Server.Timeout()))
	if err != nil {
		return err
	}

	metrics.RegisterCollectors(r.registry)
	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.New(server.Deps{
		Config:   config,
		Service:  spotify,
		Store:    store,
		Gatherer: r.registry,
		Logger:   shared.WithLogger(r.logger, "component", "server"),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting spotstats",
		"addr", config.Server.Addr(),
		"redirect_uri", config.Credentials.Spotify.RedirectURI,
		"store", config.Session.Store,
	)
	return srv.Run(ctx)
}
