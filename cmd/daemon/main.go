// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mesaops/mesad/internal/api"
	"github.com/mesaops/mesad/internal/cache"
	"github.com/mesaops/mesad/internal/config"
	"github.com/mesaops/mesad/internal/diag"
	"github.com/mesaops/mesad/internal/domain/session/manager"
	"github.com/mesaops/mesad/internal/eventbus"
	"github.com/mesaops/mesad/internal/log"
	"github.com/mesaops/mesad/internal/ratelimit"
	"github.com/mesaops/mesad/internal/telemetry"
	"github.com/mesaops/mesad/internal/token"
	"github.com/mesaops/mesad/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the real config is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "mesad",
		Version: version.Version,
	})

	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	var logOutput io.Writer = os.Stdout
	if cfg.Log.Output == "stderr" {
		logOutput = os.Stderr
	}
	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Output:  logOutput,
		Service: "mesad",
		Version: cfg.Version,
	})

	if *configPath != "" {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Server.Listen).
		Msg("starting mesad")

	if err := run(ctx, cfg, loader, *configPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("daemon failed")
	}

	logger.Info().Msg("server exiting")
}

func run(ctx context.Context, cfg config.AppConfig, loader *config.Loader, configPath string, logger zerolog.Logger) error {
	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	store, err := token.OpenStore(cfg.Tokens.Backend, cfg.Tokens.Path)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info().Str("backend", cfg.Tokens.Backend).Msg("token store opened")

	var validateCache cache.Cache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rc.Close() }()
		validateCache = rc
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis validation cache enabled")
	} else {
		mc := cache.NewMemory(time.Minute)
		defer mc.Stop()
		validateCache = mc
	}

	bus := eventbus.New()
	sessions := manager.New(bus, manager.Config{
		Duration:  cfg.Sessions.Duration,
		Extension: cfg.Sessions.Extension,
		Location:  cfg.Sessions.Location(),
	})
	tokens := token.NewService(store, token.WithCache(validateCache))

	var scanLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limits := ratelimit.DefaultConfig()
		limits.GlobalRate = rate.Limit(cfg.RateLimit.GlobalRate)
		limits.GlobalBurst = cfg.RateLimit.GlobalBurst
		limits.PerIPRate = rate.Limit(cfg.RateLimit.PerIPRate)
		limits.PerIPBurst = cfg.RateLimit.PerIPBurst
		scanLimiter = ratelimit.New(limits)
	}

	server := api.NewServer(cfg, api.Deps{
		Bus:      bus,
		Sessions: sessions,
		Tokens:   tokens,
		Limiter:  scanLimiter,
		Exporter: diag.NewExporter(bus, cfg.Export.Dir),
	})

	// WriteTimeout stays 0: it would cut long-lived SSE streams. Slow-client
	// protection comes from ReadTimeout and the per-connection event queue.
	httpServer := &http.Server{
		Addr:        cfg.Server.Listen,
		Handler:     server.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	holder := config.NewHolder(cfg, loader, configPath)
	defer holder.Stop()
	if err := holder.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}

	sweeper := &manager.Sweeper{
		Mgr: sessions,
		Conf: manager.SweeperConfig{
			Interval:  cfg.Sessions.SweepInterval,
			Retention: cfg.Sessions.Retention,
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Listen).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
