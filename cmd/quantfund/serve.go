package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/quantfund/internal/cache"
	httpapi "github.com/sawpanic/quantfund/internal/interfaces/http"
	"github.com/sawpanic/quantfund/internal/net/ratelimit"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineErr := make(chan error, 1)
	go func() { engineErr <- a.engine.Run(ctx) }()

	var sink *cache.RedisSink
	sinkDone := make(chan struct{})
	if cfg.Redis.Enabled {
		sink = cache.NewRedisSink(cfg.Redis, a.metrics)
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Redis.WriteTimeout)
		if err := sink.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, mirror will retry per snapshot")
		}
		pingCancel()
		go func() {
			defer close(sinkDone)
			_ = sink.Run(ctx, a.engine.Subscribe(ctx))
		}()
	} else {
		close(sinkDone)
	}

	var server *httpapi.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		opts := []httpapi.Option{httpapi.WithGatherer(a.prom), httpapi.WithVersion(version)}
		if cfg.RateLimit.Enabled {
			limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
			go limiter.Run(ctx, cfg.RateLimit.IdleTTL)
			opts = append(opts, httpapi.WithLimiter(limiter))
		}
		server = httpapi.NewServer(cfg.HTTP, a.engine, opts...)
		go func() {
			addr := cfg.HTTP.Addr()
			log.Info().
				Str("health", fmt.Sprintf("http://%s/health", addr)).
				Str("snapshot", fmt.Sprintf("http://%s/snapshot", addr)).
				Str("stream", fmt.Sprintf("ws://%s/stream", addr)).
				Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
				Msg("API endpoints available")
			if err := server.Start(); err != nil {
				serverErr <- err
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case err := <-engineErr:
		engineErr <- err
		runErr = fmt.Errorf("engine stopped: %w", err)
	}

	// Graceful shutdown
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		shutdownCancel()
	}

	cancel()
	select {
	case err := <-engineErr:
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = err
		}
	case <-time.After(2 * cfg.Engine.TickInterval):
		log.Warn().Msg("Engine did not stop within two tick periods")
	}
	<-sinkDone
	a.hub.Close()
	if sink != nil {
		_ = sink.Close()
	}

	stats := a.engine.Stats()
	log.Info().
		Uint64("accepted", stats.Accepted).
		Float64("rejection_rate", stats.RejectionRate).
		Msg("Shutdown complete")
	return runErr
}
