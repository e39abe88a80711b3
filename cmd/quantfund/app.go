package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/quantfund/internal/config"
	"github.com/sawpanic/quantfund/internal/engine"
	"github.com/sawpanic/quantfund/internal/feed"
	"github.com/sawpanic/quantfund/internal/registry"
	"github.com/sawpanic/quantfund/internal/stream"
	"github.com/sawpanic/quantfund/internal/telemetry/latency"
	"github.com/sawpanic/quantfund/internal/telemetry/metrics"
)

// app holds the wired components shared by serve and demo
type app struct {
	config  *config.Config
	prom    *prometheus.Registry
	metrics *metrics.Registry
	hub     *stream.Hub
	engine  *engine.Engine
}

func buildApp(cfg *config.Config) (*app, error) {
	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewRegistry(prom)

	regConfig := registry.Config{
		Metrics:    cfg.Metrics,
		Confidence: cfg.Confidence,
	}
	if cfg.Seed != 0 {
		regConfig.Rand = registry.SeededRand(cfg.Seed)
	}
	reg := registry.New(regConfig)
	hub := stream.NewHub(cfg.Publisher)

	opts := []engine.Option{
		engine.WithMetrics(m),
		engine.WithLatency(latency.NewTracker(512)),
	}
	if cfg.Feed.Enabled {
		opts = append(opts, engine.WithSource(feed.NewRandomWalk(cfg.Feed)))
	}
	e, err := engine.New(cfg.Engine, reg, hub, opts...)
	if err != nil {
		return nil, err
	}

	for _, s := range cfg.Strategies {
		var ropts []registry.RegisterOption
		if s.Owner != "" {
			ropts = append(ropts, registry.WithOwner(s.Owner))
		}
		if s.Status != "" {
			ropts = append(ropts, registry.WithStatus(s.Status))
		}
		if _, err := e.Register(s.ID, s.Name, ropts...); err != nil {
			return nil, fmt.Errorf("seed strategy %s: %w", s.ID, err)
		}
	}
	log.Info().Int("strategies", len(cfg.Strategies)).Bool("feed", cfg.Feed.Enabled).Msg("Engine configured")

	return &app{config: cfg, prom: prom, metrics: m, hub: hub, engine: e}, nil
}
