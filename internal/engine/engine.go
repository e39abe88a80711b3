// Package engine runs the tick loop: per-strategy updates on a bounded worker
// pool, then a full leaderboard recomputation and snapshot fan-out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/leaderboard"
	"github.com/sawpanic/quantfund/internal/ops"
	"github.com/sawpanic/quantfund/internal/registry"
	"github.com/sawpanic/quantfund/internal/report/perf"
	"github.com/sawpanic/quantfund/internal/scheduler"
	"github.com/sawpanic/quantfund/internal/stream"
	"github.com/sawpanic/quantfund/internal/telemetry/latency"
	"github.com/sawpanic/quantfund/internal/telemetry/metrics"
)

// Source produces one value per strategy per tick
type Source interface {
	Sample(ctx context.Context, strategyID string, at time.Time) (float64, error)
}

// Forgetter is implemented by sources that keep per-strategy state
type Forgetter interface {
	Forget(strategyID string)
}

// Config holds engine settings
type Config struct {
	TickInterval    time.Duration    `yaml:"tick_interval"`
	Workers         int              `yaml:"workers"`
	LeaderboardMode leaderboard.Mode `yaml:"leaderboard_mode"`
}

// DefaultConfig ticks every two seconds and ranks by participant
func DefaultConfig() Config {
	return Config{
		TickInterval:    2 * time.Second,
		Workers:         runtime.NumCPU(),
		LeaderboardMode: leaderboard.ModeParticipant,
	}
}

// Validate checks the engine settings
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, err := leaderboard.ParseMode(string(c.LeaderboardMode)); err != nil {
		return err
	}
	return nil
}

// Option customizes an Engine
type Option func(*Engine)

// WithSource samples src for every strategy on each tick
func WithSource(src Source) Option { return func(e *Engine) { e.source = src } }

// WithMetrics exports engine signals to Prometheus
func WithMetrics(m *metrics.Registry) Option { return func(e *Engine) { e.metrics = m } }

// WithLatency records per-stage cycle latency
func WithLatency(t *latency.Tracker) Option { return func(e *Engine) { e.latency = t } }

// WithNow replaces the time source used for on-demand snapshots and the clock
func WithNow(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine owns the clock, the registry and the publisher
type Engine struct {
	config   Config
	registry *registry.Registry
	ranker   *leaderboard.Ranker
	hub      *stream.Hub
	clock    *scheduler.SampleClock
	source   Source
	metrics  *metrics.Registry
	latency  *latency.Tracker
	counters *ops.Counters
	now      func() time.Time

	sem      chan struct{}
	inflight sync.WaitGroup
	seq      atomic.Uint64
	running  atomic.Bool
}

// New wires an engine around reg and hub
func New(config Config, reg *registry.Registry, hub *stream.Hub, opts ...Option) (*Engine, error) {
	if config.LeaderboardMode == "" {
		config.LeaderboardMode = leaderboard.ModeParticipant
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		config:   config,
		registry: reg,
		ranker:   leaderboard.NewRanker(config.LeaderboardMode),
		hub:      hub,
		counters: ops.NewCounters(),
		now:      time.Now,
		sem:      make(chan struct{}, config.Workers),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.latency == nil {
		e.latency = latency.NewTracker(512)
	}
	e.clock = scheduler.NewSampleClock(
		scheduler.WithNow(e.now),
		scheduler.WithDropHandler(func(t scheduler.Tick) {
			e.counters.Inc(ops.ReasonTickDropped)
			e.metrics.RecordTickDropped()
			log.Debug().Uint64("tick", t.Seq).Msg("Tick dropped, engine busy")
		}),
	)
	return e, nil
}

// Run drives the tick loop until ctx is cancelled. Updates already in flight
// are allowed to finish before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer e.running.Store(false)

	ticks, err := e.clock.Start(e.config.TickInterval)
	if err != nil {
		return fmt.Errorf("start clock: %w", err)
	}
	defer func() {
		e.clock.Stop()
		e.inflight.Wait()
	}()

	log.Info().
		Dur("tick_interval", e.config.TickInterval).
		Int("workers", e.config.Workers).
		Str("leaderboard_mode", string(e.config.LeaderboardMode)).
		Msg("Engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Engine stopping")
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			e.Cycle(ctx, tick)
		}
	}
}

// Cycle runs one update stage and one ranking cycle for tick and returns the
// published snapshot
func (e *Engine) Cycle(ctx context.Context, tick scheduler.Tick) *domain.Snapshot {
	start := time.Now()

	e.updateStage(ctx, tick)
	e.latency.Since(latency.StageUpdate, start)

	rankStart := time.Now()
	snap := e.buildSnapshot(tick.At, e.seq.Add(1))
	e.latency.Since(latency.StageRank, rankStart)

	pubStart := time.Now()
	if dropped := e.hub.Publish(snap); dropped > 0 {
		for i := 0; i < dropped; i++ {
			e.counters.Inc(ops.ReasonSubscriberDrop)
			e.metrics.RecordSubscriberDrop()
		}
	}
	e.latency.Since(latency.StagePublish, pubStart)

	e.metrics.RecordCycle(time.Since(start), len(snap.Strategies), e.hub.Subscribers())
	return snap
}

// updateStage fans per-strategy updates out to the worker pool. It waits at
// most one tick period; jobs still running after that keep their strategy
// marked in flight so the next tick skips it, and discard their sample.
func (e *Engine) updateStage(ctx context.Context, tick scheduler.Tick) {
	stageCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.TickInterval)
	defer cancel()

	var wg sync.WaitGroup
	for _, h := range e.registry.Handles() {
		if !h.TryBegin() {
			e.abandon(h.ID(), ops.ReasonAbandoned)
			continue
		}
		select {
		case e.sem <- struct{}{}:
		case <-stageCtx.Done():
			h.End()
			e.abandon(h.ID(), ops.ReasonAbandoned)
			continue
		}

		wg.Add(1)
		e.inflight.Add(1)
		go func(h *registry.Handle) {
			defer func() {
				<-e.sem
				h.End()
				wg.Done()
				e.inflight.Done()
			}()
			e.updateStrategy(stageCtx, h, tick)
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stageCtx.Done():
	}
}

func (e *Engine) updateStrategy(ctx context.Context, h *registry.Handle, tick scheduler.Tick) {
	id := h.ID()
	e.metrics.SetConfidence(id, h.StepConfidence())

	if e.source == nil {
		return
	}
	value, err := e.source.Sample(ctx, id, tick.At)
	if ctx.Err() != nil {
		e.abandon(id, ops.ReasonStale)
		return
	}
	if err != nil {
		e.counters.Inc(ops.ReasonSourceError)
		e.metrics.RecordObservation(string(ops.ReasonSourceError))
		log.Debug().Err(err).Str("strategy", id).Msg("Source sample failed")
		return
	}
	_ = e.apply(h, perf.Observation{StrategyID: id, Timestamp: tick.At, Value: value})
}

func (e *Engine) abandon(id string, reason ops.Reason) {
	e.counters.Inc(reason)
	e.metrics.RecordAbandoned()
	if reason == ops.ReasonStale {
		e.metrics.RecordObservation(string(reason))
	}
	log.Debug().Str("strategy", id).Str("reason", string(reason)).Msg("Strategy update abandoned")
}

// Ingest applies an externally pushed observation. Unknown strategies and
// out-of-order or invalid observations are counted and returned as errors;
// none of them change any strategy state.
func (e *Engine) Ingest(obs perf.Observation) error {
	h, ok := e.registry.Get(obs.StrategyID)
	if !ok {
		e.counters.Inc(ops.ReasonUnknownStrategy)
		e.metrics.RecordObservation(string(ops.ReasonUnknownStrategy))
		log.Debug().Str("strategy", obs.StrategyID).Msg("Observation for unknown strategy dropped")
		return fmt.Errorf("%w: %s", registry.ErrUnknownStrategy, obs.StrategyID)
	}
	return e.apply(h, obs)
}

func (e *Engine) apply(h *registry.Handle, obs perf.Observation) error {
	applied, err := h.Observe(obs.Timestamp, obs.Value)
	switch {
	case err == nil && applied:
		e.counters.Accepted()
		e.metrics.RecordObservation("accepted")
	case err == nil:
		e.counters.Inc(ops.ReasonRemoved)
		e.metrics.RecordObservation(string(ops.ReasonRemoved))
	case errors.Is(err, perf.ErrOutOfOrder):
		e.counters.Inc(ops.ReasonOutOfOrder)
		e.metrics.RecordObservation(string(ops.ReasonOutOfOrder))
		log.Debug().Str("strategy", obs.StrategyID).Time("ts", obs.Timestamp).Msg("Out-of-order observation dropped")
	default:
		e.counters.Inc(ops.ReasonInvalid)
		e.metrics.RecordObservation(string(ops.ReasonInvalid))
		log.Debug().Err(err).Str("strategy", obs.StrategyID).Msg("Invalid observation dropped")
	}
	return err
}

func (e *Engine) buildSnapshot(asOf time.Time, seq uint64) *domain.Snapshot {
	views := e.registry.List()
	return &domain.Snapshot{
		Seq:         seq,
		AsOf:        asOf,
		Strategies:  views,
		Leaderboard: e.ranker.Rank(views),
		Fund:        perf.Summarize(views),
	}
}

// Current builds a snapshot of the present state on demand. Its Seq is that
// of the last published snapshot.
func (e *Engine) Current() *domain.Snapshot {
	return e.buildSnapshot(e.now(), e.seq.Load())
}

// Subscribe returns a push sequence of snapshots that ends with ctx
func (e *Engine) Subscribe(ctx context.Context) *stream.Subscription {
	return e.hub.Subscribe(ctx)
}

// Register starts tracking a strategy
func (e *Engine) Register(id, name string, opts ...registry.RegisterOption) (domain.StrategyView, error) {
	h, err := e.registry.Register(id, name, opts...)
	if err != nil {
		return domain.StrategyView{}, err
	}
	view := h.View()
	e.metrics.SetConfidence(id, view.Confidence)
	return view, nil
}

// SetStatus changes a strategy's lifecycle state. A change for an unknown
// id is counted like an observation for one.
func (e *Engine) SetStatus(id string, status domain.Status) error {
	err := e.registry.SetStatus(id, status)
	switch {
	case err == nil:
		e.metrics.RecordStatusChange("applied")
	case errors.Is(err, registry.ErrUnknownStrategy):
		e.counters.Inc(ops.ReasonUnknownStrategy)
		e.metrics.RecordStatusChange(string(ops.ReasonUnknownStrategy))
		log.Debug().Str("strategy", id).Str("status", string(status)).Msg("Status change for unknown strategy dropped")
	default:
		e.metrics.RecordStatusChange(string(ops.ReasonInvalid))
	}
	return err
}

// Deregister stops tracking a strategy; unknown ids are ignored
func (e *Engine) Deregister(id string) {
	if !e.registry.Deregister(id) {
		return
	}
	if f, ok := e.source.(Forgetter); ok {
		f.Forget(id)
	}
	e.metrics.ForgetStrategy(id)
}

// Get returns one strategy's current view
func (e *Engine) Get(id string) (domain.StrategyView, bool) {
	h, ok := e.registry.Get(id)
	if !ok {
		return domain.StrategyView{}, false
	}
	return h.View(), true
}

// List returns every strategy's current view in registration order
func (e *Engine) List() []domain.StrategyView { return e.registry.List() }

// Stats returns the rejection and drop counters
func (e *Engine) Stats() ops.Summary { return e.counters.Summary() }

// Latency returns per-stage cycle latency percentiles
func (e *Engine) Latency() []latency.Summary { return e.latency.Summaries() }

// Running reports whether Run is active
func (e *Engine) Running() bool { return e.running.Load() }

// Subscribers returns the number of live subscribers
func (e *Engine) Subscribers() int { return e.hub.Subscribers() }
