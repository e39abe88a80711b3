package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sawpanic/quantfund/internal/confidence"
	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/report/perf"
)

// Handle owns one strategy's mutable state. Every access goes through mu, so
// updates for a single strategy are serialized while different strategies
// proceed independently.
type Handle struct {
	mu       sync.Mutex
	strategy domain.Strategy
	agg      *perf.Aggregator
	conf     *confidence.Estimator

	removed  atomic.Bool
	inflight atomic.Bool
}

// ID returns the strategy id
func (h *Handle) ID() string { return h.strategy.ID }

// Observe applies an observation. Observations arriving after the strategy
// was deregistered are dropped and report applied=false with no error.
func (h *Handle) Observe(ts time.Time, value float64) (applied bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removed.Load() {
		return false, nil
	}
	if err := h.agg.Observe(ts, value); err != nil {
		return false, err
	}
	return true, nil
}

// StepConfidence advances the confidence walk one tick
func (h *Handle) StepConfidence() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removed.Load() {
		return h.conf.Value()
	}
	return h.conf.Step()
}

// View returns a consistent copy of the strategy and its derived state
func (h *Handle) View() domain.StrategyView {
	h.mu.Lock()
	defer h.mu.Unlock()

	return domain.StrategyView{
		Strategy:   h.strategy,
		Metrics:    h.agg.Metrics(),
		Confidence: h.conf.Value(),
	}
}

// Removed reports whether the strategy has been deregistered
func (h *Handle) Removed() bool { return h.removed.Load() }

// TryBegin marks a tick update as in flight. It fails while the previous
// update for this strategy has not finished.
func (h *Handle) TryBegin() bool { return h.inflight.CompareAndSwap(false, true) }

// End clears the in-flight mark set by TryBegin
func (h *Handle) End() { h.inflight.Store(false) }

func (h *Handle) setStatus(status domain.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strategy.Status = status
}
