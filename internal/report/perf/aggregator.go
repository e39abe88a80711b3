// Package perf maintains incremental performance metrics for a single
// strategy from a stream of timestamped value observations.
package perf

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/quantfund/internal/domain"
)

var (
	// ErrOutOfOrder is returned for an observation whose timestamp is not
	// strictly after the last accepted one
	ErrOutOfOrder = errors.New("observation out of order")
	// ErrInvalidObservation is returned for non-finite or non-positive values
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrInsufficientData is reported by ratios that need at least two returns
	ErrInsufficientData = errors.New("insufficient data")
)

// Observation is a single timestamped level (price, equity, NAV) for a strategy
type Observation struct {
	StrategyID string    `json:"strategy_id"`
	Timestamp  time.Time `json:"ts"`
	Value      float64   `json:"value"`
}

// AggregatorConfig controls ratio annualization
type AggregatorConfig struct {
	PeriodsPerYear float64 `yaml:"periods_per_year"` // sqrt(PeriodsPerYear) scales the Sharpe ratio
	RiskFreeRate   float64 `yaml:"risk_free_rate"`   // per-period rate in percent
}

// DefaultAggregatorConfig reports raw per-tick Sharpe ratios
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		PeriodsPerYear: 1,
		RiskFreeRate:   0,
	}
}

// Validate checks the configuration
func (c AggregatorConfig) Validate() error {
	if c.PeriodsPerYear <= 0 || math.IsInf(c.PeriodsPerYear, 0) || math.IsNaN(c.PeriodsPerYear) {
		return fmt.Errorf("periods_per_year must be positive, got %v", c.PeriodsPerYear)
	}
	if math.IsInf(c.RiskFreeRate, 0) || math.IsNaN(c.RiskFreeRate) {
		return fmt.Errorf("risk_free_rate must be finite")
	}
	return nil
}

// Aggregator keeps sufficient statistics only: baseline, running peak,
// win/total delta counts and Welford mean/M2 of per-tick returns.
// It is not safe for concurrent use; callers serialize per strategy.
type Aggregator struct {
	config AggregatorConfig

	samples  int
	baseline float64
	last     float64
	lastTS   time.Time
	peak     float64
	maxDD    float64

	wins   int
	deltas int

	// Welford state over per-tick percent returns
	n    int
	mean float64
	m2   float64
}

// NewAggregator creates an empty aggregator
func NewAggregator(config AggregatorConfig) *Aggregator {
	if config.PeriodsPerYear <= 0 {
		config.PeriodsPerYear = 1
	}
	return &Aggregator{config: config}
}

// Observe applies one observation. Rejected observations leave every
// statistic untouched.
func (a *Aggregator) Observe(ts time.Time, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("%w: value %v", ErrInvalidObservation, value)
	}
	if a.samples > 0 && !ts.After(a.lastTS) {
		return fmt.Errorf("%w: %s not after %s", ErrOutOfOrder,
			ts.Format(time.RFC3339Nano), a.lastTS.Format(time.RFC3339Nano))
	}

	if a.samples == 0 {
		a.baseline = value
		a.peak = value
	} else {
		prev := a.last
		a.deltas++
		if value > prev {
			a.wins++
		}

		r := (value - prev) / prev * 100
		a.n++
		d := r - a.mean
		a.mean += d / float64(a.n)
		a.m2 += d * (r - a.mean)

		if value > a.peak {
			a.peak = value
		} else if value < a.peak {
			dd := (value - a.peak) / a.peak * 100
			if dd < a.maxDD {
				a.maxDD = dd
			}
		}
	}

	a.samples++
	a.last = value
	a.lastTS = ts
	return nil
}

// Samples returns the number of accepted observations
func (a *Aggregator) Samples() int { return a.samples }

// CumulativeReturn is the percent change from the first accepted value
func (a *Aggregator) CumulativeReturn() float64 {
	if a.samples == 0 {
		return 0
	}
	return (a.last - a.baseline) / a.baseline * 100
}

// WinRate is the share of positive deltas, 0..100
func (a *Aggregator) WinRate() float64 {
	if a.deltas == 0 {
		return 0
	}
	return float64(a.wins) / float64(a.deltas) * 100
}

// MaxDrawdown is the deepest peak-to-trough decline in percent (<= 0)
func (a *Aggregator) MaxDrawdown() float64 { return a.maxDD }

// Sharpe returns the annualized Sharpe ratio of per-tick returns, or
// ErrInsufficientData with fewer than two returns or zero variance.
func (a *Aggregator) Sharpe() (float64, error) {
	if a.n < 2 {
		return 0, ErrInsufficientData
	}
	variance := a.m2 / float64(a.n-1)
	if variance <= 0 {
		return 0, ErrInsufficientData
	}
	s := (a.mean - a.config.RiskFreeRate) / math.Sqrt(variance)
	return s * math.Sqrt(a.config.PeriodsPerYear), nil
}

// Metrics returns a value copy of the current statistics
func (a *Aggregator) Metrics() domain.Metrics {
	m := domain.Metrics{
		CumulativeReturn: a.CumulativeReturn(),
		MaxDrawdown:      a.maxDD,
		WinRate:          a.WinRate(),
		Wins:             a.wins,
		Samples:          a.samples,
		LastValue:        a.last,
		LastObserved:     a.lastTS,
	}
	if s, err := a.Sharpe(); err == nil {
		m.Sharpe = domain.Sharpe{Value: s, Defined: true}
	}
	return m
}
