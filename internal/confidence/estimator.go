// Package confidence implements the bounded random-walk confidence signal
// shown next to each strategy.
package confidence

import (
	"fmt"
	"math"
)

// Rand is the random source the estimator draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
}

// Config holds the walk bounds and step size
type Config struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Initial float64 `yaml:"initial"`
	Step    float64 `yaml:"step"` // perturbation is uniform over [-Step, +Step]
}

// DefaultConfig returns the dashboard's constants
func DefaultConfig() Config {
	return Config{
		Min:     70,
		Max:     95,
		Initial: 87,
		Step:    1.5,
	}
}

// Validate checks bounds ordering and that Initial lies within them
func (c Config) Validate() error {
	for _, v := range []float64{c.Min, c.Max, c.Initial, c.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("confidence config values must be finite")
		}
	}
	if c.Min >= c.Max {
		return fmt.Errorf("confidence min %.2f must be below max %.2f", c.Min, c.Max)
	}
	if c.Initial < c.Min || c.Initial > c.Max {
		return fmt.Errorf("confidence initial %.2f outside [%.2f, %.2f]", c.Initial, c.Min, c.Max)
	}
	if c.Step < 0 {
		return fmt.Errorf("confidence step must be non-negative, got %.2f", c.Step)
	}
	return nil
}

// Estimator holds one strategy's confidence value. Not safe for concurrent
// use; the owning strategy handle serializes access.
type Estimator struct {
	config Config
	value  float64
	rnd    Rand
}

// NewEstimator creates an estimator starting at config.Initial, clamped
func NewEstimator(config Config, rnd Rand) *Estimator {
	e := &Estimator{config: config, rnd: rnd}
	e.value = e.clamp(config.Initial)
	return e
}

// Value returns the current confidence
func (e *Estimator) Value() float64 { return e.value }

// Step perturbs the value by a uniform draw in [-Step, +Step) and clamps
// the result to [Min, Max]
func (e *Estimator) Step() float64 {
	delta := (e.rnd.Float64()*2 - 1) * e.config.Step
	e.value = e.clamp(e.value + delta)
	return e.value
}

func (e *Estimator) clamp(v float64) float64 {
	return math.Max(e.config.Min, math.Min(e.config.Max, v))
}
