// Package feed provides observation sources sampled by the engine each tick.
package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Config configures the synthetic random-walk feed
type Config struct {
	Enabled   bool    `yaml:"enabled"`
	BasePrice float64 `yaml:"base_price"` // starting level for every walk
	Step      float64 `yaml:"step"`       // per-tick move is uniform over [-Step, +Step]
	Floor     float64 `yaml:"floor"`      // walks never go below this positive level
	Seed      uint64  `yaml:"seed"`       // 0 picks a random seed
}

// DefaultConfig reproduces the dashboard ticker: 4847.32, ±2.5 per tick
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		BasePrice: 4847.32,
		Step:      2.5,
		Floor:     0.01,
	}
}

// Validate checks the walk parameters
func (c Config) Validate() error {
	if !(c.BasePrice > 0) || math.IsInf(c.BasePrice, 0) {
		return fmt.Errorf("feed base_price must be positive, got %v", c.BasePrice)
	}
	if c.Step < 0 || math.IsNaN(c.Step) || math.IsInf(c.Step, 0) {
		return fmt.Errorf("feed step must be non-negative, got %v", c.Step)
	}
	if !(c.Floor > 0) {
		return fmt.Errorf("feed floor must be positive, got %v", c.Floor)
	}
	return nil
}

type walk struct {
	mu    sync.Mutex
	value float64
	rnd   *rand.Rand
}

// RandomWalk keeps one independent walk per strategy id
type RandomWalk struct {
	config Config
	seed   uint64

	mu    sync.Mutex
	walks map[string]*walk
}

// NewRandomWalk creates a feed
func NewRandomWalk(config Config) *RandomWalk {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.Floor <= 0 {
		config.Floor = 0.01
	}
	return &RandomWalk{
		config: config,
		seed:   seed,
		walks:  make(map[string]*walk),
	}
}

// Sample advances the walk for strategyID and returns the new level.
// The first sample of a walk returns the base price.
func (f *RandomWalk) Sample(ctx context.Context, strategyID string, _ time.Time) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w, fresh := f.get(strategyID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if fresh {
		return w.value, nil
	}
	w.value += (w.rnd.Float64() - 0.5) * 2 * f.config.Step
	if w.value < f.config.Floor {
		w.value = f.config.Floor
	}
	return w.value, nil
}

// Forget drops the walk for strategyID
func (f *RandomWalk) Forget(strategyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.walks, strategyID)
}

func (f *RandomWalk) get(id string) (*walk, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if w, ok := f.walks[id]; ok {
		return w, false
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	w := &walk{
		value: f.config.BasePrice,
		rnd:   rand.New(rand.NewPCG(f.seed, h.Sum64())),
	}
	f.walks[id] = w
	return w, true
}
