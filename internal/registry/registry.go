// Package registry owns the set of tracked strategies and their per-strategy
// state handles.
package registry

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/quantfund/internal/confidence"
	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/report/perf"
)

var (
	ErrDuplicateRegistration = errors.New("strategy already registered")
	ErrUnknownStrategy       = errors.New("unknown strategy")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrInvalidID             = errors.New("strategy id must not be empty")
)

// RandFactory returns the confidence random source for a new strategy
type RandFactory func(id string) confidence.Rand

// SeededRand derives a reproducible per-strategy source from seed and id
func SeededRand(seed uint64) RandFactory {
	return func(id string) confidence.Rand {
		h := fnv.New64a()
		h.Write([]byte(id))
		return rand.New(rand.NewPCG(seed, h.Sum64()))
	}
}

// Config configures per-strategy state created at registration
type Config struct {
	Metrics    perf.AggregatorConfig
	Confidence confidence.Config
	Rand       RandFactory // nil uses an unseeded source per strategy
}

// directory is an immutable view; writers replace it wholesale
type directory struct {
	byID  map[string]*Handle
	order []*Handle // registration order
}

// Registry is the single writer of strategy records. Reads load the current
// directory without locking; writes copy it under mu.
type Registry struct {
	config Config

	mu  sync.Mutex
	dir atomic.Pointer[directory]
}

// New creates an empty registry
func New(config Config) *Registry {
	if config.Rand == nil {
		config.Rand = func(string) confidence.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	r := &Registry{config: config}
	r.dir.Store(&directory{byID: map[string]*Handle{}})
	return r
}

// RegisterOption customizes a registration
type RegisterOption func(*domain.Strategy)

// WithOwner attributes the strategy to a leaderboard participant
func WithOwner(owner string) RegisterOption {
	return func(s *domain.Strategy) { s.Owner = strings.TrimSpace(owner) }
}

// WithStatus sets the initial status (default testing)
func WithStatus(status domain.Status) RegisterOption {
	return func(s *domain.Strategy) { s.Status = status }
}

// Register adds a strategy. It fails if the id is already tracked.
func (r *Registry) Register(id, name string, opts ...RegisterOption) (*Handle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}
	s := domain.Strategy{ID: id, Name: strings.TrimSpace(name), Status: domain.StatusTesting}
	if s.Name == "" {
		s.Name = id
	}
	for _, opt := range opts {
		opt(&s)
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.dir.Load()
	if _, exists := cur.byID[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRegistration, id)
	}

	h := &Handle{
		strategy: s,
		agg:      perf.NewAggregator(r.config.Metrics),
		conf:     confidence.NewEstimator(r.config.Confidence, r.config.Rand(id)),
	}

	next := &directory{
		byID:  make(map[string]*Handle, len(cur.byID)+1),
		order: make([]*Handle, 0, len(cur.order)+1),
	}
	for k, v := range cur.byID {
		next.byID[k] = v
	}
	next.byID[id] = h
	next.order = append(next.order, cur.order...)
	next.order = append(next.order, h)
	r.dir.Store(next)

	log.Info().Str("strategy", id).Str("name", s.Name).Str("owner", s.Owner).Msg("Strategy registered")
	return h, nil
}

// SetStatus changes a strategy's lifecycle state. Any transition between
// the three states is allowed.
func (r *Registry) SetStatus(id string, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.dir.Load().byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	h.setStatus(status)

	log.Info().Str("strategy", id).Str("status", string(status)).Msg("Strategy status changed")
	return nil
}

// Deregister removes a strategy. Removing an unknown id is not an error.
// It reports whether anything was removed.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.dir.Load()
	h, ok := cur.byID[id]
	if !ok {
		return false
	}
	h.removed.Store(true)

	next := &directory{
		byID:  make(map[string]*Handle, len(cur.byID)),
		order: make([]*Handle, 0, len(cur.order)),
	}
	for k, v := range cur.byID {
		if k != id {
			next.byID[k] = v
		}
	}
	for _, v := range cur.order {
		if v != h {
			next.order = append(next.order, v)
		}
	}
	r.dir.Store(next)

	log.Info().Str("strategy", id).Msg("Strategy deregistered")
	return true
}

// Get returns the handle for id
func (r *Registry) Get(id string) (*Handle, bool) {
	h, ok := r.dir.Load().byID[id]
	return h, ok
}

// Handles returns the current handles in registration order. The slice is
// shared and must not be modified.
func (r *Registry) Handles() []*Handle {
	return r.dir.Load().order
}

// List returns consistent views of every strategy in registration order
func (r *Registry) List() []domain.StrategyView {
	handles := r.Handles()
	views := make([]domain.StrategyView, 0, len(handles))
	for _, h := range handles {
		views = append(views, h.View())
	}
	return views
}

// Len returns the number of registered strategies
func (r *Registry) Len() int {
	return len(r.dir.Load().order)
}
