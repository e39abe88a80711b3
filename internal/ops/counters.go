// Package ops tracks the engine's recoverable-condition counters and renders
// operator-facing summaries.
package ops

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Reason classifies a dropped or rejected unit of work
type Reason string

const (
	ReasonUnknownStrategy Reason = "unknown_strategy"
	ReasonOutOfOrder      Reason = "out_of_order"
	ReasonInvalid         Reason = "invalid"
	ReasonRemoved         Reason = "removed"            // strategy deregistered while in flight
	ReasonAbandoned       Reason = "abandoned"          // previous tick update still running
	ReasonStale           Reason = "stale"              // sample arrived after the tick deadline
	ReasonSourceError     Reason = "source_error"       // feed failed to produce a sample
	ReasonTickDropped     Reason = "tick_dropped"       // clock tick found the engine busy
	ReasonSubscriberDrop  Reason = "subscriber_dropped" // slow subscriber lost an update
)

// Counters is a set of monotonically increasing per-reason counts plus the
// accepted-observation total. Safe for concurrent use.
type Counters struct {
	accepted atomic.Uint64

	mu     sync.RWMutex
	counts map[Reason]*atomic.Uint64
}

// NewCounters creates an empty counter set
func NewCounters() *Counters {
	return &Counters{counts: make(map[Reason]*atomic.Uint64)}
}

// Accepted records an applied observation
func (c *Counters) Accepted() { c.accepted.Add(1) }

// Inc records one occurrence of reason
func (c *Counters) Inc(reason Reason) { c.counter(reason).Add(1) }

// Count returns the count for reason
func (c *Counters) Count(reason Reason) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.counts[reason]; ok {
		return v.Load()
	}
	return 0
}

// Summary is a point-in-time copy of the counters
type Summary struct {
	Accepted      uint64            `json:"accepted"`
	Counts        map[Reason]uint64 `json:"counts"`
	RejectionRate float64           `json:"rejection_rate"` // percent of observations rejected
}

// Summary returns current values
func (c *Counters) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Summary{
		Accepted: c.accepted.Load(),
		Counts:   make(map[Reason]uint64, len(c.counts)),
	}
	var rejected uint64
	for r, v := range c.counts {
		n := v.Load()
		s.Counts[r] = n
		if r.IsObservationRejection() {
			rejected += n
		}
	}
	if total := s.Accepted + rejected; total > 0 {
		s.RejectionRate = float64(rejected) / float64(total) * 100.0
	}
	return s
}

// Reasons returns the reasons seen so far in sorted order
func (s Summary) Reasons() []Reason {
	out := make([]Reason, 0, len(s.Counts))
	for r := range s.Counts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsObservationRejection reports whether r rejects an incoming observation
func (r Reason) IsObservationRejection() bool {
	switch r {
	case ReasonUnknownStrategy, ReasonOutOfOrder, ReasonInvalid:
		return true
	}
	return false
}

func (c *Counters) counter(reason Reason) *atomic.Uint64 {
	c.mu.RLock()
	v, ok := c.counts[reason]
	c.mu.RUnlock()
	if ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if v, ok := c.counts[reason]; ok {
		return v
	}
	v = new(atomic.Uint64)
	c.counts[reason] = v
	return v
}
