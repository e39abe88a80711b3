// Package latency keeps rolling latency percentiles for the engine's cycle stages
package latency

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stage names a part of the tick cycle
type Stage string

const (
	StageUpdate  Stage = "update"
	StageRank    Stage = "rank"
	StagePublish Stage = "publish"
)

// Window is a fixed-size ring of latency samples in milliseconds
type Window struct {
	mu      sync.RWMutex
	samples []float64
	next    int
	full    bool
}

// NewWindow creates a window holding the last size samples
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 512
	}
	return &Window{samples: make([]float64, size)}
}

// Record adds a sample, overwriting the oldest when full
func (w *Window) Record(d time.Duration) {
	ms := float64(d.Nanoseconds()) / 1e6

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = ms
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

// Count returns the number of samples held
func (w *Window) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size()
}

// Percentile returns the p-th percentile (0..1) with linear interpolation,
// or 0 for an empty window
func (w *Window) Percentile(p float64) float64 {
	w.mu.RLock()
	n := w.size()
	values := make([]float64, n)
	copy(values, w.samples[:n])
	w.mu.RUnlock()

	if n == 0 {
		return 0
	}
	sort.Float64s(values)

	idx := p * float64(n-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return values[lo]
	}
	weight := idx - float64(lo)
	return values[lo]*(1-weight) + values[hi]*weight
}

func (w *Window) size() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// Summary is the percentile view of one stage
type Summary struct {
	Stage Stage   `json:"stage"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Count int     `json:"count"`
}

// Tracker holds one window per stage
type Tracker struct {
	size int

	mu      sync.RWMutex
	windows map[Stage]*Window
}

// NewTracker creates a tracker whose windows hold size samples each
func NewTracker(size int) *Tracker {
	return &Tracker{size: size, windows: make(map[Stage]*Window)}
}

// Record adds a sample for stage
func (t *Tracker) Record(stage Stage, d time.Duration) {
	t.window(stage).Record(d)
}

// Since records the time elapsed since start and returns it
func (t *Tracker) Since(stage Stage, start time.Time) time.Duration {
	d := time.Since(start)
	t.Record(stage, d)
	return d
}

// Summaries returns per-stage percentiles sorted by stage name
func (t *Tracker) Summaries() []Summary {
	t.mu.RLock()
	stages := make([]Stage, 0, len(t.windows))
	for s := range t.windows {
		stages = append(stages, s)
	}
	t.mu.RUnlock()
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	out := make([]Summary, 0, len(stages))
	for _, s := range stages {
		w := t.window(s)
		out = append(out, Summary{
			Stage: s,
			P50:   w.Percentile(0.50),
			P95:   w.Percentile(0.95),
			P99:   w.Percentile(0.99),
			Count: w.Count(),
		})
	}
	return out
}

func (t *Tracker) window(stage Stage) *Window {
	t.mu.RLock()
	w, ok := t.windows[stage]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[stage]; ok {
		return w
	}
	w = NewWindow(t.size)
	t.windows[stage] = w
	return w
}
