// Package scheduler provides the periodic sample clock that drives the engine
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrRunning is returned by Start on a clock that has not been stopped
var ErrRunning = errors.New("sample clock already running")

// Tick is one emission of the clock
type Tick struct {
	Seq uint64    // increases by one per emitted or dropped tick, across restarts
	At  time.Time // strictly increasing across all ticks of a clock
}

// Option configures a SampleClock
type Option func(*SampleClock)

// WithNow replaces the time source
func WithNow(now func() time.Time) Option {
	return func(c *SampleClock) { c.now = now }
}

// WithDropHandler registers a callback for ticks dropped because the
// consumer was still busy with the previous one
func WithDropHandler(fn func(Tick)) Option {
	return func(c *SampleClock) { c.onDrop = fn }
}

// SampleClock emits ticks at a fixed period. Delivery never queues: a tick
// that finds no waiting receiver is dropped.
type SampleClock struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now    func() time.Time
	onDrop func(Tick)

	seq  uint64
	last time.Time
}

// NewSampleClock creates a stopped clock
func NewSampleClock(opts ...Option) *SampleClock {
	c := &SampleClock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins emission. The returned channel is closed after Stop.
func (c *SampleClock) Start(period time.Duration) (<-chan Tick, error) {
	if period <= 0 {
		return nil, fmt.Errorf("tick period must be positive, got %s", period)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil, ErrRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Tick)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(ctx, period, out, done)

	log.Debug().Dur("period", period).Msg("Sample clock started")
	return out, nil
}

// Stop cancels future ticks and waits for the timer goroutine to exit.
// Calling Stop on a stopped clock is a no-op.
func (c *SampleClock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Debug().Msg("Sample clock stopped")
}

// Running reports whether the clock is emitting
func (c *SampleClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *SampleClock) run(ctx context.Context, period time.Duration, out chan<- Tick, done chan<- struct{}) {
	ticker := time.NewTicker(period)
	defer func() {
		ticker.Stop()
		close(out)
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick := c.next()
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			default:
				if c.onDrop != nil {
					c.onDrop(tick)
				}
			}
		}
	}
}

func (c *SampleClock) next() Tick {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.now()
	if c.seq > 0 && !at.After(c.last) {
		at = c.last.Add(time.Nanosecond)
	}
	c.last = at
	c.seq++
	return Tick{Seq: c.seq, At: at}
}
