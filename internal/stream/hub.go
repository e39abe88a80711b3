package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/quantfund/internal/domain"
)

// HubConfig configures snapshot fan-out
type HubConfig struct {
	Buffer int              `yaml:"buffer"` // per-subscriber queue depth
	OnDrop func(sub string) `yaml:"-"`      // called once per dropped update
}

// DefaultHubConfig keeps one pending snapshot per subscriber
func DefaultHubConfig() HubConfig {
	return HubConfig{Buffer: 1}
}

// Hub fans out snapshots to subscribers. Publish never blocks: a subscriber
// whose queue is full loses its oldest pending snapshot to the new one.
type Hub struct {
	config HubConfig

	mu     sync.RWMutex
	subs   map[string]*Subscription
	last   atomic.Pointer[domain.Snapshot]
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub
func NewHub(config HubConfig) *Hub {
	if config.Buffer <= 0 {
		config.Buffer = 1
	}
	return &Hub{
		config: config,
		subs:   make(map[string]*Subscription),
	}
}

// Subscription is one subscriber's push sequence. C is closed when the
// subscription ends.
type Subscription struct {
	id      string
	hub     *Hub
	ch      chan *domain.Snapshot
	sendMu  sync.Mutex
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

// ID returns the subscriber id
func (s *Subscription) ID() string { return s.id }

// C returns the snapshot channel
func (s *Subscription) C() <-chan *domain.Snapshot { return s.ch }

// Dropped returns how many updates this subscriber missed
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close ends the subscription; safe to call more than once
func (s *Subscription) Close() { s.hub.remove(s) }

// Subscribe registers a subscriber that lives until ctx is done or Close is
// called. The most recent snapshot, if any, is delivered first.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	sub := &Subscription{
		id:   uuid.New().String(),
		hub:  h,
		ch:   make(chan *domain.Snapshot, h.config.Buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() {
			close(sub.done)
			close(sub.ch)
		})
		return sub
	}
	if last := h.last.Load(); last != nil {
		sub.ch <- last
	}
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	log.Debug().Str("subscriber", sub.id).Int("subscribers", n).Msg("Subscriber added")

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

// Publish delivers snap to every subscriber without blocking and returns
// the number of subscribers that had to drop an update
func (h *Hub) Publish(snap *domain.Snapshot) (dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}
	h.last.Store(snap)
	for _, sub := range h.subs {
		if !sub.offer(snap) {
			dropped++
			h.dropped.Add(1)
			if h.config.OnDrop != nil {
				h.config.OnDrop(sub.id)
			}
			log.Debug().Str("subscriber", sub.id).Uint64("seq", snap.Seq).Msg("Subscriber update dropped")
		}
	}
	h.published.Add(1)
	return dropped
}

// offer enqueues snap, evicting the oldest pending snapshot when full.
// It reports false when an update was lost.
func (s *Subscription) offer(snap *domain.Snapshot) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- snap:
		return true
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	s.dropped.Add(1)

	select {
	case s.ch <- snap:
	default:
	}
	return false
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.once.Do(func() {
		delete(h.subs, sub.id)
		close(sub.done)
		close(sub.ch)
		log.Debug().Str("subscriber", sub.id).Uint64("dropped", sub.dropped.Load()).Msg("Subscriber removed")
	})
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Published returns the number of Publish calls on an open hub
func (h *Hub) Published() uint64 { return h.published.Load() }

// Dropped returns the total number of dropped updates across subscribers
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close ends every subscription; later Subscribe calls return closed
// subscriptions and Publish becomes a no-op
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.once.Do(func() {
			close(sub.done)
			close(sub.ch)
		})
		delete(h.subs, id)
	}
}
