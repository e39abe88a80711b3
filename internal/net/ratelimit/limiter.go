// Package ratelimit throttles API clients with one token bucket per client key.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the per-client token bucket settings
type Config struct {
	Enabled bool          `yaml:"enabled"`
	RPS     float64       `yaml:"rps"`      // sustained requests per second per client
	Burst   int           `yaml:"burst"`    // bucket capacity
	IdleTTL time.Duration `yaml:"idle_ttl"` // buckets unused this long are pruned
}

// DefaultConfig allows 20 rps with bursts of 40 per client
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		RPS:     20,
		Burst:   40,
		IdleTTL: 10 * time.Minute,
	}
}

// Validate checks the limiter settings
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive, got %v", c.RPS)
	}
	if c.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1, got %d", c.Burst)
	}
	if c.IdleTTL < 0 {
		return fmt.Errorf("rate limit idle_ttl cannot be negative, got %s", c.IdleTTL)
	}
	return nil
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter provides per-client rate limiting using token bucket algorithm
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rps     float64
	burst   int
	now     func() time.Time
}

// NewLimiter creates a limiter with the specified RPS and burst capacity
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rps:     rps,
		burst:   burst,
		now:     time.Now,
	}
}

// getLimiter returns or creates the bucket for key
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	now := l.now()

	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		l.touch(b, now)
		return b.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := l.buckets[key]; exists {
		b.lastSeen = now
		return b.limiter
	}

	b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst), lastSeen: now}
	l.buckets[key] = b
	return b.limiter
}

func (l *Limiter) touch(b *bucket, now time.Time) {
	l.mu.Lock()
	b.lastSeen = now
	l.mu.Unlock()
}

// Allow reports whether a request from key may proceed now
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// Wait blocks until a request from key is allowed or ctx is cancelled
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

// RetryAfter returns how long key must wait for its next token
func (l *Limiter) RetryAfter(key string) time.Duration {
	r := l.getLimiter(key).Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Prune drops buckets idle for longer than ttl and returns how many went
func (l *Limiter) Prune(ttl time.Duration) int {
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			pruned++
		}
	}
	return pruned
}

// Run prunes idle buckets every ttl until ctx is done
func (l *Limiter) Run(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(ttl)
		}
	}
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Stats returns statistics for all client buckets, ordered by key
func (l *Limiter) Stats() []LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make([]LimiterStats, 0, len(l.buckets))
	for key, b := range l.buckets {
		stats = append(stats, LimiterStats{
			Key:             key,
			RPS:             float64(b.limiter.Limit()),
			Burst:           b.limiter.Burst(),
			TokensAvailable: b.limiter.Tokens(),
			LastSeen:        b.lastSeen,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// LimiterStats represents statistics for a single client bucket
type LimiterStats struct {
	Key             string    `json:"key"`
	RPS             float64   `json:"rps"`
	Burst           int       `json:"burst"`
	TokensAvailable float64   `json:"tokens_available"`
	LastSeen        time.Time `json:"last_seen"`
}

// IsThrottled returns true if the client has no token available
func (s *LimiterStats) IsThrottled() bool {
	return s.TokensAvailable < 1
}
