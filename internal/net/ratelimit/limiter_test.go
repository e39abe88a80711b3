package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2) // 2 RPS, burst of 2

	// Should allow first 2 requests immediately (burst)
	if !limiter.Allow("10.0.0.1") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("10.0.0.1") {
		t.Error("Second request should be allowed")
	}

	// Third request should be blocked (no tokens available)
	if limiter.Allow("10.0.0.1") {
		t.Error("Third request should be blocked")
	}
	if d := limiter.RetryAfter("10.0.0.1"); d <= 0 {
		t.Errorf("Expected positive retry delay, got %v", d)
	}
}

func TestLimiter_IndependentClients(t *testing.T) {
	limiter := NewLimiter(1.0, 1)

	if !limiter.Allow("10.0.0.1") {
		t.Error("First request from client 1 should be allowed")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("First request from client 2 should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Second request from client 1 should be blocked")
	}
	if limiter.Allow("10.0.0.2") {
		t.Error("Second request from client 2 should be blocked")
	}
	if limiter.Len() != 2 {
		t.Errorf("Expected 2 tracked clients, got %d", limiter.Len())
	}
}

func TestLimiter_WaitTimeout(t *testing.T) {
	limiter := NewLimiter(0.1, 1) // one token every 10s

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("First wait should succeed: %v", err)
	}
	if err := limiter.Wait(ctx, "10.0.0.1"); err == nil {
		t.Error("Second wait should fail on context deadline")
	}
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	now = now.Add(5 * time.Minute)
	limiter.Allow("fresh")
	now = now.Add(6 * time.Minute)

	if n := limiter.Prune(10 * time.Minute); n != 1 {
		t.Fatalf("Expected 1 pruned bucket, got %d", n)
	}
	stats := limiter.Stats()
	if len(stats) != 1 || stats[0].Key != "fresh" {
		t.Errorf("Expected only fresh bucket to remain, got %+v", stats)
	}
}

func TestLimiter_Stats(t *testing.T) {
	limiter := NewLimiter(5, 3)
	limiter.Allow("b")
	limiter.Allow("a")
	limiter.Allow("a")
	limiter.Allow("a")

	stats := limiter.Stats()
	if len(stats) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(stats))
	}
	if stats[0].Key != "a" || stats[1].Key != "b" {
		t.Errorf("Stats not ordered by key: %+v", stats)
	}
	if !stats[0].IsThrottled() {
		t.Error("Client a should be throttled after exhausting its burst")
	}
	if stats[0].Burst != 3 || stats[0].RPS != 5 {
		t.Errorf("Unexpected bucket settings: %+v", stats[0])
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(1, 10)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got < 10 || got > 11 {
		t.Errorf("Expected about 10 allowed requests, got %d", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"disabled ignores values", Config{Enabled: false}, false},
		{"zero rps", Config{Enabled: true, RPS: 0, Burst: 1}, true},
		{"zero burst", Config{Enabled: true, RPS: 1, Burst: 0}, true},
		{"negative ttl", Config{Enabled: true, RPS: 1, Burst: 1, IdleTTL: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
