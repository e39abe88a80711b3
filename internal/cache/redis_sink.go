// Package cache mirrors published snapshots into Redis for out-of-process readers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/stream"
	"github.com/sawpanic/quantfund/internal/telemetry/metrics"
)

const sinkName = "redis"

// ErrNoSnapshot is returned by Latest before anything was mirrored
var ErrNoSnapshot = errors.New("no snapshot mirrored")

// Config configures the Redis mirror
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`     // latest snapshot is SET here
	Channel      string        `yaml:"channel"` // every snapshot is PUBLISHed here; empty disables
	Source       string        `yaml:"source"`  // envelope source, identifies this instance
	TTL          time.Duration `yaml:"ttl"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls when the mirror stops calling Redis
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// DefaultConfig leaves the mirror disabled
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Addr:         "127.0.0.1:6379",
		Key:          "quantfund:snapshot:latest",
		Channel:      "quantfund:snapshots",
		Source:       "quantfund",
		TTL:          time.Minute,
		WriteTimeout: 500 * time.Millisecond,
		Breaker: BreakerConfig{
			ConsecutiveFailures: 3,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// Validate checks the mirror settings
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("redis addr cannot be empty")
	}
	if c.Key == "" {
		return fmt.Errorf("redis key cannot be empty")
	}
	if c.Source == "" {
		return fmt.Errorf("redis source cannot be empty")
	}
	if c.TTL < 0 {
		return fmt.Errorf("redis ttl cannot be negative, got %s", c.TTL)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("redis write_timeout must be positive, got %s", c.WriteTimeout)
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		return fmt.Errorf("redis breaker consecutive_failures must be positive")
	}
	return nil
}

// RedisSink writes each snapshot, sealed in a stream.Envelope, as the latest
// key and publishes it
type RedisSink struct {
	client  *redis.Client
	config  Config
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Registry
}

// NewRedisSink dials nothing; the client connects lazily
func NewRedisSink(config Config, m *metrics.Registry) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisSinkWithClient(client, config, m)
}

// NewRedisSinkWithClient wraps an existing client
func NewRedisSinkWithClient(client *redis.Client, config Config, m *metrics.Registry) *RedisSink {
	threshold := config.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	settings := gobreaker.Settings{
		Name:    "redis-sink",
		Timeout: config.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
	return &RedisSink{
		client:  client,
		config:  config,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: m,
	}
}

// Ping checks connectivity
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Write mirrors one snapshot. It fails fast while the breaker is open.
func (s *RedisSink) Write(ctx context.Context, snap *domain.Snapshot) error {
	payload, err := encode(s.config.Source, snap)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		wctx := ctx
		if s.config.WriteTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, s.config.WriteTimeout)
			defer cancel()
		}
		if err := s.client.Set(wctx, s.config.Key, payload, s.config.TTL).Err(); err != nil {
			return nil, fmt.Errorf("set %s: %w", s.config.Key, err)
		}
		if s.config.Channel != "" {
			if err := s.client.Publish(wctx, s.config.Channel, payload).Err(); err != nil {
				return nil, fmt.Errorf("publish %s: %w", s.config.Channel, err)
			}
		}
		return nil, nil
	})
	return err
}

// Latest reads back the mirrored snapshot
func (s *RedisSink) Latest(ctx context.Context) (*domain.Snapshot, error) {
	b, err := s.client.Get(ctx, s.config.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.config.Key, err)
	}
	env, err := stream.FromJSON(b)
	if err != nil {
		return nil, err
	}
	return env.Snapshot()
}

func encode(source string, snap *domain.Snapshot) ([]byte, error) {
	env, err := stream.NewEnvelope(source, snap)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Run mirrors every snapshot delivered on sub until ctx is done or sub closes.
// Write failures are counted and logged; they never stop the loop.
func (s *RedisSink) Run(ctx context.Context, sub *stream.Subscription) error {
	defer sub.Close()
	log.Info().Str("addr", s.config.Addr).Str("key", s.config.Key).Msg("Redis mirror started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := s.Write(ctx, snap); err != nil {
				s.metrics.RecordSinkError(sinkName, err)
			}
		}
	}
}

// State reports the breaker state
func (s *RedisSink) State() gobreaker.State { return s.breaker.State() }

// Close releases the client
func (s *RedisSink) Close() error { return s.client.Close() }
