package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/stream"
	"github.com/sawpanic/quantfund/internal/telemetry/metrics"
)

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Seq:  3,
		AsOf: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
		Strategies: []domain.StrategyView{{
			Strategy:   domain.Strategy{ID: "S1", Name: "AI Momentum Alpha", Owner: "QuantMaster_AI", Status: domain.StatusActive},
			Metrics:    domain.Metrics{CumulativeReturn: 24.7, Samples: 2},
			Confidence: 94,
		}},
		Leaderboard: []domain.LeaderboardEntry{{Rank: 1, Name: "QuantMaster_AI", Return: 24.7, StrategyCount: 1}},
	}
}

func testConfig() Config {
	c := DefaultConfig()
	c.Enabled = true
	c.Breaker.ConsecutiveFailures = 2
	c.Breaker.OpenTimeout = time.Minute
	return c
}

func TestRedisSink_Write(t *testing.T) {
	db, mock := redismock.NewClientMock()
	config := testConfig()
	sink := NewRedisSinkWithClient(db, config, nil)

	snap := testSnapshot()
	payload, err := encode(config.Source, snap)
	require.NoError(t, err)

	mock.ExpectSet(config.Key, payload, config.TTL).SetVal("OK")
	mock.ExpectPublish(config.Channel, payload).SetVal(1)

	require.NoError(t, sink.Write(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_WriteWithoutChannel(t *testing.T) {
	db, mock := redismock.NewClientMock()
	config := testConfig()
	config.Channel = ""
	sink := NewRedisSinkWithClient(db, config, nil)

	snap := testSnapshot()
	payload, _ := encode(config.Source, snap)
	mock.ExpectSet(config.Key, payload, config.TTL).SetVal("OK")

	require.NoError(t, sink.Write(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_BreakerOpensAfterFailures(t *testing.T) {
	db, mock := redismock.NewClientMock()
	config := testConfig()
	sink := NewRedisSinkWithClient(db, config, nil)

	snap := testSnapshot()
	payload, _ := encode(config.Source, snap)
	mock.ExpectSet(config.Key, payload, config.TTL).SetErr(redis.TxFailedErr)
	mock.ExpectSet(config.Key, payload, config.TTL).SetErr(redis.TxFailedErr)

	ctx := context.Background()
	assert.Error(t, sink.Write(ctx, snap))
	assert.Error(t, sink.Write(ctx, snap))
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	// open breaker fails fast without calling redis
	err := sink.Write(ctx, snap)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_Latest(t *testing.T) {
	db, mock := redismock.NewClientMock()
	config := testConfig()
	sink := NewRedisSinkWithClient(db, config, nil)
	ctx := context.Background()

	t.Run("nothing mirrored", func(t *testing.T) {
		mock.ExpectGet(config.Key).RedisNil()
		_, err := sink.Latest(ctx)
		assert.ErrorIs(t, err, ErrNoSnapshot)
	})

	t.Run("round trip", func(t *testing.T) {
		payload, _ := encode(config.Source, testSnapshot())
		mock.ExpectGet(config.Key).SetVal(string(payload))
		snap, err := sink.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), snap.Seq)
		require.Len(t, snap.Strategies, 1)
		assert.Equal(t, "AI Momentum Alpha", snap.Strategies[0].Name)
		assert.False(t, snap.Strategies[0].Sharpe.Defined)
	})

	t.Run("corrupt envelope", func(t *testing.T) {
		mock.ExpectGet(config.Key).SetVal(`{"version":1,"source":"quantfund","payload":{"seq":1},"checksum":"bad"}`)
		_, err := sink.Latest(ctx)
		assert.ErrorContains(t, err, "checksum mismatch")
	})

	t.Run("redis error", func(t *testing.T) {
		mock.ExpectGet(config.Key).SetErr(redis.TxFailedErr)
		_, err := sink.Latest(ctx)
		assert.ErrorIs(t, err, redis.TxFailedErr)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_RunCountsErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	config := testConfig()
	m := metrics.NewRegistry(prometheus.NewRegistry())
	sink := NewRedisSinkWithClient(db, config, m)

	hub := stream.NewHub(stream.DefaultHubConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := hub.Subscribe(ctx)

	snap := testSnapshot()
	payload, _ := encode(config.Source, snap)
	mock.ExpectSet(config.Key, payload, config.TTL).SetErr(redis.TxFailedErr)

	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, sub) }()

	hub.Publish(snap)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.SinkErrors.WithLabelValues(sinkName)) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sink did not stop")
	}
	assert.Equal(t, 0, hub.Subscribers())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, testConfig().Validate())

	c := testConfig()
	c.Addr = ""
	assert.Error(t, c.Validate())

	c = testConfig()
	c.Source = ""
	assert.Error(t, c.Validate())

	c = testConfig()
	c.WriteTimeout = 0
	assert.Error(t, c.Validate())

	c = testConfig()
	c.Breaker.ConsecutiveFailures = 0
	assert.Error(t, c.Validate())
}
