package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/quantfund/internal/domain"
)

func snap(seq uint64) *domain.Snapshot {
	return &domain.Snapshot{Seq: seq, AsOf: time.Unix(int64(seq), 0)}
}

func recv(t *testing.T, sub *Subscription) *domain.Snapshot {
	t.Helper()
	select {
	case s, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	ctx := context.Background()

	a := hub.Subscribe(ctx)
	b := hub.Subscribe(ctx)
	defer a.Close()
	defer b.Close()
	assert.Equal(t, 2, hub.Subscribers())

	assert.Equal(t, 0, hub.Publish(snap(1)))
	assert.Equal(t, uint64(1), recv(t, a).Seq)
	assert.Equal(t, uint64(1), recv(t, b).Seq)
	assert.Equal(t, uint64(1), hub.Published())
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	var drops atomic.Int64
	hub := NewHub(HubConfig{Buffer: 1, OnDrop: func(string) { drops.Add(1) }})
	ctx := context.Background()

	slow := hub.Subscribe(ctx)
	fast := hub.Subscribe(ctx)
	defer slow.Close()
	defer fast.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		done := make(chan struct{})
		go func() {
			hub.Publish(snap(seq))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a slow subscriber")
		}
		assert.Equal(t, seq, recv(t, fast).Seq)
	}

	// slow never read: it kept only the freshest snapshot
	assert.Equal(t, uint64(4), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, int64(4), drops.Load())
	assert.Equal(t, uint64(4), hub.Dropped())
	assert.Equal(t, uint64(5), recv(t, slow).Seq)
}

func TestHub_LateSubscriberGetsLatest(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	hub.Publish(snap(7))

	sub := hub.Subscribe(context.Background())
	defer sub.Close()
	assert.Equal(t, uint64(7), recv(t, sub).Seq)
}

func TestHub_ContextCancelUnsubscribes(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	ctx, cancel := context.WithCancel(context.Background())
	sub := hub.Subscribe(ctx)

	cancel()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, time.Millisecond)

	_, ok := <-sub.C()
	assert.False(t, ok, "channel closed after unsubscribe")
	assert.NotPanics(t, sub.Close)
}

func TestHub_ResubscribeAfterClose(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	first := hub.Subscribe(context.Background())
	first.Close()
	first.Close()

	second := hub.Subscribe(context.Background())
	defer second.Close()
	hub.Publish(snap(1))
	assert.Equal(t, uint64(1), recv(t, second).Seq)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	sub := hub.Subscribe(context.Background())
	hub.Close()
	hub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Publish(snap(1)))

	late := hub.Subscribe(context.Background())
	_, ok = <-late.C()
	assert.False(t, ok, "subscriptions on a closed hub start closed")
	assert.NotPanics(t, late.Close)
}

func TestHub_ConcurrentPublishAndChurn(t *testing.T) {
	hub := NewHub(HubConfig{Buffer: 2})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 500; i++ {
			hub.Publish(snap(i))
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sub := hub.Subscribe(context.Background())
				select {
				case <-sub.C():
				default:
				}
				sub.Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}
