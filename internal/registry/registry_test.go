package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/quantfund/internal/confidence"
	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/report/perf"
)

func newTestRegistry() *Registry {
	return New(Config{
		Metrics:    perf.DefaultAggregatorConfig(),
		Confidence: confidence.DefaultConfig(),
		Rand:       SeededRand(1),
	})
}

var base = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := newTestRegistry()

	h, err := reg.Register("S1", "AI Momentum Alpha", WithOwner("QuantMaster_AI"))
	require.NoError(t, err)
	assert.Equal(t, "S1", h.ID())

	got, ok := reg.Get("S1")
	require.True(t, ok)
	assert.Same(t, h, got)

	view := got.View()
	assert.Equal(t, "AI Momentum Alpha", view.Name)
	assert.Equal(t, "QuantMaster_AI", view.Owner)
	assert.Equal(t, domain.StatusTesting, view.Status, "new strategies start in testing")
	assert.Equal(t, 87.0, view.Confidence)
	assert.Equal(t, 0, view.Samples)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Register("S1", "first")
	require.NoError(t, err)

	_, err = reg.Register("S1", "second")
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	views := reg.List()
	require.Len(t, views, 1)
	assert.Equal(t, "first", views[0].Name, "registry state unchanged")
}

func TestRegistry_RejectsEmptyIDAndBadStatus(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Register("  ", "blank")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = reg.Register("S1", "x", WithStatus("paused"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_NameDefaultsToID(t *testing.T) {
	reg := newTestRegistry()
	h, err := reg.Register("S1", "")
	require.NoError(t, err)
	assert.Equal(t, "S1", h.View().Name)
}

func TestRegistry_SetStatusUnrestricted(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Register("S1", "alpha")
	require.NoError(t, err)

	for _, st := range []domain.Status{domain.StatusActive, domain.StatusTesting, domain.StatusSuspended, domain.StatusActive} {
		require.NoError(t, reg.SetStatus("S1", st))
		h, _ := reg.Get("S1")
		assert.Equal(t, st, h.View().Status)
	}

	assert.ErrorIs(t, reg.SetStatus("S9", domain.StatusActive), ErrUnknownStrategy)
	assert.ErrorIs(t, reg.SetStatus("S1", "archived"), ErrInvalidStatus)
}

func TestRegistry_DeregisterIdempotent(t *testing.T) {
	reg := newTestRegistry()
	h, err := reg.Register("S1", "alpha")
	require.NoError(t, err)
	_, err = reg.Register("S2", "beta")
	require.NoError(t, err)

	assert.True(t, reg.Deregister("S1"))
	after := reg.List()
	assert.False(t, reg.Deregister("S1"))
	assert.Equal(t, after, reg.List(), "second deregistration changes nothing")

	_, ok := reg.Get("S1")
	assert.False(t, ok)
	assert.True(t, h.Removed())

	applied, err := h.Observe(base, 100)
	assert.NoError(t, err, "in-flight observation for removed strategy is dropped silently")
	assert.False(t, applied)
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	reg := newTestRegistry()
	ids := []string{"zeta", "alpha", "mid", "beta"}
	for _, id := range ids {
		_, err := reg.Register(id, id)
		require.NoError(t, err)
	}
	reg.Deregister("mid")
	_, err := reg.Register("mid", "mid")
	require.NoError(t, err)

	var got []string
	for _, v := range reg.List() {
		got = append(got, v.ID)
	}
	assert.Equal(t, []string{"zeta", "alpha", "beta", "mid"}, got)
}

func TestRegistry_SnapshotUnaffectedByLaterWrites(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Register("S1", "alpha")
	require.NoError(t, err)

	handles := reg.Handles()
	_, err = reg.Register("S2", "beta")
	require.NoError(t, err)
	reg.Deregister("S1")

	require.Len(t, handles, 1, "earlier read keeps its directory")
	assert.Equal(t, "S1", handles[0].ID())
}

func TestHandle_TryBeginEnd(t *testing.T) {
	reg := newTestRegistry()
	h, err := reg.Register("S1", "alpha")
	require.NoError(t, err)

	assert.True(t, h.TryBegin())
	assert.False(t, h.TryBegin(), "second update rejected while first in flight")
	h.End()
	assert.True(t, h.TryBegin())
}

func TestRegistry_ConcurrentUpdatesAcrossStrategies(t *testing.T) {
	reg := newTestRegistry()
	const n = 16
	for i := 0; i < n; i++ {
		_, err := reg.Register(fmt.Sprintf("S%d", i), "")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, h := range reg.Handles() {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			for i := 1; i <= 200; i++ {
				_, err := h.Observe(base.Add(time.Duration(i)*time.Second), 100+float64(i%7))
				assert.NoError(t, err)
				h.StepConfidence()
			}
		}(h)
	}

	// readers run alongside writers
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			for _, v := range reg.List() {
				assert.GreaterOrEqual(t, v.WinRate, 0.0)
				assert.LessOrEqual(t, v.MaxDrawdown, 0.0)
			}
		}
	}()

	wg.Wait()
	<-done
	for _, v := range reg.List() {
		assert.Equal(t, 200, v.Samples)
	}
}
