package feed

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalk_StartsAtBaseAndMovesWithinStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 9
	f := NewRandomWalk(cfg)
	ctx := context.Background()

	v, err := f.Sample(ctx, "S1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4847.32, v)

	prev := v
	for i := 0; i < 1000; i++ {
		v, err = f.Sample(ctx, "S1", time.Now())
		require.NoError(t, err)
		assert.LessOrEqual(t, math.Abs(v-prev), cfg.Step+1e-9)
		prev = v
	}
}

func TestRandomWalk_IndependentPerStrategyAndReproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 21
	a := NewRandomWalk(cfg)
	b := NewRandomWalk(cfg)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		va, _ := a.Sample(ctx, "S1", time.Now())
		vb, _ := b.Sample(ctx, "S1", time.Now())
		assert.Equal(t, va, vb, "same seed and id give the same path")
	}

	// sampling S2 on a does not disturb S1's path
	for i := 0; i < 5; i++ {
		_, _ = a.Sample(ctx, "S2", time.Now())
	}
	va, _ := a.Sample(ctx, "S1", time.Now())
	vb, _ := b.Sample(ctx, "S1", time.Now())
	assert.Equal(t, va, vb)
}

func TestRandomWalk_FloorAndForget(t *testing.T) {
	f := NewRandomWalk(Config{BasePrice: 1, Step: 50, Floor: 0.5, Seed: 3})
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		v, err := f.Sample(ctx, "S1", time.Now())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.5)
	}

	f.Forget("S1")
	v, err := f.Sample(ctx, "S1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "forgotten walk restarts at base")
}

func TestRandomWalk_CancelledContext(t *testing.T) {
	f := NewRandomWalk(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Sample(ctx, "S1", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{BasePrice: 0, Step: 1, Floor: 1}.Validate())
	assert.Error(t, Config{BasePrice: 10, Step: -1, Floor: 1}.Validate())
	assert.Error(t, Config{BasePrice: 10, Step: 1, Floor: 0}.Validate())
}
