package confidence

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand replays a fixed sequence of draws
type fixedRand struct {
	draws []float64
	i     int
}

func (f *fixedRand) Float64() float64 {
	v := f.draws[f.i%len(f.draws)]
	f.i++
	return v
}

func TestEstimator_StaysWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	est := NewEstimator(cfg, rand.New(rand.NewPCG(1, 2)))

	prev := est.Value()
	for i := 0; i < 100000; i++ {
		v := est.Step()
		require.GreaterOrEqual(t, v, 70.0)
		require.LessOrEqual(t, v, 95.0)
		require.LessOrEqual(t, math.Abs(v-prev), cfg.Step+1e-9, "walk is continuous")
		prev = v
	}
}

func TestEstimator_ClampsAtEdges(t *testing.T) {
	up := NewEstimator(Config{Min: 70, Max: 95, Initial: 94.5, Step: 1.5}, &fixedRand{draws: []float64{0.9999}})
	assert.Equal(t, 95.0, up.Step())
	assert.Equal(t, 95.0, up.Step())

	down := NewEstimator(Config{Min: 70, Max: 95, Initial: 70.2, Step: 1.5}, &fixedRand{draws: []float64{0}})
	assert.Equal(t, 70.0, down.Step())
}

func TestEstimator_Reproducible(t *testing.T) {
	a := NewEstimator(DefaultConfig(), rand.New(rand.NewPCG(42, 42)))
	b := NewEstimator(DefaultConfig(), rand.New(rand.NewPCG(42, 42)))
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Step(), b.Step())
	}
}

func TestEstimator_MidpointDrawIsNeutral(t *testing.T) {
	est := NewEstimator(DefaultConfig(), &fixedRand{draws: []float64{0.5}})
	assert.Equal(t, 87.0, est.Step())
}

func TestEstimator_InitialClamped(t *testing.T) {
	est := NewEstimator(Config{Min: 70, Max: 95, Initial: 120, Step: 1}, &fixedRand{draws: []float64{0.5}})
	assert.Equal(t, 95.0, est.Value())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"inverted bounds", Config{Min: 95, Max: 70, Initial: 80, Step: 1}, true},
		{"initial out of range", Config{Min: 70, Max: 95, Initial: 50, Step: 1}, true},
		{"negative step", Config{Min: 70, Max: 95, Initial: 80, Step: -1}, true},
		{"nan", Config{Min: math.NaN(), Max: 95, Initial: 80, Step: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
