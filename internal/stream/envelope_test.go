package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/quantfund/internal/domain"
)

func envelopeSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Seq:         42,
		AsOf:        time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
		Leaderboard: []domain.LeaderboardEntry{{Rank: 1, Name: "QuantMaster_AI", Return: 127.3, StrategyCount: 12}},
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope("node-a", envelopeSnapshot())
	require.NoError(t, err)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.Equal(t, uint64(42), env.Seq)
	require.NoError(t, Validate(env))

	data, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	snap, err := decoded.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.Seq)
	assert.Equal(t, "QuantMaster_AI", snap.Leaderboard[0].Name)
}

func TestEnvelope_DetectsTampering(t *testing.T) {
	env, err := NewEnvelope("node-a", envelopeSnapshot())
	require.NoError(t, err)

	tampered := *env
	tampered.Seq = 43
	assert.ErrorContains(t, Validate(&tampered), "checksum mismatch")

	tampered = *env
	tampered.Payload = json.RawMessage(`{"seq":42}`)
	assert.Error(t, Validate(&tampered))
}

func TestEnvelope_Validate(t *testing.T) {
	env, err := NewEnvelope("node-a", envelopeSnapshot())
	require.NoError(t, err)

	noSource := *env
	noSource.Source = ""
	assert.Error(t, Validate(&noSource))

	future := *env
	future.Version = EnvelopeVersion + 1
	assert.Error(t, Validate(&future))

	_, err = FromJSON([]byte("not json"))
	assert.Error(t, err)
}
