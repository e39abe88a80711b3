package domain

import (
	"encoding/json"
	"time"
)

// Sharpe is a Sharpe ratio that may be undefined. Fewer than two per-tick
// returns, or zero variance, leave it undefined rather than zero or NaN.
type Sharpe struct {
	Value   float64
	Defined bool
}

// MarshalJSON encodes an undefined ratio as null
func (s Sharpe) MarshalJSON() ([]byte, error) {
	if !s.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON accepts a number or null
func (s *Sharpe) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Sharpe{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Sharpe{Value: v, Defined: true}
	return nil
}

// Metrics is the per-strategy performance record
type Metrics struct {
	CumulativeReturn float64   `json:"cumulative_return"` // percent vs. baseline, signed
	Sharpe           Sharpe    `json:"sharpe"`            // null while insufficient data
	MaxDrawdown      float64   `json:"max_drawdown"`      // percent, always <= 0
	WinRate          float64   `json:"win_rate"`          // percent, 0..100
	Wins             int       `json:"wins"`              // positive deltas
	Samples          int       `json:"samples"`           // accepted observations
	LastValue        float64   `json:"last_value"`
	LastObserved     time.Time `json:"last_observed"`
}

// StrategyView is a consistent point-in-time copy of one strategy
type StrategyView struct {
	Strategy
	Metrics
	Confidence float64 `json:"confidence"`
}

// LeaderboardEntry is one ranked row. Ranks are 1..N without gaps.
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	Name          string  `json:"name"`
	Return        float64 `json:"return"`
	StrategyCount int     `json:"strategy_count"`
}

// FundSummary is the fund-wide roll-up of every strategy
type FundSummary struct {
	Return           float64 `json:"return"`       // equal-weight mean cumulative return, percent
	Sharpe           Sharpe  `json:"sharpe"`       // mean of the defined strategy ratios
	MaxDrawdown      float64 `json:"max_drawdown"` // deepest strategy drawdown, percent
	WinRate          float64 `json:"win_rate"`     // wins over deltas pooled across strategies
	Strategies       int     `json:"strategies"`
	ActiveStrategies int     `json:"active_strategies"`
}

// Snapshot is the immutable bundle handed to presentation clients. Receivers
// must treat the slices as read-only; they are shared between subscribers.
type Snapshot struct {
	Seq         uint64             `json:"seq"`
	AsOf        time.Time          `json:"as_of"`
	Strategies  []StrategyView     `json:"strategies"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Fund        FundSummary        `json:"fund"`
}
