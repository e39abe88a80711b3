// Package leaderboard derives ranked standings from strategy views.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sawpanic/quantfund/internal/domain"
)

// Mode selects what a leaderboard row represents
type Mode string

const (
	ModeParticipant Mode = "participant" // one row per owner
	ModeStrategy    Mode = "strategy"    // one row per strategy
)

// ParseMode validates a configured mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeParticipant, ModeStrategy:
		return m, nil
	}
	return "", fmt.Errorf("unknown leaderboard mode %q (want participant|strategy)", s)
}

// Standing is one candidate row before ranking
type Standing struct {
	Key           string // unique tie-breaker after name
	Name          string
	Return        float64
	StrategyCount int
}

// Rank orders standings by return desc, strategy count desc, name asc, key
// asc and assigns ranks 1..N. The input is not modified.
func Rank(standings []Standing) []domain.LeaderboardEntry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Return != b.Return {
			return a.Return > b.Return
		}
		if a.StrategyCount != b.StrategyCount {
			return a.StrategyCount > b.StrategyCount
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Key < b.Key
	})

	entries := make([]domain.LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		entries[i] = domain.LeaderboardEntry{
			Rank:          i + 1,
			Name:          s.Name,
			Return:        s.Return,
			StrategyCount: s.StrategyCount,
		}
	}
	return entries
}

// Ranker builds standings from strategy views according to its mode
type Ranker struct {
	mode Mode
}

// NewRanker creates a ranker; an empty mode means participant
func NewRanker(mode Mode) *Ranker {
	if mode == "" {
		mode = ModeParticipant
	}
	return &Ranker{mode: mode}
}

// Mode returns the configured mode
func (r *Ranker) Mode() Mode { return r.mode }

// Rank recomputes the full leaderboard from views
func (r *Ranker) Rank(views []domain.StrategyView) []domain.LeaderboardEntry {
	if r.mode == ModeStrategy {
		return Rank(strategyStandings(views))
	}
	return Rank(participantStandings(views))
}

func strategyStandings(views []domain.StrategyView) []Standing {
	out := make([]Standing, 0, len(views))
	for _, v := range views {
		out = append(out, Standing{
			Key:           v.ID,
			Name:          v.Name,
			Return:        v.CumulativeReturn,
			StrategyCount: 1,
		})
	}
	return out
}

// participantStandings groups by owner; the row return is the mean
// cumulative return of the owner's strategies. Unowned strategies stand
// alone under their own name.
func participantStandings(views []domain.StrategyView) []Standing {
	type group struct {
		name  string
		sum   float64
		count int
	}
	groups := make(map[string]*group)
	var keys []string

	for _, v := range views {
		key, name := "owner:"+v.Owner, v.Owner
		if v.Owner == "" {
			key, name = "strategy:"+v.ID, v.Name
		}
		g, ok := groups[key]
		if !ok {
			g = &group{name: name}
			groups[key] = g
			keys = append(keys, key)
		}
		g.sum += v.CumulativeReturn
		g.count++
	}

	out := make([]Standing, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		out = append(out, Standing{
			Key:           k,
			Name:          g.name,
			Return:        g.sum / float64(g.count),
			StrategyCount: g.count,
		})
	}
	return out
}
