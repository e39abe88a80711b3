package perf

import "github.com/sawpanic/quantfund/internal/domain"

// Summarize rolls strategy views up into fund-level figures. Return and
// drawdown only consider strategies with at least one accepted sample; the
// Sharpe ratio stays undefined until some strategy has one.
func Summarize(views []domain.StrategyView) domain.FundSummary {
	fund := domain.FundSummary{Strategies: len(views)}

	var (
		sampled int
		returns float64
		sharpes float64
		defined int
		wins    int
		deltas  int
	)
	for _, v := range views {
		if v.Status == domain.StatusActive {
			fund.ActiveStrategies++
		}
		if v.Samples == 0 {
			continue
		}
		sampled++
		returns += v.CumulativeReturn
		if v.MaxDrawdown < fund.MaxDrawdown {
			fund.MaxDrawdown = v.MaxDrawdown
		}
		wins += v.Wins
		deltas += v.Samples - 1
		if v.Sharpe.Defined {
			sharpes += v.Sharpe.Value
			defined++
		}
	}

	if sampled > 0 {
		fund.Return = returns / float64(sampled)
	}
	if deltas > 0 {
		fund.WinRate = float64(wins) / float64(deltas) * 100
	}
	if defined > 0 {
		fund.Sharpe = domain.Sharpe{Value: sharpes / float64(defined), Defined: true}
	}
	return fund
}
