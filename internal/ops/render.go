package ops

import (
	"fmt"
	"io"
	"strings"

	"github.com/sawpanic/quantfund/internal/domain"
)

// StatusRenderer prints snapshots and counters as console tables
type StatusRenderer struct {
	out io.Writer
}

// NewStatusRenderer creates a renderer writing to out
func NewStatusRenderer(out io.Writer) *StatusRenderer {
	return &StatusRenderer{out: out}
}

// RenderSnapshot renders the fund summary, the leaderboard, the strategy cards and the counters
func (r *StatusRenderer) RenderSnapshot(snap *domain.Snapshot, summary Summary) {
	fmt.Fprintln(r.out, "=== QuantFund Leaderboard ===")
	fmt.Fprintf(r.out, "Tick: %d   As of: %s\n\n", snap.Seq, snap.AsOf.Format("2006-01-02 15:04:05"))

	r.renderFund(snap.Fund)
	fmt.Fprintln(r.out)
	r.renderLeaderboard(snap.Leaderboard)
	fmt.Fprintln(r.out)
	r.renderStrategies(snap.Strategies)
	fmt.Fprintln(r.out)
	r.renderCounters(summary)
}

func (r *StatusRenderer) renderFund(f domain.FundSummary) {
	fmt.Fprintln(r.out, "💰 FUND PERFORMANCE")
	fmt.Fprintf(r.out, "Return: %.2f%%   Sharpe: %s   Max drawdown: %.2f%%   Win rate: %.1f%%   Active: %d/%d\n",
		f.Return, sharpeText(f.Sharpe), f.MaxDrawdown, f.WinRate, f.ActiveStrategies, f.Strategies)
}

func (r *StatusRenderer) renderLeaderboard(entries []domain.LeaderboardEntry) {
	fmt.Fprintln(r.out, "🏆 LEADERBOARD")
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "No strategies registered")
		return
	}
	fmt.Fprintln(r.out, "┌──────┬──────────────────────┬──────────┬────────────┐")
	fmt.Fprintln(r.out, "│ Rank │ Name                 │ Return   │ Strategies │")
	fmt.Fprintln(r.out, "├──────┼──────────────────────┼──────────┼────────────┤")
	for _, e := range entries {
		fmt.Fprintf(r.out, "│ %4d │ %-20s │ %7.2f%% │ %10d │\n",
			e.Rank, truncate(e.Name, 20), e.Return, e.StrategyCount)
	}
	fmt.Fprintln(r.out, "└──────┴──────────────────────┴──────────┴────────────┘")
}

func (r *StatusRenderer) renderStrategies(views []domain.StrategyView) {
	fmt.Fprintln(r.out, "📈 STRATEGIES")
	if len(views) == 0 {
		return
	}
	fmt.Fprintln(r.out, "┌──────────────────────┬───────────┬──────────┬─────────┬──────────┬──────────┬────────────┐")
	fmt.Fprintln(r.out, "│ Strategy             │ Status    │ Return   │ Sharpe  │ Drawdown │ Win rate │ Confidence │")
	fmt.Fprintln(r.out, "├──────────────────────┼───────────┼──────────┼─────────┼──────────┼──────────┼────────────┤")
	for _, v := range views {
		fmt.Fprintf(r.out, "│ %-20s │ %-9s │ %7.2f%% │ %7s │ %7.2f%% │ %7.1f%% │ %9.1f%% │\n",
			truncate(v.Name, 20), v.Status, v.CumulativeReturn, sharpeText(v.Sharpe),
			v.MaxDrawdown, v.WinRate, v.Confidence)
	}
	fmt.Fprintln(r.out, "└──────────────────────┴───────────┴──────────┴─────────┴──────────┴──────────┴────────────┘")
}

func (r *StatusRenderer) renderCounters(s Summary) {
	fmt.Fprintf(r.out, "Observations accepted: %d   rejection rate: %.1f%%\n", s.Accepted, s.RejectionRate)
	for _, reason := range s.Reasons() {
		if n := s.Counts[reason]; n > 0 {
			fmt.Fprintf(r.out, "  %-20s %d\n", reason, n)
		}
	}
}

func sharpeText(s domain.Sharpe) string {
	if !s.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", s.Value)
}

// truncate shortens s to n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
