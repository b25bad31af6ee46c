package engine

import (
	"math"
	"slices"

	"atlas/types"
)

// WindowResult holds the per-segment metrics of one completed window.
type WindowResult struct {
	Window  types.Window                    `json:"window"`
	Metrics map[types.Segment]types.Metrics `json:"metrics"`
}

// SegmentSummary aggregates one segment across every window of a run.
type SegmentSummary struct {
	Windows          int     `json:"windows"`
	MeanSharpe       float64 `json:"mean_sharpe"`
	SharpeStd        float64 `json:"sharpe_std"`
	MinSharpe        float64 `json:"min_sharpe"`
	MeanMaxDrawdown  float64 `json:"mean_max_drawdown"`
	WorstDrawdown    float64 `json:"worst_drawdown"`
	MeanTurnover     float64 `json:"mean_turnover"`
	MeanBeta         float64 `json:"mean_beta"`
	MeanWinRate      float64 `json:"mean_win_rate"`
	MeanProfitFactor float64 `json:"mean_profit_factor"`
	MeanTotalReturn  float64 `json:"mean_total_return"`
	TradeCount       int     `json:"trade_count"`
	TotalCost        float64 `json:"total_cost"`
	// UnstableWindows counts windows whose Sharpe fell below the stability threshold.
	UnstableWindows int `json:"unstable_windows"`
}

// sortWindows orders results by train start, the order windows were generated in.
func sortWindows(results []WindowResult) {
	slices.SortFunc(results, func(a, b WindowResult) int {
		return a.Window.Train.Start.Compare(b.Window.Train.Start)
	})
}

func Aggregate(results []WindowResult, stabilitySharpe float64) map[types.Segment]SegmentSummary {
	out := make(map[types.Segment]SegmentSummary, len(types.Segments))
	for _, seg := range types.Segments {
		var s SegmentSummary
		sharpes := make([]float64, 0, len(results))
		for _, r := range results {
			m, ok := r.Metrics[seg]
			if !ok {
				continue
			}
			s.Windows++
			sharpes = append(sharpes, m.Sharpe)
			s.MeanMaxDrawdown += m.MaxDrawdown
			s.WorstDrawdown = math.Max(s.WorstDrawdown, m.MaxDrawdown)
			s.MeanTurnover += m.Turnover
			s.MeanBeta += m.Beta
			s.MeanWinRate += m.WinRate
			s.MeanProfitFactor += m.ProfitFactor
			s.MeanTotalReturn += m.TotalReturn
			s.TradeCount += m.TradeCount
			s.TotalCost += m.TotalCost
			if m.Sharpe < stabilitySharpe {
				s.UnstableWindows++
			}
		}
		if s.Windows > 0 {
			n := float64(s.Windows)
			s.MeanSharpe = mean(sharpes)
			s.SharpeStd = stdev(sharpes)
			s.MinSharpe = slices.Min(sharpes)
			s.MeanMaxDrawdown /= n
			s.MeanTurnover /= n
			s.MeanBeta /= n
			s.MeanWinRate /= n
			s.MeanProfitFactor /= n
			s.MeanTotalReturn /= n
		}
		out[seg] = s
	}
	return out
}

// StabilityFlag is set when any test-segment Sharpe is below threshold.
func StabilityFlag(results []WindowResult, threshold float64) bool {
	for _, r := range results {
		if m, ok := r.Metrics[types.SegmentTest]; ok && m.Sharpe < threshold {
			return true
		}
	}
	return false
}
