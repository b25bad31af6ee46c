package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"atlas/types"

	"github.com/shopspring/decimal"
)

const (
	tradingDays = 252
	// tradeEpsilon is the smallest position change counted as a trade.
	tradeEpsilon = 1e-9
	// flatVariance is the return stdev below which a segment counts as flat.
	flatVariance = 1e-12
)

var ErrLengthMismatch = errors.New("signal length does not match slice")

// barReturns holds the per-bar decomposition of one segment. Index 0 carries no return
// and no turnover: the position entering the segment is taken as its first value.
type barReturns struct {
	market   []float64
	gross    []float64
	turnover []float64
	cost     []float64
	net      []float64
}

func decompose(signals types.SignalSeries, closes []float64, cost CostModel) barReturns {
	n := len(signals)
	r := barReturns{
		market:   make([]float64, n),
		gross:    make([]float64, n),
		turnover: make([]float64, n),
		cost:     make([]float64, n),
		net:      make([]float64, n),
	}
	rate := cost.Rate()
	for t := 1; t < n; t++ {
		if closes[t-1] != 0 {
			r.market[t] = closes[t]/closes[t-1] - 1
		}
		r.gross[t] = signals[t-1] * r.market[t]
		r.turnover[t] = math.Abs(signals[t] - signals[t-1])
		r.cost[t] = r.turnover[t] * rate
		r.net[t] = r.gross[t] - r.cost[t]
	}
	return r
}

// Evaluate scores one segment's positions against its bars. annualRiskFree is converted
// to a per-bar rate over 252 trading days.
func Evaluate(signals types.SignalSeries, slice types.Series, cost CostModel, annualRiskFree decimal.Decimal) (types.Metrics, error) {
	if len(signals) != slice.Len() {
		return types.Metrics{}, fmt.Errorf("%w: %d signals, %d bars", ErrLengthMismatch, len(signals), slice.Len())
	}
	r := decompose(signals, slice.Closes(), cost)
	rfDaily := math.Pow(1+annualRiskFree.InexactFloat64(), 1.0/tradingDays) - 1

	m := types.Metrics{Bars: len(signals)}
	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		m.Sharpe = calcSharpeRatio(r.net, rfDaily, &wg)
	}()
	go func() {
		m.MaxDrawdown, m.TotalReturn = calcDrawdownMetrics(r.net, &wg)
	}()
	go func() {
		m.Beta = calcBeta(r.net, r.market, &wg)
	}()
	go func() {
		m.WinRate, m.ProfitFactor, m.TradeCount = calcTradeStats(r.net, r.turnover, &wg)
	}()
	go func() {
		m.Turnover, m.TotalCost = calcTurnover(r.turnover, r.cost, &wg)
	}()
	go func() {
		m.Volatility = calcVolatility(r.net, &wg)
	}()
	wg.Wait()

	return m, nil
}

func calcSharpeRatio(net []float64, rfDaily float64, wg *sync.WaitGroup) float64 {
	defer wg.Done()
	if len(net) < 2 {
		return 0
	}
	sd := stdev(net)
	if sd <= flatVariance {
		return 0
	}
	var sum float64
	for _, r := range net {
		sum += r - rfDaily
	}
	return sum / float64(len(net)) / sd * math.Sqrt(tradingDays)
}

// calcDrawdownMetrics compounds net returns from 1 and reports the deepest peak-to-trough
// fall as a positive fraction, plus the total compounded return.
func calcDrawdownMetrics(net []float64, wg *sync.WaitGroup) (float64, float64) {
	defer wg.Done()
	equity, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range net {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-equity)/peak)
		}
	}
	return maxDD, equity - 1
}

func calcBeta(net, market []float64, wg *sync.WaitGroup) float64 {
	defer wg.Done()
	if len(net) < 2 {
		return 0
	}
	mx, my := mean(market), mean(net)
	var cov, varM float64
	for i := range net {
		cov += (market[i] - mx) * (net[i] - my)
		varM += (market[i] - mx) * (market[i] - mx)
	}
	if varM <= flatVariance*flatVariance {
		return 0
	}
	return cov / varM
}

// calcTradeStats counts bars whose turnover exceeds tradeEpsilon as trades. Win rate is
// the share of those bars with a positive net return; profit factor is gross profit over
// gross loss across the whole segment and 0 when nothing was lost.
func calcTradeStats(net, turnover []float64, wg *sync.WaitGroup) (float64, float64, int) {
	defer wg.Done()
	trades, wins := 0, 0
	var profit, loss float64
	for i, r := range net {
		if turnover[i] > tradeEpsilon {
			trades++
			if r > 0 {
				wins++
			}
		}
		switch {
		case r > 0:
			profit += r
		case r < 0:
			loss -= r
		}
	}
	winRate, profitFactor := 0.0, 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades)
	}
	if loss > 0 {
		profitFactor = profit / loss
	}
	return winRate, profitFactor, trades
}

func calcTurnover(turnover, cost []float64, wg *sync.WaitGroup) (float64, float64) {
	defer wg.Done()
	if len(turnover) < 2 {
		return 0, 0
	}
	var total, totalCost float64
	for i := 1; i < len(turnover); i++ {
		total += turnover[i]
		totalCost += cost[i]
	}
	return total / float64(len(turnover)-1), totalCost
}

func calcVolatility(net []float64, wg *sync.WaitGroup) float64 {
	defer wg.Done()
	return stdev(net) * math.Sqrt(tradingDays)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the sample standard deviation, 0 below two observations.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
