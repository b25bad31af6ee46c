package engine

import (
	"github.com/shopspring/decimal"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// CostModel charges spread plus slippage, in basis points, on every unit of turnover.
type CostModel struct {
	SpreadBps   decimal.Decimal `json:"spread_bps"`
	SlippageBps decimal.Decimal `json:"slippage_bps"`
}

func NewCostModel(spreadBps, slippageBps decimal.Decimal) CostModel {
	return CostModel{SpreadBps: spreadBps, SlippageBps: slippageBps}
}

// DefaultCostModel is 10 bps of spread and 10 bps of slippage.
func DefaultCostModel() CostModel {
	return NewCostModel(decimal.NewFromInt(10), decimal.NewFromInt(10))
}

// Rate is the fraction of traded notional lost per unit of turnover.
func (c CostModel) Rate() float64 {
	return c.SpreadBps.Add(c.SlippageBps).Div(bpsDivisor).InexactFloat64()
}

// Cost is the return drag of changing the position by turnover.
func (c CostModel) Cost(turnover float64) float64 {
	return turnover * c.Rate()
}
