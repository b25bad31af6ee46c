package types

// Metrics is the performance of one strategy over one evaluated slice.
type Metrics struct {
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Turnover     float64 `json:"turnover"`
	Beta         float64 `json:"beta"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TradeCount   int     `json:"trade_count"`

	TotalReturn float64 `json:"total_return"`
	Volatility  float64 `json:"volatility"`
	TotalCost   float64 `json:"total_cost"`
	Bars        int     `json:"bars"`
}
