package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV observation. ADV is the average daily volume known at the bar.
type Bar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	ADV       decimal.Decimal `json:"adv"`
}
