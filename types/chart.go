package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownInterval = errors.New("unknown interval")
	ErrUnorderedBars   = errors.New("bar dates are not strictly increasing")
	ErrCalendarGap     = errors.New("gap between bars exceeds calendar")
	ErrEmptySeries     = errors.New("series has no bars")
)

type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeEtf    AssetType = "ETF"
)

type Asset struct {
	Id     int       `json:"id"`
	Ticker string    `json:"ticker"`
	Name   string    `json:"name"`
	Type   AssetType `json:"type"`
}

// Series is a single-instrument market history ordered by time. Callers treat it as
// immutable; every slicing method returns a view that shares the bar array.
type Series struct {
	Ticker   string   `json:"ticker"`
	Interval Interval `json:"interval"`
	Bars     []Bar    `json:"bars"`
}

func NewSeries(ticker string, interval Interval, bars []Bar) Series {
	return Series{Ticker: ticker, Interval: interval, Bars: bars}
}

func (s Series) Len() int { return len(s.Bars) }

func (s Series) Start() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// End is the exclusive end of the data: the close time of the last bar.
func (s Series) End() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp.Add(s.Interval.Duration())
}

// Validate checks the ordering invariant and that no two consecutive bars are further
// apart than maxGap. A zero maxGap disables the calendar check.
func (s Series) Validate(maxGap time.Duration) error {
	if len(s.Bars) == 0 {
		return ErrEmptySeries
	}
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Timestamp, s.Bars[i].Timestamp
		if !cur.After(prev) {
			return fmt.Errorf("%s at %s: %w", s.Ticker, cur.Format(time.DateOnly), ErrUnorderedBars)
		}
		if maxGap > 0 && cur.Sub(prev) > maxGap {
			return fmt.Errorf("%s between %s and %s: %w", s.Ticker,
				prev.Format(time.DateOnly), cur.Format(time.DateOnly), ErrCalendarGap)
		}
	}
	return nil
}

// Between returns the bars with Start <= timestamp < End.
func (s Series) Between(r DateRange) Series {
	lo := s.search(r.Start)
	hi := s.search(r.End)
	if hi < lo {
		hi = lo
	}
	return Series{Ticker: s.Ticker, Interval: s.Interval, Bars: s.Bars[lo:hi:hi]}
}

// search returns the index of the first bar at or after t.
func (s Series) search(t time.Time) int {
	lo, hi := 0, len(s.Bars)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.Bars[mid].Timestamp.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Concat joins views of the same instrument. The parts must already be in time order.
func Concat(parts ...Series) Series {
	out := Series{}
	n := 0
	for _, p := range parts {
		n += len(p.Bars)
	}
	out.Bars = make([]Bar, 0, n)
	for _, p := range parts {
		if out.Ticker == "" {
			out.Ticker, out.Interval = p.Ticker, p.Interval
		}
		out.Bars = append(out.Bars, p.Bars...)
	}
	return out
}

// WithADV returns a copy whose bars carry the trailing mean volume over window bars
// wherever ADV is not already set. The first bars average whatever history exists.
func (s Series) WithADV(window int) Series {
	if window <= 0 {
		window = 1
	}
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	sum := decimal.Zero
	for i := range bars {
		sum = sum.Add(bars[i].Volume)
		if i >= window {
			sum = sum.Sub(bars[i-window].Volume)
		}
		if !bars[i].ADV.IsZero() {
			continue
		}
		n := window
		if i+1 < window {
			n = i + 1
		}
		bars[i].ADV = sum.Div(decimal.NewFromInt(int64(n)))
	}
	return Series{Ticker: s.Ticker, Interval: s.Interval, Bars: bars}
}

// Closes returns the close prices as float64.
func (s Series) Closes() []float64 {
	return s.column(func(b Bar) decimal.Decimal { return b.Close })
}

func (s Series) ADVs() []float64 {
	return s.column(func(b Bar) decimal.Decimal { return b.ADV })
}

func (s Series) Column(name string) []float64 {
	switch name {
	case "open":
		return s.column(func(b Bar) decimal.Decimal { return b.Open })
	case "high":
		return s.column(func(b Bar) decimal.Decimal { return b.High })
	case "low":
		return s.column(func(b Bar) decimal.Decimal { return b.Low })
	case "close":
		return s.Closes()
	case "volume":
		return s.column(func(b Bar) decimal.Decimal { return b.Volume })
	case "adv":
		return s.ADVs()
	}
	return nil
}

func (s Series) column(get func(Bar) decimal.Decimal) []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = get(b).InexactFloat64()
	}
	return out
}
