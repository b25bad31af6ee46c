package guard

import (
	"math"
	"testing"
	"time"

	"atlas/internal/policy"
	"atlas/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatSeries builds n daily bars at a constant close and ADV.
func flatSeries(n int, closePx, adv float64) types.Series {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		px := decimal.NewFromFloat(closePx)
		bars[i] = types.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      px, High: px, Low: px, Close: px,
			Volume: decimal.NewFromFloat(adv),
			ADV:    decimal.NewFromFloat(adv),
		}
	}
	return types.NewSeries("TEST", types.Day, bars)
}

func TestValidateSignals(t *testing.T) {
	// Notional 1e6 at close 100 with ADV 10k and 5% participation allows 500 units,
	// i.e. a position change of up to 0.05 per bar.
	segment := flatSeries(4, 100, 10_000)

	tests := []struct {
		name    string
		signals types.SignalSeries
		want    []string
		bars    []int
	}{
		{"within limits", types.SignalSeries{0.01, 0.05, 0.05, 0.0}, nil, nil},
		{"leverage", types.SignalSeries{0.05, 0.05, 2.5, 2.5}, []string{"RUN002", "RUN001", "RUN001", "RUN005"}, []int{2, 2, 3, 3}},
		{"order size from flat", types.SignalSeries{0.5, 0.5, 0.5, 0.5}, []string{"RUN002"}, []int{0}},
		{"non finite", types.SignalSeries{0, math.NaN(), 0, math.Inf(1)}, []string{"RUN003", "RUN003"}, []int{1, 3}},
		{"length", types.SignalSeries{0, 0}, []string{"RUN004"}, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateSignals(tt.signals, segment, policy.Default())
			assert.Equal(t, len(tt.want) == 0, res.Passed)
			require.Len(t, res.Violations, len(tt.want), "got %v", res.Messages())
			for i, v := range res.Violations {
				assert.Equal(t, tt.bars[i], v.Bar)
				assert.True(t, v.Category.Runtime())
			}
			ids := make([]string, 0, len(res.Violations))
			for _, v := range res.Violations {
				ids = append(ids, v.RuleID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestValidateSignals_LeverageBoundaryIsInclusive(t *testing.T) {
	p := policy.Default()
	p.Limits.MaxPositionPctADV = 1
	p.Limits.MaxTurnover = 10
	segment := flatSeries(2, 1, 1e9)
	res := ValidateSignals(types.SignalSeries{2.0, -2.0}, segment, p)
	assert.True(t, res.Passed, "violations: %v", res.Messages())
}

func TestValidateSignals_Turnover(t *testing.T) {
	p := policy.Default()
	p.Limits.MaxPositionPctADV = 1
	segment := flatSeries(6, 1, 1e9)

	tests := []struct {
		name    string
		signals types.SignalSeries
		passed  bool
	}{
		{"flip every bar", types.SignalSeries{1, -1, 1, -1, 1, -1}, false},
		{"at the limit", types.SignalSeries{0, 0.5, 1, 0.5, 1, 0.5}, true},
		{"entry bar not counted", types.SignalSeries{1, 1, 1, 1, 1, 1}, true},
		{"occasional switch", types.SignalSeries{1, 1, 1, -1, -1, -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateSignals(tt.signals, segment, p)
			assert.Equal(t, tt.passed, res.Passed, "violations: %v", res.Messages())
			if !tt.passed {
				require.Len(t, res.Violations, 1)
				v := res.Violations[0]
				assert.Equal(t, "RUN005", v.RuleID)
				assert.Equal(t, types.CategoryRuntimeTurnover, v.Category)
				assert.True(t, v.Category.Runtime())
				assert.Equal(t, len(tt.signals)-1, v.Bar)
			}
		})
	}
}
