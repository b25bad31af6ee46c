package guard

import (
	"fmt"
	"math"

	"atlas/internal/policy"
	"atlas/types"
)

// tolerance absorbs float noise when a position sits exactly on a limit.
const tolerance = 1e-9

// ValidateSignals re-checks produced positions bar by bar against the numeric limits.
// It is the authority on leverage, order size and turnover: static analysis cannot see
// values computed at runtime.
//
// The position before the first bar is taken as flat, so the first bar's order size is
// the whole position even when the strategy held it through the previous segment. The
// turnover check and the metrics engine instead start counting position changes at the
// second bar.
func ValidateSignals(signals types.SignalSeries, segment types.Series, p *policy.Policy) types.ValidationResult {
	if len(signals) != segment.Len() {
		return types.NewValidationResult([]types.Violation{{
			RuleID: "RUN004", Category: types.CategoryRuntimeLength, Bar: 0,
			Message: fmt.Sprintf("%d positions for %d bars", len(signals), segment.Len()),
		}})
	}

	limits := p.Limits
	closes := segment.Closes()
	advs := segment.ADVs()
	var out []types.Violation
	prev := 0.0
	for i, pos := range signals {
		if math.IsNaN(pos) || math.IsInf(pos, 0) {
			out = append(out, types.Violation{
				RuleID: "RUN003", Category: types.CategoryRuntimeValue, Bar: i,
				Message: fmt.Sprintf("position is %v", pos),
			})
			continue
		}
		if math.Abs(pos) > limits.MaxLeverage+tolerance {
			out = append(out, types.Violation{
				RuleID: "RUN001", Category: types.CategoryRuntimeLimit, Bar: i,
				Message: fmt.Sprintf("|position| %g exceeds max leverage %g", math.Abs(pos), limits.MaxLeverage),
			})
		}
		if delta := math.Abs(pos - prev); delta > 0 && closes[i] > 0 {
			order := delta * limits.Notional / closes[i]
			capacity := limits.MaxPositionPctADV * advs[i]
			if order > capacity*(1+tolerance)+tolerance {
				out = append(out, types.Violation{
					RuleID: "RUN002", Category: types.CategoryRuntimeSize, Bar: i,
					Message: fmt.Sprintf("order of %.2f units exceeds %.2f (%g of ADV %.2f)",
						order, capacity, limits.MaxPositionPctADV, advs[i]),
				})
			}
		}
		prev = pos
	}
	if turnover := meanTurnover(signals); turnover > limits.MaxTurnover+tolerance {
		out = append(out, types.Violation{
			RuleID: "RUN005", Category: types.CategoryRuntimeTurnover, Bar: len(signals) - 1,
			Message: fmt.Sprintf("mean turnover %.3f per bar exceeds %g", turnover, limits.MaxTurnover),
		})
	}
	return types.NewValidationResult(out)
}

// meanTurnover is the mean |position change| from the second bar on. Non-finite
// positions yield NaN, which never exceeds the limit; RUN003 reports them.
func meanTurnover(signals types.SignalSeries) float64 {
	if len(signals) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(signals); i++ {
		sum += math.Abs(signals[i] - signals[i-1])
	}
	return sum / float64(len(signals)-1)
}
