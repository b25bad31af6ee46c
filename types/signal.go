package types

import "math"

// SignalSeries holds one target position per bar, expressed as a multiple of notional
// (1.0 = fully long, -1.0 = fully short).
type SignalSeries []float64

// Tail returns the last n positions.
func (s SignalSeries) Tail(n int) SignalSeries {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Finite reports whether every position is a real number.
func (s SignalSeries) Finite() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CandidateCode is strategy source text with the identifier given to it by the generator.
type CandidateCode struct {
	id     string
	source string
}

func NewCandidateCode(id, source string) CandidateCode {
	return CandidateCode{id: id, source: source}
}

func (c CandidateCode) ID() string     { return c.id }
func (c CandidateCode) Source() string { return c.source }
