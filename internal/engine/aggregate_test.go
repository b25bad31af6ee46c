package engine

import (
	"math"
	"testing"
	"time"

	"atlas/types"
)

func windowWithSharpes(index int, train, validate, test float64) WindowResult {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, index, 0)
	return WindowResult{
		Window: types.Window{Index: index, Train: types.DateRange{Start: start, End: start.AddDate(1, 0, 0)}},
		Metrics: map[types.Segment]types.Metrics{
			types.SegmentTrain:    {Sharpe: train, TradeCount: 2, MaxDrawdown: 0.1},
			types.SegmentValidate: {Sharpe: validate, TradeCount: 1, MaxDrawdown: 0.2},
			types.SegmentTest:     {Sharpe: test, TradeCount: 1, MaxDrawdown: 0.3, TotalCost: 0.01},
		},
	}
}

func TestStabilityFlag(t *testing.T) {
	tests := []struct {
		name    string
		results []WindowResult
		want    bool
	}{
		{
			name:    "one test sharpe of 0.1 is unstable",
			results: []WindowResult{windowWithSharpes(0, 2, 2, 1.5), windowWithSharpes(1, 2, 2, 0.1)},
			want:    true,
		},
		{
			name:    "all test sharpes at or above 0.3 are stable",
			results: []WindowResult{windowWithSharpes(0, 2, 2, 0.3), windowWithSharpes(1, 2, 2, 0.9)},
			want:    false,
		},
		{
			name:    "weak train and validate segments do not count",
			results: []WindowResult{windowWithSharpes(0, -1, 0.1, 0.5)},
			want:    false,
		},
		{
			name:    "negative test sharpe",
			results: []WindowResult{windowWithSharpes(0, 1, 1, -0.4)},
			want:    true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StabilityFlag(tc.results, 0.3); got != tc.want {
				t.Errorf("StabilityFlag() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	results := []WindowResult{
		windowWithSharpes(0, 1, 0.5, 0.2),
		windowWithSharpes(1, 2, 0.5, 0.4),
		windowWithSharpes(2, 3, 0.5, 0.6),
	}
	got := Aggregate(results, 0.3)

	test := got[types.SegmentTest]
	if test.Windows != 3 {
		t.Errorf("Windows = %d, want 3", test.Windows)
	}
	if !near(test.MeanSharpe, 0.4) {
		t.Errorf("MeanSharpe = %v, want 0.4", test.MeanSharpe)
	}
	if !near(test.SharpeStd, 0.2) {
		t.Errorf("SharpeStd = %v, want 0.2", test.SharpeStd)
	}
	if !near(test.MinSharpe, 0.2) {
		t.Errorf("MinSharpe = %v, want 0.2", test.MinSharpe)
	}
	if test.UnstableWindows != 1 {
		t.Errorf("UnstableWindows = %d, want 1", test.UnstableWindows)
	}
	if test.TradeCount != 3 || !near(test.TotalCost, 0.03) {
		t.Errorf("TradeCount %d TotalCost %v, want 3 and 0.03", test.TradeCount, test.TotalCost)
	}
	if !near(test.WorstDrawdown, 0.3) || !near(test.MeanMaxDrawdown, 0.3) {
		t.Errorf("drawdowns = %v / %v, want 0.3", test.WorstDrawdown, test.MeanMaxDrawdown)
	}

	train := got[types.SegmentTrain]
	if !near(train.MeanSharpe, 2) || train.UnstableWindows != 0 || train.TradeCount != 6 {
		t.Errorf("train summary = %+v", train)
	}
	if validate := got[types.SegmentValidate]; validate.SharpeStd != 0 {
		t.Errorf("validate SharpeStd = %v, want 0", validate.SharpeStd)
	}
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil, 0.3)
	for _, seg := range types.Segments {
		s := got[seg]
		if s.Windows != 0 || s.MeanSharpe != 0 || math.IsNaN(s.SharpeStd) {
			t.Errorf("%s summary = %+v, want zero", seg, s)
		}
	}
}

func TestSortWindows(t *testing.T) {
	results := []WindowResult{windowWithSharpes(2, 0, 0, 0), windowWithSharpes(0, 0, 0, 0), windowWithSharpes(1, 0, 0, 0)}
	sortWindows(results)
	for i, r := range results {
		if r.Window.Index != i {
			t.Fatalf("position %d holds window %d", i, r.Window.Index)
		}
	}
}
