package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"atlas/internal/engine"
	"atlas/internal/walkforward"
	"atlas/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockResultsRepository struct {
	sqlError error
	saved    []insertResultParams
}

func (m *mockResultsRepository) InsertResult(_ context.Context, arg insertResultParams) error {
	if m.sqlError != nil {
		return m.sqlError
	}
	m.saved = append(m.saved, arg)
	return nil
}

func testResult() *engine.BacktestResult {
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	return &engine.BacktestResult{
		RunID:      uuid.MustParse("0b7f3c43-54a4-4a4f-9a55-1d1c58a0c001"),
		StrategyID: "ma_crossover",
		Ticker:     "SPY",
		Spec:       walkforward.DefaultSpec(),
		State:      engine.Aggregated,
		History:    []engine.State{engine.Submitted, engine.StaticPassed, engine.Executed, engine.MetricsComputed, engine.Aggregated},
		Segments: map[types.Segment]engine.SegmentSummary{
			types.SegmentTest: {Windows: 3, MeanSharpe: 0.75},
		},
		StabilityFlag: true,
		StartedAt:     start,
		FinishedAt:    start.Add(time.Second),
	}
}

func TestDatabase_SaveResult(t *testing.T) {
	tests := []struct {
		name       string
		result     func() *engine.BacktestResult
		sqlErr     error
		wantErr    error
		wantSharpe bool
	}{
		{"should save aggregated result", testResult, nil, nil, true},
		{"should save rejected result without sharpe", func() *engine.BacktestResult {
			r := testResult()
			r.State = engine.StaticRejected
			r.Segments = nil
			return r
		}, nil, nil, false},
		{"should reject missing run id", func() *engine.BacktestResult {
			r := testResult()
			r.RunID = uuid.Nil
			return r
		}, nil, ErrNoRunID, false},
		{"should reject nil result", func() *engine.BacktestResult { return nil }, nil, ErrNoRunID, false},
		{"should wrap insert errors", testResult, errBoom, errBoom, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := &mockResultsRepository{sqlError: tt.sqlErr}
			db := &Database{results: results, logger: zerolog.Nop()}
			res := tt.result()

			err := db.SaveResult(context.Background(), res)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("SaveResult() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SaveResult() unexpected error = %v", err)
			}
			if len(results.saved) != 1 {
				t.Fatalf("SaveResult() saved %d rows, want 1", len(results.saved))
			}
			got := results.saved[0]
			if got.RunID != res.RunID.String() || got.State != res.State.String() {
				t.Errorf("SaveResult() row = %s/%s, want %s/%s", got.RunID, got.State, res.RunID, res.State)
			}
			if (got.TestSharpe != nil) != tt.wantSharpe {
				t.Errorf("SaveResult() test sharpe = %v, want set %v", got.TestSharpe, tt.wantSharpe)
			}
			var decoded map[string]any
			if err := json.Unmarshal(got.Result, &decoded); err != nil {
				t.Fatalf("SaveResult() result is not json: %v", err)
			}
			if decoded["strategy_id"] != res.StrategyID {
				t.Errorf("SaveResult() json strategy_id = %v, want %v", decoded["strategy_id"], res.StrategyID)
			}
		})
	}
}
