package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"atlas/internal/engine"
	"atlas/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaveResult upserts a run keyed by its run id. The full result is stored as JSON next
// to the columns that are filtered on.
func (db *Database) SaveResult(ctx context.Context, res *engine.BacktestResult) error {
	arg, err := resultParams(res)
	if err != nil {
		return err
	}
	if err := db.results.InsertResult(ctx, arg); err != nil {
		return fmt.Errorf("save result %s: %w", arg.RunID, err)
	}
	db.logger.Debug().
		Str("run_id", arg.RunID).
		Str("state", arg.State).
		Msg("result saved")
	return nil
}

func resultParams(res *engine.BacktestResult) (insertResultParams, error) {
	if res == nil || res.RunID == uuid.Nil {
		return insertResultParams{}, ErrNoRunID
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return insertResultParams{}, fmt.Errorf("encode result %s: %w", res.RunID, err)
	}
	arg := insertResultParams{
		RunID:         res.RunID.String(),
		StrategyID:    res.StrategyID,
		Ticker:        res.Ticker,
		State:         res.State.String(),
		StabilityFlag: res.StabilityFlag,
		Result:        raw,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
	if test, ok := res.Segments[types.SegmentTest]; ok {
		sharpe := decimal.NewFromFloat(test.MeanSharpe)
		arg.TestSharpe = &sharpe
	}
	return arg, nil
}
