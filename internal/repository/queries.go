package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of pgx shared by pools, connections and transactions.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM asset
WHERE ticker = $1
`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var a assetRow
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(
		&a.ID, &a.Ticker, &a.Name, &a.Type, &a.CreatedAt, &a.ModifiedAt)
	return a, err
}

type getAggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  time.Time
	Endtime    time.Time
}

type getAggregatesRow struct {
	Bucket  time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

// Candles are stored at their native resolution and bucketed on read (TimescaleDB).
const getAggregates = `
SELECT time_bucket($1::interval, time) AS bucket,
       asset_id,
       first(open, time) AS open,
       max(high)         AS high,
       min(low)          AS low,
       last(close, time) AS close,
       sum(volume)       AS volume
FROM candle
WHERE asset_id = $2 AND time >= $3 AND time < $4
GROUP BY bucket, asset_id
ORDER BY bucket
`

func (q *queries) GetAggregates(ctx context.Context, arg getAggregatesParams) ([]getAggregatesRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []getAggregatesRow
	for rows.Next() {
		var i getAggregatesRow
		if err := rows.Scan(&i.Bucket, &i.AssetID, &i.Open, &i.High, &i.Low, &i.Close, &i.Volume); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type insertResultParams struct {
	RunID         string
	StrategyID    string
	Ticker        string
	State         string
	StabilityFlag bool
	TestSharpe    *decimal.Decimal
	Result        []byte
	StartedAt     time.Time
	FinishedAt    time.Time
}

const insertResult = `
INSERT INTO backtest_result (
    run_id, strategy_id, ticker, state, stability_flag, test_sharpe, result, started_at, finished_at
) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
ON CONFLICT (run_id) DO UPDATE SET
    state = EXCLUDED.state,
    stability_flag = EXCLUDED.stability_flag,
    test_sharpe = EXCLUDED.test_sharpe,
    result = EXCLUDED.result,
    finished_at = EXCLUDED.finished_at
`

func (q *queries) InsertResult(ctx context.Context, arg insertResultParams) error {
	_, err := q.db.Exec(ctx, insertResult,
		arg.RunID, arg.StrategyID, arg.Ticker, arg.State, arg.StabilityFlag,
		arg.TestSharpe, arg.Result, arg.StartedAt, arg.FinishedAt)
	return err
}
