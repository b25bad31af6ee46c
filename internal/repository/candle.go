package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atlas/types"

	"github.com/jackc/pgx/v5"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:      "1 minute",
	types.FiveMinutes:    "5 minutes",
	types.FifteenMinutes: "15 minutes",
	types.ThirtyMinutes:  "30 minutes",
	types.Hour:           "1 hour",
	types.FourHours:      "4 hours",
	types.Day:            "1 day",
	types.Week:           "1 week",
}

// LoadSeries reads the bars of ticker in [start, end) bucketed to interval.
func (db *Database) LoadSeries(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) (types.Series, error) {
	asset, err := db.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return types.Series{}, err
	}
	bars, err := db.getAggregates(ctx, asset.Id, interval, start, end)
	if err != nil {
		return types.Series{}, fmt.Errorf("ticker %s: %w", ticker, err)
	}
	db.logger.Debug().
		Str("ticker", ticker).
		Str("interval", string(interval)).
		Int("bars", len(bars)).
		Msg("series loaded")
	return types.NewSeries(ticker, interval, bars), nil
}

func (db *Database) getAggregates(ctx context.Context, assetId int, interval types.Interval, start, end time.Time) ([]types.Bar, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, ErrIntervalNotSupported
	}
	args := getAggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(assetId),
		Starttime:  start,
		Endtime:    end,
	}
	candles, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandles
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return convertCandles(candles), nil
}

func convertCandles(rows []getAggregatesRow) []types.Bar {
	bars := make([]types.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, types.Bar{
			Timestamp: row.Bucket,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return bars
}
