package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"atlas/types"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var testInterval = types.OneMinute
var startTime = time.UnixMilli(0).UTC()
var endTime = startTime.Add(time.Minute * 5)

type mockCandlesRepository struct {
	sqlError error
	empty    bool
	lastArg  *getAggregatesParams
}

func TestDatabase_LoadSeries(t *testing.T) {
	type args struct {
		ticker   string
		interval types.Interval
		start    time.Time
		end      time.Time
	}
	tests := []struct {
		name      string
		args      args
		assetErr  error
		sqlErr    error
		empty     bool
		wantBars  int
		wantErr   error
		wantQuery string
	}{
		{"should throw ErrNoCandles when empty", args{"AAPL", testInterval, startTime, endTime}, nil, nil, true, 0, ErrNoCandles, ""},
		{"should throw ErrNoCandles on no rows", args{"AAPL", testInterval, startTime, endTime}, nil, pgx.ErrNoRows, false, 0, ErrNoCandles, ""},
		{"should throw ErrIntervalNotSupported", args{"AAPL", types.Interval("M"), startTime, endTime}, nil, nil, false, 0, ErrIntervalNotSupported, ""},
		{"should throw ErrAssetNotFound", args{"NOPE", testInterval, startTime, endTime}, pgx.ErrNoRows, nil, false, 0, ErrAssetNotFound, ""},
		{"should return series", args{"AAPL", testInterval, startTime, endTime}, nil, nil, false, 5, nil, "1 minute"},
		{"should bucket days", args{"AAPL", types.Day, startTime, startTime.AddDate(0, 0, 3)}, nil, nil, false, 3, nil, "1 day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := &mockCandlesRepository{sqlError: tt.sqlErr, empty: tt.empty}
			db := &Database{
				assets:  mockAssetsRepository{sqlError: tt.assetErr},
				candles: candles,
				logger:  zerolog.Nop(),
			}
			got, err := db.LoadSeries(context.Background(), tt.args.ticker, tt.args.interval, tt.args.start, tt.args.end)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("LoadSeries() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadSeries() unexpected error = %v", err)
			}
			if got.Ticker != tt.args.ticker || got.Interval != tt.args.interval {
				t.Errorf("LoadSeries() series = %s/%s, want %s/%s", got.Ticker, got.Interval, tt.args.ticker, tt.args.interval)
			}
			if got.Len() != tt.wantBars {
				t.Fatalf("LoadSeries() bars = %d, want %d", got.Len(), tt.wantBars)
			}
			if candles.lastArg.TimeBucket != tt.wantQuery {
				t.Errorf("LoadSeries() bucket = %q, want %q", candles.lastArg.TimeBucket, tt.wantQuery)
			}
			for i, bar := range got.Bars {
				want := decimal.NewFromInt(bar.Timestamp.UnixMilli())
				if !bar.High.Equal(want) {
					t.Errorf("LoadSeries() bar %d high = %v, want %v", i, bar.High, want)
				}
				if !bar.ADV.IsZero() {
					t.Errorf("LoadSeries() bar %d adv = %v, want zero", i, bar.ADV)
				}
			}
			if err := got.Validate(0); err != nil {
				t.Errorf("LoadSeries() series invalid: %v", err)
			}
		})
	}
}

func (m *mockCandlesRepository) GetAggregates(_ context.Context, arg getAggregatesParams) ([]getAggregatesRow, error) {
	m.lastArg = &arg
	if m.sqlError != nil {
		return nil, m.sqlError
	}
	if m.empty {
		return nil, nil
	}
	step := time.Minute
	if arg.TimeBucket == "1 day" {
		step = 24 * time.Hour
	}
	var candles []getAggregatesRow
	for i := arg.Starttime; i.Before(arg.Endtime); i = i.Add(step) {
		v := decimal.NewFromInt(i.UnixMilli())
		candles = append(candles, getAggregatesRow{
			Bucket:  i,
			AssetID: arg.AssetID,
			Open:    v,
			High:    v,
			Low:     v,
			Close:   v,
			Volume:  v,
		})
	}
	return candles, nil
}
