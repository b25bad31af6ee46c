package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"atlas/types"

	"github.com/shopspring/decimal"
)

var ErrMalformedCSV = errors.New("malformed bar csv")

var timeColumns = []string{"date", "timestamp", "time"}

var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime}

// LoadCSV reads bars from a headed CSV with a date (or timestamp) column and open, high,
// low, close, volume columns. An adv column is optional; missing ADV is derived later.
func LoadCSV(r io.Reader, ticker string, interval types.Interval) (types.Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return types.Series{}, fmt.Errorf("%w: header: %v", ErrMalformedCSV, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	timeCol := -1
	for _, name := range timeColumns {
		if i, ok := cols[name]; ok {
			timeCol = i
			break
		}
	}
	if timeCol < 0 {
		return types.Series{}, fmt.Errorf("%w: no date column", ErrMalformedCSV)
	}
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := cols[name]; !ok {
			return types.Series{}, fmt.Errorf("%w: no %s column", ErrMalformedCSV, name)
		}
	}

	var bars []types.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.Series{}, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}
		bar, err := parseBar(rec, cols, timeCol)
		if err != nil {
			return types.Series{}, fmt.Errorf("%w: line %d: %v", ErrMalformedCSV, line, err)
		}
		bars = append(bars, bar)
	}
	return types.NewSeries(ticker, interval, bars), nil
}

func parseBar(rec []string, cols map[string]int, timeCol int) (types.Bar, error) {
	var bar types.Bar
	ts, err := parseTime(rec[timeCol])
	if err != nil {
		return bar, err
	}
	bar.Timestamp = ts
	fields := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
		{"adv", &bar.ADV},
	}
	for _, f := range fields {
		i, ok := cols[f.name]
		if !ok {
			continue
		}
		raw := strings.TrimSpace(rec[i])
		if raw == "" && f.name == "adv" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return bar, fmt.Errorf("%s %q: %v", f.name, raw, err)
		}
		*f.dst = d
	}
	return bar, nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: unrecognised format", raw)
}
