package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"atlas/types"

	"github.com/shopspring/decimal"
)

func TestLoadCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantBars int
		wantADV  bool
		wantErr  error
	}{
		{
			name:     "should read daily bars",
			input:    "Date,Open,High,Low,Close,Volume\n2024-01-02,10,11,9,10.5,1000\n2024-01-03,10.5,12,10,11.5,1200\n",
			wantBars: 2,
		},
		{
			name:     "should read timestamps and adv",
			input:    "timestamp,open,high,low,close,volume,adv\n2024-01-02T14:30:00Z,1,1,1,1,5,7\n",
			wantBars: 1,
			wantADV:  true,
		},
		{
			name:     "should leave blank adv unset",
			input:    "date,open,high,low,close,volume,adv\n2024-01-02,1,1,1,1,5,\n",
			wantBars: 1,
		},
		{"should reject empty input", "", 0, false, ErrMalformedCSV},
		{"should reject missing date", "open,high,low,close,volume\n1,1,1,1,1\n", 0, false, ErrMalformedCSV},
		{"should reject missing close", "date,open,high,low,volume\n2024-01-02,1,1,1,1\n", 0, false, ErrMalformedCSV},
		{"should reject bad number", "date,open,high,low,close,volume\n2024-01-02,1,x,1,1,1\n", 0, false, ErrMalformedCSV},
		{"should reject bad date", "date,open,high,low,close,volume\n02/01/2024,1,1,1,1,1\n", 0, false, ErrMalformedCSV},
		{"should reject ragged rows", "date,open,high,low,close,volume\n2024-01-02,1,1,1\n", 0, false, ErrMalformedCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadCSV(strings.NewReader(tt.input), "SPY", types.Day)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("LoadCSV() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadCSV() unexpected error = %v", err)
			}
			if got.Len() != tt.wantBars {
				t.Fatalf("LoadCSV() bars = %d, want %d", got.Len(), tt.wantBars)
			}
			if got.Ticker != "SPY" || got.Interval != types.Day {
				t.Errorf("LoadCSV() series = %s/%s", got.Ticker, got.Interval)
			}
			if got.Bars[0].ADV.IsZero() == tt.wantADV {
				t.Errorf("LoadCSV() adv = %v, want set %v", got.Bars[0].ADV, tt.wantADV)
			}
		})
	}
}

func TestLoadCSV_Values(t *testing.T) {
	input := "date,open,high,low,close,volume\n2024-01-02,10,11,9,10.5,1000\n"
	got, err := LoadCSV(strings.NewReader(input), "SPY", types.Day)
	if err != nil {
		t.Fatalf("LoadCSV() unexpected error = %v", err)
	}
	bar := got.Bars[0]
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); !bar.Timestamp.Equal(want) {
		t.Errorf("LoadCSV() timestamp = %v, want %v", bar.Timestamp, want)
	}
	if !bar.Close.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("LoadCSV() close = %v, want 10.5", bar.Close)
	}
	if !bar.Volume.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("LoadCSV() volume = %v, want 1000", bar.Volume)
	}
}
