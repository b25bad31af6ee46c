package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"atlas/types"
)

// writeWindowsCSVFile writes the per-window metrics of res to a CSV file at path.
func writeWindowsCSVFile(path string, res *BacktestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create windows file: %w", err)
	}
	defer f.Close()

	return WriteWindowsCSV(f, res)
}

// WriteWindowsCSV writes one row per window and segment.
func WriteWindowsCSV(w io.Writer, res *BacktestResult) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"run_id",
		"strategy",
		"window",
		"segment",
		"start",
		"end", // exclusive
		"bars",
		"sharpe",
		"max_drawdown",
		"turnover",
		"beta",
		"win_rate",
		"profit_factor",
		"trade_count",
		"total_return",
		"volatility",
		"total_cost",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, wr := range res.Windows {
		for _, seg := range types.Segments {
			m, ok := wr.Metrics[seg]
			if !ok {
				continue
			}
			if err := writeMetricsRow(cw, res, wr.Window, seg, m); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeMetricsRow(cw *csv.Writer, res *BacktestResult, w types.Window, seg types.Segment, m types.Metrics) error {
	r := w.Range(seg)
	record := []string{
		res.RunID.String(),
		res.StrategyID,
		strconv.Itoa(w.Index),
		string(seg),
		r.Start.Format(time.DateOnly),
		r.End.Format(time.DateOnly),
		strconv.Itoa(m.Bars),
		formatFloat(m.Sharpe),
		formatFloat(m.MaxDrawdown),
		formatFloat(m.Turnover),
		formatFloat(m.Beta),
		formatFloat(m.WinRate),
		formatFloat(m.ProfitFactor),
		strconv.Itoa(m.TradeCount),
		formatFloat(m.TotalReturn),
		formatFloat(m.Volatility),
		formatFloat(m.TotalCost),
	}
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write window %d %s: %w", w.Index, seg, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
