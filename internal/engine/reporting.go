package engine

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"atlas/types"
)

// Report prints res to w and, when configured, writes the per-window CSV.
func Report(w io.Writer, cfg *ReportingConfig, res *BacktestResult) error {
	if cfg.printReport {
		printReport(w, res)
	}
	if cfg.filePath == "" || len(res.Windows) == 0 {
		return nil
	}
	name := cfg.reportName
	if name == "" {
		name = res.StrategyID
	}
	return writeWindowsCSVFile(filepath.Join(cfg.filePath, name+"_windows.csv"), res)
}

func printReport(w io.Writer, res *BacktestResult) {
	fmt.Fprintln(w, "===== Backtest Report =====")
	fmt.Fprintf(w, "Run:                   %s\n", res.RunID)
	fmt.Fprintf(w, "Strategy:              %s\n", res.StrategyID)
	fmt.Fprintf(w, "Ticker:                %s\n", res.Ticker)
	fmt.Fprintf(w, "Windows spec:          %s\n", res.Spec)
	fmt.Fprintf(w, "State:                 %s\n", res.State)
	fmt.Fprintf(w, "Elapsed:               %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	if len(res.Failures) > 0 {
		fmt.Fprintln(w, "\n-- Failures --")
		for _, f := range res.Failures {
			fmt.Fprintf(w, "%s\n", f)
		}
		fmt.Fprintln(w, "===========================")
		return
	}

	fmt.Fprintf(w, "Windows:               %d\n", len(res.Windows))
	fmt.Fprintf(w, "Stability Flag:        %t\n", res.StabilityFlag)
	for _, seg := range types.Segments {
		s := res.Segments[seg]
		fmt.Fprintf(w, "\n-- %s --\n", seg)
		fmt.Fprintf(w, "Mean Sharpe:           %.3f\n", s.MeanSharpe)
		fmt.Fprintf(w, "Sharpe Std:            %.3f\n", s.SharpeStd)
		fmt.Fprintf(w, "Min Sharpe:            %.3f\n", s.MinSharpe)
		fmt.Fprintf(w, "Unstable Windows:      %d\n", s.UnstableWindows)
		fmt.Fprintf(w, "Mean Max Drawdown:     %.2f%%\n", s.MeanMaxDrawdown*100)
		fmt.Fprintf(w, "Worst Drawdown:        %.2f%%\n", s.WorstDrawdown*100)
		fmt.Fprintf(w, "Mean Return:           %.2f%%\n", s.MeanTotalReturn*100)
		fmt.Fprintf(w, "Mean Turnover:         %.4f\n", s.MeanTurnover)
		fmt.Fprintf(w, "Mean Beta:             %.3f\n", s.MeanBeta)
		fmt.Fprintf(w, "Mean Win Rate:         %.2f%%\n", s.MeanWinRate*100)
		fmt.Fprintf(w, "Mean Profit Factor:    %.3f\n", s.MeanProfitFactor)
		fmt.Fprintf(w, "Trades:                %d\n", s.TradeCount)
		fmt.Fprintf(w, "Total Cost:            %.4f\n", s.TotalCost)
	}
	fmt.Fprintln(w, "===========================")
}
