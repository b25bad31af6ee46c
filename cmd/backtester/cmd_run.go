package main

import (
	"context"
	"fmt"
	"os"

	"atlas/internal/engine"
	"atlas/internal/obs"
	"atlas/internal/sandbox"
	"atlas/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	runData     dataFlags
	runSave     bool
	runMigrate  bool
	runNoPrint  bool
	runProgress bool
	runReport   string
)

// runCmd backtests strategies end to end.
var runCmd = &cobra.Command{
	Use:   "run [file.star|seed]...",
	Short: "Validate, execute and score strategies over walk-forward windows",
	Long: `Run each strategy through static validation, the sandbox, runtime signal checks and
the metrics engine over every walk-forward window of the data. Without arguments every
seed strategy is run.

Examples:
  backtester run --csv spy.csv ma_crossover
  backtester run --ticker SPY --from 2010-01-01 --save my_strategy.star
  backtester run --csv spy.csv --report-dir out/`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runData.register(runCmd)

	runCmd.Flags().BoolVar(&runSave, "save", false, "Store results in the database")
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "Create missing tables before saving")
	runCmd.Flags().BoolVar(&runNoPrint, "quiet", false, "Do not print per-strategy reports")
	runCmd.Flags().BoolVar(&runProgress, "progress", true, "Show a progress bar when stderr is a terminal")
	runCmd.Flags().StringVar(&runReport, "report-dir", "", "Write per-window CSVs here (default report.dir)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := cfg.Policy()
	if err != nil {
		return err
	}
	spec, err := cfg.WindowSpec()
	if err != nil {
		return err
	}
	codes, err := loadStrategies(args)
	if err != nil {
		return err
	}

	db := &lazyDatabase{}
	defer db.Close()
	series, err := runData.load(ctx, db)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	cost := engine.NewCostModel(decimal.NewFromFloat(cfg.Costs.SpreadBps), decimal.NewFromFloat(cfg.Costs.SlippageBps))
	btCfg := engine.NewBacktestConfig(p, spec, cost, decimal.NewFromFloat(cfg.Backtest.RiskFreeRate), cfg.Backtest.WindowWorkers, cfg.Backtest.MaxGap)
	eng := engine.NewEngine(btCfg, sandbox.NewExecutor(logger), logger, metrics)

	showProgress := runProgress && term.IsTerminal(int(os.Stderr.Fd()))
	logger.Info().
		Str("ticker", series.Ticker).
		Int("bars", series.Len()).
		Int("strategies", len(codes)).
		Str("spec", spec.String()).
		Msg("starting backtest")

	items, err := eng.RunBatch(ctx, engine.NewBatchConfig(cfg.Backtest.StrategyWorkers, showProgress), codes, series)
	if err != nil {
		return err
	}

	reportCfg := engine.NewReportingConfig(cfg.Report.Print && !runNoPrint, "", runReportDir())
	failed := 0
	for _, item := range items {
		if item.Err != nil {
			return item.Err
		}
		if item.Result.State != engine.Aggregated {
			failed++
		}
		if err := engine.Report(cmd.OutOrStdout(), reportCfg, item.Result); err != nil {
			return err
		}
		if runSave {
			if err := saveResult(ctx, db, item.Result); err != nil {
				return err
			}
		}
	}

	if cfg.Report.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Report.MetricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	printSummary(cmd, items)
	if failed > 0 {
		return fmt.Errorf("%d of %d strategies did not aggregate", failed, len(items))
	}
	return nil
}

func runReportDir() string {
	if runReport != "" {
		return runReport
	}
	return cfg.Report.Dir
}

func saveResult(ctx context.Context, lazy *lazyDatabase, res *engine.BacktestResult) error {
	db, err := lazy.get(ctx)
	if err != nil {
		return err
	}
	if runMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		runMigrate = false
	}
	return db.SaveResult(ctx, res)
}

func printSummary(cmd *cobra.Command, items []engine.BatchItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "===== Summary =====")
	for _, item := range items {
		res := item.Result
		line := fmt.Sprintf("%-20s %-16s", item.Code.ID(), res.State)
		if test, ok := res.Segments[types.SegmentTest]; ok {
			line += fmt.Sprintf(" test sharpe %6.2f  stable %v", test.MeanSharpe, res.StabilityFlag)
		} else if len(res.Failures) > 0 {
			line += " " + string(res.Failures[0].Kind)
		}
		fmt.Fprintln(out, line)
	}
}
