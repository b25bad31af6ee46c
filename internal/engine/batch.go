package engine

import (
	"context"
	"io"
	"os"

	"atlas/types"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// BatchItem pairs a strategy with the outcome of its run.
type BatchItem struct {
	Code   types.CandidateCode
	Result *BacktestResult
	Err    error
}

// RunBatch backtests every strategy over the same series on a bounded pool. Strategy
// failures stay inside their item; only cancellation of ctx stops the batch early.
// Items come back in input order.
func (e *Engine) RunBatch(ctx context.Context, cfg *BatchConfig, codes []types.CandidateCode, series types.Series) ([]BatchItem, error) {
	items := make([]BatchItem, len(codes))
	bar := initProgressBar(len(codes), cfg.showProgress)
	defer bar.Finish()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i, code := range codes {
		g.Go(func() error {
			res, err := e.Run(gctx, code, series)
			items[i] = BatchItem{Code: code, Result: res, Err: err}
			bar.Add(1)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}
	return items, nil
}

func initProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if !visible {
		w = io.Discard
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Backtesting strategies..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
