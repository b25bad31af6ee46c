// Package engine drives a strategy through static validation, sandboxed execution on
// every walk-forward window, runtime re-validation, scoring and aggregation.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"atlas/internal/failure"
	"atlas/internal/guard"
	"atlas/internal/obs"
	"atlas/internal/walkforward"
	"atlas/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errWindowFailed = errors.New("window failed")

type Engine struct {
	config   *BacktestConfig
	executor executor
	logger   zerolog.Logger
	metrics  *obs.Metrics
}

// NewEngine wires an engine. metrics may be nil.
func NewEngine(config *BacktestConfig, exec executor, logger zerolog.Logger, metrics *obs.Metrics) *Engine {
	return &Engine{
		config:   config,
		executor: exec,
		logger:   logger,
		metrics:  metrics,
	}
}

// BacktestResult is everything known about one strategy run. Windows and Segments are
// only populated when State is Aggregated; any failure discards partial metrics.
type BacktestResult struct {
	RunID         uuid.UUID                        `json:"run_id"`
	StrategyID    string                           `json:"strategy_id"`
	Ticker        string                           `json:"ticker"`
	Spec          walkforward.Spec                 `json:"spec"`
	State         State                            `json:"state"`
	History       []State                          `json:"history"`
	Validation    types.ValidationResult           `json:"validation"`
	Windows       []WindowResult                   `json:"windows,omitempty"`
	Segments      map[types.Segment]SegmentSummary `json:"segments,omitempty"`
	StabilityFlag bool                             `json:"stability_flag"`
	Failures      []*failure.Failure               `json:"failures,omitempty"`
	StartedAt     time.Time                        `json:"started_at"`
	FinishedAt    time.Time                        `json:"finished_at"`
}

// Err joins the failures of the run, nil when it aggregated.
func (r *BacktestResult) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Run backtests code over series. The result is always returned; the error is the
// joined strategy failures, or the context error when ctx is cancelled mid-run.
func (e *Engine) Run(ctx context.Context, code types.CandidateCode, series types.Series) (*BacktestResult, error) {
	res := &BacktestResult{
		RunID:      uuid.New(),
		StrategyID: code.ID(),
		Ticker:     series.Ticker,
		Spec:       e.config.spec,
		StartedAt:  time.Now().UTC(),
	}
	lc := newLifecycle(Submitted)
	logger := e.logger.With().Str("run_id", res.RunID.String()).Str("strategy", code.ID()).Logger()

	e.metrics.RunStarted()
	outcome := "Cancelled"
	defer func() {
		res.State = lc.state
		res.History = lc.history
		res.FinishedAt = time.Now().UTC()
		e.metrics.RunFinished(outcome)
	}()

	finish := func(to State, failures ...*failure.Failure) error {
		if err := lc.advance(to); err != nil {
			return err
		}
		outcome = to.String()
		res.Failures = append(res.Failures, failures...)
		return res.Err()
	}

	approved, validation := guard.Approve(code, e.config.policy)
	res.Validation = validation
	if approved == nil {
		e.metrics.ObserveViolations(validation.Violations)
		logger.Info().Strs("violations", validation.Messages()).Msg("strategy rejected by static validation")
		return res, finish(StaticRejected, failure.FromValidation(validation, false))
	}
	if err := lc.advance(StaticPassed); err != nil {
		return res, err
	}

	if err := series.Validate(e.config.maxGap); err != nil {
		return res, finish(ExecutionFailed, failure.Wrap(failure.KindInsufficientData, err, "market series is unusable"))
	}
	series = series.WithADV(e.config.advWindow)

	windows := slices.Collect(walkforward.Windows(series, e.config.spec))
	if len(windows) == 0 {
		return res, finish(ExecutionFailed, failure.New(failure.KindInsufficientData,
			"%s between %s and %s cannot hold one window of %s", series.Ticker,
			series.Start().Format(time.DateOnly), series.End().Format(time.DateOnly), e.config.spec))
	}
	logger.Debug().Int("windows", len(windows)).Msg("strategy passed static validation")

	results, failures, err := e.runWindows(ctx, logger, approved, series, windows)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err != nil {
		return res, err
	}
	if len(failures) > 0 {
		to := ExecutionFailed
		if failures[0].Kind == failure.KindRuntimePolicy {
			to = RuntimeRejected
		}
		logger.Warn().Int("failures", len(failures)).Str("first", failures[0].Error()).Msg("strategy failed during walk-forward")
		return res, finish(to, failures...)
	}

	if err := lc.advance(MetricsComputed); err != nil {
		return res, err
	}
	sortWindows(results)
	threshold := e.config.policy.Limits.StabilitySharpe
	res.Windows = results
	res.Segments = Aggregate(results, threshold)
	res.StabilityFlag = StabilityFlag(results, threshold)
	logger.Info().
		Int("windows", len(results)).
		Float64("test_mean_sharpe", res.Segments[types.SegmentTest].MeanSharpe).
		Bool("unstable", res.StabilityFlag).
		Msg("backtest aggregated")
	return res, finish(Aggregated)
}

// runWindows fans windows out over a bounded pool. The first window failure cancels the
// rest; every failure that is not a consequence of that cancellation is returned. Other
// errors are returned when no window failed and logged otherwise.
func (e *Engine) runWindows(ctx context.Context, logger zerolog.Logger, code *guard.Approved, series types.Series, windows []types.Window) ([]WindowResult, []*failure.Failure, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.windowWorkers)

	var mu sync.Mutex
	results := make([]WindowResult, 0, len(windows))
	var failures []*failure.Failure
	var errs []error
	for _, w := range windows {
		g.Go(func() error {
			out, err := e.runWindow(gctx, code, series, w)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					mu.Lock()
					errs = append(errs, fmt.Errorf("window %d: %w", w.Index, err))
					mu.Unlock()
				}
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if len(out.failures) > 0 {
				failures = append(failures, out.failures...)
				e.metrics.WindowDone(out.state.String())
				return errWindowFailed
			}
			results = append(results, out.result)
			e.metrics.WindowDone(out.state.String())
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errWindowFailed) && len(failures) == 0 {
		return nil, nil, err
	}
	if len(failures) > 0 {
		for _, err := range errs {
			logger.Warn().Err(err).Msg("window error dropped in favour of strategy failure")
		}
	}
	slices.SortFunc(failures, func(a, b *failure.Failure) int {
		return cmp.Or(cmp.Compare(a.Window, b.Window), cmp.Compare(segmentOrder(a.Segment), segmentOrder(b.Segment)))
	})
	return results, failures, nil
}

type windowOutcome struct {
	state    State
	result   WindowResult
	failures []*failure.Failure
}

type evaluated struct {
	signals types.SignalSeries
	bars    types.Series
}

func (e *Engine) runWindow(ctx context.Context, code *guard.Approved, series types.Series, w types.Window) (windowOutcome, error) {
	if err := ctx.Err(); err != nil {
		return windowOutcome{}, err
	}
	lc := newLifecycle(StaticPassed)
	fail := func(to State, fs ...*failure.Failure) (windowOutcome, error) {
		if err := lc.advance(to); err != nil {
			return windowOutcome{}, err
		}
		return windowOutcome{state: to, failures: fs}, nil
	}
	logger := e.logger.With().Str("strategy", code.Code().ID()).Int("window", w.Index).Logger()

	segments := make(map[types.Segment]evaluated, len(types.Segments))
	for _, seg := range types.Segments {
		bars := series.Between(w.Range(seg))
		if bars.Len() < 2 {
			return fail(ExecutionFailed, failure.New(failure.KindInsufficientData,
				"%s holds %d bars, need at least 2", w.Range(seg), bars.Len()).At(w.Index, seg))
		}
		visible := visibleSlice(series, w, seg)
		signals, err := e.executeSegment(ctx, code, w.Index, seg, visible)
		if err != nil {
			f, ok := failure.As(err)
			if !ok {
				return windowOutcome{}, err
			}
			return fail(ExecutionFailed, f.At(w.Index, seg))
		}
		// Strategies see the whole visible slice but are scored on the segment's own bars.
		if len(signals) == visible.Len() {
			signals = signals.Tail(bars.Len())
		} else {
			bars = visible
		}
		segments[seg] = evaluated{signals: signals, bars: bars}
		logger.Debug().Str("segment", string(seg)).Int("visible", visible.Len()).Msg("segment executed")
	}
	if err := lc.advance(Executed); err != nil {
		return windowOutcome{}, err
	}

	var rejected []*failure.Failure
	for _, seg := range types.Segments {
		ev := segments[seg]
		res := guard.ValidateSignals(ev.signals, ev.bars, e.config.policy)
		if !res.Passed {
			e.metrics.ObserveViolations(res.Violations)
			rejected = append(rejected, failure.FromValidation(res, true).At(w.Index, seg))
		}
	}
	if len(rejected) > 0 {
		return fail(RuntimeRejected, rejected...)
	}

	result := WindowResult{Window: w, Metrics: make(map[types.Segment]types.Metrics, len(types.Segments))}
	for _, seg := range types.Segments {
		ev := segments[seg]
		m, err := Evaluate(ev.signals, ev.bars, e.config.cost, e.config.riskFree)
		if err != nil {
			return windowOutcome{}, fmt.Errorf("window %d %s: %w", w.Index, seg, err)
		}
		result.Metrics[seg] = m
	}
	if err := lc.advance(MetricsComputed); err != nil {
		return windowOutcome{}, err
	}
	logger.Debug().Float64("test_sharpe", result.Metrics[types.SegmentTest].Sharpe).Msg("window scored")
	return windowOutcome{state: MetricsComputed, result: result}, nil
}

// executeSegment gives each sandbox call its own temp dir under the policy's temp root
// and removes it afterwards, whatever the outcome.
func (e *Engine) executeSegment(ctx context.Context, code *guard.Approved, window int, seg types.Segment, visible types.Series) (types.SignalSeries, error) {
	root := e.config.policy.TempRoot
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	dir, err := os.MkdirTemp(root, fmt.Sprintf("w%03d-%s-*", window, seg))
	if err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	defer os.RemoveAll(dir)

	started := time.Now()
	signals, err := e.executor.Execute(ctx, code, visible, dir)
	e.metrics.ObserveSandbox(seg, time.Since(started))
	return signals, err
}

// visibleSlice is everything a strategy may read while evaluated on seg: the window's
// ranges up to and including seg, with the purge gaps cut out.
func visibleSlice(series types.Series, w types.Window, seg types.Segment) types.Series {
	ranges := w.Visible(seg)
	parts := make([]types.Series, len(ranges))
	for i, r := range ranges {
		parts[i] = series.Between(r)
	}
	return types.Concat(parts...)
}

func segmentOrder(s types.Segment) int {
	return slices.Index(types.Segments, s)
}
