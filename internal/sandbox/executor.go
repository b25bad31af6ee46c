// Package sandbox runs approved strategy code against one slice of market data.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"atlas/internal/failure"
	"atlas/internal/guard"
	"atlas/types"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const (
	SignalsName = "signals"

	dateLayout   = "2006-01-02"
	defaultGrace = 250 * time.Millisecond
)

var errNotApproved = errors.New("code has not passed static validation")

// Executor evaluates approved code. It holds no per-run state and is safe for
// concurrent use; every call gets its own interpreter thread.
type Executor struct {
	logger zerolog.Logger
	grace  time.Duration
}

func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{logger: logger, grace: defaultGrace}
}

type outcome struct {
	globals  starlark.StringDict
	err      error
	panicked bool
}

// Execute runs code over data and returns one position per bar. tmpDir is the only
// directory the strategy may touch, through the scratch module.
//
// Failures are returned as *failure.Failure. If ctx itself is cancelled the context
// error is returned unclassified.
func (e *Executor) Execute(ctx context.Context, code *guard.Approved, data types.Series, tmpDir string) (types.SignalSeries, error) {
	if code == nil {
		return nil, failure.Wrap(failure.KindStaticPolicy, errNotApproved, "refusing to execute")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := code.Policy()
	id := code.Code().ID()
	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: id,
		Load: loader(p.ModuleAllowed, modules(tmpDir)),
		Print: func(_ *starlark.Thread, msg string) {
			e.logger.Debug().Str("strategy", id).Msg(msg)
		},
	}
	if p.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(p.MaxSteps)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r), panicked: true}
			}
		}()
		globals, err := starlark.ExecFileOptions(guard.Dialect(), thread, id+".star", code.Code().Source(), predeclared(data))
		done <- outcome{globals: globals, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		thread.Cancel(runCtx.Err().Error())
		select {
		case out = <-done:
		case <-time.After(e.grace):
			e.logger.Warn().Str("strategy", id).Msg("interpreter did not stop after cancellation")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, failure.Wrap(failure.KindTimeout, runCtx.Err(), "execution exceeded %s", p.Timeout)
	}

	if out.err != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, classify(out)
	}
	return extract(out.globals)
}

func classify(out outcome) *failure.Failure {
	if out.panicked {
		return failure.Wrap(failure.KindRuntimeFault, out.err, "interpreter panicked")
	}
	if strings.Contains(out.err.Error(), "too many steps") {
		return failure.Wrap(failure.KindTimeout, out.err, "step budget exhausted")
	}
	var evalErr *starlark.EvalError
	if errors.As(out.err, &evalErr) {
		return failure.Wrap(failure.KindRuntimeFault, out.err, "evaluation failed: %s", evalErr.Msg)
	}
	return failure.Wrap(failure.KindRuntimeFault, out.err, "evaluation failed")
}

// extract reads the signals global. Length is left to the runtime validator, which
// knows the slice being evaluated.
func extract(globals starlark.StringDict) (types.SignalSeries, error) {
	v, ok := globals[SignalsName]
	if !ok {
		return nil, failure.New(failure.KindMissingSignal, "strategy did not bind %q", SignalsName)
	}
	seq, ok := v.(starlark.Indexable)
	if _, isString := v.(starlark.String); !ok || isString {
		return nil, failure.New(failure.KindMissingSignal, "%s is %s, want a list of numbers", SignalsName, v.Type())
	}
	out := make(types.SignalSeries, seq.Len())
	for i := range out {
		x := seq.Index(i)
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, failure.New(failure.KindMissingSignal, "%s[%d] is %s, want a number", SignalsName, i, x.Type())
		}
		out[i] = f
	}
	return out, nil
}

func loader(allowed func(string) bool, mods map[string]starlark.StringDict) func(*starlark.Thread, string) (starlark.StringDict, error) {
	return func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		if !allowed(module) {
			return nil, fmt.Errorf("module %q is not allowed", module)
		}
		m, ok := mods[module]
		if !ok {
			return nil, fmt.Errorf("module %q is not available", module)
		}
		return m, nil
	}
}

// predeclared exposes the market slice as frozen values: bars.<column> tuples,
// price (the close column) and n (bar count).
func predeclared(data types.Series) starlark.StringDict {
	fields := starlark.StringDict{}
	for _, col := range []string{"open", "high", "low", "close", "volume", "adv"} {
		fields[col] = tuple(data.Column(col))
	}
	dates := make(starlark.Tuple, data.Len())
	for i, b := range data.Bars {
		dates[i] = starlark.String(b.Timestamp.UTC().Format(dateLayout))
	}
	fields["dates"] = dates

	bars := starlarkstruct.FromStringDict(starlarkstruct.Default, fields)
	bars.Freeze()
	return starlark.StringDict{
		"bars":  bars,
		"price": fields["close"],
		"n":     starlark.MakeInt(data.Len()),
	}
}

func tuple(xs []float64) starlark.Tuple {
	t := make(starlark.Tuple, len(xs))
	for i, x := range xs {
		t[i] = starlark.Float(x)
	}
	return t
}
