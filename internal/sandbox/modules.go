package sandbox

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

const maxScratchBytes = 1 << 20

var errScratchName = errors.New("scratch file names must be plain base names")

// ta holds the vector helpers strategies load with load("ta", ...). Windowed helpers
// emit 0.0 until the window is full, so outputs always align with their input.
var ta = starlark.StringDict{
	"sma":         starlark.NewBuiltin("sma", windowed(mean)),
	"rolling_std": starlark.NewBuiltin("rolling_std", windowed(stdev)),
	"rolling_max": starlark.NewBuiltin("rolling_max", windowed(maxOf)),
	"rolling_min": starlark.NewBuiltin("rolling_min", windowed(minOf)),
	"ema":         starlark.NewBuiltin("ema", ema),
	"pct_change":  starlark.NewBuiltin("pct_change", lagged(ratio)),
	"diff":        starlark.NewBuiltin("diff", lagged(func(cur, prev float64) float64 { return cur - prev })),
	"shift":       starlark.NewBuiltin("shift", shift),
	"cross_above": starlark.NewBuiltin("cross_above", crossAbove),
	"sign":        starlark.NewBuiltin("sign", sign),
	"clip":        starlark.NewBuiltin("clip", clip),
	"full":        starlark.NewBuiltin("full", full),
	"zeros":       starlark.NewBuiltin("zeros", zeros),
	"mean":        starlark.NewBuiltin("mean", reduce(mean)),
	"std":         starlark.NewBuiltin("std", reduce(stdev)),
}

// modules returns the loadable modules for one execution. scratch is bound to dir and
// is absent when dir is empty.
func modules(dir string) map[string]starlark.StringDict {
	m := map[string]starlark.StringDict{
		"math": starlarkmath.Module.Members,
		"ta":   ta,
	}
	if dir != "" {
		m["scratch"] = starlark.StringDict{
			"read":  starlark.NewBuiltin("read", scratchRead(dir)),
			"write": starlark.NewBuiltin("write", scratchWrite(dir)),
		}
	}
	return m
}

func floats(fn string, v starlark.Value) ([]float64, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want a sequence of numbers", fn, v.Type())
	}
	var out []float64
	if n := starlark.Len(v); n > 0 {
		out = make([]float64, 0, n)
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %s, want a number", fn, len(out), x.Type())
		}
		out = append(out, f)
	}
	return out, nil
}

func list(xs []float64) *starlark.List {
	elems := make([]starlark.Value, len(xs))
	for i, x := range xs {
		elems[i] = starlark.Float(x)
	}
	return starlark.NewList(elems)
}

func number(fn, name string, v starlark.Value) (float64, error) {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: %s is %s, want a number", fn, name, v.Type())
	}
	return f, nil
}

func windowed(stat func([]float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var seq starlark.Value
		var window int
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "xs", &seq, "window", &window); err != nil {
			return nil, err
		}
		if window < 1 {
			return nil, fmt.Errorf("%s: window must be positive, got %d", b.Name(), window)
		}
		xs, err := floats(b.Name(), seq)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(xs))
		for i := window - 1; i < len(xs); i++ {
			out[i] = stat(xs[i-window+1 : i+1])
		}
		return list(out), nil
	}
}

func lagged(op func(cur, prev float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var seq starlark.Value
		periods := 1
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "xs", &seq, "periods?", &periods); err != nil {
			return nil, err
		}
		if periods < 1 {
			return nil, fmt.Errorf("%s: periods must be positive, got %d", b.Name(), periods)
		}
		xs, err := floats(b.Name(), seq)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(xs))
		for i := periods; i < len(xs); i++ {
			out[i] = op(xs[i], xs[i-periods])
		}
		return list(out), nil
	}
}

func reduce(stat func([]float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var seq starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
			return nil, err
		}
		xs, err := floats(b.Name(), seq)
		if err != nil {
			return nil, err
		}
		return starlark.Float(stat(xs)), nil
	}
}

func ema(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	var span int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "xs", &seq, "span", &span); err != nil {
		return nil, err
	}
	if span < 1 {
		return nil, fmt.Errorf("ema: span must be positive, got %d", span)
	}
	xs, err := floats(b.Name(), seq)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(xs))
	alpha := 2 / float64(span+1)
	for i, x := range xs {
		if i == 0 {
			out[i] = x
			continue
		}
		out[i] = alpha*x + (1-alpha)*out[i-1]
	}
	return list(out), nil
}

// shift lags a series. A negative offset would read later bars and is refused here as
// well as statically, since the offset may only be known at runtime.
func shift(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	periods := 1
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "xs", &seq, "periods?", &periods); err != nil {
		return nil, err
	}
	if periods < 0 {
		return nil, fmt.Errorf("shift: negative offset %d reads future bars", periods)
	}
	xs, err := floats(b.Name(), seq)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(xs))
	for i := periods; i < len(xs); i++ {
		out[i] = xs[i-periods]
	}
	return list(out), nil
}

func crossAbove(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, c starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &c); err != nil {
		return nil, err
	}
	xs, err := floats(b.Name(), a)
	if err != nil {
		return nil, err
	}
	ys, err := floats(b.Name(), c)
	if err != nil {
		return nil, err
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("cross_above: lengths differ (%d vs %d)", len(xs), len(ys))
	}
	out := make([]float64, len(xs))
	for i := 1; i < len(xs); i++ {
		if xs[i] > ys[i] && xs[i-1] <= ys[i-1] {
			out[i] = 1
		}
	}
	return list(out), nil
}

func sign(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	xs, err := floats(b.Name(), seq)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		switch {
		case x > 0:
			out[i] = 1
		case x < 0:
			out[i] = -1
		}
	}
	return list(out), nil
}

func clip(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq, lo, hi starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "xs", &seq, "lo", &lo, "hi", &hi); err != nil {
		return nil, err
	}
	low, err := number(b.Name(), "lo", lo)
	if err != nil {
		return nil, err
	}
	high, err := number(b.Name(), "hi", hi)
	if err != nil {
		return nil, err
	}
	if low > high {
		return nil, fmt.Errorf("clip: lo %g is above hi %g", low, high)
	}
	xs, err := floats(b.Name(), seq)
	if err != nil {
		return nil, err
	}
	for i, x := range xs {
		xs[i] = math.Min(math.Max(x, low), high)
	}
	return list(xs), nil
}

func full(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var size int
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &size, "value", &value); err != nil {
		return nil, err
	}
	v, err := number(b.Name(), "value", value)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("full: negative length %d", size)
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = v
	}
	return list(out), nil
}

func zeros(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var size int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &size); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("zeros: negative length %d", size)
	}
	return list(make([]float64, size)), nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the sample standard deviation; 0 below two observations.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	out := math.Inf(-1)
	for _, x := range xs {
		out = math.Max(out, x)
	}
	return out
}

func minOf(xs []float64) float64 {
	out := math.Inf(1)
	for _, x := range xs {
		out = math.Min(out, x)
	}
	return out
}

func ratio(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return cur/prev - 1
}

func scratchPath(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", errScratchName, name)
	}
	return filepath.Join(dir, name), nil
}

func scratchRead(dir string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		path, err := scratchPath(dir, name)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return starlark.String(data), nil
	}
}

func scratchWrite(dir string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name, text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &text); err != nil {
			return nil, err
		}
		if len(text) > maxScratchBytes {
			return nil, fmt.Errorf("write %s: %d bytes exceeds %d", name, len(text), maxScratchBytes)
		}
		path, err := scratchPath(dir, name)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		return starlark.None, nil
	}
}
