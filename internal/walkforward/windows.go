// Package walkforward partitions a series into rolling train/validate/test windows
// separated by purge gaps.
package walkforward

import (
	"errors"
	"fmt"
	"iter"

	"atlas/types"
)

var ErrInvalidSpec = errors.New("invalid window spec")

type Spec struct {
	Train    Period `json:"train" yaml:"train"`
	Validate Period `json:"validate" yaml:"validate"`
	Test     Period `json:"test" yaml:"test"`
	Step     Period `json:"step" yaml:"step"`
	Purge    Period `json:"purge" yaml:"purge"`
}

// DefaultSpec rolls a 3 year train, 6 month validate and 1 month test window forward
// one month at a time, purging 5 days before each out-of-sample range.
func DefaultSpec() Spec {
	return Spec{
		Train:    Months(36),
		Validate: Months(6),
		Test:     Months(1),
		Step:     Months(1),
		Purge:    Days(5),
	}
}

// ParseSpec builds a Spec from period strings in the order train, validate, test,
// step, purge.
func ParseSpec(train, validate, test, step, purge string) (Spec, error) {
	var s Spec
	for _, f := range []struct {
		dst *Period
		src string
	}{{&s.Train, train}, {&s.Validate, validate}, {&s.Test, test}, {&s.Step, step}, {&s.Purge, purge}} {
		p, err := ParsePeriod(f.src)
		if err != nil {
			return Spec{}, err
		}
		*f.dst = p
	}
	return s, s.Check()
}

// Check enforces positive train, validate, test and step lengths and a non-negative purge.
func (s Spec) Check() error {
	for _, f := range []struct {
		name string
		p    Period
	}{{"train", s.Train}, {"validate", s.Validate}, {"test", s.Test}, {"step", s.Step}} {
		if f.p.IsZero() || f.p.negative() {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidSpec, f.name, f.p)
		}
	}
	if s.Purge.negative() {
		return fmt.Errorf("%w: purge must not be negative, got %s", ErrInvalidSpec, s.Purge)
	}
	return nil
}

func (s Spec) String() string {
	return fmt.Sprintf("train=%s validate=%s test=%s step=%s purge=%s", s.Train, s.Validate, s.Test, s.Step, s.Purge)
}

// At returns the k-th window anchored at start, whether or not data covers it.
func (s Spec) At(start types.DateRange, k int) types.Window {
	trainStart := s.Step.Times(k).AddTo(start.Start)
	train := types.DateRange{Start: trainStart, End: s.Train.AddTo(trainStart)}
	validateStart := s.Purge.AddTo(train.End)
	validate := types.DateRange{Start: validateStart, End: s.Validate.AddTo(validateStart)}
	testStart := s.Purge.AddTo(validate.End)
	test := types.DateRange{Start: testStart, End: s.Test.AddTo(testStart)}
	return types.Window{Index: k, Train: train, Validate: validate, Test: test}
}

// Windows yields every window whose test range ends within the series. The sequence is
// empty for an invalid spec or an empty series, and can be ranged over repeatedly.
func Windows(series types.Series, spec Spec) iter.Seq[types.Window] {
	return func(yield func(types.Window) bool) {
		if series.Len() == 0 || spec.Check() != nil {
			return
		}
		span := types.DateRange{Start: series.Start(), End: series.End()}
		for k := 0; ; k++ {
			w := spec.At(span, k)
			if w.Test.End.After(span.End) {
				return
			}
			if !yield(w) {
				return
			}
		}
	}
}

// Count is the number of windows Windows would yield.
func Count(series types.Series, spec Spec) int {
	n := 0
	for range Windows(series, spec) {
		n++
	}
	return n
}
