package types

import (
	"fmt"
	"time"
)

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}

type Segment string

const (
	SegmentTrain    Segment = "train"
	SegmentValidate Segment = "validate"
	SegmentTest     Segment = "test"
)

var Segments = []Segment{SegmentTrain, SegmentValidate, SegmentTest}

// Window is one walk-forward fold. Purge gaps sit between Train.End and Validate.Start
// and between Validate.End and Test.Start.
type Window struct {
	Index    int       `json:"index"`
	Train    DateRange `json:"train"`
	Validate DateRange `json:"validate"`
	Test     DateRange `json:"test"`
}

func (w Window) Range(s Segment) DateRange {
	switch s {
	case SegmentValidate:
		return w.Validate
	case SegmentTest:
		return w.Test
	default:
		return w.Train
	}
}

// Visible returns the ranges a strategy may read while being evaluated on segment s:
// everything from the train start up to the end of s, without the purge gaps.
func (w Window) Visible(s Segment) []DateRange {
	switch s {
	case SegmentValidate:
		return []DateRange{w.Train, w.Validate}
	case SegmentTest:
		return []DateRange{w.Train, w.Validate, w.Test}
	default:
		return []DateRange{w.Train}
	}
}
