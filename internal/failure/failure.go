// Package failure classifies everything that can stop a strategy from reaching an
// aggregated backtest result. Every failure is terminal for the strategy; none are retried.
package failure

import (
	"errors"
	"fmt"
	"strings"

	"atlas/types"
)

type Kind string

const (
	KindParse            Kind = "ParseError"
	KindStaticPolicy     Kind = "StaticPolicyViolation"
	KindTimeout          Kind = "ExecutionTimeout"
	KindMissingSignal    Kind = "MissingSignalError"
	KindRuntimeFault     Kind = "RuntimeFault"
	KindRuntimePolicy    Kind = "RuntimePolicyViolation"
	KindInsufficientData Kind = "InsufficientDataError"
)

var (
	ErrParse            = errors.New("strategy source does not parse")
	ErrStaticPolicy     = errors.New("strategy source violates policy")
	ErrTimeout          = errors.New("strategy execution timed out")
	ErrMissingSignal    = errors.New("strategy did not produce a usable signal series")
	ErrRuntimeFault     = errors.New("strategy raised a runtime fault")
	ErrRuntimePolicy    = errors.New("strategy signals violate policy")
	ErrInsufficientData = errors.New("not enough data to form a window")
)

var sentinels = map[Kind]error{
	KindParse:            ErrParse,
	KindStaticPolicy:     ErrStaticPolicy,
	KindTimeout:          ErrTimeout,
	KindMissingSignal:    ErrMissingSignal,
	KindRuntimeFault:     ErrRuntimeFault,
	KindRuntimePolicy:    ErrRuntimePolicy,
	KindInsufficientData: ErrInsufficientData,
}

// Failure is a classified, terminal error for one strategy (Window < 0) or one window.
type Failure struct {
	Kind       Kind              `json:"kind"`
	Window     int               `json:"window"`
	Segment    types.Segment     `json:"segment,omitempty"`
	Message    string            `json:"message"`
	Violations []types.Violation `json:"violations,omitempty"`
	Cause      error             `json:"-"`
}

func New(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Window: -1, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Failure {
	f := New(kind, format, args...)
	f.Cause = cause
	return f
}

// FromValidation turns a failed validation into a failure of the given kind. A static
// result containing only parse violations is reported as a parse error.
func FromValidation(res types.ValidationResult, runtime bool) *Failure {
	kind := KindStaticPolicy
	if runtime {
		kind = KindRuntimePolicy
	} else if onlyParse(res.Violations) {
		kind = KindParse
	}
	return &Failure{
		Kind:       kind,
		Window:     -1,
		Message:    fmt.Sprintf("%d violation(s)", len(res.Violations)),
		Violations: res.Violations,
	}
}

func onlyParse(vs []types.Violation) bool {
	if len(vs) == 0 {
		return false
	}
	for _, v := range vs {
		if v.Category != types.CategoryParse {
			return false
		}
	}
	return true
}

// At returns a copy of f attributed to a window segment.
func (f *Failure) At(window int, segment types.Segment) *Failure {
	cp := *f
	cp.Window = window
	cp.Segment = segment
	return &cp
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Window >= 0 {
		fmt.Fprintf(&b, " (window %d %s)", f.Window, f.Segment)
	}
	b.WriteString(": ")
	b.WriteString(f.Message)
	for _, v := range f.Violations {
		b.WriteString("; ")
		b.WriteString(v.String())
	}
	if f.Cause != nil {
		b.WriteString(": ")
		b.WriteString(f.Cause.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Cause }

// Is matches the sentinel error of the failure's kind.
func (f *Failure) Is(target error) bool {
	return sentinels[f.Kind] == target
}

// As extracts a *Failure from an error chain.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
