package engine

import (
	"errors"
	"fmt"
	"slices"
)

var ErrIllegalTransition = errors.New("illegal state transition")

// State is a step of the backtest lifecycle. A strategy moves
// Submitted -> StaticPassed -> MetricsComputed -> Aggregated on success; each window moves
// StaticPassed -> Executed -> MetricsComputed on its own.
type State int

const (
	Submitted State = iota
	StaticRejected
	StaticPassed
	Executed
	ExecutionFailed
	RuntimeRejected
	MetricsComputed
	Aggregated
)

var stateNames = map[State]string{
	Submitted:       "Submitted",
	StaticRejected:  "StaticRejected",
	StaticPassed:    "StaticPassed",
	Executed:        "Executed",
	ExecutionFailed: "ExecutionFailed",
	RuntimeRejected: "RuntimeRejected",
	MetricsComputed: "MetricsComputed",
	Aggregated:      "Aggregated",
}

var transitions = map[State][]State{
	Submitted:       {StaticRejected, StaticPassed},
	StaticPassed:    {Executed, ExecutionFailed, RuntimeRejected, MetricsComputed},
	Executed:        {RuntimeRejected, MetricsComputed},
	MetricsComputed: {Aggregated},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal states have no outgoing transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Failed reports whether s is a terminal failure.
func (s State) Failed() bool {
	return s == StaticRejected || s == ExecutionFailed || s == RuntimeRejected
}

func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// lifecycle records the path taken through the state table.
type lifecycle struct {
	state   State
	history []State
}

func newLifecycle(start State) *lifecycle {
	return &lifecycle{state: start, history: []State{start}}
}

func (l *lifecycle) advance(to State) error {
	if !l.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.state, to)
	}
	l.state = to
	l.history = append(l.history, to)
	return nil
}
