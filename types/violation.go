package types

import (
	"fmt"
	"sort"
)

type ViolationCategory string

const (
	CategoryParse           ViolationCategory = "parse"
	CategoryBannedImport    ViolationCategory = "banned_import"
	CategoryBannedCall      ViolationCategory = "banned_call"
	CategoryLeakage         ViolationCategory = "leakage"
	CategoryNumericLimit    ViolationCategory = "numeric_limit"
	CategorySource          ViolationCategory = "source"
	CategoryPolicy          ViolationCategory = "policy"
	CategoryRuntimeLimit    ViolationCategory = "runtime_leverage"
	CategoryRuntimeSize     ViolationCategory = "runtime_order_size"
	CategoryRuntimeValue    ViolationCategory = "runtime_non_finite"
	CategoryRuntimeLength   ViolationCategory = "runtime_length"
	CategoryRuntimeTurnover ViolationCategory = "runtime_turnover"
)

// Runtime reports whether the category comes from signal validation rather than source analysis.
func (c ViolationCategory) Runtime() bool {
	switch c {
	case CategoryRuntimeLimit, CategoryRuntimeSize, CategoryRuntimeValue, CategoryRuntimeLength, CategoryRuntimeTurnover:
		return true
	}
	return false
}

type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

type Violation struct {
	RuleID   string            `json:"rule_id"`
	Category ViolationCategory `json:"category"`
	Message  string            `json:"message"`
	Pos      Position          `json:"pos"`
	// Bar is the offending bar index for runtime violations, -1 otherwise.
	Bar int `json:"bar"`
}

func (v Violation) String() string {
	if v.Bar >= 0 {
		return fmt.Sprintf("bar %d: %s %s", v.Bar, v.RuleID, v.Message)
	}
	return fmt.Sprintf("%s: %s %s", v.Pos, v.RuleID, v.Message)
}

type ValidationResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
}

// NewValidationResult orders violations by location then rule id and derives Passed.
func NewValidationResult(violations []Violation) ValidationResult {
	sorted := append([]Violation(nil), violations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Bar != b.Bar {
			return a.Bar < b.Bar
		}
		if a.Pos.Line != b.Pos.Line {
			return a.Pos.Line < b.Pos.Line
		}
		if a.Pos.Col != b.Pos.Col {
			return a.Pos.Col < b.Pos.Col
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Message < b.Message
	})
	return ValidationResult{Passed: len(sorted) == 0, Violations: sorted}
}

// Messages flattens the violations for logging.
func (r ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.String())
	}
	return out
}
