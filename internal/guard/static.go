// Package guard holds the two policy checks every strategy goes through: a static pass
// over the syntax tree before anything runs, and a runtime pass over the signals the
// sandbox produced.
package guard

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"atlas/internal/policy"
	"atlas/types"

	"go.starlark.net/syntax"
)

// Dialect is the Starlark dialect candidate code is written in. The executor compiles
// with the same options so both passes agree on what parses.
func Dialect() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
}

// Approved is proof that a candidate passed Validate under a policy. The executor only
// accepts an Approved, so unvalidated code cannot reach it.
type Approved struct {
	code   types.CandidateCode
	policy *policy.Policy
}

func (a *Approved) Code() types.CandidateCode { return a.code }
func (a *Approved) Policy() *policy.Policy    { return a.policy }

// Approve validates code and returns an Approved only when it passed.
func Approve(code types.CandidateCode, p *policy.Policy) (*Approved, types.ValidationResult) {
	res := Validate(code, p)
	if !res.Passed {
		return nil, res
	}
	return &Approved{code: code, policy: p}, res
}

// Validate parses code and checks it against p without executing anything. Every
// violation found is returned; a parse error is itself a violation.
func Validate(code types.CandidateCode, p *policy.Policy) types.ValidationResult {
	if err := p.Validate(); err != nil {
		return types.NewValidationResult([]types.Violation{{
			RuleID: "POL001", Category: types.CategoryPolicy, Bar: -1,
			Message: err.Error(),
		}})
	}

	src := code.Source()
	var out []types.Violation
	if p.MaxSourceBytes > 0 && len(src) > p.MaxSourceBytes {
		out = append(out, types.Violation{
			RuleID: "SRC001", Category: types.CategorySource, Bar: -1,
			Message: fmt.Sprintf("source is %d bytes, limit %d", len(src), p.MaxSourceBytes),
		})
	}
	if !utf8.ValidString(src) {
		out = append(out, types.Violation{
			RuleID: "SRC001", Category: types.CategorySource, Bar: -1,
			Message: "source is not valid UTF-8",
		})
		return types.NewValidationResult(out)
	}

	f, err := Dialect().Parse(code.ID()+".star", src, 0)
	if err != nil {
		out = append(out, parseViolation(err))
		return types.NewValidationResult(out)
	}

	c := newChecker(p)
	syntax.Walk(f, func(n syntax.Node) bool {
		c.visit(n)
		return true
	})
	out = append(out, c.out...)
	return types.NewValidationResult(dedupe(out))
}

func parseViolation(err error) types.Violation {
	v := types.Violation{RuleID: "PARSE001", Category: types.CategoryParse, Bar: -1, Message: err.Error()}
	var serr syntax.Error
	if errors.As(err, &serr) {
		v.Pos = position(serr.Pos)
		v.Message = serr.Msg
	}
	return v
}

func position(p syntax.Position) types.Position {
	return types.Position{Line: int(p.Line), Col: int(p.Col)}
}

func dedupe(vs []types.Violation) []types.Violation {
	type key struct {
		rule string
		pos  types.Position
		msg  string
	}
	seen := make(map[key]bool, len(vs))
	out := vs[:0]
	for _, v := range vs {
		k := key{v.RuleID, v.Pos, v.Message}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
