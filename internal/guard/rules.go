package guard

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"atlas/internal/policy"
	"atlas/types"

	"go.starlark.net/syntax"
)

type nodeKind int

const (
	kindOther nodeKind = iota
	kindLoad
	kindCall
	kindAssign
	kindIndex
	kindIdent
	kindDot
)

func kindOf(n syntax.Node) nodeKind {
	switch n.(type) {
	case *syntax.LoadStmt:
		return kindLoad
	case *syntax.CallExpr:
		return kindCall
	case *syntax.AssignStmt:
		return kindAssign
	case *syntax.IndexExpr:
		return kindIndex
	case *syntax.Ident:
		return kindIdent
	case *syntax.DotExpr:
		return kindDot
	}
	return kindOther
}

type finding struct {
	pos syntax.Position
	msg string
}

type rule struct {
	id       string
	category types.ViolationCategory
	check    func(c *checker, n syntax.Node) []finding
}

// rules maps a node kind to the predicates evaluated on it. Each rule is independent;
// a node may trip several.
var rules = map[nodeKind][]rule{
	kindLoad: {
		{"IMP001", types.CategoryBannedImport, checkLoadAllowed},
		{"IMP002", types.CategoryBannedImport, checkLoadShape},
	},
	kindDot: {
		{"IMP003", types.CategoryBannedImport, checkBannedModuleRef},
	},
	kindCall: {
		{"CALL001", types.CategoryBannedCall, checkBannedCall},
		{"FS001", types.CategoryBannedCall, checkFilesystemCall},
		{"LEAK001", types.CategoryLeakage, checkNegativeShift},
		{"LEAK002", types.CategoryLeakage, checkWallClock},
		{"LEAK004", types.CategoryLeakage, checkLead},
		{"LIM001", types.CategoryNumericLimit, checkLeverageKeyword},
		{"LIM002", types.CategoryNumericLimit, checkSizeKeyword},
	},
	kindAssign: {
		{"LIM001", types.CategoryNumericLimit, checkLeverageAssign},
		{"LIM002", types.CategoryNumericLimit, checkSizeAssign},
	},
	kindIndex: {
		{"LEAK003", types.CategoryLeakage, checkForwardIndex},
	},
	kindIdent: {
		{"LEAK005", types.CategoryLeakage, checkLeakageName},
	},
}

type checker struct {
	policy *policy.Policy
	// consts tracks names bound to foldable numeric constants, in source order.
	consts   map[string]float64
	seenName map[string]bool
	out      []types.Violation
}

func newChecker(p *policy.Policy) *checker {
	return &checker{
		policy:   p,
		consts:   make(map[string]float64),
		seenName: make(map[string]bool),
	}
}

func (c *checker) visit(n syntax.Node) {
	kind := kindOf(n)
	for _, r := range rules[kind] {
		for _, f := range r.check(c, n) {
			c.out = append(c.out, types.Violation{
				RuleID:   r.id,
				Category: r.category,
				Message:  f.msg,
				Pos:      position(f.pos),
				Bar:      -1,
			})
		}
	}
	if kind == kindAssign {
		c.track(n.(*syntax.AssignStmt))
	}
}

func (c *checker) track(a *syntax.AssignStmt) {
	id, ok := a.LHS.(*syntax.Ident)
	if !ok {
		return
	}
	if a.Op != syntax.EQ {
		delete(c.consts, id.Name)
		return
	}
	if v, ok := c.fold(a.RHS); ok {
		c.consts[id.Name] = v
	} else {
		delete(c.consts, id.Name)
	}
}

func start(n syntax.Node) syntax.Position {
	s, _ := n.Span()
	return s
}

func checkLoadAllowed(c *checker, n syntax.Node) []finding {
	l := n.(*syntax.LoadStmt)
	name := l.ModuleName()
	if c.policy.ModuleAllowed(name) {
		return nil
	}
	return []finding{{start(l.Module), fmt.Sprintf("import of module %q is not allowed", name)}}
}

func checkLoadShape(c *checker, n syntax.Node) []finding {
	l := n.(*syntax.LoadStmt)
	var out []finding
	name := l.ModuleName()
	if name == "" || strings.ContainsAny(name, "/:.@*") {
		out = append(out, finding{start(l.Module), fmt.Sprintf("module %q is not a bare module name", name)})
	}
	for _, from := range l.From {
		if from.Name == "*" {
			out = append(out, finding{from.NamePos, fmt.Sprintf("wildcard import from %q", name)})
		}
	}
	return out
}

func checkBannedModuleRef(c *checker, n syntax.Node) []finding {
	d := n.(*syntax.DotExpr)
	root, ok := d.X.(*syntax.Ident)
	if !ok || !c.policy.ModuleBanned(root.Name) {
		return nil
	}
	return []finding{{root.NamePos, fmt.Sprintf("reference to banned module %q (%s.%s)", root.Name, root.Name, d.Name.Name)}}
}

func checkBannedCall(c *checker, n syntax.Node) []finding {
	call := n.(*syntax.CallExpr)
	name := calleeName(call.Fn)
	if pat, ok := c.policy.BannedCall(name); ok {
		return []finding{{start(call), fmt.Sprintf("call to %s is banned (%s)", name, pat)}}
	}
	return nil
}

func checkFilesystemCall(c *checker, n syntax.Node) []finding {
	call := n.(*syntax.CallExpr)
	name := calleeName(call.Fn)
	if !c.policy.IsFilesystemCall(name) && !c.policy.IsFilesystemCall(lastSegment(name)) {
		return nil
	}
	if len(call.Args) > 0 {
		if lit, ok := call.Args[0].(*syntax.Literal); ok && lit.Token == syntax.STRING {
			path, _ := lit.Value.(string)
			if c.policy.InTempRoot(path) {
				return nil
			}
			return []finding{{start(call), fmt.Sprintf("%s(%q) is outside %s", name, path, c.policy.TempRoot)}}
		}
	}
	return []finding{{start(call), fmt.Sprintf("%s with a non-literal path", name)}}
}

func checkNegativeShift(c *checker, n syntax.Node) []finding {
	call := n.(*syntax.CallExpr)
	name := calleeName(call.Fn)
	if !c.policy.IsShift(lastSegment(name)) {
		return nil
	}
	var out []finding
	for _, arg := range call.Args {
		if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			arg = kw.Y
		}
		if v, ok := c.fold(arg); ok && v < 0 {
			out = append(out, finding{start(arg), fmt.Sprintf("%s by %g pulls future values into the present", name, v)})
		}
	}
	return out
}

func checkWallClock(c *checker, n syntax.Node) []finding {
	call := n.(*syntax.CallExpr)
	name := calleeName(call.Fn)
	if pat, ok := c.policy.WallClockCall(name); ok {
		return []finding{{start(call), fmt.Sprintf("wall-clock read %s (%s)", name, pat)}}
	}
	return nil
}

func checkLead(c *checker, n syntax.Node) []finding {
	call := n.(*syntax.CallExpr)
	name := calleeName(call.Fn)
	if c.policy.IsLead(lastSegment(name)) {
		return []finding{{start(call), fmt.Sprintf("%s reads values after the current bar", name)}}
	}
	return nil
}

func checkLeverageKeyword(c *checker, n syntax.Node) []finding {
	return c.keywordLimit(n.(*syntax.CallExpr), c.policy.IsLeverageName, c.policy.Limits.MaxLeverage, "leverage")
}

func checkSizeKeyword(c *checker, n syntax.Node) []finding {
	return c.keywordLimit(n.(*syntax.CallExpr), c.policy.IsSizeName, c.policy.Limits.MaxPositionPctADV, "position size")
}

func (c *checker) keywordLimit(call *syntax.CallExpr, match func(string) bool, limit float64, what string) []finding {
	var out []finding
	for _, arg := range call.Args {
		kw, ok := arg.(*syntax.BinaryExpr)
		if !ok || kw.Op != syntax.EQ {
			continue
		}
		id, ok := kw.X.(*syntax.Ident)
		if !ok || !match(id.Name) {
			continue
		}
		if v, ok := c.fold(kw.Y); ok && math.Abs(v) > limit {
			out = append(out, finding{id.NamePos, fmt.Sprintf("%s %s=%g exceeds limit %g", what, id.Name, v, limit)})
		}
	}
	return out
}

func checkLeverageAssign(c *checker, n syntax.Node) []finding {
	return c.assignLimit(n.(*syntax.AssignStmt), c.policy.IsLeverageName, c.policy.Limits.MaxLeverage, "leverage")
}

func checkSizeAssign(c *checker, n syntax.Node) []finding {
	return c.assignLimit(n.(*syntax.AssignStmt), c.policy.IsSizeName, c.policy.Limits.MaxPositionPctADV, "position size")
}

func (c *checker) assignLimit(a *syntax.AssignStmt, match func(string) bool, limit float64, what string) []finding {
	id, ok := a.LHS.(*syntax.Ident)
	if !ok || !match(id.Name) {
		return nil
	}
	v, ok := c.fold(a.RHS)
	if !ok {
		return nil
	}
	if a.Op == syntax.STAR_EQ {
		prev, known := c.consts[id.Name]
		if !known {
			return nil
		}
		v *= prev
	} else if a.Op != syntax.EQ {
		return nil
	}
	if math.Abs(v) > limit {
		return []finding{{id.NamePos, fmt.Sprintf("%s %s = %g exceeds limit %g", what, id.Name, v, limit)}}
	}
	return nil
}

func checkForwardIndex(c *checker, n syntax.Node) []finding {
	ix := n.(*syntax.IndexExpr)
	root := rootName(ix.X)
	if root == "" || !c.policy.IsDataName(root) {
		return nil
	}
	if v, ok := c.fold(ix.Y); ok {
		if v < 0 {
			return []finding{{start(ix), fmt.Sprintf("%s[%g] reads from the end of the series", root, v)}}
		}
		return nil
	}
	if b, ok := ix.Y.(*syntax.BinaryExpr); ok && b.Op == syntax.PLUS {
		for _, side := range []syntax.Expr{b.X, b.Y} {
			if v, ok := c.fold(side); ok && v > 0 {
				return []finding{{start(ix), fmt.Sprintf("%s indexed %g bars ahead of the loop position", root, v)}}
			}
		}
	}
	return nil
}

func checkLeakageName(c *checker, n syntax.Node) []finding {
	id := n.(*syntax.Ident)
	if c.seenName[id.Name] {
		return nil
	}
	pat, ok := c.policy.LeakageIdentifier(id.Name)
	if !ok {
		return nil
	}
	c.seenName[id.Name] = true
	return []finding{{id.NamePos, fmt.Sprintf("identifier %q suggests look-ahead (%s)", id.Name, pat)}}
}

// fold evaluates e when it is a numeric constant expression.
func (c *checker) fold(e syntax.Expr) (float64, bool) {
	switch e := e.(type) {
	case *syntax.Literal:
		switch v := e.Value.(type) {
		case int64:
			return float64(v), true
		case *big.Int:
			f, _ := new(big.Float).SetInt(v).Float64()
			return f, true
		case float64:
			return v, true
		}
	case *syntax.Ident:
		v, ok := c.consts[e.Name]
		return v, ok
	case *syntax.ParenExpr:
		return c.fold(e.X)
	case *syntax.UnaryExpr:
		v, ok := c.fold(e.X)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case syntax.MINUS:
			return -v, true
		case syntax.PLUS:
			return v, true
		}
	case *syntax.BinaryExpr:
		x, ok := c.fold(e.X)
		if !ok {
			return 0, false
		}
		y, ok := c.fold(e.Y)
		if !ok {
			return 0, false
		}
		switch e.Op {
		case syntax.PLUS:
			return x + y, true
		case syntax.MINUS:
			return x - y, true
		case syntax.STAR:
			return x * y, true
		case syntax.SLASH:
			if y != 0 {
				return x / y, true
			}
		case syntax.SLASHSLASH:
			if y != 0 {
				return math.Floor(x / y), true
			}
		}
	}
	return 0, false
}

// calleeName renders a call target as a dotted name. Receivers that are not plain names
// render as "()", so "*.now" still matches foo().now().
func calleeName(e syntax.Expr) string {
	switch e := e.(type) {
	case *syntax.Ident:
		return e.Name
	case *syntax.DotExpr:
		return calleeName(e.X) + "." + e.Name.Name
	case *syntax.ParenExpr:
		return calleeName(e.X)
	}
	return "()"
}

func rootName(e syntax.Expr) string {
	switch e := e.(type) {
	case *syntax.Ident:
		return e.Name
	case *syntax.DotExpr:
		// bars.close[-1]: the handle is the attribute, falling back to the receiver.
		if root := rootName(e.X); root != "" {
			return e.Name.Name
		}
	case *syntax.ParenExpr:
		return rootName(e.X)
	}
	return ""
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
