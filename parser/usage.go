package parser

import (
	"sort"
	"strings"

	"github.com/kilnlang/kiln/nodes"
)

// UndeclaredVariables returns the names a template reads from the render
// context, excluding names the template itself assigns before use. With
// nested set, attribute chains rooted at an undeclared name are reported as
// dotted paths. The result is sorted.
func UndeclaredVariables(tmpl *nodes.Template, nested bool) []string {
	t := &usageTracker{nested: nested, found: map[string]struct{}{}}
	t.pushScope()
	t.walkStmts(tmpl.Children)
	t.popScope()

	out := make([]string, 0, len(t.found))
	for name := range t.found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type usageTracker struct {
	nested bool
	scopes []map[string]struct{}
	found  map[string]struct{}
}

func (t *usageTracker) pushScope() {
	t.scopes = append(t.scopes, map[string]struct{}{})
}

func (t *usageTracker) popScope() {
	t.scopes = t.scopes[:len(t.scopes)-1]
}

func (t *usageTracker) assign(name string) {
	t.scopes[len(t.scopes)-1][name] = struct{}{}
}

func (t *usageTracker) isAssigned(name string) bool {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if _, ok := t.scopes[i][name]; ok {
			return true
		}
	}
	return false
}

func (t *usageTracker) record(name string) {
	root, _, _ := strings.Cut(name, ".")
	if !t.isAssigned(root) {
		t.found[name] = struct{}{}
	}
}

func (t *usageTracker) assignTarget(target nodes.Expr) {
	switch n := target.(type) {
	case *nodes.Name:
		t.assign(n.Name)
	case *nodes.List:
		for _, item := range n.Items {
			t.assignTarget(item)
		}
	}
}

func (t *usageTracker) walkStmts(stmts []nodes.Stmt) {
	for _, s := range stmts {
		t.walkStmt(s)
	}
}

func (t *usageTracker) walkStmt(s nodes.Stmt) {
	switch n := s.(type) {
	case *nodes.Text:
	case *nodes.Output:
		t.walkExpr(n.Expr)
	case *nodes.If:
		t.walkExpr(n.Cond)
		t.pushScope()
		t.walkStmts(n.Then)
		t.popScope()
		t.pushScope()
		t.walkStmts(n.Else)
		t.popScope()
	case *nodes.For:
		// The iterable is resolved in the enclosing scope, the target and
		// the implicit loop variable exist only inside the body.
		t.walkExpr(n.Iter)
		t.pushScope()
		t.assignTarget(n.Target)
		t.assign("loop")
		t.walkExpr(n.Filter)
		t.walkStmts(n.Body)
		t.popScope()
		t.pushScope()
		t.walkStmts(n.Else)
		t.popScope()
	case *nodes.Set:
		t.walkExpr(n.Value)
		t.assignTarget(n.Target)
	case *nodes.SetBlock:
		t.walkExpr(n.Filter)
		t.pushScope()
		t.walkStmts(n.Body)
		t.popScope()
		t.assignTarget(n.Target)
	case *nodes.Block:
		t.pushScope()
		t.walkStmts(n.Body)
		t.popScope()
	case *nodes.Extends:
		t.walkExpr(n.Name)
	case *nodes.Include:
		t.walkExpr(n.Name)
	case *nodes.Macro:
		t.assign(n.Name)
		for _, def := range n.Defaults {
			t.walkExpr(def)
		}
		t.pushScope()
		for _, arg := range n.Args {
			t.assign(arg)
		}
		t.walkStmts(n.Body)
		t.popScope()
	case *nodes.FilterBlock:
		t.walkExpr(n.Filter)
		t.pushScope()
		t.walkStmts(n.Body)
		t.popScope()
	}
}

func (t *usageTracker) walkExpr(e nodes.Expr) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *nodes.Name:
		t.record(n.Name)
	case *nodes.GetAttr:
		if t.nested {
			if path, ok := attrPath(n); ok {
				t.record(path)
				return
			}
		}
		t.walkExpr(n.Expr)
	case *nodes.GetItem:
		t.walkExpr(n.Expr)
		t.walkExpr(n.Index)
	case *nodes.Slice:
		t.walkExpr(n.Start)
		t.walkExpr(n.Stop)
		t.walkExpr(n.Step)
	case *nodes.Call:
		t.walkExpr(n.Target)
		t.walkExprs(n.Args)
		t.walkKwargs(n.Kwargs)
	case *nodes.Filter:
		t.walkExpr(n.Expr)
		t.walkExprs(n.Args)
		t.walkKwargs(n.Kwargs)
	case *nodes.Test:
		t.walkExpr(n.Expr)
		t.walkExprs(n.Args)
		t.walkKwargs(n.Kwargs)
	case *nodes.BinOp:
		t.walkExpr(n.Left)
		t.walkExpr(n.Right)
	case *nodes.UnaryOp:
		t.walkExpr(n.Expr)
	case *nodes.IfExpr:
		t.walkExpr(n.TrueExpr)
		t.walkExpr(n.Cond)
		t.walkExpr(n.FalseExpr)
	case *nodes.List:
		t.walkExprs(n.Items)
	case *nodes.Map:
		t.walkExprs(n.Keys)
		t.walkExprs(n.Values)
	}
}

func (t *usageTracker) walkExprs(exprs []nodes.Expr) {
	for _, e := range exprs {
		t.walkExpr(e)
	}
}

func (t *usageTracker) walkKwargs(kwargs []nodes.Kwarg) {
	for _, kw := range kwargs {
		t.walkExpr(kw.Value)
	}
}

// attrPath flattens a chain of attribute accesses rooted at a plain name
// into a dotted path.
func attrPath(n *nodes.GetAttr) (string, bool) {
	var parts []string
	var cur nodes.Expr = n
	for {
		switch node := cur.(type) {
		case *nodes.GetAttr:
			parts = append(parts, node.Name)
			cur = node.Expr
		case *nodes.Name:
			parts = append(parts, node.Name)
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, "."), true
		default:
			return "", false
		}
	}
}
