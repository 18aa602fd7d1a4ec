package parser

import (
	"errors"
	"testing"

	"github.com/kilnlang/kiln/diag"
	"github.com/kilnlang/kiln/lexer"
	"github.com/kilnlang/kiln/nodes"
)

func parse(t *testing.T, source string) *nodes.Template {
	t.Helper()
	tmpl, err := Parse(source, lexer.DefaultSyntax(), lexer.DefaultWhitespace())
	if err != nil {
		t.Fatalf("parse %q: %v", source, err)
	}
	return tmpl
}

func TestParseOutput(t *testing.T) {
	tmpl := parse(t, "hello {{ name }}")
	if len(tmpl.Children) != 2 {
		t.Fatalf("children %d", len(tmpl.Children))
	}
	out, ok := tmpl.Children[1].(*nodes.Output)
	if !ok {
		t.Fatalf("expected output, got %T", tmpl.Children[1])
	}
	name, ok := out.Expr.(*nodes.Name)
	if !ok || name.Name != "name" {
		t.Fatalf("expr %#v", out.Expr)
	}
}

func TestParsePrecedence(t *testing.T) {
	tmpl := parse(t, "{{ 1 + 2 * 3 }}")
	out := tmpl.Children[0].(*nodes.Output)
	add, ok := out.Expr.(*nodes.BinOp)
	if !ok || add.Op != nodes.OpAdd {
		t.Fatalf("expected add at top, got %#v", out.Expr)
	}
	mul, ok := add.Right.(*nodes.BinOp)
	if !ok || mul.Op != nodes.OpMul {
		t.Fatalf("expected mul on right, got %#v", add.Right)
	}
}

func TestParseIfElifElse(t *testing.T) {
	tmpl := parse(t, "{% if a %}1{% elif b %}2{% else %}3{% endif %}")
	ifStmt := tmpl.Children[0].(*nodes.If)
	if len(ifStmt.Then) != 1 || len(ifStmt.Else) != 1 {
		t.Fatalf("if %+v", ifStmt)
	}
	nested, ok := ifStmt.Else[0].(*nodes.If)
	if !ok {
		t.Fatalf("expected nested if, got %T", ifStmt.Else[0])
	}
	if len(nested.Then) != 1 || len(nested.Else) != 1 {
		t.Fatalf("nested %+v", nested)
	}
}

func TestParseForWithFilterAndElse(t *testing.T) {
	tmpl := parse(t, "{% for x in items if x %}{{ x }}{% else %}none{% endfor %}")
	forStmt := tmpl.Children[0].(*nodes.For)
	if forStmt.Filter == nil {
		t.Error("missing loop filter")
	}
	if len(forStmt.Else) != 1 {
		t.Errorf("else branch %d", len(forStmt.Else))
	}
	if _, ok := forStmt.Target.(*nodes.Name); !ok {
		t.Errorf("target %T", forStmt.Target)
	}
}

func TestParseForUnpacking(t *testing.T) {
	tmpl := parse(t, "{% for k, v in m %}{% endfor %}")
	forStmt := tmpl.Children[0].(*nodes.For)
	list, ok := forStmt.Target.(*nodes.List)
	if !ok || len(list.Items) != 2 {
		t.Fatalf("target %#v", forStmt.Target)
	}
}

func TestParseSetForms(t *testing.T) {
	tmpl := parse(t, "{% set x = 1 %}{% set y | upper %}hi{% endset %}")
	if _, ok := tmpl.Children[0].(*nodes.Set); !ok {
		t.Fatalf("expected set, got %T", tmpl.Children[0])
	}
	sb, ok := tmpl.Children[1].(*nodes.SetBlock)
	if !ok {
		t.Fatalf("expected set block, got %T", tmpl.Children[1])
	}
	if sb.Filter == nil {
		t.Error("missing filter on set block")
	}
}

func TestParseInheritance(t *testing.T) {
	tmpl := parse(t, `{% extends "base.html" %}{% block body %}x{% endblock body %}`)
	if _, ok := tmpl.Children[0].(*nodes.Extends); !ok {
		t.Fatalf("expected extends, got %T", tmpl.Children[0])
	}
	block, ok := tmpl.Children[1].(*nodes.Block)
	if !ok || block.Name != "body" {
		t.Fatalf("block %#v", tmpl.Children[1])
	}
}

func TestParseIncludeIgnoreMissing(t *testing.T) {
	tmpl := parse(t, `{% include "partial.html" ignore missing %}`)
	inc := tmpl.Children[0].(*nodes.Include)
	if !inc.IgnoreMissing {
		t.Error("ignore missing not set")
	}
}

func TestParseMacro(t *testing.T) {
	tmpl := parse(t, `{% macro input(name, type="text") %}{{ name }}{% endmacro %}`)
	macro := tmpl.Children[0].(*nodes.Macro)
	if macro.Name != "input" || len(macro.Args) != 2 || len(macro.Defaults) != 1 {
		t.Fatalf("macro %+v", macro)
	}
}

func TestParseFiltersAndTests(t *testing.T) {
	tmpl := parse(t, `{{ name | default("x") | upper if name is defined }}`)
	out := tmpl.Children[0].(*nodes.Output)
	ifExpr, ok := out.Expr.(*nodes.IfExpr)
	if !ok {
		t.Fatalf("expected if expr, got %T", out.Expr)
	}
	upper, ok := ifExpr.TrueExpr.(*nodes.Filter)
	if !ok || upper.Name != "upper" {
		t.Fatalf("outer filter %#v", ifExpr.TrueExpr)
	}
	def, ok := upper.Expr.(*nodes.Filter)
	if !ok || def.Name != "default" || len(def.Args) != 1 {
		t.Fatalf("inner filter %#v", upper.Expr)
	}
	if _, ok := ifExpr.Cond.(*nodes.Test); !ok {
		t.Fatalf("cond %#v", ifExpr.Cond)
	}
}

func TestParseNegatedTestWithBareArg(t *testing.T) {
	tmpl := parse(t, `{{ x is not divisibleby 3 }}`)
	out := tmpl.Children[0].(*nodes.Output)
	not, ok := out.Expr.(*nodes.UnaryOp)
	if !ok || not.Op != nodes.OpNot {
		t.Fatalf("expr %#v", out.Expr)
	}
	test := not.Expr.(*nodes.Test)
	if test.Name != "divisibleby" || len(test.Args) != 1 {
		t.Fatalf("test %+v", test)
	}
}

func TestParseSubscriptAndSlice(t *testing.T) {
	tmpl := parse(t, `{{ items[1:3].name }}`)
	out := tmpl.Children[0].(*nodes.Output)
	attr := out.Expr.(*nodes.GetAttr)
	item := attr.Expr.(*nodes.GetItem)
	slice, ok := item.Index.(*nodes.Slice)
	if !ok || slice.Start == nil || slice.Stop == nil || slice.Step != nil {
		t.Fatalf("slice %#v", item.Index)
	}
}

func TestParseCallKwargs(t *testing.T) {
	tmpl := parse(t, `{{ greet("joe", loud=true) }}`)
	out := tmpl.Children[0].(*nodes.Output)
	call := out.Expr.(*nodes.Call)
	if len(call.Args) != 1 || len(call.Kwargs) != 1 || call.Kwargs[0].Name != "loud" {
		t.Fatalf("call %+v", call)
	}
}

func TestParseErrorUnexpectedEnd(t *testing.T) {
	_, err := ParseExpression("1 +")
	if err == nil {
		t.Fatal("expected error")
	}
	var derr *diag.Error
	if !errors.As(err, &derr) {
		t.Fatalf("not a diagnostic: %v", err)
	}
	if derr.Kind != diag.KindSyntax {
		t.Errorf("kind %v", derr.Kind)
	}
	if derr.Line() != 1 {
		t.Errorf("line %d", derr.Line())
	}
	if got := derr.Message; got != "unexpected end of input" {
		t.Errorf("message %q", got)
	}
}

func TestParseErrorUnclosedBlock(t *testing.T) {
	_, err := Parse("{% if x %}never closed", lexer.DefaultSyntax(), lexer.DefaultWhitespace())
	if err == nil {
		t.Fatal("expected error")
	}
	if !diag.IsKind(err, diag.KindSyntax) {
		t.Errorf("got %v", err)
	}
}

func TestParseErrorStrayEnder(t *testing.T) {
	_, err := Parse("{% endif %}", lexer.DefaultSyntax(), lexer.DefaultWhitespace())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUndeclaredVariables(t *testing.T) {
	tmpl := parse(t, "{% set x = foo %}{{ x }}{{ bar.x }}")
	flat := UndeclaredVariables(tmpl, false)
	if len(flat) != 2 || flat[0] != "bar" || flat[1] != "foo" {
		t.Errorf("flat %v", flat)
	}
	nested := UndeclaredVariables(tmpl, true)
	if len(nested) != 2 || nested[0] != "bar.x" || nested[1] != "foo" {
		t.Errorf("nested %v", nested)
	}
}

func TestUndeclaredVariablesScoping(t *testing.T) {
	tmpl := parse(t, "{% for item in items %}{{ item }}{{ loop.index }}{% endfor %}{{ item }}")
	got := UndeclaredVariables(tmpl, false)
	if len(got) != 2 || got[0] != "item" || got[1] != "items" {
		t.Errorf("got %v", got)
	}
}

func TestUndeclaredVariablesMacro(t *testing.T) {
	tmpl := parse(t, `{% macro f(a, b=default_b) %}{{ a }}{{ c }}{% endmacro %}{{ f(1) }}`)
	got := UndeclaredVariables(tmpl, false)
	if len(got) != 2 || got[0] != "c" || got[1] != "default_b" {
		t.Errorf("got %v", got)
	}
}
