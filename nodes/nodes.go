// Package nodes defines the template syntax tree produced by the parser and
// consumed by the evaluator.
package nodes

import "github.com/kilnlang/kiln/diag"

// Node is implemented by every syntax tree node.
type Node interface {
	Span() diag.Span
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// StmtBase carries the source location of a statement node.
type StmtBase struct {
	Loc diag.Span
}

func (b StmtBase) Span() diag.Span { return b.Loc }

func (StmtBase) stmtNode() {}

// ExprBase carries the source location of an expression node.
type ExprBase struct {
	Loc diag.Span
}

func (b ExprBase) Span() diag.Span { return b.Loc }

func (ExprBase) exprNode() {}

// StmtAt builds the embedded base for a statement at span.
func StmtAt(span diag.Span) StmtBase { return StmtBase{Loc: span} }

// ExprAt builds the embedded base for an expression at span.
func ExprAt(span diag.Span) ExprBase { return ExprBase{Loc: span} }

// Template is the root of a parsed template.
type Template struct {
	StmtBase
	Children []Stmt
}

// Text is literal template data emitted verbatim.
type Text struct {
	StmtBase
	Data string
}

// Output emits the value of an expression.
type Output struct {
	StmtBase
	Expr Expr
}

// If is a conditional with an optional else branch. elif chains parse into
// nested If statements in the else branch.
type If struct {
	StmtBase
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// For iterates over an expression. Target is a Name or a List of Names for
// unpacking. Filter, when set, drops items for which it is falsy. Else runs
// when the iterable is empty.
type For struct {
	StmtBase
	Target Expr
	Iter   Expr
	Filter Expr
	Body   []Stmt
	Else   []Stmt
}

// Set assigns the value of an expression to a target.
type Set struct {
	StmtBase
	Target Expr
	Value  Expr
}

// SetBlock assigns captured block output to a target, optionally piped
// through a filter.
type SetBlock struct {
	StmtBase
	Target Expr
	Filter Expr
	Body   []Stmt
}

// Block is a named block that child templates can override.
type Block struct {
	StmtBase
	Name   string
	Body   []Stmt
	Scoped bool
}

// Extends declares the parent template.
type Extends struct {
	StmtBase
	Name Expr
}

// Include renders another template in place.
type Include struct {
	StmtBase
	Name          Expr
	IgnoreMissing bool
}

// Macro defines a callable template fragment.
type Macro struct {
	StmtBase
	Name     string
	Args     []string
	Defaults []Expr
	Body     []Stmt
}

// FilterBlock pipes captured block output through a filter expression.
type FilterBlock struct {
	StmtBase
	Filter Expr
	Body   []Stmt
}

// Const is a literal value. Value holds nil, bool, int64, float64 or string.
type Const struct {
	ExprBase
	Value any
}

// Name looks up a variable.
type Name struct {
	ExprBase
	Name string
}

// GetAttr accesses an attribute with dot syntax.
type GetAttr struct {
	ExprBase
	Expr Expr
	Name string
}

// GetItem accesses an element with subscript syntax.
type GetItem struct {
	ExprBase
	Expr  Expr
	Index Expr
}

// Slice is a subscript range. Nil fields default to the start, the end and a
// step of one.
type Slice struct {
	ExprBase
	Start Expr
	Stop  Expr
	Step  Expr
}

// Kwarg is a keyword argument in a call.
type Kwarg struct {
	Name  string
	Value Expr
}

// Call invokes a callable value.
type Call struct {
	ExprBase
	Target Expr
	Args   []Expr
	Kwargs []Kwarg
}

// Filter applies a named filter. Expr is nil when the filter heads a filter
// block.
type Filter struct {
	ExprBase
	Name   string
	Expr   Expr
	Args   []Expr
	Kwargs []Kwarg
}

// Test applies a named test.
type Test struct {
	ExprBase
	Name   string
	Expr   Expr
	Args   []Expr
	Kwargs []Kwarg
}

// BinOpKind enumerates binary operators.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpConcat
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
	OpNotIn
	OpAnd
	OpOr
)

var binOpNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpFloorDiv: "//",
	OpMod: "%", OpPow: "**", OpConcat: "~", OpEq: "==", OpNe: "!=",
	OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=", OpIn: "in",
	OpNotIn: "not in", OpAnd: "and", OpOr: "or",
}

func (k BinOpKind) String() string {
	if int(k) < len(binOpNames) {
		return binOpNames[k]
	}
	return "?"
}

// BinOp combines two expressions with an operator.
type BinOp struct {
	ExprBase
	Op    BinOpKind
	Left  Expr
	Right Expr
}

// UnaryOpKind enumerates unary operators.
type UnaryOpKind int

const (
	OpNeg UnaryOpKind = iota
	OpNot
)

// UnaryOp negates an expression arithmetically or logically.
type UnaryOp struct {
	ExprBase
	Op   UnaryOpKind
	Expr Expr
}

// IfExpr is the inline conditional `a if cond else b`.
type IfExpr struct {
	ExprBase
	TrueExpr  Expr
	Cond      Expr
	FalseExpr Expr
}

// List is a list literal, also used as an unpacking target.
type List struct {
	ExprBase
	Items []Expr
}

// Map is a map literal with parallel key and value slices.
type Map struct {
	ExprBase
	Keys   []Expr
	Values []Expr
}

// Walk traverses the tree in preorder. When fn returns false the children of
// the current node are skipped.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Template:
		walkStmts(n.Children, fn)
	case *Output:
		Walk(n.Expr, fn)
	case *If:
		Walk(n.Cond, fn)
		walkStmts(n.Then, fn)
		walkStmts(n.Else, fn)
	case *For:
		Walk(n.Target, fn)
		Walk(n.Iter, fn)
		Walk(n.Filter, fn)
		walkStmts(n.Body, fn)
		walkStmts(n.Else, fn)
	case *Set:
		Walk(n.Target, fn)
		Walk(n.Value, fn)
	case *SetBlock:
		Walk(n.Target, fn)
		Walk(n.Filter, fn)
		walkStmts(n.Body, fn)
	case *Block:
		walkStmts(n.Body, fn)
	case *Extends:
		Walk(n.Name, fn)
	case *Include:
		Walk(n.Name, fn)
	case *Macro:
		walkExprs(n.Defaults, fn)
		walkStmts(n.Body, fn)
	case *FilterBlock:
		Walk(n.Filter, fn)
		walkStmts(n.Body, fn)
	case *GetAttr:
		Walk(n.Expr, fn)
	case *GetItem:
		Walk(n.Expr, fn)
		Walk(n.Index, fn)
	case *Slice:
		Walk(n.Start, fn)
		Walk(n.Stop, fn)
		Walk(n.Step, fn)
	case *Call:
		Walk(n.Target, fn)
		walkExprs(n.Args, fn)
		for _, kw := range n.Kwargs {
			Walk(kw.Value, fn)
		}
	case *Filter:
		Walk(n.Expr, fn)
		walkExprs(n.Args, fn)
		for _, kw := range n.Kwargs {
			Walk(kw.Value, fn)
		}
	case *Test:
		Walk(n.Expr, fn)
		walkExprs(n.Args, fn)
		for _, kw := range n.Kwargs {
			Walk(kw.Value, fn)
		}
	case *BinOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *UnaryOp:
		Walk(n.Expr, fn)
	case *IfExpr:
		Walk(n.TrueExpr, fn)
		Walk(n.Cond, fn)
		Walk(n.FalseExpr, fn)
	case *List:
		walkExprs(n.Items, fn)
	case *Map:
		walkExprs(n.Keys, fn)
		walkExprs(n.Values, fn)
	}
}

func walkStmts(stmts []Stmt, fn func(Node) bool) {
	for _, s := range stmts {
		Walk(s, fn)
	}
}

func walkExprs(exprs []Expr, fn func(Node) bool) {
	for _, e := range exprs {
		Walk(e, fn)
	}
}
