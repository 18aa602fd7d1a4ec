package runtime

import (
	"errors"
	"io"
	"strings"

	"github.com/kilnlang/kiln/nodes"
)

// blockLayer is one template's contribution to a named block, ordered most
// derived first in the state's block stack.
type blockLayer struct {
	body []nodes.Stmt
}

type evaluator struct {
	st  *State
	out io.Writer
}

// annotate attaches position and template name to errors crossing a node
// boundary. Non-diagnostic errors from callbacks are wrapped so the original
// stays reachable through Unwrap.
func (e *evaluator) annotate(err error, node nodes.Node) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		derr.WithSpan(node.Span())
		derr.WithName(e.st.name)
		return err
	}
	return NewError(RuntimeError, err.Error()).
		WithSpan(node.Span()).
		WithName(e.st.name).
		WithCause(err)
}

func (e *evaluator) evalStmts(stmts []nodes.Stmt) error {
	for _, s := range stmts {
		if err := e.evalStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) evalStmt(s nodes.Stmt) error {
	if err := e.st.fuel.consume(); err != nil {
		return e.annotate(err, s)
	}
	switch n := s.(type) {
	case *nodes.Text:
		return e.writeString(n.Data)
	case *nodes.Output:
		v, err := e.evalExpr(n.Expr)
		if err != nil {
			return err
		}
		if err := e.checkDefined(v, n.Expr); err != nil {
			return err
		}
		return e.writeValue(v, n)
	case *nodes.If:
		truthy, err := e.evalTruthy(n.Cond)
		if err != nil {
			return err
		}
		if truthy {
			return e.evalStmts(n.Then)
		}
		return e.evalStmts(n.Else)
	case *nodes.For:
		return e.evalFor(n)
	case *nodes.Set:
		v, err := e.evalExpr(n.Value)
		if err != nil {
			return err
		}
		return e.bindTarget(n.Target, v)
	case *nodes.SetBlock:
		captured, err := e.capture(n.Body)
		if err != nil {
			return err
		}
		v := Safe(captured)
		if n.Filter != nil {
			v, err = e.applyFilterExpr(n.Filter, v)
			if err != nil {
				return err
			}
		}
		return e.bindTarget(n.Target, v)
	case *nodes.FilterBlock:
		captured, err := e.capture(n.Body)
		if err != nil {
			return err
		}
		v, err := e.applyFilterExpr(n.Filter, Safe(captured))
		if err != nil {
			return err
		}
		return e.writeString(v.String())
	case *nodes.Block:
		return e.evalBlockStmt(n)
	case *nodes.Extends:
		// Inheritance is resolved before the body runs.
		return nil
	case *nodes.Include:
		return e.evalInclude(n)
	case *nodes.Macro:
		e.st.set(n.Name, e.makeMacro(n))
		return nil
	}
	return e.annotate(Errorf(RuntimeError, "unsupported statement"), s)
}

func (e *evaluator) evalFor(n *nodes.For) error {
	iterable, err := e.evalExpr(n.Iter)
	if err != nil {
		return err
	}
	if err := e.checkDefined(iterable, n.Iter); err != nil {
		return err
	}
	items, ok := iterable.Iter()
	if !ok {
		return e.annotate(Errorf(InvalidOperation, "value of type %s is not iterable", iterable.Kind()), n.Iter)
	}

	// Apply the loop filter before iteration so loop.length and loop.last
	// see the filtered item count.
	if n.Filter != nil {
		filtered := items[:0:0]
		for _, item := range items {
			e.st.pushScope()
			err := e.bindTarget(n.Target, item)
			var keep bool
			if err == nil {
				keep, err = e.evalTruthy(n.Filter)
			}
			e.st.popScope()
			if err != nil {
				return err
			}
			if keep {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	if len(items) == 0 {
		return e.evalStmts(n.Else)
	}

	length := len(items)
	for i, item := range items {
		if err := e.st.fuel.consume(); err != nil {
			return e.annotate(err, n)
		}
		e.st.pushScope()
		err := e.bindTarget(n.Target, item)
		if err == nil {
			e.st.set("loop", loopValue(i, length))
			err = e.evalStmts(n.Body)
		}
		e.st.popScope()
		if err != nil {
			return err
		}
	}
	return nil
}

// loopValue builds the `loop` variable for one iteration.
func loopValue(index, length int) Value {
	vm := newValueMap()
	vm.set("index", Int(int64(index+1)))
	vm.set("index0", Int(int64(index)))
	vm.set("revindex", Int(int64(length-index)))
	vm.set("revindex0", Int(int64(length-index-1)))
	vm.set("first", Bool(index == 0))
	vm.set("last", Bool(index == length-1))
	vm.set("length", Int(int64(length)))
	return mapValue(vm)
}

func (e *evaluator) bindTarget(target nodes.Expr, v Value) error {
	switch t := target.(type) {
	case *nodes.Name:
		e.st.set(t.Name, v)
		return nil
	case *nodes.List:
		items, ok := v.Iter()
		if !ok {
			return e.annotate(Errorf(InvalidOperation, "cannot unpack value of type %s", v.Kind()), target)
		}
		if len(items) != len(t.Items) {
			return e.annotate(Errorf(InvalidOperation,
				"cannot unpack %d values into %d targets", len(items), len(t.Items)), target)
		}
		for i, sub := range t.Items {
			if err := e.bindTarget(sub, items[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return e.annotate(Errorf(RuntimeError, "invalid assignment target"), target)
}

// capture renders statements into a string using the same state.
func (e *evaluator) capture(stmts []nodes.Stmt) (string, error) {
	var buf strings.Builder
	sub := &evaluator{st: e.st, out: &buf}
	e.st.pushScope()
	err := sub.evalStmts(stmts)
	e.st.popScope()
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// applyFilterExpr pipes a value through a parsed filter chain whose
// innermost Expr is nil.
func (e *evaluator) applyFilterExpr(filter nodes.Expr, v Value) (Value, error) {
	node, ok := filter.(*nodes.Filter)
	if !ok {
		return Undefined(), e.annotate(Errorf(RuntimeError, "expected a filter expression"), filter)
	}
	if node.Expr != nil {
		inner, err := e.applyFilterExpr(node.Expr, v)
		if err != nil {
			return Undefined(), err
		}
		v = inner
	}
	return e.invokeFilter(node, v)
}

func (e *evaluator) evalBlockStmt(n *nodes.Block) error {
	layers := e.st.blockStack[n.Name]
	if len(layers) == 0 {
		layers = []blockLayer{{body: n.Body}}
		e.st.blockStack[n.Name] = layers
	}
	return e.renderBlockLayer(n.Name, 0)
}

func (e *evaluator) renderBlockLayer(name string, layer int) error {
	layers := e.st.blockStack[name]
	if layer >= len(layers) {
		return Errorf(RuntimeError, "no super block for %q", name)
	}
	prevBlock := e.st.currentBlock
	e.st.currentBlock = name
	e.st.pushScope()
	if layer+1 < len(layers) {
		e.st.set("super", Func("super", func(st *State, args Args) (Value, error) {
			captured, err := e.captureBlockLayer(name, layer+1)
			if err != nil {
				return Undefined(), err
			}
			return Safe(captured), nil
		}))
	}
	err := e.evalStmts(layers[layer].body)
	e.st.popScope()
	e.st.currentBlock = prevBlock
	return err
}

func (e *evaluator) captureBlockLayer(name string, layer int) (string, error) {
	var buf strings.Builder
	sub := &evaluator{st: e.st, out: &buf}
	if err := sub.renderBlockLayer(name, layer); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *evaluator) evalInclude(n *nodes.Include) error {
	nameV, err := e.evalExpr(n.Name)
	if err != nil {
		return err
	}

	// A sequence lists fallback candidates, tried in order.
	candidates := []Value{nameV}
	if nameV.Kind() == KindSeq {
		candidates, _ = nameV.Iter()
	}

	var lastErr error
	for _, cand := range candidates {
		name, ok := cand.AsString()
		if !ok {
			lastErr = e.annotate(Errorf(InvalidOperation, "include name must be a string, got %s", cand.Kind()), n.Name)
			continue
		}
		if join := e.st.cfg.pathJoin; join != nil {
			name = join(name, e.st.name)
		}
		tmpl, err := e.st.env.resolveTemplate(name, e.st.cfg)
		if err != nil {
			if IsKind(err, TemplateNotFound) {
				lastErr = err
				continue
			}
			return e.annotate(err, n)
		}
		e.st.pushScope()
		err = e.renderTemplateInto(tmpl)
		e.st.popScope()
		if err != nil {
			return err
		}
		return nil
	}
	if n.IgnoreMissing {
		return nil
	}
	if lastErr != nil {
		return e.annotate(lastErr, n)
	}
	return nil
}

// renderTemplateInto renders another template, inheritance included, into
// the current output with the current scopes visible.
func (e *evaluator) renderTemplateInto(tmpl *Template) error {
	prevName := e.st.name
	prevBlocks := e.st.blockStack
	e.st.name = tmpl.name
	e.st.blockStack = map[string][]blockLayer{}
	err := e.renderWithInheritance(tmpl)
	e.st.name = prevName
	e.st.blockStack = prevBlocks
	return err
}

// renderWithInheritance resolves the extends chain of tmpl and renders the
// root ancestor with the collected block layers.
func (e *evaluator) renderWithInheritance(tmpl *Template) error {
	chain := []*Template{tmpl}
	seen := map[string]bool{tmpl.name: true}
	current := tmpl
	for {
		parentName, ok, err := e.extendsTarget(current)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if join := e.st.cfg.pathJoin; join != nil {
			parentName = join(parentName, current.name)
		}
		if seen[parentName] {
			return Errorf(RuntimeError, "circular extends chain through %q", parentName).WithName(tmpl.name)
		}
		parent, err := e.st.env.resolveTemplate(parentName, e.st.cfg)
		if err != nil {
			return err
		}
		seen[parentName] = true
		chain = append(chain, parent)
		current = parent
	}

	// Collect block layers, most derived template first.
	for _, t := range chain {
		collectBlocks(t.root.Children, e.st.blockStack)
	}

	root := chain[len(chain)-1]
	prevName := e.st.name
	e.st.name = root.name
	err := e.evalStmts(root.root.Children)
	e.st.name = prevName
	return err
}

// collectBlocks records every block definition, including blocks nested in
// other blocks or control structures.
func collectBlocks(stmts []nodes.Stmt, into map[string][]blockLayer) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *nodes.Block:
			into[n.Name] = append(into[n.Name], blockLayer{body: n.Body})
			collectBlocks(n.Body, into)
		case *nodes.If:
			collectBlocks(n.Then, into)
			collectBlocks(n.Else, into)
		case *nodes.For:
			collectBlocks(n.Body, into)
			collectBlocks(n.Else, into)
		}
	}
}

// extendsTarget returns the parent template name when tmpl starts an
// inheritance chain.
func (e *evaluator) extendsTarget(tmpl *Template) (string, bool, error) {
	for _, s := range tmpl.root.Children {
		ext, ok := s.(*nodes.Extends)
		if !ok {
			continue
		}
		v, err := e.evalExpr(ext.Name)
		if err != nil {
			return "", false, err
		}
		name, ok := v.AsString()
		if !ok {
			return "", false, e.annotate(Errorf(InvalidOperation, "extends name must be a string, got %s", v.Kind()), ext.Name)
		}
		return name, true, nil
	}
	return "", false, nil
}

func (e *evaluator) makeMacro(n *nodes.Macro) Value {
	return Func(n.Name, func(st *State, args Args) (Value, error) {
		e.st.pushScope()
		defer e.st.popScope()

		required := len(n.Args) - len(n.Defaults)
		for i, argName := range n.Args {
			var v Value
			switch {
			case i < len(args.Positional):
				v = args.Positional[i]
			case args.Named[argName].Kind() != KindUndefined:
				v = args.Named[argName]
			case i >= required:
				def, err := e.evalExpr(n.Defaults[i-required])
				if err != nil {
					return Undefined(), err
				}
				v = def
			default:
				v = Undefined()
			}
			e.st.set(argName, v)
		}

		captured, err := e.capture(n.Body)
		if err != nil {
			return Undefined(), err
		}
		return Safe(captured), nil
	})
}

func (e *evaluator) evalTruthy(expr nodes.Expr) (bool, error) {
	v, err := e.evalExpr(expr)
	if err != nil {
		return false, err
	}
	if err := e.checkDefined(v, expr); err != nil {
		return false, err
	}
	return v.IsTrue(), nil
}

// checkDefined enforces strict undefined behavior at use sites.
func (e *evaluator) checkDefined(v Value, node nodes.Node) error {
	if v.IsUndefined() && e.st.cfg.undefined == UndefinedStrict {
		msg := "undefined value"
		if name, ok := node.(*nodes.Name); ok {
			msg = "undefined variable `" + name.Name + "`"
		}
		return e.annotate(NewError(UndefinedError, msg), node)
	}
	return nil
}

func (e *evaluator) evalExpr(expr nodes.Expr) (Value, error) {
	if err := e.st.fuel.consume(); err != nil {
		return Undefined(), e.annotate(err, expr)
	}
	switch n := expr.(type) {
	case *nodes.Const:
		return constValue(n.Value), nil
	case *nodes.Name:
		return e.st.Lookup(n.Name), nil
	case *nodes.GetAttr:
		return e.evalGetAttr(n)
	case *nodes.GetItem:
		return e.evalGetItem(n)
	case *nodes.Call:
		return e.evalCall(n)
	case *nodes.Filter:
		base, err := e.evalExpr(n.Expr)
		if err != nil {
			return Undefined(), err
		}
		return e.invokeFilter(n, base)
	case *nodes.Test:
		ok, err := e.invokeTest(n)
		if err != nil {
			return Undefined(), err
		}
		return Bool(ok), nil
	case *nodes.BinOp:
		return e.evalBinOp(n)
	case *nodes.UnaryOp:
		return e.evalUnaryOp(n)
	case *nodes.IfExpr:
		truthy, err := e.evalTruthy(n.Cond)
		if err != nil {
			return Undefined(), err
		}
		if truthy {
			return e.evalExpr(n.TrueExpr)
		}
		if n.FalseExpr == nil {
			return Undefined(), nil
		}
		return e.evalExpr(n.FalseExpr)
	case *nodes.List:
		items := make([]Value, len(n.Items))
		for i, item := range n.Items {
			v, err := e.evalExpr(item)
			if err != nil {
				return Undefined(), err
			}
			items[i] = v
		}
		return Seq(items), nil
	case *nodes.Map:
		vm := newValueMap()
		for i := range n.Keys {
			k, err := e.evalExpr(n.Keys[i])
			if err != nil {
				return Undefined(), err
			}
			v, err := e.evalExpr(n.Values[i])
			if err != nil {
				return Undefined(), err
			}
			vm.set(k.String(), v)
		}
		return mapValue(vm), nil
	}
	return Undefined(), e.annotate(Errorf(RuntimeError, "unsupported expression"), expr)
}

func constValue(v any) Value {
	switch v := v.(type) {
	case nil:
		return None()
	case bool:
		return Bool(v)
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case string:
		return String(v)
	}
	return Undefined()
}

func (e *evaluator) evalGetAttr(n *nodes.GetAttr) (Value, error) {
	base, err := e.evalExpr(n.Expr)
	if err != nil {
		return Undefined(), err
	}
	if base.IsUndefined() {
		if e.st.cfg.undefined == UndefinedChainable {
			return Undefined(), nil
		}
		return Undefined(), e.annotate(Errorf(UndefinedError,
			"cannot read attribute %q of undefined value", n.Name), n)
	}
	if v, ok := base.GetAttr(n.Name); ok {
		return v, nil
	}
	return Undefined(), nil
}

func (e *evaluator) evalGetItem(n *nodes.GetItem) (Value, error) {
	base, err := e.evalExpr(n.Expr)
	if err != nil {
		return Undefined(), err
	}
	if base.IsUndefined() {
		if e.st.cfg.undefined == UndefinedChainable {
			return Undefined(), nil
		}
		return Undefined(), e.annotate(Errorf(UndefinedError, "cannot index undefined value"), n)
	}
	if slice, ok := n.Index.(*nodes.Slice); ok {
		return e.evalSlice(base, slice)
	}
	key, err := e.evalExpr(n.Index)
	if err != nil {
		return Undefined(), err
	}
	if v, ok := base.GetItem(key); ok {
		return v, nil
	}
	return Undefined(), nil
}

func (e *evaluator) evalSlice(base Value, n *nodes.Slice) (Value, error) {
	items, ok := base.Iter()
	isString := base.Kind() == KindString
	if !ok {
		return Undefined(), e.annotate(Errorf(InvalidOperation, "value of type %s cannot be sliced", base.Kind()), n)
	}

	sliceArg := func(expr nodes.Expr, def int64) (int64, error) {
		if expr == nil {
			return def, nil
		}
		v, err := e.evalExpr(expr)
		if err != nil {
			return 0, err
		}
		i, ok := v.AsInt()
		if !ok {
			return 0, e.annotate(Errorf(InvalidOperation, "slice bound must be an integer, got %s", v.Kind()), expr)
		}
		return i, nil
	}

	length := int64(len(items))
	step, err := sliceArg(n.Step, 1)
	if err != nil {
		return Undefined(), err
	}
	if step == 0 {
		return Undefined(), e.annotate(Errorf(InvalidOperation, "slice step cannot be zero"), n)
	}
	defStart, defStop := int64(0), length
	if step < 0 {
		defStart, defStop = length-1, -length-1
	}
	start, err := sliceArg(n.Start, defStart)
	if err != nil {
		return Undefined(), err
	}
	stop, err := sliceArg(n.Stop, defStop)
	if err != nil {
		return Undefined(), err
	}
	clamp := func(i int64) int64 {
		if i < 0 {
			i += length
		}
		return i
	}
	start, stop = clamp(start), clamp(stop)

	var out []Value
	if step > 0 {
		for i := max64(start, 0); i < stop && i < length; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := min64(start, length-1); i > stop && i >= 0; i += step {
			out = append(out, items[i])
		}
	}
	if isString {
		var b strings.Builder
		for _, item := range out {
			b.WriteString(item.String())
		}
		return String(b.String()), nil
	}
	return Seq(out), nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (e *evaluator) evalCall(n *nodes.Call) (Value, error) {
	args, err := e.evalArgs(n.Args, n.Kwargs)
	if err != nil {
		return Undefined(), err
	}

	// Method style calls can fall back to compat methods when the attribute
	// does not exist on the value.
	if attr, ok := n.Target.(*nodes.GetAttr); ok {
		base, err := e.evalExpr(attr.Expr)
		if err != nil {
			return Undefined(), err
		}
		if method, ok := base.GetAttr(attr.Name); ok && method.Kind() == KindCallable {
			return e.invokeCallable(method, attr.Name, args, n)
		}
		if e.st.cfg.compat {
			if v, err := compatCall(e.st, base, attr.Name, args); !errors.Is(err, ErrNotApplicable) {
				if err != nil {
					return Undefined(), e.annotate(err, n)
				}
				return v, nil
			}
		}
		return Undefined(), e.annotate(Errorf(InvalidOperation,
			"value of type %s has no method %q", base.Kind(), attr.Name), n)
	}

	target, err := e.evalExpr(n.Target)
	if err != nil {
		return Undefined(), err
	}
	if target.Kind() != KindCallable {
		if target.IsUndefined() {
			if name, ok := n.Target.(*nodes.Name); ok {
				return Undefined(), e.annotate(Errorf(UndefinedError, "unknown function `%s`", name.Name), n)
			}
		}
		return Undefined(), e.annotate(Errorf(InvalidOperation, "value of type %s is not callable", target.Kind()), n)
	}
	callName := target.CallableName()
	if name, ok := n.Target.(*nodes.Name); ok {
		callName = name.Name
	}
	return e.invokeCallable(target, callName, args, n)
}

func (e *evaluator) invokeCallable(target Value, name string, args Args, node nodes.Node) (Value, error) {
	prev := e.st.currentCall
	e.st.currentCall = name
	v, err := target.Call(e.st, args)
	e.st.currentCall = prev
	if err != nil {
		return Undefined(), e.annotate(err, node)
	}
	return v, nil
}

func (e *evaluator) evalArgs(argNodes []nodes.Expr, kwargNodes []nodes.Kwarg) (Args, error) {
	var args Args
	for _, a := range argNodes {
		v, err := e.evalExpr(a)
		if err != nil {
			return Args{}, err
		}
		args.Positional = append(args.Positional, v)
	}
	if len(kwargNodes) > 0 {
		args.Named = make(map[string]Value, len(kwargNodes))
		for _, kw := range kwargNodes {
			v, err := e.evalExpr(kw.Value)
			if err != nil {
				return Args{}, err
			}
			args.Named[kw.Name] = v
		}
	}
	return args, nil
}

func (e *evaluator) invokeFilter(n *nodes.Filter, value Value) (Value, error) {
	fn, ok := e.st.cfg.reg.filters[n.Name]
	if !ok {
		return Undefined(), e.annotate(Errorf(InvalidOperation, "unknown filter `%s`", n.Name), n)
	}
	args, err := e.evalArgs(n.Args, n.Kwargs)
	if err != nil {
		return Undefined(), err
	}
	prev := e.st.currentCall
	e.st.currentCall = n.Name
	v, err := fn(e.st, value, args)
	e.st.currentCall = prev
	if err != nil {
		return Undefined(), e.annotate(err, n)
	}
	return v, nil
}

func (e *evaluator) invokeTest(n *nodes.Test) (bool, error) {
	fn, ok := e.st.cfg.reg.tests[n.Name]
	if !ok {
		return false, e.annotate(Errorf(InvalidOperation, "unknown test `%s`", n.Name), n)
	}
	value, err := e.evalExpr(n.Expr)
	if err != nil {
		return false, err
	}
	args, err := e.evalArgs(n.Args, n.Kwargs)
	if err != nil {
		return false, err
	}
	prev := e.st.currentCall
	e.st.currentCall = n.Name
	ok, err = fn(e.st, value, args)
	e.st.currentCall = prev
	if err != nil {
		return false, e.annotate(err, n)
	}
	return ok, nil
}

func (e *evaluator) evalBinOp(n *nodes.BinOp) (Value, error) {
	// Logic operators short circuit on the left side.
	if n.Op == nodes.OpAnd || n.Op == nodes.OpOr {
		left, err := e.evalTruthy(n.Left)
		if err != nil {
			return Undefined(), err
		}
		if (n.Op == nodes.OpAnd && !left) || (n.Op == nodes.OpOr && left) {
			return Bool(left), nil
		}
		right, err := e.evalTruthy(n.Right)
		if err != nil {
			return Undefined(), err
		}
		return Bool(right), nil
	}

	left, err := e.evalExpr(n.Left)
	if err != nil {
		return Undefined(), err
	}
	right, err := e.evalExpr(n.Right)
	if err != nil {
		return Undefined(), err
	}
	if n.Op != nodes.OpEq && n.Op != nodes.OpNe {
		if err := e.checkDefined(left, n.Left); err != nil {
			return Undefined(), err
		}
		if err := e.checkDefined(right, n.Right); err != nil {
			return Undefined(), err
		}
	}

	var v Value
	switch n.Op {
	case nodes.OpAdd:
		v, err = add(left, right)
	case nodes.OpSub:
		v, err = sub(left, right)
	case nodes.OpMul:
		v, err = mul(left, right)
	case nodes.OpDiv:
		v, err = div(left, right)
	case nodes.OpFloorDiv:
		v, err = floorDiv(left, right)
	case nodes.OpMod:
		v, err = mod(left, right)
	case nodes.OpPow:
		v, err = pow(left, right)
	case nodes.OpConcat:
		v = concat(left, right)
	case nodes.OpEq:
		v = Bool(valuesEqual(left, right))
	case nodes.OpNe:
		v = Bool(!valuesEqual(left, right))
	case nodes.OpLt, nodes.OpLe, nodes.OpGt, nodes.OpGe:
		var c int
		c, err = compareValues(left, right)
		if err == nil {
			switch n.Op {
			case nodes.OpLt:
				v = Bool(c < 0)
			case nodes.OpLe:
				v = Bool(c <= 0)
			case nodes.OpGt:
				v = Bool(c > 0)
			case nodes.OpGe:
				v = Bool(c >= 0)
			}
		}
	case nodes.OpIn, nodes.OpNotIn:
		var found bool
		found, err = contains(left, right)
		if err == nil {
			v = Bool(found == (n.Op == nodes.OpIn))
		}
	default:
		err = Errorf(RuntimeError, "unsupported operator %s", n.Op)
	}
	if err != nil {
		return Undefined(), e.annotate(err, n)
	}
	return v, nil
}

func (e *evaluator) evalUnaryOp(n *nodes.UnaryOp) (Value, error) {
	if n.Op == nodes.OpNot {
		truthy, err := e.evalTruthy(n.Expr)
		if err != nil {
			return Undefined(), err
		}
		return Bool(!truthy), nil
	}
	v, err := e.evalExpr(n.Expr)
	if err != nil {
		return Undefined(), err
	}
	if err := e.checkDefined(v, n.Expr); err != nil {
		return Undefined(), err
	}
	out, err := neg(v)
	if err != nil {
		return Undefined(), e.annotate(err, n)
	}
	return out, nil
}

func (e *evaluator) writeString(s string) error {
	_, err := io.WriteString(e.out, s)
	return err
}

// writeValue finalizes, escapes and emits one output value.
func (e *evaluator) writeValue(v Value, node nodes.Node) error {
	if fin := e.st.cfg.finalizer; fin != nil {
		out, err := fin(e.st, v)
		switch {
		case err == nil:
			v = out
		case errors.Is(err, ErrNotApplicable):
			// Identity passthrough.
		default:
			return e.annotate(err, node)
		}
	}
	s, err := escapeValue(v, e.st.autoEscape)
	if err != nil {
		return e.annotate(err, node)
	}
	return e.writeString(s)
}
