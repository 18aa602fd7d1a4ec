package parser

import (
	"strconv"

	"github.com/kilnlang/kiln/lexer"
	"github.com/kilnlang/kiln/nodes"
)

// parseExpr parses a full expression including the inline conditional.
func (p *parser) parseExpr() (nodes.Expr, error) {
	expr, err := p.parseExprNoIf()
	if err != nil {
		return nil, err
	}
	for p.peekTrailingIf() {
		p.advance()
		cond, err := p.parseExprNoIf()
		if err != nil {
			return nil, err
		}
		node := &nodes.IfExpr{ExprBase: nodes.ExprAt(expr.Span()), TrueExpr: expr, Cond: cond}
		if p.acceptIdent("else") {
			node.FalseExpr, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		expr = node
	}
	return expr, nil
}

// peekTrailingIf distinguishes the inline conditional from statement level
// `if` usage such as a for loop filter, which is parsed by the caller.
func (p *parser) peekTrailingIf() bool {
	return p.peekIdent("if")
}

// parseExprNoIf parses an expression without consuming a trailing `if`.
func (p *parser) parseExprNoIf() (nodes.Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (nodes.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: nodes.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (nodes.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: nodes.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (nodes.Expr, error) {
	if tok, ok := p.current(); ok && tok.Is("not") && !p.nextIsIdent("in") {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &nodes.UnaryOp{ExprBase: nodes.ExprAt(tok.Span), Op: nodes.OpNot, Expr: inner}, nil
	}
	return p.parseCompare()
}

// nextIsIdent reports whether the token after the current one is the given
// identifier.
func (p *parser) nextIsIdent(value string) bool {
	if p.pos+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.pos+1].Is(value)
}

func (p *parser) parseCompare() (nodes.Expr, error) {
	left, err := p.parseMath1()
	if err != nil {
		return nil, err
	}
	for {
		var op nodes.BinOpKind
		tok, ok := p.current()
		if !ok {
			return left, nil
		}
		switch {
		case tok.Type == lexer.TokenEq:
			op = nodes.OpEq
		case tok.Type == lexer.TokenNe:
			op = nodes.OpNe
		case tok.Type == lexer.TokenLt:
			op = nodes.OpLt
		case tok.Type == lexer.TokenLe:
			op = nodes.OpLe
		case tok.Type == lexer.TokenGt:
			op = nodes.OpGt
		case tok.Type == lexer.TokenGe:
			op = nodes.OpGe
		case tok.Is("in"):
			op = nodes.OpIn
		case tok.Is("not") && p.nextIsIdent("in"):
			p.advance()
			op = nodes.OpNotIn
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMath1()
		if err != nil {
			return nil, err
		}
		left = &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMath1() (nodes.Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		var op nodes.BinOpKind
		switch {
		case p.peekIs(lexer.TokenPlus):
			op = nodes.OpAdd
		case p.peekIs(lexer.TokenMinus):
			op = nodes.OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseConcat() (nodes.Expr, error) {
	left, err := p.parseMath2()
	if err != nil {
		return nil, err
	}
	for p.peekIs(lexer.TokenTilde) {
		p.advance()
		right, err := p.parseMath2()
		if err != nil {
			return nil, err
		}
		left = &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: nodes.OpConcat, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMath2() (nodes.Expr, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for {
		var op nodes.BinOpKind
		switch {
		case p.peekIs(lexer.TokenMul):
			op = nodes.OpMul
		case p.peekIs(lexer.TokenDiv):
			op = nodes.OpDiv
		case p.peekIs(lexer.TokenFloorDiv):
			op = nodes.OpFloorDiv
		case p.peekIs(lexer.TokenMod):
			op = nodes.OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: op, Left: left, Right: right}
	}
}

func (p *parser) parsePow() (nodes.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peekIs(lexer.TokenPow) {
		p.advance()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		return &nodes.BinOp{ExprBase: nodes.ExprAt(left.Span()), Op: nodes.OpPow, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (nodes.Expr, error) {
	if tok, ok := p.accept(lexer.TokenMinus); ok {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &nodes.UnaryOp{ExprBase: nodes.ExprAt(tok.Span), Op: nodes.OpNeg, Expr: inner}, nil
	}
	if _, ok := p.accept(lexer.TokenPlus); ok {
		return p.parseUnary()
	}
	primary, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	expr, err := p.parsePostfix(primary)
	if err != nil {
		return nil, err
	}
	return p.parseFilterTest(expr)
}

// parsePostfix applies attribute access, subscripts and calls.
func (p *parser) parsePostfix(expr nodes.Expr) (nodes.Expr, error) {
	for {
		switch {
		case p.peekIs(lexer.TokenDot):
			p.advance()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			expr = &nodes.GetAttr{ExprBase: nodes.ExprAt(expr.Span()), Expr: expr, Name: name.Value}
		case p.peekIs(lexer.TokenBracketOpen):
			p.advance()
			index, err := p.parseSubscript()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenBracketClose); err != nil {
				return nil, err
			}
			expr = &nodes.GetItem{ExprBase: nodes.ExprAt(expr.Span()), Expr: expr, Index: index}
		case p.peekIs(lexer.TokenParenOpen):
			args, kwargs, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			expr = &nodes.Call{ExprBase: nodes.ExprAt(expr.Span()), Target: expr, Args: args, Kwargs: kwargs}
		default:
			return expr, nil
		}
	}
}

// parseSubscript parses a plain index or a slice with up to three parts.
func (p *parser) parseSubscript() (nodes.Expr, error) {
	var start nodes.Expr
	var err error
	startSpan := p.lastSpan()
	if tok, ok := p.current(); ok {
		startSpan = tok.Span
	}
	if !p.peekIs(lexer.TokenColon) {
		start, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.peekIs(lexer.TokenColon) {
			return start, nil
		}
	}
	slice := &nodes.Slice{ExprBase: nodes.ExprAt(startSpan), Start: start}
	p.advance()
	if !p.peekIs(lexer.TokenColon) && !p.peekIs(lexer.TokenBracketClose) {
		slice.Stop, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.peekIs(lexer.TokenColon) {
		p.advance()
		if !p.peekIs(lexer.TokenBracketClose) {
			slice.Step, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
	}
	return slice, nil
}

func (p *parser) parseCallArgs() ([]nodes.Expr, []nodes.Kwarg, error) {
	if _, err := p.expect(lexer.TokenParenOpen); err != nil {
		return nil, nil, err
	}
	var args []nodes.Expr
	var kwargs []nodes.Kwarg
	for !p.peekIs(lexer.TokenParenClose) {
		if len(args)+len(kwargs) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return nil, nil, err
			}
			// Trailing comma.
			if p.peekIs(lexer.TokenParenClose) {
				break
			}
		}
		if tok, ok := p.current(); ok && tok.Type == lexer.TokenIdent && p.nextIs(lexer.TokenAssign) {
			p.advance()
			p.advance()
			value, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, nodes.Kwarg{Name: tok.Value, Value: value})
			continue
		}
		if len(kwargs) > 0 {
			return nil, nil, p.errorCurrent("positional argument after keyword argument")
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		args = append(args, arg)
	}
	if _, err := p.expect(lexer.TokenParenClose); err != nil {
		return nil, nil, err
	}
	return args, kwargs, nil
}

func (p *parser) nextIs(t lexer.TokenType) bool {
	if p.pos+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.pos+1].Type == t
}

// parseFilterTest applies `| filter` and `is test` postfix syntax.
func (p *parser) parseFilterTest(expr nodes.Expr) (nodes.Expr, error) {
	for {
		switch {
		case p.peekIs(lexer.TokenPipe):
			p.advance()
			var err error
			expr, err = p.parseFilterChain(expr)
			if err != nil {
				return nil, err
			}
		case p.peekIdent("is"):
			p.advance()
			negated := false
			if p.acceptIdent("not") {
				negated = true
			}
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			args, kwargs, err := p.parseTestArgs()
			if err != nil {
				return nil, err
			}
			var test nodes.Expr = &nodes.Test{
				ExprBase: nodes.ExprAt(expr.Span()),
				Name:     name.Value,
				Expr:     expr,
				Args:     args,
				Kwargs:   kwargs,
			}
			if negated {
				test = &nodes.UnaryOp{ExprBase: nodes.ExprAt(expr.Span()), Op: nodes.OpNot, Expr: test}
			}
			expr = test
		default:
			return expr, nil
		}
	}
}

// parseFilterChain parses one or more pipe separated filters applied to
// expr, which may be nil inside filter blocks.
func (p *parser) parseFilterChain(expr nodes.Expr) (nodes.Expr, error) {
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		node := &nodes.Filter{ExprBase: nodes.ExprAt(name.Span), Name: name.Value, Expr: expr}
		if p.peekIs(lexer.TokenParenOpen) {
			node.Args, node.Kwargs, err = p.parseCallArgs()
			if err != nil {
				return nil, err
			}
		}
		expr = node
		if _, ok := p.accept(lexer.TokenPipe); !ok {
			return expr, nil
		}
	}
}

// parseTestArgs parses optional test arguments, either parenthesized or as a
// single bare operand.
func (p *parser) parseTestArgs() ([]nodes.Expr, []nodes.Kwarg, error) {
	if p.peekIs(lexer.TokenParenOpen) {
		return p.parseCallArgs()
	}
	tok, ok := p.current()
	if !ok {
		return nil, nil, nil
	}
	bare := false
	switch tok.Type {
	case lexer.TokenInt, lexer.TokenFloat, lexer.TokenString:
		bare = true
	case lexer.TokenIdent:
		switch tok.Value {
		case "and", "or", "else", "if", "in", "is", "not":
		default:
			bare = true
		}
	}
	if !bare {
		return nil, nil, nil
	}
	arg, err := p.parsePrimary()
	if err != nil {
		return nil, nil, err
	}
	arg, err = p.parsePostfix(arg)
	if err != nil {
		return nil, nil, err
	}
	return []nodes.Expr{arg}, nil, nil
}

func (p *parser) parsePrimary() (nodes.Expr, error) {
	tok, ok := p.current()
	if !ok {
		return nil, p.errorEOF("unexpected end of input")
	}
	switch tok.Type {
	case lexer.TokenInt:
		p.advance()
		n, err := strconv.ParseInt(tok.Value, 0, 64)
		if err != nil {
			return nil, p.errorAt(tok.Span, "invalid integer literal %q", tok.Value)
		}
		return &nodes.Const{ExprBase: nodes.ExprAt(tok.Span), Value: n}, nil
	case lexer.TokenFloat:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorAt(tok.Span, "invalid float literal %q", tok.Value)
		}
		return &nodes.Const{ExprBase: nodes.ExprAt(tok.Span), Value: f}, nil
	case lexer.TokenString:
		p.advance()
		return &nodes.Const{ExprBase: nodes.ExprAt(tok.Span), Value: tok.Value}, nil
	case lexer.TokenIdent:
		p.advance()
		switch tok.Value {
		case "true", "True":
			return &nodes.Const{ExprBase: nodes.ExprAt(tok.Span), Value: true}, nil
		case "false", "False":
			return &nodes.Const{ExprBase: nodes.ExprAt(tok.Span), Value: false}, nil
		case "none", "None":
			return &nodes.Const{ExprBase: nodes.ExprAt(tok.Span), Value: nil}, nil
		}
		return &nodes.Name{ExprBase: nodes.ExprAt(tok.Span), Name: tok.Value}, nil
	case lexer.TokenParenOpen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peekIs(lexer.TokenComma) {
			items := []nodes.Expr{expr}
			for {
				if _, ok := p.accept(lexer.TokenComma); !ok {
					break
				}
				if p.peekIs(lexer.TokenParenClose) {
					break
				}
				item, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			expr = &nodes.List{ExprBase: nodes.ExprAt(tok.Span), Items: items}
		}
		if _, err := p.expect(lexer.TokenParenClose); err != nil {
			return nil, err
		}
		return expr, nil
	case lexer.TokenBracketOpen:
		p.advance()
		node := &nodes.List{ExprBase: nodes.ExprAt(tok.Span)}
		for !p.peekIs(lexer.TokenBracketClose) {
			if len(node.Items) > 0 {
				if _, err := p.expect(lexer.TokenComma); err != nil {
					return nil, err
				}
				if p.peekIs(lexer.TokenBracketClose) {
					break
				}
			}
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			node.Items = append(node.Items, item)
		}
		if _, err := p.expect(lexer.TokenBracketClose); err != nil {
			return nil, err
		}
		return node, nil
	case lexer.TokenBraceOpen:
		p.advance()
		node := &nodes.Map{ExprBase: nodes.ExprAt(tok.Span)}
		for !p.peekIs(lexer.TokenBraceClose) {
			if len(node.Keys) > 0 {
				if _, err := p.expect(lexer.TokenComma); err != nil {
					return nil, err
				}
				if p.peekIs(lexer.TokenBraceClose) {
					break
				}
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenColon); err != nil {
				return nil, err
			}
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			node.Keys = append(node.Keys, key)
			node.Values = append(node.Values, value)
		}
		if _, err := p.expect(lexer.TokenBraceClose); err != nil {
			return nil, err
		}
		return node, nil
	default:
		return nil, p.errorAt(tok.Span, "unexpected %s in expression", tok.Type)
	}
}
