// Package parser turns template source into a syntax tree.
package parser

import (
	"strings"

	"github.com/kilnlang/kiln/diag"
	"github.com/kilnlang/kiln/lexer"
	"github.com/kilnlang/kiln/nodes"
)

type parser struct {
	tokens []lexer.Token
	pos    int
}

// Parse lexes and parses a full template.
func Parse(source string, syntax lexer.SyntaxConfig, ws lexer.WhitespaceConfig) (*nodes.Template, error) {
	tokens, err := lexer.Tokenize(source, syntax, ws)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	children, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if end != "" {
		return nil, p.errorCurrent("unexpected `%s`, there is no block to close", end)
	}
	return &nodes.Template{Children: children}, nil
}

// ParseExpression parses a standalone expression such as a config value or a
// computed default.
func ParseExpression(source string) (nodes.Expr, error) {
	tokens, err := lexer.TokenizeExpression(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.current(); ok {
		return nil, p.errorAt(tok.Span, "unexpected %s after expression", tok.Type)
	}
	return expr, nil
}

func (p *parser) current() (lexer.Token, bool) {
	if p.pos >= len(p.tokens) {
		return lexer.Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

// peekIs reports whether the current token has the given type without
// consuming it.
func (p *parser) peekIs(t lexer.TokenType) bool {
	tok, ok := p.current()
	return ok && tok.Type == t
}

func (p *parser) peekIdent(value string) bool {
	tok, ok := p.current()
	return ok && tok.Is(value)
}

// accept consumes the current token when it matches.
func (p *parser) accept(t lexer.TokenType) (lexer.Token, bool) {
	if p.peekIs(t) {
		return p.advance(), true
	}
	return lexer.Token{}, false
}

func (p *parser) acceptIdent(value string) bool {
	if p.peekIdent(value) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(t lexer.TokenType) (lexer.Token, error) {
	tok, ok := p.current()
	if !ok {
		return lexer.Token{}, p.errorEOF("unexpected end of input, expected %s", t)
	}
	if tok.Type != t {
		return lexer.Token{}, p.errorAt(tok.Span, "unexpected %s, expected %s", tok.Type, t)
	}
	return p.advance(), nil
}

func (p *parser) expectIdent() (lexer.Token, error) {
	return p.expect(lexer.TokenIdent)
}

// lastSpan is the position parse errors at end of input point at.
func (p *parser) lastSpan() diag.Span {
	if len(p.tokens) == 0 {
		return diag.Span{StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 1}
	}
	s := p.tokens[len(p.tokens)-1].Span
	return diag.Span{
		StartLine: s.EndLine, StartCol: s.EndCol, StartOffset: s.EndOffset,
		EndLine: s.EndLine, EndCol: s.EndCol, EndOffset: s.EndOffset,
	}
}

func (p *parser) errorEOF(format string, args ...any) error {
	return diag.Errorf(diag.KindSyntax, format, args...).WithSpan(p.lastSpan())
}

func (p *parser) errorAt(span diag.Span, format string, args ...any) error {
	return diag.Errorf(diag.KindSyntax, format, args...).WithSpan(span)
}

func (p *parser) errorCurrent(format string, args ...any) error {
	if tok, ok := p.current(); ok {
		return p.errorAt(tok.Span, format, args...)
	}
	return p.errorEOF(format, args...)
}

// blockEnders terminate a nested statement body. The closing keyword is
// consumed and returned so the caller can finish the enclosing tag.
var blockEnders = map[string]bool{
	"endif": true, "elif": true, "else": true, "endfor": true,
	"endblock": true, "endset": true, "endmacro": true, "endfilter": true,
}

func (p *parser) parseStatements() ([]nodes.Stmt, string, error) {
	var stmts []nodes.Stmt
	for {
		tok, ok := p.current()
		if !ok {
			return stmts, "", nil
		}
		switch tok.Type {
		case lexer.TokenText:
			p.advance()
			stmts = append(stmts, &nodes.Text{StmtBase: nodes.StmtAt(tok.Span), Data: tok.Value})
		case lexer.TokenVariableStart:
			p.advance()
			expr, err := p.parseExpr()
			if err != nil {
				return nil, "", err
			}
			if _, err := p.expect(lexer.TokenVariableEnd); err != nil {
				return nil, "", err
			}
			stmts = append(stmts, &nodes.Output{StmtBase: nodes.StmtAt(tok.Span), Expr: expr})
		case lexer.TokenBlockStart:
			p.advance()
			name, err := p.expectIdent()
			if err != nil {
				return nil, "", err
			}
			if blockEnders[name.Value] {
				return stmts, name.Value, nil
			}
			stmt, err := p.parseStatement(name)
			if err != nil {
				return nil, "", err
			}
			stmts = append(stmts, stmt)
		default:
			return nil, "", p.errorAt(tok.Span, "unexpected %s", tok.Type)
		}
	}
}

func (p *parser) parseStatement(keyword lexer.Token) (nodes.Stmt, error) {
	switch keyword.Value {
	case "if":
		return p.parseIf(keyword)
	case "for":
		return p.parseFor(keyword)
	case "set":
		return p.parseSet(keyword)
	case "block":
		return p.parseBlock(keyword)
	case "extends":
		return p.parseExtends(keyword)
	case "include":
		return p.parseInclude(keyword)
	case "macro":
		return p.parseMacro(keyword)
	case "filter":
		return p.parseFilterBlock(keyword)
	default:
		return nil, p.errorAt(keyword.Span, "unknown statement `%s`", keyword.Value)
	}
}

func (p *parser) endTag() error {
	_, err := p.expect(lexer.TokenBlockEnd)
	return err
}

func (p *parser) parseIf(keyword lexer.Token) (nodes.Stmt, error) {
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	then, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	stmt := &nodes.If{StmtBase: nodes.StmtAt(keyword.Span), Cond: cond, Then: then}
	switch end {
	case "endif":
		return stmt, p.endTag()
	case "elif":
		// elif parses as a nested if in the else branch.
		elifTok, _ := p.current()
		nested, err := p.parseIf(elifTok)
		if err != nil {
			return nil, err
		}
		stmt.Else = []nodes.Stmt{nested}
		return stmt, nil
	case "else":
		if err := p.endTag(); err != nil {
			return nil, err
		}
		elseBody, end, err := p.parseStatements()
		if err != nil {
			return nil, err
		}
		if end != "endif" {
			return nil, p.errorCurrent("expected endif, got `%s`", end)
		}
		stmt.Else = elseBody
		return stmt, p.endTag()
	default:
		return nil, p.errorCurrent("unclosed if block")
	}
}

func (p *parser) parseFor(keyword lexer.Token) (nodes.Stmt, error) {
	target, err := p.parseAssignTarget()
	if err != nil {
		return nil, err
	}
	if !p.acceptIdent("in") {
		return nil, p.errorCurrent("expected `in` after for target")
	}
	iter, err := p.parseExprNoIf()
	if err != nil {
		return nil, err
	}
	var filter nodes.Expr
	if p.acceptIdent("if") {
		filter, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	stmt := &nodes.For{StmtBase: nodes.StmtAt(keyword.Span), Target: target, Iter: iter, Filter: filter, Body: body}
	if end == "else" {
		if err := p.endTag(); err != nil {
			return nil, err
		}
		stmt.Else, end, err = p.parseStatements()
		if err != nil {
			return nil, err
		}
	}
	if end != "endfor" {
		return nil, p.errorCurrent("unclosed for block")
	}
	return stmt, p.endTag()
}

func (p *parser) parseSet(keyword lexer.Token) (nodes.Stmt, error) {
	target, err := p.parseAssignTarget()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept(lexer.TokenAssign); ok {
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.endTag(); err != nil {
			return nil, err
		}
		return &nodes.Set{StmtBase: nodes.StmtAt(keyword.Span), Target: target, Value: value}, nil
	}

	// Block form, optionally with a trailing filter pipeline.
	var filter nodes.Expr
	if _, ok := p.accept(lexer.TokenPipe); ok {
		filter, err = p.parseFilterChain(nil)
		if err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if end != "endset" {
		return nil, p.errorCurrent("unclosed set block")
	}
	return &nodes.SetBlock{StmtBase: nodes.StmtAt(keyword.Span), Target: target, Filter: filter, Body: body}, p.endTag()
}

func (p *parser) parseBlock(keyword lexer.Token) (nodes.Stmt, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	scoped := p.acceptIdent("scoped")
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if end != "endblock" {
		return nil, p.errorCurrent("unclosed block `%s`", name.Value)
	}
	// An optional repeated name after endblock must match.
	if tok, ok := p.accept(lexer.TokenIdent); ok && tok.Value != name.Value {
		return nil, p.errorAt(tok.Span, "mismatched block, expected endblock %s", name.Value)
	}
	return &nodes.Block{StmtBase: nodes.StmtAt(keyword.Span), Name: name.Value, Body: body, Scoped: scoped}, p.endTag()
}

func (p *parser) parseExtends(keyword lexer.Token) (nodes.Stmt, error) {
	name, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &nodes.Extends{StmtBase: nodes.StmtAt(keyword.Span), Name: name}, p.endTag()
}

func (p *parser) parseInclude(keyword lexer.Token) (nodes.Stmt, error) {
	name, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	ignoreMissing := false
	if p.acceptIdent("ignore") {
		if !p.acceptIdent("missing") {
			return nil, p.errorCurrent("expected `missing` after `ignore`")
		}
		ignoreMissing = true
	}
	return &nodes.Include{StmtBase: nodes.StmtAt(keyword.Span), Name: name, IgnoreMissing: ignoreMissing}, p.endTag()
}

func (p *parser) parseMacro(keyword lexer.Token) (nodes.Stmt, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenParenOpen); err != nil {
		return nil, err
	}
	var args []string
	var defaults []nodes.Expr
	for !p.peekIs(lexer.TokenParenClose) {
		if len(args) > 0 {
			if _, err := p.expect(lexer.TokenComma); err != nil {
				return nil, err
			}
		}
		arg, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		args = append(args, arg.Value)
		if _, ok := p.accept(lexer.TokenAssign); ok {
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			defaults = append(defaults, def)
		} else if len(defaults) > 0 {
			return nil, p.errorAt(arg.Span, "non-default argument `%s` follows default argument", arg.Value)
		}
	}
	if _, err := p.expect(lexer.TokenParenClose); err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if end != "endmacro" {
		return nil, p.errorCurrent("unclosed macro `%s`", name.Value)
	}
	return &nodes.Macro{
		StmtBase: nodes.StmtAt(keyword.Span),
		Name:     name.Value,
		Args:     args,
		Defaults: defaults,
		Body:     body,
	}, p.endTag()
}

func (p *parser) parseFilterBlock(keyword lexer.Token) (nodes.Stmt, error) {
	filter, err := p.parseFilterChain(nil)
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, end, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	if end != "endfilter" {
		return nil, p.errorCurrent("unclosed filter block")
	}
	return &nodes.FilterBlock{StmtBase: nodes.StmtAt(keyword.Span), Filter: filter, Body: body}, p.endTag()
}

// parseAssignTarget parses a Name or a comma separated unpacking target,
// optionally parenthesized.
func (p *parser) parseAssignTarget() (nodes.Expr, error) {
	if paren, ok := p.accept(lexer.TokenParenOpen); ok {
		var items []nodes.Expr
		for !p.peekIs(lexer.TokenParenClose) {
			if len(items) > 0 {
				if _, err := p.expect(lexer.TokenComma); err != nil {
					return nil, err
				}
			}
			name, err := p.expectTargetName()
			if err != nil {
				return nil, err
			}
			items = append(items, name)
		}
		if _, err := p.expect(lexer.TokenParenClose); err != nil {
			return nil, err
		}
		return &nodes.List{ExprBase: nodes.ExprAt(paren.Span), Items: items}, nil
	}

	first, err := p.expectTargetName()
	if err != nil {
		return nil, err
	}
	if !p.peekIs(lexer.TokenComma) {
		return first, nil
	}
	items := []nodes.Expr{first}
	for {
		if _, ok := p.accept(lexer.TokenComma); !ok {
			break
		}
		name, err := p.expectTargetName()
		if err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	return &nodes.List{ExprBase: nodes.ExprAt(first.Span()), Items: items}, nil
}

func (p *parser) expectTargetName() (nodes.Expr, error) {
	tok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if isReserved(tok.Value) {
		return nil, p.errorAt(tok.Span, "cannot assign to `%s`", tok.Value)
	}
	return &nodes.Name{ExprBase: nodes.ExprAt(tok.Span), Name: tok.Value}, nil
}

func isReserved(name string) bool {
	switch strings.ToLower(name) {
	case "true", "false", "none":
		return true
	}
	return false
}
