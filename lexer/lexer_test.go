package lexer

import (
	"testing"

	"github.com/kilnlang/kiln/diag"
)

func mustTokenize(t *testing.T, source string, syntax SyntaxConfig, ws WhitespaceConfig) []Token {
	t.Helper()
	tokens, err := Tokenize(source, syntax, ws)
	if err != nil {
		t.Fatalf("tokenize %q: %v", source, err)
	}
	return tokens
}

func tokenTypes(tokens []Token) []TokenType {
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func assertTypes(t *testing.T, tokens []Token, want ...TokenType) {
	t.Helper()
	got := tokenTypes(tokens)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestTokenizeText(t *testing.T) {
	tokens := mustTokenize(t, "hello world", DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens, TokenText)
	if tokens[0].Value != "hello world" {
		t.Errorf("got %q", tokens[0].Value)
	}
}

func TestTokenizeVariable(t *testing.T) {
	tokens := mustTokenize(t, "a {{ name }} b", DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens, TokenText, TokenVariableStart, TokenIdent, TokenVariableEnd, TokenText)
	if tokens[2].Value != "name" {
		t.Errorf("ident value %q", tokens[2].Value)
	}
}

func TestTokenizeExpression(t *testing.T) {
	tokens := mustTokenize(t, `{{ a.b[0] | join(", ") ~ 1.5 }}`, DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens,
		TokenVariableStart,
		TokenIdent, TokenDot, TokenIdent,
		TokenBracketOpen, TokenInt, TokenBracketClose,
		TokenPipe, TokenIdent, TokenParenOpen, TokenString, TokenParenClose,
		TokenTilde, TokenFloat,
		TokenVariableEnd,
	)
	if tokens[10].Value != ", " {
		t.Errorf("string value %q", tokens[10].Value)
	}
	if tokens[13].Value != "1.5" {
		t.Errorf("float value %q", tokens[13].Value)
	}
}

func TestTokenizeOperators(t *testing.T) {
	tokens := mustTokenize(t, "{{ 1 // 2 ** 3 == 4 != 5 <= 6 >= 7 }}", DefaultSyntax(), DefaultWhitespace())
	var ops []TokenType
	for _, tok := range tokens {
		switch tok.Type {
		case TokenFloorDiv, TokenPow, TokenEq, TokenNe, TokenLe, TokenGe:
			ops = append(ops, tok.Type)
		}
	}
	want := []TokenType{TokenFloorDiv, TokenPow, TokenEq, TokenNe, TokenLe, TokenGe}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("op %d: got %v, want %v", i, ops[i], want[i])
		}
	}
}

func TestTokenizeComment(t *testing.T) {
	tokens := mustTokenize(t, "a{# note #}b", DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens, TokenText, TokenText)
	if tokens[0].Value != "a" || tokens[1].Value != "b" {
		t.Errorf("got %q and %q", tokens[0].Value, tokens[1].Value)
	}
}

func TestTokenizeMapInsideVariable(t *testing.T) {
	tokens := mustTokenize(t, `{{ {"a": 1} }}`, DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens,
		TokenVariableStart,
		TokenBraceOpen, TokenString, TokenColon, TokenInt, TokenBraceClose,
		TokenVariableEnd,
	)
}

func TestTokenizeSpans(t *testing.T) {
	tokens := mustTokenize(t, "ab\n{{ x }}", DefaultSyntax(), DefaultWhitespace())
	ident := tokens[2]
	if ident.Type != TokenIdent {
		t.Fatalf("expected ident, got %v", ident.Type)
	}
	if ident.Span.StartLine != 2 || ident.Span.StartCol != 4 {
		t.Errorf("span %+v", ident.Span)
	}
	if ident.Span.StartOffset != 6 || ident.Span.EndOffset != 7 {
		t.Errorf("offsets %+v", ident.Span)
	}
}

func TestTokenizeCustomDelimiters(t *testing.T) {
	syntax := SyntaxConfig{
		BlockStart:    "<%",
		BlockEnd:      "%>",
		VariableStart: "${",
		VariableEnd:   "}",
		CommentStart:  "<!--",
		CommentEnd:    "-->",
	}
	if err := syntax.Validate(); err != nil {
		t.Fatal(err)
	}
	tokens := mustTokenize(t, "<% if x %>${ x }<% endif %><!-- gone -->", syntax, DefaultWhitespace())
	assertTypes(t, tokens,
		TokenBlockStart, TokenIdent, TokenIdent, TokenBlockEnd,
		TokenVariableStart, TokenIdent, TokenVariableEnd,
		TokenBlockStart, TokenIdent, TokenBlockEnd,
	)
}

func TestTokenizeBareBraceVariable(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.VariableStart = "{"
	syntax.VariableEnd = "}"
	syntax.BlockStart = "<%"
	syntax.BlockEnd = "%>"
	syntax.CommentStart = "<!--"
	syntax.CommentEnd = "-->"
	if err := syntax.Validate(); err != nil {
		t.Fatal(err)
	}
	tokens := mustTokenize(t, "{ 40 + 2 }", syntax, DefaultWhitespace())
	assertTypes(t, tokens, TokenVariableStart, TokenInt, TokenPlus, TokenInt, TokenVariableEnd)
}

func TestKeepTrailingNewline(t *testing.T) {
	tokens := mustTokenize(t, "hi\n", DefaultSyntax(), DefaultWhitespace())
	if tokens[0].Value != "hi" {
		t.Errorf("default should strip trailing newline, got %q", tokens[0].Value)
	}

	ws := DefaultWhitespace()
	ws.KeepTrailingNewline = true
	tokens = mustTokenize(t, "hi\n", DefaultSyntax(), ws)
	if tokens[0].Value != "hi\n" {
		t.Errorf("keep_trailing_newline should keep it, got %q", tokens[0].Value)
	}
}

func TestTrimBlocks(t *testing.T) {
	ws := DefaultWhitespace()
	ws.TrimBlocks = true
	tokens := mustTokenize(t, "{% if x %}\nbody\n{% endif %}\n", DefaultSyntax(), ws)
	// The newline directly after each block tag is gone.
	var texts []string
	for _, tok := range tokens {
		if tok.Type == TokenText {
			texts = append(texts, tok.Value)
		}
	}
	if len(texts) != 1 || texts[0] != "body\n" {
		t.Errorf("texts %q", texts)
	}
}

func TestLstripBlocks(t *testing.T) {
	ws := DefaultWhitespace()
	ws.LstripBlocks = true
	tokens := mustTokenize(t, "a\n   {% if x %}b{% endif %}", DefaultSyntax(), ws)
	if tokens[0].Value != "a\n" {
		t.Errorf("indentation before block should be stripped, got %q", tokens[0].Value)
	}
}

func TestWhitespaceModifiers(t *testing.T) {
	tokens := mustTokenize(t, "a   {{- 1 -}}   b", DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens, TokenText, TokenVariableStart, TokenInt, TokenVariableEnd, TokenText)
	if tokens[0].Value != "a" || tokens[4].Value != "b" {
		t.Errorf("got %q and %q", tokens[0].Value, tokens[4].Value)
	}
}

func TestPlusModifierDisablesTrimBlocks(t *testing.T) {
	ws := DefaultWhitespace()
	ws.TrimBlocks = true
	tokens := mustTokenize(t, "{% if x +%}\nbody{% endif %}", DefaultSyntax(), ws)
	var text string
	for _, tok := range tokens {
		if tok.Type == TokenText {
			text = tok.Value
			break
		}
	}
	if text != "\nbody" {
		t.Errorf("got %q", text)
	}
}

func TestRawBlock(t *testing.T) {
	tokens := mustTokenize(t, "{% raw %}{{ not lexed }}{% endraw %}", DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens, TokenText)
	if tokens[0].Value != "{{ not lexed }}" {
		t.Errorf("got %q", tokens[0].Value)
	}
}

func TestRawBlockWithTrim(t *testing.T) {
	tokens := mustTokenize(t, "{% raw -%}  x  {%- endraw %}", DefaultSyntax(), DefaultWhitespace())
	assertTypes(t, tokens, TokenText)
	if tokens[0].Value != "x" {
		t.Errorf("got %q", tokens[0].Value)
	}
}

func TestLineStatements(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineStatementPrefix = "#"
	if err := syntax.Validate(); err != nil {
		t.Fatal(err)
	}
	tokens := mustTokenize(t, "# if x\nyes\n# endif", syntax, DefaultWhitespace())
	assertTypes(t, tokens,
		TokenBlockStart, TokenIdent, TokenIdent, TokenBlockEnd,
		TokenText,
		TokenBlockStart, TokenIdent, TokenBlockEnd,
	)
	if tokens[4].Value != "yes\n" {
		t.Errorf("text %q", tokens[4].Value)
	}
}

func TestLineComments(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineCommentPrefix = "##"
	if err := syntax.Validate(); err != nil {
		t.Fatal(err)
	}
	tokens := mustTokenize(t, "a\n## ignored\nb", syntax, DefaultWhitespace())
	var texts string
	for _, tok := range tokens {
		if tok.Type == TokenText {
			texts += tok.Value
		}
	}
	if texts != "a\nb" {
		t.Errorf("got %q", texts)
	}
}

func TestStringEscapes(t *testing.T) {
	tokens := mustTokenize(t, `{{ "a\nb\t\"c\"é" }}`, DefaultSyntax(), DefaultWhitespace())
	if tokens[1].Value != "a\nb\t\"c\"é" {
		t.Errorf("got %q", tokens[1].Value)
	}
}

func TestStringKeepsMultiByteRunes(t *testing.T) {
	tokens := mustTokenize(t, `{{ "héllo wörld 日本語 🙂" }}`, DefaultSyntax(), DefaultWhitespace())
	if tokens[1].Value != "héllo wörld 日本語 🙂" {
		t.Errorf("got %q", tokens[1].Value)
	}
}

func TestUnclosedVariableTag(t *testing.T) {
	_, err := Tokenize("{{ x", DefaultSyntax(), DefaultWhitespace())
	if err == nil {
		t.Fatal("expected error")
	}
	if !diag.IsKind(err, diag.KindSyntax) {
		t.Errorf("expected syntax error, got %v", err)
	}
}

func TestUnclosedString(t *testing.T) {
	_, err := Tokenize(`{{ "abc }}`, DefaultSyntax(), DefaultWhitespace())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUnclosedComment(t *testing.T) {
	_, err := Tokenize("{# never ends", DefaultSyntax(), DefaultWhitespace())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSyntaxValidate(t *testing.T) {
	syntax := DefaultSyntax()
	if err := syntax.Validate(); err != nil {
		t.Fatal(err)
	}

	syntax.VariableStart = "{%"
	if err := syntax.Validate(); err == nil {
		t.Error("colliding delimiters should be rejected")
	}

	syntax = DefaultSyntax()
	syntax.BlockStart = ""
	if err := syntax.Validate(); err == nil {
		t.Error("empty delimiter should be rejected")
	}

	syntax = DefaultSyntax()
	syntax.VariableStart = "{"
	if err := syntax.Validate(); err == nil {
		t.Error("prefix of block start should be rejected")
	}
}
