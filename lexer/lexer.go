package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kilnlang/kiln/diag"
)

// markerKind identifies which start delimiter was found in template data.
type markerKind int

const (
	markerVariable markerKind = iota
	markerBlock
	markerComment
	markerLineStatement
	markerLineComment
)

type marker struct {
	kind   markerKind
	offset int
	delim  string
}

type lexer struct {
	source string
	syntax SyntaxConfig
	ws     WhitespaceConfig

	offset int
	line   int
	col    int

	tokens []Token
}

// Tokenize splits template source into tokens using the given syntax and
// whitespace configuration. The returned error, if any, is a *diag.Error of
// kind syntax with a span into source.
func Tokenize(source string, syntax SyntaxConfig, ws WhitespaceConfig) ([]Token, error) {
	if !ws.KeepTrailingNewline {
		source = strings.TrimSuffix(source, "\n")
		source = strings.TrimSuffix(source, "\r")
	}
	l := &lexer{source: source, syntax: syntax, ws: ws, line: 1, col: 1}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

// TokenizeExpression lexes a standalone expression, with no surrounding
// delimiters.
func TokenizeExpression(source string) ([]Token, error) {
	l := &lexer{source: source, syntax: DefaultSyntax(), ws: DefaultWhitespace(), line: 1, col: 1}
	for {
		l.skipTagWhitespace()
		if l.offset >= len(l.source) {
			return l.tokens, nil
		}
		tok, err := l.lexExprToken()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
	}
}

func (l *lexer) run() error {
	for l.offset < len(l.source) {
		m := l.findMarker()
		if m == nil {
			l.emitText(l.source[l.offset:], false)
			l.advanceTo(len(l.source))
			break
		}
		text := l.source[l.offset:m.offset]
		trimEnd := false
		if m.kind != markerLineStatement && m.kind != markerLineComment {
			after := m.offset + len(m.delim)
			if after < len(l.source) && l.source[after] == '-' {
				trimEnd = true
			} else if l.ws.LstripBlocks && (m.kind == markerBlock || m.kind == markerComment) {
				if !(after < len(l.source) && l.source[after] == '+') {
					text = l.lstrip(text, m.offset)
				}
			}
		} else {
			// Line statements and comments swallow the indentation
			// before the prefix.
			text = l.lstrip(text, m.offset)
		}
		l.emitText(text, trimEnd)
		l.advanceTo(m.offset)

		var err error
		switch m.kind {
		case markerVariable:
			err = l.lexTag(m, TokenVariableStart, TokenVariableEnd, l.syntax.VariableEnd)
		case markerBlock:
			err = l.lexBlock(m)
		case markerComment:
			err = l.lexComment(m)
		case markerLineStatement:
			err = l.lexLineStatement(m)
		case markerLineComment:
			l.skipLine()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// findMarker locates the earliest start delimiter at or after the current
// offset. Ties between overlapping delimiters go to the longest one.
func (l *lexer) findMarker() *marker {
	var best *marker
	consider := func(kind markerKind, delim string, at int) {
		if at < 0 {
			return
		}
		if best == nil || at < best.offset || (at == best.offset && len(delim) > len(best.delim)) {
			best = &marker{kind: kind, offset: at, delim: delim}
		}
	}
	rest := l.source[l.offset:]
	consider(markerVariable, l.syntax.VariableStart, indexFrom(rest, l.syntax.VariableStart, l.offset))
	consider(markerBlock, l.syntax.BlockStart, indexFrom(rest, l.syntax.BlockStart, l.offset))
	consider(markerComment, l.syntax.CommentStart, indexFrom(rest, l.syntax.CommentStart, l.offset))
	if p := l.syntax.LineStatementPrefix; p != "" {
		consider(markerLineStatement, p, l.findLinePrefix(p))
	}
	if p := l.syntax.LineCommentPrefix; p != "" {
		consider(markerLineComment, p, l.findLinePrefix(p))
	}
	return best
}

func indexFrom(rest, needle string, base int) int {
	i := strings.Index(rest, needle)
	if i < 0 {
		return -1
	}
	return base + i
}

// findLinePrefix finds the next occurrence of prefix that has only spaces and
// tabs between the start of its line and the prefix itself.
func (l *lexer) findLinePrefix(prefix string) int {
	from := l.offset
	for {
		i := strings.Index(l.source[from:], prefix)
		if i < 0 {
			return -1
		}
		at := from + i
		if l.atLineStart(at) {
			return at
		}
		from = at + 1
	}
}

// atLineStart reports whether only spaces and tabs appear between the last
// newline and the given offset. A tag earlier on the line leaves its
// delimiter characters in the source and fails the check.
func (l *lexer) atLineStart(at int) bool {
	lineStart := strings.LastIndexByte(l.source[:at], '\n') + 1
	return strings.TrimLeft(l.source[lineStart:at], " \t") == ""
}

// lstrip removes trailing spaces and tabs from text when the tag at offset
// sits on a line of its own up to that point.
func (l *lexer) lstrip(text string, at int) string {
	trimmed := strings.TrimRight(text, " \t")
	if len(trimmed) == len(text) {
		return text
	}
	lineStart := strings.LastIndexByte(l.source[:at], '\n') + 1
	if strings.TrimLeft(l.source[lineStart:at], " \t") != "" {
		return text
	}
	return trimmed
}

func (l *lexer) emitText(text string, trimEnd bool) {
	if trimEnd {
		text = strings.TrimRight(text, " \t\r\n")
	}
	if text == "" {
		return
	}
	start := l.pos()
	end := l.posAfter(start, text)
	l.tokens = append(l.tokens, Token{Type: TokenText, Value: text, Span: span(start, end)})
}

// lexBlock handles a block tag, with special treatment for raw blocks which
// never reach the parser.
func (l *lexer) lexBlock(m *marker) error {
	if name, ok := l.peekBlockName(m); ok && name == "raw" {
		return l.lexRaw(m)
	}
	return l.lexTag(m, TokenBlockStart, TokenBlockEnd, l.syntax.BlockEnd)
}

// peekBlockName reads ahead to the first identifier of a block tag without
// consuming anything.
func (l *lexer) peekBlockName(m *marker) (string, bool) {
	i := m.offset + len(m.delim)
	if i < len(l.source) && (l.source[i] == '-' || l.source[i] == '+') {
		i++
	}
	for i < len(l.source) && isSpace(l.source[i]) {
		i++
	}
	start := i
	for i < len(l.source) && isIdentByte(l.source[i], i > start) {
		i++
	}
	if start == i {
		return "", false
	}
	return l.source[start:i], true
}

func (l *lexer) lexTag(m *marker, startType, endType TokenType, endDelim string) error {
	startPos := l.pos()
	l.advance(len(m.delim))
	if l.offset < len(l.source) && (l.source[l.offset] == '-' || l.source[l.offset] == '+') {
		l.advance(1)
	}
	l.tokens = append(l.tokens, Token{Type: startType, Value: m.delim, Span: span(startPos, l.pos())})

	depth := 0
	for {
		l.skipTagWhitespace()
		if l.offset >= len(l.source) {
			return l.errorAt(l.pos(), "unexpected end of input, expected %s", endType)
		}
		if depth == 0 {
			if consumed, trimAfter, plus := l.matchEnd(endDelim); consumed > 0 {
				endStart := l.pos()
				l.advance(consumed)
				l.tokens = append(l.tokens, Token{Type: endType, Value: endDelim, Span: span(endStart, l.pos())})
				l.trimAfterTag(trimAfter, plus, endType == TokenBlockEnd)
				return nil
			}
		}
		tok, err := l.lexExprToken()
		if err != nil {
			return err
		}
		switch tok.Type {
		case TokenParenOpen, TokenBracketOpen, TokenBraceOpen:
			depth++
		case TokenParenClose, TokenBracketClose, TokenBraceClose:
			if depth > 0 {
				depth--
			}
		}
		l.tokens = append(l.tokens, tok)
	}
}

// matchEnd checks whether the input at the current offset closes the tag,
// possibly via a whitespace modifier. It returns the number of bytes the end
// marker occupies.
func (l *lexer) matchEnd(endDelim string) (consumed int, trimAfter, plus bool) {
	rest := l.source[l.offset:]
	if strings.HasPrefix(rest, endDelim) {
		return len(endDelim), false, false
	}
	if len(rest) > 0 && (rest[0] == '-' || rest[0] == '+') && strings.HasPrefix(rest[1:], endDelim) {
		return len(endDelim) + 1, rest[0] == '-', rest[0] == '+'
	}
	return 0, false, false
}

// trimAfterTag applies whitespace control after a closing delimiter. A minus
// modifier removes all following whitespace, trim_blocks removes a single
// newline after block tags.
func (l *lexer) trimAfterTag(trimAll, plus, isBlock bool) {
	if trimAll {
		for l.offset < len(l.source) && isAnySpace(l.source[l.offset]) {
			l.advance(1)
		}
		return
	}
	if plus || !l.ws.TrimBlocks || !isBlock {
		return
	}
	if l.offset < len(l.source) && l.source[l.offset] == '\r' {
		l.advance(1)
	}
	if l.offset < len(l.source) && l.source[l.offset] == '\n' {
		l.advance(1)
	}
}

func (l *lexer) lexComment(m *marker) error {
	startPos := l.pos()
	l.advance(len(m.delim))
	if l.offset < len(l.source) && (l.source[l.offset] == '-' || l.source[l.offset] == '+') {
		l.advance(1)
	}
	end := l.syntax.CommentEnd
	idx := strings.Index(l.source[l.offset:], end)
	if idx < 0 {
		return l.errorAt(startPos, "unclosed comment")
	}
	trimAfter := false
	plus := false
	if idx > 0 {
		switch l.source[l.offset+idx-1] {
		case '-':
			trimAfter = true
		case '+':
			plus = true
		}
	}
	l.advance(idx + len(end))
	l.trimAfterTag(trimAfter, plus, true)
	return nil
}

// lexRaw consumes a raw block and emits its body as template data.
func (l *lexer) lexRaw(m *marker) error {
	startPos := l.pos()
	l.advance(len(m.delim))
	if l.offset < len(l.source) && (l.source[l.offset] == '-' || l.source[l.offset] == '+') {
		l.advance(1)
	}
	l.skipTagWhitespace()
	l.advance(len("raw"))
	l.skipTagWhitespace()
	consumed, trimBody, _ := l.matchEnd(l.syntax.BlockEnd)
	if consumed == 0 {
		return l.errorAt(startPos, "malformed raw block")
	}
	l.advance(consumed)

	body := l.source[l.offset:]
	endIdx, endLen, trimEnd := l.findEndraw(body)
	if endIdx < 0 {
		return l.errorAt(startPos, "unclosed raw block")
	}
	text := body[:endIdx]
	if trimBody {
		text = strings.TrimLeft(text, " \t\r\n")
	}
	if trimEnd {
		text = strings.TrimRight(text, " \t\r\n")
	}
	l.emitText(text, false)
	l.advanceTo(l.offset + endIdx + endLen)
	return nil
}

// findEndraw locates the endraw tag inside body. It returns the index where
// the raw text stops, the total length of the endraw tag and whether the tag
// carries a leading minus modifier.
func (l *lexer) findEndraw(body string) (idx, length int, trimEnd bool) {
	from := 0
	for {
		i := strings.Index(body[from:], l.syntax.BlockStart)
		if i < 0 {
			return -1, 0, false
		}
		at := from + i
		j := at + len(l.syntax.BlockStart)
		minus := false
		if j < len(body) && (body[j] == '-' || body[j] == '+') {
			minus = body[j] == '-'
			j++
		}
		for j < len(body) && isSpace(body[j]) {
			j++
		}
		if strings.HasPrefix(body[j:], "endraw") {
			j += len("endraw")
			for j < len(body) && isSpace(body[j]) {
				j++
			}
			if j < len(body) && (body[j] == '-' || body[j] == '+') {
				j++
			}
			if strings.HasPrefix(body[j:], l.syntax.BlockEnd) {
				return at, j + len(l.syntax.BlockEnd) - at, minus
			}
		}
		from = at + 1
	}
}

// lexLineStatement lexes a statement introduced by the line statement prefix.
// The statement runs to the end of the line unless brackets remain open.
func (l *lexer) lexLineStatement(m *marker) error {
	startPos := l.pos()
	l.advance(len(m.delim))
	l.tokens = append(l.tokens, Token{Type: TokenBlockStart, Value: m.delim, Span: span(startPos, l.pos())})

	depth := 0
	for {
		for l.offset < len(l.source) && isSpace(l.source[l.offset]) {
			l.advance(1)
		}
		atEnd := l.offset >= len(l.source)
		atNewline := !atEnd && (l.source[l.offset] == '\n' || l.source[l.offset] == '\r')
		if (atEnd || atNewline) && depth == 0 {
			endStart := l.pos()
			if atNewline {
				if l.source[l.offset] == '\r' {
					l.advance(1)
				}
				if l.offset < len(l.source) && l.source[l.offset] == '\n' {
					l.advance(1)
				}
			}
			l.tokens = append(l.tokens, Token{Type: TokenBlockEnd, Value: m.delim, Span: span(endStart, l.pos())})
			return nil
		}
		if atEnd {
			return l.errorAt(l.pos(), "unexpected end of input, expected %s", TokenBlockEnd)
		}
		if atNewline {
			l.advance(1)
			continue
		}
		tok, err := l.lexExprToken()
		if err != nil {
			return err
		}
		switch tok.Type {
		case TokenParenOpen, TokenBracketOpen, TokenBraceOpen:
			depth++
		case TokenParenClose, TokenBracketClose, TokenBraceClose:
			if depth > 0 {
				depth--
			}
		}
		l.tokens = append(l.tokens, tok)
	}
}

func (l *lexer) skipLine() {
	idx := strings.IndexByte(l.source[l.offset:], '\n')
	if idx < 0 {
		l.advanceTo(len(l.source))
		return
	}
	l.advance(idx + 1)
}

func (l *lexer) skipTagWhitespace() {
	for l.offset < len(l.source) && isAnySpace(l.source[l.offset]) {
		l.advance(1)
	}
}

// lexExprToken lexes a single token inside a tag.
func (l *lexer) lexExprToken() (Token, error) {
	start := l.pos()
	c := l.source[l.offset]
	rest := l.source[l.offset:]

	two := ""
	if len(rest) >= 2 {
		two = rest[:2]
	}
	switch two {
	case "//":
		return l.opToken(TokenFloorDiv, 2, start), nil
	case "**":
		return l.opToken(TokenPow, 2, start), nil
	case "==":
		return l.opToken(TokenEq, 2, start), nil
	case "!=":
		return l.opToken(TokenNe, 2, start), nil
	case "<=":
		return l.opToken(TokenLe, 2, start), nil
	case ">=":
		return l.opToken(TokenGe, 2, start), nil
	}

	switch c {
	case '+':
		return l.opToken(TokenPlus, 1, start), nil
	case '-':
		return l.opToken(TokenMinus, 1, start), nil
	case '*':
		return l.opToken(TokenMul, 1, start), nil
	case '/':
		return l.opToken(TokenDiv, 1, start), nil
	case '%':
		return l.opToken(TokenMod, 1, start), nil
	case '~':
		return l.opToken(TokenTilde, 1, start), nil
	case '<':
		return l.opToken(TokenLt, 1, start), nil
	case '>':
		return l.opToken(TokenGt, 1, start), nil
	case '=':
		return l.opToken(TokenAssign, 1, start), nil
	case '.':
		return l.opToken(TokenDot, 1, start), nil
	case ',':
		return l.opToken(TokenComma, 1, start), nil
	case ':':
		return l.opToken(TokenColon, 1, start), nil
	case '|':
		return l.opToken(TokenPipe, 1, start), nil
	case '(':
		return l.opToken(TokenParenOpen, 1, start), nil
	case ')':
		return l.opToken(TokenParenClose, 1, start), nil
	case '[':
		return l.opToken(TokenBracketOpen, 1, start), nil
	case ']':
		return l.opToken(TokenBracketClose, 1, start), nil
	case '{':
		return l.opToken(TokenBraceOpen, 1, start), nil
	case '}':
		return l.opToken(TokenBraceClose, 1, start), nil
	case '\'', '"':
		return l.lexString(c)
	}

	if c >= '0' && c <= '9' {
		return l.lexNumber()
	}
	if isIdentByte(c, false) || c >= utf8.RuneSelf {
		return l.lexIdent()
	}
	return Token{}, l.errorAt(start, "unexpected character %q", string(c))
}

func (l *lexer) opToken(t TokenType, width int, start position) Token {
	value := l.source[l.offset : l.offset+width]
	l.advance(width)
	return Token{Type: t, Value: value, Span: span(start, l.pos())}
}

func (l *lexer) lexString(quote byte) (Token, error) {
	start := l.pos()
	l.advance(1)
	var b strings.Builder
	for l.offset < len(l.source) {
		c := l.source[l.offset]
		switch c {
		case quote:
			l.advance(1)
			return Token{Type: TokenString, Value: b.String(), Span: span(start, l.pos())}, nil
		case '\\':
			if l.offset+1 >= len(l.source) {
				return Token{}, l.errorAt(start, "unexpected end of input, unclosed string")
			}
			esc := l.source[l.offset+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"', '/':
				b.WriteByte(esc)
			case 'u':
				if l.offset+6 > len(l.source) {
					return Token{}, l.errorAt(start, "invalid unicode escape")
				}
				var r rune
				if _, err := fmt.Sscanf(l.source[l.offset+2:l.offset+6], "%04x", &r); err != nil {
					return Token{}, l.errorAt(start, "invalid unicode escape")
				}
				b.WriteRune(r)
				l.advance(4)
			default:
				return Token{}, l.errorAt(start, "unknown string escape \\%s", string(esc))
			}
			l.advance(2)
		default:
			// advance moves a full rune, so copy the full rune.
			_, size := utf8.DecodeRuneInString(l.source[l.offset:])
			b.WriteString(l.source[l.offset : l.offset+size])
			l.advance(1)
		}
	}
	return Token{}, l.errorAt(start, "unexpected end of input, unclosed string")
}

func (l *lexer) lexNumber() (Token, error) {
	start := l.pos()
	rest := l.source[l.offset:]

	if strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "0X") {
		i := 2
		for i < len(rest) && isHexDigit(rest[i]) {
			i++
		}
		if i == 2 {
			return Token{}, l.errorAt(start, "invalid hex literal")
		}
		value := rest[:i]
		l.advance(i)
		return Token{Type: TokenInt, Value: value, Span: span(start, l.pos())}, nil
	}

	i := 0
	isFloat := false
	for i < len(rest) && (isDigit(rest[i]) || rest[i] == '_') {
		i++
	}
	if i < len(rest) && rest[i] == '.' && i+1 < len(rest) && isDigit(rest[i+1]) {
		isFloat = true
		i++
		for i < len(rest) && (isDigit(rest[i]) || rest[i] == '_') {
			i++
		}
	}
	if i < len(rest) && (rest[i] == 'e' || rest[i] == 'E') {
		j := i + 1
		if j < len(rest) && (rest[j] == '+' || rest[j] == '-') {
			j++
		}
		if j < len(rest) && isDigit(rest[j]) {
			isFloat = true
			i = j
			for i < len(rest) && isDigit(rest[i]) {
				i++
			}
		}
	}
	value := strings.ReplaceAll(rest[:i], "_", "")
	l.advance(i)
	t := TokenInt
	if isFloat {
		t = TokenFloat
	}
	return Token{Type: t, Value: value, Span: span(start, l.pos())}, nil
}

func (l *lexer) lexIdent() (Token, error) {
	start := l.pos()
	i := l.offset
	for i < len(l.source) {
		r, size := utf8.DecodeRuneInString(l.source[i:])
		if r == utf8.RuneError && size == 1 {
			break
		}
		if !isIdentRune(r, i > l.offset) {
			break
		}
		i += size
	}
	value := l.source[l.offset:i]
	l.advance(i - l.offset)
	return Token{Type: TokenIdent, Value: value, Span: span(start, l.pos())}, nil
}

type position struct {
	offset int
	line   int
	col    int
}

func (l *lexer) pos() position {
	return position{offset: l.offset, line: l.line, col: l.col}
}

// posAfter computes the position after walking over text starting at p.
func (l *lexer) posAfter(p position, text string) position {
	for _, r := range text {
		p.offset += utf8.RuneLen(r)
		if r == '\n' {
			p.line++
			p.col = 1
		} else {
			p.col++
		}
	}
	return p
}

func (l *lexer) advance(n int) {
	l.advanceTo(l.offset + n)
}

func (l *lexer) advanceTo(target int) {
	for l.offset < target && l.offset < len(l.source) {
		r, size := utf8.DecodeRuneInString(l.source[l.offset:])
		l.offset += size
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

func span(start, end position) diag.Span {
	return diag.Span{
		StartLine:   start.line,
		StartCol:    start.col,
		StartOffset: start.offset,
		EndLine:     end.line,
		EndCol:      end.col,
		EndOffset:   end.offset,
	}
}

func (l *lexer) errorAt(p position, format string, args ...any) error {
	s := span(p, p)
	return diag.Errorf(diag.KindSyntax, format, args...).WithSpan(s)
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func isAnySpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentByte(c byte, continuation bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return continuation && isDigit(c)
}

func isIdentRune(r rune, continuation bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return continuation && unicode.IsDigit(r)
}
