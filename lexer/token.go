package lexer

import (
	"fmt"

	"github.com/kilnlang/kiln/diag"
)

// TokenType identifies the type of a lexed token.
type TokenType int

const (
	// TokenText is raw template data outside of any tag.
	TokenText TokenType = iota
	// TokenVariableStart opens an expression tag.
	TokenVariableStart
	// TokenVariableEnd closes an expression tag.
	TokenVariableEnd
	// TokenBlockStart opens a statement tag.
	TokenBlockStart
	// TokenBlockEnd closes a statement tag.
	TokenBlockEnd
	// TokenIdent is an identifier or keyword.
	TokenIdent
	// TokenString is a string literal with escapes resolved.
	TokenString
	// TokenInt is an integer literal.
	TokenInt
	// TokenFloat is a float literal.
	TokenFloat

	TokenPlus
	TokenMinus
	TokenMul
	TokenDiv
	TokenFloorDiv
	TokenMod
	TokenPow
	TokenTilde
	TokenEq
	TokenNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenAssign
	TokenDot
	TokenComma
	TokenColon
	TokenPipe
	TokenParenOpen
	TokenParenClose
	TokenBracketOpen
	TokenBracketClose
	TokenBraceOpen
	TokenBraceClose
)

var tokenNames = map[TokenType]string{
	TokenText:          "template data",
	TokenVariableStart: "start of variable",
	TokenVariableEnd:   "end of variable",
	TokenBlockStart:    "start of block",
	TokenBlockEnd:      "end of block",
	TokenIdent:         "identifier",
	TokenString:        "string",
	TokenInt:           "integer",
	TokenFloat:         "float",
	TokenPlus:          "`+`",
	TokenMinus:         "`-`",
	TokenMul:           "`*`",
	TokenDiv:           "`/`",
	TokenFloorDiv:      "`//`",
	TokenMod:           "`%`",
	TokenPow:           "`**`",
	TokenTilde:         "`~`",
	TokenEq:            "`==`",
	TokenNe:            "`!=`",
	TokenLt:            "`<`",
	TokenLe:            "`<=`",
	TokenGt:            "`>`",
	TokenGe:            "`>=`",
	TokenAssign:        "`=`",
	TokenDot:           "`.`",
	TokenComma:         "`,`",
	TokenColon:         "`:`",
	TokenPipe:          "`|`",
	TokenParenOpen:     "`(`",
	TokenParenClose:    "`)`",
	TokenBracketOpen:   "`[`",
	TokenBracketClose:  "`]`",
	TokenBraceOpen:     "`{`",
	TokenBraceClose:    "`}`",
}

// String returns a human readable name for error messages.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a single lexed token with its source span.
type Token struct {
	Type  TokenType
	Value string
	Span  diag.Span
}

// Is reports whether the token is an identifier with the given value.
func (t Token) Is(ident string) bool {
	return t.Type == TokenIdent && t.Value == ident
}
