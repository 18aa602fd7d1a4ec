package lexer

import (
	"fmt"
	"strings"
)

// SyntaxConfig holds the delimiters and prefixes for template syntax.
//
// A configuration is always validated and applied as a unit: either every
// field of a new configuration takes effect, or none of it does. Renders
// never observe a half-applied syntax.
type SyntaxConfig struct {
	// BlockStart is the opening delimiter for statements (default "{%").
	BlockStart string

	// BlockEnd is the closing delimiter for statements (default "%}").
	BlockEnd string

	// VariableStart is the opening delimiter for expressions (default "{{").
	VariableStart string

	// VariableEnd is the closing delimiter for expressions (default "}}").
	VariableEnd string

	// CommentStart is the opening delimiter for comments (default "{#").
	CommentStart string

	// CommentEnd is the closing delimiter for comments (default "#}").
	CommentEnd string

	// LineStatementPrefix, when non-empty, marks lines that consist of a
	// single statement (e.g. "#").
	LineStatementPrefix string

	// LineCommentPrefix, when non-empty, marks the remainder of a line as
	// a comment (e.g. "##").
	LineCommentPrefix string
}

// DefaultSyntax returns the standard Jinja delimiters.
func DefaultSyntax() SyntaxConfig {
	return SyntaxConfig{
		BlockStart:    "{%",
		BlockEnd:      "%}",
		VariableStart: "{{",
		VariableEnd:   "}}",
		CommentStart:  "{#",
		CommentEnd:    "#}",
	}
}

// Validate checks the configuration as a whole. The six core delimiters
// must be non-empty, and no two start delimiters may equal or prefix one
// another, which would make tokenization ambiguous. Callers must not apply
// a configuration that fails validation.
func (s SyntaxConfig) Validate() error {
	required := []struct {
		role  string
		value string
	}{
		{"block start", s.BlockStart},
		{"block end", s.BlockEnd},
		{"variable start", s.VariableStart},
		{"variable end", s.VariableEnd},
		{"comment start", s.CommentStart},
		{"comment end", s.CommentEnd},
	}
	for _, d := range required {
		if d.value == "" {
			return fmt.Errorf("syntax config: %s delimiter must not be empty", d.role)
		}
	}

	starts := []struct {
		role  string
		value string
	}{
		{"block start", s.BlockStart},
		{"variable start", s.VariableStart},
		{"comment start", s.CommentStart},
	}
	if s.LineStatementPrefix != "" {
		starts = append(starts, struct {
			role  string
			value string
		}{"line statement prefix", s.LineStatementPrefix})
	}
	for i := range starts {
		for j := range starts {
			if i == j {
				continue
			}
			if strings.HasPrefix(starts[j].value, starts[i].value) {
				return fmt.Errorf(
					"syntax config: %s %q is a prefix of %s %q, tokenization would be ambiguous",
					starts[i].role, starts[i].value, starts[j].role, starts[j].value)
			}
		}
	}
	return nil
}

// WhitespaceConfig holds the whitespace handling policies applied while
// tokenizing.
type WhitespaceConfig struct {
	// KeepTrailingNewline preserves the final newline of a template.
	// When false a single trailing newline is stripped.
	KeepTrailingNewline bool

	// TrimBlocks removes the first newline after a block tag.
	TrimBlocks bool

	// LstripBlocks strips tabs and spaces from the beginning of a line
	// to the start of a block tag.
	LstripBlocks bool
}

// DefaultWhitespace returns the default whitespace policies, matching
// Jinja: a single trailing newline is removed and nothing else is touched.
func DefaultWhitespace() WhitespaceConfig {
	return WhitespaceConfig{}
}
