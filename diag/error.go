// Package diag defines the structured error model shared by every part of
// the engine. Errors carry a kind, the template name, a source span, and
// enough of the source itself to render a pointed multi-line description.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of error categories. Callers branch on it.
type Kind int

const (
	// KindUnknown is the fallback for errors that crossed a host boundary
	// without full diagnostic context attached.
	KindUnknown Kind = iota

	// KindTemplateNotFound indicates the loader or path resolution could
	// not supply a template for the requested name.
	KindTemplateNotFound

	// KindSyntax indicates the lexer or parser rejected the source.
	KindSyntax

	// KindUndefined indicates a referenced name had no binding and the
	// undefined-handling policy treats that as fatal.
	KindUndefined

	// KindInvalidOperation indicates a runtime operation was applied to
	// incompatible operand kinds, including failed ordered comparisons.
	KindInvalidOperation

	// KindRuntime indicates an extension callback raised a host failure.
	KindRuntime

	// KindOutOfFuel indicates the configured execution budget ran out.
	KindOutOfFuel
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTemplateNotFound:
		return "template not found"
	case KindSyntax:
		return "syntax error"
	case KindUndefined:
		return "undefined error"
	case KindInvalidOperation:
		return "invalid operation"
	case KindRuntime:
		return "runtime error"
	case KindOutOfFuel:
		return "out of fuel"
	default:
		return "unknown error"
	}
}

// Error is a structured diagnostic. It is constructed at the failure site,
// carried up the call stack unchanged, and inspected or formatted by the
// caller. The With* methods are only used while the error is being built;
// once it escapes the engine it is treated as immutable.
type Error struct {
	// Kind is the error category.
	Kind Kind

	// Message is the short human-readable description.
	Message string

	// Detail optionally elaborates on Message.
	Detail string

	// Name is the template name, when known.
	Name string

	// Span is the byte range and line/column of the offending source,
	// when position information is available.
	Span *Span

	// Source is the template source the span points into. It is kept for
	// rendering the full description and is never part of Error().
	Source string

	// Cause is the underlying failure, when this diagnostic wraps one.
	Cause error
}

// New creates a diagnostic with the minimum fields every failure path
// must provide.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a diagnostic with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSpan attaches a source span while the error is being constructed. An
// already recorded span wins, so outer frames only fill gaps.
func (e *Error) WithSpan(span Span) *Error {
	if e.Span == nil {
		e.Span = &span
	}
	return e
}

// WithName attaches the template name while the error is being constructed.
func (e *Error) WithName(name string) *Error {
	if e.Name == "" {
		e.Name = name
	}
	return e
}

// WithSource attaches the template source while the error is being
// constructed, enabling the excerpt in FullDescription.
func (e *Error) WithSource(source string) *Error {
	if e.Source == "" {
		e.Source = source
	}
	return e
}

// WithDetail attaches the longer detail message.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Line returns the one-based line number, or 0 when unknown.
func (e *Error) Line() int {
	if e.Span == nil {
		return 0
	}
	return e.Span.StartLine
}

// ByteRange returns the start and end byte offsets of the offending span.
// Both are 0 when no position information is attached.
func (e *Error) ByteRange() (start, end int) {
	if e.Span == nil {
		return 0, 0
	}
	return e.Span.StartOffset, e.Span.EndOffset
}

// Error returns the short, single-line form: kind, message, and location.
// The source excerpt is deliberately excluded; use FullDescription for it.
func (e *Error) Error() string {
	switch {
	case e.Name != "" && e.Span != nil:
		return fmt.Sprintf("%s: %s (in %s:%d)", e.Kind, e.Message, e.Name, e.Span.StartLine)
	case e.Span != nil:
		return fmt.Sprintf("%s: %s (at line %d)", e.Kind, e.Message, e.Span.StartLine)
	case e.Name != "":
		return fmt.Sprintf("%s: %s (in %s)", e.Kind, e.Message, e.Name)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

const excerptContext = 2

// FullDescription renders the multi-line diagnostic: the source excerpt
// with a ">" marker on the offending line, a caret (or range) indicator
// under the offending span, and finally the message and detail.
func (e *Error) FullDescription() string {
	var b strings.Builder

	if e.Source != "" && e.Span != nil && e.Span.StartLine > 0 {
		lines := strings.Split(e.Source, "\n")
		errIdx := e.Span.StartLine - 1
		if errIdx >= len(lines) {
			errIdx = len(lines) - 1
		}

		first := errIdx - excerptContext
		if first < 0 {
			first = 0
		}
		last := errIdx + excerptContext
		if last > len(lines)-1 {
			last = len(lines) - 1
		}

		for idx := first; idx <= last; idx++ {
			marker := "|"
			if idx == errIdx {
				marker = ">"
			}
			fmt.Fprintf(&b, "%4d %s %s\n", idx+1, marker, lines[idx])
			if idx == errIdx {
				fmt.Fprintf(&b, "     | %s%s\n",
					strings.Repeat(" ", caretIndent(e.Span)),
					strings.Repeat("^", caretWidth(e.Span, lines[idx])))
			}
		}
	}

	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.Name != "" {
		fmt.Fprintf(&b, " (in %s", e.Name)
		if e.Span != nil {
			fmt.Fprintf(&b, ":%d", e.Span.StartLine)
		}
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString("\n")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// caretIndent converts the span's one-based column into the number of
// characters to skip before the caret.
func caretIndent(span *Span) int {
	if span.StartCol < 1 {
		return 0
	}
	return span.StartCol - 1
}

func caretWidth(span *Span, line string) int {
	if span.EndLine != span.StartLine || span.EndCol <= span.StartCol {
		return 1
	}
	width := span.EndCol - span.StartCol
	if max := len(line) - caretIndent(span); width > max && max > 0 {
		width = max
	}
	return width
}

// IsKind reports whether err is, or wraps, a diagnostic of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
