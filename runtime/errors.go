package runtime

import (
	"errors"

	"github.com/kilnlang/kiln/diag"
)

// The diagnostic model lives in the diag package so the lexer and parser can
// share it. The runtime re-exports it under the names callers work with.
type (
	// Error is a structured template diagnostic.
	Error = diag.Error
	// ErrorKind classifies a diagnostic.
	ErrorKind = diag.Kind
	// Span locates a diagnostic in template source.
	Span = diag.Span
)

const (
	TemplateNotFound = diag.KindTemplateNotFound
	SyntaxError      = diag.KindSyntax
	UndefinedError   = diag.KindUndefined
	InvalidOperation = diag.KindInvalidOperation
	RuntimeError     = diag.KindRuntime
	OutOfFuel        = diag.KindOutOfFuel
	UnknownError     = diag.KindUnknown
)

// ErrNotFound signals that a loader has no template under the requested
// name. Loaders return errors matching it; anything else is treated as a
// loader failure.
var ErrNotFound = errors.New("template not found")

// ErrNotApplicable lets a callback decline. A finalizer returning it leaves
// the value untouched, a registered callback returning it falls back to the
// default behavior.
var ErrNotApplicable = errors.New("not applicable")

// IsKind reports whether err carries the given diagnostic kind.
func IsKind(err error, kind ErrorKind) bool {
	return diag.IsKind(err, kind)
}

// NewError builds a diagnostic of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return diag.New(kind, message)
}

// Errorf builds a diagnostic with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return diag.Errorf(kind, format, args...)
}
