// Package kiln is a Jinja style template engine. Templates are rendered
// through an Environment that owns the loader, the template cache and the
// filter, test and function registries.
package kiln

import (
	"sync"

	"github.com/kilnlang/kiln/lexer"
	"github.com/kilnlang/kiln/runtime"
)

// Version of the kiln library.
const Version = "0.1.0"

// Environment owns templates and rendering configuration.
type Environment = runtime.Environment

// Template is a parsed template bound to its environment.
type Template = runtime.Template

// State is the per-render execution state handed to callbacks.
type State = runtime.State

// Value is the template value model.
type Value = runtime.Value

// Args carries call arguments to filters, tests and functions.
type Args = runtime.Args

// Error is the structured diagnostic every engine failure carries.
type Error = runtime.Error

// SafeString marks a Go string as pre-escaped.
type SafeString = runtime.SafeString

// AutoEscape is the per-render escaping decision.
type AutoEscape = runtime.AutoEscape

// SyntaxConfig holds the delimiter configuration.
type SyntaxConfig = lexer.SyntaxConfig

// WhitespaceConfig holds the whitespace handling configuration.
type WhitespaceConfig = lexer.WhitespaceConfig

// New creates an environment with the default syntax and builtins.
func New() *Environment {
	return runtime.New()
}

var (
	defaultEnv  *Environment
	defaultOnce sync.Once
)

// Default returns a lazily created shared environment. It is meant for
// quick one-off rendering; anything configurable should use New.
func Default() *Environment {
	defaultOnce.Do(func() {
		defaultEnv = runtime.New()
	})
	return defaultEnv
}

// RenderString renders a one-off template with the default environment.
func RenderString(source string, ctx any) (string, error) {
	return Default().RenderString(source, ctx)
}

// EvalExpression evaluates a standalone expression with the default
// environment.
func EvalExpression(source string, ctx any) (Value, error) {
	return Default().EvalExpression(source, ctx)
}

// UndeclaredVariables reports the variables a template source reads but
// never assigns.
func UndeclaredVariables(source string, nested bool) ([]string, error) {
	return Default().UndeclaredVariables(source, nested)
}
