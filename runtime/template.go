package runtime

import (
	"io"
	"strings"

	"github.com/kilnlang/kiln/nodes"
	"github.com/kilnlang/kiln/parser"
)

// Template is a parsed template bound to the environment that produced it.
// Templates are immutable and safe for concurrent rendering.
type Template struct {
	env    *Environment
	cfg    *renderConfig
	name   string
	source string
	root   *nodes.Template
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Source returns the source text the template was parsed from.
func (t *Template) Source() string { return t.source }

// Render renders the template with the given context into a string. The
// context is converted through FromAny and must yield a map; nil renders
// with an empty context.
func (t *Template) Render(ctx any) (string, error) {
	var buf strings.Builder
	if err := t.RenderTo(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTo renders the template into w.
func (t *Template) RenderTo(w io.Writer, ctx any) error {
	cfg := t.cfg
	if cfg == nil {
		cfg = t.env.currentConfig()
	}
	st, err := t.env.newState(cfg, t.name, ctx)
	if err != nil {
		return err
	}
	e := &evaluator{st: st, out: w}
	if err := e.renderWithInheritance(t); err != nil {
		return t.env.decorate(err, t)
	}
	return nil
}

// UndeclaredVariables reports the variables the template reads but never
// assigns. With nested set, dotted attribute paths are reported instead of
// just root names.
func (t *Template) UndeclaredVariables(nested bool) []string {
	return parser.UndeclaredVariables(t.root, nested)
}
