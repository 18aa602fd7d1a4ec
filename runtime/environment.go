package runtime

import (
	"errors"
	"sync"

	"github.com/kilnlang/kiln/lexer"
	"github.com/kilnlang/kiln/parser"
)

// FinalizerFunc rewrites every value about to be emitted, before escaping.
// Returning ErrNotApplicable passes the value through unchanged.
type FinalizerFunc func(st *State, v Value) (Value, error)

// PlainFinalizerFunc is a finalizer that does not need render state.
type PlainFinalizerFunc func(v Value) (Value, error)

// renderConfig is the immutable configuration snapshot one render runs
// under. It is assembled when the render starts so concurrent
// reconfiguration never mixes settings within a render.
type renderConfig struct {
	syntax       lexer.SyntaxConfig
	ws           lexer.WhitespaceConfig
	reg          *registrySnapshot
	autoEscapeFn AutoEscapeFunc
	finalizer    FinalizerFunc
	pathJoin     PathJoinFunc
	undefined    UndefinedBehavior
	compat       bool
	fuelBudget   int64
	sink         DiagnosticSink
}

// Environment owns the template cache, the filter/test/function registry
// and all rendering configuration. All methods are safe for concurrent use;
// renders in flight keep the configuration they started with.
type Environment struct {
	mu           sync.RWMutex
	syntax       lexer.SyntaxConfig
	ws           lexer.WhitespaceConfig
	autoEscapeFn AutoEscapeFunc
	finalizer    FinalizerFunc
	pathJoin     PathJoinFunc
	undefined    UndefinedBehavior
	compat       bool
	fuelBudget   int64
	sink         DiagnosticSink
	reloadEach   bool

	reg   *registry
	cache *templateCache
}

// New creates an environment with default syntax, no loader, no escaping
// and the builtin filters, tests and functions installed.
func New() *Environment {
	env := &Environment{
		syntax: lexer.DefaultSyntax(),
		ws:     lexer.DefaultWhitespace(),
		sink:   defaultSink(),
		reg:    newRegistry(),
		cache:  newTemplateCache(),
	}
	registerBuiltins(env.reg)
	return env
}

// currentConfig snapshots the configuration for one render.
func (env *Environment) currentConfig() *renderConfig {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return &renderConfig{
		syntax:       env.syntax,
		ws:           env.ws,
		reg:          env.reg.snapshot(),
		autoEscapeFn: env.autoEscapeFn,
		finalizer:    env.finalizer,
		pathJoin:     env.pathJoin,
		undefined:    env.undefined,
		compat:       env.compat,
		fuelBudget:   env.fuelBudget,
		sink:         env.sink,
	}
}

// SetSyntax replaces the delimiter configuration. An invalid configuration
// is rejected and the previous one stays in effect. Already parsed
// templates keep the syntax they were parsed with.
func (env *Environment) SetSyntax(syntax lexer.SyntaxConfig) error {
	if err := syntax.Validate(); err != nil {
		return err
	}
	env.mu.Lock()
	env.syntax = syntax
	env.mu.Unlock()
	return nil
}

// Syntax returns the current delimiter configuration.
func (env *Environment) Syntax() lexer.SyntaxConfig {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return env.syntax
}

// SetWhitespace replaces the whitespace handling configuration.
func (env *Environment) SetWhitespace(ws lexer.WhitespaceConfig) {
	env.mu.Lock()
	env.ws = ws
	env.mu.Unlock()
}

// Whitespace returns the current whitespace handling configuration.
func (env *Environment) Whitespace() lexer.WhitespaceConfig {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return env.ws
}

// SetLoader installs the template loader and drops all cached parses.
func (env *Environment) SetLoader(loader LoaderFunc) {
	env.cache.setLoader(loader)
}

// Reload drops all cached parses. Templates registered with AddTemplate
// stay available.
func (env *Environment) Reload() {
	env.cache.invalidate()
}

// SetReloadBeforeRender makes every named-template render revalidate
// through the loader first. Meant for development setups.
func (env *Environment) SetReloadBeforeRender(reload bool) {
	env.mu.Lock()
	env.reloadEach = reload
	env.mu.Unlock()
}

// SetAutoEscapeCallback installs the per-template escaping decision. It is
// consulted once per render, before the first output byte.
func (env *Environment) SetAutoEscapeCallback(fn AutoEscapeFunc) {
	env.mu.Lock()
	env.autoEscapeFn = fn
	env.mu.Unlock()
}

// SetFinalizer installs a state-aware output finalizer.
func (env *Environment) SetFinalizer(fn FinalizerFunc) {
	env.mu.Lock()
	env.finalizer = fn
	env.mu.Unlock()
}

// SetPlainFinalizer installs a finalizer that ignores render state.
func (env *Environment) SetPlainFinalizer(fn PlainFinalizerFunc) {
	env.SetFinalizer(func(_ *State, v Value) (Value, error) {
		return fn(v)
	})
}

// SetPathJoin installs the callback that resolves relative template names
// in extends and include against the referencing template.
func (env *Environment) SetPathJoin(fn PathJoinFunc) {
	env.mu.Lock()
	env.pathJoin = fn
	env.mu.Unlock()
}

// SetUndefinedBehavior selects how undefined values behave.
func (env *Environment) SetUndefinedBehavior(b UndefinedBehavior) {
	env.mu.Lock()
	env.undefined = b
	env.mu.Unlock()
}

// SetCompatMode toggles dispatch of Python style convenience methods such
// as str.upper or dict.items on values that have no such attribute.
func (env *Environment) SetCompatMode(enabled bool) {
	env.mu.Lock()
	env.compat = enabled
	env.mu.Unlock()
}

// SetFuel sets the per-render evaluation budget. Zero disables metering.
func (env *Environment) SetFuel(budget int64) {
	env.mu.Lock()
	env.fuelBudget = budget
	env.mu.Unlock()
}

// SetSink replaces the diagnostic sink that receives non-fatal callback
// failures.
func (env *Environment) SetSink(sink DiagnosticSink) {
	env.mu.Lock()
	if sink == nil {
		sink = NopSink{}
	}
	env.sink = sink
	env.mu.Unlock()
}

// AddFilter registers a state-aware filter.
func (env *Environment) AddFilter(name string, fn FilterFunc) {
	env.reg.addFilter(name, fn)
}

// AddPlainFilter registers a filter that does not need render state.
func (env *Environment) AddPlainFilter(name string, fn PlainFilterFunc) {
	env.reg.addFilter(name, func(_ *State, value Value, args Args) (Value, error) {
		return fn(value, args)
	})
}

// RemoveFilter unregisters a filter.
func (env *Environment) RemoveFilter(name string) {
	env.reg.removeFilter(name)
}

// AddTest registers a state-aware test.
func (env *Environment) AddTest(name string, fn TestFunc) {
	env.reg.addTest(name, fn)
}

// AddPlainTest registers a test that does not need render state.
func (env *Environment) AddPlainTest(name string, fn PlainTestFunc) {
	env.reg.addTest(name, func(_ *State, value Value, args Args) (bool, error) {
		return fn(value, args)
	})
}

// RemoveTest unregisters a test.
func (env *Environment) RemoveTest(name string) {
	env.reg.removeTest(name)
}

// AddFunction registers a state-aware global function.
func (env *Environment) AddFunction(name string, fn FunctionFunc) {
	env.reg.addGlobal(name, Func(name, fn))
}

// AddPlainFunction registers a global function that does not need render
// state.
func (env *Environment) AddPlainFunction(name string, fn PlainFunctionFunc) {
	env.reg.addGlobal(name, Func(name, func(_ *State, args Args) (Value, error) {
		return fn(args)
	}))
}

// AddGlobal registers a global variable available to every render. The
// value is converted through FromAny.
func (env *Environment) AddGlobal(name string, value any) {
	env.reg.addGlobal(name, FromAny(value))
}

// RemoveGlobal unregisters a global variable or function.
func (env *Environment) RemoveGlobal(name string) {
	env.reg.removeGlobal(name)
}

// AddTemplate registers template source under a name. It shadows the
// loader and survives Reload.
func (env *Environment) AddTemplate(name, source string) {
	env.cache.addSource(name, source)
}

// RemoveTemplate drops a template registered with AddTemplate.
func (env *Environment) RemoveTemplate(name string) {
	env.cache.removeSource(name)
}

// GetTemplate resolves a template by name through pinned sources and the
// loader, parsing at most once per name between invalidations.
func (env *Environment) GetTemplate(name string) (*Template, error) {
	cfg := env.currentConfig()
	env.mu.RLock()
	reload := env.reloadEach
	env.mu.RUnlock()
	if reload {
		env.cache.invalidate()
	}
	return env.resolveTemplate(name, cfg)
}

func (env *Environment) resolveTemplate(name string, cfg *renderConfig) (*Template, error) {
	return env.cache.lookup(name, func(source, name string) (*Template, error) {
		return env.parse(source, name, cfg)
	})
}

func (env *Environment) parse(source, name string, cfg *renderConfig) (*Template, error) {
	root, err := parser.Parse(source, cfg.syntax, cfg.ws)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			derr.WithName(name)
			derr.WithSource(source)
		}
		return nil, err
	}
	return &Template{env: env, name: name, source: source, root: root}, nil
}

// RenderString parses and renders a one-off template under the name
// <string>.
func (env *Environment) RenderString(source string, ctx any) (string, error) {
	return env.RenderNamedString(NameString, source, ctx)
}

// RenderNamedString parses and renders a one-off template under an
// explicit name. The parse is not cached.
func (env *Environment) RenderNamedString(name, source string, ctx any) (string, error) {
	cfg := env.currentConfig()
	tmpl, err := env.parse(source, name, cfg)
	if err != nil {
		return "", err
	}
	tmpl.cfg = cfg
	return tmpl.Render(ctx)
}

// EvalExpression evaluates a standalone expression against a context and
// returns the resulting value. Delimiters play no role here.
func (env *Environment) EvalExpression(source string, ctx any) (Value, error) {
	cfg := env.currentConfig()
	expr, err := parser.ParseExpression(source)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			derr.WithName(NameExpression)
			derr.WithSource(source)
		}
		return Undefined(), err
	}
	st, err := env.newState(cfg, NameExpression, ctx)
	if err != nil {
		return Undefined(), err
	}
	e := &evaluator{st: st, out: discard{}}
	v, err := e.evalExpr(expr)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			derr.WithSource(source)
		}
		return Undefined(), err
	}
	return v, nil
}

// UndeclaredVariables parses a source string and reports the variables it
// reads but never assigns.
func (env *Environment) UndeclaredVariables(source string, nested bool) ([]string, error) {
	cfg := env.currentConfig()
	tmpl, err := env.parse(source, NameString, cfg)
	if err != nil {
		return nil, err
	}
	return tmpl.UndeclaredVariables(nested), nil
}

// UndeclaredVariablesInTemplate reports undeclared variables of a named
// template.
func (env *Environment) UndeclaredVariablesInTemplate(name string, nested bool) ([]string, error) {
	tmpl, err := env.GetTemplate(name)
	if err != nil {
		return nil, err
	}
	return tmpl.UndeclaredVariables(nested), nil
}

// newState builds the per-render state: context scope, escaping decision
// and fuel budget.
func (env *Environment) newState(cfg *renderConfig, name string, ctx any) (*State, error) {
	base := map[string]Value{}
	if ctx != nil {
		v := FromAny(ctx)
		switch v.Kind() {
		case KindMap:
			for _, k := range v.MapKeys() {
				item, _ := v.GetAttr(k)
				base[k] = item
			}
		case KindNone, KindUndefined:
		default:
			return nil, Errorf(InvalidOperation, "render context must be a map, got %s", v.Kind())
		}
	}

	autoEscape := AutoEscape{}
	if cfg.autoEscapeFn != nil {
		ae, err := cfg.autoEscapeFn(name)
		if err != nil {
			// A failing callback is reported, not fatal. The render
			// proceeds without escaping.
			if cfg.sink != nil {
				cfg.sink.ReportDiagnostic(name, err)
			}
		} else {
			autoEscape = ae
		}
	}

	var fuel *fuelTracker
	if cfg.fuelBudget > 0 {
		fuel = newFuelTracker(cfg.fuelBudget)
	}

	return &State{
		env:        env,
		cfg:        cfg,
		name:       name,
		autoEscape: autoEscape,
		fuel:       fuel,
		scopes:     []map[string]Value{base},
		blockStack: map[string][]blockLayer{},
	}, nil
}

// decorate attaches template source to a render error so FullDescription
// can show an annotated excerpt. The source only matches the error's span
// when the error names this template, not an included or inherited one.
func (env *Environment) decorate(err error, t *Template) error {
	var derr *Error
	if errors.As(err, &derr) && derr.Name == t.name {
		derr.WithSource(t.source)
	}
	return err
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
