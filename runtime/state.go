package runtime

// Template name sentinels for ad hoc sources.
const (
	NameString     = "<string>"
	NameExpression = "<expression>"
)

// UndefinedBehavior controls what touching an undefined value does.
type UndefinedBehavior int

const (
	// UndefinedLenient renders undefined as empty output and lets most
	// operations degrade gracefully.
	UndefinedLenient UndefinedBehavior = iota
	// UndefinedChainable additionally allows attribute and item access on
	// undefined, yielding undefined again.
	UndefinedChainable
	// UndefinedStrict turns any use of an undefined value into an error of
	// kind UndefinedError.
	UndefinedStrict
)

func (b UndefinedBehavior) String() string {
	switch b {
	case UndefinedChainable:
		return "chainable"
	case UndefinedStrict:
		return "strict"
	}
	return "lenient"
}

// State is the execution state of a single render. It is created when the
// render starts, torn down when it ends, and handed read-only to state-aware
// callbacks. It must not be retained past the callback.
type State struct {
	env          *Environment
	cfg          *renderConfig
	name         string
	autoEscape   AutoEscape
	fuel         *fuelTracker
	scopes       []map[string]Value
	currentBlock string
	currentCall  string
	// blockStack tracks, per block name, the inheritance chain layers still
	// available to super().
	blockStack map[string][]blockLayer
}

// Env returns the environment this render runs in.
func (st *State) Env() *Environment { return st.env }

// Name returns the template name, or the <string> / <expression> sentinels
// for ad hoc sources.
func (st *State) Name() string { return st.name }

// CurrentBlock returns the name of the innermost block being rendered, or
// the empty string outside of blocks.
func (st *State) CurrentBlock() string { return st.currentBlock }

// CurrentCall returns the name of the filter, test or function currently
// being invoked, or the empty string.
func (st *State) CurrentCall() string { return st.currentCall }

// AutoEscape returns the escaping decision of this render. It is made once
// before the first output byte and never changes mid-render.
func (st *State) AutoEscape() AutoEscape { return st.autoEscape }

// UndefinedBehavior returns the undefined policy of this render.
func (st *State) UndefinedBehavior() UndefinedBehavior { return st.cfg.undefined }

// Lookup resolves a name through the scope chain: innermost scopes first,
// then the render context, then environment globals. Absence yields the
// undefined value, never an error.
func (st *State) Lookup(name string) Value {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if v, ok := st.scopes[i][name]; ok {
			return v
		}
	}
	if v, ok := st.cfg.reg.globals[name]; ok {
		return v
	}
	return Undefined()
}

func (st *State) pushScope() {
	st.scopes = append(st.scopes, map[string]Value{})
}

func (st *State) popScope() {
	st.scopes = st.scopes[:len(st.scopes)-1]
}

// set binds a name in the innermost scope. At template top level no scope
// has been pushed, so the binding lands in the render context scope and
// survives for the rest of the render.
func (st *State) set(name string, v Value) {
	st.scopes[len(st.scopes)-1][name] = v
}
