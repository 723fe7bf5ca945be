package runtime

type binding struct {
	value       Value
	mutable     bool
	initialized bool
}

// Environment is a scope record. A declarative environment stores bindings
// directly; the global environment additionally consults the global object
// for var-scoped names.
type Environment struct {
	Outer  *Environment
	decl   map[string]*binding
	global *Object
}

// NewDeclarativeEnvironment creates a declarative environment.
func NewDeclarativeEnvironment(outer *Environment) *Environment {
	return &Environment{Outer: outer, decl: make(map[string]*binding)}
}

// NewGlobalEnvironment creates the outermost environment, backed by global.
func NewGlobalEnvironment(global *Object) *Environment {
	return &Environment{decl: make(map[string]*binding), global: global}
}

// IsGlobal reports whether e is backed by the global object.
func (e *Environment) IsGlobal() bool { return e.global != nil }

// HasBinding reports whether name is bound in e itself.
func (e *Environment) HasBinding(name string) bool {
	if _, ok := e.decl[name]; ok {
		return true
	}
	return e.global != nil && e.global.Has(name)
}

// CreateMutableBinding adds an uninitialized mutable binding.
func (e *Environment) CreateMutableBinding(name string) {
	if _, ok := e.decl[name]; !ok {
		e.decl[name] = &binding{mutable: true}
	}
}

// CreateImmutableBinding adds an uninitialized immutable binding.
func (e *Environment) CreateImmutableBinding(name string) {
	e.decl[name] = &binding{}
}

// InitializeBinding sets the first value of a binding.
func (e *Environment) InitializeBinding(name string, v Value) {
	b, ok := e.decl[name]
	if !ok {
		b = &binding{mutable: true}
		e.decl[name] = b
	}
	b.value = v
	b.initialized = true
}

// CreateVarBinding declares a var-scoped name, initialized to undefined
// unless it already exists.
func (e *Environment) CreateVarBinding(name string) {
	if e.global != nil {
		if !e.global.Has(name) {
			e.global.Set(name, Undefined)
		}
		return
	}
	if _, ok := e.decl[name]; !ok {
		e.decl[name] = &binding{value: Undefined, mutable: true, initialized: true}
	}
}

// SetVar assigns a var-scoped name directly, bypassing TDZ checks.
func (e *Environment) SetVar(name string, v Value) {
	if e.global != nil {
		e.global.Set(name, v)
		return
	}
	e.InitializeBinding(name, v)
}

func (e *Environment) get(cx *ExecutionContext, name string) (Value, bool, error) {
	if b, ok := e.decl[name]; ok {
		if !b.initialized {
			return nil, true, cx.NewReferenceError("cannot access '%s' before initialization", name)
		}
		return b.value, true, nil
	}
	if e.global != nil && e.global.Has(name) {
		return e.global.Get(name), true, nil
	}
	return nil, false, nil
}

func (e *Environment) set(cx *ExecutionContext, name string, v Value) (bool, error) {
	if b, ok := e.decl[name]; ok {
		if !b.initialized {
			return true, cx.NewReferenceError("cannot access '%s' before initialization", name)
		}
		if !b.mutable {
			return true, cx.NewTypeError("assignment to constant variable '%s'", name)
		}
		b.value = v
		return true, nil
	}
	if e.global != nil && e.global.Has(name) {
		e.global.Set(name, v)
		return true, nil
	}
	return false, nil
}

// GetIdentifier resolves name through the environment chain.
func GetIdentifier(cx *ExecutionContext, env *Environment, name string) (Value, error) {
	for cur := env; cur != nil; cur = cur.Outer {
		v, found, err := cur.get(cx, name)
		if found || err != nil {
			return v, err
		}
	}
	return nil, cx.NewReferenceError("%s is not defined", name)
}

// HasIdentifier reports whether name resolves in the environment chain.
func HasIdentifier(env *Environment, name string) bool {
	for cur := env; cur != nil; cur = cur.Outer {
		if cur.HasBinding(name) {
			return true
		}
	}
	return false
}

// SetIdentifier assigns name through the environment chain. Unresolvable
// names create a global property in sloppy code and throw in strict code.
func SetIdentifier(cx *ExecutionContext, env *Environment, name string, v Value, strict bool) error {
	var outermost *Environment
	for cur := env; cur != nil; cur = cur.Outer {
		found, err := cur.set(cx, name, v)
		if found || err != nil {
			return err
		}
		outermost = cur
	}
	if strict || outermost == nil || outermost.global == nil {
		return cx.NewReferenceError("%s is not defined", name)
	}
	outermost.global.Set(name, v)
	return nil
}
