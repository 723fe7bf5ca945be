package runtime

import (
	"sync"
)

// Realm holds the global state scripts evaluate against.
type Realm struct {
	Global            *Object
	GlobalEnv         *Environment
	ObjectPrototype   *Object
	FunctionPrototype *Object
	ArrayPrototype    *Object
	ErrorPrototype    *Object

	mu        sync.Mutex
	templates map[string]*Object
}

// NewRealm creates a realm with an empty global object.
func NewRealm() *Realm {
	r := &Realm{templates: make(map[string]*Object)}
	r.ObjectPrototype = NewObject(nil)
	r.FunctionPrototype = NewObject(r.ObjectPrototype)
	r.ArrayPrototype = NewObject(r.ObjectPrototype)
	r.ErrorPrototype = NewObject(r.ObjectPrototype)
	r.ErrorPrototype.Set("name", "Error")
	r.ErrorPrototype.Set("message", "")
	r.Global = NewObject(r.ObjectPrototype)
	r.GlobalEnv = NewGlobalEnvironment(r.Global)
	r.Global.Set("undefined", Undefined)
	r.Global.Set("globalThis", r.Global)
	return r
}

// NewContext returns an execution context for top-level script code.
func (r *Realm) NewContext() *ExecutionContext {
	return &ExecutionContext{
		Realm:      r,
		LexicalEnv: r.GlobalEnv,
		VarEnv:     r.GlobalEnv,
		This:       r.Global,
	}
}

// Define installs a native function as a global property.
func (r *Realm) Define(name string, fn NativeFunc) *Builtin {
	b := &Builtin{Object: *NewObject(r.FunctionPrototype), Name: name, Fn: fn}
	r.Global.Set(name, b)
	return b
}

// TemplateCallSite returns the call-site object cached under key, building
// it from the cooked/raw string pairs produced by strings on first use.
func (r *Realm) TemplateCallSite(key string, strings func() ([]string, error)) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if site, ok := r.templates[key]; ok {
		return site, nil
	}
	pairs, err := strings()
	if err != nil {
		return nil, err
	}
	n := len(pairs) / 2
	cooked := make([]Value, n)
	raw := make([]Value, n)
	for i := 0; i < n; i++ {
		cooked[i] = pairs[2*i]
		raw[i] = pairs[2*i+1]
	}
	site := NewArray(r.ArrayPrototype, cooked...)
	site.Set("raw", NewArray(r.ArrayPrototype, raw...))
	r.templates[key] = site
	return site, nil
}

// ExecutionContext is threaded through every emitted method as its first
// argument.
type ExecutionContext struct {
	Realm      *Realm
	LexicalEnv *Environment
	VarEnv     *Environment
	Function   *Function
	This       Value
	Depth      int // nesting of non-tail calls
}

// MaxCallDepth bounds nested non-tail calls of script functions.
const MaxCallDepth = 10000

// PushLexicalEnvironment makes env the current lexical environment.
func (cx *ExecutionContext) PushLexicalEnvironment(env *Environment) {
	cx.LexicalEnv = env
}

// PopLexicalEnvironment restores the outer lexical environment.
func (cx *ExecutionContext) PopLexicalEnvironment() {
	cx.LexicalEnv = cx.LexicalEnv.Outer
}

// RestoreLexicalEnvironment resets the lexical environment, e.g. when a
// catch handler unwinds out of nested blocks.
func (cx *ExecutionContext) RestoreLexicalEnvironment(env *Environment) {
	cx.LexicalEnv = env
}
