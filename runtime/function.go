package runtime

import (
	"fmt"
)

// MethodHandle invokes an emitted method. It is implemented by the loader
// that links compiled units.
type MethodHandle interface {
	Invoke(args ...Value) (Value, error)
	String() string
}

// Callable is implemented by every callable value. TailCall may return a
// *TailInvocation instead of a final value.
type Callable interface {
	ObjectLike
	Call(cx *ExecutionContext, this Value, args ...Value) (Value, error)
	TailCall(cx *ExecutionContext, this Value, args ...Value) (Value, error)
}

// Constructor is implemented by values usable with new.
type Constructor interface {
	Callable
	Construct(cx *ExecutionContext, args ...Value) (Value, error)
	TailConstruct(cx *ExecutionContext, args ...Value) (Value, error)
}

// Function flags.
const (
	FlagStrict = 1 << iota
	FlagArrow
	FlagConciseBody
)

// FunctionInfo is the runtime descriptor emitted for each compiled function.
type FunctionInfo struct {
	Name   string
	Arity  int
	Flags  int
	Params []string
	Source string // compressed source, see SourceText
	Init   MethodHandle
	Body   MethodHandle
}

// Strict reports whether the function is strict-mode code.
func (fi *FunctionInfo) Strict() bool { return fi.Flags&FlagStrict != 0 }

// Arrow reports whether the function is an arrow function.
func (fi *FunctionInfo) Arrow() bool { return fi.Flags&FlagArrow != 0 }

// ScriptInfo is the runtime descriptor emitted for a compiled script.
type ScriptInfo struct {
	Name   string
	Strict bool
	Init   MethodHandle
	Body   MethodHandle
}

// Evaluate runs the script's declaration instantiation and body.
func (si *ScriptInfo) Evaluate(cx *ExecutionContext) (Value, error) {
	if _, err := si.Init.Invoke(cx); err != nil {
		return nil, err
	}
	return si.Body.Invoke(cx)
}

// Function is a script function closed over its defining environment.
type Function struct {
	Object
	Info     *FunctionInfo
	Scope    *Environment
	Realm    *Realm
	LexThis  Value
	HomeFunc *Function
}

// InstantiateFunction creates a closure for info in the current lexical
// environment of cx.
func InstantiateFunction(cx *ExecutionContext, info *FunctionInfo) *Function {
	f := &Function{
		Object: *NewObject(cx.Realm.FunctionPrototype),
		Info:   info,
		Scope:  cx.LexicalEnv,
		Realm:  cx.Realm,
	}
	f.Class = "Function"
	f.Set("name", info.Name)
	f.Set("length", float64(info.Arity))
	if info.Arrow() {
		f.LexThis = cx.This
		f.HomeFunc = cx.Function
	} else {
		proto := NewObject(cx.Realm.ObjectPrototype)
		proto.Set("constructor", f)
		f.Set("prototype", proto)
	}
	return f
}

func (f *Function) String() string {
	return fmt.Sprintf("function %s", f.Info.Name)
}

// SourceText returns the function's source text, if it was retained.
func (f *Function) SourceText() (string, error) {
	return DecompressSource(f.Info.Source)
}

func (f *Function) prepare(cx *ExecutionContext, this Value) *ExecutionContext {
	env := NewDeclarativeEnvironment(f.Scope)
	callee := &ExecutionContext{Realm: f.Realm, LexicalEnv: env, VarEnv: env, Function: f, This: this}
	if cx != nil {
		callee.Depth = cx.Depth + 1
	}
	switch {
	case f.Info.Arrow():
		callee.This = f.LexThis
		callee.Function = f.HomeFunc
	case !f.Info.Strict() && (this == Undefined || this == Null || this == nil):
		callee.This = f.Realm.Global
	}
	return callee
}

// TailCall evaluates the function body without running the trampoline.
func (f *Function) TailCall(cx *ExecutionContext, this Value, args ...Value) (Value, error) {
	if cx != nil && cx.Depth >= MaxCallDepth {
		return nil, cx.throwf("RangeError", "maximum call stack size exceeded")
	}
	callee := f.prepare(cx, this)
	if _, err := f.Info.Init.Invoke(callee, args); err != nil {
		return nil, err
	}
	return f.Info.Body.Invoke(callee)
}

// Call invokes the function and drives any tail calls it returns.
func (f *Function) Call(cx *ExecutionContext, this Value, args ...Value) (Value, error) {
	result, err := f.TailCall(cx, this, args...)
	if err != nil {
		return nil, err
	}
	return Trampoline(cx, result)
}

// TailConstruct constructs a new object without running the trampoline.
// A pending tail call in the body is converted so that a non-object result
// is replaced by the constructed object.
func (f *Function) TailConstruct(cx *ExecutionContext, args ...Value) (Value, error) {
	if f.Info.Arrow() {
		return nil, cx.NewTypeError("%s is not a constructor", f.Info.Name)
	}
	proto, ok := f.Get("prototype").(*Object)
	if !ok {
		proto = f.Realm.ObjectPrototype
	}
	obj := NewObject(proto)
	result, err := f.TailCall(cx, obj, args...)
	if err != nil {
		return nil, err
	}
	if tc, ok := result.(*TailInvocation); ok {
		return tc.ToConstructTailCall(obj), nil
	}
	if IsObject(result) {
		return result, nil
	}
	return obj, nil
}

// Construct constructs a new object.
func (f *Function) Construct(cx *ExecutionContext, args ...Value) (Value, error) {
	result, err := f.TailConstruct(cx, args...)
	if err != nil {
		return nil, err
	}
	return Trampoline(cx, result)
}

// NativeFunc implements a builtin function.
type NativeFunc func(cx *ExecutionContext, this Value, args []Value) (Value, error)

// Builtin is a function implemented in Go.
type Builtin struct {
	Object
	Name string
	Fn   NativeFunc
}

func (b *Builtin) Call(cx *ExecutionContext, this Value, args ...Value) (Value, error) {
	return b.Fn(cx, this, args)
}

func (b *Builtin) TailCall(cx *ExecutionContext, this Value, args ...Value) (Value, error) {
	return b.Fn(cx, this, args)
}

func (b *Builtin) String() string { return "function " + b.Name }

// Call calls fn, which must be callable.
func Call(cx *ExecutionContext, fn, this Value, args ...Value) (Value, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, cx.NewTypeError("%s is not a function", ToString(fn))
	}
	return c.Call(cx, this, args...)
}

// Construct applies new to fn, which must be a constructor.
func Construct(cx *ExecutionContext, fn Value, args ...Value) (Value, error) {
	c, ok := fn.(Constructor)
	if !ok {
		return nil, cx.NewTypeError("%s is not a constructor", ToString(fn))
	}
	return c.Construct(cx, args...)
}
