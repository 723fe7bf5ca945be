package runtime

// Operations emitted code reaches through the ScriptRuntime natives.

// DeclareVar creates a var-scoped binding in the variable environment.
func DeclareVar(cx *ExecutionContext, name string) {
	cx.VarEnv.CreateVarBinding(name)
}

// DeclareLexical creates an uninitialized let or const binding in the
// current lexical environment.
func DeclareLexical(cx *ExecutionContext, name string, isConst bool) {
	if isConst {
		cx.LexicalEnv.CreateImmutableBinding(name)
	} else {
		cx.LexicalEnv.CreateMutableBinding(name)
	}
}

// InitializeLexical gives a lexical binding its first value.
func InitializeLexical(cx *ExecutionContext, name string, v Value) {
	cx.LexicalEnv.InitializeBinding(name, v)
}

// BindParameter binds the index-th argument (or undefined) to name.
func BindParameter(cx *ExecutionContext, name string, args []Value, index int) {
	v := Undefined
	if index < len(args) {
		v = args[index]
	}
	cx.VarEnv.InitializeBinding(name, v)
}

// BindFunction stores a hoisted function declaration.
func BindFunction(cx *ExecutionContext, name string, fn Value) {
	cx.VarEnv.SetVar(name, fn)
}

// CheckInitialized throws a ReferenceError for a binding still in its
// temporal dead zone.
func CheckInitialized(cx *ExecutionContext, v Value, name string) (Value, error) {
	if v == Uninitialized {
		return nil, cx.NewReferenceError("cannot access '%s' before initialization", name)
	}
	return v, nil
}

// PrepareTailCall returns a deferred call of fn for a call site in tail
// position.
func PrepareTailCall(cx *ExecutionContext, fn, this Value, args []Value) (Value, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, cx.NewTypeError("%s is not a function", ToString(fn))
	}
	return NewTailCall(c, this, args), nil
}

// PrepareTailConstruct returns a deferred construct of fn for a new
// expression in tail position.
func PrepareTailConstruct(cx *ExecutionContext, fn Value, args []Value) (Value, error) {
	c, ok := fn.(Constructor)
	if !ok {
		return nil, cx.NewTypeError("%s is not a constructor", ToString(fn))
	}
	return NewTailConstruct(c, args), nil
}

// ExceptionValue extracts the thrown value from a caught error.
func ExceptionValue(err error) Value {
	if se, ok := err.(*ScriptError); ok {
		return se.Value
	}
	return err.Error()
}
