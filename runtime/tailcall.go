package runtime

// TailInvocation is a call or construct request returned by a call site in
// tail position instead of being performed. It is applied exactly once, by
// Trampoline.
type TailInvocation struct {
	target    Callable
	this      Value // nil for a construct request
	args      []Value
	construct bool
	object    *Object // fallback result for a converted construct request
}

// NewTailCall creates a deferred call of fn.
func NewTailCall(fn Callable, this Value, args []Value) *TailInvocation {
	if this == nil {
		this = Undefined
	}
	return &TailInvocation{target: fn, this: this, args: args}
}

// NewTailConstruct creates a deferred construct of fn.
func NewTailConstruct(fn Constructor, args []Value) *TailInvocation {
	return &TailInvocation{target: fn, args: args}
}

// ToConstructTailCall converts t into a request whose non-object result is
// replaced by obj, the object under construction.
func (t *TailInvocation) ToConstructTailCall(obj *Object) *TailInvocation {
	if t.construct {
		return t
	}
	return &TailInvocation{target: t.target, this: t.this, args: t.args, construct: true, object: obj}
}

func (t *TailInvocation) apply(cx *ExecutionContext) (Value, error) {
	var result Value
	var err error
	if t.this == nil {
		result, err = t.target.(Constructor).TailConstruct(cx, t.args...)
	} else {
		result, err = t.target.TailCall(cx, t.this, t.args...)
	}
	if err != nil {
		return nil, err
	}
	if t.construct {
		if next, pending := result.(*TailInvocation); pending {
			result = next.ToConstructTailCall(t.object)
		} else if !IsObject(result) {
			result = t.object
		}
	}
	return result, nil
}

// Trampoline applies tail invocations until a final value is produced.
// Errors propagate immediately.
func Trampoline(cx *ExecutionContext, result Value) (Value, error) {
	for {
		t, ok := result.(*TailInvocation)
		if !ok {
			return result, nil
		}
		var err error
		if result, err = t.apply(cx); err != nil {
			return nil, err
		}
	}
}
