package runtime

import "fmt"

// ScriptError carries a thrown script value across Go call boundaries.
type ScriptError struct {
	Value Value
}

func (e *ScriptError) Error() string {
	return "uncaught " + ToString(e.Value)
}

// Throw wraps v as an error.
func Throw(v Value) error {
	return &ScriptError{Value: v}
}

// NewError creates an error object of the given kind.
func (r *Realm) NewError(name, format string, args ...any) *Object {
	o := NewObject(r.ErrorPrototype)
	o.Class = "Error"
	o.Set("name", name)
	o.Set("message", fmt.Sprintf(format, args...))
	return o
}

func (cx *ExecutionContext) throwf(name, format string, args ...any) error {
	if cx == nil || cx.Realm == nil {
		return &ScriptError{Value: name + ": " + fmt.Sprintf(format, args...)}
	}
	return &ScriptError{Value: cx.Realm.NewError(name, format, args...)}
}

// NewTypeError returns a thrown TypeError.
func (cx *ExecutionContext) NewTypeError(format string, args ...any) error {
	return cx.throwf("TypeError", format, args...)
}

// NewReferenceError returns a thrown ReferenceError.
func (cx *ExecutionContext) NewReferenceError(format string, args ...any) error {
	return cx.throwf("ReferenceError", format, args...)
}
