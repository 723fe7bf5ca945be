package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/runtime"
)

// ---------------------------------------------------------------------------
// Host-level values
// ---------------------------------------------------------------------------

// wideHalf fills the upper unit of a long or double on the operand stack
// and in the local-variable array.
type wideHalf struct{}

var top = wideHalf{}

// Array is a reference array created by NEWARRAY.
type Array struct {
	Elem   string
	Values []any
}

// Instance is an object of a class with no native representation.
type Instance struct {
	Class  string
	Fields map[string]any
}

// StringBuilder backs the StringBuilder natives.
type StringBuilder struct {
	sb strings.Builder
}

// InternalError reports a failure inside the interpreter, such as a bad
// cast or an unlinked member. It is never catchable by script code.
type InternalError struct {
	Method string
	PC     int
	Err    error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("vm: %s at %d: %v", e.Method, e.PC, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// toCell converts a boxed Go value to its unboxed cell form for t.
func toCell(t descriptor.Type, v any) any {
	switch t.Sort() {
	case descriptor.Boolean:
		if b, ok := v.(bool); ok {
			return boolCell(b)
		}
	case descriptor.Char:
		if c, ok := v.(uint16); ok {
			return int32(c)
		}
	case descriptor.Byte:
		if b, ok := v.(int8); ok {
			return int32(b)
		}
	case descriptor.Short:
		if s, ok := v.(int16); ok {
			return int32(s)
		}
	case descriptor.Array:
		if vs, ok := v.([]any); ok {
			return &Array{Elem: t.Elem().Descriptor(), Values: vs}
		}
	}
	return v
}

// toBoxed converts an unboxed cell of primitive type t to its wrapper value.
func toBoxed(t descriptor.Type, cell any) any {
	switch t.Sort() {
	case descriptor.Boolean:
		return cell.(int32) != 0
	case descriptor.Char:
		return uint16(cell.(int32))
	case descriptor.Byte:
		return int8(cell.(int32))
	case descriptor.Short:
		return int16(cell.(int32))
	}
	return cell
}

func boolCell(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// instanceOf reports whether v may be viewed as an instance of the class
// described by desc. null is an instance of every class.
func instanceOf(v any, t descriptor.Type) bool {
	if v == nil {
		return true
	}
	switch t.Sort() {
	case descriptor.Array:
		_, ok := v.(*Array)
		return ok
	case descriptor.Reference:
	default:
		return false
	}
	switch t.Name() {
	case "Boolean":
		_, ok := v.(bool)
		return ok
	case "Character":
		_, ok := v.(uint16)
		return ok
	case "Byte":
		_, ok := v.(int8)
		return ok
	case "Short":
		_, ok := v.(int16)
		return ok
	case "Integer":
		_, ok := v.(int32)
		return ok
	case "Float":
		_, ok := v.(float32)
		return ok
	case "Long":
		_, ok := v.(int64)
		return ok
	case "Double":
		_, ok := v.(float64)
		return ok
	case "String":
		_, ok := v.(string)
		return ok
	case "StringBuilder":
		_, ok := v.(*StringBuilder)
		return ok
	case "ExecutionContext":
		_, ok := v.(*runtime.ExecutionContext)
		return ok
	case "Throwable":
		_, ok := v.(error)
		return ok
	}
	return true
}

// scriptValues converts an Object[] argument to script values.
func scriptValues(v any) []runtime.Value {
	arr, ok := v.(*Array)
	if !ok || arr == nil {
		return nil
	}
	out := make([]runtime.Value, len(arr.Values))
	copy(out, arr.Values)
	return out
}

func stringValues(v any) []string {
	arr, ok := v.(*Array)
	if !ok || arr == nil {
		return nil
	}
	out := make([]string, len(arr.Values))
	for i, s := range arr.Values {
		out[i], _ = s.(string)
	}
	return out
}
