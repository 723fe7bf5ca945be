package vm

import (
	"errors"
	"testing"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/compiler/emit"
	"github.com/chazu/esdraft/runtime"
)

// Tail calls in compiled code: a countdown function whose body either
// returns a pending tail call or calls itself directly.

var getIdentifier = scriptRuntime("getIdentifier", descriptor.Object,
	descriptor.ExecutionContext, descriptor.String, descriptor.BooleanType)

var toNumber = scriptRuntime("toNumber", descriptor.DoubleType, descriptor.Object)

var bindParameter = scriptRuntime("bindParameter", descriptor.VoidType,
	descriptor.ExecutionContext, descriptor.String, descriptor.ObjectArray, descriptor.IntType)

var callDesc = scriptRuntime("call", descriptor.Object,
	descriptor.ExecutionContext, descriptor.Object, descriptor.Object, descriptor.ObjectArray)

var prepareTailCall = scriptRuntime("prepareTailCall", descriptor.Object,
	descriptor.ExecutionContext, descriptor.Object, descriptor.Object, descriptor.ObjectArray)

var undefinedField = descriptor.NewField(descriptor.StaticField, "Undefined", "UNDEFINED", descriptor.Object)

func buildCountdown(c *code.Code, tail bool) {
	emitMethod(c, "init", descriptor.MethodType(descriptor.VoidType, descriptor.ExecutionContext, descriptor.ObjectArray),
		func(e *emit.Emitter) {
			e.Load(e.Parameter(0))
			e.Aconst("n")
			e.Load(e.Parameter(1))
			e.Iconst(0)
			e.Invoke(bindParameter)
			e.Return()
		})
	emitMethod(c, "body", descriptor.MethodType(descriptor.Object, descriptor.ExecutionContext),
		func(e *emit.Emitter) {
			cx := e.Parameter(0)
			e.Load(cx)
			e.Aconst("n")
			e.Bconst(true)
			e.Invoke(getIdentifier)
			e.Invoke(toNumber)
			n := e.NewVariable("n", descriptor.DoubleType)
			e.Store(n)

			done := e.NewLabel()
			e.Load(n)
			e.Dconst(0)
			e.DCmpG()
			e.IfLe(done)

			e.Load(cx)
			e.Load(cx)
			e.Aconst("f")
			e.Bconst(true)
			e.Invoke(getIdentifier)
			e.Get(undefinedField)
			e.NewArrayOf(1, descriptor.Object)
			e.Dup(descriptor.ObjectArray)
			e.Iconst(0)
			e.Load(n)
			e.Dconst(1)
			e.DSub()
			e.ToBoxed(descriptor.DoubleType)
			e.ArrayStore(descriptor.Object)
			if tail {
				e.Invoke(prepareTailCall)
			} else {
				e.Invoke(callDesc)
			}
			e.Return()

			e.Mark(done)
			e.Aconst("done")
			e.Return()
		})
}

func countdown(t *testing.T, tail bool, n float64) (runtime.Value, error) {
	t.Helper()
	c := code.New("#countdown", "", code.SourceInfo{})
	buildCountdown(c, tail)
	p := link(t, c)

	realm := runtime.NewRealm()
	cx := realm.NewContext()
	info := &runtime.FunctionInfo{
		Name:   "f",
		Arity:  1,
		Flags:  runtime.FlagStrict,
		Params: []string{"n"},
		Init:   mustHandle(t, p, "#countdown", "init"),
		Body:   mustHandle(t, p, "#countdown", "body"),
	}
	fn := runtime.InstantiateFunction(cx, info)
	realm.Global.Set("f", fn)
	return fn.Call(cx, runtime.Undefined, n)
}

func TestTailCallRunsInConstantStack(t *testing.T) {
	got, err := countdown(t, true, 100000)
	if err != nil {
		t.Fatalf("countdown(100000): %v", err)
	}
	if got != "done" {
		t.Errorf("countdown(100000) = %v, want done", got)
	}
}

func TestNonTailRecursionHitsDepthLimit(t *testing.T) {
	if got, err := countdown(t, false, 100); err != nil || got != "done" {
		t.Fatalf("countdown(100) = %v, %v", got, err)
	}

	_, err := countdown(t, false, float64(runtime.MaxCallDepth+10))
	var se *runtime.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("deep non-tail recursion error = %v, want script error", err)
	}
	obj, ok := se.Value.(*runtime.Object)
	if !ok || obj.Get("name") != "RangeError" {
		t.Errorf("thrown value = %v, want RangeError", se.Value)
	}
}

func TestTailCallResultIsNotTrampolinedInsideBody(t *testing.T) {
	c := code.New("#countdown", "", code.SourceInfo{})
	buildCountdown(c, true)
	p := link(t, c)

	realm := runtime.NewRealm()
	cx := realm.NewContext()
	info := &runtime.FunctionInfo{
		Name: "f", Arity: 1, Flags: runtime.FlagStrict, Params: []string{"n"},
		Init: mustHandle(t, p, "#countdown", "init"),
		Body: mustHandle(t, p, "#countdown", "body"),
	}
	fn := runtime.InstantiateFunction(cx, info)
	realm.Global.Set("f", fn)

	result, err := fn.TailCall(cx, runtime.Undefined, float64(3))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.(*runtime.TailInvocation); !ok {
		t.Fatalf("TailCall result = %T, want pending invocation", result)
	}
	final, err := runtime.Trampoline(cx, result)
	if err != nil || final != "done" {
		t.Errorf("Trampoline = %v, %v", final, err)
	}
}
