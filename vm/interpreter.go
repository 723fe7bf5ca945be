package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/compiler/emit"
	"github.com/chazu/esdraft/runtime"
)

// ---------------------------------------------------------------------------
// Frame: Execution state for a method invocation
// ---------------------------------------------------------------------------

// frame holds the operand stack and local variables of one activation.
// Long and double values take two cells; the second is a wideHalf marker.
type frame struct {
	method *Method
	locals []any
	stack  []any
}

func newFrame(m *Method, args []any) *frame {
	n := m.MaxLocals
	if n < len(args) {
		n = len(args)
	}
	f := &frame{method: m, locals: make([]any, n), stack: make([]any, 0, m.MaxStack)}
	copy(f.locals, args)
	return f
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pushWide(v any) { f.stack = append(f.stack, v, top) }

func (f *frame) pop() any {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack[n] = nil
	f.stack = f.stack[:n]
	return v
}

func (f *frame) popWide() any {
	f.pop()
	return f.pop()
}

func (f *frame) popInt() int32     { return f.pop().(int32) }
func (f *frame) popLong() int64    { return f.popWide().(int64) }
func (f *frame) popDouble() float64 { return f.popWide().(float64) }

// popN removes the top n cells and returns them in stack order.
func (f *frame) popN(n int) []any {
	base := len(f.stack) - n
	out := make([]any, n)
	copy(out, f.stack[base:])
	for i := base; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:base]
	return out
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// Native implements a library method. args holds one entry per declared
// parameter, receiver first; wide values are not followed by a marker.
// Results use the cell representation of the declared return type.
type Native func(args []any) (any, error)

func (p *Program) call(t *target, args []any) (any, error) {
	if t.native != nil {
		narrow := args[:0:0]
		for _, a := range args {
			if a != top {
				narrow = append(narrow, a)
			}
		}
		return t.native(narrow)
	}
	return p.run(t.method, args)
}

// Evaluate runs the program's script: the main unit's runtimeInfo method
// yields the script descriptor, which is then evaluated against cx.
func (p *Program) Evaluate(cx *runtime.ExecutionContext) (runtime.Value, error) {
	h, err := p.Handle(p.Main, "runtimeInfo")
	if err != nil {
		return nil, err
	}
	v, err := h.Invoke()
	if err != nil {
		return nil, err
	}
	si, ok := v.(*runtime.ScriptInfo)
	if !ok {
		return nil, fmt.Errorf("vm: %s.runtimeInfo returned %T", p.Main, v)
	}
	result, err := si.Evaluate(cx)
	if err != nil {
		return nil, err
	}
	return runtime.Trampoline(cx, result)
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

// run executes m with the given argument cells. Every invocation of a
// compiled method is a nested call of run.
func (p *Program) run(m *Method, args []any) (result any, err error) {
	f := newFrame(m, args)
	r := emit.NewReader(m.Code)
	opPC := 0

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &InternalError{Method: m.String(), PC: opPC, Err: fmt.Errorf("%v", rec)}
		}
	}()

	for {
		opPC = r.Position()
		op := r.ReadOpcode()
		var thrown error

		switch op {
		case emit.OpNop:

		// --- Stack operations ---

		case emit.OpPop:
			f.pop()
		case emit.OpPop2:
			f.pop()
			f.pop()
		case emit.OpDup:
			f.push(f.stack[len(f.stack)-1])
		case emit.OpDupX1:
			f.stack = dupX(f.stack, 1, 1)
		case emit.OpDupX2:
			f.stack = dupX(f.stack, 1, 2)
		case emit.OpDup2:
			f.stack = dupX(f.stack, 2, 0)
		case emit.OpDup2X1:
			f.stack = dupX(f.stack, 2, 1)
		case emit.OpDup2X2:
			f.stack = dupX(f.stack, 2, 2)
		case emit.OpSwap:
			n := len(f.stack)
			f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

		// --- Constants ---

		case emit.OpAconstNull:
			f.push(nil)
		case emit.OpIconst:
			f.push(r.ReadInt32())
		case emit.OpLconst:
			f.pushWide(r.ReadInt64())
		case emit.OpFconst:
			f.push(r.ReadFloat32())
		case emit.OpDconst:
			f.pushWide(r.ReadFloat64())
		case emit.OpLdc:
			l := p.mustConstant(m, r.ReadUint16())
			f.push(l.value)
		case emit.OpLdc2:
			l := p.mustConstant(m, r.ReadUint16())
			f.pushWide(l.value)

		// --- Locals ---

		case emit.OpLoad:
			f.push(f.locals[r.ReadUint16()])
		case emit.OpLoad2:
			f.pushWide(f.locals[r.ReadUint16()])
		case emit.OpStore:
			f.locals[r.ReadUint16()] = f.pop()
		case emit.OpStore2:
			slot := r.ReadUint16()
			f.locals[slot] = f.popWide()
			f.locals[slot+1] = top

		// --- Arithmetic ---

		case emit.OpIAdd:
			b, a := f.popInt(), f.popInt()
			f.push(a + b)
		case emit.OpISub:
			b, a := f.popInt(), f.popInt()
			f.push(a - b)
		case emit.OpIMul:
			b, a := f.popInt(), f.popInt()
			f.push(a * b)
		case emit.OpIXor:
			b, a := f.popInt(), f.popInt()
			f.push(a ^ b)
		case emit.OpINeg:
			f.push(-f.popInt())
		case emit.OpLAdd:
			b, a := f.popLong(), f.popLong()
			f.pushWide(a + b)
		case emit.OpLSub:
			b, a := f.popLong(), f.popLong()
			f.pushWide(a - b)
		case emit.OpLCmp:
			b, a := f.popLong(), f.popLong()
			f.push(compareLong(a, b))
		case emit.OpDAdd:
			b, a := f.popDouble(), f.popDouble()
			f.pushWide(a + b)
		case emit.OpDSub:
			b, a := f.popDouble(), f.popDouble()
			f.pushWide(a - b)
		case emit.OpDMul:
			b, a := f.popDouble(), f.popDouble()
			f.pushWide(a * b)
		case emit.OpDDiv:
			b, a := f.popDouble(), f.popDouble()
			f.pushWide(a / b)
		case emit.OpDRem:
			b, a := f.popDouble(), f.popDouble()
			f.pushWide(math.Mod(a, b))
		case emit.OpDNeg:
			f.pushWide(-f.popDouble())
		case emit.OpDCmpL:
			b, a := f.popDouble(), f.popDouble()
			f.push(compareDouble(a, b, -1))
		case emit.OpDCmpG:
			b, a := f.popDouble(), f.popDouble()
			f.push(compareDouble(a, b, 1))

		// --- Conversions ---

		case emit.OpI2L:
			f.pushWide(int64(f.popInt()))
		case emit.OpI2D:
			f.pushWide(float64(f.popInt()))
		case emit.OpL2I:
			f.push(int32(f.popLong()))
		case emit.OpL2D:
			f.pushWide(float64(f.popLong()))
		case emit.OpD2I:
			f.push(doubleToInt(f.popDouble()))
		case emit.OpD2L:
			f.pushWide(doubleToLong(f.popDouble()))
		case emit.OpF2D:
			f.pushWide(float64(f.pop().(float32)))
		case emit.OpD2F:
			f.push(float32(f.popDouble()))

		// --- Control flow ---

		case emit.OpGoto:
			r.Seek(int(r.ReadUint16()))
		case emit.OpIfEq, emit.OpIfNe, emit.OpIfLt, emit.OpIfGe, emit.OpIfGt, emit.OpIfLe:
			target := int(r.ReadUint16())
			if compareZero(op, f.popInt()) {
				r.Seek(target)
			}
		case emit.OpIfICmpEq, emit.OpIfICmpNe, emit.OpIfICmpLt, emit.OpIfICmpGe:
			target := int(r.ReadUint16())
			b, a := f.popInt(), f.popInt()
			if compareInts(op, a, b) {
				r.Seek(target)
			}
		case emit.OpIfACmpEq, emit.OpIfACmpNe:
			target := int(r.ReadUint16())
			b, a := f.pop(), f.pop()
			if (a == b) == (op == emit.OpIfACmpEq) {
				r.Seek(target)
			}
		case emit.OpIfNull, emit.OpIfNonNull:
			target := int(r.ReadUint16())
			if (f.pop() == nil) == (op == emit.OpIfNull) {
				r.Seek(target)
			}

		// --- Returns ---

		case emit.OpReturn:
			return nil, nil
		case emit.OpReturnValue:
			return f.pop(), nil
		case emit.OpReturnWide:
			return f.popWide(), nil

		// --- Members ---

		case emit.OpInvokeStatic, emit.OpInvokeVirtual, emit.OpInvokeSpecial, emit.OpInvokeInterface:
			t := p.mustConstant(m, r.ReadUint16()).target
			args := f.popN(t.width)
			if t.receiver && args[0] == nil {
				thrown = runtime.Throw("TypeError: null receiver for " + t.desc.Name)
				break
			}
			v, err := p.call(t, args)
			if err != nil {
				thrown = err
				break
			}
			switch t.sig.Return.Width() {
			case 1:
				f.push(v)
			case 2:
				f.pushWide(v)
			}
		case emit.OpGetStatic:
			l := p.mustConstant(m, r.ReadUint16())
			if l.field.Type().Width() == 2 {
				f.pushWide(l.static)
			} else {
				f.push(l.static)
			}
		case emit.OpPutStatic:
			l := p.mustConstant(m, r.ReadUint16())
			panic("static field " + l.field.Key() + " is read-only")
		case emit.OpGetField:
			l := p.mustConstant(m, r.ReadUint16())
			obj := f.pop().(*Instance)
			v := obj.Fields[l.field.Name]
			if l.field.Type().Width() == 2 {
				f.pushWide(v)
			} else {
				f.push(v)
			}
		case emit.OpPutField:
			l := p.mustConstant(m, r.ReadUint16())
			var v any
			if l.field.Type().Width() == 2 {
				v = f.popWide()
			} else {
				v = f.pop()
			}
			obj := f.pop().(*Instance)
			obj.Fields[l.field.Name] = v

		// --- Objects and arrays ---

		case emit.OpNew:
			l := p.mustConstant(m, r.ReadUint16())
			f.push(newInstance(l.name))
		case emit.OpNewArray:
			l := p.mustConstant(m, r.ReadUint16())
			n := f.popInt()
			if n < 0 {
				panic(fmt.Sprintf("negative array size %d", n))
			}
			f.push(&Array{Elem: l.name, Values: make([]any, n)})
		case emit.OpArrayLoad:
			i := f.popInt()
			arr := f.pop().(*Array)
			f.push(arr.Values[i])
		case emit.OpArrayStore:
			v := f.pop()
			i := f.popInt()
			arr := f.pop().(*Array)
			arr.Values[i] = v
		case emit.OpArrayLength:
			f.push(int32(len(f.pop().(*Array).Values)))
		case emit.OpThrow:
			v := f.pop()
			if e, ok := v.(error); ok {
				thrown = e
			} else {
				thrown = runtime.Throw(v)
			}
		case emit.OpCheckCast:
			l := p.mustConstant(m, r.ReadUint16())
			if v := f.stack[len(f.stack)-1]; !instanceOf(v, l.class) {
				panic(fmt.Sprintf("cannot cast %T to %s", v, l.class))
			}

		default:
			panic(fmt.Sprintf("unknown opcode %s", op))
		}

		if thrown != nil {
			h, ok := m.handlerFor(opPC, thrown)
			if !ok {
				return nil, thrown
			}
			log.Debugf("%s: caught %v at %d, resuming at %d", m, thrown, opPC, h.Target)
			for i := range f.stack {
				f.stack[i] = nil
			}
			f.stack = append(f.stack[:0], thrown)
			r.Seek(h.Target)
		}
	}
}

func (p *Program) mustConstant(m *Method, k uint16) *linked {
	l, err := p.constant(m.Unit, constpool.Key(k))
	if err != nil {
		panic(err)
	}
	return l
}

// handlerFor returns the innermost handler covering pc that accepts err.
// Interpreter faults are never caught.
func (m *Method) handlerFor(pc int, err error) (code.Handler, bool) {
	var ie *InternalError
	if errors.As(err, &ie) {
		return code.Handler{}, false
	}
	for _, h := range m.Handlers {
		if pc < h.Start || pc >= h.End {
			continue
		}
		switch h.Type {
		case "", "Throwable":
			return h, true
		case "ScriptError":
			var se *runtime.ScriptError
			if errors.As(err, &se) {
				return h, true
			}
		}
	}
	return code.Handler{}, false
}

// dupX copies the top n cells and inserts the copy below the k cells
// beneath them.
func dupX(stack []any, n, k int) []any {
	size := len(stack)
	copied := make([]any, n)
	copy(copied, stack[size-n:])
	stack = append(stack, copied...)
	// shift the n+k cells up by n, then drop the copy into the gap
	copy(stack[size-n-k+n:], stack[size-n-k:size])
	copy(stack[size-n-k:], copied)
	return stack
}

func newInstance(class string) any {
	if class == "StringBuilder" {
		return &StringBuilder{}
	}
	return &Instance{Class: class, Fields: make(map[string]any)}
}

func compareLong(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareDouble(a, b float64, nan int32) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return nan
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareZero(op emit.Opcode, v int32) bool {
	switch op {
	case emit.OpIfEq:
		return v == 0
	case emit.OpIfNe:
		return v != 0
	case emit.OpIfLt:
		return v < 0
	case emit.OpIfGe:
		return v >= 0
	case emit.OpIfGt:
		return v > 0
	case emit.OpIfLe:
		return v <= 0
	}
	panic("not a compare-with-zero opcode")
}

func compareInts(op emit.Opcode, a, b int32) bool {
	switch op {
	case emit.OpIfICmpEq:
		return a == b
	case emit.OpIfICmpNe:
		return a != b
	case emit.OpIfICmpLt:
		return a < b
	case emit.OpIfICmpGe:
		return a >= b
	}
	panic("not an int compare opcode")
}

// doubleToInt converts with saturation; NaN converts to 0.
func doubleToInt(d float64) int32 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt32:
		return math.MaxInt32
	case d <= math.MinInt32:
		return math.MinInt32
	}
	return int32(d)
}

func doubleToLong(d float64) int64 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt64:
		return math.MaxInt64
	case d <= math.MinInt64:
		return math.MinInt64
	}
	return int64(d)
}
