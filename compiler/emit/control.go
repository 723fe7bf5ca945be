package emit

import (
	"fmt"
	"unicode/utf8"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/descriptor"
)

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a jump target. It records the operand stack shape expected on
// arrival so control-flow merges can be checked.
type Label struct {
	resolved bool
	position int
	refs     []int
	stack    []descriptor.Type
	hasStack bool
}

// NewLabel creates an unresolved label owned by e.
func (e *Emitter) NewLabel() *Label {
	l := &Label{refs: make([]int, 0, 2)}
	e.labels = append(e.labels, l)
	return l
}

// Position returns the resolved offset of l.
func (l *Label) Position() int {
	if !l.resolved {
		panic("label not resolved")
	}
	return l.position
}

func (e *Emitter) arrive(l *Label) {
	if !l.hasStack {
		l.stack = e.snapshot()
		l.hasStack = true
		return
	}
	if !sameShape(l.stack, e.stack) {
		panic(fmt.Sprintf("emit: stack mismatch at label in %s: %v vs %v", e.method.Name(), l.stack, e.stack))
	}
}

func sameShape(a, b []descriptor.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !compatible(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Mark resolves a label to the current position.
func (e *Emitter) Mark(l *Label) {
	e.checkOpen()
	if l.resolved {
		panic("label already resolved")
	}
	if e.dead {
		e.dead = false
		e.restore(l.stack)
	}
	e.arrive(l)
	l.resolved = true
	l.position = len(e.buf)
	for _, ref := range l.refs {
		e.buf[ref] = byte(l.position)
		e.buf[ref+1] = byte(l.position >> 8)
	}
	l.refs = nil
}

// MarkRegion resolves a label that only bounds a try region. Unlike Mark
// it leaves reachability and the stack model untouched.
func (e *Emitter) MarkRegion(l *Label) {
	e.checkOpen()
	if l.resolved {
		panic("label already resolved")
	}
	if len(l.refs) > 0 {
		panic("emit: region label used as a jump target")
	}
	l.resolved = true
	l.position = len(e.buf)
}

func (e *Emitter) jump(op Opcode, l *Label) {
	e.op(op)
	if len(e.buf) > e.maxMethod {
		panic(fmt.Sprintf("emit: %s exceeds %d bytes", e.method.Name(), e.maxMethod))
	}
	if l.resolved {
		e.buf = append(e.buf, byte(l.position), byte(l.position>>8))
	} else {
		l.refs = append(l.refs, len(e.buf))
		e.buf = append(e.buf, 0, 0)
	}
}

// Goto jumps unconditionally to l.
func (e *Emitter) Goto(l *Label) {
	e.jump(OpGoto, l)
	e.arrive(l)
	e.terminate()
}

// IfEq pops an int and jumps to l if it is zero (false).
func (e *Emitter) IfEq(l *Label) { e.condJump(OpIfEq, l, descriptor.IntType) }

// IfNe pops an int and jumps to l if it is non-zero (true).
func (e *Emitter) IfNe(l *Label) { e.condJump(OpIfNe, l, descriptor.IntType) }

func (e *Emitter) IfLt(l *Label) { e.condJump(OpIfLt, l, descriptor.IntType) }
func (e *Emitter) IfGe(l *Label) { e.condJump(OpIfGe, l, descriptor.IntType) }
func (e *Emitter) IfGt(l *Label) { e.condJump(OpIfGt, l, descriptor.IntType) }
func (e *Emitter) IfLe(l *Label) { e.condJump(OpIfLe, l, descriptor.IntType) }

func (e *Emitter) IfICmpEq(l *Label) {
	e.condJump(OpIfICmpEq, l, descriptor.IntType, descriptor.IntType)
}

func (e *Emitter) IfICmpNe(l *Label) {
	e.condJump(OpIfICmpNe, l, descriptor.IntType, descriptor.IntType)
}

func (e *Emitter) IfICmpLt(l *Label) {
	e.condJump(OpIfICmpLt, l, descriptor.IntType, descriptor.IntType)
}

func (e *Emitter) IfICmpGe(l *Label) {
	e.condJump(OpIfICmpGe, l, descriptor.IntType, descriptor.IntType)
}

// IfACmpEq pops two references and jumps to l if they are identical.
func (e *Emitter) IfACmpEq(l *Label) {
	e.condJump(OpIfACmpEq, l, descriptor.Object, descriptor.Object)
}

func (e *Emitter) IfACmpNe(l *Label) {
	e.condJump(OpIfACmpNe, l, descriptor.Object, descriptor.Object)
}

func (e *Emitter) IfNull(l *Label)    { e.condJump(OpIfNull, l, descriptor.Object) }
func (e *Emitter) IfNonNull(l *Label) { e.condJump(OpIfNonNull, l, descriptor.Object) }

func (e *Emitter) condJump(op Opcode, l *Label, operands ...descriptor.Type) {
	e.jump(op, l)
	for i := len(operands) - 1; i >= 0; i-- {
		e.pop(operands[i])
	}
	e.arrive(l)
}

// ---------------------------------------------------------------------------
// Exception regions
// ---------------------------------------------------------------------------

// TryCatch registers handler for exceptions of class typ thrown between
// start and end. An empty typ catches everything.
func (e *Emitter) TryCatch(start, end, handler *Label, typ string) {
	e.checkOpen()
	e.handlers = append(e.handlers, tryRegion{start: start, end: end, handler: handler, typ: typ})
}

// CatchHandler marks handler as the entry of a catch block. The caught
// exception is on the operand stack.
func (e *Emitter) CatchHandler(handler *Label, exception descriptor.Type) {
	if !e.dead {
		panic("emit: catch handler reachable by fall-through")
	}
	if handler.hasStack {
		panic("emit: catch handler used as a jump target")
	}
	handler.stack = []descriptor.Type{exception}
	handler.hasStack = true
	e.Mark(handler)
}

// ---------------------------------------------------------------------------
// Line numbers
// ---------------------------------------------------------------------------

// LineInfo records that the following instructions belong to line.
// Consecutive markers for the same line are coalesced.
func (e *Emitter) LineInfo(line int) {
	if line <= 0 {
		return
	}
	if n := len(e.lines); n > 0 {
		last := &e.lines[n-1]
		if last.Line == line {
			return
		}
		if last.Offset == len(e.buf) {
			last.Line = line
			if n > 1 && e.lines[n-2].Line == line {
				e.lines = e.lines[:n-1]
			}
			return
		}
	}
	e.lines = append(e.lines, code.LineEntry{Offset: len(e.buf), Line: line})
}

// Lines returns the line table recorded so far.
func (e *Emitter) Lines() []code.LineEntry { return e.lines }

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (e *Emitter) binary(op Opcode, operand, result descriptor.Type) {
	e.op(op)
	e.pop(operand)
	e.pop(operand)
	e.push(result)
}

func (e *Emitter) unary(op Opcode, operand, result descriptor.Type) {
	e.op(op)
	e.pop(operand)
	e.push(result)
}

func (e *Emitter) IAdd() { e.binary(OpIAdd, descriptor.IntType, descriptor.IntType) }
func (e *Emitter) ISub() { e.binary(OpISub, descriptor.IntType, descriptor.IntType) }
func (e *Emitter) IMul() { e.binary(OpIMul, descriptor.IntType, descriptor.IntType) }
func (e *Emitter) IXor() { e.binary(OpIXor, descriptor.IntType, descriptor.IntType) }
func (e *Emitter) INeg() { e.unary(OpINeg, descriptor.IntType, descriptor.IntType) }
func (e *Emitter) LAdd() { e.binary(OpLAdd, descriptor.LongType, descriptor.LongType) }
func (e *Emitter) LSub() { e.binary(OpLSub, descriptor.LongType, descriptor.LongType) }
func (e *Emitter) LCmp() { e.binary(OpLCmp, descriptor.LongType, descriptor.IntType) }
func (e *Emitter) DAdd() { e.binary(OpDAdd, descriptor.DoubleType, descriptor.DoubleType) }
func (e *Emitter) DSub() { e.binary(OpDSub, descriptor.DoubleType, descriptor.DoubleType) }
func (e *Emitter) DMul() { e.binary(OpDMul, descriptor.DoubleType, descriptor.DoubleType) }
func (e *Emitter) DDiv() { e.binary(OpDDiv, descriptor.DoubleType, descriptor.DoubleType) }
func (e *Emitter) DRem() { e.binary(OpDRem, descriptor.DoubleType, descriptor.DoubleType) }
func (e *Emitter) DNeg() { e.unary(OpDNeg, descriptor.DoubleType, descriptor.DoubleType) }

// DCmpL compares two doubles; NaN compares as less.
func (e *Emitter) DCmpL() { e.binary(OpDCmpL, descriptor.DoubleType, descriptor.IntType) }

// DCmpG compares two doubles; NaN compares as greater.
func (e *Emitter) DCmpG() { e.binary(OpDCmpG, descriptor.DoubleType, descriptor.IntType) }

func (e *Emitter) I2L() { e.unary(OpI2L, descriptor.IntType, descriptor.LongType) }
func (e *Emitter) I2D() { e.unary(OpI2D, descriptor.IntType, descriptor.DoubleType) }
func (e *Emitter) L2I() { e.unary(OpL2I, descriptor.LongType, descriptor.IntType) }
func (e *Emitter) L2D() { e.unary(OpL2D, descriptor.LongType, descriptor.DoubleType) }
func (e *Emitter) D2I() { e.unary(OpD2I, descriptor.DoubleType, descriptor.IntType) }
func (e *Emitter) D2L() { e.unary(OpD2L, descriptor.DoubleType, descriptor.LongType) }
func (e *Emitter) F2D() { e.unary(OpF2D, descriptor.FloatType, descriptor.DoubleType) }
func (e *Emitter) D2F() { e.unary(OpD2F, descriptor.DoubleType, descriptor.FloatType) }

// Not flips a boolean.
func (e *Emitter) Not() {
	e.Iconst(1)
	e.IXor()
	e.pop(descriptor.IntType)
	e.push(descriptor.BooleanType)
}

// ---------------------------------------------------------------------------
// Boxing
// ---------------------------------------------------------------------------

var unboxNames = map[descriptor.Sort]string{
	descriptor.Boolean: "booleanValue",
	descriptor.Char:    "charValue",
	descriptor.Byte:    "byteValue",
	descriptor.Short:   "shortValue",
	descriptor.Int:     "intValue",
	descriptor.Float:   "floatValue",
	descriptor.Long:    "longValue",
	descriptor.Double:  "doubleValue",
}

// BoxMethod returns the static method converting a t to its wrapper type.
func BoxMethod(t descriptor.Type) descriptor.MethodDesc {
	boxed := t.Boxed()
	return descriptor.NewMethod(descriptor.Static, boxed.Name(), "valueOf", descriptor.MethodType(boxed, t))
}

// UnboxMethod returns the virtual method extracting a t from its wrapper.
func UnboxMethod(t descriptor.Type) descriptor.MethodDesc {
	return descriptor.NewMethod(descriptor.Virtual, t.Boxed().Name(), unboxNames[t.Sort()], descriptor.MethodType(t))
}

// ToBoxed converts a primitive t on top of the stack to its wrapper. It is
// a no-op for reference types.
func (e *Emitter) ToBoxed(t descriptor.Type) {
	if !t.IsPrimitive() {
		return
	}
	e.Invoke(BoxMethod(t))
}

// ToUnboxed converts the wrapper of t on top of the stack to a primitive t.
// It is a no-op for reference types.
func (e *Emitter) ToUnboxed(t descriptor.Type) {
	if !t.IsPrimitive() {
		return
	}
	if top := e.peek(); top != t.Boxed() {
		e.CheckCast(t.Boxed())
	}
	e.Invoke(UnboxMethod(t))
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// SplitString cuts s into pieces of at most max bytes without splitting a
// UTF-8 sequence.
func SplitString(s string, max int) []string {
	if max < utf8.UTFMax {
		max = utf8.UTFMax
	}
	var parts []string
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}
