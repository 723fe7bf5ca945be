// Package emit writes the body of one method: bytecode, a typed model of the
// operand stack, a scoped local-variable allocator, line and exception
// tables. An Emitter is single-use and not safe for concurrent use.
package emit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/compiler/descriptor"
)

// Size limits.
const (
	// MaxStringSize is the largest string, in UTF-8 bytes, loaded by a
	// single constant instruction.
	MaxStringSize = 16384
	// MaxMethodSize is the largest encodable method body in bytes.
	MaxMethodSize = 0xFFFF
)

// Option configures an Emitter.
type Option func(*Emitter)

// WithMaxStringSize overrides the per-constant string ceiling.
func WithMaxStringSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.maxString = n
		}
	}
}

// WithMaxMethodSize overrides the per-method byte ceiling.
func WithMaxMethodSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 && n <= MaxMethodSize {
			e.maxMethod = n
		}
	}
}

// Emitter emits the body of one method.
type Emitter struct {
	method *code.Method
	pool   constpool.Pool
	buf    []byte

	stack      []descriptor.Type
	stackUnits int
	maxStack   int
	dead       bool

	vars   *slotArena
	params []Variable

	lines    []code.LineEntry
	handlers []tryRegion
	locals   []code.LocalVar
	labels   []*Label

	maxString int
	maxMethod int
	state     int
}

const (
	stateNew = iota
	stateOpen
	stateDone
)

type tryRegion struct {
	start, end, handler *Label
	typ                 string
}

// New creates an emitter for m.
func New(m *code.Method, opts ...Option) *Emitter {
	e := &Emitter{
		method:    m,
		pool:      m.Pool(),
		buf:       make([]byte, 0, 64),
		vars:      newSlotArena(),
		maxString: MaxStringSize,
		maxMethod: MaxMethodSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Method returns the method being emitted.
func (e *Emitter) Method() *code.Method { return e.method }

// Begin reserves the receiver slot (for instance methods) and the parameter
// slots in calling-convention order.
func (e *Emitter) Begin() {
	if e.state != stateNew {
		panic(fmt.Sprintf("emit: Begin called twice for %s", e.method.Name()))
	}
	e.state = stateOpen
	if e.method.Access()&code.Static == 0 {
		e.declareParam("this", descriptor.Ref(e.method.Unit().Name()))
	}
	for i, p := range e.method.Signature().Params {
		e.params = append(e.params, e.declareParam(fmt.Sprintf("arg%d", i), p))
	}
}

func (e *Emitter) declareParam(name string, t descriptor.Type) Variable {
	v := e.vars.alloc(name, t, false, 0)
	e.vars.record(v).assigned = true
	return v
}

// Parameter returns the variable holding the i-th declared parameter.
func (e *Emitter) Parameter(i int) Variable {
	return e.params[i]
}

// End checks that the body is complete and commits it to the method.
func (e *Emitter) End() {
	e.checkOpen()
	if e.vars.depth() != 0 {
		panic(fmt.Sprintf("emit: %s ended with %d open scope(s)", e.method.Name(), e.vars.depth()))
	}
	if !e.dead {
		panic(fmt.Sprintf("emit: control falls off the end of %s", e.method.Name()))
	}
	for _, l := range e.labels {
		if !l.resolved {
			panic(fmt.Sprintf("emit: unresolved label in %s", e.method.Name()))
		}
	}
	if len(e.buf) > e.maxMethod {
		panic(fmt.Sprintf("emit: %s is %d bytes, limit %d", e.method.Name(), len(e.buf), e.maxMethod))
	}
	e.retire(e.vars.retireFrom(0))
	var handlers []code.Handler
	for _, h := range e.handlers {
		handlers = append(handlers, code.Handler{
			Start:  h.start.position,
			End:    h.end.position,
			Target: h.handler.position,
			Type:   h.typ,
		})
	}
	e.method.Commit(code.Body{
		Code:      e.buf,
		MaxLocals: e.vars.max,
		MaxStack:  e.maxStack,
		Lines:     e.lines,
		Handlers:  handlers,
		Locals:    e.locals,
	})
	e.state = stateDone
}

func (e *Emitter) checkOpen() {
	switch e.state {
	case stateNew:
		panic("emit: emitting before Begin")
	case stateDone:
		panic(fmt.Sprintf("emit: emitting into %s after End", e.method.Name()))
	}
}

// Len returns the current code length in bytes.
func (e *Emitter) Len() int { return len(e.buf) }

// Reachable reports whether the next instruction can be reached by
// fall-through or a resolved jump.
func (e *Emitter) Reachable() bool { return !e.dead }

// StackDepth returns the operand stack depth in units.
func (e *Emitter) StackDepth() int { return e.stackUnits }

// ---------------------------------------------------------------------------
// Raw encoding
// ---------------------------------------------------------------------------

func (e *Emitter) op(op Opcode) {
	e.checkOpen()
	if e.dead {
		panic(fmt.Sprintf("emit: unreachable %s in %s", op, e.method.Name()))
	}
	e.buf = append(e.buf, byte(op))
}

func (e *Emitter) opU16(op Opcode, operand uint16) {
	e.op(op)
	e.buf = append(e.buf, byte(operand), byte(operand>>8))
}

func (e *Emitter) opU32(op Opcode, operand uint32) {
	e.op(op)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, operand)
}

func (e *Emitter) opU64(op Opcode, operand uint64) {
	e.op(op)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, operand)
}

func (e *Emitter) opKey(op Opcode, c constpool.Constant) {
	e.opU16(op, uint16(e.pool.Intern(c)))
}

// ---------------------------------------------------------------------------
// Operand stack model
// ---------------------------------------------------------------------------

func (e *Emitter) push(ts ...descriptor.Type) {
	for _, t := range ts {
		if t.Width() == 0 {
			continue
		}
		e.stack = append(e.stack, t)
		e.stackUnits += t.Width()
	}
	if e.stackUnits > e.maxStack {
		e.maxStack = e.stackUnits
	}
}

func (e *Emitter) popAny() descriptor.Type {
	if len(e.stack) == 0 {
		panic(fmt.Sprintf("emit: operand stack underflow in %s at %d", e.method.Name(), len(e.buf)))
	}
	t := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	e.stackUnits -= t.Width()
	return t
}

// pop removes the top value, which must be compatible with want.
func (e *Emitter) pop(want descriptor.Type) descriptor.Type {
	got := e.popAny()
	if !compatible(want, got) {
		panic(fmt.Sprintf("emit: expected %s on stack, found %s in %s at %d", want, got, e.method.Name(), len(e.buf)))
	}
	return got
}

// take removes exactly n stack units and returns them bottom-first. A wide
// value straddling the boundary is a contract violation.
func (e *Emitter) take(n int) []descriptor.Type {
	var out []descriptor.Type
	for n > 0 {
		t := e.popAny()
		n -= t.Width()
		out = append([]descriptor.Type{t}, out...)
	}
	if n < 0 {
		panic(fmt.Sprintf("emit: stack operation splits a wide value in %s at %d", e.method.Name(), len(e.buf)))
	}
	return out
}

func (e *Emitter) peek() descriptor.Type {
	if len(e.stack) == 0 {
		panic("emit: peek on empty operand stack")
	}
	return e.stack[len(e.stack)-1]
}

// compatible reports whether a value of type got may be used where want is
// expected: widths must match exactly and references never mix with
// primitives.
func compatible(want, got descriptor.Type) bool {
	if want.Width() != got.Width() || want.IsReference() != got.IsReference() {
		return false
	}
	if want.IsPrimitive() {
		return category(want) == category(got)
	}
	return true
}

func category(t descriptor.Type) descriptor.Sort {
	switch t.Sort() {
	case descriptor.Boolean, descriptor.Char, descriptor.Byte, descriptor.Short, descriptor.Int:
		return descriptor.Int
	}
	return t.Sort()
}

func (e *Emitter) snapshot() []descriptor.Type {
	s := make([]descriptor.Type, len(e.stack))
	copy(s, e.stack)
	return s
}

func (e *Emitter) restore(s []descriptor.Type) {
	e.stack = append(e.stack[:0], s...)
	e.stackUnits = 0
	for _, t := range s {
		e.stackUnits += t.Width()
	}
}

// terminate marks the current position unreachable.
func (e *Emitter) terminate() {
	e.dead = true
	e.restore(nil)
}

// ---------------------------------------------------------------------------
// Stack shuffling
// ---------------------------------------------------------------------------

func (e *Emitter) Nop() { e.op(OpNop) }

// Pop discards a value of type t.
func (e *Emitter) Pop(t descriptor.Type) {
	switch t.Width() {
	case 0:
	case 1:
		e.op(OpPop)
		e.pop(t)
	case 2:
		e.op(OpPop2)
		e.pop(t)
	}
}

// Dup duplicates the top value, which has type t.
func (e *Emitter) Dup(t descriptor.Type) {
	switch t.Width() {
	case 1:
		e.rawDup(OpDup, 1, 0)
	case 2:
		e.rawDup(OpDup2, 2, 0)
	default:
		panic("emit: dup of void")
	}
	if top := e.peek(); !compatible(t, top) {
		panic(fmt.Sprintf("emit: dup of %s, found %s", t, top))
	}
}

// DupX duplicates the top value (type top) and inserts the copy below the
// value beneath it (type under).
func (e *Emitter) DupX(top, under descriptor.Type) {
	switch {
	case top.Width() == 1 && under.Width() == 1:
		e.rawDup(OpDupX1, 1, 1)
	case top.Width() == 1 && under.Width() == 2:
		e.rawDup(OpDupX2, 1, 2)
	case top.Width() == 2 && under.Width() == 1:
		e.rawDup(OpDup2X1, 2, 1)
	case top.Width() == 2 && under.Width() == 2:
		e.rawDup(OpDup2X2, 2, 2)
	default:
		panic(fmt.Sprintf("emit: dupX(%s, %s)", top, under))
	}
}

// rawDup emits a dup-family instruction copying n units over k units.
func (e *Emitter) rawDup(op Opcode, n, k int) {
	e.op(op)
	a := e.take(n)
	b := e.take(k)
	e.push(a...)
	e.push(b...)
	e.push(a...)
}

// Swap exchanges the top value (type top) with the value below it (type
// under).
func (e *Emitter) Swap(top, under descriptor.Type) {
	switch {
	case top.Width() == 1 && under.Width() == 1:
		e.op(OpSwap)
		a := e.take(1)
		b := e.take(1)
		e.push(a...)
		e.push(b...)
	case top.Width() == 1 && under.Width() == 2:
		e.DupX(top, under)
		e.Pop(top)
	case top.Width() == 2 && under.Width() == 1:
		e.DupX(top, under)
		e.Pop(top)
	case top.Width() == 2 && under.Width() == 2:
		e.DupX(top, under)
		e.Pop(top)
	default:
		panic(fmt.Sprintf("emit: swap(%s, %s)", top, under))
	}
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// AconstNull pushes a null reference.
func (e *Emitter) AconstNull() {
	e.op(OpAconstNull)
	e.push(descriptor.Object)
}

// Iconst pushes an int.
func (e *Emitter) Iconst(v int32) {
	e.opU32(OpIconst, uint32(v))
	e.push(descriptor.IntType)
}

// Bconst pushes a boolean as an int.
func (e *Emitter) Bconst(v bool) {
	var i uint32
	if v {
		i = 1
	}
	e.opU32(OpIconst, i)
	e.push(descriptor.BooleanType)
}

// Lconst pushes a long; values other than 0 and 1 go through the pool.
func (e *Emitter) Lconst(v int64) {
	if v == 0 || v == 1 {
		e.opU64(OpLconst, uint64(v))
	} else {
		e.opKey(OpLdc2, constpool.Long(v))
	}
	e.push(descriptor.LongType)
}

// Fconst pushes a float.
func (e *Emitter) Fconst(v float32) {
	e.opU32(OpFconst, math.Float32bits(v))
	e.push(descriptor.FloatType)
}

// Dconst pushes a double; values other than +0 and 1 go through the pool.
func (e *Emitter) Dconst(v float64) {
	if (v == 0 && !math.Signbit(v)) || v == 1 {
		e.opU64(OpDconst, math.Float64bits(v))
	} else {
		e.opKey(OpLdc2, constpool.Double(v))
	}
	e.push(descriptor.DoubleType)
}

// Aconst pushes a string. Strings longer than the per-constant ceiling are
// assembled at run time from pieces with a StringBuilder.
func (e *Emitter) Aconst(s string) {
	if len(s) <= e.maxString {
		e.opKey(OpLdc, constpool.String(s))
		e.push(descriptor.String)
		return
	}
	e.New(descriptor.StringBuilder.Name())
	e.Dup(descriptor.StringBuilder)
	e.Invoke(sbInit)
	for _, part := range SplitString(s, e.maxString) {
		e.opKey(OpLdc, constpool.String(part))
		e.push(descriptor.String)
		e.Invoke(sbAppend)
	}
	e.Invoke(sbToString)
}

var (
	sbInit = descriptor.NewMethod(descriptor.Special, "StringBuilder", "<init>",
		descriptor.MethodType(descriptor.VoidType))
	sbAppend = descriptor.NewMethod(descriptor.Virtual, "StringBuilder", "append",
		descriptor.MethodType(descriptor.StringBuilder, descriptor.String))
	sbToString = descriptor.NewMethod(descriptor.Virtual, "StringBuilder", "toString",
		descriptor.MethodType(descriptor.String))
)

// ClassConst pushes a class reference.
func (e *Emitter) ClassConst(name string) {
	e.opKey(OpLdc, constpool.Class(name))
	e.push(descriptor.Ref("Class"))
}

// Handle pushes a method handle for m.
func (e *Emitter) Handle(m descriptor.MethodDesc) {
	e.opKey(OpLdc, constpool.Handle(m))
	e.push(descriptor.MethodHandle)
}

// ---------------------------------------------------------------------------
// Locals
// ---------------------------------------------------------------------------

// EnterScope opens a lexical region for variables.
func (e *Emitter) EnterScope() {
	e.checkOpen()
	e.vars.enter()
}

// ExitScope retires every variable declared since the matching EnterScope.
func (e *Emitter) ExitScope() {
	e.checkOpen()
	e.retire(e.vars.exit())
}

func (e *Emitter) retire(rs []*varRecord) {
	for _, r := range rs {
		if r.v.Name != "" && !r.scratch {
			e.locals = append(e.locals, code.LocalVar{
				Name:  r.v.Name,
				Desc:  r.v.Type.Descriptor(),
				Slot:  r.v.Slot,
				Start: r.start,
				End:   len(e.buf),
			})
		}
	}
}

// NewVariable declares a named variable in the current scope.
func (e *Emitter) NewVariable(name string, t descriptor.Type) Variable {
	e.checkOpen()
	if name == "" {
		panic("emit: NewVariable requires a name")
	}
	return e.vars.alloc(name, t, false, len(e.buf))
}

// NewScratchVariable declares an anonymous temporary, which must be
// released with FreeVariable.
func (e *Emitter) NewScratchVariable(t descriptor.Type) Variable {
	e.checkOpen()
	return e.vars.alloc("", t, true, len(e.buf))
}

// FreeVariable releases a scratch variable.
func (e *Emitter) FreeVariable(v Variable) {
	r := e.vars.record(v)
	if !r.scratch {
		panic(fmt.Sprintf("emit: FreeVariable of non-scratch %v", v))
	}
	if !r.alive {
		panic(fmt.Sprintf("emit: FreeVariable of dead %v", v))
	}
	e.vars.release(r)
}

// LiveVariables returns the variables currently holding slots.
func (e *Emitter) LiveVariables() []Variable { return e.vars.live() }

// MaxLocals returns the frame size in slots so far.
func (e *Emitter) MaxLocals() int { return e.vars.max }

// Load pushes the value of v.
func (e *Emitter) Load(v Variable) {
	r := e.vars.record(v)
	if !r.alive {
		panic(fmt.Sprintf("emit: load of retired variable %v", v))
	}
	if !r.assigned {
		panic(fmt.Sprintf("emit: load of unassigned variable %v", v))
	}
	if v.Type.Width() == 2 {
		e.opU16(OpLoad2, uint16(v.Slot))
	} else {
		e.opU16(OpLoad, uint16(v.Slot))
	}
	e.push(v.Type)
}

// Store pops the top value into v.
func (e *Emitter) Store(v Variable) {
	r := e.vars.record(v)
	if !r.alive {
		panic(fmt.Sprintf("emit: store to retired variable %v", v))
	}
	if v.Type.Width() == 2 {
		e.opU16(OpStore2, uint16(v.Slot))
	} else {
		e.opU16(OpStore, uint16(v.Slot))
	}
	e.pop(v.Type)
	r.assigned = true
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// Invoke emits the invocation instruction selected by m.Kind.
func (e *Emitter) Invoke(m descriptor.MethodDesc) {
	var op Opcode
	switch m.Kind {
	case descriptor.Static:
		op = OpInvokeStatic
	case descriptor.Virtual:
		op = OpInvokeVirtual
	case descriptor.Special:
		op = OpInvokeSpecial
	case descriptor.Interface:
		op = OpInvokeInterface
	default:
		panic(fmt.Sprintf("emit: unknown method kind %v", m.Kind))
	}
	sig := m.Signature()
	e.opKey(op, constpool.Method(m))
	for i := len(sig.Params) - 1; i >= 0; i-- {
		e.pop(sig.Params[i])
	}
	if m.Kind.HasReceiver() {
		e.pop(descriptor.Ref(m.Owner))
	}
	e.push(sig.Return)
}

// Get pushes the value of field f.
func (e *Emitter) Get(f descriptor.FieldDesc) {
	switch f.Kind {
	case descriptor.StaticField:
		e.opKey(OpGetStatic, constpool.Field(f))
	case descriptor.InstanceField:
		e.opKey(OpGetField, constpool.Field(f))
		e.pop(descriptor.Ref(f.Owner))
	default:
		panic(fmt.Sprintf("emit: unknown field kind %v", f.Kind))
	}
	e.push(f.Type())
}

// Put pops a value into field f.
func (e *Emitter) Put(f descriptor.FieldDesc) {
	switch f.Kind {
	case descriptor.StaticField:
		e.opKey(OpPutStatic, constpool.Field(f))
		e.pop(f.Type())
	case descriptor.InstanceField:
		e.opKey(OpPutField, constpool.Field(f))
		e.pop(f.Type())
		e.pop(descriptor.Ref(f.Owner))
	default:
		panic(fmt.Sprintf("emit: unknown field kind %v", f.Kind))
	}
}

// ---------------------------------------------------------------------------
// Objects and arrays
// ---------------------------------------------------------------------------

// New allocates an uninitialized instance of class.
func (e *Emitter) New(class string) {
	e.opKey(OpNew, constpool.Class(class))
	e.push(descriptor.Ref(class))
}

// NewArray pops a length and pushes a new array of elem.
func (e *Emitter) NewArray(elem descriptor.Type) {
	if !elem.IsReference() {
		panic("emit: only reference arrays are supported, got " + elem.String())
	}
	e.opKey(OpNewArray, constpool.Class(elem.Descriptor()))
	e.pop(descriptor.IntType)
	e.push(descriptor.ArrayOf(elem))
}

// NewArrayOf pushes a new array of elem with length n.
func (e *Emitter) NewArrayOf(n int, elem descriptor.Type) {
	e.Iconst(int32(n))
	e.NewArray(elem)
}

// ArrayLoad pops an index and an array of elem and pushes the element.
func (e *Emitter) ArrayLoad(elem descriptor.Type) {
	e.op(OpArrayLoad)
	e.pop(descriptor.IntType)
	e.pop(descriptor.ArrayOf(elem))
	e.push(elem)
}

// ArrayStore pops a value, an index and an array.
func (e *Emitter) ArrayStore(elem descriptor.Type) {
	e.op(OpArrayStore)
	e.pop(elem)
	e.pop(descriptor.IntType)
	e.pop(descriptor.ArrayOf(elem))
}

// AStore stores s at index i of the string array on top of the stack,
// leaving the array in place.
func (e *Emitter) AStore(i int, s string) {
	e.Dup(descriptor.StringArray)
	e.Iconst(int32(i))
	e.Aconst(s)
	e.ArrayStore(descriptor.String)
}

// ArrayLength replaces an array with its length.
func (e *Emitter) ArrayLength() {
	e.op(OpArrayLength)
	if t := e.popAny(); t.Sort() != descriptor.Array {
		panic("emit: ArrayLength of " + t.String())
	}
	e.push(descriptor.IntType)
}

// CheckCast narrows the reference on top of the stack to class.
func (e *Emitter) CheckCast(t descriptor.Type) {
	e.opKey(OpCheckCast, constpool.Class(t.Descriptor()))
	e.pop(descriptor.Object)
	e.push(t)
}

// Throw throws the reference on top of the stack.
func (e *Emitter) Throw() {
	e.op(OpThrow)
	e.pop(descriptor.Object)
	e.terminate()
}

// Return returns from the method with a value of its declared return type.
func (e *Emitter) Return() {
	ret := e.method.Signature().Return
	switch ret.Width() {
	case 0:
		e.op(OpReturn)
	case 1:
		e.op(OpReturnValue)
		e.pop(ret)
	case 2:
		e.op(OpReturnWide)
		e.pop(ret)
	}
	if e.stackUnits != 0 {
		panic(fmt.Sprintf("emit: return from %s with %d unit(s) left on the stack", e.method.Name(), e.stackUnits))
	}
	e.terminate()
}
