package vm

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"testing/quick"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/compiler/emit"
	"github.com/chazu/esdraft/runtime"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func emitMethod(c *code.Code, name string, sig descriptor.Signature, body func(e *emit.Emitter), opts ...emit.Option) {
	m := c.NewMethod(code.Public|code.Static, name, sig)
	e := emit.New(m, opts...)
	e.Begin()
	body(e)
	e.End()
}

func link(t *testing.T, c *code.Code) *Program {
	t.Helper()
	ar, err := c.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	p, err := Link(ar)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	return p
}

func mustHandle(t *testing.T, p *Program, unit, name string) *Handle {
	t.Helper()
	h, err := p.Handle(unit, name)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func scriptRuntime(name string, ret descriptor.Type, params ...descriptor.Type) descriptor.MethodDesc {
	return descriptor.NewMethod(descriptor.Static, "ScriptRuntime", name, descriptor.MethodType(ret, params...))
}

// ---------------------------------------------------------------------------
// Boxing
// ---------------------------------------------------------------------------

func TestBoxingRoundTrip(t *testing.T) {
	prims := []descriptor.Type{
		descriptor.BooleanType, descriptor.CharType, descriptor.ByteType, descriptor.ShortType,
		descriptor.IntType, descriptor.FloatType, descriptor.LongType, descriptor.DoubleType,
	}
	c := code.New("#box", "", code.SourceInfo{})
	for _, pt := range prims {
		pt := pt
		emitMethod(c, "rt"+pt.Descriptor(), descriptor.MethodType(pt, pt), func(e *emit.Emitter) {
			e.Load(e.Parameter(0))
			e.ToBoxed(pt)
			tmp := e.NewScratchVariable(descriptor.Object)
			e.Store(tmp)
			e.Load(tmp)
			e.FreeVariable(tmp)
			e.ToUnboxed(pt)
			e.Return()
		})
	}
	p := link(t, c)
	rt := func(pt descriptor.Type) *Handle { return mustHandle(t, p, "#box", "rt"+pt.Descriptor()) }

	check := func(name string, f any) {
		t.Helper()
		if err := quick.Check(f, nil); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	z, ch, b, s := rt(descriptor.BooleanType), rt(descriptor.CharType), rt(descriptor.ByteType), rt(descriptor.ShortType)
	i, fl, l, d := rt(descriptor.IntType), rt(descriptor.FloatType), rt(descriptor.LongType), rt(descriptor.DoubleType)

	check("boolean", func(v bool) bool { got, err := z.Invoke(v); return err == nil && got == v })
	check("char", func(v uint16) bool { got, err := ch.Invoke(v); return err == nil && got == v })
	check("byte", func(v int8) bool { got, err := b.Invoke(v); return err == nil && got == v })
	check("short", func(v int16) bool { got, err := s.Invoke(v); return err == nil && got == v })
	check("int", func(v int32) bool { got, err := i.Invoke(v); return err == nil && got == v })
	check("long", func(v int64) bool { got, err := l.Invoke(v); return err == nil && got == v })
	float32Same := func(v float32) bool {
		got, err := fl.Invoke(v)
		g, ok := got.(float32)
		return err == nil && ok && math.Float32bits(g) == math.Float32bits(v)
	}
	float64Same := func(v float64) bool {
		got, err := d.Invoke(v)
		g, ok := got.(float64)
		return err == nil && ok && math.Float64bits(g) == math.Float64bits(v)
	}
	check("float", float32Same)
	check("double", float64Same)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.Copysign(0, -1), math.MaxFloat64} {
		if !float64Same(v) {
			t.Errorf("double round trip of %v changed bits", v)
		}
		if !float32Same(float32(v)) {
			t.Errorf("float round trip of %v changed bits", float32(v))
		}
	}
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

func TestSplitStringReassembled(t *testing.T) {
	long := strings.Repeat("héllo wörld ✓ ", 40)
	c := code.New("#str", "", code.SourceInfo{})
	emitMethod(c, "s", descriptor.MethodType(descriptor.String), func(e *emit.Emitter) {
		e.Aconst(long)
		e.Return()
	}, emit.WithMaxStringSize(16))
	p := link(t, c)

	got, err := mustHandle(t, p, "#str", "s").Invoke()
	if err != nil {
		t.Fatal(err)
	}
	if got != long {
		t.Errorf("reassembled string differs:\n got %q\nwant %q", got, long)
	}
}

// ---------------------------------------------------------------------------
// Calls and arithmetic
// ---------------------------------------------------------------------------

func buildSum(c *code.Code) {
	self := descriptor.NewMethod(descriptor.Static, "#rec", "sum",
		descriptor.MethodType(descriptor.IntType, descriptor.IntType))
	emitMethod(c, "sum", descriptor.MethodType(descriptor.IntType, descriptor.IntType), func(e *emit.Emitter) {
		n := e.Parameter(0)
		zero := e.NewLabel()
		e.Load(n)
		e.IfEq(zero)
		e.Load(n)
		e.Load(n)
		e.Iconst(1)
		e.ISub()
		e.Invoke(self)
		e.IAdd()
		e.Return()
		e.Mark(zero)
		e.Iconst(0)
		e.Return()
	})
}

func TestRecursiveStaticCall(t *testing.T) {
	c := code.New("#rec", "", code.SourceInfo{})
	buildSum(c)
	p := link(t, c)

	got, err := mustHandle(t, p, "#rec", "sum").Invoke(int32(1000))
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(500500) {
		t.Errorf("sum(1000) = %v, want 500500", got)
	}
}

func TestConcurrentExecution(t *testing.T) {
	c := code.New("#rec", "", code.SourceInfo{})
	buildSum(c)
	p := link(t, c)
	h := mustHandle(t, p, "#rec", "sum")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(n int32) {
			defer wg.Done()
			got, err := h.Invoke(n)
			if err != nil {
				errs <- err
				return
			}
			if got != n*(n+1)/2 {
				errs <- errors.New("wrong result")
			}
		}(int32(100 + g))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestWideArithmetic(t *testing.T) {
	c := code.New("#wide", "", code.SourceInfo{})
	emitMethod(c, "lsum", descriptor.MethodType(descriptor.LongType, descriptor.LongType, descriptor.LongType),
		func(e *emit.Emitter) {
			e.Load(e.Parameter(0))
			e.Load(e.Parameter(1))
			e.LAdd()
			e.Return()
		})
	emitMethod(c, "cmpg", descriptor.MethodType(descriptor.IntType, descriptor.DoubleType, descriptor.DoubleType),
		func(e *emit.Emitter) {
			e.Load(e.Parameter(0))
			e.Load(e.Parameter(1))
			e.DCmpG()
			e.Return()
		})
	emitMethod(c, "cmpl", descriptor.MethodType(descriptor.IntType, descriptor.DoubleType, descriptor.DoubleType),
		func(e *emit.Emitter) {
			e.Load(e.Parameter(0))
			e.Load(e.Parameter(1))
			e.DCmpL()
			e.Return()
		})
	emitMethod(c, "swap", descriptor.MethodType(descriptor.DoubleType, descriptor.IntType, descriptor.DoubleType),
		func(e *emit.Emitter) {
			// (i, d) -> d - i, built with a wide-over-narrow swap
			e.Load(e.Parameter(0))
			e.Load(e.Parameter(1))
			e.Swap(descriptor.DoubleType, descriptor.IntType)
			e.I2D()
			e.DSub()
			e.Return()
		})
	p := link(t, c)

	if got, err := mustHandle(t, p, "#wide", "lsum").Invoke(int64(1)<<40, int64(-3)); err != nil || got != int64(1)<<40-3 {
		t.Errorf("lsum = %v, %v", got, err)
	}
	cases := []struct {
		name string
		a, b float64
		want int32
	}{
		{"cmpg", 1, 2, -1},
		{"cmpg", 2, 1, 1},
		{"cmpg", 2, 2, 0},
		{"cmpg", math.NaN(), 1, 1},
		{"cmpl", math.NaN(), 1, -1},
		{"cmpl", 1, 2, -1},
	}
	for _, tc := range cases {
		got, err := mustHandle(t, p, "#wide", tc.name).Invoke(tc.a, tc.b)
		if err != nil || got != tc.want {
			t.Errorf("%s(%v, %v) = %v, %v; want %d", tc.name, tc.a, tc.b, got, err, tc.want)
		}
	}
	if got, err := mustHandle(t, p, "#wide", "swap").Invoke(int32(2), 7.5); err != nil || got != 5.5 {
		t.Errorf("swap = %v, %v; want 5.5", got, err)
	}
}

func TestDupX(t *testing.T) {
	cases := []struct {
		n, k int
		in   []any
		want []any
	}{
		{1, 1, []any{1, 2, 3}, []any{1, 3, 2, 3}},
		{1, 2, []any{1, 2, 3}, []any{3, 1, 2, 3}},
		{2, 0, []any{1, 2, 3}, []any{1, 2, 3, 2, 3}},
		{2, 1, []any{1, 2, 3}, []any{2, 3, 1, 2, 3}},
		{2, 2, []any{1, 2, 3, 4}, []any{3, 4, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := dupX(append([]any(nil), tc.in...), tc.n, tc.k)
		if len(got) != len(tc.want) {
			t.Errorf("dupX(%v, %d, %d) = %v, want %v", tc.in, tc.n, tc.k, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("dupX(%v, %d, %d) = %v, want %v", tc.in, tc.n, tc.k, got, tc.want)
				break
			}
		}
	}
}

func TestDoubleConversionsSaturate(t *testing.T) {
	if doubleToInt(math.NaN()) != 0 || doubleToInt(1e20) != math.MaxInt32 || doubleToInt(-1e20) != math.MinInt32 {
		t.Error("doubleToInt does not saturate")
	}
	if doubleToInt(-2.9) != -2 {
		t.Errorf("doubleToInt(-2.9) = %d, want -2", doubleToInt(-2.9))
	}
	if doubleToLong(math.Inf(1)) != math.MaxInt64 || doubleToLong(math.NaN()) != 0 {
		t.Error("doubleToLong does not saturate")
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

func buildThrower(c *code.Code, name string, catch bool) {
	exceptionValue := scriptRuntime("exceptionValue", descriptor.Object, descriptor.Throwable)
	emitMethod(c, name, descriptor.MethodType(descriptor.Object, descriptor.Object), func(e *emit.Emitter) {
		start, end, handler := e.NewLabel(), e.NewLabel(), e.NewLabel()
		e.Mark(start)
		e.Load(e.Parameter(0))
		e.Throw()
		e.Mark(end)
		e.AconstNull()
		e.Return()
		if catch {
			e.TryCatch(start, end, handler, "ScriptError")
			e.CatchHandler(handler, descriptor.Throwable)
			e.Invoke(exceptionValue)
			e.Return()
		} else {
			e.Mark(handler)
			e.AconstNull()
			e.Return()
		}
	})
}

func TestThrowCaughtByHandler(t *testing.T) {
	c := code.New("#exc", "", code.SourceInfo{})
	buildThrower(c, "caught", true)
	buildThrower(c, "uncaught", false)
	p := link(t, c)

	got, err := mustHandle(t, p, "#exc", "caught").Invoke("boom")
	if err != nil {
		t.Fatalf("caught: %v", err)
	}
	if got != "boom" {
		t.Errorf("caught = %v, want boom", got)
	}

	_, err = mustHandle(t, p, "#exc", "uncaught").Invoke("boom")
	var se *runtime.ScriptError
	if !errors.As(err, &se) || se.Value != "boom" {
		t.Errorf("uncaught error = %v, want script error carrying boom", err)
	}
}

func TestBadCastIsInternalError(t *testing.T) {
	c := code.New("#cast", "", code.SourceInfo{})
	emitMethod(c, "cast", descriptor.MethodType(descriptor.String, descriptor.Object), func(e *emit.Emitter) {
		e.Load(e.Parameter(0))
		e.CheckCast(descriptor.String)
		e.Return()
	})
	p := link(t, c)
	h := mustHandle(t, p, "#cast", "cast")

	if got, err := h.Invoke("ok"); err != nil || got != "ok" {
		t.Errorf("cast(ok) = %v, %v", got, err)
	}
	_, err := h.Invoke(int32(3))
	var ie *InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("cast(3) error = %v, want InternalError", err)
	}
	if ie.Method != "#cast.cast(LObject;)LString;" {
		t.Errorf("InternalError.Method = %q", ie.Method)
	}
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

func TestLinkRejectsUnknownNative(t *testing.T) {
	c := code.New("#bad", "", code.SourceInfo{})
	emitMethod(c, "m", descriptor.MethodType(descriptor.VoidType), func(e *emit.Emitter) {
		e.Invoke(scriptRuntime("noSuchOperation", descriptor.VoidType))
		e.Return()
	})
	ar, err := c.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	_, err = Link(ar)
	var le *LinkError
	if !errors.As(err, &le) {
		t.Fatalf("Link error = %v, want LinkError", err)
	}
	if le.Unit != "#bad" || !strings.Contains(le.Ref, "noSuchOperation") {
		t.Errorf("LinkError = %+v", le)
	}
}

func TestLinkRejectsDescriptorMismatch(t *testing.T) {
	c := code.New("#bad", "", code.SourceInfo{})
	emitMethod(c, "m", descriptor.MethodType(descriptor.VoidType), func(e *emit.Emitter) {
		e.Invoke(descriptor.NewMethod(descriptor.Static, "#bad", "m",
			descriptor.MethodType(descriptor.VoidType, descriptor.IntType)))
		e.Return()
	})
	ar, err := c.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Link(ar); err == nil {
		t.Fatal("expected link error for mismatched descriptor")
	}
}

func TestLinkResolvesAcrossUnits(t *testing.T) {
	c := code.New("#multi", "", code.SourceInfo{}, code.WithMethodLimit(1))
	target := descriptor.NewMethod(descriptor.Static, "#multi~1", "answer", descriptor.MethodType(descriptor.IntType))
	emitMethod(c, "entry", descriptor.MethodType(descriptor.IntType), func(e *emit.Emitter) {
		e.Invoke(target)
		e.Return()
	})
	emitMethod(c, "answer", descriptor.MethodType(descriptor.IntType), func(e *emit.Emitter) {
		e.Iconst(42)
		e.Return()
	})
	p := link(t, c)

	if n := len(p.Units()); n != 2 {
		t.Fatalf("units = %d, want 2", n)
	}
	got, err := mustHandle(t, p, "#multi", "entry").Invoke()
	if err != nil || got != int32(42) {
		t.Errorf("entry() = %v, %v; want 42", got, err)
	}
}

func TestStaticSentinels(t *testing.T) {
	c := code.New("#static", "", code.SourceInfo{})
	emitMethod(c, "undef", descriptor.MethodType(descriptor.Object), func(e *emit.Emitter) {
		e.Get(descriptor.NewField(descriptor.StaticField, "Undefined", "UNDEFINED", descriptor.Object))
		e.Return()
	})
	p := link(t, c)
	got, err := mustHandle(t, p, "#static", "undef").Invoke()
	if err != nil || got != runtime.Undefined {
		t.Errorf("undef() = %v, %v", got, err)
	}
}
