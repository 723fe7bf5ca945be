package descriptor

import "testing"

func TestTypeWidth(t *testing.T) {
	tests := []struct {
		typ  Type
		want int
	}{
		{VoidType, 0},
		{BooleanType, 1},
		{IntType, 1},
		{FloatType, 1},
		{LongType, 2},
		{DoubleType, 2},
		{Object, 1},
		{StringArray, 1},
	}
	for _, tt := range tests {
		if got := tt.typ.Width(); got != tt.want {
			t.Errorf("%s.Width() = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestSignatureParse(t *testing.T) {
	sig := MethodType(Object, ExecutionContext, DoubleType, ObjectArray, IntType)
	desc := sig.String()
	if desc != "(LExecutionContext;D[LObject;I)LObject;" {
		t.Fatalf("String() = %q", desc)
	}
	parsed, err := ParseSignature(desc)
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if parsed.String() != desc {
		t.Errorf("reparsed = %q, want %q", parsed.String(), desc)
	}
	if got := parsed.ArgWidth(); got != 5 {
		t.Errorf("ArgWidth() = %d, want 5", got)
	}
}

func TestParseSignatureErrors(t *testing.T) {
	for _, bad := range []string{"", "I)V", "(I", "(V)V", "(Lfoo)V", "(I)Q", "(I)VV"} {
		if _, err := ParseSignature(bad); err == nil {
			t.Errorf("ParseSignature(%q) succeeded, want error", bad)
		}
	}
}

func TestBoxedUnboxed(t *testing.T) {
	prims := []Type{BooleanType, CharType, ByteType, ShortType, IntType, FloatType, LongType, DoubleType}
	for _, p := range prims {
		boxed := p.Boxed()
		if !boxed.IsReference() {
			t.Errorf("%s.Boxed() = %s, not a reference", p, boxed)
		}
		back, ok := boxed.Unboxed()
		if !ok || back != p {
			t.Errorf("%s.Unboxed() = %s, %v; want %s", boxed, back, ok, p)
		}
	}
	if Object.Boxed() != Object {
		t.Errorf("Object.Boxed() changed the type")
	}
	if _, ok := Object.Unboxed(); ok {
		t.Errorf("Object.Unboxed() reported a primitive")
	}
}

func TestMethodDescValueSemantics(t *testing.T) {
	sig := MethodType(Object, ExecutionContext)
	a := NewMethod(Static, "#script", "init", sig)
	b := NewMethod(Static, "#script", "init", MethodType(Object, ExecutionContext))
	if a != b {
		t.Errorf("equal inputs produced unequal descriptors: %v vs %v", a, b)
	}
	if got := a.ArgWidth(); got != 1 {
		t.Errorf("static ArgWidth() = %d, want 1", got)
	}
	v := NewMethod(Virtual, "StringBuilder", "append", MethodType(StringBuilder, String))
	if got := v.ArgWidth(); got != 2 {
		t.Errorf("virtual ArgWidth() = %d, want 2", got)
	}
	if v.Key() != "StringBuilder.append" {
		t.Errorf("Key() = %q", v.Key())
	}
}

func TestArrayElem(t *testing.T) {
	nested := ArrayOf(ArrayOf(DoubleType))
	if nested.Descriptor() != "[[D" {
		t.Errorf("Descriptor() = %q, want [[D", nested.Descriptor())
	}
	if nested.Elem().Elem() != DoubleType {
		t.Errorf("Elem().Elem() = %v", nested.Elem().Elem())
	}
}
