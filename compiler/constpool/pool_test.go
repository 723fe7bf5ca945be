package constpool

import (
	"math"
	"sync"
	"testing"

	"github.com/chazu/esdraft/compiler/descriptor"
)

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestInternDeduplicates(t *testing.T) {
	p := NewInline(0, nil)
	a := p.Intern(String("hello"))
	b := p.Intern(Double(1.5))
	if p.Intern(String("hello")) != a {
		t.Errorf("string not deduplicated")
	}
	if p.Intern(Double(1.5)) != b {
		t.Errorf("double not deduplicated")
	}
	nan := p.Intern(Double(math.NaN()))
	if p.Intern(Double(math.NaN())) != nan {
		t.Errorf("NaN not deduplicated")
	}
	m := descriptor.NewMethod(descriptor.Static, "ScriptRuntime", "add",
		descriptor.MethodType(descriptor.Object, descriptor.Object, descriptor.Object))
	if p.Intern(Method(m)) == p.Intern(Handle(m)) {
		t.Errorf("method and handle constants share a key")
	}
	if got := len(p.Entries()); got != 5 {
		t.Errorf("len(Entries()) = %d, want 5", got)
	}
}

func TestCloseTwicePanics(t *testing.T) {
	p := NewInline(0, nil)
	p.Close()
	if !p.Closed() {
		t.Fatalf("Closed() = false after Close")
	}
	expectPanic(t, "inline close twice", p.Close)

	e := NewExtern()
	e.Close()
	expectPanic(t, "extern close twice", e.Close)
}

func TestInternAfterClosePanics(t *testing.T) {
	p := NewInline(0, nil)
	p.Intern(String("a"))
	p.Close()
	expectPanic(t, "intern after close", func() { p.Intern(String("a")) })

	e := NewExtern()
	e.Close()
	expectPanic(t, "extern intern after close", func() { e.Intern(Int(1)) })
}

func TestInlineSpillsToExtern(t *testing.T) {
	var extern *Extern
	calls := 0
	supplier := func() *Extern {
		calls++
		if extern == nil {
			extern = NewExtern()
		}
		return extern
	}
	p := NewInline(2, supplier)
	k1 := p.Intern(String("a"))
	k2 := p.Intern(String("b"))
	if k1.IsExtern() || k2.IsExtern() {
		t.Fatalf("first entries went to extern pool")
	}
	if calls != 0 {
		t.Fatalf("extern supplier called before overflow")
	}
	k3 := p.Intern(String("c"))
	if !k3.IsExtern() {
		t.Fatalf("overflow key %v is not extern", k3)
	}
	if p.Intern(String("c")) != k3 {
		t.Errorf("spilled constant not deduplicated")
	}
	c, err := Resolve(k3, p.Entries(), extern.Entries())
	if err != nil || c.Str != "c" {
		t.Errorf("Resolve(%v) = %v, %v", k3, c, err)
	}
}

func TestConcurrentIntern(t *testing.T) {
	e := NewExtern()
	var wg sync.WaitGroup
	keys := make([][]Key, 8)
	for g := range keys {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				keys[g] = append(keys[g], e.Intern(Int(int32(i))))
			}
		}(g)
	}
	wg.Wait()
	for g := 1; g < len(keys); g++ {
		for i := range keys[g] {
			if keys[g][i] != keys[0][i] {
				t.Fatalf("goroutine %d got key %v for %d, want %v", g, keys[g][i], i, keys[0][i])
			}
		}
	}
	if got := len(e.Entries()); got != 100 {
		t.Errorf("len(Entries()) = %d, want 100", got)
	}
}
