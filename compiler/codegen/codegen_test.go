package codegen

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/compiler/emit"
	"github.com/chazu/esdraft/compiler/parse"
	"github.com/chazu/esdraft/runtime"
	"github.com/chazu/esdraft/vm"
)

func compileScript(t *testing.T, src string, cfg Config) *code.Archive {
	t.Helper()
	s, err := parse.ParseScript(src, "test.js")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Analyze(s, cfg.Limits); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	c := code.New("Script_0", "", code.SourceInfo{File: "test.js"})
	g := New(c, cfg)
	if err := g.CompileScript(s); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ar, err := c.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return ar
}

func evaluate(t *testing.T, src string, cfg Config) (runtime.Value, error) {
	t.Helper()
	p, err := vm.Link(compileScript(t, src, cfg))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	return p.Evaluate(runtime.NewRealm().NewContext())
}

func mustEvaluate(t *testing.T, src string, cfg Config) runtime.Value {
	t.Helper()
	v, err := evaluate(t, src, cfg)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return v
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want runtime.Value
	}{
		{"arithmetic", "var x = 1; x + 2;", 3.0},
		{"completion skips declarations", "1; var y = 2;", 1.0},
		{"string concat", "'a' + 1;", "a1"},
		{"comparison", "var n = 3; n < 4;", true},
		{"numeric fast path", "2 * 3 - 1 >= 5;", true},
		{"NaN compares false", "var z = 0 / 0; z < 1;", false},
		{"logical yields operand", "var a = 0; a || 'fallback';", "fallback"},
		{"typeof unresolvable", "typeof missing;", "undefined"},
		{"void", "void 1;", runtime.Undefined},
		{"while", "var i = 0; while (i < 5) { i = i + 1; } i;", 5.0},
		{"if else", "var r; if (1 > 2) { r = 'a'; } else { r = 'b'; } r;", "b"},
		{"block let", "var r = 0; { let a = 1; a = a + 1; r = a; } r;", 2.0},
		{"closure", `
			function counter(n) { return function () { n = n + 1; return n; }; }
			var c = counter(1);
			c();
			c();`, 3.0},
		{"named function expression", `
			var f = function g(n) { if (n === 0) return 'done'; return g(n - 1); };
			f(3);`, "done"},
		{"arrow concise body", "var sq = (x) => x * x; sq(7);", 49.0},
		{"member access", `
			function Point(x) { this.x = x; }
			var p = new Point(4);
			p.x + p['x'];`, 8.0},
		{"template literal", "var n = 2; `a${n}b`;", "a2b"},
		{"try catch", "var r; try { throw 'boom'; } catch (e) { r = e; } r;", "boom"},
		{"catch restores environment", `
			var r = 'outer';
			try { { let shadow = 1; var peek = function () { return shadow; }; throw peek(); } }
			catch (e) { r = typeof shadow; }
			r;`, "undefined"},
		{"temporal dead zone", `
			var r;
			try { { let y = y; } } catch (e) { r = e.name; }
			r;`, "ReferenceError"},
		{"const assignment", `
			var r;
			try { { const k = 1; k = 2; } } catch (e) { r = e.name; }
			r;`, "TypeError"},
		{"strict return call inside try is caught", `
			'use strict';
			function g() { throw 'boom'; }
			function f() { try { return g(); } catch (e) { return 'caught'; } }
			f();`, "caught"},
		{"strict return call inside catch", `
			'use strict';
			function g() { throw 'boom'; }
			function h(x) { return x + '!'; }
			function f() { try { return g(); } catch (e) { return h(e); } }
			f();`, "boom!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustEvaluate(t, tt.src, Config{})
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestUncaughtThrow(t *testing.T) {
	_, err := evaluate(t, "throw 'nope';", Config{})
	var se *runtime.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *runtime.ScriptError", err)
	}
	if se.Value != "nope" {
		t.Errorf("thrown value = %#v", se.Value)
	}
}

func counterScript(n int) string {
	var b strings.Builder
	b.WriteString("var s = 0;\n")
	for i := 1; i < n; i++ {
		b.WriteString("s = s + 1;\n")
	}
	return b.String()
}

func TestScriptSplittingIsTransparent(t *testing.T) {
	for _, n := range []int{2, 299, 300, 301, 650} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			got := mustEvaluate(t, counterScript(n), Config{})
			if want := float64(n - 1); got != want {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func counterFunction(n int) string {
	var b strings.Builder
	b.WriteString("function f() {\nlet a = 0;\n")
	for i := 2; i < n; i++ {
		b.WriteString("a = a + 1;\n")
	}
	b.WriteString("return a;\n}\nf();\n")
	return b.String()
}

func TestFunctionSplittingIsTransparent(t *testing.T) {
	for _, n := range []int{3, 299, 300, 301, 650} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			got := mustEvaluate(t, counterFunction(n), Config{})
			if want := float64(n - 2); got != want {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestChunkedBodiesShareBindings(t *testing.T) {
	src := `
		function f() {
			let a = 1;
			function g() { return a; }
			a = a + 1;
			a = a + 1;
			a = a + 1;
			return g();
		}
		var r = f();
		r = r + 1;
		r;`
	cfg := Config{Limits: Limits{StatementsThreshold: 2}}
	if got := mustEvaluate(t, src, cfg); got != 5.0 {
		t.Errorf("got %v, want 5", got)
	}
}

func TestChunkMethodsAreEmitted(t *testing.T) {
	ar := compileScript(t, counterScript(301), Config{})
	p, err := vm.Link(ar)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"script_0", "script_1", "script", "runtimeInfo", "globalDeclarationInstantiation"} {
		found := false
		for _, u := range p.Units() {
			if _, ok := p.Method(u.Name, name); ok {
				found = true
			}
		}
		if !found {
			t.Errorf("method %s not emitted", name)
		}
	}
}

func TestStrictTailRecursion(t *testing.T) {
	src := `'use strict';
		function loop(n, acc) {
			if (n === 0) return acc;
			return loop(n - 1, acc + 1);
		}
		loop(100000, 0);`
	if got := mustEvaluate(t, src, Config{}); got != 100000.0 {
		t.Errorf("got %v, want 100000", got)
	}
}

func TestSloppyRecursionIsBounded(t *testing.T) {
	src := `
		function loop(n) { if (n === 0) return 0; return loop(n - 1); }
		loop(100000);`
	_, err := evaluate(t, src, Config{})
	var se *runtime.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want a RangeError", err)
	}
}

func TestTemplateCallSiteIsCached(t *testing.T) {
	src := `
		function tag(s) { return s; }
		function site() { return tag` + "`x${1}y`" + `; }
		site() === site();`
	if got := mustEvaluate(t, src, Config{}); got != true {
		t.Errorf("got %v, want true", got)
	}
}

func TestTemplateCallSiteStrings(t *testing.T) {
	src := `
		function tag(s, v) { return s[0] + v + s[1] + s.raw[1]; }
		tag` + "`a${'-'}b\\n`;"
	if got := mustEvaluate(t, src, Config{}); got != "a-b\nb\\n" {
		t.Errorf("got %q", got)
	}
}

func TestTemplateCompiledOnce(t *testing.T) {
	s, err := parse.ParseScript("function t(s) { return s; } t`a${1}b`; t`a${2}b`;", "t.js")
	if err != nil {
		t.Fatal(err)
	}
	first := s.Body[1].(*ast.ExpressionStatement).Expr.(*ast.TaggedTemplate)
	second := s.Body[2].(*ast.ExpressionStatement).Expr.(*ast.TaggedTemplate)
	second.Quasi = first.Quasi

	c := code.New("Script_0", "", code.SourceInfo{})
	g := New(c, Config{})
	if err := g.CompileScript(s); err != nil {
		t.Fatal(err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	ar, err := c.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	units, extern, err := ar.Decode()
	if err != nil {
		t.Fatal(err)
	}

	var templates []string
	refs := 0
	for _, u := range units {
		lookup := func(k constpool.Key) (constpool.Constant, bool) {
			table := u.Constants
			if k.IsExtern() {
				table = extern
			}
			if k.Index() >= len(table) {
				return constpool.Constant{}, false
			}
			return table[k.Index()], true
		}
		for _, m := range u.Methods {
			if strings.HasPrefix(m.Name, "template_") {
				templates = append(templates, m.Name)
			}
			refs += strings.Count(emit.Disassemble(m.Code, lookup), "Script_0.template_0(")
		}
	}
	if len(templates) != 1 || templates[0] != "template_0" {
		t.Errorf("template methods = %v, want [template_0]", templates)
	}
	if refs != 2 {
		t.Errorf("template_0 referenced %d time(s), want 2", refs)
	}
}

func TestCompileFunctionIsMemoized(t *testing.T) {
	fn, err := parse.ParseFunction("function add(a, b) { return a + b; }")
	if err != nil {
		t.Fatal(err)
	}
	c := code.New("Function_0", "", code.SourceInfo{})
	g := New(c, Config{})
	defer g.Close()
	first := g.CompileFunction(fn)
	if second := g.CompileFunction(fn); second != first {
		t.Errorf("second compile returned %s, want %s", second.Name(), first.Name())
	}
	if first.Name() != "add_1_info" {
		t.Errorf("info method = %s", first.Name())
	}
}

func TestEntryFunction(t *testing.T) {
	fn, err := parse.ParseFunction("function add(a, b) { return a + b; }")
	if err != nil {
		t.Fatal(err)
	}
	c := code.New("Function_0", "", code.SourceInfo{})
	g := New(c, Config{IncludeSource: true})
	if err := g.CompileEntryFunction(fn); err != nil {
		t.Fatal(err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	ar, err := c.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	p, err := vm.Link(ar)
	if err != nil {
		t.Fatal(err)
	}
	h, err := p.Handle(p.Main, "runtimeInfo")
	if err != nil {
		t.Fatal(err)
	}
	v, err := h.Invoke()
	if err != nil {
		t.Fatal(err)
	}
	info, ok := v.(*runtime.FunctionInfo)
	if !ok {
		t.Fatalf("runtimeInfo returned %T", v)
	}
	if info.Name != "add" || info.Arity != 2 {
		t.Errorf("info = %s/%d", info.Name, info.Arity)
	}
	cx := runtime.NewRealm().NewContext()
	f := runtime.InstantiateFunction(cx, info)
	got, err := f.Call(cx, runtime.Undefined, 2.0, 3.0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5.0 {
		t.Errorf("add(2, 3) = %v", got)
	}
	src, err := f.SourceText()
	if err != nil {
		t.Fatal(err)
	}
	if src != "function add(a, b) { return a + b; }" {
		t.Errorf("source = %q", src)
	}
}

func TestSourceOmittedByDefault(t *testing.T) {
	v := mustEvaluate(t, "function f() {} f;", Config{})
	f, ok := v.(*runtime.Function)
	if !ok {
		t.Fatalf("got %T", v)
	}
	if f.Info.Source != runtime.NoSource {
		t.Errorf("source retained: %q", f.Info.Source)
	}
}

func TestAnalyzeRejectsOversizedStatement(t *testing.T) {
	s, err := parse.ParseScript("f(1, 2, 3, 4, 5, 6, 7, 8, 9, 10);", "big.js")
	if err != nil {
		t.Fatal(err)
	}
	err = Analyze(s, Limits{MaxMethodSize: 100})
	var se *SizeError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SizeError", err)
	}
	if se.What != "statement" || se.Line != 1 || se.Limit != 100 {
		t.Errorf("got %+v", se)
	}
}

func TestAnalyzeChecksNestedFunctions(t *testing.T) {
	s, err := parse.ParseScript("var g = function () { return h(1, 2, 3, 4, 5, 6, 7, 8, 9, 10); };", "nested.js")
	if err != nil {
		t.Fatal(err)
	}
	var se *SizeError
	if err := Analyze(s, Limits{MaxMethodSize: 200}); !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SizeError", err)
	}
}

func TestAnalyzeAcceptsChunkedBodies(t *testing.T) {
	s, err := parse.ParseScript(counterScript(2000), "long.js")
	if err != nil {
		t.Fatal(err)
	}
	if err := Analyze(s, DefaultLimits()); err != nil {
		t.Errorf("analyze: %v", err)
	}
	// The same body in one method would not fit.
	err = Analyze(s, Limits{StatementsThreshold: 5000, MaxMethodSize: 4096})
	var se *SizeError
	if !errors.As(err, &se) || se.What != "body" {
		t.Errorf("err = %v, want body SizeError", err)
	}
}

func TestAnalyzeSizesDeclarationInstantiation(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8000; i++ {
		fmt.Fprintf(&b, "var v%d;\n", i)
	}
	s, err := parse.ParseScript(b.String(), "vars.js")
	if err != nil {
		t.Fatal(err)
	}
	var se *SizeError
	if err := Analyze(s, DefaultLimits()); !errors.As(err, &se) || se.What != "init" {
		t.Errorf("script: err = %v, want init SizeError", err)
	}

	params := make([]string, 4000)
	for i := range params {
		params[i] = fmt.Sprintf("p%d", i)
	}
	fn, err := parse.ParseFunction("function f(" + strings.Join(params, ", ") + ") {}")
	if err != nil {
		t.Fatal(err)
	}
	if err := Analyze(fn, DefaultLimits()); !errors.As(err, &se) || se.What != "init" {
		t.Errorf("function: err = %v, want init SizeError", err)
	}
}

func TestAnalyzeSizesFunctionInfo(t *testing.T) {
	// With one-byte string constants the compressed source is loaded
	// through thousands of builder appends.
	fn, err := parse.ParseFunction("function f() { return '" + strings.Repeat("x", 2000) + "'; }")
	if err != nil {
		t.Fatal(err)
	}
	var se *SizeError
	err = Analyze(fn, Limits{MaxMethodSize: 1000, MaxStringSize: 1})
	if !errors.As(err, &se) || se.What != "info" {
		t.Errorf("err = %v, want info SizeError", err)
	}
}

func TestAnalyzeSizesTemplateMethods(t *testing.T) {
	src := "function t(s) { return s; } t`" + strings.Repeat("${null}", 3300) + "`;"
	s, err := parse.ParseScript(src, "tpl.js")
	if err != nil {
		t.Fatal(err)
	}
	var se *SizeError
	if err := Analyze(s, DefaultLimits()); !errors.As(err, &se) || se.What != "template" || se.Line != 1 {
		t.Errorf("err = %v, want template SizeError on line 1", err)
	}

	// A short template still passes.
	s, err = parse.ParseScript("function t(s) { return s; } t`a${1}b`;", "tpl.js")
	if err != nil {
		t.Fatal(err)
	}
	if err := Analyze(s, DefaultLimits()); err != nil {
		t.Errorf("analyze: %v", err)
	}
}
