package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/codegen"
	"github.com/chazu/esdraft/compiler/parse"
	"github.com/chazu/esdraft/runtime"
)

// Integration tests: compile and execute real scripts

func mustParse(t *testing.T, src string) *ast.Script {
	t.Helper()
	s, err := parse.ParseScript(src, "main.js")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return s
}

func TestIntegrationFactorial(t *testing.T) {
	s := mustParse(t, `
		function factorial(n) {
			if (n === 0) return 1;
			return n * factorial(n - 1);
		}
		factorial(5);`)
	cu, err := Compile(s, "Main", Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if cu.Name() != "#Main" {
		t.Errorf("Name() = %q, want #Main", cu.Name())
	}
	got, err := cu.Execute(runtime.NewRealm().NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if got != 120.0 {
		t.Errorf("factorial(5) = %v, want 120", got)
	}
}

func TestIntegrationNativeGlobals(t *testing.T) {
	s := mustParse(t, `
		var out = '';
		function emit(s) { out = out + s; }
		var i = 0;
		while (i < 3) { emit(i); i = i + 1; }
		report(out);`)
	cu, err := Compile(s, "Report", Options{})
	if err != nil {
		t.Fatal(err)
	}
	realm := runtime.NewRealm()
	var reported runtime.Value
	realm.Define("report", func(cx *runtime.ExecutionContext, this runtime.Value, args []runtime.Value) (runtime.Value, error) {
		reported = args[0]
		return runtime.Undefined, nil
	})
	if _, err := cu.Execute(realm.NewContext()); err != nil {
		t.Fatal(err)
	}
	if reported != "012" {
		t.Errorf("reported %#v, want \"012\"", reported)
	}
}

func TestExecuteFunctionUnit(t *testing.T) {
	fn, err := parse.ParseFunction("function twice(x) { 'use strict'; return x + x; }")
	if err != nil {
		t.Fatal(err)
	}
	cu, err := Compile(fn, "Twice", Options{IncludeSource: true})
	if err != nil {
		t.Fatal(err)
	}
	cx := runtime.NewRealm().NewContext()
	v, err := cu.Execute(cx)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := v.(*runtime.Function)
	if !ok {
		t.Fatalf("Execute returned %T, want *runtime.Function", v)
	}
	got, err := f.Call(cx, runtime.Undefined, "ab")
	if err != nil {
		t.Fatal(err)
	}
	if got != "abab" {
		t.Errorf("twice('ab') = %#v", got)
	}
	if !f.Info.Strict() {
		t.Error("function not strict")
	}
}

func TestExecuteIsConcurrentSafe(t *testing.T) {
	cu, err := Compile(mustParse(t, "var x = 20; x + 1;"), "Main", Options{})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cu.Execute(runtime.NewRealm().NewContext())
			if err == nil && v != 21.0 {
				err = fmt.Errorf("got %v", v)
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCompileRejectsUnknownTree(t *testing.T) {
	_, err := Compile(&ast.ExpressionStatement{}, "X", Options{})
	var ce *CompilationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CompilationError", err)
	}
}

func TestCompileReportsSizeErrors(t *testing.T) {
	s := mustParse(t, "f(1, 2, 3, 4, 5, 6, 7, 8, 9, 10);")
	_, err := Compile(s, "Big", Options{Limits: codegen.Limits{MaxMethodSize: 100}})
	var ce *CompilationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CompilationError", err)
	}
	var se *codegen.SizeError
	if !errors.As(err, &se) {
		t.Errorf("CompilationError does not wrap the SizeError: %v", err)
	}
}

func TestDebugListing(t *testing.T) {
	var out bytes.Buffer
	s := mustParse(t, "var r; try { r = 1; } catch (e) { r = e; } r;")
	cu, err := Compile(s, "Listed", Options{Flags: Debug | FullDebug, Output: &out})
	if err != nil {
		t.Fatal(err)
	}
	listing := out.String()
	for _, want := range []string{
		"unit #Listed extends CompiledScript (source main.js)",
		"runtimeInfo",
		"globalDeclarationInstantiation",
		"lines:",
		"handlers:",
		"ScriptError",
		"locals:",
		"completion",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing lacks %q", want)
		}
	}
	if short := cu.Listing(false); strings.Contains(short, "handlers:") {
		t.Error("short listing includes tables")
	}
}

func TestNoListingWithoutDebug(t *testing.T) {
	var out bytes.Buffer
	if _, err := Compile(mustParse(t, "1;"), "Quiet", Options{Output: &out}); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestSourceMap(t *testing.T) {
	s := mustParse(t, "var a = 1;\nvar b = 2;\na + b;\n")
	cu, err := Compile(s, "Mapped", Options{Flags: SourceMap})
	if err != nil {
		t.Fatal(err)
	}
	smap := cu.SourceMap()
	for _, want := range []string{"SMAP\n#Mapped\nScript\n", "*S Script\n", "+ 1 main.js\n", "*L\n", "*E\n"} {
		if !strings.Contains(smap, want) {
			t.Errorf("SMAP lacks %q:\n%s", want, smap)
		}
	}
	if !strings.Contains(smap, "1#1,3:1\n") {
		t.Errorf("SMAP line section:\n%s", smap)
	}

	plain, err := Compile(s, "Mapped", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if plain.SourceMap() != "" {
		t.Error("SMAP produced without the SourceMap flag")
	}
}

func TestMethodsListsEveryUnit(t *testing.T) {
	s := mustParse(t, "function f() { return 1; } f();")
	cu, err := Compile(s, "Main", Options{})
	if err != nil {
		t.Fatal(err)
	}
	methods := strings.Join(cu.Methods(), "\n")
	for _, want := range []string{"#Main.runtimeInfo", "#Main.script", "f_1_info", "f_1_init", "f_1_body"} {
		if !strings.Contains(methods, want) {
			t.Errorf("methods lack %q:\n%s", want, methods)
		}
	}
}

type memoryCache struct {
	entries map[string]*code.Archive
	gets    int
	puts    int
}

func (m *memoryCache) Get(key string) (*code.Archive, bool, error) {
	m.gets++
	ar, ok := m.entries[key]
	return ar, ok, nil
}

func (m *memoryCache) Put(key, unit string, ar *code.Archive) error {
	m.puts++
	m.entries[key] = ar
	return nil
}

func TestCacheReuse(t *testing.T) {
	mc := &memoryCache{entries: make(map[string]*code.Archive)}
	src := "var x = 2; x * 21;"
	first, err := Compile(mustParse(t, src), "Cached", Options{Cache: mc})
	if err != nil {
		t.Fatal(err)
	}
	second, err := Compile(mustParse(t, src), "Cached", Options{Cache: mc})
	if err != nil {
		t.Fatal(err)
	}
	if mc.puts != 1 || mc.gets != 2 {
		t.Errorf("puts = %d, gets = %d, want 1 and 2", mc.puts, mc.gets)
	}
	if second.Archive() != first.Archive() {
		t.Error("second compile did not use the cached archive")
	}
	got, err := second.Execute(runtime.NewRealm().NewContext())
	if err != nil || got != 42.0 {
		t.Errorf("cached unit = %v, %v", got, err)
	}

	// Different options produce a different key.
	if _, err := Compile(mustParse(t, src), "Cached", Options{Cache: mc, IncludeSource: true}); err != nil {
		t.Fatal(err)
	}
	if mc.puts != 2 {
		t.Errorf("puts = %d, want 2", mc.puts)
	}
}

func TestLoadStoredArchive(t *testing.T) {
	fn, err := parse.ParseFunction("function twice(x) { 'use strict'; return x + x; }")
	if err != nil {
		t.Fatal(err)
	}
	compiled, err := Compile(fn, "Twice", Options{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := compiled.Archive().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	ar, err := code.UnmarshalArchive(data)
	if err != nil {
		t.Fatal(err)
	}
	cu, err := Load(ar)
	if err != nil {
		t.Fatal(err)
	}
	if cu.Name() != "#Twice" {
		t.Errorf("Name() = %q", cu.Name())
	}
	if got, want := cu.Listing(false), compiled.Listing(false); got != want {
		t.Errorf("listing differs after reload:\n%s\nwant:\n%s", got, want)
	}

	cx := runtime.NewRealm().NewContext()
	v, err := cu.Execute(cx)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := v.(*runtime.Function)
	if !ok {
		t.Fatalf("Execute returned %T, want *runtime.Function", v)
	}
	if got, err := f.Call(cx, runtime.Undefined, 21.0); err != nil || got != 42.0 {
		t.Errorf("twice(21) = %v, %v", got, err)
	}
}

func TestCompileRejectsOversizedDeclarationsBeforeEmitting(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8000; i++ {
		fmt.Fprintf(&b, "var v%d;\n", i)
	}
	var generated bool
	newGenerator = func(c *code.Code, cfg codegen.Config) *codegen.Generator {
		generated = true
		return codegen.New(c, cfg)
	}
	defer func() { newGenerator = codegen.New }()

	_, err := Compile(mustParse(t, b.String()), "Vars", Options{})
	var se *codegen.SizeError
	if !errors.As(err, &se) || se.What != "init" {
		t.Fatalf("err = %v, want init SizeError", err)
	}
	if generated {
		t.Error("code was generated for a rejected tree")
	}
}

func TestCompileClosesGeneratorAfterPanic(t *testing.T) {
	s := mustParse(t, "function f(a) { return a; } f(1);")
	// An expression statement without an expression makes emission panic
	// after f's source has been submitted for compression.
	s.Body = append(s.Body, &ast.ExpressionStatement{})

	var g *codegen.Generator
	newGenerator = func(c *code.Code, cfg codegen.Config) *codegen.Generator {
		g = codegen.New(c, cfg)
		return g
	}
	defer func() { newGenerator = codegen.New }()

	cu, err := Compile(s, "Broken", Options{IncludeSource: true})
	var ce *CompilationError
	if !errors.As(err, &ce) || cu != nil {
		t.Fatalf("Compile = %v, %v; want a CompilationError", cu, err)
	}
	if g == nil {
		t.Fatal("generator was not created")
	}
	if !g.Closed() {
		t.Error("generator left open after a panic")
	}
}
