package ast_test

import (
	"bytes"
	"testing"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/parse"
)

func mustParse(t *testing.T, src string) *ast.Script {
	t.Helper()
	s, err := parse.ParseScript(src, "test.js")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return s
}

func TestHashDeterministic(t *testing.T) {
	src := "let a = 1;\nfunction f(x) { return `t${x}` + a }\nf(2);"
	h1 := ast.Hash(mustParse(t, src))
	h2 := ast.Hash(mustParse(t, src))
	if h1 != h2 {
		t.Errorf("same source hashed differently")
	}
	if got := ast.HashString(mustParse(t, src)); len(got) != 64 {
		t.Errorf("HashString length = %d", len(got))
	}
}

func TestHashSensitivity(t *testing.T) {
	base := ast.Hash(mustParse(t, "var a = 1;\na + 2;"))
	variants := map[string]string{
		"literal":   "var a = 1;\na + 3;",
		"operator":  "var a = 1;\na - 2;",
		"line":      "var a = 1;\n\na + 2;",
		"strictness": "'use strict';\nvar a = 1;\na + 2;",
	}
	for name, src := range variants {
		if ast.Hash(mustParse(t, src)) == base {
			t.Errorf("%s change did not change the hash", name)
		}
	}

	// Column-only changes do not affect emitted code.
	if ast.Hash(mustParse(t, "var a = 1;\na  +  2;")) != base {
		t.Errorf("whitespace within a line changed the hash")
	}
}

func TestHashCoversBindingClassification(t *testing.T) {
	s := mustParse(t, "{ let x = 1; x; }")
	before := ast.Hash(s)
	blk := s.Body[0].(*ast.BlockStatement)
	blk.Scope.Lexical[0].Local = !blk.Scope.Lexical[0].Local
	if ast.Hash(s) == before {
		t.Errorf("binding classification not hashed")
	}
}

func TestSerializeVersionPrefix(t *testing.T) {
	b := ast.Serialize(&ast.NumberLiteral{Value: 1})
	if b[0] != ast.HashVersion || b[1] != ast.TagNumberLiteral {
		t.Errorf("prefix = % x", b[:2])
	}
	if !bytes.Equal(b[2:], []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("float encoding = % x", b[2:])
	}
}

func TestInspectOrder(t *testing.T) {
	s := mustParse(t, "f(a, b.c);")
	var names []string
	ast.Inspect(s, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Identifier:
			names = append(names, n.Name)
		case *ast.MemberExpression:
			names = append(names, "."+n.Property)
		}
		return true
	})
	want := []string{"f", "a", ".c", "b"}
	if len(names) != len(want) {
		t.Fatalf("visited %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("visited %v, want %v", names, want)
		}
	}

	var count int
	ast.Inspect(s, func(n ast.Node) bool {
		count++
		_, isCall := n.(*ast.CallExpression)
		return !isCall
	})
	if count != 3 { // script, statement, call
		t.Errorf("pruned walk visited %d nodes", count)
	}
}

func TestScopeLookupStopsAtFunction(t *testing.T) {
	outer := ast.NewScope(ast.FunctionScope, nil)
	outer.Strict = true
	outer.Declare("x", ast.Let, true)
	blk := ast.NewScope(ast.BlockScope, outer)
	inner := ast.NewScope(ast.FunctionScope, blk)
	if !inner.Strict {
		t.Errorf("strictness not inherited")
	}
	if blk.Lookup("x") == nil {
		t.Errorf("block cannot see enclosing function's binding")
	}
	if inner.Lookup("x") != nil {
		t.Errorf("lookup crossed a function boundary")
	}
	outer.Declare("y", ast.Const, false)
	if !outer.NeedsEnvironment() || len(outer.LocalBindings()) != 1 || len(outer.EnvironmentBindings()) != 1 {
		t.Errorf("binding partition wrong")
	}
}
