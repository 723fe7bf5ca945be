package parse

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/chazu/esdraft/compiler/ast"
)

func parseExpr(t *testing.T, src string) ast.Expression {
	t.Helper()
	script, err := ParseScript(src, "")
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(script.Body) != 1 {
		t.Fatalf("parse %q: %d statements", src, len(script.Body))
	}
	es, ok := script.Body[0].(*ast.ExpressionStatement)
	if !ok {
		t.Fatalf("parse %q: got %T", src, script.Body[0])
	}
	return es.Expr
}

func TestLexerTokens(t *testing.T) {
	l := NewLexer("let x = 0x1F; // c\n/* d */ y === 'a\\n' `t${1}u`")
	want := []struct {
		typ TokenType
		lit string
	}{
		{TokenLet, "let"},
		{TokenIdentifier, "x"},
		{TokenPunct, "="},
		{TokenNumber, "0x1F"},
		{TokenPunct, ";"},
		{TokenIdentifier, "y"},
		{TokenPunct, "==="},
		{TokenString, `'a\n'`},
		{TokenTemplate, "`t${1}u`"},
		{TokenEOF, ""},
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w.typ || tok.Literal != w.lit {
			t.Fatalf("token %d = %s, want %s(%q)", i, tok, w.typ, w.lit)
		}
		switch i {
		case 3:
			if tok.Number != 31 {
				t.Errorf("0x1F = %v", tok.Number)
			}
		case 5:
			if !tok.NewlineBefore || tok.Pos.Line != 2 || tok.Pos.Column != 9 {
				t.Errorf("y at %+v newline=%v", tok.Pos, tok.NewlineBefore)
			}
		case 7:
			if tok.Str != "a\n" {
				t.Errorf("cooked string = %q", tok.Str)
			}
		case 8:
			tpl := tok.Template
			if len(tpl.Cooked) != 2 || tpl.Cooked[0] != "t" || tpl.Cooked[1] != "u" || len(tpl.Subs) != 1 {
				t.Errorf("template = %+v", tpl)
			}
		}
	}
}

func TestCookEscapes(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{`plain`, "plain"},
		{`\t\x41B\u{43}`, "\tABC"},
		{`😀`, "\U0001F600"},
		{`\q`, "q"},
		{"a\\\nb", "ab"},
	}
	for _, tc := range tests {
		got, err := cook(tc.raw)
		if err != nil || got != tc.want {
			t.Errorf("cook(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
	for _, bad := range []string{`\x4`, `\u12`, `\01`, `\7`} {
		if _, err := cook(bad); err == nil {
			t.Errorf("cook(%q) succeeded", bad)
		}
	}
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(ast.Expression) bool
		desc  string
	}{
		{"42", func(e ast.Expression) bool { return e.(*ast.NumberLiteral).Value == 42 }, "integer"},
		{"1.5e3", func(e ast.Expression) bool { return e.(*ast.NumberLiteral).Value == 1500 }, "exponent"},
		{"1e400", func(e ast.Expression) bool { return math.IsInf(e.(*ast.NumberLiteral).Value, 1) }, "overflow"},
		{"'hi'", func(e ast.Expression) bool { return e.(*ast.StringLiteral).Value == "hi" }, "string"},
		{"true", func(e ast.Expression) bool { return e.(*ast.BooleanLiteral).Value }, "boolean"},
		{"null", func(e ast.Expression) bool { _, ok := e.(*ast.NullLiteral); return ok }, "null"},
		{"void 0", func(e ast.Expression) bool { _, ok := e.(*ast.UndefinedLiteral); return ok }, "void literal"},
		{"void f()", func(e ast.Expression) bool { return e.(*ast.UnaryExpression).Op == "void" }, "void call"},
		{"this", func(e ast.Expression) bool { _, ok := e.(*ast.ThisExpression); return ok }, "this"},
	}
	for _, tc := range tests {
		if !tc.check(parseExpr(t, tc.input)) {
			t.Errorf("%s: check failed for %q", tc.desc, tc.input)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	e := parseExpr(t, "a || b && c == d < e + f * g").(*ast.LogicalExpression)
	if e.Op != "||" {
		t.Fatalf("root op = %s", e.Op)
	}
	and := e.Right.(*ast.LogicalExpression)
	eq := and.Right.(*ast.BinaryExpression)
	lt := eq.Right.(*ast.BinaryExpression)
	add := lt.Right.(*ast.BinaryExpression)
	mul := add.Right.(*ast.BinaryExpression)
	if and.Op != "&&" || eq.Op != "==" || lt.Op != "<" || add.Op != "+" || mul.Op != "*" {
		t.Errorf("ops = %s %s %s %s %s", and.Op, eq.Op, lt.Op, add.Op, mul.Op)
	}

	sub := parseExpr(t, "a - b - c").(*ast.BinaryExpression)
	if _, ok := sub.Left.(*ast.BinaryExpression); !ok {
		t.Errorf("a - b - c is not left associative")
	}

	asg := parseExpr(t, "a = b = 1").(*ast.AssignmentExpression)
	if _, ok := asg.Value.(*ast.AssignmentExpression); !ok {
		t.Errorf("a = b = 1 is not right associative")
	}
}

func TestParserCallsAndMembers(t *testing.T) {
	call := parseExpr(t, "o.m(1, x)[k]`t`").(*ast.TaggedTemplate)
	idx := call.Tag.(*ast.MemberExpression)
	if idx.Computed == nil {
		t.Fatalf("expected computed member")
	}
	inner := idx.Object.(*ast.CallExpression)
	if len(inner.Arguments) != 2 || inner.Callee.(*ast.MemberExpression).Property != "m" {
		t.Errorf("call = %+v", inner)
	}

	n := parseExpr(t, "new a.B(1)").(*ast.NewExpression)
	if n.Callee.(*ast.MemberExpression).Property != "B" || len(n.Arguments) != 1 {
		t.Errorf("new = %+v", n)
	}
	if m := parseExpr(t, "x.new").(*ast.MemberExpression); m.Property != "new" {
		t.Errorf("reserved word property = %q", m.Property)
	}
}

func TestParserArrows(t *testing.T) {
	f := parseExpr(t, "(a, b) => a + b").(*ast.FunctionExpression).Function
	if !f.Arrow || !f.ConciseBody || len(f.Params) != 2 || f.Expr == nil {
		t.Errorf("arrow = %+v", f)
	}
	if f.Source != "(a, b) => a + b" {
		t.Errorf("source = %q", f.Source)
	}
	g := parseExpr(t, "x => { return x }").(*ast.FunctionExpression).Function
	if !g.Arrow || g.ConciseBody || len(g.Body) != 1 {
		t.Errorf("block arrow = %+v", g)
	}
	if _, ok := parseExpr(t, "(a)").(*ast.Identifier); !ok {
		t.Errorf("parenthesized identifier parsed as arrow")
	}
}

func TestParserTemplateSubstitutions(t *testing.T) {
	tpl := parseExpr(t, "`a${x + `in${y}`}b${'}'}c`").(*ast.TemplateLiteral)
	if len(tpl.Cooked) != 3 || len(tpl.Expressions) != 2 {
		t.Fatalf("template = %+v", tpl)
	}
	if s := tpl.Expressions[1].(*ast.StringLiteral); s.Value != "}" {
		t.Errorf("second substitution = %q", s.Value)
	}
	nested := tpl.Expressions[0].(*ast.BinaryExpression).Right.(*ast.TemplateLiteral)
	if nested.Expressions[0].(*ast.Identifier).Name != "y" {
		t.Errorf("nested substitution = %+v", nested.Expressions[0])
	}
}

func TestParserStatements(t *testing.T) {
	src := `"use strict";
var a = 1, b;
let c = 2;
if (a) { b = 3 } else b = 4
while (a < 10) a = a + 1;
try { throw new Error("x") } catch (e) { c = e }
function f(x) { return x }
;`
	script, err := ParseScript(src, "s.js")
	if err != nil {
		t.Fatal(err)
	}
	if !script.Strict() {
		t.Errorf("script not strict")
	}
	kinds := []string{}
	for _, s := range script.Body {
		kinds = append(kinds, fmt.Sprintf("%T", s))
	}
	want := "*ast.ExpressionStatement *ast.VariableDeclaration *ast.VariableDeclaration *ast.IfStatement *ast.WhileStatement *ast.TryStatement *ast.FunctionDeclaration *ast.EmptyStatement"
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("statements = %s", got)
	}
	if got := script.Scope.VarNames; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("var names = %v", got)
	}
	if len(script.Scope.Functions) != 1 || script.Scope.Functions[0].Name != "f" {
		t.Errorf("functions = %v", script.Scope.Functions)
	}
	if ln := script.Body[4].Span().Start.Line; ln != 5 {
		t.Errorf("while on line %d", ln)
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		src, msg string
	}{
		{"return 1", "return outside function"},
		{"let a; let a;", "already been declared"},
		{"const a;", "missing initializer"},
		{"if (x) let y = 1;", "not allowed here"},
		{"try {} finally {}", "finally"},
		{"for (;;) {}", "not supported"},
		{"a b", "expected ';'"},
		{"1 = 2", "invalid assignment target"},
		{"'abc", "unterminated string"},
		{"`abc${", "unterminated"},
		{"function f(a, a) { 'use strict' }", "duplicate parameter"},
		{"x = 3in", "numeric literal"},
	}
	for _, tc := range tests {
		_, err := ParseScript(tc.src, "")
		var perr *Error
		if !errors.As(err, &perr) {
			t.Errorf("%q: error = %v, want syntax error", tc.src, err)
			continue
		}
		if !strings.Contains(perr.Msg, tc.msg) {
			t.Errorf("%q: error %q does not mention %q", tc.src, perr.Msg, tc.msg)
		}
	}
}

func TestParseFunction(t *testing.T) {
	fn, err := ParseFunction("function add(a, b) { 'use strict'; return a + b }")
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name != "add" || !fn.Strict() || len(fn.Params) != 2 {
		t.Errorf("fn = %+v", fn)
	}
	if fn.Scope.Parent != nil {
		t.Errorf("standalone function has a parent scope")
	}
	if _, err := ParseFunction("1 + 2"); err == nil {
		t.Errorf("ParseFunction accepted an expression")
	}
}
