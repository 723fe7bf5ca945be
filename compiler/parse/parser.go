// Package parse turns script source into the resolved tree the code
// generator consumes. It covers the statement and expression forms the
// generator supports and rejects everything else with a syntax error.
package parse

import (
	"fmt"

	"github.com/chazu/esdraft/compiler/ast"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser
// ---------------------------------------------------------------------------

// Error is a syntax error.
type Error struct {
	Pos ast.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Parser parses script source code into a tree.
type Parser struct {
	input string
	toks  []Token
	i     int

	scope    *ast.Scope        // innermost scope
	varScope *ast.Scope        // nearest function or script scope
	fn       *ast.FunctionNode // enclosing function, nil at script level

	// params of every function scope, for the resolver
	params map[*ast.Scope][]string
}

// bailout carries the first syntax error up to the entry point.
type bailout struct{ err *Error }

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{input: input, params: make(map[*ast.Scope][]string)}
	p.tokenize(NewLexer(input))
	return p
}

func (p *Parser) tokenize(l *Lexer) {
	for {
		tok := l.NextToken()
		p.toks = append(p.toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return
		}
	}
}

// ParseScript parses and resolves a complete script. file names the source
// for diagnostics and source maps.
func ParseScript(src, file string) (*ast.Script, error) {
	p := NewParser(src)
	var script *ast.Script
	if err := p.guard(func() {
		script = p.parseScript()
		script.File = file
		script.Path = file
	}); err != nil {
		return nil, err
	}
	resolve(script, p.params)
	return script, nil
}

// ParseFunction parses and resolves a single function declaration, function
// expression or arrow function, compiled as a standalone unit.
func ParseFunction(src string) (*ast.FunctionNode, error) {
	p := NewParser(src)
	var fn *ast.FunctionNode
	if err := p.guard(func() {
		switch {
		case p.cur().Type == TokenFunction:
			fn = p.parseFunction()
		case p.arrowAhead():
			fn = p.parseArrow()
		default:
			p.errorf("expected function")
		}
		p.eatPunct(";")
		if p.cur().Type != TokenEOF {
			p.errorf("unexpected %s after function", p.cur())
		}
	}); err != nil {
		return nil, err
	}
	resolve(fn, p.params)
	return fn, nil
}

func (p *Parser) guard(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
	}()
	f()
	return nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) cur() Token { return p.toks[p.i] }

func (p *Parser) peek(k int) Token {
	if p.i+k < len(p.toks) {
		return p.toks[p.i+k]
	}
	return p.toks[len(p.toks)-1]
}

// prevEnd is the end position of the last consumed token.
func (p *Parser) prevEnd() ast.Position {
	if p.i == 0 {
		return p.toks[0].Pos
	}
	return p.toks[p.i-1].End
}

func (p *Parser) next() Token {
	tok := p.cur()
	if tok.Type == TokenError {
		p.fail(tok.Pos, tok.Literal)
	}
	if tok.Type != TokenEOF {
		p.i++
	}
	return tok
}

func (p *Parser) isPunct(s string) bool {
	t := p.cur()
	return t.Type == TokenPunct && t.Literal == s
}

func (p *Parser) eatPunct(s string) bool {
	if p.isPunct(s) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expectPunct(s string) Token {
	if !p.isPunct(s) {
		p.errorf("expected %q, got %s", s, p.cur())
	}
	return p.next()
}

func (p *Parser) expectIdentifier() Token {
	if p.cur().Type != TokenIdentifier {
		p.errorf("expected identifier, got %s", p.cur())
	}
	return p.next()
}

// consumeSemicolon applies automatic semicolon insertion.
func (p *Parser) consumeSemicolon() {
	if p.eatPunct(";") {
		return
	}
	t := p.cur()
	if t.Type == TokenEOF || t.NewlineBefore || (t.Type == TokenPunct && t.Literal == "}") {
		return
	}
	p.errorf("expected ';', got %s", t)
}

func (p *Parser) errorf(format string, args ...interface{}) {
	t := p.cur()
	if t.Type == TokenError {
		p.fail(t.Pos, t.Literal)
	}
	p.fail(t.Pos, fmt.Sprintf(format, args...))
}

func (p *Parser) fail(pos ast.Position, msg string) {
	panic(bailout{&Error{Pos: pos, Msg: msg}})
}

func (p *Parser) spanFrom(start ast.Position) ast.Span {
	return ast.Span{Start: start, End: p.prevEnd()}
}

// ---------------------------------------------------------------------------
// Scripts, functions and statements
// ---------------------------------------------------------------------------

func (p *Parser) parseScript() *ast.Script {
	start := p.cur().Pos
	script := &ast.Script{Scope: ast.NewScope(ast.ScriptScope, nil)}
	p.scope, p.varScope = script.Scope, script.Scope
	script.Scope.Strict = p.useStrict()
	for p.cur().Type != TokenEOF {
		script.Body = append(script.Body, p.parseStatementListItem())
	}
	script.SpanVal = p.spanFrom(start)
	return script
}

// useStrict reports whether the body starting at the current token begins
// with a "use strict" directive.
func (p *Parser) useStrict() bool {
	for k := 0; p.peek(k).Type == TokenString; k++ {
		lit := p.peek(k).Literal
		if lit == `"use strict"` || lit == `'use strict'` {
			return true
		}
		after := p.peek(k + 1)
		if !(after.Type == TokenPunct && after.Literal == ";") {
			return false
		}
		k++
	}
	return false
}

// parseStatementListItem parses a statement or declaration.
func (p *Parser) parseStatementListItem() ast.Statement {
	switch p.cur().Type {
	case TokenLet, TokenConst:
		return p.parseVariableStatement()
	case TokenFunction:
		return p.parseFunctionDeclaration()
	}
	return p.parseStatement()
}

// parseStatement parses a statement in a position where declarations are
// not allowed.
func (p *Parser) parseStatement() ast.Statement {
	t := p.cur()
	switch t.Type {
	case TokenPunct:
		switch t.Literal {
		case "{":
			return p.parseBlock(p.scope)
		case ";":
			p.next()
			return &ast.EmptyStatement{SpanVal: ast.Span{Start: t.Pos, End: t.End}}
		}
	case TokenVar:
		return p.parseVariableStatement()
	case TokenLet, TokenConst, TokenFunction:
		p.errorf("%s declaration not allowed here", t.Type)
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenReturn:
		return p.parseReturn()
	case TokenThrow:
		return p.parseThrow()
	case TokenTry:
		return p.parseTry()
	case TokenIdentifier:
		switch t.Literal {
		case "for", "do", "switch", "break", "continue", "class", "with", "debugger":
			p.errorf("%s statements are not supported", t.Literal)
		}
	}
	expr := p.parseExpression()
	p.consumeSemicolon()
	return &ast.ExpressionStatement{SpanVal: p.spanFrom(t.Pos), Expr: expr}
}

func (p *Parser) parseVariableStatement() ast.Statement {
	start := p.next()
	kind := ast.Var
	switch start.Type {
	case TokenLet:
		kind = ast.Let
	case TokenConst:
		kind = ast.Const
	}
	decl := &ast.VariableDeclaration{Kind: kind}
	for {
		name := p.expectIdentifier()
		d := &ast.VariableDeclarator{Name: name.Literal}
		if kind == ast.Var {
			p.varScope.DeclareVar(name.Literal)
		} else {
			if name.Literal == "let" {
				p.fail(name.Pos, "let is disallowed as a lexically bound name")
			}
			for _, b := range p.scope.Lexical {
				if b.Name == name.Literal {
					p.fail(name.Pos, fmt.Sprintf("identifier '%s' has already been declared", name.Literal))
				}
			}
			d.Binding = p.scope.Declare(name.Literal, kind, false)
		}
		if p.eatPunct("=") {
			d.Init = p.parseAssignment()
		} else if kind == ast.Const {
			p.errorf("missing initializer in const declaration")
		}
		d.SpanVal = p.spanFrom(name.Pos)
		decl.Decls = append(decl.Decls, d)
		if !p.eatPunct(",") {
			break
		}
	}
	p.consumeSemicolon()
	decl.SpanVal = p.spanFrom(start.Pos)
	return decl
}

// parseBlock parses a braced statement list in a new block scope nested in
// parent.
func (p *Parser) parseBlock(parent *ast.Scope) *ast.BlockStatement {
	start := p.expectPunct("{")
	blk := &ast.BlockStatement{Scope: ast.NewScope(ast.BlockScope, parent)}
	saved := p.scope
	p.scope = blk.Scope
	for !p.isPunct("}") {
		if p.cur().Type == TokenEOF {
			p.errorf("expected '}'")
		}
		blk.Body = append(blk.Body, p.parseStatementListItem())
	}
	p.next()
	p.scope = saved
	blk.SpanVal = p.spanFrom(start.Pos)
	return blk
}

func (p *Parser) parseIf() ast.Statement {
	start := p.next()
	p.expectPunct("(")
	test := p.parseExpression()
	p.expectPunct(")")
	n := &ast.IfStatement{Test: test, Then: p.parseStatement()}
	if p.cur().Type == TokenElse {
		p.next()
		n.Else = p.parseStatement()
	}
	n.SpanVal = p.spanFrom(start.Pos)
	return n
}

func (p *Parser) parseWhile() ast.Statement {
	start := p.next()
	p.expectPunct("(")
	test := p.parseExpression()
	p.expectPunct(")")
	body := p.parseStatement()
	return &ast.WhileStatement{SpanVal: p.spanFrom(start.Pos), Test: test, Body: body}
}

func (p *Parser) parseReturn() ast.Statement {
	start := p.next()
	if p.fn == nil {
		p.fail(start.Pos, "return outside function")
	}
	n := &ast.ReturnStatement{}
	t := p.cur()
	if !(t.NewlineBefore || t.Type == TokenEOF || (t.Type == TokenPunct && (t.Literal == ";" || t.Literal == "}"))) {
		n.Argument = p.parseExpression()
	}
	p.consumeSemicolon()
	n.SpanVal = p.spanFrom(start.Pos)
	return n
}

func (p *Parser) parseThrow() ast.Statement {
	start := p.next()
	if p.cur().NewlineBefore {
		p.errorf("illegal newline after throw")
	}
	arg := p.parseExpression()
	p.consumeSemicolon()
	return &ast.ThrowStatement{SpanVal: p.spanFrom(start.Pos), Argument: arg}
}

func (p *Parser) parseTry() ast.Statement {
	start := p.next()
	n := &ast.TryStatement{Block: p.parseBlock(p.scope)}
	if p.cur().Type != TokenCatch {
		if t := p.cur(); t.Type == TokenIdentifier && t.Literal == "finally" {
			p.errorf("finally clauses are not supported")
		}
		p.errorf("expected catch, got %s", p.cur())
	}
	p.next()
	n.CatchScope = ast.NewScope(ast.CatchScope, p.scope)
	if p.eatPunct("(") {
		name := p.expectIdentifier()
		n.Param = n.CatchScope.Declare(name.Literal, ast.CatchParam, false)
		p.expectPunct(")")
	}
	n.Handler = p.parseBlock(n.CatchScope)
	if n.Param != nil {
		for _, b := range n.Handler.Scope.Lexical {
			if b.Name == n.Param.Name {
				p.fail(n.Handler.SpanVal.Start, fmt.Sprintf("identifier '%s' has already been declared", b.Name))
			}
		}
	}
	n.SpanVal = p.spanFrom(start.Pos)
	return n
}

func (p *Parser) parseFunctionDeclaration() ast.Statement {
	start := p.cur().Pos
	fn := p.parseFunction()
	if fn.Name == "" {
		p.fail(start, "function declaration requires a name")
	}
	if p.scope == p.varScope {
		p.varScope.Functions = append(p.varScope.Functions, fn)
	} else {
		// Block-level functions are instantiated on block entry and
		// assigned to a var of the enclosing function.
		p.scope.Functions = append(p.scope.Functions, fn)
		p.varScope.DeclareVar(fn.Name)
	}
	return &ast.FunctionDeclaration{SpanVal: fn.SpanVal, Function: fn}
}

// parseFunction parses function name?(params) { body }.
func (p *Parser) parseFunction() *ast.FunctionNode {
	start := p.next()
	fn := &ast.FunctionNode{}
	if p.cur().Type == TokenIdentifier {
		fn.Name = p.next().Literal
	}
	fn.Params = p.parseParams()
	p.parseFunctionBody(fn, start.Pos)
	return fn
}

func (p *Parser) parseParams() []string {
	p.expectPunct("(")
	var params []string
	for !p.isPunct(")") {
		params = append(params, p.expectIdentifier().Literal)
		if !p.eatPunct(",") {
			break
		}
	}
	p.expectPunct(")")
	return params
}

// enterFunction makes fn the current function and returns the restore
// callback.
func (p *Parser) enterFunction(fn *ast.FunctionNode) func() {
	fn.Scope = ast.NewScope(ast.FunctionScope, p.scope)
	p.params[fn.Scope] = fn.Params
	scope, varScope, outer := p.scope, p.varScope, p.fn
	p.scope, p.varScope, p.fn = fn.Scope, fn.Scope, fn
	return func() {
		p.scope, p.varScope, p.fn = scope, varScope, outer
	}
}

func (p *Parser) parseFunctionBody(fn *ast.FunctionNode, start ast.Position) {
	restore := p.enterFunction(fn)
	defer restore()
	p.expectPunct("{")
	if p.useStrict() {
		fn.Scope.Strict = true
	}
	if fn.Scope.Strict {
		seen := make(map[string]bool)
		for _, name := range fn.Params {
			if seen[name] {
				p.fail(start, fmt.Sprintf("duplicate parameter name '%s' in strict mode", name))
			}
			seen[name] = true
		}
	}
	for !p.isPunct("}") {
		if p.cur().Type == TokenEOF {
			p.errorf("expected '}'")
		}
		fn.Body = append(fn.Body, p.parseStatementListItem())
	}
	p.next()
	fn.SpanVal = p.spanFrom(start)
	fn.Source = p.input[start.Offset:fn.SpanVal.End.Offset]
}

// arrowAhead reports whether an arrow function starts at the current token.
func (p *Parser) arrowAhead() bool {
	if p.cur().Type == TokenIdentifier {
		t := p.peek(1)
		return t.Type == TokenPunct && t.Literal == "=>" && !t.NewlineBefore
	}
	if !p.isPunct("(") {
		return false
	}
	k := 1
	if t := p.peek(k); !(t.Type == TokenPunct && t.Literal == ")") {
		for {
			if p.peek(k).Type != TokenIdentifier {
				return false
			}
			k++
			t := p.peek(k)
			if t.Type == TokenPunct && t.Literal == "," {
				k++
				continue
			}
			if !(t.Type == TokenPunct && t.Literal == ")") {
				return false
			}
			break
		}
	}
	t := p.peek(k + 1)
	return t.Type == TokenPunct && t.Literal == "=>" && !t.NewlineBefore
}

func (p *Parser) parseArrow() *ast.FunctionNode {
	start := p.cur().Pos
	fn := &ast.FunctionNode{Arrow: true}
	if p.cur().Type == TokenIdentifier {
		fn.Params = []string{p.next().Literal}
	} else {
		fn.Params = p.parseParams()
	}
	p.expectPunct("=>")
	if p.isPunct("{") {
		p.parseFunctionBody(fn, start)
		return fn
	}
	restore := p.enterFunction(fn)
	defer restore()
	fn.ConciseBody = true
	fn.Expr = p.parseAssignment()
	fn.SpanVal = p.spanFrom(start)
	fn.Source = p.input[start.Offset:fn.SpanVal.End.Offset]
	return fn
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) parseExpression() ast.Expression {
	expr := p.parseAssignment()
	if p.isPunct(",") {
		p.errorf("comma expressions are not supported")
	}
	return expr
}

func (p *Parser) parseAssignment() ast.Expression {
	if p.arrowAhead() {
		fn := p.parseArrow()
		return &ast.FunctionExpression{SpanVal: fn.SpanVal, Function: fn}
	}
	start := p.cur().Pos
	left := p.parseBinary(0)
	if !p.isPunct("=") {
		return left
	}
	switch left.(type) {
	case *ast.Identifier, *ast.MemberExpression:
	default:
		p.errorf("invalid assignment target")
	}
	p.next()
	value := p.parseAssignment()
	return &ast.AssignmentExpression{SpanVal: p.spanFrom(start), Target: left, Value: value}
}

var binaryPrecedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3, "===": 3, "!==": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

// parseBinary parses binary and logical operators by precedence climbing.
func (p *Parser) parseBinary(minPrec int) ast.Expression {
	start := p.cur().Pos
	left := p.parseUnary()
	for {
		t := p.cur()
		if t.Type != TokenPunct {
			return left
		}
		prec := binaryPrecedence[t.Literal]
		if prec <= minPrec {
			return left
		}
		p.next()
		right := p.parseBinary(prec)
		if t.Literal == "&&" || t.Literal == "||" {
			left = &ast.LogicalExpression{SpanVal: p.spanFrom(start), Op: t.Literal, Left: left, Right: right}
		} else {
			left = &ast.BinaryExpression{SpanVal: p.spanFrom(start), Op: t.Literal, Left: left, Right: right}
		}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	t := p.cur()
	var op string
	switch {
	case t.Type == TokenPunct && (t.Literal == "!" || t.Literal == "-" || t.Literal == "+"):
		op = t.Literal
	case t.Type == TokenTypeof:
		op = "typeof"
	case t.Type == TokenVoid:
		op = "void"
	default:
		return p.parseLeftHandSide()
	}
	p.next()
	arg := p.parseUnary()
	if op == "void" && isLiteral(arg) {
		return &ast.UndefinedLiteral{SpanVal: p.spanFrom(t.Pos)}
	}
	return &ast.UnaryExpression{SpanVal: p.spanFrom(t.Pos), Op: op, Argument: arg}
}

func isLiteral(e ast.Expression) bool {
	switch e.(type) {
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.NullLiteral, *ast.UndefinedLiteral:
		return true
	}
	return false
}

// parseLeftHandSide parses member accesses, calls and tagged templates.
func (p *Parser) parseLeftHandSide() ast.Expression {
	start := p.cur().Pos
	var expr ast.Expression
	if p.cur().Type == TokenNew {
		expr = p.parseNew()
	} else {
		expr = p.parsePrimary()
	}
	for {
		switch t := p.cur(); {
		case t.Type == TokenPunct && (t.Literal == "." || t.Literal == "["):
			expr = p.parseMember(expr, start)
		case t.Type == TokenPunct && t.Literal == "(":
			args := p.parseArguments()
			expr = &ast.CallExpression{SpanVal: p.spanFrom(start), Callee: expr, Arguments: args}
		case t.Type == TokenTemplate:
			p.next()
			quasi := p.templateLiteral(t)
			expr = &ast.TaggedTemplate{SpanVal: p.spanFrom(start), Tag: expr, Quasi: quasi}
		default:
			return expr
		}
	}
}

func (p *Parser) parseMember(object ast.Expression, start ast.Position) ast.Expression {
	if p.eatPunct(".") {
		name := p.next()
		if name.Type != TokenIdentifier && tokenNames[name.Type] != name.Literal {
			p.fail(name.Pos, fmt.Sprintf("expected property name, got %s", name))
		}
		return &ast.MemberExpression{SpanVal: p.spanFrom(start), Object: object, Property: name.Literal}
	}
	p.expectPunct("[")
	key := p.parseExpression()
	p.expectPunct("]")
	return &ast.MemberExpression{SpanVal: p.spanFrom(start), Object: object, Computed: key}
}

func (p *Parser) parseNew() ast.Expression {
	start := p.next().Pos
	var callee ast.Expression
	if p.cur().Type == TokenNew {
		callee = p.parseNew()
	} else {
		callee = p.parsePrimary()
	}
	for p.isPunct(".") || p.isPunct("[") {
		callee = p.parseMember(callee, start)
	}
	var args []ast.Expression
	if p.isPunct("(") {
		args = p.parseArguments()
	}
	return &ast.NewExpression{SpanVal: p.spanFrom(start), Callee: callee, Arguments: args}
}

func (p *Parser) parseArguments() []ast.Expression {
	p.expectPunct("(")
	var args []ast.Expression
	for !p.isPunct(")") {
		args = append(args, p.parseAssignment())
		if !p.eatPunct(",") {
			break
		}
	}
	p.expectPunct(")")
	return args
}

func (p *Parser) parsePrimary() ast.Expression {
	t := p.cur()
	sp := ast.Span{Start: t.Pos, End: t.End}
	switch t.Type {
	case TokenNumber:
		p.next()
		return &ast.NumberLiteral{SpanVal: sp, Value: t.Number}
	case TokenString:
		p.next()
		return &ast.StringLiteral{SpanVal: sp, Value: t.Str}
	case TokenTemplate:
		p.next()
		return p.templateLiteral(t)
	case TokenIdentifier:
		p.next()
		return &ast.Identifier{SpanVal: sp, Name: t.Literal}
	case TokenThis:
		p.next()
		return &ast.ThisExpression{SpanVal: sp}
	case TokenTrue, TokenFalse:
		p.next()
		return &ast.BooleanLiteral{SpanVal: sp, Value: t.Type == TokenTrue}
	case TokenNull:
		p.next()
		return &ast.NullLiteral{SpanVal: sp}
	case TokenFunction:
		fn := p.parseFunction()
		return &ast.FunctionExpression{SpanVal: fn.SpanVal, Function: fn}
	case TokenPunct:
		if t.Literal == "(" {
			p.next()
			expr := p.parseExpression()
			p.expectPunct(")")
			return expr
		}
	}
	p.errorf("unexpected %s", t)
	return nil
}

// templateLiteral builds a template node, parsing each substitution with a
// parser sharing this parser's scope state.
func (p *Parser) templateLiteral(t Token) *ast.TemplateLiteral {
	n := &ast.TemplateLiteral{
		SpanVal: ast.Span{Start: t.Pos, End: t.End},
		Cooked:  t.Template.Cooked,
		Raw:     t.Template.Raw,
	}
	for _, sub := range t.Template.Subs {
		sp := &Parser{
			input:    p.input,
			scope:    p.scope,
			varScope: p.varScope,
			fn:       p.fn,
			params:   p.params,
		}
		sp.tokenize(newLexerRange(p.input, sub.start, sub.end, sub.pos))
		expr := sp.parseExpression()
		if sp.cur().Type != TokenEOF {
			sp.errorf("unexpected %s in template substitution", sp.cur())
		}
		n.Expressions = append(n.Expressions, expr)
	}
	return n
}
