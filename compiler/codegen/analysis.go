package codegen

import (
	"fmt"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/emit"
)

// StatementsThreshold is the default statement count at which a body is
// split into chunk methods.
const StatementsThreshold = 300

// Limits bounds the methods the generator may produce.
type Limits struct {
	// StatementsThreshold is both the statement count at which a body is
	// chunked and the size of each chunk.
	StatementsThreshold int
	// MaxMethodSize is the largest method body in bytes.
	MaxMethodSize int
	// MaxStringSize is the largest string loaded by one constant.
	MaxStringSize int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		StatementsThreshold: StatementsThreshold,
		MaxMethodSize:       emit.MaxMethodSize,
		MaxStringSize:       emit.MaxStringSize,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.StatementsThreshold <= 0 {
		l.StatementsThreshold = d.StatementsThreshold
	}
	if l.MaxMethodSize <= 0 || l.MaxMethodSize > emit.MaxMethodSize {
		l.MaxMethodSize = d.MaxMethodSize
	}
	if l.MaxStringSize <= 0 {
		l.MaxStringSize = d.MaxStringSize
	}
	return l
}

// SizeError reports code that cannot be kept within the method size limit.
type SizeError struct {
	What  string // "statement", "chunk", "body", "dispatcher", "init", "info" or "template"
	Line  int
	Size  int // estimated bytes
	Limit int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("line %d: %s needs an estimated %d bytes, method limit is %d", e.Line, e.What, e.Size, e.Limit)
}

// Fixed overheads of generated methods.
const (
	methodOverhead   = 64 // prologue, completion slot, final return
	dispatchOverhead = 64
	dispatchPerChunk = 16
)

// Analyze estimates the emitted size of every method the generator would
// produce for n (a script or function, including nested functions) and
// reports the first that would exceed the limits. The estimates are upper
// bounds, so a tree that passes always emits successfully.
func Analyze(n ast.Node, limits Limits) error {
	a := &analyzer{limits: limits.withDefaults()}
	var err error
	switch n := n.(type) {
	case *ast.Script:
		err = a.check("init", n.SpanVal.Start.Line, a.declarations(n.Scope))
		if err == nil {
			err = a.body(n.Body, n.SpanVal.Start.Line)
		}
	case *ast.FunctionNode:
		err = a.function(n)
	default:
		return fmt.Errorf("codegen: cannot analyze %T", n)
	}
	if err != nil {
		return err
	}
	return a.err
}

type analyzer struct {
	limits Limits
	nested []*ast.FunctionNode
	// err is the first oversized template method.
	err error
}

// check reports a method whose body estimate, plus the fixed overhead,
// exceeds the limit.
func (a *analyzer) check(what string, line, size int) error {
	size += methodOverhead
	if size > a.limits.MaxMethodSize {
		return &SizeError{What: what, Line: line, Size: size, Limit: a.limits.MaxMethodSize}
	}
	return nil
}

// declarations estimates declaration instantiation of sc: one runtime
// call per var name, lexical binding and hoisted function.
func (a *analyzer) declarations(sc *ast.Scope) int {
	n := 0
	for _, name := range sc.VarNames {
		n += 6 + a.stringCost(name)
	}
	for _, b := range sc.Lexical {
		n += 11 + a.stringCost(b.Name)
	}
	for _, fn := range sc.Functions {
		n += 15 + a.stringCost(fn.Name)
	}
	return n
}

// functionInfo estimates the runtime-info method: name, counts, the
// parameter name array and the compressed source.
func (a *analyzer) functionInfo(fn *ast.FunctionNode) int {
	n := 32 + a.stringCost(fn.Name) + a.lenCost(compressedBound(len(fn.Source)))
	for _, p := range fn.Params {
		n += 7 + a.stringCost(p)
	}
	return n
}

// compressedBound is the largest length of the compressed, base64-encoded
// form of n source bytes.
func compressedBound(n int) int {
	if n == 0 {
		return 0
	}
	raw := n + n/64 + 64
	return 4 * ((raw + 2) / 3)
}

// template estimates the method returning the cooked and raw strings of t.
func (a *analyzer) template(t *ast.TemplateLiteral) {
	n := 8
	for i := range t.Cooked {
		n += 14 + a.stringCost(t.Cooked[i]) + a.stringCost(t.Raw[i])
	}
	if err := a.check("template", t.SpanVal.Start.Line, n); err != nil && a.err == nil {
		a.err = err
	}
}

func (a *analyzer) function(fn *ast.FunctionNode) error {
	line := fn.SpanVal.Start.Line
	init := a.declarations(fn.Scope)
	for _, p := range fn.Params {
		init += 14 + a.stringCost(p)
	}
	if err := a.check("init", line, init); err != nil {
		return err
	}
	if err := a.check("info", line, a.functionInfo(fn)); err != nil {
		return err
	}
	if fn.ConciseBody {
		size := methodOverhead + a.expr(fn.Expr)
		if size > a.limits.MaxMethodSize {
			return &SizeError{What: "body", Line: fn.SpanVal.Start.Line, Size: size, Limit: a.limits.MaxMethodSize}
		}
		return a.drain()
	}
	return a.body(fn.Body, fn.SpanVal.Start.Line)
}

// body checks one statement list: each statement, each method the list is
// emitted into and the dispatcher, then the functions nested in it.
func (a *analyzer) body(list []ast.Statement, line int) error {
	max := a.limits.MaxMethodSize
	sizes := make([]int, len(list))
	for i, s := range list {
		sizes[i] = a.stmt(s)
		if sizes[i]+methodOverhead > max {
			return &SizeError{What: "statement", Line: s.Span().Start.Line, Size: sizes[i], Limit: max}
		}
	}
	chunk := len(list)
	if chunk >= a.limits.StatementsThreshold {
		chunk = a.limits.StatementsThreshold
		chunks := (len(list) + chunk - 1) / chunk
		if size := dispatchOverhead + chunks*dispatchPerChunk; size > max {
			return &SizeError{What: "dispatcher", Line: line, Size: size, Limit: max}
		}
	}
	for start := 0; start < len(list); start += chunk {
		end := min(start+chunk, len(list))
		total := methodOverhead
		for _, n := range sizes[start:end] {
			total += n
		}
		if total > max {
			what := "body"
			if chunk < len(list) {
				what = "chunk"
			}
			return &SizeError{What: what, Line: list[start].Span().Start.Line, Size: total, Limit: max}
		}
	}
	return a.drain()
}

func (a *analyzer) drain() error {
	for len(a.nested) > 0 {
		fn := a.nested[0]
		a.nested = a.nested[1:]
		if err := a.function(fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) stringCost(s string) int { return a.lenCost(len(s)) }

// lenCost estimates loading a string of n bytes, split into builder
// appends above MaxStringSize.
func (a *analyzer) lenCost(n int) int {
	if n <= a.limits.MaxStringSize {
		return 3
	}
	return 10 + 6*(n/a.limits.MaxStringSize+1)
}

// stmt estimates a statement. Nested function bodies are queued rather
// than counted: they are emitted into methods of their own.
func (a *analyzer) stmt(s ast.Statement) int {
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		return 8 + a.expr(s.Expr)
	case *ast.VariableDeclaration:
		n := 0
		for _, d := range s.Decls {
			n += 32 + a.stringCost(d.Name)
			if d.Init != nil {
				n += a.expr(d.Init)
			}
		}
		return n
	case *ast.BlockStatement:
		return a.block(s)
	case *ast.IfStatement:
		n := 16 + a.expr(s.Test) + a.stmt(s.Then)
		if s.Else != nil {
			n += a.stmt(s.Else)
		}
		return n
	case *ast.WhileStatement:
		return 16 + a.expr(s.Test) + a.stmt(s.Body)
	case *ast.ReturnStatement:
		if s.Argument == nil {
			return 8
		}
		return 8 + a.expr(s.Argument)
	case *ast.ThrowStatement:
		return 12 + a.expr(s.Argument)
	case *ast.TryStatement:
		return 96 + a.block(s.Block) + a.scope(s.CatchScope) + a.block(s.Handler)
	case *ast.FunctionDeclaration:
		a.nested = append(a.nested, s.Function)
		return 0
	}
	return 0
}

func (a *analyzer) block(b *ast.BlockStatement) int {
	n := a.scope(b.Scope)
	for _, s := range b.Body {
		n += a.stmt(s)
	}
	return n
}

// scope estimates scope entry and exit.
func (a *analyzer) scope(sc *ast.Scope) int {
	n := 24
	for _, b := range sc.Lexical {
		n += 16 + a.stringCost(b.Name)
	}
	for _, fn := range sc.Functions {
		n += 24 + a.stringCost(fn.Name)
	}
	return n
}

func (a *analyzer) expr(x ast.Expression) int {
	switch x := x.(type) {
	case *ast.NumberLiteral:
		return 12
	case *ast.StringLiteral:
		return 3 + a.stringCost(x.Value)
	case *ast.BooleanLiteral:
		return 8
	case *ast.NullLiteral, *ast.UndefinedLiteral:
		return 6
	case *ast.Identifier:
		return 18 + a.stringCost(x.Name)
	case *ast.ThisExpression:
		return 9
	case *ast.AssignmentExpression:
		return 32 + a.expr(x.Target) + a.expr(x.Value)
	case *ast.BinaryExpression:
		return 24 + a.expr(x.Left) + a.expr(x.Right)
	case *ast.LogicalExpression:
		return 16 + a.expr(x.Left) + a.expr(x.Right)
	case *ast.UnaryExpression:
		return 12 + a.expr(x.Argument)
	case *ast.CallExpression:
		return 48 + a.expr(x.Callee) + a.args(x.Arguments)
	case *ast.NewExpression:
		return 24 + a.expr(x.Callee) + a.args(x.Arguments)
	case *ast.MemberExpression:
		n := 18 + a.expr(x.Object)
		if x.Computed != nil {
			n += a.expr(x.Computed)
		} else {
			n += a.stringCost(x.Property)
		}
		return n
	case *ast.FunctionExpression:
		a.nested = append(a.nested, x.Function)
		return 64 + a.stringCost(x.Function.Name)
	case *ast.TemplateLiteral:
		n := 16
		for _, s := range x.Cooked {
			n += 8 + a.stringCost(s)
		}
		for _, e := range x.Expressions {
			n += 8 + a.expr(e)
		}
		return n
	case *ast.TaggedTemplate:
		a.template(x.Quasi)
		n := 72 + a.expr(x.Tag)
		for _, e := range x.Quasi.Expressions {
			n += 12 + a.expr(e)
		}
		return n
	}
	return 0
}

func (a *analyzer) args(list []ast.Expression) int {
	n := 8
	for _, x := range list {
		n += 12 + a.expr(x)
	}
	return n
}
