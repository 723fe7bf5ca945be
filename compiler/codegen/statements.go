package codegen

import (
	"fmt"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/compiler/emit"
)

// statements emits list in order. Statements after an unconditional
// return or throw are unreachable and are not emitted.
func (mg *methodGen) statements(list []ast.Statement) {
	for _, s := range list {
		if !mg.e.Reachable() {
			return
		}
		mg.statement(s)
	}
}

func (mg *methodGen) statement(s ast.Statement) {
	e := mg.e
	e.LineInfo(s.Span().Start.Line)
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		if mg.completion != nil {
			mg.exprAs(s.Expr, kObject)
			e.Store(*mg.completion)
		} else {
			k := mg.expr(s.Expr)
			e.Pop(k.typ())
		}
	case *ast.VariableDeclaration:
		mg.declaration(s)
	case *ast.BlockStatement:
		pushed := mg.enterScope(s.Scope)
		mg.statements(s.Body)
		mg.exitScope(pushed)
	case *ast.IfStatement:
		mg.ifStatement(s)
	case *ast.WhileStatement:
		mg.whileStatement(s)
	case *ast.ReturnStatement:
		if s.Argument == nil {
			e.Get(undefinedField)
		} else {
			mg.tailExpr(s.Argument)
		}
		e.Return()
	case *ast.ThrowStatement:
		e.Load(mg.cx)
		mg.exprAs(s.Argument, kObject)
		e.Invoke(toThrowable)
		e.Throw()
	case *ast.TryStatement:
		mg.tryStatement(s)
	case *ast.FunctionDeclaration, *ast.EmptyStatement:
		// Function declarations are bound when their scope is entered.
	default:
		panic(fmt.Sprintf("codegen: unexpected statement %T", s))
	}
}

func (mg *methodGen) declaration(s *ast.VariableDeclaration) {
	e := mg.e
	for _, d := range s.Decls {
		if s.Kind == ast.Var {
			if d.Init == nil {
				continue
			}
			e.Load(mg.cx)
			e.Aconst(d.Name)
			mg.exprAs(d.Init, kObject)
			e.Bconst(mg.strict)
			e.Invoke(setIdentifier)
			continue
		}
		if mg.local(d.Binding) {
			mg.initializer(d.Init)
			e.Store(mg.slot(d.Binding))
			continue
		}
		e.Load(mg.cx)
		e.Aconst(d.Name)
		mg.initializer(d.Init)
		e.Invoke(initializeLexical)
	}
}

func (mg *methodGen) initializer(x ast.Expression) {
	if x == nil {
		mg.e.Get(undefinedField)
		return
	}
	mg.exprAs(x, kObject)
}

func (mg *methodGen) ifStatement(s *ast.IfStatement) {
	e := mg.e
	elseLabel := e.NewLabel()
	mg.exprAs(s.Test, kBoolean)
	e.IfEq(elseLabel)
	mg.statement(s.Then)
	if s.Else == nil {
		e.Mark(elseLabel)
		return
	}
	var end *emit.Label
	if e.Reachable() {
		end = e.NewLabel()
		e.Goto(end)
	}
	e.Mark(elseLabel)
	mg.statement(s.Else)
	if end != nil {
		e.Mark(end)
	}
}

func (mg *methodGen) whileStatement(s *ast.WhileStatement) {
	e := mg.e
	top, exit := e.NewLabel(), e.NewLabel()
	e.Mark(top)
	mg.exprAs(s.Test, kBoolean)
	e.IfEq(exit)
	mg.statement(s.Body)
	if e.Reachable() {
		e.Goto(top)
	}
	e.Mark(exit)
}

// tryStatement emits try/catch. The handler catches thrown script values
// only, restores the lexical environment saved on entry and binds the
// caught value.
func (mg *methodGen) tryStatement(s *ast.TryStatement) {
	e := mg.e
	saved := e.NewScratchVariable(tEnv)
	e.Load(mg.cx)
	e.Invoke(getLexicalEnvironment)
	e.Store(saved)

	start, end, handler := e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.Mark(start)
	// A return inside the protected block is not in tail position: the
	// handler must observe exceptions raised by the call.
	tail := mg.tail
	mg.tail = false
	pushed := mg.enterScope(s.Block.Scope)
	mg.statements(s.Block.Body)
	mg.exitScope(pushed)
	mg.tail = tail
	e.MarkRegion(end)
	var after *emit.Label
	if e.Reachable() {
		after = e.NewLabel()
		e.Goto(after)
	}
	e.TryCatch(start, end, handler, "ScriptError")

	e.CatchHandler(handler, descriptor.Throwable)
	e.Invoke(exceptionValue)
	e.Load(mg.cx)
	e.Load(saved)
	e.Invoke(restoreLexicalEnvironment)
	e.FreeVariable(saved)

	pushed = mg.enterScope(s.CatchScope)
	switch {
	case s.Param == nil:
		e.Pop(tObject)
	case mg.local(s.Param):
		e.Store(mg.slot(s.Param))
	default:
		mg.scratch(tObject, func(v emit.Variable) {
			e.Store(v)
			e.Load(mg.cx)
			e.Aconst(s.Param.Name)
			e.Load(v)
			e.Invoke(initializeLexical)
		})
	}
	inner := mg.enterScope(s.Handler.Scope)
	mg.statements(s.Handler.Body)
	mg.exitScope(inner)
	mg.exitScope(pushed)
	if after != nil {
		e.Mark(after)
	}
}
