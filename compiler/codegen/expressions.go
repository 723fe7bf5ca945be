package codegen

import (
	"fmt"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/compiler/emit"
)

// kind is the representation of an expression's value on the operand
// stack: a boxed script value, an unboxed number or an unboxed boolean.
type kind uint8

const (
	kObject kind = iota
	kDouble
	kBoolean
)

func (k kind) typ() descriptor.Type {
	switch k {
	case kDouble:
		return tDouble
	case kBoolean:
		return tBool
	}
	return tObject
}

func (k kind) numeric() bool { return k == kDouble || k == kBoolean }

// staticKind returns the kind expr will produce for x without emitting
// anything.
func staticKind(x ast.Expression) kind {
	switch x := x.(type) {
	case *ast.NumberLiteral:
		return kDouble
	case *ast.BooleanLiteral:
		return kBoolean
	case *ast.BinaryExpression:
		switch x.Op {
		case "-", "*", "/", "%":
			return kDouble
		case "+":
			if staticKind(x.Left).numeric() && staticKind(x.Right).numeric() {
				return kDouble
			}
		case "==", "!=", "===", "!==", "<", ">", "<=", ">=":
			return kBoolean
		}
	case *ast.UnaryExpression:
		switch x.Op {
		case "!":
			return kBoolean
		case "-", "+":
			return kDouble
		}
	case *ast.LogicalExpression:
		if staticKind(x.Left) == kBoolean && staticKind(x.Right) == kBoolean {
			return kBoolean
		}
	}
	return kObject
}

// exprAs emits x converted to want.
func (mg *methodGen) exprAs(x ast.Expression, want kind) {
	mg.convert(mg.expr(x), want)
}

func (mg *methodGen) convert(from, to kind) {
	e := mg.e
	switch {
	case from == to:
	case to == kObject:
		e.ToBoxed(from.typ())
	case to == kDouble:
		if from == kBoolean {
			e.I2D()
		} else {
			e.Invoke(toNumber)
		}
	case to == kBoolean:
		if from == kDouble {
			e.ToBoxed(tDouble)
		}
		e.Invoke(toBoolean)
	}
}

// tailExpr emits x as a boxed value. Calls are emitted as pending tail
// calls when tail calls are enabled.
func (mg *methodGen) tailExpr(x ast.Expression) {
	if mg.tail {
		switch x := x.(type) {
		case *ast.CallExpression:
			mg.call(x, true)
			return
		case *ast.NewExpression:
			mg.construct(x, true)
			return
		case *ast.TaggedTemplate:
			mg.taggedTemplate(x, true)
			return
		}
	}
	mg.exprAs(x, kObject)
}

func (mg *methodGen) expr(x ast.Expression) kind {
	e := mg.e
	switch x := x.(type) {
	case *ast.NumberLiteral:
		e.Dconst(x.Value)
		return kDouble
	case *ast.StringLiteral:
		e.Aconst(x.Value)
	case *ast.BooleanLiteral:
		e.Bconst(x.Value)
		return kBoolean
	case *ast.NullLiteral:
		e.Get(nullField)
	case *ast.UndefinedLiteral:
		e.Get(undefinedField)
	case *ast.Identifier:
		mg.identifier(x)
	case *ast.ThisExpression:
		e.Load(mg.cx)
		e.Invoke(getThis)
	case *ast.AssignmentExpression:
		mg.assignment(x)
	case *ast.BinaryExpression:
		return mg.binary(x)
	case *ast.LogicalExpression:
		return mg.logical(x)
	case *ast.UnaryExpression:
		return mg.unary(x)
	case *ast.CallExpression:
		mg.call(x, false)
	case *ast.NewExpression:
		mg.construct(x, false)
	case *ast.MemberExpression:
		e.Load(mg.cx)
		mg.exprAs(x.Object, kObject)
		mg.propertyKey(x)
		e.Invoke(getProperty)
	case *ast.FunctionExpression:
		mg.functionExpression(x.Function)
	case *ast.TemplateLiteral:
		mg.templateLiteral(x)
	case *ast.TaggedTemplate:
		mg.taggedTemplate(x, false)
	default:
		panic(fmt.Sprintf("codegen: unexpected expression %T", x))
	}
	return kObject
}

// ---------------------------------------------------------------------------
// References
// ---------------------------------------------------------------------------

func (mg *methodGen) identifier(x *ast.Identifier) {
	e := mg.e
	e.Load(mg.cx)
	if mg.local(x.Binding) {
		e.Load(mg.slot(x.Binding))
		e.Aconst(x.Name)
		e.Invoke(checkInitialized)
		return
	}
	e.Aconst(x.Name)
	e.Bconst(true)
	e.Invoke(getIdentifier)
}

// checkSlot throws if the slot-bound b is still in its temporal dead zone.
func (mg *methodGen) checkSlot(b *ast.Binding) {
	e := mg.e
	e.Load(mg.cx)
	e.Load(mg.slot(b))
	e.Aconst(b.Name)
	e.Invoke(checkInitialized)
	e.Pop(tObject)
}

func (mg *methodGen) propertyKey(x *ast.MemberExpression) {
	if x.Computed == nil {
		mg.e.Aconst(x.Property)
		return
	}
	mg.exprAs(x.Computed, kObject)
	mg.e.Invoke(toPropertyKey)
}

// assignment leaves the assigned value on the stack.
func (mg *methodGen) assignment(x *ast.AssignmentExpression) {
	e := mg.e
	switch t := x.Target.(type) {
	case *ast.Identifier:
		if b := t.Binding; mg.local(b) {
			mg.exprAs(x.Value, kObject)
			mg.checkSlot(b)
			if b.Const() {
				e.Load(mg.cx)
				e.Aconst(b.Name)
				e.Invoke(assignConstant)
				return
			}
			e.Dup(tObject)
			e.Store(mg.slot(b))
			return
		}
		mg.exprAs(x.Value, kObject)
		mg.scratch(tObject, func(v emit.Variable) {
			e.Store(v)
			e.Load(mg.cx)
			e.Aconst(t.Name)
			e.Load(v)
			e.Bconst(mg.strict)
			e.Invoke(setIdentifier)
			e.Load(v)
		})
	case *ast.MemberExpression:
		e.Load(mg.cx)
		mg.exprAs(t.Object, kObject)
		mg.propertyKey(t)
		mg.exprAs(x.Value, kObject)
		mg.scratch(tObject, func(v emit.Variable) {
			e.Store(v)
			e.Load(v)
			e.Bconst(mg.strict)
			e.Invoke(setProperty)
			e.Load(v)
		})
	default:
		panic(fmt.Sprintf("codegen: invalid assignment target %T", t))
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

var relationalIndex = map[string]int32{"<": 0, ">": 1, "<=": 2, ">=": 3}

func (mg *methodGen) binary(x *ast.BinaryExpression) kind {
	e := mg.e
	switch x.Op {
	case "-", "*", "/", "%":
		mg.exprAs(x.Left, kDouble)
		mg.exprAs(x.Right, kDouble)
		switch x.Op {
		case "-":
			e.DSub()
		case "*":
			e.DMul()
		case "/":
			e.DDiv()
		case "%":
			e.DRem()
		}
		return kDouble
	case "+":
		if staticKind(x) == kDouble {
			mg.exprAs(x.Left, kDouble)
			mg.exprAs(x.Right, kDouble)
			e.DAdd()
			return kDouble
		}
		mg.exprAs(x.Left, kObject)
		mg.exprAs(x.Right, kObject)
		e.Invoke(addValues)
		return kObject
	case "===", "!==", "==", "!=":
		negate := x.Op == "!==" || x.Op == "!="
		if staticKind(x.Left) == kDouble && staticKind(x.Right) == kDouble {
			mg.exprAs(x.Left, kDouble)
			mg.exprAs(x.Right, kDouble)
			e.DCmpL()
			if negate {
				mg.materialize(e.IfEq)
			} else {
				mg.materialize(e.IfNe)
			}
			return kBoolean
		}
		mg.exprAs(x.Left, kObject)
		mg.exprAs(x.Right, kObject)
		if x.Op == "===" || x.Op == "!==" {
			e.Invoke(strictEquals)
		} else {
			e.Invoke(looseEquals)
		}
		if negate {
			e.Not()
		}
		return kBoolean
	case "<", ">", "<=", ">=":
		if staticKind(x.Left).numeric() && staticKind(x.Right).numeric() {
			mg.exprAs(x.Left, kDouble)
			mg.exprAs(x.Right, kDouble)
			// NaN must make every comparison false.
			switch x.Op {
			case "<":
				e.DCmpG()
				mg.materialize(e.IfGe)
			case "<=":
				e.DCmpG()
				mg.materialize(e.IfGt)
			case ">":
				e.DCmpL()
				mg.materialize(e.IfLe)
			case ">=":
				e.DCmpL()
				mg.materialize(e.IfLt)
			}
			return kBoolean
		}
		mg.exprAs(x.Left, kObject)
		mg.exprAs(x.Right, kObject)
		e.Iconst(relationalIndex[x.Op])
		e.Invoke(relational)
		return kBoolean
	}
	panic(fmt.Sprintf("codegen: unknown binary operator %q", x.Op))
}

// materialize turns a comparison result into a boolean. jumpFalse pops the
// comparison and branches when the result is false.
func (mg *methodGen) materialize(jumpFalse func(*emit.Label)) {
	e := mg.e
	falseLabel, end := e.NewLabel(), e.NewLabel()
	jumpFalse(falseLabel)
	e.Bconst(true)
	e.Goto(end)
	e.Mark(falseLabel)
	e.Bconst(false)
	e.Mark(end)
}

// logical emits && and ||, which yield one of their operands.
func (mg *methodGen) logical(x *ast.LogicalExpression) kind {
	e := mg.e
	k := staticKind(x)
	end := e.NewLabel()
	mg.exprAs(x.Left, k)
	e.Dup(k.typ())
	if k == kObject {
		e.Invoke(toBoolean)
	}
	if x.Op == "&&" {
		e.IfEq(end)
	} else {
		e.IfNe(end)
	}
	e.Pop(k.typ())
	mg.exprAs(x.Right, k)
	e.Mark(end)
	return k
}

func (mg *methodGen) unary(x *ast.UnaryExpression) kind {
	e := mg.e
	switch x.Op {
	case "!":
		mg.exprAs(x.Argument, kBoolean)
		e.Not()
		return kBoolean
	case "-":
		mg.exprAs(x.Argument, kDouble)
		e.DNeg()
		return kDouble
	case "+":
		mg.exprAs(x.Argument, kDouble)
		return kDouble
	case "typeof":
		if id, ok := x.Argument.(*ast.Identifier); ok && !mg.local(id.Binding) {
			e.Load(mg.cx)
			e.Aconst(id.Name)
			e.Invoke(typeofIdentifier)
			return kObject
		}
		mg.exprAs(x.Argument, kObject)
		e.Invoke(typeofValue)
		return kObject
	case "void":
		e.Pop(mg.expr(x.Argument).typ())
		e.Get(undefinedField)
		return kObject
	}
	panic(fmt.Sprintf("codegen: unknown unary operator %q", x.Op))
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (mg *methodGen) call(x *ast.CallExpression, tail bool) {
	mg.callee(x.Callee)
	mg.arguments(x.Arguments)
	mg.invokeCall(tail)
}

func (mg *methodGen) invokeCall(tail bool) {
	if tail {
		mg.e.Invoke(prepareTailCall)
	} else {
		mg.e.Invoke(callValue)
	}
}

// callee pushes the execution context, the function and the this value.
// A member callee supplies its object as this.
func (mg *methodGen) callee(c ast.Expression) {
	e := mg.e
	m, ok := c.(*ast.MemberExpression)
	if !ok {
		e.Load(mg.cx)
		mg.exprAs(c, kObject)
		e.Get(undefinedField)
		return
	}
	mg.exprAs(m.Object, kObject)
	mg.scratch(tObject, func(obj emit.Variable) {
		e.Store(obj)
		e.Load(mg.cx)
		e.Load(mg.cx)
		e.Load(obj)
		mg.propertyKey(m)
		e.Invoke(getProperty)
		e.Load(obj)
	})
}

func (mg *methodGen) arguments(args []ast.Expression) {
	e := mg.e
	e.NewArrayOf(len(args), tObject)
	for i, a := range args {
		e.Dup(tObjectArray)
		e.Iconst(int32(i))
		mg.exprAs(a, kObject)
		e.ArrayStore(tObject)
	}
}

func (mg *methodGen) construct(x *ast.NewExpression, tail bool) {
	e := mg.e
	e.Load(mg.cx)
	mg.exprAs(x.Callee, kObject)
	mg.arguments(x.Arguments)
	if tail {
		e.Invoke(prepareTailConstruct)
	} else {
		e.Invoke(constructValue)
	}
}

// functionExpression instantiates a closure. A named function expression
// sees its own name through a one-binding environment around the closure.
func (mg *methodGen) functionExpression(fn *ast.FunctionNode) {
	e := mg.e
	if fn.Name == "" || fn.Arrow {
		mg.instantiate(fn)
		return
	}
	mg.pushEnvironment()
	e.Load(mg.cx)
	e.Aconst(fn.Name)
	e.Bconst(false)
	e.Invoke(declareLexical)
	mg.instantiate(fn)
	mg.scratch(tObject, func(v emit.Variable) {
		e.Store(v)
		e.Load(mg.cx)
		e.Aconst(fn.Name)
		e.Load(v)
		e.Invoke(initializeLexical)
		mg.popEnvironment()
		e.Load(v)
	})
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func (mg *methodGen) templateLiteral(x *ast.TemplateLiteral) {
	e := mg.e
	e.New(descriptor.StringBuilder.Name())
	e.Dup(descriptor.StringBuilder)
	e.Invoke(sbInit)
	for i, s := range x.Cooked {
		if s != "" {
			e.Aconst(s)
			e.Invoke(sbAppend)
		}
		if i < len(x.Expressions) {
			mg.exprAs(x.Expressions[i], kObject)
			e.Invoke(toStringValue)
			e.Invoke(sbAppend)
		}
	}
	e.Invoke(sbToString)
}

// taggedTemplate calls the tag with the template's call-site object
// followed by the substitution values. The call-site object is created on
// first evaluation and cached by the realm under the site's key.
func (mg *methodGen) taggedTemplate(x *ast.TaggedTemplate, tail bool) {
	e := mg.e
	site := mg.g.template(x.Quasi)
	mg.callee(x.Tag)
	e.NewArrayOf(len(x.Quasi.Expressions)+1, tObject)
	e.Dup(tObjectArray)
	e.Iconst(0)
	e.Load(mg.realm)
	e.Aconst(site.key)
	e.Handle(site.method.Desc())
	e.Invoke(getTemplateCallSite)
	e.ArrayStore(tObject)
	for i, a := range x.Quasi.Expressions {
		e.Dup(tObjectArray)
		e.Iconst(int32(i + 1))
		mg.exprAs(a, kObject)
		e.ArrayStore(tObject)
	}
	mg.invokeCall(tail)
}
