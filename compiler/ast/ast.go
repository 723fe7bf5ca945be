// Package ast defines the resolved syntax tree consumed by the code
// generator. Scopes are already resolved and every identifier carries its
// binding classification.
package ast

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Statement is the interface for statement nodes.
type Statement interface {
	Node
	stmt() // marker method
}

// Expression is the interface for expression nodes.
type Expression interface {
	Node
	expr() // marker method
}

// ---------------------------------------------------------------------------
// Top-level units
// ---------------------------------------------------------------------------

// Script is a top-level script.
type Script struct {
	SpanVal Span
	File    string // source file name, "" if unknown
	Path    string // source path for source maps
	Body    []Statement
	Scope   *Scope
}

func (n *Script) Span() Span { return n.SpanVal }
func (n *Script) node()      {}

// Strict reports whether the script is strict-mode code.
func (n *Script) Strict() bool { return n.Scope != nil && n.Scope.Strict }

// FunctionNode is a function declaration, function expression or arrow
// function. Concise arrow bodies hold their expression in Expr and have no
// Body statements.
type FunctionNode struct {
	SpanVal     Span
	Name        string
	Params      []string
	Body        []Statement
	Expr        Expression
	Scope       *Scope
	Arrow       bool
	ConciseBody bool
	Source      string // source text of the whole function
}

func (n *FunctionNode) Span() Span { return n.SpanVal }
func (n *FunctionNode) node()      {}

// Strict reports whether the function is strict-mode code.
func (n *FunctionNode) Strict() bool { return n.Scope != nil && n.Scope.Strict }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ExpressionStatement evaluates an expression for its value.
type ExpressionStatement struct {
	SpanVal Span
	Expr    Expression
}

func (n *ExpressionStatement) Span() Span { return n.SpanVal }
func (n *ExpressionStatement) node()      {}
func (n *ExpressionStatement) stmt()      {}

// DeclKind distinguishes var, let and const declarations and the implicit
// declarations introduced by parameters, functions and catch clauses.
type DeclKind uint8

const (
	Var DeclKind = iota
	Let
	Const
	Param
	FunctionDecl
	CatchParam
)

var declKindNames = [...]string{
	Var:          "var",
	Let:          "let",
	Const:        "const",
	Param:        "param",
	FunctionDecl: "function",
	CatchParam:   "catch",
}

func (k DeclKind) String() string {
	if int(k) < len(declKindNames) {
		return declKindNames[k]
	}
	return "DeclKind(?)"
}

// VariableDeclaration is a var, let or const statement.
type VariableDeclaration struct {
	SpanVal Span
	Kind    DeclKind
	Decls   []*VariableDeclarator
}

func (n *VariableDeclaration) Span() Span { return n.SpanVal }
func (n *VariableDeclaration) node()      {}
func (n *VariableDeclaration) stmt()      {}

// VariableDeclarator is one name = init pair.
type VariableDeclarator struct {
	SpanVal Span
	Name    string
	Binding *Binding
	Init    Expression // nil if absent
}

func (n *VariableDeclarator) Span() Span { return n.SpanVal }
func (n *VariableDeclarator) node()      {}

// BlockStatement is a braced statement list with its own lexical scope.
type BlockStatement struct {
	SpanVal Span
	Body    []Statement
	Scope   *Scope
}

func (n *BlockStatement) Span() Span { return n.SpanVal }
func (n *BlockStatement) node()      {}
func (n *BlockStatement) stmt()      {}

// IfStatement is a conditional.
type IfStatement struct {
	SpanVal Span
	Test    Expression
	Then    Statement
	Else    Statement // nil if absent
}

func (n *IfStatement) Span() Span { return n.SpanVal }
func (n *IfStatement) node()      {}
func (n *IfStatement) stmt()      {}

// WhileStatement is a pre-tested loop.
type WhileStatement struct {
	SpanVal Span
	Test    Expression
	Body    Statement
}

func (n *WhileStatement) Span() Span { return n.SpanVal }
func (n *WhileStatement) node()      {}
func (n *WhileStatement) stmt()      {}

// ReturnStatement returns from the enclosing function.
type ReturnStatement struct {
	SpanVal  Span
	Argument Expression // nil for a bare return
}

func (n *ReturnStatement) Span() Span { return n.SpanVal }
func (n *ReturnStatement) node()      {}
func (n *ReturnStatement) stmt()      {}

// ThrowStatement throws a value.
type ThrowStatement struct {
	SpanVal  Span
	Argument Expression
}

func (n *ThrowStatement) Span() Span { return n.SpanVal }
func (n *ThrowStatement) node()      {}
func (n *ThrowStatement) stmt()      {}

// TryStatement is try/catch. The catch parameter, if any, is declared in
// CatchScope.
type TryStatement struct {
	SpanVal    Span
	Block      *BlockStatement
	Param      *Binding // nil for catch without a binding
	CatchScope *Scope
	Handler    *BlockStatement
}

func (n *TryStatement) Span() Span { return n.SpanVal }
func (n *TryStatement) node()      {}
func (n *TryStatement) stmt()      {}

// FunctionDeclaration declares a hoisted function. The function itself is
// listed in the Functions of the enclosing function or script scope.
type FunctionDeclaration struct {
	SpanVal  Span
	Function *FunctionNode
}

func (n *FunctionDeclaration) Span() Span { return n.SpanVal }
func (n *FunctionDeclaration) node()      {}
func (n *FunctionDeclaration) stmt()      {}

// EmptyStatement is a lone semicolon.
type EmptyStatement struct {
	SpanVal Span
}

func (n *EmptyStatement) Span() Span { return n.SpanVal }
func (n *EmptyStatement) node()      {}
func (n *EmptyStatement) stmt()      {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// NumberLiteral is a numeric literal.
type NumberLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// StringLiteral is a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BooleanLiteral) Span() Span { return n.SpanVal }
func (n *BooleanLiteral) node()      {}
func (n *BooleanLiteral) expr()      {}

// NullLiteral is null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// UndefinedLiteral is the undefined value, as produced by void applied to a
// literal.
type UndefinedLiteral struct {
	SpanVal Span
}

func (n *UndefinedLiteral) Span() Span { return n.SpanVal }
func (n *UndefinedLiteral) node()      {}
func (n *UndefinedLiteral) expr()      {}

// Identifier references a binding. Binding is nil when the name resolves
// dynamically through the environment chain.
type Identifier struct {
	SpanVal Span
	Name    string
	Binding *Binding
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// Local reports whether the identifier is bound to a method slot.
func (n *Identifier) Local() bool { return n.Binding != nil && n.Binding.Local }

// ThisExpression is this.
type ThisExpression struct {
	SpanVal Span
}

func (n *ThisExpression) Span() Span { return n.SpanVal }
func (n *ThisExpression) node()      {}
func (n *ThisExpression) expr()      {}

// AssignmentExpression is target = value. Target is an *Identifier or a
// *MemberExpression.
type AssignmentExpression struct {
	SpanVal Span
	Target  Expression
	Value   Expression
}

func (n *AssignmentExpression) Span() Span { return n.SpanVal }
func (n *AssignmentExpression) node()      {}
func (n *AssignmentExpression) expr()      {}

// BinaryExpression applies an arithmetic, equality or relational operator.
type BinaryExpression struct {
	SpanVal Span
	Op      string
	Left    Expression
	Right   Expression
}

func (n *BinaryExpression) Span() Span { return n.SpanVal }
func (n *BinaryExpression) node()      {}
func (n *BinaryExpression) expr()      {}

// LogicalExpression is && or ||.
type LogicalExpression struct {
	SpanVal Span
	Op      string
	Left    Expression
	Right   Expression
}

func (n *LogicalExpression) Span() Span { return n.SpanVal }
func (n *LogicalExpression) node()      {}
func (n *LogicalExpression) expr()      {}

// UnaryExpression is !, -, +, typeof or void.
type UnaryExpression struct {
	SpanVal  Span
	Op       string
	Argument Expression
}

func (n *UnaryExpression) Span() Span { return n.SpanVal }
func (n *UnaryExpression) node()      {}
func (n *UnaryExpression) expr()      {}

// CallExpression is a function call.
type CallExpression struct {
	SpanVal   Span
	Callee    Expression
	Arguments []Expression
}

func (n *CallExpression) Span() Span { return n.SpanVal }
func (n *CallExpression) node()      {}
func (n *CallExpression) expr()      {}

// NewExpression is a constructor call.
type NewExpression struct {
	SpanVal   Span
	Callee    Expression
	Arguments []Expression
}

func (n *NewExpression) Span() Span { return n.SpanVal }
func (n *NewExpression) node()      {}
func (n *NewExpression) expr()      {}

// MemberExpression is object.property or object[computed].
type MemberExpression struct {
	SpanVal  Span
	Object   Expression
	Property string     // for dotted access
	Computed Expression // nil for dotted access
}

func (n *MemberExpression) Span() Span { return n.SpanVal }
func (n *MemberExpression) node()      {}
func (n *MemberExpression) expr()      {}

// FunctionExpression evaluates to a new closure.
type FunctionExpression struct {
	SpanVal  Span
	Function *FunctionNode
}

func (n *FunctionExpression) Span() Span { return n.SpanVal }
func (n *FunctionExpression) node()      {}
func (n *FunctionExpression) expr()      {}

// TemplateLiteral is a literal with holes. Cooked and Raw have one more
// element than Expressions.
type TemplateLiteral struct {
	SpanVal     Span
	Cooked      []string
	Raw         []string
	Expressions []Expression
}

func (n *TemplateLiteral) Span() Span { return n.SpanVal }
func (n *TemplateLiteral) node()      {}
func (n *TemplateLiteral) expr()      {}

// TaggedTemplate calls Tag with the template's call-site object and the
// substitution values.
type TaggedTemplate struct {
	SpanVal Span
	Tag     Expression
	Quasi   *TemplateLiteral
}

func (n *TaggedTemplate) Span() Span { return n.SpanVal }
func (n *TaggedTemplate) node()      {}
func (n *TaggedTemplate) expr()      {}
