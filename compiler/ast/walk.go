package ast

// Children returns the direct children of n in evaluation order. Nested
// function nodes are children of their FunctionExpression or
// FunctionDeclaration.
func Children(n Node) []Node {
	var out []Node
	add := func(c Node) {
		if c != nil && !isNilNode(c) {
			out = append(out, c)
		}
	}
	switch n := n.(type) {
	case *Script:
		for _, s := range n.Body {
			add(s)
		}
	case *FunctionNode:
		for _, s := range n.Body {
			add(s)
		}
		if n.Expr != nil {
			add(n.Expr)
		}
	case *ExpressionStatement:
		add(n.Expr)
	case *VariableDeclaration:
		for _, d := range n.Decls {
			add(d)
		}
	case *VariableDeclarator:
		if n.Init != nil {
			add(n.Init)
		}
	case *BlockStatement:
		for _, s := range n.Body {
			add(s)
		}
	case *IfStatement:
		add(n.Test)
		add(n.Then)
		if n.Else != nil {
			add(n.Else)
		}
	case *WhileStatement:
		add(n.Test)
		add(n.Body)
	case *ReturnStatement:
		if n.Argument != nil {
			add(n.Argument)
		}
	case *ThrowStatement:
		add(n.Argument)
	case *TryStatement:
		add(n.Block)
		add(n.Handler)
	case *FunctionDeclaration:
		add(n.Function)
	case *AssignmentExpression:
		add(n.Target)
		add(n.Value)
	case *BinaryExpression:
		add(n.Left)
		add(n.Right)
	case *LogicalExpression:
		add(n.Left)
		add(n.Right)
	case *UnaryExpression:
		add(n.Argument)
	case *CallExpression:
		add(n.Callee)
		for _, a := range n.Arguments {
			add(a)
		}
	case *NewExpression:
		add(n.Callee)
		for _, a := range n.Arguments {
			add(a)
		}
	case *MemberExpression:
		add(n.Object)
		if n.Computed != nil {
			add(n.Computed)
		}
	case *FunctionExpression:
		add(n.Function)
	case *TemplateLiteral:
		for _, e := range n.Expressions {
			add(e)
		}
	case *TaggedTemplate:
		add(n.Tag)
		add(n.Quasi)
	}
	return out
}

// isNilNode catches typed nil pointers stored in interface fields.
func isNilNode(n Node) bool {
	switch n := n.(type) {
	case *BlockStatement:
		return n == nil
	case *FunctionNode:
		return n == nil
	case *TemplateLiteral:
		return n == nil
	}
	return false
}

// Inspect traverses the tree rooted at n depth-first. If f returns false the
// children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// CountStatements returns the number of top-level statements of a script or
// function body.
func CountStatements(n Node) int {
	switch n := n.(type) {
	case *Script:
		return len(n.Body)
	case *FunctionNode:
		return len(n.Body)
	}
	return 0
}
