package parse

import "github.com/chazu/esdraft/compiler/ast"

// ---------------------------------------------------------------------------
// Resolver: binds identifiers and classifies lexical bindings
// ---------------------------------------------------------------------------

// resolver links every identifier to the lexical binding it refers to and
// decides which bindings can live in method slots. A binding is slot-bound
// unless a nested function refers to it or it belongs to the script scope,
// whose lexical declarations are shared with later scripts.
type resolver struct {
	params   map[*ast.Scope][]string
	names    map[*ast.Scope]string // function name, visible in its own body
	captured map[*ast.Binding]bool
	scopes   []*ast.Scope
}

func resolve(root ast.Node, params map[*ast.Scope][]string) {
	r := &resolver{
		params:   params,
		names:    make(map[*ast.Scope]string),
		captured: make(map[*ast.Binding]bool),
	}
	switch n := root.(type) {
	case *ast.Script:
		r.scopes = append(r.scopes, n.Scope)
		r.stmts(n.Body, n.Scope)
	case *ast.FunctionNode:
		r.function(n)
	}
	for _, sc := range r.scopes {
		for _, b := range sc.Lexical {
			b.Local = sc.Kind != ast.ScriptScope && !r.captured[b]
		}
	}
}

// lookup finds the lexical binding name refers to from scope sc. It returns
// nil for names bound by var, parameters or function declarations and for
// free names. captured is set when the binding belongs to an outer function.
func (r *resolver) lookup(name string, sc *ast.Scope) (b *ast.Binding, captured bool) {
	for s := sc; s != nil; s = s.Parent {
		for _, b := range s.Lexical {
			if b.Name == name {
				return b, captured
			}
		}
		if s.Kind == ast.FunctionScope || s.Kind == ast.ScriptScope {
			if r.declares(s, name) {
				return nil, captured
			}
			captured = true
		}
	}
	return nil, captured
}

func (r *resolver) declares(s *ast.Scope, name string) bool {
	if r.names[s] == name {
		return true
	}
	for _, p := range r.params[s] {
		if p == name {
			return true
		}
	}
	for _, v := range s.VarNames {
		if v == name {
			return true
		}
	}
	for _, f := range s.Functions {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (r *resolver) function(fn *ast.FunctionNode) {
	r.scopes = append(r.scopes, fn.Scope)
	if fn.Name != "" {
		r.names[fn.Scope] = fn.Name
	}
	r.stmts(fn.Body, fn.Scope)
	if fn.Expr != nil {
		r.expr(fn.Expr, fn.Scope)
	}
}

func (r *resolver) stmts(list []ast.Statement, sc *ast.Scope) {
	for _, s := range list {
		r.stmt(s, sc)
	}
}

func (r *resolver) stmt(s ast.Statement, sc *ast.Scope) {
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		r.expr(s.Expr, sc)
	case *ast.VariableDeclaration:
		for _, d := range s.Decls {
			if d.Init != nil {
				r.expr(d.Init, sc)
			}
		}
	case *ast.BlockStatement:
		r.block(s)
	case *ast.IfStatement:
		r.expr(s.Test, sc)
		r.stmt(s.Then, sc)
		if s.Else != nil {
			r.stmt(s.Else, sc)
		}
	case *ast.WhileStatement:
		r.expr(s.Test, sc)
		r.stmt(s.Body, sc)
	case *ast.ReturnStatement:
		if s.Argument != nil {
			r.expr(s.Argument, sc)
		}
	case *ast.ThrowStatement:
		r.expr(s.Argument, sc)
	case *ast.TryStatement:
		r.block(s.Block)
		r.scopes = append(r.scopes, s.CatchScope)
		r.block(s.Handler)
	case *ast.FunctionDeclaration:
		r.function(s.Function)
	}
}

func (r *resolver) block(b *ast.BlockStatement) {
	r.scopes = append(r.scopes, b.Scope)
	r.stmts(b.Body, b.Scope)
}

func (r *resolver) expr(e ast.Expression, sc *ast.Scope) {
	switch e := e.(type) {
	case *ast.Identifier:
		b, captured := r.lookup(e.Name, sc)
		e.Binding = b
		if b != nil && captured {
			r.captured[b] = true
		}
	case *ast.AssignmentExpression:
		r.expr(e.Target, sc)
		r.expr(e.Value, sc)
	case *ast.BinaryExpression:
		r.expr(e.Left, sc)
		r.expr(e.Right, sc)
	case *ast.LogicalExpression:
		r.expr(e.Left, sc)
		r.expr(e.Right, sc)
	case *ast.UnaryExpression:
		r.expr(e.Argument, sc)
	case *ast.CallExpression:
		r.expr(e.Callee, sc)
		for _, a := range e.Arguments {
			r.expr(a, sc)
		}
	case *ast.NewExpression:
		r.expr(e.Callee, sc)
		for _, a := range e.Arguments {
			r.expr(a, sc)
		}
	case *ast.MemberExpression:
		r.expr(e.Object, sc)
		if e.Computed != nil {
			r.expr(e.Computed, sc)
		}
	case *ast.FunctionExpression:
		r.function(e.Function)
	case *ast.TemplateLiteral:
		for _, x := range e.Expressions {
			r.expr(x, sc)
		}
	case *ast.TaggedTemplate:
		r.expr(e.Tag, sc)
		r.expr(e.Quasi, sc)
	}
}
