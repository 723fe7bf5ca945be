package ast

// ScopeKind classifies a scope.
type ScopeKind uint8

const (
	ScriptScope ScopeKind = iota
	FunctionScope
	BlockScope
	CatchScope
)

func (k ScopeKind) String() string {
	switch k {
	case ScriptScope:
		return "script"
	case FunctionScope:
		return "function"
	case BlockScope:
		return "block"
	case CatchScope:
		return "catch"
	}
	return "ScopeKind(?)"
}

// Binding is the resolution of a declared name.
//
// A Local binding lives in a method slot: nothing can observe it through the
// environment chain (no closure captures it, no dynamic lookup can reach it).
// All other bindings live in environment records.
type Binding struct {
	Name  string
	Kind  DeclKind
	Local bool
}

// Const reports whether assignment to the binding is an error.
func (b *Binding) Const() bool { return b.Kind == Const }

// Lexical reports whether the binding is block-scoped and subject to the
// temporal dead zone.
func (b *Binding) Lexical() bool {
	return b.Kind == Let || b.Kind == Const || b.Kind == CatchParam
}

// Scope records the declarations of one function, script, block or catch
// clause.
type Scope struct {
	Kind   ScopeKind
	Parent *Scope
	Strict bool

	// VarNames are the var-declared names hoisted to a function or script
	// scope. Parameters are not repeated here.
	VarNames []string

	// Lexical are the let/const declarations of this scope in source order.
	Lexical []*Binding

	// Functions are the function declarations of the scope. Those of a
	// function or script scope are bound during declaration instantiation;
	// those of a block are instantiated on block entry and assigned to the
	// var of the same name in the enclosing function.
	Functions []*FunctionNode
}

// NewScope returns a scope nested in parent. Strictness is inherited.
func NewScope(kind ScopeKind, parent *Scope) *Scope {
	s := &Scope{Kind: kind, Parent: parent}
	if parent != nil {
		s.Strict = parent.Strict
	}
	return s
}

// Declare adds a lexical binding.
func (s *Scope) Declare(name string, kind DeclKind, local bool) *Binding {
	b := &Binding{Name: name, Kind: kind, Local: local}
	s.Lexical = append(s.Lexical, b)
	return b
}

// DeclareVar adds a hoisted var name if not already present.
func (s *Scope) DeclareVar(name string) {
	for _, v := range s.VarNames {
		if v == name {
			return
		}
	}
	s.VarNames = append(s.VarNames, name)
}

// LocalBindings returns the slot-bound lexical bindings.
func (s *Scope) LocalBindings() []*Binding {
	var out []*Binding
	for _, b := range s.Lexical {
		if b.Local {
			out = append(out, b)
		}
	}
	return out
}

// EnvironmentBindings returns the lexical bindings that live in an
// environment record.
func (s *Scope) EnvironmentBindings() []*Binding {
	var out []*Binding
	for _, b := range s.Lexical {
		if !b.Local {
			out = append(out, b)
		}
	}
	return out
}

// NeedsEnvironment reports whether entering the scope must push a
// declarative environment.
func (s *Scope) NeedsEnvironment() bool {
	for _, b := range s.Lexical {
		if !b.Local {
			return true
		}
	}
	return false
}

// Lookup resolves name against this scope and its ancestors. It returns nil
// for names that resolve dynamically.
func (s *Scope) Lookup(name string) *Binding {
	for sc := s; sc != nil; sc = sc.Parent {
		for _, b := range sc.Lexical {
			if b.Name == name {
				return b
			}
		}
		if sc.Kind == FunctionScope || sc.Kind == ScriptScope {
			return nil
		}
	}
	return nil
}
