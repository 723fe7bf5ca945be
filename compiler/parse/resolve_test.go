package parse

import (
	"testing"

	"github.com/chazu/esdraft/compiler/ast"
)

// identifiers collects every identifier named name.
func identifiers(root ast.Node, name string) []*ast.Identifier {
	var out []*ast.Identifier
	ast.Inspect(root, func(n ast.Node) bool {
		if id, ok := n.(*ast.Identifier); ok && id.Name == name {
			out = append(out, id)
		}
		return true
	})
	return out
}

func TestResolveSlotAndEnvironmentBindings(t *testing.T) {
	script, err := ParseScript(`
let top = 1;
function f(p) {
	let slot = p;
	let shared = 2;
	var v = 3;
	{
		const inner = slot + top;
		v = inner;
	}
	return () => shared + v;
}`, "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		local bool
		bound bool
	}{
		{"top", false, true},   // script-level lexical
		{"slot", true, true},   // not captured
		{"shared", false, true}, // captured by the arrow
		{"inner", true, true},
		{"v", false, false}, // var: dynamic
		{"p", false, false}, // parameter: dynamic
	}
	for _, tc := range tests {
		ids := identifiers(script, tc.name)
		if len(ids) == 0 {
			t.Fatalf("no references to %s", tc.name)
		}
		for _, id := range ids {
			if (id.Binding != nil) != tc.bound {
				t.Errorf("%s: bound = %v, want %v", tc.name, id.Binding != nil, tc.bound)
				continue
			}
			if id.Local() != tc.local {
				t.Errorf("%s: local = %v, want %v", tc.name, id.Local(), tc.local)
			}
		}
	}
}

func TestResolveShadowing(t *testing.T) {
	script, err := ParseScript(`
{
	let x = 1;
	function g(x) { return x }
	function h() { var x; return x }
	x;
}`, "")
	if err != nil {
		t.Fatal(err)
	}
	block := script.Body[0].(*ast.BlockStatement)
	if len(block.Scope.Functions) != 2 {
		t.Fatalf("block functions = %d", len(block.Scope.Functions))
	}
	if len(script.Scope.VarNames) != 2 {
		t.Errorf("block functions not declared as vars: %v", script.Scope.VarNames)
	}
	ids := identifiers(script, "x")
	// g's and h's references resolve to their own declarations, so the
	// block's x is not captured.
	var blockRefs int
	for _, id := range ids {
		if id.Binding != nil {
			blockRefs++
			if !id.Local() {
				t.Errorf("block x not slot-bound")
			}
		}
	}
	if blockRefs != 1 {
		t.Errorf("references to block x = %d, want 1", blockRefs)
	}
}

func TestResolveCatchParameter(t *testing.T) {
	script, err := ParseScript(`
try { f() } catch (e) { e }
try { f() } catch (e) { g(() => e) }`, "")
	if err != nil {
		t.Fatal(err)
	}
	first := script.Body[0].(*ast.TryStatement)
	second := script.Body[1].(*ast.TryStatement)
	if !first.Param.Local {
		t.Errorf("uncaptured catch parameter not slot-bound")
	}
	if second.Param.Local {
		t.Errorf("captured catch parameter slot-bound")
	}
	if first.Handler.Scope.Parent != first.CatchScope {
		t.Errorf("handler scope not nested in catch scope")
	}
}
