package compiler

import (
	"fmt"
	"sync"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/runtime"
	"github.com/chazu/esdraft/vm"
)

// CompiledUnit is the result of a compilation. Its methods are safe for
// concurrent use; the archive is linked on first execution.
type CompiledUnit struct {
	archive  *code.Archive
	images   []*code.UnitImage
	extern   []constpool.Constant
	function bool
	smap     string

	linkOnce sync.Once
	program  *vm.Program
	linkErr  error
}

func newCompiledUnit(ar *code.Archive) (*CompiledUnit, error) {
	images, extern, err := ar.Decode()
	if err != nil {
		return nil, err
	}
	cu := &CompiledUnit{archive: ar, images: images, extern: extern}
	for _, u := range images {
		if u.Name == ar.Main {
			cu.function = u.Super == superName(&ast.FunctionNode{})
		}
	}
	return cu, nil
}

// Load wraps an archive produced by an earlier compilation, for example one
// read back from disk.
func Load(ar *code.Archive) (*CompiledUnit, error) {
	cu, err := newCompiledUnit(ar)
	if err != nil {
		return nil, compilationError(err)
	}
	return cu, nil
}

// Name returns the main unit's name.
func (cu *CompiledUnit) Name() string { return cu.archive.Main }

// Archive returns the encoded units.
func (cu *CompiledUnit) Archive() *code.Archive { return cu.archive }

// SourceMap returns the SMAP artifact, or "" if none was requested.
func (cu *CompiledUnit) SourceMap() string { return cu.smap }

// Methods lists every generated method as unit.name(descriptor).
func (cu *CompiledUnit) Methods() []string {
	var out []string
	for _, u := range cu.images {
		for _, m := range u.Methods {
			out = append(out, u.Name+"."+m.Name+m.Desc)
		}
	}
	return out
}

func (cu *CompiledUnit) link() (*vm.Program, error) {
	cu.linkOnce.Do(func() {
		cu.program, cu.linkErr = vm.Link(cu.archive)
		if cu.linkErr == nil {
			log.Debugf("linked %s", cu.Name())
		}
	})
	return cu.program, cu.linkErr
}

// Execute runs the unit against cx. A script yields its completion value;
// a function yields a new closure instantiated in cx.
func (cu *CompiledUnit) Execute(cx *runtime.ExecutionContext) (runtime.Value, error) {
	p, err := cu.link()
	if err != nil {
		return nil, err
	}
	if !cu.function {
		return p.Evaluate(cx)
	}
	h, err := p.Handle(p.Main, "runtimeInfo")
	if err != nil {
		return nil, err
	}
	v, err := h.Invoke()
	if err != nil {
		return nil, err
	}
	info, ok := v.(*runtime.FunctionInfo)
	if !ok {
		return nil, fmt.Errorf("compiler: %s.runtimeInfo returned %T", p.Main, v)
	}
	return runtime.InstantiateFunction(cx, info), nil
}
