// Package compiler is the entry point of the code generator. Compile turns a
// resolved syntax tree into a CompiledUnit: an archive of encoded units that
// the vm package links and runs.
package compiler

import (
	"errors"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/codegen"
)

var log = commonlog.GetLogger("esdraft.compiler")

// Flags select optional compiler output.
type Flags uint8

const (
	// Debug writes a disassembly listing to Options.Output.
	Debug Flags = 1 << iota
	// FullDebug adds line, handler and local variable tables to the listing.
	FullDebug
	// SourceMap produces an SMAP side artifact for scripts with a file name.
	SourceMap
)

// Has reports whether every flag in f2 is set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Options configures one compilation.
type Options struct {
	Flags  Flags
	Limits codegen.Limits
	// IncludeSource retains the compressed source of each function so that
	// it can be recovered at run time.
	IncludeSource bool
	// Output receives debug listings. Nil discards them.
	Output io.Writer
	// Cache, if set, is consulted before and populated after compiling.
	Cache Cache
}

// Cache stores archives by a key derived from the tree and the options.
type Cache interface {
	Get(key string) (*code.Archive, bool, error)
	Put(key, unit string, ar *code.Archive) error
}

// CompilationError reports why a tree could not be compiled. It is the only
// error Compile returns.
type CompilationError struct {
	Message string
	Err     error
}

func (e *CompilationError) Error() string {
	return "compilation failed: " + e.Message
}

func (e *CompilationError) Unwrap() error { return e.Err }

func compilationError(err error) *CompilationError {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return ce
	}
	return &CompilationError{Message: err.Error(), Err: err}
}

// Compile generates code for tree, which must be an *ast.Script or an
// *ast.FunctionNode. The main unit is named "#" + name.
func Compile(tree ast.Node, name string, opts Options) (cu *CompiledUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			cu = nil
			if e, ok := r.(error); ok {
				err = &CompilationError{Message: e.Error(), Err: e}
			} else {
				err = &CompilationError{Message: fmt.Sprint(r)}
			}
			log.Errorf("compile %s: %s", name, err)
		}
	}()

	var src code.SourceInfo
	switch t := tree.(type) {
	case *ast.Script:
		src = code.SourceInfo{File: t.File, Path: t.Path}
	case *ast.FunctionNode:
	default:
		return nil, &CompilationError{Message: fmt.Sprintf("cannot compile %T", tree)}
	}

	unit := "#" + name
	key := cacheKey(tree, unit, opts)
	if opts.Cache != nil {
		ar, ok, err := opts.Cache.Get(key)
		switch {
		case err != nil:
			log.Warningf("cache lookup for %s: %s", unit, err)
		case ok:
			log.Debugf("cache hit for %s", unit)
			return finish(ar, src, opts)
		}
	}

	if err := codegen.Analyze(tree, opts.Limits); err != nil {
		return nil, compilationError(err)
	}

	c := code.New(unit, superName(tree), src)
	if err := generate(c, tree, opts); err != nil {
		return nil, compilationError(err)
	}
	ar, err := c.Finalize()
	if err != nil {
		return nil, compilationError(err)
	}
	log.Infof("compiled %s: %d unit(s)", unit, len(ar.Units))

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, unit, ar); err != nil {
			log.Warningf("cache store for %s: %s", unit, err)
		}
	}
	return finish(ar, src, opts)
}

// newGenerator is replaced in tests to observe the generator.
var newGenerator = codegen.New

// generate emits tree into c. The generator is closed on every path, so a
// panic during emission still cancels the source compressor.
func generate(c *code.Code, tree ast.Node, opts Options) (err error) {
	g := newGenerator(c, codegen.Config{Limits: opts.Limits, IncludeSource: opts.IncludeSource})
	defer func() {
		if cerr := g.Close(); err == nil {
			err = cerr
		}
	}()
	switch t := tree.(type) {
	case *ast.Script:
		return g.CompileScript(t)
	case *ast.FunctionNode:
		return g.CompileEntryFunction(t)
	}
	return nil
}

func finish(ar *code.Archive, src code.SourceInfo, opts Options) (*CompiledUnit, error) {
	cu, err := newCompiledUnit(ar)
	if err != nil {
		return nil, compilationError(err)
	}
	if opts.Flags.Has(SourceMap) && src.File != "" {
		cu.smap = cu.buildSMAP(src)
	}
	if opts.Output != nil && (opts.Flags.Has(Debug) || opts.Flags.Has(FullDebug)) {
		if _, err := io.WriteString(opts.Output, cu.Listing(opts.Flags.Has(FullDebug))); err != nil {
			return nil, compilationError(fmt.Errorf("write listing: %w", err))
		}
	}
	return cu, nil
}

func superName(tree ast.Node) string {
	if _, ok := tree.(*ast.FunctionNode); ok {
		return "CompiledFunction"
	}
	return "CompiledScript"
}

// cacheKey identifies a compilation: the tree's content hash, the unit name
// and every option that changes the emitted code.
func cacheKey(tree ast.Node, unit string, opts Options) string {
	l := opts.Limits
	return fmt.Sprintf("%s:%s:%d:%d:%d:%t",
		ast.HashString(tree), unit, l.StatementsThreshold, l.MaxMethodSize, l.MaxStringSize, opts.IncludeSource)
}
