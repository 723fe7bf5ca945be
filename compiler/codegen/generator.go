// Package codegen translates resolved syntax trees into methods of a
// code.Code container.
//
// A script compiles to three kinds of method: a declaration-instantiation
// method that creates the script's bindings, a body that evaluates its
// statements and yields the completion value, and a runtime-info method on
// the main unit that ties them together. Functions follow the same shape:
// an init method binds parameters and hoisted declarations, a body method
// runs the code, and an info method builds the FunctionInfo used to
// instantiate closures. Bodies with StatementsThreshold or more statements
// are split into chunk methods called in order from a small dispatcher.
package codegen

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/esdraft/compiler/ast"
	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/compiler/emit"
	rt "github.com/chazu/esdraft/runtime"
)

var log = commonlog.GetLogger("esdraft.codegen")

// Config configures a Generator.
type Config struct {
	Limits Limits
	// IncludeSource retains compressed function sources in runtime info.
	IncludeSource bool
}

// Generator emits the methods of one compilation. It is not safe for
// concurrent use; source compression runs in the background.
type Generator struct {
	code      *code.Code
	limits    Limits
	opts      []emit.Option
	compress  *compressor
	functions map[*ast.FunctionNode]*code.Method
	templates map[*ast.TemplateLiteral]*templateSite
	demoted   map[*ast.Binding]bool
	seq       int
	err       error
}

// templateSite is the compiled string table of a tagged template together
// with the key its call-site object is cached under.
type templateSite struct {
	method *code.Method
	key    string
}

// New creates a generator emitting into c.
func New(c *code.Code, cfg Config) *Generator {
	limits := cfg.Limits.withDefaults()
	return &Generator{
		code:   c,
		limits: limits,
		opts: []emit.Option{
			emit.WithMaxMethodSize(limits.MaxMethodSize),
			emit.WithMaxStringSize(limits.MaxStringSize),
		},
		compress:  newCompressor(cfg.IncludeSource),
		functions: make(map[*ast.FunctionNode]*code.Method),
		templates: make(map[*ast.TemplateLiteral]*templateSite),
		demoted:   make(map[*ast.Binding]bool),
	}
}

// Close stops the source compressor and waits for it. Only the first call
// does any work.
func (g *Generator) Close() error {
	return g.compress.close()
}

// Closed reports whether Close has been called.
func (g *Generator) Closed() bool { return g.compress.closed }

func (g *Generator) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

const (
	publicStatic  = code.Public | code.Static
	privateStatic = code.Private | code.Static | code.Synthetic
)

// ---------------------------------------------------------------------------
// Scripts
// ---------------------------------------------------------------------------

// CompileScript emits the methods of s. The main unit's runtimeInfo method
// returns the script's ScriptInfo.
func (g *Generator) CompileScript(s *ast.Script) error {
	info := g.code.NewMainMethod(publicStatic, "runtimeInfo", scriptInfoSig)
	init := g.code.NewMethod(publicStatic, "globalDeclarationInstantiation", scriptInitSig)
	g.scriptInit(s, init)
	body := g.scriptBody(s)

	name := s.File
	if name == "" {
		name = g.code.Main().Name()
	}
	e := emit.New(info, g.opts...)
	e.Begin()
	e.LineInfo(s.SpanVal.Start.Line)
	e.Aconst(name)
	e.Bconst(s.Strict())
	e.Handle(init.Desc())
	e.Handle(body.Desc())
	e.Invoke(newScriptInfo)
	e.Return()
	e.End()
	log.Debugf("compiled script %s: %d statement(s)", name, len(s.Body))
	return g.err
}

func (g *Generator) scriptInit(s *ast.Script, m *code.Method) {
	mg := g.newMethodGen(m, s.Strict(), s.SpanVal.Start.Line)
	for _, name := range s.Scope.VarNames {
		mg.declareVar(name)
	}
	for _, b := range s.Scope.Lexical {
		mg.declareLexical(b)
	}
	for _, fn := range s.Scope.Functions {
		mg.bindFunction(fn)
	}
	mg.e.Return()
	mg.e.End()
}

// scriptBody emits the script's statements, chunked when there are too
// many. Chunks receive and return the running completion value.
func (g *Generator) scriptBody(s *ast.Script) *code.Method {
	threshold := g.limits.StatementsThreshold
	line := s.SpanVal.Start.Line
	if len(s.Body) < threshold {
		m := g.code.NewMainMethod(publicStatic, "script", scriptBodySig)
		mg := g.newMethodGen(m, s.Strict(), line)
		completion := mg.e.NewVariable("completion", tObject)
		mg.e.Get(undefinedField)
		mg.e.Store(completion)
		mg.completion = &completion
		mg.statements(s.Body)
		if mg.e.Reachable() {
			mg.e.Load(completion)
			mg.e.Return()
		}
		mg.e.End()
		return m
	}

	var chunks []*code.Method
	for start := 0; start < len(s.Body); start += threshold {
		list := s.Body[start:min(start+threshold, len(s.Body))]
		m := g.code.NewMethod(privateStatic, fmt.Sprintf("script_%d", len(chunks)), scriptChunkSig)
		mg := g.newMethodGen(m, s.Strict(), list[0].Span().Start.Line)
		completion := mg.e.Parameter(1)
		mg.completion = &completion
		mg.statements(list)
		if mg.e.Reachable() {
			mg.e.Load(completion)
			mg.e.Return()
		}
		mg.e.End()
		chunks = append(chunks, m)
	}
	log.Debugf("script body split into %d chunk(s)", len(chunks))

	m := g.code.NewMainMethod(publicStatic, "script", scriptBodySig)
	mg := g.newMethodGen(m, s.Strict(), line)
	e := mg.e
	completion := e.NewVariable("completion", tObject)
	e.Get(undefinedField)
	e.Store(completion)
	for _, chunk := range chunks {
		e.Load(mg.cx)
		e.Load(completion)
		e.Invoke(chunk.Desc())
		e.Store(completion)
	}
	e.Load(completion)
	e.Return()
	e.End()
	return m
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// CompileFunction emits the methods of fn and returns its runtime-info
// method, which builds the function's FunctionInfo. Each node is compiled
// once; later calls return the same method.
func (g *Generator) CompileFunction(fn *ast.FunctionNode) *code.Method {
	if m, ok := g.functions[fn]; ok {
		return m
	}
	prefix := g.functionPrefix(fn)
	info := g.code.NewMethod(publicStatic, prefix+"_info", functionInfoSig)
	g.functions[fn] = info
	source := g.compress.submit(fn.Source)

	chunked := !fn.ConciseBody && len(fn.Body) >= g.limits.StatementsThreshold
	if chunked {
		// Chunks are separate methods, so top-level lexical bindings
		// cannot stay in slots.
		for _, b := range fn.Scope.LocalBindings() {
			g.demoted[b] = true
		}
	}
	init := g.functionInit(fn, prefix)
	var body *code.Method
	if chunked {
		body = g.chunkedFunctionBody(fn, prefix)
	} else {
		body = g.functionBody(fn, prefix)
	}
	g.functionInfo(fn, info, init, body, source)
	return info
}

// CompileEntryFunction compiles fn as the subject of a compilation: the
// main unit's runtimeInfo method returns its FunctionInfo.
func (g *Generator) CompileEntryFunction(fn *ast.FunctionNode) error {
	entry := g.code.NewMainMethod(publicStatic, "runtimeInfo", functionInfoSig)
	info := g.CompileFunction(fn)
	e := emit.New(entry, g.opts...)
	e.Begin()
	e.LineInfo(fn.SpanVal.Start.Line)
	e.Invoke(info.Desc())
	e.Return()
	e.End()
	return g.err
}

func (g *Generator) functionPrefix(fn *ast.FunctionNode) string {
	name := fn.Name
	if name == "" {
		name = "anonymous"
	}
	g.seq++
	return fmt.Sprintf("%s_%d", name, g.seq)
}

func functionFlags(fn *ast.FunctionNode) int32 {
	var flags int32
	if fn.Strict() {
		flags |= rt.FlagStrict
	}
	if fn.Arrow {
		flags |= rt.FlagArrow
	}
	if fn.ConciseBody {
		flags |= rt.FlagConciseBody
	}
	return flags
}

// functionInit binds parameters, var declarations, environment-bound
// lexical declarations and hoisted functions.
func (g *Generator) functionInit(fn *ast.FunctionNode, prefix string) *code.Method {
	m := g.code.NewMethod(publicStatic, prefix+"_init", functionInitSig)
	mg := g.newMethodGen(m, fn.Strict(), fn.SpanVal.Start.Line)
	e := mg.e
	args := e.Parameter(1)
	for i, p := range fn.Params {
		e.Load(mg.cx)
		e.Aconst(p)
		e.Load(args)
		e.Iconst(int32(i))
		e.Invoke(bindParameter)
	}
	for _, name := range fn.Scope.VarNames {
		mg.declareVar(name)
	}
	for _, b := range fn.Scope.Lexical {
		if !mg.local(b) {
			mg.declareLexical(b)
		}
	}
	for _, f := range fn.Scope.Functions {
		mg.bindFunction(f)
	}
	e.Return()
	e.End()
	return m
}

func (g *Generator) functionBody(fn *ast.FunctionNode, prefix string) *code.Method {
	m := g.code.NewMethod(publicStatic, prefix+"_body", functionBodySig)
	mg := g.newMethodGen(m, fn.Strict(), fn.SpanVal.Start.Line)
	mg.tail = fn.Strict()
	e := mg.e
	if fn.ConciseBody {
		mg.tailExpr(fn.Expr)
		e.Return()
		e.End()
		return m
	}
	e.EnterScope()
	mg.initSlots(fn.Scope)
	mg.statements(fn.Body)
	if e.Reachable() {
		e.Get(undefinedField)
		e.Return()
	}
	e.ExitScope()
	e.End()
	return m
}

// chunkedFunctionBody splits the body into chunk methods. A chunk returns
// null when control falls off its end and the function's result when it
// executes a return; the dispatcher stops at the first non-null result.
func (g *Generator) chunkedFunctionBody(fn *ast.FunctionNode, prefix string) *code.Method {
	threshold := g.limits.StatementsThreshold
	var chunks []*code.Method
	for start := 0; start < len(fn.Body); start += threshold {
		list := fn.Body[start:min(start+threshold, len(fn.Body))]
		m := g.code.NewMethod(privateStatic, fmt.Sprintf("%s_body_%d", prefix, len(chunks)), functionChunkSig)
		mg := g.newMethodGen(m, fn.Strict(), list[0].Span().Start.Line)
		mg.tail = fn.Strict()
		mg.statements(list)
		if mg.e.Reachable() {
			mg.e.AconstNull()
			mg.e.Return()
		}
		mg.e.End()
		chunks = append(chunks, m)
	}
	log.Debugf("function %s split into %d chunk(s)", prefix, len(chunks))

	m := g.code.NewMethod(publicStatic, prefix+"_body", functionBodySig)
	mg := g.newMethodGen(m, fn.Strict(), fn.SpanVal.Start.Line)
	e := mg.e
	ret := e.NewLabel()
	for _, chunk := range chunks {
		e.Load(mg.cx)
		e.Invoke(chunk.Desc())
		e.Dup(tObject)
		e.IfNonNull(ret)
		e.Pop(tObject)
	}
	e.Get(undefinedField)
	e.Return()
	e.Mark(ret)
	e.Return()
	e.End()
	return m
}

func (g *Generator) functionInfo(fn *ast.FunctionNode, info, init, body *code.Method, source *sourceFuture) {
	e := emit.New(info, g.opts...)
	e.Begin()
	e.LineInfo(fn.SpanVal.Start.Line)
	e.Aconst(fn.Name)
	e.Iconst(int32(len(fn.Params)))
	e.Iconst(functionFlags(fn))
	e.NewArrayOf(len(fn.Params), tString)
	for i, p := range fn.Params {
		e.AStore(i, p)
	}
	text, err := source.get()
	if err != nil {
		g.fail(fmt.Errorf("compress source of %s: %w", info.Name(), err))
		text = rt.NoSource
	}
	e.Aconst(text)
	e.Handle(init.Desc())
	e.Handle(body.Desc())
	e.Invoke(newFunctionInfo)
	e.Return()
	e.End()
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// template compiles the string table of t once. The method returns the
// cooked and raw strings interleaved.
func (g *Generator) template(t *ast.TemplateLiteral) *templateSite {
	if site, ok := g.templates[t]; ok {
		return site
	}
	m := g.code.NewMethod(privateStatic, fmt.Sprintf("template_%d", len(g.templates)), templateSig)
	e := emit.New(m, g.opts...)
	e.Begin()
	e.LineInfo(t.SpanVal.Start.Line)
	e.NewArrayOf(2*len(t.Cooked), tString)
	for i := range t.Cooked {
		e.AStore(2*i, t.Cooked[i])
		e.AStore(2*i+1, t.Raw[i])
	}
	e.Return()
	e.End()
	site := &templateSite{method: m, key: uuid.NewString()}
	g.templates[t] = site
	return site
}

// ---------------------------------------------------------------------------
// Method bodies
// ---------------------------------------------------------------------------

// methodGen emits the body of one method that takes the execution context
// as its first parameter.
type methodGen struct {
	g      *Generator
	e      *emit.Emitter
	cx     emit.Variable
	realm  emit.Variable
	strict bool
	// tail enables tail calls for calls in return position.
	tail bool
	// completion holds the running completion value in script methods.
	completion *emit.Variable
	slots      map[*ast.Binding]emit.Variable
}

// newMethodGen opens m and emits the prologue, which caches the realm.
func (g *Generator) newMethodGen(m *code.Method, strict bool, line int) *methodGen {
	e := emit.New(m, g.opts...)
	e.Begin()
	mg := &methodGen{
		g:      g,
		e:      e,
		cx:     e.Parameter(0),
		strict: strict,
		slots:  make(map[*ast.Binding]emit.Variable),
	}
	e.LineInfo(line)
	mg.realm = e.NewVariable("realm", tRealm)
	e.Load(mg.cx)
	e.Invoke(getRealm)
	e.Store(mg.realm)
	return mg
}

// local reports whether b lives in a method slot.
func (mg *methodGen) local(b *ast.Binding) bool {
	return b != nil && b.Local && !mg.g.demoted[b]
}

func (mg *methodGen) slot(b *ast.Binding) emit.Variable {
	v, ok := mg.slots[b]
	if !ok {
		panic(fmt.Sprintf("codegen: no slot for %s in %s", b.Name, mg.e.Method().Name()))
	}
	return v
}

func (mg *methodGen) declareVar(name string) {
	mg.e.Load(mg.cx)
	mg.e.Aconst(name)
	mg.e.Invoke(declareVar)
}

func (mg *methodGen) declareLexical(b *ast.Binding) {
	mg.e.Load(mg.cx)
	mg.e.Aconst(b.Name)
	mg.e.Bconst(b.Const())
	mg.e.Invoke(declareLexical)
}

func (mg *methodGen) bindFunction(fn *ast.FunctionNode) {
	mg.e.Load(mg.cx)
	mg.e.Aconst(fn.Name)
	mg.instantiate(fn)
	mg.e.Invoke(bindFunction)
}

// instantiate pushes a new closure of fn over the current environment.
func (mg *methodGen) instantiate(fn *ast.FunctionNode) {
	info := mg.g.CompileFunction(fn)
	mg.e.Load(mg.cx)
	mg.e.Invoke(info.Desc())
	mg.e.Invoke(instantiateFunction)
}

// initSlots allocates the slot-bound bindings of sc in the current emitter
// scope, each starting in its temporal dead zone.
func (mg *methodGen) initSlots(sc *ast.Scope) {
	for _, b := range sc.Lexical {
		if !mg.local(b) {
			continue
		}
		v := mg.e.NewVariable(b.Name, tObject)
		mg.e.Get(uninitializedField)
		mg.e.Store(v)
		mg.slots[b] = v
	}
}

// enterScope opens a block or catch scope. Environment-bound bindings get a
// fresh declarative environment; block-level functions are instantiated in
// it and assigned to their var. It reports whether an environment was
// pushed.
func (mg *methodGen) enterScope(sc *ast.Scope) bool {
	e := mg.e
	e.EnterScope()
	mg.initSlots(sc)
	pushed := false
	for _, b := range sc.Lexical {
		if !mg.local(b) {
			pushed = true
			break
		}
	}
	if pushed {
		mg.pushEnvironment()
		for _, b := range sc.Lexical {
			if !mg.local(b) {
				mg.declareLexical(b)
			}
		}
	}
	for _, fn := range sc.Functions {
		e.Load(mg.cx)
		e.Aconst(fn.Name)
		mg.instantiate(fn)
		e.Bconst(false)
		e.Invoke(setIdentifier)
	}
	return pushed
}

func (mg *methodGen) exitScope(pushed bool) {
	if pushed && mg.e.Reachable() {
		mg.popEnvironment()
	}
	mg.e.ExitScope()
}

func (mg *methodGen) pushEnvironment() {
	e := mg.e
	e.Load(mg.cx)
	e.Load(mg.cx)
	e.Invoke(getLexicalEnvironment)
	e.Invoke(newDeclarativeEnvironment)
	e.Invoke(pushLexicalEnvironment)
}

func (mg *methodGen) popEnvironment() {
	mg.e.Load(mg.cx)
	mg.e.Invoke(popLexicalEnvironment)
}

// scratch runs fn with a temporary variable of type t.
func (mg *methodGen) scratch(t descriptor.Type, fn func(v emit.Variable)) {
	v := mg.e.NewScratchVariable(t)
	fn(v)
	mg.e.FreeVariable(v)
}
