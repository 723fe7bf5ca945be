package vm

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/compiler/descriptor"
	"github.com/chazu/esdraft/runtime"
)

var log = commonlog.GetLogger("esdraft.vm")

// ---------------------------------------------------------------------------
// Linked program
// ---------------------------------------------------------------------------

// Program is a linked archive. Every constant has been resolved against the
// archive's methods and the native library, so a Program never changes
// after Link returns and may be executed from several goroutines.
type Program struct {
	Main    string
	units   map[string]*Unit
	order   []*Unit
	methods map[string]*Method
	extern  []linked
}

// Unit is a linked unit.
type Unit struct {
	Name    string
	Source  code.SourceInfo
	Methods []*Method
	consts  []linked
}

// Method is a linked method body.
type Method struct {
	Unit      *Unit
	Name      string
	Desc      string
	Access    code.Access
	Sig       descriptor.Signature
	Code      []byte
	MaxLocals int
	MaxStack  int
	Lines     []code.LineEntry
	Handlers  []code.Handler
}

// Static reports whether the method has no receiver.
func (m *Method) Static() bool { return m.Access&code.Static != 0 }

func (m *Method) String() string { return m.Unit.Name + "." + m.Name + m.Desc }

// Line returns the source line for the instruction at pc, or 0.
func (m *Method) Line(pc int) int {
	line := 0
	for _, e := range m.Lines {
		if e.Offset > pc {
			break
		}
		line = e.Line
	}
	return line
}

// target is a resolved invocation target: either a compiled method or a
// native.
type target struct {
	desc     descriptor.MethodDesc
	sig      descriptor.Signature
	width    int
	receiver bool
	method   *Method
	native   Native
}

// linked is a resolved constant-pool entry.
type linked struct {
	kind   constpool.Kind
	value  any // Ldc payload
	target *target
	field  descriptor.FieldDesc
	static any
	class  descriptor.Type
	name   string
}

// ClassRef is the value pushed for a class constant.
type ClassRef struct {
	Name string
}

// LinkError reports an unresolvable reference in an archive.
type LinkError struct {
	Unit string
	Ref  string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("vm: unit %s: unresolved reference %s", e.Unit, e.Ref)
}

// Link decodes an archive and resolves every reference in it.
func Link(a *code.Archive) (*Program, error) {
	images, externConsts, err := a.Decode()
	if err != nil {
		return nil, err
	}
	p := &Program{
		Main:    a.Main,
		units:   make(map[string]*Unit, len(images)),
		methods: make(map[string]*Method),
	}
	for _, img := range images {
		u := &Unit{Name: img.Name, Source: img.Source}
		for _, mi := range img.Methods {
			sig, err := descriptor.ParseSignature(mi.Desc)
			if err != nil {
				return nil, fmt.Errorf("vm: %s.%s: %w", img.Name, mi.Name, err)
			}
			m := &Method{
				Unit:      u,
				Name:      mi.Name,
				Desc:      mi.Desc,
				Access:    mi.Access,
				Sig:       sig,
				Code:      mi.Code,
				MaxLocals: mi.MaxLocals,
				MaxStack:  mi.MaxStack,
				Lines:     mi.Lines,
				Handlers:  mi.Handlers,
			}
			u.Methods = append(u.Methods, m)
			p.methods[u.Name+"."+m.Name] = m
		}
		p.units[u.Name] = u
		p.order = append(p.order, u)
	}
	for i, img := range images {
		u := p.order[i]
		u.consts = make([]linked, len(img.Constants))
		for j, c := range img.Constants {
			if err := p.resolve(u.Name, c, &u.consts[j]); err != nil {
				return nil, err
			}
		}
	}
	p.extern = make([]linked, len(externConsts))
	for i, c := range externConsts {
		if err := p.resolve("<extern>", c, &p.extern[i]); err != nil {
			return nil, err
		}
	}
	log.Debugf("linked %s: %d units, %d methods, %d extern constants",
		p.Main, len(p.order), len(p.methods), len(p.extern))
	return p, nil
}

func (p *Program) resolve(unit string, c constpool.Constant, l *linked) error {
	l.kind = c.Kind
	switch c.Kind {
	case constpool.KindString:
		l.value = c.Str
	case constpool.KindInt:
		l.value = c.Int32()
	case constpool.KindLong:
		l.value = c.Int64()
	case constpool.KindDouble:
		l.value = c.Float64()
	case constpool.KindClass:
		l.name = c.Str
		l.value = &ClassRef{Name: c.Str}
		if t, err := descriptor.ParseType(c.Str); err == nil {
			l.class = t
		} else {
			l.class = descriptor.Ref(c.Str)
		}
	case constpool.KindMethod, constpool.KindHandle:
		t, err := p.lookup(c.Method)
		if err != nil {
			return &LinkError{Unit: unit, Ref: c.Method.String()}
		}
		l.target = t
		if c.Kind == constpool.KindHandle {
			l.value = &Handle{program: p, target: t}
		}
	case constpool.KindField:
		l.field = c.Field
		if c.Field.Kind == descriptor.StaticField {
			v, ok := staticFields[c.Field.Key()]
			if !ok {
				return &LinkError{Unit: unit, Ref: c.Field.String()}
			}
			l.static = v
		}
	default:
		return &LinkError{Unit: unit, Ref: c.String()}
	}
	return nil
}

func (p *Program) lookup(d descriptor.MethodDesc) (*target, error) {
	sig, err := descriptor.ParseSignature(d.Desc)
	if err != nil {
		return nil, err
	}
	t := &target{desc: d, sig: sig, width: d.ArgWidth(), receiver: d.Kind.HasReceiver()}
	if m, ok := p.methods[d.Key()]; ok {
		if m.Desc != d.Desc {
			return nil, fmt.Errorf("descriptor mismatch: %s vs %s", m.Desc, d.Desc)
		}
		t.method = m
		return t, nil
	}
	if n, ok := natives[d.Key()]; ok {
		t.native = n
		return t, nil
	}
	return nil, fmt.Errorf("no such method %s", d.Key())
}

func (p *Program) constant(u *Unit, k constpool.Key) (*linked, error) {
	table := u.consts
	if k.IsExtern() {
		table = p.extern
	}
	if k.Index() >= len(table) {
		return nil, fmt.Errorf("constant %v out of range", k)
	}
	return &table[k.Index()], nil
}

// Units returns the linked units in creation order.
func (p *Program) Units() []*Unit { return p.order }

// Method returns the method named name in unit, if it exists.
func (p *Program) Method(unit, name string) (*Method, bool) {
	m, ok := p.methods[unit+"."+name]
	return m, ok
}

// MethodNames returns the qualified names of every linked method, sorted.
func (p *Program) MethodNames() []string {
	names := make([]string, 0, len(p.methods))
	for k := range p.methods {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Handle returns a handle on the named method.
func (p *Program) Handle(unit, name string) (*Handle, error) {
	m, ok := p.Method(unit, name)
	if !ok {
		return nil, fmt.Errorf("vm: no method %s.%s", unit, name)
	}
	kind := descriptor.Static
	if !m.Static() {
		kind = descriptor.Virtual
	}
	d := descriptor.NewMethod(kind, unit, name, m.Sig)
	return &Handle{program: p, target: &target{
		desc: d, sig: m.Sig, width: d.ArgWidth(), receiver: !m.Static(), method: m,
	}}, nil
}

// ---------------------------------------------------------------------------
// Method handles
// ---------------------------------------------------------------------------

// Handle is a bound reference to a method. It implements
// runtime.MethodHandle.
type Handle struct {
	program *Program
	target  *target
}

var _ runtime.MethodHandle = (*Handle)(nil)

// Invoke calls the method with boxed arguments and returns its boxed result.
func (h *Handle) Invoke(args ...runtime.Value) (runtime.Value, error) {
	t := h.target
	want := len(t.sig.Params)
	if t.receiver {
		want++
	}
	if len(args) != want {
		return nil, fmt.Errorf("vm: %s expects %d arguments, got %d", t.desc, want, len(args))
	}
	cells := make([]any, 0, t.width)
	if t.receiver {
		cells = append(cells, args[0])
		args = args[1:]
	}
	for i, pt := range t.sig.Params {
		cells = append(cells, toCell(pt, args[i]))
		if pt.Width() == 2 {
			cells = append(cells, top)
		}
	}
	result, err := h.program.call(t, cells)
	if err != nil {
		return nil, err
	}
	if t.sig.Return.IsPrimitive() {
		return toBoxed(t.sig.Return, result), nil
	}
	return result, nil
}

func (h *Handle) String() string { return h.target.desc.String() }
