// Package code owns the units and methods generated by one compilation.
//
// A Code container starts with a single main unit. Methods requested through
// NewMethod fill the active unit until it holds MethodLimit methods, then a
// new auxiliary unit named "<main>~<n>" is opened and becomes active.
// Auxiliary units are plain siblings of the main unit; emitted code reaches
// their methods through ordinary invoke instructions.
package code

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/compiler/descriptor"
)

var log = commonlog.GetLogger("esdraft.code")

// MethodLimit is the default per-unit method ceiling.
const MethodLimit = 1 << 12

// Access is a bit set of method access flags.
type Access uint16

const (
	Public    Access = 0x0001
	Private   Access = 0x0002
	Static    Access = 0x0008
	Final     Access = 0x0010
	Synthetic Access = 0x1000
)

// SourceInfo identifies the source a compilation was generated from.
type SourceInfo struct {
	File string `cbor:"1,keyasint,omitempty"`
	Path string `cbor:"2,keyasint,omitempty"`
}

// Option configures a Code container.
type Option func(*Code)

// WithMethodLimit overrides the per-unit method ceiling.
func WithMethodLimit(n int) Option {
	return func(c *Code) {
		if n > 0 {
			c.methodLimit = n
		}
	}
}

// WithInlineConstantLimit caps the number of entries in each unit's inline
// pool; further constants spill into the shared extern pool.
func WithInlineConstantLimit(n int) Option {
	return func(c *Code) {
		if n > 0 {
			c.constLimit = n
		}
	}
}

// Code is the unit container for one compilation. NewMethod, NewMainMethod
// and pool interning are safe for concurrent use.
type Code struct {
	mu          sync.Mutex
	units       []*Unit
	main        *Unit
	active      *Unit
	extern      *constpool.Extern
	methodLimit int
	constLimit  int
	finalized   bool
}

// New creates a container whose main unit is named name.
func New(name, superName string, src SourceInfo, opts ...Option) *Code {
	c := &Code{
		methodLimit: MethodLimit,
		constLimit:  constpool.MaxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.main = c.newUnit(name, superName, src)
	c.active = c.main
	return c
}

func (c *Code) newUnit(name, superName string, src SourceInfo) *Unit {
	u := &Unit{
		code:   c,
		name:   name,
		super:  superName,
		source: src,
		index:  len(c.units),
		byName: make(map[string]*Method),
	}
	u.pool = constpool.NewInline(c.constLimit, c.ExternPool)
	c.units = append(c.units, u)
	return u
}

// Main returns the main unit.
func (c *Code) Main() *Unit { return c.main }

// MethodLimit returns the per-unit method ceiling in effect.
func (c *Code) MethodLimit() int { return c.methodLimit }

// Units returns the units created so far, in creation order.
func (c *Code) Units() []*Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Unit, len(c.units))
	copy(out, c.units)
	return out
}

// ExternPool returns the compilation's shared pool, creating it on first use.
func (c *Code) ExternPool() *constpool.Extern {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.extern == nil {
		log.Debugf("creating extern constant pool for %s", c.main.name)
		c.extern = constpool.NewExtern()
	}
	return c.extern
}

// HasExternPool reports whether the extern pool has been created.
func (c *Code) HasExternPool() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extern != nil
}

// requestUnit returns the unit that receives the next ordinary method,
// opening a new auxiliary unit when the active one is full. c.mu is held.
func (c *Code) requestUnit() *Unit {
	if len(c.active.methods) >= c.methodLimit {
		name := fmt.Sprintf("%s~%d", c.main.name, len(c.units))
		log.Debugf("unit %s is full, opening %s", c.active.name, name)
		c.active = c.newUnit(name, c.main.super, c.main.source)
	}
	return c.active
}

// NewMethod returns a method slot in the currently active unit.
func (c *Code) NewMethod(access Access, name string, sig descriptor.Signature) *Method {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("NewMethod")
	return c.requestUnit().add(access, name, sig)
}

// NewMainMethod returns a method slot in the main unit.
func (c *Code) NewMainMethod(access Access, name string, sig descriptor.Signature) *Method {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("NewMainMethod")
	if len(c.main.methods) >= c.methodLimit {
		panic(fmt.Sprintf("code: main unit %s is full", c.main.name))
	}
	return c.main.add(access, name, sig)
}

func (c *Code) checkOpen(op string) {
	if c.finalized {
		panic("code: " + op + " after Finalize")
	}
}

// Finalize serializes every unit exactly once, in creation order. Each
// unit's inline pool is closed immediately before the unit is encoded; the
// extern pool, if one was created, is closed and encoded last.
func (c *Code) Finalize() (*Archive, error) {
	c.mu.Lock()
	c.checkOpen("Finalize")
	c.finalized = true
	units := c.units
	c.mu.Unlock()

	ar := &Archive{Main: c.main.name}
	for _, u := range units {
		u.pool.Close()
		img, err := u.image()
		if err != nil {
			return nil, err
		}
		data, err := MarshalUnit(img)
		if err != nil {
			return nil, fmt.Errorf("code: encode unit %s: %w", u.name, err)
		}
		ar.Units = append(ar.Units, Artifact{Name: u.name, Data: data})
	}
	c.mu.Lock()
	extern := c.extern
	c.mu.Unlock()
	if extern != nil {
		extern.Close()
		data, err := MarshalConstants(extern.Entries())
		if err != nil {
			return nil, fmt.Errorf("code: encode extern pool: %w", err)
		}
		ar.Extern = data
	}
	log.Debugf("finalized %s: %d unit(s)", c.main.name, len(ar.Units))
	return ar, nil
}

// ---------------------------------------------------------------------------
// Units and methods
// ---------------------------------------------------------------------------

// Unit is one independently loadable artifact under construction.
type Unit struct {
	code    *Code
	name    string
	super   string
	source  SourceInfo
	index   int
	pool    *constpool.Inline
	methods []*Method
	byName  map[string]*Method
}

func (u *Unit) Name() string              { return u.name }
func (u *Unit) Index() int                { return u.index }
func (u *Unit) Pool() constpool.Pool      { return u.pool }

// MethodCount, Method and Methods take the container lock, so they may be
// called while other goroutines request methods.
func (u *Unit) MethodCount() int {
	u.code.mu.Lock()
	defer u.code.mu.Unlock()
	return len(u.methods)
}

func (u *Unit) Method(name string) *Method {
	u.code.mu.Lock()
	defer u.code.mu.Unlock()
	return u.byName[name]
}

// Methods returns the unit's methods in creation order.
func (u *Unit) Methods() []*Method {
	u.code.mu.Lock()
	defer u.code.mu.Unlock()
	out := make([]*Method, len(u.methods))
	copy(out, u.methods)
	return out
}

func (u *Unit) add(access Access, name string, sig descriptor.Signature) *Method {
	if _, dup := u.byName[name]; dup {
		panic(fmt.Sprintf("code: duplicate method %s in unit %s", name, u.name))
	}
	m := &Method{unit: u, access: access, name: name, sig: sig}
	u.methods = append(u.methods, m)
	u.byName[name] = m
	return m
}

func (u *Unit) image() (*UnitImage, error) {
	img := &UnitImage{
		Name:      u.name,
		Super:     u.super,
		Source:    u.source,
		Constants: u.pool.Entries(),
	}
	for _, m := range u.methods {
		if m.body == nil {
			return nil, fmt.Errorf("code: method %s.%s was never emitted", u.name, m.name)
		}
		img.Methods = append(img.Methods, MethodImage{
			Access:    m.access,
			Name:      m.name,
			Desc:      m.sig.String(),
			Code:      m.body.Code,
			MaxLocals: m.body.MaxLocals,
			MaxStack:  m.body.MaxStack,
			Lines:     m.body.Lines,
			Handlers:  m.body.Handlers,
			Locals:    m.body.Locals,
		})
	}
	return img, nil
}

// Method is a method slot handed out by the container. Its body is supplied
// once, through Commit.
type Method struct {
	unit   *Unit
	access Access
	name   string
	sig    descriptor.Signature
	body   *Body
}

func (m *Method) Unit() *Unit                     { return m.unit }
func (m *Method) Name() string                    { return m.name }
func (m *Method) Access() Access                  { return m.access }
func (m *Method) Signature() descriptor.Signature { return m.sig }
func (m *Method) Pool() constpool.Pool            { return m.unit.pool }
func (m *Method) Body() *Body                     { return m.body }

// Desc returns the descriptor used to invoke m.
func (m *Method) Desc() descriptor.MethodDesc {
	kind := descriptor.Virtual
	if m.access&Static != 0 {
		kind = descriptor.Static
	}
	return descriptor.NewMethod(kind, m.unit.name, m.name, m.sig)
}

// Commit stores the finished body.
func (m *Method) Commit(b Body) {
	if m.body != nil {
		panic(fmt.Sprintf("code: method %s.%s committed twice", m.unit.name, m.name))
	}
	m.body = &b
}

// Body is an emitted method body.
type Body struct {
	Code      []byte
	MaxLocals int
	MaxStack  int
	Lines     []LineEntry
	Handlers  []Handler
	Locals    []LocalVar
}

// LineEntry maps a bytecode offset to a source line.
type LineEntry struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
}

// Handler is an exception table entry covering [Start, End).
type Handler struct {
	Start  int    `cbor:"1,keyasint"`
	End    int    `cbor:"2,keyasint"`
	Target int    `cbor:"3,keyasint"`
	Type   string `cbor:"4,keyasint,omitempty"`
}

// LocalVar records a named local variable's slot and live range.
type LocalVar struct {
	Name  string `cbor:"1,keyasint"`
	Desc  string `cbor:"2,keyasint"`
	Slot  int    `cbor:"3,keyasint"`
	Start int    `cbor:"4,keyasint"`
	End   int    `cbor:"5,keyasint"`
}
