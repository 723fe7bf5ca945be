package constpool

import (
	"fmt"
	"sync"
)

// Key references a pool entry from an instruction operand. The high bit
// marks an entry of the compilation's shared extern pool.
type Key uint16

// ExternBit flags keys that resolve against the extern pool.
const ExternBit Key = 0x8000

// MaxEntries is the largest number of entries either pool can address.
const MaxEntries = int(ExternBit)

// IsExtern reports whether k refers to the extern pool.
func (k Key) IsExtern() bool { return k&ExternBit != 0 }

// Index is the entry index within the pool k refers to.
func (k Key) Index() int { return int(k &^ ExternBit) }

func (k Key) String() string {
	if k.IsExtern() {
		return fmt.Sprintf("#x%d", k.Index())
	}
	return fmt.Sprintf("#%d", k.Index())
}

// Pool is a deduplicating constant table. Close must be called exactly once;
// interning into a closed pool, or closing it again, panics.
type Pool interface {
	Intern(c Constant) Key
	Close()
	Closed() bool
	Entries() []Constant
}

// table is the mutex-guarded storage shared by both pool strategies.
type table struct {
	name    string
	mu      sync.Mutex
	entries []Constant
	index   map[Constant]Key
	closed  bool
}

func (t *table) lookup(c Constant) (Key, bool) {
	if t.closed {
		panic(fmt.Sprintf("constpool: intern %v into closed %s pool", c, t.name))
	}
	k, ok := t.index[c]
	return k, ok
}

func (t *table) add(c Constant, tag Key) Key {
	k := Key(len(t.entries)) | tag
	t.entries = append(t.entries, c)
	t.index[c] = k
	return k
}

func (t *table) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		panic(fmt.Sprintf("constpool: %s pool closed twice", t.name))
	}
	t.closed = true
}

func (t *table) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *table) snapshot() []Constant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Constant, len(t.entries))
	copy(out, t.entries)
	return out
}

// ---------------------------------------------------------------------------
// Extern pool
// ---------------------------------------------------------------------------

// Extern is the pool shared by every unit of one compilation.
type Extern struct {
	t table
}

// NewExtern creates an empty extern pool.
func NewExtern() *Extern {
	return &Extern{t: table{name: "extern", index: make(map[Constant]Key)}}
}

// Intern returns the key for c, adding it if necessary.
func (p *Extern) Intern(c Constant) Key {
	p.t.mu.Lock()
	defer p.t.mu.Unlock()
	if k, ok := p.t.lookup(c); ok {
		return k
	}
	if len(p.t.entries) >= MaxEntries {
		panic("constpool: extern pool exhausted")
	}
	return p.t.add(c, ExternBit)
}

func (p *Extern) Close()              { p.t.close() }
func (p *Extern) Closed() bool        { return p.t.isClosed() }
func (p *Extern) Entries() []Constant { return p.t.snapshot() }

// ---------------------------------------------------------------------------
// Inline pool
// ---------------------------------------------------------------------------

// Inline is a per-unit pool. Once it holds limit entries, new constants are
// interned into the extern pool returned by the supplier instead.
type Inline struct {
	t      table
	limit  int
	extern func() *Extern
}

// NewInline creates an inline pool holding at most limit entries. extern is
// called lazily the first time the pool overflows.
func NewInline(limit int, extern func() *Extern) *Inline {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	return &Inline{
		t:      table{name: "inline", index: make(map[Constant]Key)},
		limit:  limit,
		extern: extern,
	}
}

// Intern returns the key for c, adding it if necessary.
func (p *Inline) Intern(c Constant) Key {
	p.t.mu.Lock()
	if k, ok := p.t.lookup(c); ok {
		p.t.mu.Unlock()
		return k
	}
	if len(p.t.entries) < p.limit {
		k := p.t.add(c, 0)
		p.t.mu.Unlock()
		return k
	}
	p.t.mu.Unlock()
	if p.extern == nil {
		panic("constpool: inline pool full and no extern pool available")
	}
	return p.extern().Intern(c)
}

func (p *Inline) Close()              { p.t.close() }
func (p *Inline) Closed() bool        { return p.t.isClosed() }
func (p *Inline) Entries() []Constant { return p.t.snapshot() }

// Resolve looks up k against an inline table and an extern table.
func Resolve(k Key, inline, extern []Constant) (Constant, error) {
	table := inline
	if k.IsExtern() {
		table = extern
	}
	if k.Index() >= len(table) {
		return Constant{}, fmt.Errorf("constpool: key %v out of range", k)
	}
	return table[k.Index()], nil
}
