package emit

import (
	"fmt"

	"github.com/chazu/esdraft/compiler/descriptor"
)

// Variable is a handle to a local-variable slot. Handles stay valid after
// the variable is retired; using a retired handle panics.
type Variable struct {
	id   int
	Name string
	Type descriptor.Type
	Slot int
}

func (v Variable) String() string {
	if v.Name == "" {
		return fmt.Sprintf("<scratch %d:%s>", v.Slot, v.Type)
	}
	return fmt.Sprintf("%s@%d:%s", v.Name, v.Slot, v.Type)
}

type varRecord struct {
	v        Variable
	depth    int
	scratch  bool
	alive    bool
	assigned bool
	start    int
}

type scopeFrame struct {
	firstSlot int
	firstVar  int
}

// slotArena allocates local-variable slots. Records are kept in an arena
// indexed by variable id; owner maps every slot index to the id of the live
// variable occupying it, or -1.
type slotArena struct {
	vars   []varRecord
	owner  []int
	scopes []scopeFrame
	max    int
}

func newSlotArena() *slotArena {
	return &slotArena{scopes: []scopeFrame{{}}}
}

func (a *slotArena) depth() int { return len(a.scopes) - 1 }

func (a *slotArena) free(slot int) bool {
	return slot >= len(a.owner) || a.owner[slot] < 0
}

// highWater returns one past the highest occupied slot.
func (a *slotArena) highWater() int {
	for i := len(a.owner) - 1; i >= 0; i-- {
		if a.owner[i] >= 0 {
			return i + 1
		}
	}
	return 0
}

func (a *slotArena) enter() {
	a.scopes = append(a.scopes, scopeFrame{firstSlot: a.highWater(), firstVar: len(a.vars)})
}

// exit retires every variable declared since the matching enter and
// returns the retired records.
func (a *slotArena) exit() []*varRecord {
	if a.depth() == 0 {
		panic("emit: ExitScope without matching EnterScope")
	}
	top := a.scopes[len(a.scopes)-1]
	a.scopes = a.scopes[:len(a.scopes)-1]
	return a.retireFrom(top.firstVar)
}

func (a *slotArena) retireFrom(firstVar int) []*varRecord {
	var retired []*varRecord
	for i := firstVar; i < len(a.vars); i++ {
		if r := &a.vars[i]; r.alive {
			a.release(r)
			retired = append(retired, r)
		}
	}
	return retired
}

func (a *slotArena) release(r *varRecord) {
	r.alive = false
	for i := 0; i < r.v.Type.Width(); i++ {
		a.owner[r.v.Slot+i] = -1
	}
}

// alloc finds the first run of free slots wide enough for t, starting at the
// current scope's first slot, growing the frame only when no retired run fits.
func (a *slotArena) alloc(name string, t descriptor.Type, scratch bool, pc int) Variable {
	w := t.Width()
	if w == 0 {
		panic("emit: variable of type void")
	}
	slot := a.scopes[len(a.scopes)-1].firstSlot
	for !(a.free(slot) && (w == 1 || a.free(slot+1))) {
		slot++
	}
	return a.place(name, t, slot, scratch, pc)
}

func (a *slotArena) place(name string, t descriptor.Type, slot int, scratch bool, pc int) Variable {
	for i := 0; i < t.Width(); i++ {
		if !a.free(slot + i) {
			panic(fmt.Sprintf("emit: slot %d already holds %v", slot+i, a.vars[a.owner[slot+i]].v))
		}
	}
	for len(a.owner) < slot+t.Width() {
		a.owner = append(a.owner, -1)
	}
	id := len(a.vars)
	v := Variable{id: id, Name: name, Type: t, Slot: slot}
	a.vars = append(a.vars, varRecord{v: v, depth: a.depth(), scratch: scratch, alive: true, start: pc})
	for i := 0; i < t.Width(); i++ {
		a.owner[slot+i] = id
	}
	if end := slot + t.Width(); end > a.max {
		a.max = end
	}
	return v
}

func (a *slotArena) record(v Variable) *varRecord {
	if v.id < 0 || v.id >= len(a.vars) || a.vars[v.id].v.Slot != v.Slot {
		panic(fmt.Sprintf("emit: unknown variable %v", v))
	}
	return &a.vars[v.id]
}

func (a *slotArena) live() []Variable {
	var out []Variable
	for _, r := range a.vars {
		if r.alive {
			out = append(out, r.v)
		}
	}
	return out
}
