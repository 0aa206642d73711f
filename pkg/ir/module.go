package ir

import "github.com/oisee/tb/pkg/latt"

// Module is the whole-program collection of functions compiled together —
// the one place cross-function state lives (§5: "the module owns a lock
// protecting symbol tables, interned globals... the lattice intern table").
// Each Func still owns its own arena and node table; only the Interner and
// the function-name symbol table are shared.
type Module struct {
	Interner *latt.Interner
	Funcs    map[string]*Func
}

func NewModule() *Module {
	return &Module{Interner: latt.NewInterner(), Funcs: map[string]*Func{}}
}

// NewFunc creates a function inside the module, sharing its Interner.
func (m *Module) NewFunc(name string) *Func {
	f := NewFunc(name, m.Interner)
	m.Funcs[name] = f
	return f
}

func (m *Module) AddFunc(f *Func) { m.Funcs[f.Name] = f }
