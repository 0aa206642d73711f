package peep

import (
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/latt"
	pkgerrors "github.com/pkg/errors"
)

// StrictMonotonicity, when true, aborts (returns an error) the moment a
// node's recomputed value would move *up* the lattice relative to its
// previous value — a forward-progress violation per §4.2 step 2. Debug
// builds set this; release builds leave it false and silently clamp by
// just keeping the new (looser) value, matching §4.2's "or clamp
// (release)" escape hatch.
var StrictMonotonicity = false

// Engine runs the local peephole rewriter to fixpoint over a worklist.
type Engine struct {
	f  *ir.Func
	wl *worklist
}

// NewEngine creates a peephole engine bound to f.
func NewEngine(f *ir.Func) *Engine {
	return &Engine{f: f, wl: newWorklist()}
}

// Run seeds the worklist with every live node and iterates idealize/
// value/identity/GVN to fixpoint.
func (e *Engine) Run() error {
	for _, n := range e.f.LiveNodes() {
		e.wl.push(n)
	}
	return e.drain()
}

// PushUsers re-enqueues a node's users; exported so other passes (SCCP
// materialization, GCM's node moves) can trigger a follow-up peephole
// round after they mutate the graph directly.
func (e *Engine) PushUsers(n *ir.Node) { e.wl.pushUsers(n) }

// Push enqueues a single node for reprocessing.
func (e *Engine) Push(n *ir.Node) { e.wl.push(n) }

// Drain processes the worklist to fixpoint; exported for callers that
// seed the worklist themselves (e.g. after a targeted graph edit).
func (e *Engine) Drain() error { return e.drain() }

func (e *Engine) drain() error {
	for !e.wl.empty() {
		n := e.wl.pop()
		if n.Dead {
			continue
		}
		if err := e.step(n); err != nil {
			return err
		}
	}
	return nil
}

// step runs the four-stage pipeline on a single node (§4.2): idealize to
// fixpoint, pessimistic value (materializing constants), identity, GVN.
func (e *Engine) step(n *ir.Node) error {
	f := e.f

	// 1. Idealize, repeated until no progress.
	for iter := 0; ; iter++ {
		if iter > 64 {
			return pkgerrors.Errorf("idealize did not reach fixpoint on %s#%d after 64 iterations", n.Op, n.Gvn)
		}
		repl := idealize(f, n)
		if repl == nil {
			break
		}
		e.wl.pushUsers(n)
		f.Subsume(n, repl)
		e.wl.push(repl)
		n = repl
		if n.Dead {
			return nil
		}
	}

	// 2. Pessimistic value; replace with a constant if it resolved to one.
	newVal := value(f.Interner, n)
	if n.Type != nil && StrictMonotonicity {
		if !f.Interner.LessEq(newVal, n.Type) && newVal != n.Type {
			return pkgerrors.Errorf("peephole monotonicity violation on %s#%d: %v -> %v", n.Op, n.Gvn, n.Type, newVal)
		}
	}
	n.Type = newVal
	if newVal.IsConstant() && n.Op != ir.OpIConst && n.Op != ir.OpF32Const && n.Op != ir.OpF64Const && n.Op != ir.OpPtrConst {
		var c *ir.Node
		switch newVal.Kind {
		case latt.KindInt:
			c = f.Const(n.DT.Width, newVal.Lo)
		case latt.Flt32Con:
			c = f.Flt32Const(newVal.F32)
		case latt.Flt64Con:
			c = f.Flt64Const(newVal.F64)
		case latt.PtrCon:
			c = f.PtrConst(newVal.Ptr)
		}
		if c != nil {
			e.wl.pushUsers(n)
			f.Subsume(n, c)
			e.wl.push(c)
			return nil
		}
	}

	// 3. Identity.
	if repl := identity(n); repl != nil {
		e.wl.pushUsers(n)
		f.Subsume(n, repl)
		e.wl.push(repl)
		return nil
	}

	// 4. GVN.
	canon := f.GVNIntern(n)
	if canon != n {
		e.wl.pushUsers(n)
		f.Subsume(n, canon)
		e.wl.push(canon)
	}
	return nil
}
