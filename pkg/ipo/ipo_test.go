package ipo

import (
	"testing"

	"github.com/oisee/tb/pkg/ir"
)

func newTestFunc(m *ir.Module, name string) (f *ir.Func, start *ir.Node) {
	f = m.NewFunc(name)
	start = f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	return f, start
}

func hasCall(f *ir.Func, target string) bool {
	for _, n := range f.LiveNodes() {
		if n.Op == ir.OpCall && n.CallTarget() == target {
			return true
		}
	}
	return false
}

// TestSCCLeafFirstOrder builds a straight-line call chain a -> b -> c and
// checks Tarjan emits c's component before b's, before a's: exactly the
// bottom-up order §4.7 needs for inlining.
func TestSCCLeafFirstOrder(t *testing.T) {
	m := ir.NewModule()
	a, astart := newTestFunc(m, "a")
	b, bstart := newTestFunc(m, "b")
	c, cstart := newTestFunc(m, "c")

	c.Return(cstart, c.Const(32, 1))
	_, bcont, bret := b.Call(bstart, "c", ir.Int(32))
	b.Return(bcont, bret)
	_, acont, aret := a.Call(astart, "b", ir.Int(32))
	a.Return(acont, aret)

	cg := Build(m)
	sccs := cg.SCCs()
	pos := map[string]int{}
	for i, scc := range sccs {
		if len(scc) != 1 {
			t.Fatalf("expected every component to be a singleton in an acyclic graph, got %v", scc)
		}
		pos[scc[0]] = i
	}
	if !(pos["c"] < pos["b"] && pos["b"] < pos["a"]) {
		t.Fatalf("expected leaf-first order c, b, a; got positions %v", pos)
	}
}

// TestInlineSimpleCall exercises the full clone-and-stitch path: a small
// callee gets cloned into its only caller, the call site disappears, and
// the caller's RETURN ends up reading the cloned arithmetic directly.
func TestInlineSimpleCall(t *testing.T) {
	m := ir.NewModule()
	add, astart := newTestFunc(m, "add")
	x := add.Param(astart, 0, ir.Int(32))
	y := add.Param(astart, 1, ir.Int(32))
	sum := add.BinOp(ir.OpAdd, ir.Int(32), x, y)
	add.Return(astart, sum)

	caller, cstart := newTestFunc(m, "caller")
	p := caller.Param(cstart, 0, ir.Int(32))
	one := caller.Const(32, 1)
	_, cont, ret := caller.Call(cstart, "add", ir.Int(32), p, one)
	caller.Return(cont, ret)

	inliner := NewInliner(DefaultThreshold)
	n := inliner.Run(m)
	if n != 1 {
		t.Fatalf("expected exactly one call site inlined, got %d", n)
	}
	if got := inliner.Counts()["caller"]; got != 1 {
		t.Fatalf("expected Counts()[\"caller\"] == 1, got %d", got)
	}
	if hasCall(caller, "add") {
		t.Fatalf("call to add should have been inlined away")
	}
	if err := caller.Verify(); err != nil {
		t.Fatalf("edge invariant broken after inlining: %v", err)
	}

	var callerReturn *ir.Node
	for _, n := range caller.LiveNodes() {
		if n.Op == ir.OpReturn {
			callerReturn = n
		}
	}
	if callerReturn == nil {
		t.Fatalf("caller lost its RETURN")
	}
	val := callerReturn.Inputs[1]
	if val.Op != ir.OpAdd {
		t.Fatalf("expected caller's return value to be the inlined ADD, got %s", val.Op)
	}
	if val.Inputs[0] != p || val.Inputs[1] != one {
		t.Fatalf("inlined ADD should read the caller's own argument nodes directly, not re-cloned PARAMs")
	}
}

// TestSelfRecursiveCallNotInlined checks a function calling itself is
// never a candidate: its own SCC never finalizes relative to itself.
func TestSelfRecursiveCallNotInlined(t *testing.T) {
	m := ir.NewModule()
	f, start := newTestFunc(m, "fact")
	p := f.Param(start, 0, ir.Int(32))
	_, cont, ret := f.Call(start, "fact", ir.Int(32), p)
	f.Return(cont, ret)

	NewInliner(DefaultThreshold).Run(m)
	if !hasCall(f, "fact") {
		t.Fatalf("self-recursive call must not be inlined")
	}
}

// TestMutualRecursionNotInlined checks a 2-cycle (a calls b, b calls a)
// is treated as one non-finalizing SCC on both sides.
func TestMutualRecursionNotInlined(t *testing.T) {
	m := ir.NewModule()
	a, astart := newTestFunc(m, "a")
	b, bstart := newTestFunc(m, "b")

	pa := a.Param(astart, 0, ir.Int(32))
	_, acont, aret := a.Call(astart, "b", ir.Int(32), pa)
	a.Return(acont, aret)

	pb := b.Param(bstart, 0, ir.Int(32))
	_, bcont, bret := b.Call(bstart, "a", ir.Int(32), pb)
	b.Return(bcont, bret)

	n := NewInliner(DefaultThreshold).Run(m)
	if n != 0 {
		t.Fatalf("expected no inlining across a mutually recursive pair, inlined %d", n)
	}
	if !hasCall(a, "b") || !hasCall(b, "a") {
		t.Fatalf("mutually recursive calls must survive untouched")
	}
}

// TestThresholdSkipsLargeCallee checks a callee over the node-count
// threshold is left as a real call, per §4.7's "small statically-known
// target" gate.
func TestThresholdSkipsLargeCallee(t *testing.T) {
	m := ir.NewModule()
	big, bstart := newTestFunc(m, "big")
	acc := big.Param(bstart, 0, ir.Int(32))
	for i := 0; i < 20; i++ {
		acc = big.BinOp(ir.OpAdd, ir.Int(32), acc, big.Const(32, int64(i)))
	}
	big.Return(bstart, acc)

	caller, cstart := newTestFunc(m, "caller")
	p := caller.Param(cstart, 0, ir.Int(32))
	_, cont, ret := caller.Call(cstart, "big", ir.Int(32), p)
	caller.Return(cont, ret)

	if NodeCount(big) <= DefaultThreshold {
		t.Fatalf("test setup bug: big should exceed the inline threshold, has %d nodes", NodeCount(big))
	}
	n := NewInliner(DefaultThreshold).Run(m)
	if n != 0 {
		t.Fatalf("expected the oversized callee to be skipped, inlined %d", n)
	}
	if !hasCall(caller, "big") {
		t.Fatalf("call to an oversized callee must survive")
	}
}
