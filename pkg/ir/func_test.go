package ir

import (
	"testing"

	"github.com/oisee/tb/pkg/latt"
)

func newTestFunc() *Func {
	return NewFunc("test", latt.NewInterner())
}

func TestSetInputMaintainsUserInvariant(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	add := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add, a, 0)
	f.SetInput(add, a, 1)

	if err := f.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if a.NumUsers() != 2 {
		t.Fatalf("a has %d users, want 2", a.NumUsers())
	}
}

func TestSetInputReplacesOldEdge(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	b := f.NewNode(OpIConst, Int(32), 0, 0)
	add := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add, a, 0)
	f.SetInput(add, b, 1)
	f.SetInput(add, b, 0) // replace a with b at slot 0

	if a.NumUsers() != 0 {
		t.Fatalf("a should have 0 users after being replaced, got %d", a.NumUsers())
	}
	if b.NumUsers() != 2 {
		t.Fatalf("b should have 2 users, got %d", b.NumUsers())
	}
	if err := f.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSubsumeTransfersUsers(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	add := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add, a, 0)
	f.SetInput(add, a, 1)

	zero := f.NewNode(OpIConst, Int(32), 0, 0)
	f.Subsume(a, zero)

	if !a.Dead {
		t.Fatalf("old node should be dead after Subsume")
	}
	if zero.NumUsers() != 2 {
		t.Fatalf("replacement should have inherited 2 users, got %d", zero.NumUsers())
	}
	if add.Inputs[0] != zero || add.Inputs[1] != zero {
		t.Fatalf("add's inputs should now point at the replacement")
	}
	if err := f.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestKillClearsInputEdges(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	add := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add, a, 0)
	f.SetInput(add, a, 1)

	f.Kill(add)
	if a.NumUsers() != 0 {
		t.Fatalf("a should lose its users when add is killed, got %d", a.NumUsers())
	}
	if !add.Dead {
		t.Fatalf("add should be marked dead")
	}
}

func TestGVNInternIdempotentAndDedups(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	b := f.NewNode(OpIConst, Int(32), 0, 0)

	add1 := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add1, a, 0)
	f.SetInput(add1, b, 1)
	canon1 := f.GVNIntern(add1)

	add2 := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add2, a, 0)
	f.SetInput(add2, b, 1)
	canon2 := f.GVNIntern(add2)

	if canon1 != canon2 {
		t.Fatalf("two structurally identical Add nodes did not GVN to the same representative")
	}
	if f.GVNIntern(canon1) != canon1 {
		t.Fatalf("GVNIntern is not idempotent")
	}
}

func TestGVNExcludesImpureOps(t *testing.T) {
	f := newTestFunc()
	c1 := f.NewNode(OpCall, Ctrl, 1, 0)
	f.SetInput(c1, f.Root, 0)
	c2 := f.NewNode(OpCall, Ctrl, 1, 0)
	f.SetInput(c2, f.Root, 0)

	if f.GVNIntern(c1) == f.GVNIntern(c2) {
		t.Fatalf("CALL nodes must never be GVN-deduplicated")
	}
}

func TestKillIfDeadPropagates(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	b := f.NewNode(OpIConst, Int(32), 0, 0)
	add := f.NewNode(OpAdd, Int(32), 2, 0)
	f.SetInput(add, a, 0)
	f.SetInput(add, b, 1)

	n := f.KillIfDead(add)
	if n != 3 {
		t.Fatalf("expected 3 nodes killed (add, a, b), got %d", n)
	}
	if !a.Dead || !b.Dead {
		t.Fatalf("inputs should become dead once their only user dies")
	}
}

func TestRenumberCompacts(t *testing.T) {
	f := newTestFunc()
	a := f.NewNode(OpIConst, Int(32), 0, 0)
	_ = f.NewNode(OpIConst, Int(32), 0, 0)
	f.Kill(f.Nodes[2])

	f.Renumber()
	if len(f.Nodes) != 2 { // Root + a
		t.Fatalf("expected 2 live nodes after renumber, got %d", len(f.Nodes))
	}
	found := false
	for i, n := range f.Nodes {
		if n == a {
			found = true
			if n.Gvn != i {
				t.Fatalf("node Gvn %d does not match its slot %d after renumber", n.Gvn, i)
			}
		}
	}
	if !found {
		t.Fatalf("surviving node missing after renumber")
	}
}
