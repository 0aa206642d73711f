package gcm

import (
	"testing"

	"github.com/oisee/tb/pkg/cfg"
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/latt"
)

// TestSharedLoadScheduledAtJoin is scenario S5 from spec.md §8: two
// identical LOADs from the same memory state GVN-unify to one node, and
// the scheduler places it in the block dominating both arms that use it.
func TestSharedLoadScheduledAtJoin(t *testing.T) {
	f := ir.NewFunc("t", latt.NewInterner())
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	ptr := f.Param(start, 0, ir.Ptr)
	mem := f.Param(start, 1, ir.Mem)
	cond := f.Param(start, 2, ir.Int(32))

	trueProj, falseProj := f.If(start, cond)
	region := f.Region(trueProj, falseProj)

	loadA := f.Load(mem, ptr, ir.Int(32))
	loadB := f.Load(mem, ptr, ir.Int(32))
	if loadA != loadB {
		t.Fatalf("two structurally-identical loads did not GVN-unify")
	}

	phi := f.Phi(region, ir.Int(32), loadA, loadA)
	f.Return(region, phi)

	c, err := cfg.Build(f)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	Run(f, c)

	if !c.Dominates(loadA.Block, trueProj.Block) || !c.Dominates(loadA.Block, falseProj.Block) {
		t.Fatalf("scheduled load block %d does not dominate both arms", loadA.Block)
	}
}

func TestPinnedParamStaysInEntry(t *testing.T) {
	f := ir.NewFunc("t", latt.NewInterner())
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	x := f.Param(start, 0, ir.Int(32))
	f.Return(start, x)

	c, err := cfg.Build(f)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	Run(f, c)

	if x.Block != start.Block {
		t.Fatalf("param block = %d, want start's block %d", x.Block, start.Block)
	}
}

func TestLivenessGenKillConsistent(t *testing.T) {
	f := ir.NewFunc("t", latt.NewInterner())
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	x := f.Param(start, 0, ir.Int(32))
	add := f.BinOp(ir.OpAdd, ir.Int(32), x, x)
	f.Return(start, add)

	c, err := cfg.Build(f)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	r := Run(f, c)

	entry := 0
	if r.Gen[entry].Test(uint(x.Gvn)) {
		t.Fatalf("x should be defined locally in its own block, not genned")
	}
}

// TestPhiNotLiveOutOfPredecessor checks a PHI's own def is killed in its
// own block, not treated as an in-block use of itself: a node consuming
// the PHI's result in the same block must not make the PHI's Gvn live-out
// of a predecessor that never computes it.
func TestPhiNotLiveOutOfPredecessor(t *testing.T) {
	f := ir.NewFunc("t", latt.NewInterner())
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	cond := f.Param(start, 0, ir.Int(32))
	a := f.Param(start, 1, ir.Int(32))
	b := f.Param(start, 2, ir.Int(32))

	trueProj, falseProj := f.If(start, cond)
	region := f.Region(trueProj, falseProj)
	phi := f.Phi(region, ir.Int(32), a, b)
	sum := f.BinOp(ir.OpAdd, ir.Int(32), phi, phi)
	f.Return(region, sum)

	c, err := cfg.Build(f)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	r := Run(f, c)

	if !r.Kill[phi.Block].Test(uint(phi.Gvn)) {
		t.Fatalf("a PHI's own Gvn must be killed in its own block")
	}
	for _, predIdx := range c.Blocks[phi.Block].Preds {
		if r.LiveOut[predIdx].Test(uint(phi.Gvn)) {
			t.Fatalf("PHI's Gvn incorrectly live-out of predecessor block %d, which never defines it", predIdx)
		}
	}
}
