package cfg

import (
	"testing"

	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/latt"
)

// buildDiamond builds: Start -> If -> {trueProj, falseProj} -> Region -> Return.
func buildDiamond(t *testing.T) (*ir.Func, *ir.Node /*region*/) {
	t.Helper()
	f := ir.NewFunc("diamond", latt.NewInterner())
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	x := f.Param(start, 0, ir.Int(32))
	trueProj, falseProj := f.If(start, x)
	region := f.Region(trueProj, falseProj)
	phi := f.Phi(region, ir.Int(32), f.Const(32, 1), f.Const(32, 2))
	f.Return(region, phi)
	return f, region
}

func TestBuildProducesFourBlocks(t *testing.T) {
	f, _ := buildDiamond(t)
	c, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(c.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4 (entry, true-arm, false-arm, join)", len(c.Blocks))
	}
}

func TestDominatorCorrectness(t *testing.T) {
	f, _ := buildDiamond(t)
	c, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, bb := range c.Blocks {
		if !c.Dominates(bb.IDom, bb.Index) {
			t.Fatalf("idom(%d)=%d does not dominate %d", bb.Index, bb.IDom, bb.Index)
		}
		if !c.Dominates(bb.Index, bb.Index) {
			t.Fatalf("block %d does not dominate itself", bb.Index)
		}
	}
	// Every block's idom must precede it in RPO.
	for _, b := range c.RPO {
		if b == c.Blocks[b].IDom {
			continue // entry
		}
		if c.RPONumber(c.Blocks[b].IDom) >= c.RPONumber(b) {
			t.Fatalf("idom(%d) does not precede %d in RPO", b, b)
		}
	}
}

func TestJoinBlockDominatedByEntryOnly(t *testing.T) {
	f, region := buildDiamond(t)
	c, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	joinBB := region.Block
	entryBB := 0
	if c.Blocks[joinBB].IDom != entryBB {
		t.Fatalf("join block's idom = %d, want entry block %d", c.Blocks[joinBB].IDom, entryBB)
	}
}

func TestLoopTreeFindsBackEdge(t *testing.T) {
	f := ir.NewFunc("loop", latt.NewInterner())
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)

	region := f.Region(start, nil)
	phi := f.Phi(region, ir.Int(32), f.Const(32, 0), nil)
	one := f.Const(32, 1)
	inc := f.BinOp(ir.OpAdd, ir.Int(32), phi, one)
	limit := f.Const(32, 1000)
	cond := f.BinOp(ir.OpCmpNE, ir.Int(32), inc, limit)
	trueProj, falseProj := f.If(region, cond)
	f.SetInput(region, trueProj, 1)
	f.SetInput(phi, inc, 2)
	f.Return(falseProj, phi)

	c, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	loops := c.LoopTree()
	if len(loops) != 1 {
		t.Fatalf("got %d loops, want 1", len(loops))
	}
	if loops[0].Header != region.Block {
		t.Fatalf("loop header block = %d, want region's block %d", loops[0].Header, region.Block)
	}
	if loops[0].InductionVar != phi {
		t.Fatalf("induction variable not detected")
	}
	if loops[0].Step != 1 {
		t.Fatalf("induction step = %d, want 1", loops[0].Step)
	}
}
