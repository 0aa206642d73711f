package sccp

import (
	"testing"

	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/latt"
)

func newTestFunc(t *testing.T) *ir.Func {
	t.Helper()
	return ir.NewFunc("t", latt.NewInterner())
}

// TestConstantBranchFolds builds `if (1 == 1) return 7 else return 9` and
// checks that SCCP proves the taken side's control live and the other
// side's RETURN dead (its control input never resolves to CTRL).
func TestConstantBranchFolds(t *testing.T) {
	f := newTestFunc(t)
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)

	one := f.Const(32, 1)
	cond := f.BinOp(ir.OpCmpEQ, ir.Int(32), one, one)
	trueProj, falseProj := f.If(start, cond)

	seven := f.Const(32, 7)
	nine := f.Const(32, 9)
	retT := f.Return(trueProj, seven)
	retF := f.Return(falseProj, nine)

	Run(f)

	if retT.Dead {
		t.Fatalf("taken branch's RETURN was incorrectly killed")
	}
	if !retF.Dead {
		t.Fatalf("untaken branch's RETURN should have been proven dead")
	}
}

// TestLoopPhiTerminates is the loop of scenario S3 from spec.md §8: a
// self-referential PHI fed by a constant entry and an increment from a
// comparison-guarded back edge. It checks that SCCP terminates and leaves
// the edge invariant intact. No bound on the PHI is asserted: pass 1 does
// not narrow it to [0, 1000], since adding 1 to a non-singleton range
// evaluates to BOT and the PHI settles at BOT.
func TestLoopPhiTerminates(t *testing.T) {
	f := newTestFunc(t)
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)

	// entry -> loop header (region) <- back edge
	region := f.Region(start, nil) // second pred wired below once back edge exists
	phi := f.Phi(region, ir.Int(32), f.Const(32, 0), nil)

	one := f.Const(32, 1)
	inc := f.BinOp(ir.OpAdd, ir.Int(32), phi, one)

	limit := f.Const(32, 1000)
	cond := f.BinOp(ir.OpCmpNE, ir.Int(32), inc, limit)
	trueProj, falseProj := f.If(region, cond)

	f.SetInput(region, trueProj, 1)
	f.SetInput(phi, inc, 2)

	ret := f.Return(falseProj, phi)

	Run(f)

	if err := f.Verify(); err != nil {
		t.Fatalf("Verify after SCCP: %v", err)
	}
	_ = ret
}

// TestDeadBranchReturnBecomesDeadCtrl checks that a RETURN pinned to a
// provably-unreachable branch is rewritten to OpDeadCtrl rather than left
// dangling on a control edge that never resolves.
func TestDeadBranchReturnBecomesDeadCtrl(t *testing.T) {
	f := newTestFunc(t)
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)

	zero := f.Const(32, 0)
	cond := f.BinOp(ir.OpCmpNE, ir.Int(32), zero, zero) // always false
	trueProj, falseProj := f.If(start, cond)

	nine := f.Const(32, 9)
	deadRet := f.Return(trueProj, nine)
	liveRet := f.Return(falseProj, nine)

	Run(f)

	if liveRet.Dead {
		t.Fatalf("the always-taken branch's RETURN should stay live")
	}
	if !deadRet.Dead {
		t.Fatalf("the never-taken branch's RETURN should have been rewritten to DeadCtrl")
	}
}

// TestFloatPhiMaterializes checks pass 2's materialize step handles a
// concrete-float lattice value (§4.3, spec.md:95), not just singleton
// integers: a PHI whose only reachable predecessor carries FLT32CON must
// be replaced by a fresh F32Const, per the "or concrete float" clause.
func TestFloatPhiMaterializes(t *testing.T) {
	f := newTestFunc(t)
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)

	one := f.Const(32, 1)
	cond := f.BinOp(ir.OpCmpEQ, ir.Int(32), one, one) // always true
	trueProj, falseProj := f.If(start, cond)
	region := f.Region(trueProj, falseProj)

	c := f.Flt32Const(3.5)
	phi := f.Phi(region, ir.F32, c, c)
	ret := f.Return(region, phi)

	Run(f)

	if ret.Inputs[1].Op != ir.OpF32Const {
		t.Fatalf("PHI should have materialized into an F32Const, got %s", ret.Inputs[1].Op)
	}
	if ret.Inputs[1].Flt32Value() != 3.5 {
		t.Fatalf("materialized float = %v, want 3.5", ret.Inputs[1].Flt32Value())
	}
}

// TestPtrConstMaterializes checks a PTRCON-resolved node also materializes
// in pass 2, the third concrete kind spec.md:95 names alongside integers
// and floats.
func TestPtrConstMaterializes(t *testing.T) {
	f := newTestFunc(t)
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)

	one := f.Const(32, 1)
	cond := f.BinOp(ir.OpCmpEQ, ir.Int(32), one, one) // always true
	trueProj, falseProj := f.If(start, cond)
	region := f.Region(trueProj, falseProj)

	g := f.PtrConst("global_x")
	phi := f.Phi(region, ir.Ptr, g, g)
	ret := f.Return(region, phi)

	Run(f)

	if ret.Inputs[1].Op != ir.OpPtrConst {
		t.Fatalf("PHI should have materialized into a PtrConst, got %s", ret.Inputs[1].Op)
	}
	if ret.Inputs[1].PtrName() != "global_x" {
		t.Fatalf("materialized pointer name = %q, want %q", ret.Inputs[1].PtrName(), "global_x")
	}
}
