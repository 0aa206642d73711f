package lsra

import (
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/target"
)

// legalize is the pre-pass of §4.6: for every scheduled node it queries
// the target's constraint, binds a VReg to its definition, and inserts a
// MACH_COPY ahead of any input whose current mask is incompatible with
// (or, for an already-fixed value, identical to and thus not worth
// stretching) what this use requires. It also reserves the node's tmp_count
// scratch VRegs.
func (a *allocator) legalize() {
	for _, bidx := range a.c.RPO {
		orig := a.sched.ScheduledOrder[bidx]
		out := make([]*ir.Node, 0, len(orig))
		for _, n := range orig {
			ins := make([]*target.RegMask, len(n.Inputs))
			def := a.tgt.Constraint(n, ins)

			twoAddr := a.tgt.Node2Addr(n)
			for slot, in := range n.Inputs {
				req := ins[slot]
				if in == nil || req == nil {
					continue
				}
				cur := a.maskOf(in)
				if cur == nil {
					continue
				}
				_, curFixed := singleBit(cur.Bits)
				stretchesFixed := curFixed && cur == req
				if cur.Intersects(req) && !stretchesFixed {
					continue
				}
				cp := a.f.MachCopy(in, in.DT)
				cp.Block = bidx
				a.bindVreg(cp, req)
				a.f.SetInput(n, cp, slot)
				out = append(out, cp)
			}

			for i := 0; i < a.tgt.TmpCount(n); i++ {
				tmp := a.f.NewNode(ir.OpMachCopy, n.DT, 1, 0)
				tmp.Block = bidx
				a.bindVreg(tmp, def)
				out = append(out, tmp)
			}

			out = append(out, n)
			_ = twoAddr // two-address hinting happens during range construction
			a.bindVreg(n, def)
		}
		a.sched.ScheduledOrder[bidx] = out
	}
}
