package lsra

import (
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/target"
)

// insertSpillCode implements §4.6's whole-lifetime spill strategy: a
// MACH_COPY stores the value to the stack right after its definition, and
// every use that can't accept a stack operand gets its own reload copy
// with a tiny range. The original VReg keeps its class but, once every
// use has been redirected to a reload, naturally ends up with a short
// live range spanning only def -> store — the next round allocates it a
// register trivially.
func (a *allocator) insertSpillCode(spills []*VReg) {
	for _, v := range spills {
		if v.Node == nil {
			continue // fixed VRegs never reach the unhandled list
		}
		users := append([]ir.User(nil), v.Node.Users...)

		store := a.f.NewNode(ir.OpMachCopy, v.Node.DT, 1, 0)
		a.f.SetInput(store, v.Node, 0)
		store.Block = v.Node.Block
		store.Time = v.Node.Time + 1
		a.insertAfter(store.Block, v.Node, store)
		a.bindVreg(store, target.Stack)

		for _, u := range users {
			if u.Who == store {
				continue
			}
			req := a.requiredMaskFor(u.Who, u.Slot)
			if req != nil && req.Intersects(target.Stack) {
				continue
			}
			reload := a.f.NewNode(ir.OpMachCopy, v.Node.DT, 1, 0)
			a.f.SetInput(reload, store, 0)
			reload.Block = u.Who.Block
			reload.Time = u.Who.Time - 1
			a.insertBefore(reload.Block, u.Who, reload)
			a.f.SetInput(u.Who, reload, u.Slot)

			mask := req
			if mask == nil {
				mask = v.Mask
			}
			a.bindVreg(reload, mask)
		}
	}
}

// requiredMaskFor recomputes the target's constraint for one input slot of
// an already-legalized node. MACH_COPY nodes carry no Target.Constraint
// entry (their mask was bound directly when inserted), so they trivially
// accept whatever they were already given.
func (a *allocator) requiredMaskFor(n *ir.Node, slot int) *target.RegMask {
	if n.Op == ir.OpMachCopy {
		return nil
	}
	ins := make([]*target.RegMask, len(n.Inputs))
	a.tgt.Constraint(n, ins)
	if slot < len(ins) {
		return ins[slot]
	}
	return nil
}

func (a *allocator) insertAfter(block int, anchor, node *ir.Node) {
	list := a.sched.ScheduledOrder[block]
	for i, n := range list {
		if n == anchor {
			list = append(list, nil)
			copy(list[i+2:], list[i+1:])
			list[i+1] = node
			a.sched.ScheduledOrder[block] = list
			return
		}
	}
}

func (a *allocator) insertBefore(block int, anchor, node *ir.Node) {
	list := a.sched.ScheduledOrder[block]
	for i, n := range list {
		if n == anchor {
			list = append(list, nil)
			copy(list[i+1:], list[i:])
			list[i] = node
			a.sched.ScheduledOrder[block] = list
			return
		}
	}
}
