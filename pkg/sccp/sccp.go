// Package sccp implements the optimistic (SCCP-style) constant propagation
// pass: a fixpoint over the lattice starting every node at TOP, per §4.3.
package sccp

import (
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/latt"
	"github.com/willf/bitset"
)

// Run executes both SCCP passes over f and reports how many nodes were
// materialized into constants in pass 2.
func Run(f *ir.Func) int {
	s := &sccp{
		f:      f,
		in:     f.Interner,
		lat:    make(map[int]*latt.Value),
		onList: bitset.New(256),
	}
	s.pass1()
	return s.pass2()
}

type sccp struct {
	f      *ir.Func
	in     *latt.Interner
	lat    map[int]*latt.Value // gvn -> current (optimistic) lattice value
	queue  []*ir.Node
	onList *bitset.BitSet
}

func (s *sccp) value(n *ir.Node) *latt.Value {
	if n == nil {
		return s.in.Top()
	}
	if v, ok := s.lat[n.Gvn]; ok {
		return v
	}
	return s.in.Top()
}

func (s *sccp) setValue(n *ir.Node, v *latt.Value) bool {
	old := s.value(n)
	if old == v {
		return false
	}
	s.lat[n.Gvn] = v
	return true
}

func (s *sccp) push(n *ir.Node) {
	if n == nil || n.Dead {
		return
	}
	id := uint(n.Gvn)
	if s.onList.Test(id) {
		return
	}
	s.onList.Set(id)
	s.queue = append(s.queue, n)
}

func (s *sccp) pop() *ir.Node {
	n := s.queue[0]
	s.queue = s.queue[1:]
	s.onList.Clear(uint(n.Gvn))
	return n
}

// pass1 finds constants: every node starts at TOP and every live node is
// queued once (constants have no inputs, so following users out of Root
// alone never reaches them). Each pop recomputes the node's value from its
// inputs and pushes affected users; an IF or REGION always re-pushes its
// users (branch projections, PHIs), whose values depend on more than the
// IF's or REGION's own value. Single-input nodes propagate immediately to
// cut queue churn.
func (s *sccp) pass1() {
	for _, n := range s.f.LiveNodes() {
		s.push(n)
	}

	for len(s.queue) > 0 {
		n := s.pop()
		nv := s.transfer(n)
		changed := s.setValue(n, nv)
		if changed || n.Op == ir.OpIf || n.Op == ir.OpRegion {
			for _, u := range n.Users {
				s.push(u.Who)
			}
		}
		if changed {
			// Single-input nodes: propagate immediately instead of
			// waiting another queue round (§4.3).
			for _, u := range n.Users {
				if len(u.Who.Inputs) == 1 {
					if s.setValue(u.Who, s.transfer(u.Who)) {
						for _, uu := range u.Who.Users {
							s.push(uu.Who)
						}
					}
				}
			}
		}
	}
}

// transfer computes the optimistic lattice value for n from its current
// input values, implementing the region/phi rule and dead-control
// handling of §4.3.
func (s *sccp) transfer(n *ir.Node) *latt.Value {
	switch n.Op {
	case ir.OpRoot, ir.OpStart:
		return s.in.Ctrl()
	case ir.OpRegion:
		// A REGION is CTRL iff any input is CTRL.
		for _, in := range n.Inputs {
			if in != nil && s.value(in).Kind == latt.Ctrl {
				return s.in.Ctrl()
			}
		}
		return s.in.Top()
	case ir.OpIf:
		// IF itself carries no meaningful value; its liveness is decided
		// per-branch in propagateCtrlOrValue below, keyed on the cond
		// operand's resolved constantness.
		return s.in.Top()
	case ir.OpProj:
		return s.propagateCtrlOrValue(n)
	case ir.OpPhi:
		return s.phiValue(n)
	case ir.OpReturn, ir.OpCall:
		ctrlVal := s.value(n.Inputs[0])
		if ctrlVal.Kind != latt.Ctrl {
			return s.in.Top()
		}
		return s.in.Ctrl()
	case ir.OpIConst, ir.OpF32Const, ir.OpF64Const, ir.OpPtrConst:
		return n.Type
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE:
		return s.binValue(n)
	case ir.OpLoad, ir.OpParam:
		return s.in.Bot()
	default:
		return s.in.Bot()
	}
}

// propagateCtrlOrValue handles PROJ over an IF (control, branch-selective)
// or over a tuple-valued op (data), keyed by the proj index in Extra.
func (s *sccp) propagateCtrlOrValue(n *ir.Node) *latt.Value {
	src := n.Inputs[0]
	if src.Op == ir.OpIf {
		ctrlVal := s.value(src.Inputs[0])
		if ctrlVal.Kind != latt.Ctrl {
			return s.in.Top()
		}
		cond := s.value(src.Inputs[1])
		if cond.Kind == latt.Top {
			return s.in.Top() // condition not yet known; stay optimistic
		}
		if cond.Kind == latt.KindInt && cond.Lo == cond.Hi {
			taken := cond.Lo != 0 // AllocProj(n, 0) is the true side
			isTrueProj := n.ProjIndex() == 0
			if taken == isTrueProj {
				return s.in.Ctrl()
			}
			return s.in.Top()
		}
		return s.in.Ctrl() // unknown condition: both sides reachable
	}
	return s.value(src)
}

// phiValue is the join of those inputs whose corresponding region
// predecessor is CTRL; a dead region (all inputs TOP) drops its phis to
// TOP.
func (s *sccp) phiValue(n *ir.Node) *latt.Value {
	region := n.Inputs[0]
	result := s.in.Top()
	any := false
	for i := 1; i < len(n.Inputs); i++ {
		predCtrl := region.Inputs[i-1]
		if predCtrl == nil || s.value(predCtrl).Kind != latt.Ctrl {
			continue
		}
		any = true
		result = s.in.Meet(result, s.value(n.Inputs[i]))
	}
	if !any {
		return s.in.Top()
	}
	return result
}

func (s *sccp) binValue(n *ir.Node) *latt.Value {
	a, b := s.value(n.Inputs[0]), s.value(n.Inputs[1])
	if a.Kind == latt.Top || b.Kind == latt.Top {
		return s.in.Top()
	}
	av, aok := a.Lo, a.Kind == latt.KindInt && a.Lo == a.Hi
	bv, bok := b.Lo, b.Kind == latt.KindInt && b.Lo == b.Hi
	if aok && bok {
		mask := int64(n.DT.Mask())
		switch n.Op {
		case ir.OpAdd:
			return s.in.IntConst((av + bv) & mask)
		case ir.OpSub:
			return s.in.IntConst((av - bv) & mask)
		case ir.OpMul:
			return s.in.IntConst((av * bv) & mask)
		case ir.OpAnd:
			return s.in.IntConst(av & bv & mask)
		case ir.OpOr:
			return s.in.IntConst((av | bv) & mask)
		case ir.OpXor:
			return s.in.IntConst((av ^ bv) & mask)
		case ir.OpCmpEQ:
			return s.in.IntConst(boolInt(av == bv))
		case ir.OpCmpNE:
			return s.in.IntConst(boolInt(av != bv))
		case ir.OpCmpLT:
			return s.in.IntConst(boolInt(av < bv))
		case ir.OpCmpLE:
			return s.in.IntConst(boolInt(av <= bv))
		}
	}
	return s.in.Bot()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// pass2 walks every live node once, replacing each whose lattice value
// resolved to a concrete constant with a fresh constant node and
// subsuming, per §4.3 "materialize". Returns the number of replacements.
func (s *sccp) pass2() int {
	count := 0
	for _, n := range s.f.LiveNodes() {
		if n.Op == ir.OpIConst || n.Op == ir.OpF32Const || n.Op == ir.OpF64Const ||
			n.Op == ir.OpPtrConst || n.Op == ir.OpRoot || n.Op == ir.OpStart {
			continue
		}
		c := s.materialize(n, s.value(n))
		if c == nil || c == n {
			continue
		}
		s.f.Subsume(n, c)
		count++
	}
	s.killDeadControl()
	s.shrinkDeadRegions()
	return count
}

// materialize builds the constant node v denotes — singleton integer,
// concrete float, or PTRCON — or nil if v isn't one of those (§4.3
// "materialize").
func (s *sccp) materialize(n *ir.Node, v *latt.Value) *ir.Node {
	switch {
	case v.Kind == latt.KindInt && v.Lo == v.Hi:
		return s.f.Const(n.DT.Width, v.Lo)
	case v.Kind == latt.Flt32Con:
		return s.f.Flt32Const(v.F32)
	case v.Kind == latt.Flt64Con:
		return s.f.Flt64Const(v.F64)
	case v.Kind == latt.PtrCon:
		return s.f.PtrConst(v.Ptr)
	default:
		return nil
	}
}

// ctrlPinned0 lists the opcodes whose input 0 is genuinely a control edge
// (as opposed to Load/Store/atomics, which are pinned by a memory chain
// instead and carry no explicit control operand in this IR).
var ctrlPinned0 = map[ir.Op]bool{
	ir.OpReturn: true,
	ir.OpCall:   true,
}

// killDeadControl rewrites control-pinned nodes whose control input never
// resolved past TOP: a control-producing node becomes OpDeadCtrl, any
// other such node becomes OpPoison (§4.3 "dead control handling").
func (s *sccp) killDeadControl() {
	for _, n := range s.f.LiveNodes() {
		if !ctrlPinned0[n.Op] {
			continue
		}
		if len(n.Inputs) == 0 || n.Inputs[0] == nil {
			continue
		}
		if s.value(n.Inputs[0]).Kind == latt.Ctrl {
			continue
		}
		if n.DT.Tag == ir.TTuple || n.DT.Tag == ir.TCtrl {
			dead := s.f.NewNode(ir.OpDeadCtrl, n.DT, 0, 0)
			s.f.Subsume(n, dead)
		} else {
			poison := s.f.NewNode(ir.OpPoison, n.DT, 0, 0)
			s.f.Subsume(n, poison)
		}
	}
}

// shrinkDeadRegions drops REGION predecessor slots whose control value
// never resolved past TOP (dead control), removing the matching PHI
// input at each slot. A region that degenerates to a single predecessor
// has its phis collapse to that surviving input (§4.3, §8 scenario S4).
func (s *sccp) shrinkDeadRegions() {
	for _, n := range s.f.LiveNodes() {
		if n.Op != ir.OpRegion {
			continue
		}
		live := make([]int, 0, len(n.Inputs))
		for i, in := range n.Inputs {
			if in != nil && s.value(in).Kind == latt.Ctrl {
				live = append(live, i)
			}
		}
		if len(live) == len(n.Inputs) {
			continue
		}
		phis := make([]*ir.Node, 0)
		for _, u := range n.Users {
			if u.Who.Op == ir.OpPhi && u.Slot == 0 {
				phis = append(phis, u.Who)
			}
		}
		for _, phi := range phis {
			newVals := make([]*ir.Node, 0, len(live))
			for _, idx := range live {
				newVals = append(newVals, phi.Inputs[idx+1])
			}
			if len(newVals) == 1 {
				s.f.Subsume(phi, newVals[0])
				continue
			}
			rebuilt := s.f.NewNode(ir.OpPhi, phi.DT, len(newVals)+1, 0)
			s.f.SetInput(rebuilt, n, 0)
			for i, v := range newVals {
				s.f.SetInput(rebuilt, v, i+1)
			}
			s.f.Subsume(phi, rebuilt)
		}
		if len(live) == 1 {
			// Single-predecessor region degenerates away entirely; its
			// control users now read straight from the surviving pred.
			s.f.Subsume(n, n.Inputs[live[0]])
			continue
		}
		newPreds := s.f.NewNode(ir.OpRegion, ir.Ctrl, len(live), 0)
		for i, idx := range live {
			s.f.SetInput(newPreds, n.Inputs[idx], i)
		}
		s.f.Subsume(n, newPreds)
	}
}
