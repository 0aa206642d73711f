// Package gcm implements Global Code Motion: pinned placement, early/late
// scheduling of floating nodes into basic blocks, and the per-block
// liveness dataflow solve, per spec §4.5.
package gcm

import (
	"github.com/oisee/tb/pkg/cfg"
	"github.com/oisee/tb/pkg/ir"
	"github.com/willf/bitset"
)

// Result holds the outcome of a GCM run: every live node's final block
// (mirrored onto ir.Node.Block) plus per-block scheduled order and the
// liveness dataflow sets.
type Result struct {
	C *cfg.CFG

	ScheduledOrder [][]*ir.Node // per BB, nodes in final program order

	Gen, Kill         []*bitset.BitSet // per BB
	LiveIn, LiveOut   []*bitset.BitSet // per BB
}

// Run schedules every node of f into a basic block of c and solves global
// liveness.
func Run(f *ir.Func, c *cfg.CFG) *Result {
	s := &scheduler{f: f, c: c, early: map[int]int{}, late: map[int]int{}}
	s.pinPlacement()
	for _, n := range f.LiveNodes() {
		s.earlySchedule(n)
	}
	for _, n := range f.LiveNodes() {
		s.lateSchedule(n)
	}
	s.order()
	r := &Result{C: c, ScheduledOrder: s.perBlock}
	r.solveLiveness(f)
	return r
}

type scheduler struct {
	f     *ir.Func
	c     *cfg.CFG
	early map[int]int // gvn -> earliest legal block
	late  map[int]int // gvn -> scheduling-in-progress / final block

	perBlock [][]*ir.Node
}

// pinPlacement attaches every pinned node to a block via its control or
// memory chain. Control-type nodes already carry a Block from cfg.Build;
// this fills in PHI (via its REGION), PARAM (via START), and the
// memory-effect ops (via a walk up their memory-chain input, since this
// IR's LOAD/STORE carry no explicit control operand).
func (s *scheduler) pinPlacement() {
	for _, n := range s.f.LiveNodes() {
		if !ir.IsPinned(n.Op) {
			continue
		}
		if n.Block >= 0 {
			continue // control-type nodes already placed by cfg.Build
		}
		n.Block = s.memChainBlock(n, map[int]bool{})
	}
}

// memChainBlock resolves the block of a memory-pinned node by walking its
// mem operand (input 0) back to a node with a known block, defaulting to
// the entry block. visiting guards against the unexpected case of a mem
// cycle.
func (s *scheduler) memChainBlock(n *ir.Node, visiting map[int]bool) int {
	if n == nil || visiting[n.Gvn] {
		return 0
	}
	if n.Block >= 0 {
		return n.Block
	}
	visiting[n.Gvn] = true
	if len(n.Inputs) == 0 {
		return 0
	}
	b := s.memChainBlock(n.Inputs[0], visiting)
	n.Block = b
	return b
}

// earlySchedule computes the earliest legal block for a floating node:
// the deepest (in dominator depth) block among its data inputs' blocks,
// defaulting to the entry block (§4.5 step 2).
func (s *scheduler) earlySchedule(n *ir.Node) int {
	if b, ok := s.early[n.Gvn]; ok {
		return b
	}
	if ir.IsPinned(n.Op) {
		s.early[n.Gvn] = n.Block
		return n.Block
	}
	s.early[n.Gvn] = 0 // break cycles defensively; SoN data graph is acyclic through pinned nodes
	best := 0
	bestDepth := -1
	for _, in := range n.Inputs {
		if in == nil {
			continue
		}
		b := s.earlySchedule(in)
		if d := s.c.Depth(b); d > bestDepth {
			bestDepth = d
			best = b
		}
	}
	s.early[n.Gvn] = best
	return best
}

// lateSchedule computes the final block for a floating node: the LCA
// across all its users' blocks (using the matching predecessor block for
// a PHI user), followed by hoist's one-level move for LOADs (§4.5 step 3).
// No separate clamp against the early bound is applied: the LCA of the
// users is taken as is.
func (s *scheduler) lateSchedule(n *ir.Node) int {
	if b, ok := s.late[n.Gvn]; ok {
		return b
	}
	if ir.IsPinned(n.Op) {
		s.late[n.Gvn] = n.Block
		return n.Block
	}
	s.late[n.Gvn] = s.early[n.Gvn] // placeholder breaking any accidental recursion
	lca := -1
	for _, u := range n.Users {
		ub := s.userBlock(u.Who, u.Slot)
		if lca == -1 {
			lca = ub
		} else {
			lca = s.c.LCA(lca, ub)
		}
	}
	target := s.early[n.Gvn]
	if lca != -1 {
		target = lca
	}
	target = s.hoist(n, target)
	n.Block = target
	s.late[n.Gvn] = target
	return target
}

// userBlock returns the block a user effectively reads n's value in: for
// a PHI, that's the predecessor block matching the specific input slot
// this use occupies, not the PHI's own block (a PHI may use the same
// value at more than one slot, each tied to a different predecessor).
func (s *scheduler) userBlock(user *ir.Node, slot int) int {
	if user.Op == ir.OpPhi && slot >= 1 {
		region := user.Inputs[0]
		if pred := region.Inputs[slot-1]; pred != nil {
			return pred.Block
		}
	}
	if ir.IsPinned(user.Op) {
		return user.Block
	}
	return s.lateSchedule(user)
}

// hoist moves a long-latency op (LOAD) from its late block up one level,
// to that block's immediate dominator, whenever the dominator is at least
// as deep in the dominator tree as the early bound's block. It does not
// look at the loop tree: the move is made whether or not the late block
// lies inside a loop, and never goes further than one dominator level.
func (s *scheduler) hoist(n *ir.Node, target int) int {
	if n.Op != ir.OpLoad {
		return target
	}
	idom := s.c.Blocks[target].IDom
	if idom == target {
		return target
	}
	if s.c.Depth(idom) >= s.c.Depth(s.early[n.Gvn]) {
		return idom
	}
	return target
}

// order buckets every live node into its final block, then topologically
// sorts each block's nodes by in-block data dependency (a node's in-block
// inputs must precede it) via DFS post-order. Cross-block inputs (a
// PHI's per-predecessor values, anything live-in) impose no local
// ordering constraint, so control-chain nodes and the floating/other
// pinned nodes GCM placed alongside them fall into one consistent order.
func (s *scheduler) order() {
	byBlock := make([][]*ir.Node, len(s.c.Blocks))
	for _, n := range s.f.LiveNodes() {
		if n.Block < 0 {
			continue
		}
		byBlock[n.Block] = append(byBlock[n.Block], n)
	}
	s.perBlock = make([][]*ir.Node, len(s.c.Blocks))
	for _, bb := range s.c.Blocks {
		s.perBlock[bb.Index] = topoSortBlock(byBlock[bb.Index])
	}
}

func topoSortBlock(nodes []*ir.Node) []*ir.Node {
	inBlock := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		inBlock[n.Gvn] = true
	}
	visited := make(map[int]bool, len(nodes))
	out := make([]*ir.Node, 0, len(nodes))
	var visit func(n *ir.Node)
	visit = func(n *ir.Node) {
		if visited[n.Gvn] {
			return
		}
		visited[n.Gvn] = true
		for _, in := range n.Inputs {
			if in != nil && inBlock[in.Gvn] {
				visit(in)
			}
		}
		out = append(out, n)
	}
	for _, n := range nodes {
		visit(n)
	}
	return out
}

// solveLiveness computes per-block gen/kill then the classic iterative
// backward live_in/live_out fixpoint, seeded with a worklist in reverse
// RPO (§4.5 step 4).
func (r *Result) solveLiveness(f *ir.Func) {
	n := len(f.Nodes)
	nb := len(r.C.Blocks)
	r.Gen = make([]*bitset.BitSet, nb)
	r.Kill = make([]*bitset.BitSet, nb)
	r.LiveIn = make([]*bitset.BitSet, nb)
	r.LiveOut = make([]*bitset.BitSet, nb)
	for i := range r.C.Blocks {
		r.Gen[i] = bitset.New(uint(n))
		r.Kill[i] = bitset.New(uint(n))
		r.LiveIn[i] = bitset.New(uint(n))
		r.LiveOut[i] = bitset.New(uint(n))
	}

	for _, bb := range r.C.Blocks {
		gen, kill := r.Gen[bb.Index], r.Kill[bb.Index]
		nodes := r.ScheduledOrder[bb.Index]
		for i := 0; i < len(nodes); i++ {
			node := nodes[i]
			kill.Set(uint(node.Gvn))
			if node.Op == ir.OpPhi {
				continue // a phi's operands are live-in to its predecessors, not its own block; handled by the cross-edge gen below
			}
			for _, in := range node.Inputs {
				if in == nil {
					continue
				}
				if !kill.Test(uint(in.Gvn)) {
					gen.Set(uint(in.Gvn))
				}
			}
		}
		for _, succIdx := range bb.Succs {
			succ := r.C.Blocks[succIdx]
			predSlot := indexOf(succ.Preds, bb.Index)
			if predSlot < 0 {
				continue
			}
			for _, sn := range r.ScheduledOrder[succIdx] {
				if sn.Op != ir.OpPhi {
					continue
				}
				val := sn.Inputs[predSlot+1]
				if val != nil {
					gen.Set(uint(val.Gvn))
				}
			}
		}
	}

	worklist := make([]int, 0, len(r.C.RPO))
	for i := len(r.C.RPO) - 1; i >= 0; i-- {
		worklist = append(worklist, r.C.RPO[i])
	}
	onList := make([]bool, nb)
	for _, b := range worklist {
		onList[b] = true
	}
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		onList[b] = false

		bb := r.C.Blocks[b]
		newOut := bitset.New(uint(n))
		for _, s := range bb.Succs {
			newOut.InPlaceUnion(r.LiveIn[s])
		}
		newIn := newOut.Difference(r.Kill[b]).Union(r.Gen[b])

		if !newIn.Equal(r.LiveIn[b]) || !newOut.Equal(r.LiveOut[b]) {
			r.LiveIn[b] = newIn
			r.LiveOut[b] = newOut
			for _, p := range bb.Preds {
				if !onList[p] {
					onList[p] = true
					worklist = append(worklist, p)
				}
			}
		}
	}
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
