// Package cfg builds the embedded control-flow graph out of a function's
// control-type nodes, computes reverse post-order and dominators, and
// derives a loop tree, per spec §4.4.
package cfg

import (
	"github.com/oisee/tb/pkg/ir"
	pkgerrors "github.com/pkg/errors"
)

// BB is one basic block: a maximal run of control nodes between a leader
// and its terminator.
type BB struct {
	Index int
	Start *ir.Node // leader: Root, a Region, or a Proj off an If
	End   *ir.Node // terminator: If, Return, Call, or the leader itself

	Nodes []*ir.Node // the control-chain nodes in this block, in order

	Preds []int
	Succs []int

	IDom  int // the entry block is its own immediate dominator
	Depth int // not filled in; CFG.Depth() computes depth on each call
}

// CFG is the per-function control-flow graph plus derived analyses.
type CFG struct {
	F      *ir.Func
	Blocks []*BB
	RPO    []int // block indices in reverse post-order
	rpoNum map[int]int

	LoopShapeDirty bool // flipped by peepholes that change CFG shape (§4.4)
}

func isControl(n *ir.Node) bool {
	return n != nil && (n.DT.Tag == ir.TCtrl ||
		(n.DT.Tag == ir.TTuple && len(n.DT.Elems) > 0 && n.DT.Elems[0].Tag == ir.TCtrl))
}

// controlSuccessors returns n's control-type users, regardless of slot
// (a REGION consumes its predecessors at distinct slots).
func controlSuccessors(n *ir.Node) []*ir.Node {
	var out []*ir.Node
	for _, u := range n.Users {
		if isControl(u.Who) {
			out = append(out, u.Who)
		}
	}
	return out
}

func branches(n *ir.Node) bool { return n.Op == ir.OpIf }

// Build discovers the CFG by walking control edges from f.Root.
func Build(f *ir.Func) (*CFG, error) {
	c := &CFG{F: f, rpoNum: map[int]int{}}

	visited := map[int]bool{}
	var leaders []*ir.Node
	leaderOf := map[int]*BB{} // node gvn -> owning BB, filled during walk

	isLeader := func(n *ir.Node) bool {
		if n == f.Root || n.Op == ir.OpRegion {
			return true
		}
		if n.Op == ir.OpProj {
			src := n.Inputs[0]
			return src != nil && src.Op == ir.OpIf
		}
		return false
	}

	// Discover every control node reachable from Root (BFS), and collect
	// leaders among them.
	queue := []*ir.Node{f.Root}
	visited[f.Root.Gvn] = true
	var allCtrl []*ir.Node
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		allCtrl = append(allCtrl, n)
		if isLeader(n) {
			leaders = append(leaders, n)
		}
		for _, s := range controlSuccessors(n) {
			if !visited[s.Gvn] {
				visited[s.Gvn] = true
				queue = append(queue, s)
			}
		}
	}

	// Build one BB per leader by walking its straight-line control chain
	// until the next leader or a terminator.
	bbOfLeader := map[int]*BB{}
	for i, lead := range leaders {
		bb := &BB{Index: i, Start: lead}
		bbOfLeader[lead.Gvn] = bb
		c.Blocks = append(c.Blocks, bb)
	}
	for _, bb := range c.Blocks {
		n := bb.Start
		for {
			n.Block = bb.Index
			bb.Nodes = append(bb.Nodes, n)
			leaderOf[n.Gvn] = bb
			if branches(n) || n.Op == ir.OpReturn || n.Op == ir.OpCall {
				bb.End = n
				break
			}
			succs := controlSuccessors(n)
			if len(succs) == 0 {
				bb.End = n
				break
			}
			if len(succs) != 1 {
				return nil, pkgerrors.Errorf("cfg: control node %s#%d has %d non-branch control successors", n.Op, n.Gvn, len(succs))
			}
			next := succs[0]
			if isLeader(next) {
				bb.End = n
				break
			}
			n = next
		}
	}

	// Wire Preds/Succs from the terminator of each block to the leader
	// block of each control successor.
	for _, bb := range c.Blocks {
		for _, s := range controlSuccessors(bb.End) {
			target, ok := leaderOf[s.Gvn]
			if !ok {
				continue
			}
			bb.Succs = append(bb.Succs, target.Index)
			target.Preds = append(target.Preds, bb.Index)
		}
	}

	c.computeRPO()
	if err := c.computeDominators(); err != nil {
		return nil, err
	}
	return c, nil
}

// computeRPO performs a DFS from block 0 (the entry) and records reverse
// post-order numbering.
func (c *CFG) computeRPO() {
	visited := make([]bool, len(c.Blocks))
	var post []int
	var dfs func(i int)
	dfs = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, s := range c.Blocks[i].Succs {
			dfs(s)
		}
		post = append(post, i)
	}
	if len(c.Blocks) > 0 {
		dfs(0)
	}
	c.RPO = make([]int, len(post))
	for i, b := range post {
		c.RPO[len(post)-1-i] = b
	}
	for i, b := range c.RPO {
		c.rpoNum[b] = i
	}
}

// RPONumber returns a block's position in reverse post-order.
func (c *CFG) RPONumber(blockIdx int) int { return c.rpoNum[blockIdx] }

// computeDominators runs the Cooper-Harvey-Kennedy iterative dominator
// algorithm over the RPO-ordered blocks.
func (c *CFG) computeDominators() error {
	n := len(c.Blocks)
	if n == 0 {
		return nil
	}
	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	entry := c.RPO[0]
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range c.RPO {
			if b == entry {
				continue
			}
			newIdom := -1
			for _, p := range c.Blocks[b].Preds {
				if idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
					continue
				}
				newIdom = c.intersect(p, newIdom, idom)
			}
			if newIdom == -1 {
				continue
			}
			if idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	for _, bb := range c.Blocks {
		bb.IDom = idom[bb.Index]
	}
	return nil
}

func (c *CFG) intersect(a, b int, idom []int) int {
	for a != b {
		for c.rpoNum[a] > c.rpoNum[b] {
			a = idom[a]
		}
		for c.rpoNum[b] > c.rpoNum[a] {
			b = idom[b]
		}
	}
	return a
}

// Dominates reports whether bb strictly or non-strictly dominates other.
func (c *CFG) Dominates(bb, other int) bool {
	for other != bb {
		if c.Blocks[other].IDom == other {
			return false // reached entry without finding bb
		}
		other = c.Blocks[other].IDom
	}
	return true
}

// Depth returns a block's dominator-tree depth (entry is depth 0).
func (c *CFG) Depth(b int) int {
	depth := 0
	for c.Blocks[b].IDom != b {
		b = c.Blocks[b].IDom
		depth++
	}
	return depth
}

// LCA returns the least common ancestor of a and b in the dominator tree.
func (c *CFG) LCA(a, b int) int {
	for a != b {
		for c.Depth(a) > c.Depth(b) {
			a = c.Blocks[a].IDom
		}
		for c.Depth(b) > c.Depth(a) {
			b = c.Blocks[b].IDom
		}
		if a == b {
			break
		}
		a, b = c.Blocks[a].IDom, c.Blocks[b].IDom
	}
	return a
}
