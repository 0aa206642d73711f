package cfg

import "github.com/oisee/tb/pkg/ir"

// Loop is one natural loop: a header block dominating every block in the
// loop body, discovered from a back edge latch -> header.
type Loop struct {
	Header int
	Latch  int
	Body   map[int]bool

	// InductionVar is set when the loop has a single latch with a PHI fed
	// by `phi +/- const` on the back edge (an affine induction variable),
	// per §4.4 "rotated into affine form".
	InductionVar *ir.Node
	Step         int64
	Parent       *Loop
	Children     []*Loop
}

// LoopTree builds the loop forest from back edges (an edge latch->header
// where header dominates latch), per §4.4.
func (c *CFG) LoopTree() []*Loop {
	var loops []*Loop
	for _, bb := range c.Blocks {
		for _, s := range bb.Succs {
			if c.Dominates(s, bb.Index) {
				loops = append(loops, c.naturalLoop(s, bb.Index))
			}
		}
	}
	c.LoopShapeDirty = false
	nestLoops(loops)
	for i := range loops {
		loops[i].InductionVar, loops[i].Step = c.detectInductionVar(loops[i])
	}
	return loops
}

// naturalLoop computes the body of the loop headed by `header` with back
// edge from `latch`, via a reverse-BFS over predecessors stopping at the
// header.
func (c *CFG) naturalLoop(header, latch int) *Loop {
	body := map[int]bool{header: true, latch: true}
	stack := []int{latch}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range c.Blocks[b].Preds {
			if !body[p] {
				body[p] = true
				stack = append(stack, p)
			}
		}
	}
	return &Loop{Header: header, Latch: latch, Body: body}
}

// nestLoops assigns Parent/Children among loops sharing a header or
// nesting by body containment (smaller body = deeper nesting).
func nestLoops(loops []*Loop) {
	for i, inner := range loops {
		var best *Loop
		for j, outer := range loops {
			if i == j || len(outer.Body) <= len(inner.Body) {
				continue
			}
			if !outer.Body[inner.Header] {
				continue
			}
			if best == nil || len(outer.Body) < len(best.Body) {
				best = outer
			}
		}
		if best != nil {
			inner.Parent = best
			best.Children = append(best.Children, inner)
		}
	}
}

// detectInductionVar looks for a PHI at the loop header fed, on the
// back-edge input, by an Add/Sub of itself and a constant.
func (c *CFG) detectInductionVar(l *Loop) (*ir.Node, int64) {
	header := c.Blocks[l.Header].Start
	for _, u := range header.Users {
		phi := u.Who
		if phi.Op != ir.OpPhi || phi.Inputs[0] != header {
			continue
		}
		for i := 1; i < len(phi.Inputs); i++ {
			pred := header.Inputs[i-1]
			if pred == nil || pred.Block != l.Latch {
				continue
			}
			step, ok := addSubConstStep(phi, phi.Inputs[i])
			if ok {
				return phi, step
			}
		}
	}
	return nil, 0
}

func addSubConstStep(phi, val *ir.Node) (int64, bool) {
	if val == nil || len(val.Inputs) != 2 {
		return 0, false
	}
	a, b := val.Inputs[0], val.Inputs[1]
	isConst := func(x *ir.Node) bool { return x != nil && x.Op == ir.OpIConst }
	switch {
	case val.Op == ir.OpAdd && a == phi && isConst(b):
		return b.ConstValue(), true
	case val.Op == ir.OpAdd && b == phi && isConst(a):
		return a.ConstValue(), true
	case val.Op == ir.OpSub && a == phi && isConst(b):
		return -b.ConstValue(), true
	}
	return 0, false
}
