// Package peep implements the local peephole rewriter: idealize, pessimistic
// value, identity and GVN, driven by a worklist, per §4.2.
package peep

import (
	"github.com/oisee/tb/pkg/ir"
	"github.com/willf/bitset"
)

// worklist is a dense queue of nodes plus a bitset tracking which gvn ids
// are already queued, so each node is processed at most once per cycle
// (§4.2 "Worklist semantics", §9 "dense vector of node indices plus a
// bitset indexed by gvn").
type worklist struct {
	queue  []*ir.Node
	onList *bitset.BitSet
}

func newWorklist() *worklist {
	return &worklist{onList: bitset.New(256)}
}

func (w *worklist) push(n *ir.Node) {
	if n == nil || n.Dead {
		return
	}
	id := uint(n.Gvn)
	if w.onList.Test(id) {
		return
	}
	w.onList.Set(id)
	w.queue = append(w.queue, n)
}

func (w *worklist) pop() *ir.Node {
	if len(w.queue) == 0 {
		return nil
	}
	n := w.queue[0]
	w.queue = w.queue[1:]
	w.onList.Clear(uint(n.Gvn))
	return n
}

func (w *worklist) empty() bool { return len(w.queue) == 0 }

// pushUsers enqueues every (live) user of n, and — for shape-sensitive
// opcodes — their users too, so patterns matching on grandchildren still
// fire after a rewrite (§4.2).
func (w *worklist) pushUsers(n *ir.Node) {
	for _, u := range n.Users {
		w.push(u.Who)
		if ir.IsShapeSensitive(u.Who.Op) {
			for _, uu := range u.Who.Users {
				w.push(uu.Who)
			}
		}
	}
}
