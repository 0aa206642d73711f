package ir

import "github.com/oisee/tb/pkg/latt"

// User records one back-edge: node Who uses this value at input slot Slot.
type User struct {
	Who  *Node
	Slot int
}

// Node is the universal IR atom (§3). Inputs are positional (input 0 is
// the control predecessor when present); users are an unordered multiset
// keyed by (node, slot).
type Node struct {
	Gvn    int // dense id, recycled on death
	Op     Op
	DT     DType
	Inputs []*Node // may contain nil slots
	Users  []User  // back-edges

	// Extra is opcode-specific payload: BIT/SET n, proj index, call
	// target symbol, etc. Backed by the function's arena.
	Extra []byte

	Type *latt.Value // current lattice value, nil until first computed
	Dead bool

	// Scheduling/allocation annotations filled in by later passes.
	Block   int // BB index assigned by GCM; -1 until scheduled
	Time    int // LSRA linear time stamp; -1 until assigned
	Pos     int32
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.Op.String()
}

// ProjIndex reads the projection index out of a Proj node's Extra bytes.
func (n *Node) ProjIndex() int {
	if len(n.Extra) < 4 {
		return 0
	}
	return int(n.Extra[0]) | int(n.Extra[1])<<8 | int(n.Extra[2])<<16 | int(n.Extra[3])<<24
}

// Ctrl returns the control input (input 0), or nil if this node has none.
func (n *Node) Ctrl() *Node {
	if len(n.Inputs) == 0 {
		return nil
	}
	return n.Inputs[0]
}

// IsDead reports whether a node has been killed (removed from the graph).
func (n *Node) IsDead() bool { return n.Dead }

// NumUsers returns the number of live back-edges to this node.
func (n *Node) NumUsers() int { return len(n.Users) }

// HasNoUses reports whether a node can be considered dead: zero users and
// no side effects (§3 lifecycle).
func (n *Node) HasNoUses() bool {
	return len(n.Users) == 0 && !HasSideEffect(n.Op)
}
