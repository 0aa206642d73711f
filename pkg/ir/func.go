package ir

import (
	"fmt"

	"github.com/oisee/tb/pkg/arena"
	"github.com/oisee/tb/pkg/latt"
	pkgerrors "github.com/pkg/errors"
)

// Func owns one mutable Sea-of-Nodes graph: all per-pass state (arena,
// node table, GVN table, lattice types) is function-local, per §5 ("no
// shared mutable state between per-function passes"). The Interner is the
// one exception — it is shared at module scope and passed in.
type Func struct {
	Name string

	Interner *latt.Interner
	Arena    *arena.Arena

	Nodes   []*Node // indexed by Gvn; a dead slot is kept with Dead=true
	freeGvn []int   // recycled ids

	gvn map[string]*Node // GVN table: structural key -> canonical node

	Root *Node
}

// NewFunc creates an empty function graph with its own arena, sharing the
// module-wide lattice Interner.
func NewFunc(name string, interner *latt.Interner) *Func {
	f := &Func{
		Name:     name,
		Interner: interner,
		Arena:    arena.New(64 * 1024),
		gvn:      make(map[string]*Node),
	}
	f.Root = f.NewNode(OpRoot, Ctrl, 0, 0)
	return f
}

// NewNode allocates a fresh node with nInputs (nil) input slots and
// extraSize bytes of opcode-specific payload, and assigns it a dense gvn
// id (recycled from a dead node's id when available).
func (f *Func) NewNode(op Op, dt DType, nInputs, extraSize int) *Node {
	n := &Node{
		Op:     op,
		DT:     dt,
		Inputs: make([]*Node, nInputs),
		Time:   -1,
		Block:  -1,
	}
	if extraSize > 0 {
		n.Extra = f.Arena.UnalignedAlloc(extraSize)
	}
	if len(f.freeGvn) > 0 {
		id := f.freeGvn[len(f.freeGvn)-1]
		f.freeGvn = f.freeGvn[:len(f.freeGvn)-1]
		n.Gvn = id
		f.Nodes[id] = n
	} else {
		n.Gvn = len(f.Nodes)
		f.Nodes = append(f.Nodes, n)
	}
	return n
}

// AllocProj creates a PROJ node reading output index `index` of a
// multi-output node src, and wires src as its sole input.
func (f *Func) AllocProj(src *Node, index int, dt DType) *Node {
	p := f.NewNode(OpProj, dt, 1, 4)
	p.Extra[0] = byte(index)
	p.Extra[1] = byte(index >> 8)
	p.Extra[2] = byte(index >> 16)
	p.Extra[3] = byte(index >> 24)
	f.SetInput(p, src, 0)
	return p
}

// SetInput sets n's input slot to m, maintaining the bidirectional
// invariant (§8 property 1): any previous occupant of the slot loses its
// matching user entry, and m (if non-nil) gains one.
func (f *Func) SetInput(n, m *Node, slot int) {
	if slot >= len(n.Inputs) {
		grown := make([]*Node, slot+1)
		copy(grown, n.Inputs)
		n.Inputs = grown
	}
	if old := n.Inputs[slot]; old != nil {
		f.removeUser(old, n, slot)
	}
	n.Inputs[slot] = m
	if m != nil {
		f.addUser(m, n, slot)
	}
}

func (f *Func) addUser(m, who *Node, slot int) {
	m.Users = append(m.Users, User{Who: who, Slot: slot})
}

// removeUser deletes exactly one (who, slot) entry from m.Users.
func (f *Func) removeUser(m, who *Node, slot int) {
	for i, u := range m.Users {
		if u.Who == who && u.Slot == slot {
			m.Users[i] = m.Users[len(m.Users)-1]
			m.Users = m.Users[:len(m.Users)-1]
			return
		}
	}
}

// Subsume transfers every user edge from old to replacement, then kills
// old. Each transferred user has its input slot repointed to replacement,
// preserving the bidirectional invariant throughout.
func (f *Func) Subsume(old, replacement *Node) {
	if old == replacement {
		return
	}
	users := old.Users
	old.Users = nil
	for _, u := range users {
		u.Who.Inputs[u.Slot] = replacement
		replacement.Users = append(replacement.Users, u)
	}
	f.Kill(old)
}

// Kill removes a node's inputs (clearing the matching user entries on
// each input) and marks the node dead. Its arena bytes are not reclaimed;
// a later renumber pass compacts the Nodes table.
func (f *Func) Kill(n *Node) {
	if n.Dead {
		return
	}
	for i, in := range n.Inputs {
		if in != nil {
			f.removeUser(in, n, i)
			n.Inputs[i] = nil
		}
	}
	n.Dead = true
	f.freeGvn = append(f.freeGvn, n.Gvn)
}

// KillIfDead kills n if it has no users and no side effects, recursively
// propagating to inputs that become dead as a result. Returns the number
// of nodes killed.
func (f *Func) KillIfDead(n *Node) int {
	if n == nil || n.Dead || !n.HasNoUses() {
		return 0
	}
	inputs := append([]*Node(nil), n.Inputs...)
	f.Kill(n)
	count := 1
	for _, in := range inputs {
		if in != nil {
			count += f.KillIfDead(in)
		}
	}
	return count
}

// gvnKey builds the structural hash key §3 describes: opcode + dt + input
// identities + extra bytes.
func gvnKey(n *Node) string {
	s := fmt.Sprintf("%d|%s|", n.Op, n.DT)
	for _, in := range n.Inputs {
		s += fmt.Sprintf("%p,", in)
	}
	s += "|"
	s += string(n.Extra)
	return s
}

// GVNIntern looks up the canonical representative for n in the GVN table.
// Nodes whose opcode is excluded from GVN (§3) are never deduplicated and
// are returned unchanged. On a hit, n should be subsumed by the result;
// on a miss, n itself becomes the new canonical representative.
func (f *Func) GVNIntern(n *Node) *Node {
	if !CanGVN(n.Op) {
		return n
	}
	k := gvnKey(n)
	if existing, ok := f.gvn[k]; ok && !existing.Dead {
		return existing
	}
	f.gvn[k] = n
	return n
}

// forgetGVN removes n's current structural key from the table, used when a
// node's shape is about to change (e.g. SetInput during idealize) so a
// stale entry can't shadow the correct future lookup.
func (f *Func) forgetGVN(n *Node) {
	if !CanGVN(n.Op) {
		return
	}
	k := gvnKey(n)
	if f.gvn[k] == n {
		delete(f.gvn, k)
	}
}

// Verify walks every live node and checks the edge invariant (§8 property
// 1): for every n.Inputs[i] = m, m.Users contains (n, i) exactly once. It
// returns a wrapped, stack-annotated error on the first violation found,
// fit for the "debug builds print a diagnostic" requirement of §7.
func (f *Func) Verify() error {
	for _, n := range f.Nodes {
		if n == nil || n.Dead {
			continue
		}
		for slot, in := range n.Inputs {
			if in == nil {
				continue
			}
			count := 0
			for _, u := range in.Users {
				if u.Who == n && u.Slot == slot {
					count++
				}
			}
			if count != 1 {
				return pkgerrors.Errorf("edge invariant violated: %s#%d input %d -> %s#%d has %d matching user entries, want 1",
					n.Op, n.Gvn, slot, in.Op, in.Gvn, count)
			}
		}
	}
	return nil
}

// LiveNodes returns every non-dead node, for passes that need to walk the
// whole graph (SCCP pass 2, the verifier, renumbering).
func (f *Func) LiveNodes() []*Node {
	out := make([]*Node, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		if n != nil && !n.Dead {
			out = append(out, n)
		}
	}
	return out
}

// Renumber compacts Gvn ids to a dense 0..N-1 range, dropping dead nodes
// from the Nodes table. Must only be called between passes, never mid-pass
// (§5 "a renumber step compacts them between passes").
func (f *Func) Renumber() {
	live := f.LiveNodes()
	f.Nodes = f.Nodes[:0]
	f.freeGvn = f.freeGvn[:0]
	for i, n := range live {
		n.Gvn = i
		f.Nodes = append(f.Nodes, n)
	}
}
