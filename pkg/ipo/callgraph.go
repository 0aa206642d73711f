// Package ipo builds the module-wide static call graph and performs
// bottom-up leaf-first inlining of small, statically-known call targets,
// per spec §4.7.
package ipo

import "github.com/oisee/tb/pkg/ir"

// CallGraph is the directed caller -> callee adjacency across every
// function in a module, built from the CALL nodes each function's graph
// actually contains (an indirect or unresolved callee name is simply
// dropped: nothing in this module can be its target).
type CallGraph struct {
	names []string            // every function name, in m.Funcs map iteration order
	edges map[string][]string // caller name -> distinct callee names
}

// Build walks every live function in m looking for CALL nodes, resolving
// each against m.Funcs.
func Build(m *ir.Module) *CallGraph {
	cg := &CallGraph{edges: map[string][]string{}}
	for name, f := range m.Funcs {
		cg.names = append(cg.names, name)
		seen := map[string]bool{}
		for _, n := range f.LiveNodes() {
			if n.Op != ir.OpCall {
				continue
			}
			callee := n.CallTarget()
			if callee == "" || seen[callee] {
				continue
			}
			if _, ok := m.Funcs[callee]; !ok {
				continue // unresolved: no module function by that name
			}
			seen[callee] = true
			cg.edges[name] = append(cg.edges[name], callee)
		}
	}
	return cg
}

// Callees returns the distinct functions name directly calls.
func (cg *CallGraph) Callees(name string) []string { return cg.edges[name] }

// tarjanState is the per-node bookkeeping Tarjan's algorithm needs: the
// DFS index at which a node was first visited, its lowlink, and whether
// it currently sits on the exploration stack.
type tarjanState struct {
	index, lowlink int
	onStack        bool
}

// SCCs computes strongly connected components with Tarjan's algorithm and
// returns them in the order the algorithm naturally produces them: each
// component is only closed off after every component it has an edge into
// has already been closed, i.e. reverse topological order of the
// caller -> callee condensation DAG. That is exactly the bottom-up,
// leaf-first order §4.7 asks inlining to process functions in: a callee's
// SCC is always emitted before its caller's.
func (cg *CallGraph) SCCs() [][]string {
	st := &sccState{
		cg:     cg,
		states: map[string]*tarjanState{},
	}
	for _, name := range cg.names {
		if _, ok := st.states[name]; !ok {
			st.strongconnect(name)
		}
	}
	return st.result
}

type sccState struct {
	cg     *CallGraph
	states map[string]*tarjanState
	stack  []string
	next   int
	result [][]string
}

// strongconnect is the standard recursive Tarjan visit. The graphs this
// module builds (functions numbering at most a few thousand) never need
// the iterative rewrite real compilers use to dodge Go's stack limits on
// pathologically deep recursion.
func (s *sccState) strongconnect(v string) {
	st := &tarjanState{index: s.next, lowlink: s.next, onStack: true}
	s.states[v] = st
	s.next++
	s.stack = append(s.stack, v)

	for _, w := range s.cg.edges[v] {
		if ws, ok := s.states[w]; !ok {
			s.strongconnect(w)
			if s.states[w].lowlink < st.lowlink {
				st.lowlink = s.states[w].lowlink
			}
		} else if ws.onStack {
			if ws.index < st.lowlink {
				st.lowlink = ws.index
			}
		}
	}

	if st.lowlink != st.index {
		return
	}
	var comp []string
	for {
		n := len(s.stack) - 1
		w := s.stack[n]
		s.stack = s.stack[:n]
		s.states[w].onStack = false
		comp = append(comp, w)
		if w == v {
			break
		}
	}
	s.result = append(s.result, comp)
}
