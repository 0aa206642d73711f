package ipo

import "github.com/oisee/tb/pkg/ir"

// DefaultThreshold is the node-count ceiling §4.7 names as "small
// statically-known target, e.g. 15".
const DefaultThreshold = 15

// Inliner runs bottom-up inlining over a whole module.
type Inliner struct {
	Threshold int

	perFunc map[string]int // caller name -> call sites inlined into it, from the last Run
}

func NewInliner(threshold int) *Inliner {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Inliner{Threshold: threshold}
}

// Counts returns, per caller function name, how many call sites the last
// Run inlined into it — what pkg/report.Stat.Inlined is populated from.
func (ip *Inliner) Counts() map[string]int {
	out := make(map[string]int, len(ip.perFunc))
	for k, v := range ip.perFunc {
		out[k] = v
	}
	return out
}

// Run inlines eligible calls across every function in m and returns the
// number of call sites it inlined. A function's own calls are only
// considered once every SCC it can reach has already been finalized, so
// a callee is always inlined with its own body already fully settled
// (never a body that itself still contains unresolved inlining work).
func (ip *Inliner) Run(m *ir.Module) int {
	cg := Build(m)
	sccs := cg.SCCs()

	finalized := map[string]bool{}
	ip.perFunc = map[string]int{}
	total := 0
	for _, scc := range sccs {
		// An SCC of size > 1, or a function that calls itself, is
		// recursive: never inlined into, since its body is never
		// "already settled" relative to itself.
		recursive := len(scc) > 1
		if len(scc) == 1 {
			for _, callee := range cg.Callees(scc[0]) {
				if callee == scc[0] {
					recursive = true
				}
			}
		}
		for _, name := range scc {
			f := m.Funcs[name]
			if f == nil {
				continue
			}
			n := ip.inlineInto(f, m, finalized)
			if n > 0 {
				ip.perFunc[f.Name] = n
			}
			total += n
		}
		if !recursive {
			for _, name := range scc {
				finalized[name] = true
			}
		}
	}
	return total
}

// inlineInto repeatedly finds an eligible call site in f and inlines it,
// until none remain. Each inlined callee may itself contain calls (to
// already-finalized functions, since the callee was itself processed in
// an earlier SCC), which is why this loops rather than doing one pass.
func (ip *Inliner) inlineInto(f *ir.Func, m *ir.Module, finalized map[string]bool) int {
	count := 0
	skip := map[int]bool{}
	for {
		call := ip.findCandidate(f, m, finalized, skip)
		if call == nil {
			break
		}
		callee := m.Funcs[call.CallTarget()]
		if !inlineCall(f, call, callee) {
			skip[call.Gvn] = true // malformed callee shape; never retry this site
			continue
		}
		count++
	}
	sweepCallGraphMarkers(f)
	return count
}

func (ip *Inliner) findCandidate(f *ir.Func, m *ir.Module, finalized map[string]bool, skip map[int]bool) *ir.Node {
	for _, n := range f.LiveNodes() {
		if n.Op != ir.OpCall || skip[n.Gvn] {
			continue
		}
		name := n.CallTarget()
		if name == "" || name == f.Name || !finalized[name] {
			continue
		}
		callee, ok := m.Funcs[name]
		if !ok || NodeCount(callee) > ip.Threshold {
			continue
		}
		return n
	}
	return nil
}

// NodeCount is the size metric the threshold compares against: every
// live node in the callee's graph, matching how a function's own node
// table reports its size everywhere else in this module.
func NodeCount(f *ir.Func) int { return len(f.LiveNodes()) }

// sweepCallGraphMarkers kills every CALLGRAPH bookkeeping node belonging
// to f. They carry no graph edges of their own (never an input, never a
// user), so nothing downstream of ipo can observe their removal; once a
// function has had its call sites settled for this run there is nothing
// left to read them.
func sweepCallGraphMarkers(f *ir.Func) {
	for _, n := range f.LiveNodes() {
		if n.Op == ir.OpCallGraph {
			f.Kill(n)
		}
	}
}

// inlineCall clones every node of callee reachable from its single
// RETURN into f, stitching per §4.7:
//   - callee's PARAM nodes -> the call's own arguments;
//   - callee's RETURN's control predecessor -> the call's continuation,
//     its value input -> the call's own return projection;
//   - callee's CALLGRAPH edges appended to f's, by re-emitting marker
//     nodes for each (the markers carry no graph edges, so there is
//     nothing to clone but the callee name they record).
//
// Returns false without mutating f if callee's shape isn't one this
// inliner understands (anything but exactly one live RETURN) — a
// multi-exit function body, which none of this module's own builders
// produce.
func inlineCall(f *ir.Func, call *ir.Node, callee *ir.Func) bool {
	var ret *ir.Node
	for _, n := range callee.LiveNodes() {
		if n.Op == ir.OpReturn {
			if ret != nil {
				return false
			}
			ret = n
		}
	}
	if ret == nil {
		return false
	}

	var contProj, retProj *ir.Node
	for _, u := range call.Users {
		if u.Who.Op != ir.OpProj {
			continue
		}
		switch u.Who.ProjIndex() {
		case 0:
			contProj = u.Who
		case 1:
			retProj = u.Who
		}
	}

	callerCtrl := call.Inputs[0]
	args := call.Inputs[1:]

	// Pass 1: collect every node between callee's START/PARAMs and its
	// RETURN, visiting each once regardless of loop back-edges through
	// PHI/REGION.
	var toClone []*ir.Node
	visited := map[int]bool{}
	var collect func(n *ir.Node)
	collect = func(n *ir.Node) {
		if n == nil || visited[n.Gvn] {
			return
		}
		visited[n.Gvn] = true
		if n.Op == ir.OpStart || n.Op == ir.OpParam {
			return
		}
		for _, in := range n.Inputs {
			collect(in)
		}
		if n.Op == ir.OpReturn {
			return // only RETURN's own inputs matter to the caller
		}
		toClone = append(toClone, n)
	}
	collect(ret)

	// Pass 2: allocate every clone's shell up front, so wiring a
	// loop-carried PHI back-edge always has somewhere to point, even
	// before the node it points to has its own inputs wired.
	clones := make(map[int]*ir.Node, len(toClone))
	for _, n := range toClone {
		c := f.NewNode(n.Op, n.DT, len(n.Inputs), len(n.Extra))
		copy(c.Extra, n.Extra)
		clones[n.Gvn] = c
	}

	resolve := func(n *ir.Node) *ir.Node {
		switch {
		case n == nil:
			return nil
		case n.Op == ir.OpStart:
			return callerCtrl
		case n.Op == ir.OpParam:
			return args[n.ParamIndex()]
		default:
			return clones[n.Gvn]
		}
	}

	// Pass 3: wire every clone's inputs now that every shell exists.
	for _, n := range toClone {
		c := clones[n.Gvn]
		for i, in := range n.Inputs {
			f.SetInput(c, resolve(in), i)
		}
	}

	// Stitch: the call's continuation becomes whatever control the
	// callee's RETURN consumed; the call's return value becomes
	// whatever value the RETURN returned.
	if contProj != nil {
		f.Subsume(contProj, resolve(ret.Inputs[0]))
	}
	if retProj != nil {
		f.Subsume(retProj, resolve(ret.Inputs[1]))
	}

	for _, n := range callee.LiveNodes() {
		if n.Op == ir.OpCallGraph {
			f.CallGraphEdge(n.CallTarget())
		}
	}

	f.Kill(call)
	return true
}
