package target

import "github.com/oisee/tb/pkg/ir"

// NumGPR is the general-purpose register count of the Generic reference
// target — 16, matching spec.md §8 scenario S6 ("all 16 registers busy").
const NumGPR = 16

var allGPR = Intern(ClassGPR, 1<<NumGPR-1, true)

// gprStrict is the same register set as allGPR but without may_spill: used
// where the encoding has no memory-operand form, e.g. call arguments must
// already sit in a register, not merely be spill-eligible.
var gprStrict = Intern(ClassGPR, 1<<NumGPR-1, false)
var flagsMask = Intern(ClassFlags, 1, false)

// classTable classifies an opcode's register needs the way
// pkg/inst.Catalog classifies a Z80 opcode's encoding: one static entry
// per opcode, looked up by key rather than switched on inline.
type classEntry struct {
	def      *RegMask // nil: no register result (STORE, RETURN, control)
	twoAddr  bool     // input 0 shares the def register
	tmpCount int
	clobbersFlags bool
}

var classTable = map[ir.Op]classEntry{
	ir.OpAdd:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpSub:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpMul:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpDiv:   {def: allGPR, twoAddr: true, clobbersFlags: true, tmpCount: 1},
	ir.OpAnd:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpOr:    {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpXor:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpShl:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpShr:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpSar:   {def: allGPR, twoAddr: true, clobbersFlags: true},
	ir.OpNot:   {def: allGPR},
	ir.OpNeg:   {def: allGPR, clobbersFlags: true},
	ir.OpCmpEQ: {def: flagsMask, clobbersFlags: true},
	ir.OpCmpNE: {def: flagsMask, clobbersFlags: true},
	ir.OpCmpLT: {def: flagsMask, clobbersFlags: true},
	ir.OpCmpLE: {def: flagsMask, clobbersFlags: true},
	ir.OpLoad:  {def: allGPR},
	ir.OpParam: {def: allGPR},
	ir.OpIConst:   {def: allGPR},
	ir.OpF32Const: {def: allGPR},
	ir.OpF64Const: {def: allGPR},
	ir.OpPtrConst: {def: allGPR},
	ir.OpPhi:      {def: allGPR},
}

// Generic is a small reference ISA used where the module needs *a*
// concrete Target to exercise the pipeline against: a flat bank of
// general-purpose registers, a single flags register, no SIMD. It is
// deliberately simple — a real backend plugs in architecture-specific
// encodings the same way, through the Target interface alone.
type Generic struct{}

func NewGeneric() *Generic { return &Generic{} }

func (g *Generic) Constraint(n *ir.Node, ins []*RegMask) *RegMask {
	for i := range ins {
		ins[i] = allGPR
	}
	if n.Op == ir.OpCall {
		for i := 1; i < len(ins); i++ {
			ins[i] = gprStrict
		}
	}
	if e, ok := classTable[n.Op]; ok {
		return e.def
	}
	return nil
}

func (g *Generic) Node2Addr(n *ir.Node) int {
	if e, ok := classTable[n.Op]; ok && e.twoAddr {
		return 0
	}
	return -1
}

func (g *Generic) TmpCount(n *ir.Node) int {
	return classTable[n.Op].tmpCount
}

func (g *Generic) Flags(n *ir.Node) bool {
	return classTable[n.Op].clobbersFlags
}

func (g *Generic) ExtraBytes(n *ir.Node) int {
	switch n.Op {
	case ir.OpIConst, ir.OpF64Const:
		return 8
	case ir.OpF32Const:
		return 4
	case ir.OpPtrConst:
		return len(n.Extra)
	default:
		return 0
	}
}

func (g *Generic) CanGVN(n *ir.Node) bool {
	return ir.CanGVN(n.Op)
}

func (g *Generic) Emit(n *ir.Node) []byte {
	return []byte{byte(n.Op)}
}
