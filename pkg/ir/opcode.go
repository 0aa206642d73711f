package ir

// Op identifies a node's operation. The peephole vtable (idealize/
// identity/value) and the GVN-eligibility check (§3 "GVN table") both
// switch on Op.
type Op uint16

const (
	OpInvalid Op = iota

	// Control / region.
	OpRoot
	OpStart
	OpRegion
	OpIf
	OpProj   // multi-output projection; Extra carries the output index
	OpReturn
	OpCall
	OpCallGraph // module-level call-graph edge holder, never GVN'd

	// Dead-control synthesis (§4.3 "dead control handling").
	OpDeadCtrl
	OpPoison

	// Data.
	OpParam
	OpPhi
	OpLocal // stack slot root, never GVN'd (has identity)

	OpIConst
	OpF32Const
	OpF64Const
	OpPtrConst

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
	OpNot
	OpNeg

	OpCmpEQ
	OpCmpNE
	OpCmpLT
	OpCmpLE

	// Memory.
	OpLoad
	OpStore
	OpAtomicCAS
	OpAtomicAdd

	// Machine-level (LSRA-inserted).
	OpMachCopy

	opCount
)

var opNames = [opCount]string{
	OpInvalid:   "invalid",
	OpRoot:      "Root",
	OpStart:     "Start",
	OpRegion:    "Region",
	OpIf:        "If",
	OpProj:      "Proj",
	OpReturn:    "Return",
	OpCall:      "Call",
	OpCallGraph: "CallGraph",
	OpDeadCtrl:  "DeadCtrl",
	OpPoison:    "Poison",
	OpParam:     "Param",
	OpPhi:       "Phi",
	OpLocal:     "Local",
	OpIConst:    "IConst",
	OpF32Const:  "F32Const",
	OpF64Const:  "F64Const",
	OpPtrConst:  "PtrConst",
	OpAdd:       "Add",
	OpSub:       "Sub",
	OpMul:       "Mul",
	OpDiv:       "Div",
	OpAnd:       "And",
	OpOr:        "Or",
	OpXor:       "Xor",
	OpShl:       "Shl",
	OpShr:       "Shr",
	OpSar:       "Sar",
	OpNot:       "Not",
	OpNeg:       "Neg",
	OpCmpEQ:     "CmpEQ",
	OpCmpNE:     "CmpNE",
	OpCmpLT:     "CmpLT",
	OpCmpLE:     "CmpLE",
	OpLoad:      "Load",
	OpStore:     "Store",
	OpAtomicCAS: "AtomicCAS",
	OpAtomicAdd: "AtomicAdd",
	OpMachCopy:  "MachCopy",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// gvnExcluded lists the opcodes §3 calls out as never eligible for GVN
// dedup: control-producing, memory-effecting, or otherwise carrying
// identity that a structural hash must not collapse.
var gvnExcluded = map[Op]bool{
	OpRoot:      true,
	OpStart:     true,
	OpCall:      true,
	OpReturn:    true,
	OpIf:        true,
	OpRegion:    true,
	OpAtomicCAS: true,
	OpAtomicAdd: true,
	OpLocal:     true,
	OpCallGraph: true,
	OpStore:     true,
	OpPhi:       true,
	OpProj:      true,
	OpMachCopy:  true,
}

// CanGVN reports whether nodes of this opcode may be deduplicated by the
// GVN table. Pure data ops (arithmetic, compares, loads) are eligible;
// everything with control or memory-write identity is not.
func CanGVN(op Op) bool {
	return !gvnExcluded[op]
}

// IsPinned reports whether nodes of this opcode are pinned by construction
// (§3: "placement is already fixed by its control input"): CFG nodes,
// projections, phis, and the observable memory-effect ops (STORE and the
// atomics, which must not be moved across a branch they didn't originally
// execute under). LOAD is deliberately left floating: it has no visible
// side effect, its memory operand is an ordinary data input so GCM's
// early/late scheduling already respects memory order through that edge,
// and the late-schedule loop-hoist heuristic (§4.5) can actually move it.
func IsPinned(op Op) bool {
	switch op {
	case OpRoot, OpStart, OpRegion, OpIf, OpReturn, OpCall, OpProj, OpPhi,
		OpStore, OpAtomicCAS, OpAtomicAdd, OpLocal, OpParam, OpMachCopy:
		return true
	}
	return false
}

// IsShapeSensitive marks opcodes whose idealize/value rules pattern-match
// on grandchildren, so a rewrite must re-enqueue transitively through them
// (§4.2 worklist semantics).
func IsShapeSensitive(op Op) bool {
	switch op {
	case OpProj, OpCmpEQ, OpCmpNE, OpCmpLT, OpCmpLE, OpShl, OpShr, OpSar, OpMul, OpStore, OpPhi:
		return true
	}
	return false
}

// HasSideEffect reports whether a node is exempt from dead-code removal
// even with zero users.
func HasSideEffect(op Op) bool {
	switch op {
	case OpStore, OpCall, OpReturn, OpAtomicCAS, OpAtomicAdd, OpRoot, OpStart:
		return true
	}
	return false
}
