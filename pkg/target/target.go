package target

import "github.com/oisee/tb/pkg/ir"

// Target is the codegen collaborator the core consumes (§6). One
// implementation exists per architecture; the core never branches on
// architecture directly, only through this interface.
type Target interface {
	// Constraint fills ins (one entry per n.Inputs slot) with the RegMask
	// each operand must satisfy and returns n's own def mask (nil for
	// nodes that produce no register-resident value, e.g. STORE/RETURN).
	Constraint(n *ir.Node, ins []*RegMask) *RegMask

	// Node2Addr returns the input slot sharing n's def register (a
	// two-address op), or -1 if n has no such constraint.
	Node2Addr(n *ir.Node) int

	// TmpCount returns the number of scratch VRegs n needs reserved.
	TmpCount(n *ir.Node) int

	// Flags reports whether n clobbers the flags register as a side
	// effect of its encoding.
	Flags(n *ir.Node) bool

	// ExtraBytes returns the encoded operand byte count for n (immediates,
	// displacements) so code layout can size the output buffer.
	ExtraBytes(n *ir.Node) int

	// CanGVN allows a target to veto GVN for a machine-specific opcode
	// whose Extra payload the generic structural hash can't interpret.
	CanGVN(n *ir.Node) bool

	// Emit returns the encoded bytes for a fully scheduled and allocated
	// node.
	Emit(n *ir.Node) []byte
}
