package ir

import "math"

// Builder helpers construct common node shapes. These exist so passes and
// their tests can assemble small graphs without hand-wiring every edge;
// they are not a frontend (§1 lists a high-level language frontend as an
// external collaborator).

// Const creates an interned-value-carrying IConst node of the given width.
func (f *Func) Const(width uint8, v int64) *Node {
	n := f.NewNode(OpIConst, Int(width), 0, 8)
	n.Extra[0] = byte(v)
	n.Extra[1] = byte(v >> 8)
	n.Extra[2] = byte(v >> 16)
	n.Extra[3] = byte(v >> 24)
	n.Extra[4] = byte(v >> 32)
	n.Extra[5] = byte(v >> 40)
	n.Extra[6] = byte(v >> 48)
	n.Extra[7] = byte(v >> 56)
	n.Type = f.Interner.IntConst(v)
	canon := f.GVNIntern(n)
	if canon != n {
		f.Kill(n) // no inputs to unwire; just reclaim the gvn slot
	}
	return canon
}

// ConstValue reads back the constant an IConst node carries.
func (n *Node) ConstValue() int64 {
	var v int64
	for i := 7; i >= 0; i-- {
		v = v<<8 | int64(n.Extra[i])
	}
	return v
}

// Flt32Const creates an interned concrete float32 constant node, the
// F32Const materialization target named in §3's lattice element list
// (FLTCON32).
func (f *Func) Flt32Const(v float32) *Node {
	n := f.NewNode(OpF32Const, F32, 0, 4)
	bits := math.Float32bits(v)
	n.Extra[0] = byte(bits)
	n.Extra[1] = byte(bits >> 8)
	n.Extra[2] = byte(bits >> 16)
	n.Extra[3] = byte(bits >> 24)
	n.Type = f.Interner.Flt32(v)
	canon := f.GVNIntern(n)
	if canon != n {
		f.Kill(n)
	}
	return canon
}

// Flt32Value reads back the float32 an F32Const node carries.
func (n *Node) Flt32Value() float32 {
	bits := uint32(n.Extra[0]) | uint32(n.Extra[1])<<8 | uint32(n.Extra[2])<<16 | uint32(n.Extra[3])<<24
	return math.Float32frombits(bits)
}

// Flt64Const creates an interned concrete float64 constant node.
func (f *Func) Flt64Const(v float64) *Node {
	n := f.NewNode(OpF64Const, F64, 0, 8)
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		n.Extra[i] = byte(bits >> (8 * i))
	}
	n.Type = f.Interner.Flt64(v)
	canon := f.GVNIntern(n)
	if canon != n {
		f.Kill(n)
	}
	return canon
}

// Flt64Value reads back the float64 an F64Const node carries.
func (n *Node) Flt64Value() float64 {
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(n.Extra[i])
	}
	return math.Float64frombits(bits)
}

// PtrConst creates an interned named pointer constant node — a symbolic
// identity such as a global's name, per §3's PTRCON tag.
func (f *Func) PtrConst(name string) *Node {
	n := f.NewNode(OpPtrConst, Ptr, 0, len(name))
	copy(n.Extra, name)
	n.Type = f.Interner.PtrConst(name)
	canon := f.GVNIntern(n)
	if canon != n {
		f.Kill(n)
	}
	return canon
}

// PtrName reads back the symbolic name a PtrConst node carries.
func (n *Node) PtrName() string { return string(n.Extra) }

// BinOp creates a binary arithmetic/compare node over the given control-
// independent operands (floating, not yet pinned).
func (f *Func) BinOp(op Op, dt DType, a, b *Node) *Node {
	n := f.NewNode(op, dt, 2, 0)
	f.SetInput(n, a, 0)
	f.SetInput(n, b, 1)
	canon := f.GVNIntern(n)
	if canon != n {
		f.Kill(n)
	}
	return canon
}

// Region creates a merge point with the given control predecessors.
func (f *Func) Region(preds ...*Node) *Node {
	n := f.NewNode(OpRegion, Ctrl, len(preds), 0)
	for i, p := range preds {
		f.SetInput(n, p, i)
	}
	return n
}

// If creates a two-way branch reading the boolean cond under ctrl.
func (f *Func) If(ctrl, cond *Node) (trueProj, falseProj *Node) {
	n := f.NewNode(OpIf, Tuple(Ctrl, Ctrl), 2, 0)
	f.SetInput(n, ctrl, 0)
	f.SetInput(n, cond, 1)
	trueProj = f.AllocProj(n, 0, Ctrl)
	falseProj = f.AllocProj(n, 1, Ctrl)
	return trueProj, falseProj
}

// Phi creates a phi pinned to region, with one value input per predecessor.
func (f *Func) Phi(region *Node, dt DType, vals ...*Node) *Node {
	n := f.NewNode(OpPhi, dt, len(vals)+1, 0)
	f.SetInput(n, region, 0)
	for i, v := range vals {
		f.SetInput(n, v, i+1)
	}
	return n
}

// Param creates a parameter-projection-like leaf (pinned to Start).
func (f *Func) Param(start *Node, index int, dt DType) *Node {
	n := f.NewNode(OpParam, dt, 1, 4)
	n.Extra[0] = byte(index)
	f.SetInput(n, start, 0)
	return n
}

// ParamIndex reads back the parameter index a PARAM node carries.
func (n *Node) ParamIndex() int { return int(n.Extra[0]) }

// Return creates a RETURN pinned under ctrl, returning val.
func (f *Func) Return(ctrl, val *Node) *Node {
	n := f.NewNode(OpReturn, Ctrl, 2, 0)
	f.SetInput(n, ctrl, 0)
	f.SetInput(n, val, 1)
	return n
}

// Load creates a memory read of *ptr under the given memory state.
func (f *Func) Load(mem, ptr *Node, dt DType) *Node {
	n := f.NewNode(OpLoad, dt, 2, 0)
	f.SetInput(n, mem, 0)
	f.SetInput(n, ptr, 1)
	return f.GVNIntern(n)
}

// Store creates a memory write of val to *ptr under the given memory state,
// producing the new memory state.
func (f *Func) Store(mem, ptr, val *Node) *Node {
	n := f.NewNode(OpStore, Mem, 3, 0)
	f.SetInput(n, mem, 0)
	f.SetInput(n, ptr, 1)
	f.SetInput(n, val, 2)
	return n
}

// MachCopy creates a machine-level copy of src, used by LSRA's legalizing
// pre-pass and spill insertion (§4.6). It is never GVN-eligible: two copies
// of the same value at different program points are not interchangeable.
func (f *Func) MachCopy(src *Node, dt DType) *Node {
	n := f.NewNode(OpMachCopy, dt, 1, 0)
	f.SetInput(n, src, 0)
	return n
}

// Call creates a call to calleeName under ctrl, producing a tuple of
// (continuation control, return value) the caller reads back with
// AllocProj, and records a CallGraph marker for the static edge (§4.7).
func (f *Func) Call(ctrl *Node, calleeName string, retType DType, args ...*Node) (call, cont, ret *Node) {
	n := f.NewNode(OpCall, Tuple(Ctrl, retType), len(args)+1, len(calleeName))
	copy(n.Extra, calleeName)
	f.SetInput(n, ctrl, 0)
	for i, a := range args {
		f.SetInput(n, a, i+1)
	}
	cont = f.AllocProj(n, 0, Ctrl)
	ret = f.AllocProj(n, 1, retType)
	f.CallGraphEdge(calleeName)
	return n, cont, ret
}

// CallTarget reads back the callee name a CALL or CALLGRAPH node carries.
func (n *Node) CallTarget() string { return string(n.Extra) }

// CallGraphEdge records a static call-graph edge to calleeName: a
// zero-input marker node, never scheduled or GVN'd. pkg/ipo builds its
// call graph from the OpCall nodes themselves; it only copies these
// markers into a caller when it inlines a callee.
func (f *Func) CallGraphEdge(calleeName string) *Node {
	n := f.NewNode(OpCallGraph, Int(0), 0, len(calleeName))
	copy(n.Extra, calleeName)
	return n
}
