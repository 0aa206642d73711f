package peep

import (
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/latt"
)

// inputValue returns n's i-th input's current lattice type, defaulting to
// TOP for an input that hasn't been visited yet.
func inputValue(in *latt.Interner, n *ir.Node, i int) *latt.Value {
	if i >= len(n.Inputs) || n.Inputs[i] == nil {
		return in.Top()
	}
	t := n.Inputs[i].Type
	if t == nil {
		return in.Top()
	}
	return t
}

func asInt64(v *latt.Value) (int64, bool) {
	if v.Kind == latt.KindInt && v.Lo == v.Hi {
		return v.Lo, true
	}
	return 0, false
}

// value computes a monotone pessimistic upper bound for n from its
// inputs' current types (§4.2 step 2). It must never move the result
// *down* across repeated calls with monotonically-improving inputs; the
// Engine's debug mode checks that externally via latt.Interner.LessEq.
func value(in *latt.Interner, n *ir.Node) *latt.Value {
	switch n.Op {
	case ir.OpIConst, ir.OpF32Const, ir.OpF64Const, ir.OpPtrConst:
		return n.Type // set once at construction, never recomputed
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpShl, ir.OpShr, ir.OpSar, ir.OpDiv:
		a, b := inputValue(in, n, 0), inputValue(in, n, 1)
		if a.Kind == latt.Top || b.Kind == latt.Top {
			return in.Top()
		}
		av, aok := asInt64(a)
		bv, bok := asInt64(b)
		if aok && bok {
			mask := n.DT.Mask()
			var r int64
			switch n.Op {
			case ir.OpAdd:
				r = av + bv
			case ir.OpSub:
				r = av - bv
			case ir.OpMul:
				r = av * bv
			case ir.OpAnd:
				r = av & bv
			case ir.OpOr:
				r = av | bv
			case ir.OpXor:
				r = av ^ bv
			case ir.OpShl:
				r = av << uint64(bv&63)
			case ir.OpShr:
				r = int64(uint64(av) >> uint64(bv&63))
			case ir.OpSar:
				r = av >> uint64(bv&63)
			case ir.OpDiv:
				if bv == 0 {
					return in.Bot()
				}
				r = av / bv
			}
			return in.IntConst(r & int64(mask))
		}
		return in.Bot()
	case ir.OpNeg:
		a := inputValue(in, n, 0)
		if v, ok := asInt64(a); ok {
			return in.IntConst(-v & int64(n.DT.Mask()))
		}
		if a.Kind == latt.Top {
			return in.Top()
		}
		return in.Bot()
	case ir.OpNot:
		a := inputValue(in, n, 0)
		if v, ok := asInt64(a); ok {
			return in.IntConst(^v & int64(n.DT.Mask()))
		}
		if a.Kind == latt.Top {
			return in.Top()
		}
		return in.Bot()
	case ir.OpCmpEQ, ir.OpCmpNE, ir.OpCmpLT, ir.OpCmpLE:
		a, b := inputValue(in, n, 0), inputValue(in, n, 1)
		if a.Kind == latt.Top || b.Kind == latt.Top {
			return in.Top()
		}
		av, aok := asInt64(a)
		bv, bok := asInt64(b)
		if aok && bok {
			var r bool
			switch n.Op {
			case ir.OpCmpEQ:
				r = av == bv
			case ir.OpCmpNE:
				r = av != bv
			case ir.OpCmpLT:
				r = av < bv
			case ir.OpCmpLE:
				r = av <= bv
			}
			if r {
				return in.IntConst(1)
			}
			return in.IntConst(0)
		}
		return in.Bot()
	default:
		return in.Bot()
	}
}

// identity folds a node to one of its existing inputs without creating a
// new node (§4.2 step 3), e.g. `x + 0 -> x` (S1 in spec.md §8).
func identity(n *ir.Node) *ir.Node {
	isZero := func(x *ir.Node) bool { return x != nil && x.Op == ir.OpIConst && x.ConstValue() == 0 }
	isOne := func(x *ir.Node) bool { return x != nil && x.Op == ir.OpIConst && x.ConstValue() == 1 }
	isAllOnes := func(x *ir.Node) bool {
		return x != nil && x.Op == ir.OpIConst && uint64(x.ConstValue())&x.DT.Mask() == x.DT.Mask()
	}

	if len(n.Inputs) != 2 {
		return nil
	}
	a, b := n.Inputs[0], n.Inputs[1]
	switch n.Op {
	case ir.OpAdd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr, ir.OpSar:
		if isZero(b) {
			return a
		}
		if n.Op == ir.OpAdd && isZero(a) {
			return b
		}
	case ir.OpSub:
		if isZero(b) {
			return a
		}
	case ir.OpMul:
		if isOne(b) {
			return a
		}
		if isOne(a) {
			return b
		}
		if isZero(a) {
			return a
		}
		if isZero(b) {
			return b
		}
	case ir.OpAnd:
		if isAllOnes(b) {
			return a
		}
		if isAllOnes(a) {
			return b
		}
		if isZero(a) {
			return a
		}
		if isZero(b) {
			return b
		}
	}
	return nil
}

// idealize performs opcode-specific structural rewrites that may return a
// different node (§4.2 step 1): double negation elimination, self-
// subtraction, self-xor.
func idealize(f *ir.Func, n *ir.Node) *ir.Node {
	switch n.Op {
	case ir.OpNeg:
		if in := n.Inputs[0]; in != nil && in.Op == ir.OpNeg {
			return in.Inputs[0]
		}
	case ir.OpNot:
		if in := n.Inputs[0]; in != nil && in.Op == ir.OpNot {
			return in.Inputs[0]
		}
	case ir.OpSub, ir.OpXor:
		if n.Inputs[0] == n.Inputs[1] && n.Inputs[0] != nil {
			return f.Const(n.DT.Width, 0)
		}
	}
	return nil
}
