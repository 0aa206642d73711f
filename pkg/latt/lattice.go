// Package latt implements TB's interned lattice of abstract values: the
// domain the SCCP engine (pkg/sccp) and the peephole engine (pkg/peep)
// compute over. Every Value is interned so pointer equality is semantic
// equality (§3, §9 "Interning").
package latt

import (
	"fmt"
	"sync"
)

// WidenLimit caps how many times an Int's range may be monotonically
// refined before a forced jump to the datatype's full range. Without it,
// a loop induction variable could refine forever (S3 in spec.md §8).
const WidenLimit = 3

// Kind discriminates the tagged union of lattice values.
type Kind uint8

const (
	Top Kind = iota
	Bot
	Ctrl
	KindInt
	Flt32Con
	Flt64Con
	Nan32
	Nan64
	NotNan32
	NotNan64
	PtrCon
	Null
	XNull
	AllPtr
	AnyPtr
	KindTuple
	MemSlice
	AnyMem
	AllMem
)

// Value is an interned, immutable abstract value. Two Values describe the
// same fact iff they are the same pointer.
type Value struct {
	Kind Kind

	// KindInt
	Lo, Hi               int64
	KnownZeros, KnownOnes uint64
	Widen                int

	// Flt32Con / Flt64Con
	F32 float32
	F64 float64

	// PtrCon: a symbolic identity (e.g. a global's name + offset string).
	Ptr string

	// KindTuple
	Elems []*Value

	// MemSlice: bitset of alias classes this memory value may touch.
	Alias uint64
}

func (v *Value) String() string {
	switch v.Kind {
	case Top:
		return "⊤"
	case Bot:
		return "⊥"
	case Ctrl:
		return "ctrl"
	case KindInt:
		if v.Lo == v.Hi {
			return fmt.Sprintf("int(%d)", v.Lo)
		}
		return fmt.Sprintf("int[%d,%d]", v.Lo, v.Hi)
	case Flt32Con:
		return fmt.Sprintf("f32(%v)", v.F32)
	case Flt64Con:
		return fmt.Sprintf("f64(%v)", v.F64)
	case PtrCon:
		return "ptr(" + v.Ptr + ")"
	case Null:
		return "null"
	case XNull:
		return "xnull"
	case AllPtr:
		return "allptr"
	case AnyPtr:
		return "anyptr"
	case KindTuple:
		return "tuple"
	case MemSlice:
		return fmt.Sprintf("mem(%#x)", v.Alias)
	case AnyMem:
		return "anymem"
	case AllMem:
		return "allmem"
	}
	return "?"
}

// IsConstant reports whether v denotes a single concrete value: a singleton
// integer range (Lo == Hi; the known-bits fields are not consulted), a
// concrete float, a pointer constant, or NULL.
func (v *Value) IsConstant() bool {
	switch v.Kind {
	case KindInt:
		return v.Lo == v.Hi
	case Flt32Con, Flt64Con, PtrCon, Null:
		return true
	}
	return false
}

// Interner canonicalizes Values so Meet/Join's hot path is pointer
// comparison. §5: the module owns one Interner shared by every
// function-local pass; access is serialized by a mutex.
type Interner struct {
	mu    sync.Mutex
	table map[string]*Value

	top, bot, ctrl, null, xnull, allptr, anyptr, anymem, allmem *Value
}

// NewInterner creates an Interner preloaded with the nullary singletons.
func NewInterner() *Interner {
	in := &Interner{table: make(map[string]*Value)}
	in.top = in.intern(&Value{Kind: Top})
	in.bot = in.intern(&Value{Kind: Bot})
	in.ctrl = in.intern(&Value{Kind: Ctrl})
	in.null = in.intern(&Value{Kind: Null})
	in.xnull = in.intern(&Value{Kind: XNull})
	in.allptr = in.intern(&Value{Kind: AllPtr})
	in.anyptr = in.intern(&Value{Kind: AnyPtr})
	in.anymem = in.intern(&Value{Kind: AnyMem})
	in.allmem = in.intern(&Value{Kind: AllMem})
	return in
}

func (in *Interner) Top() *Value    { return in.top }
func (in *Interner) Bot() *Value    { return in.bot }
func (in *Interner) Ctrl() *Value   { return in.ctrl }
func (in *Interner) Null() *Value   { return in.null }
func (in *Interner) XNull() *Value  { return in.xnull }
func (in *Interner) AllPtr() *Value { return in.allptr }
func (in *Interner) AnyPtr() *Value { return in.anyptr }
func (in *Interner) AnyMem() *Value { return in.anymem }
func (in *Interner) AllMem() *Value { return in.allmem }

func key(v *Value) string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("i:%d:%d:%x:%x:%d", v.Lo, v.Hi, v.KnownZeros, v.KnownOnes, v.Widen)
	case Flt32Con:
		return fmt.Sprintf("f32:%x", v.F32)
	case Flt64Con:
		return fmt.Sprintf("f64:%x", v.F64)
	case PtrCon:
		return "ptrcon:" + v.Ptr
	case MemSlice:
		return fmt.Sprintf("mem:%x", v.Alias)
	case KindTuple:
		s := "tuple:"
		for _, e := range v.Elems {
			s += fmt.Sprintf("%p,", e)
		}
		return s
	default:
		return fmt.Sprintf("k:%d", v.Kind)
	}
}

func (in *Interner) intern(v *Value) *Value {
	in.mu.Lock()
	defer in.mu.Unlock()
	k := key(v)
	if existing, ok := in.table[k]; ok {
		return existing
	}
	in.table[k] = v
	return v
}

// Int interns an integer range with the given known-bits, applying
// widening once Widen exceeds WidenLimit.
func (in *Interner) Int(lo, hi int64, kz, ko uint64, widen int) *Value {
	if lo > hi {
		return in.bot
	}
	if widen > WidenLimit {
		lo, hi = minInt64, maxInt64
		kz, ko = 0, 0
	}
	return in.intern(&Value{Kind: KindInt, Lo: lo, Hi: hi, KnownZeros: kz, KnownOnes: ko, Widen: widen})
}

// IntConst interns a singleton integer.
func (in *Interner) IntConst(n int64) *Value {
	ones := uint64(n)
	return in.Int(n, n, ^ones, ones, 0)
}

// Flt32 interns a concrete float32 constant.
func (in *Interner) Flt32(f float32) *Value { return in.intern(&Value{Kind: Flt32Con, F32: f}) }

// Flt64 interns a concrete float64 constant.
func (in *Interner) Flt64(f float64) *Value { return in.intern(&Value{Kind: Flt64Con, F64: f}) }

// PtrConst interns a named pointer constant (e.g. the address of a global).
func (in *Interner) PtrConst(name string) *Value {
	return in.intern(&Value{Kind: PtrCon, Ptr: name})
}

// Mem interns a memory slice over the given alias-class bitset.
func (in *Interner) Mem(alias uint64) *Value {
	return in.intern(&Value{Kind: MemSlice, Alias: alias})
}

// Tuple interns a tuple of element values (for multi-output op types).
func (in *Interner) Tuple(elems []*Value) *Value {
	return in.intern(&Value{Kind: KindTuple, Elems: elems})
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// rank totally orders Kinds from TOP (least informative, moves-down
// friendliest) to BOT (most informative / universe of the type). Meet and
// Join do not call it; they switch on the Kinds directly.
func rank(k Kind) int {
	switch k {
	case Top:
		return 0
	case Bot:
		return 100
	default:
		return 50
	}
}

// Meet computes the greatest lower bound — moves down, toward BOT. It is
// the transfer function SCCP pass 1 and the peephole engine's pessimistic
// value computation use to combine facts (§3, §8 property 3).
func (in *Interner) Meet(a, b *Value) *Value {
	if a == b {
		return a
	}
	if a.Kind == Top {
		return b
	}
	if b.Kind == Top {
		return a
	}
	if a.Kind == Bot || b.Kind == Bot {
		return in.bot
	}
	if a.Kind != b.Kind {
		return in.bot
	}
	switch a.Kind {
	case Ctrl:
		return in.ctrl
	case KindInt:
		lo, hi := min64(a.Lo, b.Lo), max64(a.Hi, b.Hi)
		kz := a.KnownZeros & b.KnownZeros
		ko := a.KnownOnes & b.KnownOnes
		widen := a.Widen
		if b.Widen > widen {
			widen = b.Widen
		}
		if lo != a.Lo || hi != a.Hi {
			widen++
		}
		return in.Int(lo, hi, kz, ko, widen)
	case Flt32Con:
		if a.F32 == b.F32 {
			return a
		}
		return in.bot
	case Flt64Con:
		if a.F64 == b.F64 {
			return a
		}
		return in.bot
	case PtrCon:
		if a.Ptr == b.Ptr {
			return a
		}
		return in.bot
	case MemSlice:
		return in.Mem(a.Alias | b.Alias)
	case KindTuple:
		if len(a.Elems) != len(b.Elems) {
			return in.bot
		}
		elems := make([]*Value, len(a.Elems))
		for i := range elems {
			elems[i] = in.Meet(a.Elems[i], b.Elems[i])
		}
		return in.Tuple(elems)
	default:
		return in.bot
	}
}

// Join computes the least upper bound — moves up, toward TOP. Used when a
// peephole needs to recover an upper bound already proven (e.g. undoing a
// speculative refinement in a debug-mode monotonicity check, §8 property 3).
func (in *Interner) Join(a, b *Value) *Value {
	if a == b {
		return a
	}
	if a.Kind == Bot {
		return b
	}
	if b.Kind == Bot {
		return a
	}
	if a.Kind == Top || b.Kind == Top {
		return in.top
	}
	if a.Kind != b.Kind {
		return in.top
	}
	switch a.Kind {
	case KindInt:
		lo, hi := max64(a.Lo, b.Lo), min64(a.Hi, b.Hi)
		if lo > hi {
			return in.top
		}
		return in.Int(lo, hi, a.KnownZeros|b.KnownZeros, a.KnownOnes|b.KnownOnes, 0)
	default:
		if a == b {
			return a
		}
		return in.top
	}
}

// LessEq reports whether a is at or below b in the lattice order (a's
// information content is at least b's — a ⊑ b in the usual "moves down
// toward BOT" convention used throughout this package).
func (in *Interner) LessEq(a, b *Value) bool {
	return in.Meet(a, b) == a
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
