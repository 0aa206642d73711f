// Package target defines the codegen collaborator interface consumed by
// the core (§6 "Target interface") and a small reference implementation.
package target

import "sync"

// Class identifies a register bank. STK is not a physical bank; it marks
// the stack-slot "class" a VReg falls back to when spilled.
type Class uint8

const (
	ClassStack Class = iota
	ClassFlags
	ClassGPR
	ClassXMM
)

func (c Class) String() string {
	switch c {
	case ClassStack:
		return "STK"
	case ClassFlags:
		return "FLAGS"
	case ClassGPR:
		return "GPR"
	case ClassXMM:
		return "XMM"
	}
	return "?"
}

// RegMask is an immutable, interned register-allocation constraint (§3):
// a class, a bitset of allowed physical registers within that class, and
// whether the value may instead live on the stack. Pointer equality is
// sufficient for mask comparison once interned.
type RegMask struct {
	Class    Class
	Bits     uint64
	MaySpill bool
}

// Intersects reports whether two masks could both be satisfied by the
// same physical location, following the source's reg_mask_may_intersect:
// STK intersects anything spill-capable; same-class masks intersect iff
// their bitsets overlap.
func (m *RegMask) Intersects(o *RegMask) bool {
	if m == o {
		return true
	}
	if m.Class == ClassStack {
		return o.MaySpill || o.Class == ClassStack
	}
	if o.Class == ClassStack {
		return m.MaySpill || m.Class == ClassStack
	}
	if m.Class != o.Class {
		return false
	}
	return m.Bits&o.Bits != 0
}

// Stack is the shared interned mask for stack-resident values.
var Stack = &RegMask{Class: ClassStack, MaySpill: true}

var (
	internMu sync.Mutex
	interned = map[RegMask]*RegMask{}
)

// Intern returns the canonical *RegMask for the given content, so the
// allocator's hot paths can compare masks by pointer (§3, §9 "Interning").
func Intern(class Class, bits uint64, maySpill bool) *RegMask {
	key := RegMask{Class: class, Bits: bits, MaySpill: maySpill}
	internMu.Lock()
	defer internMu.Unlock()
	if m, ok := interned[key]; ok {
		return m
	}
	m := &RegMask{Class: class, Bits: bits, MaySpill: maySpill}
	interned[key] = m
	return m
}
