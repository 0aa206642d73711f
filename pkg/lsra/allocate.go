package lsra

import (
	"sort"

	"github.com/oisee/tb/pkg/target"
	pkgerrors "github.com/pkg/errors"
)

// infinity stands in for "free for the rest of the function" in the
// free_until computation (§4.6 "allocate_free_reg").
const infinity = 1 << 30

// nonFixedSorted returns every non-fixed VReg, youngest (latest start)
// first — the unhandled worklist of §4.6's allocation loop.
func (a *allocator) nonFixedSorted() []*VReg {
	out := make([]*VReg, 0, len(a.vregs))
	for _, v := range a.vregs {
		if !v.fixed {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start() > out[j].start() })
	return out
}

// allocateRound runs one pass of the allocation loop over the unhandled
// list, returning the VRegs that must be spilled this round.
func (a *allocator) allocateRound() ([]*VReg, error) {
	unhandled := a.nonFixedSorted()
	a.active = map[target.Class][]*VReg{}
	a.inactive = map[target.Class][]*VReg{}
	var spills []*VReg

	for len(unhandled) > 0 {
		v := unhandled[len(unhandled)-1]
		unhandled = unhandled[:len(unhandled)-1]

		t := v.start()
		if t < 0 {
			continue // never actually referenced after legalization; nothing to allocate
		}
		a.updateIntervals(t)

		switch {
		case v.Mask.Class == target.ClassStack:
			if v.Reg < 0 {
				if !v.Mask.MaySpill {
					return nil, pkgerrors.Errorf("lsra: vreg for %s requires the stack but its mask forbids spilling", v.Node)
				}
				v.Reg = a.nextStackSlot()
			}
		case v.Mask.Bits != 0:
			v.Reg = -1
			r, conflict := a.allocateFreeReg(v)
			if r < 0 {
				spills = append(spills, v)
				continue
			}
			v.Reg = r
			a.active[v.class()] = append(a.active[v.class()], v)
			if conflict != nil {
				if conflict == v {
					spills = append(spills, v)
				} else {
					a.removeActive(conflict)
					spills = append(spills, conflict)
				}
			}
		default:
			if !v.Mask.MaySpill {
				return nil, pkgerrors.Errorf("lsra: vreg for %s has an empty, non-spillable register mask", v.Node)
			}
			v.Reg = a.nextStackSlot()
		}
	}
	return spills, nil
}

// allocateFreeReg picks the register whose reservation ends latest
// relative to v's lifetime (§4.6). It returns (r, nil) on a clean
// assignment; (r, victim) when r is taken by evicting the active VReg
// victim; (r, v) on a partial conflict, where v gets r but is itself
// marked for spill; and (-1, nil) when v's mask is empty, or when every
// candidate register is blocked and its owner is nil or fixed.
func (a *allocator) allocateFreeReg(v *VReg) (int, *VReg) {
	class := v.class()
	var freeUntil [64]int
	for i := range freeUntil {
		freeUntil[i] = infinity
	}
	owner := map[int]*VReg{}

	for _, other := range a.active[class] {
		if other.Mask.Intersects(v.Mask) {
			freeUntil[other.Reg] = 0
			owner[other.Reg] = other
		}
	}
	for _, other := range a.inactive[class] {
		if !other.Mask.Intersects(v.Mask) {
			continue
		}
		nr := other.nextRangeAfter(v.start())
		if nr >= 0 && nr < v.EndTime && nr < freeUntil[other.Reg] {
			freeUntil[other.Reg] = nr
		}
	}

	best, bestFree := -1, -1
	for r := 0; r < 64; r++ {
		if v.Mask.Bits&(uint64(1)<<uint(r)) == 0 {
			continue
		}
		if freeUntil[r] > bestFree {
			bestFree, best = freeUntil[r], r
		}
	}
	if v.Hint != nil && v.Hint.Reg >= 0 && v.Mask.Bits&(uint64(1)<<uint(v.Hint.Reg)) != 0 {
		if v.EndTime <= freeUntil[v.Hint.Reg] {
			best, bestFree = v.Hint.Reg, freeUntil[v.Hint.Reg]
		}
	}
	if best == -1 {
		return -1, nil
	}
	if bestFree == 0 {
		victim := owner[best]
		if victim == nil || victim.fixed {
			return -1, nil
		}
		return best, victim
	}
	if v.EndTime <= bestFree {
		return best, nil
	}
	return best, v
}

func (a *allocator) removeActive(v *VReg) {
	list := a.active[v.class()]
	for i, x := range list {
		if x == v {
			list[i] = list[len(list)-1]
			a.active[v.class()] = list[:len(list)-1]
			return
		}
	}
}

// updateIntervals moves each active/inactive VReg across the boundary
// implied by time t, deriving the transition straight from its range list
// rather than tracking a separate cursor (§4.6 "Interval state
// transitions").
func (a *allocator) updateIntervals(t int) {
	for class, list := range a.active {
		var kept []*VReg
		for _, v := range list {
			switch {
			case v.coversAt(t):
				kept = append(kept, v)
			case v.nextRangeAfter(t) >= 0:
				a.inactive[class] = append(a.inactive[class], v)
			}
		}
		a.active[class] = kept
	}
	for class, list := range a.inactive {
		var kept []*VReg
		for _, v := range list {
			switch {
			case v.coversAt(t):
				a.active[class] = append(a.active[class], v)
			case v.nextRangeAfter(t) >= 0:
				kept = append(kept, v)
			}
		}
		a.inactive[class] = kept
	}
}

func (a *allocator) nextStackSlot() int {
	slot := a.stackTop
	a.stackTop++
	return slot
}
