package lsra

import (
	"sort"

	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/target"
)

// Range is a half-open live interval [Start, End) on the function's linear
// instruction-time scale (§3 "Live range").
type Range struct{ Start, End int }

// VReg is the LSRA-visible allocation unit (§3). Node is the node whose
// definition this VReg represents — the original IR node, or a MachCopy
// this package inserted for legalization or spilling. Fixed VRegs (one per
// physical register per class, §4.6) carry Node == nil.
type VReg struct {
	ID      int
	Node    *ir.Node
	Mask    *target.RegMask
	Reg     int // -1 until allocated; register index, or stack slot once spilled
	Hint    *VReg
	Ranges  []Range // sorted ascending by Start, coalesced at touching bounds
	EndTime int

	fixed bool
}

func (v *VReg) class() target.Class { return v.Mask.Class }

func (v *VReg) start() int {
	if len(v.Ranges) == 0 {
		return -1
	}
	return v.Ranges[0].Start
}

// addRange inserts [start, end), coalescing with any overlapping or
// touching range (§4.6 range construction).
func (v *VReg) addRange(start, end int) {
	if end > v.EndTime {
		v.EndTime = end
	}
	for i := range v.Ranges {
		r := &v.Ranges[i]
		if start <= r.End && end >= r.Start {
			if start < r.Start {
				r.Start = start
			}
			if end > r.End {
				r.End = end
			}
			v.normalize()
			return
		}
	}
	v.Ranges = append(v.Ranges, Range{start, end})
	v.normalize()
}

// truncateOrAddDefRange handles the def-time step of range construction:
// set the start of the earliest already-discovered range to t, or start a
// fresh single-tick range if no discovered range reaches past t.
func (v *VReg) truncateOrAddDefRange(t int) {
	if len(v.Ranges) == 0 || v.Ranges[0].End <= t {
		v.addRange(t, t+1)
		return
	}
	v.Ranges[0].Start = t
}

func (v *VReg) normalize() {
	sort.Slice(v.Ranges, func(i, j int) bool { return v.Ranges[i].Start < v.Ranges[j].Start })
	out := v.Ranges[:0]
	for _, r := range v.Ranges {
		if len(out) > 0 && r.Start <= out[len(out)-1].End {
			if r.End > out[len(out)-1].End {
				out[len(out)-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	v.Ranges = out
}

// coversAt reports whether t falls inside one of v's ranges.
func (v *VReg) coversAt(t int) bool {
	for _, r := range v.Ranges {
		if t >= r.Start && t < r.End {
			return true
		}
	}
	return false
}

// nextRangeAfter returns the start of the first range beginning at or
// after t, or -1 if none remain.
func (v *VReg) nextRangeAfter(t int) int {
	for _, r := range v.Ranges {
		if r.Start >= t {
			return r.Start
		}
	}
	return -1
}
