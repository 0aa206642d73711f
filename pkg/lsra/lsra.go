// Package lsra implements the linear-scan register allocator (§4.6): a
// legalizing pre-pass, range construction over the GCM-scheduled graph,
// and a whole-lifetime spill-and-restart allocation loop.
package lsra

import (
	"github.com/oisee/tb/pkg/cfg"
	"github.com/oisee/tb/pkg/gcm"
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/target"
	pkgerrors "github.com/pkg/errors"
)

// maxRounds bounds the spill-and-restart loop (§7 "register-allocation
// impossible ... fatal"); §8 property 6 only requires a bounded count, and
// real spill rounds settle in a handful of iterations.
const maxRounds = 32

// Result is the allocator's output: every VReg with its final (class,
// register-or-stack-slot) assignment, per §4.6 "Output".
type Result struct {
	Rounds int
	VRegs  []*VReg
}

type fixedKey struct {
	class target.Class
	reg   int
}

type allocator struct {
	f     *ir.Func
	c     *cfg.CFG
	sched *gcm.Result
	tgt   target.Target

	vregs      []*VReg
	defVreg    map[int]int // node gvn -> vreg id
	fixedVregs map[fixedKey]*VReg

	active   map[target.Class][]*VReg
	inactive map[target.Class][]*VReg

	stackTop int
	rounds   int
}

// Run allocates registers for f's already-scheduled graph.
func Run(f *ir.Func, c *cfg.CFG, sched *gcm.Result, tgt target.Target) (*Result, error) {
	a := &allocator{
		f:          f,
		c:          c,
		sched:      sched,
		tgt:        tgt,
		defVreg:    map[int]int{},
		fixedVregs: map[fixedKey]*VReg{},
	}
	a.legalize()
	a.assignTimes()

	converged := false
	for a.rounds = 0; a.rounds < maxRounds; a.rounds++ {
		a.buildRanges()
		spills, err := a.allocateRound()
		if err != nil {
			return nil, err
		}
		if len(spills) == 0 {
			converged = true
			break
		}
		a.insertSpillCode(spills)
	}
	if !converged {
		return nil, pkgerrors.Errorf("lsra: register allocation for %s did not converge after %d rounds", f.Name, maxRounds)
	}
	return &Result{Rounds: a.rounds + 1, VRegs: a.vregs}, nil
}

// bindVreg records the VReg that owns n's definition. A single-bit mask
// coalesces onto the shared fixed VReg for that physical register (§4.6
// "Fixed intervals") instead of allocating a fresh one.
func (a *allocator) bindVreg(n *ir.Node, mask *target.RegMask) {
	if mask == nil {
		return
	}
	if _, ok := a.defVreg[n.Gvn]; ok {
		return
	}
	if bit, ok := singleBit(mask.Bits); ok {
		fv := a.fixedVreg(mask.Class, bit)
		a.defVreg[n.Gvn] = fv.ID
		return
	}
	v := &VReg{ID: len(a.vregs), Node: n, Mask: mask, Reg: -1}
	a.vregs = append(a.vregs, v)
	a.defVreg[n.Gvn] = v.ID
}

func (a *allocator) fixedVreg(class target.Class, reg int) *VReg {
	key := fixedKey{class, reg}
	if v, ok := a.fixedVregs[key]; ok {
		return v
	}
	v := &VReg{ID: len(a.vregs), Mask: target.Intern(class, uint64(1)<<uint(reg), false), Reg: reg, fixed: true}
	a.vregs = append(a.vregs, v)
	a.fixedVregs[key] = v
	return v
}

func (a *allocator) maskOf(n *ir.Node) *target.RegMask {
	if id, ok := a.defVreg[n.Gvn]; ok {
		return a.vregs[id].Mask
	}
	return nil
}

// singleBit reports whether bits has exactly one set bit, returning its
// index.
func singleBit(bits uint64) (int, bool) {
	if bits == 0 || bits&(bits-1) != 0 {
		return 0, false
	}
	for i := 0; i < 64; i++ {
		if bits&(uint64(1)<<uint(i)) != 0 {
			return i, true
		}
	}
	return 0, false
}

// assignTimes walks the scheduled order in program (RPO) order, giving
// every node a linear time stamp two ticks apart; a projection shares its
// tuple parent's time, and a two-address op reserves an extra four-tick
// gap so a legalizing or spill copy can land between its def and its last
// use without renumbering (§4.6 "Linear time").
func (a *allocator) assignTimes() {
	t := 0
	for _, bidx := range a.c.RPO {
		for _, n := range a.sched.ScheduledOrder[bidx] {
			if n.Op == ir.OpProj {
				if src := n.Inputs[0]; src != nil && src.Time >= 0 {
					n.Time = src.Time
					continue
				}
			}
			n.Time = t
			t += 2
			if a.tgt.Node2Addr(n) >= 0 {
				t += 4
			}
		}
	}
}
