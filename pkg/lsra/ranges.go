package lsra

// buildRanges performs §4.6's range-construction step: walk BBs in
// reverse RPO, seed each live-out VReg with a full-block range, then walk
// the block's instructions backward refining def/use points.
func (a *allocator) buildRanges() {
	for _, v := range a.vregs {
		v.Ranges = nil
		v.EndTime = 0
	}

	for i := len(a.c.RPO) - 1; i >= 0; i-- {
		bidx := a.c.RPO[i]
		nodes := a.sched.ScheduledOrder[bidx]
		if len(nodes) == 0 {
			continue
		}
		s, e := nodes[0].Time, nodes[len(nodes)-1].Time

		if bidx < len(a.sched.LiveOut) {
			for gvn, ok := uint(0), true; ok; gvn++ {
				if gvn, ok = a.sched.LiveOut[bidx].NextSet(gvn); ok {
					if vid, ok2 := a.defVreg[int(gvn)]; ok2 {
						a.vregs[vid].addRange(s, e+2)
					}
				}
			}
		}

		for k := len(nodes) - 1; k >= 0; k-- {
			n := nodes[k]
			if vid, ok := a.defVreg[n.Gvn]; ok {
				a.vregs[vid].truncateOrAddDefRange(n.Time)
			}

			twoAddrSlot := a.tgt.Node2Addr(n)
			for slot, in := range n.Inputs {
				if in == nil {
					continue
				}
				vid, ok := a.defVreg[in.Gvn]
				if !ok {
					continue
				}
				v := a.vregs[vid]
				if slot == twoAddrSlot {
					if defVid, ok2 := a.defVreg[n.Gvn]; ok2 {
						a.vregs[defVid].Hint = v
					}
					v.addRange(s, n.Time)
				} else {
					v.addRange(s, n.Time+2)
				}
			}
		}
	}
}
