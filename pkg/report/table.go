// Package report collects per-function compile statistics across a batch
// run and persists them, adapted from the teacher's pkg/result.
package report

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Stat is one function's compile outcome: its size once compiled, the
// allocator's final shape, and how long it took.
type Stat struct {
	Func       string
	Nodes      int           // live node count after the whole pipeline, LSRA's copies included
	VRegs      int           // virtual registers LSRA produced
	SpillSlots int           // distinct stack slots LSRA assigned
	Rounds     int           // LSRA spill-and-restart rounds
	Inlined    int           // call sites pkg/ipo inlined into this function
	Elapsed    time.Duration
	Err        string // non-empty on failure; Stat is still recorded
}

// Table stores discovered per-function stats, same mutex-guarded
// append-then-sort shape as the teacher's result.Table.
type Table struct {
	mu    sync.Mutex
	stats []Stat
}

func NewTable() *Table { return &Table{} }

// Add inserts one function's stat into the table.
func (t *Table) Add(s Stat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = append(t.stats, s)
}

// Stats returns a copy of every recorded stat, sorted by node count
// descending (biggest functions first, the ones worth looking at).
func (t *Table) Stats() []Stat {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stat, len(t.stats))
	copy(out, t.stats)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nodes > out[j].Nodes
	})
	return out
}

// Len returns the number of recorded stats.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stats)
}

// WriteJSON marshals the table's current stats, sorted, as JSON.
func (t *Table) WriteJSON() ([]byte, error) {
	return json.MarshalIndent(t.Stats(), "", "  ")
}
