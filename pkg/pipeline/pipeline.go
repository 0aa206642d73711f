// Package pipeline runs the per-function optimize/schedule/allocate
// sequence across a module's functions in parallel, adapted from the
// teacher's pkg/search.WorkerPool (§5's concurrency model: no shared
// mutable state between per-function passes, one lock guarding what
// genuinely is module-wide).
package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oisee/tb/pkg/cfg"
	"github.com/oisee/tb/pkg/gcm"
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/lsra"
	"github.com/oisee/tb/pkg/peep"
	"github.com/oisee/tb/pkg/report"
	"github.com/oisee/tb/pkg/sccp"
	"github.com/oisee/tb/pkg/target"
)

// Pool compiles a module's functions with a bounded goroutine pool, one
// *ir.Func per task, each with its own Arena (the function already owns
// one; the pool never shares it across goroutines).
type Pool struct {
	NumWorkers int
	Target     target.Target
	Reports    *report.Table

	// InlineCounts, when set before Run, carries the per-function inlined
	// call-site count pkg/ipo.Inliner.Counts() produced for the same
	// module, so compileOne can attribute it into each function's Stat.
	InlineCounts map[string]int

	// moduleLock guards the one genuinely module-wide piece of state a
	// concurrent batch compile touches: which source each function came
	// from, analogous to §5's "module owns a lock protecting symbol
	// tables". latt.Interner guards its own table internally and needs
	// no help from this lock.
	moduleLock sync.Mutex
	sources    map[string]string

	compiled atomic.Int64
	failed   atomic.Int64
}

// NewPool creates a pool with the given worker count (runtime.NumCPU()
// when <= 0).
func NewPool(numWorkers int, tgt target.Target) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Pool{
		NumWorkers: numWorkers,
		Target:     tgt,
		Reports:    report.NewTable(),
		sources:    map[string]string{},
	}
}

// RegisterSource records which source file a function came from, for
// diagnostics. Safe to call concurrently with Run.
func (p *Pool) RegisterSource(funcName, source string) {
	p.moduleLock.Lock()
	defer p.moduleLock.Unlock()
	p.sources[funcName] = source
}

// Source returns the source file a function was registered from, if any.
func (p *Pool) Source(funcName string) (string, bool) {
	p.moduleLock.Lock()
	defer p.moduleLock.Unlock()
	s, ok := p.sources[funcName]
	return s, ok
}

// Stats returns running totals: functions compiled successfully, and
// functions that failed.
func (p *Pool) Stats() (compiled, failed int64) {
	return p.compiled.Load(), p.failed.Load()
}

// Run compiles every function in m across the pool's workers, skipping
// any name already marked done (resume support via report.Checkpoint).
// It blocks until every function has been compiled or failed.
func (p *Pool) Run(m *ir.Module, done map[string]bool, verbose bool) {
	var funcs []*ir.Func
	for _, f := range m.Funcs {
		if !done[f.Name] {
			funcs = append(funcs, f)
		}
	}
	total := int64(len(funcs))
	if total == 0 {
		return
	}

	ch := make(chan *ir.Func, len(funcs))
	for _, f := range funcs {
		ch <- f
	}
	close(ch)

	stop := make(chan struct{})
	startTime := time.Now()
	go p.reportProgress(total, startTime, stop)

	var wg sync.WaitGroup
	for i := 0; i < p.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range ch {
				p.compileOne(f, verbose)
			}
		}()
	}
	wg.Wait()
	close(stop)

	elapsed := time.Since(startTime)
	compiled, failed := p.Stats()
	fmt.Printf("  [%s] %d/%d functions (100.0%%) | %d failed | DONE\n",
		elapsed.Round(time.Second), compiled+failed, total, failed)
}

func (p *Pool) reportProgress(total int64, startTime time.Time, stop chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			compiled, failed := p.Stats()
			done := compiled + failed
			pct := float64(done) / float64(total) * 100
			elapsed := time.Since(startTime)
			fmt.Printf("  [%s] %d/%d functions (%.1f%%) | %d failed\n",
				elapsed.Round(time.Second), done, total, pct, failed)
		}
	}
}

// compileOne runs peephole -> SCCP -> CFG/GCM -> LSRA on f and records
// the outcome, succeed or fail, in p.Reports.
func (p *Pool) compileOne(f *ir.Func, verbose bool) {
	start := time.Now()
	stat := report.Stat{Func: f.Name, Inlined: p.InlineCounts[f.Name]}

	run := func() error {
		eng := peep.NewEngine(f)
		if err := eng.Run(); err != nil {
			return err
		}
		sccp.Run(f)

		c, err := cfg.Build(f)
		if err != nil {
			return err
		}
		sched := gcm.Run(f, c)

		res, err := lsra.Run(f, c, sched, p.Target)
		if err != nil {
			return err
		}
		stat.VRegs = len(res.VRegs)
		stat.Rounds = res.Rounds
		stat.SpillSlots = countSpillSlots(res.VRegs)
		return nil
	}

	err := run()
	stat.Nodes = len(f.LiveNodes())
	stat.Elapsed = time.Since(start)
	if err != nil {
		stat.Err = err.Error()
		p.failed.Add(1)
		if verbose {
			fmt.Printf("  FAILED: %s: %v\n", f.Name, err)
		}
	} else {
		p.compiled.Add(1)
		if verbose {
			fmt.Printf("  OK: %s (%d nodes, %d vregs, %d rounds)\n", f.Name, stat.Nodes, stat.VRegs, stat.Rounds)
		}
	}
	p.Reports.Add(stat)
}

func countSpillSlots(vregs []*lsra.VReg) int {
	slots := map[int]bool{}
	for _, v := range vregs {
		if v.Mask.Class == target.ClassStack && v.Reg >= 0 {
			slots[v.Reg] = true
		}
	}
	return len(slots)
}
