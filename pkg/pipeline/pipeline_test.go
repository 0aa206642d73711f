package pipeline

import (
	"testing"

	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/target"
)

func buildAddFunc(m *ir.Module, name string) *ir.Func {
	f := m.NewFunc(name)
	start := f.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	f.SetInput(start, f.Root, 0)
	x := f.Param(start, 0, ir.Int(32))
	y := f.Param(start, 1, ir.Int(32))
	sum := f.BinOp(ir.OpAdd, ir.Int(32), x, y)
	f.Return(start, sum)
	return f
}

func TestRunCompilesEveryFunction(t *testing.T) {
	m := ir.NewModule()
	buildAddFunc(m, "f1")
	buildAddFunc(m, "f2")
	buildAddFunc(m, "f3")

	p := NewPool(2, target.NewGeneric())
	p.Run(m, nil, false)

	compiled, failed := p.Stats()
	if failed != 0 {
		t.Fatalf("expected no failures, got %d", failed)
	}
	if compiled != 3 {
		t.Fatalf("expected 3 functions compiled, got %d", compiled)
	}
	if p.Reports.Len() != 3 {
		t.Fatalf("expected 3 recorded stats, got %d", p.Reports.Len())
	}
}

func TestRunSkipsAlreadyDoneFunctions(t *testing.T) {
	m := ir.NewModule()
	buildAddFunc(m, "f1")
	buildAddFunc(m, "f2")

	p := NewPool(2, target.NewGeneric())
	p.Run(m, map[string]bool{"f1": true}, false)

	compiled, _ := p.Stats()
	if compiled != 1 {
		t.Fatalf("expected only the non-done function to be compiled, got %d", compiled)
	}
}

func TestRunRecordsInlineCounts(t *testing.T) {
	m := ir.NewModule()
	buildAddFunc(m, "f1")

	p := NewPool(1, target.NewGeneric())
	p.InlineCounts = map[string]int{"f1": 3}
	p.Run(m, nil, false)

	stats := p.Reports.Stats()
	if len(stats) != 1 || stats[0].Inlined != 3 {
		t.Fatalf("expected f1's Stat.Inlined to be 3, got %+v", stats)
	}
}

func TestRegisterAndReadSource(t *testing.T) {
	p := NewPool(1, target.NewGeneric())
	p.RegisterSource("f1", "a.tb")
	src, ok := p.Source("f1")
	if !ok || src != "a.tb" {
		t.Fatalf("expected registered source to round-trip, got %q, %v", src, ok)
	}
	if _, ok := p.Source("missing"); ok {
		t.Fatalf("expected no source recorded for an unregistered function")
	}
}
