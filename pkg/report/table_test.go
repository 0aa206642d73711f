package report

import (
	"sync"
	"testing"
)

func TestTableSortsByNodesDescending(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Stat{Func: "small", Nodes: 3})
	tbl.Add(Stat{Func: "big", Nodes: 40})
	tbl.Add(Stat{Func: "medium", Nodes: 12})

	stats := tbl.Stats()
	if len(stats) != 3 {
		t.Fatalf("expected 3 stats, got %d", len(stats))
	}
	want := []string{"big", "medium", "small"}
	for i, name := range want {
		if stats[i].Func != name {
			t.Fatalf("position %d: want %s, got %s", i, name, stats[i].Func)
		}
	}
}

func TestTableConcurrentAdd(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl.Add(Stat{Func: "f", Nodes: i})
		}(i)
	}
	wg.Wait()
	if tbl.Len() != 50 {
		t.Fatalf("expected 50 recorded stats, got %d", tbl.Len())
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Stat{Func: "f", Nodes: 5, VRegs: 2, Rounds: 1})
	b, err := tbl.WriteJSON()
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("expected non-empty JSON output")
	}
}
