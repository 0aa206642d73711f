package report

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.gob")
	ckpt := &Checkpoint{
		Stats: []Stat{
			{Func: "a", Nodes: 10, Elapsed: 5 * time.Millisecond},
			{Func: "b", Nodes: 20, Err: "spill loop did not converge"},
		},
		Completed: map[string]bool{"a": true, "b": true},
	}
	if err := SaveCheckpoint(path, ckpt); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if len(loaded.Stats) != 2 || loaded.Stats[1].Err != "spill loop did not converge" {
		t.Fatalf("checkpoint did not round-trip: %+v", loaded)
	}
	if !loaded.Completed["a"] || !loaded.Completed["b"] {
		t.Fatalf("completed set did not round-trip: %+v", loaded.Completed)
	}
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	if _, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Fatalf("expected an error loading a nonexistent checkpoint")
	}
}
