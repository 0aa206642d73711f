package report

import (
	"encoding/gob"
	"os"
	"time"
)

// Checkpoint holds enough state to resume a batch compile midway: every
// stat recorded so far, and which functions (by name) are already done,
// so pkg/pipeline can skip re-compiling them on resume. The teacher's own
// --checkpoint flag left this as a stub ("TODO: implement checkpoint
// resume"); this is that feature, implemented for real.
type Checkpoint struct {
	Stats     []Stat
	Completed map[string]bool
}

func init() {
	gob.Register(time.Duration(0))
}

// SaveCheckpoint writes batch-compile state to path.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(ckpt)
}

// LoadCheckpoint loads batch-compile state from path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, err
	}
	return &ckpt, nil
}
