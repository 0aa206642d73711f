// Package arena implements a bump allocator with chunks, savepoints and
// restore points. It backs all transient per-function compiler state:
// nodes, lattice values, live ranges, VRegs.
package arena

// Debug enables poisoning of freed/rewound bytes so a dangling slice read
// trips a visible corruption instead of silently returning old data.
// Flipped in tests only; left false in normal use for speed.
var Debug = false

const defaultAlign = 16

type chunk struct {
	buf  []byte
	used int
}

// Savepoint is an opaque restore marker returned by Save.
type Savepoint struct {
	chunkIdx int
	used     int
}

// Arena is a single-owner bump allocator. Chunks form a slice (the spec's
// singly linked chunk list); the arena remembers which chunk is "top"
// (the last one in the slice) so Save/Restore is O(1) except for the
// poisoning pass in debug builds.
type Arena struct {
	chunkSize int
	chunks    []*chunk
	highWater int // debug: largest total size ever reached
}

// New creates an arena whose chunks are chunkSize bytes each.
func New(chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	a := &Arena{chunkSize: chunkSize}
	a.chunks = append(a.chunks, &chunk{buf: make([]byte, chunkSize)})
	return a
}

func align(n int) int {
	return (n + defaultAlign - 1) &^ (defaultAlign - 1)
}

// Alloc returns a zeroed, 16-byte aligned region of size bytes. It grows
// the top chunk in place when there's room, otherwise allocates a new
// chunk sized to fit (at least chunkSize).
func (a *Arena) Alloc(size int) []byte {
	size = align(size)
	top := a.chunks[len(a.chunks)-1]
	if top.used+size <= len(top.buf) {
		b := top.buf[top.used : top.used+size : top.used+size]
		top.used += size
		a.bumpHighWater()
		return b
	}

	newSize := a.chunkSize
	if size > newSize {
		newSize = size
	}
	nc := &chunk{buf: make([]byte, newSize)}
	a.chunks = append(a.chunks, nc)
	nc.used = size
	a.bumpHighWater()
	return nc.buf[:size:size]
}

// UnalignedAlloc allocates size bytes without rounding up to the alignment
// boundary. Used for opcode-specific "extra bytes" payloads that are
// already a known, tightly packed size.
func (a *Arena) UnalignedAlloc(size int) []byte {
	top := a.chunks[len(a.chunks)-1]
	if top.used+size <= len(top.buf) {
		b := top.buf[top.used : top.used+size : top.used+size]
		top.used += size
		return b
	}
	newSize := a.chunkSize
	if size > newSize {
		newSize = size
	}
	nc := &chunk{buf: make([]byte, newSize), used: size}
	a.chunks = append(a.chunks, nc)
	return nc.buf[:size:size]
}

// Realloc grows b to newSize, extending in place if b is the most recent
// allocation at the top of the current chunk; otherwise it copies.
func (a *Arena) Realloc(b []byte, newSize int) []byte {
	top := a.chunks[len(a.chunks)-1]
	oldSize := len(b)
	// b is "at the top" iff its backing array ends exactly at top.used.
	if oldSize <= top.used && sameBacking(top.buf, top.used-oldSize, b) {
		grow := align(newSize) - oldSize
		if grow > 0 && top.used+grow <= len(top.buf) {
			top.used += grow
			return top.buf[top.used-align(newSize) : top.used : top.used]
		}
	}
	nb := a.Alloc(newSize)
	copy(nb, b)
	return nb
}

func sameBacking(chunkBuf []byte, off int, b []byte) bool {
	if off < 0 || off+len(b) > len(chunkBuf) {
		return false
	}
	if len(b) == 0 {
		return true
	}
	return &chunkBuf[off] == &b[0]
}

func (a *Arena) bumpHighWater() {
	if !Debug {
		return
	}
	total := 0
	for _, c := range a.chunks {
		total += c.used
	}
	if total > a.highWater {
		a.highWater = total
	}
}

// HighWater returns the largest total allocation size ever observed.
// Only tracked when Debug is true; returns 0 otherwise.
func (a *Arena) HighWater() int { return a.highWater }

// Save returns a marker that Restore can later roll back to.
func (a *Arena) Save() Savepoint {
	return Savepoint{chunkIdx: len(a.chunks) - 1, used: a.chunks[len(a.chunks)-1].used}
}

// Restore rewinds the arena to a previously returned Savepoint. Chunks
// allocated after the savepoint are dropped; the savepoint's own chunk is
// truncated back to its recorded used count. In debug builds the rewound
// bytes are poisoned so stale slices read garbage instead of old data.
func (a *Arena) Restore(sp Savepoint) {
	if Debug {
		top := a.chunks[sp.chunkIdx]
		poison(top.buf[sp.used:top.used])
		for i := sp.chunkIdx + 1; i < len(a.chunks); i++ {
			poison(a.chunks[i].buf[:a.chunks[i].used])
		}
	}
	a.chunks[sp.chunkIdx].used = sp.used
	a.chunks = a.chunks[:sp.chunkIdx+1]
}

// Clear resets the arena to empty, keeping the first chunk's backing array.
func (a *Arena) Clear() {
	if Debug {
		for _, c := range a.chunks {
			poison(c.buf[:c.used])
		}
	}
	first := a.chunks[0]
	first.used = 0
	a.chunks = a.chunks[:1]
}

// Destroy releases the arena's chunks. After Destroy the arena must not be
// used again.
func (a *Arena) Destroy() {
	a.chunks = nil
}

func poison(b []byte) {
	for i := range b {
		b[i] = 0xDD
	}
}
