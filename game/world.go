package game

import (
	"sort"
	"sync"

	"github.com/voxelcraft/vcnet"
)

// MemoryWorld is an in-memory World keyed by packed block position.
// It exists so the networking core can be exercised end to end
// without a real voxel engine behind it.
type MemoryWorld struct {
	mu     sync.RWMutex
	blocks map[uint64]uint16
	gen    uint64
}

func NewMemoryWorld() *MemoryWorld {
	return &MemoryWorld{blocks: make(map[uint64]uint16)}
}

// SetBlock writes one block and bumps the world generation.
func (w *MemoryWorld) SetBlock(key uint64, id uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id == 0 {
		delete(w.blocks, key)
	} else {
		w.blocks[key] = id
	}
	w.gen++
}

func (w *MemoryWorld) Block(key uint64) uint16 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.blocks[key]
}

func (w *MemoryWorld) Generation() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.gen
}

// Serialize encodes every block in ascending key order so identical
// worlds produce identical bytes.
func (w *MemoryWorld) Serialize() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]uint64, 0, len(w.blocks))
	for k := range w.blocks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var wr vcnet.Writer
	wr.U32(uint32(len(keys)))
	for _, k := range keys {
		wr.U64(k)
		wr.U16(w.blocks[k])
	}

	return wr.Bytes()
}

// ApplyDelta replaces the world contents with a full encoding. The
// byte-level snapshot delta reconstructs full encodings before they
// reach the world, so no partial form arrives here.
func (w *MemoryWorld) ApplyDelta(delta []byte) error {
	r := vcnet.NewReader(delta)
	n := int(r.U32())

	blocks := make(map[uint64]uint16, n)
	for i := 0; i < n; i++ {
		blocks[r.U64()] = r.U16()
	}
	if err := r.Close(); err != nil {
		return &vcnet.ProtocolError{Reason: "malformed world encoding", Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks = blocks
	w.gen++

	return nil
}

// PackPos packs a block position into a world key.
func PackPos(x, y, z int16) uint64 {
	return uint64(uint16(x))<<32 | uint64(uint16(y))<<16 | uint64(uint16(z))
}
