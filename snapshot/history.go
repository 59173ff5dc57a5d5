package snapshot

import (
	"sync"
)

// History retains recent full snapshot encodings on the server so
// deltas can be computed against any base a client has confirmed.
type History struct {
	mu      sync.Mutex
	max     int
	seqs    []uint64
	encoded map[uint64][]byte
}

func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}

	return &History{
		max:     max,
		encoded: make(map[uint64][]byte),
	}
}

// Put stores the encoding of snapshot seq, evicting the oldest entry
// once the retention limit is reached. Non-increasing sequences are
// ignored.
func (h *History) Put(seq uint64, encoded []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.seqs); n > 0 && seq <= h.seqs[n-1] {
		return
	}

	h.seqs = append(h.seqs, seq)
	h.encoded[seq] = encoded

	for len(h.seqs) > h.max {
		delete(h.encoded, h.seqs[0])
		h.seqs = h.seqs[1:]
	}
}

// Get returns the retained encoding of snapshot seq.
func (h *History) Get(seq uint64) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.encoded[seq]
	return b, ok
}

// Latest returns the newest retained sequence, or zero when empty.
func (h *History) Latest() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.seqs) == 0 {
		return 0
	}
	return h.seqs[len(h.seqs)-1]
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.seqs)
}
