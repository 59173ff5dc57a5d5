package snapshot

import (
	"sync"

	"github.com/voxelcraft/vcnet"
)

// DefaultBufferCap bounds the client-side snapshot buffer. At a 50ms
// snapshot interval this holds 1.5 seconds of history.
const DefaultBufferCap = 30

// Buffer holds decoded snapshots on the client, ordered by sequence,
// for interpolation and reconciliation. Inserts must be strictly
// newer than the newest held snapshot; anything else is stale.
type Buffer struct {
	mu    sync.Mutex
	max   int
	snaps []*Snapshot
}

func NewBuffer(max int) *Buffer {
	if max < 2 {
		max = DefaultBufferCap
	}

	return &Buffer{max: max}
}

// Add appends s. It returns ErrStaleSnapshot when s is not strictly
// newer than the newest buffered snapshot.
func (b *Buffer) Add(s *Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.snaps); n > 0 && s.Seq <= b.snaps[n-1].Seq {
		return vcnet.ErrStaleSnapshot
	}

	b.snaps = append(b.snaps, s)
	if len(b.snaps) > b.max {
		b.snaps = b.snaps[len(b.snaps)-b.max:]
	}

	return nil
}

// Latest returns the newest buffered snapshot.
func (b *Buffer) Latest() (*Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.snaps) == 0 {
		return nil, false
	}
	return b.snaps[len(b.snaps)-1], true
}

// LatestSeq returns the newest buffered sequence, or zero when empty.
func (b *Buffer) LatestSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.snaps) == 0 {
		return 0
	}
	return b.snaps[len(b.snaps)-1].Seq
}

// Straddle returns the two snapshots whose timestamps bracket t. When
// t is older than everything buffered both returns are the oldest
// snapshot; when newer than everything, both are the newest. ok is
// false only when the buffer is empty.
func (b *Buffer) Straddle(t int64) (before, after *Snapshot, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.snaps)
	if n == 0 {
		return nil, nil, false
	}

	if t <= b.snaps[0].Timestamp {
		return b.snaps[0], b.snaps[0], true
	}

	for i := 1; i < n; i++ {
		if b.snaps[i].Timestamp >= t {
			return b.snaps[i-1], b.snaps[i], true
		}
	}

	return b.snaps[n-1], b.snaps[n-1], true
}

// EvictOlderThan drops snapshots with timestamps before t, always
// keeping at least the two newest so interpolation stays possible.
func (b *Buffer) EvictOlderThan(t int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := 0
	for i < len(b.snaps)-2 && b.snaps[i].Timestamp < t {
		i++
	}
	b.snaps = b.snaps[i:]
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.snaps)
}
