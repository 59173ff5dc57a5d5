package proto

import (
	"fmt"
	"math"
	"time"

	"github.com/voxelcraft/vcnet"
)

// FragmentPrefixSize is the per-fragment body prefix:
// fragment_index (2) + fragment_count (2).
const FragmentPrefixSize = 4

// DefaultAssemblyExpiry is how long an incomplete assembly entry is
// retained before being freed.
const DefaultAssemblyExpiry = 30 * time.Second

// Fragment splits body into fragment bodies of at most maxSize
// payload bytes each, every one prefixed with its index and the total
// count. A body of maxSize bytes yields exactly one fragment.
func Fragment(body []byte, maxSize int) ([][]byte, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("invalid fragment size %d", maxSize)
	}

	count := (len(body) + maxSize - 1) / maxSize
	if count == 0 {
		count = 1
	}
	if count > math.MaxUint16 {
		return nil, fmt.Errorf("body of %d bytes needs %d fragments, max %d",
			len(body), count, math.MaxUint16)
	}

	frags := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxSize
		end := start + maxSize
		if end > len(body) {
			end = len(body)
		}

		frag := make([]byte, FragmentPrefixSize+end-start)
		be.PutUint16(frag[0:2], uint16(i))
		be.PutUint16(frag[2:4], uint16(count))
		copy(frag[FragmentPrefixSize:], body[start:end])

		frags = append(frags, frag)
	}

	return frags, nil
}

type assemblyKey struct {
	peer     vcnet.PeerID
	packetID uint32
}

type assemblyEntry struct {
	parts   [][]byte
	got     int
	size    int
	updated time.Time
}

// An Assembler reassembles fragmented packets. It is owned by a
// single network goroutine and is not safe for concurrent use.
type Assembler struct {
	entries map[assemblyKey]*assemblyEntry
	expiry  time.Duration
	metrics *vcnet.Metrics
}

func NewAssembler(expiry time.Duration, metrics *vcnet.Metrics) *Assembler {
	if expiry <= 0 {
		expiry = DefaultAssemblyExpiry
	}

	return &Assembler{
		entries: make(map[assemblyKey]*assemblyEntry),
		expiry:  expiry,
		metrics: metrics,
	}
}

// Pending reports how many incomplete assemblies are held.
func (a *Assembler) Pending() int { return len(a.entries) }

// Add deposits one fragment body (with its 4-byte prefix) received
// from peer as packet seq. It returns the reassembled body once all
// fragments have arrived, nil before that.
func (a *Assembler) Add(peer vcnet.PeerID, seq uint32, frag []byte) ([]byte, error) {
	if len(frag) < FragmentPrefixSize {
		return nil, &vcnet.ProtocolError{Reason: "truncated fragment"}
	}

	index := be.Uint16(frag[0:2])
	count := be.Uint16(frag[2:4])

	if count == 0 || index >= count {
		return nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("fragment index %d out of range (count %d)", index, count),
		}
	}

	// Fragments occupy consecutive sequence numbers; the index-0
	// fragment's seq identifies the packet.
	key := assemblyKey{peer: peer, packetID: seq - uint32(index)}

	e, ok := a.entries[key]
	if !ok {
		e = &assemblyEntry{parts: make([][]byte, count)}
		a.entries[key] = e
	}

	if int(count) != len(e.parts) {
		return nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("fragment count changed on packet %d", key.packetID),
		}
	}

	if e.parts[index] != nil {
		// Duplicate fragment, common under retransmission.
		return nil, nil
	}

	chunk := frag[FragmentPrefixSize:]
	e.parts[index] = chunk
	e.size += len(chunk)
	e.got++
	e.updated = time.Now()

	if e.got < len(e.parts) {
		return nil, nil
	}

	body := make([]byte, 0, e.size)
	for _, part := range e.parts {
		body = append(body, part...)
	}

	delete(a.entries, key)

	return body, nil
}

// Expire frees assembly entries that have not been updated within the
// expiry window and returns how many were dropped.
func (a *Assembler) Expire(now time.Time) int {
	n := 0
	for key, e := range a.entries {
		if now.Sub(e.updated) > a.expiry {
			delete(a.entries, key)
			n++
		}
	}

	if n > 0 && a.metrics != nil {
		a.metrics.FragmentsExpired.Add(uint64(n))
	}

	return n
}
