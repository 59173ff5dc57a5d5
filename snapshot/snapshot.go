/*
Package snapshot carries the authoritative world state between server
and client: the snapshot model, its delta encoding, the server-side
retention history and the client-side interpolation buffer.
*/
package snapshot

import (
	"sort"

	"github.com/voxelcraft/vcnet"
)

// A Snapshot is the server-authoritative world and player state at
// one instant. Seq is monotonic per server. BaseSeq is zero on a full
// snapshot, otherwise the sequence the delta was computed against.
type Snapshot struct {
	Seq       uint64
	BaseSeq   uint64
	Timestamp int64
	World     []byte
	Players   map[vcnet.PeerID]vcnet.PlayerState
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Seq:       s.Seq,
		BaseSeq:   s.BaseSeq,
		Timestamp: s.Timestamp,
		World:     append([]byte(nil), s.World...),
		Players:   make(map[vcnet.PeerID]vcnet.PlayerState, len(s.Players)),
	}
	for id, ps := range s.Players {
		c.Players[id] = ps
	}

	return c
}

// MarshalBinary encodes the snapshot. Player entries are written in
// ascending id order so the encoding is deterministic, which keeps
// delta encodings stable.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	ids := make([]vcnet.PeerID, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var w vcnet.Writer
	w.U64(s.Seq)
	w.U64(s.BaseSeq)
	w.I64(s.Timestamp)
	w.Bytes32(s.World)
	w.U16(uint16(len(ids)))
	for _, id := range ids {
		ps := s.Players[id]
		vcnet.EncodePlayerState(&w, &ps)
	}

	return w.Bytes(), nil
}

// UnmarshalSnapshot decodes a snapshot encoded by MarshalBinary.
func UnmarshalSnapshot(b []byte) (*Snapshot, error) {
	r := vcnet.NewReader(b)

	s := &Snapshot{
		Seq:       r.U64(),
		BaseSeq:   r.U64(),
		Timestamp: r.I64(),
		World:     r.Bytes32(),
	}

	n := int(r.U16())
	s.Players = make(map[vcnet.PeerID]vcnet.PlayerState, n)
	for i := 0; i < n; i++ {
		ps := vcnet.DecodePlayerState(r)
		s.Players[ps.ID] = ps
	}

	if err := r.Close(); err != nil {
		return nil, &vcnet.ProtocolError{Reason: "malformed snapshot", Err: err}
	}

	return s, nil
}
