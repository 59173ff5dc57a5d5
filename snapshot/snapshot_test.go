package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/voxelcraft/vcnet"
)

func testSnapshot(seq uint64, ts int64) *Snapshot {
	return &Snapshot{
		Seq:       seq,
		Timestamp: ts,
		World:     []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Players: map[vcnet.PeerID]vcnet.PlayerState{
			1: {ID: 1, Pos: vcnet.Vec3{X: 1, Y: 2, Z: 3}, Rot: vcnet.QuatIdent, Health: 100},
			2: {ID: 2, Pos: vcnet.Vec3{X: -4, Z: float32(seq)}, Rot: vcnet.QuatYaw(0.5), Health: 80, AckInputSeq: 7},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := testSnapshot(9, 123456)

	b, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	out, err := UnmarshalSnapshot(b)
	if err != nil {
		t.Fatal(err)
	}

	if out.Seq != in.Seq || out.Timestamp != in.Timestamp {
		t.Errorf("header mismatch: %+v", out)
	}
	if !bytes.Equal(out.World, in.World) {
		t.Error("world bytes mismatch")
	}
	if len(out.Players) != 2 {
		t.Fatalf("%d players, want 2", len(out.Players))
	}
	if out.Players[2] != in.Players[2] {
		t.Errorf("player 2 = %+v, want %+v", out.Players[2], in.Players[2])
	}
}

func TestSnapshotEncodingDeterministic(t *testing.T) {
	s := testSnapshot(1, 1)

	a, _ := s.MarshalBinary()
	b, _ := s.MarshalBinary()
	if !bytes.Equal(a, b) {
		t.Fatal("two encodings of the same snapshot differ")
	}
}

// The delta law: applying a delta to its base reproduces the newer
// encoding exactly.
func TestDeltaRoundTrip(t *testing.T) {
	base := testSnapshot(1, 100)
	baseEnc, _ := base.MarshalBinary()

	for name, newer := range map[string]*Snapshot{
		"small change": testSnapshot(2, 150),
		"player gone": {
			Seq: 2, Timestamp: 150, World: base.World,
			Players: map[vcnet.PeerID]vcnet.PlayerState{1: base.Players[1]},
		},
		"world grown": {
			Seq: 2, Timestamp: 150, World: bytes.Repeat([]byte{9}, 64),
			Players: base.Players,
		},
		"identical": testSnapshot(1, 100),
	} {
		newerEnc, _ := newer.MarshalBinary()

		delta := ComputeDelta(base.Seq, baseEnc, newerEnc)
		if DeltaBase(delta) != base.Seq {
			t.Errorf("%s: DeltaBase = %d", name, DeltaBase(delta))
		}

		got, baseSeq, err := ApplyDelta(baseEnc, delta)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if baseSeq != base.Seq {
			t.Errorf("%s: baseSeq = %d", name, baseSeq)
		}
		if !bytes.Equal(got, newerEnc) {
			t.Errorf("%s: reconstruction differs from newer encoding", name)
		}
	}
}

func TestApplyDeltaWrongBase(t *testing.T) {
	base := testSnapshot(1, 100)
	baseEnc, _ := base.MarshalBinary()
	newer := testSnapshot(2, 150)
	newerEnc, _ := newer.MarshalBinary()

	delta := ComputeDelta(1, baseEnc, newerEnc)

	// A truncated base cannot satisfy the copy runs.
	if _, _, err := ApplyDelta(baseEnc[:4], delta); err == nil {
		t.Fatal("truncated base accepted")
	}
}

func TestApplyDeltaBogusOpCount(t *testing.T) {
	// An op count far beyond what the body could hold must be
	// rejected up front, not iterated.
	var w vcnet.Writer
	w.U64(1)
	w.U32(0xffffffff)

	if _, _, err := ApplyDelta([]byte{1, 2, 3}, w.Bytes()); err == nil {
		t.Fatal("oversized op count accepted")
	}
}

func TestHistoryEviction(t *testing.T) {
	h := NewHistory(3)
	for seq := uint64(1); seq <= 5; seq++ {
		h.Put(seq, []byte{byte(seq)})
	}

	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
	if _, ok := h.Get(2); ok {
		t.Error("evicted entry still present")
	}
	if b, ok := h.Get(5); !ok || b[0] != 5 {
		t.Error("newest entry missing")
	}
	if h.Latest() != 5 {
		t.Errorf("Latest = %d", h.Latest())
	}

	// Non-increasing sequences are ignored.
	h.Put(4, []byte{0xff})
	if h.Latest() != 5 {
		t.Error("stale Put accepted")
	}
}

func TestBufferOrdering(t *testing.T) {
	b := NewBuffer(4)

	if err := b.Add(testSnapshot(5, 100)); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(testSnapshot(5, 110)); !errors.Is(err, vcnet.ErrStaleSnapshot) {
		t.Fatalf("equal seq: err = %v", err)
	}
	if err := b.Add(testSnapshot(3, 90)); !errors.Is(err, vcnet.ErrStaleSnapshot) {
		t.Fatalf("older seq: err = %v", err)
	}
	if err := b.Add(testSnapshot(6, 120)); err != nil {
		t.Fatal(err)
	}

	if b.LatestSeq() != 6 {
		t.Errorf("LatestSeq = %d", b.LatestSeq())
	}
}

func TestBufferCap(t *testing.T) {
	b := NewBuffer(3)
	for seq := uint64(1); seq <= 10; seq++ {
		if err := b.Add(testSnapshot(seq, int64(seq*10))); err != nil {
			t.Fatal(err)
		}
	}

	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	s, _ := b.Latest()
	if s.Seq != 10 {
		t.Errorf("latest seq = %d", s.Seq)
	}
}

func TestBufferStraddle(t *testing.T) {
	b := NewBuffer(8)
	b.Add(testSnapshot(1, 100))
	b.Add(testSnapshot(2, 200))
	b.Add(testSnapshot(3, 300))

	before, after, ok := b.Straddle(250)
	if !ok || before.Seq != 2 || after.Seq != 3 {
		t.Fatalf("Straddle(250) = %v %v %v", before, after, ok)
	}

	// Before everything: pinned to the oldest.
	before, after, _ = b.Straddle(50)
	if before.Seq != 1 || after.Seq != 1 {
		t.Errorf("Straddle(50) = seq %d/%d", before.Seq, after.Seq)
	}

	// After everything: pinned to the newest.
	before, after, _ = b.Straddle(999)
	if before.Seq != 3 || after.Seq != 3 {
		t.Errorf("Straddle(999) = seq %d/%d", before.Seq, after.Seq)
	}

	if _, _, ok := NewBuffer(4).Straddle(100); ok {
		t.Error("empty buffer straddled")
	}
}

func TestBufferEvictKeepsPair(t *testing.T) {
	b := NewBuffer(8)
	for seq := uint64(1); seq <= 5; seq++ {
		b.Add(testSnapshot(seq, int64(seq*100)))
	}

	b.EvictOlderThan(10000)
	if b.Len() != 2 {
		t.Fatalf("len = %d, want the two newest kept", b.Len())
	}
}
