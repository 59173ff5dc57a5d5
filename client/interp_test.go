package client

import (
	"testing"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/snapshot"
)

func interpSnapshot(seq uint64, ts int64, players map[vcnet.PeerID]vcnet.PlayerState) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Seq:       seq,
		Timestamp: ts,
		Players:   players,
	}
}

func remote(id vcnet.PeerID, pos, vel vcnet.Vec3) vcnet.PlayerState {
	return vcnet.PlayerState{ID: id, Pos: pos, Vel: vel, Rot: vcnet.QuatIdent}
}

func TestSampleMidpoint(t *testing.T) {
	buf := snapshot.NewBuffer(0)
	buf.Add(interpSnapshot(1, 1000, map[vcnet.PeerID]vcnet.PlayerState{
		1: remote(1, vcnet.Vec3{}, vcnet.Vec3{}),
		2: remote(2, vcnet.Vec3{}, vcnet.Vec3{X: 1}),
	}))
	buf.Add(interpSnapshot(2, 2000, map[vcnet.PeerID]vcnet.PlayerState{
		1: remote(1, vcnet.Vec3{Z: 4}, vcnet.Vec3{}),
		2: remote(2, vcnet.Vec3{X: 10}, vcnet.Vec3{X: 3}),
	}))

	ip := NewInterpolator(buf, 100*time.Millisecond, 500*time.Millisecond, &vcnet.Metrics{}, &vcnet.EventBus{})

	// Render time lands halfway between the two snapshots, and the
	// local player is excluded.
	got := ip.Sample(1600, 1)
	if len(got) != 1 {
		t.Fatalf("Sample returned %d players, want 1", len(got))
	}
	if got[0].ID != 2 {
		t.Fatalf("sampled player %d, want 2", got[0].ID)
	}
	if want := (vcnet.Vec3{X: 5}); got[0].Pos != want {
		t.Errorf("Pos = %+v, want %+v", got[0].Pos, want)
	}
	if want := (vcnet.Vec3{X: 2}); got[0].Vel != want {
		t.Errorf("Vel = %+v, want %+v", got[0].Vel, want)
	}
}

func TestSampleJoinerPassthrough(t *testing.T) {
	buf := snapshot.NewBuffer(0)
	buf.Add(interpSnapshot(1, 1000, map[vcnet.PeerID]vcnet.PlayerState{
		2: remote(2, vcnet.Vec3{}, vcnet.Vec3{}),
	}))
	buf.Add(interpSnapshot(2, 2000, map[vcnet.PeerID]vcnet.PlayerState{
		2: remote(2, vcnet.Vec3{X: 2}, vcnet.Vec3{}),
		3: remote(3, vcnet.Vec3{Z: 8}, vcnet.Vec3{}),
	}))

	ip := NewInterpolator(buf, 0, 500*time.Millisecond, &vcnet.Metrics{}, &vcnet.EventBus{})

	got := ip.Sample(1500, 1)
	var joiner *vcnet.PlayerState
	for i := range got {
		if got[i].ID == 3 {
			joiner = &got[i]
		}
	}
	if joiner == nil {
		t.Fatal("player joining between snapshots missing from sample")
	}
	// No earlier pair exists, so the newer state passes through.
	if want := (vcnet.Vec3{Z: 8}); joiner.Pos != want {
		t.Errorf("joiner Pos = %+v, want %+v", joiner.Pos, want)
	}
}

func TestSampleEmptyBuffer(t *testing.T) {
	ip := NewInterpolator(snapshot.NewBuffer(0), 100*time.Millisecond, 500*time.Millisecond, &vcnet.Metrics{}, &vcnet.EventBus{})

	if got := ip.Sample(1000, 1); got != nil {
		t.Errorf("empty buffer sampled %d players, want none", len(got))
	}
}

func TestSampleBehindOldest(t *testing.T) {
	buf := snapshot.NewBuffer(0)
	buf.Add(interpSnapshot(1, 5000, map[vcnet.PeerID]vcnet.PlayerState{
		2: remote(2, vcnet.Vec3{X: 1}, vcnet.Vec3{X: 9}),
	}))

	ip := NewInterpolator(buf, 0, 500*time.Millisecond, &vcnet.Metrics{}, &vcnet.EventBus{})

	// Render time before the oldest snapshot pins to it without
	// extrapolating.
	got := ip.Sample(1000, 1)
	if len(got) != 1 {
		t.Fatalf("Sample returned %d players, want 1", len(got))
	}
	if want := (vcnet.Vec3{X: 1}); got[0].Pos != want {
		t.Errorf("Pos = %+v, want %+v", got[0].Pos, want)
	}
}

func TestSampleExtrapolationCap(t *testing.T) {
	buf := snapshot.NewBuffer(0)
	buf.Add(interpSnapshot(1, 1000, map[vcnet.PeerID]vcnet.PlayerState{
		2: remote(2, vcnet.Vec3{}, vcnet.Vec3{X: 2}),
	}))

	events := &vcnet.EventBus{}
	var warnings int
	events.Subscribe(func(ev vcnet.Event) {
		if ev.Kind == vcnet.EventSyncWarning {
			warnings++
		}
	})

	ip := NewInterpolator(buf, 0, 500*time.Millisecond, &vcnet.Metrics{}, events)

	// 200ms past the newest snapshot: extrapolate along the velocity.
	got := ip.Sample(1200, 1)
	if len(got) != 1 {
		t.Fatalf("Sample returned %d players, want 1", len(got))
	}
	if want := (vcnet.Vec3{X: 0.4}); got[0].Pos != want {
		t.Errorf("Pos = %+v, want %+v", got[0].Pos, want)
	}
	if warnings != 0 {
		t.Fatalf("warning raised before the extrapolation limit")
	}

	// Far past the limit: frozen at the snapshot itself, one warning.
	got = ip.Sample(10000, 1)
	if want := (vcnet.Vec3{}); got[0].Pos != want {
		t.Errorf("stalled Pos = %+v, want %+v", got[0].Pos, want)
	}
	if warnings != 1 {
		t.Fatalf("warnings = %d after first stalled sample, want 1", warnings)
	}

	// Still stalled: the latch holds, no repeat warning.
	ip.Sample(11000, 1)
	if warnings != 1 {
		t.Errorf("warnings = %d while stalled, want 1", warnings)
	}

	// Fresh data clears the latch; a later stall warns again.
	buf.Add(interpSnapshot(2, 12000, map[vcnet.PeerID]vcnet.PlayerState{
		2: remote(2, vcnet.Vec3{X: 1}, vcnet.Vec3{X: 2}),
	}))
	ip.Sample(12100, 1)
	if warnings != 1 {
		t.Fatalf("recovery raised a warning")
	}
	ip.Sample(30000, 1)
	if warnings != 2 {
		t.Errorf("warnings = %d after a second stall, want 2", warnings)
	}
}
