package game

import (
	"math"
	"testing"

	"github.com/voxelcraft/vcnet"
)

func walkInputs(n int) []vcnet.InputCommand {
	cmds := make([]vcnet.InputCommand, n)
	for i := range cmds {
		cmds[i] = vcnet.InputCommand{
			Seq:       uint32(i + 1),
			Buttons:   vcnet.BtnForward,
			LookYaw:   float32(i) * 0.01,
			DeltaTime: 1.0 / 60,
		}
		if i%7 == 0 {
			cmds[i].Buttons |= vcnet.BtnJump
		}
		if i%3 == 0 {
			cmds[i].Buttons |= vcnet.BtnSprint
		}
	}
	return cmds
}

// Prediction depends on the simulation being bit-identical across
// runs: the same inputs from the same state must land on the same
// floats.
func TestApplyInputDeterministic(t *testing.T) {
	run := func() vcnet.PlayerState {
		s := vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent}
		for _, cmd := range walkInputs(200) {
			ApplyInput(&s, &cmd)
		}
		return s
	}

	a, b := run(), run()
	if a != b {
		t.Fatalf("two runs diverged:\n%+v\n%+v", a, b)
	}
}

func TestApplyInputMovesForward(t *testing.T) {
	s := vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent}
	cmd := vcnet.InputCommand{Seq: 1, Buttons: vcnet.BtnForward, DeltaTime: 0.1}
	ApplyInput(&s, &cmd)

	if s.Pos.Z <= 0 {
		t.Errorf("forward at yaw 0 moved to %+v", s.Pos)
	}
	if s.Pos.X != 0 {
		t.Errorf("forward at yaw 0 drifted on X: %+v", s.Pos)
	}
	if s.AckInputSeq != 1 {
		t.Errorf("AckInputSeq = %d", s.AckInputSeq)
	}
}

func TestApplyInputYawRotatesMovement(t *testing.T) {
	s := vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent}
	cmd := vcnet.InputCommand{
		Seq:       1,
		Buttons:   vcnet.BtnForward,
		LookYaw:   float32(math.Pi / 2),
		DeltaTime: 0.1,
	}
	ApplyInput(&s, &cmd)

	if math.Abs(float64(s.Pos.Z)) > 0.001 {
		t.Errorf("forward at yaw 90 kept a Z component: %+v", s.Pos)
	}
	if s.Pos.X <= 0 {
		t.Errorf("forward at yaw 90 moved to %+v", s.Pos)
	}
}

func TestApplyInputClampsDelta(t *testing.T) {
	s := vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent}
	cmd := vcnet.InputCommand{Seq: 1, Buttons: vcnet.BtnForward, DeltaTime: 100}
	ApplyInput(&s, &cmd)

	if s.Pos.Len() > WalkSpeed*MaxDelta+0.001 {
		t.Errorf("huge delta teleported the player to %+v", s.Pos)
	}
}

func TestApplyInputJumpAndGravity(t *testing.T) {
	s := vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent}

	jump := vcnet.InputCommand{Seq: 1, Buttons: vcnet.BtnJump, DeltaTime: 1.0 / 60}
	ApplyInput(&s, &jump)
	if s.Pos.Y <= 0 {
		t.Fatalf("jump kept the player at y=%v", s.Pos.Y)
	}

	coast := vcnet.InputCommand{DeltaTime: 1.0 / 60}
	for i := 0; i < 600 && s.Pos.Y > 0; i++ {
		coast.Seq = uint32(i + 2)
		ApplyInput(&s, &coast)
	}
	if s.Pos.Y != GroundY {
		t.Fatalf("player never landed, y=%v", s.Pos.Y)
	}
	if s.Vel.Y != 0 {
		t.Errorf("grounded player has vertical velocity %v", s.Vel.Y)
	}
}

func TestMemoryWorldRoundTrip(t *testing.T) {
	w := NewMemoryWorld()
	w.SetBlock(PackPos(0, 0, 0), 1)
	w.SetBlock(PackPos(10, -3, 4), 7)
	w.SetBlock(PackPos(-1, 0, 1), 9)

	enc := w.Serialize()

	w2 := NewMemoryWorld()
	if err := w2.ApplyDelta(enc); err != nil {
		t.Fatal(err)
	}
	if got := w2.Block(PackPos(10, -3, 4)); got != 7 {
		t.Errorf("block = %d, want 7", got)
	}

	// Deterministic: same content, same bytes.
	if string(w2.Serialize()) != string(enc) {
		t.Error("serialization not deterministic")
	}
}

func TestMemoryEntitiesOrder(t *testing.T) {
	m := NewMemoryEntities()
	m.Upsert(vcnet.EntityState{ID: 5})
	m.Upsert(vcnet.EntityState{ID: 1})
	m.Upsert(vcnet.EntityState{ID: 3})
	m.Remove(3)

	got := m.Active()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 5 {
		t.Fatalf("Active() = %+v", got)
	}
}
