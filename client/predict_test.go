package client

import (
	"testing"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/game"
)

func testInput(seq uint32) *vcnet.InputCommand {
	return &vcnet.InputCommand{
		Seq:       seq,
		Buttons:   vcnet.BtnForward,
		DeltaTime: 0.05,
	}
}

// replay runs the same simulation the predictor runs, for computing
// expected outcomes.
func replay(start vcnet.PlayerState, cmds ...*vcnet.InputCommand) vcnet.PlayerState {
	s := start
	for _, cmd := range cmds {
		game.ApplyInput(&s, cmd)
	}
	return s
}

func TestPredictorApply(t *testing.T) {
	p := NewPredictor(0, 0, &vcnet.Metrics{})
	p.Seed(vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent})

	var last vcnet.PlayerState
	for seq := uint32(1); seq <= 5; seq++ {
		last = p.Apply(testInput(seq))
	}

	if last.Pos.Z <= 0 {
		t.Errorf("forward inputs did not move the player: %+v", last.Pos)
	}
	if last.AckInputSeq != 5 {
		t.Errorf("AckInputSeq = %d, want 5", last.AckInputSeq)
	}
	if got := p.Pending(); got != 5 {
		t.Errorf("Pending = %d, want 5", got)
	}

	want := replay(vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent},
		testInput(1), testInput(2), testInput(3), testInput(4), testInput(5))
	if got, _ := p.State(); got.Pos != want.Pos {
		t.Errorf("predicted %+v, replayed %+v", got.Pos, want.Pos)
	}
}

func TestPredictorDropsOldest(t *testing.T) {
	p := NewPredictor(4, 0, &vcnet.Metrics{})
	p.Seed(vcnet.PlayerState{Rot: vcnet.QuatIdent})

	for seq := uint32(1); seq <= 6; seq++ {
		p.Apply(testInput(seq))
	}

	if got := p.Pending(); got != 4 {
		t.Errorf("Pending = %d, want 4", got)
	}
}

func TestReconcileAgreement(t *testing.T) {
	p := NewPredictor(0, 0, &vcnet.Metrics{})
	start := vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent}
	p.Seed(start)

	for seq := uint32(1); seq <= 4; seq++ {
		p.Apply(testInput(seq))
	}
	before, _ := p.State()

	// The server ran the same inputs and agrees exactly.
	auth := replay(start, testInput(1), testInput(2))

	if p.Reconcile(auth) {
		t.Error("agreement reported as a correction")
	}
	if got, _ := p.State(); got.Pos != before.Pos {
		t.Errorf("agreement moved the prediction from %+v to %+v", before.Pos, got.Pos)
	}
	if got := p.Pending(); got != 2 {
		t.Errorf("Pending = %d after ack of seq 2, want 2", got)
	}
}

func TestReconcileMisprediction(t *testing.T) {
	m := &vcnet.Metrics{}
	p := NewPredictor(0, 0, m)
	p.Seed(vcnet.PlayerState{ID: 1, Rot: vcnet.QuatIdent})

	for seq := uint32(1); seq <= 5; seq++ {
		p.Apply(testInput(seq))
	}

	// The server disagrees: its result for seq 2 starts a full world
	// unit away.
	auth := replay(vcnet.PlayerState{ID: 1, Pos: vcnet.Vec3{X: 1}, Rot: vcnet.QuatIdent},
		testInput(1), testInput(2))

	if !p.Reconcile(auth) {
		t.Fatal("misprediction not corrected")
	}
	if m.Reconciliations.Load() != 1 {
		t.Errorf("Reconciliations = %d, want 1", m.Reconciliations.Load())
	}

	// The corrected state is the authoritative one with the three
	// unacknowledged inputs replayed on top.
	want := replay(auth, testInput(3), testInput(4), testInput(5))
	got, _ := p.State()
	if got.Pos != want.Pos {
		t.Errorf("corrected to %+v, want %+v", got.Pos, want.Pos)
	}
	if got.AckInputSeq != 5 {
		t.Errorf("AckInputSeq = %d after replay, want 5", got.AckInputSeq)
	}
}

func TestReconcileThreshold(t *testing.T) {
	for _, tt := range []struct {
		name      string
		offset    float32
		corrected bool
	}{
		{"within threshold", 0.05, false},
		{"beyond threshold", 0.5, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPredictor(0, 0.1, &vcnet.Metrics{})
			p.Seed(vcnet.PlayerState{Rot: vcnet.QuatIdent})
			predicted := p.Apply(testInput(1))

			auth := predicted
			auth.Pos.X += tt.offset
			auth.AckInputSeq = 1

			if got := p.Reconcile(auth); got != tt.corrected {
				t.Errorf("corrected = %v, want %v", got, tt.corrected)
			}
		})
	}
}

func TestReconcileIdempotent(t *testing.T) {
	p := NewPredictor(0, 0, &vcnet.Metrics{})
	p.Seed(vcnet.PlayerState{Rot: vcnet.QuatIdent})

	for seq := uint32(1); seq <= 3; seq++ {
		p.Apply(testInput(seq))
	}

	auth := replay(vcnet.PlayerState{Pos: vcnet.Vec3{X: 2}, Rot: vcnet.QuatIdent},
		testInput(1), testInput(2))
	if !p.Reconcile(auth) {
		t.Fatal("expected a correction on the first pass")
	}
	first, _ := p.State()

	// The same authoritative state arriving again changes nothing.
	if p.Reconcile(auth) {
		t.Error("repeat of the same state reported as a correction")
	}
	if got, _ := p.State(); got.Pos != first.Pos {
		t.Errorf("repeat moved the prediction from %+v to %+v", first.Pos, got.Pos)
	}
}

func TestReconcileAdoptsWhenUnseeded(t *testing.T) {
	p := NewPredictor(0, 0, &vcnet.Metrics{})

	auth := vcnet.PlayerState{ID: 1, Pos: vcnet.Vec3{X: 7}, Rot: vcnet.QuatIdent}
	if p.Reconcile(auth) {
		t.Error("seeding reported as a correction")
	}

	got, seeded := p.State()
	if !seeded {
		t.Fatal("predictor not seeded by authoritative state")
	}
	if got.Pos != auth.Pos {
		t.Errorf("adopted %+v, want %+v", got.Pos, auth.Pos)
	}
}

func TestReconcileTrustsServerWithoutPending(t *testing.T) {
	p := NewPredictor(0, 0, &vcnet.Metrics{})
	p.Seed(vcnet.PlayerState{Rot: vcnet.QuatIdent})

	// No pending inputs: any authoritative state is adopted as is.
	auth := vcnet.PlayerState{Pos: vcnet.Vec3{X: 3, Z: -2}, Rot: vcnet.QuatIdent, AckInputSeq: 9}
	if p.Reconcile(auth) {
		t.Error("adoption reported as a correction")
	}
	if got, _ := p.State(); got.Pos != auth.Pos {
		t.Errorf("state %+v, want %+v", got.Pos, auth.Pos)
	}
}

func TestPredictorReset(t *testing.T) {
	p := NewPredictor(0, 0, &vcnet.Metrics{})
	p.Seed(vcnet.PlayerState{Rot: vcnet.QuatIdent})
	p.Apply(testInput(1))

	p.Reset()

	if _, seeded := p.State(); seeded {
		t.Error("still seeded after Reset")
	}
	if got := p.Pending(); got != 0 {
		t.Errorf("Pending = %d after Reset, want 0", got)
	}
}
