package game

import (
	"math"

	"github.com/voxelcraft/vcnet"
)

// Movement constants. All simulation math is float32 so server and
// client arrive at identical positions for identical inputs.
const (
	WalkSpeed   float32 = 4.3
	SprintSpeed float32 = 5.6
	SneakSpeed  float32 = 1.3
	JumpSpeed   float32 = 8.0
	Gravity     float32 = 20.0
	GroundY     float32 = 0.0
	MaxDelta    float32 = 0.25
)

// ApplyInput advances s by one input command. It mutates position,
// velocity and rotation in place and records the command sequence in
// AckInputSeq. DeltaTime is clamped to MaxDelta so a malicious or
// stalled client cannot teleport by submitting a huge step.
func ApplyInput(s *vcnet.PlayerState, in *vcnet.InputCommand) {
	dt := in.DeltaTime
	if dt < 0 {
		dt = 0
	}
	if dt > MaxDelta {
		dt = MaxDelta
	}

	speed := WalkSpeed
	if in.Buttons.Held(vcnet.BtnSprint) {
		speed = SprintSpeed
	}
	if in.Buttons.Held(vcnet.BtnSneak) {
		speed = SneakSpeed
	}

	mx, mz := in.MoveX, in.MoveZ
	if in.Buttons.Held(vcnet.BtnForward) {
		mz += 1
	}
	if in.Buttons.Held(vcnet.BtnBack) {
		mz -= 1
	}
	if in.Buttons.Held(vcnet.BtnRight) {
		mx += 1
	}
	if in.Buttons.Held(vcnet.BtnLeft) {
		mx -= 1
	}
	if l := float32(math.Sqrt(float64(mx*mx + mz*mz))); l > 1 {
		mx /= l
		mz /= l
	}

	// Rotate the move vector from player-local into world space.
	sin := float32(math.Sin(float64(in.LookYaw)))
	cos := float32(math.Cos(float64(in.LookYaw)))
	s.Vel.X = (mx*cos + mz*sin) * speed
	s.Vel.Z = (mz*cos - mx*sin) * speed

	onGround := s.Pos.Y <= GroundY
	if onGround {
		if s.Vel.Y < 0 {
			s.Vel.Y = 0
		}
		if in.Buttons.Held(vcnet.BtnJump) {
			s.Vel.Y = JumpSpeed
		}
	} else {
		s.Vel.Y -= Gravity * dt
	}

	s.Pos.X += s.Vel.X * dt
	s.Pos.Y += s.Vel.Y * dt
	s.Pos.Z += s.Vel.Z * dt
	if s.Pos.Y < GroundY {
		s.Pos.Y = GroundY
		s.Vel.Y = 0
	}

	s.Rot = vcnet.QuatYaw(in.LookYaw)
	s.Timestamp = in.Timestamp
	s.AckInputSeq = in.Seq
}
