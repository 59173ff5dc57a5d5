package vcnet

import "math"

// A Vec3 is a position, velocity or direction in world space.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(f float32) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

// Len returns the Euclidean length of v.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float32 { return v.Sub(o).Len() }

// Lerp linearly interpolates from v to o by t in [0, 1].
func (v Vec3) Lerp(o Vec3, t float32) Vec3 {
	return Vec3{
		v.X + (o.X-v.X)*t,
		v.Y + (o.Y-v.Y)*t,
		v.Z + (o.Z-v.Z)*t,
	}
}

// A Quat is a rotation quaternion.
type Quat struct {
	W, X, Y, Z float32
}

// QuatIdent is the identity rotation.
var QuatIdent = Quat{W: 1}

func (q Quat) dot(o Quat) float32 {
	return q.W*o.W + q.X*o.X + q.Y*o.Y + q.Z*o.Z
}

// Normalize returns q scaled to unit length. The identity rotation is
// returned for a zero quaternion.
func (q Quat) Normalize() Quat {
	l := float32(math.Sqrt(float64(q.dot(q))))
	if l == 0 {
		return QuatIdent
	}

	inv := 1 / l
	return Quat{q.W * inv, q.X * inv, q.Y * inv, q.Z * inv}
}

// Slerp spherically interpolates from q to o by t in [0, 1].
func (q Quat) Slerp(o Quat, t float32) Quat {
	d := q.dot(o)

	// Take the short way around.
	if d < 0 {
		o = Quat{-o.W, -o.X, -o.Y, -o.Z}
		d = -d
	}

	// Nearly parallel rotations degrade to lerp.
	if d > 0.9995 {
		return Quat{
			q.W + (o.W-q.W)*t,
			q.X + (o.X-q.X)*t,
			q.Y + (o.Y-q.Y)*t,
			q.Z + (o.Z-q.Z)*t,
		}.Normalize()
	}

	theta := math.Acos(float64(d))
	sin := math.Sin(theta)
	a := float32(math.Sin((1-float64(t))*theta) / sin)
	b := float32(math.Sin(float64(t)*theta) / sin)

	return Quat{
		a*q.W + b*o.W,
		a*q.X + b*o.X,
		a*q.Y + b*o.Y,
		a*q.Z + b*o.Z,
	}
}

// QuatYaw returns the rotation of yaw radians around the Y axis.
func QuatYaw(yaw float32) Quat {
	half := float64(yaw) / 2
	return Quat{
		W: float32(math.Cos(half)),
		Y: float32(math.Sin(half)),
	}
}

// Buttons is the bitfield of held actions in an InputCommand.
type Buttons uint16

const (
	BtnForward Buttons = 1 << iota
	BtnBack
	BtnLeft
	BtnRight
	BtnJump
	BtnSneak
	BtnSprint
	BtnInteract
)

// Held reports whether b is held in the bitfield.
func (bs Buttons) Held(b Buttons) bool { return bs&b != 0 }

// An InputCommand records one client tick's worth of player intent.
// Seq is assigned by the client and echoed back by the server in the
// acknowledging snapshot.
type InputCommand struct {
	Seq       uint32
	Timestamp int64
	Buttons   Buttons
	LookYaw   float32
	LookPitch float32
	MoveX     float32
	MoveZ     float32
	DeltaTime float32
}

// MarshalBinary encodes the command for the wire.
func (c *InputCommand) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(c.Seq)
	w.I64(c.Timestamp)
	w.U16(uint16(c.Buttons))
	w.F32(c.LookYaw)
	w.F32(c.LookPitch)
	w.F32(c.MoveX)
	w.F32(c.MoveZ)
	w.F32(c.DeltaTime)

	return w.Bytes(), nil
}

// UnmarshalBinary decodes a wire-encoded command.
func (c *InputCommand) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	c.Seq = r.U32()
	c.Timestamp = r.I64()
	c.Buttons = Buttons(r.U16())
	c.LookYaw = r.F32()
	c.LookPitch = r.F32()
	c.MoveX = r.F32()
	c.MoveZ = r.F32()
	c.DeltaTime = r.F32()

	return r.Close()
}

// A PlayerState is the authoritative state of one player inside a
// snapshot. AckInputSeq echoes the newest input command the server
// had applied when the state was captured.
type PlayerState struct {
	ID          PeerID
	Pos         Vec3
	Rot         Quat
	Vel         Vec3
	Health      float32
	Timestamp   int64
	AckInputSeq uint32
}

func (s *PlayerState) encode(w *Writer) {
	w.U32(uint32(s.ID))
	w.F32(s.Pos.X)
	w.F32(s.Pos.Y)
	w.F32(s.Pos.Z)
	w.F32(s.Rot.W)
	w.F32(s.Rot.X)
	w.F32(s.Rot.Y)
	w.F32(s.Rot.Z)
	w.F32(s.Vel.X)
	w.F32(s.Vel.Y)
	w.F32(s.Vel.Z)
	w.F32(s.Health)
	w.I64(s.Timestamp)
	w.U32(s.AckInputSeq)
}

func (s *PlayerState) decode(r *Reader) {
	s.ID = PeerID(r.U32())
	s.Pos = Vec3{r.F32(), r.F32(), r.F32()}
	s.Rot = Quat{r.F32(), r.F32(), r.F32(), r.F32()}
	s.Vel = Vec3{r.F32(), r.F32(), r.F32()}
	s.Health = r.F32()
	s.Timestamp = r.I64()
	s.AckInputSeq = r.U32()
}

// MarshalBinary encodes the state for the wire.
func (s *PlayerState) MarshalBinary() ([]byte, error) {
	var w Writer
	s.encode(&w)
	return w.Bytes(), nil
}

// UnmarshalBinary decodes a wire-encoded state.
func (s *PlayerState) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	s.decode(r)
	return r.Close()
}

// EncodePlayerState appends the wire encoding of s to w.
func EncodePlayerState(w *Writer, s *PlayerState) { s.encode(w) }

// DecodePlayerState reads a wire-encoded state from r.
func DecodePlayerState(r *Reader) PlayerState {
	var s PlayerState
	s.decode(r)
	return s
}

// An EntityState is the replicated state of a non-player entity.
type EntityState struct {
	ID   uint32
	Kind uint16
	Pos  Vec3
	Rot  Quat
	Vel  Vec3
}

// MarshalBinary encodes the state for the wire.
func (e *EntityState) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(e.ID)
	w.U16(e.Kind)
	w.F32(e.Pos.X)
	w.F32(e.Pos.Y)
	w.F32(e.Pos.Z)
	w.F32(e.Rot.W)
	w.F32(e.Rot.X)
	w.F32(e.Rot.Y)
	w.F32(e.Rot.Z)
	w.F32(e.Vel.X)
	w.F32(e.Vel.Y)
	w.F32(e.Vel.Z)

	return w.Bytes(), nil
}

// UnmarshalBinary decodes a wire-encoded state.
func (e *EntityState) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	e.ID = r.U32()
	e.Kind = r.U16()
	e.Pos = Vec3{r.F32(), r.F32(), r.F32()}
	e.Rot = Quat{r.F32(), r.F32(), r.F32(), r.F32()}
	e.Vel = Vec3{r.F32(), r.F32(), r.F32()}

	return r.Close()
}
