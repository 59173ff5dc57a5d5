package vcnet

import (
	"math"
	"testing"
)

func TestSeqNewer(t *testing.T) {
	for _, tt := range []struct {
		a, b uint32
		want bool
	}{
		{1, 0, true},
		{0, 1, false},
		{5, 5, false},
		{0, math.MaxUint32, true},
		{math.MaxUint32, 0, false},
		{math.MaxUint32, math.MaxUint32 - 1, true},
		{1 << 31, 0, false},
		{1<<31 - 1, 0, true},
	} {
		if got := SeqNewer(tt.a, tt.b); got != tt.want {
			t.Errorf("SeqNewer(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersionCompatible(t *testing.T) {
	for _, tt := range []struct {
		v, other Version
		strict   bool
		want     bool
	}{
		{0x10, 0x10, true, true},
		{0x10, 0x11, true, false},
		{0x10, 0x11, false, true},
		{0x10, 0x20, false, false},
	} {
		if got := tt.v.Compatible(tt.other, tt.strict); got != tt.want {
			t.Errorf("%#x.Compatible(%#x, %v) = %v, want %v", tt.v, tt.other, tt.strict, got, tt.want)
		}
	}
}

func TestChannelPolicy(t *testing.T) {
	for _, tt := range []struct {
		t    MessageType
		want ChannelID
	}{
		{MsgConnectionRequest, ChannelReliableOrdered},
		{MsgChat, ChannelReliableOrdered},
		{MsgInputCommand, ChannelUnreliableOrdered},
		{MsgStateSync, ChannelUnreliableOrdered},
		{MsgHeartbeat, ChannelUnreliableUnordered},
		{MsgStateAck, ChannelReliableUnordered},
	} {
		if got := tt.t.Channel(); got != tt.want {
			t.Errorf("%s.Channel() = %s, want %s", tt.t, got, tt.want)
		}
	}
}

func TestChannelReliableOrdered(t *testing.T) {
	for _, tt := range []struct {
		ch       ChannelID
		reliable bool
		ordered  bool
	}{
		{ChannelReliableOrdered, true, true},
		{ChannelReliableUnordered, true, false},
		{ChannelUnreliableOrdered, false, true},
		{ChannelUnreliableUnordered, false, false},
	} {
		if tt.ch.Reliable() != tt.reliable || tt.ch.Ordered() != tt.ordered {
			t.Errorf("%s: Reliable=%v Ordered=%v", tt.ch, tt.ch.Reliable(), tt.ch.Ordered())
		}
	}
}

func TestInputCommandRoundTrip(t *testing.T) {
	in := InputCommand{
		Seq:       42,
		Timestamp: 1700000000000,
		Buttons:   BtnForward | BtnJump,
		LookYaw:   1.5,
		LookPitch: -0.25,
		MoveX:     0.5,
		MoveZ:     -1,
		DeltaTime: 1.0 / 60,
	}

	b, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var out InputCommand
	if err := out.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip: got %+v, want %+v", out, in)
	}
}

func TestQuatSlerpEndpoints(t *testing.T) {
	a := QuatYaw(0)
	b := QuatYaw(1.2)

	if got := a.Slerp(b, 0); got != a {
		t.Errorf("Slerp(0) = %+v, want %+v", got, a)
	}

	got := a.Slerp(b, 1)
	if math.Abs(float64(got.dot(b))) < 0.9999 {
		t.Errorf("Slerp(1) = %+v, not aligned with %+v", got, b)
	}
}
