/*
Package vcnet contains the shared data model of the VC01 multiplayer
protocol: messages, channels, player and input state, configuration,
events and metrics.

The wire codec lives in the proto package, delivery channels in the
channel package, and the session runtimes in the server and client
packages.
*/
package vcnet

// Magic must be at the start of every network packet ("VC01").
const Magic uint32 = 0x56433031

// Version is the protocol version tag carried in every packet header.
// The high nibble is the major version, the low nibble the minor.
type Version uint8

// ProtoVersion is the protocol version this build speaks.
const ProtoVersion Version = 0x10

// Major returns the major part of a Version.
func (v Version) Major() uint8 { return uint8(v >> 4) }

// Compatible reports whether packets tagged with other may be decoded.
// If strict is true an exact match is required, otherwise any version
// with the same major is accepted.
func (v Version) Compatible(other Version, strict bool) bool {
	if strict {
		return v == other
	}

	return v.Major() == other.Major()
}

// PeerIDs identify remote endpoints. They are assigned by the server
// on accept and are stable for the lifetime of the connection.
type PeerID uint32

// PeerIDNil is the zero PeerID. As a Message receiver it means
// "broadcast" on the server and "to the server" on a client.
const PeerIDNil PeerID = 0

// A ChannelID selects one of the four delivery lanes between two
// peers. Each channel has an independent sequence space.
type ChannelID uint8

const (
	ChannelReliableOrdered ChannelID = iota
	ChannelReliableUnordered
	ChannelUnreliableOrdered
	ChannelUnreliableUnordered

	// ChannelCount is the maximum channel number + 1.
	ChannelCount
)

// Reliable reports whether messages on the channel are retransmitted
// until acknowledged.
func (c ChannelID) Reliable() bool {
	return c == ChannelReliableOrdered || c == ChannelReliableUnordered
}

// Ordered reports whether the channel enforces an ordering policy on
// receive.
func (c ChannelID) Ordered() bool {
	return c == ChannelReliableOrdered || c == ChannelUnreliableOrdered
}

func (c ChannelID) String() string {
	switch c {
	case ChannelReliableOrdered:
		return "reliable-ordered"
	case ChannelReliableUnordered:
		return "reliable-unordered"
	case ChannelUnreliableOrdered:
		return "unreliable-ordered"
	case ChannelUnreliableUnordered:
		return "unreliable-unordered"
	}

	return "invalid"
}

// SeqNewer reports whether sequence number a is more recent than b
// under 32-bit modular arithmetic with a "recent" window of 2³¹.
// The wrap at 2³²-1 → 0 is recognised as an increment.
func SeqNewer(a, b uint32) bool {
	return a != b && a-b < 1<<31
}

// SeqLatest returns the more recent of a and b.
func SeqLatest(a, b uint32) uint32 {
	if SeqNewer(a, b) {
		return a
	}

	return b
}

// A PeerState is one of the connection lifecycle states. A peer is in
// exactly one state at any time; the same machine is used on both
// sides of a connection.
type PeerState int32

const (
	StateDisconnected PeerState = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateLoading
	StatePlaying
	StateDisconnecting
)

func (s PeerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateDisconnecting:
		return "disconnecting"
	}

	return "invalid"
}

// Ready reports whether application messages may be sent to a peer in
// this state.
func (s PeerState) Ready() bool {
	return s == StateConnected || s == StateLoading || s == StatePlaying
}
