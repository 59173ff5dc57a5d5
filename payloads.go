package vcnet

// Wire payloads of the control-plane message types. Each type encodes
// to the binary body of its Message; the codec's configured format
// only applies to the Message envelope, payloads are always binary.

// AuthMech selects the authentication mechanism offered by the
// server in a ConnectionAccept.
type AuthMech uint8

const (
	// AuthMechSRP verifies the client against a stored verifier.
	AuthMechSRP AuthMech = iota + 1

	// AuthMechFirstSRP registers an unknown username on first join.
	AuthMechFirstSRP
)

// ConnectionRequestData opens the handshake.
type ConnectionRequestData struct {
	Version  Version
	Username string
}

func (d *ConnectionRequestData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U8(uint8(d.Version))
	w.String(d.Username)
	return w.Bytes(), nil
}

func (d *ConnectionRequestData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Version = Version(r.U8())
	d.Username = r.String()
	return r.Close()
}

// ConnectionAcceptData assigns the peer id and the auth mechanism to
// continue with.
type ConnectionAcceptData struct {
	PeerID     PeerID
	AuthMech   AuthMech
	ServerTime int64
}

func (d *ConnectionAcceptData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(uint32(d.PeerID))
	w.U8(uint8(d.AuthMech))
	w.I64(d.ServerTime)
	return w.Bytes(), nil
}

func (d *ConnectionAcceptData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.PeerID = PeerID(r.U32())
	d.AuthMech = AuthMech(r.U8())
	d.ServerTime = r.I64()
	return r.Close()
}

// ConnectionRejectData declines a connection with a reason.
type ConnectionRejectData struct {
	Reason  RejectReason
	Message string
}

func (d *ConnectionRejectData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U8(uint8(d.Reason))
	w.String(d.Message)
	return w.Bytes(), nil
}

func (d *ConnectionRejectData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Reason = RejectReason(r.U8())
	d.Message = r.String()
	return r.Close()
}

// ConnectionCloseData announces an orderly close.
type ConnectionCloseData struct {
	Reason string
}

func (d *ConnectionCloseData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.String(d.Reason)
	return w.Bytes(), nil
}

func (d *ConnectionCloseData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Reason = r.String()
	return r.Close()
}

// AuthRequestData carries the client's SRP public ephemeral A, or the
// salt and verifier when registering under AuthMechFirstSRP.
type AuthRequestData struct {
	Mech     AuthMech
	A        []byte
	Salt     []byte
	Verifier []byte
}

func (d *AuthRequestData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U8(uint8(d.Mech))
	w.Bytes16(d.A)
	w.Bytes16(d.Salt)
	w.Bytes16(d.Verifier)
	return w.Bytes(), nil
}

func (d *AuthRequestData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Mech = AuthMech(r.U8())
	d.A = r.Bytes16()
	d.Salt = r.Bytes16()
	d.Verifier = r.Bytes16()
	return r.Close()
}

// AuthResponseData is bidirectional: the server sends salt and B, the
// client answers with its proof M.
type AuthResponseData struct {
	Salt  []byte
	B     []byte
	Proof []byte
}

func (d *AuthResponseData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.Bytes16(d.Salt)
	w.Bytes16(d.B)
	w.Bytes16(d.Proof)
	return w.Bytes(), nil
}

func (d *AuthResponseData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Salt = r.Bytes16()
	d.B = r.Bytes16()
	d.Proof = r.Bytes16()
	return r.Close()
}

// AuthSuccessData completes authentication.
type AuthSuccessData struct {
	UserID   int64
	Username string
}

func (d *AuthSuccessData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.I64(d.UserID)
	w.String(d.Username)
	return w.Bytes(), nil
}

func (d *AuthSuccessData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.UserID = r.I64()
	d.Username = r.String()
	return r.Close()
}

// AuthFailureData reports why authentication failed.
type AuthFailureData struct {
	Reason string
}

func (d *AuthFailureData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.String(d.Reason)
	return w.Bytes(), nil
}

func (d *AuthFailureData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Reason = r.String()
	return r.Close()
}

// HeartbeatData keeps a silent link alive and carries the sender's
// clock for latency estimation.
type HeartbeatData struct {
	SentAt int64

	// EchoedAt returns the SentAt of the heartbeat being answered,
	// zero on an unsolicited heartbeat.
	EchoedAt int64
}

func (d *HeartbeatData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.I64(d.SentAt)
	w.I64(d.EchoedAt)
	return w.Bytes(), nil
}

func (d *HeartbeatData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.SentAt = r.I64()
	d.EchoedAt = r.I64()
	return r.Close()
}

// TimeSyncData pairs the client clock to the server clock.
type TimeSyncData struct {
	ClientSent int64
	ServerTime int64
}

func (d *TimeSyncData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.I64(d.ClientSent)
	w.I64(d.ServerTime)
	return w.Bytes(), nil
}

func (d *TimeSyncData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.ClientSent = r.I64()
	d.ServerTime = r.I64()
	return r.Close()
}

// LatencyUpdateData reports the server's view of a peer's ping.
type LatencyUpdateData struct {
	PingMillis uint32
}

func (d *LatencyUpdateData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(d.PingMillis)
	return w.Bytes(), nil
}

func (d *LatencyUpdateData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.PingMillis = r.U32()
	return r.Close()
}

// ChatData is a chat line. Sender is filled in by the server before
// rebroadcast.
type ChatData struct {
	Sender string
	Text   string
}

func (d *ChatData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.String(d.Sender)
	w.String(d.Text)
	return w.Bytes(), nil
}

func (d *ChatData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Sender = r.String()
	d.Text = r.String()
	return r.Close()
}

// CommandData is an admin command with arguments.
type CommandData struct {
	Name string
	Args []string
}

func (d *CommandData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.String(d.Name)
	w.U16(uint16(len(d.Args)))
	for _, a := range d.Args {
		w.String(a)
	}
	return w.Bytes(), nil
}

func (d *CommandData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Name = r.String()
	n := int(r.U16())
	d.Args = nil
	for i := 0; i < n; i++ {
		d.Args = append(d.Args, r.String())
	}
	return r.Close()
}

// StateAckData confirms the newest snapshot the client has applied.
// RequestFull asks the server to abandon delta encoding because the
// client no longer retains the base.
type StateAckData struct {
	AppliedSeq  uint64
	RequestFull bool
}

func (d *StateAckData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U64(d.AppliedSeq)
	w.Bool(d.RequestFull)
	return w.Bytes(), nil
}

func (d *StateAckData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.AppliedSeq = r.U64()
	d.RequestFull = r.Bool()
	return r.Close()
}

// PlayerJoinData announces a player entering the world.
type PlayerJoinData struct {
	PeerID   PeerID
	Username string
}

func (d *PlayerJoinData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(uint32(d.PeerID))
	w.String(d.Username)
	return w.Bytes(), nil
}

func (d *PlayerJoinData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.PeerID = PeerID(r.U32())
	d.Username = r.String()
	return r.Close()
}

// PlayerLeaveData announces a player leaving the world.
type PlayerLeaveData struct {
	PeerID   PeerID
	Username string
	Reason   string
}

func (d *PlayerLeaveData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(uint32(d.PeerID))
	w.String(d.Username)
	w.String(d.Reason)
	return w.Bytes(), nil
}

func (d *PlayerLeaveData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.PeerID = PeerID(r.U32())
	d.Username = r.String()
	d.Reason = r.String()
	return r.Close()
}

// EntityDestroyData removes a replicated entity.
type EntityDestroyData struct {
	ID uint32
}

func (d *EntityDestroyData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(d.ID)
	return w.Bytes(), nil
}

func (d *EntityDestroyData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.ID = r.U32()
	return r.Close()
}

// StatusResponseData answers a StatusRequest.
type StatusResponseData struct {
	Players       uint32
	MaxPlayers    uint32
	UptimeSeconds uint64
	SnapshotSeq   uint64
}

func (d *StatusResponseData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U32(d.Players)
	w.U32(d.MaxPlayers)
	w.U64(d.UptimeSeconds)
	w.U64(d.SnapshotSeq)
	return w.Bytes(), nil
}

func (d *StatusResponseData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Players = r.U32()
	d.MaxPlayers = r.U32()
	d.UptimeSeconds = r.U64()
	d.SnapshotSeq = r.U64()
	return r.Close()
}

// StateSyncData carries one snapshot. Full snapshots hold the
// complete encoding; deltas hold the diff against the base whose
// sequence is embedded in the delta itself.
type StateSyncData struct {
	Seq  uint64
	Full bool
	Data []byte
}

func (d *StateSyncData) MarshalBinary() ([]byte, error) {
	var w Writer
	w.U64(d.Seq)
	w.Bool(d.Full)
	w.Bytes32(d.Data)
	return w.Bytes(), nil
}

func (d *StateSyncData) UnmarshalBinary(b []byte) error {
	r := NewReader(b)
	d.Seq = r.U64()
	d.Full = r.Bool()
	d.Data = r.Bytes32()
	return r.Close()
}
