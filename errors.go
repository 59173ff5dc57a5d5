package vcnet

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")

	ErrUnknownPeer  = errors.New("unknown peer")
	ErrPeerNotReady = errors.New("peer not ready")

	ErrConnectionTimeout      = errors.New("connection timed out")
	ErrReconnectionExhausted  = errors.New("reconnection attempts exhausted")
	ErrSnapshotBaseMissing    = errors.New("delta base snapshot not retained")
	ErrStaleSnapshot          = errors.New("snapshot older than latest accepted")
	ErrSendWindowFull         = errors.New("send window full")
	ErrPeerUnresponsive       = errors.New("reliable delivery gave up")
	ErrAuthenticationRequired = errors.New("not authenticated")
)

// A ProtocolError reports a packet that failed decoding. It is
// recovered locally: the packet is dropped and a metric bumped.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}

	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// A RejectReason is carried in a ConnectionReject packet.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectServerFull
	RejectVersionMismatch
	RejectBanned
	RejectWhitelistExcluded
	RejectAuthFailed
)

func (r RejectReason) String() string {
	switch r {
	case RejectServerFull:
		return "server full"
	case RejectVersionMismatch:
		return "protocol version mismatch"
	case RejectBanned:
		return "banned"
	case RejectWhitelistExcluded:
		return "not whitelisted"
	case RejectAuthFailed:
		return "authentication failed"
	}

	return "rejected"
}

// A ConnectionRejectedError reports that the server declined a
// connection during admission or authentication.
type ConnectionRejectedError struct {
	Reason  RejectReason
	Message string
}

func (e *ConnectionRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("connection rejected: %s: %s", e.Reason, e.Message)
	}

	return "connection rejected: " + e.Reason.String()
}
