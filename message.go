package vcnet

import (
	"time"

	"github.com/google/uuid"
)

// A MessageType tags the semantic kind of a Message and selects its
// default delivery channel.
type MessageType uint8

const (
	MsgInvalid MessageType = iota

	MsgConnectionRequest
	MsgConnectionAccept
	MsgConnectionReject
	MsgConnectionClose

	MsgHeartbeat

	MsgAuthRequest
	MsgAuthResponse
	MsgAuthSuccess
	MsgAuthFailure

	MsgPlayerJoin
	MsgPlayerLeave
	MsgPlayerUpdate
	MsgInputCommand

	MsgEntityCreate
	MsgEntityDestroy
	MsgEntityUpdate

	MsgStateSync
	MsgStateAck
	MsgTimeSync
	MsgLatencyUpdate

	MsgChat
	MsgCommand

	MsgStatusRequest
	MsgStatusResponse

	MsgError
	MsgWarning

	msgTypeCount
)

var msgTypeNames = map[MessageType]string{
	MsgConnectionRequest: "connection_request",
	MsgConnectionAccept:  "connection_accept",
	MsgConnectionReject:  "connection_reject",
	MsgConnectionClose:   "connection_close",
	MsgHeartbeat:         "heartbeat",
	MsgAuthRequest:       "auth_request",
	MsgAuthResponse:      "auth_response",
	MsgAuthSuccess:       "auth_success",
	MsgAuthFailure:       "auth_failure",
	MsgPlayerJoin:        "player_join",
	MsgPlayerLeave:       "player_leave",
	MsgPlayerUpdate:      "player_update",
	MsgInputCommand:      "input_command",
	MsgEntityCreate:      "entity_create",
	MsgEntityDestroy:     "entity_destroy",
	MsgEntityUpdate:      "entity_update",
	MsgStateSync:         "state_sync",
	MsgStateAck:          "state_ack",
	MsgTimeSync:          "time_sync",
	MsgLatencyUpdate:     "latency_update",
	MsgChat:              "chat",
	MsgCommand:           "command",
	MsgStatusRequest:     "status_request",
	MsgStatusResponse:    "status_response",
	MsgError:             "error",
	MsgWarning:           "warning",
}

func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}

	return "invalid"
}

// Valid reports whether t is a known MessageType.
func (t MessageType) Valid() bool {
	return t > MsgInvalid && t < msgTypeCount
}

// Channel returns the default delivery channel for the message type.
func (t MessageType) Channel() ChannelID {
	switch t {
	case MsgConnectionRequest, MsgConnectionAccept, MsgConnectionReject,
		MsgConnectionClose, MsgAuthRequest, MsgAuthResponse,
		MsgAuthSuccess, MsgAuthFailure, MsgPlayerJoin, MsgPlayerLeave,
		MsgEntityCreate, MsgEntityDestroy, MsgChat, MsgCommand,
		MsgStatusRequest, MsgStatusResponse:
		return ChannelReliableOrdered
	case MsgError, MsgWarning, MsgStateAck:
		return ChannelReliableUnordered
	case MsgPlayerUpdate, MsgInputCommand, MsgEntityUpdate, MsgStateSync:
		return ChannelUnreliableOrdered
	case MsgHeartbeat, MsgTimeSync, MsgLatencyUpdate:
		return ChannelUnreliableUnordered
	}

	return ChannelReliableOrdered
}

// A Message is the semantic unit carried inside packet bodies.
// Seq is assigned by the channel layer on send.
type Message struct {
	ID        string            `json:"id" msgpack:"id"`
	Type      MessageType       `json:"type" msgpack:"type"`
	Sender    PeerID            `json:"sender" msgpack:"sender"`
	Receiver  PeerID            `json:"receiver" msgpack:"receiver"`
	Timestamp int64             `json:"timestamp" msgpack:"timestamp"`
	Seq       uint32            `json:"seq" msgpack:"seq"`
	Channel   ChannelID         `json:"channel" msgpack:"channel"`
	Payload   []byte            `json:"payload" msgpack:"payload"`
	Reliable  bool              `json:"reliable" msgpack:"reliable"`
	Meta      map[string]string `json:"meta,omitempty" msgpack:"meta,omitempty"`
}

// NewMessage creates a Message of type t carrying payload, stamped
// with a fresh ID and the default channel for t.
func NewMessage(t MessageType, payload []byte) *Message {
	ch := t.Channel()

	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Channel:   ch,
		Payload:   payload,
		Reliable:  ch.Reliable(),
	}
}

// To sets the receiver and returns the Message for chaining.
func (m *Message) To(peer PeerID) *Message {
	m.Receiver = peer
	return m
}
