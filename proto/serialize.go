package proto

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxelcraft/vcnet"
)

// A Format selects the message envelope serialization. Every encoded
// message starts with its format tag so the decoder never has to
// guess.
type Format uint8

const (
	FormatBinary Format = iota + 1
	FormatJSON
	FormatMsgpack
)

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "binary":
		return FormatBinary, nil
	case "json":
		return FormatJSON, nil
	case "msgpack":
		return FormatMsgpack, nil
	}

	return 0, fmt.Errorf("unknown serialization format %q", s)
}

// MarshalMessage serializes m with format f, prefixed by the format
// tag byte.
func MarshalMessage(f Format, m *vcnet.Message) ([]byte, error) {
	switch f {
	case FormatBinary:
		var w vcnet.Writer
		w.U8(uint8(FormatBinary))
		w.String(m.ID)
		w.U8(uint8(m.Type))
		w.U32(uint32(m.Sender))
		w.U32(uint32(m.Receiver))
		w.I64(m.Timestamp)
		w.U32(m.Seq)
		w.U8(uint8(m.Channel))
		w.Bool(m.Reliable)
		w.Bytes32(m.Payload)
		w.U16(uint16(len(m.Meta)))
		for k, v := range m.Meta {
			w.String(k)
			w.String(v)
		}

		return w.Bytes(), nil
	case FormatJSON:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("can't marshal message: %w", err)
		}

		return append([]byte{uint8(FormatJSON)}, data...), nil
	case FormatMsgpack:
		data, err := msgpack.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("can't marshal message: %w", err)
		}

		return append([]byte{uint8(FormatMsgpack)}, data...), nil
	}

	return nil, fmt.Errorf("unknown format %d", f)
}

// UnmarshalMessage deserializes a tagged message produced by
// MarshalMessage.
func UnmarshalMessage(data []byte) (*vcnet.Message, error) {
	if len(data) < 1 {
		return nil, &vcnet.ProtocolError{Reason: "empty message"}
	}

	switch Format(data[0]) {
	case FormatBinary:
		r := vcnet.NewReader(data[1:])
		m := &vcnet.Message{
			ID:        r.String(),
			Type:      vcnet.MessageType(r.U8()),
			Sender:    vcnet.PeerID(r.U32()),
			Receiver:  vcnet.PeerID(r.U32()),
			Timestamp: r.I64(),
			Seq:       r.U32(),
			Channel:   vcnet.ChannelID(r.U8()),
			Reliable:  r.Bool(),
			Payload:   r.Bytes32(),
		}
		if n := int(r.U16()); n > 0 {
			m.Meta = make(map[string]string, n)
			for i := 0; i < n; i++ {
				k := r.String()
				m.Meta[k] = r.String()
			}
		}
		if err := r.Close(); err != nil {
			return nil, &vcnet.ProtocolError{Reason: "malformed message body", Err: err}
		}

		return m, nil
	case FormatJSON:
		m := new(vcnet.Message)
		if err := json.Unmarshal(data[1:], m); err != nil {
			return nil, &vcnet.ProtocolError{Reason: "malformed message body", Err: err}
		}

		return m, nil
	case FormatMsgpack:
		m := new(vcnet.Message)
		if err := msgpack.Unmarshal(data[1:], m); err != nil {
			return nil, &vcnet.ProtocolError{Reason: "malformed message body", Err: err}
		}

		return m, nil
	}

	return nil, &vcnet.ProtocolError{
		Reason: fmt.Sprintf("unknown format tag %d", data[0]),
	}
}
