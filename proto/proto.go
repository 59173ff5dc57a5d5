/*
Package proto implements the VC01 wire codec: packet framing with
checksums, body serialization, compression, encryption, fragmentation
and batching.

Packet layout (big endian):

	offset  size  field
	0       4     magic              = 0x56433031
	4       1     version
	5       1     packet_type
	6       4     body_length
	10      4     sequence_number
	14      4     acknowledgment_no
	18      2     checksum           (CRC-16/CCITT over body)
	20      1     flags              bit0 compressed, bit1 encrypted,
	                                 bit2 fragmented, bit3 reliable
	21      1     reserved           = 0
	22      ...   body

Fragmented packets carry a 4-byte prefix at body offset 0:
fragment_index (2) + fragment_count (2). Fragments of one logical
packet occupy consecutive sequence numbers starting at the index-0
fragment, so (peer, seq-index) identifies the assembly entry.

Batched bodies are length-prefixed messages: msg_length (4) followed
by msg_length bytes, repeated.
*/
package proto

import (
	"fmt"

	"github.com/voxelcraft/vcnet"
)

// HeaderSize is the fixed size of the packet header in bytes.
const HeaderSize = 22

// A PacketType tags what the packet body carries.
type PacketType uint8

const (
	// PktData carries one or more serialized messages.
	PktData PacketType = iota + 1

	// PktAck carries no body; only the header's acknowledgment
	// number is meaningful.
	PktAck
)

// Valid reports whether t is a known packet type.
func (t PacketType) Valid() bool { return t == PktData || t == PktAck }

// Flags is the packet header flag byte.
type Flags uint8

const (
	FlagCompressed Flags = 1 << iota
	FlagEncrypted
	FlagFragmented
	FlagReliable
)

func (f Flags) Has(o Flags) bool { return f&o != 0 }

// A Header is the decoded packet header.
type Header struct {
	Version  vcnet.Version
	Type     PacketType
	BodyLen  uint32
	Seq      uint32
	Ack      uint32
	Checksum uint16
	Flags    Flags
}

// EncodePacket frames body under h. The checksum and body length
// fields of h are ignored; they are computed here.
func EncodePacket(h Header, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))

	be.PutUint32(buf[0:4], vcnet.Magic)
	buf[4] = uint8(h.Version)
	buf[5] = uint8(h.Type)
	be.PutUint32(buf[6:10], uint32(len(body)))
	be.PutUint32(buf[10:14], h.Seq)
	be.PutUint32(buf[14:18], h.Ack)
	be.PutUint16(buf[18:20], BodyChecksum(body))
	buf[20] = uint8(h.Flags)
	buf[21] = 0

	copy(buf[HeaderSize:], body)

	return buf
}

// DecodePacket verifies the magic, version compatibility, length and
// checksum of data and returns the header and body. Failures are
// ProtocolErrors to be counted and dropped locally.
func DecodePacket(data []byte, strict bool) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, &vcnet.ProtocolError{Reason: "truncated header"}
	}

	if magic := be.Uint32(data[0:4]); magic != vcnet.Magic {
		return Header{}, nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("bad magic 0x%08x", magic),
		}
	}

	h := Header{
		Version:  vcnet.Version(data[4]),
		Type:     PacketType(data[5]),
		BodyLen:  be.Uint32(data[6:10]),
		Seq:      be.Uint32(data[10:14]),
		Ack:      be.Uint32(data[14:18]),
		Checksum: be.Uint16(data[18:20]),
		Flags:    Flags(data[20]),
	}

	if !vcnet.ProtoVersion.Compatible(h.Version, strict) {
		return Header{}, nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("incompatible version 0x%02x", uint8(h.Version)),
		}
	}

	if !h.Type.Valid() {
		return Header{}, nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("unknown packet type %d", uint8(h.Type)),
		}
	}

	body := data[HeaderSize:]
	if uint32(len(body)) != h.BodyLen {
		return Header{}, nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("body length %d != header %d", len(body), h.BodyLen),
		}
	}

	if sum := BodyChecksum(body); sum != h.Checksum {
		return Header{}, nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("checksum 0x%04x != header 0x%04x", sum, h.Checksum),
		}
	}

	return h, body, nil
}
