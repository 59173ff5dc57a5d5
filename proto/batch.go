package proto

import (
	"fmt"

	"github.com/voxelcraft/vcnet"
)

// PackBatch concatenates serialized messages with 4-byte length
// prefixes into one packet body.
func PackBatch(msgs [][]byte) []byte {
	size := 0
	for _, m := range msgs {
		size += 4 + len(m)
	}

	body := make([]byte, 0, size)
	for _, m := range msgs {
		body = be.AppendUint32(body, uint32(len(m)))
		body = append(body, m...)
	}

	return body
}

// UnpackBatch splits a packet body into its serialized messages,
// preserving batch order.
func UnpackBatch(body []byte) ([][]byte, error) {
	var msgs [][]byte

	for off := 0; off < len(body); {
		if off+4 > len(body) {
			return nil, &vcnet.ProtocolError{Reason: "truncated batch length"}
		}

		n := int(be.Uint32(body[off : off+4]))
		off += 4

		if off+n > len(body) {
			return nil, &vcnet.ProtocolError{
				Reason: fmt.Sprintf("batch entry of %d bytes exceeds body", n),
			}
		}

		msgs = append(msgs, body[off:off+n])
		off += n
	}

	if len(msgs) == 0 {
		return nil, &vcnet.ProtocolError{Reason: "empty batch"}
	}

	return msgs, nil
}
