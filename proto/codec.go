package proto

import (
	"fmt"

	"github.com/voxelcraft/vcnet"
)

// A Codec runs the body pipeline in both directions:
//
//	encode: serialize+batch → compress → encrypt → fragment
//	decode: reassemble → decrypt → decompress → unbatch → deserialize
//
// A Codec is safe for concurrent use.
type Codec struct {
	format      Format
	compression Compression
	level       int
	cipher      *Cipher
	maxFragment int
	strict      bool

	metrics *vcnet.Metrics
}

// NewCodec builds a Codec from the shared codec configuration.
func NewCodec(cfg vcnet.CodecConfig, metrics *vcnet.Metrics) (*Codec, error) {
	format, err := ParseFormat(cfg.Serialization)
	if err != nil {
		return nil, err
	}

	compression := CompressionNone
	if cfg.EnableCompression {
		compression, err = ParseCompression(cfg.CompressionAlgo)
		if err != nil {
			return nil, err
		}
	}

	var cipher *Cipher
	if cfg.EnableEncryption {
		cipher, err = NewCipher(cfg.Secret)
		if err != nil {
			return nil, err
		}
	}

	maxFragment := cfg.MaxFragmentSize
	if maxFragment <= 0 {
		maxFragment = 1024
	}

	return &Codec{
		format:      format,
		compression: compression,
		level:       cfg.CompressionLevel,
		cipher:      cipher,
		maxFragment: maxFragment,
		strict:      cfg.StrictVersionMatching,
		metrics:     metrics,
	}, nil
}

// Strict reports whether version matching is exact.
func (c *Codec) Strict() bool { return c.strict }

// An Outgoing is one encoded logical packet, ready for framing. When
// the body exceeded the fragment size, Bodies holds one entry per
// fragment and Flags has FlagFragmented set.
type Outgoing struct {
	Bodies [][]byte
	Flags  Flags
}

// EncodeBody runs msgs through the outbound pipeline. All messages
// must belong to the same channel; the caller assigns consecutive
// sequence numbers to the resulting bodies.
func (c *Codec) EncodeBody(msgs []*vcnet.Message) (Outgoing, error) {
	if len(msgs) == 0 {
		return Outgoing{}, fmt.Errorf("no messages to encode")
	}

	parts := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := MarshalMessage(c.format, m)
		if err != nil {
			return Outgoing{}, err
		}

		parts = append(parts, data)
	}

	body := PackBatch(parts)

	var flags Flags

	if c.compression != CompressionNone {
		compressed, err := Compress(c.compression, c.level, body)
		if err != nil {
			return Outgoing{}, err
		}

		// Keep the smaller representation.
		if len(compressed) < len(body) {
			body = compressed
			flags |= FlagCompressed
		}
	}

	if c.cipher != nil {
		sealed, err := c.cipher.Encrypt(body)
		if err != nil {
			return Outgoing{}, err
		}

		body = sealed
		flags |= FlagEncrypted
	}

	if len(body) > c.maxFragment {
		frags, err := Fragment(body, c.maxFragment)
		if err != nil {
			return Outgoing{}, err
		}

		return Outgoing{Bodies: frags, Flags: flags | FlagFragmented}, nil
	}

	return Outgoing{Bodies: [][]byte{body}, Flags: flags}, nil
}

// DecodeBody runs a complete (reassembled) body through the inbound
// pipeline and returns its messages in batch order.
func (c *Codec) DecodeBody(flags Flags, body []byte) ([]*vcnet.Message, error) {
	var err error

	if flags.Has(FlagEncrypted) {
		if c.cipher == nil {
			return nil, &vcnet.ProtocolError{Reason: "encrypted body but encryption disabled"}
		}

		body, err = c.cipher.Decrypt(body)
		if err != nil {
			return nil, err
		}
	}

	if flags.Has(FlagCompressed) {
		if c.compression == CompressionNone {
			return nil, &vcnet.ProtocolError{Reason: "compressed body but compression disabled"}
		}

		body, err = Decompress(c.compression, body)
		if err != nil {
			return nil, err
		}
	}

	parts, err := UnpackBatch(body)
	if err != nil {
		return nil, err
	}

	msgs := make([]*vcnet.Message, 0, len(parts))
	for _, part := range parts {
		m, err := UnmarshalMessage(part)
		if err != nil {
			return nil, err
		}
		if !m.Type.Valid() {
			return nil, &vcnet.ProtocolError{
				Reason: fmt.Sprintf("unknown message type %d", uint8(m.Type)),
			}
		}
		if m.Channel >= vcnet.ChannelCount {
			return nil, &vcnet.ProtocolError{
				Reason: fmt.Sprintf("invalid channel %d", uint8(m.Channel)),
			}
		}

		msgs = append(msgs, m)
	}

	return msgs, nil
}
