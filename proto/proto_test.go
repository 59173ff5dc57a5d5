package proto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/voxelcraft/vcnet"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:  PktData,
		Seq:   17,
		Ack:   9,
		Flags: FlagReliable | FlagCompressed,
	}
	body := []byte("payload bytes")

	pkt := EncodePacket(h, body)
	if len(pkt) != HeaderSize+len(body) {
		t.Fatalf("packet length %d, want %d", len(pkt), HeaderSize+len(body))
	}

	gotH, gotBody, err := DecodePacket(pkt, true)
	if err != nil {
		t.Fatal(err)
	}
	if gotH.Seq != 17 || gotH.Ack != 9 || gotH.Type != PktData {
		t.Errorf("header = %+v", gotH)
	}
	if !gotH.Flags.Has(FlagReliable) || !gotH.Flags.Has(FlagCompressed) || gotH.Flags.Has(FlagEncrypted) {
		t.Errorf("flags = %#x", gotH.Flags)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body = %q", gotBody)
	}
}

func TestDecodePacketRejects(t *testing.T) {
	good := EncodePacket(Header{Version: vcnet.ProtoVersion, Type: PktData, Seq: 1}, []byte("abc"))

	corrupt := func(mut func([]byte)) []byte {
		pkt := append([]byte(nil), good...)
		mut(pkt)
		return pkt
	}

	for _, tt := range []struct {
		name string
		pkt  []byte
	}{
		{"short", good[:HeaderSize-1]},
		{"bad magic", corrupt(func(p []byte) { p[0] ^= 0xff })},
		{"bad type", corrupt(func(p []byte) { p[5] = 0x7f })},
		{"truncated body", good[:len(good)-1]},
		{"flipped body bit", corrupt(func(p []byte) { p[HeaderSize] ^= 1 })},
	} {
		_, _, err := DecodePacket(tt.pkt, true)
		var perr *vcnet.ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("%s: err = %v, want ProtocolError", tt.name, err)
		}
	}
}

func TestDecodePacketVersion(t *testing.T) {
	pkt := EncodePacket(Header{Version: vcnet.ProtoVersion, Type: PktData}, nil)

	// Bump the minor version nibble.
	pkt[4] = uint8(vcnet.ProtoVersion) + 1

	if _, _, err := DecodePacket(pkt, false); err != nil {
		t.Errorf("minor mismatch rejected in lenient mode: %v", err)
	}
	if _, _, err := DecodePacket(pkt, true); err == nil {
		t.Error("minor mismatch accepted in strict mode")
	}

	pkt[4] = uint8(vcnet.ProtoVersion) + 0x10
	if _, _, err := DecodePacket(pkt, false); err == nil {
		t.Error("major mismatch accepted")
	}
}

func TestFragment(t *testing.T) {
	for _, tt := range []struct {
		size    int
		maxSize int
		want    int
	}{
		{100, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{3000, 1024, 3},
		{0, 1024, 1},
	} {
		body := make([]byte, tt.size)
		for i := range body {
			body[i] = byte(i)
		}

		frags, err := Fragment(body, tt.maxSize)
		if err != nil {
			t.Fatal(err)
		}
		if len(frags) != tt.want {
			t.Errorf("size %d: %d fragments, want %d", tt.size, len(frags), tt.want)
			continue
		}

		asm := NewAssembler(DefaultAssemblyExpiry, &vcnet.Metrics{})
		var got []byte
		for i, f := range frags {
			// Consecutive seqs, the way the send path numbers them.
			got, err = asm.Add(vcnet.PeerIDNil, uint32(10+i), f)
			if err != nil {
				t.Fatal(err)
			}
			if got != nil && i != len(frags)-1 {
				t.Fatalf("size %d: complete after fragment %d", tt.size, i)
			}
		}
		if !bytes.Equal(got, body) {
			t.Errorf("size %d: reassembly mismatch", tt.size)
		}
	}
}

func TestAssemblerDuplicateFragment(t *testing.T) {
	body := make([]byte, 2500)
	frags, err := Fragment(body, 1024)
	if err != nil {
		t.Fatal(err)
	}

	asm := NewAssembler(DefaultAssemblyExpiry, &vcnet.Metrics{})
	asm.Add(vcnet.PeerIDNil, 1, frags[0])
	asm.Add(vcnet.PeerIDNil, 1, frags[0])
	asm.Add(vcnet.PeerIDNil, 2, frags[1])
	got, err := asm.Add(vcnet.PeerIDNil, 3, frags[2])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Fatal("duplicate fragment broke reassembly")
	}
}

func TestBatchRoundTrip(t *testing.T) {
	msgs := [][]byte{[]byte("one"), {}, []byte("three")}

	got, err := UnpackBatch(PackBatch(msgs))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("%d messages, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if !bytes.Equal(got[i], msgs[i]) {
			t.Errorf("message %d = %q, want %q", i, got[i], msgs[i])
		}
	}
}

func TestCompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("voxelcraft voxelcraft "), 100)

	for _, algo := range []Compression{CompressionLZ4, CompressionZstd, CompressionGzip, CompressionZlib, CompressionSnappy} {
		packed, err := Compress(algo, 0, src)
		if err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		if len(packed) >= len(src) {
			t.Errorf("%v: no compression gain on repetitive input", algo)
		}

		got, err := Decompress(algo, packed)
		if err != nil {
			t.Fatalf("%v: %v", algo, err)
		}
		if !bytes.Equal(got, src) {
			t.Errorf("%v: round trip mismatch", algo)
		}
	}
}

func TestCipher(t *testing.T) {
	c, err := NewCipher("a shared secret")
	if err != nil {
		t.Fatal(err)
	}

	plain := []byte("state of the world")
	sealed, err := c.Encrypt(plain)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatal("ciphertext contains plaintext")
	}

	got, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("round trip mismatch")
	}

	sealed[len(sealed)-1] ^= 1
	if _, err := c.Decrypt(sealed); err == nil {
		t.Fatal("tampered ciphertext accepted")
	}
}

func codecConfigs() map[string]vcnet.CodecConfig {
	return map[string]vcnet.CodecConfig{
		"binary":         {Serialization: "binary"},
		"json":           {Serialization: "json"},
		"msgpack":        {Serialization: "msgpack"},
		"lz4":            {Serialization: "binary", EnableCompression: true, CompressionAlgo: "lz4"},
		"zstd":           {Serialization: "binary", EnableCompression: true, CompressionAlgo: "zstd"},
		"encrypted":      {Serialization: "binary", EnableEncryption: true, Secret: "hunter2"},
		"zstd+encrypted": {Serialization: "msgpack", EnableCompression: true, CompressionAlgo: "zstd", EnableEncryption: true, Secret: "hunter2"},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for name, cfg := range codecConfigs() {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(cfg, &vcnet.Metrics{})
			if err != nil {
				t.Fatal(err)
			}

			in := vcnet.NewMessage(vcnet.MsgChat, []byte("hello world"))
			in.Sender = 3
			in.Seq = 7

			out, err := codec.EncodeBody([]*vcnet.Message{in})
			if err != nil {
				t.Fatal(err)
			}

			var msgs []*vcnet.Message
			for _, body := range out.Bodies {
				msgs, err = codec.DecodeBody(out.Flags, body)
				if err != nil {
					t.Fatal(err)
				}
			}
			if len(msgs) != 1 {
				t.Fatalf("%d messages, want 1", len(msgs))
			}

			got := msgs[0]
			if got.Type != vcnet.MsgChat || got.Sender != 3 || got.Seq != 7 {
				t.Errorf("envelope mismatch: %+v", got)
			}
			if !bytes.Equal(got.Payload, in.Payload) {
				t.Errorf("payload = %q", got.Payload)
			}
		})
	}
}

func TestCodecFragmentsLargeBody(t *testing.T) {
	codec, err := NewCodec(vcnet.CodecConfig{Serialization: "binary", MaxFragmentSize: 512}, &vcnet.Metrics{})
	if err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	in := vcnet.NewMessage(vcnet.MsgStateSync, payload)

	out, err := codec.EncodeBody([]*vcnet.Message{in})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Bodies) < 2 {
		t.Fatalf("%d bodies, want fragmentation", len(out.Bodies))
	}
	if !out.Flags.Has(FlagFragmented) {
		t.Fatal("fragmented flag not set")
	}

	asm := NewAssembler(DefaultAssemblyExpiry, &vcnet.Metrics{})
	var whole []byte
	for i, frag := range out.Bodies {
		whole, err = asm.Add(vcnet.PeerIDNil, uint32(100+i), frag)
		if err != nil {
			t.Fatal(err)
		}
	}
	if whole == nil {
		t.Fatal("reassembly incomplete")
	}

	msgs, err := codec.DecodeBody(out.Flags&^FlagFragmented, whole)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatal("large payload did not survive the round trip")
	}
}

func TestUnpackBatchEmpty(t *testing.T) {
	if _, err := UnpackBatch(nil); err == nil {
		t.Fatal("empty batch accepted")
	}
}
