package snapshot

import (
	"github.com/voxelcraft/vcnet"
)

// The delta encoding is a byte-level diff between two full snapshot
// encodings. It walks both buffers in lockstep and emits copy runs
// (take n bytes from the base) and replace runs (take n literal bytes
// from the delta), followed by a literal tail where the newer
// encoding is longer than the base.
//
// Layout:
//
//	base_seq  u64
//	op_count  u32
//	ops:      kind u8 (0 copy, 1 replace), length u32,
//	          literal bytes when kind is replace
//	tail      bytes32

const (
	opCopy    = 0
	opReplace = 1
)

// ComputeDelta encodes newer relative to base. Both arguments are
// full snapshot encodings as produced by Snapshot.MarshalBinary.
func ComputeDelta(baseSeq uint64, base, newer []byte) []byte {
	var w vcnet.Writer
	w.U64(baseSeq)

	n := len(base)
	if len(newer) < n {
		n = len(newer)
	}

	// Count ops first so the header can be written up front.
	var count uint32
	for i := 0; i < n; {
		j := i
		same := base[i] == newer[i]
		for j < n && (base[j] == newer[j]) == same {
			j++
		}
		count++
		i = j
	}
	w.U32(count)

	for i := 0; i < n; {
		j := i
		same := base[i] == newer[i]
		for j < n && (base[j] == newer[j]) == same {
			j++
		}
		if same {
			w.U8(opCopy)
			w.U32(uint32(j - i))
		} else {
			w.U8(opReplace)
			w.U32(uint32(j - i))
			w.Raw(newer[i:j])
		}
		i = j
	}

	w.Bytes32(newer[n:])

	return w.Bytes()
}

// DeltaBase reads the base sequence a delta was computed against.
func DeltaBase(delta []byte) uint64 {
	return vcnet.NewReader(delta).U64()
}

// ApplyDelta reconstructs the newer encoding from the base it was
// computed against. It returns the sequence of the required base so
// the caller can verify it holds the right one.
func ApplyDelta(base, delta []byte) (out []byte, baseSeq uint64, err error) {
	r := vcnet.NewReader(delta)
	baseSeq = r.U64()

	// Every op takes at least 5 bytes, so the wire count cannot
	// exceed what the remaining bytes could hold.
	count := int(r.U32())
	if count > len(r.Rest())/5 {
		return nil, baseSeq, &vcnet.ProtocolError{Reason: "delta op count exceeds body"}
	}
	off := 0
	for i := 0; i < count; i++ {
		kind := r.U8()
		length := int(r.U32())
		switch kind {
		case opCopy:
			if off+length > len(base) {
				return nil, baseSeq, &vcnet.ProtocolError{Reason: "delta copy past end of base"}
			}
			out = append(out, base[off:off+length]...)
		case opReplace:
			out = append(out, r.Raw(length)...)
		default:
			return nil, baseSeq, &vcnet.ProtocolError{Reason: "unknown delta op"}
		}
		off += length
	}

	out = append(out, r.Bytes32()...)

	if err := r.Close(); err != nil {
		return nil, baseSeq, &vcnet.ProtocolError{Reason: "malformed delta", Err: err}
	}

	return out, baseSeq, nil
}
