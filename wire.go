package vcnet

import (
	"encoding/binary"
	"errors"
	"math"
)

var be = binary.BigEndian

// ErrShortRead reports a truncated wire structure.
var ErrShortRead = errors.New("short read")

// A Writer builds big-endian wire structures. The zero value is ready
// to use.
type Writer struct {
	b []byte
}

func (w *Writer) Bytes() []byte { return w.b }

func (w *Writer) U8(v uint8)   { w.b = append(w.b, v) }
func (w *Writer) U16(v uint16) { w.b = be.AppendUint16(w.b, v) }
func (w *Writer) U32(v uint32) { w.b = be.AppendUint32(w.b, v) }
func (w *Writer) U64(v uint64) { w.b = be.AppendUint64(w.b, v) }
func (w *Writer) I64(v int64)  { w.U64(uint64(v)) }
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// Raw appends b without a length prefix.
func (w *Writer) Raw(b []byte) { w.b = append(w.b, b...) }

// Bytes16 appends b with a 16-bit length prefix.
func (w *Writer) Bytes16(b []byte) {
	w.U16(uint16(len(b)))
	w.Raw(b)
}

// Bytes32 appends b with a 32-bit length prefix.
func (w *Writer) Bytes32(b []byte) {
	w.U32(uint32(len(b)))
	w.Raw(b)
}

// String appends s with a 16-bit length prefix.
func (w *Writer) String(s string) { w.Bytes16([]byte(s)) }

// A Reader consumes big-endian wire structures. The first failure
// latches: all following reads return zero values and Err reports the
// error.
type Reader struct {
	b   []byte
	off int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) Err() error { return r.err }

// Rest returns the unread remainder.
func (r *Reader) Rest() []byte { return r.b[r.off:] }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = ErrShortRead
		return nil
	}

	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

// Raw consumes exactly n bytes.
func (r *Reader) Raw(n int) []byte { return r.take(n) }

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return be.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return be.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return be.Uint64(b)
}

func (r *Reader) I64() int64 { return int64(r.U64()) }

func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *Reader) Bool() bool { return r.U8() != 0 }

func (r *Reader) Bytes16() []byte {
	n := int(r.U16())
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *Reader) Bytes32() []byte {
	n := int(r.U32())
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *Reader) String() string { return string(r.Bytes16()) }

// Close reports an error if unread bytes remain, mirroring the
// trailing data checks of the low-level protocol.
func (r *Reader) Close() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return errors.New("trailing data")
	}

	return nil
}
