// Package varint implements HashLink's variable-length integer encoding
// and the small set of fixed-width primitives (ints, 64-bit floats,
// length-prefixed string/byte blocks) that every higher-level codec in
// crashlink is built from.
//
// Every function here operates on an in-memory buffer. There is no file
// or network I/O in this package, or anywhere else in the core: callers
// are responsible for getting bytes in and out.
package varint

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader is a cursor over a byte buffer. It never blocks and never touches
// the filesystem; it exists purely to track position for offset-tagged
// error messages during parsing.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reads starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current byte offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Seek repositions the cursor to an absolute offset.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return fmt.Errorf("varint: seek to %#x out of bounds (len %#x)", pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

// ReadByte consumes and returns a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("varint: unexpected end of buffer at offset %#x", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadN consumes and returns the next n bytes.
func (r *Reader) ReadN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("varint: negative read length %d at offset %#x", n, r.pos)
	}
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("varint: need %d bytes at offset %#x, have %d", n, r.pos, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Writer accumulates encoded bytes. Like Reader, it is purely in-memory.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

// Write appends a byte slice verbatim.
func (w *Writer) Write(b []byte) { w.buf = append(w.buf, b...) }

// Width is the number of bytes a VarInt was encoded in: 1, 2, or 4.
// A zero Width means the value was constructed in memory (e.g. by a
// patching operation) rather than parsed, and should be re-encoded in
// its minimal form.
type Width uint8

// VarInt is HashLink's signed variable-length integer. The top bit of the
// first byte is a continuation flag; for multi-byte forms, the next bit
// selects 2-byte vs 4-byte width and the bit after that carries the sign.
// Single-byte values are always non-negative (7 magnitude bits); 2-byte
// and 4-byte values carry 13 and 29 magnitude bits respectively, with an
// explicit sign bit rather than two's complement.
//
// Reading then writing an unmodified VarInt reproduces the exact bytes it
// was read from, even when a shorter encoding of the same value exists
// (spec section 4.1). Assigning a new Value through Set clears the
// recorded width, so the next Encode call picks the minimal form — this
// is how a patching operation naturally shrinks a value that used to need
// more bytes.
type VarInt struct {
	Value int32
	width Width
}

// New constructs a VarInt that will encode in its minimal form.
func New(value int32) VarInt {
	return VarInt{Value: value}
}

// Set assigns a new value and marks the VarInt as needing minimal
// re-encoding, as if it had never been parsed from a buffer.
func (v *VarInt) Set(value int32) {
	v.Value = value
	v.width = 0
}

// OriginalWidth reports the byte width this VarInt was parsed with, or 0
// if it was constructed in memory.
func (v VarInt) OriginalWidth() Width { return v.width }

const maxMagnitude29 = 0x20000000

// Decode reads a single VarInt from r.
func Decode(r *Reader) (VarInt, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return VarInt{}, fmt.Errorf("varint: %w", err)
	}

	if b0&0x80 == 0 {
		return VarInt{Value: int32(b0), width: 1}, nil
	}

	if b0&0x40 == 0 {
		b1, err := r.ReadByte()
		if err != nil {
			return VarInt{}, fmt.Errorf("varint: truncated 2-byte encoding: %w", err)
		}
		magnitude := (int32(b0&0x1F) << 8) | int32(b1)
		if b0&0x20 != 0 {
			magnitude = -magnitude
		}
		return VarInt{Value: magnitude, width: 2}, nil
	}

	rest, err := r.ReadN(3)
	if err != nil {
		return VarInt{}, fmt.Errorf("varint: truncated 4-byte encoding: %w", err)
	}
	magnitude := (int32(b0&0x1F) << 24) | int32(rest[0])<<16 | int32(rest[1])<<8 | int32(rest[2])
	if b0&0x20 != 0 {
		magnitude = -magnitude
	}
	return VarInt{Value: magnitude, width: 4}, nil
}

// minimalWidth returns the encoded width required for value, ignoring any
// previously recorded width.
func minimalWidth(value int32) (Width, error) {
	magnitude := value
	if magnitude < 0 {
		magnitude = -magnitude
	}
	switch {
	case magnitude < 0x80 && value >= 0:
		return 1, nil
	case magnitude < 0x2000:
		return 2, nil
	case magnitude < maxMagnitude29:
		return 4, nil
	default:
		return 0, fmt.Errorf("varint: magnitude %d can't be represented (must be < %#x)", magnitude, maxMagnitude29)
	}
}

// Encode appends v's bytes to w, preserving its original width unless it
// was constructed/mutated in memory (width 0), in which case the minimal
// encoding for its current Value is used.
func Encode(w *Writer, v VarInt) error {
	width := v.width
	if width == 0 {
		mw, err := minimalWidth(v.Value)
		if err != nil {
			return err
		}
		width = mw
	}
	return encodeWidth(w, v.Value, width)
}

// EncodeMinimal appends v's bytes in the shortest valid encoding for its
// Value, discarding any originally recorded width. Used when patching
// operations want canonical output regardless of provenance.
func EncodeMinimal(w *Writer, v VarInt) error {
	mw, err := minimalWidth(v.Value)
	if err != nil {
		return err
	}
	return encodeWidth(w, v.Value, mw)
}

func encodeWidth(w *Writer, value int32, width Width) error {
	magnitude := value
	negative := false
	if magnitude < 0 {
		magnitude = -magnitude
		negative = true
	}
	switch width {
	case 1:
		if negative || magnitude >= 0x80 {
			return fmt.Errorf("varint: value %d does not fit in 1 byte", value)
		}
		w.WriteByte(byte(magnitude))
		return nil
	case 2:
		if magnitude >= 0x2000 {
			return fmt.Errorf("varint: value %d does not fit in 2 bytes", value)
		}
		b0 := byte(magnitude>>8) | 0x80
		if negative {
			b0 |= 0x20
		}
		w.WriteByte(b0)
		w.WriteByte(byte(magnitude))
		return nil
	case 4:
		if magnitude >= maxMagnitude29 {
			return fmt.Errorf("varint: value %d does not fit in 4 bytes", value)
		}
		b0 := byte(magnitude>>24) | 0xC0
		if negative {
			b0 |= 0x20
		}
		w.WriteByte(b0)
		w.WriteByte(byte(magnitude >> 16))
		w.WriteByte(byte(magnitude >> 8))
		w.WriteByte(byte(magnitude))
		return nil
	default:
		return fmt.Errorf("varint: invalid width %d", width)
	}
}

// DecodeList reads a count-prefixed list of VarInts: an unsigned VarInt
// length, followed by that many VarInts (HashLink's "Regs"/"JumpOffsets"
// wire shape). The count's own VarInt is returned alongside the values
// so that re-encoding can preserve its original width.
func DecodeList(r *Reader) (VarInt, []VarInt, error) {
	n, err := Decode(r)
	if err != nil {
		return VarInt{}, nil, fmt.Errorf("varint: list count: %w", err)
	}
	if n.Value < 0 {
		return VarInt{}, nil, fmt.Errorf("varint: negative list count %d", n.Value)
	}
	out := make([]VarInt, n.Value)
	for i := range out {
		v, err := Decode(r)
		if err != nil {
			return VarInt{}, nil, fmt.Errorf("varint: list element %d: %w", i, err)
		}
		out[i] = v
	}
	return n, out, nil
}

// EncodeList writes a count-prefixed list of VarInts, preserving the
// length's own width semantics.
func EncodeList(w *Writer, count VarInt, values []VarInt) error {
	if err := Encode(w, count); err != nil {
		return fmt.Errorf("varint: list count: %w", err)
	}
	for i, v := range values {
		if err := Encode(w, v); err != nil {
			return fmt.Errorf("varint: list element %d: %w", i, err)
		}
	}
	return nil
}

// ReadUint32LE reads a fixed 4-byte little-endian unsigned integer.
func ReadUint32LE(r *Reader) (uint32, error) {
	b, err := r.ReadN(4)
	if err != nil {
		return 0, fmt.Errorf("varint: uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteUint32LE appends a fixed 4-byte little-endian unsigned integer.
func WriteUint32LE(w *Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

// ReadFloat64LE reads a fixed 8-byte little-endian IEEE-754 double.
func ReadFloat64LE(r *Reader) (float64, error) {
	b, err := r.ReadN(8)
	if err != nil {
		return 0, fmt.Errorf("varint: float64: %w", err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// WriteFloat64LE appends a fixed 8-byte little-endian IEEE-754 double.
func WriteFloat64LE(w *Writer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.Write(b[:])
}
