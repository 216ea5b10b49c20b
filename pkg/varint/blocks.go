package varint

import (
	"fmt"
	"strings"
)

// StringsBlock is HashLink's shared string pool wire shape: a 4-byte
// little-endian length of a single concatenated, NUL-separated blob,
// followed by one unsigned VarInt per string giving that string's byte
// length within the blob.
type StringsBlock struct {
	Values  []string
	Lengths []VarInt
}

// DecodeStringsBlock reads a StringsBlock containing exactly n strings.
func DecodeStringsBlock(r *Reader, n int) (StringsBlock, error) {
	size, err := ReadUint32LE(r)
	if err != nil {
		return StringsBlock{}, fmt.Errorf("varint: strings block size: %w", err)
	}
	blob, err := r.ReadN(int(size))
	if err != nil {
		return StringsBlock{}, fmt.Errorf("varint: strings block blob: %w", err)
	}

	out := StringsBlock{Values: make([]string, n), Lengths: make([]VarInt, n)}
	pos := 0
	for i := 0; i < n; i++ {
		length, err := Decode(r)
		if err != nil {
			return StringsBlock{}, fmt.Errorf("varint: strings block length %d: %w", i, err)
		}
		if length.Value < 0 || pos+int(length.Value) > len(blob) {
			return StringsBlock{}, fmt.Errorf("varint: strings block entry %d out of bounds", i)
		}
		out.Values[i] = string(blob[pos : pos+int(length.Value)])
		out.Lengths[i] = length
		pos += int(length.Value) + 1 // skip the NUL terminator
	}
	return out, nil
}

// EncodeStringsBlock writes a StringsBlock back to its wire shape.
func EncodeStringsBlock(w *Writer, sb StringsBlock) error {
	var blob strings.Builder
	for _, s := range sb.Values {
		blob.WriteString(s)
		blob.WriteByte(0)
	}
	raw := blob.String()
	// HashLink writes the NUL after every string, including the last, and
	// the length field covers the whole blob with every separator intact.
	WriteUint32LE(w, uint32(len(raw)))
	w.Write([]byte(raw))
	for i, s := range sb.Values {
		// A recorded length keeps its width only while it still matches
		// the string; missing or stale entries are encoded minimally.
		length := New(int32(len(s)))
		if i < len(sb.Lengths) && sb.Lengths[i].Value == int32(len(s)) {
			length = sb.Lengths[i]
		}
		if err := Encode(w, length); err != nil {
			return fmt.Errorf("varint: strings block length %d: %w", i, err)
		}
	}
	return nil
}

// BytesBlock is HashLink's shared raw-byte pool: a 4-byte length of a
// concatenated blob, followed by one unsigned VarInt per entry giving
// that entry's starting offset within the blob (not its length — the
// next entry's offset, or the blob's end, delimits it).
type BytesBlock struct {
	Values []([]byte)
}

// DecodeBytesBlock reads a BytesBlock containing exactly n entries.
func DecodeBytesBlock(r *Reader, n int) (BytesBlock, error) {
	size, err := ReadUint32LE(r)
	if err != nil {
		return BytesBlock{}, fmt.Errorf("varint: bytes block size: %w", err)
	}
	raw, err := r.ReadN(int(size))
	if err != nil {
		return BytesBlock{}, fmt.Errorf("varint: bytes block blob: %w", err)
	}
	positions := make([]int32, n)
	for i := 0; i < n; i++ {
		pos, err := Decode(r)
		if err != nil {
			return BytesBlock{}, fmt.Errorf("varint: bytes block position %d: %w", i, err)
		}
		positions[i] = pos.Value
	}
	out := BytesBlock{Values: make([][]byte, n)}
	for i := 0; i < n; i++ {
		start := positions[i]
		end := int32(len(raw))
		if i+1 < n {
			end = positions[i+1]
		}
		if start < 0 || end > int32(len(raw)) || start > end {
			return BytesBlock{}, fmt.Errorf("varint: bytes block entry %d out of bounds", i)
		}
		out.Values[i] = raw[start:end]
	}
	return out, nil
}

// EncodeBytesBlock writes a BytesBlock back to its wire shape.
func EncodeBytesBlock(w *Writer, bb BytesBlock) error {
	var raw []byte
	positions := make([]VarInt, len(bb.Values))
	pos := int32(0)
	for i, v := range bb.Values {
		positions[i] = New(pos)
		raw = append(raw, v...)
		pos += int32(len(v))
	}
	WriteUint32LE(w, uint32(len(raw)))
	w.Write(raw)
	for i, p := range positions {
		if err := Encode(w, p); err != nil {
			return fmt.Errorf("varint: bytes block position %d: %w", i, err)
		}
	}
	return nil
}
