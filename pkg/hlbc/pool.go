package hlbc

import (
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

// decodeInts reads the fixed-width 32-bit integer constant pool: n raw
// little-endian words, each exactly 4 bytes regardless of magnitude.
func decodeInts(r *varint.Reader, n int32) ([]int32, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative int pool size %d", ErrMalformedInput, n)
	}
	out := make([]int32, n)
	for i := range out {
		v, err := varint.ReadUint32LE(r)
		if err != nil {
			return nil, fmt.Errorf("hlbc: int pool entry %d: %w", i, err)
		}
		out[i] = int32(v)
	}
	return out, nil
}

func encodeInts(w *varint.Writer, ints []int32) {
	for _, v := range ints {
		varint.WriteUint32LE(w, uint32(v))
	}
}

// decodeFloats reads the fixed-width 64-bit float constant pool.
func decodeFloats(r *varint.Reader, n int32) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative float pool size %d", ErrMalformedInput, n)
	}
	out := make([]float64, n)
	for i := range out {
		v, err := varint.ReadFloat64LE(r)
		if err != nil {
			return nil, fmt.Errorf("hlbc: float pool entry %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func encodeFloats(w *varint.Writer, floats []float64) {
	for _, v := range floats {
		varint.WriteFloat64LE(w, v)
	}
}
