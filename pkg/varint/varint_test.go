package varint

import "testing"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		bytes []byte
		value int32
	}{
		{"single byte zero", []byte{0x00}, 0},
		{"single byte max", []byte{0x7F}, 127},
		{"two byte positive", []byte{0x80 | 0x01, 0x00}, 256},
		{"two byte negative", []byte{0x80 | 0x20 | 0x01, 0x00}, -256},
		{"four byte positive", []byte{0xC0, 0x00, 0x20, 0x00}, 0x2000},
		{"four byte negative", []byte{0xC0 | 0x20, 0x00, 0x20, 0x00}, -0x2000},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := NewReader(c.bytes)
			v, err := Decode(r)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if v.Value != c.value {
				t.Errorf("Value = %d, want %d", v.Value, c.value)
			}
			if r.Remaining() != 0 {
				t.Errorf("Remaining() = %d, want 0", r.Remaining())
			}

			w := NewWriter()
			if err := Encode(w, v); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(w.Bytes()) != string(c.bytes) {
				t.Errorf("Encode() = %x, want %x (non-canonical width must round-trip)", w.Bytes(), c.bytes)
			}
		})
	}
}

func TestEncodeMinimalShrinksNonCanonicalWidth(t *testing.T) {
	// A value of 5 encoded with the wasteful 4-byte form must re-emit as
	// 4 bytes via Encode (preserving provenance), but as 1 byte via
	// EncodeMinimal (canonical form, used after mutation).
	r := NewReader([]byte{0xC0, 0x00, 0x00, 0x05})
	v, err := Decode(r)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if v.Value != 5 {
		t.Fatalf("Value = %d, want 5", v.Value)
	}

	w := NewWriter()
	_ = Encode(w, v)
	if len(w.Bytes()) != 4 {
		t.Errorf("Encode() preserved width = %d bytes, want 4", len(w.Bytes()))
	}

	w2 := NewWriter()
	_ = EncodeMinimal(w2, v)
	if len(w2.Bytes()) != 1 || w2.Bytes()[0] != 5 {
		t.Errorf("EncodeMinimal() = %x, want [05]", w2.Bytes())
	}
}

func TestSetClearsWidthForMinimalReencode(t *testing.T) {
	r := NewReader([]byte{0xC0, 0x00, 0x00, 0x05})
	v, _ := Decode(r)
	v.Set(5)

	w := NewWriter()
	if err := Encode(w, v); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(w.Bytes()) != 1 {
		t.Errorf("Encode() after Set = %d bytes, want 1 (minimal)", len(w.Bytes()))
	}
}

func TestDecodeTruncated(t *testing.T) {
	r := NewReader([]byte{0x80})
	if _, err := Decode(r); err == nil {
		t.Error("Decode() on truncated 2-byte form: want error, got nil")
	}
}

func TestStringsBlockRoundTrip(t *testing.T) {
	sb := StringsBlock{
		Values:  []string{"hello", "world", ""},
		Lengths: make([]VarInt, 3),
	}
	w := NewWriter()
	if err := EncodeStringsBlock(w, sb); err != nil {
		t.Fatalf("EncodeStringsBlock() error = %v", err)
	}

	r := NewReader(w.Bytes())
	got, err := DecodeStringsBlock(r, 3)
	if err != nil {
		t.Fatalf("DecodeStringsBlock() error = %v", err)
	}
	for i, want := range sb.Values {
		if got.Values[i] != want {
			t.Errorf("Values[%d] = %q, want %q", i, got.Values[i], want)
		}
	}

	w2 := NewWriter()
	if err := EncodeStringsBlock(w2, got); err != nil {
		t.Fatalf("re-encode error = %v", err)
	}
	if string(w2.Bytes()) != string(w.Bytes()) {
		t.Errorf("round trip not byte-identical: got %x, want %x", w2.Bytes(), w.Bytes())
	}
}

func TestBytesBlockRoundTrip(t *testing.T) {
	bb := BytesBlock{Values: [][]byte{{1, 2, 3}, {}, {0xFF}}}
	w := NewWriter()
	if err := EncodeBytesBlock(w, bb); err != nil {
		t.Fatalf("EncodeBytesBlock() error = %v", err)
	}

	r := NewReader(w.Bytes())
	got, err := DecodeBytesBlock(r, 3)
	if err != nil {
		t.Fatalf("DecodeBytesBlock() error = %v", err)
	}
	for i, want := range bb.Values {
		if string(got.Values[i]) != string(want) {
			t.Errorf("Values[%d] = %x, want %x", i, got.Values[i], want)
		}
	}
}
