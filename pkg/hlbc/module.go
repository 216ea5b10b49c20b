package hlbc

import (
	"bytes"
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/tracelog"
	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

// magic is the fixed 3-byte signature every HashLink bytecode file opens
// with.
var magic = [3]byte{'H', 'L', 'B'}

// Module is a fully parsed HashLink bytecode file: its header, every
// constant pool, the type/global/native/function/constant tables, and
// enough of the original wire metadata (varint widths, section presence
// flags) to reproduce the exact input bytes on an unmodified round trip.
type Module struct {
	Version uint8
	Flags   varint.VarInt

	HasDebugInfo bool

	Ints       []int32
	Floats     []float64
	Strings    varint.StringsBlock
	Bytes      *varint.BytesBlock // nil when Version < 5
	DebugFiles *varint.StringsBlock // nil when !HasDebugInfo

	Types       []Type
	GlobalTypes []varint.VarInt // type pool indices, one per global slot
	Natives     []Native
	Functions   []Function
	Constants   []Constant // nil when Version < 4

	Entrypoint varint.VarInt // function index

	// Counts as they appeared on the wire, preserved for exact
	// re-encoding of their VarInt width.
	nInts, nFloats, nStrings, nBytes       varint.VarInt
	nTypes, nGlobals, nNatives, nFunctions varint.VarInt
	nConstants, nDebugFiles                varint.VarInt
}

// Parse decodes a HashLink bytecode module from buf. It does not search
// for the magic bytes elsewhere in the buffer — the caller is expected
// to hand Parse exactly the bytecode payload, matching spec.md §6.1's
// byte-buffer-in contract (the "find magic anywhere in a larger file"
// behavior of the original tooling is a caller-side concern).
func Parse(buf []byte) (*Module, error) {
	r := varint.NewReader(buf)

	got, err := r.ReadN(3)
	if err != nil {
		return nil, fmt.Errorf("hlbc: magic: %w", err)
	}
	if !bytes.Equal(got, magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformedInput, got)
	}

	versionByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("hlbc: version: %w", err)
	}
	m := &Module{Version: versionByte}

	if m.Flags, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: flags: %w", err)
	}
	m.HasDebugInfo = m.Flags.Value&1 != 0

	if m.nInts, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: nints: %w", err)
	}
	if m.nFloats, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: nfloats: %w", err)
	}
	if m.nStrings, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: nstrings: %w", err)
	}

	if m.Version >= 5 {
		if m.nBytes, err = varint.Decode(r); err != nil {
			return nil, fmt.Errorf("hlbc: nbytes: %w", err)
		}
	}

	if m.nTypes, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: ntypes: %w", err)
	}
	if m.nGlobals, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: nglobals: %w", err)
	}
	if m.nNatives, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: nnatives: %w", err)
	}
	if m.nFunctions, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: nfunctions: %w", err)
	}

	if m.Version >= 4 {
		if m.nConstants, err = varint.Decode(r); err != nil {
			return nil, fmt.Errorf("hlbc: nconstants: %w", err)
		}
	}

	if m.Entrypoint, err = varint.Decode(r); err != nil {
		return nil, fmt.Errorf("hlbc: entrypoint: %w", err)
	}
	tracelog.Debug("parsed header: version=%d nfunctions=%d debug=%v", m.Version, m.nFunctions.Value, m.HasDebugInfo)

	if m.Ints, err = decodeInts(r, m.nInts.Value); err != nil {
		return nil, fmt.Errorf("hlbc: ints: %w", err)
	}
	if m.Floats, err = decodeFloats(r, m.nFloats.Value); err != nil {
		return nil, fmt.Errorf("hlbc: floats: %w", err)
	}
	if m.Strings, err = varint.DecodeStringsBlock(r, int(m.nStrings.Value)); err != nil {
		return nil, fmt.Errorf("hlbc: strings: %w", err)
	}
	tracelog.Trace("decoded strings pool: %d entries", len(m.Strings.Values))

	if m.Version >= 5 {
		bb, err := varint.DecodeBytesBlock(r, int(m.nBytes.Value))
		if err != nil {
			return nil, fmt.Errorf("hlbc: bytes: %w", err)
		}
		m.Bytes = &bb
	}

	if m.HasDebugInfo {
		if m.nDebugFiles, err = varint.Decode(r); err != nil {
			return nil, fmt.Errorf("hlbc: ndebugfiles: %w", err)
		}
		df, err := varint.DecodeStringsBlock(r, int(m.nDebugFiles.Value))
		if err != nil {
			return nil, fmt.Errorf("hlbc: debugfiles: %w", err)
		}
		m.DebugFiles = &df
	}

	if m.nTypes.Value < 0 || m.nGlobals.Value < 0 || m.nNatives.Value < 0 || m.nFunctions.Value < 0 {
		return nil, fmt.Errorf("%w: negative pool size", ErrMalformedInput)
	}

	m.Types = make([]Type, m.nTypes.Value)
	for i := range m.Types {
		if m.Types[i], err = DecodeType(r); err != nil {
			return nil, fmt.Errorf("hlbc: type %d: %w", i, err)
		}
	}

	m.GlobalTypes = make([]varint.VarInt, m.nGlobals.Value)
	for i := range m.GlobalTypes {
		if m.GlobalTypes[i], err = varint.Decode(r); err != nil {
			return nil, fmt.Errorf("hlbc: global %d: %w", i, err)
		}
	}

	m.Natives = make([]Native, m.nNatives.Value)
	for i := range m.Natives {
		if m.Natives[i], err = decodeNative(r); err != nil {
			return nil, fmt.Errorf("hlbc: native %d: %w", i, err)
		}
	}

	m.Functions = make([]Function, m.nFunctions.Value)
	for i := range m.Functions {
		if m.Functions[i], err = decodeFunction(r, m.HasDebugInfo, int(m.Version)); err != nil {
			return nil, fmt.Errorf("hlbc: function %d: %w", i, err)
		}
	}
	tracelog.Debug("decoded %d functions, %d natives", len(m.Functions), len(m.Natives))

	if m.Version >= 4 {
		if m.nConstants.Value < 0 {
			return nil, fmt.Errorf("%w: negative constant count", ErrMalformedInput)
		}
		m.Constants = make([]Constant, m.nConstants.Value)
		for i := range m.Constants {
			if m.Constants[i], err = decodeConstant(r); err != nil {
				return nil, fmt.Errorf("hlbc: constant %d: %w", i, err)
			}
		}
	}

	return m, nil
}

// Serialize re-encodes m to its wire form. Section counts are
// recomputed from the live slices before encoding, so a caller that
// mutated m.Functions/m.Types/... never needs to fix up the header by
// hand; VarInt widths for unchanged values are preserved via each
// field's recorded OriginalWidth, matching spec.md's round-trip
// requirement.
func Serialize(m *Module) ([]byte, error) {
	m.nInts.Value = int32(len(m.Ints))
	m.nFloats.Value = int32(len(m.Floats))
	m.nStrings.Value = int32(len(m.Strings.Values))
	m.nTypes.Value = int32(len(m.Types))
	m.nGlobals.Value = int32(len(m.GlobalTypes))
	m.nNatives.Value = int32(len(m.Natives))
	m.nFunctions.Value = int32(len(m.Functions))
	if m.Version >= 5 && m.Bytes != nil {
		m.nBytes.Value = int32(len(m.Bytes.Values))
	}
	if m.Version >= 4 {
		m.nConstants.Value = int32(len(m.Constants))
	}
	m.Flags.Value &^= 1
	if m.HasDebugInfo {
		m.Flags.Value |= 1
	}
	if m.HasDebugInfo && m.DebugFiles != nil {
		m.nDebugFiles.Value = int32(len(m.DebugFiles.Values))
	}

	tracelog.Debug("serializing module: version=%d nfunctions=%d", m.Version, len(m.Functions))
	w := varint.NewWriter()
	w.Write(magic[:])
	w.WriteByte(m.Version)

	if err := varint.Encode(w, m.Flags); err != nil {
		return nil, fmt.Errorf("hlbc: flags: %w", err)
	}
	if err := varint.Encode(w, m.nInts); err != nil {
		return nil, fmt.Errorf("hlbc: nints: %w", err)
	}
	if err := varint.Encode(w, m.nFloats); err != nil {
		return nil, fmt.Errorf("hlbc: nfloats: %w", err)
	}
	if err := varint.Encode(w, m.nStrings); err != nil {
		return nil, fmt.Errorf("hlbc: nstrings: %w", err)
	}
	if m.Version >= 5 {
		if err := varint.Encode(w, m.nBytes); err != nil {
			return nil, fmt.Errorf("hlbc: nbytes: %w", err)
		}
	}
	if err := varint.Encode(w, m.nTypes); err != nil {
		return nil, fmt.Errorf("hlbc: ntypes: %w", err)
	}
	if err := varint.Encode(w, m.nGlobals); err != nil {
		return nil, fmt.Errorf("hlbc: nglobals: %w", err)
	}
	if err := varint.Encode(w, m.nNatives); err != nil {
		return nil, fmt.Errorf("hlbc: nnatives: %w", err)
	}
	if err := varint.Encode(w, m.nFunctions); err != nil {
		return nil, fmt.Errorf("hlbc: nfunctions: %w", err)
	}
	if m.Version >= 4 {
		if err := varint.Encode(w, m.nConstants); err != nil {
			return nil, fmt.Errorf("hlbc: nconstants: %w", err)
		}
	}
	if err := varint.Encode(w, m.Entrypoint); err != nil {
		return nil, fmt.Errorf("hlbc: entrypoint: %w", err)
	}

	encodeInts(w, m.Ints)
	encodeFloats(w, m.Floats)
	if err := varint.EncodeStringsBlock(w, m.Strings); err != nil {
		return nil, fmt.Errorf("hlbc: strings: %w", err)
	}
	if m.Version >= 5 && m.Bytes != nil {
		if err := varint.EncodeBytesBlock(w, *m.Bytes); err != nil {
			return nil, fmt.Errorf("hlbc: bytes: %w", err)
		}
	}
	if m.HasDebugInfo && m.DebugFiles != nil {
		if err := varint.Encode(w, m.nDebugFiles); err != nil {
			return nil, fmt.Errorf("hlbc: ndebugfiles: %w", err)
		}
		if err := varint.EncodeStringsBlock(w, *m.DebugFiles); err != nil {
			return nil, fmt.Errorf("hlbc: debugfiles: %w", err)
		}
	}

	for i, t := range m.Types {
		if err := EncodeType(w, t); err != nil {
			return nil, fmt.Errorf("hlbc: type %d: %w", i, err)
		}
	}
	for i, g := range m.GlobalTypes {
		if err := varint.Encode(w, g); err != nil {
			return nil, fmt.Errorf("hlbc: global %d: %w", i, err)
		}
	}
	for i, n := range m.Natives {
		if err := encodeNative(w, n); err != nil {
			return nil, fmt.Errorf("hlbc: native %d: %w", i, err)
		}
	}
	for i, fn := range m.Functions {
		if err := encodeFunction(w, fn, int(m.Version)); err != nil {
			return nil, fmt.Errorf("hlbc: function %d: %w", i, err)
		}
	}
	if m.Version >= 4 {
		for i, c := range m.Constants {
			if err := encodeConstant(w, c); err != nil {
				return nil, fmt.Errorf("hlbc: constant %d: %w", i, err)
			}
		}
	}

	return w.Bytes(), nil
}

// FindFunction returns the function or native occupying findex, or
// ErrInvalidReference if no definition claims that index.
func (m *Module) FindFunction(findex int32) (fn *Function, native *Native, err error) {
	for i := range m.Functions {
		if m.Functions[i].FIndex.Value == findex {
			return &m.Functions[i], nil, nil
		}
	}
	for i := range m.Natives {
		if m.Natives[i].FIndex.Value == findex {
			return nil, &m.Natives[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: function index %d", ErrInvalidReference, findex)
}

// Type returns the type pool entry at idx.
func (m *Module) Type(idx int32) (Type, error) {
	if idx < 0 || int(idx) >= len(m.Types) {
		return Type{}, fmt.Errorf("%w: type index %d", ErrInvalidReference, idx)
	}
	return m.Types[idx], nil
}

// String returns the string pool entry at idx.
func (m *Module) String(idx int32) (string, error) {
	if idx < 0 || int(idx) >= len(m.Strings.Values) {
		return "", fmt.Errorf("%w: string index %d", ErrInvalidReference, idx)
	}
	return m.Strings.Values[idx], nil
}

// ResolveFields walks obj's superclass chain and returns its full field
// list in index order: every ancestor's own fields, outermost first,
// followed by obj's own. A field reference's index is relative to this
// concatenated list, not to obj.Fields alone.
func (m *Module) ResolveFields(obj *ObjType) ([]Field, error) {
	if obj.Super.Value < 0 {
		return obj.Fields, nil
	}
	var fields []Field
	visited := map[*ObjType]bool{}
	current := obj
	for current != nil {
		if visited[current] {
			return nil, fmt.Errorf("%w: cyclic inheritance", ErrMalformedInput)
		}
		visited[current] = true
		fields = append(append([]Field{}, current.Fields...), fields...)
		if current.Super.Value < 0 {
			break
		}
		superType, err := m.Type(current.Super.Value)
		if err != nil {
			return nil, err
		}
		superObj, ok := superType.Def.(*ObjType)
		if !ok {
			return nil, fmt.Errorf("%w: superclass is not an Obj", ErrMalformedInput)
		}
		current = superObj
	}
	return fields, nil
}

// GlobalValue is a constant's resolved field values, keyed by field
// name. The dynamic value type mirrors the field's declared HashLink
// type: int32 for integer kinds, float64 for float kinds, string for
// Bytes, and the raw pool index (int32) for anything else.
type GlobalValue map[string]any

// ResolveConstants evaluates every Constant against its global's object
// layout, returning one GlobalValue per constant, keyed by the global
// pool index it initializes. This mirrors the original's eager
// init_globals pass. Nothing else in this repository calls it; the
// pseudo-code emitter prints globals by pool index.
func (m *Module) ResolveConstants() (map[int32]GlobalValue, error) {
	out := make(map[int32]GlobalValue, len(m.Constants))
	for _, c := range m.Constants {
		if c.Global.Value < 0 || int(c.Global.Value) >= len(m.GlobalTypes) {
			return nil, fmt.Errorf("%w: constant global index %d", ErrInvalidReference, c.Global.Value)
		}
		globalType, err := m.Type(m.GlobalTypes[c.Global.Value].Value)
		if err != nil {
			return nil, err
		}
		obj, ok := globalType.Def.(*ObjType)
		if !ok {
			continue // non-Obj constant targets are skipped, matching the original's WARNING path
		}
		fields, err := m.ResolveFields(obj)
		if err != nil {
			return nil, err
		}
		values := GlobalValue{}
		for i, fieldIdx := range c.Fields {
			if i >= len(fields) {
				return nil, fmt.Errorf("%w: constant field %d exceeds resolved field count", ErrMalformedInput, i)
			}
			fieldType, err := m.Type(fields[i].Type.Value)
			if err != nil {
				return nil, err
			}
			name, err := m.String(fields[i].Name.Value)
			if err != nil {
				return nil, err
			}
			switch fieldType.Kind {
			case KindI32, KindU8, KindU16, KindI64:
				if int(fieldIdx.Value) >= len(m.Ints) {
					return nil, fmt.Errorf("%w: int pool index %d", ErrInvalidReference, fieldIdx.Value)
				}
				values[name] = m.Ints[fieldIdx.Value]
			case KindF32, KindF64:
				if int(fieldIdx.Value) >= len(m.Floats) {
					return nil, fmt.Errorf("%w: float pool index %d", ErrInvalidReference, fieldIdx.Value)
				}
				values[name] = m.Floats[fieldIdx.Value]
			case KindBytes:
				s, err := m.String(fieldIdx.Value)
				if err != nil {
					return nil, err
				}
				values[name] = s
			default:
				values[name] = fieldIdx.Value
			}
		}
		out[c.Global.Value] = values
	}
	return out, nil
}
