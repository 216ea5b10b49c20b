package hlbc

import (
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

// Native describes a function implemented outside the bytecode: the
// host library and symbol name it resolves to at link time, its
// signature's type index, and the function index it occupies.
type Native struct {
	Lib    varint.VarInt // string pool index
	Name   varint.VarInt // string pool index
	Type   varint.VarInt // type pool index
	FIndex varint.VarInt // function index
}

func decodeNative(r *varint.Reader) (Native, error) {
	var n Native
	var err error
	if n.Lib, err = varint.Decode(r); err != nil {
		return Native{}, fmt.Errorf("lib: %w", err)
	}
	if n.Name, err = varint.Decode(r); err != nil {
		return Native{}, fmt.Errorf("name: %w", err)
	}
	if n.Type, err = varint.Decode(r); err != nil {
		return Native{}, fmt.Errorf("type: %w", err)
	}
	if n.FIndex, err = varint.Decode(r); err != nil {
		return Native{}, fmt.Errorf("findex: %w", err)
	}
	return n, nil
}

func encodeNative(w *varint.Writer, n Native) error {
	for _, v := range []varint.VarInt{n.Lib, n.Name, n.Type, n.FIndex} {
		if err := varint.Encode(w, v); err != nil {
			return err
		}
	}
	return nil
}

// DebugFileLine is a single instruction's resolved source position: an
// index into the module's debug-file string pool and a line number.
type DebugFileLine struct {
	File int32
	Line int32
}

// decodeDebugInfo implements HashLink's run-length, delta-encoded debug
// position stream: one control byte per group of instructions, selecting
// one of four encodings (file change, short repeat run, small forward
// delta, or an absolute 21-bit line number split across three bytes).
func decodeDebugInfo(r *varint.Reader, nops int32) ([]DebugFileLine, error) {
	out := make([]DebugFileLine, 0, nops)
	currFile := int32(-1)
	currLine := int32(0)
	for int32(len(out)) < nops {
		c, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("hlbc: debuginfo control byte at instruction %d: %w", len(out), err)
		}
		switch {
		case c&1 != 0:
			b2, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("hlbc: debuginfo file id low byte: %w", err)
			}
			currFile = (int32(c>>1) << 8) | int32(b2)
		case c&2 != 0:
			delta := int32(c >> 6)
			count := int32((c >> 2) & 15)
			for count > 0 {
				count--
				out = append(out, DebugFileLine{File: currFile, Line: currLine})
			}
			currLine += delta
		case c&4 != 0:
			currLine += int32(c >> 3)
			out = append(out, DebugFileLine{File: currFile, Line: currLine})
		default:
			b2, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("hlbc: debuginfo absolute line byte 2: %w", err)
			}
			b3, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("hlbc: debuginfo absolute line byte 3: %w", err)
			}
			currLine = (int32(c) >> 3) | (int32(b2) << 5) | (int32(b3) << 13)
			out = append(out, DebugFileLine{File: currFile, Line: currLine})
		}
	}
	return out, nil
}

// encodeDebugInfo is the inverse of decodeDebugInfo: it greedily emits
// repeat runs (capped at 15 per control byte, chained for longer runs),
// small forward deltas, and file-change markers, falling back to the
// absolute 3-byte form when a line moves backward or jumps more than 31
// lines forward.
func encodeDebugInfo(w *varint.Writer, lines []DebugFileLine) error {
	currFile := int32(-1)
	curPos := int32(0)
	rcount := int32(0)

	flushRepeat := func(pos int32) {
		for rcount > 0 {
			if rcount > 15 {
				w.WriteByte(byte((15 << 2) | 2))
				rcount -= 15
				continue
			}
			delta := pos - curPos
			if !(delta > 0 && delta < 4) {
				delta = 0
			}
			w.WriteByte(byte((delta << 6) | (rcount << 2) | 2))
			rcount = 0
			curPos += delta
		}
	}

	for _, ref := range lines {
		f := ref.File
		p := ref.Line
		if f != currFile {
			flushRepeat(p)
			currFile = f
			w.WriteByte(byte((f >> 7) | 1))
			w.WriteByte(byte(f & 0xFF))
		}

		if p != curPos {
			flushRepeat(p)
		}

		if p == curPos {
			rcount++
		} else {
			delta := p - curPos
			if delta > 0 && delta < 32 {
				w.WriteByte(byte((delta << 3) | 4))
			} else {
				w.WriteByte(byte((p << 3) & 0xFF))
				w.WriteByte(byte((p >> 5) & 0xFF))
				w.WriteByte(byte((p >> 13) & 0xFF))
			}
			curPos = p
		}
	}
	flushRepeat(curPos)
	return nil
}

// Assign is a named register-to-variable mapping attached to a function
// body when the producing compiler tracked source-level names (present
// only for bytecode version >= 3 with debug info enabled).
type Assign struct {
	Name varint.VarInt // string pool index
	Reg  varint.VarInt
}

// Function is a bytecode-defined function body: its signature's type
// index, a unique function index shared with Native, its register
// types, its instruction stream, and optional debug metadata.
type Function struct {
	Type   varint.VarInt // type pool index
	FIndex varint.VarInt
	NRegs  varint.VarInt
	NOps   varint.VarInt
	Regs   []varint.VarInt // type pool indices, one per register
	Ops    []Opcode

	HasDebug  bool
	DebugInfo []DebugFileLine
	NAssigns  varint.VarInt
	Assigns   []Assign
}

// decodeFunction reads a Function body. hasDebug and version come from
// the enclosing module's header and gate the optional debug/assigns
// sections exactly as HashLink's own reader does.
func decodeFunction(r *varint.Reader, hasDebug bool, version int) (Function, error) {
	var fn Function
	var err error
	fn.HasDebug = hasDebug

	if fn.Type, err = varint.Decode(r); err != nil {
		return Function{}, fmt.Errorf("type: %w", err)
	}
	if fn.FIndex, err = varint.Decode(r); err != nil {
		return Function{}, fmt.Errorf("findex: %w", err)
	}
	if fn.NRegs, err = varint.Decode(r); err != nil {
		return Function{}, fmt.Errorf("nregs: %w", err)
	}
	if fn.NOps, err = varint.Decode(r); err != nil {
		return Function{}, fmt.Errorf("nops: %w", err)
	}
	if fn.NRegs.Value < 0 || fn.NOps.Value < 0 {
		return Function{}, fmt.Errorf("%w: negative function count", ErrMalformedInput)
	}

	fn.Regs = make([]varint.VarInt, fn.NRegs.Value)
	for i := range fn.Regs {
		if fn.Regs[i], err = varint.Decode(r); err != nil {
			return Function{}, fmt.Errorf("reg %d: %w", i, err)
		}
	}
	fn.Ops = make([]Opcode, fn.NOps.Value)
	for i := range fn.Ops {
		if fn.Ops[i], err = DecodeOpcode(r); err != nil {
			return Function{}, fmt.Errorf("op %d: %w", i, err)
		}
	}

	if hasDebug {
		if fn.DebugInfo, err = decodeDebugInfo(r, fn.NOps.Value); err != nil {
			return Function{}, err
		}
		if version >= 3 {
			if fn.NAssigns, err = varint.Decode(r); err != nil {
				return Function{}, fmt.Errorf("nassigns: %w", err)
			}
			if fn.NAssigns.Value < 0 {
				return Function{}, fmt.Errorf("%w: negative nassigns", ErrMalformedInput)
			}
			fn.Assigns = make([]Assign, fn.NAssigns.Value)
			for i := range fn.Assigns {
				if fn.Assigns[i].Name, err = varint.Decode(r); err != nil {
					return Function{}, fmt.Errorf("assign %d name: %w", i, err)
				}
				if fn.Assigns[i].Reg, err = varint.Decode(r); err != nil {
					return Function{}, fmt.Errorf("assign %d reg: %w", i, err)
				}
			}
		}
	}
	return fn, nil
}

// encodeFunction writes fn back to its wire form. version controls
// whether the assigns section is emitted when debug info is present,
// matching decodeFunction's gating.
func encodeFunction(w *varint.Writer, fn Function, version int) error {
	for _, v := range []varint.VarInt{fn.Type, fn.FIndex, fn.NRegs, fn.NOps} {
		if err := varint.Encode(w, v); err != nil {
			return err
		}
	}
	for i, reg := range fn.Regs {
		if err := varint.Encode(w, reg); err != nil {
			return fmt.Errorf("reg %d: %w", i, err)
		}
	}
	for i, op := range fn.Ops {
		if err := EncodeOpcode(w, op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	if fn.HasDebug {
		if err := encodeDebugInfo(w, fn.DebugInfo); err != nil {
			return fmt.Errorf("debuginfo: %w", err)
		}
		if version >= 3 {
			if err := varint.Encode(w, fn.NAssigns); err != nil {
				return fmt.Errorf("nassigns: %w", err)
			}
			for i, a := range fn.Assigns {
				if err := varint.Encode(w, a.Name); err != nil {
					return fmt.Errorf("assign %d name: %w", i, err)
				}
				if err := varint.Encode(w, a.Reg); err != nil {
					return fmt.Errorf("assign %d reg: %w", i, err)
				}
			}
		}
	}
	return nil
}

// Constant is a precomputed literal value assigned to a global slot at
// program startup: an index into the global-types pool plus a list of
// pool indices (one per resolved field, interpreted per the global's
// object field types — see Module.ResolveConstants).
type Constant struct {
	Global  varint.VarInt // global pool index
	NFields varint.VarInt
	Fields  []varint.VarInt
}

func decodeConstant(r *varint.Reader) (Constant, error) {
	var c Constant
	var err error
	if c.Global, err = varint.Decode(r); err != nil {
		return Constant{}, fmt.Errorf("global: %w", err)
	}
	if c.NFields, err = varint.Decode(r); err != nil {
		return Constant{}, fmt.Errorf("nfields: %w", err)
	}
	if c.NFields.Value < 0 {
		return Constant{}, fmt.Errorf("%w: negative constant field count", ErrMalformedInput)
	}
	c.Fields = make([]varint.VarInt, c.NFields.Value)
	for i := range c.Fields {
		if c.Fields[i], err = varint.Decode(r); err != nil {
			return Constant{}, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return c, nil
}

func encodeConstant(w *varint.Writer, c Constant) error {
	if err := varint.Encode(w, c.Global); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if err := varint.Encode(w, c.NFields); err != nil {
		return fmt.Errorf("nfields: %w", err)
	}
	for i, f := range c.Fields {
		if err := varint.Encode(w, f); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}
