package ir

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is a CBOR-serializable projection of a lifted Func, used to
// hand a decompilation result to another process (an editor extension,
// a diffing tool) without re-running the lifter. It captures only the
// rendered pseudo-code and the opcode indices carried by untranslated
// opcodes and primitive jumps; it records no source-line positions and
// cannot be turned back into a live *Func.
type Snapshot struct {
	FIndex int32           `cbor:"findex"`
	NArgs  int32            `cbor:"nargs"`
	Source string          `cbor:"source"`
	Spans  []OpcodeSpan    `cbor:"spans"`
}

// OpcodeSpan records an opcode index carried by a lifted statement:
// the opcode's own index for an untranslated opcode, or the jump target
// for a primitive jump (Kind "goto") — the only node kinds that carry a
// PC. Nesting depth is not recorded.
type OpcodeSpan struct {
	PC   int    `cbor:"pc"`
	Kind string `cbor:"kind"`
}

// Snapshot builds a CBOR-ready projection of fn.
func (fn *Func) Snapshot() Snapshot {
	snap := Snapshot{FIndex: fn.FIndex, NArgs: fn.NArgs, Source: Emit(fn)}
	collectSpans(fn.Body, &snap.Spans)
	return snap
}

func collectSpans(b Block, out *[]OpcodeSpan) {
	for _, s := range b.Stmts {
		switch n := s.(type) {
		case *UntranslatedOpcode:
			*out = append(*out, OpcodeSpan{PC: n.PC, Kind: n.Op.Name()})
		case *PrimitiveJump:
			*out = append(*out, OpcodeSpan{PC: n.TargetPC, Kind: "goto"})
		case *Conditional:
			collectSpans(n.Then, out)
			collectSpans(n.Else, out)
		case *Loop:
			collectSpans(n.Body, out)
		case *Switch:
			for _, c := range n.Cases {
				collectSpans(c.Body, out)
			}
			collectSpans(n.Default, out)
		case *Try:
			collectSpans(n.Body, out)
			for _, c := range n.Catches {
				collectSpans(c.Body, out)
			}
		}
	}
}

// MarshalSnapshot encodes fn's snapshot as CBOR.
func MarshalSnapshot(fn *Func) ([]byte, error) {
	buf, err := cbor.Marshal(fn.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("ir: marshal snapshot: %w", err)
	}
	return buf, nil
}

// UnmarshalSnapshot decodes a CBOR-encoded Snapshot.
func UnmarshalSnapshot(buf []byte) (Snapshot, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(buf, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("ir: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
