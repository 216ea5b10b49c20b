package cfg

import (
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

func reg(v int32) hlbc.FieldValue      { return hlbc.FieldValue{Name: "reg", Scalar: varint.New(v)} }
func field(name string, v int32) hlbc.FieldValue {
	return hlbc.FieldValue{Name: name, Scalar: varint.New(v)}
}

func op(name string, fields ...hlbc.FieldValue) hlbc.Opcode {
	code, ok := hlbc.OpcodeByName(name)
	if !ok {
		panic("unknown opcode " + name)
	}
	return hlbc.Opcode{Code: varint.New(int32(code)), Fields: fields}
}

// buildFunc assembles a minimal function body from a list of opcodes.
// It declares no registers; Build only looks at the opcode stream.
func buildFunc(ops ...hlbc.Opcode) *hlbc.Function {
	return &hlbc.Function{
		NOps: varint.New(int32(len(ops))),
		Ops:  ops,
	}
}

func TestBuildStraightLine(t *testing.T) {
	fn := buildFunc(
		op("Int", field("dst", 0), field("ptr", 0)),
		op("Ret", field("ret", 0)),
	)
	g, err := Build(fn)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(g.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(g.Blocks))
	}
	if len(g.Blocks[0].Edges) != 0 {
		t.Errorf("Ret block has %d edges, want 0", len(g.Blocks[0].Edges))
	}
}

func TestBuildDiamond(t *testing.T) {
	// 0: JTrue r0, +2   -> jump to op 3 (else at 1..2, then at 3..4)
	// 1: Int r1, 0      (else/fallthrough branch)
	// 2: JAlways +1     -> jump to op 4 (merge)
	// 3: Int r1, 1      (then branch)
	// 4: Ret r1
	fn := buildFunc(
		op("JTrue", field("cond", 0), field("offset", 2)),
		op("Int", field("dst", 1), field("ptr", 0)),
		op("JAlways", field("offset", 1)),
		op("Int", field("dst", 1), field("ptr", 1)),
		op("Ret", field("ret", 1)),
	)
	g, err := Build(fn)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(g.Blocks) != 4 {
		t.Fatalf("len(Blocks) = %d, want 4 (got %#v)", len(g.Blocks), g.Blocks)
	}
	entry := g.Blocks[0]
	if len(entry.Edges) != 2 {
		t.Fatalf("entry block has %d edges, want 2", len(entry.Edges))
	}
	var sawTrue, sawFalse bool
	for _, e := range entry.Edges {
		switch e.Kind {
		case EdgeTrue:
			sawTrue = true
		case EdgeFalse:
			sawFalse = true
		}
	}
	if !sawTrue || !sawFalse {
		t.Errorf("entry edges = %#v, want one True and one False", entry.Edges)
	}
}

func TestBuildTrapRegion(t *testing.T) {
	// 0: Trap r0, +2   -> handler at op 3
	// 1: Int r1, 0
	// 2: EndTrap r0
	// 3: Ret r1        (handler; EndTrap at op 2 also falls through into it)
	fn := buildFunc(
		op("Trap", field("exc", 0), field("offset", 2)),
		op("Int", field("dst", 1), field("ptr", 0)),
		op("EndTrap", field("exc", 0)),
		op("Ret", field("ret", 1)),
	)
	g, err := Build(fn)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(g.Traps) != 1 {
		t.Fatalf("len(Traps) = %d, want 1", len(g.Traps))
	}
	tr := g.Traps[0]
	if tr.Start != 1 || tr.End != 2 || tr.Handler != 3 {
		t.Errorf("trap region = %+v, want {Start:1 End:2 Handler:3}", tr)
	}
}

func TestSimplifyMarksUnreachable(t *testing.T) {
	fn := buildFunc(
		op("Ret", field("ret", 0)),
		op("Int", field("dst", 0), field("ptr", 0)), // unreachable tail
		op("Ret", field("ret", 0)),
	)
	g, err := Build(fn)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	g.Simplify()
	if !g.Blocks[0].Reachable {
		t.Error("entry block not marked reachable")
	}
	for _, b := range g.Blocks[1:] {
		if b.Reachable {
			t.Errorf("block %+v incorrectly marked reachable", b)
		}
	}
}
