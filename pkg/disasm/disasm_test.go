package disasm

import (
	"strings"
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

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

func TestListRendersEveryInstruction(t *testing.T) {
	fn := &hlbc.Function{
		FIndex: varint.New(3),
		Ops: []hlbc.Opcode{
			op("Int", field("dst", 0), field("ptr", 0)),
			op("Add", field("dst", 1), field("a", 0), field("b", 0)),
			op("Ret", field("ret", 1)),
		},
	}
	out := List(nil, fn)
	for _, want := range []string{"Int", "Add", "Ret", "f@3"} {
		if !strings.Contains(out, want) {
			t.Errorf("List() = %q, want it to contain %q", out, want)
		}
	}
}

func TestAsmRoundTrip(t *testing.T) {
	ops := []hlbc.Opcode{
		op("Int", field("dst", 0), field("ptr", 2)),
		op("CallN", field("dst", 1), field("fun", 4), hlbc.FieldValue{Name: "args", ListCount: varint.New(2), List: []varint.VarInt{varint.New(0), varint.New(1)}}),
		op("Ret", field("ret", 1)),
	}
	src := ToAsm(ops)
	got, err := FromAsm(src)
	if err != nil {
		t.Fatalf("FromAsm() error = %v", err)
	}
	if len(got) != len(ops) {
		t.Fatalf("FromAsm() = %d ops, want %d", len(got), len(ops))
	}
	for i := range ops {
		if got[i].Name() != ops[i].Name() {
			t.Errorf("op %d: name = %s, want %s", i, got[i].Name(), ops[i].Name())
		}
		for _, f := range ops[i].Fields {
			gf, ok := got[i].Field(f.Name)
			if !ok {
				t.Errorf("op %d: missing field %s after round trip", i, f.Name)
				continue
			}
			if len(f.List) > 0 {
				if len(gf.List) != len(f.List) {
					t.Errorf("op %d field %s: list len = %d, want %d", i, f.Name, len(gf.List), len(f.List))
				}
				continue
			}
			if gf.Scalar.Value != f.Scalar.Value {
				t.Errorf("op %d field %s = %d, want %d", i, f.Name, gf.Scalar.Value, f.Scalar.Value)
			}
		}
	}
}

func TestFromAsmRejectsUnknownOpcode(t *testing.T) {
	_, err := FromAsm("NotAnOpcode dst=0\n")
	if err == nil {
		t.Error("FromAsm() error = nil, want an error for an unknown opcode name")
	}
}

func TestFullFuncNameResolvesMethod(t *testing.T) {
	mod := &hlbc.Module{
		Strings: varint.StringsBlock{Values: []string{"Player", "heal"}},
		Types: []hlbc.Type{
			{Kind: hlbc.KindObj, Def: &hlbc.ObjType{
				Name:  varint.New(0),
				Super: varint.New(-1),
				Protos: []hlbc.Proto{
					{Name: varint.New(1), FIndex: varint.New(7)},
				},
			}},
		},
	}
	name, err := FullFuncName(mod, 7)
	if err != nil {
		t.Fatalf("FullFuncName() error = %v", err)
	}
	if name != "Player.heal" {
		t.Errorf("FullFuncName() = %q, want %q", name, "Player.heal")
	}
	if static, _ := IsStatic(mod, 7); static {
		t.Error("IsStatic() = true for a virtual method")
	}
}
