package hlbc

import (
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

func TestFunctionRoundTripNoDebug(t *testing.T) {
	addCode, _ := OpcodeByName("Add")
	retCode, _ := OpcodeByName("Ret")
	want := Function{
		Type:   varint.New(0),
		FIndex: varint.New(1),
		NRegs:  varint.New(3),
		NOps:   varint.New(2),
		Regs:   []varint.VarInt{varint.New(0), varint.New(0), varint.New(0)},
		Ops: []Opcode{
			{Code: varint.New(int32(addCode)), Fields: []FieldValue{
				{Name: "dst", Scalar: varint.New(2)},
				{Name: "a", Scalar: varint.New(0)},
				{Name: "b", Scalar: varint.New(1)},
			}},
			{Code: varint.New(int32(retCode)), Fields: []FieldValue{
				{Name: "ret", Scalar: varint.New(2)},
			}},
		},
	}

	w := varint.NewWriter()
	if err := encodeFunction(w, want, 4); err != nil {
		t.Fatalf("encodeFunction() error = %v", err)
	}
	r := varint.NewReader(w.Bytes())
	got, err := decodeFunction(r, false, 4)
	if err != nil {
		t.Fatalf("decodeFunction() error = %v", err)
	}
	if len(got.Ops) != 2 || got.Ops[0].Name() != "Add" || got.Ops[1].Name() != "Ret" {
		t.Errorf("Ops = %#v, want [Add, Ret]", got.Ops)
	}
	if len(got.Regs) != 3 {
		t.Errorf("Regs = %#v, want 3 entries", got.Regs)
	}
}

func TestFunctionRoundTripWithDebugAndAssigns(t *testing.T) {
	retCode, _ := OpcodeByName("Ret")
	want := Function{
		Type:     varint.New(0),
		FIndex:   varint.New(5),
		NRegs:    varint.New(1),
		NOps:     varint.New(1),
		Regs:     []varint.VarInt{varint.New(0)},
		Ops:      []Opcode{{Code: varint.New(int32(retCode)), Fields: []FieldValue{{Name: "ret", Scalar: varint.New(0)}}}},
		HasDebug: true,
		DebugInfo: []DebugFileLine{
			{File: 0, Line: 10},
		},
		NAssigns: varint.New(1),
		Assigns:  []Assign{{Name: varint.New(7), Reg: varint.New(0)}},
	}

	w := varint.NewWriter()
	if err := encodeFunction(w, want, 4); err != nil {
		t.Fatalf("encodeFunction() error = %v", err)
	}
	r := varint.NewReader(w.Bytes())
	got, err := decodeFunction(r, true, 4)
	if err != nil {
		t.Fatalf("decodeFunction() error = %v", err)
	}
	if len(got.DebugInfo) != 1 || got.DebugInfo[0].Line != 10 {
		t.Errorf("DebugInfo = %#v, want one entry at line 10", got.DebugInfo)
	}
	if len(got.Assigns) != 1 || got.Assigns[0].Name.Value != 7 {
		t.Errorf("Assigns = %#v, want one entry named string #7", got.Assigns)
	}
}

func TestConstantRoundTrip(t *testing.T) {
	want := Constant{
		Global:  varint.New(2),
		NFields: varint.New(2),
		Fields:  []varint.VarInt{varint.New(10), varint.New(20)},
	}
	w := varint.NewWriter()
	if err := encodeConstant(w, want); err != nil {
		t.Fatalf("encodeConstant() error = %v", err)
	}
	r := varint.NewReader(w.Bytes())
	got, err := decodeConstant(r)
	if err != nil {
		t.Fatalf("decodeConstant() error = %v", err)
	}
	if len(got.Fields) != 2 || got.Fields[1].Value != 20 {
		t.Errorf("Fields = %#v, want [10, 20]", got.Fields)
	}
}
