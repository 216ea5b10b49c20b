package hlbc

import (
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

func buildMinimalModule() *Module {
	addCode, _ := OpcodeByName("Add")
	retCode, _ := OpcodeByName("Ret")
	return &Module{
		Version: 4,
		Ints:    []int32{1, 2, 3},
		Floats:  []float64{1.5},
		Strings: varint.StringsBlock{Values: []string{"Main", "main"}},
		Types: []Type{
			{Kind: KindI32},
			{Kind: KindObj, Def: &ObjType{
				Name:  varint.New(0),
				Super: varint.New(-1),
			}},
		},
		GlobalTypes: []varint.VarInt{varint.New(0)},
		Functions: []Function{
			{
				Type:   varint.New(0),
				FIndex: varint.New(0),
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
			},
		},
		Entrypoint: varint.New(0),
	}
}

func TestModuleRoundTrip(t *testing.T) {
	want := buildMinimalModule()
	buf, err := Serialize(want)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Version != 4 {
		t.Errorf("Version = %d, want 4", got.Version)
	}
	if len(got.Ints) != 3 || got.Ints[1] != 2 {
		t.Errorf("Ints = %#v, want [1, 2, 3]", got.Ints)
	}
	if len(got.Functions) != 1 || len(got.Functions[0].Ops) != 2 {
		t.Fatalf("Functions = %#v, want one function with 2 ops", got.Functions)
	}
	if got.Functions[0].Ops[0].Name() != "Add" {
		t.Errorf("Ops[0].Name() = %q, want \"Add\"", got.Functions[0].Ops[0].Name())
	}

	again, err := Serialize(got)
	if err != nil {
		t.Fatalf("second Serialize() error = %v", err)
	}
	if string(again) != string(buf) {
		t.Error("re-serializing a parsed module did not reproduce the same bytes")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	if _, err := Parse([]byte("XYZ\x04")); err == nil {
		t.Error("Parse() error = nil, want an error for bad magic")
	}
}

func TestFindFunctionAndStringLookup(t *testing.T) {
	mod := buildMinimalModule()
	fn, native, err := mod.FindFunction(0)
	if err != nil {
		t.Fatalf("FindFunction() error = %v", err)
	}
	if native != nil {
		t.Error("FindFunction() returned a native for a bytecode function")
	}
	if fn == nil || len(fn.Ops) != 2 {
		t.Fatalf("FindFunction() = %#v", fn)
	}

	if _, _, err := mod.FindFunction(99); err == nil {
		t.Error("FindFunction() error = nil, want an error for an unknown findex")
	}

	s, err := mod.String(0)
	if err != nil || s != "Main" {
		t.Errorf("String(0) = %q, %v, want \"Main\", nil", s, err)
	}
}
