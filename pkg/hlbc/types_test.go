package hlbc

import (
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

func roundTripType(t *testing.T, want Type) Type {
	t.Helper()
	w := varint.NewWriter()
	if err := EncodeType(w, want); err != nil {
		t.Fatalf("EncodeType() error = %v", err)
	}
	r := varint.NewReader(w.Bytes())
	got, err := DecodeType(r)
	if err != nil {
		t.Fatalf("DecodeType() error = %v", err)
	}
	if r.Remaining() != 0 {
		t.Errorf("DecodeType() left %d unread bytes", r.Remaining())
	}
	return got
}

func TestTypeRoundTripNoPayload(t *testing.T) {
	got := roundTripType(t, Type{Kind: KindI32})
	if got.Kind != KindI32 {
		t.Errorf("Kind = %v, want KindI32", got.Kind)
	}
	if got.Def != nil {
		t.Errorf("Def = %#v, want nil for a no-payload kind", got.Def)
	}
}

func TestTypeRoundTripFun(t *testing.T) {
	want := Type{Kind: KindFun, Def: &FunType{
		NArgs: varint.New(2),
		Args:  []varint.VarInt{varint.New(3), varint.New(4)},
		Ret:   varint.New(5),
	}}
	got := roundTripType(t, want)
	fn, ok := got.Def.(*FunType)
	if !ok {
		t.Fatalf("Def = %T, want *FunType", got.Def)
	}
	if len(fn.Args) != 2 || fn.Args[0].Value != 3 || fn.Args[1].Value != 4 {
		t.Errorf("Args = %#v, want [3, 4]", fn.Args)
	}
	if fn.Ret.Value != 5 {
		t.Errorf("Ret = %d, want 5", fn.Ret.Value)
	}
}

func TestTypeRoundTripObjWithInheritanceFields(t *testing.T) {
	want := Type{Kind: KindObj, Def: &ObjType{
		Name:      varint.New(0),
		Super:     varint.New(-1),
		Global:    varint.New(0),
		NFields:   varint.New(1),
		NProtos:   varint.New(1),
		NBindings: varint.New(1),
		Fields:    []Field{{Name: varint.New(1), Type: varint.New(2)}},
		Protos:    []Proto{{Name: varint.New(3), FIndex: varint.New(7), PIndex: varint.New(0)}},
		Bindings:  []Binding{{Field: varint.New(0), FIndex: varint.New(9)}},
	}}
	got := roundTripType(t, want)
	obj, ok := got.Def.(*ObjType)
	if !ok {
		t.Fatalf("Def = %T, want *ObjType", got.Def)
	}
	if obj.Super.Value != -1 {
		t.Errorf("Super = %d, want -1 (no superclass)", obj.Super.Value)
	}
	if len(obj.Fields) != 1 || obj.Fields[0].Type.Value != 2 {
		t.Errorf("Fields = %#v", obj.Fields)
	}
	if len(obj.Protos) != 1 || obj.Protos[0].FIndex.Value != 7 {
		t.Errorf("Protos = %#v", obj.Protos)
	}
	if len(obj.Bindings) != 1 || obj.Bindings[0].FIndex.Value != 9 {
		t.Errorf("Bindings = %#v", obj.Bindings)
	}
}

func TestDecodeTypeRejectsUnknownKind(t *testing.T) {
	r := varint.NewReader([]byte{200})
	if _, err := DecodeType(r); err == nil {
		t.Error("DecodeType() error = nil, want an error for an out-of-range kind byte")
	}
}

func TestResolveFieldsWalksSuperclassChain(t *testing.T) {
	base := &ObjType{
		Name:  varint.New(0),
		Super: varint.New(-1),
		Fields: []Field{
			{Name: varint.New(1), Type: varint.New(0)},
		},
	}
	derived := &ObjType{
		Name:  varint.New(2),
		Super: varint.New(0),
		Fields: []Field{
			{Name: varint.New(3), Type: varint.New(0)},
		},
	}
	mod := &Module{
		Types: []Type{
			{Kind: KindObj, Def: base},
			{Kind: KindObj, Def: derived},
		},
	}
	fields, err := mod.ResolveFields(derived)
	if err != nil {
		t.Fatalf("ResolveFields() error = %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("ResolveFields() = %#v, want 2 fields (1 inherited, 1 own)", fields)
	}
	if fields[0].Name.Value != 1 || fields[1].Name.Value != 3 {
		t.Errorf("ResolveFields() order = %#v, want base field before derived field", fields)
	}
}
