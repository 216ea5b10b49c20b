package hlbc

import (
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

// FieldKind distinguishes an opcode operand that is a single VarInt from
// one that is a count-prefixed list of VarInts (HashLink's "Regs" and
// "JumpOffsets" wire shapes).
type FieldKind int

const (
	FieldScalar FieldKind = iota
	FieldList
)

// FieldSchema names one operand of an opcode definition and the wire
// shape it's read as. The semantic type named in the catalog below
// (Reg, RefInt, RefString, JumpOffset, ...) is informational only — on
// the wire every one of them is a VarInt, or a list of VarInts.
type FieldSchema struct {
	Name string
	Type string
	Kind FieldKind
}

func scalar(name, typ string) FieldSchema { return FieldSchema{Name: name, Type: typ, Kind: FieldScalar} }
func list(name, typ string) FieldSchema   { return FieldSchema{Name: name, Type: typ, Kind: FieldList} }

// OpDef is one entry in the closed opcode catalog: a name and its
// ordered operand schema.
type OpDef struct {
	Name   string
	Fields []FieldSchema
}

// OpTable is the closed, frozen catalog of HashLink opcodes. Index is
// the wire code; reordering or removing an entry breaks every existing
// bytecode file, exactly as it would in the VM itself.
var OpTable = []OpDef{
	{"Mov", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                       // 0
	{"Int", []FieldSchema{scalar("dst", "Reg"), scalar("ptr", "RefInt")}},                                    // 1
	{"Float", []FieldSchema{scalar("dst", "Reg"), scalar("ptr", "RefFloat")}},                                // 2
	{"Bool", []FieldSchema{scalar("dst", "Reg"), scalar("value", "InlineBool")}},                             // 3
	{"Bytes", []FieldSchema{scalar("dst", "Reg"), scalar("ptr", "RefBytes")}},                                // 4
	{"String", []FieldSchema{scalar("dst", "Reg"), scalar("ptr", "RefString")}},                              // 5
	{"Null", []FieldSchema{scalar("dst", "Reg")}},                                                             // 6
	{"Add", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                      // 7
	{"Sub", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                      // 8
	{"Mul", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                      // 9
	{"SDiv", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                     // 10
	{"UDiv", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                     // 11
	{"SMod", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                     // 12
	{"UMod", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                     // 13
	{"Shl", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                      // 14
	{"SShr", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                     // 15
	{"UShr", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                     // 16
	{"And", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                      // 17
	{"Or", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                       // 18
	{"Xor", []FieldSchema{scalar("dst", "Reg"), scalar("a", "Reg"), scalar("b", "Reg")}},                      // 19
	{"Neg", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                       // 20
	{"Not", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                       // 21
	{"Incr", []FieldSchema{scalar("dst", "Reg")}},                                                             // 22
	{"Decr", []FieldSchema{scalar("dst", "Reg")}},                                                             // 23
	{"Call0", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun")}},                                   // 24
	{"Call1", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun"), scalar("arg0", "Reg")}},            // 25
	{"Call2", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun"), scalar("arg0", "Reg"), scalar("arg1", "Reg")}}, // 26
	{"Call3", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun"), scalar("arg0", "Reg"), scalar("arg1", "Reg"), scalar("arg2", "Reg")}}, // 27
	{"Call4", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun"), scalar("arg0", "Reg"), scalar("arg1", "Reg"), scalar("arg2", "Reg"), scalar("arg3", "Reg")}}, // 28
	{"CallN", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun"), list("args", "Regs")}},             // 29
	{"CallMethod", []FieldSchema{scalar("dst", "Reg"), scalar("field", "RefField"), list("args", "Regs")}},    // 30
	{"CallThis", []FieldSchema{scalar("dst", "Reg"), scalar("field", "RefField"), list("args", "Regs")}},      // 31
	{"CallClosure", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "Reg"), list("args", "Regs")}},          // 32
	{"StaticClosure", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun")}},                           // 33
	{"InstanceClosure", []FieldSchema{scalar("dst", "Reg"), scalar("fun", "RefFun"), scalar("obj", "Reg")}},   // 34
	{"VirtualClosure", []FieldSchema{scalar("dst", "Reg"), scalar("obj", "Reg"), scalar("field", "Reg")}},     // 35
	{"GetGlobal", []FieldSchema{scalar("dst", "Reg"), scalar("global", "RefGlobal")}},                         // 36
	{"SetGlobal", []FieldSchema{scalar("global", "RefGlobal"), scalar("src", "Reg")}},                         // 37
	{"Field", []FieldSchema{scalar("dst", "Reg"), scalar("obj", "Reg"), scalar("field", "RefField")}},         // 38
	{"SetField", []FieldSchema{scalar("obj", "Reg"), scalar("field", "RefField"), scalar("src", "Reg")}},      // 39
	{"GetThis", []FieldSchema{scalar("dst", "Reg"), scalar("field", "RefField")}},                             // 40
	{"SetThis", []FieldSchema{scalar("field", "RefField"), scalar("src", "Reg")}},                             // 41
	{"DynGet", []FieldSchema{scalar("dst", "Reg"), scalar("obj", "Reg"), scalar("field", "RefString")}},       // 42
	{"DynSet", []FieldSchema{scalar("obj", "Reg"), scalar("field", "RefString"), scalar("src", "Reg")}},       // 43
	{"JTrue", []FieldSchema{scalar("cond", "Reg"), scalar("offset", "JumpOffset")}},                           // 44
	{"JFalse", []FieldSchema{scalar("cond", "Reg"), scalar("offset", "JumpOffset")}},                          // 45
	{"JNull", []FieldSchema{scalar("reg", "Reg"), scalar("offset", "JumpOffset")}},                            // 46
	{"JNotNull", []FieldSchema{scalar("reg", "Reg"), scalar("offset", "JumpOffset")}},                         // 47
	{"JSLt", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},           // 48
	{"JSGte", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},          // 49
	{"JSGt", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},           // 50
	{"JSLte", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},          // 51
	{"JULt", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},           // 52
	{"JUGte", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},          // 53
	{"JNotLt", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},         // 54
	{"JNotGte", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},        // 55
	{"JEq", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},            // 56
	{"JNotEq", []FieldSchema{scalar("a", "Reg"), scalar("b", "Reg"), scalar("offset", "JumpOffset")}},         // 57
	{"JAlways", []FieldSchema{scalar("offset", "JumpOffset")}},                                                // 58
	{"ToDyn", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                      // 59
	{"ToSFloat", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                   // 60
	{"ToUFloat", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                   // 61
	{"ToInt", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                      // 62
	{"SafeCast", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                   // 63
	{"UnsafeCast", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                 // 64
	{"ToVirtual", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                  // 65
	{"Label", nil},                                                                                            // 66
	{"Ret", []FieldSchema{scalar("ret", "Reg")}},                                                              // 67
	{"Throw", []FieldSchema{scalar("exc", "Reg")}},                                                            // 68
	{"Rethrow", []FieldSchema{scalar("exc", "Reg")}},                                                          // 69
	{"Switch", []FieldSchema{scalar("reg", "Reg"), list("offsets", "JumpOffsets"), scalar("end", "JumpOffset")}}, // 70
	{"NullCheck", []FieldSchema{scalar("reg", "Reg")}},                                                        // 71
	{"Trap", []FieldSchema{scalar("exc", "Reg"), scalar("offset", "JumpOffset")}},                             // 72
	{"EndTrap", []FieldSchema{scalar("exc", "Reg")}},                                                          // 73
	{"GetI8", []FieldSchema{scalar("dst", "Reg"), scalar("bytes", "Reg"), scalar("index", "Reg")}},            // 74
	{"GetI16", []FieldSchema{scalar("dst", "Reg"), scalar("bytes", "Reg"), scalar("index", "Reg")}},           // 75
	{"GetMem", []FieldSchema{scalar("dst", "Reg"), scalar("bytes", "Reg"), scalar("index", "Reg")}},           // 76
	{"GetArray", []FieldSchema{scalar("dst", "Reg"), scalar("array", "Reg"), scalar("index", "Reg")}},         // 77
	{"SetI8", []FieldSchema{scalar("bytes", "Reg"), scalar("index", "Reg"), scalar("src", "Reg")}},            // 78
	{"SetI16", []FieldSchema{scalar("bytes", "Reg"), scalar("index", "Reg"), scalar("src", "Reg")}},           // 79
	{"SetMem", []FieldSchema{scalar("bytes", "Reg"), scalar("index", "Reg"), scalar("src", "Reg")}},           // 80
	{"SetArray", []FieldSchema{scalar("array", "Reg"), scalar("index", "Reg"), scalar("src", "Reg")}},         // 81
	{"New", []FieldSchema{scalar("dst", "Reg")}},                                                              // 82
	{"ArraySize", []FieldSchema{scalar("dst", "Reg"), scalar("array", "Reg")}},                                // 83
	{"Type", []FieldSchema{scalar("dst", "Reg"), scalar("ty", "RefType")}},                                   // 84
	{"GetType", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                   // 85
	{"GetTID", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                     // 86
	{"Ref", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                       // 87
	{"Unref", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                     // 88
	{"Setref", []FieldSchema{scalar("dst", "Reg"), scalar("value", "Reg")}},                                  // 89
	{"MakeEnum", []FieldSchema{scalar("dst", "Reg"), scalar("construct", "RefEnumConstruct"), list("args", "Regs")}}, // 90
	{"EnumAlloc", []FieldSchema{scalar("dst", "Reg"), scalar("construct", "RefEnumConstruct")}},               // 91
	{"EnumIndex", []FieldSchema{scalar("dst", "Reg"), scalar("value", "Reg")}},                                // 92
	{"EnumField", []FieldSchema{scalar("dst", "Reg"), scalar("value", "Reg"), scalar("construct", "RefEnumConstruct"), scalar("field", "RefField")}}, // 93
	{"SetEnumField", []FieldSchema{scalar("value", "Reg"), scalar("field", "RefField"), scalar("src", "Reg")}}, // 94
	{"Assert", nil},                                                                                           // 95
	{"RefData", []FieldSchema{scalar("dst", "Reg"), scalar("src", "Reg")}},                                   // 96
	{"RefOffset", []FieldSchema{scalar("dst", "Reg"), scalar("reg", "Reg"), scalar("offset", "Reg")}},        // 97
	{"Nop", nil},                                                                                              // 98
	{"Prefetch", []FieldSchema{scalar("value", "Reg"), scalar("field", "RefField"), scalar("mode", "InlineInt")}}, // 99
	{"Asm", []FieldSchema{scalar("mode", "InlineInt"), scalar("value", "InlineInt"), scalar("reg", "Reg")}},  // 100
}

var opcodeByName = func() map[string]int {
	m := make(map[string]int, len(OpTable))
	for i, def := range OpTable {
		m[def.Name] = i
	}
	return m
}()

// OpcodeByName returns the wire code for an opcode name, or false if the
// name isn't in the catalog.
func OpcodeByName(name string) (int, bool) {
	code, ok := opcodeByName[name]
	return code, ok
}

var jumpOpcodes = map[string]bool{
	"JTrue": true, "JFalse": true, "JNull": true, "JNotNull": true,
	"JSLt": true, "JSGte": true, "JSGt": true, "JSLte": true,
	"JULt": true, "JUGte": true, "JNotLt": true, "JNotGte": true,
	"JEq": true, "JNotEq": true, "JAlways": true, "Switch": true, "Trap": true,
}

var callOpcodes = map[string]bool{
	"Call0": true, "Call1": true, "Call2": true, "Call3": true, "Call4": true,
	"CallN": true, "CallMethod": true, "CallThis": true, "CallClosure": true,
}

// FieldValue holds one decoded operand: either a single VarInt or a
// count-prefixed list of VarInts, per its schema's Kind.
type FieldValue struct {
	Name      string
	Scalar    varint.VarInt
	ListCount varint.VarInt
	List      []varint.VarInt
}

// Opcode is a single decoded instruction: a wire code identifying its
// OpTable entry, and its operands in schema order.
type Opcode struct {
	Code   varint.VarInt // index into OpTable
	Fields []FieldValue
}

// Name returns the opcode's catalog name (e.g. "Mov", "JTrue").
func (o Opcode) Name() string {
	if int(o.Code.Value) < 0 || int(o.Code.Value) >= len(OpTable) {
		return fmt.Sprintf("Invalid(%d)", o.Code.Value)
	}
	return OpTable[o.Code.Value].Name
}

// Field looks up a decoded operand by its schema name.
func (o Opcode) Field(name string) (FieldValue, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldValue{}, false
}

// IsJump reports whether the opcode transfers control conditionally or
// unconditionally to another instruction index (every jump, Switch, and
// Trap — EndTrap falls through and is not included).
func (o Opcode) IsJump() bool { return jumpOpcodes[o.Name()] }

// IsCall reports whether the opcode invokes a function, method, or
// closure.
func (o Opcode) IsCall() bool { return callOpcodes[o.Name()] }

// IsReturn reports whether the opcode ends the current function's
// control flow without falling through (Ret, Throw, Rethrow).
func (o Opcode) IsReturn() bool {
	switch o.Name() {
	case "Ret", "Throw", "Rethrow":
		return true
	default:
		return false
	}
}

// DecodeOpcode reads a single instruction from r.
func DecodeOpcode(r *varint.Reader) (Opcode, error) {
	code, err := varint.Decode(r)
	if err != nil {
		return Opcode{}, fmt.Errorf("hlbc: opcode code: %w", err)
	}
	if code.Value < 0 || int(code.Value) >= len(OpTable) {
		return Opcode{}, fmt.Errorf("%w: code %d", ErrUnsupportedOpcode, code.Value)
	}
	def := OpTable[code.Value]
	fields := make([]FieldValue, len(def.Fields))
	for i, schema := range def.Fields {
		switch schema.Kind {
		case FieldScalar:
			v, err := varint.Decode(r)
			if err != nil {
				return Opcode{}, fmt.Errorf("hlbc: %s.%s: %w", def.Name, schema.Name, err)
			}
			fields[i] = FieldValue{Name: schema.Name, Scalar: v}
		case FieldList:
			count, vs, err := varint.DecodeList(r)
			if err != nil {
				return Opcode{}, fmt.Errorf("hlbc: %s.%s: %w", def.Name, schema.Name, err)
			}
			fields[i] = FieldValue{Name: schema.Name, ListCount: count, List: vs}
		}
	}
	return Opcode{Code: code, Fields: fields}, nil
}

// EncodeOpcode writes op back to its wire form.
func EncodeOpcode(w *varint.Writer, op Opcode) error {
	if err := varint.Encode(w, op.Code); err != nil {
		return fmt.Errorf("hlbc: opcode code: %w", err)
	}
	def := OpTable[op.Code.Value]
	for i, schema := range def.Fields {
		fv := op.Fields[i]
		switch schema.Kind {
		case FieldScalar:
			if err := varint.Encode(w, fv.Scalar); err != nil {
				return fmt.Errorf("hlbc: %s.%s: %w", def.Name, schema.Name, err)
			}
		case FieldList:
			count := fv.ListCount
			if int(count.Value) != len(fv.List) {
				count = varint.New(int32(len(fv.List)))
			}
			if err := varint.EncodeList(w, count, fv.List); err != nil {
				return fmt.Errorf("hlbc: %s.%s: %w", def.Name, schema.Name, err)
			}
		}
	}
	return nil
}
