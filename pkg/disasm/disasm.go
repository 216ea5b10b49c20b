// Package disasm renders a function's raw opcode stream as a
// human-readable listing and provides the text<->opcode round trip used
// by patch-authoring tools layered on top of the codec.
package disasm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/varint"
)

// List renders fn's opcodes as an indexed listing, one instruction per
// line, with a header naming the function. mod resolves string, int and
// float pool references into their literal values in trailing comments; it
// may be nil, in which case those comments are omitted.
func List(mod *hlbc.Module, fn *hlbc.Function) string {
	var sb strings.Builder
	name := fmt.Sprintf("f@%d", fn.FIndex.Value)
	if mod != nil {
		if full, err := FullFuncName(mod, fn.FIndex.Value); err == nil {
			name = full
		}
	}
	fmt.Fprintf(&sb, "; function %s (%d regs, %d ops)\n", name, len(fn.Regs), len(fn.Ops))
	for i, op := range fn.Ops {
		fmt.Fprintf(&sb, "%4d  %s\n", i, formatOp(mod, op))
	}
	return sb.String()
}

func formatOp(mod *hlbc.Module, op hlbc.Opcode) string {
	var parts []string
	parts = append(parts, op.Name())
	for _, f := range op.Fields {
		if f.List != nil {
			vals := make([]string, len(f.List))
			for i, v := range f.List {
				vals[i] = strconv.FormatInt(int64(v.Value), 10)
			}
			parts = append(parts, fmt.Sprintf("%s=[%s]", f.Name, strings.Join(vals, ",")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", f.Name, f.Scalar.Value))
	}
	line := strings.Join(parts, " ")
	if comment := annotate(mod, op); comment != "" {
		line += " ; " + comment
	}
	return line
}

// annotate resolves a ref-like operand (string/int pool index, field
// name) into a literal value for the trailing comment, covering the
// opcodes where that's most useful for reading a listing; mod may be
// nil, in which case every opcode is left unannotated.
func annotate(mod *hlbc.Module, op hlbc.Opcode) string {
	if mod == nil {
		return ""
	}
	switch op.Name() {
	case "String", "DynGet", "DynSet":
		name := "ptr"
		if _, ok := op.Field("field"); ok {
			name = "field"
		}
		f, ok := op.Field(name)
		if !ok {
			return ""
		}
		if s, err := mod.String(f.Scalar.Value); err == nil {
			return strconv.Quote(s)
		}
	case "Int":
		f, ok := op.Field("ptr")
		if ok && int(f.Scalar.Value) < len(mod.Ints) {
			return strconv.FormatInt(int64(mod.Ints[f.Scalar.Value]), 10)
		}
	case "Float":
		f, ok := op.Field("ptr")
		if ok && int(f.Scalar.Value) < len(mod.Floats) {
			return strconv.FormatFloat(mod.Floats[f.Scalar.Value], 'g', -1, 64)
		}
	}
	return ""
}

// FullFuncName resolves findex to a "Class.method" name by scanning
// every object type's resolved protos (virtual methods) and bindings
// (static overrides), the same lookup the original tooling's
// full_func_name/get_proto_for/get_field_for perform. A findex claimed
// by neither — a free function or a native — renders as "f@<findex>".
func FullFuncName(mod *hlbc.Module, findex int32) (string, error) {
	for _, t := range mod.Types {
		obj, ok := t.Def.(*hlbc.ObjType)
		if !ok {
			continue
		}
		className, err := mod.String(obj.Name.Value)
		if err != nil {
			return "", err
		}
		for _, p := range obj.Protos {
			if p.FIndex.Value != findex {
				continue
			}
			methodName, err := mod.String(p.Name.Value)
			if err != nil {
				return "", err
			}
			return className + "." + methodName, nil
		}
		fields, err := mod.ResolveFields(obj)
		if err != nil {
			return "", err
		}
		for _, b := range obj.Bindings {
			if b.FIndex.Value != findex {
				continue
			}
			if int(b.Field.Value) >= len(fields) {
				continue
			}
			methodName, err := mod.String(fields[b.Field.Value].Name.Value)
			if err != nil {
				return "", err
			}
			return className + "." + methodName, nil
		}
	}
	return fmt.Sprintf("f@%d", findex), nil
}

// IsStatic reports whether findex is bound as a static override
// (a Binding) rather than a virtual method (a Proto). A findex that
// isn't claimed by either reports false.
func IsStatic(mod *hlbc.Module, findex int32) (bool, error) {
	for _, t := range mod.Types {
		obj, ok := t.Def.(*hlbc.ObjType)
		if !ok {
			continue
		}
		for _, p := range obj.Protos {
			if p.FIndex.Value == findex {
				return false, nil
			}
		}
		for _, b := range obj.Bindings {
			if b.FIndex.Value == findex {
				return true, nil
			}
		}
	}
	return false, nil
}

// ToAsm renders ops as a human-editable text form, one instruction per
// line: "<name> <field>=<value> ...", list-valued fields bracketed and
// comma-joined. The format is flat and line-oriented by construction —
// every opcode's operands are already resolved to plain integers by
// DecodeOpcode, so recovering them needs only a per-line split, not a
// general-purpose grammar.
func ToAsm(ops []hlbc.Opcode) string {
	var sb strings.Builder
	for _, op := range ops {
		sb.WriteString(formatOp(nil, op))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FromAsm parses src back into an opcode list, the inverse of ToAsm.
// Each non-blank line is "<name> <field>=<value> ..."; a value wrapped
// in brackets is parsed as a comma-separated list field.
func FromAsm(src string) ([]hlbc.Opcode, error) {
	var ops []hlbc.Opcode
	for lineNo, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		tokens := strings.Fields(line)
		code, ok := hlbc.OpcodeByName(tokens[0])
		if !ok {
			return nil, fmt.Errorf("disasm: line %d: unknown opcode %q", lineNo+1, tokens[0])
		}
		op := hlbc.Opcode{Code: varint.New(int32(code))}
		for _, tok := range tokens[1:] {
			name, val, found := strings.Cut(tok, "=")
			if !found {
				return nil, fmt.Errorf("disasm: line %d: malformed field %q", lineNo+1, tok)
			}
			fv, err := parseFieldValue(name, val)
			if err != nil {
				return nil, fmt.Errorf("disasm: line %d: %w", lineNo+1, err)
			}
			op.Fields = append(op.Fields, fv)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseFieldValue(name, val string) (hlbc.FieldValue, error) {
	if strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]") {
		inner := val[1 : len(val)-1]
		var list []varint.VarInt
		if inner != "" {
			for _, part := range strings.Split(inner, ",") {
				n, err := strconv.ParseInt(part, 10, 32)
				if err != nil {
					return hlbc.FieldValue{}, fmt.Errorf("field %s: %w", name, err)
				}
				list = append(list, varint.New(int32(n)))
			}
		}
		return hlbc.FieldValue{Name: name, ListCount: varint.New(int32(len(list))), List: list}, nil
	}
	n, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		return hlbc.FieldValue{}, fmt.Errorf("field %s: %w", name, err)
	}
	return hlbc.FieldValue{Name: name, Scalar: varint.New(int32(n))}, nil
}
