package crashlink

import (
	"strings"
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/hlconfig"
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

func buildModule() *hlbc.Module {
	ops := []hlbc.Opcode{
		op("Add", field("dst", 2), field("a", 0), field("b", 1)),
		op("Ret", field("ret", 2)),
	}
	return &hlbc.Module{
		Strings: varint.StringsBlock{Values: []string{"add"}},
		Functions: []hlbc.Function{
			{
				FIndex: varint.New(0),
				NOps:   varint.New(int32(len(ops))),
				Ops:    ops,
			},
		},
	}
}

func TestCFGOfBuildsGraph(t *testing.T) {
	mod := buildModule()
	g, err := CFGOf(mod, 0)
	if err != nil {
		t.Fatalf("CFGOf() error = %v", err)
	}
	if len(g.Blocks) == 0 {
		t.Error("CFGOf() produced a graph with no blocks")
	}
}

func TestIROfAndPseudoOf(t *testing.T) {
	mod := buildModule()
	fn, err := IROf(mod, 0, nil)
	if err != nil {
		t.Fatalf("IROf() error = %v", err)
	}
	if len(fn.Body.Stmts) == 0 {
		t.Fatal("IROf() produced an empty body")
	}

	src, err := PseudoOf(mod, 0, nil)
	if err != nil {
		t.Fatalf("PseudoOf() error = %v", err)
	}
	if !strings.Contains(src, "return") {
		t.Errorf("PseudoOf() = %q, want it to contain \"return\"", src)
	}
}

func TestIROfHonorsDisabledPasses(t *testing.T) {
	mod := buildModule()
	opts := hlconfig.Default()
	opts.Optimize.RecognizeClosures = false
	fn, err := IROf(mod, 0, &opts)
	if err != nil {
		t.Fatalf("IROf() error = %v", err)
	}
	if fn == nil {
		t.Fatal("IROf() returned nil Func")
	}
}

func TestDisasmOfRendersListing(t *testing.T) {
	mod := buildModule()
	out, err := DisasmOf(mod, 0)
	if err != nil {
		t.Fatalf("DisasmOf() error = %v", err)
	}
	if !strings.Contains(out, "Add") || !strings.Contains(out, "Ret") {
		t.Errorf("DisasmOf() = %q, want it to contain both opcodes", out)
	}
}

func TestCFGOfUnknownFunctionIndex(t *testing.T) {
	mod := buildModule()
	if _, err := CFGOf(mod, 99); err == nil {
		t.Error("CFGOf() error = nil, want an error for an unknown findex")
	}
}
