package ir

import (
	"strings"
	"testing"

	"github.com/N3rdL0rd/crashlink/pkg/cfg"
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

func buildFunc(ops ...hlbc.Opcode) *hlbc.Function {
	return &hlbc.Function{NOps: varint.New(int32(len(ops))), Ops: ops}
}

func liftOrFatal(t *testing.T, ops ...hlbc.Opcode) *Func {
	t.Helper()
	fn := buildFunc(ops...)
	g, err := cfg.Build(fn)
	if err != nil {
		t.Fatalf("cfg.Build() error = %v", err)
	}
	g.Simplify()
	out, err := Lift(nil, fn, g)
	if err != nil {
		t.Fatalf("Lift() error = %v", err)
	}
	return out
}

func countStmts[T Stmt](b Block) int {
	n := 0
	for _, s := range b.Stmts {
		if _, ok := s.(T); ok {
			n++
		}
		switch c := s.(type) {
		case *Conditional:
			n += countStmts[T](c.Then) + countStmts[T](c.Else)
		case *Loop:
			n += countStmts[T](c.Body)
		case *Switch:
			for _, cs := range c.Cases {
				n += countStmts[T](cs.Body)
			}
			n += countStmts[T](c.Default)
		case *Try:
			n += countStmts[T](c.Body)
			for _, cc := range c.Catches {
				n += countStmts[T](cc.Body)
			}
		}
	}
	return n
}

func TestLiftEmptyProgram(t *testing.T) {
	fn := liftOrFatal(t, op("Ret", field("ret", 0)))
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("Body.Stmts = %#v, want a single Return", fn.Body.Stmts)
	}
	if _, ok := fn.Body.Stmts[0].(*Return); !ok {
		t.Errorf("Body.Stmts[0] = %T, want *Return", fn.Body.Stmts[0])
	}
}

func TestLiftArithmetic(t *testing.T) {
	fn := liftOrFatal(t,
		op("Add", field("dst", 2), field("a", 0), field("b", 1)),
		op("Ret", field("ret", 2)),
	)
	if countStmts[*Assign](fn.Body) != 1 {
		t.Fatalf("Body = %#v, want one Assign", fn.Body.Stmts)
	}
	assign := fn.Body.Stmts[0].(*Assign)
	arith, ok := assign.Src.(*Arithmetic)
	if !ok || arith.Op != OpAdd {
		t.Errorf("assign.Src = %#v, want Arithmetic{Op: OpAdd}", assign.Src)
	}
}

func TestLiftIfElseDiamond(t *testing.T) {
	// 0: JSGt r0, r1, +2  -> true branch at op 3 (taken: r0 > r1)
	// 1: Int r2, 0        (false/fallthrough branch)
	// 2: JAlways +1       -> merge at op 4
	// 3: Int r2, 1        (true branch)
	// 4: Ret r2
	fn := liftOrFatal(t,
		op("JSGt", field("a", 0), field("b", 1), field("offset", 2)),
		op("Int", field("dst", 2), field("ptr", 0)),
		op("JAlways", field("offset", 1)),
		op("Int", field("dst", 2), field("ptr", 1)),
		op("Ret", field("ret", 2)),
	)
	if countStmts[*Conditional](fn.Body) != 1 {
		t.Fatalf("Body = %#v, want exactly one Conditional", fn.Body.Stmts)
	}
	var cond *Conditional
	for _, s := range fn.Body.Stmts {
		if c, ok := s.(*Conditional); ok {
			cond = c
		}
	}
	if cond == nil {
		t.Fatal("no Conditional found")
	}
	if len(cond.Then.Stmts) == 0 || len(cond.Else.Stmts) == 0 {
		t.Errorf("Conditional = %#v, want non-empty Then and Else", cond)
	}
}

func TestLiftWhileLoop(t *testing.T) {
	// 0: JSGte r0, r1, +2  -> exit to op 3 when r0 >= r1 (loop test, negated)
	// 1: Incr r0           (body)
	// 2: JAlways -3        -> back to op 0 (header)
	// 3: Ret r0
	fn := liftOrFatal(t,
		op("JSGte", field("a", 0), field("b", 1), field("offset", 2)),
		op("Incr", field("dst", 0)),
		op("JAlways", field("offset", -3)),
		op("Ret", field("ret", 0)),
	)
	if countStmts[*Loop](fn.Body) != 1 {
		t.Fatalf("Body = %#v, want exactly one Loop", fn.Body.Stmts)
	}
}

func TestLiftDoWhileLoop(t *testing.T) {
	// 0: Int r0, 0     (header, no test of its own)
	// 1: Incr r0
	// 2: Label         (forces a block split before the tail's test)
	// 3: JSLt r0, r1, -4  -> back to op 0 when r0 < r1 (tail's own test)
	// 4: Ret r0
	fn := liftOrFatal(t,
		op("Int", field("dst", 0), field("ptr", 0)),
		op("Incr", field("dst", 0)),
		op("Label"),
		op("JSLt", field("a", 0), field("b", 1), field("offset", -4)),
		op("Ret", field("ret", 0)),
	)
	if countStmts[*Loop](fn.Body) != 1 {
		t.Fatalf("Body = %#v, want exactly one Loop", fn.Body.Stmts)
	}
	var loop *Loop
	for _, s := range fn.Body.Stmts {
		if l, ok := s.(*Loop); ok {
			loop = l
		}
	}
	if loop == nil {
		t.Fatal("no Loop found")
	}
	if loop.Form != LoopPostTested {
		t.Errorf("Loop.Form = %v, want LoopPostTested", loop.Form)
	}
	if loop.Cond == nil {
		t.Error("Loop.Cond = nil, want the tail's comparison")
	}
	if len(loop.Body.Stmts) == 0 {
		t.Errorf("Loop.Body = %#v, want the header's statements", loop.Body.Stmts)
	}
	// a do-while's body already runs the header on its first pass, so
	// there must be no separate leading copy of it before the Loop node.
	if _, ok := fn.Body.Stmts[0].(*Loop); !ok {
		t.Errorf("Body.Stmts[0] = %T, want *Loop with no leading header copy", fn.Body.Stmts[0])
	}
}

func TestLiftVirtualClosureCall(t *testing.T) {
	// 0: VirtualClosure r1, r0, field 7  (bind method_idx 7 off r0)
	// 1: CallClosure r2, r1, []
	// 2: Ret r2
	fn := liftOrFatal(t,
		op("VirtualClosure", field("dst", 1), field("obj", 0), field("field", 7)),
		op("CallClosure", field("dst", 2), field("fun", 1)),
		op("Ret", field("ret", 2)),
	)
	if countStmts[*Assign](fn.Body) != 2 {
		t.Fatalf("Body = %#v, want two Assigns", fn.Body.Stmts)
	}
	clo, ok := fn.Body.Stmts[0].(*Assign).Src.(*Closure)
	if !ok {
		t.Fatalf("Stmts[0].Src = %#v, want *Closure", fn.Body.Stmts[0].(*Assign).Src)
	}
	if clo.FIndex != 7 {
		t.Errorf("Closure.FIndex = %d, want 7 (the VirtualClosure's method_idx operand)", clo.FIndex)
	}
	if clo.Receiver == nil {
		t.Error("Closure.Receiver = nil, want the bound obj register")
	}

	fn = Optimize(fn, nil)
	call, ok := callExprOf(fn.Body.Stmts[len(fn.Body.Stmts)-2].(*Assign).Src)
	if !ok {
		t.Fatalf("fused call not found in %#v", fn.Body.Stmts)
	}
	if call.Target.Closure != nil {
		t.Error("Target.Closure still set after recognizeClosureCalls fusion")
	}
	if call.Target.FIndex != 7 {
		t.Errorf("fused Target.FIndex = %d, want 7", call.Target.FIndex)
	}
	if !call.Target.Method {
		t.Error("fused Target.Method = false, want true for a receiver-bound closure")
	}
}

func TestLiftTryCatch(t *testing.T) {
	// 0: Trap r0, +3  -> handler at op 4
	// 1: Int r1, 0    (protected body)
	// 2: EndTrap r0
	// 3: JAlways +1   -> skip past handler, to op 5
	// 4: Int r1, 1    (handler)
	// 5: Ret r1
	fn := liftOrFatal(t,
		op("Trap", field("exc", 0), field("offset", 3)),
		op("Int", field("dst", 1), field("ptr", 0)),
		op("EndTrap", field("exc", 0)),
		op("JAlways", field("offset", 1)),
		op("Int", field("dst", 1), field("ptr", 1)),
		op("Ret", field("ret", 1)),
	)
	if countStmts[*Try](fn.Body) != 1 {
		t.Fatalf("Body = %#v, want exactly one Try", fn.Body.Stmts)
	}
	var try *Try
	for _, s := range fn.Body.Stmts {
		if tr, ok := s.(*Try); ok {
			try = tr
		}
	}
	if try == nil {
		t.Fatal("no Try found")
	}
	if len(try.Body.Stmts) == 0 {
		t.Errorf("Try.Body = %#v, want a lifted protected body", try.Body)
	}
	if len(try.Catches) != 1 || len(try.Catches[0].Body.Stmts) == 0 {
		t.Fatalf("Try.Catches = %#v, want one non-empty catch", try.Catches)
	}
	if try.Catches[0].Reg != 0 {
		t.Errorf("Catches[0].Reg = %d, want 0", try.Catches[0].Reg)
	}
	if countStmts[*Return](fn.Body) != 1 {
		t.Errorf("Body = %#v, want the Ret after the handler to survive as a Return", fn.Body.Stmts)
	}
}

func TestEmitRendersReturn(t *testing.T) {
	fn := liftOrFatal(t, op("Ret", field("ret", 0)))
	src := Emit(fn)
	if !strings.Contains(src, "return") {
		t.Errorf("Emit() = %q, want it to contain \"return\"", src)
	}
}
