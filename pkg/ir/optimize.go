package ir

import "github.com/N3rdL0rd/crashlink/pkg/hlbc"

// Optimize runs the fixed rewrite pipeline over fn's body, in place,
// and returns fn for chaining. The passes run in a fixed order, each
// over the output of the ones before it.
func Optimize(fn *Func, assigns map[int32]string) *Func {
	return OptimizeWith(fn, assigns, PassesAll)
}

// Passes selects which of Optimize's seven passes to run. Each field
// gates the pass of the same name; skipping an early pass can leave
// later passes with less to clean up but never makes them unsafe to
// run, since every pass is independently semantics-preserving.
type Passes struct {
	CoalesceRegisters    bool
	FoldConstants        bool
	CanonicalizeCompares bool
	FoldConditionals     bool
	RemoveRedundantMoves bool
	EliminateDeadStores  bool
	RecognizeClosures    bool
}

// PassesAll runs every pass, Optimize's default.
var PassesAll = Passes{
	CoalesceRegisters:    true,
	FoldConstants:        true,
	CanonicalizeCompares: true,
	FoldConditionals:     true,
	RemoveRedundantMoves: true,
	EliminateDeadStores:  true,
	RecognizeClosures:    true,
}

// OptimizeWith is Optimize with explicit pass selection.
func OptimizeWith(fn *Func, assigns map[int32]string, passes Passes) *Func {
	if passes.CoalesceRegisters {
		coalesceRegisters(fn, assigns)
	}
	if passes.FoldConstants {
		foldConstants(&fn.Body)
	}
	if passes.CanonicalizeCompares {
		canonicalizeComparisons(&fn.Body)
	}
	if passes.FoldConditionals {
		foldConditionals(&fn.Body)
	}
	if passes.RemoveRedundantMoves {
		removeRedundantMoves(&fn.Body)
	}
	if passes.EliminateDeadStores {
		eliminateDeadStores(&fn.Body)
	}
	if passes.RecognizeClosures {
		recognizeClosureCalls(&fn.Body)
	}
	return fn
}

// coalesceRegisters renames every Local by the source name its
// register was assigned in debug metadata, when one exists.
func coalesceRegisters(fn *Func, assigns map[int32]string) {
	if len(assigns) == 0 {
		return
	}
	walkExprs(&fn.Body, func(e Expr) Expr {
		if l, ok := e.(*Local); ok {
			if name, ok := assigns[l.Reg]; ok {
				l.Name = name
			}
		}
		return e
	})
}

// foldConstants collapses Add/Sub/Mul whose operands are both already
// Const nodes, and Neg of a Const, into a single Const, and removes
// double-negation (Not(Not(x)) -> x). Comparisons and the other
// operators are not folded.
func foldConstants(b *Block) {
	walkExprsBlock(b, func(e Expr) Expr {
		if a, ok := e.(*Arithmetic); ok {
			if folded := foldArith(a); folded != nil {
				return folded
			}
			if a.Op == OpNot {
				if inner, ok := a.LHS.(*Arithmetic); ok && inner.Op == OpNot {
					return inner.LHS
				}
			}
		}
		return e
	})
}

func foldArith(a *Arithmetic) Expr {
	lc, ok := a.LHS.(*Const)
	if !ok {
		return nil
	}
	if a.RHS == nil {
		switch a.Op {
		case OpNeg:
			return &Const{Type: lc.Type, Int: -lc.Int, Float: -lc.Float}
		}
		return nil
	}
	rc, ok := a.RHS.(*Const)
	if !ok {
		return nil
	}
	switch a.Op {
	case OpAdd:
		return &Const{Type: lc.Type, Int: lc.Int + rc.Int, Float: lc.Float + rc.Float}
	case OpSub:
		return &Const{Type: lc.Type, Int: lc.Int - rc.Int, Float: lc.Float - rc.Float}
	case OpMul:
		return &Const{Type: lc.Type, Int: lc.Int * rc.Int, Float: lc.Float * rc.Float}
	default:
		return nil
	}
}

// canonicalizeComparisons rewrites "not-less-than" style comparisons
// (JNotLt/JNotGte, which HashLink emits for the same-sense reversed
// test) into their simpler equivalent so the emitter never has to
// print a double negative.
func canonicalizeComparisons(b *Block) {
	walkExprsBlock(b, func(e Expr) Expr {
		c, ok := e.(*Comparison)
		if !ok {
			return e
		}
		switch c.Op {
		case CmpNotLt:
			return &Comparison{LHS: c.LHS, Op: CmpSGte, RHS: c.RHS}
		case CmpNotGte:
			return &Comparison{LHS: c.LHS, Op: CmpSLt, RHS: c.RHS}
		}
		return e
	})
}

// foldConditionals drops an if/else whose condition is a constant
// true/false, keeping only the live branch's statements.
func foldConditionals(b *Block) {
	for i := 0; i < len(b.Stmts); i++ {
		switch s := b.Stmts[i].(type) {
		case *Conditional:
			foldConditionals(&s.Then)
			foldConditionals(&s.Else)
			if c, ok := s.Cond.(*Const); ok && c.Type == hlbc.KindBool {
				var kept []Stmt
				if c.Bool {
					kept = s.Then.Stmts
				} else {
					kept = s.Else.Stmts
				}
				b.Stmts = append(b.Stmts[:i], append(append([]Stmt{}, kept...), b.Stmts[i+1:]...)...)
				i--
			}
		case *Loop:
			foldConditionals(&s.Body)
		case *Switch:
			for ci := range s.Cases {
				foldConditionals(&s.Cases[ci].Body)
			}
			foldConditionals(&s.Default)
		case *Try:
			foldConditionals(&s.Body)
			for ci := range s.Catches {
				foldConditionals(&s.Catches[ci].Body)
			}
		}
	}
}

// removeRedundantMoves deletes self-moves (`x := x`, same register on
// both sides). Other moves, including a temporary copied once into
// another register, are left in place.
func removeRedundantMoves(b *Block) {
	out := b.Stmts[:0]
	for _, s := range b.Stmts {
		if a, ok := s.(*Assign); ok {
			if dl, ok1 := a.Dst.(*Local); ok1 {
				if sl, ok2 := a.Src.(*Local); ok2 && dl.Reg == sl.Reg {
					continue
				}
			}
		}
		out = append(out, s)
	}
	b.Stmts = out
	for _, s := range b.Stmts {
		switch n := s.(type) {
		case *Conditional:
			removeRedundantMoves(&n.Then)
			removeRedundantMoves(&n.Else)
		case *Loop:
			removeRedundantMoves(&n.Body)
		case *Switch:
			for i := range n.Cases {
				removeRedundantMoves(&n.Cases[i].Body)
			}
			removeRedundantMoves(&n.Default)
		case *Try:
			removeRedundantMoves(&n.Body)
			for i := range n.Catches {
				removeRedundantMoves(&n.Catches[i].Body)
			}
		}
	}
}

// eliminateDeadStores drops an Assign to a Local that is never read
// again before either the end of its containing block or a
// reassignment of the same register, within a single structured block
// (it does not trace across Conditional/Loop/Switch/Try boundaries,
// where a store may be observed by a later iteration or an exception
// handler).
func eliminateDeadStores(b *Block) {
	out := b.Stmts[:0]
	for i, s := range b.Stmts {
		if a, ok := s.(*Assign); ok {
			if dl, ok := a.Dst.(*Local); ok && isPure(a.Src) {
				if !usedAfter(b.Stmts[i+1:], dl.Reg) {
					continue
				}
			}
		}
		out = append(out, s)
	}
	b.Stmts = out
	for _, s := range b.Stmts {
		switch n := s.(type) {
		case *Conditional:
			eliminateDeadStores(&n.Then)
			eliminateDeadStores(&n.Else)
		case *Loop:
			eliminateDeadStores(&n.Body)
		case *Switch:
			for i := range n.Cases {
				eliminateDeadStores(&n.Cases[i].Body)
			}
			eliminateDeadStores(&n.Default)
		case *Try:
			eliminateDeadStores(&n.Body)
			for i := range n.Catches {
				eliminateDeadStores(&n.Catches[i].Body)
			}
		}
	}
}

// isPure reports whether evaluating e has no side effect worth
// preserving on its own — a Call always counts as impure even when its
// result is discarded.
func isPure(e Expr) bool {
	switch e.(type) {
	case *Call, *Raw:
		return false
	default:
		return true
	}
}

func usedAfter(stmts []Stmt, reg int32) bool {
	used := false
	for _, s := range stmts {
		walkExprsStmt(s, func(e Expr) Expr {
			if l, ok := e.(*Local); ok && l.Reg == reg {
				used = true
			}
			return e
		})
		if used {
			return true
		}
	}
	return used
}

// recognizeClosureCalls rewrites a CallClosure whose Closure operand is
// itself a StaticClosure/InstanceClosure/VirtualClosure-producing expression inline
// (the common virtual-call-through-a-temporary pattern) into a direct
// Call with the resolved target, when the closure's producing Assign
// immediately precedes the call and the temporary isn't used again.
func recognizeClosureCalls(b *Block) {
	for i := 0; i < len(b.Stmts); i++ {
		cur, ok := b.Stmts[i].(*Assign)
		if !ok {
			continue
		}
		call, ok := callExprOf(cur.Src)
		if !ok || call.Target.Closure == nil {
			continue
		}
		closureLocal, ok := call.Target.Closure.(*Local)
		if !ok || i == 0 {
			continue
		}
		prev, ok := b.Stmts[i-1].(*Assign)
		if !ok {
			continue
		}
		pl, ok := prev.Dst.(*Local)
		if !ok || pl.Reg != closureLocal.Reg {
			continue
		}
		clo, ok := prev.Src.(*Closure)
		if !ok || usedAfter(b.Stmts[i+1:], pl.Reg) {
			continue
		}
		call.Target = CallTarget{FIndex: clo.FIndex, Method: clo.Receiver != nil, Static: clo.Receiver == nil}
		if clo.Receiver != nil {
			call.Args = append([]Expr{clo.Receiver}, call.Args...)
		}
		b.Stmts = append(b.Stmts[:i-1], b.Stmts[i:]...)
		i--
	}
	for _, s := range b.Stmts {
		switch n := s.(type) {
		case *Conditional:
			recognizeClosureCalls(&n.Then)
			recognizeClosureCalls(&n.Else)
		case *Loop:
			recognizeClosureCalls(&n.Body)
		case *Switch:
			for i := range n.Cases {
				recognizeClosureCalls(&n.Cases[i].Body)
			}
			recognizeClosureCalls(&n.Default)
		case *Try:
			recognizeClosureCalls(&n.Body)
			for i := range n.Catches {
				recognizeClosureCalls(&n.Catches[i].Body)
			}
		}
	}
}

func callExprOf(e Expr) (*Call, bool) {
	c, ok := e.(*Call)
	return c, ok
}
