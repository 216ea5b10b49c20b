package ir

import (
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/cfg"
	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/tracelog"
)

// Func is the lifted form of one bytecode function: a structured Body
// plus enough of the originating signature to drive the emitter and the
// optimizer.
type Func struct {
	FIndex int32
	NArgs  int32
	Regs   []hlbc.Kind
	Body   Block
}

// Lift builds a Func from fn's control-flow graph. mod is used to
// resolve string-pool and type-pool references into names; it may be
// nil, in which case names fall back to raw indices.
func Lift(mod *hlbc.Module, fn *hlbc.Function, g *cfg.Graph) (*Func, error) {
	l := &lifter{mod: mod, fn: fn, g: g}
	l.regTypes = make([]hlbc.Kind, len(fn.Regs))
	for i, t := range fn.Regs {
		if mod != nil {
			if ty, err := mod.Type(t.Value); err == nil {
				l.regTypes[i] = ty.Kind
			}
		}
	}
	if mod != nil {
		if ty, err := mod.Type(fn.Type.Value); err == nil {
			if ft, ok := ty.Def.(*hlbc.FunType); ok {
				l.nargs = ft.NArgs.Value
			}
		}
	}

	l.loopHeaderTail = map[int]int{}
	for bi, blk := range g.Blocks {
		for _, e := range blk.Edges {
			if e.To <= bi {
				if cur, ok := l.loopHeaderTail[e.To]; !ok || bi > cur {
					l.loopHeaderTail[e.To] = bi
				}
			}
		}
	}
	l.claimed = map[int]bool{}

	l.blockAtOp = map[int]int{}
	for bi, blk := range g.Blocks {
		l.blockAtOp[blk.Start] = bi
	}
	l.trapsByStart = map[int]cfg.TrapRegion{}
	for _, tr := range g.Traps {
		if bsi, ok := l.blockAtOp[tr.Start]; ok {
			l.trapsByStart[bsi] = tr
		}
	}
	l.tryStarted = map[int]bool{}

	tracelog.Debug("lifting findex %d: %d blocks, %d trap regions", fn.FIndex.Value, len(g.Blocks), len(g.Traps))
	body, err := l.structureRegion(0, len(g.Blocks), nil)
	if err != nil {
		return nil, err
	}
	return &Func{FIndex: fn.FIndex.Value, NArgs: l.nargs, Regs: l.regTypes, Body: body}, nil
}

type lifter struct {
	mod      *hlbc.Module
	fn       *hlbc.Function
	g        *cfg.Graph
	regTypes []hlbc.Kind
	nargs    int32

	// loopHeaderTail maps each loop header block index to the furthest
	// block that closes a back-edge to it, computed up front so loop
	// recognition happens when structureRegion is about to enter the
	// header — not retroactively once the tail's own backward edge is
	// reached, by which point the header's body would already have been
	// lifted once by the enclosing region.
	loopHeaderTail map[int]int
	// claimed marks block indices already lifted by some region, so a
	// sibling region walking a contiguous index range (e.g. the false
	// arm of an if whose true arm sits between it and the merge point in
	// block order) skips blocks that structurally belong elsewhere.
	claimed map[int]bool
	// blockAtOp maps a block's leading op index to its index in g.Blocks.
	blockAtOp map[int]int
	// trapsByStart maps the block index a trap region's protected body
	// begins at to that region, so structureRegion can recognize it
	// without rescanning g.Traps on every block.
	trapsByStart map[int]cfg.TrapRegion
	// tryStarted marks a trap region's body-start block once structureTry
	// has begun recursing into it, so the nested structureRegion call
	// that lifts the body's own first block doesn't re-match the same
	// entry in trapsByStart and recurse forever.
	tryStarted map[int]bool
}

func (l *lifter) regType(reg int32) hlbc.Kind {
	if int(reg) >= 0 && int(reg) < len(l.regTypes) {
		return l.regTypes[reg]
	}
	return hlbc.KindDyn
}

func (l *lifter) localOrArg(reg int32, nargs int32) Expr {
	if reg < nargs {
		return &Arg{Index: reg, Type: l.regType(reg)}
	}
	return &Local{Reg: reg, Type: l.regType(reg)}
}

func (l *lifter) resolveString(idx int32) string {
	if l.mod == nil {
		return fmt.Sprintf("str%d", idx)
	}
	s, err := l.mod.String(idx)
	if err != nil {
		return fmt.Sprintf("str%d", idx)
	}
	return s
}

// structureRegion recovers structured control flow over the half-open
// block range [start, end), which must be a single-entry region (block
// start dominates every block in the range via straight-line fall
// through in program order, the invariant Build's leader placement
// guarantees). stopAt holds block indices structure recovery must not
// descend into — they belong to the enclosing region (the merge point
// of an if, or the exit of a loop); it may be nil.
func (l *lifter) structureRegion(start, end int, stopAt map[int]bool) (Block, error) {
	var out Block
	bi := start
	for bi < end {
		if stopAt != nil && stopAt[bi] {
			break
		}
		if l.claimed[bi] {
			// Already lifted by a sibling region (e.g. the true arm of
			// an enclosing if, when the false arm's index range happens
			// to pass through it in program order).
			bi++
			continue
		}
		if trap, isTrap := l.trapsByStart[bi]; isTrap && !l.tryStarted[bi] {
			if handlerBlock, ok := l.blockAtOp[trap.Handler]; ok && handlerBlock > bi && handlerBlock < end {
				l.tryStarted[bi] = true
				stmt, next, err := l.structureTry(bi, handlerBlock, trap, end, stopAt)
				if err != nil {
					return Block{}, err
				}
				out.Stmts = append(out.Stmts, stmt)
				bi = next
				continue
			}
		}

		if tail, isHeader := l.loopHeaderTail[bi]; isHeader && tail < end {
			stmts, next, err := l.structureLoop(bi, tail, end, stopAt)
			if err != nil {
				return Block{}, err
			}
			out.Stmts = append(out.Stmts, stmts...)
			bi = next
			continue
		}

		l.claimed[bi] = true
		blk := l.g.Blocks[bi]
		stmts, err := l.liftBlockBody(blk)
		if err != nil {
			return Block{}, err
		}
		out.Stmts = append(out.Stmts, stmts...)

		term, handled, next, err := l.structureTerminator(bi, end, stopAt)
		if err != nil {
			return Block{}, err
		}
		if handled {
			if term != nil {
				out.Stmts = append(out.Stmts, term)
			}
			bi = next
			continue
		}
		bi++
	}
	return out, nil
}

// structureTerminator inspects block bi's outgoing edges and tries to
// recognize a loop, an if/else, or a switch rooted there. handled=false
// means the block's last op was already translated as a plain
// statement (e.g. Ret) by liftBlockBody and control simply falls to the
// next block.
func (l *lifter) structureTerminator(bi, regionEnd int, stopAt map[int]bool) (stmt Stmt, handled bool, next int, err error) {
	blk := l.g.Blocks[bi]
	if len(blk.Edges) == 0 {
		return nil, false, bi + 1, nil
	}
	trueTo, falseTo := -1, -1
	for _, e := range blk.Edges {
		switch e.Kind {
		case cfg.EdgeTrue:
			trueTo = e.To
		case cfg.EdgeFalse:
			falseTo = e.To
		}
	}
	if trueTo >= 0 && falseTo >= 0 {
		return l.structureIf(bi, trueTo, falseTo, regionEnd, stopAt)
	}

	// A single unconditional edge pointing backward (to a block at or
	// before bi) is a loop's own closing back-edge: the Loop statement
	// that structureLoop built for its header already encodes the
	// repetition, so there's nothing left to emit here. One pointing
	// forward is either a jump-threaded fallthrough (nothing to do) or a
	// forward skip that Phase A preserves literally as PrimitiveJump.
	if len(blk.Edges) == 1 && blk.Edges[0].Kind == cfg.EdgeUnconditional {
		to := blk.Edges[0].To
		if to <= bi {
			return nil, false, bi + 1, nil
		}
		if to == bi+1 {
			return nil, false, bi + 1, nil
		}
		if stopAt != nil && stopAt[to] {
			// Jumping straight to this region's own merge/exit point is
			// exactly what falling off the end of the region already
			// does; the jump carries no information structurally.
			return nil, false, bi + 1, nil
		}
		return &PrimitiveJump{TargetPC: l.g.Blocks[to].Start}, true, bi + 1, nil
	}

	hasCase := false
	for _, e := range blk.Edges {
		if e.Kind == cfg.EdgeSwitchCase || e.Kind == cfg.EdgeSwitchDefault {
			hasCase = true
		}
	}
	if hasCase {
		return l.structureSwitch(bi, regionEnd, stopAt)
	}

	// Trap edges are handled structurally via TrapRegion, not here;
	// fall through to the handler-adjacent block in program order.
	return nil, false, bi + 1, nil
}

// structureIf recognizes the common diamond shape: bi branches to
// trueTo/falseTo and both sides reconverge at the nearer of the two
// blocks that the other side eventually reaches. Shapes this doesn't
// recognize (irreducible branches, a branch where one side itself
// returns) degrade gracefully to a Conditional with an empty or
// fallthrough-only Else.
func (l *lifter) structureIf(bi, trueTo, falseTo, regionEnd int, stopAt map[int]bool) (Stmt, bool, int, error) {
	tracelog.Debug("structureIf: block=%d trueTo=%d falseTo=%d", bi, trueTo, falseTo)
	cond, err := l.conditionOf(bi)
	if err != nil {
		return nil, false, 0, err
	}

	merge := l.findMerge(trueTo, falseTo, regionEnd)
	childStop := cloneStop(stopAt)
	if merge >= 0 {
		childStop[merge] = true
	}

	thenBlk, err := l.structureRegion(trueTo, regionEnd, childStop)
	if err != nil {
		return nil, false, 0, err
	}
	var elseBlk Block
	if falseTo != merge {
		elseBlk, err = l.structureRegion(falseTo, regionEnd, childStop)
		if err != nil {
			return nil, false, 0, err
		}
	}

	next := regionEnd
	if merge >= 0 {
		next = merge
	}
	return &Conditional{Cond: cond, Then: thenBlk, Else: elseBlk}, true, next, nil
}

// findMerge returns the first block index >= either branch target that
// both branches reach by straight-line descent, a conservative proxy
// for the immediate post-dominator appropriate to this CFG's
// program-order block numbering. -1 means no merge point was found
// before regionEnd (the branches diverge all the way to the region's
// exit, e.g. both sides return).
func (l *lifter) findMerge(trueTo, falseTo, regionEnd int) int {
	trueReach := l.forwardReachable(trueTo, regionEnd)
	falseReach := l.forwardReachable(falseTo, regionEnd)
	best := -1
	for b := range trueReach {
		if falseReach[b] && (best == -1 || b < best) {
			best = b
		}
	}
	return best
}

// forwardReachable computes the set of blocks reachable from start by
// following only forward edges (e.To > the block being expanded),
// which keeps loop back-edges from polluting the result, and stops
// expanding once it reaches regionEnd or beyond (that boundary is
// still recorded as reachable, so a shared function-exit sentinel can
// itself serve as a merge point).
func (l *lifter) forwardReachable(start, regionEnd int) map[int]bool {
	seen := map[int]bool{}
	stack := []int{start}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if b < 0 || seen[b] {
			continue
		}
		seen[b] = true
		if b >= regionEnd || b >= len(l.g.Blocks) {
			continue
		}
		for _, e := range l.g.Blocks[b].Edges {
			if e.To > b && !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

func cloneStop(m map[int]bool) map[int]bool {
	out := make(map[int]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// structureLoop recognizes the loop headed at block header, whose
// furthest back-edge closes at tail: the body occupies [header, tail]
// and the loop's test, when header's own terminator is a conditional,
// becomes Cond. header is lifted here directly (rather than by the
// generic per-block path in structureRegion) precisely so it is lifted
// exactly once even though it is also the body's own entry block.
func (l *lifter) structureLoop(header, tail, regionEnd int, stopAt map[int]bool) ([]Stmt, int, error) {
	tracelog.Debug("structureLoop: header=%d tail=%d regionEnd=%d", header, tail, regionEnd)
	l.claimed[header] = true
	headerBlk := l.g.Blocks[header]
	prologue, err := l.liftBlockBody(headerBlk)
	if err != nil {
		return nil, 0, err
	}

	var trueTo, falseTo = -1, -1
	for _, e := range headerBlk.Edges {
		switch e.Kind {
		case cfg.EdgeTrue:
			trueTo = e.To
		case cfg.EdgeFalse:
			falseTo = e.To
		}
	}

	form := LoopInfinite
	var cond Expr
	bodyStart := header
	exit := tail + 1
	postTested := false

	if trueTo >= 0 && falseTo >= 0 {
		// header itself is a pre-test: the side staying inside (header,
		// tail] is the body, the side leaving is the loop exit.
		inside, outside := trueTo, falseTo
		negate := false
		if !(trueTo > header && trueTo <= tail) {
			inside, outside = falseTo, trueTo
			negate = true
		}
		c, err := l.conditionOf(header)
		if err != nil {
			return nil, 0, err
		}
		if negate {
			c = negateCompareOrWrap(c)
		}
		form = LoopPreTested
		cond = c
		bodyStart = inside
		exit = outside
	} else if tail != header {
		// header carries no test of its own; check whether the loop's
		// own back-edge block does instead — the post-tested (do-while)
		// shape, whose exit branch sits at the loop's tail rather than
		// its header.
		tailBlk := l.g.Blocks[tail]
		tTrue, tFalse := -1, -1
		for _, e := range tailBlk.Edges {
			switch e.Kind {
			case cfg.EdgeTrue:
				tTrue = e.To
			case cfg.EdgeFalse:
				tFalse = e.To
			}
		}
		if tTrue == header || tFalse == header {
			if c, cerr := l.conditionOf(tail); cerr == nil {
				if tTrue == header {
					cond = c
					exit = tFalse
				} else {
					cond = negateCompareOrWrap(c)
					exit = tTrue
				}
				form = LoopPostTested
				postTested = true
			}
		}
	}

	childStop := cloneStop(stopAt)
	childStop[tail+1] = true

	var body Block
	var leading []Stmt
	if postTested {
		// tail's terminator is the loop's own condition, not a nested
		// if/else — claim it up front so the generic per-block path
		// never routes it through structureIf, and splice its
		// straight-line statements in directly after header's. A
		// do-while's body already runs header first thing on its own
		// first pass, so — unlike the pretest/infinite case below —
		// there is no separate leading copy to return outside the loop.
		l.claimed[tail] = true
		inner, err := l.structureRegion(bodyStart, tail, childStop)
		if err != nil {
			return nil, 0, err
		}
		tailStmts, err := l.liftBlockBody(l.g.Blocks[tail])
		if err != nil {
			return nil, 0, err
		}
		body.Stmts = append(body.Stmts, prologue...)
		body.Stmts = append(body.Stmts, inner.Stmts...)
		body.Stmts = append(body.Stmts, tailStmts...)
	} else {
		b, err := l.structureRegion(bodyStart, tail+1, childStop)
		if err != nil {
			return nil, 0, err
		}
		body = b
		if len(prologue) > 0 {
			// The header's non-terminator statements (the expression a
			// pretest's condition depends on, recomputed every
			// iteration) run once before the first test and again at
			// the end of every later one.
			body.Stmts = append(body.Stmts, prologue...)
		}
		leading = prologue
	}

	loop := &Loop{Form: form, Cond: cond, Body: body}
	tracelog.Debug("structureLoop: header=%d matched form=%d exit=%d", header, form, exit)
	return append(append([]Stmt{}, leading...), loop), exit, nil
}

func negateCompareOrWrap(e Expr) Expr {
	if c, ok := e.(*Comparison); ok {
		return &Comparison{LHS: c.LHS, Op: c.Op.Negate(), RHS: c.RHS}
	}
	return &Arithmetic{LHS: e, Op: OpNot}
}

// structureSwitch lifts a Switch-terminated block into a Switch
// statement, structuring each case/default arm as its own region
// stopping at the switch's overall merge point.
func (l *lifter) structureSwitch(bi, regionEnd int, stopAt map[int]bool) (Stmt, bool, int, error) {
	blk := l.g.Blocks[bi]
	last := l.g.Func.Ops[blk.End-1]
	regF, _ := last.Field("reg")
	scrutinee := l.localOrArg(regF.Scalar.Value, l.nargs)

	merge := regionEnd
	// the switch's merge point is its furthest successor, matching the
	// convention that case/default arms are laid out in increasing
	// program order after the dispatch block.
	max := -1
	for _, e := range blk.Edges {
		if e.To > max {
			max = e.To
		}
	}
	if max >= 0 {
		merge = max
	}

	childStop := cloneStop(stopAt)
	childStop[merge] = true

	sw := &Switch{Scrutinee: scrutinee}
	for _, e := range blk.Edges {
		if e.Kind != cfg.EdgeSwitchCase {
			continue
		}
		body, err := l.structureRegion(e.To, regionEnd, childStop)
		if err != nil {
			return nil, false, 0, err
		}
		sw.Cases = append(sw.Cases, SwitchCase{Value: e.Case, Body: body})
	}
	for _, e := range blk.Edges {
		if e.Kind != cfg.EdgeSwitchDefault {
			continue
		}
		body, err := l.structureRegion(e.To, regionEnd, childStop)
		if err != nil {
			return nil, false, 0, err
		}
		sw.Default = body
	}
	return sw, true, merge, nil
}

// structureTry recognizes the trap region at bi: the protected body
// occupies [bi, handlerBlock) and the handler begins at handlerBlock.
// The body's trailing skip-past-handler jump and the handler's own
// fallthrough reconverge at the same merge point an if/else's two arms
// would, found the same way via findMerge.
func (l *lifter) structureTry(bi, handlerBlock int, trap cfg.TrapRegion, regionEnd int, stopAt map[int]bool) (Stmt, int, error) {
	tracelog.Debug("structureTry: body=%d handler=%d reg=%d", bi, handlerBlock, trap.Reg)
	merge := l.findMerge(bi, handlerBlock, regionEnd)
	if merge == handlerBlock {
		// The body has no explicit jump skipping past the handler (an
		// unusual shape for compiler-generated code); treat the merge as
		// unknown rather than folding the handler's own continuation
		// into what would look like a merge of zero catch statements.
		merge = -1
	}
	childStop := cloneStop(stopAt)
	if merge >= 0 {
		childStop[merge] = true
	}

	body, err := l.structureRegion(bi, handlerBlock, childStop)
	if err != nil {
		return nil, 0, err
	}
	catchBody, err := l.structureRegion(handlerBlock, regionEnd, childStop)
	if err != nil {
		return nil, 0, err
	}

	next := regionEnd
	if merge >= 0 {
		next = merge
	}
	return &Try{
		Body:    body,
		Catches: []CatchClause{{Reg: trap.Reg, Body: catchBody}},
	}, next, nil
}

// conditionOf reinterprets the comparison/null-check jump opcode
// terminating block bi as a Comparison expression, without consuming
// it from the block's already-lifted body (liftBlockBody omits jump
// opcodes from its output on purpose).
func (l *lifter) conditionOf(bi int) (Expr, error) {
	blk := l.g.Blocks[bi]
	op := l.g.Func.Ops[blk.End-1]
	regOf := func(name string) Expr {
		f, _ := op.Field(name)
		return l.localOrArg(f.Scalar.Value, l.nargs)
	}
	switch op.Name() {
	case "JTrue":
		return regOf("cond"), nil
	case "JFalse":
		return &Arithmetic{LHS: regOf("cond"), Op: OpNot}, nil
	case "JNull":
		return &Comparison{LHS: regOf("reg"), Op: CmpEq, RHS: &Const{Type: hlbc.KindDyn}}, nil
	case "JNotNull":
		return &Comparison{LHS: regOf("reg"), Op: CmpNotEq, RHS: &Const{Type: hlbc.KindDyn}}, nil
	case "JSLt":
		return &Comparison{LHS: regOf("a"), Op: CmpSLt, RHS: regOf("b")}, nil
	case "JSGte":
		return &Comparison{LHS: regOf("a"), Op: CmpSGte, RHS: regOf("b")}, nil
	case "JSGt":
		return &Comparison{LHS: regOf("a"), Op: CmpSGt, RHS: regOf("b")}, nil
	case "JSLte":
		return &Comparison{LHS: regOf("a"), Op: CmpSLte, RHS: regOf("b")}, nil
	case "JULt":
		return &Comparison{LHS: regOf("a"), Op: CmpULt, RHS: regOf("b")}, nil
	case "JUGte":
		return &Comparison{LHS: regOf("a"), Op: CmpUGte, RHS: regOf("b")}, nil
	case "JNotLt":
		return &Comparison{LHS: regOf("a"), Op: CmpNotLt, RHS: regOf("b")}, nil
	case "JNotGte":
		return &Comparison{LHS: regOf("a"), Op: CmpNotGte, RHS: regOf("b")}, nil
	case "JEq":
		return &Comparison{LHS: regOf("a"), Op: CmpEq, RHS: regOf("b")}, nil
	case "JNotEq":
		return &Comparison{LHS: regOf("a"), Op: CmpNotEq, RHS: regOf("b")}, nil
	default:
		return nil, fmt.Errorf("ir: block %d has no recognizable condition (terminator %s)", bi, op.Name())
	}
}

// liftBlockBody translates every opcode in blk except a trailing
// jump/Label, which belongs to structureTerminator instead: a
// conditional jump is consumed as a Conditional/Loop's condition, and
// an unconditional one either threads into a fallthrough or becomes a
// PrimitiveJump. Ret/Throw/Rethrow are not jumps and are lifted here
// like any other statement.
func (l *lifter) liftBlockBody(blk cfg.Block) ([]Stmt, error) {
	ops := blk.Ops(l.g.Func)
	var out []Stmt
	limit := len(ops)
	if limit > 0 && (ops[limit-1].IsJump() || ops[limit-1].Name() == "Label") {
		limit--
	}
	for i := 0; i < limit; i++ {
		s, err := l.liftOp(ops[i], blk.Start+i)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (l *lifter) liftOp(op hlbc.Opcode, pc int) (Stmt, error) {
	reg := func(name string) Expr {
		f, _ := op.Field(name)
		return l.localOrArg(f.Scalar.Value, l.nargs)
	}
	dst := func() Expr { return reg("dst") }
	regs := func(name string) []Expr {
		f, _ := op.Field(name)
		out := make([]Expr, len(f.List))
		for i, v := range f.List {
			out[i] = l.localOrArg(v.Value, l.nargs)
		}
		return out
	}

	switch op.Name() {
	case "Mov":
		return &Assign{Dst: dst(), Src: reg("src")}, nil
	case "Int", "Float", "Bytes", "String", "Bool", "Null":
		return &Assign{Dst: dst(), Src: &Const{Type: l.regType(fieldVal(op, "dst"))}}, nil
	case "Add", "Sub", "Mul", "SDiv", "UDiv", "SMod", "UMod", "Shl", "SShr", "UShr", "And", "Or", "Xor":
		return &Assign{Dst: dst(), Src: &Arithmetic{LHS: reg("a"), Op: arithOpFor(op.Name()), RHS: reg("b")}}, nil
	case "Neg":
		return &Assign{Dst: dst(), Src: &Arithmetic{LHS: reg("src"), Op: OpNeg}}, nil
	case "Not":
		return &Assign{Dst: dst(), Src: &Arithmetic{LHS: reg("src"), Op: OpNot}}, nil
	case "Incr":
		return &Assign{Dst: dst(), Src: &Arithmetic{LHS: dst(), Op: OpAdd, RHS: &Const{Type: hlbc.KindI32, Int: 1}}}, nil
	case "Decr":
		return &Assign{Dst: dst(), Src: &Arithmetic{LHS: dst(), Op: OpSub, RHS: &Const{Type: hlbc.KindI32, Int: 1}}}, nil
	case "Call0", "Call1", "Call2", "Call3", "Call4":
		fv, _ := op.Field("fun")
		var args []Expr
		for _, name := range []string{"arg0", "arg1", "arg2", "arg3"} {
			if f, ok := op.Field(name); ok {
				args = append(args, l.localOrArg(f.Scalar.Value, l.nargs))
			}
		}
		return l.wrapCall(dst(), CallTarget{FIndex: fv.Scalar.Value, Static: true}, args)
	case "CallN":
		fv, _ := op.Field("fun")
		return l.wrapCall(dst(), CallTarget{FIndex: fv.Scalar.Value, Static: true}, regs("args"))
	case "CallMethod", "CallThis":
		ff, _ := op.Field("field")
		return l.wrapCall(dst(), CallTarget{FIndex: ff.Scalar.Value, Method: true}, regs("args"))
	case "CallClosure":
		return l.wrapCall(dst(), CallTarget{Closure: reg("fun")}, regs("args"))
	case "StaticClosure":
		fv, _ := op.Field("fun")
		return &Assign{Dst: dst(), Src: &Closure{FIndex: fv.Scalar.Value}}, nil
	case "InstanceClosure":
		fv, _ := op.Field("fun")
		return &Assign{Dst: dst(), Src: &Closure{FIndex: fv.Scalar.Value, Receiver: reg("obj")}}, nil
	case "VirtualClosure":
		ff, _ := op.Field("field")
		return &Assign{Dst: dst(), Src: &Closure{FIndex: ff.Scalar.Value, Receiver: reg("obj")}}, nil
	case "GetGlobal":
		gv, _ := op.Field("global")
		return &Assign{Dst: dst(), Src: &Field{FieldName: fmt.Sprintf("global%d", gv.Scalar.Value)}}, nil
	case "SetGlobal":
		gv, _ := op.Field("global")
		return &Assign{Dst: &Field{FieldName: fmt.Sprintf("global%d", gv.Scalar.Value)}, Src: reg("src")}, nil
	case "Field", "GetThis":
		objExpr := reg("obj")
		if op.Name() == "GetThis" {
			objExpr = l.localOrArg(0, l.nargs)
		}
		ff, _ := op.Field("field")
		return &Assign{Dst: dst(), Src: &Field{Obj: objExpr, FieldIdx: ff.Scalar.Value}}, nil
	case "SetField", "SetThis":
		objExpr := reg("obj")
		if op.Name() == "SetThis" {
			objExpr = l.localOrArg(0, l.nargs)
		}
		ff, _ := op.Field("field")
		return &Assign{Dst: &Field{Obj: objExpr, FieldIdx: ff.Scalar.Value}, Src: reg("src")}, nil
	case "DynGet":
		fs, _ := op.Field("field")
		return &Assign{Dst: dst(), Src: &Field{Obj: reg("obj"), FieldName: l.resolveString(fs.Scalar.Value)}}, nil
	case "DynSet":
		fs, _ := op.Field("field")
		return &Assign{Dst: &Field{Obj: reg("obj"), FieldName: l.resolveString(fs.Scalar.Value)}, Src: reg("src")}, nil
	case "ToDyn", "ToSFloat", "ToUFloat", "ToInt", "SafeCast", "UnsafeCast", "ToVirtual":
		return &Assign{Dst: dst(), Src: &Cast{Expr: reg("src"), TargetType: l.regType(fieldVal(op, "dst")), Kind: op.Name()}}, nil
	case "Ret":
		v := reg("ret")
		if l.regType(fieldVal(op, "ret")) == hlbc.KindVoid {
			return &Return{}, nil
		}
		return &Return{Value: v}, nil
	case "Throw":
		return &Throw{Value: reg("exc")}, nil
	case "Rethrow":
		return &Throw{Value: reg("exc"), Rethrow: true}, nil
	case "NullCheck":
		return &ExprStmt{Expr: &Comparison{LHS: reg("reg"), Op: CmpEq, RHS: &Const{Type: hlbc.KindDyn}}}, nil
	case "New":
		return &Assign{Dst: dst(), Src: &New{Type: l.regType(fieldVal(op, "dst"))}}, nil
	case "ArraySize":
		return &Assign{Dst: dst(), Src: &Field{Obj: reg("array"), FieldName: "length"}}, nil
	case "GetArray":
		return &Assign{Dst: dst(), Src: &Raw{Op: op}}, nil
	case "SetArray":
		return &ExprStmt{Expr: &Raw{Op: op}}, nil
	case "MakeEnum":
		cv, _ := op.Field("construct")
		return &Assign{Dst: dst(), Src: &EnumConstruct{Construct: cv.Scalar.Value, Args: regs("args")}}, nil
	case "EnumAlloc":
		cv, _ := op.Field("construct")
		return &Assign{Dst: dst(), Src: &EnumConstruct{Construct: cv.Scalar.Value}}, nil
	case "EnumIndex":
		return &Assign{Dst: dst(), Src: &Field{Obj: reg("value"), FieldName: "index"}}, nil
	case "EnumField":
		ff, _ := op.Field("field")
		return &Assign{Dst: dst(), Src: &Field{Obj: reg("value"), FieldIdx: ff.Scalar.Value}}, nil
	case "SetEnumField":
		ff, _ := op.Field("field")
		return &Assign{Dst: &Field{Obj: reg("value"), FieldIdx: ff.Scalar.Value}, Src: reg("src")}, nil
	case "Nop", "Assert", "Label", "EndTrap":
		return nil, nil
	default:
		return &UntranslatedOpcode{Op: op, PC: pc}, nil
	}
}

func (l *lifter) wrapCall(dst Expr, target CallTarget, args []Expr) (Stmt, error) {
	call := &Call{Target: target, Args: args}
	if dst == nil {
		return &ExprStmt{Expr: call}, nil
	}
	return &Assign{Dst: dst, Src: call}, nil
}

func fieldVal(op hlbc.Opcode, name string) int32 {
	f, _ := op.Field(name)
	return f.Scalar.Value
}

func arithOpFor(name string) ArithOp {
	switch name {
	case "Add":
		return OpAdd
	case "Sub":
		return OpSub
	case "Mul":
		return OpMul
	case "SDiv":
		return OpSDiv
	case "UDiv":
		return OpUDiv
	case "SMod":
		return OpSMod
	case "UMod":
		return OpUMod
	case "Shl":
		return OpShl
	case "SShr":
		return OpSShr
	case "UShr":
		return OpUShr
	case "And":
		return OpAnd
	case "Or":
		return OpOr
	case "Xor":
		return OpXor
	default:
		return OpAdd
	}
}
