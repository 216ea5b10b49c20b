// Package cfg builds control-flow graphs over a HashLink function's
// opcode stream: basic blocks, typed edges between them, and the
// exception-handler regions implied by Trap/EndTrap pairs.
package cfg

import (
	"fmt"
	"sort"

	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/tracelog"
)

// EdgeKind is the typed relationship between two basic blocks.
type EdgeKind int

const (
	EdgeUnconditional EdgeKind = iota
	EdgeTrue
	EdgeFalse
	EdgeSwitchCase
	EdgeSwitchDefault
	EdgeTrapCatch
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeUnconditional:
		return "unconditional"
	case EdgeTrue:
		return "true"
	case EdgeFalse:
		return "false"
	case EdgeSwitchCase:
		return "switch"
	case EdgeSwitchDefault:
		return "switch-default"
	case EdgeTrapCatch:
		return "trap"
	default:
		return "unknown"
	}
}

// Edge is a directed, typed connection from one block to another. Case
// is only meaningful when Kind is EdgeSwitchCase.
type Edge struct {
	Kind EdgeKind
	To   int // block index
	Case int32
}

// Block is a maximal straight-line run of instructions: [Start, End) are
// op indices into the owning function's Ops slice, End exclusive.
type Block struct {
	Start, End int
	Edges      []Edge
	// Reachable is set by Simplify's dead-block pass; unreachable blocks
	// are kept (per spec) rather than dropped, so callers can still
	// inspect them, but are flagged.
	Reachable bool
}

// Ops returns the block's instruction slice from fn.
func (b Block) Ops(fn *hlbc.Function) []hlbc.Opcode { return fn.Ops[b.Start:b.End] }

// TrapRegion is an exception-handler-protected instruction range: ops in
// [Start, End) are guarded, and a thrown exception transfers control to
// Handler with the exception value in Reg.
type TrapRegion struct {
	Start, End int
	Handler    int // op index the handler begins at
	Reg        int32
}

// Graph is a function's complete control-flow graph.
type Graph struct {
	Func   *hlbc.Function
	Blocks []Block
	Traps  []TrapRegion

	// leaderBlock maps a leader op index to its block's index in Blocks.
	leaderBlock map[int]int
}

var conditionalJumps = map[string]bool{
	"JTrue": true, "JFalse": true, "JNull": true, "JNotNull": true,
	"JSLt": true, "JSGte": true, "JSGt": true, "JSLte": true,
	"JULt": true, "JUGte": true, "JNotLt": true, "JNotGte": true,
	"JEq": true, "JNotEq": true,
}

func offsetField(op hlbc.Opcode) int32 {
	if f, ok := op.Field("offset"); ok {
		return f.Scalar.Value
	}
	return 0
}

// Build partitions fn's instruction stream into basic blocks and wires
// the typed edges between them, following the leader rules of §3.5:
// op 0, every branch target, the op following every branch, the op
// following every Throw/Ret, every Trap target, and every Label.
func Build(fn *hlbc.Function) (*Graph, error) {
	g := &Graph{Func: fn, leaderBlock: map[int]int{}}
	if len(fn.Ops) == 0 {
		return g, nil
	}

	leaders := map[int]bool{0: true}
	for i, op := range fn.Ops {
		name := op.Name()
		switch {
		case conditionalJumps[name] || name == "JAlways" || name == "Trap":
			target := i + 1 + int(offsetField(op))
			leaders[target] = true
			leaders[i+1] = true
		case name == "Switch":
			if offsets, ok := op.Field("offsets"); ok {
				for _, off := range offsets.List {
					leaders[i+1+int(off.Value)] = true
				}
			}
			if end, ok := op.Field("end"); ok {
				leaders[i+1+int(end.Scalar.Value)] = true
			}
			leaders[i+1] = true
		case name == "Ret" || name == "Throw" || name == "Rethrow":
			leaders[i+1] = true
		case name == "Label":
			leaders[i] = true
		}
	}

	sorted := make([]int, 0, len(leaders))
	for l := range leaders {
		if l >= 0 && l < len(fn.Ops) {
			sorted = append(sorted, l)
		}
	}
	sort.Ints(sorted)

	for idx, start := range sorted {
		end := len(fn.Ops)
		if idx+1 < len(sorted) {
			end = sorted[idx+1]
		}
		if start >= end {
			continue
		}
		g.leaderBlock[start] = len(g.Blocks)
		g.Blocks = append(g.Blocks, Block{Start: start, End: end})
	}

	tracelog.Debug("findex %d: %d leaders -> %d blocks", fn.FIndex.Value, len(sorted), len(g.Blocks))

	for bi := range g.Blocks {
		if err := g.wireBlock(bi); err != nil {
			return nil, err
		}
	}

	g.buildTrapRegions()
	tracelog.Debug("findex %d: wired %d blocks, %d trap regions", fn.FIndex.Value, len(g.Blocks), len(g.Traps))
	return g, nil
}

func (g *Graph) blockAt(opIdx int) (int, bool) {
	bi, ok := g.leaderBlock[opIdx]
	return bi, ok
}

func (g *Graph) wireBlock(bi int) error {
	b := &g.Blocks[bi]
	if b.End == b.Start {
		return nil
	}
	last := g.Func.Ops[b.End-1]
	name := last.Name()
	nextIdx := b.End

	switch {
	case conditionalJumps[name]:
		target := b.End - 1 + 1 + int(offsetField(last))
		if target == nextIdx {
			// fall-through target coincides with the branch target:
			// a single unconditional edge, per §4.4's tie-break rule.
			if to, ok := g.blockAt(nextIdx); ok {
				b.Edges = append(b.Edges, Edge{Kind: EdgeUnconditional, To: to})
			}
			return nil
		}
		if to, ok := g.blockAt(target); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeTrue, To: to})
		}
		if to, ok := g.blockAt(nextIdx); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeFalse, To: to})
		}

	case name == "Switch":
		offsets, _ := last.Field("offsets")
		for i, off := range offsets.List {
			if off.Value == 0 {
				continue
			}
			target := b.End - 1 + 1 + int(off.Value)
			if to, ok := g.blockAt(target); ok {
				b.Edges = append(b.Edges, Edge{Kind: EdgeSwitchCase, To: to, Case: int32(i)})
			}
		}
		if to, ok := g.blockAt(nextIdx); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeSwitchDefault, To: to})
		}

	case name == "Trap":
		target := b.End - 1 + 1 + int(offsetField(last))
		if to, ok := g.blockAt(target); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeTrapCatch, To: to})
			tracelog.Trace("block %d: trap edge -> handler block %d", bi, to)
		}
		if to, ok := g.blockAt(nextIdx); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeUnconditional, To: to})
		}

	case name == "JAlways":
		target := b.End - 1 + 1 + int(offsetField(last))
		if to, ok := g.blockAt(target); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeUnconditional, To: to})
		}

	case name == "Ret" || name == "Throw" || name == "Rethrow":
		// terminal: no successors.

	default:
		if to, ok := g.blockAt(nextIdx); ok {
			b.Edges = append(b.Edges, Edge{Kind: EdgeUnconditional, To: to})
		}
	}
	return nil
}

// buildTrapRegions scans the op stream for balanced Trap/EndTrap pairs
// using a stack, matching §4.4's "push on Trap, pop on matching EndTrap"
// rule. Unbalanced traps are reported but do not abort CFG construction.
func (g *Graph) buildTrapRegions() {
	type pending struct {
		start   int
		handler int
		reg     int32
	}
	var stack []pending
	for i, op := range g.Func.Ops {
		switch op.Name() {
		case "Trap":
			handler := i + 1 + int(offsetField(op))
			reg := int32(-1)
			if exc, ok := op.Field("exc"); ok {
				reg = exc.Scalar.Value
			}
			stack = append(stack, pending{start: i + 1, handler: handler, reg: reg})
		case "EndTrap":
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			g.Traps = append(g.Traps, TrapRegion{Start: top.start, End: i, Handler: top.handler, Reg: top.reg})
			tracelog.Trace("trap region [%d,%d) -> handler %d reg %d", top.start, i, top.handler, top.reg)
		}
	}
}

// Simplify runs jump-threading (routing edges around single-instruction
// JAlways blocks to their target) and dead-block marking over g, in place.
func (g *Graph) Simplify() {
	g.threadJumps()
	g.markReachable()
}

// threadJumps redirects every edge that points at a block consisting of
// nothing but an unconditional jump straight to that jump's target —
// mirroring the original decompiler's CFJumpThreader. The bypassed
// blocks stay in g.Blocks; markReachable then flags them unreachable.
func (g *Graph) threadJumps() {
	redirect := map[int]int{}
	for i, b := range g.Blocks {
		if b.End-b.Start == 1 && g.Func.Ops[b.Start].Name() == "JAlways" && len(b.Edges) == 1 {
			redirect[i] = b.Edges[0].To
		}
	}
	if len(redirect) == 0 {
		return
	}
	resolve := func(to int) int {
		for {
			next, ok := redirect[to]
			if !ok || next == to {
				return to
			}
			to = next
		}
	}
	for i := range g.Blocks {
		if _, removed := redirect[i]; removed {
			continue
		}
		for j := range g.Blocks[i].Edges {
			g.Blocks[i].Edges[j].To = resolve(g.Blocks[i].Edges[j].To)
		}
	}
}

// markReachable flags every block reachable from block 0 via a worklist
// walk. Unreachable blocks stay in g.Blocks (per spec.md §8's CFG
// soundness property) with Reachable left false.
func (g *Graph) markReachable() {
	if len(g.Blocks) == 0 {
		return
	}
	visited := make([]bool, len(g.Blocks))
	worklist := []int{0}
	for len(worklist) > 0 {
		bi := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if visited[bi] {
			continue
		}
		visited[bi] = true
		g.Blocks[bi].Reachable = true
		for _, e := range g.Blocks[bi].Edges {
			worklist = append(worklist, e.To)
		}
	}
}

// BlockContaining returns the index of the block that owns op index pc.
func (g *Graph) BlockContaining(pc int) (int, error) {
	for i, b := range g.Blocks {
		if pc >= b.Start && pc < b.End {
			return i, nil
		}
	}
	return 0, fmt.Errorf("cfg: no block contains op %d", pc)
}
