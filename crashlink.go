// Package crashlink decompiles HashLink bytecode modules into readable
// pseudo-code. It ties together the bytecode codec (pkg/hlbc), the
// control-flow graph builder (pkg/cfg), the structural lifter (pkg/ir),
// and the disassembler (pkg/disasm) behind a handful of entry points
// that take and return byte buffers and in-memory values — there is no
// file I/O anywhere in this module; a caller owns that.
package crashlink

import (
	"fmt"

	"github.com/N3rdL0rd/crashlink/pkg/cfg"
	"github.com/N3rdL0rd/crashlink/pkg/disasm"
	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
	"github.com/N3rdL0rd/crashlink/pkg/hlconfig"
	"github.com/N3rdL0rd/crashlink/pkg/ir"
)

// Parse decodes buf as a HashLink module.
func Parse(buf []byte) (*hlbc.Module, error) {
	return hlbc.Parse(buf)
}

// Serialize encodes mod back to HashLink's on-disk wire format.
func Serialize(mod *hlbc.Module) ([]byte, error) {
	return hlbc.Serialize(mod)
}

// CFGOf builds the control-flow graph for one of mod's functions,
// simplified (jump-threaded, reachability-marked).
func CFGOf(mod *hlbc.Module, findex int32) (*cfg.Graph, error) {
	fn, native, err := mod.FindFunction(findex)
	if err != nil {
		return nil, fmt.Errorf("crashlink: CFGOf: %w", err)
	}
	if native != nil {
		return nil, fmt.Errorf("crashlink: CFGOf: f@%d is a native, has no bytecode body", findex)
	}
	g, err := cfg.Build(fn)
	if err != nil {
		return nil, fmt.Errorf("crashlink: CFGOf: %w", err)
	}
	g.Simplify()
	return g, nil
}

// IROf lifts one of mod's functions into structured IR and runs the
// optimizer pipeline over it. opts may be nil, in which case every pass
// runs with hlconfig.Default()'s settings.
func IROf(mod *hlbc.Module, findex int32, opts *hlconfig.DecompileOptions) (*ir.Func, error) {
	fn, native, err := mod.FindFunction(findex)
	if err != nil {
		return nil, fmt.Errorf("crashlink: IROf: %w", err)
	}
	if native != nil {
		return nil, fmt.Errorf("crashlink: IROf: f@%d is a native, has no bytecode body", findex)
	}
	g, err := cfg.Build(fn)
	if err != nil {
		return nil, fmt.Errorf("crashlink: IROf: %w", err)
	}
	g.Simplify()

	out, err := ir.Lift(mod, fn, g)
	if err != nil {
		return nil, fmt.Errorf("crashlink: IROf: %w", err)
	}

	resolved := hlconfig.Default()
	if opts != nil {
		resolved = *opts
	}
	assigns := registerAssigns(fn, mod, resolved)
	passes := ir.Passes{
		CoalesceRegisters:    resolved.Optimize.CoalesceRegisters,
		FoldConstants:        resolved.Optimize.FoldConstants,
		CanonicalizeCompares: resolved.Optimize.CanonicalizeCompares,
		FoldConditionals:     resolved.Optimize.FoldConditionals,
		RemoveRedundantMoves: resolved.Optimize.RemoveRedundantMoves,
		EliminateDeadStores:  resolved.Optimize.EliminateDeadStores,
		RecognizeClosures:    resolved.Optimize.RecognizeClosures,
	}
	return ir.OptimizeWith(out, assigns, passes), nil
}

// PseudoOf lifts, optimizes, and renders one of mod's functions as
// Haxe-flavored pseudo-code in one call.
func PseudoOf(mod *hlbc.Module, findex int32, opts *hlconfig.DecompileOptions) (string, error) {
	fn, err := IROf(mod, findex, opts)
	if err != nil {
		return "", err
	}
	return ir.Emit(fn), nil
}

// DisasmOf renders one of mod's functions as a raw opcode listing with
// resolved full name, constant, and field annotations.
func DisasmOf(mod *hlbc.Module, findex int32) (string, error) {
	fn, native, err := mod.FindFunction(findex)
	if err != nil {
		return "", fmt.Errorf("crashlink: DisasmOf: %w", err)
	}
	if native != nil {
		name, _ := disasm.FullFuncName(mod, findex)
		lib, _ := mod.String(native.Lib.Value)
		return fmt.Sprintf("; native %s (lib %s)\n", name, lib), nil
	}
	return disasm.List(mod, fn), nil
}

// registerAssigns builds the register-name map ir.OptimizeWith's
// coalesceRegisters pass uses from the function's debug assign records.
func registerAssigns(raw *hlbc.Function, mod *hlbc.Module, opts hlconfig.DecompileOptions) map[int32]string {
	if !opts.Optimize.CoalesceRegisters || mod == nil {
		return nil
	}
	assigns := make(map[int32]string, len(raw.Assigns))
	for _, a := range raw.Assigns {
		if name, err := mod.String(a.Name.Value); err == nil {
			assigns[a.Reg.Value] = name
		}
	}
	return assigns
}
