// Package hlconfig defines the decompiler's configuration struct and its
// TOML (de)serialization, operating purely on byte buffers. The core
// never touches the filesystem; a caller that wants config-from-disk
// reads the file itself and hands LoadBytes the contents.
package hlconfig

import (
	"bytes"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// DecompileOptions controls how a module is parsed and how its
// functions are lifted and rendered.
type DecompileOptions struct {
	Codec    CodecOptions    `toml:"codec"`
	Optimize OptimizeOptions `toml:"optimize"`
	Render   RenderOptions   `toml:"render"`
}

// CodecOptions records bytecode version expectations. They are carried
// and (de)serialized only: hlbc.Parse takes no options and does not
// consult them.
type CodecOptions struct {
	MinVersion int  `toml:"min-version"`
	MaxVersion int  `toml:"max-version"`
	Strict     bool `toml:"strict"`
}

// OptimizeOptions toggles individual passes in the IR optimizer
// pipeline. A pass name here matches the unexported pass function it
// controls, e.g. "fold-constants" gates foldConstants.
type OptimizeOptions struct {
	CoalesceRegisters    bool `toml:"coalesce-registers"`
	FoldConstants        bool `toml:"fold-constants"`
	CanonicalizeCompares bool `toml:"canonicalize-compares"`
	FoldConditionals     bool `toml:"fold-conditionals"`
	RemoveRedundantMoves bool `toml:"remove-redundant-moves"`
	EliminateDeadStores  bool `toml:"eliminate-dead-stores"`
	RecognizeClosures    bool `toml:"recognize-closures"`
}

// RenderOptions records pseudo-code rendering preferences. They are
// carried and (de)serialized only: ir.Emit takes no options, always
// indents with four spaces and prints no opcode-index comments.
type RenderOptions struct {
	IndentWidth    int  `toml:"indent-width"`
	ShowOpcodeRefs bool `toml:"show-opcode-refs"`
}

// Default returns the options a bare call to the facade package's
// decompile entry points uses when none are supplied: every optimizer
// pass enabled, a four-space indent, no opcode-index comments.
func Default() DecompileOptions {
	return DecompileOptions{
		Codec: CodecOptions{MinVersion: 2, MaxVersion: 5, Strict: false},
		Optimize: OptimizeOptions{
			CoalesceRegisters:    true,
			FoldConstants:        true,
			CanonicalizeCompares: true,
			FoldConditionals:     true,
			RemoveRedundantMoves: true,
			EliminateDeadStores:  true,
			RecognizeClosures:    true,
		},
		Render: RenderOptions{IndentWidth: 4, ShowOpcodeRefs: false},
	}
}

// LoadBytes parses TOML-encoded options from buf, starting from
// Default() so an omitted table or key keeps its default value.
func LoadBytes(buf []byte) (DecompileOptions, error) {
	opts := Default()
	if err := toml.Unmarshal(buf, &opts); err != nil {
		return DecompileOptions{}, fmt.Errorf("hlconfig: parse: %w", err)
	}
	return opts, nil
}

// LoadReader is LoadBytes for a streaming source.
func LoadReader(r io.Reader) (DecompileOptions, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return DecompileOptions{}, fmt.Errorf("hlconfig: read: %w", err)
	}
	return LoadBytes(buf)
}

// MarshalBytes encodes opts back to TOML.
func MarshalBytes(opts DecompileOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(opts); err != nil {
		return nil, fmt.Errorf("hlconfig: encode: %w", err)
	}
	return buf.Bytes(), nil
}
