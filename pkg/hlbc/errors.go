// Package hlbc implements the HashLink bytecode data model: the type
// table, constant pools, opcode catalog, function bodies, and the module
// container that ties them together, plus the byte-exact codec between
// that model and HashLink's on-disk wire format.
package hlbc

import "errors"

// ErrMalformedInput is returned when a byte buffer does not contain a
// well-formed HashLink module: a bad magic number, a truncated section,
// or a field that decodes but violates a structural constraint (e.g. a
// count that would read past the end of the buffer).
var ErrMalformedInput = errors.New("hlbc: malformed input")

// ErrInvalidReference is returned when a resolvable index (type, string,
// function, field, global, ...) points outside the bounds of its pool.
var ErrInvalidReference = errors.New("hlbc: invalid reference")

// ErrUnsupportedOpcode is returned when an opcode byte falls outside the
// closed catalog this package knows how to decode.
var ErrUnsupportedOpcode = errors.New("hlbc: unsupported opcode")
