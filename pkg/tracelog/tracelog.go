// Package tracelog wraps commonlog behind a package-level logger used by
// the codec, CFG builder, and lifter to emit debug/trace records while
// walking a module. No call in this package affects control flow or
// return values; it exists purely so a caller can turn on commonlog's
// simple backend and watch a decompile happen.
package tracelog

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("crashlink")

// Debug logs a coarse-grained progress record: section boundaries while
// parsing a module, block/edge construction in the CFG builder, entry
// and exit of a structure-recovery pattern match in the lifter.
func Debug(format string, args ...any) {
	log.Debug(fmt.Sprintf(format, args...))
}

// Trace logs a fine-grained record (trap edges and trap regions in the
// CFG builder, pool sizes while parsing). It is written at Debug level
// with a "trace: " prefix, so a backend cannot filter it apart from Debug.
func Trace(format string, args ...any) {
	log.Debug("trace: " + fmt.Sprintf(format, args...))
}
