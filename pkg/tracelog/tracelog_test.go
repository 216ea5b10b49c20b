package tracelog

import "testing"

func TestDebugAndTraceDoNotPanic(t *testing.T) {
	Debug("parsing section %s at offset %d", "strings", 12)
	Trace("edge %d -> %d", 0, 1)
}
