package tcp

import (
	"log/slog"

	"github.com/soypat/rawtcp/internal"
)

// traceSeg logs one emitted or received segment at internal.LevelTrace,
// cheaply short-circuiting when no handler cares (see internal.LogEnabled).
// Ported from the teacher's per-connection trace helpers, narrowed to the
// one thing this module's dispatcher needs to trace: segments crossing
// the wire in either direction.
func (c *Connection) traceSeg(dir string, seg Segment) {
	if !internal.LogEnabled(c.Log, internal.LevelTrace) {
		return
	}
	internal.LogAttrs(c.Log, internal.LevelTrace, "seg",
		slog.String("quad", c.Quad.String()),
		slog.String("dir", dir),
		slog.String("state", c.State.String()),
		slog.String("seg", seg.String()),
	)
}

// debugState logs a state transition. Narrowed similarly from the
// teacher's conn.go logging style (one line per FSM transition).
func (c *Connection) debugState(from State) {
	if !internal.LogEnabled(c.Log, slog.LevelDebug) {
		return
	}
	internal.LogAttrs(c.Log, slog.LevelDebug, "state",
		slog.String("quad", c.Quad.String()),
		slog.String("from", from.String()),
		slog.String("to", c.State.String()),
	)
}
