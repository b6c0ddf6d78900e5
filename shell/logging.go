package shell

import (
	"sync/atomic"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("luw.shell")

// DebugGate controls session-level debug suppression. The
// !SuppressDebug and !ResumeDebug directives flip it; debug-level
// chatter (alias expansions, task enqueues, exit codes) checks it
// before logging.
type DebugGate struct {
	suppressed atomic.Bool
}

// Suppress turns debug output off for the session.
func (g *DebugGate) Suppress() {
	g.suppressed.Store(true)
}

// Resume turns debug output back on.
func (g *DebugGate) Resume() {
	g.suppressed.Store(false)
}

// Suppressed reports the current gate state.
func (g *DebugGate) Suppressed() bool {
	return g.suppressed.Load()
}

// Debugf logs a debug message unless the gate is closed.
func (g *DebugGate) Debugf(format string, args ...any) {
	if !g.suppressed.Load() {
		log.Debugf(format, args...)
	}
}
