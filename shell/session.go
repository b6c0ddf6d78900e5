package shell

import (
	"context"
	"io"

	"github.com/luwshell/luw/compiler"
	"github.com/luwshell/luw/pkg/bytecode"
)

// Session is one shell session: the variable context, the dispatcher
// with its alias table and debug gate, the cluster scheduler and the
// interpreter. Both execution modes hang off it, so a script behaves
// the same whether interpreted from source or run from a compiled
// artifact.
type Session struct {
	Ctx        *Context
	Dispatcher *Dispatcher
	Scheduler  *Scheduler

	interp *Interp
}

// NewSession wires a session writing to the given streams. threads
// caps concurrent cluster members.
func NewSession(stdout, stderr io.Writer, threads int) *Session {
	ctx := NewContext(stdout, stderr)
	dispatcher := NewDispatcher(ctx)
	scheduler := NewScheduler(dispatcher, ctx, threads)
	return &Session{
		Ctx:        ctx,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		interp:     NewInterp(dispatcher, ctx, scheduler, ctx.Stdout, ctx.Stderr),
	}
}

// ExitRegister returns the exit code of the most recent command.
func (s *Session) ExitRegister() int {
	return s.interp.ExitRegister()
}

// RunScript interprets a full script source. The returned exit code
// is the register after the last command.
func (s *Session) RunScript(ctx context.Context, src string) (int, error) {
	if err := s.interp.RunSource(ctx, src); err != nil {
		return s.interp.ExitRegister(), err
	}
	return s.interp.ExitRegister(), nil
}

// RunLine executes a single interactive line: aliases expand first,
// then the line parses and runs like a one-statement script.
func (s *Session) RunLine(ctx context.Context, line string) error {
	expanded := s.Dispatcher.Aliases.ExpandLine(line)
	if expanded != line {
		s.Dispatcher.Gate.Debugf("alias expanded: %s -> %s", line, expanded)
	}
	script, err := compiler.Parse(expanded)
	if err != nil {
		return err
	}
	return s.interp.Run(ctx, script)
}

// RunChunk executes compiled bytecode on a VM sharing this session's
// dispatcher, context and scheduler.
func (s *Session) RunChunk(ctx context.Context, chunk *bytecode.Chunk) (int, error) {
	vm := bytecode.NewVM(chunk, s.Dispatcher, s.Ctx, s.Scheduler)
	vm.SetOutput(s.Ctx.Stdout, s.Ctx.Stderr)
	if err := vm.Run(ctx); err != nil {
		return vm.ExitRegister(), err
	}
	return vm.ExitRegister(), nil
}
