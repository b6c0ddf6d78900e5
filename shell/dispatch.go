package shell

import (
	"context"
	"fmt"
	"sort"

	"github.com/luwshell/luw/pkg/bytecode"
)

// DispatchErrorKind discriminates dispatch failures.
type DispatchErrorKind int

const (
	// ErrUnknownCommand: the name is not a builtin and carries no
	// passthrough tag.
	ErrUnknownCommand DispatchErrorKind = iota

	// ErrExternalProcess: the external shell could not be resolved
	// or started. A shell that ran and exited non-zero is not an
	// error; its exit code travels in the result.
	ErrExternalProcess
)

// DispatchError is a failure to run a command at all. It is fatal to
// the script run, unlike a command that ran and failed.
type DispatchError struct {
	Kind DispatchErrorKind
	Name string
	Err  error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case ErrUnknownCommand:
		return fmt.Sprintf("luw: unknown command: %s", e.Name)
	default:
		return fmt.Sprintf("luw: %s: %v", e.Name, e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Builtin is one built-in command: its help text and implementation.
type Builtin struct {
	Name    string
	Summary string
	Run     func(ctx context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result
}

// Dispatcher resolves command names and runs them. Resolution order:
// builtins first, then nothing - passthrough lines carry their own
// shell tag and never reach Dispatch, and anything unresolved is an
// unknown-command failure carried in the result.
type Dispatcher struct {
	Ctx      *Context
	Aliases  *AliasTable
	External *ExternalRunner
	Gate     *DebugGate

	builtins map[string]*Builtin
}

// NewDispatcher wires a dispatcher around the context. The builtin
// registry is fixed at construction.
func NewDispatcher(ctx *Context) *Dispatcher {
	d := &Dispatcher{
		Ctx:      ctx,
		Aliases:  NewAliasTable(),
		External: NewExternalRunner(),
		Gate:     &DebugGate{},
	}
	d.builtins = builtinTable()
	return d
}

// WithContext returns a dispatcher bound to a different execution
// context. Aliases, the external runner, the debug gate and the
// builtin registry stay shared; only the context changes. Cluster
// members dispatch through this so their builtins see the member's
// fork, not the session context.
func (d *Dispatcher) WithContext(ctx *Context) *Dispatcher {
	clone := *d
	clone.Ctx = ctx
	return &clone
}

// Known reports whether name resolves to a builtin.
func (d *Dispatcher) Known(name string) bool {
	_, ok := d.builtins[name]
	return ok
}

// BuiltinNames returns the registered builtin names, sorted.
func (d *Dispatcher) BuiltinNames() []string {
	names := make([]string, 0, len(d.builtins))
	for name := range d.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs a named command. An unknown name is a *DispatchError
// and leaves the session context untouched; a builtin that ran and
// failed reports through the result's exit code.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []string, flags map[string]string) (bytecode.Result, error) {
	b, ok := d.builtins[name]
	if !ok {
		return bytecode.Result{}, &DispatchError{Kind: ErrUnknownCommand, Name: name}
	}
	d.Gate.Debugf("dispatch %s args=%d flags=%d", name, len(args), len(flags))
	return b.Run(ctx, d, args, flags), nil
}

// Passthrough hands a raw line to the external shell runner. A shell
// that cannot be started is a *DispatchError; a shell that ran is a
// result whatever its exit code.
func (d *Dispatcher) Passthrough(ctx context.Context, kind byte, line string) (bytecode.Result, error) {
	d.Gate.Debugf("passthrough kind=%d line=%q", kind, line)
	res, err := d.External.Run(ctx, kind, line, d.Ctx.Dir())
	if err != nil {
		return res, &DispatchError{Kind: ErrExternalProcess, Name: shellKindName(kind), Err: err}
	}
	d.Gate.Debugf("passthrough exited: %d", res.ExitCode)
	return res, nil
}

func shellKindName(kind byte) string {
	switch kind {
	case bytecode.ShellKindPwsh:
		return "pwsh"
	case bytecode.ShellKindCmd:
		return "cmd"
	default:
		return "shell"
	}
}

// Directive applies a session directive.
func (d *Dispatcher) Directive(name string) error {
	switch name {
	case "suppressdebug":
		d.Gate.Suppress()
		log.Info("debug suppressed for this session")
		return nil
	case "resumedebug":
		d.Gate.Resume()
		log.Info("debug resumed for this session")
		return nil
	default:
		return fmt.Errorf("unknown directive !%s", name)
	}
}
