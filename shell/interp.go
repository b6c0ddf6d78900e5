package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/luwshell/luw/compiler"
	"github.com/luwshell/luw/pkg/bytecode"
)

// EvalError is a runtime failure in interpreted mode: an undefined
// variable or an unapplicable directive. It plays the role a VM
// runtime fault plays for compiled scripts.
type EvalError struct {
	Pos    compiler.Position
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("runtime error at line %d, col %d: %s", e.Pos.Line, e.Pos.Column, e.Reason)
}

// Interp executes a parsed script by walking its tree. A script
// behaves identically under Interp and under the VM: same dispatch
// calls, same output, same exit register, same failure conditions.
type Interp struct {
	dispatcher bytecode.Dispatcher
	env        bytecode.Environment
	cluster    bytecode.ClusterRunner

	stdout io.Writer
	stderr io.Writer

	exitRegister int
}

// NewInterp creates an interpreter over the same collaborator
// interfaces the VM consumes.
func NewInterp(dispatcher bytecode.Dispatcher, env bytecode.Environment, cluster bytecode.ClusterRunner, stdout, stderr io.Writer) *Interp {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Interp{
		dispatcher: dispatcher,
		env:        env,
		cluster:    cluster,
		stdout:     stdout,
		stderr:     stderr,
	}
}

// ExitRegister returns the exit code of the most recent command.
func (in *Interp) ExitRegister() int {
	return in.exitRegister
}

// Run executes every statement of the script in order.
func (in *Interp) Run(ctx context.Context, script *compiler.Script) error {
	for _, stmt := range script.Statements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.runStatement(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RunSource parses and executes a source string.
func (in *Interp) RunSource(ctx context.Context, src string) error {
	script, err := compiler.Parse(src)
	if err != nil {
		return err
	}
	return in.Run(ctx, script)
}

func (in *Interp) runStatement(ctx context.Context, stmt compiler.Statement) error {
	switch s := stmt.(type) {
	case *compiler.CommandStmt:
		return in.runCommand(ctx, s)

	case *compiler.AssignStmt:
		value, err := in.evalExpr(s.Value)
		if err != nil {
			return err
		}
		in.env.Set(s.Name, value)
		return nil

	case *compiler.ClusterStmt:
		results := in.cluster.RunCluster(ctx, s.Lines)
		bytecode.WriteMemberResults(in.stdout, in.stderr, results)
		in.exitRegister = aggregateExit(results)
		return nil

	case *compiler.IfStmt:
		return in.runIf(ctx, s)

	case *compiler.DirectiveStmt:
		name := strings.ToLower(strings.TrimPrefix(s.Name, "!"))
		if err := in.dispatcher.Directive(name); err != nil {
			return &EvalError{Pos: s.StartPos, Reason: err.Error()}
		}
		return nil

	default:
		return &EvalError{Pos: stmt.Pos(), Reason: fmt.Sprintf("cannot execute %T", stmt)}
	}
}

func (in *Interp) runCommand(ctx context.Context, s *compiler.CommandStmt) error {
	if s.Shell != compiler.ShellNone {
		if strings.TrimSpace(s.Raw) == "" {
			return nil
		}
		kind := bytecode.ShellKindPwsh
		if s.Shell == compiler.ShellCmd {
			kind = bytecode.ShellKindCmd
		}
		res, err := in.dispatcher.Passthrough(ctx, kind, s.Raw)
		if err != nil {
			return err
		}
		in.writeResult(res)
		in.exitRegister = res.ExitCode
		return nil
	}

	args := make([]string, len(s.Args))
	for i, arg := range s.Args {
		v, err := in.evalExpr(arg)
		if err != nil {
			return err
		}
		args[i] = v
	}
	flags := make(map[string]string, len(s.Flags))
	for name, expr := range s.Flags {
		v, err := in.evalExpr(expr)
		if err != nil {
			return err
		}
		flags[name] = v
	}

	res, err := in.dispatcher.Dispatch(ctx, s.Name, args, flags)
	if err != nil {
		return err
	}
	in.writeResult(res)
	in.exitRegister = res.ExitCode
	return nil
}

func (in *Interp) runIf(ctx context.Context, s *compiler.IfStmt) error {
	left, err := in.evalExpr(s.Left)
	if err != nil {
		return err
	}
	right, err := in.evalExpr(s.Right)
	if err != nil {
		return err
	}

	matched := left == right
	if s.Op == compiler.CondNe {
		matched = !matched
	}

	branch := s.Then
	if !matched {
		branch = s.Else
	}
	for _, stmt := range branch {
		if err := in.runStatement(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// evalExpr renders the expression to a single string, space-joining
// its parts. Undefined shell variables are errors; unset process
// environment reads as empty.
func (in *Interp) evalExpr(e compiler.Expr) (string, error) {
	parts := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		switch {
		case p.Kind == compiler.PartVar && p.Env:
			parts[i] = in.env.Getenv(p.Text)
		case p.Kind == compiler.PartVar:
			v, found := in.env.Lookup(p.Text)
			if !found {
				return "", &EvalError{Pos: e.StartPos, Reason: fmt.Sprintf("undefined variable $%s", p.Text)}
			}
			parts[i] = v
		default:
			parts[i] = p.Text
		}
	}
	return strings.Join(parts, " "), nil
}

func (in *Interp) writeResult(res bytecode.Result) {
	if res.Stdout != "" {
		io.WriteString(in.stdout, ensureTrailingNewline(res.Stdout))
	}
	if res.Stderr != "" {
		io.WriteString(in.stderr, ensureTrailingNewline(res.Stderr))
	}
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// aggregateExit is 0 only when every cluster member exited 0.
func aggregateExit(results []bytecode.MemberResult) int {
	for _, mr := range results {
		if mr.Result.ExitCode != 0 {
			return 1
		}
	}
	return 0
}
