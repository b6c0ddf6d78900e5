package compiler

import "strings"

// ---------------------------------------------------------------------------
// AST node types
// ---------------------------------------------------------------------------

// ShellKind tags a passthrough command with its target external shell.
type ShellKind int

const (
	ShellNone ShellKind = iota
	ShellPwsh
	ShellCmd
)

func (k ShellKind) String() string {
	switch k {
	case ShellPwsh:
		return "pwsh"
	case ShellCmd:
		return "cmd"
	default:
		return "none"
	}
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
}

// Statement is a single script line (or if-block).
type Statement interface {
	Node
	stmtNode()
}

// Script is the root of a parsed script: an ordered statement list.
type Script struct {
	Statements []Statement
}

// PartKind discriminates expression parts.
type PartKind int

const (
	PartLiteral PartKind = iota
	PartVar
)

// Part is one element of an expression: a literal word/string or a
// variable reference ($name).
type Part struct {
	Kind PartKind
	Text string // literal text, or variable name for PartVar
	Env  bool   // PartVar only: $env:NAME form, environment-scoped
}

// Expr is a space-joined sequence of parts. A single-part Expr is the
// common case (one word, one string, one variable).
type Expr struct {
	Parts    []Part
	StartPos Position
}

func (e Expr) Pos() Position { return e.StartPos }

// IsLiteral reports whether the expression contains no variable parts.
func (e Expr) IsLiteral() bool {
	for _, p := range e.Parts {
		if p.Kind == PartVar {
			return false
		}
	}
	return true
}

// LiteralText returns the literal rendering of the expression,
// space-joining its parts. Variable parts render in source form.
func (e Expr) LiteralText() string {
	var sb strings.Builder
	for i, p := range e.Parts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.Kind == PartVar {
			if p.Env {
				sb.WriteString("$env:")
			} else {
				sb.WriteString("$")
			}
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// CommandStmt is a command invocation: either an ordinary command
// resolved by the dispatcher, or a passthrough line tagged with the
// target shell (Raw set, Args/Flags empty).
type CommandStmt struct {
	Name     string
	Args     []Expr
	Flags    map[string]Expr
	Shell    ShellKind // ShellNone for ordinary commands
	Raw      string    // verbatim line for passthrough commands
	StartPos Position
}

func (s *CommandStmt) Pos() Position { return s.StartPos }
func (s *CommandStmt) stmtNode()     {}

// AssignStmt binds the evaluated expression to a variable name in the
// execution context.
type AssignStmt struct {
	Name     string
	Value    Expr
	StartPos Position
}

func (s *AssignStmt) Pos() Position { return s.StartPos }
func (s *AssignStmt) stmtNode()     {}

// ClusterStmt is a !multithread/!mt batch: an ordered list of member
// command lines to run concurrently.
type ClusterStmt struct {
	Lines    []string
	StartPos Position
}

func (s *ClusterStmt) Pos() Position { return s.StartPos }
func (s *ClusterStmt) stmtNode()     {}

// CondOp is a comparison operator in an if condition.
type CondOp int

const (
	CondEq CondOp = iota // ==
	CondNe               // !=
)

func (op CondOp) String() string {
	if op == CondNe {
		return "!="
	}
	return "=="
}

// IfStmt is an if/else/end block.
type IfStmt struct {
	Left     Expr
	Op       CondOp
	Right    Expr
	Then     []Statement
	Else     []Statement
	StartPos Position
}

func (s *IfStmt) Pos() Position { return s.StartPos }
func (s *IfStmt) stmtNode()     {}

// DirectiveStmt is a bare session directive with no arguments, such as
// !SuppressDebug. The dispatcher interprets the name.
type DirectiveStmt struct {
	Name     string
	StartPos Position
}

func (s *DirectiveStmt) Pos() Position { return s.StartPos }
func (s *DirectiveStmt) stmtNode()     {}
