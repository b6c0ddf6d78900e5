package bytecode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luwshell/luw/compiler"
)

// CompileError describes a script construct that cannot be lowered to
// bytecode, with its source position.
type CompileError struct {
	Pos    compiler.Position
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at line %d, col %d: %s", e.Pos.Line, e.Pos.Column, e.Reason)
}

// Directive names the compiler accepts. Anything else on a bare !Name
// line is a compile-time failure, not a runtime one.
var knownDirectives = map[string]bool{
	"suppressdebug": true,
	"resumedebug":   true,
}

// Compiler lowers a parsed script into a chunk. Lowering is
// deterministic: the same script always produces byte-identical
// output (flag pushes are sorted by name, the constant pool is
// first-occurrence ordered).
type Compiler struct {
	chunk *Chunk
}

// NewCompiler creates a compiler with an empty chunk.
func NewCompiler() *Compiler {
	return &Compiler{chunk: NewChunk()}
}

// CompileSource lexes, parses and compiles a script in one step.
func CompileSource(src string) (*Chunk, error) {
	script, err := compiler.Parse(src)
	if err != nil {
		return nil, err
	}
	return NewCompiler().Compile(script)
}

// Compile lowers the script and returns the finished chunk. The chunk
// always ends with OpHalt.
func (c *Compiler) Compile(script *compiler.Script) (*Chunk, error) {
	for _, stmt := range script.Statements {
		if err := c.compileStatement(stmt); err != nil {
			return nil, err
		}
	}
	c.chunk.Emit(OpHalt)
	return c.chunk, nil
}

func (c *Compiler) compileStatement(stmt compiler.Statement) error {
	switch s := stmt.(type) {
	case *compiler.CommandStmt:
		return c.compileCommand(s)
	case *compiler.AssignStmt:
		c.compileExpr(s.Value)
		c.chunk.EmitIndexed(OpStoreVar, s.Name)
		return nil
	case *compiler.ClusterStmt:
		return c.compileCluster(s)
	case *compiler.IfStmt:
		return c.compileIf(s)
	case *compiler.DirectiveStmt:
		name := strings.ToLower(strings.TrimPrefix(s.Name, "!"))
		if !knownDirectives[name] {
			return &CompileError{Pos: s.StartPos, Reason: fmt.Sprintf("unknown directive !%s", name)}
		}
		c.chunk.EmitIndexed(OpDirective, name)
		return nil
	default:
		return &CompileError{Pos: stmt.Pos(), Reason: fmt.Sprintf("cannot compile %T", stmt)}
	}
}

func (c *Compiler) compileCommand(s *compiler.CommandStmt) error {
	if s.Shell != compiler.ShellNone {
		// Passthrough line. An empty tail compiles to nothing.
		if strings.TrimSpace(s.Raw) == "" {
			return nil
		}
		c.chunk.EmitConstant(s.Raw)
		kind := ShellKindPwsh
		if s.Shell == compiler.ShellCmd {
			kind = ShellKindCmd
		}
		c.chunk.EmitWithOperand(OpShell, kind)
		return nil
	}

	if len(s.Args) > 0xFF {
		return &CompileError{Pos: s.StartPos, Reason: fmt.Sprintf("too many arguments to %s: %d", s.Name, len(s.Args))}
	}
	if len(s.Flags) > 0xFF {
		return &CompileError{Pos: s.StartPos, Reason: fmt.Sprintf("too many flags to %s: %d", s.Name, len(s.Flags))}
	}

	for _, arg := range s.Args {
		c.compileExpr(arg)
	}

	// Flags push as name/value pairs in sorted name order so that
	// recompiling the same source yields identical bytes.
	flagNames := make([]string, 0, len(s.Flags))
	for name := range s.Flags {
		flagNames = append(flagNames, name)
	}
	sort.Strings(flagNames)
	for _, name := range flagNames {
		c.chunk.EmitConstant(name)
		c.compileExpr(s.Flags[name])
	}

	nameIdx := c.chunk.AddConstant(s.Name)
	c.chunk.EmitWithOperand(OpCall,
		byte(nameIdx>>8), byte(nameIdx),
		byte(len(s.Args)), byte(len(flagNames)))
	c.chunk.Emit(OpPop) // Statement position: discard the result
	return nil
}

func (c *Compiler) compileCluster(s *compiler.ClusterStmt) error {
	if len(s.Lines) > 0xFFFF {
		return &CompileError{Pos: s.StartPos, Reason: fmt.Sprintf("too many cluster members: %d", len(s.Lines))}
	}
	n := uint16(len(s.Lines))
	c.chunk.EmitWithOperand(OpSpawnCluster, byte(n>>8), byte(n))
	for _, line := range s.Lines {
		c.chunk.EmitConstant(line)
	}
	c.chunk.Emit(OpJoinCluster)
	return nil
}

func (c *Compiler) compileIf(s *compiler.IfStmt) error {
	c.compileExpr(s.Left)
	c.compileExpr(s.Right)
	if s.Op == compiler.CondNe {
		c.chunk.Emit(OpNe)
	} else {
		c.chunk.Emit(OpEq)
	}

	elseJump := c.chunk.EmitJump(OpJumpFalse)
	for _, stmt := range s.Then {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}

	if len(s.Else) == 0 {
		c.chunk.PatchJump(elseJump)
		return nil
	}

	endJump := c.chunk.EmitJump(OpJump)
	c.chunk.PatchJump(elseJump)
	for _, stmt := range s.Else {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	c.chunk.PatchJump(endJump)
	return nil
}

// compileExpr leaves exactly one string on the stack.
func (c *Compiler) compileExpr(e compiler.Expr) {
	if len(e.Parts) == 0 {
		c.chunk.EmitConstant("")
		return
	}
	for _, p := range e.Parts {
		switch {
		case p.Kind == compiler.PartVar && p.Env:
			c.chunk.EmitIndexed(OpLoadEnv, p.Text)
		case p.Kind == compiler.PartVar:
			c.chunk.EmitIndexed(OpLoadVar, p.Text)
		default:
			c.chunk.EmitConstant(p.Text)
		}
	}
	if len(e.Parts) > 1 {
		c.chunk.EmitWithOperand(OpJoin, byte(len(e.Parts)))
	}
}
