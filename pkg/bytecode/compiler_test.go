package bytecode

import (
	"bytes"
	"testing"
)

func TestCompileEmptyScript(t *testing.T) {
	chunk, err := CompileSource("")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	if len(chunk.Code) != 1 || Opcode(chunk.Code[0]) != OpHalt {
		t.Errorf("empty script code = %v, want [HALT]", chunk.Code)
	}
}

func TestCompileCommand(t *testing.T) {
	chunk, err := CompileSource("echo hello world")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	if err := chunk.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	// Two arg constants, then the call, then the statement pop.
	want := []Opcode{OpConst, OpConst, OpCall, OpPop, OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileCommandWithFlags(t *testing.T) {
	chunk, err := CompileSource("head file.txt --count 3")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}

	// The call operand encodes 1 positional arg and 1 flag.
	got := opcodeSequence(chunk)
	callIdx := -1
	offset := 0
	for i, op := range got {
		if op == OpCall {
			callIdx = offset
			break
		}
		offset += Opcode(got[i]).InstructionLen()
	}
	if callIdx < 0 {
		t.Fatal("no CALL instruction emitted")
	}
	argc := chunk.Code[callIdx+3]
	flagc := chunk.Code[callIdx+4]
	if argc != 1 || flagc != 1 {
		t.Errorf("CALL argc=%d flagc=%d, want 1 and 1", argc, flagc)
	}
}

func TestCompileDeterministic(t *testing.T) {
	src := "a = one\nb = two\nsay $a --left x --right y --mid z\nsay $b\n"
	first, err := CompileSource(src)
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	second, err := CompileSource(src)
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}

	fb, err := first.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	sb, err := second.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	if !bytes.Equal(fb, sb) {
		t.Error("recompiling the same source produced different bytes")
	}
}

func TestCompileAssignment(t *testing.T) {
	chunk, err := CompileSource("name = luw shell")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	want := []Opcode{OpConst, OpConst, OpJoin, OpStoreVar, OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompilePassthrough(t *testing.T) {
	chunk, err := CompileSource("!pwsh Get-ChildItem | Measure-Object")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	want := []Opcode{OpConst, OpShell, OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	if chunk.Constants[0] != "Get-ChildItem | Measure-Object" {
		t.Errorf("raw line constant = %q", chunk.Constants[0])
	}
}

func TestCompileEmptyPassthrough(t *testing.T) {
	// A bare !pwsh with no tail compiles to nothing.
	chunk, err := CompileSource("!pwsh")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	want := []Opcode{OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileCluster(t *testing.T) {
	chunk, err := CompileSource("!mt echo A & echo B & echo C")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	want := []Opcode{OpSpawnCluster, OpConst, OpConst, OpConst, OpJoinCluster, OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileIfElse(t *testing.T) {
	src := "if $mode == fast\necho quick\nelse\necho slow\nend\n"
	chunk, err := CompileSource(src)
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	if err := chunk.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	got := opcodeSequence(chunk)
	hasFalseJump, hasJump := false, false
	for _, op := range got {
		if op == OpJumpFalse {
			hasFalseJump = true
		}
		if op == OpJump {
			hasJump = true
		}
	}
	if !hasFalseJump || !hasJump {
		t.Errorf("if/else opcodes = %v, want both JUMP_FALSE and JUMP", got)
	}
}

func TestCompileIfWithoutElse(t *testing.T) {
	src := "if $a != $b\necho differ\nend\n"
	chunk, err := CompileSource(src)
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	if err := chunk.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	for _, op := range opcodeSequence(chunk) {
		if op == OpJump {
			t.Error("if without else should not emit an unconditional JUMP")
		}
	}
}

func TestCompileKnownDirective(t *testing.T) {
	chunk, err := CompileSource("!SuppressDebug")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	want := []Opcode{OpDirective, OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	if chunk.Constants[0] != "suppressdebug" {
		t.Errorf("directive constant = %q, want lowercased name", chunk.Constants[0])
	}
}

func TestCompileUnknownDirective(t *testing.T) {
	_, err := CompileSource("!Frobnicate")
	if err == nil {
		t.Fatal("CompileSource() = nil error, want unknown directive failure")
	}
	if _, ok := err.(*CompileError); !ok {
		t.Errorf("error type = %T, want *CompileError", err)
	}
}

func TestCompileEnvExpansion(t *testing.T) {
	chunk, err := CompileSource("echo $env:HOME")
	if err != nil {
		t.Fatalf("CompileSource() error: %v", err)
	}
	want := []Opcode{OpLoadEnv, OpCall, OpPop, OpHalt}
	got := opcodeSequence(chunk)
	if !opcodesEqual(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

// opcodeSequence walks the code section and returns the opcodes in order.
func opcodeSequence(c *Chunk) []Opcode {
	var ops []Opcode
	ip := 0
	for ip < len(c.Code) {
		op := Opcode(c.Code[ip])
		ops = append(ops, op)
		ip += op.InstructionLen()
	}
	return ops
}

func opcodesEqual(a, b []Opcode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
