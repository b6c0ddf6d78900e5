package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpPop Opcode = 0x01 // Pop top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst Opcode = 0x10 // Push constant from pool: OpConst <index:u16>

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpLoadVar  Opcode = 0x20 // Push binding value: OpLoadVar <name:u16>, faults if undefined
	OpStoreVar Opcode = 0x21 // Pop and bind: OpStoreVar <name:u16>
	OpLoadEnv  Opcode = 0x22 // Push environment variable (empty if unset): OpLoadEnv <name:u16>

	// ========================================================================
	// String operations (0x50-0x5F)
	// ========================================================================

	OpJoin Opcode = 0x51 // Space-join top n strings: OpJoin <n:u8>

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpEq Opcode = 0x60 // Pop two, push "true" if equal, "false" otherwise
	OpNe Opcode = 0x61 // Pop two, push "true" if not equal

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump      Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpFalse Opcode = 0x81 // Jump if top is falsy: OpJumpFalse <offset:i16>

	// ========================================================================
	// Dispatch (0x90-0x9F)
	// ========================================================================

	OpCall      Opcode = 0x90 // Invoke dispatcher: OpCall <name:u16> <argc:u8> <flagc:u8>
	OpShell     Opcode = 0x91 // Passthrough raw line on stack: OpShell <kind:u8>
	OpDirective Opcode = 0x92 // Session directive: OpDirective <name:u16>

	// ========================================================================
	// Cluster execution (0xA0-0xAF)
	// ========================================================================

	OpSpawnCluster Opcode = 0xA0 // Declare cluster of n members: OpSpawnCluster <n:u16>
	OpJoinCluster  Opcode = 0xA1 // Pop n member lines, run them concurrently, block until done

	// ========================================================================
	// Termination (0xF0-0xFF)
	// ========================================================================

	OpHalt Opcode = 0xF0 // Stop execution
)

// Shell kind operand values for OpShell.
const (
	ShellKindPwsh byte = 1
	ShellKindCmd  byte = 2
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0, 0, 0},
	OpPop: {"POP", 1, 0, 0},

	OpConst: {"CONST", 0, 1, 2},

	OpLoadVar:  {"LOAD_VAR", 0, 1, 2},
	OpStoreVar: {"STORE_VAR", 1, 0, 2},
	OpLoadEnv:  {"LOAD_ENV", 0, 1, 2},

	OpJoin: {"JOIN", -1, 1, 1},

	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},

	OpJump:      {"JUMP", 0, 0, 2},
	OpJumpFalse: {"JUMP_FALSE", 1, 0, 2},

	OpCall:      {"CALL", -1, 1, 4},
	OpShell:     {"SHELL", 1, 1, 1},
	OpDirective: {"DIRECTIVE", 0, 0, 2},

	OpSpawnCluster: {"SPAWN_CLUSTER", 0, 0, 2},
	OpJoinCluster:  {"JOIN_CLUSTER", -1, 0, 0},

	OpHalt: {"HALT", 0, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsDefined reports whether op is a known opcode.
func (op Opcode) IsDefined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpFalse
}

// HasConstOperand reports whether the opcode's first operand is a
// 2-byte constant pool index.
func (op Opcode) HasConstOperand() bool {
	switch op {
	case OpConst, OpLoadVar, OpStoreVar, OpLoadEnv, OpCall, OpDirective:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
