package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; LUW Bytecode v%d\n", FormatVersion))

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, s := range c.Constants {
			// Truncate long strings for readability
			display := s
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			display = strings.ReplaceAll(display, "\t", "\\t")
			sb.WriteString(fmt.Sprintf(";   [%3d] %q\n", i, display))
		}
	}
	sb.WriteString("\n; Code:\n")

	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction formats a single instruction at the given
// offset. Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	op := Opcode(c.Code[offset])
	if !op.IsDefined() {
		return fmt.Sprintf("DATA 0x%02X", byte(op)), 1
	}
	if offset+op.InstructionLen() > len(c.Code) {
		return fmt.Sprintf("%s <truncated>", op), len(c.Code) - offset
	}

	switch op {
	case OpConst, OpLoadVar, OpStoreVar, OpLoadEnv, OpDirective:
		idx := binary.BigEndian.Uint16(c.Code[offset+1:])
		return fmt.Sprintf("%s %d ; %s", op, idx, c.constPreview(idx)), 3

	case OpJoin:
		return fmt.Sprintf("%s %d", op, c.Code[offset+1]), 2

	case OpJump, OpJumpFalse:
		delta := int(int16(binary.BigEndian.Uint16(c.Code[offset+1:])))
		target := offset + 3 + delta
		return fmt.Sprintf("%s %+d ; -> %04X", op, delta, target), 3

	case OpCall:
		idx := binary.BigEndian.Uint16(c.Code[offset+1:])
		argc := c.Code[offset+3]
		flagc := c.Code[offset+4]
		return fmt.Sprintf("%s %d args=%d flags=%d ; %s", op, idx, argc, flagc, c.constPreview(idx)), 5

	case OpShell:
		kind := "pwsh"
		if c.Code[offset+1] == ShellKindCmd {
			kind = "cmd"
		}
		return fmt.Sprintf("%s %s", op, kind), 2

	case OpSpawnCluster:
		n := binary.BigEndian.Uint16(c.Code[offset+1:])
		return fmt.Sprintf("%s %d", op, n), 3

	default:
		return op.String(), op.InstructionLen()
	}
}

func (c *Chunk) constPreview(idx uint16) string {
	if int(idx) >= len(c.Constants) {
		return "<bad index>"
	}
	s := c.Constants[idx]
	if len(s) > 20 {
		s = s[:17] + "..."
	}
	return fmt.Sprintf("%q", s)
}
