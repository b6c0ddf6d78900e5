package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Chunk represents a compiled script: a deduplicated constant pool in
// first-occurrence order plus the encoded instruction stream. It is
// the unit that gets serialized into a .le artifact and executed by
// the VM.
type Chunk struct {
	// Code section
	Code []byte // Bytecode instructions

	// Constant pool - strings referenced by 2-byte operand indices
	Constants []string
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]string, 0, 8),
	}
}

// AddConstant adds a string constant to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (c *Chunk) AddConstant(value string) uint16 {
	for i, s := range c.Constants {
		if s == value {
			return uint16(i)
		}
	}
	idx := uint16(len(c.Constants))
	c.Constants = append(c.Constants, value)
	return idx
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (c *Chunk) GetConstant(index uint16) string {
	return c.Constants[index]
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitConstant emits an OpConst instruction for the given value.
// Adds the constant to the pool if not already present.
func (c *Chunk) EmitConstant(value string) int {
	idx := c.AddConstant(value)
	return c.EmitWithOperand(OpConst, byte(idx>>8), byte(idx))
}

// EmitIndexed emits an opcode whose operand is a constant pool index.
func (c *Chunk) EmitIndexed(op Opcode, value string) int {
	idx := c.AddConstant(value)
	return c.EmitWithOperand(op, byte(idx>>8), byte(idx))
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1                             // Offset of the placeholder bytes
}

// PatchJump patches a jump instruction's offset to jump to the current position.
func (c *Chunk) PatchJump(placeholderOffset int) {
	// Relative jump from after the 2-byte offset
	jumpFrom := placeholderOffset + 2
	jumpTo := len(c.Code)
	delta := jumpTo - jumpFrom

	// Encode as signed 16-bit
	c.Code[placeholderOffset] = byte(delta >> 8)
	c.Code[placeholderOffset+1] = byte(delta)
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// Serialize encodes the chunk to bytes for storage inside an artifact.
// Format:
//
//	[const_count:2] [len:2 bytes... per constant]
//	[code_len:4] [code:...]
func (c *Chunk) Serialize() ([]byte, error) {
	estimatedSize := 8 + len(c.Code) + len(c.Constants)*16
	buf := make([]byte, 0, estimatedSize)

	if len(c.Constants) > 0xFFFF {
		return nil, fmt.Errorf("constant pool too large: %d entries", len(c.Constants))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Constants)))
	for _, s := range c.Constants {
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("constant too long: %d bytes", len(s))
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	buf = append(buf, c.Code...)

	return buf, nil
}

// Deserialize decodes a chunk from bytes. Every read is bounds-checked
// so truncated input yields an error rather than a panic.
func Deserialize(data []byte) (*Chunk, error) {
	c := &Chunk{}
	pos := 0

	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of chunk reading constant count")
	}
	constCount := binary.BigEndian.Uint16(data[pos:])
	pos += 2

	c.Constants = make([]string, constCount)
	for i := range c.Constants {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("unexpected end of chunk reading constant %d length", i)
		}
		strLen := binary.BigEndian.Uint16(data[pos:])
		pos += 2

		if pos+int(strLen) > len(data) {
			return nil, fmt.Errorf("unexpected end of chunk reading constant %d", i)
		}
		c.Constants[i] = string(data[pos : pos+int(strLen)])
		pos += int(strLen)
	}

	if pos+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of chunk reading code length")
	}
	codeLen := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	if pos+int(codeLen) > len(data) {
		return nil, fmt.Errorf("unexpected end of chunk reading code section: need %d bytes at pos %d", codeLen, pos)
	}
	c.Code = make([]byte, codeLen)
	copy(c.Code, data[pos:pos+int(codeLen)])

	return c, nil
}

// Validate walks the instruction stream and checks program integrity:
// every opcode is defined, no instruction is truncated, every constant
// operand resolves inside the pool, and every jump lands on an
// instruction boundary inside the code section.
func (c *Chunk) Validate() error {
	boundaries := make(map[int]bool, len(c.Code)/2)
	type pendingJump struct {
		at     int
		target int
	}
	var jumps []pendingJump

	ip := 0
	for ip < len(c.Code) {
		boundaries[ip] = true
		op := Opcode(c.Code[ip])
		if !op.IsDefined() {
			return fmt.Errorf("undefined opcode 0x%02X at offset %d", byte(op), ip)
		}
		opLen := op.OperandLen()
		if ip+1+opLen > len(c.Code) {
			return fmt.Errorf("truncated %s instruction at offset %d", op, ip)
		}

		if op.HasConstOperand() {
			idx := binary.BigEndian.Uint16(c.Code[ip+1:])
			if int(idx) >= len(c.Constants) {
				return fmt.Errorf("%s at offset %d references constant %d, pool has %d", op, ip, idx, len(c.Constants))
			}
		}
		if op.IsJump() {
			delta := int(int16(binary.BigEndian.Uint16(c.Code[ip+1:])))
			target := ip + 1 + opLen + delta
			jumps = append(jumps, pendingJump{at: ip, target: target})
		}

		ip += 1 + opLen
	}
	boundaries[len(c.Code)] = true // jumping to end is a valid exit

	for _, j := range jumps {
		if j.target < 0 || j.target > len(c.Code) || !boundaries[j.target] {
			return fmt.Errorf("jump at offset %d targets invalid offset %d", j.at, j.target)
		}
	}
	return nil
}
