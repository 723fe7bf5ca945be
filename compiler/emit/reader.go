package emit

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/esdraft/compiler/constpool"
)

// ---------------------------------------------------------------------------
// Bytecode reader
// ---------------------------------------------------------------------------

// Reader reads bytecode for interpretation or disassembly.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader for bytecode.
func NewReader(bc []byte) *Reader {
	return &Reader{bytes: bc}
}

// Position returns the current read position.
func (r *Reader) Position() int { return r.pos }

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool { return r.pos < len(r.bytes) }

// Seek sets the read position.
func (r *Reader) Seek(pos int) { r.pos = pos }

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt32 reads a 32-bit operand (little-endian).
func (r *Reader) ReadInt32() int32 {
	if r.pos+4 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return int32(v)
}

// ReadInt64 reads a 64-bit operand (little-endian).
func (r *Reader) ReadInt64() int64 {
	if r.pos+8 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return int64(v)
}

// ReadFloat32 reads a 32-bit float operand.
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(uint32(r.ReadInt32()))
}

// ReadFloat64 reads a 64-bit float operand.
func (r *Reader) ReadFloat64() float64 {
	return math.Float64frombits(uint64(r.ReadInt64()))
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// ConstantLookup resolves pool keys for the disassembler. It may be nil.
type ConstantLookup func(constpool.Key) (constpool.Constant, bool)

// DisassembleInstruction disassembles a single instruction at the reader's
// position and advances the reader.
func DisassembleInstruction(r *Reader, lookup ConstantLookup) string {
	pos := r.Position()
	op := r.ReadOpcode()
	name := op.Name()

	switch {
	case op.IsJump():
		return fmt.Sprintf("%04d  %s -> %04d", pos, name, r.ReadUint16())
	case op.IsPoolRef():
		key := constpool.Key(r.ReadUint16())
		if lookup != nil {
			if c, ok := lookup(key); ok {
				return fmt.Sprintf("%04d  %s %v  // %v", pos, name, key, c)
			}
		}
		return fmt.Sprintf("%04d  %s %v", pos, name, key)
	}

	switch op {
	case OpLoad, OpLoad2, OpStore, OpStore2:
		return fmt.Sprintf("%04d  %s %d", pos, name, r.ReadUint16())
	case OpIconst:
		return fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt32())
	case OpLconst:
		return fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt64())
	case OpFconst:
		return fmt.Sprintf("%04d  %s %g", pos, name, r.ReadFloat32())
	case OpDconst:
		return fmt.Sprintf("%04d  %s %g", pos, name, r.ReadFloat64())
	}
	// Unknown opcodes still advance past their declared operands.
	r.Seek(r.Position() + op.OperandBytes())
	return fmt.Sprintf("%04d  %s", pos, name)
}

// Disassemble returns a listing of the given bytecode.
func Disassemble(bc []byte, lookup ConstantLookup) string {
	var sb strings.Builder
	r := NewReader(bc)
	for r.HasMore() {
		sb.WriteString(DisassembleInstruction(r, lookup))
		sb.WriteByte('\n')
	}
	return sb.String()
}
