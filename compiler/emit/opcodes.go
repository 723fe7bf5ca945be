package emit

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations. Operand-stack units are 1 wide; long and double values
// occupy two units.
const (
	OpNop    Opcode = 0x00 // no operation
	OpPop    Opcode = 0x01 // discard one unit
	OpPop2   Opcode = 0x02 // discard two units
	OpDup    Opcode = 0x03 // duplicate one unit
	OpDupX1  Opcode = 0x04 // duplicate one unit, insert below one
	OpDupX2  Opcode = 0x05 // duplicate one unit, insert below two
	OpDup2   Opcode = 0x06 // duplicate two units
	OpDup2X1 Opcode = 0x07 // duplicate two units, insert below one
	OpDup2X2 Opcode = 0x08 // duplicate two units, insert below two
	OpSwap   Opcode = 0x09 // swap the top two units
)

// Push Constants
const (
	OpAconstNull Opcode = 0x10 // push null reference
	OpIconst     Opcode = 0x11 // push 32-bit int (4 bytes)
	OpLconst     Opcode = 0x12 // push 64-bit long (8 bytes)
	OpFconst     Opcode = 0x13 // push 32-bit float (4 bytes)
	OpDconst     Opcode = 0x14 // push 64-bit double (8 bytes)
	OpLdc        Opcode = 0x15 // push narrow constant (16-bit pool key)
	OpLdc2       Opcode = 0x16 // push wide constant (16-bit pool key)
)

// Local Variables
const (
	OpLoad   Opcode = 0x20 // push narrow local (16-bit slot)
	OpLoad2  Opcode = 0x21 // push wide local (16-bit slot)
	OpStore  Opcode = 0x22 // store narrow local (16-bit slot)
	OpStore2 Opcode = 0x23 // store wide local (16-bit slot)
)

// Arithmetic and Conversions
const (
	OpIAdd  Opcode = 0x30
	OpISub  Opcode = 0x31
	OpIMul  Opcode = 0x32
	OpIXor  Opcode = 0x33
	OpINeg  Opcode = 0x34
	OpLAdd  Opcode = 0x35
	OpLSub  Opcode = 0x36
	OpLCmp  Opcode = 0x37
	OpDAdd  Opcode = 0x38
	OpDSub  Opcode = 0x39
	OpDMul  Opcode = 0x3A
	OpDDiv  Opcode = 0x3B
	OpDRem  Opcode = 0x3C
	OpDNeg  Opcode = 0x3D
	OpDCmpL Opcode = 0x3E // compare doubles, NaN yields -1
	OpDCmpG Opcode = 0x3F // compare doubles, NaN yields 1
	OpI2L   Opcode = 0x40
	OpI2D   Opcode = 0x41
	OpL2I   Opcode = 0x42
	OpL2D   Opcode = 0x43
	OpD2I   Opcode = 0x44
	OpD2L   Opcode = 0x45
	OpF2D   Opcode = 0x46
	OpD2F   Opcode = 0x47
)

// Control Flow. Jump operands are absolute 16-bit targets.
const (
	OpGoto      Opcode = 0x50
	OpIfEq      Opcode = 0x51 // pop int, jump if zero
	OpIfNe      Opcode = 0x52 // pop int, jump if non-zero
	OpIfLt      Opcode = 0x53
	OpIfGe      Opcode = 0x54
	OpIfGt      Opcode = 0x55
	OpIfLe      Opcode = 0x56
	OpIfICmpEq  Opcode = 0x57 // pop two ints, jump if equal
	OpIfICmpNe  Opcode = 0x58
	OpIfICmpLt  Opcode = 0x59
	OpIfICmpGe  Opcode = 0x5A
	OpIfACmpEq  Opcode = 0x5B // pop two references, jump if identical
	OpIfACmpNe  Opcode = 0x5C
	OpIfNull    Opcode = 0x5D
	OpIfNonNull Opcode = 0x5E
)

// Returns
const (
	OpReturn      Opcode = 0x70 // return void
	OpReturnValue Opcode = 0x71 // return narrow top of stack
	OpReturnWide  Opcode = 0x72 // return wide top of stack
)

// Members. Operands are 16-bit pool keys of method or field constants.
const (
	OpInvokeStatic    Opcode = 0x80
	OpInvokeVirtual   Opcode = 0x81
	OpInvokeSpecial   Opcode = 0x82
	OpInvokeInterface Opcode = 0x83
	OpGetStatic       Opcode = 0x88
	OpPutStatic       Opcode = 0x89
	OpGetField        Opcode = 0x8A
	OpPutField        Opcode = 0x8B
)

// Objects
const (
	OpNew         Opcode = 0x90 // allocate instance (16-bit class key)
	OpNewArray    Opcode = 0x91 // pop length, allocate reference array (16-bit class key)
	OpArrayLoad   Opcode = 0x92
	OpArrayStore  Opcode = 0x93
	OpArrayLength Opcode = 0x94
	OpThrow       Opcode = 0x95
	OpCheckCast   Opcode = 0x96 // 16-bit class key
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:    {"NOP", 0},
	OpPop:    {"POP", 0},
	OpPop2:   {"POP2", 0},
	OpDup:    {"DUP", 0},
	OpDupX1:  {"DUP_X1", 0},
	OpDupX2:  {"DUP_X2", 0},
	OpDup2:   {"DUP2", 0},
	OpDup2X1: {"DUP2_X1", 0},
	OpDup2X2: {"DUP2_X2", 0},
	OpSwap:   {"SWAP", 0},

	OpAconstNull: {"ACONST_NULL", 0},
	OpIconst:     {"ICONST", 4},
	OpLconst:     {"LCONST", 8},
	OpFconst:     {"FCONST", 4},
	OpDconst:     {"DCONST", 8},
	OpLdc:        {"LDC", 2},
	OpLdc2:       {"LDC2", 2},

	OpLoad:   {"LOAD", 2},
	OpLoad2:  {"LOAD2", 2},
	OpStore:  {"STORE", 2},
	OpStore2: {"STORE2", 2},

	OpIAdd:  {"IADD", 0},
	OpISub:  {"ISUB", 0},
	OpIMul:  {"IMUL", 0},
	OpIXor:  {"IXOR", 0},
	OpINeg:  {"INEG", 0},
	OpLAdd:  {"LADD", 0},
	OpLSub:  {"LSUB", 0},
	OpLCmp:  {"LCMP", 0},
	OpDAdd:  {"DADD", 0},
	OpDSub:  {"DSUB", 0},
	OpDMul:  {"DMUL", 0},
	OpDDiv:  {"DDIV", 0},
	OpDRem:  {"DREM", 0},
	OpDNeg:  {"DNEG", 0},
	OpDCmpL: {"DCMPL", 0},
	OpDCmpG: {"DCMPG", 0},
	OpI2L:   {"I2L", 0},
	OpI2D:   {"I2D", 0},
	OpL2I:   {"L2I", 0},
	OpL2D:   {"L2D", 0},
	OpD2I:   {"D2I", 0},
	OpD2L:   {"D2L", 0},
	OpF2D:   {"F2D", 0},
	OpD2F:   {"D2F", 0},

	OpGoto:      {"GOTO", 2},
	OpIfEq:      {"IFEQ", 2},
	OpIfNe:      {"IFNE", 2},
	OpIfLt:      {"IFLT", 2},
	OpIfGe:      {"IFGE", 2},
	OpIfGt:      {"IFGT", 2},
	OpIfLe:      {"IFLE", 2},
	OpIfICmpEq:  {"IF_ICMPEQ", 2},
	OpIfICmpNe:  {"IF_ICMPNE", 2},
	OpIfICmpLt:  {"IF_ICMPLT", 2},
	OpIfICmpGe:  {"IF_ICMPGE", 2},
	OpIfACmpEq:  {"IF_ACMPEQ", 2},
	OpIfACmpNe:  {"IF_ACMPNE", 2},
	OpIfNull:    {"IFNULL", 2},
	OpIfNonNull: {"IFNONNULL", 2},

	OpReturn:      {"RETURN", 0},
	OpReturnValue: {"RETURN_VALUE", 0},
	OpReturnWide:  {"RETURN_WIDE", 0},

	OpInvokeStatic:    {"INVOKESTATIC", 2},
	OpInvokeVirtual:   {"INVOKEVIRTUAL", 2},
	OpInvokeSpecial:   {"INVOKESPECIAL", 2},
	OpInvokeInterface: {"INVOKEINTERFACE", 2},
	OpGetStatic:       {"GETSTATIC", 2},
	OpPutStatic:       {"PUTSTATIC", 2},
	OpGetField:        {"GETFIELD", 2},
	OpPutField:        {"PUTFIELD", 2},

	OpNew:         {"NEW", 2},
	OpNewArray:    {"NEWARRAY", 2},
	OpArrayLoad:   {"ARRAYLOAD", 0},
	OpArrayStore:  {"ARRAYSTORE", 0},
	OpArrayLength: {"ARRAYLENGTH", 0},
	OpThrow:       {"THROW", 0},
	OpCheckCast:   {"CHECKCAST", 2},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether op takes a jump target operand.
func (op Opcode) IsJump() bool {
	return op >= OpGoto && op <= OpIfNonNull
}

// IsPoolRef reports whether op's operand is a constant pool key.
func (op Opcode) IsPoolRef() bool {
	switch op {
	case OpLdc, OpLdc2, OpNew, OpNewArray, OpCheckCast:
		return true
	}
	return op >= OpInvokeStatic && op <= OpPutField
}
