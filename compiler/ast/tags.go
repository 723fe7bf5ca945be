package ast

// ---------------------------------------------------------------------------
// Frozen tag bytes for the content hash serialization.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cached archive key.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

const (
	TagReservedZero byte = 0x00

	// Literals
	TagNumberLiteral    byte = 0x01
	TagStringLiteral    byte = 0x02
	TagBooleanLiteral   byte = 0x03
	TagNullLiteral      byte = 0x04
	TagUndefinedLiteral byte = 0x05
	TagTemplateLiteral  byte = 0x06

	// References
	TagIdentifier byte = 0x08
	TagThis       byte = 0x09
	TagMember     byte = 0x0A

	// Operators
	TagAssignment byte = 0x10
	TagBinary     byte = 0x11
	TagLogical    byte = 0x12
	TagUnary      byte = 0x13
	TagCall       byte = 0x14
	TagNew        byte = 0x15
	TagTagged     byte = 0x16
	TagFunction   byte = 0x17

	// Statements
	TagExprStmt    byte = 0x20
	TagVarDecl     byte = 0x21
	TagBlock       byte = 0x22
	TagIf          byte = 0x23
	TagWhile       byte = 0x24
	TagReturn      byte = 0x25
	TagThrow       byte = 0x26
	TagTry         byte = 0x27
	TagFuncDecl    byte = 0x28
	TagEmpty       byte = 0x29
	TagScript      byte = 0x2A
	TagFunctionDef byte = 0x2B

	// Scope metadata
	TagScope   byte = 0x30
	TagBinding byte = 0x31
	TagAbsent  byte = 0x3F
)
