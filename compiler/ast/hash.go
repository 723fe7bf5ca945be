package ast

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of a resolved tree.
//
// Encoding conventions:
//   - First byte: HashVersion
//   - Integers: uint32 big-endian
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Optional children: TagAbsent when missing
//
// Spans are not serialized except for statement lines, which end up in the
// emitted line tables. File names are, since they end up in source maps.
// ---------------------------------------------------------------------------

// Hash returns the SHA-256 of the canonical serialization of n.
func Hash(n Node) [32]byte {
	return sha256.Sum256(Serialize(n))
}

// HashString returns Hash(n) as lower-case hex.
func HashString(n Node) string {
	h := Hash(n)
	return hex.EncodeToString(h[:])
}

// Serialize produces the canonical byte serialization of n.
func Serialize(n Node) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.node(n)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeStrings(vs []string) {
	s.writeUint32(uint32(len(vs)))
	for _, v := range vs {
		s.writeString(v)
	}
}

func (s *serializer) line(n Node) {
	s.writeUint32(uint32(n.Span().Start.Line))
}

func (s *serializer) statements(list []Statement) {
	s.writeUint32(uint32(len(list)))
	for _, st := range list {
		s.node(st)
	}
}

func (s *serializer) expressions(list []Expression) {
	s.writeUint32(uint32(len(list)))
	for _, e := range list {
		s.node(e)
	}
}

func (s *serializer) optional(n Node) {
	if n == nil || isNilNode(n) {
		s.writeByte(TagAbsent)
		return
	}
	s.node(n)
}

func (s *serializer) binding(b *Binding) {
	if b == nil {
		s.writeByte(TagAbsent)
		return
	}
	s.writeByte(TagBinding)
	s.writeString(b.Name)
	s.writeByte(byte(b.Kind))
	s.writeBool(b.Local)
}

func (s *serializer) scope(sc *Scope) {
	if sc == nil {
		s.writeByte(TagAbsent)
		return
	}
	s.writeByte(TagScope)
	s.writeByte(byte(sc.Kind))
	s.writeBool(sc.Strict)
	s.writeStrings(sc.VarNames)
	s.writeUint32(uint32(len(sc.Lexical)))
	for _, b := range sc.Lexical {
		s.binding(b)
	}
	s.writeUint32(uint32(len(sc.Functions)))
	for _, f := range sc.Functions {
		s.writeString(f.Name)
	}
}

func (s *serializer) node(n Node) {
	switch n := n.(type) {
	case *Script:
		s.writeByte(TagScript)
		s.writeString(n.File)
		s.scope(n.Scope)
		s.statements(n.Body)

	case *FunctionNode:
		s.writeByte(TagFunctionDef)
		s.writeString(n.Name)
		s.writeStrings(n.Params)
		s.writeBool(n.Arrow)
		s.writeBool(n.ConciseBody)
		s.writeString(n.Source)
		s.scope(n.Scope)
		s.statements(n.Body)
		s.optional(n.Expr)

	case *ExpressionStatement:
		s.writeByte(TagExprStmt)
		s.line(n)
		s.node(n.Expr)

	case *VariableDeclaration:
		s.writeByte(TagVarDecl)
		s.line(n)
		s.writeByte(byte(n.Kind))
		s.writeUint32(uint32(len(n.Decls)))
		for _, d := range n.Decls {
			s.writeString(d.Name)
			s.binding(d.Binding)
			s.optional(d.Init)
		}

	case *BlockStatement:
		s.writeByte(TagBlock)
		s.line(n)
		s.scope(n.Scope)
		s.statements(n.Body)

	case *IfStatement:
		s.writeByte(TagIf)
		s.line(n)
		s.node(n.Test)
		s.node(n.Then)
		s.optional(n.Else)

	case *WhileStatement:
		s.writeByte(TagWhile)
		s.line(n)
		s.node(n.Test)
		s.node(n.Body)

	case *ReturnStatement:
		s.writeByte(TagReturn)
		s.line(n)
		s.optional(n.Argument)

	case *ThrowStatement:
		s.writeByte(TagThrow)
		s.line(n)
		s.node(n.Argument)

	case *TryStatement:
		s.writeByte(TagTry)
		s.line(n)
		s.node(n.Block)
		s.binding(n.Param)
		s.scope(n.CatchScope)
		s.node(n.Handler)

	case *FunctionDeclaration:
		s.writeByte(TagFuncDecl)
		s.line(n)
		s.node(n.Function)

	case *EmptyStatement:
		s.writeByte(TagEmpty)

	case *NumberLiteral:
		s.writeByte(TagNumberLiteral)
		s.writeFloat64(n.Value)

	case *StringLiteral:
		s.writeByte(TagStringLiteral)
		s.writeString(n.Value)

	case *BooleanLiteral:
		s.writeByte(TagBooleanLiteral)
		s.writeBool(n.Value)

	case *NullLiteral:
		s.writeByte(TagNullLiteral)

	case *UndefinedLiteral:
		s.writeByte(TagUndefinedLiteral)

	case *Identifier:
		s.writeByte(TagIdentifier)
		s.writeString(n.Name)
		s.binding(n.Binding)

	case *ThisExpression:
		s.writeByte(TagThis)

	case *MemberExpression:
		s.writeByte(TagMember)
		s.node(n.Object)
		s.writeString(n.Property)
		s.optional(n.Computed)

	case *AssignmentExpression:
		s.writeByte(TagAssignment)
		s.node(n.Target)
		s.node(n.Value)

	case *BinaryExpression:
		s.writeByte(TagBinary)
		s.writeString(n.Op)
		s.node(n.Left)
		s.node(n.Right)

	case *LogicalExpression:
		s.writeByte(TagLogical)
		s.writeString(n.Op)
		s.node(n.Left)
		s.node(n.Right)

	case *UnaryExpression:
		s.writeByte(TagUnary)
		s.writeString(n.Op)
		s.node(n.Argument)

	case *CallExpression:
		s.writeByte(TagCall)
		s.node(n.Callee)
		s.expressions(n.Arguments)

	case *NewExpression:
		s.writeByte(TagNew)
		s.node(n.Callee)
		s.expressions(n.Arguments)

	case *FunctionExpression:
		s.writeByte(TagFunction)
		s.node(n.Function)

	case *TemplateLiteral:
		s.writeByte(TagTemplateLiteral)
		s.writeStrings(n.Cooked)
		s.writeStrings(n.Raw)
		s.expressions(n.Expressions)

	case *TaggedTemplate:
		s.writeByte(TagTagged)
		s.node(n.Tag)
		s.node(n.Quasi)

	default:
		panic(fmt.Sprintf("ast: cannot serialize %T", n))
	}
}
