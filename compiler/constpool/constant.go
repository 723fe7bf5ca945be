// Package constpool implements the deduplicating constant tables referenced
// by emitted instructions.
package constpool

import (
	"fmt"
	"math"

	"github.com/chazu/esdraft/compiler/descriptor"
)

// Kind tags a Constant.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindLong
	KindDouble
	KindClass
	KindMethod
	KindField
	KindHandle
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindClass:
		return "class"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindHandle:
		return "handle"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Constant is a tagged pool entry. Constants are comparable; numeric payloads
// are stored as raw bits so that every NaN pattern deduplicates with itself.
type Constant struct {
	Kind   Kind                  `cbor:"1,keyasint"`
	Str    string                `cbor:"2,keyasint,omitempty"`
	Bits   uint64                `cbor:"3,keyasint,omitempty"`
	Method descriptor.MethodDesc `cbor:"4,keyasint,omitempty"`
	Field  descriptor.FieldDesc  `cbor:"5,keyasint,omitempty"`
}

func String(s string) Constant   { return Constant{Kind: KindString, Str: s} }
func Int(v int32) Constant       { return Constant{Kind: KindInt, Bits: uint64(uint32(v))} }
func Long(v int64) Constant      { return Constant{Kind: KindLong, Bits: uint64(v)} }
func Double(v float64) Constant  { return Constant{Kind: KindDouble, Bits: math.Float64bits(v)} }
func Class(name string) Constant { return Constant{Kind: KindClass, Str: name} }

func Method(m descriptor.MethodDesc) Constant { return Constant{Kind: KindMethod, Method: m} }
func Field(f descriptor.FieldDesc) Constant   { return Constant{Kind: KindField, Field: f} }
func Handle(m descriptor.MethodDesc) Constant { return Constant{Kind: KindHandle, Method: m} }

// Int32 returns the payload of an int constant.
func (c Constant) Int32() int32 { return int32(uint32(c.Bits)) }

// Int64 returns the payload of a long constant.
func (c Constant) Int64() int64 { return int64(c.Bits) }

// Float64 returns the payload of a double constant.
func (c Constant) Float64() float64 { return math.Float64frombits(c.Bits) }

// Width is the operand-stack width of the value a load of c produces.
func (c Constant) Width() int {
	if c.Kind == KindLong || c.Kind == KindDouble {
		return 2
	}
	return 1
}

// Size approximates the encoded size of c in bytes.
func (c Constant) Size() int {
	switch c.Kind {
	case KindString, KindClass:
		return 3 + len(c.Str)
	case KindMethod, KindHandle:
		return 5 + len(c.Method.Owner) + len(c.Method.Name) + len(c.Method.Desc)
	case KindField:
		return 5 + len(c.Field.Owner) + len(c.Field.Name) + len(c.Field.Desc)
	case KindLong, KindDouble:
		return 9
	default:
		return 5
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case KindString:
		s := c.Str
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return fmt.Sprintf("%q", s)
	case KindInt:
		return fmt.Sprintf("%d", c.Int32())
	case KindLong:
		return fmt.Sprintf("%dL", c.Int64())
	case KindDouble:
		return fmt.Sprintf("%g", c.Float64())
	case KindClass:
		return "class " + c.Str
	case KindMethod:
		return c.Method.String()
	case KindField:
		return c.Field.String()
	case KindHandle:
		return "handle " + c.Method.String()
	}
	return c.Kind.String()
}
