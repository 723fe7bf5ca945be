// Package descriptor holds the immutable value objects the backend uses to
// name types, methods and fields in emitted code.
package descriptor

import (
	"fmt"
	"strings"
)

// Sort classifies a Type.
type Sort uint8

const (
	Void Sort = iota
	Boolean
	Char
	Byte
	Short
	Int
	Float
	Long
	Double
	Reference
	Array
)

var sortNames = [...]string{
	Void:      "void",
	Boolean:   "boolean",
	Char:      "char",
	Byte:      "byte",
	Short:     "short",
	Int:       "int",
	Float:     "float",
	Long:      "long",
	Double:    "double",
	Reference: "reference",
	Array:     "array",
}

func (s Sort) String() string {
	if int(s) < len(sortNames) {
		return sortNames[s]
	}
	return fmt.Sprintf("Sort(%d)", uint8(s))
}

// Type is a value type as seen by the emitter. Two Types are interchangeable
// when they compare equal.
type Type struct {
	sort Sort
	name string // internal name for references, element descriptor for arrays
}

// Primitive types.
var (
	VoidType    = Type{sort: Void}
	BooleanType = Type{sort: Boolean}
	CharType    = Type{sort: Char}
	ByteType    = Type{sort: Byte}
	ShortType   = Type{sort: Short}
	IntType     = Type{sort: Int}
	FloatType   = Type{sort: Float}
	LongType    = Type{sort: Long}
	DoubleType  = Type{sort: Double}
)

// Well-known reference types shared by the generator and the runtime library.
var (
	Object           = Ref("Object")
	String           = Ref("String")
	StringBuilder    = Ref("StringBuilder")
	ExecutionContext = Ref("ExecutionContext")
	Realm            = Ref("Realm")
	Environment      = Ref("Environment")
	FunctionInfo     = Ref("FunctionInfo")
	ScriptInfo       = Ref("ScriptInfo")
	MethodHandle     = Ref("MethodHandle")
	Throwable        = Ref("Throwable")
	ObjectArray      = ArrayOf(Object)
	StringArray      = ArrayOf(String)
)

// Ref returns the reference type with the given internal name.
func Ref(name string) Type {
	return Type{sort: Reference, name: name}
}

// ArrayOf returns the array type with elements of type elem.
func ArrayOf(elem Type) Type {
	return Type{sort: Array, name: elem.Descriptor()}
}

// Sort returns the type's classification.
func (t Type) Sort() Sort { return t.sort }

// Name returns the internal name of a reference type, or "" otherwise.
func (t Type) Name() string {
	if t.sort == Reference {
		return t.name
	}
	return ""
}

// Elem returns the element type of an array type.
func (t Type) Elem() Type {
	if t.sort != Array {
		panic("descriptor: Elem of non-array type " + t.Descriptor())
	}
	elem, rest, err := parseType(t.name)
	if err != nil || rest != "" {
		panic("descriptor: corrupt array type " + t.name)
	}
	return elem
}

// Width is the number of local-variable or operand-stack units a value of
// this type occupies: 0 for void, 2 for long and double, 1 otherwise.
func (t Type) Width() int {
	switch t.sort {
	case Void:
		return 0
	case Long, Double:
		return 2
	default:
		return 1
	}
}

// IsPrimitive reports whether t is a non-void primitive.
func (t Type) IsPrimitive() bool {
	return t.sort > Void && t.sort < Reference
}

// IsReference reports whether values of t are object references.
func (t Type) IsReference() bool {
	return t.sort == Reference || t.sort == Array
}

// Descriptor renders t in descriptor notation, e.g. "I", "J", "LObject;".
func (t Type) Descriptor() string {
	switch t.sort {
	case Void:
		return "V"
	case Boolean:
		return "Z"
	case Char:
		return "C"
	case Byte:
		return "B"
	case Short:
		return "S"
	case Int:
		return "I"
	case Float:
		return "F"
	case Long:
		return "J"
	case Double:
		return "D"
	case Reference:
		return "L" + t.name + ";"
	case Array:
		return "[" + t.name
	}
	panic(fmt.Sprintf("descriptor: bad sort %d", t.sort))
}

func (t Type) String() string {
	switch t.sort {
	case Reference:
		return t.name
	case Array:
		return t.Elem().String() + "[]"
	default:
		return t.sort.String()
	}
}

// boxes maps each primitive sort to the name of its wrapper reference type.
var boxes = map[Sort]string{
	Boolean: "Boolean",
	Char:    "Character",
	Byte:    "Byte",
	Short:   "Short",
	Int:     "Integer",
	Float:   "Float",
	Long:    "Long",
	Double:  "Double",
}

// Boxed returns the wrapper reference type for a primitive type. Reference
// types are returned unchanged.
func (t Type) Boxed() Type {
	if name, ok := boxes[t.sort]; ok {
		return Ref(name)
	}
	if t.sort == Void {
		panic("descriptor: cannot box void")
	}
	return t
}

// Unboxed returns the primitive type wrapped by a wrapper reference type.
func (t Type) Unboxed() (Type, bool) {
	if t.sort != Reference {
		return t, t.IsPrimitive()
	}
	for sort, name := range boxes {
		if name == t.name {
			return Type{sort: sort}, true
		}
	}
	return t, false
}

// ParseType parses a single type descriptor.
func ParseType(desc string) (Type, error) {
	t, rest, err := parseType(desc)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("descriptor: trailing characters %q in %q", rest, desc)
	}
	return t, nil
}

func parseType(desc string) (Type, string, error) {
	if desc == "" {
		return Type{}, "", fmt.Errorf("descriptor: empty type descriptor")
	}
	switch desc[0] {
	case 'V':
		return VoidType, desc[1:], nil
	case 'Z':
		return BooleanType, desc[1:], nil
	case 'C':
		return CharType, desc[1:], nil
	case 'B':
		return ByteType, desc[1:], nil
	case 'S':
		return ShortType, desc[1:], nil
	case 'I':
		return IntType, desc[1:], nil
	case 'F':
		return FloatType, desc[1:], nil
	case 'J':
		return LongType, desc[1:], nil
	case 'D':
		return DoubleType, desc[1:], nil
	case 'L':
		end := strings.IndexByte(desc, ';')
		if end < 2 {
			return Type{}, "", fmt.Errorf("descriptor: malformed reference in %q", desc)
		}
		return Ref(desc[1:end]), desc[end+1:], nil
	case '[':
		elem, rest, err := parseType(desc[1:])
		if err != nil {
			return Type{}, "", err
		}
		if elem.sort == Void {
			return Type{}, "", fmt.Errorf("descriptor: array of void in %q", desc)
		}
		return ArrayOf(elem), rest, nil
	}
	return Type{}, "", fmt.Errorf("descriptor: unknown type code %q in %q", desc[0], desc)
}
