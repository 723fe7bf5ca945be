package descriptor

import (
	"fmt"
	"strings"
)

// Signature is a method's parameter and return types.
type Signature struct {
	Return Type
	Params []Type
}

// MethodType builds a Signature.
func MethodType(ret Type, params ...Type) Signature {
	return Signature{Return: ret, Params: params}
}

// ArgWidth returns the total slot width of the parameters.
func (s Signature) ArgWidth() int {
	n := 0
	for _, p := range s.Params {
		n += p.Width()
	}
	return n
}

// String renders the signature in descriptor notation, e.g. "(LObject;I)D".
func (s Signature) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range s.Params {
		sb.WriteString(p.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteString(s.Return.Descriptor())
	return sb.String()
}

// ParseSignature parses a method descriptor string.
func ParseSignature(desc string) (Signature, error) {
	if !strings.HasPrefix(desc, "(") {
		return Signature{}, fmt.Errorf("descriptor: signature %q must start with '('", desc)
	}
	rest := desc[1:]
	var params []Type
	for !strings.HasPrefix(rest, ")") {
		t, r, err := parseType(rest)
		if err != nil {
			return Signature{}, err
		}
		if t.sort == Void {
			return Signature{}, fmt.Errorf("descriptor: void parameter in %q", desc)
		}
		params = append(params, t)
		rest = r
	}
	ret, err := ParseType(rest[1:])
	if err != nil {
		return Signature{}, err
	}
	return Signature{Return: ret, Params: params}, nil
}

// MethodKind selects the invocation instruction used for a method reference.
type MethodKind uint8

const (
	Static MethodKind = iota
	Virtual
	Special
	Interface
)

func (k MethodKind) String() string {
	switch k {
	case Static:
		return "static"
	case Virtual:
		return "virtual"
	case Special:
		return "special"
	case Interface:
		return "interface"
	}
	return fmt.Sprintf("MethodKind(%d)", uint8(k))
}

// HasReceiver reports whether invocations pass a receiver before the arguments.
func (k MethodKind) HasReceiver() bool {
	return k != Static
}

// FieldKind distinguishes instance from static fields.
type FieldKind uint8

const (
	InstanceField FieldKind = iota
	StaticField
)

func (k FieldKind) String() string {
	if k == StaticField {
		return "static"
	}
	return "instance"
}

// MethodDesc references a method. It is a comparable value; equal
// descriptors name the same target.
type MethodDesc struct {
	Kind  MethodKind `cbor:"1,keyasint"`
	Owner string     `cbor:"2,keyasint"`
	Name  string     `cbor:"3,keyasint"`
	Desc  string     `cbor:"4,keyasint"`
}

// NewMethod creates a method descriptor.
func NewMethod(kind MethodKind, owner, name string, sig Signature) MethodDesc {
	return MethodDesc{Kind: kind, Owner: owner, Name: name, Desc: sig.String()}
}

// Signature decodes the method's descriptor string.
func (m MethodDesc) Signature() Signature {
	sig, err := ParseSignature(m.Desc)
	if err != nil {
		panic(err)
	}
	return sig
}

// ArgWidth is the number of operand-stack units consumed by an invocation,
// including the receiver.
func (m MethodDesc) ArgWidth() int {
	n := m.Signature().ArgWidth()
	if m.Kind.HasReceiver() {
		n++
	}
	return n
}

// Key is the lookup key used by linkers: "Owner.Name".
func (m MethodDesc) Key() string {
	return m.Owner + "." + m.Name
}

func (m MethodDesc) String() string {
	return fmt.Sprintf("%s %s.%s%s", m.Kind, m.Owner, m.Name, m.Desc)
}

// FieldDesc references a field.
type FieldDesc struct {
	Kind  FieldKind `cbor:"1,keyasint"`
	Owner string    `cbor:"2,keyasint"`
	Name  string    `cbor:"3,keyasint"`
	Desc  string    `cbor:"4,keyasint"`
}

// NewField creates a field descriptor.
func NewField(kind FieldKind, owner, name string, t Type) FieldDesc {
	return FieldDesc{Kind: kind, Owner: owner, Name: name, Desc: t.Descriptor()}
}

// Type decodes the field's type.
func (f FieldDesc) Type() Type {
	t, err := ParseType(f.Desc)
	if err != nil {
		panic(err)
	}
	return t
}

// Key is the lookup key used by linkers: "Owner.Name".
func (f FieldDesc) Key() string {
	return f.Owner + "." + f.Name
}

func (f FieldDesc) String() string {
	return fmt.Sprintf("%s %s.%s:%s", f.Kind, f.Owner, f.Name, f.Desc)
}
